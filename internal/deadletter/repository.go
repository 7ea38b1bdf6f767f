package deadletter

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"

	"github.com/nerrad567/gray-logic-telemetry/internal/event"
)

// encodingJSONZstd marks a zstd-compressed JSON array of events.
const encodingJSONZstd = "json+zstd"

// Page size bounds for List.
const (
	defaultLimit = 50
	maxLimit     = 200
)

// Record describes one dead-lettered batch. The events themselves are
// fetched with Events.
type Record struct {
	ID           string    `json:"id"`
	ConsumerID   string    `json:"consumer_id"`
	Reason       string    `json:"reason"`
	Cause        string    `json:"cause,omitempty"`
	EventCount   int       `json:"event_count"`
	FirstEventID string    `json:"first_event_id,omitempty"`
	LastEventID  string    `json:"last_event_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Filter controls which records List returns.
type Filter struct {
	ConsumerID string // optional
	Reason     string // optional
	Limit      int    // default 50, max 200
	Offset     int
}

// ListResult contains a page of records.
type ListResult struct {
	Records []Record `json:"records"`
	Total   int      `json:"total"`
	Limit   int      `json:"limit"`
	Offset  int      `json:"offset"`
}

// Repository defines dead letter storage operations.
type Repository interface {
	RecordBatch(ctx context.Context, consumerID, reason string, batch []event.Event, cause error) error
	List(ctx context.Context, filter Filter) (*ListResult, error)
	Events(ctx context.Context, id string) (json.RawMessage, error)
}

// SQLiteRepository stores dead letters in the dead_letters table.
//
// Thread Safety: safe for concurrent use; the zstd encoder and decoder
// are only used through EncodeAll and DecodeAll.
type SQLiteRepository struct {
	db  *sql.DB
	enc *zstd.Encoder
	dec *zstd.Decoder
	now func() time.Time
}

// NewSQLiteRepository creates a repository over an open, migrated database.
func NewSQLiteRepository(db *sql.DB) (*SQLiteRepository, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("creating zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("creating zstd decoder: %w", err)
	}
	return &SQLiteRepository{
		db:  db,
		enc: enc,
		dec: dec,
		now: func() time.Time { return time.Now().UTC() },
	}, nil
}

// RecordBatch stores batch under a new ID.
func (r *SQLiteRepository) RecordBatch(ctx context.Context, consumerID, reason string, batch []event.Event, cause error) error {
	if len(batch) == 0 {
		return ErrEmptyBatch
	}

	raw, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("marshalling dead letter events: %w", err)
	}
	blob := r.enc.EncodeAll(raw, make([]byte, 0, len(raw)/4))

	causeText := ""
	if cause != nil {
		causeText = cause.Error()
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO dead_letters
		   (id, consumer_id, reason, cause, event_count, first_event, last_event, events, encoding, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), consumerID, reason, causeText, len(batch),
		batch[0].ID, batch[len(batch)-1].ID,
		blob, encodingJSONZstd,
		r.now().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("inserting dead letter: %w", err)
	}
	return nil
}

// List returns records matching filter, most recent first.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultLimit
	}
	if filter.Limit > maxLimit {
		filter.Limit = maxLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	var conditions []string
	var args []any
	if filter.ConsumerID != "" {
		conditions = append(conditions, "consumer_id = ?")
		args = append(args, filter.ConsumerID)
	}
	if filter.Reason != "" {
		conditions = append(conditions, "reason = ?")
		args = append(args, filter.Reason)
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	countQuery := "SELECT COUNT(*) FROM dead_letters " + where //nolint:gosec // WHERE built from parameterised conditions
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting dead letters: %w", err)
	}

	query := fmt.Sprintf( //nolint:gosec // WHERE built from parameterised conditions
		`SELECT id, consumer_id, reason, cause, event_count, first_event, last_event, created_at
		 FROM dead_letters %s ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?`,
		where,
	)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying dead letters: %w", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		var rec Record
		var createdAt string
		if err := rows.Scan(&rec.ID, &rec.ConsumerID, &rec.Reason, &rec.Cause, &rec.EventCount,
			&rec.FirstEventID, &rec.LastEventID, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning dead letter: %w", err)
		}
		t, err := time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing dead letter timestamp %q: %w", createdAt, err)
		}
		rec.CreatedAt = t
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating dead letters: %w", err)
	}

	return &ListResult{
		Records: records,
		Total:   total,
		Limit:   filter.Limit,
		Offset:  filter.Offset,
	}, nil
}

// Events returns the stored batch as a JSON array of events.
func (r *SQLiteRepository) Events(ctx context.Context, id string) (json.RawMessage, error) {
	var blob []byte
	var encoding string
	err := r.db.QueryRowContext(ctx,
		"SELECT events, encoding FROM dead_letters WHERE id = ?", id,
	).Scan(&blob, &encoding)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying dead letter %s: %w", id, err)
	}

	if encoding != encodingJSONZstd {
		return nil, fmt.Errorf("dead letter %s: unknown encoding %q", id, encoding)
	}
	raw, err := r.dec.DecodeAll(blob, nil)
	if err != nil {
		return nil, fmt.Errorf("decompressing dead letter %s: %w", id, err)
	}
	return raw, nil
}

// Close releases the zstd encoder and decoder resources.
func (r *SQLiteRepository) Close() error {
	r.dec.Close()
	return r.enc.Close()
}
