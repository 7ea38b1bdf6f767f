package ingress

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"reflect"
	"sort"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"github.com/nerrad567/gray-logic-telemetry/internal/event"
)

// Content types understood by DecodePayload.
const (
	ContentTypeJSON = "application/json"
	ContentTypeCBOR = "application/cbor"
)

// Field names used for opaque bodies.
const (
	RawDataField        = "data"
	RawContentTypeField = "content_type"
)

var cborDec cbor.DecMode

func init() {
	var err error
	cborDec, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("ingress: cbor decode mode: " + err.Error())
	}
}

// DecodePayload converts a request body into a Payload according to its
// content type. An empty contentType is treated as JSON.
//
// Parameters:
//   - contentType: the Content-Type header value, parameters allowed
//   - body: the already decompressed body
//
// Returns:
//   - event.Payload: the decoded fields
//   - error: ErrMalformedPayload wrapped with detail on decode failure
func DecodePayload(contentType string, body []byte) (event.Payload, error) {
	mediaType := ContentTypeJSON
	if contentType != "" {
		mt, _, err := mime.ParseMediaType(contentType)
		if err != nil {
			return event.Payload{}, fmt.Errorf("%w: content type %q: %w", ErrMalformedPayload, contentType, err)
		}
		mediaType = mt
	}

	switch {
	case isJSON(mediaType):
		return decodeJSON(body)
	case mediaType == ContentTypeCBOR:
		return decodeCBOR(body)
	default:
		return event.NewPayload(
			event.Field{Name: RawDataField, Value: event.Bytes(body)},
			event.Field{Name: RawContentTypeField, Value: event.String(mediaType)},
		)
	}
}

func isJSON(mediaType string) bool {
	return mediaType == ContentTypeJSON || mediaType == "text/json" || strings.HasSuffix(mediaType, "+json")
}

// decodeJSON keeps object fields in document order.
func decodeJSON(body []byte) (event.Payload, error) {
	var fields []event.Field
	if err := appendJSON(&fields, "", json.RawMessage(body)); err != nil {
		return event.Payload{}, err
	}
	p, err := event.NewPayload(fields...)
	if err != nil {
		return event.Payload{}, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	return p, nil
}

func appendJSON(fields *[]event.Field, prefix string, raw json.RawMessage) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return fmt.Errorf("%w: empty body", ErrMalformedPayload)
	}

	switch raw[0] {
	case '{':
		return appendJSONObject(fields, prefix, raw)
	case '[':
		if !json.Valid(raw) {
			return fmt.Errorf("%w: invalid json array", ErrMalformedPayload)
		}
		*fields = append(*fields, event.Field{Name: fieldName(prefix), Value: event.String(string(raw))})
		return nil
	case 'n':
		// null members carry no reading.
		if prefix == "" {
			return fmt.Errorf("%w: null body", ErrMalformedPayload)
		}
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	val, err := event.FromAny(v)
	if err != nil {
		return fmt.Errorf("%w: field %q: %w", ErrMalformedPayload, fieldName(prefix), err)
	}
	*fields = append(*fields, event.Field{Name: fieldName(prefix), Value: val})
	return nil
}

func appendJSONObject(fields *[]event.Field, prefix string, raw json.RawMessage) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("%w: %w", ErrMalformedPayload, err)
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("%w: unexpected token %v", ErrMalformedPayload, tok)
		}
		var member json.RawMessage
		if err := dec.Decode(&member); err != nil {
			return fmt.Errorf("%w: field %q: %w", ErrMalformedPayload, key, err)
		}
		if err := appendJSON(fields, join(prefix, key), member); err != nil {
			return err
		}
	}
	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: trailing data after object", ErrMalformedPayload)
	}
	return nil
}

// decodeCBOR emits map fields in sorted key order; CBOR maps carry no
// order once decoded.
func decodeCBOR(body []byte) (event.Payload, error) {
	var v any
	if err := cborDec.Unmarshal(body, &v); err != nil {
		return event.Payload{}, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	var fields []event.Field
	if err := appendCBOR(&fields, "", v); err != nil {
		return event.Payload{}, err
	}
	p, err := event.NewPayload(fields...)
	if err != nil {
		return event.Payload{}, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	return p, nil
}

func appendCBOR(fields *[]event.Field, prefix string, v any) error {
	switch x := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if err := appendCBOR(fields, join(prefix, k), x[k]); err != nil {
				return err
			}
		}
		return nil
	case nil:
		if prefix == "" {
			return fmt.Errorf("%w: null body", ErrMalformedPayload)
		}
		return nil
	case []any:
		text, err := json.Marshal(x)
		if err != nil {
			return fmt.Errorf("%w: field %q: %w", ErrMalformedPayload, fieldName(prefix), err)
		}
		*fields = append(*fields, event.Field{Name: fieldName(prefix), Value: event.String(string(text))})
		return nil
	}

	val, err := event.FromAny(v)
	if err != nil {
		return fmt.Errorf("%w: field %q: %w", ErrMalformedPayload, fieldName(prefix), err)
	}
	*fields = append(*fields, event.Field{Name: fieldName(prefix), Value: val})
	return nil
}

func join(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

// fieldName names a scalar body with no enclosing object.
func fieldName(prefix string) string {
	if prefix == "" {
		return "value"
	}
	return prefix
}

// Decompress reads body according to a Content-Encoding header value and
// returns at most limit bytes. An empty or "identity" encoding copies the
// body as is.
func Decompress(encoding string, body io.Reader, limit int64) ([]byte, error) {
	var r io.Reader
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "", "identity":
		r = body
	case "gzip", "x-gzip":
		zr, err := gzip.NewReader(body)
		if err != nil {
			return nil, fmt.Errorf("%w: gzip: %w", ErrMalformedPayload, err)
		}
		defer zr.Close()
		r = zr
	case "zstd":
		zr, err := zstd.NewReader(body)
		if err != nil {
			return nil, fmt.Errorf("%w: zstd: %w", ErrMalformedPayload, err)
		}
		defer zr.Close()
		r = zr
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedEncoding, encoding)
	}

	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, ErrPayloadTooLarge
		}
		return nil, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	if int64(len(data)) > limit {
		return nil, ErrPayloadTooLarge
	}
	return data, nil
}
