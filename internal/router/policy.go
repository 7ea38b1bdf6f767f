package router

import (
	"fmt"
	"strings"
)

// OverflowPolicy decides what happens when a consumer's channel is full.
type OverflowPolicy int

// Overflow policies.
const (
	Block OverflowPolicy = iota
	DropOldest
	DropNewest
	DisconnectConsumer
)

// String returns the configuration name of the policy.
func (p OverflowPolicy) String() string {
	switch p {
	case Block:
		return "block"
	case DropOldest:
		return "drop_oldest"
	case DropNewest:
		return "drop_newest"
	case DisconnectConsumer:
		return "disconnect_consumer"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// Valid reports whether p is a known policy.
func (p OverflowPolicy) Valid() bool {
	return p >= Block && p <= DisconnectConsumer
}

// ParsePolicy converts a configuration string into an OverflowPolicy.
// Matching is case-insensitive and accepts '-' in place of '_'.
func ParsePolicy(s string) (OverflowPolicy, error) {
	switch strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_") {
	case "block":
		return Block, nil
	case "drop_oldest":
		return DropOldest, nil
	case "drop_newest":
		return DropNewest, nil
	case "disconnect_consumer", "disconnect":
		return DisconnectConsumer, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidPolicy, s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (p OverflowPolicy) MarshalText() ([]byte, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPolicy, int(p))
	}
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *OverflowPolicy) UnmarshalText(text []byte) error {
	v, err := ParsePolicy(string(text))
	if err != nil {
		return err
	}
	*p = v
	return nil
}
