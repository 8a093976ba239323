package nonce

import (
	"context"
	"errors"
	"strconv"
	"time"
)

// Result is the outcome of a check-and-set.
type Result int

const (
	// Fresh means the nonce had not been seen inside its TTL and is now recorded.
	Fresh Result = iota + 1

	// Replay means the nonce was already recorded and has not expired.
	Replay
)

// String implements fmt.Stringer.
func (r Result) String() string {
	switch r {
	case Fresh:
		return "fresh"
	case Replay:
		return "replay"
	default:
		return "unknown"
	}
}

// Store errors.
var (
	// ErrStoreUnavailable wraps any failure to reach the backing store.
	ErrStoreUnavailable = errors.New("nonce store unavailable")

	// ErrInvalidTTL indicates a non-positive TTL.
	ErrInvalidTTL = errors.New("nonce ttl must be positive")

	// ErrClosed indicates use of a closed store.
	ErrClosed = errors.New("nonce store closed")
)

// Store records nonces per namespace.
//
// CheckAndSet is atomic: among any number of concurrent callers passing the
// same namespace and value, exactly one observes Fresh while the record lives.
type Store interface {
	// CheckAndSet records value under namespace for ttl if it is not already
	// present and returns Fresh, or returns Replay when it is.
	CheckAndSet(ctx context.Context, namespace, value string, ttl time.Duration) (Result, error)

	// Name identifies the backend.
	Name() string

	// Close releases resources. It is idempotent.
	Close() error
}

// storageKey joins namespace and value into one record key. The namespace
// is length-prefixed so that no two (namespace, value) pairs share a key
// whatever bytes either contains.
func storageKey(namespace, value string) string {
	return strconv.Itoa(len(namespace)) + ":" + namespace + ":" + value
}
