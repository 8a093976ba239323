package apikey

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Scheme identifies how a key is validated.
type Scheme string

// Supported schemes.
const (
	SchemeSimple  Scheme = "simple"
	SchemeComplex Scheme = "complex"
)

// Registry errors.
var (
	// ErrKeyNotFound indicates that no key is registered under the identifier.
	ErrKeyNotFound = errors.New("api key not found")

	// ErrInvalidRecord indicates a record that cannot be registered.
	ErrInvalidRecord = errors.New("invalid api key record")

	// ErrUnknownScheme indicates a scheme name other than simple or complex.
	ErrUnknownScheme = errors.New("unknown api key scheme")
)

// ParseScheme converts a configuration value into a Scheme.
func ParseScheme(s string) (Scheme, error) {
	switch Scheme(s) {
	case SchemeSimple, SchemeComplex:
		return Scheme(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownScheme, s)
	}
}

// String implements fmt.Stringer.
func (s Scheme) String() string {
	return string(s)
}

// Record is a registered key. Secret is empty for simple keys.
type Record struct {
	ID        string    `json:"id"`
	Secret    string    `json:"-"`
	Scheme    Scheme    `json:"scheme"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Registry holds the keys known to the process, partitioned by scheme.
// It is safe for concurrent use; lookups take a shared lock only.
type Registry struct {
	mu    sync.RWMutex
	keys  map[Scheme]map[string]Record
	clock func() time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		keys: map[Scheme]map[string]Record{
			SchemeSimple:  {},
			SchemeComplex: {},
		},
		clock: time.Now,
	}
}

// AddKey registers a key. A key already registered under the same scheme and
// identifier is overwritten. The secret is discarded for simple keys.
func (r *Registry) AddKey(scheme Scheme, id, secret string) error {
	rec, err := newRecord(scheme, id, secret)
	if err != nil {
		return err
	}
	rec.UpdatedAt = r.clock()

	r.mu.Lock()
	r.keys[scheme][id] = rec
	r.mu.Unlock()
	return nil
}

// Lookup returns the record registered under the scheme and identifier.
func (r *Registry) Lookup(scheme Scheme, id string) (Record, error) {
	r.mu.RLock()
	rec, ok := r.keys[scheme][id]
	r.mu.RUnlock()

	if !ok {
		return Record{}, ErrKeyNotFound
	}
	return rec, nil
}

// Contains reports whether a key is registered under the scheme and identifier.
func (r *Registry) Contains(scheme Scheme, id string) bool {
	r.mu.RLock()
	_, ok := r.keys[scheme][id]
	r.mu.RUnlock()
	return ok
}

// RemoveKey deletes a key and reports whether it was present.
func (r *Registry) RemoveKey(scheme Scheme, id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.keys[scheme][id]; !ok {
		return false
	}
	delete(r.keys[scheme], id)
	return true
}

// Replace atomically swaps every key of one scheme for the given set.
// Nothing changes when any record is invalid. Later duplicates win.
func (r *Registry) Replace(scheme Scheme, records []Record) error {
	if _, err := ParseScheme(string(scheme)); err != nil {
		return err
	}

	now := r.clock()
	next := make(map[string]Record, len(records))
	for _, in := range records {
		rec, err := newRecord(scheme, in.ID, in.Secret)
		if err != nil {
			return err
		}
		rec.UpdatedAt = now
		next[rec.ID] = rec
	}

	r.mu.Lock()
	r.keys[scheme] = next
	r.mu.Unlock()
	return nil
}

// Count returns the number of keys registered for a scheme.
func (r *Registry) Count(scheme Scheme) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.keys[scheme])
}

// Snapshot returns every record with secrets removed, ordered by scheme
// then identifier.
func (r *Registry) Snapshot() []Record {
	r.mu.RLock()
	out := make([]Record, 0, len(r.keys[SchemeSimple])+len(r.keys[SchemeComplex]))
	for _, byID := range r.keys {
		for _, rec := range byID {
			rec.Secret = ""
			out = append(out, rec)
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Scheme != out[j].Scheme {
			return out[i].Scheme < out[j].Scheme
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func newRecord(scheme Scheme, id, secret string) (Record, error) {
	if _, err := ParseScheme(string(scheme)); err != nil {
		return Record{}, err
	}
	if id == "" {
		return Record{}, fmt.Errorf("%w: empty identifier", ErrInvalidRecord)
	}

	switch scheme {
	case SchemeSimple:
		secret = ""
	case SchemeComplex:
		if secret == "" {
			return Record{}, fmt.Errorf("%w: complex key %q has no secret", ErrInvalidRecord, id)
		}
	}

	return Record{ID: id, Secret: secret, Scheme: scheme}, nil
}
