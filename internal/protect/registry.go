// Package protect records which routes require which API key scheme.
//
// Bindings are collected during startup and the registry is frozen before
// the server accepts traffic; after that it is read-only.
package protect

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/vyrodovalexey/signgate/internal/apikey"
)

// Registry errors.
var (
	// ErrFrozen is returned by Protect once Freeze has been called.
	ErrFrozen = errors.New("route protection registry is frozen")

	// ErrDuplicateRoute is returned when a pattern is protected twice.
	ErrDuplicateRoute = errors.New("route is already protected")

	// ErrInvalidPattern is returned for empty or unparsable patterns.
	ErrInvalidPattern = errors.New("invalid route pattern")
)

// Binding ties a route pattern to a scheme.
type Binding struct {
	Pattern string        `json:"pattern"`
	Scheme  apikey.Scheme `json:"scheme"`
}

type entry struct {
	binding Binding
	matcher pathMatcher
}

// Registry is an append-only set of protected route patterns.
type Registry struct {
	mu      sync.RWMutex
	entries []entry
	exact   map[string]int
	frozen  bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{exact: make(map[string]int)}
}

// Protect binds pattern to scheme.
func (r *Registry) Protect(pattern string, scheme apikey.Scheme) error {
	if pattern == "" || !strings.HasPrefix(pattern, "/") {
		return fmt.Errorf("%w: %q", ErrInvalidPattern, pattern)
	}
	if _, err := apikey.ParseScheme(string(scheme)); err != nil {
		return err
	}

	m, err := newMatcher(pattern)
	if err != nil {
		return fmt.Errorf("%w: %q: %w", ErrInvalidPattern, pattern, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return ErrFrozen
	}
	for _, e := range r.entries {
		if e.binding.Pattern == pattern {
			return fmt.Errorf("%w: %s", ErrDuplicateRoute, pattern)
		}
	}

	r.entries = append(r.entries, entry{
		binding: Binding{Pattern: pattern, Scheme: scheme},
		matcher: m,
	})
	if m.Type() == kindExact {
		r.exact[pattern] = len(r.entries) - 1
	}
	return nil
}

// Freeze makes the registry read-only.
func (r *Registry) Freeze() {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()
}

// Frozen reports whether Freeze has been called.
func (r *Registry) Frozen() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.frozen
}

// Match returns the binding protecting path. An exact pattern wins;
// otherwise the longest matching pattern wins, ties going to the earlier
// registration.
func (r *Registry) Match(path string) (Binding, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if i, ok := r.exact[path]; ok {
		return r.entries[i].binding, true
	}

	best := -1
	for i, e := range r.entries {
		if e.matcher.Type() == kindExact || !e.matcher.Match(path) {
			continue
		}
		if best < 0 || len(e.binding.Pattern) > len(r.entries[best].binding.Pattern) {
			best = i
		}
	}
	if best < 0 {
		return Binding{}, false
	}
	return r.entries[best].binding, true
}

// Routes returns every binding in registration order.
func (r *Registry) Routes() []Binding {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Binding, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.binding
	}
	return out
}

// Len returns the number of bindings.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
