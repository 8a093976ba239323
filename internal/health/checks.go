package health

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// DependencyType classifies a readiness check in logs.
type DependencyType string

// Dependency types.
const (
	DependencyTypeCache    DependencyType = "cache"
	DependencyTypeDatabase DependencyType = "database"
	DependencyTypeKeys     DependencyType = "keys"
	DependencyTypeCustom   DependencyType = "custom"
)

// DependencyCheck is one named readiness probe. A failing critical check
// makes the service unhealthy; a non-critical one only degrades it.
type DependencyCheck struct {
	name     string
	kind     DependencyType
	probe    func(ctx context.Context) error
	critical bool
}

func (d *DependencyCheck) Name() string         { return d.name }
func (d *DependencyCheck) Type() DependencyType { return d.kind }
func (d *DependencyCheck) IsCritical() bool     { return d.critical }

// Check runs the probe.
func (d *DependencyCheck) Check(ctx context.Context) error {
	return d.probe(ctx)
}

// DependencyCheckOption configures a DependencyCheck.
type DependencyCheckOption func(*DependencyCheck)

// WithCritical sets whether a failure makes the service unhealthy.
// Checks are critical unless told otherwise.
func WithCritical(critical bool) DependencyCheckOption {
	return func(d *DependencyCheck) {
		d.critical = critical
	}
}

// NewDependencyCheck creates a check of the given type.
func NewDependencyCheck(name string, kind DependencyType, probe func(ctx context.Context) error,
	opts ...DependencyCheckOption) *DependencyCheck {
	d := &DependencyCheck{name: name, kind: kind, probe: probe, critical: true}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Pinger is implemented by the redis nonce store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingCheck probes a shared cache.
func PingCheck(name string, p Pinger, opts ...DependencyCheckOption) *DependencyCheck {
	return NewDependencyCheck(name, DependencyTypeCache, func(ctx context.Context) error {
		if p == nil {
			return errors.New("no client configured")
		}
		if err := p.Ping(ctx); err != nil {
			return fmt.Errorf("ping: %w", err)
		}
		return nil
	}, opts...)
}

// SQLHealthCheck pings a database handle.
func SQLHealthCheck(name string, db *sql.DB, opts ...DependencyCheckOption) *DependencyCheck {
	return NewDependencyCheck(name, DependencyTypeDatabase, func(ctx context.Context) error {
		if db == nil {
			return errors.New("no database configured")
		}
		if err := db.PingContext(ctx); err != nil {
			return fmt.Errorf("ping database: %w", err)
		}
		return nil
	}, opts...)
}

// KeysLoadedCheck fails while count reports no loaded API keys.
func KeysLoadedCheck(name string, count func() int, opts ...DependencyCheckOption) *DependencyCheck {
	return NewDependencyCheck(name, DependencyTypeKeys, func(context.Context) error {
		if count() == 0 {
			return errors.New("no api keys loaded")
		}
		return nil
	}, opts...)
}

// CustomHealthCheck wraps an arbitrary probe.
func CustomHealthCheck(name string, probe func(ctx context.Context) error, opts ...DependencyCheckOption) *DependencyCheck {
	return NewDependencyCheck(name, DependencyTypeCustom, probe, opts...)
}
