package keysource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/vyrodovalexey/signgate/internal/apikey"
	"github.com/vyrodovalexey/signgate/internal/config"
	"github.com/vyrodovalexey/signgate/internal/observability"
	"github.com/vyrodovalexey/signgate/internal/retry"
)

// Loader merges its sources into the key registry.
type Loader struct {
	sources []Source
	logger  observability.Logger
	metrics *Metrics
	retry   *retry.Config

	// serializes LoadInto so a refresh and a file reload never interleave
	mu sync.Mutex
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) LoaderOption {
	return func(l *Loader) {
		l.logger = logger
	}
}

// WithMetrics sets the metrics.
func WithMetrics(m *Metrics) LoaderOption {
	return func(l *Loader) {
		l.metrics = m
	}
}

// WithRetry retries a source that reports ErrSourceUnavailable. A nil
// config disables retries.
func WithRetry(cfg *retry.Config) LoaderOption {
	return func(l *Loader) {
		l.retry = cfg
	}
}

// NewLoader creates a loader over sources, in override order.
func NewLoader(sources []Source, opts ...LoaderOption) *Loader {
	l := &Loader{
		sources: sources,
		logger:  observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Sources returns the configured sources.
func (l *Loader) Sources() []Source {
	return l.sources
}

// Load reads every source and returns the merged records grouped by
// scheme. A record from a later source replaces one with the same scheme
// and id from an earlier source.
func (l *Loader) Load(ctx context.Context) (map[apikey.Scheme][]apikey.Record, error) {
	merged := map[apikey.Scheme]map[string]int{
		apikey.SchemeSimple:  {},
		apikey.SchemeComplex: {},
	}
	out := map[apikey.Scheme][]apikey.Record{
		apikey.SchemeSimple:  {},
		apikey.SchemeComplex: {},
	}

	for _, src := range l.sources {
		records, err := l.loadSource(ctx, src)
		l.metrics.recordLoad(src.Name(), err)
		if err != nil {
			return nil, fmt.Errorf("load keys from %s: %w", src.Name(), err)
		}

		for _, kr := range records {
			rec, err := toRecord(kr)
			if err != nil {
				return nil, fmt.Errorf("load keys from %s: %w", src.Name(), err)
			}
			if i, ok := merged[rec.Scheme][rec.ID]; ok {
				out[rec.Scheme][i] = rec
				continue
			}
			merged[rec.Scheme][rec.ID] = len(out[rec.Scheme])
			out[rec.Scheme] = append(out[rec.Scheme], rec)
		}

		l.logger.Debug("key source loaded",
			observability.String("source", src.Name()),
			observability.Int("records", len(records)),
		)
	}

	return out, nil
}

func (l *Loader) loadSource(ctx context.Context, src Source) ([]config.KeyRecord, error) {
	if l.retry == nil {
		return src.Load(ctx)
	}

	var records []config.KeyRecord
	err := retry.Do(ctx, l.retry, func(ctx context.Context) error {
		var err error
		records, err = src.Load(ctx)
		return err
	},
		retry.WithRetryIf(func(err error) bool { return errors.Is(err, ErrSourceUnavailable) }),
		retry.WithOnRetry(func(attempt int, err error, backoff time.Duration) {
			l.logger.Warn("key source unavailable, retrying",
				observability.String("source", src.Name()),
				observability.Int("attempt", attempt),
				observability.Duration("backoff", backoff),
				observability.Error(err),
			)
		}),
	)
	return records, err
}

// LoadInto replaces the registry contents with the merged records. The
// registry is left unchanged when any source fails.
func (l *Loader) LoadInto(ctx context.Context, r *apikey.Registry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	byScheme, err := l.Load(ctx)
	if err != nil {
		return err
	}

	for _, scheme := range []apikey.Scheme{apikey.SchemeSimple, apikey.SchemeComplex} {
		if err := r.Replace(scheme, byScheme[scheme]); err != nil {
			return err
		}
	}

	l.metrics.setKeys(r)
	l.logger.Info("api keys loaded",
		observability.Int("simple", r.Count(apikey.SchemeSimple)),
		observability.Int("complex", r.Count(apikey.SchemeComplex)),
	)
	return nil
}

// Close closes every source that holds resources.
func (l *Loader) Close() error {
	var firstErr error
	for _, src := range l.sources {
		if c, ok := src.(io.Closer); ok {
			if err := c.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// toRecord validates a configured record the way the registry will, so a
// bad record fails the load before anything is swapped in.
func toRecord(kr config.KeyRecord) (apikey.Record, error) {
	scheme, err := apikey.ParseScheme(kr.Scheme)
	if err != nil {
		return apikey.Record{}, err
	}
	if kr.ID == "" {
		return apikey.Record{}, fmt.Errorf("%w: empty identifier", apikey.ErrInvalidRecord)
	}
	if scheme == apikey.SchemeComplex && kr.Secret == "" {
		return apikey.Record{}, fmt.Errorf("%w: complex key %q has no secret", apikey.ErrInvalidRecord, kr.ID)
	}
	return apikey.Record{ID: kr.ID, Secret: kr.Secret, Scheme: scheme}, nil
}

// FromConfig builds the sources named by cfg: the inline keys, the keys
// file, Vault and SQL, in that order.
func FromConfig(cfg *config.Config) ([]Source, error) {
	sources := []Source{StaticSource(cfg.Keys)}

	if cfg.KeySources.File != "" {
		sources = append(sources, NewFileSource(cfg.KeySources.File))
	}

	if cfg.KeySources.Vault.Enabled {
		vs, err := NewVaultSource(cfg.KeySources.Vault)
		if err != nil {
			return nil, err
		}
		sources = append(sources, vs)
	}

	if cfg.KeySources.SQL.Enabled {
		ss, err := NewSQLSource(cfg.KeySources.SQL)
		if err != nil {
			return nil, err
		}
		sources = append(sources, ss)
	}

	return sources, nil
}
