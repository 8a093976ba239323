package nonce

import (
	"context"
	"fmt"

	"github.com/vyrodovalexey/signgate/internal/config"
	"github.com/vyrodovalexey/signgate/internal/observability"
)

// New builds the configured backend. It is called once at startup; a redis
// backend that cannot be reached is returned as an error so the process
// does not start with a silently degraded store.
func New(
	ctx context.Context,
	cfg config.NonceStoreConfig,
	logger observability.Logger,
	metrics *Metrics,
) (Store, error) {
	if logger == nil {
		logger = observability.NopLogger()
	}

	switch backend := cfg.NonceBackend(); backend {
	case config.NonceBackendRedis:
		store, err := NewRedisStore(ctx, cfg.Redis,
			WithRedisLogger(logger),
			WithRedisMetrics(metrics),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create redis nonce store: %w", err)
		}
		logger.Info("nonce store ready",
			observability.String("backend", backend),
			observability.String("address", cfg.Redis.Address),
		)
		return store, nil

	case config.NonceBackendMemory:
		store := NewMemoryStore(
			WithShards(cfg.Memory.Shards),
			WithSweepInterval(cfg.Memory.SweepInterval.Duration()),
			WithSweepBatch(cfg.Memory.SweepBatch),
			WithMemoryLogger(logger),
			WithMemoryMetrics(metrics),
		)
		logger.Info("nonce store ready",
			observability.String("backend", backend),
			observability.Int("shards", len(store.shards)),
		)
		return store, nil

	default:
		return nil, fmt.Errorf("unknown nonce store backend %q", backend)
	}
}
