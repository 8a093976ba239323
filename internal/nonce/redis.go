package nonce

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"

	"github.com/vyrodovalexey/signgate/internal/config"
	"github.com/vyrodovalexey/signgate/internal/observability"
)

// BackendRedis is the name of the shared-cache backend.
const BackendRedis = "redis"

// errCallerDone marks a command abandoned because the caller's context
// ended first. The breaker does not count it as a failure.
var errCallerDone = errors.New("caller context done")

// RedisStore is a Store backed by redis, shared by every gate instance.
//
// Each check-and-set is a single SET NX PX command bounded by the operation
// timeout and routed through a circuit breaker. Any failure, including an
// open breaker, surfaces as ErrStoreUnavailable.
type RedisStore struct {
	client    *redis.Client
	prefix    string
	opTimeout time.Duration
	breaker   *gobreaker.CircuitBreaker
	logger    observability.Logger
	metrics   *Metrics

	mu     sync.Mutex
	closed bool
}

// RedisOption configures a RedisStore.
type RedisOption func(*redisOptions)

type redisOptions struct {
	logger         observability.Logger
	metrics        *Metrics
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// WithRedisLogger sets the logger.
func WithRedisLogger(logger observability.Logger) RedisOption {
	return func(o *redisOptions) {
		o.logger = logger
	}
}

// WithRedisMetrics sets the metrics.
func WithRedisMetrics(m *Metrics) RedisOption {
	return func(o *redisOptions) {
		o.metrics = m
	}
}

// WithBackoff sets the connection retry backoff bounds.
func WithBackoff(initial, maxBackoff time.Duration) RedisOption {
	return func(o *redisOptions) {
		o.initialBackoff = initial
		o.maxBackoff = maxBackoff
	}
}

// NewRedisStore connects to redis, retrying with decorrelated jitter, and
// returns an error once the retries are exhausted.
func NewRedisStore(ctx context.Context, cfg config.RedisConfig, opts ...RedisOption) (*RedisStore, error) {
	o := &redisOptions{
		logger:         observability.NopLogger(),
		initialBackoff: 100 * time.Millisecond,
		maxBackoff:     10 * time.Second,
	}
	for _, opt := range opts {
		opt(o)
	}

	applyRedisDefaults(&cfg)

	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Address,
		Password:    cfg.Password,
		DB:          cfg.DB,
		PoolSize:    cfg.PoolSize,
		DialTimeout: cfg.DialTimeout.Duration(),
	})

	if err := connectWithRetry(ctx, client, cfg, o); err != nil {
		_ = client.Close()
		return nil, err
	}

	s := &RedisStore{
		client:    client,
		prefix:    cfg.Prefix,
		opTimeout: cfg.OperationTimeout.Duration(),
		logger:    o.logger,
		metrics:   o.metrics,
	}
	s.breaker = newBreaker(cfg.Breaker, s.logger, s.metrics)

	return s, nil
}

func applyRedisDefaults(cfg *config.RedisConfig) {
	if cfg.Prefix == "" {
		cfg.Prefix = config.DefaultRedisPrefix
	}
	if cfg.OperationTimeout <= 0 {
		cfg.OperationTimeout = config.Duration(config.DefaultRedisOpTimeout)
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = config.Duration(config.DefaultRedisDialTimeout)
	}
	if cfg.ConnectionRetries <= 0 {
		cfg.ConnectionRetries = config.DefaultRedisRetries
	}
	if cfg.Breaker.Threshold <= 0 {
		cfg.Breaker.Threshold = config.DefaultBreakerThreshold
	}
	if cfg.Breaker.Timeout <= 0 {
		cfg.Breaker.Timeout = config.Duration(config.DefaultBreakerTimeout)
	}
}

func newBreaker(cfg config.BreakerConfig, logger observability.Logger, metrics *Metrics) *gobreaker.CircuitBreaker {
	threshold := safeIntToUint32(cfg.Threshold)

	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "nonce-store-redis",
		MaxRequests: 1,
		Timeout:     cfg.Timeout.Duration(),
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		// A caller that gave up says nothing about redis health.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, errCallerDone)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				observability.String("name", name),
				observability.String("from", from.String()),
				observability.String("to", to.String()),
			)
			metrics.setBreakerState(int(to))
		},
	})
}

// connectWithRetry pings redis until it answers, the retries run out, or
// the overall deadline passes.
func connectWithRetry(ctx context.Context, client *redis.Client, cfg config.RedisConfig, o *redisOptions) error {
	maxRetries := cfg.ConnectionRetries
	dialTimeout := cfg.DialTimeout.Duration()

	totalTimeout := time.Duration(maxRetries+1) * dialTimeout
	if totalTimeout > 2*time.Minute {
		totalTimeout = 2 * time.Minute
	}
	overallCtx, cancel := context.WithTimeout(ctx, totalTimeout)
	defer cancel()

	backoff := newDecorrelatedJitterBackoff(o.initialBackoff, o.maxBackoff)

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := overallCtx.Err(); err != nil {
			return fmt.Errorf("redis connection timeout exceeded: %w", err)
		}

		pingCtx, pingCancel := context.WithTimeout(overallCtx, dialTimeout)
		lastErr = client.Ping(pingCtx).Err()
		pingCancel()

		if lastErr == nil {
			if attempt > 0 {
				o.logger.Info("redis connection established after retry",
					observability.String("address", cfg.Address),
					observability.Int("attempt", attempt+1),
				)
			}
			return nil
		}

		if attempt >= maxRetries {
			break
		}

		wait := backoff.next(attempt)
		o.logger.Debug("redis connection failed, retrying",
			observability.String("address", cfg.Address),
			observability.Int("attempt", attempt+1),
			observability.Int("max_retries", maxRetries),
			observability.Duration("backoff", wait),
			observability.Error(lastErr),
		)
		o.metrics.incConnectRetries()

		select {
		case <-overallCtx.Done():
			return fmt.Errorf("redis connection timeout exceeded during backoff: %w", overallCtx.Err())
		case <-time.After(wait):
		}
	}

	return fmt.Errorf("failed to connect to redis at %s after %d attempts: %w", cfg.Address, maxRetries+1, lastErr)
}

// Name implements Store.
func (s *RedisStore) Name() string {
	return BackendRedis
}

// CheckAndSet implements Store.
func (s *RedisStore) CheckAndSet(ctx context.Context, namespace, value string, ttl time.Duration) (Result, error) {
	if ttl <= 0 {
		return 0, ErrInvalidTTL
	}
	if s.isClosed() {
		return 0, ErrClosed
	}

	start := time.Now()
	key := s.key(namespace, value)

	out, err := s.breaker.Execute(func() (interface{}, error) {
		opCtx, cancel := context.WithTimeout(ctx, s.opTimeout)
		defer cancel()
		set, err := s.client.SetNX(opCtx, key, 1, ttl).Result()
		if err != nil && ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %w", errCallerDone, ctx.Err())
		}
		return set, err
	})
	if err != nil {
		result := resultError
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			result = resultUnavailable
		}
		s.metrics.recordOperation(BackendRedis, result, time.Since(start))
		return 0, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}

	set, ok := out.(bool)
	if !ok {
		s.metrics.recordOperation(BackendRedis, resultError, time.Since(start))
		return 0, fmt.Errorf("%w: unexpected reply type %T", ErrStoreUnavailable, out)
	}

	if !set {
		s.metrics.recordOperation(BackendRedis, resultReplay, time.Since(start))
		return Replay, nil
	}
	s.metrics.recordOperation(BackendRedis, resultFresh, time.Since(start))
	return Fresh, nil
}

// Ping checks connectivity. It backs the readiness check.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// BreakerState returns the circuit breaker state.
func (s *RedisStore) BreakerState() gobreaker.State {
	return s.breaker.State()
}

// Client returns the underlying redis client.
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

// Close implements Store. It is idempotent.
func (s *RedisStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.client.Close()
}

func (s *RedisStore) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *RedisStore) key(namespace, value string) string {
	return s.prefix + storageKey(namespace, value)
}

// decorrelatedJitterBackoff implements decorrelated jitter backoff:
// sleep = min(cap, random_between(base, sleep * 3)).
type decorrelatedJitterBackoff struct {
	initial time.Duration
	max     time.Duration
	current time.Duration
}

func newDecorrelatedJitterBackoff(initial, maxDuration time.Duration) *decorrelatedJitterBackoff {
	return &decorrelatedJitterBackoff{
		initial: initial,
		max:     maxDuration,
		current: initial,
	}
}

func (b *decorrelatedJitterBackoff) next(attempt int) time.Duration {
	if attempt == 0 {
		b.current = b.initial
		return b.current
	}

	minBackoff := float64(b.initial)
	maxBackoff := float64(b.current) * 3

	//nolint:gosec // weak random is acceptable for jitter
	backoff := minBackoff + float64(time.Now().UnixNano()%1000)/1000.0*(maxBackoff-minBackoff)
	if backoff > float64(b.max) {
		backoff = float64(b.max)
	}

	b.current = time.Duration(backoff)
	return b.current
}

func safeIntToUint32(n int) uint32 {
	if n < 0 {
		return 0
	}
	if n > int(^uint32(0)) {
		return ^uint32(0)
	}
	return uint32(n) //nolint:gosec // bounds checked above
}
