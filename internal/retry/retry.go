package retry

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"github.com/vyrodovalexey/signgate/internal/config"
)

// Defaults.
const (
	DefaultMaxRetries     = 3
	DefaultInitialBackoff = 100 * time.Millisecond
	DefaultMaxBackoff     = 30 * time.Second
	DefaultJitterFactor   = 0.25
	MaxJitterFactor       = 1.0
)

// Config contains retry parameters. Zero fields take the defaults.
type Config struct {
	// MaxRetries is the number of attempts after the first.
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// JitterFactor adds up to this fraction of the backoff at random.
	JitterFactor float64
}

// DefaultConfig returns the default retry configuration.
func DefaultConfig() *Config {
	return &Config{
		MaxRetries:     DefaultMaxRetries,
		InitialBackoff: DefaultInitialBackoff,
		MaxBackoff:     DefaultMaxBackoff,
		JitterFactor:   DefaultJitterFactor,
	}
}

// FromConfig converts the file configuration. It returns nil when retries
// are disabled.
func FromConfig(rc config.RetryConfig) *Config {
	if rc.MaxRetries <= 0 {
		return nil
	}
	return &Config{
		MaxRetries:     rc.MaxRetries,
		InitialBackoff: rc.InitialBackoff.Duration(),
		MaxBackoff:     rc.MaxBackoff.Duration(),
	}
}

// GetMaxRetries returns the effective max retries.
func (c *Config) GetMaxRetries() int {
	if c == nil || c.MaxRetries <= 0 {
		return DefaultMaxRetries
	}
	return c.MaxRetries
}

// GetInitialBackoff returns the effective initial backoff.
func (c *Config) GetInitialBackoff() time.Duration {
	if c == nil || c.InitialBackoff <= 0 {
		return DefaultInitialBackoff
	}
	return c.InitialBackoff
}

// GetMaxBackoff returns the effective max backoff.
func (c *Config) GetMaxBackoff() time.Duration {
	if c == nil || c.MaxBackoff <= 0 {
		return DefaultMaxBackoff
	}
	return c.MaxBackoff
}

// GetJitterFactor returns the effective jitter factor.
func (c *Config) GetJitterFactor() float64 {
	if c == nil || c.JitterFactor <= 0 {
		return DefaultJitterFactor
	}
	if c.JitterFactor > MaxJitterFactor {
		return MaxJitterFactor
	}
	return c.JitterFactor
}

// Option customizes a Do call.
type Option func(*options)

type options struct {
	retryIf func(error) bool
	onRetry func(attempt int, err error, backoff time.Duration)
}

// WithRetryIf limits retries to errors for which fn returns true.
func WithRetryIf(fn func(error) bool) Option {
	return func(o *options) {
		o.retryIf = fn
	}
}

// WithOnRetry sets a callback run before each retry.
func WithOnRetry(fn func(attempt int, err error, backoff time.Duration)) Option {
	return func(o *options) {
		o.onRetry = fn
	}
}

// Do runs fn until it succeeds, returns an error that must not be
// retried, or the retries run out. It returns the last error, or the
// context error if ctx ends first.
func Do(ctx context.Context, cfg *Config, fn func(context.Context) error, opts ...Option) error {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	maxRetries := cfg.GetMaxRetries()
	initial := cfg.GetInitialBackoff()
	maxBackoff := cfg.GetMaxBackoff()
	jitter := cfg.GetJitterFactor()

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if o.retryIf != nil && !o.retryIf(lastErr) {
			return lastErr
		}
		if attempt == maxRetries {
			break
		}

		backoff := CalculateBackoff(attempt, initial, maxBackoff, jitter)
		if o.onRetry != nil {
			o.onRetry(attempt+1, lastErr, backoff)
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return lastErr
}

// CalculateBackoff returns the wait before retry number attempt+1.
func CalculateBackoff(attempt int, initial, maxBackoff time.Duration, jitterFactor float64) time.Duration {
	backoff := float64(initial) * math.Pow(2, float64(attempt))

	//nolint:gosec // G404: jitter for retry timing is not security-sensitive
	backoff += backoff * jitterFactor * rand.Float64()

	if backoff > float64(maxBackoff) {
		backoff = float64(maxBackoff)
	}
	return time.Duration(backoff)
}
