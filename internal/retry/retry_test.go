package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/signgate/internal/config"
)

var errTransient = errors.New("transient")

func fastConfig(retries int) *Config {
	return &Config{MaxRetries: retries, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}
}

func TestConfig_Getters(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		cfg         *Config
		wantRetries int
		wantInitial time.Duration
		wantMax     time.Duration
		wantJitter  float64
	}{
		{
			name:        "nil config",
			wantRetries: DefaultMaxRetries,
			wantInitial: DefaultInitialBackoff,
			wantMax:     DefaultMaxBackoff,
			wantJitter:  DefaultJitterFactor,
		},
		{
			name:        "negative values",
			cfg:         &Config{MaxRetries: -1, InitialBackoff: -1, MaxBackoff: -1, JitterFactor: -1},
			wantRetries: DefaultMaxRetries,
			wantInitial: DefaultInitialBackoff,
			wantMax:     DefaultMaxBackoff,
			wantJitter:  DefaultJitterFactor,
		},
		{
			name:        "custom values",
			cfg:         &Config{MaxRetries: 5, InitialBackoff: time.Second, MaxBackoff: time.Minute, JitterFactor: 3},
			wantRetries: 5,
			wantInitial: time.Second,
			wantMax:     time.Minute,
			wantJitter:  MaxJitterFactor,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.wantRetries, tt.cfg.GetMaxRetries())
			assert.Equal(t, tt.wantInitial, tt.cfg.GetInitialBackoff())
			assert.Equal(t, tt.wantMax, tt.cfg.GetMaxBackoff())
			assert.InDelta(t, tt.wantJitter, tt.cfg.GetJitterFactor(), 0)
		})
	}
}

func TestFromConfig(t *testing.T) {
	t.Parallel()

	assert.Nil(t, FromConfig(config.RetryConfig{}))

	cfg := FromConfig(config.RetryConfig{
		MaxRetries:     2,
		InitialBackoff: config.Duration(50 * time.Millisecond),
	})
	require.NotNil(t, cfg)
	assert.Equal(t, 2, cfg.MaxRetries)
	assert.Equal(t, 50*time.Millisecond, cfg.GetInitialBackoff())
	assert.Equal(t, DefaultMaxBackoff, cfg.GetMaxBackoff())
}

func TestDo(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		failures  int
		retries   int
		retryIf   func(error) bool
		wantCalls int
		wantErr   bool
	}{
		{name: "first attempt succeeds", failures: 0, retries: 3, wantCalls: 1},
		{name: "succeeds after retries", failures: 2, retries: 3, wantCalls: 3},
		{name: "retries exhausted", failures: 10, retries: 2, wantCalls: 3, wantErr: true},
		{
			name:      "non-retryable error",
			failures:  10,
			retries:   3,
			retryIf:   func(error) bool { return false },
			wantCalls: 1,
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			calls := 0
			var opts []Option
			if tt.retryIf != nil {
				opts = append(opts, WithRetryIf(tt.retryIf))
			}

			err := Do(context.Background(), fastConfig(tt.retries), func(context.Context) error {
				calls++
				if calls <= tt.failures {
					return errTransient
				}
				return nil
			}, opts...)

			assert.Equal(t, tt.wantCalls, calls)
			if tt.wantErr {
				assert.ErrorIs(t, err, errTransient)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDo_OnRetry(t *testing.T) {
	t.Parallel()

	var attempts []int
	err := Do(context.Background(), fastConfig(2), func(context.Context) error {
		return errTransient
	}, WithOnRetry(func(attempt int, err error, backoff time.Duration) {
		assert.ErrorIs(t, err, errTransient)
		assert.Positive(t, backoff)
		attempts = append(attempts, attempt)
	}))

	require.Error(t, err)
	assert.Equal(t, []int{1, 2}, attempts)
}

func TestDo_ContextCanceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := Do(ctx, fastConfig(3), func(context.Context) error {
		calls++
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls)

	ctx, cancel = context.WithCancel(context.Background())
	err = Do(ctx, &Config{MaxRetries: 3, InitialBackoff: time.Hour, MaxBackoff: time.Hour}, func(context.Context) error {
		cancel()
		return errTransient
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCalculateBackoff(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 100*time.Millisecond, CalculateBackoff(0, 100*time.Millisecond, time.Second, 0))
	assert.Equal(t, 400*time.Millisecond, CalculateBackoff(2, 100*time.Millisecond, time.Second, 0))
	assert.Equal(t, time.Second, CalculateBackoff(10, 100*time.Millisecond, time.Second, 0))

	got := CalculateBackoff(0, 100*time.Millisecond, time.Second, 0.5)
	assert.GreaterOrEqual(t, got, 100*time.Millisecond)
	assert.LessOrEqual(t, got, 150*time.Millisecond)
}
