package nonce

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/signgate/internal/config"
)

func newTestRedisStore(t *testing.T, mutate func(*config.RedisConfig)) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	cfg := config.RedisConfig{Address: mr.Addr()}
	if mutate != nil {
		mutate(&cfg)
	}

	s, err := NewRedisStore(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, mr
}

func TestRedisStore_CheckAndSet(t *testing.T) {
	t.Parallel()

	s, mr := newTestRedisStore(t, nil)
	ctx := context.Background()

	res, err := s.CheckAndSet(ctx, "AK1", "abc", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, Fresh, res)

	res, err = s.CheckAndSet(ctx, "AK1", "abc", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, Replay, res)

	assert.True(t, mr.Exists("api_key:nonce:3:AK1:abc"))
	assert.Equal(t, time.Minute, mr.TTL("api_key:nonce:3:AK1:abc"))
	assert.Equal(t, BackendRedis, s.Name())
}

func TestRedisStore_Expiry(t *testing.T) {
	t.Parallel()

	s, mr := newTestRedisStore(t, nil)
	ctx := context.Background()

	res, err := s.CheckAndSet(ctx, "AK1", "n1", 10*time.Second)
	require.NoError(t, err)
	require.Equal(t, Fresh, res)

	mr.FastForward(11 * time.Second)

	res, err = s.CheckAndSet(ctx, "AK1", "n1", 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, Fresh, res)
}

func TestRedisStore_CustomPrefix(t *testing.T) {
	t.Parallel()

	s, mr := newTestRedisStore(t, func(c *config.RedisConfig) { c.Prefix = "gw:" })

	_, err := s.CheckAndSet(context.Background(), "AK1", "n1", time.Minute)
	require.NoError(t, err)
	assert.True(t, mr.Exists("gw:3:AK1:n1"))
}

func TestRedisStore_ConcurrentSameNonce(t *testing.T) {
	t.Parallel()

	s, _ := newTestRedisStore(t, func(c *config.RedisConfig) { c.PoolSize = 20 })

	const callers = 50
	var fresh, replay atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			res, err := s.CheckAndSet(context.Background(), "AK1", "same", time.Minute)
			if !assert.NoError(t, err) {
				return
			}
			if res == Fresh {
				fresh.Add(1)
			} else {
				replay.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), fresh.Load())
	assert.Equal(t, int32(callers-1), replay.Load())
}

func TestRedisStore_Unavailable(t *testing.T) {
	t.Parallel()

	s, mr := newTestRedisStore(t, nil)
	mr.SetError("ERR connection reset")

	_, err := s.CheckAndSet(context.Background(), "AK1", "n1", time.Minute)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestRedisStore_BreakerOpens(t *testing.T) {
	t.Parallel()

	s, mr := newTestRedisStore(t, func(c *config.RedisConfig) {
		c.Breaker = config.BreakerConfig{Threshold: 2, Timeout: config.Duration(time.Minute)}
	})
	mr.SetError("ERR simulated outage")
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := s.CheckAndSet(ctx, "AK1", "n1", time.Minute)
		require.ErrorIs(t, err, ErrStoreUnavailable)
	}
	assert.Equal(t, gobreaker.StateOpen, s.BreakerState())

	// The open breaker fails fast even though redis is healthy again.
	mr.SetError("")
	_, err := s.CheckAndSet(ctx, "AK1", "n1", time.Minute)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.False(t, mr.Exists("api_key:nonce:3:AK1:n1"))
}

func TestRedisStore_CanceledCallerDoesNotTripBreaker(t *testing.T) {
	t.Parallel()

	s, _ := newTestRedisStore(t, func(c *config.RedisConfig) {
		c.Breaker = config.BreakerConfig{Threshold: 2, Timeout: config.Duration(time.Minute)}
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for i := 0; i < 5; i++ {
		_, err := s.CheckAndSet(ctx, "AK1", "n1", time.Minute)
		require.ErrorIs(t, err, ErrStoreUnavailable)
		require.ErrorIs(t, err, context.Canceled)
	}
	assert.Equal(t, gobreaker.StateClosed, s.BreakerState())

	res, err := s.CheckAndSet(context.Background(), "AK1", "n1", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, Fresh, res)
}

func TestRedisStore_InvalidTTLAndClose(t *testing.T) {
	t.Parallel()

	s, _ := newTestRedisStore(t, nil)

	_, err := s.CheckAndSet(context.Background(), "AK1", "n", 0)
	assert.ErrorIs(t, err, ErrInvalidTTL)

	require.NoError(t, s.Ping(context.Background()))
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err = s.CheckAndSet(context.Background(), "AK1", "n", time.Minute)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestNewRedisStore_Unreachable(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewRedisStore(context.Background(), config.RedisConfig{
		Address:           addr,
		DialTimeout:       config.Duration(100 * time.Millisecond),
		ConnectionRetries: 2,
	}, WithBackoff(time.Millisecond, 5*time.Millisecond))

	assert.Error(t, err)
}

func TestDecorrelatedJitterBackoff(t *testing.T) {
	t.Parallel()

	b := newDecorrelatedJitterBackoff(10*time.Millisecond, 50*time.Millisecond)

	assert.Equal(t, 10*time.Millisecond, b.next(0))
	for attempt := 1; attempt < 10; attempt++ {
		d := b.next(attempt)
		assert.GreaterOrEqual(t, d, 10*time.Millisecond)
		assert.LessOrEqual(t, d, 50*time.Millisecond)
	}
}
