package health

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/vyrodovalexey/signgate/internal/config"
	"github.com/vyrodovalexey/signgate/internal/nonce"
)

func TestChecker_Liveness(t *testing.T) {
	t.Parallel()

	c := NewChecker("1.2.3")
	rec := httptest.NewRecorder()
	c.LivenessHandler()(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, ContentTypeJSON, rec.Header().Get(HeaderContentType))

	var body HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, StatusHealthy, body.Status)
	assert.Equal(t, "1.2.3", body.Version)
}

func TestChecker_Readiness(t *testing.T) {
	t.Parallel()

	failing := func(context.Context) error { return errors.New("down") }
	passing := func(context.Context) error { return nil }

	tests := []struct {
		name       string
		checks     []*DependencyCheck
		wantStatus Status
		wantCode   int
	}{
		{
			name:       "no checks",
			wantStatus: StatusHealthy,
			wantCode:   http.StatusOK,
		},
		{
			name:       "all passing",
			checks:     []*DependencyCheck{CustomHealthCheck("a", passing), CustomHealthCheck("b", passing)},
			wantStatus: StatusHealthy,
			wantCode:   http.StatusOK,
		},
		{
			name:       "non-critical failure degrades",
			checks:     []*DependencyCheck{CustomHealthCheck("a", passing), CustomHealthCheck("b", failing, WithCritical(false))},
			wantStatus: StatusDegraded,
			wantCode:   http.StatusOK,
		},
		{
			name:       "critical failure",
			checks:     []*DependencyCheck{CustomHealthCheck("a", failing), CustomHealthCheck("b", failing, WithCritical(false))},
			wantStatus: StatusUnhealthy,
			wantCode:   http.StatusServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c := NewChecker("test")
			for _, check := range tt.checks {
				c.Register(check)
			}

			rec := httptest.NewRecorder()
			c.ReadinessHandler()(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
			assert.Equal(t, tt.wantCode, rec.Code)

			var body ReadinessResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantStatus, body.Status)
			assert.Len(t, body.Checks, len(tt.checks))
		})
	}
}

func TestChecker_Timeout(t *testing.T) {
	t.Parallel()

	c := NewChecker("test", WithTimeout(20*time.Millisecond))
	c.Register(CustomHealthCheck("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))

	resp := c.Readiness(context.Background())
	assert.Equal(t, StatusUnhealthy, resp.Status)
	assert.Contains(t, resp.Checks["slow"].Message, "deadline")
}

func TestChecker_RegisterUnregister(t *testing.T) {
	t.Parallel()

	c := NewChecker("test")
	c.Register(CustomHealthCheck("b", nil))
	c.Register(CustomHealthCheck("a", nil))
	assert.Equal(t, []string{"a", "b"}, c.Names())

	c.Unregister("a")
	assert.Equal(t, []string{"b"}, c.Names())
}

func TestPingCheck_RedisStore(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	store, err := nonce.NewRedisStore(context.Background(), config.RedisConfig{Address: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	metrics := NewMetrics("test")
	c := NewChecker("test", WithMetrics(metrics))
	c.Register(PingCheck("redis", store))

	resp := c.Readiness(context.Background())
	assert.Equal(t, StatusHealthy, resp.Status)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.checkStatus.WithLabelValues("redis")), 0)

	mr.Close()

	resp = c.Readiness(context.Background())
	assert.Equal(t, StatusUnhealthy, resp.Status)
	assert.Equal(t, StatusUnhealthy, resp.Checks["redis"].Status)
	assert.InDelta(t, 0, testutil.ToFloat64(metrics.checkStatus.WithLabelValues("overall")), 0)
}

func TestPingCheck_Nil(t *testing.T) {
	t.Parallel()

	assert.Error(t, PingCheck("nil", nil).Check(context.Background()))
}

func TestSQLHealthCheck(t *testing.T) {
	t.Parallel()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	check := SQLHealthCheck("keys-db", db)
	assert.Equal(t, DependencyTypeDatabase, check.Type())
	assert.True(t, check.IsCritical())
	assert.NoError(t, check.Check(context.Background()))

	require.NoError(t, db.Close())
	assert.Error(t, check.Check(context.Background()))

	assert.Error(t, SQLHealthCheck("nil", nil).Check(context.Background()))
}

func TestKeysLoadedCheck(t *testing.T) {
	t.Parallel()

	n := 0
	check := KeysLoadedCheck("api-keys", func() int { return n }, WithCritical(false))
	assert.Equal(t, DependencyTypeKeys, check.Type())
	assert.False(t, check.IsCritical())
	assert.EqualError(t, check.Check(context.Background()), "no api keys loaded")

	n = 2
	assert.NoError(t, check.Check(context.Background()))
}
