package keysource

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/vyrodovalexey/signgate/internal/apikey"
	"github.com/vyrodovalexey/signgate/internal/observability"
)

func TestNewRefresher_InvalidSchedule(t *testing.T) {
	t.Parallel()

	_, err := NewRefresher(NewLoader(nil), apikey.NewRegistry(), "not a schedule", nil)
	assert.Error(t, err)
}

func TestRefresher_Refresh(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.ErrorLevel)
	logger := observability.NewZapLogger(zap.New(core))

	r := apikey.NewRegistry()
	require.NoError(t, r.AddKey(apikey.SchemeSimple, "K1", ""))

	failing, err := NewRefresher(NewLoader([]Source{errSource{}}), r, "@every 1h", logger)
	require.NoError(t, err)
	failing.Refresh(context.Background())
	assert.True(t, r.Contains(apikey.SchemeSimple, "K1"))
	assert.Equal(t, 1, logs.FilterMessage("key refresh failed, keeping current keys").Len())

	ok, err := NewRefresher(NewLoader([]Source{StaticSource{{ID: "K2", Scheme: "simple"}}}), r, "@every 1h", logger)
	require.NoError(t, err)
	ok.Refresh(context.Background())
	assert.False(t, r.Contains(apikey.SchemeSimple, "K1"))
	assert.True(t, r.Contains(apikey.SchemeSimple, "K2"))
}

func TestRefresher_StartStop(t *testing.T) {
	t.Parallel()

	rf, err := NewRefresher(NewLoader(nil), apikey.NewRegistry(), "*/5 * * * *", nil)
	require.NoError(t, err)

	require.NoError(t, rf.Start(context.Background()))
	require.NoError(t, rf.Start(context.Background()))
	rf.Stop()
	rf.Stop()
}

func TestFileWatcher_ReloadsOnWrite(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writeKeysFile(t, dir, "keys:\n  - id: K1\n    scheme: simple\n")

	r := apikey.NewRegistry()
	loader := NewLoader([]Source{NewFileSource(path)})
	require.NoError(t, loader.LoadInto(context.Background(), r))
	require.True(t, r.Contains(apikey.SchemeSimple, "K1"))

	w, err := NewFileWatcher(path, func(ctx context.Context) error {
		return loader.LoadInto(ctx, r)
	}, WithDebounceDelay(10*time.Millisecond))
	require.NoError(t, err)

	require.NoError(t, w.Start(context.Background()))
	t.Cleanup(func() { _ = w.Stop() })

	require.NoError(t, os.WriteFile(path, []byte("keys:\n  - id: K2\n    scheme: simple\n"), 0o600))

	assert.Eventually(t, func() bool {
		return r.Contains(apikey.SchemeSimple, "K2") && !r.Contains(apikey.SchemeSimple, "K1")
	}, 3*time.Second, 20*time.Millisecond)
}

func TestFileWatcher_BadFileKeepsKeys(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writeKeysFile(t, dir, "keys:\n  - id: K1\n    scheme: simple\n")

	r := apikey.NewRegistry()
	loader := NewLoader([]Source{NewFileSource(path)})
	require.NoError(t, loader.LoadInto(context.Background(), r))

	errs := make(chan error, 8)
	w, err := NewFileWatcher(path, func(ctx context.Context) error {
		return loader.LoadInto(ctx, r)
	}, WithDebounceDelay(10*time.Millisecond), WithErrorCallback(func(err error) { errs <- err }))
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	t.Cleanup(func() { _ = w.Stop() })

	require.NoError(t, os.WriteFile(path, []byte("keys:\n  - id: AK1\n    scheme: complex\n"), 0o600))

	select {
	case err := <-errs:
		assert.Error(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("expected reload error")
	}
	assert.True(t, r.Contains(apikey.SchemeSimple, "K1"))
}
