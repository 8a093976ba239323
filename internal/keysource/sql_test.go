package keysource

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/signgate/internal/config"
)

func TestSQLSource_Load(t *testing.T) {
	t.Parallel()

	src, err := NewSQLSource(config.SQLSourceConfig{DSN: filepath.Join(t.TempDir(), "keys.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = src.Close() })

	ctx := context.Background()
	_, err = src.DB().ExecContext(ctx, `CREATE TABLE sys_access_key (
		access_key_id     TEXT PRIMARY KEY,
		access_key_secret TEXT,
		scheme            TEXT NOT NULL,
		status            INTEGER NOT NULL
	)`)
	require.NoError(t, err)

	_, err = src.DB().ExecContext(ctx, `INSERT INTO sys_access_key VALUES
		('AK1', 'S1', 'complex', 1),
		('AK2', 'S2', 'complex', 0),
		('K1', NULL, 'simple', 1)`)
	require.NoError(t, err)

	records, err := src.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []config.KeyRecord{
		{ID: "AK1", Secret: "S1", Scheme: "complex"},
		{ID: "K1", Scheme: "simple"},
	}, records)
	assert.Equal(t, SourceSQL, src.Name())
}

func TestSQLSource_MissingTable(t *testing.T) {
	t.Parallel()

	src, err := NewSQLSource(config.SQLSourceConfig{DSN: filepath.Join(t.TempDir(), "empty.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = src.Close() })

	_, err = src.Load(context.Background())
	assert.ErrorIs(t, err, ErrSourceUnavailable)
}

func TestNewSQLSource_InvalidTable(t *testing.T) {
	t.Parallel()

	_, err := NewSQLSource(config.SQLSourceConfig{DSN: ":memory:", Table: "keys; DROP TABLE x"})
	assert.Error(t, err)
}
