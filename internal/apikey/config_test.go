package apikey

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/signgate/internal/config"
)

func TestComplexConfigFrom(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig().APIKeys
	got := ComplexConfigFrom(cfg)
	assert.Equal(t, DefaultComplexConfig(), got)

	cfg.Complex.ClockSkew = config.Duration(time.Minute)
	cfg.Complex.NonceTTL = 0
	cfg.Complex.Algorithm = AlgHMACSHA512
	cfg.Complex.ExtraFields = []string{"body_sha256"}
	cfg.StoreFailurePolicy = config.FailOpen

	got = ComplexConfigFrom(cfg)
	assert.Equal(t, time.Minute, got.ClockSkew)
	assert.Equal(t, 2*time.Minute, got.NonceTTL)
	assert.Equal(t, AlgHMACSHA512, got.Algorithm)
	assert.Equal(t, []string{"body_sha256"}, got.ExtraFields)
	assert.True(t, got.FailOpen)
}

func TestSimpleConfigFrom(t *testing.T) {
	t.Parallel()

	assert.Equal(t, DefaultSimpleConfig(), SimpleConfigFrom(config.APIKeysConfig{}))

	got := SimpleConfigFrom(config.APIKeysConfig{
		Simple: config.SimpleSchemeConfig{Source: SourceQuery, KeyName: "api_key"},
	})
	assert.Equal(t, SimpleConfig{Source: SourceQuery, KeyName: "api_key"}, got)
}

func TestRegisterKeys(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	require.NoError(t, RegisterKeys(r, []config.KeyRecord{
		{ID: "K1", Scheme: "simple"},
		{ID: "AK1", Secret: "S1", Scheme: "complex"},
	}))
	assert.True(t, r.Contains(SchemeSimple, "K1"))
	assert.True(t, r.Contains(SchemeComplex, "AK1"))

	err := RegisterKeys(r, []config.KeyRecord{{ID: "X", Scheme: "oauth"}})
	assert.ErrorIs(t, err, ErrUnknownScheme)
}
