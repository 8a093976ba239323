package apikey

import (
	"context"
	"errors"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/signgate/internal/nonce"
)

const testNow int64 = 1_700_000_000

// countingStore records how often the validator reaches the nonce store.
type countingStore struct {
	nonce.Store
	calls atomic.Int32
	err   error
}

func (s *countingStore) CheckAndSet(ctx context.Context, ns, value string, ttl time.Duration) (nonce.Result, error) {
	s.calls.Add(1)
	if s.err != nil {
		return 0, s.err
	}
	return s.Store.CheckAndSet(ctx, ns, value, ttl)
}

func newComplexFixture(t *testing.T, mutate func(*ComplexConfig)) (*ComplexValidator, *countingStore, *Registry) {
	t.Helper()

	r := NewRegistry()
	require.NoError(t, r.AddKey(SchemeComplex, "AK1", "S1"))

	mem := nonce.NewMemoryStore(nonce.WithSweepInterval(0))
	t.Cleanup(func() { _ = mem.Close() })
	store := &countingStore{Store: mem}

	cfg := DefaultComplexConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	v, err := NewComplexValidator(cfg, r, store, WithClock(func() time.Time { return time.Unix(testNow, 0) }))
	require.NoError(t, err)
	return v, store, r
}

func signedFields(t *testing.T, id, secret, ts, n string) MapSource {
	t.Helper()
	s, err := NewSigner(AlgHMACSHA256)
	require.NoError(t, err)
	return MapSource{
		"AccessKeyId": id,
		"t":           ts,
		"n":           n,
		"sign":        s.SignHex(secret, CanonicalString(id, ts, n)),
	}
}

func kindOf(t *testing.T, err error) Kind {
	t.Helper()
	verr, ok := AsValidationError(err)
	require.True(t, ok, "expected *ValidationError, got %v", err)
	return verr.Kind
}

func TestComplexValidator_AllowThenReplayThenSkew(t *testing.T) {
	t.Parallel()

	v, _, _ := newComplexFixture(t, nil)
	ctx := context.Background()
	now := strconv.FormatInt(testNow, 10)

	id, err := v.Validate(ctx, signedFields(t, "AK1", "S1", now, "abc"))
	require.NoError(t, err)
	assert.Equal(t, &Identity{KeyID: "AK1", Scheme: SchemeComplex}, id)

	_, err = v.Validate(ctx, signedFields(t, "AK1", "S1", now, "abc"))
	assert.Equal(t, KindReplayDetected, kindOf(t, err))
	assert.ErrorIs(t, err, ErrReplayDetected)
	assert.Equal(t, 403, KindReplayDetected.HTTPStatus())

	_, err = v.Validate(ctx, signedFields(t, "AK1", "S1", strconv.FormatInt(testNow-400, 10), "def"))
	assert.Equal(t, KindClockSkewExceeded, kindOf(t, err))
	assert.Equal(t, 401, KindClockSkewExceeded.HTTPStatus())
}

func TestComplexValidator_Rejections(t *testing.T) {
	t.Parallel()

	now := strconv.FormatInt(testNow, 10)

	tests := []struct {
		name      string
		fields    func(t *testing.T) MapSource
		wantKind  Kind
		wantStore int32
	}{
		{
			name: "missing signature",
			fields: func(t *testing.T) MapSource {
				f := signedFields(t, "AK1", "S1", now, "n1")
				delete(f, "sign")
				return f
			},
			wantKind: KindMissingCredential,
		},
		{
			name: "missing id",
			fields: func(t *testing.T) MapSource {
				f := signedFields(t, "AK1", "S1", now, "n1")
				f["AccessKeyId"] = ""
				return f
			},
			wantKind: KindMissingCredential,
		},
		{
			name:     "unknown key",
			fields:   func(t *testing.T) MapSource { return signedFields(t, "AK9", "S1", now, "n1") },
			wantKind: KindUnknownKey,
		},
		{
			name:     "timestamp too old",
			fields:   func(t *testing.T) MapSource { return signedFields(t, "AK1", "S1", "1699999699", "n1") },
			wantKind: KindClockSkewExceeded,
		},
		{
			name:     "timestamp too far ahead",
			fields:   func(t *testing.T) MapSource { return signedFields(t, "AK1", "S1", "1700000301", "n1") },
			wantKind: KindClockSkewExceeded,
		},
		{
			name:     "timestamp not a number",
			fields:   func(t *testing.T) MapSource { return signedFields(t, "AK1", "S1", "yesterday", "n1") },
			wantKind: KindClockSkewExceeded,
		},
		{
			name:     "timestamp in milliseconds",
			fields:   func(t *testing.T) MapSource { return signedFields(t, "AK1", "S1", now+"000", "n1") },
			wantKind: KindClockSkewExceeded,
		},
		{
			name:     "wrong secret",
			fields:   func(t *testing.T) MapSource { return signedFields(t, "AK1", "S2", now, "n1") },
			wantKind: KindSignatureMismatch,
		},
		{
			name: "tampered nonce",
			fields: func(t *testing.T) MapSource {
				f := signedFields(t, "AK1", "S1", now, "n1")
				f["n"] = "n2"
				return f
			},
			wantKind: KindSignatureMismatch,
		},
		{
			name: "signature not hex",
			fields: func(t *testing.T) MapSource {
				f := signedFields(t, "AK1", "S1", now, "n1")
				f["sign"] = "not-hex"
				return f
			},
			wantKind: KindSignatureMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			v, store, _ := newComplexFixture(t, nil)
			id, err := v.Validate(context.Background(), tt.fields(t))

			assert.Nil(t, id)
			assert.Equal(t, tt.wantKind, kindOf(t, err))
			assert.Equal(t, tt.wantStore, store.calls.Load(), "rejected before the nonce stage")
		})
	}
}

func TestComplexValidator_SkewBoundary(t *testing.T) {
	t.Parallel()

	v, _, _ := newComplexFixture(t, nil)
	ctx := context.Background()

	_, err := v.Validate(ctx, signedFields(t, "AK1", "S1", strconv.FormatInt(testNow-300, 10), "edge-past"))
	assert.NoError(t, err)

	_, err = v.Validate(ctx, signedFields(t, "AK1", "S1", strconv.FormatInt(testNow+300, 10), "edge-future"))
	assert.NoError(t, err)
}

func TestComplexValidator_FailedChecksDoNotConsumeNonce(t *testing.T) {
	t.Parallel()

	v, _, _ := newComplexFixture(t, nil)
	ctx := context.Background()
	now := strconv.FormatInt(testNow, 10)

	_, err := v.Validate(ctx, signedFields(t, "AK1", "WRONG", now, "n1"))
	require.ErrorIs(t, err, ErrSignatureMismatch)

	_, err = v.Validate(ctx, signedFields(t, "AK1", "S1", now, "n1"))
	assert.NoError(t, err, "the legitimate owner can still use the nonce")
}

func TestComplexValidator_NoncesAreScopedPerKey(t *testing.T) {
	t.Parallel()

	v, _, r := newComplexFixture(t, nil)
	require.NoError(t, r.AddKey(SchemeComplex, "AK2", "S2"))
	ctx := context.Background()
	now := strconv.FormatInt(testNow, 10)

	_, err := v.Validate(ctx, signedFields(t, "AK1", "S1", now, "shared"))
	require.NoError(t, err)
	_, err = v.Validate(ctx, signedFields(t, "AK2", "S2", now, "shared"))
	assert.NoError(t, err)
}

func TestComplexValidator_StoreFailure(t *testing.T) {
	t.Parallel()

	now := strconv.FormatInt(testNow, 10)
	storeErr := errors.New("redis: connection refused")

	t.Run("fail closed by default", func(t *testing.T) {
		t.Parallel()

		v, store, _ := newComplexFixture(t, nil)
		store.err = storeErr

		_, err := v.Validate(context.Background(), signedFields(t, "AK1", "S1", now, "n1"))
		assert.Equal(t, KindStoreUnavailable, kindOf(t, err))
		assert.ErrorIs(t, err, storeErr)
		assert.Equal(t, 503, KindStoreUnavailable.HTTPStatus())
	})

	t.Run("fail open when configured", func(t *testing.T) {
		t.Parallel()

		v, store, _ := newComplexFixture(t, func(c *ComplexConfig) { c.FailOpen = true })
		store.err = storeErr

		id, err := v.Validate(context.Background(), signedFields(t, "AK1", "S1", now, "n1"))
		require.NoError(t, err)
		assert.Equal(t, "AK1", id.KeyID)
	})
}

func TestComplexValidator_ExtraFields(t *testing.T) {
	t.Parallel()

	v, _, _ := newComplexFixture(t, func(c *ComplexConfig) {
		c.ExtraFields = []string{"body_sha256"}
	})
	now := strconv.FormatInt(testNow, 10)
	s, err := NewSigner(AlgHMACSHA256)
	require.NoError(t, err)

	fields := MapSource{
		"AccessKeyId": "AK1",
		"t":           now,
		"n":           "n1",
		"body_sha256": "e3b0c442",
		"sign":        s.SignHex("S1", CanonicalString("AK1", now, "n1", "e3b0c442")),
	}
	_, err = v.Validate(context.Background(), fields)
	require.NoError(t, err)

	delete(fields, "body_sha256")
	fields["n"] = "n2"
	_, err = v.Validate(context.Background(), fields)
	assert.Equal(t, KindMissingCredential, kindOf(t, err))
}

func TestComplexValidator_SeparatorInSignedValue(t *testing.T) {
	t.Parallel()

	v, _, _ := newComplexFixture(t, func(c *ComplexConfig) {
		c.ExtraFields = []string{"path"}
	})
	now := strconv.FormatInt(testNow, 10)
	s, err := NewSigner(AlgHMACSHA256)
	require.NoError(t, err)

	// n=n1 path=a|b and n=n1|a path=b share one canonical string.
	sign := s.SignHex("S1", CanonicalString("AK1", now, "n1", "a|b"))

	tests := []struct {
		name  string
		nonce string
		path  string
	}{
		{name: "separator in extra", nonce: "n1", path: "a|b"},
		{name: "separator in nonce", nonce: "n1|a", path: "b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := v.Validate(context.Background(), MapSource{
				"AccessKeyId": "AK1",
				"t":           now,
				"n":           tt.nonce,
				"path":        tt.path,
				"sign":        sign,
			})
			assert.Equal(t, KindMissingCredential, kindOf(t, err))
		})
	}

	t.Run("plain values pass", func(t *testing.T) {
		t.Parallel()
		_, err := v.Validate(context.Background(), MapSource{
			"AccessKeyId": "AK1",
			"t":           now,
			"n":           "n2",
			"path":        "/orders",
			"sign":        s.SignHex("S1", CanonicalString("AK1", now, "n2", "/orders")),
		})
		require.NoError(t, err)
	})
}

func TestComplexValidator_CustomNamesAndAlgorithm(t *testing.T) {
	t.Parallel()

	v, _, _ := newComplexFixture(t, func(c *ComplexConfig) {
		c.KeyName = "X-Key-Id"
		c.TimestampName = "X-Timestamp"
		c.NonceName = "X-Nonce"
		c.SignatureName = "X-Signature"
		c.Algorithm = AlgHMACSHA3256
	})
	s, err := NewSigner(AlgHMACSHA3256)
	require.NoError(t, err)

	f := SignRequest(s, "AK1", "S1", "n1", time.Unix(testNow, 0))
	_, err = v.Validate(context.Background(), MapSource{
		"X-Key-Id":    f.ID,
		"X-Timestamp": f.Timestamp,
		"X-Nonce":     f.Nonce,
		"X-Signature": f.Signature,
	})
	assert.NoError(t, err)
}

func TestNewComplexValidator_Errors(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	store := nonce.NewMemoryStore(nonce.WithSweepInterval(0))
	t.Cleanup(func() { _ = store.Close() })

	_, err := NewComplexValidator(DefaultComplexConfig(), nil, store)
	assert.Error(t, err)

	_, err = NewComplexValidator(DefaultComplexConfig(), r, nil)
	assert.Error(t, err)

	cfg := DefaultComplexConfig()
	cfg.Algorithm = "md5"
	_, err = NewComplexValidator(cfg, r, store)
	assert.Error(t, err)

	cfg = DefaultComplexConfig()
	cfg.NonceTTL = time.Second
	_, err = NewComplexValidator(cfg, r, store)
	assert.Error(t, err)

	cfg = ComplexConfig{ClockSkew: time.Minute, NonceTTL: time.Minute}
	_, err = NewComplexValidator(cfg, r, store)
	assert.Error(t, err, "a nonce ttl of one skew window lets a future-dated nonce be replayed")

	cfg = ComplexConfig{ClockSkew: time.Minute}
	v, err := NewComplexValidator(cfg, r, store)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Minute, v.Config().NonceTTL)
	assert.Equal(t, AlgHMACSHA256, v.Config().Algorithm)
	assert.Equal(t, SchemeComplex, v.Scheme())
	assert.Equal(t, SourceHeader, v.Source())
}
