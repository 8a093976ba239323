package middleware

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/vyrodovalexey/signgate/internal/apikey"
	httpmw "github.com/vyrodovalexey/signgate/internal/middleware"
	"github.com/vyrodovalexey/signgate/internal/nonce"
	"github.com/vyrodovalexey/signgate/internal/observability"
	"github.com/vyrodovalexey/signgate/internal/protect"
)

type stubChecker struct {
	id   *apikey.Identity
	verr *apikey.ValidationError
	path string
	key  string
}

func (s *stubChecker) Check(_ context.Context, path string, fields apikey.FieldSource) (*apikey.Identity, *apikey.ValidationError, bool) {
	s.path = path
	s.key = fields.Get("x-api-key")
	return s.id, s.verr, s.id != nil || s.verr != nil
}

type testServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *testServerStream) Context() context.Context { return s.ctx }

func TestStatusCode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		kind apikey.Kind
		want codes.Code
	}{
		{kind: apikey.KindMissingCredential, want: codes.Unauthenticated},
		{kind: apikey.KindUnknownKey, want: codes.Unauthenticated},
		{kind: apikey.KindClockSkewExceeded, want: codes.Unauthenticated},
		{kind: apikey.KindSignatureMismatch, want: codes.Unauthenticated},
		{kind: apikey.KindReplayDetected, want: codes.PermissionDenied},
		{kind: apikey.KindStoreUnavailable, want: codes.Unavailable},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, StatusCode(tt.kind))
		})
	}
}

func TestUnarySignatureInterceptor(t *testing.T) {
	t.Parallel()

	info := &grpc.UnaryServerInfo{FullMethod: "/orders.v1.Orders/Get"}
	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("x-api-key", "K1"))

	t.Run("admitted", func(t *testing.T) {
		t.Parallel()

		checker := &stubChecker{id: &apikey.Identity{KeyID: "K1", Scheme: apikey.SchemeSimple}}
		var got *apikey.Identity
		resp, err := UnarySignatureInterceptor(checker)(ctx, "req", info,
			func(ctx context.Context, req any) (any, error) {
				got, _ = apikey.IdentityFromContext(ctx)
				return "ok", nil
			})

		require.NoError(t, err)
		assert.Equal(t, "ok", resp)
		require.NotNil(t, got)
		assert.Equal(t, "K1", got.KeyID)
		assert.Equal(t, "/orders.v1.Orders/Get", checker.path)
		assert.Equal(t, "K1", checker.key)
	})

	t.Run("rejected", func(t *testing.T) {
		t.Parallel()

		checker := &stubChecker{verr: &apikey.ValidationError{Kind: apikey.KindReplayDetected, Message: "nonce already used"}}
		resp, err := UnarySignatureInterceptor(checker)(ctx, "req", info,
			func(context.Context, any) (any, error) {
				t.Error("handler must not run")
				return nil, nil
			})

		assert.Nil(t, resp)
		st, ok := status.FromError(err)
		require.True(t, ok)
		assert.Equal(t, codes.PermissionDenied, st.Code())
		assert.Equal(t, "nonce already used", st.Message())
	})

	t.Run("unprotected", func(t *testing.T) {
		t.Parallel()

		resp, err := UnarySignatureInterceptor(&stubChecker{})(context.Background(), "req", info,
			func(ctx context.Context, req any) (any, error) {
				_, ok := apikey.IdentityFromContext(ctx)
				assert.False(t, ok)
				return "ok", nil
			})
		require.NoError(t, err)
		assert.Equal(t, "ok", resp)
	})
}

func TestStreamSignatureInterceptor(t *testing.T) {
	t.Parallel()

	info := &grpc.StreamServerInfo{FullMethod: "/orders.v1.Orders/Watch"}
	stream := &testServerStream{ctx: context.Background()}

	checker := &stubChecker{verr: &apikey.ValidationError{Kind: apikey.KindStoreUnavailable, Message: "nonce store unavailable"}}
	err := StreamSignatureInterceptor(checker)(nil, stream, info, func(any, grpc.ServerStream) error {
		t.Error("handler must not run")
		return nil
	})
	assert.Equal(t, codes.Unavailable, status.Code(err))

	checker = &stubChecker{id: &apikey.Identity{KeyID: "AK1", Scheme: apikey.SchemeComplex}}
	err = StreamSignatureInterceptor(checker)(nil, stream, info, func(_ any, ss grpc.ServerStream) error {
		id, ok := apikey.IdentityFromContext(ss.Context())
		require.True(t, ok)
		assert.Equal(t, "AK1", id.KeyID)
		return nil
	})
	require.NoError(t, err)
}

func TestUnarySignatureInterceptor_WithGate(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0)

	keys := apikey.NewRegistry()
	require.NoError(t, keys.AddKey(apikey.SchemeComplex, "AK1", "S1"))
	store := nonce.NewMemoryStore(nonce.WithSweepInterval(0))
	t.Cleanup(func() { _ = store.Close() })

	v, err := apikey.NewComplexValidator(apikey.DefaultComplexConfig(), keys, store,
		apikey.WithClock(func() time.Time { return now }))
	require.NoError(t, err)

	routes := protect.NewRegistry()
	require.NoError(t, routes.Protect("/orders.v1.Orders/*", apikey.SchemeComplex))
	routes.Freeze()

	gate, err := httpmw.NewGate(routes, []apikey.Validator{v}, httpmw.WithGateLogger(observability.NopLogger()))
	require.NoError(t, err)

	signer, err := apikey.NewSigner(apikey.AlgHMACSHA256)
	require.NoError(t, err)
	f := apikey.SignRequest(signer, "AK1", "S1", "abc", now)
	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs(
		"accesskeyid", f.ID, "t", f.Timestamp, "n", f.Nonce, "sign", f.Signature,
	))

	interceptor := UnarySignatureInterceptor(gate)
	info := &grpc.UnaryServerInfo{FullMethod: "/orders.v1.Orders/Get"}
	handler := func(context.Context, any) (any, error) { return "ok", nil }

	_, err = interceptor(ctx, nil, info, handler)
	require.NoError(t, err)

	_, err = interceptor(ctx, nil, info, handler)
	assert.Equal(t, codes.PermissionDenied, status.Code(err))

	_, err = interceptor(context.Background(), nil, info, handler)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
}

func TestRequestIDInterceptors(t *testing.T) {
	t.Parallel()

	var captured string
	_, err := UnaryRequestIDInterceptor()(context.Background(), nil, &grpc.UnaryServerInfo{},
		func(ctx context.Context, _ any) (any, error) {
			captured = observability.RequestIDFromContext(ctx)
			return nil, nil
		})
	require.NoError(t, err)
	assert.NotEmpty(t, captured)

	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs(RequestIDHeader, "rid-7"))
	err = StreamRequestIDInterceptor()(nil, &testServerStream{ctx: ctx}, &grpc.StreamServerInfo{},
		func(_ any, ss grpc.ServerStream) error {
			captured = observability.RequestIDFromContext(ss.Context())
			return nil
		})
	require.NoError(t, err)
	assert.Equal(t, "rid-7", captured)
}

func TestRecoveryInterceptors(t *testing.T) {
	t.Parallel()

	_, err := UnaryRecoveryInterceptor(observability.NopLogger())(context.Background(), nil,
		&grpc.UnaryServerInfo{FullMethod: "/x.Y/Z"},
		func(context.Context, any) (any, error) { panic("boom") })
	assert.Equal(t, codes.Internal, status.Code(err))

	err = StreamRecoveryInterceptor(observability.NopLogger())(nil, &testServerStream{ctx: context.Background()},
		&grpc.StreamServerInfo{FullMethod: "/x.Y/W"},
		func(any, grpc.ServerStream) error { panic("boom") })
	assert.Equal(t, codes.Internal, status.Code(err))
}
