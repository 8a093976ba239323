package apikey

import (
	"context"

	"github.com/vyrodovalexey/signgate/internal/observability"
)

// Identity describes the caller of an admitted request.
type Identity struct {
	KeyID  string `json:"key_id"`
	Scheme Scheme `json:"scheme"`
}

// LogID returns the key id safe for logs. A simple-scheme id is the bearer
// token itself, so only its prefix is kept.
func (id *Identity) LogID() string {
	if id.Scheme != SchemeSimple {
		return id.KeyID
	}
	return MaskToken(id.KeyID)
}

// MaskToken keeps the first four characters of a token.
func MaskToken(token string) string {
	const visible = 4
	if len(token) <= visible*2 {
		return "****"
	}
	return token[:visible] + "****"
}

type identityKey struct{}

// ContextWithIdentity returns a context carrying the identity. The masked
// key id is also attached for context-aware loggers.
func ContextWithIdentity(ctx context.Context, id *Identity) context.Context {
	ctx = observability.ContextWithKeyID(ctx, id.LogID())
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext returns the identity stored by the middleware, if any.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(*Identity)
	return id, ok && id != nil
}
