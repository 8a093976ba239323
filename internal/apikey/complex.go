package apikey

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/vyrodovalexey/signgate/internal/nonce"
	"github.com/vyrodovalexey/signgate/internal/observability"
)

// ComplexValidator admits signed, fresh, non-replayed requests.
//
// Checks run in a fixed order and stop at the first failure: required
// fields, key lookup, timestamp window, signature, nonce. The nonce is
// recorded only after the signature verifies.
type ComplexValidator struct {
	cfg      ComplexConfig
	registry *Registry
	store    nonce.Store
	signer   *Signer
	opts     options
}

// NewComplexValidator creates a complex validator.
func NewComplexValidator(cfg ComplexConfig, registry *Registry, store nonce.Store, opts ...Option) (*ComplexValidator, error) {
	if registry == nil {
		return nil, errors.New("registry is required")
	}
	if store == nil {
		return nil, errors.New("nonce store is required")
	}

	def := DefaultComplexConfig()
	setDefault(&cfg.Source, def.Source)
	setDefault(&cfg.KeyName, def.KeyName)
	setDefault(&cfg.TimestampName, def.TimestampName)
	setDefault(&cfg.NonceName, def.NonceName)
	setDefault(&cfg.SignatureName, def.SignatureName)
	if cfg.ClockSkew <= 0 {
		cfg.ClockSkew = def.ClockSkew
	}
	if cfg.NonceTTL <= 0 {
		cfg.NonceTTL = 2 * cfg.ClockSkew
	}
	// Timestamps are accepted up to ClockSkew on either side of now, so a
	// nonce must be remembered for the full width of that window.
	if cfg.NonceTTL < 2*cfg.ClockSkew {
		return nil, fmt.Errorf("nonce ttl %s is shorter than twice the clock skew %s", cfg.NonceTTL, cfg.ClockSkew)
	}

	signer, err := NewSigner(cfg.Algorithm)
	if err != nil {
		return nil, err
	}
	cfg.Algorithm = signer.Algorithm()

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	return &ComplexValidator{
		cfg:      cfg,
		registry: registry,
		store:    store,
		signer:   signer,
		opts:     o,
	}, nil
}

// Scheme implements Validator.
func (v *ComplexValidator) Scheme() Scheme {
	return SchemeComplex
}

// Source implements Validator.
func (v *ComplexValidator) Source() string {
	return v.cfg.Source
}

// Config returns the effective configuration.
func (v *ComplexValidator) Config() ComplexConfig {
	return v.cfg
}

// Validate implements Validator.
func (v *ComplexValidator) Validate(ctx context.Context, fields FieldSource) (id *Identity, err error) {
	start := time.Now()
	ctx, span := startSpan(ctx, SchemeComplex)

	keyID := fields.Get(v.cfg.KeyName)
	defer func() { finish(span, v.opts.metrics, SchemeComplex, start, keyID, err) }()

	ts := fields.Get(v.cfg.TimestampName)
	nonceValue := fields.Get(v.cfg.NonceName)
	signature := fields.Get(v.cfg.SignatureName)

	if missing := firstMissing(
		v.cfg.KeyName, keyID,
		v.cfg.TimestampName, ts,
		v.cfg.NonceName, nonceValue,
		v.cfg.SignatureName, signature,
	); missing != "" {
		return nil, reject(KindMissingCredential, keyID, "missing "+missing)
	}

	extra := make([]string, len(v.cfg.ExtraFields))
	for i, name := range v.cfg.ExtraFields {
		extra[i] = fields.Get(name)
		if extra[i] == "" {
			return nil, reject(KindMissingCredential, keyID, "missing "+name)
		}
	}

	// A separator inside a signed value would let a different split of the
	// same canonical string carry the same signature under a fresh nonce.
	if name := firstSeparated(v.cfg, keyID, nonceValue, extra); name != "" {
		return nil, reject(KindMissingCredential, keyID, "malformed "+name)
	}

	rec, lookupErr := v.registry.Lookup(SchemeComplex, keyID)
	if lookupErr != nil {
		return nil, reject(KindUnknownKey, keyID, "api key is not registered")
	}

	if !v.withinWindow(ts) {
		return nil, reject(KindClockSkewExceeded, keyID,
			fmt.Sprintf("timestamp must be unix seconds within %s of server time", v.cfg.ClockSkew))
	}

	canonical := CanonicalString(keyID, ts, nonceValue, extra...)
	if !v.signer.Verify(rec.Secret, canonical, signature) {
		return nil, reject(KindSignatureMismatch, keyID, "signature does not match")
	}

	res, storeErr := v.store.CheckAndSet(ctx, keyID, nonceValue, v.cfg.NonceTTL)
	switch {
	case storeErr != nil:
		if v.cfg.FailOpen {
			v.opts.logger.Error("nonce store unavailable, admitting request without replay protection",
				observability.String("key_id", keyID),
				observability.String("backend", v.store.Name()),
				observability.Error(storeErr),
			)
			return &Identity{KeyID: keyID, Scheme: SchemeComplex}, nil
		}
		verr := reject(KindStoreUnavailable, keyID, "replay protection is temporarily unavailable")
		verr.Cause = storeErr
		return nil, verr
	case res == nonce.Replay:
		return nil, reject(KindReplayDetected, keyID, "nonce has already been used")
	}

	return &Identity{KeyID: keyID, Scheme: SchemeComplex}, nil
}

// firstSeparated returns the name of the first signed value containing the
// canonical separator, or "" when none does.
func firstSeparated(cfg ComplexConfig, keyID, nonceValue string, extra []string) string {
	if strings.Contains(keyID, canonicalSeparator) {
		return cfg.KeyName
	}
	if strings.Contains(nonceValue, canonicalSeparator) {
		return cfg.NonceName
	}
	for i, value := range extra {
		if strings.Contains(value, canonicalSeparator) {
			return cfg.ExtraFields[i]
		}
	}
	return ""
}

// withinWindow reports whether ts is base-10 unix seconds no further than
// the clock skew from now in either direction.
func (v *ComplexValidator) withinWindow(ts string) bool {
	secs, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return false
	}

	// Sub saturates, so far-off timestamps cannot overflow the comparison.
	d := v.opts.clock().Sub(time.Unix(secs, 0))
	return d <= v.cfg.ClockSkew && d >= -v.cfg.ClockSkew
}

// firstMissing takes name/value pairs and returns the first name whose
// value is empty.
func firstMissing(pairs ...string) string {
	for i := 0; i+1 < len(pairs); i += 2 {
		if pairs[i+1] == "" {
			return pairs[i]
		}
	}
	return ""
}

func setDefault(dst *string, def string) {
	if *dst == "" {
		*dst = def
	}
}
