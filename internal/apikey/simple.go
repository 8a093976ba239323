package apikey

import (
	"context"
	"time"
)

// SimpleValidator admits requests whose token is a registered simple key.
// It has no side effects.
type SimpleValidator struct {
	cfg      SimpleConfig
	registry *Registry
	opts     options
}

// NewSimpleValidator creates a simple validator.
func NewSimpleValidator(cfg SimpleConfig, registry *Registry, opts ...Option) *SimpleValidator {
	if cfg.KeyName == "" {
		cfg.KeyName = DefaultSimpleConfig().KeyName
	}
	if cfg.Source == "" {
		cfg.Source = SourceHeader
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	return &SimpleValidator{cfg: cfg, registry: registry, opts: o}
}

// Scheme implements Validator.
func (v *SimpleValidator) Scheme() Scheme {
	return SchemeSimple
}

// Source implements Validator.
func (v *SimpleValidator) Source() string {
	return v.cfg.Source
}

// Validate implements Validator.
func (v *SimpleValidator) Validate(ctx context.Context, fields FieldSource) (id *Identity, err error) {
	start := time.Now()
	_, span := startSpan(ctx, SchemeSimple)

	// The token is the credential itself and never reaches spans or logs.
	defer func() { finish(span, v.opts.metrics, SchemeSimple, start, "", err) }()

	token := fields.Get(v.cfg.KeyName)

	if token == "" {
		return nil, reject(KindMissingCredential, "", "missing "+v.cfg.KeyName)
	}
	if !v.registry.Contains(SchemeSimple, token) {
		return nil, reject(KindUnknownKey, "", "api key is not registered")
	}

	return &Identity{KeyID: token, Scheme: SchemeSimple}, nil
}
