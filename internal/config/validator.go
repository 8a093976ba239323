package config

import (
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Path    string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s", e.Path, e.Message)
	}
	return e.Message
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

// Error implements the error interface.
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// HasErrors returns true if there are validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Validator validates signgate configuration.
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new configuration validator.
func NewValidator() *Validator {
	return &Validator{
		errors: make(ValidationErrors, 0),
	}
}

// ValidateConfig validates a configuration.
func ValidateConfig(cfg *Config) error {
	return NewValidator().Validate(cfg)
}

// Validate validates the configuration and returns any errors.
// Defaults are expected to be applied already.
func (v *Validator) Validate(cfg *Config) error {
	v.errors = make(ValidationErrors, 0)

	if cfg == nil {
		v.addError("", "configuration is nil")
		return v.errors
	}

	v.validateServer(&cfg.Server)
	v.validateLogging(&cfg.Logging)
	v.validateTracing(&cfg.Tracing)
	v.validateNonceStore(&cfg.NonceStore)
	v.validateAPIKeys(&cfg.APIKeys)
	v.validateKeys(cfg.Keys, "keys")
	v.validateKeySources(&cfg.KeySources)
	v.validateProtectedRoutes(cfg.ProtectedRoutes)
	v.validateRateLimit(&cfg.RateLimit)

	if v.errors.HasErrors() {
		return v.errors
	}
	return nil
}

func (v *Validator) validateServer(s *ServerConfig) {
	if s.Address == "" {
		v.addError("server.address", "address is required")
	}
	if s.ShutdownTimeout < 0 {
		v.addError("server.shutdownTimeout", "must not be negative")
	}
}

func (v *Validator) validateLogging(l *LoggingConfig) {
	switch strings.ToLower(l.Level) {
	case "debug", "info", "warn", "error":
	default:
		v.addError("logging.level", fmt.Sprintf("unknown level %q", l.Level))
	}
	switch l.Format {
	case "json", "console":
	default:
		v.addError("logging.format", fmt.Sprintf("unknown format %q", l.Format))
	}
}

func (v *Validator) validateTracing(t *TracingConfig) {
	if t.SamplingRate < 0 || t.SamplingRate > 1 {
		v.addError("tracing.samplingRate", "must be between 0 and 1")
	}
}

func (v *Validator) validateNonceStore(n *NonceStoreConfig) {
	switch n.Backend {
	case NonceBackendAuto, NonceBackendMemory:
	case NonceBackendRedis:
		if n.Redis.Address == "" {
			v.addError("nonceStore.redis.address", "address is required for the redis backend")
		}
	default:
		v.addError("nonceStore.backend", fmt.Sprintf("unknown backend %q", n.Backend))
	}

	if n.Memory.Shards < 1 {
		v.addError("nonceStore.memory.shards", "must be at least 1")
	}
	if n.Memory.SweepBatch < 1 {
		v.addError("nonceStore.memory.sweepBatch", "must be at least 1")
	}
	if n.Redis.OperationTimeout <= 0 {
		v.addError("nonceStore.redis.operationTimeout", "must be positive")
	}
	if n.Redis.Breaker.Threshold < 1 {
		v.addError("nonceStore.redis.breaker.threshold", "must be at least 1")
	}
}

func (v *Validator) validateAPIKeys(a *APIKeysConfig) {
	v.validateSource(a.Simple.Source, "apiKeys.simple.source")
	if a.Simple.KeyName == "" {
		v.addError("apiKeys.simple.keyName", "keyName is required")
	}

	c := &a.Complex
	v.validateSource(c.Source, "apiKeys.complex.source")

	names := map[string]string{
		"keyName":       c.KeyName,
		"timestampName": c.TimestampName,
		"nonceName":     c.NonceName,
		"signatureName": c.SignatureName,
	}
	seen := make(map[string]string, len(names)+len(c.ExtraFields))
	for _, field := range []string{"keyName", "timestampName", "nonceName", "signatureName"} {
		name := names[field]
		path := "apiKeys.complex." + field
		if name == "" {
			v.addError(path, field+" is required")
			continue
		}
		if other, dup := seen[name]; dup {
			v.addError(path, fmt.Sprintf("%q is already used by %s", name, other))
			continue
		}
		seen[name] = field
	}
	for i, name := range c.ExtraFields {
		path := fmt.Sprintf("apiKeys.complex.extraFields[%d]", i)
		if name == "" {
			v.addError(path, "field name is required")
			continue
		}
		if other, dup := seen[name]; dup {
			v.addError(path, fmt.Sprintf("%q is already used by %s", name, other))
			continue
		}
		seen[name] = "extraFields"
	}

	switch c.Algorithm {
	case AlgHMACSHA256, AlgHMACSHA512, AlgHMACSHA3256:
	default:
		v.addError("apiKeys.complex.algorithm", fmt.Sprintf("unsupported algorithm %q", c.Algorithm))
	}

	if c.ClockSkew <= 0 {
		v.addError("apiKeys.complex.clockSkew", "must be positive")
	}
	if c.NonceTTL < 2*c.ClockSkew {
		v.addError("apiKeys.complex.nonceTTL", "must be at least twice clockSkew")
	}

	switch a.StoreFailurePolicy {
	case FailClosed, FailOpen:
	default:
		v.addError("apiKeys.storeFailurePolicy",
			fmt.Sprintf("must be %q or %q", FailClosed, FailOpen))
	}
}

func (v *Validator) validateSource(source, path string) {
	switch source {
	case SourceHeader, SourceQuery, SourceMetadata:
	default:
		v.addError(path, fmt.Sprintf("unknown source %q", source))
	}
}

func (v *Validator) validateKeys(keys []KeyRecord, path string) {
	for i := range keys {
		k := &keys[i]
		kp := fmt.Sprintf("%s[%d]", path, i)
		if k.ID == "" {
			v.addError(kp+".id", "id is required")
		}
		switch k.Scheme {
		case SchemeSimple:
		case SchemeComplex:
			if k.Secret == "" {
				v.addError(kp+".secret", "secret is required for complex keys")
			}
		default:
			v.addError(kp+".scheme", fmt.Sprintf("unknown scheme %q", k.Scheme))
		}
	}
}

func (v *Validator) validateKeySources(k *KeySourcesConfig) {
	if k.Vault.Enabled {
		if k.Vault.Address == "" {
			v.addError("keySources.vault.address", "address is required when vault is enabled")
		}
		if k.Vault.SimplePath == "" && k.Vault.ComplexPath == "" {
			v.addError("keySources.vault", "at least one of simplePath or complexPath is required")
		}
	}
	if k.SQL.Enabled && k.SQL.DSN == "" {
		v.addError("keySources.sql.dsn", "dsn is required when sql is enabled")
	}
	if k.RefreshSchedule != "" {
		if _, err := cron.ParseStandard(k.RefreshSchedule); err != nil {
			v.addError("keySources.refreshSchedule", fmt.Sprintf("invalid cron expression: %v", err))
		}
	}
	if k.Retry.MaxRetries < 0 {
		v.addError("keySources.retry.maxRetries", "must not be negative")
	}
	if k.Retry.InitialBackoff < 0 || k.Retry.MaxBackoff < 0 {
		v.addError("keySources.retry", "backoff durations must not be negative")
	}
}

func (v *Validator) validateProtectedRoutes(routes []ProtectedRoute) {
	seen := make(map[string]bool, len(routes))
	for i, r := range routes {
		path := fmt.Sprintf("protectedRoutes[%d]", i)
		if !strings.HasPrefix(r.Path, "/") {
			v.addError(path+".path", "path must start with '/'")
		}
		if r.Scheme != SchemeSimple && r.Scheme != SchemeComplex {
			v.addError(path+".scheme", fmt.Sprintf("unknown scheme %q", r.Scheme))
		}
		if seen[r.Path] {
			v.addError(path+".path", fmt.Sprintf("duplicate path %q", r.Path))
		}
		seen[r.Path] = true
	}
}

func (v *Validator) validateRateLimit(r *RateLimitConfig) {
	if !r.Enabled {
		return
	}
	if r.RequestsPerSecond <= 0 {
		v.addError("rateLimit.requestsPerSecond", "must be positive")
	}
	if r.Burst <= 0 {
		v.addError("rateLimit.burst", "must be positive")
	}
}

// addError adds a validation error.
func (v *Validator) addError(path, message string) {
	v.errors = append(v.errors, ValidationError{Path: path, Message: message})
}
