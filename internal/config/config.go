package config

import "time"

// Scheme names as they appear in configuration files.
const (
	SchemeSimple  = "simple"
	SchemeComplex = "complex"
)

// Extraction sources.
const (
	SourceHeader   = "header"
	SourceQuery    = "query"
	SourceMetadata = "metadata"
)

// Nonce store backends.
const (
	NonceBackendAuto   = ""
	NonceBackendMemory = "memory"
	NonceBackendRedis  = "redis"
)

// Store failure policies.
const (
	FailClosed = "closed"
	FailOpen   = "open"
)

// Signature algorithms.
const (
	AlgHMACSHA256  = "hmac-sha256"
	AlgHMACSHA512  = "hmac-sha512"
	AlgHMACSHA3256 = "hmac-sha3-256"
)

// Config is the root configuration.
type Config struct {
	Server          ServerConfig     `yaml:"server" toml:"server"`
	Logging         LoggingConfig    `yaml:"logging" toml:"logging"`
	Tracing         TracingConfig    `yaml:"tracing" toml:"tracing"`
	Metrics         MetricsConfig    `yaml:"metrics" toml:"metrics"`
	NonceStore      NonceStoreConfig `yaml:"nonceStore" toml:"nonceStore"`
	APIKeys         APIKeysConfig    `yaml:"apiKeys" toml:"apiKeys"`
	Keys            []KeyRecord      `yaml:"keys,omitempty" toml:"keys,omitempty"`
	KeySources      KeySourcesConfig `yaml:"keySources" toml:"keySources"`
	ProtectedRoutes []ProtectedRoute `yaml:"protectedRoutes,omitempty" toml:"protectedRoutes,omitempty"`
	RateLimit       RateLimitConfig  `yaml:"rateLimit" toml:"rateLimit"`
}

// ServerConfig configures the HTTP and gRPC listeners.
type ServerConfig struct {
	// Address is the HTTP listen address.
	Address string `yaml:"address" toml:"address"`

	// GRPCAddress enables the gRPC listener when set.
	GRPCAddress string `yaml:"grpcAddress,omitempty" toml:"grpcAddress,omitempty"`

	ReadTimeout     Duration `yaml:"readTimeout,omitempty" toml:"readTimeout,omitempty"`
	WriteTimeout    Duration `yaml:"writeTimeout,omitempty" toml:"writeTimeout,omitempty"`
	IdleTimeout     Duration `yaml:"idleTimeout,omitempty" toml:"idleTimeout,omitempty"`
	ShutdownTimeout Duration `yaml:"shutdownTimeout,omitempty" toml:"shutdownTimeout,omitempty"`
}

// LoggingConfig configures the logger.
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
	Output string `yaml:"output,omitempty" toml:"output,omitempty"`
}

// TracingConfig configures OpenTelemetry tracing.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled" toml:"enabled"`
	ServiceName  string  `yaml:"serviceName,omitempty" toml:"serviceName,omitempty"`
	OTLPEndpoint string  `yaml:"otlpEndpoint,omitempty" toml:"otlpEndpoint,omitempty"`
	SamplingRate float64 `yaml:"samplingRate,omitempty" toml:"samplingRate,omitempty"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Path    string `yaml:"path,omitempty" toml:"path,omitempty"`
}

// NonceStoreConfig selects and configures the nonce store backend.
// With Backend left empty the redis backend is used whenever
// Redis.Address is set, and the memory backend otherwise.
type NonceStoreConfig struct {
	Backend string            `yaml:"backend,omitempty" toml:"backend,omitempty"`
	Memory  MemoryNonceConfig `yaml:"memory" toml:"memory"`
	Redis   RedisConfig       `yaml:"redis" toml:"redis"`
}

// MemoryNonceConfig configures the in-process nonce store.
type MemoryNonceConfig struct {
	Shards        int      `yaml:"shards,omitempty" toml:"shards,omitempty"`
	SweepInterval Duration `yaml:"sweepInterval,omitempty" toml:"sweepInterval,omitempty"`
	SweepBatch    int      `yaml:"sweepBatch,omitempty" toml:"sweepBatch,omitempty"`
}

// RedisConfig configures the shared-cache nonce store.
type RedisConfig struct {
	Address           string        `yaml:"address,omitempty" toml:"address,omitempty"`
	Password          string        `yaml:"password,omitempty" toml:"password,omitempty"`
	DB                int           `yaml:"db,omitempty" toml:"db,omitempty"`
	Prefix            string        `yaml:"prefix,omitempty" toml:"prefix,omitempty"`
	PoolSize          int           `yaml:"poolSize,omitempty" toml:"poolSize,omitempty"`
	OperationTimeout  Duration      `yaml:"operationTimeout,omitempty" toml:"operationTimeout,omitempty"`
	DialTimeout       Duration      `yaml:"dialTimeout,omitempty" toml:"dialTimeout,omitempty"`
	ConnectionRetries int           `yaml:"connectionRetries,omitempty" toml:"connectionRetries,omitempty"`
	Breaker           BreakerConfig `yaml:"breaker" toml:"breaker"`
}

// BreakerConfig configures the circuit breaker in front of redis.
type BreakerConfig struct {
	// Threshold is the number of consecutive failures that opens the breaker.
	Threshold int `yaml:"threshold,omitempty" toml:"threshold,omitempty"`

	// Timeout is how long the breaker stays open before probing again.
	Timeout Duration `yaml:"timeout,omitempty" toml:"timeout,omitempty"`
}

// APIKeysConfig configures the two validation schemes.
type APIKeysConfig struct {
	Simple  SimpleSchemeConfig  `yaml:"simple" toml:"simple"`
	Complex ComplexSchemeConfig `yaml:"complex" toml:"complex"`

	// StoreFailurePolicy decides what happens when the nonce store cannot
	// be reached: "closed" (default) rejects, "open" allows.
	StoreFailurePolicy string `yaml:"storeFailurePolicy,omitempty" toml:"storeFailurePolicy,omitempty"`
}

// SimpleSchemeConfig configures allow-list validation.
type SimpleSchemeConfig struct {
	Source  string `yaml:"source,omitempty" toml:"source,omitempty"`
	KeyName string `yaml:"keyName,omitempty" toml:"keyName,omitempty"`
}

// ComplexSchemeConfig configures signed-request validation.
// Timestamps are unix seconds.
type ComplexSchemeConfig struct {
	Source        string   `yaml:"source,omitempty" toml:"source,omitempty"`
	KeyName       string   `yaml:"keyName,omitempty" toml:"keyName,omitempty"`
	TimestampName string   `yaml:"timestampName,omitempty" toml:"timestampName,omitempty"`
	NonceName     string   `yaml:"nonceName,omitempty" toml:"nonceName,omitempty"`
	SignatureName string   `yaml:"signatureName,omitempty" toml:"signatureName,omitempty"`
	ExtraFields   []string `yaml:"extraFields,omitempty" toml:"extraFields,omitempty"`
	Algorithm     string   `yaml:"algorithm,omitempty" toml:"algorithm,omitempty"`
	ClockSkew     Duration `yaml:"clockSkew,omitempty" toml:"clockSkew,omitempty"`
	NonceTTL      Duration `yaml:"nonceTTL,omitempty" toml:"nonceTTL,omitempty"`
}

// KeyRecord is a key as supplied by configuration or a key source.
type KeyRecord struct {
	ID     string `yaml:"id" toml:"id"`
	Secret string `yaml:"secret,omitempty" toml:"secret,omitempty"`
	Scheme string `yaml:"scheme" toml:"scheme"`
}

// KeySourcesConfig configures where keys are loaded from besides Keys.
type KeySourcesConfig struct {
	// File is a keys file (YAML or TOML with a top-level "keys" list).
	// It is watched and reloaded on change.
	File string `yaml:"file,omitempty" toml:"file,omitempty"`

	Vault VaultSourceConfig `yaml:"vault" toml:"vault"`
	SQL   SQLSourceConfig   `yaml:"sql" toml:"sql"`

	// RefreshSchedule is a cron expression for periodic reloads of all
	// sources. Empty disables periodic refresh.
	RefreshSchedule string `yaml:"refreshSchedule,omitempty" toml:"refreshSchedule,omitempty"`

	// Retry retries a source that could not be reached. Zero MaxRetries
	// disables retries.
	Retry RetryConfig `yaml:"retry,omitempty" toml:"retry,omitempty"`
}

// RetryConfig configures exponential backoff between attempts.
type RetryConfig struct {
	MaxRetries     int      `yaml:"maxRetries,omitempty" toml:"maxRetries,omitempty"`
	InitialBackoff Duration `yaml:"initialBackoff,omitempty" toml:"initialBackoff,omitempty"`
	MaxBackoff     Duration `yaml:"maxBackoff,omitempty" toml:"maxBackoff,omitempty"`
}

// VaultSourceConfig reads keys from a Vault KV v2 mount. Each path holds
// a map of key id to secret.
type VaultSourceConfig struct {
	Enabled     bool     `yaml:"enabled" toml:"enabled"`
	Address     string   `yaml:"address,omitempty" toml:"address,omitempty"`
	Token       string   `yaml:"token,omitempty" toml:"token,omitempty"`
	Mount       string   `yaml:"mount,omitempty" toml:"mount,omitempty"`
	SimplePath  string   `yaml:"simplePath,omitempty" toml:"simplePath,omitempty"`
	ComplexPath string   `yaml:"complexPath,omitempty" toml:"complexPath,omitempty"`
	Timeout     Duration `yaml:"timeout,omitempty" toml:"timeout,omitempty"`
}

// SQLSourceConfig reads keys from an SQLite access-key table.
type SQLSourceConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	DSN     string `yaml:"dsn,omitempty" toml:"dsn,omitempty"`
	Table   string `yaml:"table,omitempty" toml:"table,omitempty"`
}

// ProtectedRoute binds a path pattern to a scheme.
type ProtectedRoute struct {
	Path   string `yaml:"path" toml:"path"`
	Scheme string `yaml:"scheme" toml:"scheme"`
}

// RateLimitConfig configures the request rate limiter layer.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled" toml:"enabled"`
	RequestsPerSecond int  `yaml:"requestsPerSecond,omitempty" toml:"requestsPerSecond,omitempty"`
	Burst             int  `yaml:"burst,omitempty" toml:"burst,omitempty"`
	PerClient         bool `yaml:"perClient,omitempty" toml:"perClient,omitempty"`
}

// Defaults.
const (
	DefaultAddress          = ":8080"
	DefaultClockSkew        = 300 * time.Second
	DefaultRedisPrefix      = "api_key:nonce:"
	DefaultRedisOpTimeout   = 500 * time.Millisecond
	DefaultRedisDialTimeout = 5 * time.Second
	DefaultRedisRetries     = 5
	DefaultBreakerThreshold = 5
	DefaultBreakerTimeout   = 10 * time.Second
	DefaultMemoryShards     = 64
	DefaultSweepInterval    = 30 * time.Second
	DefaultSweepBatch       = 1024
	DefaultSimpleKeyName    = "x-api-key"
	DefaultComplexKeyName   = "AccessKeyId"
	DefaultTimestampName    = "t"
	DefaultNonceName        = "n"
	DefaultSignatureName    = "sign"
	DefaultSQLTable         = "sys_access_key"
	DefaultVaultMount       = "secret"
	DefaultShutdownTimeout  = 15 * time.Second
	DefaultMetricsPath      = "/metrics"
	DefaultRateLimitRPS     = 100
	DefaultRateLimitBurst   = 200
)

// DefaultConfig returns a configuration with every default applied.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills zero-valued fields with defaults.
func (c *Config) ApplyDefaults() {
	if c.Server.Address == "" {
		c.Server.Address = DefaultAddress
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = Duration(30 * time.Second)
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = Duration(30 * time.Second)
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = Duration(120 * time.Second)
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = Duration(DefaultShutdownTimeout)
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}

	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}

	c.applyNonceStoreDefaults()
	c.applyAPIKeyDefaults()

	if c.KeySources.SQL.Table == "" {
		c.KeySources.SQL.Table = DefaultSQLTable
	}
	if c.KeySources.Vault.Mount == "" {
		c.KeySources.Vault.Mount = DefaultVaultMount
	}
	if c.KeySources.Vault.Timeout == 0 {
		c.KeySources.Vault.Timeout = Duration(10 * time.Second)
	}

	if c.RateLimit.RequestsPerSecond == 0 {
		c.RateLimit.RequestsPerSecond = DefaultRateLimitRPS
	}
	if c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = DefaultRateLimitBurst
	}
}

func (c *Config) applyNonceStoreDefaults() {
	m := &c.NonceStore.Memory
	if m.Shards == 0 {
		m.Shards = DefaultMemoryShards
	}
	if m.SweepInterval == 0 {
		m.SweepInterval = Duration(DefaultSweepInterval)
	}
	if m.SweepBatch == 0 {
		m.SweepBatch = DefaultSweepBatch
	}

	r := &c.NonceStore.Redis
	if r.Prefix == "" {
		r.Prefix = DefaultRedisPrefix
	}
	if r.OperationTimeout == 0 {
		r.OperationTimeout = Duration(DefaultRedisOpTimeout)
	}
	if r.DialTimeout == 0 {
		r.DialTimeout = Duration(DefaultRedisDialTimeout)
	}
	if r.ConnectionRetries == 0 {
		r.ConnectionRetries = DefaultRedisRetries
	}
	if r.PoolSize == 0 {
		r.PoolSize = 10
	}
	if r.Breaker.Threshold == 0 {
		r.Breaker.Threshold = DefaultBreakerThreshold
	}
	if r.Breaker.Timeout == 0 {
		r.Breaker.Timeout = Duration(DefaultBreakerTimeout)
	}
}

func (c *Config) applyAPIKeyDefaults() {
	s := &c.APIKeys.Simple
	if s.Source == "" {
		s.Source = SourceHeader
	}
	if s.KeyName == "" {
		s.KeyName = DefaultSimpleKeyName
	}

	x := &c.APIKeys.Complex
	if x.Source == "" {
		x.Source = SourceHeader
	}
	if x.KeyName == "" {
		x.KeyName = DefaultComplexKeyName
	}
	if x.TimestampName == "" {
		x.TimestampName = DefaultTimestampName
	}
	if x.NonceName == "" {
		x.NonceName = DefaultNonceName
	}
	if x.SignatureName == "" {
		x.SignatureName = DefaultSignatureName
	}
	if x.Algorithm == "" {
		x.Algorithm = AlgHMACSHA256
	}
	if x.ClockSkew == 0 {
		x.ClockSkew = Duration(DefaultClockSkew)
	}
	if x.NonceTTL == 0 {
		// A timestamp may sit up to one skew window on either side of
		// now, so the nonce has to outlive two windows.
		x.NonceTTL = 2 * x.ClockSkew
	}

	if c.APIKeys.StoreFailurePolicy == "" {
		c.APIKeys.StoreFailurePolicy = FailClosed
	}
}

// NonceBackend resolves the effective nonce store backend.
func (c *NonceStoreConfig) NonceBackend() string {
	if c.Backend != NonceBackendAuto {
		return c.Backend
	}
	if c.Redis.Address != "" {
		return NonceBackendRedis
	}
	return NonceBackendMemory
}
