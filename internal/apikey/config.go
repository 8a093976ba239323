package apikey

import (
	"time"

	"github.com/vyrodovalexey/signgate/internal/config"
)

// SimpleConfig configures the allow-list scheme.
type SimpleConfig struct {
	Source  string
	KeyName string
}

// ComplexConfig configures the signed-request scheme.
type ComplexConfig struct {
	Source        string
	KeyName       string
	TimestampName string
	NonceName     string
	SignatureName string
	ExtraFields   []string
	Algorithm     string
	ClockSkew     time.Duration
	NonceTTL      time.Duration

	// FailOpen admits requests whose nonce cannot be recorded because the
	// store is unreachable. Off unless explicitly configured.
	FailOpen bool
}

// DefaultSimpleConfig returns the default allow-list settings.
func DefaultSimpleConfig() SimpleConfig {
	return SimpleConfig{
		Source:  SourceHeader,
		KeyName: config.DefaultSimpleKeyName,
	}
}

// DefaultComplexConfig returns the default signed-request settings.
func DefaultComplexConfig() ComplexConfig {
	return ComplexConfig{
		Source:        SourceHeader,
		KeyName:       config.DefaultComplexKeyName,
		TimestampName: config.DefaultTimestampName,
		NonceName:     config.DefaultNonceName,
		SignatureName: config.DefaultSignatureName,
		Algorithm:     AlgHMACSHA256,
		ClockSkew:     config.DefaultClockSkew,
		NonceTTL:      2 * config.DefaultClockSkew,
	}
}

// SimpleConfigFrom converts the file configuration.
func SimpleConfigFrom(cfg config.APIKeysConfig) SimpleConfig {
	out := DefaultSimpleConfig()
	if cfg.Simple.Source != "" {
		out.Source = cfg.Simple.Source
	}
	if cfg.Simple.KeyName != "" {
		out.KeyName = cfg.Simple.KeyName
	}
	return out
}

// ComplexConfigFrom converts the file configuration.
func ComplexConfigFrom(cfg config.APIKeysConfig) ComplexConfig {
	out := DefaultComplexConfig()
	c := cfg.Complex

	setString(&out.Source, c.Source)
	setString(&out.KeyName, c.KeyName)
	setString(&out.TimestampName, c.TimestampName)
	setString(&out.NonceName, c.NonceName)
	setString(&out.SignatureName, c.SignatureName)
	setString(&out.Algorithm, c.Algorithm)

	if len(c.ExtraFields) > 0 {
		out.ExtraFields = append([]string(nil), c.ExtraFields...)
	}
	if c.ClockSkew > 0 {
		out.ClockSkew = c.ClockSkew.Duration()
		out.NonceTTL = 2 * out.ClockSkew
	}
	if c.NonceTTL > 0 {
		out.NonceTTL = c.NonceTTL.Duration()
	}
	out.FailOpen = cfg.StoreFailurePolicy == config.FailOpen
	return out
}

// RegisterKeys adds every configured key to the registry.
func RegisterKeys(r *Registry, keys []config.KeyRecord) error {
	for _, k := range keys {
		scheme, err := ParseScheme(k.Scheme)
		if err != nil {
			return err
		}
		if err := r.AddKey(scheme, k.ID, k.Secret); err != nil {
			return err
		}
	}
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
