package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Format identifies a configuration file encoding.
type Format string

// Supported formats.
const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// Environment variables consulted by the binary.
const (
	EnvConfigPath = "SIGNGATE_CONFIG_PATH"
	EnvLogLevel   = "SIGNGATE_LOG_LEVEL"
)

// FormatFromPath infers the format from a file extension. Anything other
// than .toml is treated as YAML.
func FormatFromPath(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return FormatTOML
	}
	return FormatYAML
}

// LoadConfig loads, defaults and validates configuration from a file path.
func LoadConfig(path string) (*Config, error) {
	data, err := readFile(path)
	if err != nil {
		return nil, err
	}

	cfg, err := parseConfig(data, FormatFromPath(path))
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfigFromReader loads, defaults and validates configuration from r.
func LoadConfigFromReader(r io.Reader, format Format) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg, err := parseConfig(data, format)
	if err != nil {
		return nil, err
	}

	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// keysFile is the on-disk shape of a standalone keys file.
type keysFile struct {
	Keys []KeyRecord `yaml:"keys" toml:"keys"`
}

// LoadKeysFile reads a keys file holding a top-level "keys" list.
// Records are validated but not otherwise interpreted.
func LoadKeysFile(path string) ([]KeyRecord, error) {
	data, err := readFile(path)
	if err != nil {
		return nil, err
	}

	var kf keysFile
	if err := decode(substituteEnvVars(data), FormatFromPath(path), &kf); err != nil {
		return nil, fmt.Errorf("failed to parse keys file %s: %w", path, err)
	}

	v := NewValidator()
	v.validateKeys(kf.Keys, "keys")
	if v.errors.HasErrors() {
		return nil, v.errors
	}
	return kf.Keys, nil
}

func readFile(path string) ([]byte, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path %s: %w", path, err)
	}

	data, err := os.ReadFile(absPath) //nolint:gosec // operator-supplied path
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", path, err)
	}
	return data, nil
}

func parseConfig(data []byte, format Format) (*Config, error) {
	var cfg Config
	if err := decode(substituteEnvVars(data), format, &cfg); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	return &cfg, nil
}

func decode(data []byte, format Format, out interface{}) error {
	switch format {
	case FormatTOML:
		if _, err := toml.NewDecoder(bytes.NewReader(data)).Decode(out); err != nil {
			return fmt.Errorf("failed to parse TOML: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, out); err != nil {
			return fmt.Errorf("failed to parse YAML: %w", err)
		}
	}
	return nil
}

// substituteEnvVars replaces ${VAR} and ${VAR:-default} patterns with
// environment variable values. "$$" escapes a literal dollar sign.
func substituteEnvVars(data []byte) []byte {
	content := strings.ReplaceAll(string(data), "$$", "\x00ESCAPED_DOLLAR\x00")

	result := envVarPattern.ReplaceAllStringFunc(content, func(match string) string {
		submatches := envVarPattern.FindStringSubmatch(match)
		if len(submatches) < 2 {
			return match
		}

		if value, exists := os.LookupEnv(submatches[1]); exists {
			return value
		}
		if len(submatches) >= 3 {
			return submatches[2]
		}
		return ""
	})

	return []byte(strings.ReplaceAll(result, "\x00ESCAPED_DOLLAR\x00", "$"))
}
