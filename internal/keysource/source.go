package keysource

import (
	"context"
	"errors"

	"github.com/vyrodovalexey/signgate/internal/config"
)

// Source names.
const (
	SourceStatic = "static"
	SourceFile   = "file"
	SourceVault  = "vault"
	SourceSQL    = "sql"
)

// ErrSourceUnavailable wraps failures to reach a source.
var ErrSourceUnavailable = errors.New("key source unavailable")

// Source provides key records.
type Source interface {
	// Load returns every record the source currently holds.
	Load(ctx context.Context) ([]config.KeyRecord, error)

	// Name identifies the source in logs and metrics.
	Name() string
}

// StaticSource serves a fixed set of records.
type StaticSource []config.KeyRecord

// Load implements Source.
func (s StaticSource) Load(context.Context) ([]config.KeyRecord, error) {
	out := make([]config.KeyRecord, len(s))
	copy(out, s)
	return out, nil
}

// Name implements Source.
func (s StaticSource) Name() string {
	return SourceStatic
}

// FileSource reads a keys file on every load.
type FileSource struct {
	path string
}

// NewFileSource creates a source over a YAML or TOML keys file.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

// Load implements Source.
func (s *FileSource) Load(context.Context) ([]config.KeyRecord, error) {
	return config.LoadKeysFile(s.path)
}

// Name implements Source.
func (s *FileSource) Name() string {
	return SourceFile
}

// Path returns the keys file path.
func (s *FileSource) Path() string {
	return s.path
}
