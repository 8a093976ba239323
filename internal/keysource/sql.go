package keysource

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/vyrodovalexey/signgate/internal/config"
)

// statusEnabled marks an active access key row.
const statusEnabled = 1

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SQLSource reads active keys from an SQLite access-key table with the
// columns access_key_id, access_key_secret, scheme and status.
type SQLSource struct {
	db    *sql.DB
	query string
}

// NewSQLSource opens the database at dsn.
func NewSQLSource(cfg config.SQLSourceConfig) (*SQLSource, error) {
	table := cfg.Table
	if table == "" {
		table = config.DefaultSQLTable
	}
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}

	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open key database: %w", err)
	}

	return &SQLSource{
		db: db,
		query: fmt.Sprintf(
			"SELECT access_key_id, access_key_secret, scheme FROM %s WHERE status = ? ORDER BY access_key_id",
			table,
		),
	}, nil
}

// Load implements Source.
func (s *SQLSource) Load(ctx context.Context) ([]config.KeyRecord, error) {
	rows, err := s.db.QueryContext(ctx, s.query, statusEnabled)
	if err != nil {
		return nil, fmt.Errorf("%w: sql: %w", ErrSourceUnavailable, err)
	}
	defer rows.Close()

	var out []config.KeyRecord
	for rows.Next() {
		var (
			rec    config.KeyRecord
			secret sql.NullString
		)
		if err := rows.Scan(&rec.ID, &secret, &rec.Scheme); err != nil {
			return nil, fmt.Errorf("failed to scan access key: %w", err)
		}
		rec.Secret = secret.String
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: sql: %w", ErrSourceUnavailable, err)
	}
	return out, nil
}

// Name implements Source.
func (s *SQLSource) Name() string {
	return SourceSQL
}

// DB returns the database handle; it backs the readiness check.
func (s *SQLSource) DB() *sql.DB {
	return s.db
}

// Close closes the database.
func (s *SQLSource) Close() error {
	return s.db.Close()
}
