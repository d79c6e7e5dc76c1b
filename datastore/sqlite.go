package datastore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MegaGrindStone/go-amcp"

	// Registers the "sqlite" driver.
	_ "modernc.org/sqlite"
)

// SQLite stores datasets in one table of a SQLite database opened in WAL mode, so several servers
// may share it. Names are case-insensitive.
type SQLite struct {
	db     *sql.DB
	logger *slog.Logger
}

// SQLiteOption represents the options for the SQLite store.
type SQLiteOption func(*SQLite)

// OpenSQLite opens, or creates, the database at path and initializes the schema.
func OpenSQLite(path string, options ...SQLiteOption) (*SQLite, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(60000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	s := &SQLite{
		db:     db,
		logger: slog.Default(),
	}
	for _, opt := range options {
		opt(s)
	}

	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

// WithSQLiteLogger sets the logger for the store.
func WithSQLiteLogger(logger *slog.Logger) SQLiteOption {
	return func(s *SQLite) {
		s.logger = logger.With(
			slog.String("package", "go-amcp"),
			slog.String("component", "datastore"),
		)
	}
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Store implements amcp.DataStore.
func (s *SQLite) Store(ctx context.Context, name, data string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	err := retryOp(ctx, defaultRetryConfig, func() error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO datasets (name, data, updated_at) VALUES (?, ?, ?)
			 ON CONFLICT(name) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
			name, data, now,
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to store dataset %q: %w", name, err)
	}
	s.logger.Debug("stored dataset", slog.String("name", name), slog.Int("size", len(data)))
	return nil
}

// Retrieve implements amcp.DataStore.
func (s *SQLite) Retrieve(ctx context.Context, name string) (string, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM datasets WHERE name = ?`, name).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: %s", amcp.ErrDataNotFound, name)
	}
	if err != nil {
		return "", fmt.Errorf("failed to retrieve dataset %q: %w", name, err)
	}
	return data, nil
}

// List implements amcp.DataStore.
func (s *SQLite) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM datasets ORDER BY name COLLATE NOCASE`)
	if err != nil {
		return nil, fmt.Errorf("failed to list datasets: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan dataset name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list datasets: %w", err)
	}
	return names, nil
}

// Remove implements amcp.DataStore.
func (s *SQLite) Remove(ctx context.Context, name string) error {
	var affected int64
	err := retryOp(ctx, defaultRetryConfig, func() error {
		res, err := s.db.ExecContext(ctx, `DELETE FROM datasets WHERE name = ?`, name)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to remove dataset %q: %w", name, err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", amcp.ErrDataNotFound, name)
	}
	return nil
}

func (s *SQLite) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS datasets (
		name       TEXT PRIMARY KEY COLLATE NOCASE,
		data       TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}
