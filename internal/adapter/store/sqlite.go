package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"hydra/internal/domain"
)

// SQLiteStore implements domain.SystemStore on a SQLite file. The system
// configuration is stored as a JSON document.
type SQLiteStore struct {
	db *sql.DB
}

var _ domain.SystemStore = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) the database at dbPath and runs the
// schema migration.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open system db: %w", err)
	}
	// WAL mode for better concurrent reads.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate system db: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS systems (
			id         TEXT PRIMARY KEY,
			config     TEXT NOT NULL,
			created_at TEXT NOT NULL
		)
	`)
	return err
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Put(ctx context.Context, sys *domain.System) error {
	cfgJSON, err := json.Marshal(sys.Config)
	if err != nil {
		return fmt.Errorf("marshal system config: %w", err)
	}
	if sys.CreatedAt.IsZero() {
		sys.CreatedAt = time.Now().UTC()
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO systems (id, config, created_at) VALUES (?, ?, ?)",
		sys.ID, string(cfgJSON), sys.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return domain.NewDomainError("SQLiteStore.Put", domain.ErrDuplicate, sys.ID)
	}
	return err
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*domain.System, error) {
	var cfgStr, createdStr string
	err := s.db.QueryRowContext(ctx,
		"SELECT config, created_at FROM systems WHERE id = ?", id,
	).Scan(&cfgStr, &createdStr)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewDomainError("SQLiteStore.Get", domain.ErrSystemNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	sys := &domain.System{ID: id}
	if err := json.Unmarshal([]byte(cfgStr), &sys.Config); err != nil {
		return nil, fmt.Errorf("unmarshal system config: %w", err)
	}
	// Kinds are derived, not trusted from storage.
	sys.Config.Normalize()
	sys.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
	return sys, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM systems WHERE id = ?", id)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id FROM systems ORDER BY created_at, id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
