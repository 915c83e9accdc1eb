package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/troupe-dev/troupe/core"
	"github.com/troupe-dev/troupe/logging"
)

// SQLiteStoreOptions configure a SQLiteStore.
type SQLiteStoreOptions struct {
	// Logger receives store activity. Defaults to a no-op logger.
	Logger logging.Logger
}

// SQLiteStore persists snapshots in a snapshots table, one framed blob per
// session. sql.DB's connection pooling makes it safe for concurrent use.
// The group name and mode are stored alongside the blob so operators can
// inspect sessions with plain SQL without decoding anything.
type SQLiteStore struct {
	db     *sql.DB
	logger logging.Logger
}

// NewSQLiteStore opens or creates a SQLite database at path and ensures
// the schema exists. Parent directories are created as needed. The
// ":memory:" path yields a private in-process database.
func NewSQLiteStore(path string, optFns ...func(o *SQLiteStoreOptions)) (*SQLiteStore, error) {
	opts := SQLiteStoreOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}

	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create database dir %s: %w", dir, err)
			}
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open session database %s: %w", path, err)
	}

	s := &SQLiteStore{db: db, logger: logging.OrNoOp(opts.Logger)}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize session schema: %w", err)
	}
	return s, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS snapshots (
			id         TEXT PRIMARY KEY,
			group_name TEXT NOT NULL,
			mode       TEXT NOT NULL,
			data       BLOB NOT NULL,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Save encodes the snapshot and upserts it under id.
func (s *SQLiteStore) Save(ctx context.Context, id string, snap *core.Snapshot) error {
	if err := requireID(id); err != nil {
		return err
	}
	blob, err := Encode(snap)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO snapshots (id, group_name, mode, data, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			group_name = excluded.group_name,
			mode       = excluded.mode,
			data       = excluded.data,
			updated_at = excluded.updated_at`,
		id, snap.Group, snap.Mode, blob, now, now,
	)
	if err != nil {
		return fmt.Errorf("save snapshot %s: %w", id, err)
	}

	s.logger.Debug("session.save", "store", "sqlite", "id", id, "bytes", len(blob))
	return nil
}

// Load reads and decodes the snapshot saved under id.
func (s *SQLiteStore) Load(ctx context.Context, id string) (*core.Snapshot, error) {
	if err := requireID(id); err != nil {
		return nil, err
	}
	var blob []byte
	err := s.db.QueryRowContext(ctx, "SELECT data FROM snapshots WHERE id = ?", id).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot %s: %w", id, err)
	}
	snap, err := Decode(blob)
	if err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", id, err)
	}
	return snap, nil
}

// Delete removes the snapshot saved under id.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	if err := requireID(id); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, "DELETE FROM snapshots WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete snapshot %s: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete snapshot %s: %w", id, err)
	}
	if affected == 0 {
		return core.ErrSessionNotFound
	}
	s.logger.Debug("session.delete", "store", "sqlite", "id", id)
	return nil
}

// List returns all saved ids in lexical order.
func (s *SQLiteStore) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id FROM snapshots ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("list sessions: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return ids, nil
}
