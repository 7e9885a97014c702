// # internal/data/records/sqlite.go
package records

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "modernc.org/sqlite"
)

const driverName = "sqlite"

const (
	schemaVersion = 1
	kindModule    = "module"
	kindChunk     = "chunk"
)

var migrations = []struct {
	version int
	sql     string
}{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS record_ids (
  kind TEXT NOT NULL,
  key TEXT NOT NULL,
  id INTEGER NOT NULL,
  PRIMARY KEY (kind, key)
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_record_ids_kind_id ON record_ids(kind, id);
CREATE TABLE IF NOT EXISTS record_meta (
  name TEXT PRIMARY KEY,
  value INTEGER NOT NULL
);
`,
	},
}

// SQLiteStore keeps records in a SQLite database, replacing the whole set in
// one transaction per save.
type SQLiteStore struct {
	path string
	db   *sql.DB
	mu   sync.Mutex
}

func OpenSQLite(path string) (*SQLiteStore, error) {
	cleanPath := strings.TrimSpace(path)
	if cleanPath == "" {
		return nil, fmt.Errorf("records path must not be empty")
	}
	if info, err := os.Stat(cleanPath); err == nil && info.IsDir() {
		return nil, fmt.Errorf("records path %q is a directory, expected file", cleanPath)
	}

	dir := filepath.Dir(cleanPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create records directory %q: %w", dir, err)
		}
	}

	// busy_timeout + WAL keep watch-mode saves from failing on a held lock.
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", cleanPath)
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite records %q: %w", cleanPath, err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite records %q: %w", cleanPath, err)
	}
	if err := ensureSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize sqlite schema %q: %w", cleanPath, err)
	}
	return &SQLiteStore{path: cleanPath, db: db}, nil
}

func ensureSchema(db *sql.DB) error {
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS schema_migrations (
  version INTEGER PRIMARY KEY,
  applied_at_utc TEXT NOT NULL DEFAULT (CURRENT_TIMESTAMP)
);
`); err != nil {
		return fmt.Errorf("create schema_migrations table: %w", err)
	}

	var current int
	if err := db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current); err != nil {
		return fmt.Errorf("read schema_migrations version: %w", err)
	}
	if current > schemaVersion {
		return fmt.Errorf("schema version %d is newer than supported version %d", current, schemaVersion)
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.version, err)
		}
		if _, err := tx.Exec(m.sql); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply migration %d: %w", m.version, err)
		}
		if _, err := tx.Exec(`INSERT INTO schema_migrations(version) VALUES (?)`, m.version); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.version, err)
		}
	}
	return nil
}

func (s *SQLiteStore) Load(ctx context.Context) (*Records, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := New()
	rows, err := s.db.QueryContext(ctx, `SELECT kind, key, id FROM record_ids`)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var kind, key string
		var id int
		if err := rows.Scan(&kind, &key, &id); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		switch kind {
		case kindModule:
			r.Modules[key] = id
		case kindChunk:
			r.Chunks[key] = id
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	// Release the single connection before the next query.
	_ = rows.Close()

	meta, err := s.db.QueryContext(ctx, `SELECT name, value FROM record_meta`)
	if err != nil {
		return nil, fmt.Errorf("query record meta: %w", err)
	}
	defer meta.Close()
	for meta.Next() {
		var name string
		var value int
		if err := meta.Scan(&name, &value); err != nil {
			return nil, fmt.Errorf("scan record meta: %w", err)
		}
		switch name {
		case "next_module_id":
			r.NextModuleID = value
		case "next_chunk_id":
			r.NextChunkID = value
		}
	}
	if err := meta.Err(); err != nil {
		return nil, fmt.Errorf("iterate record meta: %w", err)
	}

	r.normalize()
	return r, nil
}

func (s *SQLiteStore) Save(ctx context.Context, r *Records) error {
	if err := r.Validate(); err != nil {
		return err
	}
	r = r.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin records save: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM record_ids`); err != nil {
		return fmt.Errorf("clear records: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO record_ids(kind, key, id) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare record insert: %w", err)
	}
	defer stmt.Close()

	for key, id := range r.Modules {
		if _, err := stmt.ExecContext(ctx, kindModule, key, id); err != nil {
			return fmt.Errorf("insert module record %q: %w", key, err)
		}
	}
	for key, id := range r.Chunks {
		if _, err := stmt.ExecContext(ctx, kindChunk, key, id); err != nil {
			return fmt.Errorf("insert chunk record %q: %w", key, err)
		}
	}

	for name, value := range map[string]int{
		"next_module_id": r.NextModuleID,
		"next_chunk_id":  r.NextChunkID,
	} {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO record_meta(name, value) VALUES (?, ?) ON CONFLICT(name) DO UPDATE SET value = excluded.value`,
			name, value); err != nil {
			return fmt.Errorf("write record meta %s: %w", name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit records save: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
