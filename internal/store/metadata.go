package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/ziongh/miller/internal/errors"
)

// SQLiteMetadataStore implements MetadataStore on a single SQLite file
// in WAL mode with foreign keys enforced. Reads and writes share a
// single connection.
type SQLiteMetadataStore struct {
	db   *sql.DB
	path string
}

// Verify interface implementation at compile time.
var _ MetadataStore = (*SQLiteMetadataStore)(nil)

// OpenMetadata opens (or creates) the metadata store at path. An empty
// path opens an in-memory store for testing.
func OpenMetadata(path string) (*SQLiteMetadataStore, error) {
	dsn := ":memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, errors.Store(errors.StoreIo, err, "create store directory")
		}
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Store(errors.StoreIo, err, "open metadata store")
	}

	// Single connection: the writer is serialized and in-memory stores
	// keep one coherent database.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// modernc.org/sqlite ignores some DSN parameters, so pragmas go
	// through statements.
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = -65536",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, errors.Store(errors.StoreIo, err, "set pragma")
		}
	}

	s := &SQLiteMetadataStore{db: db, path: path}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteMetadataStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY
	);

	CREATE TABLE IF NOT EXISTS files (
		path          TEXT PRIMARY KEY,
		language      TEXT NOT NULL,
		content_hash  TEXT NOT NULL,
		size          INTEGER NOT NULL,
		last_modified INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS symbols (
		id          TEXT PRIMARY KEY,
		name        TEXT NOT NULL,
		kind        TEXT NOT NULL,
		language    TEXT NOT NULL,
		file_path   TEXT NOT NULL REFERENCES files(path) ON DELETE CASCADE,
		start_line  INTEGER NOT NULL,
		end_line    INTEGER NOT NULL,
		start_byte  INTEGER NOT NULL,
		end_byte    INTEGER NOT NULL,
		signature   TEXT,
		doc_comment TEXT,
		visibility  TEXT,
		parent_id   TEXT
	);

	CREATE TABLE IF NOT EXISTS identifiers (
		id                   TEXT PRIMARY KEY,
		name                 TEXT NOT NULL,
		kind                 TEXT NOT NULL,
		language             TEXT NOT NULL,
		file_path            TEXT NOT NULL REFERENCES files(path) ON DELETE CASCADE,
		start_line           INTEGER NOT NULL,
		start_column         INTEGER NOT NULL,
		end_line             INTEGER NOT NULL,
		end_column           INTEGER NOT NULL,
		start_byte           INTEGER NOT NULL,
		end_byte             INTEGER NOT NULL,
		containing_symbol_id TEXT,
		target_symbol_id     TEXT,
		confidence           REAL NOT NULL DEFAULT 1.0
	);

	CREATE TABLE IF NOT EXISTS relationships (
		id             TEXT PRIMARY KEY,
		from_symbol_id TEXT,
		to_symbol_id   TEXT,
		kind           TEXT NOT NULL,
		file_path      TEXT NOT NULL REFERENCES files(path) ON DELETE CASCADE,
		line_number    INTEGER NOT NULL,
		confidence     REAL NOT NULL DEFAULT 1.0
	);

	CREATE TABLE IF NOT EXISTS reachability (
		from_symbol_id TEXT NOT NULL,
		to_symbol_id   TEXT NOT NULL,
		min_distance   INTEGER NOT NULL,
		PRIMARY KEY (from_symbol_id, to_symbol_id)
	);

	CREATE TABLE IF NOT EXISTS state (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_symbols_name ON symbols(name);
	CREATE INDEX IF NOT EXISTS idx_symbols_file ON symbols(file_path);
	CREATE INDEX IF NOT EXISTS idx_symbols_parent ON symbols(parent_id);
	CREATE INDEX IF NOT EXISTS idx_identifiers_name ON identifiers(name);
	CREATE INDEX IF NOT EXISTS idx_identifiers_file ON identifiers(file_path);
	CREATE INDEX IF NOT EXISTS idx_relationships_from ON relationships(from_symbol_id);
	CREATE INDEX IF NOT EXISTS idx_relationships_to ON relationships(to_symbol_id);
	CREATE INDEX IF NOT EXISTS idx_reachability_from ON reachability(from_symbol_id);
	CREATE INDEX IF NOT EXISTS idx_reachability_to ON reachability(to_symbol_id);

	INSERT OR IGNORE INTO schema_version (version) VALUES (1);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return errors.Store(errors.StoreIo, err, "initialize schema")
	}
	return nil
}

// mapSQLErr classifies driver errors into StoreError kinds.
func mapSQLErr(err error, op string) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "FOREIGN KEY constraint failed"),
		strings.Contains(msg, "UNIQUE constraint failed"):
		return errors.Store(errors.StoreIntegrityViolation, err, "%s", op)
	case strings.Contains(msg, "database is locked"),
		strings.Contains(msg, "SQLITE_BUSY"):
		return errors.Store(errors.StoreBusy, err, "%s", op)
	case strings.Contains(msg, "malformed"),
		strings.Contains(msg, "corrupt"):
		return errors.Store(errors.StoreCorrupt, err, "%s", op)
	default:
		return errors.Store(errors.StoreIo, err, "%s", op)
	}
}

// withTx runs fn in a transaction, retrying the whole unit on Busy.
func (s *SQLiteMetadataStore) withTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	return errors.Retry(ctx, errors.DefaultRetryConfig(), func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return mapSQLErr(err, op)
		}
		defer func() { _ = tx.Rollback() }()

		if err := fn(tx); err != nil {
			if _, ok := err.(*errors.Error); ok {
				return err
			}
			return mapSQLErr(err, op)
		}
		if err := tx.Commit(); err != nil {
			return mapSQLErr(err, op)
		}
		return nil
	})
}

// AddFiles upserts file rows by path.
func (s *SQLiteMetadataStore) AddFiles(ctx context.Context, files []*File) error {
	if len(files) == 0 {
		return nil
	}
	return s.withTx(ctx, "add files", func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO files (path, language, content_hash, size, last_modified)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(path) DO UPDATE SET
				language = excluded.language,
				content_hash = excluded.content_hash,
				size = excluded.size,
				last_modified = excluded.last_modified`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, f := range files {
			if _, err := stmt.ExecContext(ctx, f.Path, f.Language, f.ContentHash, f.Size, f.LastModified); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetFile returns the file row for path, or a NotFound error.
func (s *SQLiteMetadataStore) GetFile(ctx context.Context, path string) (*File, error) {
	f := &File{}
	err := s.db.QueryRowContext(ctx, `
		SELECT path, language, content_hash, size, last_modified
		FROM files WHERE path = ?`, path).
		Scan(&f.Path, &f.Language, &f.ContentHash, &f.Size, &f.LastModified)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("file %s not indexed", path)
	}
	if err != nil {
		return nil, mapSQLErr(err, "get file")
	}
	return f, nil
}

// ListFiles returns all file rows ordered by path.
func (s *SQLiteMetadataStore) ListFiles(ctx context.Context) ([]*File, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT path, language, content_hash, size, last_modified
		FROM files ORDER BY path`)
	if err != nil {
		return nil, mapSQLErr(err, "list files")
	}
	defer rows.Close()

	var files []*File
	for rows.Next() {
		f := &File{}
		if err := rows.Scan(&f.Path, &f.Language, &f.ContentHash, &f.Size, &f.LastModified); err != nil {
			return nil, mapSQLErr(err, "scan file")
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

// DeleteFiles removes file rows; symbols, identifiers, and relationships
// cascade in the same transaction.
func (s *SQLiteMetadataStore) DeleteFiles(ctx context.Context, paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	return s.withTx(ctx, "delete files", func(tx *sql.Tx) error {
		placeholders := strings.Repeat("?,", len(paths))
		placeholders = placeholders[:len(placeholders)-1]
		args := make([]any, len(paths))
		for i, p := range paths {
			args[i] = p
		}
		_, err := tx.ExecContext(ctx,
			fmt.Sprintf("DELETE FROM files WHERE path IN (%s)", placeholders), args...)
		return err
	})
}

// InsertSymbols bulk-inserts a columnar symbol batch in one transaction.
func (s *SQLiteMetadataStore) InsertSymbols(ctx context.Context, batch *SymbolBatch) error {
	if batch == nil || batch.Len() == 0 {
		return nil
	}
	return s.withTx(ctx, "insert symbols", func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT OR REPLACE INTO symbols
			(id, name, kind, language, file_path, start_line, end_line,
			 start_byte, end_byte, signature, doc_comment, visibility, parent_id)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for i := 0; i < batch.Len(); i++ {
			if _, err := stmt.ExecContext(ctx,
				batch.ID[i], batch.Name[i], string(batch.Kind[i]), batch.Language[i],
				batch.FilePath[i], batch.StartLine[i], batch.EndLine[i],
				batch.StartByte[i], batch.EndByte[i],
				nullable(batch.Signature[i]), nullable(batch.DocComment[i]),
				nullable(batch.Visibility[i]), nullable(batch.ParentID[i])); err != nil {
				return err
			}
		}
		return nil
	})
}

// InsertIdentifiers bulk-inserts a columnar identifier batch.
func (s *SQLiteMetadataStore) InsertIdentifiers(ctx context.Context, batch *IdentifierBatch) error {
	if batch == nil || batch.Len() == 0 {
		return nil
	}
	return s.withTx(ctx, "insert identifiers", func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT OR REPLACE INTO identifiers
			(id, name, kind, language, file_path, start_line, start_column,
			 end_line, end_column, start_byte, end_byte,
			 containing_symbol_id, target_symbol_id, confidence)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for i := 0; i < batch.Len(); i++ {
			if _, err := stmt.ExecContext(ctx,
				batch.ID[i], batch.Name[i], string(batch.Kind[i]), batch.Language[i],
				batch.FilePath[i], batch.StartLine[i], batch.StartColumn[i],
				batch.EndLine[i], batch.EndColumn[i], batch.StartByte[i], batch.EndByte[i],
				nullable(batch.ContainingSymbolID[i]), nullable(batch.TargetSymbolID[i]),
				batch.Confidence[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

// InsertRelationships bulk-inserts a columnar relationship batch.
func (s *SQLiteMetadataStore) InsertRelationships(ctx context.Context, batch *RelationshipBatch) error {
	if batch == nil || batch.Len() == 0 {
		return nil
	}
	return s.withTx(ctx, "insert relationships", func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT OR REPLACE INTO relationships
			(id, from_symbol_id, to_symbol_id, kind, file_path, line_number, confidence)
			VALUES (?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for i := 0; i < batch.Len(); i++ {
			if _, err := stmt.ExecContext(ctx,
				batch.ID[i], nullable(batch.FromSymbolID[i]), nullable(batch.ToSymbolID[i]),
				string(batch.Kind[i]), batch.FilePath[i], batch.LineNumber[i],
				batch.Confidence[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetState reads a state value; missing keys return "".
func (s *SQLiteMetadataStore) GetState(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM state WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", mapSQLErr(err, "get state")
	}
	return value, nil
}

// SetState writes a state value.
func (s *SQLiteMetadataStore) SetState(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO state (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return mapSQLErr(err, "set state")
}

// Close checkpoints the WAL and closes the database.
func (s *SQLiteMetadataStore) Close() error {
	if s.db == nil {
		return nil
	}
	_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	err := s.db.Close()
	s.db = nil
	return err
}

// nullable maps empty strings to NULL so optional columns stay NULL.
func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

// scanNullable maps NULL back to "".
func scanNullable(v sql.NullString) string {
	if v.Valid {
		return v.String
	}
	return ""
}
