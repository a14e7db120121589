// Package sqlite provides a SQLite-backed state.Store for save blobs and
// settings.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/goliatone/go-features/pkg/state"
)

//go:embed schema.sql
var schemaSQL string

// DB is an open SQLite database shared by typed stores.
type DB struct {
	sqlDB *sql.DB
	now   func() time.Time
}

// Open opens path and applies the schema. ":memory:" opens a private
// in-memory database.
func Open(path string) (*DB, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("sqlite: storage path is required")
	}

	dsn := path
	if path != ":memory:" {
		dsn = filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	}
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open db: %w", err)
	}
	if path == ":memory:" {
		sqlDB.SetMaxOpenConns(1)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("sqlite: ping db: %w", err)
	}
	if _, err := sqlDB.Exec(schemaSQL); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("sqlite: apply schema: %w", err)
	}
	return &DB{sqlDB: sqlDB, now: time.Now}, nil
}

// Close releases the underlying connection.
func (db *DB) Close() error {
	if db == nil || db.sqlDB == nil {
		return nil
	}
	return db.sqlDB.Close()
}

// Store is a state.Store persisting T as JSON.
type Store[T any] struct {
	db *DB
}

// NewStore returns a typed store over db.
func NewStore[T any](db *DB) *Store[T] {
	return &Store[T]{db: db}
}

var _ state.Store[string] = (*Store[string])(nil)

func (s *Store[T]) ready() error {
	if s == nil || s.db == nil || s.db.sqlDB == nil {
		return fmt.Errorf("sqlite: storage is not configured")
	}
	return nil
}

func (s *Store[T]) Load(ctx context.Context, ref state.Ref) (T, state.Meta, bool, error) {
	var zero T
	if err := s.ready(); err != nil {
		return zero, state.Meta{}, false, err
	}
	if _, err := ref.Identifier(); err != nil {
		return zero, state.Meta{}, false, err
	}

	row := s.db.sqlDB.QueryRowContext(ctx,
		`SELECT payload_json, snapshot_id, etag, extra_json, updated_at
		 FROM documents
		 WHERE domain = ? AND doc_key = ?`,
		ref.Domain, ref.Key,
	)
	var payload, extra []byte
	var meta state.Meta
	var updatedAt int64
	if err := row.Scan(&payload, &meta.SnapshotID, &meta.ETag, &extra, &updatedAt); err != nil {
		if err == sql.ErrNoRows {
			return zero, state.Meta{}, false, nil
		}
		return zero, state.Meta{}, false, fmt.Errorf("sqlite: load %s/%s: %w", ref.Domain, ref.Key, err)
	}

	var snapshot T
	if err := json.Unmarshal(payload, &snapshot); err != nil {
		return zero, state.Meta{}, false, fmt.Errorf("sqlite: decode %s/%s: %w", ref.Domain, ref.Key, err)
	}
	if len(extra) > 0 {
		if err := json.Unmarshal(extra, &meta.Extra); err != nil {
			return zero, state.Meta{}, false, fmt.Errorf("sqlite: decode meta %s/%s: %w", ref.Domain, ref.Key, err)
		}
	}
	meta.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return snapshot, meta, true, nil
}

func (s *Store[T]) Save(ctx context.Context, ref state.Ref, snapshot T, meta state.Meta) (state.Meta, error) {
	if err := s.ready(); err != nil {
		return state.Meta{}, err
	}
	if _, err := ref.Identifier(); err != nil {
		return state.Meta{}, err
	}
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return state.Meta{}, fmt.Errorf("sqlite: encode %s/%s: %w", ref.Domain, ref.Key, err)
	}
	var extra []byte
	if meta.Extra != nil {
		if extra, err = json.Marshal(meta.Extra); err != nil {
			return state.Meta{}, fmt.Errorf("sqlite: encode meta %s/%s: %w", ref.Domain, ref.Key, err)
		}
	}

	saved := state.Meta{
		SnapshotID: uuid.NewString(),
		ETag:       uuid.NewString(),
		UpdatedAt:  s.db.now().UTC().Truncate(time.Millisecond),
		Extra:      meta.Extra,
	}

	tx, err := s.db.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return state.Meta{}, fmt.Errorf("sqlite: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if meta.ETag != "" {
		var current string
		err := tx.QueryRowContext(ctx,
			`SELECT etag FROM documents WHERE domain = ? AND doc_key = ?`,
			ref.Domain, ref.Key,
		).Scan(&current)
		if err != nil && err != sql.ErrNoRows {
			return state.Meta{}, fmt.Errorf("sqlite: check etag %s/%s: %w", ref.Domain, ref.Key, err)
		}
		if err == nil && current != meta.ETag {
			return state.Meta{}, fmt.Errorf("%w: expected %q, got %q", state.ErrETagMismatch, meta.ETag, current)
		}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO documents (domain, doc_key, payload_json, snapshot_id, etag, extra_json, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(domain, doc_key) DO UPDATE SET
		    payload_json = excluded.payload_json,
		    snapshot_id = excluded.snapshot_id,
		    etag = excluded.etag,
		    extra_json = excluded.extra_json,
		    updated_at = excluded.updated_at`,
		ref.Domain, ref.Key, payload, saved.SnapshotID, saved.ETag, extra, saved.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		return state.Meta{}, fmt.Errorf("sqlite: save %s/%s: %w", ref.Domain, ref.Key, err)
	}
	if err := tx.Commit(); err != nil {
		return state.Meta{}, fmt.Errorf("sqlite: commit: %w", err)
	}
	return saved, nil
}

func (s *Store[T]) Delete(ctx context.Context, ref state.Ref) error {
	if err := s.ready(); err != nil {
		return err
	}
	if _, err := ref.Identifier(); err != nil {
		return err
	}
	if _, err := s.db.sqlDB.ExecContext(ctx,
		`DELETE FROM documents WHERE domain = ? AND doc_key = ?`,
		ref.Domain, ref.Key,
	); err != nil {
		return fmt.Errorf("sqlite: delete %s/%s: %w", ref.Domain, ref.Key, err)
	}
	return nil
}

func (s *Store[T]) List(ctx context.Context, domain string) ([]state.Ref, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	rows, err := s.db.sqlDB.QueryContext(ctx,
		`SELECT doc_key FROM documents WHERE domain = ? ORDER BY doc_key`,
		domain,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list %s: %w", domain, err)
	}
	defer rows.Close()

	var refs []state.Ref
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("sqlite: scan %s: %w", domain, err)
		}
		refs = append(refs, state.Ref{Domain: domain, Key: key})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: list %s: %w", domain, err)
	}
	return refs, nil
}
