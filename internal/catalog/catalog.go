// Package catalog provides a SQLite-backed record of the ingested corpus.
// It tracks which documents are in the vector index, the content hash each
// was indexed from, and the embedding model the index was built with, so
// re-ingestion can skip unchanged documents and refuse to mix model
// versions. It also keeps a log of answered questions.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver
)

// Document is the catalog record of one indexed source document.
type Document struct {
	// ID is the document identifier used in the vector index payloads.
	ID string
	// Origin is the source path or URL.
	Origin string
	// Title is the human-readable title.
	Title string
	// ContentType is the declared type of the raw source.
	ContentType string
	// ContentHash is the SHA-256 of the normalized text that was indexed.
	ContentHash string
	// ChunkCount is the number of chunks stored for the document.
	ChunkCount int
	// IngestedAt is when the document was last indexed.
	IngestedAt time.Time
}

// IndexMeta describes how the vector index was built.
type IndexMeta struct {
	Model        string
	Dimensions   int
	ChunkSize    int
	ChunkOverlap int
}

// Query is one answered question.
type Query struct {
	Question  string
	Grounded  bool
	Reason    string
	Citations int
	Duration  time.Duration
	CreatedAt time.Time
}

const (
	metaModel        = "model"
	metaDimensions   = "dimensions"
	metaChunkSize    = "chunk_size"
	metaChunkOverlap = "chunk_overlap"
)

// Store is the corpus catalog backed by a local SQLite database.
// It is safe for concurrent use.
type Store struct {
	// db is the underlying database connection pool.
	db *sql.DB
}

// DefaultDBPath returns the default catalog location, ~/.groundqa/catalog.db,
// creating the directory if needed.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("catalog: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".groundqa")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("catalog: could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, "catalog.db"), nil
}

// Open opens (or creates) a Store at the given path and runs the schema
// migration. Use ":memory:" for an in-memory database in tests.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("catalog: create dir for %s: %w", path, err)
		}
	}
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("catalog: open %s: %w", path, err)
	}
	// A single connection serializes writers and keeps ":memory:" databases alive.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// migrate creates the schema if it does not already exist.
func (s *Store) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS documents (
    id            TEXT    PRIMARY KEY,
    origin        TEXT    NOT NULL,
    title         TEXT    NOT NULL,
    content_type  TEXT    NOT NULL,
    content_hash  TEXT    NOT NULL,
    chunk_count   INTEGER NOT NULL,
    ingested_at   INTEGER NOT NULL  -- Unix timestamp (seconds)
);
CREATE TABLE IF NOT EXISTS index_meta (
    key    TEXT PRIMARY KEY,
    value  TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS queries (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    question     TEXT    NOT NULL,
    grounded     INTEGER NOT NULL,
    reason       TEXT    NOT NULL,
    citations    INTEGER NOT NULL,
    duration_ms  INTEGER NOT NULL,
    created_at   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_queries_created ON queries (created_at);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("catalog: migrate: %w", err)
	}
	return nil
}

// Get returns the record for id. ok is false when the document is unknown.
func (s *Store) Get(ctx context.Context, id string) (doc Document, ok bool, err error) {
	const q = `SELECT id, origin, title, content_type, content_hash, chunk_count, ingested_at
FROM documents WHERE id = ?`
	row := s.db.QueryRowContext(ctx, q, id)
	doc, err = scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, false, nil
	}
	if err != nil {
		return Document{}, false, fmt.Errorf("catalog: get %s: %w", id, err)
	}
	return doc, true, nil
}

// Put inserts or replaces the record for doc.ID.
func (s *Store) Put(ctx context.Context, doc Document) error {
	const q = `INSERT INTO documents (id, origin, title, content_type, content_hash, chunk_count, ingested_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    origin = excluded.origin,
    title = excluded.title,
    content_type = excluded.content_type,
    content_hash = excluded.content_hash,
    chunk_count = excluded.chunk_count,
    ingested_at = excluded.ingested_at`
	if doc.IngestedAt.IsZero() {
		doc.IngestedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, q, doc.ID, doc.Origin, doc.Title, doc.ContentType,
		doc.ContentHash, doc.ChunkCount, doc.IngestedAt.Unix())
	if err != nil {
		return fmt.Errorf("catalog: put %s: %w", doc.ID, err)
	}
	return nil
}

// Delete removes the record for id. Unknown ids are ignored.
func (s *Store) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id); err != nil {
		return fmt.Errorf("catalog: delete %s: %w", id, err)
	}
	return nil
}

// List returns every document record ordered by origin.
func (s *Store) List(ctx context.Context) ([]Document, error) {
	const q = `SELECT id, origin, title, content_type, content_hash, chunk_count, ingested_at
FROM documents ORDER BY origin ASC, id ASC`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("catalog: list: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("catalog: list scan: %w", err)
		}
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: list rows: %w", err)
	}
	return docs, nil
}

// Reset removes every document record and the index metadata. The query
// log is kept.
func (s *Store) Reset(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM documents; DELETE FROM index_meta;`); err != nil {
		return fmt.Errorf("catalog: reset: %w", err)
	}
	return nil
}

// IndexMeta returns the recorded index metadata. ok is false when no index
// has been built yet.
func (s *Store) IndexMeta(ctx context.Context) (meta IndexMeta, ok bool, err error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM index_meta`)
	if err != nil {
		return IndexMeta{}, false, fmt.Errorf("catalog: index meta: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return IndexMeta{}, false, fmt.Errorf("catalog: index meta scan: %w", err)
		}
		ok = true
		switch k {
		case metaModel:
			meta.Model = v
		case metaDimensions:
			meta.Dimensions, _ = strconv.Atoi(v)
		case metaChunkSize:
			meta.ChunkSize, _ = strconv.Atoi(v)
		case metaChunkOverlap:
			meta.ChunkOverlap, _ = strconv.Atoi(v)
		}
	}
	if err := rows.Err(); err != nil {
		return IndexMeta{}, false, fmt.Errorf("catalog: index meta rows: %w", err)
	}
	return meta, ok, nil
}

// SetIndexMeta records how the index is being built.
func (s *Store) SetIndexMeta(ctx context.Context, meta IndexMeta) error {
	const q = `INSERT INTO index_meta (key, value) VALUES (?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value`
	kv := [][2]string{
		{metaModel, meta.Model},
		{metaDimensions, strconv.Itoa(meta.Dimensions)},
		{metaChunkSize, strconv.Itoa(meta.ChunkSize)},
		{metaChunkOverlap, strconv.Itoa(meta.ChunkOverlap)},
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("catalog: set index meta: %w", err)
	}
	for _, p := range kv {
		if _, err := tx.ExecContext(ctx, q, p[0], p[1]); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("catalog: set index meta %s: %w", p[0], err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("catalog: set index meta commit: %w", err)
	}
	return nil
}

// RecordQuery appends q to the query log.
func (s *Store) RecordQuery(ctx context.Context, q Query) error {
	const stmt = `INSERT INTO queries (question, grounded, reason, citations, duration_ms, created_at)
VALUES (?, ?, ?, ?, ?, ?)`
	if q.CreatedAt.IsZero() {
		q.CreatedAt = time.Now()
	}
	grounded := 0
	if q.Grounded {
		grounded = 1
	}
	_, err := s.db.ExecContext(ctx, stmt, q.Question, grounded, q.Reason, q.Citations,
		q.Duration.Milliseconds(), q.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("catalog: record query: %w", err)
	}
	return nil
}

// RecentQueries returns the most recent n queries, newest first.
func (s *Store) RecentQueries(ctx context.Context, n int) ([]Query, error) {
	const q = `SELECT question, grounded, reason, citations, duration_ms, created_at
FROM queries ORDER BY created_at DESC, id DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, q, n)
	if err != nil {
		return nil, fmt.Errorf("catalog: recent queries: %w", err)
	}
	defer rows.Close()

	var out []Query
	for rows.Next() {
		var (
			qr         Query
			grounded   int
			durationMS int64
			ts         int64
		)
		if err := rows.Scan(&qr.Question, &grounded, &qr.Reason, &qr.Citations, &durationMS, &ts); err != nil {
			return nil, fmt.Errorf("catalog: recent queries scan: %w", err)
		}
		qr.Grounded = grounded == 1
		qr.Duration = time.Duration(durationMS) * time.Millisecond
		qr.CreatedAt = time.Unix(ts, 0)
		out = append(out, qr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: recent queries rows: %w", err)
	}
	return out, nil
}

// Close releases the database connection pool.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("catalog: close: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(row scanner) (Document, error) {
	var d Document
	var ts int64
	if err := row.Scan(&d.ID, &d.Origin, &d.Title, &d.ContentType, &d.ContentHash, &d.ChunkCount, &ts); err != nil {
		return Document{}, err
	}
	d.IngestedAt = time.Unix(ts, 0)
	return d, nil
}
