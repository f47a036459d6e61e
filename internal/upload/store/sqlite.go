// Package store provides SessionStore implementations.
package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/ro11032005/mediaingest/internal/upload"
)

// SQLiteStore is the default SessionStore: an embedded, single-file
// database. Sessions are pinned to the node that created them, so an
// embedded database is a better fit than a client-server RDBMS: there
// is never more than one writer process to coordinate with.
type SQLiteStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id              TEXT PRIMARY KEY,
	owner           TEXT NOT NULL,
	filename        TEXT NOT NULL,
	media_type      TEXT NOT NULL,
	total_size      INTEGER NOT NULL,
	digest          TEXT NOT NULL,
	chunk_size      INTEGER NOT NULL,
	total_chunks    INTEGER NOT NULL,
	uploaded_chunks INTEGER NOT NULL,
	state           INTEGER NOT NULL,
	stored_path     TEXT NOT NULL DEFAULT '',
	error           TEXT NOT NULL DEFAULT '',
	created_at      TEXT NOT NULL,
	last_chunk_at   TEXT NOT NULL,
	completed_at    TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_sessions_state ON sessions(state);
`

// Open opens (creating if necessary) a SQLite-backed SessionStore at path.
func Open(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_journal=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}
	db.SetMaxOpenConns(1) // sqlite3 driver is not safe for concurrent writers

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) Create(sess *upload.Session) error {
	_, err := s.db.Exec(
		`INSERT INTO sessions (id, owner, filename, media_type, total_size, digest, chunk_size,
			total_chunks, uploaded_chunks, state, stored_path, error, created_at, last_chunk_at, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.Owner, sess.Filename, sess.MediaType, sess.TotalSize, sess.Digest, sess.ChunkSize,
		sess.TotalChunks, sess.UploadedChunks, int(sess.State), sess.StoredPath, sess.Error,
		formatTime(sess.CreatedAt), formatTime(sess.LastChunkAt), formatTime(sess.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("store: create: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Get(id string) (*upload.Session, error) {
	row := s.db.QueryRow(
		`SELECT id, owner, filename, media_type, total_size, digest, chunk_size,
			total_chunks, uploaded_chunks, state, stored_path, error, created_at, last_chunk_at, completed_at
		 FROM sessions WHERE id = ?`, id)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, upload.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get: %w", err)
	}
	return sess, nil
}

func (s *SQLiteStore) Update(sess *upload.Session) error {
	res, err := s.db.Exec(
		`UPDATE sessions SET owner=?, filename=?, media_type=?, total_size=?, digest=?, chunk_size=?,
			total_chunks=?, uploaded_chunks=?, state=?, stored_path=?, error=?, created_at=?,
			last_chunk_at=?, completed_at=? WHERE id=?`,
		sess.Owner, sess.Filename, sess.MediaType, sess.TotalSize, sess.Digest, sess.ChunkSize,
		sess.TotalChunks, sess.UploadedChunks, int(sess.State), sess.StoredPath, sess.Error,
		formatTime(sess.CreatedAt), formatTime(sess.LastChunkAt), formatTime(sess.CompletedAt), sess.ID,
	)
	if err != nil {
		return fmt.Errorf("store: update: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: update rows affected: %w", err)
	}
	if n == 0 {
		return upload.ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) ListByState(states ...upload.State) ([]*upload.Session, error) {
	placeholders := make([]string, len(states))
	args := make([]interface{}, len(states))
	for i, st := range states {
		placeholders[i] = "?"
		args[i] = int(st)
	}
	query := fmt.Sprintf(
		`SELECT id, owner, filename, media_type, total_size, digest, chunk_size,
			total_chunks, uploaded_chunks, state, stored_path, error, created_at, last_chunk_at, completed_at
		 FROM sessions WHERE state IN (%s)`, strings.Join(placeholders, ","))

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list: %w", err)
	}
	defer rows.Close()

	var out []*upload.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("store: list scan: %w", err)
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// rowScanner abstracts over *sql.Row and *sql.Rows for scanSession.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row rowScanner) (*upload.Session, error) {
	var sess upload.Session
	var state int
	var createdAt, lastChunkAt, completedAt string

	err := row.Scan(
		&sess.ID, &sess.Owner, &sess.Filename, &sess.MediaType, &sess.TotalSize, &sess.Digest, &sess.ChunkSize,
		&sess.TotalChunks, &sess.UploadedChunks, &state, &sess.StoredPath, &sess.Error,
		&createdAt, &lastChunkAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}

	sess.State = upload.State(state)
	sess.CreatedAt = parseTime(createdAt)
	sess.LastChunkAt = parseTime(lastChunkAt)
	sess.CompletedAt = parseTime(completedAt)
	return &sess, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
