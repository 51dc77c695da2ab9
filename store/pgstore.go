package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/georgepadayatti/signflow/session"
)

// Querier is the slice of pgxpool.Pool the store depends on.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PGStore keeps session and template records as JSONB rows in
// Postgres. Sessions carry a version column; Save bumps it and rejects
// writes racing against a newer row, so lost updates surface as
// ErrConflict instead of silently winning.
//
// Schema:
//
//	CREATE TABLE sessions (
//	    id      text PRIMARY KEY,
//	    record  jsonb NOT NULL,
//	    version bigint NOT NULL DEFAULT 1
//	);
//	CREATE TABLE templates (
//	    name    text PRIMARY KEY,
//	    record  jsonb NOT NULL
//	);
type PGStore struct {
	db Querier

	// versions tracks the row version observed at Load per session id.
	// The workflow engine holds the session lock across a Load/Save
	// pair, so one in-flight version per id is sufficient; the mutex
	// covers concurrent calls for different sessions and unlocked
	// status reads.
	mu       sync.Mutex
	versions map[string]int64
}

// NewPGStore creates a store over an existing pool or compatible
// querier.
func NewPGStore(db Querier) *PGStore {
	return &PGStore{db: db, versions: make(map[string]int64)}
}

// Connect opens a pool from a DSN and pings it.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	return pool, nil
}

func (s *PGStore) rememberVersion(id string, version int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.versions[id] = version
}

func (s *PGStore) loadedVersion(id string) (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	version, ok := s.versions[id]
	return version, ok
}

// Load reads a session record and remembers its row version.
func (s *PGStore) Load(ctx context.Context, id string) (*session.Session, error) {
	var record []byte
	var version int64
	err := s.db.QueryRow(ctx, `SELECT record, version FROM sessions WHERE id=$1`, id).Scan(&record, &version)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	var sess session.Session
	if err := json.Unmarshal(record, &sess); err != nil {
		return nil, fmt.Errorf("failed to decode session %s: %w", id, err)
	}
	s.rememberVersion(id, version)
	return &sess, nil
}

// Save replaces a session record, guarded by the version observed at
// the matching Load.
func (s *PGStore) Save(ctx context.Context, id string, sess *session.Session) error {
	record, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	version, ok := s.loadedVersion(id)
	if !ok {
		return fmt.Errorf("%w: session %s was not loaded", ErrConflict, id)
	}
	tag, err := s.db.Exec(ctx,
		`UPDATE sessions SET record=$2, version=version+1 WHERE id=$1 AND version=$3`,
		id, record, version)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrConflict, id)
	}
	s.rememberVersion(id, version+1)
	return nil
}

// Create inserts a new session record at version 1.
func (s *PGStore) Create(ctx context.Context, id string, sess *session.Session) error {
	record, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	_, err = s.db.Exec(ctx,
		`INSERT INTO sessions(id, record, version) VALUES($1, $2, 1)`,
		id, record)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	s.rememberVersion(id, 1)
	return nil
}

// LoadTemplate reads a template record.
func (s *PGStore) LoadTemplate(ctx context.Context, name string) (*session.Template, error) {
	var record []byte
	err := s.db.QueryRow(ctx, `SELECT record FROM templates WHERE name=$1`, name).Scan(&record)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load template: %w", err)
	}
	var t session.Template
	if err := json.Unmarshal(record, &t); err != nil {
		return nil, fmt.Errorf("failed to decode template %s: %w", name, err)
	}
	return &t, nil
}

// SaveTemplate inserts a template record. Templates are immutable;
// re-saving an existing name is rejected by the primary key.
func (s *PGStore) SaveTemplate(ctx context.Context, name string, t *session.Template) error {
	record, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to encode template: %w", err)
	}
	_, err = s.db.Exec(ctx, `INSERT INTO templates(name, record) VALUES($1, $2)`, name, record)
	if err != nil {
		return fmt.Errorf("failed to save template: %w", err)
	}
	return nil
}

// ListTemplates returns the saved template names, sorted.
func (s *PGStore) ListTemplates(ctx context.Context) ([]string, error) {
	rows, err := s.db.Query(ctx, `SELECT name FROM templates ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}
