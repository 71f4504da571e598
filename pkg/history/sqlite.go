package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"mercator-hq/corsgate/pkg/config"

	_ "modernc.org/sqlite" // SQLite driver
)

// DefaultListLimit is used by List when limit is not positive.
const DefaultListLimit = 50

// MaxListLimit caps a single List call.
const MaxListLimit = 1000

// SQLiteConfig configures the SQLite history store.
type SQLiteConfig struct {
	// DBPath is the path to the SQLite database file.
	DBPath string

	// BusyTimeout is how long to wait for locks before failing.
	// Default: 5 seconds
	BusyTimeout time.Duration

	// Logger receives store diagnostics. Default: slog.Default().
	Logger *slog.Logger
}

// SQLiteStore persists policy change records in SQLite.
type SQLiteStore struct {
	db        *sql.DB
	dbPath    string
	logger    *slog.Logger
	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once

	insertStmt *sql.Stmt
	listStmt   *sql.Stmt
}

const schema = `
CREATE TABLE IF NOT EXISTS policy_changes (
	id TEXT PRIMARY KEY,
	seq INTEGER NOT NULL,
	changed_at INTEGER NOT NULL,
	source TEXT NOT NULL,
	success INTEGER NOT NULL,
	revision INTEGER NOT NULL,
	previous_revision INTEGER NOT NULL,
	errors TEXT,
	policy TEXT
);

CREATE INDEX IF NOT EXISTS idx_policy_changes_seq ON policy_changes(seq);
`

// NewSQLiteStore opens (or creates) the history database at cfg.DBPath.
func NewSQLiteStore(cfg SQLiteConfig) (*SQLiteStore, error) {
	if cfg.DBPath == "" {
		return nil, fmt.Errorf("db path cannot be empty")
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "history.sqlite")

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)",
		cfg.DBPath, cfg.BusyTimeout.Milliseconds())

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, newStorageError("open", err)
	}

	// SQLite only supports a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &SQLiteStore{
		db:     db,
		dbPath: cfg.DBPath,
		logger: logger,
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, newStorageError("create_schema", err)
	}
	if err := s.prepareStatements(); err != nil {
		db.Close()
		return nil, newStorageError("prepare", err)
	}

	logger.Info("history store initialized", "path", cfg.DBPath)
	return s, nil
}

func (s *SQLiteStore) prepareStatements() error {
	var err error

	s.insertStmt, err = s.db.Prepare(`
		INSERT INTO policy_changes (id, seq, changed_at, source, success, revision, previous_revision, errors, policy)
		VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM policy_changes), ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("insert: %w", err)
	}

	s.listStmt, err = s.db.Prepare(`
		SELECT id, changed_at, source, success, revision, previous_revision, errors, policy
		FROM policy_changes
		ORDER BY seq DESC
		LIMIT ?
	`)
	if err != nil {
		return fmt.Errorf("list: %w", err)
	}

	return nil
}

// Record stores r.
func (s *SQLiteStore) Record(ctx context.Context, r Record) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}

	var errorsJSON, policyJSON any
	if len(r.Errors) > 0 {
		b, err := json.Marshal(r.Errors)
		if err != nil {
			return newStorageError("marshal_errors", err)
		}
		errorsJSON = string(b)
	}
	if r.Policy != nil {
		b, err := json.Marshal(r.Policy)
		if err != nil {
			return newStorageError("marshal_policy", err)
		}
		policyJSON = string(b)
	}

	_, err := s.insertStmt.ExecContext(ctx,
		r.ID, r.At.UnixNano(), r.Source, r.Success,
		int64(r.Revision), int64(r.PreviousRevision),
		errorsJSON, policyJSON,
	)
	if err != nil {
		return newStorageError("record", err)
	}
	return nil
}

// List returns up to limit records, newest first. A non-positive limit means
// DefaultListLimit; limits above MaxListLimit are capped.
func (s *SQLiteStore) List(ctx context.Context, limit int) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}

	rows, err := s.listStmt.QueryContext(ctx, limit)
	if err != nil {
		return nil, newStorageError("list", err)
	}
	defer rows.Close()

	records := make([]Record, 0, limit)
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, newStorageError("scan", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, newStorageError("list", err)
	}
	return records, nil
}

// Count returns the number of stored records.
func (s *SQLiteStore) Count(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, ErrClosed
	}

	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM policy_changes").Scan(&n); err != nil {
		return 0, newStorageError("count", err)
	}
	return n, nil
}

// Ping reports whether the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	if err := s.db.PingContext(ctx); err != nil {
		return newStorageError("ping", err)
	}
	return nil
}

// Listener returns a config.Store change listener that records every event.
// Failures are logged and never reach the policy store.
func (s *SQLiteStore) Listener() func(config.ChangeEvent) {
	return func(ev config.ChangeEvent) {
		r := NewRecord(ev)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.Record(ctx, r); err != nil {
			s.logger.Error("failed to record policy change",
				"source", r.Source,
				"revision", r.Revision,
				"error", err,
			)
		}
	}
}

// Close closes the database. It is safe to call more than once.
func (s *SQLiteStore) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.closed = true

		s.insertStmt.Close()
		s.listStmt.Close()
		if cerr := s.db.Close(); cerr != nil {
			err = newStorageError("close", cerr)
		}
	})
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (Record, error) {
	var (
		r                  Record
		changedAt          int64
		revision, previous int64
		errorsJSON         sql.NullString
		policyJSON         sql.NullString
	)
	if err := row.Scan(&r.ID, &changedAt, &r.Source, &r.Success, &revision, &previous, &errorsJSON, &policyJSON); err != nil {
		return Record{}, err
	}

	r.At = time.Unix(0, changedAt).UTC()
	r.Revision = uint64(revision)
	r.PreviousRevision = uint64(previous)

	if errorsJSON.Valid {
		if err := json.Unmarshal([]byte(errorsJSON.String), &r.Errors); err != nil {
			return Record{}, fmt.Errorf("decode errors: %w", err)
		}
	}
	if policyJSON.Valid {
		var p config.Policy
		if err := json.Unmarshal([]byte(policyJSON.String), &p); err != nil {
			return Record{}, fmt.Errorf("decode policy: %w", err)
		}
		r.Policy = &p
	}
	return r, nil
}
