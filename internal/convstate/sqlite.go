package convstate

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"voxagent/internal/domain"
)

// SQLiteStore implements domain.StateStore. The whole session state is
// stored as one JSON document per session; it is small and always read
// and written as a unit.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}
	// Single connection: SQLite serializes writers anyway.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db, logger: logger}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS session_states (
		session_id  TEXT PRIMARY KEY,
		state       TEXT NOT NULL,
		updated_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) Save(ctx context.Context, state *domain.SessionState) error {
	doc, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal session state: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO session_states (session_id, state, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET state = excluded.state, updated_at = excluded.updated_at`,
		state.SessionID, string(doc), time.Now(),
	)
	return err
}

func (s *SQLiteStore) Load(ctx context.Context, sessionID string) (*domain.SessionState, error) {
	var doc string
	err := s.db.QueryRowContext(ctx,
		`SELECT state FROM session_states WHERE session_id = ?`, sessionID,
	).Scan(&doc)
	if err == sql.ErrNoRows {
		return domain.NewSessionState(sessionID), nil
	}
	if err != nil {
		return nil, err
	}

	var state domain.SessionState
	if err := json.Unmarshal([]byte(doc), &state); err != nil {
		// A corrupt row should not brick the session.
		s.logger.Warn("corrupt session state, starting fresh", "session", sessionID, "err", err)
		return domain.NewSessionState(sessionID), nil
	}
	if state.Topics == nil {
		state.Topics = make(map[string]int)
	}
	if state.Preferences == nil {
		state.Preferences = make(map[string]string)
	}
	return &state, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

var _ domain.StateStore = (*SQLiteStore)(nil)
