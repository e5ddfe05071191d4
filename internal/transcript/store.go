// Package transcript persists finalized conversation messages so a
// session can be resumed after a restart.
package transcript

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"voxagent/internal/domain"
)

// SQLiteStore implements domain.TranscriptStore.
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
	CREATE TABLE IF NOT EXISTS transcript (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id   TEXT NOT NULL,
		role         TEXT NOT NULL,
		content      TEXT,
		tool_calls   TEXT,
		tool_call_id TEXT,
		tool_name    TEXT,
		created_at   DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_transcript_session ON transcript(session_id, id);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) AppendMessage(ctx context.Context, sessionID string, rec domain.TurnRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO transcript (session_id, role, content, tool_calls, tool_call_id, tool_name, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sessionID, rec.Role, rec.Content, rec.ToolCalls, rec.ToolCallID, rec.ToolName, rec.CreatedAt,
	)
	return err
}

// RecentMessages returns the last limit messages of the session in
// chronological order.
func (s *SQLiteStore) RecentMessages(ctx context.Context, sessionID string, limit int) ([]domain.TurnRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, role, content, tool_calls, tool_call_id, tool_name, created_at
		 FROM transcript WHERE session_id = ?
		 ORDER BY id DESC LIMIT ?`, sessionID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []domain.TurnRecord
	for rows.Next() {
		var r domain.TurnRecord
		var toolCalls, toolCallID, toolName sql.NullString
		if err := rows.Scan(&r.ID, &r.SessionID, &r.Role, &r.Content,
			&toolCalls, &toolCallID, &toolName, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.ToolCalls = toolCalls.String
		r.ToolCallID = toolCallID.String
		r.ToolName = toolName.String
		recs = append(recs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse to chronological order.
	for i, j := 0, len(recs)-1; i < j; i, j = i+1, j-1 {
		recs[i], recs[j] = recs[j], recs[i]
	}
	return recs, nil
}

func (s *SQLiteStore) DeleteSession(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM transcript WHERE session_id = ?`, sessionID)
	return err
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

var _ domain.TranscriptStore = (*SQLiteStore)(nil)
