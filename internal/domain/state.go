package domain

import (
	"context"
	"time"
)

// SessionState holds derived, longer-lived conversational facts. It is
// independent of the raw message log: it survives context pruning and
// process restarts.
type SessionState struct {
	SessionID    string            `json:"session_id"`
	Topics       map[string]int    `json:"topics"`      // topic -> mention count
	RecentTopics []string          `json:"recent_topics"`
	Preferences  map[string]string `json:"preferences"` // last write wins
	Keywords     []string          `json:"keywords"`
	TurnCount    int               `json:"turn_count"`
	CreatedAt    time.Time         `json:"created_at"`
	LastActiveAt time.Time         `json:"last_active_at"`
}

// NewSessionState returns an empty state for a fresh session.
func NewSessionState(sessionID string) *SessionState {
	now := time.Now()
	return &SessionState{
		SessionID:    sessionID,
		Topics:       make(map[string]int),
		Preferences:  make(map[string]string),
		CreatedAt:    now,
		LastActiveAt: now,
	}
}

// StateStore persists session state. Load returns a fresh default state
// (never an error) when no prior record exists for the session.
type StateStore interface {
	Save(ctx context.Context, state *SessionState) error
	Load(ctx context.Context, sessionID string) (*SessionState, error)
	Close() error
}

// TurnRecord is one persisted transcript message.
type TurnRecord struct {
	ID         int64     `json:"id"`
	SessionID  string    `json:"session_id"`
	Role       string    `json:"role"`
	Content    string    `json:"content"`
	ToolCalls  string    `json:"tool_calls,omitempty"` // JSON-encoded []ToolCall
	ToolCallID string    `json:"tool_call_id,omitempty"`
	ToolName   string    `json:"tool_name,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// TranscriptStore persists finalized turn messages so a session can be
// resumed after a restart. Persistence failures are logged by callers
// and never block a turn.
type TranscriptStore interface {
	AppendMessage(ctx context.Context, sessionID string, rec TurnRecord) error
	RecentMessages(ctx context.Context, sessionID string, limit int) ([]TurnRecord, error)
	DeleteSession(ctx context.Context, sessionID string) error
	Close() error
}
