package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"voxagent/internal/contextstore"
	"voxagent/internal/convstate"
	"voxagent/internal/domain"
	"voxagent/internal/metrics"
)

// Session bundles everything one conversation owns: its bounded
// context, its tracked state, and a lock serializing its turns.
type Session struct {
	ID      string
	Context *contextstore.Store
	Tracker *convstate.Tracker

	mu sync.Mutex // one in-flight turn per session
}

// SessionManager creates and caches sessions. Resuming a known session
// seeds its context from the persisted transcript.
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	systemPrompt string
	contextCfg   contextstore.Config
	states       domain.StateStore
	transcripts  domain.TranscriptStore
	resumeLimit  int
	logger       *slog.Logger
}

type SessionManagerConfig struct {
	SystemPrompt string
	ContextCfg   contextstore.Config
	States       domain.StateStore
	Transcripts  domain.TranscriptStore
	ResumeLimit  int // transcript messages to seed on resume
	Logger       *slog.Logger
}

func NewSessionManager(cfg SessionManagerConfig) *SessionManager {
	if cfg.ResumeLimit <= 0 {
		cfg.ResumeLimit = 50
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &SessionManager{
		sessions:     make(map[string]*Session),
		systemPrompt: cfg.SystemPrompt,
		contextCfg:   cfg.ContextCfg,
		states:       cfg.States,
		transcripts:  cfg.Transcripts,
		resumeLimit:  cfg.ResumeLimit,
		logger:       cfg.Logger,
	}
}

// Get returns the session, creating it on first use. An empty id
// allocates a fresh session.
func (sm *SessionManager) Get(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		id = uuid.NewString()
	}

	sm.mu.RLock()
	sess, ok := sm.sessions[id]
	sm.mu.RUnlock()
	if ok {
		return sess, nil
	}

	sm.mu.Lock()
	defer sm.mu.Unlock()
	if sess, ok := sm.sessions[id]; ok {
		return sess, nil
	}

	tracker, err := convstate.NewTracker(ctx, id, sm.states, sm.logger)
	if err != nil {
		return nil, fmt.Errorf("load session state: %w", err)
	}

	store := contextstore.New(sm.systemPrompt, sm.contextCfg)
	if err := sm.seedFromTranscript(ctx, id, store); err != nil {
		// Resume is best effort; a fresh context still works.
		sm.logger.Warn("transcript resume failed", "session", id, "err", err)
	}

	sess = &Session{ID: id, Context: store, Tracker: tracker}
	sm.sessions[id] = sess
	metrics.ActiveSessions.Set(int64(len(sm.sessions)))
	sm.logger.Info("session opened", "session", id, "resumed_messages", store.Len())
	return sess, nil
}

func (sm *SessionManager) seedFromTranscript(ctx context.Context, id string, store *contextstore.Store) error {
	if sm.transcripts == nil {
		return nil
	}
	records, err := sm.transcripts.RecentMessages(ctx, id, sm.resumeLimit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}

	msgs := make([]domain.Message, 0, len(records))
	for _, r := range records {
		msg := domain.Message{
			Role:       r.Role,
			Content:    r.Content,
			ToolCallID: r.ToolCallID,
			ToolName:   r.ToolName,
		}
		if r.ToolCalls != "" {
			var calls []domain.ToolCall
			if err := json.Unmarshal([]byte(r.ToolCalls), &calls); err == nil {
				msg.ToolCalls = calls
			}
		}
		msgs = append(msgs, msg)
	}
	store.Seed(ctx, msgs)
	return nil
}

// Clear drops a session's in-memory state and its persisted transcript.
func (sm *SessionManager) Clear(ctx context.Context, id string) {
	sm.mu.Lock()
	delete(sm.sessions, id)
	metrics.ActiveSessions.Set(int64(len(sm.sessions)))
	sm.mu.Unlock()

	if sm.transcripts != nil {
		if err := sm.transcripts.DeleteSession(ctx, id); err != nil {
			sm.logger.Warn("failed to clear transcript", "session", id, "err", err)
		}
	}
}
