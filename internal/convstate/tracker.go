package convstate

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"voxagent/internal/domain"
)

const maxRecentTopics = 5

// Tracker maintains one session's evolving state and writes it through
// to the store. A persistence failure never fails the observation; the
// state stays dirty and the next Persist retries.
type Tracker struct {
	mu     sync.Mutex
	state  *domain.SessionState
	store  domain.StateStore
	logger *slog.Logger
	dirty  bool
}

// NewTracker loads the session's prior state, or starts fresh when the
// store has none.
func NewTracker(ctx context.Context, sessionID string, store domain.StateStore, logger *slog.Logger) (*Tracker, error) {
	if logger == nil {
		logger = slog.Default()
	}
	state, err := store.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return &Tracker{state: state, store: store, logger: logger}, nil
}

// ObserveUserMessage folds one user utterance into the session state.
func (t *Tracker) ObserveUserMessage(text string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, topic := range DetectTopics(text) {
		t.state.Topics[topic]++
		t.pushRecentTopic(topic)
	}
	for key, value := range ExtractPreferences(text) {
		if old, ok := t.state.Preferences[key]; ok && old != value {
			t.logger.Debug("preference updated", "key", key, "old", old, "new", value)
		}
		t.state.Preferences[key] = value
	}
	for _, kw := range ExtractKeywords(text) {
		t.pushKeyword(kw)
	}

	t.state.TurnCount++
	t.state.LastActiveAt = time.Now()
	t.dirty = true
}

func (t *Tracker) pushRecentTopic(topic string) {
	recent := t.state.RecentTopics
	for i, existing := range recent {
		if existing == topic {
			recent = append(recent[:i], recent[i+1:]...)
			break
		}
	}
	recent = append(recent, topic)
	if len(recent) > maxRecentTopics {
		recent = recent[len(recent)-maxRecentTopics:]
	}
	t.state.RecentTopics = recent
}

const maxKeywords = 50

func (t *Tracker) pushKeyword(kw string) {
	for _, existing := range t.state.Keywords {
		if existing == kw {
			return
		}
	}
	t.state.Keywords = append(t.state.Keywords, kw)
	if len(t.state.Keywords) > maxKeywords {
		t.state.Keywords = t.state.Keywords[len(t.state.Keywords)-maxKeywords:]
	}
}

// Preference returns a stored preference value.
func (t *Tracker) Preference(key string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.state.Preferences[key]
	return v, ok
}

// State returns a copy of the current session state.
func (t *Tracker) State() domain.SessionState {
	t.mu.Lock()
	defer t.mu.Unlock()

	copied := *t.state
	copied.Topics = make(map[string]int, len(t.state.Topics))
	for k, v := range t.state.Topics {
		copied.Topics[k] = v
	}
	copied.Preferences = make(map[string]string, len(t.state.Preferences))
	for k, v := range t.state.Preferences {
		copied.Preferences[k] = v
	}
	copied.RecentTopics = append([]string(nil), t.state.RecentTopics...)
	copied.Keywords = append([]string(nil), t.state.Keywords...)
	return copied
}

// Persist writes the state through to the store if it changed since the
// last successful write.
func (t *Tracker) Persist(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.dirty {
		return nil
	}
	if err := t.store.Save(ctx, t.state); err != nil {
		t.logger.Warn("session state save failed", "session", t.state.SessionID, "err", err)
		return err
	}
	t.dirty = false
	return nil
}
