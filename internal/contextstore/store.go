// Package contextstore owns the ordered conversation log for one
// session. It enforces a message budget by pruning the oldest
// non-important messages, optionally collapsing them into a single
// synthetic summary message produced by a Summarizer.
package contextstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"voxagent/internal/domain"
	"voxagent/internal/metrics"
)

const (
	defaultMaxMessages = 20
	summaryPrefix      = "Previous conversation summary: "
)

// ErrMissingRole is returned by Append for a malformed message.
var ErrMissingRole = errors.New("contextstore: message has no role")

// Summarizer collapses a block of pruned messages into a short text.
// Invoked synchronously during pruning; a failure falls back to plain
// discard so a turn is never blocked by summarization.
type Summarizer interface {
	Summarize(ctx context.Context, messages []domain.Message) (string, error)
}

// SummarizerFunc adapts a function to the Summarizer interface.
type SummarizerFunc func(ctx context.Context, messages []domain.Message) (string, error)

func (f SummarizerFunc) Summarize(ctx context.Context, messages []domain.Message) (string, error) {
	return f(ctx, messages)
}

// Config tunes a Store.
type Config struct {
	MaxMessages int // total retained budget, including system and summary
	Summarizer  Summarizer
	Logger      *slog.Logger
}

// Store is the bounded context store. An instance is owned exclusively
// by one session's orchestration engine, so it does no locking.
type Store struct {
	system     domain.Message
	summary    *domain.Message // at most one, kept right after the system message
	msgs       []domain.Message
	max        int
	summarizer Summarizer
	logger     *slog.Logger
}

// New creates an empty store holding only the pinned system message.
func New(systemPrompt string, cfg Config) *Store {
	max := cfg.MaxMessages
	if max <= 0 {
		max = defaultMaxMessages
	}
	lgr := cfg.Logger
	if lgr == nil {
		lgr = slog.Default()
	}
	return &Store{
		system:     domain.Message{Role: domain.RoleSystem, Content: systemPrompt},
		max:        max,
		summarizer: cfg.Summarizer,
		logger:     lgr,
	}
}

// Len returns the total retained message count, system message and
// summary included.
func (s *Store) Len() int {
	n := 1 + len(s.msgs)
	if s.summary != nil {
		n++
	}
	return n
}

// Append adds a message to the log and prunes if the budget is
// exceeded. It fails only on a malformed message.
func (s *Store) Append(ctx context.Context, msg domain.Message) error {
	if msg.Role == "" {
		return ErrMissingRole
	}
	s.msgs = append(s.msgs, msg)
	s.Prune(ctx)
	return nil
}

// MarkLastImportant flags the most recently appended message so pruning
// keeps it while any other candidate remains.
func (s *Store) MarkLastImportant() {
	if len(s.msgs) > 0 {
		s.msgs[len(s.msgs)-1].Important = true
	}
}

// Seed replaces the log body with previously persisted messages,
// keeping the pinned system message. Used for session resume. A tool
// result whose tool_call_id has no preceding assistant tool call in the
// seeded slice is dropped, since a resume window may start mid-pair.
func (s *Store) Seed(ctx context.Context, msgs []domain.Message) {
	s.msgs = s.msgs[:0]
	s.summary = nil
	calls := make(map[string]bool)
	for _, m := range msgs {
		if m.Role == "" || m.Role == domain.RoleSystem {
			continue
		}
		if m.Role == domain.RoleTool && !calls[m.ToolCallID] {
			continue
		}
		for _, c := range m.ToolCalls {
			calls[c.ID] = true
		}
		s.msgs = append(s.msgs, m)
	}
	s.Prune(ctx)
}

// Reset clears everything except the system message.
func (s *Store) Reset() {
	s.msgs = s.msgs[:0]
	s.summary = nil
}

// Messages returns a copy of the full retained log in order: system
// message, summary (if any), then the body.
func (s *Store) Messages() []domain.Message {
	out := make([]domain.Message, 0, s.Len())
	out = append(out, s.system)
	if s.summary != nil {
		out = append(out, *s.summary)
	}
	return append(out, s.msgs...)
}

// Snapshot returns the system message (and summary, if any) plus the
// most recent window messages. Important messages older than the window
// are preserved as well, so the result may exceed the window by the
// number of currently-important messages.
func (s *Store) Snapshot(window int) []domain.Message {
	if window <= 0 || window > s.max {
		window = s.max
	}
	head := 1
	if s.summary != nil {
		head++
	}
	recent := window - head
	if recent < 0 {
		recent = 0
	}
	if recent > len(s.msgs) {
		recent = len(s.msgs)
	}
	cut := len(s.msgs) - recent
	// Never cut between an assistant tool-call message and its results.
	for cut > 0 && s.msgs[cut].Role == domain.RoleTool {
		cut--
	}

	out := make([]domain.Message, 0, head+recent+4)
	out = append(out, s.system)
	if s.summary != nil {
		out = append(out, *s.summary)
	}
	for _, m := range s.msgs[:cut] {
		if m.Important {
			out = append(out, m)
		}
	}
	return append(out, s.msgs[cut:]...)
}

// Prune brings the store back under budget. With no intervening Append
// a second call is a no-op.
func (s *Store) Prune(ctx context.Context) {
	over := s.Len() - s.max
	if over <= 0 {
		return
	}

	// Creating a summary occupies one extra retained slot.
	need := over
	if s.summarizer != nil && s.summary == nil {
		need++
	}

	block, remaining := s.takeOldest(need)
	if len(block) == 0 {
		return
	}

	if s.summarizer != nil {
		text, err := s.summarize(ctx, block)
		if err != nil {
			s.logger.Warn("summarization failed, discarding pruned block",
				"messages", len(block), "err", err)
		} else {
			s.summary = &domain.Message{Role: domain.RoleSystem, Content: summaryPrefix + text}
			metrics.ContextSummaries.Inc()
		}
	}

	s.logger.Debug("pruned context",
		"dropped", len(block), "retained", len(remaining)+1, "budget", s.max)
	s.msgs = remaining
}

// takeOldest removes at least n prunable messages from the front of the
// log. An assistant message carrying tool calls and the tool-result
// messages that follow it are one prune unit: a tool result must never
// outlive the assistant message its tool_call_id references. Units
// containing an important message are exempt until no other candidates
// remain.
func (s *Store) takeOldest(n int) (block, remaining []domain.Message) {
	type unit struct {
		start, end int // [start, end) into s.msgs
		important  bool
	}
	var units []unit
	for i := 0; i < len(s.msgs); {
		u := unit{start: i, end: i + 1, important: s.msgs[i].Important}
		if len(s.msgs[i].ToolCalls) > 0 {
			for u.end < len(s.msgs) && s.msgs[u.end].Role == domain.RoleTool {
				if s.msgs[u.end].Important {
					u.important = true
				}
				u.end++
			}
		}
		units = append(units, u)
		i = u.end
	}

	drop := make([]bool, len(units))
	taken := 0
	for pass := 0; pass < 2 && taken < n; pass++ {
		for ui, u := range units {
			if taken >= n {
				break
			}
			if drop[ui] || s.msgs[u.start].Role == domain.RoleSystem {
				continue
			}
			if pass == 0 && u.important {
				continue
			}
			drop[ui] = true
			taken += u.end - u.start
		}
	}

	keep := make([]domain.Message, 0, len(s.msgs))
	for ui, u := range units {
		if drop[ui] {
			block = append(block, s.msgs[u.start:u.end]...)
		} else {
			keep = append(keep, s.msgs[u.start:u.end]...)
		}
	}
	return block, keep
}

// summarize feeds the pruned block (and the previous summary, so
// context chains across prunes) through the configured summarizer.
func (s *Store) summarize(ctx context.Context, block []domain.Message) (string, error) {
	input := block
	if s.summary != nil {
		prior := domain.Message{Role: domain.RoleSystem, Content: s.summary.Content}
		input = append([]domain.Message{prior}, block...)
	}
	text, err := s.summarizer.Summarize(ctx, input)
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("summarizer returned empty text")
	}
	return text, nil
}

// Stats describes the current shape of the log, mostly for status
// output and logging.
type Stats struct {
	Total     int
	Important int
	Budget    int
	Summary   bool
}

func (s *Store) Stats() Stats {
	st := Stats{Total: s.Len(), Budget: s.max, Summary: s.summary != nil}
	for _, m := range s.msgs {
		if m.Important {
			st.Important++
		}
	}
	return st
}
