package contextstore

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"testing"

	"voxagent/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newStore(max int, sum Summarizer) *Store {
	return New("You are a helpful assistant.", Config{
		MaxMessages: max,
		Summarizer:  sum,
		Logger:      testLogger(),
	})
}

func userMsg(i int) domain.Message {
	return domain.Message{Role: domain.RoleUser, Content: fmt.Sprintf("message %d", i)}
}

func TestAppend_MissingRole(t *testing.T) {
	s := newStore(10, nil)
	if err := s.Append(context.Background(), domain.Message{Content: "no role"}); err != ErrMissingRole {
		t.Fatalf("expected ErrMissingRole, got %v", err)
	}
}

func TestBoundedGrowth(t *testing.T) {
	const max = 10
	s := newStore(max, nil)
	for i := 0; i < 100; i++ {
		if err := s.Append(context.Background(), userMsg(i)); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
		if s.Len() > max {
			t.Fatalf("after append %d: len %d exceeds budget %d", i, s.Len(), max)
		}
	}

	snap := s.Snapshot(max)
	if len(snap) > max {
		t.Fatalf("snapshot returned %d messages, budget %d", len(snap), max)
	}
	if snap[0].Role != domain.RoleSystem {
		t.Fatalf("first snapshot message is %q, want system", snap[0].Role)
	}
}

func TestSnapshot_SystemAlwaysFirst(t *testing.T) {
	s := newStore(5, nil)
	for i := 0; i < 20; i++ {
		_ = s.Append(context.Background(), userMsg(i))
	}
	for _, w := range []int{1, 3, 5, 100} {
		snap := s.Snapshot(w)
		if len(snap) == 0 || snap[0].Role != domain.RoleSystem {
			t.Fatalf("window %d: system message not first", w)
		}
	}
}

func TestSnapshot_PreservesImportantBeyondWindow(t *testing.T) {
	s := newStore(20, nil)
	_ = s.Append(context.Background(), domain.Message{Role: domain.RoleTool, Content: "pending transfer", Important: true})
	for i := 0; i < 10; i++ {
		_ = s.Append(context.Background(), userMsg(i))
	}

	snap := s.Snapshot(4)
	found := false
	for _, m := range snap {
		if m.Content == "pending transfer" {
			found = true
		}
	}
	if !found {
		t.Fatal("important message dropped from snapshot window")
	}
	// Bounded slack: window plus the one important message.
	if len(snap) > 4+1 {
		t.Fatalf("snapshot len %d exceeds window plus important count", len(snap))
	}
}

func TestPrune_KeepsImportantWhileCandidatesRemain(t *testing.T) {
	s := newStore(6, nil)
	_ = s.Append(context.Background(), domain.Message{Role: domain.RoleTool, Content: "keep me", Important: true})
	for i := 0; i < 30; i++ {
		_ = s.Append(context.Background(), userMsg(i))
	}

	for _, m := range s.Messages() {
		if m.Content == "keep me" {
			return
		}
	}
	t.Fatal("important message pruned while regular candidates remained")
}

func TestPrune_ImportantDroppedWhenNoCandidatesRemain(t *testing.T) {
	s := newStore(3, nil)
	for i := 0; i < 10; i++ {
		_ = s.Append(context.Background(), domain.Message{
			Role:      domain.RoleTool,
			Content:   fmt.Sprintf("important %d", i),
			Important: true,
		})
	}
	if s.Len() > 3 {
		t.Fatalf("len %d exceeds budget 3 even with only important messages", s.Len())
	}
}

func TestPrune_Idempotent(t *testing.T) {
	s := newStore(8, nil)
	for i := 0; i < 40; i++ {
		_ = s.Append(context.Background(), userMsg(i))
	}

	s.Prune(context.Background())
	before := s.Messages()
	s.Prune(context.Background())
	after := s.Messages()

	if len(before) != len(after) {
		t.Fatalf("second prune changed length: %d -> %d", len(before), len(after))
	}
	for i := range before {
		if before[i].Content != after[i].Content {
			t.Fatalf("second prune changed message %d: %q -> %q", i, before[i].Content, after[i].Content)
		}
	}
}

func TestPrune_SummarizerCollapsesBlock(t *testing.T) {
	var summarized int
	sum := SummarizerFunc(func(ctx context.Context, msgs []domain.Message) (string, error) {
		summarized = len(msgs)
		return "they discussed several things", nil
	})

	s := newStore(6, sum)
	for i := 0; i < 12; i++ {
		_ = s.Append(context.Background(), userMsg(i))
	}

	if summarized == 0 {
		t.Fatal("summarizer was never invoked")
	}
	msgs := s.Messages()
	if msgs[1].Role != domain.RoleSystem {
		t.Fatalf("summary message role %q, want system", msgs[1].Role)
	}
	if msgs[1].Content != summaryPrefix+"they discussed several things" {
		t.Fatalf("unexpected summary content: %q", msgs[1].Content)
	}
	if s.Len() > 6 {
		t.Fatalf("len %d exceeds budget after summarization", s.Len())
	}
}

func TestPrune_SummarizerFailureFallsBackToDiscard(t *testing.T) {
	sum := SummarizerFunc(func(ctx context.Context, msgs []domain.Message) (string, error) {
		return "", fmt.Errorf("model unavailable")
	})

	s := newStore(6, sum)
	for i := 0; i < 12; i++ {
		if err := s.Append(context.Background(), userMsg(i)); err != nil {
			t.Fatalf("append must not fail on summarizer error: %v", err)
		}
	}

	if s.Len() > 6 {
		t.Fatalf("len %d exceeds budget after failed summarization", s.Len())
	}
	for _, m := range s.Messages() {
		if m.Role == domain.RoleSystem && m.Content != "You are a helpful assistant." {
			t.Fatalf("unexpected synthetic system message after failure: %q", m.Content)
		}
	}
}

// requirePairedToolResults fails if any tool-result message lacks a
// preceding assistant message carrying its tool_call_id.
func requirePairedToolResults(t *testing.T, msgs []domain.Message) {
	t.Helper()
	calls := make(map[string]bool)
	for _, m := range msgs {
		for _, c := range m.ToolCalls {
			calls[c.ID] = true
		}
		if m.Role == domain.RoleTool && !calls[m.ToolCallID] {
			t.Fatalf("orphan tool result %q in %+v", m.ToolCallID, msgs)
		}
	}
}

func toolCallPair(id string) []domain.Message {
	return []domain.Message{
		{Role: domain.RoleAssistant, ToolCalls: []domain.ToolCall{{ID: id, Name: "get_current_time"}}},
		{Role: domain.RoleTool, Content: "2:30 PM", ToolCallID: id, ToolName: "get_current_time"},
	}
}

func TestPrune_NeverOrphansToolResults(t *testing.T) {
	s := newStore(6, nil)
	_ = s.Append(context.Background(), domain.Message{Role: domain.RoleUser, Content: "what time is it"})
	for _, m := range toolCallPair("c1") {
		_ = s.Append(context.Background(), m)
	}
	// Keep appending until the pair ages out of the budget. At every
	// step the snapshot must stay a valid message sequence.
	for i := 0; i < 6; i++ {
		_ = s.Append(context.Background(), userMsg(i))
		requirePairedToolResults(t, s.Snapshot(0))
		requirePairedToolResults(t, s.Messages())
	}
}

func TestPrune_DropsToolCallPairAsUnit(t *testing.T) {
	s := newStore(5, nil)
	for _, m := range toolCallPair("c1") {
		_ = s.Append(context.Background(), m)
	}
	for i := 0; i < 20; i++ {
		_ = s.Append(context.Background(), userMsg(i))
		requirePairedToolResults(t, s.Messages())
	}

	// Both halves of the pair must be gone by now, not just the older one.
	for _, m := range s.Messages() {
		if len(m.ToolCalls) > 0 || m.Role == domain.RoleTool {
			t.Fatalf("stale half of a pruned pair: %+v", m)
		}
	}
}

func TestPrune_KeepsWholePairWhenResultIsImportant(t *testing.T) {
	s := newStore(6, nil)
	pair := toolCallPair("c1")
	pair[1].Important = true
	for _, m := range pair {
		_ = s.Append(context.Background(), m)
	}
	for i := 0; i < 20; i++ {
		_ = s.Append(context.Background(), userMsg(i))
	}

	var sawCall, sawResult bool
	for _, m := range s.Messages() {
		if len(m.ToolCalls) > 0 {
			sawCall = true
		}
		if m.Role == domain.RoleTool {
			sawResult = true
		}
	}
	if !sawCall || !sawResult {
		t.Fatalf("important pair split by pruning: call=%v result=%v", sawCall, sawResult)
	}
	requirePairedToolResults(t, s.Messages())
}

func TestSnapshot_WindowCutExpandsToPairStart(t *testing.T) {
	s := newStore(20, nil)
	_ = s.Append(context.Background(), userMsg(0))
	for _, m := range toolCallPair("c1") {
		_ = s.Append(context.Background(), m)
	}

	// A window of 2 (system + one recent) would land inside the pair.
	requirePairedToolResults(t, s.Snapshot(2))
}

func TestSeed_RestoresBody(t *testing.T) {
	s := newStore(10, nil)
	s.Seed(context.Background(), []domain.Message{
		{Role: domain.RoleUser, Content: "earlier question"},
		{Role: domain.RoleAssistant, Content: "earlier answer"},
	})

	msgs := s.Messages()
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages after seed, got %d", len(msgs))
	}
	if msgs[1].Content != "earlier question" || msgs[2].Content != "earlier answer" {
		t.Fatalf("seed order wrong: %v", msgs)
	}
}

func TestSeed_DropsToolResultsCutFromTheirCall(t *testing.T) {
	s := newStore(10, nil)
	// A resume window that starts mid-pair: the tool result's call lives
	// in an older record outside the window.
	s.Seed(context.Background(), []domain.Message{
		{Role: domain.RoleTool, Content: "2:30 PM", ToolCallID: "c0", ToolName: "get_current_time"},
		{Role: domain.RoleAssistant, Content: "It is 2:30 PM."},
		{Role: domain.RoleUser, Content: "thanks"},
	})

	msgs := s.Messages()
	requirePairedToolResults(t, msgs)
	if len(msgs) != 3 {
		t.Fatalf("expected system + 2 seeded messages, got %d: %+v", len(msgs), msgs)
	}

	// A pair fully inside the window survives.
	seed := append(toolCallPair("c1"), domain.Message{Role: domain.RoleUser, Content: "thanks"})
	s.Seed(context.Background(), seed)
	msgs = s.Messages()
	requirePairedToolResults(t, msgs)
	if len(msgs) != 4 {
		t.Fatalf("intact pair dropped on seed: %+v", msgs)
	}
}

func TestReset(t *testing.T) {
	s := newStore(10, nil)
	for i := 0; i < 5; i++ {
		_ = s.Append(context.Background(), userMsg(i))
	}
	s.Reset()
	if s.Len() != 1 {
		t.Fatalf("expected only system message after reset, got %d", s.Len())
	}
}

func TestStats(t *testing.T) {
	s := newStore(10, nil)
	_ = s.Append(context.Background(), domain.Message{Role: domain.RoleTool, Content: "x", Important: true})
	_ = s.Append(context.Background(), userMsg(1))

	st := s.Stats()
	if st.Total != 3 || st.Important != 1 || st.Budget != 10 || st.Summary {
		t.Fatalf("unexpected stats: %+v", st)
	}
}
