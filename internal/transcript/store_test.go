package transcript

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"voxagent/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func openStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "transcript.db"), testLogger())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestAppendAndRecent(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	msgs := []domain.TurnRecord{
		{Role: domain.RoleUser, Content: "what time is it"},
		{Role: domain.RoleAssistant, Content: "", ToolCalls: `[{"id":"c1","name":"get_current_time"}]`},
		{Role: domain.RoleTool, Content: "2:30 PM", ToolCallID: "c1", ToolName: "get_current_time"},
		{Role: domain.RoleAssistant, Content: "It is 2:30 PM."},
	}
	for _, m := range msgs {
		if err := store.AppendMessage(ctx, "s1", m); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	got, err := store.RecentMessages(ctx, "s1", 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("got %d records", len(got))
	}
	if got[0].Content != "what time is it" || got[3].Content != "It is 2:30 PM." {
		t.Fatalf("order wrong: first=%q last=%q", got[0].Content, got[3].Content)
	}
	if got[2].ToolCallID != "c1" || got[2].ToolName != "get_current_time" {
		t.Fatalf("tool fields lost: %+v", got[2])
	}
}

func TestRecent_LimitKeepsNewest(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	for i := 0; i < 10; i++ {
		rec := domain.TurnRecord{Role: domain.RoleUser, Content: string(rune('a' + i))}
		if err := store.AppendMessage(ctx, "s1", rec); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	got, err := store.RecentMessages(ctx, "s1", 3)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 3 || got[0].Content != "h" || got[2].Content != "j" {
		t.Fatalf("got %+v, want the newest three in order", got)
	}
}

func TestDeleteSession(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	if err := store.AppendMessage(ctx, "s1", domain.TurnRecord{Role: domain.RoleUser, Content: "hi"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := store.AppendMessage(ctx, "s2", domain.TurnRecord{Role: domain.RoleUser, Content: "yo"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := store.DeleteSession(ctx, "s1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	got, err := store.RecentMessages(ctx, "s1", 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("session not deleted: %+v", got)
	}
	other, err := store.RecentMessages(ctx, "s2", 10)
	if err != nil || len(other) != 1 {
		t.Fatalf("unrelated session affected: %v %+v", err, other)
	}
}
