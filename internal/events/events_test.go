package events

import (
	"log/slog"
	"os"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestBus_EmitReachesTypeAndWildcardHandlers(t *testing.T) {
	b := NewBus(testLogger())

	var typed, wild []string
	b.On(UtteranceUnit, func(ev Event) { typed = append(typed, ev.SessionID) })
	b.On("*", func(ev Event) { wild = append(wild, ev.Type) })

	b.Emit(Event{Type: UtteranceUnit, SessionID: "s1"})
	b.Emit(Event{Type: TurnFinished, SessionID: "s1"})

	if len(typed) != 1 || typed[0] != "s1" {
		t.Fatalf("typed handler saw %v", typed)
	}
	if len(wild) != 2 || wild[0] != UtteranceUnit || wild[1] != TurnFinished {
		t.Fatalf("wildcard handler saw %v", wild)
	}
}

func TestBus_OffStopsDelivery(t *testing.T) {
	b := NewBus(testLogger())

	calls := 0
	id := b.On(TurnStarted, func(Event) { calls++ })
	b.Emit(Event{Type: TurnStarted})
	b.Off(TurnStarted, id)
	b.Emit(Event{Type: TurnStarted})

	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestBus_PanickingHandlerDoesNotStopOthers(t *testing.T) {
	b := NewBus(testLogger())

	reached := false
	b.On(ToolDispatched, func(Event) { panic("boom") })
	b.On(ToolDispatched, func(Event) { reached = true })

	b.Emit(Event{Type: ToolDispatched})
	if !reached {
		t.Fatal("second handler not reached after panic in first")
	}
}

func TestBus_ReplayFiltersByTypeAndTime(t *testing.T) {
	b := NewBus(testLogger())

	cutoff := time.Now()
	b.Emit(Event{Type: TurnFinished, SessionID: "old", Timestamp: cutoff.Add(-time.Minute)})
	b.Emit(Event{Type: TurnFinished, SessionID: "new", Timestamp: cutoff.Add(time.Minute)})
	b.Emit(Event{Type: TurnStarted, SessionID: "new", Timestamp: cutoff.Add(time.Minute)})

	got := b.Replay(TurnFinished, cutoff)
	if len(got) != 1 || got[0].SessionID != "new" {
		t.Fatalf("Replay = %+v, want one recent turn.finished", got)
	}
}
