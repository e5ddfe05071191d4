package stream

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"voxagent/internal/domain"
)

func pushAll(a *Assembler, tokens ...string) []string {
	var units []string
	for _, tok := range tokens {
		units = append(units, a.Push(tok)...)
	}
	return units
}

func TestAssembler_SplitsOnSentenceBoundary(t *testing.T) {
	a := NewAssembler(5)
	units := pushAll(a, "The file was saved. ", "Anything else?")
	if len(units) != 1 {
		t.Fatalf("units = %q, want one complete sentence", units)
	}
	if units[0] != "The file was saved. " {
		t.Fatalf("unit = %q", units[0])
	}
	if got := a.Flush(); got != "Anything else?" {
		t.Fatalf("flush = %q", got)
	}
}

func TestAssembler_TokenFragmentsSpanBoundary(t *testing.T) {
	a := NewAssembler(5)
	units := pushAll(a, "Hello the", "re. How", " are you doing today? I", " am fine.")
	want := []string{"Hello there. ", "How are you doing today? "}
	if len(units) != len(want) {
		t.Fatalf("units = %q, want %q", units, want)
	}
	for i := range want {
		if units[i] != want[i] {
			t.Errorf("unit[%d] = %q, want %q", i, units[i], want[i])
		}
	}
	if got := a.Flush(); got != "I am fine." {
		t.Fatalf("flush = %q", got)
	}
}

func TestAssembler_AbbreviationNotABoundary(t *testing.T) {
	a := NewAssembler(5)
	units := pushAll(a, "Ask Dr. Smith about it. Then call Mr. Jones. Noted!")
	want := []string{"Ask Dr. Smith about it. ", "Then call Mr. Jones. "}
	if len(units) != len(want) {
		t.Fatalf("units = %q, want %q", units, want)
	}
	for i := range want {
		if units[i] != want[i] {
			t.Errorf("unit[%d] = %q, want %q", i, units[i], want[i])
		}
	}
	if got := a.Flush(); got != "Noted!" {
		t.Fatalf("flush = %q", got)
	}
}

func TestAssembler_ShortFragmentMergesForward(t *testing.T) {
	a := NewAssembler(10)
	units := pushAll(a, "Yes. Of course I can help with that. Done")
	if len(units) != 1 {
		t.Fatalf("units = %q, want the short opener merged", units)
	}
	if units[0] != "Yes. Of course I can help with that. " {
		t.Fatalf("unit = %q", units[0])
	}
	if got := a.Flush(); got != "Done" {
		t.Fatalf("flush = %q", got)
	}
}

func TestAssembler_WhitespaceRunStaysAttached(t *testing.T) {
	a := NewAssembler(5)
	// The newline may still grow, so no unit until text follows.
	units := pushAll(a, "First point here.\n")
	if len(units) != 0 {
		t.Fatalf("units = %q, want none while whitespace run is open", units)
	}
	units = pushAll(a, "\nSecond point.")
	if len(units) != 1 || units[0] != "First point here.\n\n" {
		t.Fatalf("units = %q", units)
	}
}

func TestAssembler_FlushEmptyReturnsEmpty(t *testing.T) {
	a := NewAssembler(0)
	if got := a.Flush(); got != "" {
		t.Fatalf("flush = %q, want empty", got)
	}
}

func TestAssembler_ExactReconstruction(t *testing.T) {
	text := "Well... let me check. The CPU is at 42%! Memory, e.g. RAM, looks fine.\n\nShall I keep monitoring? Say stop when done."
	for _, size := range []int{1, 3, 7, len(text)} {
		a := NewAssembler(10)
		var parts []string
		for i := 0; i < len(text); i += size {
			end := min(i+size, len(text))
			parts = append(parts, a.Push(text[i:end])...)
		}
		if rest := a.Flush(); rest != "" {
			parts = append(parts, rest)
		}
		if got := strings.Join(parts, ""); got != text {
			t.Errorf("chunk size %d: reconstruction mismatch\n got %q\nwant %q", size, got, text)
		}
	}
}

// fakeTokenStream feeds fixed tokens and then a terminal error.
type fakeTokenStream struct {
	tokens []string
	final  error
	resp   *domain.ChatResponse
}

func (f *fakeTokenStream) Next(ctx context.Context) (string, error) {
	if len(f.tokens) == 0 {
		return "", f.final
	}
	tok := f.tokens[0]
	f.tokens = f.tokens[1:]
	return tok, nil
}

func (f *fakeTokenStream) Response() *domain.ChatResponse { return f.resp }
func (f *fakeTokenStream) Close() error                   { return nil }

func drainPipeline(t *testing.T, p *Pipeline) ([]string, error) {
	t.Helper()
	var units []string
	for {
		unit, err := p.Next(context.Background())
		if err != nil {
			return units, err
		}
		units = append(units, unit)
	}
}

func TestPipeline_FlushesTailOnEOF(t *testing.T) {
	ts := &fakeTokenStream{
		tokens: []string{"All done here. ", "Anything else"},
		final:  io.EOF,
	}
	units, err := drainPipeline(t, NewPipeline(ts, NewAssembler(5)))
	if err != io.EOF {
		t.Fatalf("err = %v, want io.EOF", err)
	}
	want := []string{"All done here. ", "Anything else"}
	if len(units) != len(want) || units[0] != want[0] || units[1] != want[1] {
		t.Fatalf("units = %q, want %q", units, want)
	}
}

func TestPipeline_FlushesPartialBeforeError(t *testing.T) {
	streamErr := errors.New("connection reset")
	ts := &fakeTokenStream{
		tokens: []string{"Let me look that up. ", "The answer is"},
		final:  streamErr,
	}
	units, err := drainPipeline(t, NewPipeline(ts, NewAssembler(5)))
	if !errors.Is(err, streamErr) {
		t.Fatalf("err = %v, want stream error", err)
	}
	if len(units) != 2 || units[1] != "The answer is" {
		t.Fatalf("units = %q, want partial flushed before the error", units)
	}
}

func TestPipeline_EmptyStream(t *testing.T) {
	ts := &fakeTokenStream{final: io.EOF}
	units, err := drainPipeline(t, NewPipeline(ts, nil))
	if err != io.EOF {
		t.Fatalf("err = %v", err)
	}
	if len(units) != 0 {
		t.Fatalf("units = %q, want none", units)
	}
}
