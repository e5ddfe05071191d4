package tool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"testing"

	"voxagent/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// stubTool is a minimal tool for registry tests.
type stubTool struct {
	name    string
	params  map[string]any
	execute func(ctx context.Context, args map[string]any) (string, error)
}

func (s *stubTool) Name() string        { return s.name }
func (s *stubTool) Description() string { return "stub " + s.name }
func (s *stubTool) Parameters() map[string]any {
	if s.params != nil {
		return s.params
	}
	return noParams()
}
func (s *stubTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	if s.execute != nil {
		return s.execute(ctx, args)
	}
	return "ok", nil
}

func TestRegister_DuplicateRejected(t *testing.T) {
	r := NewRegistry(testLogger())
	if err := r.Register(&stubTool{name: "echo"}); err != nil {
		t.Fatalf("first register: %v", err)
	}
	err := r.Register(&stubTool{name: "echo"})
	var dup *DuplicateToolError
	if !errors.As(err, &dup) {
		t.Fatalf("err = %v, want DuplicateToolError", err)
	}
	if dup.Name != "echo" {
		t.Fatalf("dup.Name = %q", dup.Name)
	}
}

func TestOverride_Replaces(t *testing.T) {
	r := NewRegistry(testLogger())
	if err := r.Register(&stubTool{name: "echo"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	r.Override(&stubTool{name: "echo", execute: func(ctx context.Context, args map[string]any) (string, error) {
		return "replaced", nil
	}})
	res := r.Dispatch(context.Background(), domain.ToolCall{Name: "echo"})
	if !res.Success || res.Payload != "replaced" {
		t.Fatalf("result = %+v", res)
	}
}

func TestDispatch_UnknownTool(t *testing.T) {
	r := NewRegistry(testLogger())
	res := r.Dispatch(context.Background(), domain.ToolCall{Name: "nope"})
	if res.Success {
		t.Fatal("want failure for unknown tool")
	}
	if !strings.Contains(res.Error, "unknown tool") {
		t.Fatalf("error = %q", res.Error)
	}
	if res.ToolName != "nope" {
		t.Fatalf("ToolName = %q", res.ToolName)
	}
}

func TestDispatch_MissingRequiredArgument(t *testing.T) {
	r := NewRegistry(testLogger())
	params := ToolParameters(map[string]Param{
		"path": {Type: "string", Description: "p"},
	}, []string{"path"})
	called := false
	err := r.Register(&stubTool{name: "reader", params: params,
		execute: func(ctx context.Context, args map[string]any) (string, error) {
			called = true
			return "", nil
		}})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	res := r.Dispatch(context.Background(), domain.ToolCall{Name: "reader", Arguments: map[string]any{}})
	if res.Success {
		t.Fatal("want validation failure")
	}
	if !strings.Contains(res.Error, "path") {
		t.Fatalf("error = %q", res.Error)
	}
	if called {
		t.Fatal("handler must not run on invalid arguments")
	}
}

func TestDispatch_WrongArgumentType(t *testing.T) {
	r := NewRegistry(testLogger())
	params := ToolParameters(map[string]Param{
		"count": {Type: "integer", Description: "n"},
	}, []string{"count"})
	if err := r.Register(&stubTool{name: "counter", params: params}); err != nil {
		t.Fatalf("register: %v", err)
	}
	res := r.Dispatch(context.Background(), domain.ToolCall{
		Name:      "counter",
		Arguments: map[string]any{"count": "three"},
	})
	if res.Success {
		t.Fatal("want type validation failure")
	}
}

func TestDispatch_HandlerErrorBecomesFailureResult(t *testing.T) {
	r := NewRegistry(testLogger())
	err := r.Register(&stubTool{name: "boom",
		execute: func(ctx context.Context, args map[string]any) (string, error) {
			return "", fmt.Errorf("disk on fire")
		}})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	res := r.Dispatch(context.Background(), domain.ToolCall{Name: "boom"})
	if res.Success {
		t.Fatal("want failure")
	}
	if res.Error != "disk on fire" {
		t.Fatalf("error = %q", res.Error)
	}
}

func TestDispatch_Success(t *testing.T) {
	r := NewRegistry(testLogger())
	args := map[string]any{"query": "weather"}
	err := r.Register(&stubTool{name: "lookup",
		params: ToolParameters(map[string]Param{"query": {Type: "string"}}, []string{"query"}),
		execute: func(ctx context.Context, got map[string]any) (string, error) {
			return "sunny", nil
		}})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	res := r.Dispatch(context.Background(), domain.ToolCall{Name: "lookup", Arguments: args})
	if !res.Success || res.Payload != "sunny" {
		t.Fatalf("result = %+v", res)
	}
	if res.Arguments["query"] != "weather" {
		t.Fatalf("arguments not echoed: %+v", res.Arguments)
	}
}

func TestDefinitions_SortedByName(t *testing.T) {
	r := NewRegistry(testLogger())
	for _, name := range []string{"zeta", "alpha", "mid"} {
		if err := r.Register(&stubTool{name: name}); err != nil {
			t.Fatalf("register %s: %v", name, err)
		}
	}
	defs := r.Definitions()
	if len(defs) != 3 {
		t.Fatalf("got %d definitions", len(defs))
	}
	want := []string{"alpha", "mid", "zeta"}
	for i, def := range defs {
		if def.Name != want[i] {
			t.Errorf("defs[%d].Name = %q, want %q", i, def.Name, want[i])
		}
	}
}

func TestRegisterBuiltins(t *testing.T) {
	r := NewRegistry(testLogger())
	if err := RegisterBuiltins(r, t.TempDir()); err != nil {
		t.Fatalf("RegisterBuiltins: %v", err)
	}
	for _, name := range []string{"get_current_time", "read_file", "search_web", "get_system_info"} {
		if r.Get(name) == nil {
			t.Errorf("builtin %s not registered", name)
		}
	}
}
