// Package tool holds the registry of model-invocable functions and the
// built-in assistant tools.
package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"voxagent/internal/domain"
)

// DuplicateToolError reports a second registration under the same name.
type DuplicateToolError struct {
	Name string
}

func (e *DuplicateToolError) Error() string {
	return fmt.Sprintf("tool %q is already registered", e.Name)
}

// Registry holds all invocable tools and executes model tool calls.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]domain.Tool
	logger *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		tools:  make(map[string]domain.Tool),
		logger: logger,
	}
}

// Register adds a tool. Registering a name twice is an error so a
// plugin cannot silently shadow a built-in.
func (r *Registry) Register(t domain.Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.Name()]; exists {
		return &DuplicateToolError{Name: t.Name()}
	}
	r.tools[t.Name()] = t
	r.logger.Debug("registered tool", "name", t.Name())
	return nil
}

// Override replaces any existing registration under the tool's name.
func (r *Registry) Override(t domain.Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.Name()]; exists {
		r.logger.Info("overriding tool registration", "name", t.Name())
	}
	r.tools[t.Name()] = t
}

func (r *Registry) Get(name string) domain.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for n := range r.tools {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Definitions returns schemas for every registered tool, sorted by name
// so the model sees a stable ordering across turns.
func (r *Registry) Definitions() []domain.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]domain.ToolDefinition, 0, len(r.tools))
	for _, t := range r.tools {
		defs = append(defs, domain.ToolDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		})
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Dispatch executes one model tool call and always returns a structured
// result. Unknown tools, invalid arguments, and handler errors become
// failure results rather than Go errors, so the conversation can carry
// the failure back to the model.
func (r *Registry) Dispatch(ctx context.Context, call domain.ToolCall) domain.ToolResult {
	result := domain.ToolResult{
		ToolName:  call.Name,
		Arguments: call.Arguments,
	}

	t := r.Get(call.Name)
	if t == nil {
		result.Error = fmt.Sprintf("unknown tool: %s (available: %v)", call.Name, r.Names())
		r.logger.Warn("tool call for unknown tool", "name", call.Name)
		return result
	}

	if err := validateArgs(t.Parameters(), call.Arguments); err != nil {
		result.Error = fmt.Sprintf("invalid arguments for %s: %s", call.Name, err)
		return result
	}

	payload, err := t.Execute(ctx, call.Arguments)
	if err != nil {
		result.Error = err.Error()
		r.logger.Warn("tool execution failed", "name", call.Name, "err", err)
		return result
	}
	result.Success = true
	result.Payload = payload
	return result
}

// Param describes a single tool parameter.
type Param struct {
	Type        string
	Description string
}

// ToolParameters builds a JSON Schema "parameters" object for a tool.
func ToolParameters(properties map[string]Param, required []string) map[string]any {
	props := make(map[string]any)
	for name, p := range properties {
		props[name] = map[string]any{"type": p.Type, "description": p.Description}
	}
	schema := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// ArgsString extracts a string argument, marshaling non-string values.
func ArgsString(args map[string]any, key string) string {
	if args == nil {
		return ""
	}
	v, ok := args[key]
	if !ok {
		return ""
	}
	switch s := v.(type) {
	case string:
		return s
	default:
		b, _ := json.Marshal(v)
		return string(b)
	}
}

// ArgsInt extracts an integer argument; JSON numbers arrive as float64.
func ArgsInt(args map[string]any, key string, fallback int) int {
	if args == nil {
		return fallback
	}
	switch n := args[key].(type) {
	case float64:
		return int(n)
	case int:
		return n
	default:
		return fallback
	}
}
