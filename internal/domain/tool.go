package domain

import "context"

// Tool is the interface for assistant capabilities (files, apps, input
// devices, web search, system introspection). Execution may have
// arbitrary side effects; errors are captured by the registry and never
// propagate raw to the orchestration engine.
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]any
	Execute(ctx context.Context, args map[string]any) (string, error)
}

// ToolDefinition is the provider-agnostic schema form of a registered
// tool, included verbatim in language-model requests.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}
