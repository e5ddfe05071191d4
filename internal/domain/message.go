package domain

// Message roles. Tool-result messages use RoleTool and must carry the
// ToolCallID of the assistant tool call they answer.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one turn of dialogue in the conversation log.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolName   string     `json:"tool_name,omitempty"`
	Important  bool       `json:"important,omitempty"` // exempt from pruning while other candidates remain
}

// ToolCall is a single tool invocation requested by the assistant.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ToolResult is the outcome of dispatching one tool call. Exactly one
// result exists per invocation request; a failed call still produces a
// result so the model can react to the failure.
type ToolResult struct {
	ToolName  string         `json:"tool_name"`
	Arguments map[string]any `json:"arguments_used,omitempty"`
	Success   bool           `json:"success"`
	Payload   string         `json:"result,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// Text returns the result text to embed in a tool message.
func (r ToolResult) Text() string {
	if r.Success {
		return r.Payload
	}
	return "Error: " + r.Error
}

// ChatRequest is a single language-model call.
type ChatRequest struct {
	Messages    []Message
	Tools       []ToolDefinition
	Model       string
	MaxTokens   int
	Temperature float64
}

// ChatResponse is the model's decision: plain text, tool calls, or both.
type ChatResponse struct {
	Content      string
	ToolCalls    []ToolCall
	FinishReason string // stop | tool_calls | length
	Usage        Usage
}

func (r *ChatResponse) HasToolCalls() bool {
	return len(r.ToolCalls) > 0
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}
