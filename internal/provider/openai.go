package provider

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"voxagent/internal/domain"
)

// OpenAI talks to OpenAI-compatible chat completion APIs, which covers
// the hosted endpoint as well as local servers (llama.cpp, Ollama,
// vLLM) that speak the same protocol.
type OpenAI struct {
	apiKey  string
	apiBase string
	model   string
	client  *http.Client
	logger  *slog.Logger
}

type OpenAIConfig struct {
	APIKey  string
	APIBase string
	Model   string
	Client  *http.Client
	Logger  *slog.Logger
}

func NewOpenAI(cfg OpenAIConfig) *OpenAI {
	if cfg.APIBase == "" {
		cfg.APIBase = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.Client == nil {
		cfg.Client = SharedHTTPClient(defaultHTTPTimeout)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &OpenAI{
		apiKey:  cfg.APIKey,
		apiBase: cfg.APIBase,
		model:   cfg.Model,
		client:  cfg.Client,
		logger:  cfg.Logger,
	}
}

func (o *OpenAI) Name() string { return "openai" }

type oaiRequest struct {
	Model       string       `json:"model"`
	Messages    []oaiMessage `json:"messages"`
	Tools       []oaiTool    `json:"tools,omitempty"`
	MaxTokens   int          `json:"max_tokens,omitempty"`
	Temperature *float64     `json:"temperature,omitempty"`
	Stream      bool         `json:"stream"`
}

type oaiMessage struct {
	Role       string        `json:"role"`
	Content    string        `json:"content"`
	ToolCalls  []oaiToolCall `json:"tool_calls,omitempty"`
	ToolCallID string        `json:"tool_call_id,omitempty"`
	Name       string        `json:"name,omitempty"`
}

type oaiTool struct {
	Type     string      `json:"type"`
	Function oaiFunction `json:"function"`
}

type oaiFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

type oaiToolCall struct {
	ID       string        `json:"id"`
	Type     string        `json:"type"`
	Function oaiToolCallFn `json:"function"`
}

type oaiToolCallFn struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type oaiResponse struct {
	Choices []oaiChoice `json:"choices"`
	Usage   oaiUsage    `json:"usage"`
}

type oaiChoice struct {
	Message      oaiMessage `json:"message"`
	FinishReason string     `json:"finish_reason"`
}

type oaiUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

func (o *OpenAI) buildRequest(req domain.ChatRequest, streaming bool) oaiRequest {
	model := req.Model
	if model == "" {
		model = o.model
	}

	msgs := make([]oaiMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		om := oaiMessage{Role: m.Role, Content: m.Content}
		if m.ToolCallID != "" {
			om.ToolCallID = m.ToolCallID
			om.Name = m.ToolName
		}
		for _, tc := range m.ToolCalls {
			args, _ := json.Marshal(tc.Arguments)
			om.ToolCalls = append(om.ToolCalls, oaiToolCall{
				ID:       tc.ID,
				Type:     "function",
				Function: oaiToolCallFn{Name: tc.Name, Arguments: string(args)},
			})
		}
		msgs = append(msgs, om)
	}

	body := oaiRequest{Model: model, Messages: msgs, Stream: streaming}
	if req.MaxTokens > 0 {
		body.MaxTokens = req.MaxTokens
	}
	if req.Temperature > 0 {
		body.Temperature = &req.Temperature
	}
	for _, t := range req.Tools {
		body.Tools = append(body.Tools, oaiTool{
			Type: "function",
			Function: oaiFunction{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}
	return body
}

func (o *OpenAI) post(ctx context.Context, body oaiRequest) (*http.Response, error) {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, "POST", o.apiBase+"/chat/completions", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if o.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)
	}

	resp, err := o.client.Do(httpReq)
	if err != nil {
		return nil, &Error{Provider: o.Name(), Message: err.Error()}
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, apiError(o.Name(), resp.StatusCode, respBody)
	}
	return resp, nil
}

// Complete performs a non-streaming chat completion.
func (o *OpenAI) Complete(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	resp, err := o.post(ctx, o.buildRequest(req, false))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var oaiResp oaiResponse
	if err := json.NewDecoder(resp.Body).Decode(&oaiResp); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if len(oaiResp.Choices) == 0 {
		return &domain.ChatResponse{FinishReason: "stop"}, nil
	}

	choice := oaiResp.Choices[0]
	out := &domain.ChatResponse{
		Content:      choice.Message.Content,
		FinishReason: choice.FinishReason,
		Usage: domain.Usage{
			PromptTokens:     oaiResp.Usage.PromptTokens,
			CompletionTokens: oaiResp.Usage.CompletionTokens,
			TotalTokens:      oaiResp.Usage.TotalTokens,
		},
	}
	for _, tc := range choice.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, decodeToolCall(tc))
	}
	return out, nil
}

func decodeToolCall(tc oaiToolCall) domain.ToolCall {
	var args map[string]any
	_ = json.Unmarshal([]byte(tc.Function.Arguments), &args)
	if args == nil {
		args = make(map[string]any)
	}
	return domain.ToolCall{ID: tc.ID, Name: tc.Function.Name, Arguments: args}
}

// Stream performs a streaming chat completion over server-sent events.
func (o *OpenAI) Stream(ctx context.Context, req domain.ChatRequest) (domain.TokenStream, error) {
	resp, err := o.post(ctx, o.buildRequest(req, true))
	if err != nil {
		return nil, err
	}
	return &sseStream{
		provider: o.Name(),
		body:     resp.Body,
		scanner:  bufio.NewScanner(resp.Body),
		calls:    make(map[int]*oaiToolCall),
	}, nil
}

// sseStream decodes the chunked completion format. Tool call fragments
// arrive spread across chunks keyed by index and are reassembled into
// the final response once the stream ends.
type sseStream struct {
	provider string
	body     io.ReadCloser
	scanner  *bufio.Scanner

	content strings.Builder
	calls   map[int]*oaiToolCall
	finish  string
	usage   oaiUsage
	done    bool
}

type oaiStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content   string `json:"content"`
			ToolCalls []struct {
				Index    int           `json:"index"`
				ID       string        `json:"id"`
				Function oaiToolCallFn `json:"function"`
			} `json:"tool_calls"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *oaiUsage `json:"usage"`
}

func (s *sseStream) Next(ctx context.Context) (string, error) {
	if s.done {
		return "", io.EOF
	}
	for s.scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		line := strings.TrimSpace(s.scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			s.done = true
			return "", io.EOF
		}

		var chunk oaiStreamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return "", fmt.Errorf("decode stream chunk: %w", err)
		}
		if chunk.Usage != nil {
			s.usage = *chunk.Usage
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		choice := chunk.Choices[0]
		if choice.FinishReason != "" {
			s.finish = choice.FinishReason
		}
		for _, frag := range choice.Delta.ToolCalls {
			tc, ok := s.calls[frag.Index]
			if !ok {
				tc = &oaiToolCall{}
				s.calls[frag.Index] = tc
			}
			if frag.ID != "" {
				tc.ID = frag.ID
			}
			if frag.Function.Name != "" {
				tc.Function.Name += frag.Function.Name
			}
			tc.Function.Arguments += frag.Function.Arguments
		}
		if choice.Delta.Content != "" {
			s.content.WriteString(choice.Delta.Content)
			return choice.Delta.Content, nil
		}
	}
	if err := s.scanner.Err(); err != nil {
		return "", &Error{Provider: s.provider, Message: "stream interrupted: " + err.Error()}
	}
	s.done = true
	return "", io.EOF
}

func (s *sseStream) Response() *domain.ChatResponse {
	out := &domain.ChatResponse{
		Content:      s.content.String(),
		FinishReason: s.finish,
		Usage: domain.Usage{
			PromptTokens:     s.usage.PromptTokens,
			CompletionTokens: s.usage.CompletionTokens,
			TotalTokens:      s.usage.TotalTokens,
		},
	}
	for i := 0; i < len(s.calls); i++ {
		if tc := s.calls[i]; tc != nil {
			out.ToolCalls = append(out.ToolCalls, decodeToolCall(*tc))
		}
	}
	return out
}

func (s *sseStream) Close() error { return s.body.Close() }

var (
	_ domain.LLMProvider          = (*OpenAI)(nil)
	_ domain.StreamingLLMProvider = (*OpenAI)(nil)
)
