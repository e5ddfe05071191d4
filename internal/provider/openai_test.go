package provider

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"voxagent/internal/domain"
	"voxagent/internal/resilience"
)

func TestComplete_DecodesToolCalls(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{
			"choices": [{
				"message": {
					"role": "assistant",
					"content": "",
					"tool_calls": [{
						"id": "call_1",
						"type": "function",
						"function": {"name": "get_current_time", "arguments": "{}"}
					}]
				},
				"finish_reason": "tool_calls"
			}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 5, "total_tokens": 17}
		}`)
	}))
	defer srv.Close()

	p := NewOpenAI(OpenAIConfig{APIBase: srv.URL, APIKey: "test"})
	resp, err := p.Complete(context.Background(), domain.ChatRequest{
		Messages: []domain.Message{{Role: domain.RoleUser, Content: "what time is it"}},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if !resp.HasToolCalls() {
		t.Fatal("want tool calls")
	}
	if resp.ToolCalls[0].Name != "get_current_time" || resp.ToolCalls[0].ID != "call_1" {
		t.Fatalf("tool call = %+v", resp.ToolCalls[0])
	}
	if resp.Usage.TotalTokens != 17 {
		t.Fatalf("usage = %+v", resp.Usage)
	}
}

func TestComplete_ErrorClassification(t *testing.T) {
	cases := []struct {
		status int
		want   resilience.Class
	}{
		{http.StatusTooManyRequests, resilience.Transient},
		{http.StatusInternalServerError, resilience.Transient},
		{http.StatusBadGateway, resilience.Transient},
		{http.StatusPaymentRequired, resilience.ResourceExhausted},
		{http.StatusRequestEntityTooLarge, resilience.ResourceExhausted},
		{http.StatusBadRequest, resilience.Permanent},
		{http.StatusUnauthorized, resilience.Permanent},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
			io.WriteString(w, `{"error": {"message": "nope"}}`)
		}))
		p := NewOpenAI(OpenAIConfig{APIBase: srv.URL})
		_, err := p.Complete(context.Background(), domain.ChatRequest{})
		srv.Close()

		var pErr *Error
		if !errors.As(err, &pErr) {
			t.Fatalf("status %d: err = %v, want *Error", tc.status, err)
		}
		if got := pErr.ErrorClass(); got != tc.want {
			t.Errorf("status %d: class = %v, want %v", tc.status, got, tc.want)
		}
	}
}

func TestError_QuotaMessageClassifiedExhausted(t *testing.T) {
	e := &Error{Provider: "openai", Status: http.StatusTooManyRequests, Message: "rate limited"}
	if e.ErrorClass() != resilience.Transient {
		t.Fatal("plain 429 should be transient")
	}
	e = &Error{Provider: "openai", Status: http.StatusForbidden, Message: "insufficient quota"}
	if e.ErrorClass() != resilience.ResourceExhausted {
		t.Fatal("quota message should be resource-exhausted")
	}
}

func TestStream_TokensAndToolCalls(t *testing.T) {
	chunks := []string{
		`data: {"choices":[{"delta":{"content":"Hel"}}]}`,
		`data: {"choices":[{"delta":{"content":"lo. "}}]}`,
		`data: {"choices":[{"delta":{"tool_calls":[{"index":0,"id":"call_9","function":{"name":"search","arguments":"{\"q\":"}}]}}]}`,
		`data: {"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"\"go\"}"}}]}}]}`,
		`data: {"choices":[{"delta":{},"finish_reason":"tool_calls"}]}`,
		`data: [DONE]`,
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, c := range chunks {
			io.WriteString(w, c+"\n\n")
		}
	}))
	defer srv.Close()

	p := NewOpenAI(OpenAIConfig{APIBase: srv.URL})
	ts, err := p.Stream(context.Background(), domain.ChatRequest{
		Messages: []domain.Message{{Role: domain.RoleUser, Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	defer ts.Close()

	var tokens []string
	for {
		tok, err := ts.Next(context.Background())
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		tokens = append(tokens, tok)
	}
	if got := strings.Join(tokens, ""); got != "Hello. " {
		t.Fatalf("tokens = %q", got)
	}

	resp := ts.Response()
	if resp.Content != "Hello. " {
		t.Fatalf("content = %q", resp.Content)
	}
	if resp.FinishReason != "tool_calls" {
		t.Fatalf("finish = %q", resp.FinishReason)
	}
	if len(resp.ToolCalls) != 1 {
		t.Fatalf("tool calls = %+v", resp.ToolCalls)
	}
	tc := resp.ToolCalls[0]
	if tc.ID != "call_9" || tc.Name != "search" || tc.Arguments["q"] != "go" {
		t.Fatalf("tool call = %+v", tc)
	}
}

func TestWhisper_Transcribe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if got := r.FormValue("model"); got != "whisper-1" {
			t.Errorf("model = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"text": "turn on the lights", "language": "en", "duration": 1.4}`)
	}))
	defer srv.Close()

	w := NewWhisper(WhisperConfig{APIBase: srv.URL, APIKey: "test"})
	got, err := w.Transcribe(context.Background(), strings.NewReader("fakeaudio"), "clip.ogg")
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if got.Text != "turn on the lights" || got.Language != "en" {
		t.Fatalf("transcription = %+v", got)
	}
}

func TestTTS_Synthesize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/speech" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Write([]byte("mp3bytes"))
	}))
	defer srv.Close()

	tts := NewTTS(TTSConfig{APIBase: srv.URL, APIKey: "test"})
	audio, err := tts.Synthesize(context.Background(), "Hello there.")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if string(audio) != "mp3bytes" {
		t.Fatalf("audio = %q", audio)
	}
}
