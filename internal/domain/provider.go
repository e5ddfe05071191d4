package domain

import (
	"context"
	"io"
)

// LLMProvider is the interface all language-model providers implement.
type LLMProvider interface {
	Complete(ctx context.Context, req ChatRequest) (*ChatResponse, error)
	Name() string
}

// StreamingLLMProvider is an optional extension for providers that can
// deliver the response as a token stream.
type StreamingLLMProvider interface {
	LLMProvider
	Stream(ctx context.Context, req ChatRequest) (TokenStream, error)
}

// TokenStream is a pull-based sequence of token fragments. Next returns
// io.EOF when the stream is complete; any other error means the stream
// failed mid-generation. A stream is single-use.
type TokenStream interface {
	Next(ctx context.Context) (string, error)
	// Response returns the accumulated final response (content plus any
	// tool calls) once Next has returned io.EOF. Behavior before EOF is
	// undefined.
	Response() *ChatResponse
	Close() error
}

// Transcription is the result of a speech-recognition call.
type Transcription struct {
	Text     string  `json:"text"`
	Language string  `json:"language,omitempty"`
	Duration float64 `json:"duration,omitempty"`
}

// Transcriber converts audio to text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio io.Reader, filename string) (*Transcription, error)
}

// Synthesizer converts text to audio. Called once per finalized reply
// or once per streamed utterance unit.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}
