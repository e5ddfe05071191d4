package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"

	"voxagent/internal/domain"
)

// WhisperConfig configures speech recognition against an
// OpenAI-compatible transcription endpoint.
type WhisperConfig struct {
	APIBase  string // e.g. "https://api.openai.com/v1" or a local server
	APIKey   string
	Model    string // e.g. "whisper-1" or "whisper-large-v3"
	Language string // optional ISO-639-1 hint
	Logger   *slog.Logger
}

// Whisper converts recorded audio to text.
type Whisper struct {
	apiBase  string
	apiKey   string
	model    string
	language string
	client   *http.Client
	logger   *slog.Logger
}

func NewWhisper(cfg WhisperConfig) *Whisper {
	if cfg.APIBase == "" {
		cfg.APIBase = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "whisper-1"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Whisper{
		apiBase:  cfg.APIBase,
		apiKey:   cfg.APIKey,
		model:    cfg.Model,
		language: cfg.Language,
		client:   SharedHTTPClient(defaultHTTPTimeout),
		logger:   cfg.Logger,
	}
}

func (w *Whisper) Name() string { return "whisper" }

// Transcribe converts audio to text. filename must carry the extension
// so the server can pick a decoder.
func (w *Whisper) Transcribe(ctx context.Context, audio io.Reader, filename string) (*domain.Transcription, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, audio); err != nil {
		return nil, fmt.Errorf("copy audio data: %w", err)
	}
	writer.WriteField("model", w.model)
	writer.WriteField("response_format", "verbose_json")
	if w.language != "" {
		writer.WriteField("language", w.language)
	}
	writer.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.apiBase+"/audio/transcriptions", &body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if w.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+w.apiKey)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, &Error{Provider: w.Name(), Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, apiError(w.Name(), resp.StatusCode, respBody)
	}

	var result domain.Transcription
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode transcription: %w", err)
	}

	w.logger.Info("transcription complete",
		"text_len", len(result.Text),
		"language", result.Language,
		"duration", result.Duration,
	)
	return &result, nil
}

var _ domain.Transcriber = (*Whisper)(nil)
