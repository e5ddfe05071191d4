package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"voxagent/internal/domain"
)

// TTSConfig configures the text-to-speech backend.
type TTSConfig struct {
	Backend string // "openai" | "elevenlabs"
	APIBase string
	APIKey  string
	Model   string // e.g. "tts-1" (OpenAI) or a model id (ElevenLabs)
	Voice   string // e.g. "alloy" (OpenAI) or a voice id (ElevenLabs)
	Logger  *slog.Logger
}

// TTS synthesizes spoken audio (MP3) from text.
type TTS struct {
	backend string
	apiBase string
	apiKey  string
	model   string
	voice   string
	client  *http.Client
	logger  *slog.Logger
}

func NewTTS(cfg TTSConfig) *TTS {
	if cfg.Backend == "" {
		cfg.Backend = "openai"
	}
	if cfg.APIBase == "" {
		switch cfg.Backend {
		case "elevenlabs":
			cfg.APIBase = "https://api.elevenlabs.io/v1"
		default:
			cfg.APIBase = "https://api.openai.com/v1"
		}
	}
	if cfg.Model == "" && cfg.Backend == "openai" {
		cfg.Model = "tts-1"
	}
	if cfg.Voice == "" && cfg.Backend == "openai" {
		cfg.Voice = "alloy"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &TTS{
		backend: cfg.Backend,
		apiBase: cfg.APIBase,
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		voice:   cfg.Voice,
		client:  SharedHTTPClient(60 * time.Second),
		logger:  cfg.Logger,
	}
}

func (t *TTS) Name() string { return "tts-" + t.backend }

// Synthesize converts one utterance to audio bytes.
func (t *TTS) Synthesize(ctx context.Context, text string) ([]byte, error) {
	switch t.backend {
	case "openai":
		return t.synthesizeOpenAI(ctx, text)
	case "elevenlabs":
		return t.synthesizeElevenLabs(ctx, text)
	default:
		return nil, fmt.Errorf("unsupported TTS backend: %s", t.backend)
	}
}

func (t *TTS) synthesizeOpenAI(ctx context.Context, text string) ([]byte, error) {
	body, err := json.Marshal(map[string]string{
		"model": t.model,
		"input": text,
		"voice": t.voice,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.apiBase+"/audio/speech", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+t.apiKey)
	req.Header.Set("Content-Type", "application/json")
	return t.do(req)
}

func (t *TTS) synthesizeElevenLabs(ctx context.Context, text string) ([]byte, error) {
	voiceID := t.voice
	if voiceID == "" {
		voiceID = "21m00Tcm4TlvDq8ikWAM"
	}
	model := t.model
	if model == "" {
		model = "eleven_monolingual_v1"
	}
	body, err := json.Marshal(map[string]string{
		"text":     text,
		"model_id": model,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}
	url := fmt.Sprintf("%s/text-to-speech/%s", t.apiBase, voiceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("xi-api-key", t.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")
	return t.do(req)
}

func (t *TTS) do(req *http.Request) ([]byte, error) {
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, &Error{Provider: t.Name(), Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, apiError(t.Name(), resp.StatusCode, respBody)
	}
	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}
	t.logger.Debug("synthesized utterance", "bytes", len(audio))
	return audio, nil
}

var _ domain.Synthesizer = (*TTS)(nil)
