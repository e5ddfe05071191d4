package config

import "path/filepath"

// Defaults returns a config that passes validation out of the box,
// pointed at a local OpenAI-compatible endpoint.
func Defaults() *Config {
	dir := DefaultConfigDir()
	return &Config{
		General: GeneralConfig{
			Workspace:     filepath.Join(dir, "workspace"),
			LogLevel:      "info",
			SystemPrompt:  defaultSystemPrompt,
			MaxChainDepth: 5,
			Streaming:     true,
		},
		LLM: LLMConfig{
			APIBase: "http://localhost:11434/v1",
			Model:   "llama3.2",
		},
		STT: STTConfig{
			APIBase: "http://localhost:8080/v1",
			Model:   "whisper-1",
		},
		TTS: TTSConfig{
			Backend: "openai",
			APIBase: "http://localhost:8880/v1",
			Model:   "tts-1",
			Voice:   "alloy",
		},
		Context: ContextConfig{
			MaxMessages: 40,
		},
		State: StateConfig{
			DBPath:      filepath.Join(dir, "state.db"),
			ResumeLimit: 50,
		},
		Retry: RetryConfig{
			MaxRetries:    3,
			BackoffBaseMs: 500,
			MaxBackoffMs:  30000,
		},
		Plugins: PluginsConfig{
			Dir: filepath.Join(dir, "plugins"),
		},
		Metrics: MetricsConfig{
			Addr: "localhost:9090",
		},
	}
}

const defaultSystemPrompt = "You are a helpful voice assistant running on the user's own machine. " +
	"Keep replies short and conversational, as they will be spoken aloud. " +
	"Use the available tools when a request needs an action or fresh information."
