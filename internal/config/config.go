// Package config loads and validates the JSON configuration file,
// with ${VAR} and ${VAR:-default} environment expansion.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Config is the root configuration for voxagent.
type Config struct {
	General  GeneralConfig  `json:"general"`
	LLM      LLMConfig      `json:"llm"`
	STT      STTConfig      `json:"stt"`
	TTS      TTSConfig      `json:"tts"`
	Context  ContextConfig  `json:"context"`
	State    StateConfig    `json:"state"`
	Retry    RetryConfig    `json:"retry"`
	Plugins  PluginsConfig  `json:"plugins"`
	Metrics  MetricsConfig  `json:"metrics"`
}

type GeneralConfig struct {
	Workspace     string `json:"workspace"`
	LogLevel      string `json:"logLevel"` // "debug" | "info" | "warn" | "error"
	LogFile       string `json:"logFile,omitempty"`
	SystemPrompt  string `json:"systemPrompt,omitempty"`
	MaxChainDepth int    `json:"maxChainDepth"` // tool-call rounds before the loop guard fires
	Streaming     bool   `json:"streaming"`
}

// LLMConfig configures the language-model provider (OpenAI-compatible
// chat completions). FallbackModel, when set, is tried once after a
// resource-exhausted failure of the default model.
type LLMConfig struct {
	APIBase       string `json:"apiBase"`
	APIKey        string `json:"apiKey,omitempty"`
	Model         string `json:"model"`
	FallbackModel string `json:"fallbackModel,omitempty"`
	MaxTokens     int    `json:"maxTokens,omitempty"`
}

// STTConfig configures the speech-recognition provider
// (Whisper-compatible transcription endpoint).
type STTConfig struct {
	Enabled  bool   `json:"enabled"`
	APIBase  string `json:"apiBase,omitempty"`
	APIKey   string `json:"apiKey,omitempty"`
	Model    string `json:"model,omitempty"`
	Language string `json:"language,omitempty"` // empty = auto-detect
}

// TTSConfig configures the speech-synthesis provider.
type TTSConfig struct {
	Enabled bool   `json:"enabled"`
	Backend string `json:"backend,omitempty"` // "openai" | "elevenlabs"
	APIBase string `json:"apiBase,omitempty"`
	APIKey  string `json:"apiKey,omitempty"`
	Model   string `json:"model,omitempty"`
	Voice   string `json:"voice,omitempty"`
}

type ContextConfig struct {
	MaxMessages int    `json:"maxMessages"`
	SummaryModel string `json:"summaryModel,omitempty"` // empty = discard on prune
}

// StateConfig configures durable persistence: session state and the
// transcript used for session resume share one SQLite file.
type StateConfig struct {
	DBPath      string `json:"dbPath"`
	ResumeLimit int    `json:"resumeLimit"` // transcript messages seeded on resume
}

type RetryConfig struct {
	MaxRetries    int `json:"maxRetries"`
	BackoffBaseMs int `json:"backoffBaseMs"`
	MaxBackoffMs  int `json:"maxBackoffMs"`
}

type PluginsConfig struct {
	Enabled bool   `json:"enabled"`
	Dir     string `json:"dir,omitempty"` // directory of plugin manifests
}

type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"` // listen address for the exposition endpoint
}

// DefaultConfigDir returns the default config directory (~/.voxagent).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".voxagent"
	}
	return filepath.Join(home, ".voxagent")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	cfg.General.Workspace = ExpandPath(cfg.General.Workspace)
	cfg.General.LogFile = ExpandPath(cfg.General.LogFile)
	cfg.State.DBPath = ExpandPath(cfg.State.DBPath)
	cfg.Plugins.Dir = ExpandPath(cfg.Plugins.Dir)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// ${VAR:-default} uses "default" when VAR is unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultVal := ""
		hasDefault := len(groups) >= 3 && groups[2] != ""
		if hasDefault {
			defaultVal = groups[2]
		}

		val, exists := os.LookupEnv(varName)
		if !exists || val == "" {
			if hasDefault {
				return defaultVal
			}
			return match // keep original when no env var and no default
		}
		return val
	})
}

func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0o644)
}

// Validate checks that the config has valid values.
func Validate(cfg *Config) error {
	var errs []string

	switch cfg.General.LogLevel {
	case "", "debug", "info", "warn", "error":
		// valid
	default:
		errs = append(errs, "general.logLevel must be one of: debug, info, warn, error")
	}
	if cfg.General.MaxChainDepth < 1 || cfg.General.MaxChainDepth > 50 {
		errs = append(errs, "general.maxChainDepth must be between 1 and 50")
	}

	if cfg.LLM.APIBase == "" {
		errs = append(errs, "llm.apiBase is required")
	}
	if cfg.LLM.Model == "" {
		errs = append(errs, "llm.model is required")
	}
	if cfg.STT.Enabled && cfg.STT.APIBase == "" {
		errs = append(errs, "stt.apiBase is required when stt is enabled")
	}
	if cfg.TTS.Enabled {
		switch cfg.TTS.Backend {
		case "", "openai", "elevenlabs":
			// valid
		default:
			errs = append(errs, "tts.backend must be one of: openai, elevenlabs")
		}
	}

	if cfg.Context.MaxMessages < 4 {
		errs = append(errs, "context.maxMessages must be >= 4")
	}
	if cfg.State.ResumeLimit < 0 {
		errs = append(errs, "state.resumeLimit must be >= 0")
	}
	if cfg.Retry.MaxRetries < 0 || cfg.Retry.MaxRetries > 20 {
		errs = append(errs, "retry.maxRetries must be between 0 and 20")
	}
	if cfg.Retry.BackoffBaseMs < 1 {
		errs = append(errs, "retry.backoffBaseMs must be >= 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ExpandPath resolves a leading ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
