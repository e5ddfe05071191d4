package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("VOX_TEST_KEY", "secret123")
	os.Unsetenv("VOX_TEST_MISSING")

	tests := []struct {
		in   string
		want string
	}{
		{"${VOX_TEST_KEY}", "secret123"},
		{"prefix-${VOX_TEST_KEY}-suffix", "prefix-secret123-suffix"},
		{"${VOX_TEST_MISSING:-fallback}", "fallback"},
		{"${VOX_TEST_KEY:-unused}", "secret123"},
		{"${VOX_TEST_MISSING}", "${VOX_TEST_MISSING}"},
		{"no vars here", "no vars here"},
	}
	for _, tt := range tests {
		if got := ExpandEnvVars(tt.in); got != tt.want {
			t.Errorf("ExpandEnvVars(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLoad_AppliesDefaultsAndExpansion(t *testing.T) {
	t.Setenv("VOX_TEST_API_KEY", "sk-test")
	path := filepath.Join(t.TempDir(), "config.json")
	raw := `{
		"llm": {
			"apiBase": "http://localhost:1234/v1",
			"apiKey": "${VOX_TEST_API_KEY}",
			"model": "test-model"
		}
	}`
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LLM.APIKey != "sk-test" {
		t.Fatalf("apiKey = %q, want expanded env value", cfg.LLM.APIKey)
	}
	if cfg.LLM.Model != "test-model" {
		t.Fatalf("model = %q", cfg.LLM.Model)
	}
	// Untouched sections keep their defaults.
	if cfg.Context.MaxMessages != 40 {
		t.Fatalf("context.maxMessages = %d, want default 40", cfg.Context.MaxMessages)
	}
	if cfg.General.MaxChainDepth != 5 {
		t.Fatalf("general.maxChainDepth = %d, want default 5", cfg.General.MaxChainDepth)
	}
}

func TestLoad_RejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	raw := `{
		"general": {"maxChainDepth": 0},
		"llm": {"apiBase": "", "model": ""}
	}`
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"maxChainDepth", "llm.apiBase", "llm.model"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q missing %q", err, want)
		}
	}
}

func TestDefaults_PassValidation(t *testing.T) {
	if err := Validate(Defaults()); err != nil {
		t.Fatalf("Defaults() should validate: %v", err)
	}
}

func TestSaveThenLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")
	cfg := Defaults()
	cfg.LLM.Model = "custom"
	cfg.General.Streaming = false

	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.LLM.Model != "custom" {
		t.Fatalf("model = %q", loaded.LLM.Model)
	}
	if loaded.General.Streaming {
		t.Fatal("streaming should stay false")
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	if got := ExpandPath("~/x/y"); got != filepath.Join(home, "x", "y") {
		t.Fatalf("ExpandPath = %q", got)
	}
	if got := ExpandPath("/abs/path"); got != "/abs/path" {
		t.Fatalf("absolute path changed: %q", got)
	}
}
