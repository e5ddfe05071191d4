package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"voxagent/internal/config"
	"voxagent/internal/contextstore"
	"voxagent/internal/convstate"
	"voxagent/internal/domain"
	"voxagent/internal/engine"
	"voxagent/internal/events"
	"voxagent/internal/plugin"
	"voxagent/internal/provider"
	"voxagent/internal/resilience"
	"voxagent/internal/tool"
	"voxagent/internal/transcript"
)

// App holds the wired orchestration core and the stores it owns.
type App struct {
	Engine  *engine.Engine
	Bus     *events.Bus
	states  *convstate.SQLiteStore
	records *transcript.SQLiteStore
	plugins *plugin.Manager
}

// buildApp assembles the engine from config: providers, tool registry
// (builtins plus plugins), persistence, and the event bus.
func buildApp(ctx context.Context, cfg *config.Config) (*App, error) {
	llm := provider.NewOpenAI(provider.OpenAIConfig{
		APIKey:  cfg.LLM.APIKey,
		APIBase: cfg.LLM.APIBase,
		Model:   cfg.LLM.Model,
		Logger:  logger,
	})

	var transcriber domain.Transcriber
	if cfg.STT.Enabled {
		transcriber = provider.NewWhisper(provider.WhisperConfig{
			APIBase:  cfg.STT.APIBase,
			APIKey:   cfg.STT.APIKey,
			Model:    cfg.STT.Model,
			Language: cfg.STT.Language,
			Logger:   logger,
		})
	}

	var synthesizer domain.Synthesizer
	if cfg.TTS.Enabled {
		synthesizer = provider.NewTTS(provider.TTSConfig{
			Backend: cfg.TTS.Backend,
			APIBase: cfg.TTS.APIBase,
			APIKey:  cfg.TTS.APIKey,
			Model:   cfg.TTS.Model,
			Voice:   cfg.TTS.Voice,
			Logger:  logger,
		})
	}

	registry := tool.NewRegistry(logger)
	if err := tool.RegisterBuiltins(registry, cfg.General.Workspace); err != nil {
		return nil, fmt.Errorf("register builtin tools: %w", err)
	}

	var plugins *plugin.Manager
	if cfg.Plugins.Enabled {
		plugins = plugin.NewManager(logger)
		if err := plugins.LoadAll(ctx, cfg.Plugins.Dir, registry); err != nil {
			logger.Warn("plugin loading incomplete", "err", err)
		}
	}

	states, err := convstate.NewSQLiteStore(cfg.State.DBPath, logger)
	if err != nil {
		return nil, fmt.Errorf("open state store: %w", err)
	}
	records, err := transcript.NewSQLiteStore(cfg.State.DBPath, logger)
	if err != nil {
		states.Close()
		return nil, fmt.Errorf("open transcript store: %w", err)
	}

	contextCfg := contextstore.Config{
		MaxMessages: cfg.Context.MaxMessages,
		Logger:      logger,
	}
	if cfg.Context.SummaryModel != "" {
		contextCfg.Summarizer = summarizer(llm, cfg.Context.SummaryModel)
	}

	sessions := engine.NewSessionManager(engine.SessionManagerConfig{
		SystemPrompt: cfg.General.SystemPrompt,
		ContextCfg:   contextCfg,
		States:       states,
		Transcripts:  records,
		ResumeLimit:  cfg.State.ResumeLimit,
		Logger:       logger,
	})

	bus := events.NewBus(logger)

	eng := engine.New(engine.Config{
		Provider:      llm,
		Transcriber:   transcriber,
		Synthesizer:   synthesizer,
		Registry:      registry,
		Sessions:      sessions,
		Transcripts:   records,
		Bus:           bus,
		FallbackModel: cfg.LLM.FallbackModel,
		Streaming:     cfg.General.Streaming,
		MaxChainDepth: cfg.General.MaxChainDepth,
		Retry: resilience.Options{
			MaxRetries:  cfg.Retry.MaxRetries,
			BackoffBase: time.Duration(cfg.Retry.BackoffBaseMs) * time.Millisecond,
			MaxBackoff:  time.Duration(cfg.Retry.MaxBackoffMs) * time.Millisecond,
			Logger:      logger,
		},
		Logger: logger,
	})

	return &App{Engine: eng, Bus: bus, states: states, records: records, plugins: plugins}, nil
}

func (a *App) Close(ctx context.Context) {
	if a.plugins != nil {
		a.plugins.Shutdown(ctx)
	}
	if a.records != nil {
		a.records.Close()
	}
	if a.states != nil {
		a.states.Close()
	}
}

// summarizer condenses pruned context blocks through the language model.
func summarizer(llm domain.LLMProvider, model string) contextstore.Summarizer {
	return contextstore.SummarizerFunc(func(ctx context.Context, msgs []domain.Message) (string, error) {
		var b strings.Builder
		for _, m := range msgs {
			if m.Content == "" {
				continue
			}
			fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Content)
		}
		resp, err := llm.Complete(ctx, domain.ChatRequest{
			Model: model,
			Messages: []domain.Message{
				{Role: domain.RoleSystem, Content: "Summarize the conversation excerpt below in a few sentences. Keep names, facts, and decisions; drop pleasantries."},
				{Role: domain.RoleUser, Content: b.String()},
			},
		})
		if err != nil {
			return "", err
		}
		return resp.Content, nil
	})
}
