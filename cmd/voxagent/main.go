package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"voxagent/internal/config"
	"voxagent/internal/events"
	"voxagent/internal/metrics"
	"voxagent/internal/plugin"
	"voxagent/internal/tool"

	"github.com/spf13/cobra"
)

var (
	version    = "0.1.0"
	logger     *slog.Logger
	configPath string // overridable via --config flag
)

func main() {
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	root := &cobra.Command{
		Use:     "voxagent",
		Short:   "voxagent: local voice-assistant orchestration core",
		Long:    "voxagent turns transcribed speech into replies and actions using a local language model, local speech providers, and a set of tools.",
		Version: version,
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.json (default: ~/.voxagent/config.json)")

	root.AddCommand(initCmd())
	root.AddCommand(chatCmd())
	root.AddCommand(statusCmd())
	root.AddCommand(configCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize config, workspace, and plugins directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg := config.Defaults()
			if err := config.Save(cfgPath, cfg); err != nil {
				return err
			}
			for _, dir := range []string{cfg.General.Workspace, cfg.Plugins.Dir} {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return err
				}
			}
			logger.Info("initialized", "config", cfgPath, "workspace", cfg.General.Workspace)
			return nil
		},
	}
}

func chatCmd() *cobra.Command {
	var sessionID string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(sessionID)
		},
	}
	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "session ID to resume (default: a new session)")
	return cmd
}

func runChat(sessionID string) error {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Warn("config not found, using defaults", "path", cfgPath, "err", err)
		cfg = config.Defaults()
	}
	setLogLevel(cfg.General.LogLevel)

	if err := os.MkdirAll(cfg.General.Workspace, 0o755); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close(ctx)

	if cfg.Metrics.Enabled {
		go serveMetrics(cfg.Metrics.Addr)
	}

	// Print turn progress as it happens, before the final reply lands.
	app.Bus.On(events.UtteranceUnit, func(ev events.Event) {
		fmt.Printf("… %s\n", ev.Payload["text"])
	})
	app.Bus.On(events.ToolDispatched, func(ev events.Event) {
		fmt.Printf("[tool: %s]\n", ev.Payload["tool"])
	})

	fmt.Println("voxagent ready. Type a message, or /quit to exit.")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("you> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		}

		result, err := app.Engine.HandleTurn(ctx, sessionID, line)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.Error("turn failed", "err", err)
			continue
		}
		sessionID = result.SessionID
		fmt.Printf("voxagent> %s\n", result.Reply)
	}
	return scanner.Err()
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show configuration and registry status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				logger.Info("config", "path", cfgPath, "loaded", false)
				cfg = config.Defaults()
			} else {
				logger.Info("config", "path", cfgPath, "loaded", true)
			}

			registry := tool.NewRegistry(logger)
			if err := tool.RegisterBuiltins(registry, cfg.General.Workspace); err != nil {
				return err
			}
			if cfg.Plugins.Enabled {
				ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
				defer stop()
				mgr := plugin.NewManager(logger)
				defer mgr.Shutdown(ctx)
				if err := mgr.LoadAll(ctx, cfg.Plugins.Dir, registry); err != nil {
					logger.Warn("plugin loading incomplete", "err", err)
				}
			}

			logger.Info("llm", "apiBase", cfg.LLM.APIBase, "model", cfg.LLM.Model, "fallback", cfg.LLM.FallbackModel)
			logger.Info("stt", "enabled", cfg.STT.Enabled, "model", cfg.STT.Model)
			logger.Info("tts", "enabled", cfg.TTS.Enabled, "backend", cfg.TTS.Backend, "voice", cfg.TTS.Voice)
			logger.Info("tools", "registered", registry.Len(), "names", registry.Names())
			logger.Info("state", "dbPath", cfg.State.DBPath)
			return nil
		},
	}
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			redacted := *cfg
			if redacted.LLM.APIKey != "" {
				redacted.LLM.APIKey = "***"
			}
			if redacted.STT.APIKey != "" {
				redacted.STT.APIKey = "***"
			}
			if redacted.TTS.APIKey != "" {
				redacted.TTS.APIKey = "***"
			}
			data, _ := json.MarshalIndent(redacted, "", "  ")
			fmt.Println(string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show config file path",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(resolveConfigPath())
		},
	})

	return cmd
}

func setLogLevel(level string) {
	var lv slog.Level
	switch level {
	case "debug":
		lv = slog.LevelDebug
	case "warn":
		lv = slog.LevelWarn
	case "error":
		lv = slog.LevelError
	default:
		lv = slog.LevelInfo
	}
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lv}))
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Collector.Handler())
	logger.Info("metrics endpoint listening", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("metrics endpoint failed", "err", err)
	}
}
