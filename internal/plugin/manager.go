package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mark3labs/mcp-go/client"
	mcptypes "github.com/mark3labs/mcp-go/mcp"

	"voxagent/internal/metrics"
	"voxagent/internal/tool"
)

const protocolVersion = "2025-06-18"

// Manager starts plugin processes, discovers their tools, and registers
// them into the tool registry under "plugin.tool" names.
type Manager struct {
	mu      sync.Mutex
	clients map[string]*client.Client
	logger  *slog.Logger
}

func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		clients: make(map[string]*client.Client),
		logger:  logger,
	}
}

// LoadAll starts every manifest in dir and registers the discovered
// tools. A plugin that fails to start is skipped with a warning.
func (m *Manager) LoadAll(ctx context.Context, dir string, registry *tool.Registry) error {
	manifests, err := LoadManifests(dir, m.logger)
	if err != nil {
		return err
	}
	for _, manifest := range manifests {
		if err := m.Start(ctx, manifest, registry); err != nil {
			m.logger.Warn("plugin failed to start", "name", manifest.Name, "err", err)
		}
	}
	return nil
}

// Start launches one plugin and registers its tools.
func (m *Manager) Start(ctx context.Context, manifest Manifest, registry *tool.Registry) error {
	m.mu.Lock()
	if _, running := m.clients[manifest.Name]; running {
		m.mu.Unlock()
		return fmt.Errorf("plugin %s already running", manifest.Name)
	}
	m.mu.Unlock()

	env := make([]string, 0, len(manifest.Env))
	for k, v := range manifest.Env {
		env = append(env, k+"="+v)
	}

	mcpClient, err := client.NewStdioMCPClient(manifest.Command, env, manifest.Args...)
	if err != nil {
		return fmt.Errorf("start plugin process: %w", err)
	}

	initReq := mcptypes.InitializeRequest{
		Params: mcptypes.InitializeParams{
			ProtocolVersion: protocolVersion,
			Capabilities:    mcptypes.ClientCapabilities{},
			ClientInfo: mcptypes.Implementation{
				Name:    "voxagent",
				Version: "0.1.0",
			},
		},
	}
	if _, err := mcpClient.Initialize(ctx, initReq); err != nil {
		mcpClient.Close()
		return fmt.Errorf("initialize plugin: %w", err)
	}

	toolsResult, err := mcpClient.ListTools(ctx, mcptypes.ListToolsRequest{})
	if err != nil {
		mcpClient.Close()
		return fmt.Errorf("list plugin tools: %w", err)
	}

	registered := 0
	for _, t := range toolsResult.Tools {
		wrapped := &remoteTool{
			client:      mcpClient,
			plugin:      manifest.Name,
			tool:        t.Name,
			description: t.Description,
			schema:      inputSchemaToMap(t.InputSchema),
		}
		if err := registry.Register(wrapped); err != nil {
			m.logger.Warn("plugin tool name collision", "tool", wrapped.Name(), "err", err)
			continue
		}
		registered++
	}

	m.mu.Lock()
	m.clients[manifest.Name] = mcpClient
	metrics.RegisteredPlugins.Set(int64(len(m.clients)))
	m.mu.Unlock()

	m.logger.Info("plugin started", "name", manifest.Name, "tools", registered)
	return nil
}

// Shutdown closes every plugin client. Stdio transports terminate the
// child process on close.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	clients := m.clients
	m.clients = make(map[string]*client.Client)
	metrics.RegisteredPlugins.Set(0)
	m.mu.Unlock()

	var wg sync.WaitGroup
	for name, c := range clients {
		wg.Add(1)
		go func(name string, c *client.Client) {
			defer wg.Done()
			if err := c.Close(); err != nil {
				m.logger.Warn("plugin close failed", "name", name, "err", err)
			}
		}(name, c)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func inputSchemaToMap(schema mcptypes.ToolInputSchema) map[string]any {
	out := map[string]any{
		"type": schema.Type,
	}
	if out["type"] == "" {
		out["type"] = "object"
	}
	props := make(map[string]any, len(schema.Properties))
	for k, v := range schema.Properties {
		props[k] = v
	}
	out["properties"] = props
	if len(schema.Required) > 0 {
		out["required"] = schema.Required
	}
	return out
}
