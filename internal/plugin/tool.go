package plugin

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/client"
	mcptypes "github.com/mark3labs/mcp-go/mcp"

	"voxagent/internal/domain"
)

// remoteTool adapts one plugin-served tool to the domain.Tool
// interface. The registered name is "plugin.tool" so plugins cannot
// collide with built-ins or each other.
type remoteTool struct {
	client      *client.Client
	plugin      string
	tool        string
	description string
	schema      map[string]any
}

func (t *remoteTool) Name() string {
	return t.plugin + "." + t.tool
}

func (t *remoteTool) Description() string {
	if t.description != "" {
		return t.description
	}
	return fmt.Sprintf("Tool %s provided by plugin %s", t.tool, t.plugin)
}

func (t *remoteTool) Parameters() map[string]any { return t.schema }

func (t *remoteTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	result, err := t.client.CallTool(ctx, mcptypes.CallToolRequest{
		Params: mcptypes.CallToolParams{
			Name:      t.tool,
			Arguments: args,
		},
	})
	if err != nil {
		return "", fmt.Errorf("plugin %s: %w", t.plugin, err)
	}

	text := flattenContent(result.Content)
	if result.IsError {
		return "", fmt.Errorf("plugin %s tool %s failed: %s", t.plugin, t.tool, text)
	}
	return text, nil
}

func flattenContent(content []mcptypes.Content) string {
	var parts []string
	for _, c := range content {
		if tc, ok := c.(mcptypes.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n")
}

var _ domain.Tool = (*remoteTool)(nil)
