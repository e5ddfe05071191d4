package tool

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// TypeTextTool types text into the currently focused window through the
// platform's scripting bridge (osascript on macOS, xdotool on X11).
type TypeTextTool struct{}

func NewTypeTextTool() *TypeTextTool { return &TypeTextTool{} }

func (t *TypeTextTool) Name() string { return "type_text" }
func (t *TypeTextTool) Description() string {
	return "Type the given text into the currently focused window."
}
func (t *TypeTextTool) Parameters() map[string]any {
	return ToolParameters(
		map[string]Param{
			"text": {Type: "string", Description: "Text to type"},
		},
		[]string{"text"},
	)
}

func (t *TypeTextTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	text := ArgsString(args, "text")
	if text == "" {
		return "", fmt.Errorf("missing argument: text")
	}

	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		escaped := strings.ReplaceAll(text, `\`, `\\`)
		escaped = strings.ReplaceAll(escaped, `"`, `\"`)
		cmd = exec.CommandContext(ctx, "osascript", "-e",
			fmt.Sprintf(`tell application "System Events" to keystroke "%s"`, escaped))
	default:
		if _, err := exec.LookPath("xdotool"); err != nil {
			return "", fmt.Errorf("type_text requires xdotool: %w", err)
		}
		cmd = exec.CommandContext(ctx, "xdotool", "type", "--delay", "12", text)
	}
	if out, err := cmd.CombinedOutput(); err != nil {
		return "", fmt.Errorf("type text: %v (%s)", err, strings.TrimSpace(string(out)))
	}
	return fmt.Sprintf("Typed %d characters", len(text)), nil
}

// ScreenshotTool captures the screen to a file in the workspace.
type ScreenshotTool struct {
	workspace string
	now       func() time.Time
}

func NewScreenshotTool(workspace string) *ScreenshotTool {
	return &ScreenshotTool{workspace: workspace, now: time.Now}
}

func (t *ScreenshotTool) Name() string { return "take_screenshot" }
func (t *ScreenshotTool) Description() string {
	return "Take a screenshot of the full screen and save it as a PNG. Returns the saved file path."
}
func (t *ScreenshotTool) Parameters() map[string]any { return noParams() }

func (t *ScreenshotTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	name := t.now().Format("screenshot_20060102_150405.png")
	dest := filepath.Join(t.workspace, name)

	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.CommandContext(ctx, "screencapture", "-x", dest)
	default:
		for _, candidate := range [][]string{
			{"gnome-screenshot", "-f", dest},
			{"scrot", dest},
			{"import", "-window", "root", dest},
		} {
			if _, err := exec.LookPath(candidate[0]); err == nil {
				cmd = exec.CommandContext(ctx, candidate[0], candidate[1:]...)
				break
			}
		}
		if cmd == nil {
			return "", fmt.Errorf("no screenshot tool found (tried gnome-screenshot, scrot, import)")
		}
	}
	if out, err := cmd.CombinedOutput(); err != nil {
		return "", fmt.Errorf("screenshot: %v (%s)", err, strings.TrimSpace(string(out)))
	}
	return fmt.Sprintf("Screenshot saved to %s", dest), nil
}
