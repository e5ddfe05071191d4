package tool

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"sort"
	"strings"
)

// Application tools cover the launch, close, and list requests a voice
// assistant gets about desktop programs. Shelling out keeps them free
// of CGO and platform SDKs.

type LaunchAppTool struct{}

func NewLaunchAppTool() *LaunchAppTool { return &LaunchAppTool{} }

func (t *LaunchAppTool) Name() string { return "launch_app" }
func (t *LaunchAppTool) Description() string {
	return "Launch an application by name, for example 'firefox' or 'Calculator'."
}
func (t *LaunchAppTool) Parameters() map[string]any {
	return ToolParameters(
		map[string]Param{
			"name": {Type: "string", Description: "Application name to launch"},
		},
		[]string{"name"},
	)
}

func (t *LaunchAppTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	name := ArgsString(args, "name")
	if name == "" {
		return "", fmt.Errorf("missing argument: name")
	}

	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.CommandContext(ctx, "open", "-a", name)
	case "windows":
		cmd = exec.CommandContext(ctx, "cmd", "/c", "start", "", name)
	default:
		cmd = exec.CommandContext(ctx, name)
	}
	if runtime.GOOS == "darwin" || runtime.GOOS == "windows" {
		if out, err := cmd.CombinedOutput(); err != nil {
			return "", fmt.Errorf("launch %s: %v (%s)", name, err, strings.TrimSpace(string(out)))
		}
		return fmt.Sprintf("Launched %s", name), nil
	}
	// On Linux the app keeps running after we return, so detach.
	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("launch %s: %w", name, err)
	}
	go cmd.Wait() // reap
	return fmt.Sprintf("Launched %s (pid %d)", name, cmd.Process.Pid), nil
}

type CloseAppTool struct{}

func NewCloseAppTool() *CloseAppTool { return &CloseAppTool{} }

func (t *CloseAppTool) Name() string { return "close_app" }
func (t *CloseAppTool) Description() string {
	return "Close a running application by name."
}
func (t *CloseAppTool) Parameters() map[string]any {
	return ToolParameters(
		map[string]Param{
			"name": {Type: "string", Description: "Application name to close"},
		},
		[]string{"name"},
	)
}

func (t *CloseAppTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	name := ArgsString(args, "name")
	if name == "" {
		return "", fmt.Errorf("missing argument: name")
	}

	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.CommandContext(ctx, "osascript", "-e",
			fmt.Sprintf("tell application %q to quit", name))
	case "windows":
		cmd = exec.CommandContext(ctx, "taskkill", "/IM", name+".exe")
	default:
		cmd = exec.CommandContext(ctx, "pkill", "-f", name)
	}
	if out, err := cmd.CombinedOutput(); err != nil {
		return "", fmt.Errorf("close %s: %v (%s)", name, err, strings.TrimSpace(string(out)))
	}
	return fmt.Sprintf("Closed %s", name), nil
}

type RunningAppsTool struct{}

func NewRunningAppsTool() *RunningAppsTool { return &RunningAppsTool{} }

func (t *RunningAppsTool) Name() string { return "get_running_apps" }
func (t *RunningAppsTool) Description() string {
	return "List the applications currently running on this machine."
}
func (t *RunningAppsTool) Parameters() map[string]any { return noParams() }

func (t *RunningAppsTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.CommandContext(ctx, "osascript", "-e",
			`tell application "System Events" to get name of (processes where background only is false)`)
	case "windows":
		cmd = exec.CommandContext(ctx, "tasklist", "/fo", "csv", "/nh")
	default:
		cmd = exec.CommandContext(ctx, "ps", "-eo", "comm=")
	}

	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("list running apps: %w", err)
	}

	text := strings.TrimSpace(out.String())
	if runtime.GOOS == "darwin" {
		names := strings.Split(text, ", ")
		return strings.Join(names, "\n"), nil
	}
	seen := make(map[string]struct{})
	var names []string
	for _, line := range strings.Split(text, "\n") {
		name := strings.TrimSpace(line)
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, "\n"), nil
}
