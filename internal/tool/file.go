package tool

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"voxagent/internal/domain"
)

const searchFilesDefaultMax = 20

// resolvePath resolves a file path relative to the workspace and
// rejects anything that escapes it.
func resolvePath(workspace, path string) (string, error) {
	path = strings.TrimSpace(path)
	if !filepath.IsAbs(path) && workspace != "" {
		path = filepath.Join(workspace, path)
	}
	resolved, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("resolve path: %w", err)
	}
	if workspace != "" {
		wsAbs, err := filepath.Abs(workspace)
		if err != nil {
			return "", fmt.Errorf("resolve workspace: %w", err)
		}
		if !strings.HasPrefix(resolved, wsAbs+string(filepath.Separator)) && resolved != wsAbs {
			return "", fmt.Errorf("path %q is outside workspace %q", resolved, wsAbs)
		}
	}
	return resolved, nil
}

// ReadFileTool reads the contents of a file inside the workspace.
type ReadFileTool struct {
	workspace string
}

func NewReadFileTool(workspace string) *ReadFileTool {
	return &ReadFileTool{workspace: workspace}
}

func (t *ReadFileTool) Name() string { return "read_file" }
func (t *ReadFileTool) Description() string {
	return "Read the contents of a file. Provide the file path relative to the workspace or absolute."
}
func (t *ReadFileTool) Parameters() map[string]any {
	return ToolParameters(
		map[string]Param{
			"path": {Type: "string", Description: "File path to read (relative to workspace or absolute)"},
		},
		[]string{"path"},
	)
}

func (t *ReadFileTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	path := ArgsString(args, "path")
	if path == "" {
		return "", fmt.Errorf("missing argument: path")
	}
	resolved, err := resolvePath(t.workspace, path)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	return string(data), nil
}

// WriteFileTool writes content to a file, creating parents as needed.
type WriteFileTool struct {
	workspace string
}

func NewWriteFileTool(workspace string) *WriteFileTool {
	return &WriteFileTool{workspace: workspace}
}

func (t *WriteFileTool) Name() string { return "write_file" }
func (t *WriteFileTool) Description() string {
	return "Write content to a file. Creates the file if it does not exist; overwrites if it exists."
}
func (t *WriteFileTool) Parameters() map[string]any {
	return ToolParameters(
		map[string]Param{
			"path":    {Type: "string", Description: "File path to write (relative to workspace or absolute)"},
			"content": {Type: "string", Description: "Content to write to the file"},
		},
		[]string{"path", "content"},
	)
}

func (t *WriteFileTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	path := ArgsString(args, "path")
	content := ArgsString(args, "content")
	if path == "" {
		return "", fmt.Errorf("missing argument: path")
	}
	resolved, err := resolvePath(t.workspace, path)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return "", fmt.Errorf("create directory: %w", err)
	}
	if err := os.WriteFile(resolved, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}
	return fmt.Sprintf("Wrote %d bytes to %s", len(content), resolved), nil
}

// ListDirectoryTool lists files and directories at a given path.
type ListDirectoryTool struct {
	workspace string
}

func NewListDirectoryTool(workspace string) *ListDirectoryTool {
	return &ListDirectoryTool{workspace: workspace}
}

func (t *ListDirectoryTool) Name() string { return "list_directory" }
func (t *ListDirectoryTool) Description() string {
	return "List files and directories at the given path. Use '.' or empty for the workspace root."
}
func (t *ListDirectoryTool) Parameters() map[string]any {
	return ToolParameters(
		map[string]Param{
			"path": {Type: "string", Description: "Directory path to list (use '.' for workspace root)"},
		},
		nil,
	)
}

func (t *ListDirectoryTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	path := ArgsString(args, "path")
	if path == "" {
		path = "."
	}
	resolved, err := resolvePath(t.workspace, path)
	if err != nil {
		return "", err
	}
	entries, err := os.ReadDir(resolved)
	if err != nil {
		return "", fmt.Errorf("list directory: %w", err)
	}
	var lines []string
	for _, e := range entries {
		if e.IsDir() {
			lines = append(lines, e.Name()+"/")
			continue
		}
		if info, err := e.Info(); err == nil {
			lines = append(lines, fmt.Sprintf("%s %d", e.Name(), info.Size()))
		} else {
			lines = append(lines, e.Name())
		}
	}
	if len(lines) == 0 {
		return "(empty directory)", nil
	}
	return strings.Join(lines, "\n"), nil
}

// SearchFilesTool finds files under the workspace by name pattern.
type SearchFilesTool struct {
	workspace string
}

func NewSearchFilesTool(workspace string) *SearchFilesTool {
	return &SearchFilesTool{workspace: workspace}
}

func (t *SearchFilesTool) Name() string { return "search_files" }
func (t *SearchFilesTool) Description() string {
	return "Search for files by name. The pattern matches a substring of the file name, or a glob like '*.txt'."
}
func (t *SearchFilesTool) Parameters() map[string]any {
	return ToolParameters(
		map[string]Param{
			"pattern":     {Type: "string", Description: "File name substring or glob pattern"},
			"path":        {Type: "string", Description: "Directory to search under (defaults to workspace root)"},
			"max_results": {Type: "integer", Description: "Maximum number of matches to return"},
		},
		[]string{"pattern"},
	)
}

func (t *SearchFilesTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	pattern := ArgsString(args, "pattern")
	if pattern == "" {
		return "", fmt.Errorf("missing argument: pattern")
	}
	root := ArgsString(args, "path")
	if root == "" {
		root = "."
	}
	maxResults := ArgsInt(args, "max_results", searchFilesDefaultMax)

	resolved, err := resolvePath(t.workspace, root)
	if err != nil {
		return "", err
	}

	isGlob := strings.ContainsAny(pattern, "*?[")
	var matches []string
	err = filepath.WalkDir(resolved, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // skip unreadable entries
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && path != resolved {
				return filepath.SkipDir
			}
			return nil
		}
		name := d.Name()
		matched := false
		if isGlob {
			matched, _ = filepath.Match(pattern, name)
		} else {
			matched = strings.Contains(strings.ToLower(name), strings.ToLower(pattern))
		}
		if matched {
			matches = append(matches, path)
			if len(matches) >= maxResults {
				return fs.SkipAll
			}
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("search files: %w", err)
	}
	if len(matches) == 0 {
		return fmt.Sprintf("No files matching %q under %s", pattern, resolved), nil
	}
	return strings.Join(matches, "\n"), nil
}

var (
	_ domain.Tool = (*ReadFileTool)(nil)
	_ domain.Tool = (*WriteFileTool)(nil)
	_ domain.Tool = (*ListDirectoryTool)(nil)
	_ domain.Tool = (*SearchFilesTool)(nil)
)
