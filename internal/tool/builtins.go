package tool

import "voxagent/internal/domain"

// RegisterBuiltins installs the standard assistant toolset. The
// workspace path scopes all file access.
func RegisterBuiltins(r *Registry, workspace string) error {
	builtins := []domain.Tool{
		NewCurrentTimeTool(),
		NewCurrentDateTool(),
		NewCurrentDateTimeTool(),
		NewReadFileTool(workspace),
		NewWriteFileTool(workspace),
		NewListDirectoryTool(workspace),
		NewSearchFilesTool(workspace),
		NewLaunchAppTool(),
		NewCloseAppTool(),
		NewRunningAppsTool(),
		NewTypeTextTool(),
		NewScreenshotTool(workspace),
		NewWebSearchTool(),
		NewWebFetchTool(),
		NewSysInfoTool(),
	}
	for _, t := range builtins {
		if err := r.Register(t); err != nil {
			return err
		}
	}
	return nil
}
