package workspace

import (
	"strings"

	"github.com/troupe-dev/troupe/core"
	"github.com/troupe-dev/troupe/tool"
)

// Tools exposes the workspace as file capabilities. Wire the same set into
// every member that should share the directory.
func (w *Workspace) Tools() []tool.Tool {
	return []tool.Tool{w.ReadTool(), w.WriteTool(), w.ListTool()}
}

// ReadTool returns the read_file capability.
func (w *Workspace) ReadTool() tool.Tool {
	return tool.NewFunctionTool(
		"read_file",
		"Read a file from the shared workspace",
		[]core.Parameter{
			{Name: "path", Type: core.TypeString, Description: "Workspace-relative file path", Required: true},
		},
		func(tctx *tool.Context, args map[string]any) (any, error) {
			path, _ := args["path"].(string)
			content, err := w.ReadFile(path)
			if err != nil {
				return nil, err
			}
			tctx.Logger().Debug("workspace.read", "caller", tctx.Caller(), "path", path, "bytes", len(content))
			return content, nil
		},
	)
}

// WriteTool returns the write_file capability.
func (w *Workspace) WriteTool() tool.Tool {
	return tool.NewFunctionTool(
		"write_file",
		"Write a file into the shared workspace, creating parent directories as needed",
		[]core.Parameter{
			{Name: "path", Type: core.TypeString, Description: "Workspace-relative file path", Required: true},
			{Name: "content", Type: core.TypeString, Description: "Full file content to write", Required: true},
		},
		func(tctx *tool.Context, args map[string]any) (any, error) {
			path, _ := args["path"].(string)
			content, _ := args["content"].(string)
			if err := w.WriteFile(path, content); err != nil {
				return nil, err
			}
			tctx.Logger().Debug("workspace.written", "caller", tctx.Caller(), "path", path, "bytes", len(content))
			return "wrote " + path, nil
		},
	)
}

// ListTool returns the list_files capability.
func (w *Workspace) ListTool() tool.Tool {
	return tool.NewFunctionTool(
		"list_files",
		"List the files in the shared workspace",
		[]core.Parameter{
			{Name: "path", Type: core.TypeString, Description: "Workspace-relative subdirectory to list (defaults to the root)"},
		},
		func(tctx *tool.Context, args map[string]any) (any, error) {
			path, _ := args["path"].(string)
			files, err := w.ListFiles(path)
			if err != nil {
				return nil, err
			}
			if len(files) == 0 {
				return "(empty)", nil
			}
			return strings.Join(files, "\n"), nil
		},
	)
}
