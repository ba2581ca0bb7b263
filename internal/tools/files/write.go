package files

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/scottopell/phoenix-ide/internal/tools"
)

// WriteTool implements file writes within the workspace.
type WriteTool struct {
	resolver Resolver
}

// NewWriteTool creates a write tool scoped to the workspace.
func NewWriteTool(cfg Config) *WriteTool {
	return &WriteTool{resolver: Resolver{Root: cfg.Workspace}}
}

func (t *WriteTool) Name() string          { return "write" }
func (t *WriteTool) Description() string   { return "Write content to a file in the workspace (overwrites by default)." }
func (t *WriteTool) SafeForParallel() bool { return false }

func (t *WriteTool) InputSchema() json.RawMessage {
	return schemaOrFallback(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path":    map[string]any{"type": "string", "description": "Path to write (relative to workspace)."},
			"content": map[string]any{"type": "string", "description": "File contents to write."},
			"append":  map[string]any{"type": "boolean", "description": "Append instead of overwrite (default: false)."},
		},
		"required": []string{"path", "content"},
	})
}

func (t *WriteTool) Run(rc tools.RunContext, input json.RawMessage) (tools.ToolOutput, error) {
	var in struct {
		Path    string `json:"path"`
		Content string `json:"content"`
		Append  bool   `json:"append"`
	}
	if err := json.Unmarshal(input, &in); err != nil {
		return toolError(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	if strings.TrimSpace(in.Path) == "" {
		return toolError("path is required"), nil
	}

	resolved, err := t.resolver.Resolve(in.Path)
	if err != nil {
		return toolError(err.Error()), nil
	}

	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return toolError(fmt.Sprintf("create directory: %v", err)), nil
	}

	flags := os.O_CREATE | os.O_WRONLY
	if in.Append {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	file, err := os.OpenFile(resolved, flags, 0o644)
	if err != nil {
		return toolError(fmt.Sprintf("open file: %v", err)), nil
	}
	defer file.Close()

	n, err := file.WriteString(in.Content)
	if err != nil {
		return toolError(fmt.Sprintf("write file: %v", err)), nil
	}

	payload, err := json.MarshalIndent(map[string]any{
		"path":          in.Path,
		"bytes_written": n,
		"append":        in.Append,
	}, "", "  ")
	if err != nil {
		return toolError(fmt.Sprintf("encode result: %v", err)), nil
	}

	return toolOutput(string(payload)), nil
}
