// Package files implements the read/write/edit tools operating on a
// conversation's working directory, each resolved through Resolver so a
// tool call can never escape the workspace root.
package files

import (
	"encoding/json"

	"github.com/scottopell/phoenix-ide/internal/tools"
)

// Config controls filesystem tool defaults.
type Config struct {
	Workspace    string
	MaxReadBytes int
}

func toolOutput(content string) tools.ToolOutput {
	return tools.ToolOutput{Content: content}
}

func toolError(message string) tools.ToolOutput {
	payload, err := json.Marshal(map[string]string{"error": message})
	if err != nil {
		return tools.ToolOutput{Content: message, IsError: true}
	}
	return tools.ToolOutput{Content: string(payload), IsError: true}
}

func schemaOrFallback(schema map[string]any) json.RawMessage {
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}
