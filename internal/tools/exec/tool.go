package exec

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/scottopell/phoenix-ide/internal/tools"
)

// Tool adapts Manager to the tools.Tool contract.
type Tool struct {
	manager *Manager
}

// NewTool builds the shell-execution tool rooted at workspace.
func NewTool(workspace string) *Tool {
	return &Tool{manager: NewManager(workspace)}
}

func (t *Tool) Name() string        { return "exec" }
func (t *Tool) Description() string { return "Run a shell command in the conversation's working directory." }
func (t *Tool) SafeForParallel() bool { return false }

func (t *Tool) InputSchema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"command": {"type": "string", "description": "Shell command to execute."},
			"cwd": {"type": "string", "description": "Working directory, relative to the conversation root."},
			"env": {"type": "object", "description": "Environment variable overrides."},
			"stdin": {"type": "string", "description": "Content piped to the command's stdin."},
			"timeout_seconds": {"type": "integer", "minimum": 0, "description": "0 means no timeout."}
		},
		"required": ["command"]
	}`)
}

type execInput struct {
	Command        string            `json:"command"`
	Cwd            string            `json:"cwd"`
	Env            map[string]string `json:"env"`
	Stdin          string            `json:"stdin"`
	TimeoutSeconds int               `json:"timeout_seconds"`
}

func (t *Tool) Run(rc tools.RunContext, input json.RawMessage) (tools.ToolOutput, error) {
	var in execInput
	if err := json.Unmarshal(input, &in); err != nil {
		return tools.ToolOutput{Content: fmt.Sprintf("invalid input: %v", err), IsError: true}, nil
	}

	timeout := time.Duration(in.TimeoutSeconds) * time.Second
	result, err := t.manager.Run(rc.Context, in.Command, in.Cwd, in.Env, in.Stdin, timeout)
	if err != nil {
		return tools.ToolOutput{Content: err.Error(), IsError: true}, nil
	}

	display, _ := json.Marshal(map[string]any{
		"exit_code": result.ExitCode,
		"duration_ms": result.Duration.Milliseconds(),
		"killed": result.Killed,
	})

	content := result.Stdout
	if result.Stderr != "" {
		content += "\n--- stderr ---\n" + result.Stderr
	}
	isError := result.ExitCode != 0 || result.Killed
	if result.Killed {
		content += "\n(command was killed: cancelled or timed out)"
	}

	return tools.ToolOutput{Content: content, IsError: isError, DisplayData: display}, nil
}
