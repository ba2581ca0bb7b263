// Package subagent implements the spawn_agents tool: the LLM's only
// mechanism for fanning work out to child conversations. The tool itself
// never runs a child turn; it allocates ids and hands the executor a
// manifest via a SpawnAgentsComplete event, which the transition function
// turns into SpawnSubAgent effects (pkg/convcore/effect.go).
package subagent

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/scottopell/phoenix-ide/internal/tools"
)

// MaxAgentsPerCall bounds a single spawn_agents invocation so a runaway
// LLM response cannot fan out unbounded children.
const MaxAgentsPerCall = 8

// Request describes one child conversation to create.
type Request struct {
	Name string `json:"name"`
	Task string `json:"task"`
}

// Manifest pairs the allocated agent ids with their task text, keyed the
// same way convcore.SpawnAgentsComplete expects. Tool.Run does not return
// this struct; it encodes the bare id->task map in DisplayData, which
// ParseManifest reads back.
type Manifest struct {
	IDsWithTasks map[string]string
}

// Tool implements the spawn_agents tool contract. It has no dependency on
// the executor or storage: it only validates input and allocates ids, so
// it stays a pure, synchronously-returning tools.Tool like any other.
type Tool struct{}

func NewTool() *Tool { return &Tool{} }

func (t *Tool) Name() string { return "spawn_agents" }

func (t *Tool) Description() string {
	return "Spawn one or more sub-agent conversations to work on independent tasks in parallel. " +
		"Each sub-agent runs its own conversation loop and reports a single summary back when done."
}

func (t *Tool) SafeForParallel() bool { return false }

func (t *Tool) InputSchema() json.RawMessage {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"agents": map[string]any{
				"type":     "array",
				"minItems": 1,
				"maxItems": MaxAgentsPerCall,
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"name": map[string]any{"type": "string", "description": "Short label for the sub-agent (e.g. 'researcher')."},
						"task": map[string]any{"type": "string", "description": "The task the sub-agent must complete."},
					},
					"required": []string{"name", "task"},
				},
			},
		},
		"required": []string{"agents"},
	}
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

func (t *Tool) Run(rc tools.RunContext, input json.RawMessage) (tools.ToolOutput, error) {
	var in struct {
		Agents []Request `json:"agents"`
	}
	if err := json.Unmarshal(input, &in); err != nil {
		return errorOutput(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	if len(in.Agents) == 0 {
		return errorOutput("at least one agent is required"), nil
	}
	if len(in.Agents) > MaxAgentsPerCall {
		return errorOutput(fmt.Sprintf("at most %d agents per call", MaxAgentsPerCall)), nil
	}

	idsWithTasks := make(map[string]string, len(in.Agents))
	summary := make([]map[string]string, 0, len(in.Agents))
	for _, req := range in.Agents {
		if strings.TrimSpace(req.Name) == "" || strings.TrimSpace(req.Task) == "" {
			return errorOutput("every agent requires a name and a task"), nil
		}
		id := uuid.NewString()
		idsWithTasks[id] = req.Task
		summary = append(summary, map[string]string{"id": id, "name": req.Name, "task": req.Task})
	}

	payload, err := json.Marshal(map[string]any{"spawned": summary})
	if err != nil {
		return errorOutput(fmt.Sprintf("encode result: %v", err)), nil
	}

	// The manifest rides in DisplayData, not Content, so the executor can
	// recover it without re-parsing the human-readable summary; Content
	// stays human-readable for the transcript.
	manifest, err := json.Marshal(idsWithTasks)
	if err != nil {
		return errorOutput(fmt.Sprintf("encode manifest: %v", err)), nil
	}

	return tools.ToolOutput{
		Content:     string(payload),
		DisplayData: manifest,
	}, nil
}

func errorOutput(message string) tools.ToolOutput {
	payload, err := json.Marshal(map[string]string{"error": message})
	if err != nil {
		return tools.ToolOutput{Content: message, IsError: true}
	}
	return tools.ToolOutput{Content: string(payload), IsError: true}
}

// ParseManifest recovers the id->task manifest a spawn_agents tool call
// produced, for the executor to turn into a convcore.SpawnAgentsComplete
// event. It is the inverse of the DisplayData encoding in Run.
func ParseManifest(displayData json.RawMessage) (map[string]string, error) {
	var idsWithTasks map[string]string
	if err := json.Unmarshal(displayData, &idsWithTasks); err != nil {
		return nil, fmt.Errorf("parse spawn_agents manifest: %w", err)
	}
	return idsWithTasks, nil
}

// SystemPrompt builds the framing every sub-agent conversation is seeded
// with so it understands its narrow, non-interactive role.
func SystemPrompt(name, task string) string {
	var b strings.Builder
	b.WriteString("You are a sub-agent spawned to complete one task, then report back.\n\n")
	fmt.Fprintf(&b, "Role: %s\n", name)
	fmt.Fprintf(&b, "Task: %s\n\n", task)
	b.WriteString("Rules:\n")
	b.WriteString("- Complete the task, then produce a final text-only response summarizing what you found or did.\n")
	b.WriteString("- You cannot spawn further sub-agents.\n")
	b.WriteString("- There is no user to talk to; do not ask questions, just proceed with the information given.\n")
	return b.String()
}
