package subagent

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/scottopell/phoenix-ide/internal/tools"
)

func TestRunAllocatesDistinctIDs(t *testing.T) {
	tool := NewTool()
	input, _ := json.Marshal(map[string]any{
		"agents": []map[string]string{
			{"name": "researcher", "task": "find X"},
			{"name": "coder", "task": "implement Y"},
		},
	})
	out, err := tool.Run(tools.RunContext{Context: context.Background()}, input)
	if err != nil || out.IsError {
		t.Fatalf("run failed: err=%v out=%+v", err, out)
	}

	manifest, err := ParseManifest(out.DisplayData)
	if err != nil {
		t.Fatalf("parse manifest: %v", err)
	}
	if len(manifest) != 2 {
		t.Fatalf("want 2 entries, got %d", len(manifest))
	}
	seen := map[string]bool{}
	for id, task := range manifest {
		if seen[id] {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = true
		if task == "" {
			t.Errorf("id %s has empty task", id)
		}
	}
}

func TestRunRejectsEmptyAgents(t *testing.T) {
	tool := NewTool()
	input, _ := json.Marshal(map[string]any{"agents": []map[string]string{}})
	out, err := tool.Run(tools.RunContext{Context: context.Background()}, input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.IsError {
		t.Fatal("want IsError for empty agents list")
	}
}

func TestRunRejectsTooManyAgents(t *testing.T) {
	agents := make([]map[string]string, MaxAgentsPerCall+1)
	for i := range agents {
		agents[i] = map[string]string{"name": "a", "task": "t"}
	}
	input, _ := json.Marshal(map[string]any{"agents": agents})
	out, err := NewTool().Run(tools.RunContext{Context: context.Background()}, input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.IsError {
		t.Fatal("want IsError when exceeding MaxAgentsPerCall")
	}
}

func TestRunRejectsMissingTask(t *testing.T) {
	input, _ := json.Marshal(map[string]any{
		"agents": []map[string]string{{"name": "researcher", "task": ""}},
	})
	out, err := NewTool().Run(tools.RunContext{Context: context.Background()}, input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.IsError {
		t.Fatal("want IsError for missing task")
	}
}
