package executor

import (
	"encoding/json"

	"github.com/scottopell/phoenix-ide/internal/tools"
)

// NewToolRunner adapts a *tools.Registry to the executor's narrower
// ToolRunner seam, so the executor never imports the tools package's wider
// contract (SafeForParallel, EmitDisplay) that its own serial, headless
// dispatch has no use for.
func NewToolRunner(reg *tools.Registry) ToolRunner {
	return registryAdapter{reg: reg}
}

type registryAdapter struct {
	reg *tools.Registry
}

func (a registryAdapter) Get(name string) (Tool, bool) {
	t, ok := a.reg.Get(name)
	if !ok {
		return nil, false
	}
	return toolAdapter{t: t}, true
}

func (a registryAdapter) All() []Tool {
	all := a.reg.All()
	out := make([]Tool, 0, len(all))
	for _, t := range all {
		out = append(out, toolAdapter{t: t})
	}
	return out
}

type toolAdapter struct{ t tools.Tool }

func (a toolAdapter) Name() string                 { return a.t.Name() }
func (a toolAdapter) Description() string          { return a.t.Description() }
func (a toolAdapter) InputSchema() json.RawMessage { return a.t.InputSchema() }

func (a toolAdapter) Run(rc ToolRunContext, input json.RawMessage) (ToolOutput, error) {
	out, err := a.t.Run(tools.RunContext{
		Context:     rc.Context,
		WorkingDir:  rc.WorkingDir,
		EmitDisplay: func(json.RawMessage) {},
	}, input)
	if err != nil {
		return ToolOutput{}, err
	}
	return ToolOutput{Content: out.Content, IsError: out.IsError, DisplayData: out.DisplayData}, nil
}
