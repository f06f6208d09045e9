package agent

import (
	"context"
	"encoding/json"

	"github.com/nexuscore/agentrt/pkg/models"
)

// BuildTeam registers, on leader's effective tool set, one tool per
// worker agent. Each worker tool's handler constructs a fresh,
// independent session for that worker — never shared with the caller's
// session — runs the non-streaming execution loop on it, and returns the
// worker's final assistant text.
//
// The handler is self-contained: it closes over the provider, the tool
// registry, and the worker's own AgentConfig, never over the Runtime
// itself, so delegation carries no back-reference (design note: cyclic
// references avoided). A worker does not recurse into BuildTeam unless
// explicitly composed that way; cycle detection is the caller's
// responsibility.
func (rt *Runtime) BuildTeam(leaderName string, workerNames ...string) error {
	leader, err := rt.agentConfig(leaderName)
	if err != nil {
		return err
	}

	for _, workerName := range workerNames {
		worker, err := rt.agentConfig(workerName)
		if err != nil {
			return err
		}
		rt.tools.Register(workerTool{worker: worker}, rt.workerHandler(worker))
		leader.ToolNames = append(leader.ToolNames, worker.Name)
	}
	rt.RegisterAgent(leader)
	return nil
}

// workerHandler builds the delegation closure for one worker. The handler
// closes over a detached Runtime value sharing the provider, registry,
// session store, assembler, compactor, and diagnostics sink as they stand
// at composition time — but carrying its own agent table, so delegation
// holds no back-reference to the composing Runtime.
func (rt *Runtime) workerHandler(worker models.AgentConfig) Handler {
	sub := &Runtime{
		provider:  rt.provider,
		tools:     rt.tools,
		sessions:  rt.sessions,
		assembler: rt.assembler,
		compactor: rt.compactor,
		diagSink:  rt.diagSink,
		agents:    make(map[string]models.AgentConfig, 1),
	}

	return func(ctx context.Context, params json.RawMessage) (*ToolResult, error) {
		var args struct {
			Input string `json:"input"`
		}
		if err := json.Unmarshal(params, &args); err != nil {
			return &ToolResult{Content: "invalid arguments: " + err.Error(), IsError: true}, nil
		}

		// A fresh, independent session: a distinct agent name per
		// invocation so concurrent calls to the same worker never share
		// history. The worker's own round cap and tool registry apply.
		ephemeralName := worker.Name + ":" + newEphemeralSuffix()
		ephemeral := worker
		ephemeral.Name = ephemeralName
		sub.RegisterAgent(ephemeral)
		defer func() {
			sub.mu.Lock()
			delete(sub.agents, ephemeralName)
			sub.mu.Unlock()
			sub.sessions.Delete(ephemeralName)
		}()

		text, err := sub.SendTo(ctx, ephemeralName, args.Input)
		if err != nil {
			return nil, err
		}
		return &ToolResult{Content: text}, nil
	}
}

type workerTool struct {
	worker models.AgentConfig
}

func (w workerTool) Name() string        { return w.worker.Name }
func (w workerTool) Description() string { return w.worker.Description }
func (w workerTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"input": {"type": "string"}
		},
		"required": ["input"]
	}`)
}
