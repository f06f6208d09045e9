package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// schemaCache compiles each distinct tool schema once; tools are
// registered rarely but dispatched often, so compilation cost must not
// sit on the hot path.
var schemaCache sync.Map

func compileToolSchema(name string, schema json.RawMessage) (*jsonschema.Schema, error) {
	key := string(schema)
	if cached, ok := schemaCache.Load(key); ok {
		return cached.(*jsonschema.Schema), nil
	}
	compiled, err := jsonschema.CompileString(name+".schema.json", key)
	if err != nil {
		return nil, err
	}
	schemaCache.Store(key, compiled)
	return compiled, nil
}

// RegisterValidated is Register plus a pre-flight check: the handler is
// wrapped so that incoming arguments are validated against tool.Schema()
// before the underlying handler ever sees them. A schema that fails to
// compile at registration time is returned as an error immediately,
// rather than surfacing as a mysterious per-call failure later.
//
// This is optional — Register remains the primitive the rest of the
// runtime uses — for tools whose handler assumes well-formed input and
// would rather fail with a readable validation error than panic or
// misbehave on malformed arguments.
func (r *ToolRegistry) RegisterValidated(tool Tool, handler Handler) error {
	schema, err := compileToolSchema(tool.Name(), tool.Schema())
	if err != nil {
		return fmt.Errorf("agent: compile schema for tool %q: %w", tool.Name(), err)
	}

	r.Register(tool, func(ctx context.Context, params json.RawMessage) (*ToolResult, error) {
		var decoded any
		if len(params) > 0 {
			if err := json.Unmarshal(params, &decoded); err != nil {
				return &ToolResult{Content: "invalid arguments: " + err.Error(), IsError: true}, nil
			}
		}
		if err := schema.Validate(decoded); err != nil {
			return &ToolResult{Content: "arguments failed schema validation: " + err.Error(), IsError: true}, nil
		}
		return handler(ctx, params)
	})
	return nil
}
