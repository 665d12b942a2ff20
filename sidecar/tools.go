package sidecar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/invopop/jsonschema"
	compiled "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/bazelment/agent-sidecar/protocol"
)

// ToolRegistry serves client-side tools from typed Go handlers. Input schemas
// are generated from the parameter struct tags, advertised through Specs, and
// enforced before a handler runs.
type ToolRegistry struct {
	tools map[string]*toolRegistration
	order []string
	mu    sync.RWMutex
}

type toolRegistration struct {
	err         error // schema could not be built; the tool is unavailable
	validator   *compiled.Schema
	invoke      func(context.Context, protocol.Value) (protocol.Value, error)
	schema      protocol.Value
	name        string
	description string
}

func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{tools: make(map[string]*toolRegistration)}
}

// AddTool registers a typed tool and returns the registry for chaining.
// Registering a name twice replaces the earlier tool.
//
// T should be a struct with json and jsonschema tags:
//
//	type EchoParams struct {
//	    Text string `json:"text" jsonschema:"required,description=Text to echo back"`
//	}
//
//	AddTool(registry, "echo", "Echo back the input text",
//	    func(ctx context.Context, p EchoParams) (string, error) {
//	        return p.Text, nil
//	    })
func AddTool[T any](
	registry *ToolRegistry,
	name, description string,
	handler func(context.Context, T) (string, error),
) *ToolRegistry {
	return AddToolResult(registry, name, description,
		func(ctx context.Context, params T) (protocol.Value, error) {
			text, err := handler(ctx, params)
			if err != nil {
				return protocol.Value{}, err
			}
			return ToolResultText(text), nil
		})
}

// AddToolResult is AddTool for handlers that build their own result payload.
//
// A tool whose schema cannot be generated or compiled is still registered
// but unavailable: Specs leaves it out, Handle answers with an error result
// and Err reports why.
func AddToolResult[T any](
	registry *ToolRegistry,
	name, description string,
	handler func(context.Context, T) (protocol.Value, error),
) *ToolRegistry {
	schema, err := generateSchema[T]()
	var validator *compiled.Schema
	if err == nil {
		validator, err = CompileJSONSchema(schema)
	}
	if err != nil {
		err = fmt.Errorf("tool %s: invalid input schema: %w", name, err)
	}

	invoke := func(ctx context.Context, input protocol.Value) (protocol.Value, error) {
		if err := validateAgainst(validator, input); err != nil {
			return ToolResultError(fmt.Sprintf("invalid arguments for tool %s: %v", name, err)), nil
		}
		var params T
		if err := json.Unmarshal([]byte(input.String()), &params); err != nil {
			return ToolResultError(fmt.Sprintf("invalid arguments for tool %s: %v", name, err)), nil
		}
		result, err := handler(ctx, params)
		if err != nil {
			return ToolResultError(err.Error()), nil
		}
		return result, nil
	}

	registry.mu.Lock()
	defer registry.mu.Unlock()
	if _, ok := registry.tools[name]; !ok {
		registry.order = append(registry.order, name)
	}
	registry.tools[name] = &toolRegistration{
		err:         err,
		validator:   validator,
		invoke:      invoke,
		schema:      schema,
		name:        name,
		description: description,
	}
	return registry
}

// Specs returns the tool declarations to pass in protocol.SessionConfig.
// Unavailable tools are left out.
func (r *ToolRegistry) Specs() []protocol.ToolSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]protocol.ToolSpec, 0, len(r.order))
	for _, name := range r.order {
		tool := r.tools[name]
		if tool.err != nil {
			continue
		}
		out = append(out, protocol.ToolSpec{
			InputSchema: tool.schema,
			Name:        tool.name,
			Description: tool.description,
		})
	}
	return out
}

// Err reports every tool registered with an unusable schema, or nil.
func (r *ToolRegistry) Err() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var errs []error
	for _, name := range r.order {
		if err := r.tools[name].err; err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Handle runs the tool named by req. Unknown tools and invalid input produce
// an error result rather than a Go error.
func (r *ToolRegistry) Handle(ctx context.Context, req *protocol.ToolInvocationRequest) (protocol.Value, error) {
	r.mu.RLock()
	tool, ok := r.tools[req.ToolName]
	r.mu.RUnlock()
	if !ok {
		return ToolResultError(fmt.Sprintf("unknown tool: %s", req.ToolName)), nil
	}
	if tool.err != nil {
		return ToolResultError(tool.err.Error()), nil
	}
	input := req.Input
	if input.IsNull() {
		input = protocol.MapValue(nil)
	}
	return tool.invoke(ctx, input)
}

// Handler adapts the registry to a session ToolHandler.
func (r *ToolRegistry) Handler() ToolHandler {
	return r.Handle
}

// generateSchema reflects a JSON schema from T's struct tags.
func generateSchema[T any]() (protocol.Value, error) {
	reflector := &jsonschema.Reflector{
		DoNotReference: true, // Inline all definitions instead of using $ref
		ExpandedStruct: true, // Don't use $ref for struct types
	}

	var zero T
	data, err := json.Marshal(reflector.Reflect(zero))
	if err != nil {
		return protocol.Value{}, fmt.Errorf("generate schema for %T: %w", zero, err)
	}
	schema, err := rawSchemaValue(data)
	if err != nil {
		return protocol.Value{}, fmt.Errorf("decode schema for %T: %w", zero, err)
	}
	return schema, nil
}
