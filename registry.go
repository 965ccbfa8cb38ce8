package gateway

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/invopop/jsonschema"

	"github.com/agentgate/mcp-gateway-go/mcp"
)

// ToolRegistry maps tool names to handlers and their reflected input
// schemas. Registration order is preserved in listings.
type ToolRegistry struct {
	mu    sync.RWMutex
	tools map[string]registeredTool
	order []string
}

type registeredTool struct {
	descriptor mcp.Tool
	handler    ToolHandler
}

// NewToolRegistry builds an empty registry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{tools: make(map[string]registeredTool)}
}

// Register adds a tool whose input schema is reflected from argsPrototype, a
// (pointer to) struct describing the arguments. Registering a name twice is
// an error.
func (r *ToolRegistry) Register(name string, description string, argsPrototype any, h ToolHandler) error {
	if name == "" {
		return fmt.Errorf("tool name is required")
	}
	if h == nil {
		return fmt.Errorf("tool %q: handler is required", name)
	}

	schema, err := reflectInputSchema(argsPrototype)
	if err != nil {
		return fmt.Errorf("tool %q: %w", name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %q already registered", name)
	}
	r.tools[name] = registeredTool{
		descriptor: mcp.Tool{
			Name:        name,
			Description: description,
			InputSchema: schema,
		},
		handler: h,
	}
	r.order = append(r.order, name)
	return nil
}

// Lookup returns the handler for name.
func (r *ToolRegistry) Lookup(name string) (ToolHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	if !ok {
		return nil, false
	}
	return t.handler, true
}

// List returns the tool descriptors in registration order.
func (r *ToolRegistry) List() []mcp.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]mcp.Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name].descriptor)
	}
	return out
}

// reflectInputSchema reflects a JSON schema from the args prototype using
// invopop/jsonschema. A nil prototype yields an open object schema.
func reflectInputSchema(argsPrototype any) (json.RawMessage, error) {
	if argsPrototype == nil {
		return json.RawMessage(`{"type":"object","additionalProperties":true}`), nil
	}
	r := &jsonschema.Reflector{
		DoNotReference: true, // inline defs
		ExpandedStruct: true, // put the struct at the schema root
	}
	s := r.Reflect(argsPrototype)
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal reflected schema: %w", err)
	}
	return data, nil
}
