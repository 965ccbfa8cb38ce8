package gateway

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/agentgate/mcp-gateway-go/hooks"
	"github.com/agentgate/mcp-gateway-go/mcp"
)

// ToolHandler executes one tool invocation. The gateway never inspects
// handler internals; it validates the envelope, applies admission control and
// bounds the call with the method's timeout, then hands over.
type ToolHandler interface {
	Execute(ctx context.Context, args json.RawMessage, hctx *hooks.Context) (any, error)
}

// ToolHandlerFunc adapts a function to ToolHandler.
type ToolHandlerFunc func(ctx context.Context, args json.RawMessage, hctx *hooks.Context) (any, error)

func (f ToolHandlerFunc) Execute(ctx context.Context, args json.RawMessage, hctx *hooks.Context) (any, error) {
	return f(ctx, args, hctx)
}

// ResourceProvider supplies the resource surface. A nil provider disables the
// resources/* methods (they fail method-not-found at dispatch).
type ResourceProvider interface {
	ListResources(ctx context.Context) ([]mcp.Resource, error)
	ReadResource(ctx context.Context, uri string) ([]mcp.ResourceContents, error)
}

// PromptProvider supplies the prompt surface.
type PromptProvider interface {
	ListPrompts(ctx context.Context) ([]mcp.Prompt, error)
	GetPrompt(ctx context.Context, name string, args map[string]string) (*mcp.GetPromptResult, error)
}

// MessageSink receives outbound message batches.
type MessageSink interface {
	SendBatch(ctx context.Context, msgs []mcp.BatchMessage) (*mcp.SendBatchResult, error)
}

// NotFoundError indicates a requested item (tool, resource, prompt) doesn't
// exist. It maps to a JSON-RPC "Method not found" error.
type NotFoundError struct {
	Type string // "tool", "resource", "prompt"
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Type, e.Name)
}
