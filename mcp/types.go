package mcp

import "encoding/json"

// Tools

// Tool describes a callable tool and its input schema.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// ListToolsResult returns the available tools.
type ListToolsResult struct {
	Tools []Tool `json:"tools"`
}

// CallToolParams is the server-received representation for a tool call.
type CallToolParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// Resources

// Resource describes a readable resource exposed by a provider.
type Resource struct {
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

// ResourceContents is one content item returned by a resource read.
type ResourceContents struct {
	URI      string `json:"uri"`
	MimeType string `json:"mimeType,omitempty"`
	Text     string `json:"text,omitempty"`
	Blob     []byte `json:"blob,omitempty"`
}

// ListResourcesResult returns the available resources.
type ListResourcesResult struct {
	Resources []Resource `json:"resources"`
}

// ReadResourceParams identifies the resource to read.
type ReadResourceParams struct {
	URI string `json:"uri"`
}

// ReadResourceResult returns the contents of a resource.
type ReadResourceResult struct {
	Contents []ResourceContents `json:"contents"`
}

// Prompts

// Prompt describes a retrievable prompt template.
type Prompt struct {
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	Arguments   []PromptArgument `json:"arguments,omitempty"`
}

// PromptArgument describes one argument a prompt accepts.
type PromptArgument struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required,omitempty"`
}

// ListPromptsResult returns the available prompts.
type ListPromptsResult struct {
	Prompts []Prompt `json:"prompts"`
}

// GetPromptParams identifies the prompt to render and its arguments.
type GetPromptParams struct {
	Name      string            `json:"name"`
	Arguments map[string]string `json:"arguments,omitempty"`
}

// PromptMessage is one rendered message of a prompt.
type PromptMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// GetPromptResult returns a rendered prompt.
type GetPromptResult struct {
	Description string          `json:"description,omitempty"`
	Messages    []PromptMessage `json:"messages"`
}

// Sessions

// LoginParams carries the identity to bind to the calling session.
type LoginParams struct {
	AgentName string `json:"agentName"`
}

// LoginResult echoes the session record established by a login.
type LoginResult struct {
	SessionID string `json:"sessionId"`
	AgentName string `json:"agentName"`
	LoginTime string `json:"loginTime"`
}

// Messaging

// BatchMessage is one item of an outbound message batch.
type BatchMessage struct {
	Recipient string `json:"recipient,omitempty"`
	Content   string `json:"content"`
}

// SendBatchParams carries a bounded batch of outbound messages.
type SendBatchParams struct {
	Messages []BatchMessage `json:"messages"`
}

// SendBatchResult reports how many messages were accepted.
type SendBatchResult struct {
	Accepted int `json:"accepted"`
}
