package mcp

// Method is a protocol method identifier used in JSON-RPC messages.
type Method string

const (
	// Liveness
	PingMethod Method = "ping"

	// Sessions
	SessionLoginMethod  Method = "session/login"
	SessionLogoutMethod Method = "session/logout"

	// Tools
	ToolsListMethod Method = "tools/list"
	ToolsCallMethod Method = "tools/call"

	// Resources
	ResourcesListMethod Method = "resources/list"
	ResourcesReadMethod Method = "resources/read"

	// Prompts
	PromptsListMethod Method = "prompts/list"
	PromptsGetMethod  Method = "prompts/get"

	// Messaging
	MessagesSendBatchMethod Method = "messages/sendBatch"
)

// DefaultMethods is the full method surface the gateway can mediate. A
// deployment narrows this via configuration; the validator treats anything
// outside the configured allow-list as method-not-found.
func DefaultMethods() []Method {
	return []Method{
		PingMethod,
		SessionLoginMethod,
		SessionLogoutMethod,
		ToolsListMethod,
		ToolsCallMethod,
		ResourcesListMethod,
		ResourcesReadMethod,
		PromptsListMethod,
		PromptsGetMethod,
		MessagesSendBatchMethod,
	}
}
