package validate

import "fmt"

// MethodNotFoundError indicates the requested method is not in the
// configured allow-list. This should result in a JSON-RPC "Method not found"
// error.
type MethodNotFoundError struct {
	Method string
}

func (e *MethodNotFoundError) Error() string {
	return fmt.Sprintf("method not found: %s", e.Method)
}

// RequestError indicates an inbound request violated the envelope or a
// method-specific parameter contract. This should result in a JSON-RPC
// "Invalid params" error; Data carries structured diagnostics for the client.
type RequestError struct {
	Field  string
	Reason string
	Data   map[string]any
}

func (e *RequestError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invalid request %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid request: %s", e.Reason)
}

// ResponseError indicates an outbound response violated its method's result
// contract. The response was produced by the server itself, so this maps to a
// JSON-RPC internal error.
type ResponseError struct {
	Method string
	Reason string
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("invalid %s response: %s", e.Method, e.Reason)
}
