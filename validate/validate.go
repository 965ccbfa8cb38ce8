// Package validate implements the gateway's request and response gatekeeper.
// Every inbound message passes through a Validator before any middleware or
// handler runs; every outbound result is checked against its method's result
// contract before it crosses the wire.
package validate

import (
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"unicode/utf8"

	"github.com/agentgate/mcp-gateway-go/internal/jsonrpc"
	"github.com/agentgate/mcp-gateway-go/mcp"
)

const (
	// DefaultMaxPayloadBytes bounds the serialized size of any inbound
	// message, independent of method.
	DefaultMaxPayloadBytes = 100 * 1024

	// DefaultMaxBatchItems bounds the item count of a messages/sendBatch call.
	DefaultMaxBatchItems = 50

	// DefaultMaxMessageChars bounds the content length of a single batch item.
	DefaultMaxMessageChars = 10000
)

// Config carries the externally supplied validation limits. Zero values fall
// back to the package defaults; an empty AllowedMethods list falls back to
// mcp.DefaultMethods.
type Config struct {
	AllowedMethods  []mcp.Method
	MaxPayloadBytes int
	MaxBatchItems   int
	MaxMessageChars int
}

// Validator checks structural and method-specific correctness of inbound
// requests and outbound responses. It is safe for concurrent use.
type Validator struct {
	allowed         map[mcp.Method]struct{}
	maxPayloadBytes int
	maxBatchItems   int
	maxMessageChars int
	log             *slog.Logger

	total  atomic.Int64
	errors atomic.Int64
}

// Option configures a Validator.
type Option func(*Validator)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(v *Validator) {
		if l != nil {
			v.log = l
		}
	}
}

// New builds a Validator from the given config.
func New(cfg Config, opts ...Option) *Validator {
	v := &Validator{
		allowed:         make(map[mcp.Method]struct{}),
		maxPayloadBytes: cfg.MaxPayloadBytes,
		maxBatchItems:   cfg.MaxBatchItems,
		maxMessageChars: cfg.MaxMessageChars,
		log:             slog.Default(),
	}
	methods := cfg.AllowedMethods
	if len(methods) == 0 {
		methods = mcp.DefaultMethods()
	}
	for _, m := range methods {
		v.allowed[m] = struct{}{}
	}
	if v.maxPayloadBytes <= 0 {
		v.maxPayloadBytes = DefaultMaxPayloadBytes
	}
	if v.maxBatchItems <= 0 {
		v.maxBatchItems = DefaultMaxBatchItems
	}
	if v.maxMessageChars <= 0 {
		v.maxMessageChars = DefaultMaxMessageChars
	}
	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}
	return v
}

// ValidateRequest parses and validates one inbound message. On success it
// returns the decoded request. On failure the request may still be non-nil:
// whenever the message decoded far enough to carry an id, the partial decode
// is returned alongside the error so callers can echo the id on the error
// response. Every call bumps the total counter; a failing call bumps the
// error counter exactly once no matter how many individual rules the message
// violates.
func (v *Validator) ValidateRequest(raw jsonrpc.Message) (*jsonrpc.Request, error) {
	v.total.Add(1)

	req, err := v.checkRequest(raw)
	if err != nil {
		v.errors.Add(1)
		v.log.Debug("request validation failed", slog.String("err", err.Error()))
	}
	return req, err
}

func (v *Validator) checkRequest(raw jsonrpc.Message) (*jsonrpc.Request, error) {
	if len(raw) > v.maxPayloadBytes {
		return nil, &RequestError{
			Reason: "payload exceeds maximum size",
			Data: map[string]any{
				"size":    len(raw),
				"maxSize": v.maxPayloadBytes,
			},
		}
	}

	var req jsonrpc.Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, &RequestError{Reason: "malformed JSON-RPC message", Data: map[string]any{"detail": err.Error()}}
	}

	// From here on the envelope decoded, so the partial request is returned
	// with any error to keep the id available for the error response.
	if req.JSONRPCVersion != jsonrpc.ProtocolVersion {
		return &req, &RequestError{
			Field:  "jsonrpc",
			Reason: "jsonrpc version must be \"2.0\"",
			Data:   map[string]any{"got": req.JSONRPCVersion},
		}
	}
	if req.Method == "" {
		return &req, &RequestError{Field: "method", Reason: "method is required"}
	}
	if _, ok := v.allowed[mcp.Method(req.Method)]; !ok {
		return &req, &MethodNotFoundError{Method: req.Method}
	}

	if err := v.checkParams(&req); err != nil {
		return &req, err
	}
	return &req, nil
}

// checkParams applies the per-method parameter shape table.
func (v *Validator) checkParams(req *jsonrpc.Request) error {
	switch mcp.Method(req.Method) {
	case mcp.ToolsCallMethod:
		var p mcp.CallToolParams
		if err := unmarshalParams(req.Params, &p); err != nil {
			return err
		}
		if p.Name == "" {
			return &RequestError{Field: "params.name", Reason: "tool name is required"}
		}

	case mcp.ResourcesReadMethod:
		var p mcp.ReadResourceParams
		if err := unmarshalParams(req.Params, &p); err != nil {
			return err
		}
		if p.URI == "" {
			return &RequestError{Field: "params.uri", Reason: "resource uri is required"}
		}

	case mcp.PromptsGetMethod:
		var p mcp.GetPromptParams
		if err := unmarshalParams(req.Params, &p); err != nil {
			return err
		}
		if p.Name == "" {
			return &RequestError{Field: "params.name", Reason: "prompt name is required"}
		}

	case mcp.SessionLoginMethod:
		var p mcp.LoginParams
		if err := unmarshalParams(req.Params, &p); err != nil {
			return err
		}
		if p.AgentName == "" {
			return &RequestError{Field: "params.agentName", Reason: "agentName is required"}
		}

	case mcp.MessagesSendBatchMethod:
		var p mcp.SendBatchParams
		if err := unmarshalParams(req.Params, &p); err != nil {
			return err
		}
		if len(p.Messages) == 0 {
			return &RequestError{Field: "params.messages", Reason: "messages must be a non-empty array"}
		}
		if len(p.Messages) > v.maxBatchItems {
			return &RequestError{
				Field:  "params.messages",
				Reason: "too many messages in batch",
				Data: map[string]any{
					"count":    len(p.Messages),
					"maxCount": v.maxBatchItems,
				},
			}
		}
		for i, m := range p.Messages {
			if n := utf8.RuneCountInString(m.Content); n > v.maxMessageChars {
				return &RequestError{
					Field:  "params.messages",
					Reason: "message content exceeds maximum length",
					Data: map[string]any{
						"index":    i,
						"length":   n,
						"maxChars": v.maxMessageChars,
					},
				}
			}
		}
	}
	return nil
}

func unmarshalParams(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		return &RequestError{Field: "params", Reason: "params are required"}
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return &RequestError{Field: "params", Reason: "malformed params", Data: map[string]any{"detail": err.Error()}}
	}
	return nil
}

// ValidateResponse checks an outbound response against the method's result
// contract. Error responses and unrecognized methods skip shape checks.
func (v *Validator) ValidateResponse(resp *jsonrpc.Response, method string) error {
	if resp == nil {
		return &ResponseError{Method: method, Reason: "response is nil"}
	}

	hasResult := len(resp.Result) > 0
	hasError := resp.Error != nil
	if hasResult == hasError {
		return &ResponseError{Method: method, Reason: "response must carry exactly one of result or error"}
	}
	if hasError {
		return nil
	}

	switch mcp.Method(method) {
	case mcp.ToolsListMethod:
		var res mcp.ListToolsResult
		if err := json.Unmarshal(resp.Result, &res); err != nil {
			return &ResponseError{Method: method, Reason: "result does not match tool listing shape"}
		}
		if res.Tools == nil {
			return &ResponseError{Method: method, Reason: "result must contain a tools array"}
		}
		for _, tool := range res.Tools {
			if tool.Name == "" {
				return &ResponseError{Method: method, Reason: "listed tool is missing name"}
			}
			if len(tool.InputSchema) == 0 {
				return &ResponseError{Method: method, Reason: "listed tool is missing inputSchema"}
			}
		}

	case mcp.ResourcesListMethod:
		var res mcp.ListResourcesResult
		if err := json.Unmarshal(resp.Result, &res); err != nil {
			return &ResponseError{Method: method, Reason: "result does not match resource listing shape"}
		}
		if res.Resources == nil {
			return &ResponseError{Method: method, Reason: "result must contain a resources array"}
		}
		for _, r := range res.Resources {
			if r.URI == "" || r.Name == "" {
				return &ResponseError{Method: method, Reason: "listed resource is missing uri or name"}
			}
		}
	}
	return nil
}

// Stats is a snapshot of the running validation counters.
type Stats struct {
	Total       int64
	Errors      int64
	SuccessRate float64
}

// Stats returns the current counter values. The success rate of a validator
// that has seen no traffic is reported as 1.
func (v *Validator) Stats() Stats {
	total := v.total.Load()
	errs := v.errors.Load()
	rate := 1.0
	if total > 0 {
		rate = float64(total-errs) / float64(total)
	}
	return Stats{Total: total, Errors: errs, SuccessRate: rate}
}
