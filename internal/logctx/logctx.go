package logctx

import (
	"context"
	"log/slog"
)

// Handler decorates an slog.Handler with request-scoped attribute groups
// pulled from the context. Install it once at construction so every log line
// emitted inside the pipeline carries its request, session and hook context.
type Handler struct {
	slog.Handler
}

func (h Handler) Handle(ctx context.Context, r slog.Record) error {
	if rd, ok := ctx.Value(requestDataKey{}).(*RequestData); ok {
		r.AddAttrs(slog.Group("req",
			slog.String("id", rd.RequestID),
			slog.String("user_agent", rd.UserAgent),
			slog.String("remote_addr", rd.RemoteAddr),
			slog.String("path", rd.Path),
		))
	}

	if sd, ok := ctx.Value(sessionDataKey{}).(*SessionData); ok {
		r.AddAttrs(slog.Group("sess",
			slog.String("id", sd.SessionID),
			slog.String("agent", sd.AgentName),
		))
	}

	if msg, ok := ctx.Value(rpcMsgKey{}).(*RPCMessage); ok {
		r.AddAttrs(slog.Group("rpc",
			slog.String("method", msg.Method),
			slog.String("id", msg.ID),
		))
	}

	if hd, ok := ctx.Value(hookDataKey{}).(*HookData); ok {
		r.AddAttrs(slog.Group("hook",
			slog.String("name", hd.Name),
			slog.String("kind", hd.Kind),
		))
	}

	return h.Handler.Handle(ctx, r)
}

type requestDataKey struct{}

// RequestData identifies the transport-level request being served.
type RequestData struct {
	RequestID  string
	UserAgent  string
	RemoteAddr string
	Path       string
}

func WithRequestData(ctx context.Context, data *RequestData) context.Context {
	return context.WithValue(ctx, requestDataKey{}, data)
}

type sessionDataKey struct{}

// SessionData identifies the session on whose behalf work is happening.
type SessionData struct {
	SessionID string
	AgentName string
}

func WithSessionData(ctx context.Context, data *SessionData) context.Context {
	return context.WithValue(ctx, sessionDataKey{}, data)
}

type rpcMsgKey struct{}

// RPCMessage identifies the JSON-RPC message being processed.
type RPCMessage struct {
	Method string
	ID     string
}

func WithRPCMessage(ctx context.Context, msg *RPCMessage) context.Context {
	return context.WithValue(ctx, rpcMsgKey{}, msg)
}

type hookDataKey struct{}

// HookData identifies the middleware hook currently executing.
type HookData struct {
	Name string
	Kind string
}

func WithHookData(ctx context.Context, data *HookData) context.Context {
	return context.WithValue(ctx, hookDataKey{}, data)
}
