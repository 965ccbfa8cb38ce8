package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/agentgate/mcp-gateway-go/config"
	"github.com/agentgate/mcp-gateway-go/hooks"
	"github.com/agentgate/mcp-gateway-go/internal/jsonrpc"
	"github.com/agentgate/mcp-gateway-go/internal/logctx"
	"github.com/agentgate/mcp-gateway-go/mcp"
	"github.com/agentgate/mcp-gateway-go/sessions"
	"github.com/agentgate/mcp-gateway-go/timeout"
	"github.com/agentgate/mcp-gateway-go/validate"
)

// UnsupportedOperationError indicates the deployment has no provider for the
// requested surface. It maps to a JSON-RPC "Method not found" error.
type UnsupportedOperationError struct {
	Operation string
}

func (e *UnsupportedOperationError) Error() string {
	return fmt.Sprintf("operation not supported: %s", e.Operation)
}

const defaultSessionMaxAge = 24 * time.Hour

// Gateway is the request pipeline. Construct one with New, register tool
// handlers via Tools, then feed it messages with HandleMessage. Run must be
// started for session mutations to complete.
type Gateway struct {
	validator  *validate.Validator
	hookMgr    *hooks.Manager
	timeouts   *timeout.Manager
	sessionMgr *sessions.Manager
	registry   *ToolRegistry

	resources ResourceProvider
	prompts   PromptProvider
	messages  MessageSink

	log *slog.Logger
	now func() time.Time

	sessionMaxAge   time.Duration
	cleanupInterval time.Duration
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithLogger sets the logger used across the pipeline.
func WithLogger(l *slog.Logger) Option {
	return func(g *Gateway) {
		if l != nil {
			g.log = l
		}
	}
}

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(g *Gateway) {
		if now != nil {
			g.now = now
		}
	}
}

// WithResourceProvider enables the resources/* surface.
func WithResourceProvider(p ResourceProvider) Option {
	return func(g *Gateway) { g.resources = p }
}

// WithPromptProvider enables the prompts/* surface.
func WithPromptProvider(p PromptProvider) Option {
	return func(g *Gateway) { g.prompts = p }
}

// WithMessageSink enables the messages/sendBatch surface.
func WithMessageSink(s MessageSink) Option {
	return func(g *Gateway) { g.messages = s }
}

// WithSessionMaxAge sets the age past which the background janitor removes a
// session (0 disables cleanup).
func WithSessionMaxAge(d time.Duration) Option {
	return func(g *Gateway) { g.sessionMaxAge = d }
}

// New wires the pipeline from the given configuration and session store.
func New(cfg config.Config, store sessions.Store, opts ...Option) *Gateway {
	g := &Gateway{
		log:             slog.Default(),
		now:             time.Now,
		registry:        NewToolRegistry(),
		sessionMaxAge:   defaultSessionMaxAge,
		cleanupInterval: 5 * time.Minute,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}

	g.validator = validate.New(validate.Config{
		AllowedMethods:  cfg.Methods(),
		MaxPayloadBytes: cfg.MaxPayloadBytes,
	}, validate.WithLogger(g.log))

	g.hookMgr = hooks.NewManager(
		hooks.WithLogger(g.log),
		hooks.WithClock(g.now),
		hooks.WithRateLimit(cfg.RateLimitMax, cfg.RateLimitWindow),
	)

	g.timeouts = timeout.NewManager(timeout.Config{
		Default:   cfg.DefaultTimeout,
		Max:       cfg.MaxTimeout,
		PerMethod: cfg.MethodTimeouts,
	}, timeout.WithLogger(g.log))

	g.sessionMgr = sessions.NewManager(store,
		sessions.WithLogger(g.log),
		sessions.WithClock(g.now),
	)

	return g
}

// Tools returns the tool registry for handler registration.
func (g *Gateway) Tools() *ToolRegistry { return g.registry }

// Hooks returns the hook manager for custom middleware registration.
func (g *Gateway) Hooks() *hooks.Manager { return g.hookMgr }

// Sessions returns the session manager.
func (g *Gateway) Sessions() *sessions.Manager { return g.sessionMgr }

// Timeouts returns the timeout manager.
func (g *Gateway) Timeouts() *timeout.Manager { return g.timeouts }

// Validator returns the request validator.
func (g *Gateway) Validator() *validate.Validator { return g.validator }

// ApplyConfig installs new timeout and rate-limit tables at runtime.
// Allow-list and payload-ceiling changes take effect on restart.
func (g *Gateway) ApplyConfig(cfg config.Config) {
	g.timeouts.SetConfig(timeout.Config{
		Default:   cfg.DefaultTimeout,
		Max:       cfg.MaxTimeout,
		PerMethod: cfg.MethodTimeouts,
	})
	if rl := g.hookMgr.RateLimiter(); rl != nil {
		rl.SetLimit(cfg.RateLimitMax, cfg.RateLimitWindow)
	}
}

// Run drives the gateway's background work: the session mutation writer and
// the periodic stale-session janitor. It blocks until ctx is cancelled, then
// clears all outstanding timers so none leak past shutdown.
func (g *Gateway) Run(ctx context.Context) error {
	defer g.timeouts.ClearAll()

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return g.sessionMgr.Run(egCtx)
	})
	if g.sessionMaxAge > 0 {
		eg.Go(func() error {
			ticker := time.NewTicker(g.cleanupInterval)
			defer ticker.Stop()
			for {
				select {
				case <-egCtx.Done():
					return egCtx.Err()
				case <-ticker.C:
					if _, err := g.sessionMgr.CleanupOldSessions(egCtx, g.sessionMaxAge); err != nil && !errors.Is(err, context.Canceled) {
						g.log.Warn("session cleanup failed", slog.String("err", err.Error()))
					}
				}
			}
		})
	}
	return eg.Wait()
}

// HandleMessage runs one inbound message through the full pipeline and
// returns the serialized wire-level response. It never returns nil and never
// propagates a raw internal error.
func (g *Gateway) HandleMessage(ctx context.Context, sessionID string, raw []byte) []byte {
	resp := g.handleMessage(ctx, sessionID, raw)
	data, err := json.Marshal(resp)
	if err != nil {
		// A response we built ourselves failed to serialize; nothing request-
		// specific can be salvaged.
		g.log.ErrorContext(ctx, "response marshal failed", slog.String("err", err.Error()))
		data, _ = json.Marshal(jsonrpc.NewErrorResponse(nil, jsonrpc.ErrorCodeInternalError, "internal error", nil))
	}
	return data
}

func (g *Gateway) handleMessage(ctx context.Context, sessionID string, raw jsonrpc.Message) *jsonrpc.Response {
	hctx := &hooks.Context{
		SessionID: sessionID,
		StartTime: g.now(),
		Metadata:  map[string]any{},
	}

	req, err := g.validator.ValidateRequest(raw)
	if err != nil {
		// The partial decode, when available, carries the id to echo back.
		var id *jsonrpc.RequestID
		if req != nil {
			id = req.ID
		}
		return g.fail(ctx, id, hctx, err)
	}
	hctx.Method = req.Method
	ctx = logctx.WithRPCMessage(ctx, &logctx.RPCMessage{Method: req.Method, ID: req.ID.String()})

	folded, err := g.hookMgr.ProcessRequest(ctx, req, hctx)
	if err != nil {
		return g.fail(ctx, req.ID, hctx, err)
	}
	if r, ok := folded.(*jsonrpc.Request); ok && r != nil {
		req = r
	}

	result, err := g.dispatch(ctx, req, hctx)
	if err != nil {
		return g.fail(ctx, req.ID, hctx, err)
	}

	resp, err := jsonrpc.NewResultResponse(req.ID, result)
	if err != nil {
		return g.fail(ctx, req.ID, hctx, err)
	}

	foldedResp, err := g.hookMgr.ProcessResponse(ctx, resp, hctx)
	if err != nil {
		return g.fail(ctx, req.ID, hctx, err)
	}
	if r, ok := foldedResp.(*jsonrpc.Response); ok && r != nil {
		resp = r
	}

	if err := g.validator.ValidateResponse(resp, req.Method); err != nil {
		return g.fail(ctx, req.ID, hctx, err)
	}
	return resp
}

// dispatch routes the validated, hook-folded request to its collaborator.
func (g *Gateway) dispatch(ctx context.Context, req *jsonrpc.Request, hctx *hooks.Context) (any, error) {
	switch mcp.Method(req.Method) {
	case mcp.PingMethod:
		return map[string]any{}, nil

	case mcp.SessionLoginMethod:
		var p mcp.LoginParams
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return nil, &validate.RequestError{Field: "params", Reason: "malformed params"}
		}
		sess, err := g.sessionMgr.CreateSession(ctx, hctx.SessionID, p.AgentName)
		if err != nil {
			return nil, err
		}
		return &mcp.LoginResult{
			SessionID: sess.ID,
			AgentName: sess.AgentName,
			LoginTime: sess.LoginTime.UTC().Format(time.RFC3339Nano),
		}, nil

	case mcp.SessionLogoutMethod:
		removed, err := g.sessionMgr.DeleteSession(ctx, hctx.SessionID)
		if err != nil {
			return nil, err
		}
		return map[string]any{"loggedOut": removed}, nil

	case mcp.ToolsListMethod:
		return &mcp.ListToolsResult{Tools: g.registry.List()}, nil

	case mcp.ToolsCallMethod:
		var p mcp.CallToolParams
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return nil, &validate.RequestError{Field: "params", Reason: "malformed params"}
		}
		handler, ok := g.registry.Lookup(p.Name)
		if !ok {
			return nil, &NotFoundError{Type: "tool", Name: p.Name}
		}
		toolCtx := logctx.WithSessionData(ctx, &logctx.SessionData{SessionID: hctx.SessionID})
		return g.timeouts.WithTimeout(toolCtx, req.Method, func(opCtx context.Context) (any, error) {
			return handler.Execute(opCtx, p.Arguments, hctx)
		})

	case mcp.ResourcesListMethod:
		if g.resources == nil {
			return nil, &UnsupportedOperationError{Operation: req.Method}
		}
		list, err := g.resources.ListResources(ctx)
		if err != nil {
			return nil, err
		}
		if list == nil {
			list = []mcp.Resource{}
		}
		return &mcp.ListResourcesResult{Resources: list}, nil

	case mcp.ResourcesReadMethod:
		if g.resources == nil {
			return nil, &UnsupportedOperationError{Operation: req.Method}
		}
		var p mcp.ReadResourceParams
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return nil, &validate.RequestError{Field: "params", Reason: "malformed params"}
		}
		return g.timeouts.WithTimeout(ctx, req.Method, func(opCtx context.Context) (any, error) {
			contents, err := g.resources.ReadResource(opCtx, p.URI)
			if err != nil {
				return nil, err
			}
			return &mcp.ReadResourceResult{Contents: contents}, nil
		})

	case mcp.PromptsListMethod:
		if g.prompts == nil {
			return nil, &UnsupportedOperationError{Operation: req.Method}
		}
		list, err := g.prompts.ListPrompts(ctx)
		if err != nil {
			return nil, err
		}
		if list == nil {
			list = []mcp.Prompt{}
		}
		return &mcp.ListPromptsResult{Prompts: list}, nil

	case mcp.PromptsGetMethod:
		if g.prompts == nil {
			return nil, &UnsupportedOperationError{Operation: req.Method}
		}
		var p mcp.GetPromptParams
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return nil, &validate.RequestError{Field: "params", Reason: "malformed params"}
		}
		return g.timeouts.WithTimeout(ctx, req.Method, func(opCtx context.Context) (any, error) {
			return g.prompts.GetPrompt(opCtx, p.Name, p.Arguments)
		})

	case mcp.MessagesSendBatchMethod:
		if g.messages == nil {
			return nil, &UnsupportedOperationError{Operation: req.Method}
		}
		var p mcp.SendBatchParams
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return nil, &validate.RequestError{Field: "params", Reason: "malformed params"}
		}
		return g.timeouts.WithTimeout(ctx, req.Method, func(opCtx context.Context) (any, error) {
			return g.messages.SendBatch(opCtx, p.Messages)
		})

	default:
		return nil, &validate.MethodNotFoundError{Method: req.Method}
	}
}

// fail folds err through the error hooks for enrichment, then converts it to
// a wire-level error response.
func (g *Gateway) fail(ctx context.Context, id *jsonrpc.RequestID, hctx *hooks.Context, cause error) *jsonrpc.Response {
	enriched, foldErr := g.hookMgr.ProcessError(ctx, cause, hctx)
	if foldErr != nil {
		g.log.ErrorContext(ctx, "error hook fold aborted",
			slog.String("err", foldErr.Error()),
		)
		enriched = cause
	}
	return errorResponse(id, enriched)
}

// errorResponse maps pipeline errors to their stable wire codes. Enrichment
// wrappers are traversed; raw internals never leak.
func errorResponse(id *jsonrpc.RequestID, err error) *jsonrpc.Response {
	var data map[string]any
	var enriched *hooks.EnrichedError
	if errors.As(err, &enriched) {
		data = map[string]any{
			"context": map[string]any{
				"method":    enriched.Method,
				"sessionId": enriched.SessionID,
				"timestamp": enriched.Timestamp.UTC().Format(time.RFC3339Nano),
			},
		}
	}

	var rle *hooks.RateLimitError
	if errors.As(err, &rle) {
		if data == nil {
			data = map[string]any{}
		}
		data["retryAfter"] = rle.RetryAfter
		return jsonrpc.NewErrorResponse(id, jsonrpc.ErrorCodeRateLimited, "rate limit exceeded", data)
	}

	var mnf *validate.MethodNotFoundError
	if errors.As(err, &mnf) {
		return jsonrpc.NewErrorResponse(id, jsonrpc.ErrorCodeMethodNotFound, mnf.Error(), data)
	}
	var nf *NotFoundError
	if errors.As(err, &nf) {
		return jsonrpc.NewErrorResponse(id, jsonrpc.ErrorCodeMethodNotFound, nf.Error(), data)
	}
	var unsup *UnsupportedOperationError
	if errors.As(err, &unsup) {
		return jsonrpc.NewErrorResponse(id, jsonrpc.ErrorCodeMethodNotFound, unsup.Error(), data)
	}

	var reqErr *validate.RequestError
	if errors.As(err, &reqErr) {
		if len(reqErr.Data) > 0 {
			if data == nil {
				data = map[string]any{}
			}
			for k, v := range reqErr.Data {
				data[k] = v
			}
		}
		return jsonrpc.NewErrorResponse(id, jsonrpc.ErrorCodeInvalidParams, reqErr.Error(), data)
	}

	var te *timeout.TimeoutError
	if errors.As(err, &te) {
		if data == nil {
			data = map[string]any{}
		}
		data["timeoutMs"] = te.Limit.Milliseconds()
		return jsonrpc.NewErrorResponse(id, jsonrpc.ErrorCodeInternalError, te.Error(), data)
	}

	return jsonrpc.NewErrorResponse(id, jsonrpc.ErrorCodeInternalError, "internal error", data)
}
