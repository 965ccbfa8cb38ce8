package hooks

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/agentgate/mcp-gateway-go/internal/jsonrpc"
)

// Priorities of the built-in hooks. The rate limiter runs earliest so that
// over-limit traffic is rejected before any other middleware spends work on it.
const (
	RateLimiterPriority = 10
	DefaultHookPriority = 100
)

func newRequestLogger(log *slog.Logger) *FuncHook {
	return NewFuncHook("request-logger", KindRequest, DefaultHookPriority,
		func(ctx context.Context, v any, hctx *Context) (any, error) {
			log.DebugContext(ctx, "request admitted",
				slog.String("method", hctx.Method),
				slog.String("session_id", hctx.SessionID),
			)
			return nil, nil
		})
}

// responseMetadata is attached under the _metadata key of enriched results.
type responseMetadata struct {
	ProcessedAt   string `json:"processedAt"`
	SessionID     string `json:"sessionId"`
	RequestMethod string `json:"requestMethod"`
}

func newResponseEnricher() *FuncHook {
	return NewFuncHook("response-enricher", KindResponse, DefaultHookPriority,
		func(ctx context.Context, v any, hctx *Context) (any, error) {
			resp, ok := v.(*jsonrpc.Response)
			if !ok || resp == nil || resp.Error != nil {
				return nil, nil
			}

			// Only object-shaped results can carry metadata.
			var body map[string]any
			if err := json.Unmarshal(resp.Result, &body); err != nil || body == nil {
				return nil, nil
			}
			body["_metadata"] = responseMetadata{
				ProcessedAt:   time.Now().UTC().Format(time.RFC3339Nano),
				SessionID:     hctx.SessionID,
				RequestMethod: hctx.Method,
			}
			enriched, err := json.Marshal(body)
			if err != nil {
				return nil, err
			}

			out := *resp
			out.Result = enriched
			return &out, nil
		})
}

func newErrorEnricher(now func() time.Time) *FuncHook {
	return NewFuncHook("error-enricher", KindError, DefaultHookPriority,
		func(ctx context.Context, v any, hctx *Context) (any, error) {
			cause, ok := v.(error)
			if !ok || cause == nil {
				return nil, nil
			}
			// Idempotent across repeated folds of the same error.
			var already *EnrichedError
			if errors.As(cause, &already) {
				return nil, nil
			}
			return &EnrichedError{
				Err:       cause,
				Method:    hctx.Method,
				SessionID: hctx.SessionID,
				Timestamp: now(),
			}, nil
		})
}
