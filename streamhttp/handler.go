// Package streamhttp is the HTTP ingress glue in front of the gateway
// pipeline. It accepts one JSON-RPC message per POST, negotiates content
// types, authenticates the bearer token, assigns session identifiers and
// hands the raw message to gateway.HandleMessage. All protocol semantics
// live in the pipeline; this package only moves bytes.
package streamhttp

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/elnormous/contenttype"
	"github.com/google/uuid"

	gateway "github.com/agentgate/mcp-gateway-go"
	"github.com/agentgate/mcp-gateway-go/auth"
	"github.com/agentgate/mcp-gateway-go/internal/logctx"
)

const (
	sessionIDHeader       = "Gateway-Session-Id"
	authorizationHeader   = "Authorization"
	wwwAuthenticateHeader = "WWW-Authenticate"
	bearerPrefix          = "Bearer "
	maxBodySlackBytes     = 4 * 1024
	defaultMaxBodyBytes   = 100*1024 + maxBodySlackBytes
	contentTypeHeader     = "Content-Type"
	jsonContentTypeValue  = "application/json"
)

var jsonMediaType = contenttype.NewMediaType(jsonContentTypeValue)

// Handler serves the gateway over a single POST endpoint.
type Handler struct {
	gw       *gateway.Gateway
	verifier auth.Verifier
	log      *slog.Logger
	maxBody  int64
	realm    string
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.log = l
		}
	}
}

// WithVerifier requires bearer-token authentication on every request.
func WithVerifier(v auth.Verifier) Option {
	return func(h *Handler) { h.verifier = v }
}

// WithRealm sets the realm advertised in WWW-Authenticate challenges.
func WithRealm(realm string) Option {
	return func(h *Handler) { h.realm = realm }
}

// WithMaxBodyBytes caps the request body size read from the wire.
func WithMaxBodyBytes(n int64) Option {
	return func(h *Handler) {
		if n > 0 {
			h.maxBody = n
		}
	}
}

// New builds the ingress handler for gw.
func New(gw *gateway.Gateway, opts ...Option) *Handler {
	h := &Handler{
		gw:      gw,
		log:     slog.Default(),
		maxBody: defaultMaxBodyBytes,
		realm:   "gateway",
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := logctx.WithRequestData(r.Context(), &logctx.RequestData{
		RequestID:  uuid.NewString(),
		UserAgent:  r.UserAgent(),
		RemoteAddr: r.RemoteAddr,
		Path:       r.URL.Path,
	})

	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSONError(w, http.StatusMethodNotAllowed, "only POST is supported")
		return
	}

	ctype, err := contenttype.GetMediaType(r)
	if err != nil || !ctype.Matches(jsonMediaType) {
		writeJSONError(w, http.StatusUnsupportedMediaType, "content-type must be application/json")
		h.log.WarnContext(ctx, "content_type.unsupported")
		return
	}

	identity, ok := h.authenticate(ctx, w, r)
	if !ok {
		return
	}

	sessionID := r.Header.Get(sessionIDHeader)
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	ctx = logctx.WithSessionData(ctx, &logctx.SessionData{
		SessionID: sessionID,
		AgentName: identity.AgentName,
	})

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBody))
	if err != nil {
		writeJSONError(w, http.StatusRequestEntityTooLarge, "request body too large")
		h.log.WarnContext(ctx, "body.read.fail", slog.String("err", err.Error()))
		return
	}
	if len(body) > 0 && body[0] == '[' {
		writeJSONError(w, http.StatusBadRequest, "JSON-RPC batch arrays are not supported")
		return
	}

	resp := h.gw.HandleMessage(ctx, sessionID, body)

	w.Header().Set(sessionIDHeader, sessionID)
	w.Header().Set(contentTypeHeader, jsonContentTypeValue)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(resp); err != nil {
		h.log.ErrorContext(ctx, "response.write.fail", slog.String("err", err.Error()))
	}
}

// authenticate enforces bearer auth when a verifier is configured. It writes
// the challenge response itself on failure.
func (h *Handler) authenticate(ctx context.Context, w http.ResponseWriter, r *http.Request) (auth.Identity, bool) {
	if h.verifier == nil {
		return auth.Identity{}, true
	}

	token := bearerToken(r)
	if token == "" {
		w.Header().Set(wwwAuthenticateHeader, `Bearer realm="`+h.realm+`"`)
		writeJSONError(w, http.StatusUnauthorized, "missing bearer token")
		return auth.Identity{}, false
	}

	identity, err := h.verifier.Verify(ctx, token)
	if err != nil {
		w.Header().Set(wwwAuthenticateHeader, `Bearer realm="`+h.realm+`", error="invalid_token"`)
		writeJSONError(w, http.StatusUnauthorized, "invalid bearer token")
		h.log.InfoContext(ctx, "auth.fail", slog.String("err", err.Error()))
		return auth.Identity{}, false
	}
	return identity, true
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set(contentTypeHeader, jsonContentTypeValue)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get(authorizationHeader)
	if header == "" || !strings.HasPrefix(header, bearerPrefix) {
		return ""
	}
	return strings.TrimPrefix(header, bearerPrefix)
}
