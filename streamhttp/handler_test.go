package streamhttp

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gateway "github.com/agentgate/mcp-gateway-go"
	"github.com/agentgate/mcp-gateway-go/auth"
	"github.com/agentgate/mcp-gateway-go/config"
	"github.com/agentgate/mcp-gateway-go/sessions/memorystore"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func startHandler(t *testing.T, opts ...Option) *Handler {
	t.Helper()

	gw := gateway.New(config.Config{}, memorystore.New(),
		gateway.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = gw.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	opts = append([]Option{WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, opts...)
	return New(gw, opts...)
}

func postJSON(h http.Handler, body string, mutate ...func(*http.Request)) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for _, m := range mutate {
		m(req)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandlerHappyPath(t *testing.T) {
	h := startHandler(t)

	rec := postJSON(h, `{"jsonrpc":"2.0","id":1,"method":"ping"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Header().Get("Gateway-Session-Id"),
		"the handler must assign a session id when the client sends none")

	var resp struct {
		Result map[string]any `json:"result"`
		Error  map[string]any `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Nil(t, resp.Error)
	assert.NotNil(t, resp.Result)
}

func TestHandlerPreservesClientSessionID(t *testing.T) {
	h := startHandler(t)

	rec := postJSON(h, `{"jsonrpc":"2.0","id":1,"method":"ping"}`, func(r *http.Request) {
		r.Header.Set("Gateway-Session-Id", "sess-abc")
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "sess-abc", rec.Header().Get("Gateway-Session-Id"))

	var resp struct {
		Result map[string]any `json:"result"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	meta := resp.Result["_metadata"].(map[string]any)
	assert.Equal(t, "sess-abc", meta["sessionId"])
}

func TestHandlerRejectsNonPost(t *testing.T) {
	h := startHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, http.MethodPost, rec.Header().Get("Allow"))
}

func TestHandlerRejectsWrongContentType(t *testing.T) {
	h := startHandler(t)

	rec := postJSON(h, `{"jsonrpc":"2.0","id":1,"method":"ping"}`, func(r *http.Request) {
		r.Header.Set("Content-Type", "text/plain")
	})
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

func TestHandlerRejectsBatchArrays(t *testing.T) {
	h := startHandler(t)

	rec := postJSON(h, `[{"jsonrpc":"2.0","id":1,"method":"ping"}]`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerBodyLimit(t *testing.T) {
	h := startHandler(t, WithMaxBodyBytes(64))

	big := `{"jsonrpc":"2.0","id":1,"method":"ping","params":{"pad":"` +
		strings.Repeat("x", 256) + `"}}`
	rec := postJSON(h, big)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestHandlerAuthRequired(t *testing.T) {
	verifier, err := auth.NewHMACVerifier(testSecret)
	require.NoError(t, err)
	h := startHandler(t, WithVerifier(verifier), WithRealm("test"))

	// No token.
	rec := postJSON(h, `{"jsonrpc":"2.0","id":1,"method":"ping"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), `realm="test"`)

	// Garbage token.
	rec = postJSON(h, `{"jsonrpc":"2.0","id":1,"method":"ping"}`, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer not.a.jwt")
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "invalid_token")

	// Valid token.
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"agent": "alice",
		"exp":   time.Now().Add(time.Hour).Unix(),
	}).SignedString(testSecret)
	require.NoError(t, err)

	rec = postJSON(h, `{"jsonrpc":"2.0","id":1,"method":"ping"}`, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+token)
	})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandlerPipelineErrorsStayHTTP200(t *testing.T) {
	h := startHandler(t)

	rec := postJSON(h, `{"jsonrpc":"2.0","id":1,"method":"admin/shutdown"}`)
	require.Equal(t, http.StatusOK, rec.Code, "JSON-RPC errors ride a 200 transport")

	var resp struct {
		Error struct {
			Code int `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, -32601, resp.Error.Code)
}
