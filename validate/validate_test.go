package validate

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentgate/mcp-gateway-go/internal/jsonrpc"
	"github.com/agentgate/mcp-gateway-go/mcp"
)

func testValidator(cfg Config) *Validator {
	return New(cfg, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
}

func rawRequest(t *testing.T, method string, params any) jsonrpc.Message {
	t.Helper()
	body := map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
	}
	if params != nil {
		body["params"] = params
	}
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	return raw
}

func TestValidateRequestAcceptsWellFormed(t *testing.T) {
	v := testValidator(Config{})

	req, err := v.ValidateRequest(rawRequest(t, "ping", nil))
	require.NoError(t, err)
	assert.Equal(t, "ping", req.Method)
	assert.Equal(t, "2.0", req.JSONRPCVersion)
}

func TestValidateRequestEnvelope(t *testing.T) {
	v := testValidator(Config{})

	tests := []struct {
		name string
		raw  string
	}{
		{"malformed json", `{"jsonrpc": "2.0",`},
		{"wrong version", `{"jsonrpc": "1.0", "id": 1, "method": "ping"}`},
		{"missing version", `{"id": 1, "method": "ping"}`},
		{"missing method", `{"jsonrpc": "2.0", "id": 1}`},
		{"object id", `{"jsonrpc": "2.0", "id": {"x": 1}, "method": "ping"}`},
		{"boolean id", `{"jsonrpc": "2.0", "id": true, "method": "ping"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.ValidateRequest(jsonrpc.Message(tt.raw))
			var rerr *RequestError
			require.ErrorAs(t, err, &rerr)
		})
	}
}

func TestValidateRequestFailureKeepsDecodedID(t *testing.T) {
	v := testValidator(Config{})

	req, err := v.ValidateRequest(jsonrpc.Message(`{"jsonrpc":"2.0","id":7,"method":"tools/call","params":{}}`))
	require.Error(t, err)
	require.NotNil(t, req)
	assert.Equal(t, int64(7), req.ID.Value())
}

func TestValidateRequestUnknownMethod(t *testing.T) {
	v := testValidator(Config{})

	_, err := v.ValidateRequest(rawRequest(t, "admin/shutdown", nil))
	var merr *MethodNotFoundError
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, "admin/shutdown", merr.Method)
}

func TestValidateRequestCustomAllowList(t *testing.T) {
	v := testValidator(Config{AllowedMethods: []mcp.Method{mcp.PingMethod}})

	_, err := v.ValidateRequest(rawRequest(t, "ping", nil))
	require.NoError(t, err)

	_, err = v.ValidateRequest(rawRequest(t, "tools/list", nil))
	var merr *MethodNotFoundError
	assert.ErrorAs(t, err, &merr)
}

func TestValidateRequestPayloadCap(t *testing.T) {
	v := testValidator(Config{MaxPayloadBytes: 128})

	big := rawRequest(t, "ping", map[string]any{"pad": strings.Repeat("x", 256)})
	_, err := v.ValidateRequest(big)
	var rerr *RequestError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, 128, rerr.Data["maxSize"])
}

func TestValidateRequestMethodShapes(t *testing.T) {
	v := testValidator(Config{})

	valid := []struct {
		method string
		params any
	}{
		{"tools/call", map[string]any{"name": "echo"}},
		{"resources/read", map[string]any{"uri": "res://greeting"}},
		{"prompts/get", map[string]any{"name": "summarize"}},
		{"session/login", map[string]any{"agentName": "alice"}},
		{"messages/sendBatch", map[string]any{
			"messages": []map[string]any{{"recipient": "agent-2", "content": "hi"}},
		}},
	}
	for _, tt := range valid {
		t.Run("ok "+tt.method, func(t *testing.T) {
			_, err := v.ValidateRequest(rawRequest(t, tt.method, tt.params))
			assert.NoError(t, err)
		})
	}

	invalid := []struct {
		method string
		params any
		field  string
	}{
		{"tools/call", nil, "params"},
		{"tools/call", map[string]any{}, "params.name"},
		{"resources/read", map[string]any{}, "params.uri"},
		{"prompts/get", map[string]any{}, "params.name"},
		{"session/login", map[string]any{}, "params.agentName"},
		{"messages/sendBatch", map[string]any{"messages": []any{}}, "params.messages"},
	}
	for _, tt := range invalid {
		t.Run("bad "+tt.method+" "+tt.field, func(t *testing.T) {
			_, err := v.ValidateRequest(rawRequest(t, tt.method, tt.params))
			var rerr *RequestError
			require.ErrorAs(t, err, &rerr)
			assert.Equal(t, tt.field, rerr.Field)
		})
	}
}

func TestValidateRequestBatchLimits(t *testing.T) {
	v := testValidator(Config{MaxBatchItems: 3, MaxMessageChars: 10})

	msgs := func(n int, content string) map[string]any {
		items := make([]map[string]any, n)
		for i := range items {
			items[i] = map[string]any{"recipient": "agent-2", "content": content}
		}
		return map[string]any{"messages": items}
	}

	_, err := v.ValidateRequest(rawRequest(t, "messages/sendBatch", msgs(3, "short")))
	require.NoError(t, err)

	_, err = v.ValidateRequest(rawRequest(t, "messages/sendBatch", msgs(4, "short")))
	var rerr *RequestError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, 3, rerr.Data["maxCount"])

	_, err = v.ValidateRequest(rawRequest(t, "messages/sendBatch", msgs(1, strings.Repeat("y", 11))))
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, 10, rerr.Data["maxChars"])
	assert.Equal(t, 0, rerr.Data["index"])
}

func TestValidateResponse(t *testing.T) {
	v := testValidator(Config{})
	id := jsonrpc.NewRequestID(int64(1))

	ok, err := jsonrpc.NewResultResponse(id, map[string]any{"ok": true})
	require.NoError(t, err)
	assert.NoError(t, v.ValidateResponse(ok, "ping"))

	errResp := jsonrpc.NewErrorResponse(id, jsonrpc.ErrorCodeInternalError, "boom", nil)
	assert.NoError(t, v.ValidateResponse(errResp, "ping"))

	assert.Error(t, v.ValidateResponse(nil, "ping"))

	// Neither result nor error.
	var rerr *ResponseError
	empty := &jsonrpc.Response{JSONRPCVersion: jsonrpc.ProtocolVersion, ID: id}
	err = v.ValidateResponse(empty, "ping")
	require.ErrorAs(t, err, &rerr)

	// Both result and error.
	both := &jsonrpc.Response{
		JSONRPCVersion: jsonrpc.ProtocolVersion,
		ID:             id,
		Result:         json.RawMessage(`{}`),
		Error:          &jsonrpc.Error{Code: jsonrpc.ErrorCodeInternalError, Message: "boom"},
	}
	err = v.ValidateResponse(both, "ping")
	require.ErrorAs(t, err, &rerr)
}

func TestValidateResponseToolListingShape(t *testing.T) {
	v := testValidator(Config{})
	id := jsonrpc.NewRequestID(int64(1))

	good, err := jsonrpc.NewResultResponse(id, mcp.ListToolsResult{
		Tools: []mcp.Tool{{Name: "echo", InputSchema: json.RawMessage(`{"type":"object"}`)}},
	})
	require.NoError(t, err)
	assert.NoError(t, v.ValidateResponse(good, "tools/list"))

	missingSchema, err := jsonrpc.NewResultResponse(id, mcp.ListToolsResult{
		Tools: []mcp.Tool{{Name: "echo"}},
	})
	require.NoError(t, err)
	assert.Error(t, v.ValidateResponse(missingSchema, "tools/list"))

	noArray, err := jsonrpc.NewResultResponse(id, map[string]any{})
	require.NoError(t, err)
	assert.Error(t, v.ValidateResponse(noArray, "tools/list"))
}

func TestStatsCountErrorsOncePerRequest(t *testing.T) {
	v := testValidator(Config{})

	// Violates the version rule and the method rule at once; still one error.
	_, err := v.ValidateRequest(jsonrpc.Message(`{"jsonrpc": "1.0", "id": 1}`))
	require.Error(t, err)

	_, err = v.ValidateRequest(rawRequest(t, "ping", nil))
	require.NoError(t, err)
	_, err = v.ValidateRequest(rawRequest(t, "tools/list", nil))
	require.NoError(t, err)

	stats := v.Stats()
	assert.Equal(t, int64(3), stats.Total)
	assert.Equal(t, int64(1), stats.Errors)
	assert.InDelta(t, 2.0/3.0, stats.SuccessRate, 1e-9)
}

func TestStatsEmptyValidator(t *testing.T) {
	v := testValidator(Config{})
	stats := v.Stats()
	assert.Zero(t, stats.Total)
	assert.Equal(t, 1.0, stats.SuccessRate)
}

func ExampleValidator_ValidateRequest() {
	v := New(Config{})
	_, err := v.ValidateRequest(jsonrpc.Message(`{"jsonrpc":"2.0","id":1,"method":"admin/shutdown"}`))
	fmt.Println(err)
	// Output: method not found: admin/shutdown
}
