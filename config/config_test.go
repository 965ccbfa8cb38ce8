package config

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentgate/mcp-gateway-go/mcp"
)

func TestFromEnvDefaults(t *testing.T) {
	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, 102400, cfg.MaxPayloadBytes)
	assert.Equal(t, 30*time.Second, cfg.DefaultTimeout)
	assert.Equal(t, 2*time.Minute, cfg.MaxTimeout)
	assert.Equal(t, 60*time.Second, cfg.RateLimitWindow)
	assert.Equal(t, 30, cfg.RateLimitMax)
	assert.Empty(t, cfg.MethodTimeouts)
	assert.Empty(t, cfg.AllowedMethods)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("GATEWAY_MAX_PAYLOAD_BYTES", "2048")
	t.Setenv("GATEWAY_DEFAULT_TIMEOUT", "5s")
	t.Setenv("GATEWAY_RATE_LIMIT", "7")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, 2048, cfg.MaxPayloadBytes)
	assert.Equal(t, 5*time.Second, cfg.DefaultTimeout)
	assert.Equal(t, 7, cfg.RateLimitMax)
}

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gateway.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadOverlaysFile(t *testing.T) {
	path := writeConfigFile(t, `
defaultTimeout: 10s
rateLimitMax: 5
methodTimeouts:
  tools/call: 3s
  messages/sendBatch: 45s
allowedMethods:
  - ping
  - tools/list
  - tools/call
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 10*time.Second, cfg.DefaultTimeout)
	assert.Equal(t, 5, cfg.RateLimitMax)
	assert.Equal(t, 3*time.Second, cfg.MethodTimeouts["tools/call"])
	assert.Equal(t, 45*time.Second, cfg.MethodTimeouts["messages/sendBatch"])

	// Fields absent from the file keep their environment defaults.
	assert.Equal(t, 102400, cfg.MaxPayloadBytes)
	assert.Equal(t, 2*time.Minute, cfg.MaxTimeout)

	assert.Equal(t, []mcp.Method{mcp.PingMethod, mcp.ToolsListMethod, mcp.ToolsCallMethod}, cfg.Methods())
}

func TestLoadRejectsBadDurations(t *testing.T) {
	path := writeConfigFile(t, "defaultTimeout: banana\n")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadEmptyPathSkipsFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, cfg.DefaultTimeout)
}

func TestMethodsFallsBackToFullSurface(t *testing.T) {
	var cfg Config
	assert.Equal(t, mcp.DefaultMethods(), cfg.Methods())
}

func TestWatchReloadsOnWrite(t *testing.T) {
	path := writeConfigFile(t, "rateLimitMax: 1\n")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	reloaded := make(chan Config, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = Watch(ctx, path, slog.New(slog.NewTextHandler(io.Discard, nil)), func(cfg Config) {
			select {
			case reloaded <- cfg:
			default:
			}
		})
	}()

	// Give the watcher a moment to install before the write.
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("rateLimitMax: 9\n"), 0o644))

	select {
	case cfg := <-reloaded:
		assert.Equal(t, 9, cfg.RateLimitMax)
	case <-ctx.Done():
		t.Fatal("watcher never delivered the reloaded config")
	}

	cancel()
	<-done
}
