// Package stdio is the single-connection ingress for local deployments. It
// reads newline-delimited JSON-RPC messages from a reader, runs each through
// the gateway pipeline, and writes the responses back newline-delimited. The
// whole connection shares one session identity.
package stdio

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/google/uuid"

	gateway "github.com/agentgate/mcp-gateway-go"
	"github.com/agentgate/mcp-gateway-go/internal/logctx"
)

const maxLineBytes = 1 << 20

// Handler serves the gateway over a stdio-style byte stream.
type Handler struct {
	gw        *gateway.Gateway
	in        io.Reader
	out       io.Writer
	log       *slog.Logger
	sessionID string

	writeMu sync.Mutex
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

// WithStreams overrides the byte streams. Defaults are os.Stdin and os.Stdout.
func WithStreams(in io.Reader, out io.Writer) Option {
	return func(h *Handler) {
		if in != nil {
			h.in = in
		}
		if out != nil {
			h.out = out
		}
	}
}

// WithSessionID fixes the session identity of the connection instead of
// generating one.
func WithSessionID(id string) Option {
	return func(h *Handler) {
		if id != "" {
			h.sessionID = id
		}
	}
}

// NewHandler builds a stdio handler for gw.
func NewHandler(gw *gateway.Gateway, opts ...Option) *Handler {
	h := &Handler{
		gw:        gw,
		in:        os.Stdin,
		out:       os.Stdout,
		log:       slog.Default(),
		sessionID: uuid.NewString(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// SessionID returns the connection's session identity.
func (h *Handler) SessionID() string { return h.sessionID }

// Serve pumps messages until the reader reaches EOF or ctx is cancelled.
// Blank lines are skipped; every non-blank line produces exactly one response
// line.
func (h *Handler) Serve(ctx context.Context) error {
	ctx = logctx.WithSessionData(ctx, &logctx.SessionData{SessionID: h.sessionID})

	scanner := bufio.NewScanner(h.in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		resp := h.gw.HandleMessage(ctx, h.sessionID, line)
		if err := h.writeLine(resp); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		h.log.ErrorContext(ctx, "stdio read failed", slog.String("err", err.Error()))
		return err
	}
	return nil
}

func (h *Handler) writeLine(data []byte) error {
	h.writeMu.Lock()
	defer h.writeMu.Unlock()

	if _, err := h.out.Write(data); err != nil {
		return err
	}
	_, err := h.out.Write([]byte{'\n'})
	return err
}
