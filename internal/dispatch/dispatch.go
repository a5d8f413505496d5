// Package dispatch maps the 4-byte ASCII command codes read off a
// session's frames to their handler functions and runs one frame at a
// time; the per-connection read loop that calls it lives in
// cmd/server (spec §4.2). This replaces the original
// server's endpoint_instances dict-of-Endpoint-subclasses
// (main.py/controllers.py) with an explicit registration table, the
// same map[string]Handler shape the teacher's HTTP router config
// uses for its own route table, generalized to a 4-byte wire code
// instead of a URL path.
package dispatch

import (
	"context"
	"log/slog"
	"strings"

	"predictrix/server/internal/wire"
)

// Handler processes one request's payload for an authenticated or
// anonymous session and replies on the wire itself. It returns
// whether the session's read loop should continue.
type Handler func(ctx context.Context, sess *wire.Session, payload string) bool

// Dispatcher holds the code -> Handler table.
type Dispatcher struct {
	handlers map[string]Handler
}

// New creates an empty Dispatcher.
func New() *Dispatcher {
	return &Dispatcher{handlers: make(map[string]Handler)}
}

// Register binds a 4-byte code to a handler. Panics on a duplicate
// registration - that is a startup-time programming error, never a
// runtime condition.
func (d *Dispatcher) Register(code string, h Handler) {
	if len(code) != 4 {
		panic("dispatch: command code must be exactly 4 bytes: " + code)
	}
	if _, exists := d.handlers[code]; exists {
		panic("dispatch: duplicate registration for code: " + code)
	}
	d.handlers[code] = h
}

// unknownReply is the fixed empty-prefix error body for an
// unrecognized command code (spec §4.2, scenario S2).
const unknownReply = "what"

// Dispatch decodes one frame into a 4-byte lowercased code plus
// UTF-8 payload, looks up the registered handler, and runs it. An
// unrecognized code replies with an empty prefix and "what" and keeps
// the session open. Returns whether the session's read loop should
// continue.
func (d *Dispatcher) Dispatch(ctx context.Context, sess *wire.Session, frame []byte) bool {
	if len(frame) == 0 {
		return false
	}
	text := string(frame)
	if len(text) < 4 {
		slog.Warn("dispatch: frame shorter than a command code", "conn_id", sess.ConnID, "len", len(text))
		return false
	}

	code := strings.ToLower(text[:4])
	payload := text[4:]

	h, ok := d.handlers[code]
	if !ok {
		if err := sess.Send([]byte(unknownReply)); err != nil {
			slog.Warn("dispatch: failed to reply to unknown command", "conn_id", sess.ConnID, "error", err)
			return false
		}
		return true
	}

	return h(ctx, sess, payload)
}
