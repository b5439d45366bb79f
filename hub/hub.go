// Package hub maps (session code, role) pairs to open connections and fans
// events out to them. It shares no lock with the session registry: every
// delivery snapshots its target list under the hub guard and sends outside
// it, so one slow peer never stalls delivery to the others or blocks a
// session mutation.
package hub

import (
	"context"
	"log/slog"
	"strings"
	"sync"
)

// DisplayPrefix marks the synthetic sub-identities that let many viewers
// coexist under the single display role.
const DisplayPrefix = "display_"

// Conn is an open duplex channel. The hub references channels; their lifetime
// is owned by the transport layer.
type Conn interface {
	Send(ctx context.Context, v any) error
}

// Hub is the process-wide connection registry.
type Hub struct {
	mu    sync.Mutex
	conns map[string]map[string]Conn
	log   *slog.Logger
}

// New creates an empty hub. A nil logger falls back to slog.Default.
func New(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		conns: make(map[string]map[string]Conn),
		log:   log,
	}
}

// Add registers a connection under a session code and role, replacing any
// previous holder of that role. The hub never rejects an add; capacity is
// enforced by the caller.
func (h *Hub) Add(code, role string, c Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.conns[code] == nil {
		h.conns[code] = make(map[string]Conn)
	}
	h.conns[code][role] = c
}

// Remove unregisters a role. Removing the last role for a code prunes the
// session entry.
func (h *Hub) Remove(code, role string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	roles, ok := h.conns[code]
	if !ok {
		return
	}
	delete(roles, role)
	if len(roles) == 0 {
		delete(h.conns, code)
	}
}

// Get returns the connection registered for a role, or nil.
func (h *Hub) Get(code, role string) Conn {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.conns[code][role]
}

// Roles returns the registered role names for a session.
func (h *Hub) Roles(code string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	roles := make([]string, 0, len(h.conns[code]))
	for role := range h.conns[code] {
		roles = append(roles, role)
	}
	return roles
}

// Codes returns every session code with at least one registered connection.
func (h *Hub) Codes() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	codes := make([]string, 0, len(h.conns))
	for code := range h.conns {
		codes = append(codes, code)
	}
	return codes
}

// CountDisplays reports how many display sub-identities a session has.
func (h *Hub) CountDisplays(code string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for role := range h.conns[code] {
		if strings.HasPrefix(role, DisplayPrefix) {
			n++
		}
	}
	return n
}

// Broadcast delivers a message to every connection in a session. A failed
// send is logged and skipped; it never aborts delivery to the rest and the
// stale entry stays registered until its transport removes it.
func (h *Hub) Broadcast(ctx context.Context, code string, msg any) {
	h.send(ctx, code, msg, func(string, Conn) bool { return true })
}

// BroadcastExcept delivers to every connection in a session except one,
// typically the originator of the triggering command.
func (h *Hub) BroadcastExcept(ctx context.Context, code string, except Conn, msg any) {
	h.send(ctx, code, msg, func(_ string, c Conn) bool { return c != except })
}

// SendToRole delivers to exactly one registered role; no-op when absent.
func (h *Hub) SendToRole(ctx context.Context, code, role string, msg any) {
	h.mu.Lock()
	c := h.conns[code][role]
	h.mu.Unlock()
	if c == nil {
		return
	}
	if err := c.Send(ctx, msg); err != nil {
		h.log.Warn("send failed", "session_code", code, "role", role, "err", err)
	}
}

// SendToDisplays delivers to every display sub-identity in a session.
func (h *Hub) SendToDisplays(ctx context.Context, code string, msg any) {
	h.send(ctx, code, msg, func(role string, _ Conn) bool {
		return strings.HasPrefix(role, DisplayPrefix)
	})
}

// send snapshots the matching connections under the guard, releases it, then
// delivers with per-connection failure tolerance.
func (h *Hub) send(ctx context.Context, code string, msg any, match func(role string, c Conn) bool) {
	h.mu.Lock()
	targets := make(map[string]Conn)
	for role, c := range h.conns[code] {
		if match(role, c) {
			targets[role] = c
		}
	}
	h.mu.Unlock()

	for role, c := range targets {
		if err := c.Send(ctx, msg); err != nil {
			h.log.Warn("broadcast send failed", "session_code", code, "role", role, "err", err)
		}
	}
}
