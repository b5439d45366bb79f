// client.go is the per-connection message loop. One goroutine per connection
// reads commands, applies them to the registry and fans effects out through
// the hub. Cleanup runs exactly once via defer, and only acts on registry
// state if this socket is still the one registered for its role.
package server

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/openlift/verdict/hub"
	"github.com/openlift/verdict/protocol"
	"github.com/openlift/verdict/session"
)

const maxReasonLength = 200

type client struct {
	srv  *Server
	sock *Socket
	log  *slog.Logger

	// Set on a successful join. hubRole is the identity registered in the
	// hub: the judge role verbatim, or a display_<uuid> sub-identity.
	sessionCode string
	hubRole     string
	isHead      bool
}

// serveClient runs the message loop until the peer disconnects, is evicted,
// or violates policy.
func (s *Server) serveClient(ctx context.Context, sock *Socket) {
	c := &client{
		srv:  s,
		sock: sock,
		log:  s.log.With("conn_id", uuid.NewString()),
	}
	defer c.cleanup()

	limiter := newRateWindow(s.cfg.MsgRateLimit)
	for {
		data, err := sock.Read(ctx)
		if err != nil {
			return
		}
		if !limiter.Allow() {
			c.log.Warn("message flood, disconnecting", "session_code", c.sessionCode)
			sock.ClosePolicy("message rate exceeded")
			return
		}

		switch cmd := protocol.DecodeCommand(data).(type) {
		case protocol.Invalid:
			c.send(ctx, protocol.NewError(cmd.Reason))
		case protocol.Join:
			if closed := c.handleJoin(ctx, cmd); closed {
				return
			}
		case protocol.VoteLock:
			c.handleVoteLock(ctx, cmd)
		case protocol.TimerStart:
			c.handleTimerStart(ctx)
		case protocol.TimerReset:
			c.handleTimerReset(ctx)
		case protocol.NextLift:
			c.handleNextLift(ctx)
		case protocol.SettingsUpdate:
			c.handleSettingsUpdate(ctx, cmd)
		case protocol.EndSession:
			if closed := c.handleEndSession(ctx); closed {
				return
			}
		}
	}
}

// send delivers an event to this client; failures are non-fatal and logged.
func (c *client) send(ctx context.Context, v any) {
	if err := c.sock.Send(ctx, v); err != nil {
		c.log.Warn("send failed", "err", err)
	}
}

// handleJoin claims a role, handling reconnect override and display capacity.
// It reports true when the connection was closed and the loop must end.
func (c *client) handleJoin(ctx context.Context, cmd protocol.Join) bool {
	code := session.NormalizeCode(cmd.SessionCode)
	role := session.Role(cmd.Role)
	if code == "" || cmd.Role == "" {
		c.send(ctx, protocol.NewError("missing required fields"))
		return false
	}

	res, err := c.srv.registry.Join(code, role)
	if err == session.ErrRoleTaken {
		res, err = c.reconnectOverride(code, role, cmd.ReconnectToken)
	}
	if err != nil {
		c.log.Warn("join failed", "session_code", code, "role", cmd.Role, "reason", err)
		c.send(ctx, protocol.NewJoinError(err.Error()))
		c.sock.Close()
		return true
	}

	hubRole := string(role)
	if role == session.RoleDisplay {
		// Capacity is enforced here, before registering: the hub itself
		// never rejects an add.
		if c.srv.hub.CountDisplays(code) >= c.srv.cfg.DisplayCap {
			c.send(ctx, protocol.NewJoinError("display cap reached"))
			c.sock.Close()
			return true
		}
		hubRole = hub.DisplayPrefix + uuid.NewString()
	}

	c.srv.hub.Add(code, hubRole, c.sock)
	c.sessionCode = code
	c.hubRole = hubRole
	c.isHead = res.IsHead
	c.log.Info("role joined", "session_code", code, "role", string(role))

	view, _ := c.srv.registry.View(code)
	c.send(ctx, protocol.JoinSuccess{
		Type:           protocol.TypeJoinSuccess,
		Role:           string(role),
		IsHead:         res.IsHead,
		SessionState:   view,
		ReconnectToken: res.Token,
	})

	if pos, ok := role.Position(); ok {
		c.srv.hub.BroadcastExcept(ctx, code, c.sock, protocol.JudgeStatusUpdate{
			Type:      protocol.TypeJudgeStatusUpdate,
			Position:  pos,
			Connected: true,
		})
	}
	return false
}

// reconnectOverride evicts the stale holder of a judge seat when the caller
// presents the seat's reconnect token, then retries the join. The eviction of
// the old transport connection happens here, outside the registry.
func (c *client) reconnectOverride(code string, role session.Role, token string) (session.JoinResult, error) {
	pos, ok := role.Position()
	if !ok || !c.srv.registry.AuthorizeReconnect(code, pos, token) {
		return session.JoinResult{}, session.ErrRoleTaken
	}

	if old := c.srv.hub.Get(code, string(role)); old != nil {
		c.srv.hub.Remove(code, string(role))
		if sock, isSock := old.(*Socket); isSock {
			sock.Close()
		}
	}
	c.srv.registry.SetJudgeConnected(code, pos, false)
	c.log.Info("seat reclaimed via reconnect token", "session_code", code, "role", string(role))
	return c.srv.registry.Join(code, role)
}

func (c *client) handleVoteLock(ctx context.Context, cmd protocol.VoteLock) {
	pos, ok := c.joinedPosition()
	if !ok {
		return
	}
	if !session.ValidColor(cmd.Color) {
		c.send(ctx, protocol.NewError("invalid vote color"))
		return
	}
	if len(cmd.Reason) > maxReasonLength {
		c.send(ctx, protocol.NewError("invalid reason"))
		return
	}
	settings, err := c.srv.registry.Settings(c.sessionCode)
	if err != nil {
		c.send(ctx, protocol.NewError(err.Error()))
		return
	}
	if settings.RequireReasons && cmd.Color != string(session.ColorWhite) && cmd.Reason == "" {
		c.send(ctx, protocol.NewError("reason required before locking in"))
		return
	}

	allLocked, err := c.srv.registry.LockVote(c.sessionCode, pos, session.Color(cmd.Color), cmd.Reason)
	if err != nil {
		c.send(ctx, protocol.NewError(err.Error()))
		return
	}
	c.log.Info("vote locked", "session_code", c.sessionCode, "position", pos, "all_locked", allLocked)

	// Displays learn a vote happened, never the color.
	c.srv.hub.SendToDisplays(ctx, c.sessionCode, protocol.JudgeVoted{
		Type:     protocol.TypeJudgeVoted,
		Position: pos,
	})

	if allLocked {
		votes, reasons, settings, ok := c.srv.registry.Results(c.sessionCode)
		if !ok {
			return
		}
		c.srv.hub.Broadcast(ctx, c.sessionCode, protocol.ShowResults{
			Type:             protocol.TypeShowResults,
			Votes:            votes,
			Reasons:          reasons,
			ShowExplanations: settings.ShowExplanations,
			LiftType:         settings.LiftType,
		})
	}
}

func (c *client) handleTimerStart(ctx context.Context) {
	if !c.requireHead(ctx, "control the timer") {
		return
	}
	if err := c.srv.registry.StartTimer(c.sessionCode); err != nil {
		c.send(ctx, protocol.NewError(err.Error()))
		return
	}
	c.log.Info("timer started", "session_code", c.sessionCode)
	c.srv.hub.Broadcast(ctx, c.sessionCode, protocol.TimerStarted{
		Type:            protocol.TypeTimerStart,
		TimeRemainingMS: session.TimerDuration.Milliseconds(),
	})
}

func (c *client) handleTimerReset(ctx context.Context) {
	if !c.requireHead(ctx, "control the timer") {
		return
	}
	if err := c.srv.registry.ResetTimer(c.sessionCode); err != nil {
		c.send(ctx, protocol.NewError(err.Error()))
		return
	}
	c.log.Info("timer reset", "session_code", c.sessionCode)
	c.srv.hub.Broadcast(ctx, c.sessionCode, protocol.TimerCleared{Type: protocol.TypeTimerReset})
}

func (c *client) handleNextLift(ctx context.Context) {
	if !c.requireHead(ctx, "advance to the next lift") {
		return
	}
	if err := c.srv.registry.ResetForNextLift(c.sessionCode); err != nil {
		c.send(ctx, protocol.NewError(err.Error()))
		return
	}
	c.log.Info("next lift", "session_code", c.sessionCode)
	c.srv.hub.Broadcast(ctx, c.sessionCode, protocol.LiftReset{Type: protocol.TypeResetForNextLift})
}

func (c *client) handleSettingsUpdate(ctx context.Context, cmd protocol.SettingsUpdate) {
	if !c.requireHead(ctx, "update settings") {
		return
	}
	err := c.srv.registry.UpdateSettings(c.sessionCode, cmd.ShowExplanations, cmd.LiftType, cmd.RequireReasons)
	if err != nil {
		c.send(ctx, protocol.NewError(err.Error()))
		return
	}
	settings, err := c.srv.registry.Settings(c.sessionCode)
	if err != nil {
		return
	}
	c.srv.hub.Broadcast(ctx, c.sessionCode, protocol.SettingsChanged{
		Type:             protocol.TypeSettingsUpdate,
		ShowExplanations: settings.ShowExplanations,
		LiftType:         settings.LiftType,
		RequireReasons:   settings.RequireReasons,
	})
}

// handleEndSession tears the whole session down: broadcast, close and
// unregister every connection, delete the state. Reports true to end the loop.
func (c *client) handleEndSession(ctx context.Context) bool {
	if !c.requireHead(ctx, "end the session") {
		return false
	}
	code := c.sessionCode
	c.log.Info("session ended", "session_code", code)
	c.srv.hub.Broadcast(ctx, code, protocol.SessionEnded{
		Type:   protocol.TypeSessionEnded,
		Reason: "head_judge",
	})

	for _, role := range c.srv.hub.Roles(code) {
		conn := c.srv.hub.Get(code, role)
		c.srv.hub.Remove(code, role)
		if sock, ok := conn.(*Socket); ok {
			sock.Close()
		}
	}
	c.srv.registry.Delete(code)
	return true
}

// requireHead rejects head-judge-only commands from anyone else, using the
// is_head fact captured at join time.
func (c *client) requireHead(ctx context.Context, action string) bool {
	if c.sessionCode == "" {
		return false
	}
	if !c.isHead {
		c.send(ctx, protocol.NewError("only the head judge can "+action))
		return false
	}
	return true
}

// joinedPosition returns the seat this connection holds, if it joined as a
// judge.
func (c *client) joinedPosition() (session.Position, bool) {
	if c.sessionCode == "" {
		return "", false
	}
	return session.Role(c.hubRole).Position()
}

// cleanup runs once when the loop exits, however it exits. It only touches
// shared state if the hub still maps this role to this exact socket — a
// reconnect override or session end has already replaced or removed it
// otherwise, and the stale disconnect must be ignored.
func (c *client) cleanup() {
	if r := recover(); r != nil {
		c.log.Error("panic in client loop", "session_code", c.sessionCode, "panic", r)
	}
	c.sock.Close()

	if c.sessionCode == "" || c.hubRole == "" {
		return
	}
	if c.srv.hub.Get(c.sessionCode, c.hubRole) != c.sock {
		c.log.Info("stale disconnect ignored", "session_code", c.sessionCode, "role", c.hubRole)
		return
	}

	ctx := context.Background()
	c.srv.hub.Remove(c.sessionCode, c.hubRole)
	c.log.Info("role disconnected", "session_code", c.sessionCode, "role", c.hubRole)

	if pos, ok := session.Role(c.hubRole).Position(); ok {
		if c.srv.registry.SetJudgeConnected(c.sessionCode, pos, false) {
			c.srv.hub.Broadcast(ctx, c.sessionCode, protocol.JudgeStatusUpdate{
				Type:      protocol.TypeJudgeStatusUpdate,
				Position:  pos,
				Connected: false,
			})
		}
	}
}
