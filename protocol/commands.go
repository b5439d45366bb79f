// Package protocol defines the wire messages exchanged with clients: a closed
// set of inbound commands and outbound events, each a typed struct tagged by
// its "type" field. Unknown or malformed input decodes to Invalid and is
// handled uniformly by the dispatch layer.
package protocol

import "encoding/json"

// Inbound command type tags.
const (
	TypeJoin                = "join"
	TypeVoteLock            = "vote_lock"
	TypeTimerStart          = "timer_start"
	TypeTimerReset          = "timer_reset"
	TypeNextLift            = "next_lift"
	TypeEndSessionConfirmed = "end_session_confirmed"
	TypeSettingsUpdate      = "settings_update"
)

// Command is one decoded client message.
type Command interface{ isCommand() }

// Join claims a role in a session, optionally presenting a reconnect token
// to reclaim an occupied judge seat.
type Join struct {
	SessionCode    string
	Role           string
	ReconnectToken string
}

// VoteLock finalizes the sender's call for the current lift.
type VoteLock struct {
	Color  string
	Reason string
}

// TimerStart starts the attempt clock. Head judge only.
type TimerStart struct{}

// TimerReset clears the attempt clock. Head judge only.
type TimerReset struct{}

// NextLift resets votes and timer for the next attempt. Head judge only.
type NextLift struct{}

// EndSession ends the session for everyone. Head judge only.
type EndSession struct{}

// SettingsUpdate replaces the session settings. Head judge only.
type SettingsUpdate struct {
	ShowExplanations bool
	LiftType         string
	RequireReasons   bool
}

// Invalid represents anything that could not be decoded into a known command.
type Invalid struct {
	Reason string
}

func (Join) isCommand()           {}
func (VoteLock) isCommand()       {}
func (TimerStart) isCommand()     {}
func (TimerReset) isCommand()     {}
func (NextLift) isCommand()       {}
func (EndSession) isCommand()     {}
func (SettingsUpdate) isCommand() {}
func (Invalid) isCommand()        {}

// envelope is the superset of inbound fields; DecodeCommand projects it onto
// the command for its type tag.
type envelope struct {
	Type             string `json:"type"`
	SessionCode      string `json:"session_code"`
	Role             string `json:"role"`
	ReconnectToken   string `json:"reconnect_token"`
	Color            string `json:"color"`
	Reason           string `json:"reason"`
	ShowExplanations bool   `json:"showExplanations"`
	LiftType         string `json:"liftType"`
	RequireReasons   bool   `json:"requireReasons"`
}

// DecodeCommand parses one raw client frame. It never returns an error;
// malformed JSON and unknown types map to Invalid.
func DecodeCommand(data []byte) Command {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Invalid{Reason: "invalid JSON format"}
	}
	switch env.Type {
	case TypeJoin:
		return Join{
			SessionCode:    env.SessionCode,
			Role:           env.Role,
			ReconnectToken: env.ReconnectToken,
		}
	case TypeVoteLock:
		return VoteLock{Color: env.Color, Reason: env.Reason}
	case TypeTimerStart:
		return TimerStart{}
	case TypeTimerReset:
		return TimerReset{}
	case TypeNextLift:
		return NextLift{}
	case TypeEndSessionConfirmed:
		return EndSession{}
	case TypeSettingsUpdate:
		return SettingsUpdate{
			ShowExplanations: env.ShowExplanations,
			LiftType:         env.LiftType,
			RequireReasons:   env.RequireReasons,
		}
	}
	return Invalid{Reason: "unknown message type"}
}
