package protocol

import "github.com/openlift/verdict/session"

// Outbound event type tags.
const (
	TypeJoinSuccess       = "join_success"
	TypeJoinError         = "join_error"
	TypeJudgeStatusUpdate = "judge_status_update"
	TypeJudgeVoted        = "judge_voted"
	TypeShowResults       = "show_results"
	TypeResetForNextLift  = "reset_for_next_lift"
	TypeSessionEnded      = "session_ended"
	TypeServerRestarting  = "server_restarting"
	TypeError             = "error"
)

// JoinSuccess confirms a join and carries the full client-visible session
// state plus, for judges, the seat's fresh reconnect token. The token goes
// only to its owner, never into any broadcast.
type JoinSuccess struct {
	Type           string              `json:"type"`
	Role           string              `json:"role"`
	IsHead         bool                `json:"is_head"`
	SessionState   *session.ClientView `json:"session_state"`
	ReconnectToken string              `json:"reconnect_token,omitempty"`
}

// JoinError reports an unrecoverable join failure; the connection closes
// after it is sent.
type JoinError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// JudgeStatusUpdate announces a seat connecting or disconnecting.
type JudgeStatusUpdate struct {
	Type      string           `json:"type"`
	Position  session.Position `json:"position"`
	Connected bool             `json:"connected"`
}

// JudgeVoted tells displays a seat has locked in, without revealing the color.
type JudgeVoted struct {
	Type     string           `json:"type"`
	Position session.Position `json:"position"`
}

// ShowResults publishes every connected seat's call once the quorum locks.
type ShowResults struct {
	Type             string                             `json:"type"`
	Votes            map[session.Position]session.Color `json:"votes"`
	Reasons          map[session.Position]string        `json:"reasons"`
	ShowExplanations bool                               `json:"showExplanations"`
	LiftType         session.LiftType                   `json:"liftType"`
}

// TimerStarted carries the remaining time so late starters and reconnecting
// clients converge on the same countdown.
type TimerStarted struct {
	Type            string `json:"type"`
	TimeRemainingMS int64  `json:"time_remaining_ms"`
}

// TimerCleared announces a timer reset.
type TimerCleared struct {
	Type string `json:"type"`
}

// LiftReset announces a reset for the next attempt.
type LiftReset struct {
	Type string `json:"type"`
}

// SettingsChanged mirrors the stored settings after an update.
type SettingsChanged struct {
	Type             string           `json:"type"`
	ShowExplanations bool             `json:"showExplanations"`
	LiftType         session.LiftType `json:"liftType"`
	RequireReasons   bool             `json:"requireReasons"`
}

// SessionEnded tells every participant the session is over.
type SessionEnded struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

// ServerRestarting warns clients the process is shutting down; state survives
// via snapshot but connections do not.
type ServerRestarting struct {
	Type string `json:"type"`
}

// ErrorEvent reports a recoverable validation failure; the connection stays
// open.
type ErrorEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// NewError builds an ErrorEvent with its tag set.
func NewError(message string) ErrorEvent {
	return ErrorEvent{Type: TypeError, Message: message}
}

// NewJoinError builds a JoinError with its tag set.
func NewJoinError(message string) JoinError {
	return JoinError{Type: TypeJoinError, Message: message}
}
