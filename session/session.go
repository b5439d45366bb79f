// Package session owns all judging-session state: roster, votes, timer,
// settings and lifecycle. Every mutation goes through the Registry, which
// serializes operations under a single guard. Reconnect tokens live in RAM
// only and never appear in any client view or snapshot.
package session

import "time"

// TimerDuration is the fixed attempt-clock length. Remaining time is always
// derived from the start instant, never stored.
const TimerDuration = 60 * time.Second

// Position identifies one of the three fixed judge seats.
type Position string

const (
	PositionLeft   Position = "left"
	PositionCenter Position = "center"
	PositionRight  Position = "right"
)

// Positions lists the seats in display order.
var Positions = []Position{PositionLeft, PositionCenter, PositionRight}

// Role is the identity a client joins with.
type Role string

const (
	RoleLeftJudge   Role = "left_judge"
	RoleCenterJudge Role = "center_judge"
	RoleRightJudge  Role = "right_judge"
	RoleDisplay     Role = "display"
)

// Position maps a judge role onto its seat. The second return is false for
// the display role and anything unrecognized.
func (r Role) Position() (Position, bool) {
	switch r {
	case RoleLeftJudge:
		return PositionLeft, true
	case RoleCenterJudge:
		return PositionCenter, true
	case RoleRightJudge:
		return PositionRight, true
	}
	return "", false
}

// IsJudge reports whether the role occupies a seat.
func (r Role) IsJudge() bool {
	_, ok := r.Position()
	return ok
}

// Valid reports whether the role is one a client may join with.
func (r Role) Valid() bool {
	return r == RoleDisplay || r.IsJudge()
}

// Color is a judge's call for the current lift.
type Color string

const (
	ColorWhite  Color = "white"
	ColorRed    Color = "red"
	ColorBlue   Color = "blue"
	ColorYellow Color = "yellow"
)

// ValidColor reports whether s is one of the four card colors.
func ValidColor(s string) bool {
	switch Color(s) {
	case ColorWhite, ColorRed, ColorBlue, ColorYellow:
		return true
	}
	return false
}

// LiftType is the discipline currently being judged.
type LiftType string

const (
	LiftSquat    LiftType = "squat"
	LiftBench    LiftType = "bench"
	LiftDeadlift LiftType = "deadlift"
)

// ValidLiftType reports whether s is a known discipline.
func ValidLiftType(s string) bool {
	switch LiftType(s) {
	case LiftSquat, LiftBench, LiftDeadlift:
		return true
	}
	return false
}

// State is the session-level phase, derived from vote completion.
type State string

const (
	StateWaiting        State = "waiting"
	StateShowingResults State = "showing_results"
)

// Judge holds one seat's live state. The reconnect token is unexported so it
// is structurally impossible to marshal it out of the package.
type Judge struct {
	Connected     bool
	IsHead        bool
	CurrentVote   Color
	CurrentReason string
	Locked        bool

	reconnectToken string
}

// Settings are the head judge's display preferences.
type Settings struct {
	ShowExplanations bool     `json:"show_explanations"`
	LiftType         LiftType `json:"lift_type"`
	RequireReasons   bool     `json:"require_reasons"`
}

// Session is one judged-lift coordination unit.
type Session struct {
	Code           string
	Name           string
	Judges         map[Position]*Judge
	State          State
	TimerStartedAt *time.Time
	Settings       Settings
	LastActivity   time.Time
}

func newSession(code, name string, now time.Time) *Session {
	return &Session{
		Code: code,
		Name: name,
		Judges: map[Position]*Judge{
			PositionLeft:   {},
			PositionCenter: {IsHead: true},
			PositionRight:  {},
		},
		State:        StateWaiting,
		Settings:     Settings{LiftType: LiftSquat},
		LastActivity: now,
	}
}

// allLocked is the quorum rule: every currently connected seat has locked.
// Disconnected seats do not block the others.
func (s *Session) allLocked() bool {
	for _, j := range s.Judges {
		if j.Connected && !j.Locked {
			return false
		}
	}
	return true
}
