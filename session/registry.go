package session

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"
)

const (
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	codeLength   = 8
	tokenBytes   = 16
)

// Registry owns the map of live sessions. A single mutex linearizes all
// operations on it; every operation is a short read-modify-write with no I/O
// under the guard, so contention stays bounded.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	now      func() time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		now:      time.Now,
	}
}

// JoinResult reports the outcome of a successful Join.
type JoinResult struct {
	IsHead bool
	// Token is the fresh reconnect secret for a judge seat; empty for displays.
	Token string
}

// Create registers a new session and returns its code. The name must be
// non-empty after trimming.
func (r *Registry) Create(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrEmptyName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	code, err := r.generateCode()
	if err != nil {
		return "", err
	}
	r.sessions[code] = newSession(code, name, r.now())
	return code, nil
}

// generateCode samples codes until one does not collide with a live session.
// Caller holds the lock.
func (r *Registry) generateCode() (string, error) {
	for {
		buf := make([]byte, codeLength)
		for i := range buf {
			n, err := rand.Int(rand.Reader, big.NewInt(int64(len(codeAlphabet))))
			if err != nil {
				return "", fmt.Errorf("generate session code: %w", err)
			}
			buf[i] = codeAlphabet[n.Int64()]
		}
		code := string(buf)
		if _, exists := r.sessions[code]; !exists {
			return code, nil
		}
	}
}

func newToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate reconnect token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// NormalizeCode makes session codes case-insensitive on lookup.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Join claims a role in a session. Judge roles fail with ErrRoleTaken while
// the seat is connected; a successful judge join marks the seat connected and
// mints a fresh reconnect token, invalidating any previous one. Display joins
// always succeed — capacity is the caller's concern.
func (r *Registry) Join(code string, role Role) (JoinResult, error) {
	if !role.Valid() {
		return JoinResult{}, ErrInvalidRole
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[NormalizeCode(code)]
	if !ok {
		return JoinResult{}, ErrSessionNotFound
	}

	if role == RoleDisplay {
		s.LastActivity = r.now()
		return JoinResult{IsHead: false}, nil
	}

	pos, _ := role.Position()
	j := s.Judges[pos]
	if j.Connected {
		return JoinResult{}, ErrRoleTaken
	}

	token, err := newToken()
	if err != nil {
		return JoinResult{}, err
	}
	j.Connected = true
	j.reconnectToken = token
	s.LastActivity = r.now()
	return JoinResult{IsHead: j.IsHead, Token: token}, nil
}

// AuthorizeReconnect reports whether presented matches the seat's stored
// reconnect token. An empty token on either side never matches. The caller is
// responsible for evicting the stale transport connection before re-joining.
func (r *Registry) AuthorizeReconnect(code string, pos Position, presented string) bool {
	if presented == "" {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[NormalizeCode(code)]
	if !ok {
		return false
	}
	j, ok := s.Judges[pos]
	if !ok || j.reconnectToken == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(j.reconnectToken), []byte(presented)) == 1
}

// SetJudgeConnected flips a seat's connected flag. It reports whether the
// session exists; unknown positions are ignored.
func (r *Registry) SetJudgeConnected(code string, pos Position, connected bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[NormalizeCode(code)]
	if !ok {
		return false
	}
	if j, ok := s.Judges[pos]; ok {
		j.Connected = connected
		s.LastActivity = r.now()
	}
	return true
}

// LockVote stores a seat's call and locks it in, then recomputes the quorum.
// When every connected seat has locked, the session advances to
// showing_results and allLocked is true.
func (r *Registry) LockVote(code string, pos Position, color Color, reason string) (allLocked bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[NormalizeCode(code)]
	if !ok {
		return false, ErrSessionNotFound
	}
	j, ok := s.Judges[pos]
	if !ok {
		return false, ErrInvalidRole
	}

	j.CurrentVote = color
	j.CurrentReason = reason
	j.Locked = true
	s.LastActivity = r.now()

	if s.allLocked() {
		s.State = StateShowingResults
		return true, nil
	}
	return false, nil
}

// ResetForNextLift clears every seat's vote, reason and lock plus the timer,
// returning the session to waiting. Reconnect tokens and head status survive.
func (r *Registry) ResetForNextLift(code string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[NormalizeCode(code)]
	if !ok {
		return ErrSessionNotFound
	}
	for _, j := range s.Judges {
		j.CurrentVote = ""
		j.CurrentReason = ""
		j.Locked = false
	}
	s.State = StateWaiting
	s.TimerStartedAt = nil
	s.LastActivity = r.now()
	return nil
}

// StartTimer begins the fixed-duration attempt clock.
func (r *Registry) StartTimer(code string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[NormalizeCode(code)]
	if !ok {
		return ErrSessionNotFound
	}
	started := r.now()
	s.TimerStartedAt = &started
	s.LastActivity = started
	return nil
}

// ResetTimer clears the attempt clock.
func (r *Registry) ResetTimer(code string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[NormalizeCode(code)]
	if !ok {
		return ErrSessionNotFound
	}
	s.TimerStartedAt = nil
	s.LastActivity = r.now()
	return nil
}

// UpdateSettings replaces the session settings. An unknown lift type is
// rejected without touching stored state.
func (r *Registry) UpdateSettings(code string, showExplanations bool, liftType string, requireReasons bool) error {
	if !ValidLiftType(liftType) {
		return ErrInvalidLiftType
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[NormalizeCode(code)]
	if !ok {
		return ErrSessionNotFound
	}
	s.Settings = Settings{
		ShowExplanations: showExplanations,
		LiftType:         LiftType(liftType),
		RequireReasons:   requireReasons,
	}
	s.LastActivity = r.now()
	return nil
}

// Settings returns the current settings for a session.
func (r *Registry) Settings(code string) (Settings, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[NormalizeCode(code)]
	if !ok {
		return Settings{}, ErrSessionNotFound
	}
	return s.Settings, nil
}

// Delete removes a session. Deleting an unknown code is a no-op.
func (r *Registry) Delete(code string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, NormalizeCode(code))
}

// ExpireAndSweep removes every session idle longer than staleness and returns
// the removed codes.
func (r *Registry) ExpireAndSweep(staleness time.Duration) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-staleness)
	var removed []string
	for code, s := range r.sessions {
		if s.LastActivity.Before(cutoff) {
			delete(r.sessions, code)
			removed = append(removed, code)
		}
	}
	return removed
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
