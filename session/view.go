package session

import "time"

// JudgeView is the client-visible slice of a seat. There is no token field,
// so secrets cannot leak through this type.
type JudgeView struct {
	Connected     bool   `json:"connected"`
	IsHead        bool   `json:"is_head"`
	CurrentVote   Color  `json:"current_vote"`
	CurrentReason string `json:"current_reason"`
	Locked        bool   `json:"locked"`
}

// ClientView is the only shape in which session state reaches a client.
// The timer start instant is replaced by a derived remaining time, clamped to
// zero once elapsed and nil when no timer is running.
type ClientView struct {
	Name            string                 `json:"name"`
	Judges          map[Position]JudgeView `json:"judges"`
	State           State                  `json:"state"`
	Settings        Settings               `json:"settings"`
	LastActivity    string                 `json:"last_activity"`
	TimeRemainingMS *int64                 `json:"time_remaining_ms"`
}

// View projects a session into its client-visible form. The projection copies
// everything it needs under the guard and releases it before the caller does
// any network send.
func (r *Registry) View(code string) (*ClientView, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[NormalizeCode(code)]
	if !ok {
		return nil, false
	}

	v := &ClientView{
		Name:         s.Name,
		Judges:       make(map[Position]JudgeView, len(s.Judges)),
		State:        s.State,
		Settings:     s.Settings,
		LastActivity: s.LastActivity.Format(time.RFC3339),
	}
	for pos, j := range s.Judges {
		v.Judges[pos] = JudgeView{
			Connected:     j.Connected,
			IsHead:        j.IsHead,
			CurrentVote:   j.CurrentVote,
			CurrentReason: j.CurrentReason,
			Locked:        j.Locked,
		}
	}
	if s.TimerStartedAt != nil {
		remaining := TimerDuration.Milliseconds() - r.now().Sub(*s.TimerStartedAt).Milliseconds()
		if remaining < 0 {
			remaining = 0
		}
		v.TimeRemainingMS = &remaining
	}
	return v, true
}

// Results collects the locked calls of every connected seat together with the
// session settings, for the results broadcast.
func (r *Registry) Results(code string) (votes map[Position]Color, reasons map[Position]string, settings Settings, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, found := r.sessions[NormalizeCode(code)]
	if !found {
		return nil, nil, Settings{}, false
	}
	votes = make(map[Position]Color)
	reasons = make(map[Position]string)
	for pos, j := range s.Judges {
		if j.Connected {
			votes[pos] = j.CurrentVote
			reasons[pos] = j.CurrentReason
		}
	}
	return votes, reasons, s.Settings, true
}
