// snapshot.go persists the session map across process restarts. The persisted
// types deliberately have no token or connected fields: secrets never hit
// disk, and connections are never restored — clients must rejoin.
package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

type persistedJudge struct {
	IsHead        bool   `json:"is_head"`
	CurrentVote   Color  `json:"current_vote,omitempty"`
	CurrentReason string `json:"current_reason,omitempty"`
	Locked        bool   `json:"locked"`
}

type persistedSession struct {
	Name           string                      `json:"name"`
	Judges         map[Position]persistedJudge `json:"judges"`
	State          State                       `json:"state"`
	TimerStartedAt *time.Time                  `json:"timer_started_at,omitempty"`
	Settings       Settings                    `json:"settings"`
	LastActivity   time.Time                   `json:"last_activity"`
}

// SaveSnapshot writes the full session map to path. State is copied under the
// guard; marshaling and disk I/O happen outside it. The file is written to a
// temp name and renamed so a crash mid-write cannot corrupt the previous
// snapshot.
func (r *Registry) SaveSnapshot(path string) error {
	r.mu.Lock()
	doc := make(map[string]persistedSession, len(r.sessions))
	for code, s := range r.sessions {
		ps := persistedSession{
			Name:           s.Name,
			Judges:         make(map[Position]persistedJudge, len(s.Judges)),
			State:          s.State,
			TimerStartedAt: s.TimerStartedAt,
			Settings:       s.Settings,
			LastActivity:   s.LastActivity,
		}
		for pos, j := range s.Judges {
			ps.Judges[pos] = persistedJudge{
				IsHead:        j.IsHead,
				CurrentVote:   j.CurrentVote,
				CurrentReason: j.CurrentReason,
				Locked:        j.Locked,
			}
		}
		doc[code] = ps
	}
	r.mu.Unlock()

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("snapshot dir: %w", err)
	}
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot repopulates the registry from a snapshot file. A missing file
// is not an error. Every restored seat starts disconnected with no reconnect
// token, so it behaves like a never-occupied seat until someone joins.
func (r *Registry) LoadSnapshot(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read snapshot: %w", err)
	}

	var doc map[string]persistedSession
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("unmarshal snapshot: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for code, ps := range doc {
		s := &Session{
			Code:           code,
			Name:           ps.Name,
			Judges:         make(map[Position]*Judge, len(ps.Judges)),
			State:          ps.State,
			TimerStartedAt: ps.TimerStartedAt,
			Settings:       ps.Settings,
			LastActivity:   ps.LastActivity,
		}
		for pos, pj := range ps.Judges {
			s.Judges[pos] = &Judge{
				IsHead:        pj.IsHead,
				CurrentVote:   pj.CurrentVote,
				CurrentReason: pj.CurrentReason,
				Locked:        pj.Locked,
			}
		}
		// Guard against hand-edited files missing a seat.
		for _, pos := range Positions {
			if _, ok := s.Judges[pos]; !ok {
				s.Judges[pos] = &Judge{IsHead: pos == PositionCenter}
			}
		}
		r.sessions[code] = s
	}
	return nil
}
