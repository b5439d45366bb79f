package server

import "time"

// rateWindow is a fixed-window inbound message counter. It is owned by a
// single connection's read loop, so it needs no locking.
type rateWindow struct {
	limit int
	count int
	start time.Time
	now   func() time.Time
}

func newRateWindow(limit int) *rateWindow {
	return &rateWindow{limit: limit, now: time.Now}
}

// Allow counts one message and reports whether the connection is still within
// its one-second budget.
func (w *rateWindow) Allow() bool {
	now := w.now()
	if now.Sub(w.start) >= time.Second {
		w.start = now
		w.count = 1
	} else {
		w.count++
	}
	return w.count <= w.limit
}
