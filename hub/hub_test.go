package hub

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeConn records delivered messages; it can be told to fail every send.
type fakeConn struct {
	mu   sync.Mutex
	msgs []any
	fail bool
}

func (f *fakeConn) Send(_ context.Context, v any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("broken pipe")
	}
	f.msgs = append(f.msgs, v)
	return nil
}

func (f *fakeConn) received() []any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]any(nil), f.msgs...)
}

func TestAddGetRemove(t *testing.T) {
	h := New(nil)
	c := &fakeConn{}

	h.Add("CODE1234", "center_judge", c)
	assert.Equal(t, Conn(c), h.Get("CODE1234", "center_judge"))
	assert.Nil(t, h.Get("CODE1234", "left_judge"))
	assert.Nil(t, h.Get("OTHER", "center_judge"))

	// Removing the last role prunes the session entry entirely
	h.Remove("CODE1234", "center_judge")
	assert.Nil(t, h.Get("CODE1234", "center_judge"))
	assert.Empty(t, h.Codes())

	// Removing from an unknown session is a no-op
	h.Remove("CODE1234", "center_judge")
}

func TestBroadcast(t *testing.T) {
	h := New(nil)
	ctx := context.Background()
	a, b, other := &fakeConn{}, &fakeConn{}, &fakeConn{}
	h.Add("CODE1234", "center_judge", a)
	h.Add("CODE1234", "left_judge", b)
	h.Add("OTHER888", "center_judge", other)

	h.Broadcast(ctx, "CODE1234", "hello")

	assert.Equal(t, []any{"hello"}, a.received())
	assert.Equal(t, []any{"hello"}, b.received())
	assert.Empty(t, other.received(), "delivery is scoped to one session")
}

func TestBroadcastExcept(t *testing.T) {
	h := New(nil)
	ctx := context.Background()
	origin, peer := &fakeConn{}, &fakeConn{}
	h.Add("CODE1234", "center_judge", origin)
	h.Add("CODE1234", "left_judge", peer)

	h.BroadcastExcept(ctx, "CODE1234", origin, "update")

	assert.Empty(t, origin.received(), "no echo back to the originator")
	assert.Equal(t, []any{"update"}, peer.received())
}

func TestBroadcastPartialFailure(t *testing.T) {
	h := New(nil)
	ctx := context.Background()
	dead := &fakeConn{fail: true}
	live := &fakeConn{}
	h.Add("CODE1234", "center_judge", dead)
	h.Add("CODE1234", "left_judge", live)

	h.Broadcast(ctx, "CODE1234", "results")

	// One broken peer never aborts delivery to the rest, and the stale entry
	// stays registered until its transport removes it.
	assert.Equal(t, []any{"results"}, live.received())
	assert.Equal(t, Conn(dead), h.Get("CODE1234", "center_judge"))
}

func TestSendToRole(t *testing.T) {
	h := New(nil)
	ctx := context.Background()
	c := &fakeConn{}
	h.Add("CODE1234", "right_judge", c)

	h.SendToRole(ctx, "CODE1234", "right_judge", "ping")
	h.SendToRole(ctx, "CODE1234", "left_judge", "ping")
	h.SendToRole(ctx, "MISSING1", "right_judge", "ping")

	assert.Equal(t, []any{"ping"}, c.received())
}

func TestDisplays(t *testing.T) {
	h := New(nil)
	ctx := context.Background()
	judge := &fakeConn{}
	d1, d2 := &fakeConn{}, &fakeConn{}
	h.Add("CODE1234", "center_judge", judge)
	h.Add("CODE1234", DisplayPrefix+"aaa", d1)
	h.Add("CODE1234", DisplayPrefix+"bbb", d2)

	require.Equal(t, 2, h.CountDisplays("CODE1234"))
	assert.Equal(t, 0, h.CountDisplays("OTHER888"))

	h.SendToDisplays(ctx, "CODE1234", "tick")

	assert.Empty(t, judge.received())
	assert.Equal(t, []any{"tick"}, d1.received())
	assert.Equal(t, []any{"tick"}, d2.received())
}

func TestRoles(t *testing.T) {
	h := New(nil)
	h.Add("CODE1234", "center_judge", &fakeConn{})
	h.Add("CODE1234", DisplayPrefix+"aaa", &fakeConn{})

	roles := h.Roles("CODE1234")
	assert.ElementsMatch(t, []string{"center_judge", DisplayPrefix + "aaa"}, roles)
	assert.Empty(t, h.Roles("OTHER888"))
}
