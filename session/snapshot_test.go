package session

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.json")

	r := NewRegistry()
	code, err := r.Create("State Championship")
	require.NoError(t, err)
	res, err := r.Join(code, RoleCenterJudge)
	require.NoError(t, err)
	_, err = r.LockVote(code, PositionCenter, ColorRed, "elbow touched knee")
	require.NoError(t, err)
	require.NoError(t, r.UpdateSettings(code, true, "deadlift", false))

	require.NoError(t, r.SaveSnapshot(path))

	// Secrets never hit durable storage
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), res.Token)
	assert.NotContains(t, string(raw), "reconnect_token")
	assert.NotContains(t, string(raw), "reconnectToken")

	// Reload into a fresh registry
	r2 := NewRegistry()
	require.NoError(t, r2.LoadSnapshot(path))
	assert.Equal(t, 1, r2.Len())

	view, ok := r2.View(code)
	require.True(t, ok)
	assert.Equal(t, "State Championship", view.Name)
	assert.Equal(t, ColorRed, view.Judges[PositionCenter].CurrentVote)
	assert.Equal(t, "elbow touched knee", view.Judges[PositionCenter].CurrentReason)
	assert.True(t, view.Judges[PositionCenter].Locked)
	assert.True(t, view.Judges[PositionCenter].IsHead)
	assert.Equal(t, Settings{ShowExplanations: true, LiftType: LiftDeadlift}, view.Settings)

	// Connections are never restored: every seat starts disconnected and the
	// old token is gone, so the seat is immediately claimable.
	for _, pos := range Positions {
		assert.False(t, view.Judges[pos].Connected, pos)
	}
	assert.False(t, r2.AuthorizeReconnect(code, PositionCenter, res.Token))
	_, err = r2.Join(code, RoleCenterJudge)
	assert.NoError(t, err)
}

func TestSnapshotTimestamps(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.json")

	r := NewRegistry()
	code, err := r.Create("Meet")
	require.NoError(t, err)
	require.NoError(t, r.StartTimer(code))
	require.NoError(t, r.SaveSnapshot(path))

	r2 := NewRegistry()
	require.NoError(t, r2.LoadSnapshot(path))

	orig, ok := r.View(code)
	require.True(t, ok)
	restored, ok := r2.View(code)
	require.True(t, ok)
	assert.Equal(t, orig.LastActivity, restored.LastActivity)
	require.NotNil(t, restored.TimeRemainingMS)
}

func TestLoadSnapshotMissingFile(t *testing.T) {
	r := NewRegistry()
	err := r.LoadSnapshot(filepath.Join(t.TempDir(), "does-not-exist.json"))
	assert.NoError(t, err)
	assert.Equal(t, 0, r.Len())
}

func TestLoadSnapshotGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	r := NewRegistry()
	assert.Error(t, r.LoadSnapshot(path))
}
