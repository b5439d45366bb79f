package session

import (
	"encoding/json"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreate(t *testing.T) {
	r := NewRegistry()

	code, err := r.Create("Friday Night Meet")
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^[A-Z0-9]{8}$`), code)
	assert.Equal(t, 1, r.Len())

	// Whitespace-only names are rejected
	_, err = r.Create("   ")
	assert.ErrorIs(t, err, ErrEmptyName)

	// Codes are unique among live sessions
	code2, err := r.Create("Another Meet")
	require.NoError(t, err)
	assert.NotEqual(t, code, code2)
}

func TestJoin(t *testing.T) {
	r := NewRegistry()
	code, err := r.Create("Meet")
	require.NoError(t, err)

	// Unknown session
	_, err = r.Join("NOPE1234", RoleCenterJudge)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	// Unknown role
	_, err = r.Join(code, Role("coach"))
	assert.ErrorIs(t, err, ErrInvalidRole)

	// Center seat is the head judge and gets a token
	res, err := r.Join(code, RoleCenterJudge)
	require.NoError(t, err)
	assert.True(t, res.IsHead)
	assert.NotEmpty(t, res.Token)

	// Occupied seat
	_, err = r.Join(code, RoleCenterJudge)
	assert.ErrorIs(t, err, ErrRoleTaken)

	// Side seats are not head
	res, err = r.Join(code, RoleLeftJudge)
	require.NoError(t, err)
	assert.False(t, res.IsHead)

	// Lookup is case-insensitive
	_, err = r.Join(strings.ToLower(code), RoleRightJudge)
	assert.NoError(t, err)

	// Displays always succeed, no seat, no token
	for i := 0; i < 5; i++ {
		res, err = r.Join(code, RoleDisplay)
		require.NoError(t, err)
		assert.False(t, res.IsHead)
		assert.Empty(t, res.Token)
	}
}

func TestJoinConcurrentSeatRace(t *testing.T) {
	r := NewRegistry()
	code, err := r.Create("Meet")
	require.NoError(t, err)

	const attempts = 32
	var wg sync.WaitGroup
	results := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.Join(code, RoleLeftJudge)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	wins, taken := 0, 0
	for err := range results {
		switch {
		case err == nil:
			wins++
		case err == ErrRoleTaken:
			taken++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, wins, "exactly one concurrent join may claim a seat")
	assert.Equal(t, attempts-1, taken)
}

func TestLockVoteQuorum(t *testing.T) {
	r := NewRegistry()
	code, _ := r.Create("Meet")
	for _, role := range []Role{RoleLeftJudge, RoleCenterJudge, RoleRightJudge} {
		_, err := r.Join(code, role)
		require.NoError(t, err)
	}

	all, err := r.LockVote(code, PositionLeft, ColorWhite, "")
	require.NoError(t, err)
	assert.False(t, all)

	all, err = r.LockVote(code, PositionCenter, ColorRed, "soft knees")
	require.NoError(t, err)
	assert.False(t, all)

	all, err = r.LockVote(code, PositionRight, ColorWhite, "")
	require.NoError(t, err)
	assert.True(t, all)

	view, ok := r.View(code)
	require.True(t, ok)
	assert.Equal(t, StateShowingResults, view.State)
}

func TestLockVoteQuorumExcludesDisconnected(t *testing.T) {
	r := NewRegistry()
	code, _ := r.Create("Meet")
	for _, role := range []Role{RoleLeftJudge, RoleCenterJudge, RoleRightJudge} {
		_, err := r.Join(code, role)
		require.NoError(t, err)
	}

	// A judge dropping does not block the other two
	require.True(t, r.SetJudgeConnected(code, PositionRight, false))

	all, err := r.LockVote(code, PositionLeft, ColorWhite, "")
	require.NoError(t, err)
	assert.False(t, all)

	all, err = r.LockVote(code, PositionCenter, ColorWhite, "")
	require.NoError(t, err)
	assert.True(t, all)

	votes, reasons, _, ok := r.Results(code)
	require.True(t, ok)
	assert.Equal(t, map[Position]Color{PositionLeft: ColorWhite, PositionCenter: ColorWhite}, votes)
	assert.NotContains(t, reasons, PositionRight)
}

func TestResetForNextLift(t *testing.T) {
	r := NewRegistry()
	code, _ := r.Create("Meet")
	res, err := r.Join(code, RoleCenterJudge)
	require.NoError(t, err)
	_, err = r.LockVote(code, PositionCenter, ColorYellow, "missed depth")
	require.NoError(t, err)
	require.NoError(t, r.StartTimer(code))

	require.NoError(t, r.ResetForNextLift(code))

	view, ok := r.View(code)
	require.True(t, ok)
	center := view.Judges[PositionCenter]
	assert.Empty(t, center.CurrentVote)
	assert.Empty(t, center.CurrentReason)
	assert.False(t, center.Locked)
	assert.True(t, center.IsHead)
	assert.Equal(t, StateWaiting, view.State)
	assert.Nil(t, view.TimeRemainingMS)

	// Reconnect token survives the reset
	assert.True(t, r.AuthorizeReconnect(code, PositionCenter, res.Token))
}

func TestUpdateSettings(t *testing.T) {
	r := NewRegistry()
	code, _ := r.Create("Meet")

	require.NoError(t, r.UpdateSettings(code, true, "bench", true))
	settings, err := r.Settings(code)
	require.NoError(t, err)
	assert.Equal(t, Settings{ShowExplanations: true, LiftType: LiftBench, RequireReasons: true}, settings)

	// Unknown lift type is rejected without mutation
	err = r.UpdateSettings(code, false, "snatch", false)
	assert.ErrorIs(t, err, ErrInvalidLiftType)
	settings, err = r.Settings(code)
	require.NoError(t, err)
	assert.Equal(t, Settings{ShowExplanations: true, LiftType: LiftBench, RequireReasons: true}, settings)

	err = r.UpdateSettings("NOPE1234", false, "squat", false)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestAuthorizeReconnect(t *testing.T) {
	r := NewRegistry()
	code, _ := r.Create("Meet")
	res, err := r.Join(code, RoleLeftJudge)
	require.NoError(t, err)

	assert.True(t, r.AuthorizeReconnect(code, PositionLeft, res.Token))
	assert.False(t, r.AuthorizeReconnect(code, PositionLeft, "wrong"))
	assert.False(t, r.AuthorizeReconnect(code, PositionLeft, ""))
	// Never-occupied seat has no token to match
	assert.False(t, r.AuthorizeReconnect(code, PositionRight, ""))
	assert.False(t, r.AuthorizeReconnect("NOPE1234", PositionLeft, res.Token))
}

func TestRejoinMintsFreshToken(t *testing.T) {
	r := NewRegistry()
	code, _ := r.Create("Meet")
	first, err := r.Join(code, RoleLeftJudge)
	require.NoError(t, err)

	// Seat freed (disconnect), rejoined: the new occupant gets a new secret
	// and the old one stops working.
	require.True(t, r.SetJudgeConnected(code, PositionLeft, false))
	second, err := r.Join(code, RoleLeftJudge)
	require.NoError(t, err)

	assert.NotEqual(t, first.Token, second.Token)
	assert.False(t, r.AuthorizeReconnect(code, PositionLeft, first.Token))
	assert.True(t, r.AuthorizeReconnect(code, PositionLeft, second.Token))
}

func TestExpireAndSweep(t *testing.T) {
	r := NewRegistry()
	current := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return current }

	stale, err := r.Create("Early Flight")
	require.NoError(t, err)

	current = current.Add(5 * time.Hour)
	fresh, err := r.Create("Late Flight")
	require.NoError(t, err)

	removed := r.ExpireAndSweep(4 * time.Hour)
	assert.Equal(t, []string{stale}, removed)

	_, err = r.Join(stale, RoleDisplay)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = r.Join(fresh, RoleDisplay)
	assert.NoError(t, err)
}

func TestDeleteIdempotent(t *testing.T) {
	r := NewRegistry()
	code, _ := r.Create("Meet")
	r.Delete(code)
	r.Delete(code)
	assert.Equal(t, 0, r.Len())
}

func TestViewDerivesTimerAndStripsSecrets(t *testing.T) {
	r := NewRegistry()
	current := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return current }

	code, _ := r.Create("Meet")
	res, err := r.Join(code, RoleCenterJudge)
	require.NoError(t, err)

	// No timer running
	view, ok := r.View(code)
	require.True(t, ok)
	assert.Nil(t, view.TimeRemainingMS)
	assert.Equal(t, current.Format(time.RFC3339), view.LastActivity)

	// Mid-countdown
	require.NoError(t, r.StartTimer(code))
	current = current.Add(25 * time.Second)
	view, _ = r.View(code)
	require.NotNil(t, view.TimeRemainingMS)
	assert.Equal(t, int64(35000), *view.TimeRemainingMS)

	// Elapsed clamps to zero
	current = current.Add(2 * time.Minute)
	view, _ = r.View(code)
	require.NotNil(t, view.TimeRemainingMS)
	assert.Equal(t, int64(0), *view.TimeRemainingMS)

	// The serialized view never carries the reconnect token
	data, err := json.Marshal(view)
	require.NoError(t, err)
	assert.NotContains(t, string(data), res.Token)
	assert.NotContains(t, string(data), "reconnect_token")
}
