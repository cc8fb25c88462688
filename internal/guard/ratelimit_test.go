package guard_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JosueRDx/DotsGo-backend/internal/guard"
)

func pinnedLimiter(rules map[string]guard.LimitRule) (*guard.RateLimiter, *time.Time) {
	rl := guard.NewRateLimiter(rules, guard.LimitRule{MaxAttempts: 20, Window: 10 * time.Second})
	current := time.Unix(1700000000, 0)
	rl.Now = func() time.Time { return current }
	return rl, &current
}

func TestAllow_UnderLimit(t *testing.T) {
	rl, _ := pinnedLimiter(map[string]guard.LimitRule{
		"join_room": {MaxAttempts: 5, Window: 30 * time.Second},
	})

	for i := 0; i < 5; i++ {
		d := rl.Allow("conn-1", "join_room")
		assert.True(t, d.Allowed, "attempt %d should be admitted", i+1)
		assert.Zero(t, d.Violations)
	}
}

func TestAllow_OverLimitReportsRetryAfter(t *testing.T) {
	rl, now := pinnedLimiter(map[string]guard.LimitRule{
		"submit_answer": {MaxAttempts: 3, Window: 10 * time.Second},
	})

	for i := 0; i < 3; i++ {
		require.True(t, rl.Allow("conn-1", "submit_answer").Allowed)
		*now = now.Add(2 * time.Second)
	}

	// Oldest attempt was 6s ago, so it exits the 10s window in 4s.
	d := rl.Allow("conn-1", "submit_answer")
	assert.False(t, d.Allowed)
	assert.Equal(t, 4*time.Second, d.RetryAfter)
	assert.Equal(t, 4, d.RetryAfterSeconds())
	assert.Equal(t, 1, d.Violations)
}

func TestAllow_WindowSlides(t *testing.T) {
	rl, now := pinnedLimiter(map[string]guard.LimitRule{
		"submit_answer": {MaxAttempts: 2, Window: 5 * time.Second},
	})

	require.True(t, rl.Allow("conn-1", "submit_answer").Allowed)
	require.True(t, rl.Allow("conn-1", "submit_answer").Allowed)
	require.False(t, rl.Allow("conn-1", "submit_answer").Allowed)

	*now = now.Add(6 * time.Second)
	assert.True(t, rl.Allow("conn-1", "submit_answer").Allowed, "old attempts left the window")
}

func TestAllow_ConnectionsAreIndependent(t *testing.T) {
	rl, _ := pinnedLimiter(map[string]guard.LimitRule{
		"start_game": {MaxAttempts: 1, Window: 30 * time.Second},
	})

	require.True(t, rl.Allow("conn-1", "start_game").Allowed)
	require.False(t, rl.Allow("conn-1", "start_game").Allowed)
	assert.True(t, rl.Allow("conn-2", "start_game").Allowed)
}

func TestAllow_UnknownActionUsesFallback(t *testing.T) {
	rl := guard.NewRateLimiter(nil, guard.LimitRule{MaxAttempts: 2, Window: time.Minute})
	current := time.Unix(1700000000, 0)
	rl.Now = func() time.Time { return current }

	require.True(t, rl.Allow("conn-1", "mystery").Allowed)
	require.True(t, rl.Allow("conn-1", "mystery").Allowed)
	assert.False(t, rl.Allow("conn-1", "mystery").Allowed)
}

func TestEscalation_WarnThenBlockThenDisconnect(t *testing.T) {
	rl, _ := pinnedLimiter(map[string]guard.LimitRule{
		"submit_answer": {MaxAttempts: 1, Window: time.Minute},
	})
	require.True(t, rl.Allow("conn-1", "submit_answer").Allowed)

	first := rl.Allow("conn-1", "submit_answer")
	assert.Equal(t, guard.EscalateWarn, first.Escalation)
	assert.Equal(t, 1, first.Violations)
	assert.False(t, first.Blocked)

	second := rl.Allow("conn-1", "submit_answer")
	assert.Equal(t, guard.EscalateBlock, second.Escalation)
	assert.True(t, second.Blocked)
	assert.Equal(t, guard.BlockDuration, second.RetryAfter)

	third := rl.Allow("conn-1", "submit_answer")
	assert.Equal(t, guard.EscalateDisconnect, third.Escalation)
	assert.True(t, third.Blocked)
}

func TestBlock_RejectsEveryAction(t *testing.T) {
	rl, _ := pinnedLimiter(map[string]guard.LimitRule{
		"submit_answer": {MaxAttempts: 1, Window: time.Minute},
	})
	require.True(t, rl.Allow("conn-1", "submit_answer").Allowed)
	rl.Allow("conn-1", "submit_answer") // warn
	rl.Allow("conn-1", "submit_answer") // block

	d := rl.Allow("conn-1", "get_players")
	assert.False(t, d.Allowed)
	assert.True(t, d.Blocked, "a blocked connection is rejected regardless of action")
}

func TestBlock_ExpiresAfterDuration(t *testing.T) {
	rl, now := pinnedLimiter(map[string]guard.LimitRule{
		"submit_answer": {MaxAttempts: 1, Window: time.Second},
	})
	require.True(t, rl.Allow("conn-1", "submit_answer").Allowed)
	rl.Allow("conn-1", "submit_answer")
	rl.Allow("conn-1", "submit_answer")

	*now = now.Add(guard.BlockDuration + time.Second)
	assert.True(t, rl.Allow("conn-1", "submit_answer").Allowed, "block and window both expired")
}

func TestViolations_DecayAfterQuietPeriod(t *testing.T) {
	rl, now := pinnedLimiter(map[string]guard.LimitRule{
		"submit_answer": {MaxAttempts: 1, Window: time.Second},
	})
	require.True(t, rl.Allow("conn-1", "submit_answer").Allowed)
	first := rl.Allow("conn-1", "submit_answer")
	require.Equal(t, 1, first.Violations)

	*now = now.Add(guard.ViolationDecay + time.Second)

	require.True(t, rl.Allow("conn-1", "submit_answer").Allowed)
	again := rl.Allow("conn-1", "submit_answer")
	assert.Equal(t, 1, again.Violations, "quiet period should reset the counter")
	assert.Equal(t, guard.EscalateWarn, again.Escalation)
}

func TestSweep_DropsIdlestate(t *testing.T) {
	rl, now := pinnedLimiter(map[string]guard.LimitRule{
		"submit_answer": {MaxAttempts: 5, Window: time.Second},
	})
	rl.Allow("conn-1", "submit_answer")
	rl.Allow("conn-2", "submit_answer")
	require.Equal(t, 2, rl.TrackedConnections())

	*now = now.Add(guard.ViolationDecay + time.Minute)
	rl.Sweep()

	assert.Zero(t, rl.TrackedConnections())
}

func TestForget_DropsConnectionImmediately(t *testing.T) {
	rl, _ := pinnedLimiter(nil)
	rl.Allow("conn-1", "submit_answer")
	require.NotZero(t, rl.TrackedConnections())

	rl.Forget("conn-1")

	assert.Zero(t, rl.TrackedConnections())
}
