package game_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JosueRDx/DotsGo-backend/internal/game"
	"github.com/JosueRDx/DotsGo-backend/internal/models"
)

func TestBuildBracket_TwoPlayers(t *testing.T) {
	b := game.BuildBracket([]string{"ana", "bruno"})

	require.Len(t, b.Rounds, 1)
	require.Len(t, b.Rounds[0], 1)

	final := b.Rounds[0][0]
	assert.Equal(t, models.MatchWaiting, final.Status)
	assert.True(t, final.Has("ana"))
	assert.True(t, final.Has("bruno"))
	assert.False(t, final.HasBye())
}

func TestBuildBracket_SeedsEveryPlayerOnce(t *testing.T) {
	ids := []string{"p1", "p2", "p3", "p4", "p5"}
	b := game.BuildBracket(ids)

	seen := map[string]int{}
	for _, m := range b.Rounds[0] {
		for _, id := range []string{m.Player1, m.Player2} {
			if id != models.ByeID {
				seen[id]++
			}
		}
	}

	require.Len(t, seen, len(ids))
	for _, id := range ids {
		assert.Equal(t, 1, seen[id], "player %s should occupy exactly one slot", id)
	}
}

func TestBuildBracket_OddFieldPadsWithByes(t *testing.T) {
	b := game.BuildBracket([]string{"p1", "p2", "p3", "p4", "p5"})

	// 5 players pad to 8 slots: 4 first-round matches, then 2, then the final.
	require.Len(t, b.Rounds, 3)
	require.Len(t, b.Rounds[0], 4)
	require.Len(t, b.Rounds[1], 2)
	require.Len(t, b.Rounds[2], 1)

	byeMatches := 0
	for _, m := range b.Rounds[0] {
		if !m.HasBye() {
			continue
		}
		byeMatches++
		assert.Equal(t, models.MatchCompleted, m.Status, "bye matches resolve at build time")
		assert.NotEqual(t, models.ByeID, m.Winner)
		assert.NotEmpty(t, m.Winner)
	}
	assert.Equal(t, 3, byeMatches)
	assert.NotNil(t, game.NextPlayableMatch(b), "one real pairing must be playable immediately")
}

func TestBuildBracket_ByeWinnersLandInRoundTwo(t *testing.T) {
	b := game.BuildBracket([]string{"p1", "p2", "p3"})

	// 3 players: one real match, one bye. The bye winner waits in the final.
	require.Len(t, b.Rounds, 2)
	final := b.FinalMatch()
	require.NotNil(t, final)

	filled := 0
	for _, id := range []string{final.Player1, final.Player2} {
		if id != "" {
			filled++
			assert.NotEqual(t, models.ByeID, id)
		}
	}
	assert.Equal(t, 1, filled, "only the bye winner has advanced so far")
	assert.Equal(t, models.MatchPending, final.Status)
}

func TestAdvanceWinner_FeedsNextRound(t *testing.T) {
	b := game.BuildBracket([]string{"p1", "p2", "p3", "p4"})
	r0 := b.Rounds[0]

	require.NoError(t, game.AdvanceWinner(b, r0[0].ID, r0[0].Player1))
	assert.Equal(t, models.MatchPending, b.Rounds[1][0].Status, "final still waits for the other semi")

	require.NoError(t, game.AdvanceWinner(b, r0[1].ID, r0[1].Player2))

	final := b.Rounds[1][0]
	assert.Equal(t, models.MatchWaiting, final.Status)
	assert.True(t, final.Has(r0[0].Player1))
	assert.True(t, final.Has(r0[1].Player2))
}

func TestAdvanceWinner_Validation(t *testing.T) {
	b := game.BuildBracket([]string{"p1", "p2", "p3", "p4"})
	first := b.Rounds[0][0]

	assert.ErrorIs(t, game.AdvanceWinner(b, "nope", "p1"), game.ErrMatchNotFound)
	assert.ErrorIs(t, game.AdvanceWinner(b, first.ID, "stranger"), game.ErrNotAContender)

	require.NoError(t, game.AdvanceWinner(b, first.ID, first.Player1))
	assert.ErrorIs(t, game.AdvanceWinner(b, first.ID, first.Player1), game.ErrMatchDecided)
}

func TestAdvanceWinner_EmptyWinnerVoidsMatch(t *testing.T) {
	b := game.BuildBracket([]string{"p1", "p2", "p3", "p4"})
	first := b.Rounds[0][0]

	require.NoError(t, game.AdvanceWinner(b, first.ID, ""))

	assert.Equal(t, models.MatchCompleted, first.Status)
	assert.Empty(t, first.Winner)
	final := b.Rounds[1][0]
	assert.Empty(t, final.Player1, "a voided match advances nobody")
	assert.Empty(t, final.Player2)
}

func TestAdvanceWinner_DecidesChampionship(t *testing.T) {
	b := game.BuildBracket([]string{"ana", "bruno"})
	final := b.FinalMatch()
	require.NotNil(t, final)

	require.NoError(t, game.AdvanceWinner(b, final.ID, "bruno"))

	assert.True(t, b.Complete())
	assert.Equal(t, "bruno", b.Champion())
}

func TestStartMatch(t *testing.T) {
	b := game.BuildBracket([]string{"p1", "p2", "p3", "p4"})
	first := b.Rounds[0][0]

	m, err := game.StartMatch(b, first.ID)
	require.NoError(t, err)
	assert.Equal(t, models.MatchActive, m.Status)

	_, err = game.StartMatch(b, first.ID)
	assert.ErrorIs(t, err, game.ErrMatchDecided, "an active match cannot start twice")

	_, err = game.StartMatch(b, b.Rounds[1][0].ID)
	assert.ErrorIs(t, err, game.ErrMatchNotFilled)

	_, err = game.StartMatch(b, "nope")
	assert.ErrorIs(t, err, game.ErrMatchNotFound)
}

func TestRoundName(t *testing.T) {
	tests := []struct {
		round, total int
		want         string
	}{
		{0, 1, "Final"},
		{0, 2, "Semifinal"},
		{1, 2, "Final"},
		{0, 3, "Quarterfinal"},
		{1, 3, "Semifinal"},
		{2, 3, "Final"},
		{0, 4, "Round 1"},
		{1, 4, "Quarterfinal"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, game.RoundName(tt.round, tt.total))
	}
}
