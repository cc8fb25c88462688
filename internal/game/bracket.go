// internal/game/bracket.go

package game

import (
	"errors"
	"fmt"

	"github.com/JosueRDx/DotsGo-backend/internal/models"
)

var (
	ErrMatchNotFound  = errors.New("match not found in bracket")
	ErrMatchDecided   = errors.New("match already decided")
	ErrNotAContender  = errors.New("player is not in this match")
	ErrMatchNotFilled = errors.New("match slots not filled yet")
)

// BuildBracket seeds a single-elimination tree for the given players. The
// order is shuffled, the field is padded to the next power of two with
// byes, and bye matches are resolved immediately so round 0 only waits on
// real pairings.
func BuildBracket(playerIDs []string) *models.Bracket {
	slots := ShuffledOrder(playerIDs)
	size := nextPowerOfTwo(len(slots))
	for len(slots) < size {
		slots = append(slots, models.ByeID)
	}

	rounds := roundCount(size)
	b := &models.Bracket{Rounds: make([][]*models.Match, rounds)}
	for r := 0; r < rounds; r++ {
		matches := size >> uint(r+1)
		b.Rounds[r] = make([]*models.Match, matches)
		for i := 0; i < matches; i++ {
			b.Rounds[r][i] = &models.Match{
				ID:     fmt.Sprintf("r%dm%d", r, i),
				Status: models.MatchPending,
			}
		}
	}

	// Seed round 0 head-vs-tail so padded byes always meet a real player.
	for i := 0; i < size/2; i++ {
		m := b.Rounds[0][i]
		m.Player1 = slots[i]
		m.Player2 = slots[size-1-i]
		m.Status = models.MatchWaiting
	}

	resolveByes(b)
	return b
}

// AdvanceWinner records the winner of a match and feeds them into the next
// round. winnerID may be empty when both contenders were eliminated; the
// match closes without anyone advancing.
func AdvanceWinner(b *models.Bracket, matchID, winnerID string) error {
	m := b.MatchByID(matchID)
	if m == nil {
		return ErrMatchNotFound
	}
	if m.Status == models.MatchCompleted {
		return ErrMatchDecided
	}
	if winnerID != "" && !m.Has(winnerID) {
		return ErrNotAContender
	}

	m.Winner = winnerID
	m.Status = models.MatchCompleted
	if winnerID == "" {
		return nil
	}

	round, idx, _ := b.Locate(matchID)
	feedNextRound(b, round, idx, winnerID)
	return nil
}

// NextPlayableMatch returns the first match, in round then slot order,
// that has both contenders and has not started yet.
func NextPlayableMatch(b *models.Bracket) *models.Match {
	if b == nil {
		return nil
	}
	for _, round := range b.Rounds {
		for _, m := range round {
			if m.Status == models.MatchWaiting {
				return m
			}
		}
	}
	return nil
}

// StartMatch flips a waiting match to active.
func StartMatch(b *models.Bracket, matchID string) (*models.Match, error) {
	m := b.MatchByID(matchID)
	if m == nil {
		return nil, ErrMatchNotFound
	}
	switch m.Status {
	case models.MatchCompleted, models.MatchActive:
		return nil, ErrMatchDecided
	case models.MatchPending:
		return nil, ErrMatchNotFilled
	}
	m.Status = models.MatchActive
	return m, nil
}

// RoundName labels a bracket round for display.
func RoundName(round, totalRounds int) string {
	switch totalRounds - 1 - round {
	case 0:
		return "Final"
	case 1:
		return "Semifinal"
	case 2:
		return "Quarterfinal"
	default:
		return fmt.Sprintf("Round %d", round+1)
	}
}

func feedNextRound(b *models.Bracket, round, idx int, winnerID string) {
	if round+1 >= len(b.Rounds) {
		return
	}
	next := b.Rounds[round+1][idx/2]
	if next.Player1 == "" {
		next.Player1 = winnerID
	} else {
		next.Player2 = winnerID
	}
	if next.Player1 != "" && next.Player2 != "" {
		next.Status = models.MatchWaiting
	}
}

// resolveByes completes every match with a synthetic opponent, cascading
// the free win into the following round.
func resolveByes(b *models.Bracket) {
	for changed := true; changed; {
		changed = false
		for _, round := range b.Rounds {
			for _, m := range round {
				if m.Status == models.MatchCompleted || !m.HasBye() {
					continue
				}
				winner := m.Player1
				if winner == models.ByeID {
					winner = m.Player2
				}
				m.Winner = winner
				m.Status = models.MatchCompleted
				r, i, _ := b.Locate(m.ID)
				feedNextRound(b, r, i, winner)
				changed = true
			}
		}
	}
}

func nextPowerOfTwo(n int) int {
	size := 2
	for size < n {
		size <<= 1
	}
	return size
}

func roundCount(size int) int {
	count := 0
	for size > 1 {
		size >>= 1
		count++
	}
	return count
}
