// internal/models/bracket.go

package models

// ByeID marks the synthetic opponent used to pad a bracket to an even
// player count. Real slots hold player ids; "" means not yet filled.
const ByeID = "bye"

// Match status values.
const (
	MatchPending   = "pending" // waiting for slots to fill
	MatchWaiting   = "waiting" // both slots filled, not started
	MatchActive    = "active"
	MatchCompleted = "completed"
)

// Match is one pairing in a bracket round.
type Match struct {
	ID      string `json:"id"`
	Player1 string `json:"player1"`
	Player2 string `json:"player2"`
	Winner  string `json:"winner,omitempty"`
	Status  string `json:"status"`
}

// HasBye reports whether one side of the match is the synthetic bye.
func (m *Match) HasBye() bool {
	return m.Player1 == ByeID || m.Player2 == ByeID
}

// Opponent returns the other side of the match for a player id.
func (m *Match) Opponent(playerID string) string {
	if m.Player1 == playerID {
		return m.Player2
	}
	if m.Player2 == playerID {
		return m.Player1
	}
	return ""
}

// Has reports whether the player occupies a slot of this match.
func (m *Match) Has(playerID string) bool {
	return playerID != "" && (m.Player1 == playerID || m.Player2 == playerID)
}

// Bracket is a single-elimination tree stored as rounds of matches.
// Rounds[0] is fully seeded at build time; later rounds fill as winners
// advance. The final round always holds exactly one match.
type Bracket struct {
	Rounds [][]*Match `json:"rounds"`
}

// MatchByID locates a match anywhere in the bracket.
func (b *Bracket) MatchByID(id string) *Match {
	if b == nil || id == "" {
		return nil
	}
	for _, round := range b.Rounds {
		for _, m := range round {
			if m.ID == id {
				return m
			}
		}
	}
	return nil
}

// Locate returns the round and slot indices of a match.
func (b *Bracket) Locate(id string) (round, index int, ok bool) {
	for i, r := range b.Rounds {
		for j, m := range r {
			if m.ID == id {
				return i, j, true
			}
		}
	}
	return 0, 0, false
}

// FinalMatch returns the single match of the last round.
func (b *Bracket) FinalMatch() *Match {
	if b == nil || len(b.Rounds) == 0 {
		return nil
	}
	last := b.Rounds[len(b.Rounds)-1]
	if len(last) != 1 {
		return nil
	}
	return last[0]
}

// Complete reports whether the championship has been decided.
func (b *Bracket) Complete() bool {
	final := b.FinalMatch()
	return final != nil && final.Winner != ""
}

// Champion returns the winner of the final match, or "".
func (b *Bracket) Champion() string {
	final := b.FinalMatch()
	if final == nil {
		return ""
	}
	return final.Winner
}
