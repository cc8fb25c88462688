// internal/game/rules.go

package game

import (
	"time"

	"github.com/JosueRDx/DotsGo-backend/internal/models"
)

// Outcome describes every state change the mode rules made for one scored
// answer. Score bookkeeping happens before this runs; rules only move
// lives, positions and elimination flags.
type Outcome struct {
	// LostLife is set when an adventure player burned a life.
	LostLife bool
	// PositionChanged is set when the player's track position moved.
	PositionChanged bool
	// Eliminated lists players knocked out by this answer.
	Eliminated []*models.Player
	// Ended marks the whole game as decided (never set in tournament
	// mode, where the bracket decides).
	Ended     bool
	EndReason string
	Winner    *models.Winner
	// MatchEnded / MatchWinnerID report a decided tournament match.
	// MatchWinnerID is empty when both contenders are gone.
	MatchEnded    bool
	MatchWinnerID string
}

// ApplyOutcome mutates the room per the rules of its mode and reports what
// changed. Classic mode has no per-answer consequences beyond scoring.
func ApplyOutcome(room *models.Room, player *models.Player, correct bool, now time.Time) Outcome {
	switch room.Mode {
	case models.ModeAdventure:
		return applyAdventure(room, player, correct, now)
	case models.ModeDuel:
		return applyDuel(room, player, correct, now)
	case models.ModeTournament:
		return applyTournament(room, player, correct, now)
	default:
		return Outcome{}
	}
}

func applyAdventure(room *models.Room, player *models.Player, correct bool, now time.Time) Outcome {
	var out Outcome
	if correct {
		player.Position++
		out.PositionChanged = true
		return out
	}

	player.Lives--
	out.LostLife = true
	if player.Lives > 0 {
		return out
	}

	eliminate(player, now)
	out.Eliminated = append(out.Eliminated, player)

	// Solo runs are practice: the last life ends the game without a
	// winner instead of eliminating into an empty room.
	if len(room.Players) == 1 {
		out.Ended = true
		out.EndReason = models.EndExhausted
		return out
	}

	alive := survivors(room.Players)
	switch len(alive) {
	case 1:
		out.Ended = true
		out.EndReason = models.EndLastStanding
		out.Winner = winnerFrom(alive[0], models.WinBySurvival)
	case 0:
		out.Ended = true
		out.EndReason = models.EndExhausted
	}
	return out
}

func applyDuel(room *models.Room, player *models.Player, correct bool, now time.Time) Outcome {
	var out Outcome
	cfg := room.Config

	if correct {
		player.Position += cfg.PositionStep
		out.PositionChanged = true
		if player.Position >= cfg.TargetPosition {
			out.Ended = true
			out.EndReason = models.EndRace
			out.Winner = winnerFrom(player, models.WinByRace)
		}
		return out
	}

	eliminate(player, now)
	out.Eliminated = append(out.Eliminated, player)

	alive := survivors(room.Players)
	if len(alive) == 1 {
		out.Ended = true
		out.EndReason = models.EndElimination
		out.Winner = winnerFrom(alive[0], models.WinBySurvival)
	} else {
		out.Ended = true
		out.EndReason = models.EndExhausted
	}
	return out
}

func applyTournament(room *models.Room, player *models.Player, correct bool, now time.Time) Outcome {
	var out Outcome
	cfg := room.Config

	if correct {
		player.Position += cfg.PositionStep
		out.PositionChanged = true
		if player.Position >= cfg.TargetPosition {
			out.MatchEnded = true
			out.MatchWinnerID = player.ID
		}
		return out
	}

	eliminate(player, now)
	out.Eliminated = append(out.Eliminated, player)
	out.MatchEnded = true

	if opponent := matchOpponent(room, player.ID); opponent != nil && !opponent.IsEliminated {
		out.MatchWinnerID = opponent.ID
	}
	return out
}

func eliminate(p *models.Player, now time.Time) {
	p.IsEliminated = true
	t := now
	p.EliminatedAt = &t
}

func survivors(players []*models.Player) []*models.Player {
	var alive []*models.Player
	for _, p := range players {
		if !p.IsEliminated {
			alive = append(alive, p)
		}
	}
	return alive
}

// matchOpponent finds the other contender of the active tournament match.
func matchOpponent(room *models.Room, playerID string) *models.Player {
	if room.Bracket == nil || room.ActiveMatchID == "" {
		return nil
	}
	match := room.Bracket.MatchByID(room.ActiveMatchID)
	if match == nil {
		return nil
	}
	return room.PlayerByID(match.Opponent(playerID))
}

func winnerFrom(p *models.Player, reason string) *models.Winner {
	return &models.Winner{
		PlayerID:  p.ID,
		Username:  p.Username,
		Character: p.Character,
		Score:     p.Score,
		Reason:    reason,
	}
}
