// internal/service/tournament_service.go

package service

import (
	"errors"
	"log/slog"

	"github.com/JosueRDx/DotsGo-backend/internal/apperr"
	"github.com/JosueRDx/DotsGo-backend/internal/game"
	"github.com/JosueRDx/DotsGo-backend/internal/models"
	"github.com/JosueRDx/DotsGo-backend/internal/websocket"
)

// TournamentService runs the bracket side of tournament rooms: building
// the bracket from the roster and launching individual matches. Match
// results flow back through the game service, which advances the
// bracket as answers decide matches.
type TournamentService struct {
	rooms  RoomStore
	hub    *websocket.Hub
	timers *TimerTable
	games  *GameService
	logger *slog.Logger
}

func NewTournamentService(
	rooms RoomStore,
	hub *websocket.Hub,
	timers *TimerTable,
	games *GameService,
	logger *slog.Logger,
) *TournamentService {
	if logger == nil {
		logger = slog.Default()
	}
	return &TournamentService{
		rooms:  rooms,
		hub:    hub,
		timers: timers,
		games:  games,
		logger: logger,
	}
}

// CreateTournament seeds the bracket from the current roster and moves
// the room into play, idle between matches. Host only, two players
// minimum; byes fill the field up to a power of two.
func (s *TournamentService) CreateTournament(client *websocket.Client) error {
	pin := client.RoomID
	if pin == "" {
		return apperr.Validation("not in a room")
	}

	var snapshot *models.Room
	err := withOptimisticRetry(func() error {
		snapshot = nil

		room, err := s.games.loadRoom(pin)
		if err != nil {
			return err
		}
		actor := room.PlayerByConn(client.ID)
		if actor == nil {
			return apperr.NotFound("player not in room")
		}
		if actor.Username != room.HostUsername {
			return apperr.Unauthorized("only the host can create the tournament")
		}
		if room.Mode != models.ModeTournament {
			return apperr.Conflict("room is not in tournament mode")
		}
		if room.Status != models.StatusWaiting {
			return apperr.Conflict("tournament already created")
		}
		if len(room.Players) < 2 {
			return apperr.Validation("a tournament needs at least 2 players")
		}

		ids := make([]string, len(room.Players))
		for i, p := range room.Players {
			ids[i] = p.ID
		}
		room.Bracket = game.BuildBracket(ids)

		for _, p := range room.Players {
			p.QuestionOrder = game.ShuffledOrder(room.QuestionIDs)
		}
		room.Status = models.StatusPlaying
		room.RoundPhase = models.PhaseIdle
		room.CurrentRound = 0
		room.ActiveMatchID = ""
		if err := s.rooms.Save(room); err != nil {
			return err
		}
		snapshot = room
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("tournament created", "room", pin,
		"players", len(snapshot.Players), "rounds", len(snapshot.Bracket.Rounds))

	s.hub.BroadcastToRoom(pin, websocket.GameEvent{
		Type: "bracket_created",
		Data: map[string]interface{}{
			"bracket":        snapshot.Bracket,
			"bracket_rounds": len(snapshot.Bracket.Rounds),
		},
	})
	if next := game.NextPlayableMatch(snapshot.Bracket); next != nil {
		s.hub.BroadcastToRoom(pin, websocket.GameEvent{
			Type: "match_ready",
			Data: map[string]interface{}{
				"match_id": next.ID,
				"player1":  playerName(snapshot, next.Player1),
				"player2":  playerName(snapshot, next.Player2),
			},
		})
	}
	return nil
}

// StartMatch activates a playable match and opens its first round after
// the countdown. An empty match id picks the next playable one. The two
// contenders enter with fresh match state: position zeroed, elimination
// cleared, ledger emptied so they can replay the question set; the
// tournament score total carries over.
func (s *TournamentService) StartMatch(client *websocket.Client, matchID string) error {
	pin := client.RoomID
	if pin == "" {
		return apperr.Validation("not in a room")
	}

	var (
		snapshot *models.Room
		started  *models.Match
	)
	err := withOptimisticRetry(func() error {
		snapshot, started = nil, nil

		room, err := s.games.loadRoom(pin)
		if err != nil {
			return err
		}
		actor := room.PlayerByConn(client.ID)
		if actor == nil {
			return apperr.NotFound("player not in room")
		}
		if actor.Username != room.HostUsername {
			return apperr.Unauthorized("only the host can start a match")
		}
		if room.Mode != models.ModeTournament {
			return apperr.Conflict("room is not in tournament mode")
		}
		if room.Status != models.StatusPlaying || room.Bracket == nil {
			return apperr.Conflict("tournament has not been created")
		}
		if room.ActiveMatchID != "" {
			return apperr.Conflict("a match is already running")
		}

		id := matchID
		if id == "" {
			next := game.NextPlayableMatch(room.Bracket)
			if next == nil {
				return apperr.Conflict("no playable match left")
			}
			id = next.ID
		}
		match, err := game.StartMatch(room.Bracket, id)
		if err != nil {
			switch {
			case errors.Is(err, game.ErrMatchNotFound):
				return apperr.NotFound("match %s not found", id)
			case errors.Is(err, game.ErrMatchDecided):
				return apperr.Conflict("match %s is already decided", id)
			case errors.Is(err, game.ErrMatchNotFilled):
				return apperr.Conflict("match %s is still waiting on contenders", id)
			default:
				return apperr.Internal(err)
			}
		}

		for _, contenderID := range []string{match.Player1, match.Player2} {
			p := room.PlayerByID(contenderID)
			if p == nil {
				continue
			}
			p.Position = 0
			p.IsEliminated = false
			p.EliminatedAt = nil
			p.Answers = make(map[string]*models.AnswerRecord)
		}
		room.ActiveMatchID = match.ID
		room.CurrentRound = 0
		room.RoundPhase = models.PhaseIdle
		if err := s.rooms.Save(room); err != nil {
			return err
		}
		snapshot = room
		started = match
		return nil
	})
	if err != nil {
		return err
	}

	roundIdx, _, _ := snapshot.Bracket.Locate(started.ID)
	roundName := game.RoundName(roundIdx, len(snapshot.Bracket.Rounds))
	s.logger.Info("match starting", "room", pin, "match", started.ID, "stage", roundName)

	s.hub.BroadcastToRoom(pin, websocket.GameEvent{
		Type: "match_started",
		Data: map[string]interface{}{
			"match_id":          started.ID,
			"round_name":        roundName,
			"player1":           playerName(snapshot, started.Player1),
			"player2":           playerName(snapshot, started.Player2),
			"countdown_seconds": int(s.games.Countdown.Seconds()),
			"total_rounds":      len(snapshot.QuestionIDs),
		},
	})
	s.timers.Arm(roundTimerKey(pin), s.games.Countdown, func() {
		s.games.openRound(pin)
	})
	return nil
}
