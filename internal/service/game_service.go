// internal/service/game_service.go

package service

import (
	"errors"
	"log/slog"
	"sort"
	"time"

	"gorm.io/gorm"

	"github.com/JosueRDx/DotsGo-backend/internal/apperr"
	"github.com/JosueRDx/DotsGo-backend/internal/game"
	"github.com/JosueRDx/DotsGo-backend/internal/models"
	"github.com/JosueRDx/DotsGo-backend/internal/websocket"
)

const (
	// DefaultRevealDelay separates the answer reveal from the next round.
	DefaultRevealDelay = 5 * time.Second
	// DefaultCountdown runs between game start and the first question.
	DefaultCountdown = 3 * time.Second
)

// GameService drives rounds: it opens them, scores submissions, closes
// them on deadline or when everyone answered, and ends the game when a
// mode rule or the question set says so. Every mutation runs inside the
// optimistic retry loop; timers re-check state when they fire, so a
// stale timer is a no-op rather than an error.
type GameService struct {
	rooms     RoomStore
	questions QuestionStore
	hub       *websocket.Hub
	timers    *TimerTable
	logger    *slog.Logger

	// RevealDelay and Countdown are exported so tests can shorten them.
	RevealDelay time.Duration
	Countdown   time.Duration
}

func NewGameService(
	rooms RoomStore,
	questions QuestionStore,
	hub *websocket.Hub,
	timers *TimerTable,
	logger *slog.Logger,
) *GameService {
	if logger == nil {
		logger = slog.Default()
	}
	return &GameService{
		rooms:       rooms,
		questions:   questions,
		hub:         hub,
		timers:      timers,
		logger:      logger,
		RevealDelay: DefaultRevealDelay,
		Countdown:   DefaultCountdown,
	}
}

// Start moves a waiting room into play: every player gets their own
// random question order, the room announces a countdown, and the first
// round opens when it elapses. Host only.
func (s *GameService) Start(client *websocket.Client) error {
	pin := client.RoomID
	if pin == "" {
		return apperr.Validation("not in a room")
	}

	var snapshot *models.Room
	err := withOptimisticRetry(func() error {
		snapshot = nil

		room, err := s.loadRoom(pin)
		if err != nil {
			return err
		}
		actor := room.PlayerByConn(client.ID)
		if actor == nil {
			return apperr.NotFound("player not in room")
		}
		if actor.Username != room.HostUsername {
			return apperr.Unauthorized("only the host can start the game")
		}
		if room.Status != models.StatusWaiting {
			return apperr.Conflict("game already started")
		}
		if room.Mode == models.ModeTournament {
			return apperr.Conflict("tournament rooms are started match by match")
		}
		if room.ConnectedCount() < 1 {
			return apperr.Conflict("no connected players")
		}

		for _, p := range room.Players {
			p.QuestionOrder = game.ShuffledOrder(room.QuestionIDs)
		}
		room.Status = models.StatusPlaying
		room.RoundPhase = models.PhaseIdle
		room.CurrentRound = 0
		if err := s.rooms.Save(room); err != nil {
			return err
		}
		snapshot = room
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("game starting", "room", pin, "mode", snapshot.Mode,
		"players", len(snapshot.Players), "rounds", len(snapshot.QuestionIDs))

	s.hub.BroadcastToRoom(pin, websocket.GameEvent{
		Type: "game_starting",
		Data: map[string]interface{}{
			"countdown_seconds": int(s.Countdown / time.Second),
			"total_rounds":      len(snapshot.QuestionIDs),
		},
	})
	s.timers.Arm(roundTimerKey(pin), s.Countdown, func() {
		s.openRound(pin)
	})
	return nil
}

// openRound flips an idle or revealing room into the question phase and
// deals each active player their personal question.
func (s *GameService) openRound(pin string) {
	var snapshot *models.Room
	err := withOptimisticRetry(func() error {
		snapshot = nil

		room, err := s.loadRoom(pin)
		if err != nil {
			if apperr.CodeOf(err) == apperr.CodeNotFound {
				return nil
			}
			return err
		}
		if room.Status != models.StatusPlaying || room.RoundPhase == models.PhaseQuestion {
			return nil
		}
		now := time.Now()
		room.RoundPhase = models.PhaseQuestion
		room.RoundStartedAt = &now
		if err := s.rooms.Save(room); err != nil {
			return err
		}
		snapshot = room
		return nil
	})
	if err != nil {
		s.logger.Error("round open failed", "room", pin, "error", err)
		return
	}
	if snapshot == nil {
		return
	}
	s.dealRound(snapshot)
}

// dealRound broadcasts the round header, sends each active player their
// question with the answer fields stripped, and arms the deadline.
func (s *GameService) dealRound(room *models.Room) {
	pin := room.PIN
	round := room.CurrentRound

	s.hub.BroadcastToRoom(pin, websocket.GameEvent{
		Type: "round_started",
		Data: map[string]interface{}{
			"round":        round + 1,
			"total_rounds": len(room.QuestionIDs),
			"time_limit":   room.TimeLimit,
		},
	})

	catalog, err := s.roundCatalog(room)
	if err != nil {
		s.logger.Error("question lookup failed", "room", pin, "round", round, "error", err)
	}
	for _, p := range room.ActivePlayers() {
		if !p.IsConnected || p.ConnID == "" {
			continue
		}
		qid, ok := p.QuestionAt(round)
		if !ok {
			continue
		}
		q := catalog[qid]
		if q == nil {
			continue
		}
		if err := s.hub.SendToConn(p.ConnID, websocket.GameEvent{
			Type: "question",
			Data: questionFrame(q, room, room.TimeLimit),
		}); err != nil {
			s.logger.Warn("question delivery failed", "room", pin, "username", p.Username, "error", err)
		}
	}

	s.timers.Arm(roundTimerKey(pin), time.Duration(room.TimeLimit)*time.Second, func() {
		s.resolveRound(pin, round)
	})
}

type SubmitAnswerParams struct {
	Answer        models.GivenAnswer `json:"answer"`
	QuestionID    string             `json:"question_id"`
	ResponseTime  float64            `json:"response_time"`
	AutoSubmitted bool               `json:"auto_submitted"`
}

// SubmitAnswer records one answer for the caller's personal question of
// the current round. A ledger entry that already carries a correct mark
// or points is final; an unscored one is overwritten in place with its
// response-time contribution backed out first, so aggregates never
// double-count. The mode rules run right after scoring, inside the same
// save.
func (s *GameService) SubmitAnswer(client *websocket.Client, p SubmitAnswerParams) (map[string]interface{}, error) {
	pin := client.RoomID
	if pin == "" {
		return nil, apperr.Validation("not in a room")
	}
	if p.ResponseTime < 0 {
		return nil, apperr.Validation("response time cannot be negative")
	}

	var (
		events    []websocket.GameEvent
		result    map[string]interface{}
		finishNow bool
		roundIdx  int
		closed    bool
	)
	err := withOptimisticRetry(func() error {
		events, result, finishNow, closed = nil, nil, false, false

		room, err := s.loadRoom(pin)
		if err != nil {
			return err
		}
		if room.Status != models.StatusPlaying {
			return apperr.Conflict("no game in progress")
		}
		if room.RoundPhase != models.PhaseQuestion {
			return apperr.Conflict("answers are closed for this round")
		}
		player := room.PlayerByConn(client.ID)
		if player == nil {
			return apperr.NotFound("player not in room")
		}
		if player.IsEliminated {
			return apperr.Conflict("eliminated players cannot answer")
		}
		if room.Mode == models.ModeTournament {
			if room.ActiveMatchID == "" || room.Bracket == nil {
				return apperr.Conflict("no active match")
			}
			match := room.Bracket.MatchByID(room.ActiveMatchID)
			if match == nil || !match.Has(player.ID) {
				return apperr.Conflict("only match players can answer")
			}
		}
		qid, ok := player.QuestionAt(room.CurrentRound)
		if !ok {
			return apperr.Conflict("no question assigned for this round")
		}
		if p.QuestionID != "" && p.QuestionID != qid {
			return apperr.Conflict("submitted question is not the active one")
		}
		existing := player.AnswerFor(qid)
		if existing != nil && existing.Scored() {
			return apperr.Conflict("answer already recorded for this round")
		}

		q, err := s.questionByID(qid)
		if err != nil {
			return err
		}

		now := time.Now()
		correct := game.Correct(p.Answer, q)
		responseTime := game.ClampResponseTime(p.ResponseTime, room.TimeLimit, p.AutoSubmitted)
		points := 0
		if correct {
			points = game.Score(responseTime, room.TimeLimit, p.AutoSubmitted)
		}

		if existing != nil {
			player.TotalResponseTime -= existing.ResponseTime
		}
		player.RecordAnswer(&models.AnswerRecord{
			QuestionID:    qid,
			Answer:        p.Answer,
			IsCorrect:     correct,
			Points:        points,
			ResponseTime:  responseTime,
			AutoSubmitted: p.AutoSubmitted,
			AnsweredAt:    now,
		})
		player.TotalResponseTime += responseTime
		if correct {
			player.Score += points
			player.CorrectCount++
		}

		// An overwritten wrong answer already took its mode consequence
		// on the first submission; only a fresh entry or a flip to
		// correct moves the mode state.
		var outcome game.Outcome
		if existing == nil || correct {
			outcome = game.ApplyOutcome(room, player, correct, now)
		}

		events = append(events, websocket.GameEvent{
			Type: "player_answered",
			Data: map[string]interface{}{
				"username":       player.Username,
				"auto_submitted": p.AutoSubmitted,
			},
		})
		events = append(events, websocket.GameEvent{
			Type: "ranking_updated",
			Data: map[string]interface{}{"ranking": rankingPayload(room)},
		})
		events = append(events, outcomeEvents(room, player, outcome)...)

		switch {
		case room.Mode == models.ModeTournament && outcome.MatchEnded:
			closed = true
			if err := s.resolveMatch(room, outcome.MatchWinnerID, now, &events); err != nil {
				return err
			}
		case outcome.Ended:
			closed = true
			s.closeRoom(room, outcome.Winner, outcome.EndReason, now)
			events = append(events, gameEndedEvent(room))
		default:
			finishNow = room.AllActiveAnswered()
		}

		roundIdx = room.CurrentRound
		if err := s.rooms.Save(room); err != nil {
			return err
		}
		result = map[string]interface{}{
			"is_correct": correct,
			"points":     points,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if closed {
		s.timers.Cancel(roundTimerKey(pin))
	}
	for _, ev := range events {
		s.hub.BroadcastToRoom(pin, ev)
	}
	if finishNow {
		s.timers.Cancel(roundTimerKey(pin))
		s.resolveRound(pin, roundIdx)
	}
	return result, nil
}

// EarlyFinishIfComplete closes the current round when a roster change
// leaves every remaining active player already answered. The presence
// layer calls it after a grace removal.
func (s *GameService) EarlyFinishIfComplete(pin string) {
	room, err := s.rooms.FindByPIN(pin)
	if err != nil {
		return
	}
	if room.Status != models.StatusPlaying || room.RoundPhase != models.PhaseQuestion {
		return
	}
	if !room.AllActiveAnswered() {
		return
	}
	s.timers.Cancel(roundTimerKey(pin))
	s.resolveRound(pin, room.CurrentRound)
}

// resolveRound is the shared close-out for the deadline and the
// all-answered path. Players without a ledger entry get a synthetic
// timed-out one and take the wrong-answer consequence of their mode; a
// stored unscored answer is re-validated and upgraded to the flat
// minimum score when it turns out correct. The reveal follows, and the
// advance timer after that.
func (s *GameService) resolveRound(pin string, round int) {
	var (
		events  []websocket.GameEvent
		ended   bool
		advance bool
	)
	err := withOptimisticRetry(func() error {
		events, ended, advance = nil, false, false

		room, err := s.loadRoom(pin)
		if err != nil {
			if apperr.CodeOf(err) == apperr.CodeNotFound {
				return nil
			}
			return err
		}
		if room.Status != models.StatusPlaying ||
			room.RoundPhase != models.PhaseQuestion ||
			room.CurrentRound != round {
			return nil
		}

		catalog, err := s.roundCatalog(room)
		if err != nil {
			return err
		}
		now := time.Now()

		var (
			endOutcome  game.Outcome
			matchEnded  bool
			matchWinner string
		)
		for _, p := range room.ActivePlayers() {
			qid, ok := p.QuestionAt(round)
			if !ok {
				continue
			}
			rec := p.AnswerFor(qid)
			if rec != nil && rec.Scored() {
				continue
			}

			correct := false
			timedOut := rec == nil
			switch {
			case timedOut:
				rec = &models.AnswerRecord{
					QuestionID:    qid,
					ResponseTime:  float64(room.TimeLimit),
					AutoSubmitted: true,
					AnsweredAt:    now,
				}
				p.RecordAnswer(rec)
				p.TotalResponseTime += rec.ResponseTime
			case !rec.Answer.IsEmpty():
				// Stored before it could be scored; still counts, at
				// the floor.
				if q := catalog[qid]; q != nil && game.Correct(rec.Answer, q) {
					rec.IsCorrect = true
					rec.Points = game.MinScore
					p.Score += rec.Points
					p.CorrectCount++
					correct = true
				}
			}
			if !timedOut && !correct {
				// A submitted wrong answer took its mode consequence
				// when it was processed; only timeouts and upgrades
				// owe one here.
				continue
			}

			outcome := game.ApplyOutcome(room, p, correct, now)
			events = append(events, outcomeEvents(room, p, outcome)...)
			if outcome.Ended {
				endOutcome = outcome
			}
			if outcome.MatchEnded {
				matchEnded = true
				matchWinner = outcome.MatchWinnerID
			}
		}

		events = append([]websocket.GameEvent{revealEvent(room, round, catalog)}, events...)

		switch {
		case room.Mode == models.ModeTournament && matchEnded:
			ended = true
			if err := s.resolveMatch(room, matchWinner, now, &events); err != nil {
				return err
			}
		case endOutcome.Ended:
			ended = true
			s.closeRoom(room, endOutcome.Winner, endOutcome.EndReason, now)
			events = append(events, gameEndedEvent(room))
		default:
			room.RoundPhase = models.PhaseReveal
			advance = true
		}
		return s.rooms.Save(room)
	})
	if err != nil {
		s.logger.Error("round close failed", "room", pin, "round", round, "error", err)
		return
	}

	if ended {
		s.timers.Cancel(roundTimerKey(pin))
	}
	for _, ev := range events {
		s.hub.BroadcastToRoom(pin, ev)
	}
	if advance {
		s.timers.Arm(roundTimerKey(pin), s.RevealDelay, func() {
			s.advanceRound(pin, round)
		})
	}
}

// advanceRound moves a revealing room to the next question, or ends the
// game when the set is exhausted. Tournament matches that outlive the
// question set are decided on position, then score, then speed.
func (s *GameService) advanceRound(pin string, fromRound int) {
	var (
		events []websocket.GameEvent
		opened *models.Room
	)
	err := withOptimisticRetry(func() error {
		events, opened = nil, nil

		room, err := s.loadRoom(pin)
		if err != nil {
			if apperr.CodeOf(err) == apperr.CodeNotFound {
				return nil
			}
			return err
		}
		if room.Status != models.StatusPlaying ||
			room.RoundPhase != models.PhaseReveal ||
			room.CurrentRound != fromRound {
			return nil
		}
		now := time.Now()

		if room.CurrentRound+1 >= len(room.QuestionIDs) {
			if room.Mode == models.ModeTournament && room.ActiveMatchID != "" {
				winnerID := exhaustedMatchWinner(room)
				if err := s.resolveMatch(room, winnerID, now, &events); err != nil {
					return err
				}
				return s.rooms.Save(room)
			}
			s.closeRoom(room, standingsWinner(room), models.EndCompleted, now)
			events = append(events, gameEndedEvent(room))
			return s.rooms.Save(room)
		}

		room.CurrentRound++
		room.RoundPhase = models.PhaseQuestion
		room.RoundStartedAt = &now
		if err := s.rooms.Save(room); err != nil {
			return err
		}
		opened = room
		return nil
	})
	if err != nil {
		s.logger.Error("round advance failed", "room", pin, "error", err)
		return
	}

	for _, ev := range events {
		s.hub.BroadcastToRoom(pin, ev)
	}
	if opened != nil {
		s.dealRound(opened)
	}
}

// CurrentQuestion returns the caller's active question with the
// remaining time recomputed from the round clock. Reconnects use it to
// land mid-round.
func (s *GameService) CurrentQuestion(client *websocket.Client) (map[string]interface{}, error) {
	pin := client.RoomID
	if pin == "" {
		return nil, apperr.Validation("not in a room")
	}
	room, err := s.loadRoom(pin)
	if err != nil {
		return nil, err
	}
	if room.Status != models.StatusPlaying || room.RoundPhase != models.PhaseQuestion {
		return nil, apperr.Conflict("no question is live right now")
	}
	player := room.PlayerByConn(client.ID)
	if player == nil {
		return nil, apperr.NotFound("player not in room")
	}
	if player.IsEliminated {
		return nil, apperr.Conflict("eliminated players have no question")
	}
	if room.Mode == models.ModeTournament && room.ActiveMatchID != "" {
		match := room.Bracket.MatchByID(room.ActiveMatchID)
		if match == nil || !match.Has(player.ID) {
			return nil, apperr.Conflict("only match players have a question")
		}
	}
	qid, ok := player.QuestionAt(room.CurrentRound)
	if !ok {
		return nil, apperr.Conflict("no question assigned for this round")
	}
	q, err := s.questionByID(qid)
	if err != nil {
		return nil, err
	}

	remaining := room.TimeLimit
	if room.RoundStartedAt != nil {
		elapsed := int(time.Since(*room.RoundStartedAt).Seconds())
		remaining = room.TimeLimit - elapsed
		if remaining < 0 {
			remaining = 0
		}
	}
	return questionFrame(q, room, remaining), nil
}

// ResendQuestion pushes the current question to a reconnected player.
// Nothing happens when no round is live; failures only get logged
// because the join that triggered this already succeeded.
func (s *GameService) ResendQuestion(client *websocket.Client) {
	frame, err := s.CurrentQuestion(client)
	if err != nil {
		return
	}
	if err := s.hub.SendToConn(client.ID, websocket.GameEvent{
		Type: "question",
		Data: frame,
	}); err != nil {
		s.logger.Warn("question resend failed", "room", client.RoomID, "conn", client.ID, "error", err)
	}
}

// resolveMatch writes a decided match into the bracket and returns the
// room to the between-matches idle state, or ends the game when the
// final fell. Callers save the room afterwards.
func (s *GameService) resolveMatch(room *models.Room, winnerID string, now time.Time, events *[]websocket.GameEvent) error {
	matchID := room.ActiveMatchID
	if err := game.AdvanceWinner(room.Bracket, matchID, winnerID); err != nil {
		return apperr.Internal(err)
	}
	room.ActiveMatchID = ""
	room.RoundPhase = models.PhaseIdle
	room.RoundStartedAt = nil

	winnerUsername := ""
	if w := room.PlayerByID(winnerID); w != nil {
		winnerUsername = w.Username
	}
	*events = append(*events, websocket.GameEvent{
		Type: "match_ended",
		Data: map[string]interface{}{
			"match_id":  matchID,
			"winner_id": winnerID,
			"winner":    winnerUsername,
		},
	})
	*events = append(*events, bracketEvent(room))

	if room.Bracket.Complete() {
		var winner *models.Winner
		if champ := room.PlayerByID(room.Bracket.Champion()); champ != nil {
			winner = &models.Winner{
				PlayerID:  champ.ID,
				Username:  champ.Username,
				Character: champ.Character,
				Score:     champ.Score,
				Reason:    models.EndBracket,
			}
		}
		s.closeRoom(room, winner, models.EndBracket, now)
		*events = append(*events, gameEndedEvent(room))
		return nil
	}

	if next := game.NextPlayableMatch(room.Bracket); next != nil {
		*events = append(*events, websocket.GameEvent{
			Type: "match_ready",
			Data: map[string]interface{}{
				"match_id": next.ID,
				"player1":  playerName(room, next.Player1),
				"player2":  playerName(room, next.Player2),
			},
		})
	}
	return nil
}

// closeRoom marks the room finished. Broadcasting is the caller's job.
func (s *GameService) closeRoom(room *models.Room, winner *models.Winner, reason string, now time.Time) {
	room.Status = models.StatusFinished
	room.RoundPhase = models.PhaseIdle
	room.RoundStartedAt = nil
	room.Winner = winner
	room.EndReason = reason
	room.EndedAt = &now
	s.logger.Info("game ended", "room", room.PIN, "reason", reason,
		"winner", winnerName(winner))
}

// loadRoom translates the storage lookup into the service error space.
func (s *GameService) loadRoom(pin string) (*models.Room, error) {
	room, err := s.rooms.FindByPIN(pin)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("room %s not found", pin)
		}
		return nil, apperr.Internal(err)
	}
	return room, nil
}

func (s *GameService) questionByID(id string) (*models.Question, error) {
	qs, err := s.questions.FindByIDs([]string{id})
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if len(qs) == 0 {
		return nil, apperr.NotFound("question %s not found", id)
	}
	return &qs[0], nil
}

// roundCatalog loads every distinct question in play at the current
// round, keyed by id.
func (s *GameService) roundCatalog(room *models.Room) (map[string]*models.Question, error) {
	seen := make(map[string]struct{})
	var ids []string
	for _, p := range room.Players {
		qid, ok := p.QuestionAt(room.CurrentRound)
		if !ok {
			continue
		}
		if _, dup := seen[qid]; dup {
			continue
		}
		seen[qid] = struct{}{}
		ids = append(ids, qid)
	}
	qs, err := s.questions.FindByIDs(ids)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	catalog := make(map[string]*models.Question, len(qs))
	for i := range qs {
		catalog[qs[i].ID.String()] = &qs[i]
	}
	return catalog, nil
}

// exhaustedMatchWinner breaks a match that ran out of questions: higher
// position, then score, then lower total response time, then seat one.
func exhaustedMatchWinner(room *models.Room) string {
	match := room.Bracket.MatchByID(room.ActiveMatchID)
	if match == nil {
		return ""
	}
	p1 := room.PlayerByID(match.Player1)
	p2 := room.PlayerByID(match.Player2)
	switch {
	case p1 == nil && p2 == nil:
		return ""
	case p2 == nil:
		return p1.ID
	case p1 == nil:
		return p2.ID
	}
	switch {
	case p1.Position != p2.Position:
		if p1.Position > p2.Position {
			return p1.ID
		}
		return p2.ID
	case p1.Score != p2.Score:
		if p1.Score > p2.Score {
			return p1.ID
		}
		return p2.ID
	case p1.TotalResponseTime != p2.TotalResponseTime:
		if p1.TotalResponseTime < p2.TotalResponseTime {
			return p1.ID
		}
		return p2.ID
	default:
		return p1.ID
	}
}

// standingsWinner picks the winner from the ranking when the question
// set runs out, preferring players still in the game.
func standingsWinner(room *models.Room) *models.Winner {
	candidates := room.ActivePlayers()
	if len(candidates) == 0 {
		candidates = room.Players
	}
	if len(candidates) == 0 {
		return nil
	}
	sorted := make([]*models.Player, len(candidates))
	copy(sorted, candidates)
	sortByStanding(sorted)
	top := sorted[0]
	return &models.Winner{
		PlayerID:  top.ID,
		Username:  top.Username,
		Character: top.Character,
		Score:     top.Score,
		Reason:    models.EndCompleted,
	}
}

// outcomeEvents turns a rules outcome into its room notifications.
func outcomeEvents(room *models.Room, player *models.Player, outcome game.Outcome) []websocket.GameEvent {
	var events []websocket.GameEvent
	if outcome.LostLife {
		events = append(events, websocket.GameEvent{
			Type: "life_lost",
			Data: map[string]interface{}{
				"username": player.Username,
				"lives":    player.Lives,
			},
		})
	}
	for _, out := range outcome.Eliminated {
		events = append(events, websocket.GameEvent{
			Type: "player_eliminated",
			Data: map[string]interface{}{"username": out.Username},
		})
	}
	if outcome.PositionChanged {
		events = append(events, websocket.GameEvent{
			Type: "position_update",
			Data: map[string]interface{}{
				"username": player.Username,
				"position": player.Position,
				"target":   room.Config.TargetPosition,
			},
		})
	}
	return events
}

// revealEvent shows the room everyone's result and the correct answers
// of every question in play this round.
func revealEvent(room *models.Room, round int, catalog map[string]*models.Question) websocket.GameEvent {
	var results []map[string]interface{}
	for _, p := range room.Players {
		qid, ok := p.QuestionAt(round)
		if !ok {
			continue
		}
		rec := p.AnswerFor(qid)
		if rec == nil {
			continue
		}
		results = append(results, map[string]interface{}{
			"username":       p.Username,
			"question_id":    qid,
			"is_correct":     rec.IsCorrect,
			"points":         rec.Points,
			"answer":         rec.Answer,
			"auto_submitted": rec.AutoSubmitted,
		})
	}
	correct := make(map[string]interface{}, len(catalog))
	for id, q := range catalog {
		correct[id] = map[string]interface{}{
			"name":      q.Name,
			"pictogram": q.Pictogram,
			"colors":    q.Colors,
			"code":      q.Code,
		}
	}
	return websocket.GameEvent{
		Type: "answers_revealed",
		Data: map[string]interface{}{
			"round":           round + 1,
			"results":         results,
			"correct_answers": correct,
			"ranking":         rankingPayload(room),
		},
	}
}

func bracketEvent(room *models.Room) websocket.GameEvent {
	return websocket.GameEvent{
		Type: "bracket_updated",
		Data: map[string]interface{}{"bracket": room.Bracket},
	}
}

func gameEndedEvent(room *models.Room) websocket.GameEvent {
	return websocket.GameEvent{
		Type: "game_ended",
		Data: map[string]interface{}{
			"winner":        room.Winner,
			"end_reason":    room.EndReason,
			"standings":     standingsPayload(room),
			"rounds_played": room.CurrentRound + 1,
		},
	}
}

// questionFrame is the player-facing question: prompt only, never the
// answer fields.
func questionFrame(q *models.Question, room *models.Room, remaining int) map[string]interface{} {
	return map[string]interface{}{
		"question": map[string]interface{}{
			"id":   q.ID.String(),
			"name": q.Name,
		},
		"round":             room.CurrentRound + 1,
		"total_rounds":      len(room.QuestionIDs),
		"time_limit":        room.TimeLimit,
		"remaining_seconds": remaining,
	}
}

// rankingPayload is the live leaderboard: score, then correct answers,
// then speed.
func rankingPayload(room *models.Room) []map[string]interface{} {
	sorted := make([]*models.Player, len(room.Players))
	copy(sorted, room.Players)
	sortByStanding(sorted)

	out := make([]map[string]interface{}, 0, len(sorted))
	for i, p := range sorted {
		out = append(out, map[string]interface{}{
			"rank":          i + 1,
			"username":      p.Username,
			"score":         p.Score,
			"correct_count": p.CorrectCount,
			"is_eliminated": p.IsEliminated,
		})
	}
	return out
}

// standingsPayload is the final results table.
func standingsPayload(room *models.Room) []map[string]interface{} {
	sorted := make([]*models.Player, len(room.Players))
	copy(sorted, room.Players)
	sortByStanding(sorted)

	out := make([]map[string]interface{}, 0, len(sorted))
	for i, p := range sorted {
		entry := map[string]interface{}{
			"rank":                i + 1,
			"username":            p.Username,
			"character":           p.Character,
			"score":               p.Score,
			"correct_count":       p.CorrectCount,
			"total_response_time": p.TotalResponseTime,
			"is_eliminated":       p.IsEliminated,
		}
		switch room.Mode {
		case models.ModeAdventure:
			entry["lives"] = p.Lives
		case models.ModeDuel, models.ModeTournament:
			entry["position"] = p.Position
		}
		out = append(out, entry)
	}
	return out
}

func sortByStanding(players []*models.Player) {
	sort.SliceStable(players, func(i, j int) bool {
		if players[i].Score != players[j].Score {
			return players[i].Score > players[j].Score
		}
		if players[i].CorrectCount != players[j].CorrectCount {
			return players[i].CorrectCount > players[j].CorrectCount
		}
		return players[i].TotalResponseTime < players[j].TotalResponseTime
	})
}

func playerName(room *models.Room, playerID string) string {
	if playerID == models.ByeID {
		return "bye"
	}
	if p := room.PlayerByID(playerID); p != nil {
		return p.Username
	}
	return ""
}

func winnerName(w *models.Winner) string {
	if w == nil {
		return ""
	}
	return w.Username
}
