// internal/service/room_service.go

package service

import (
	"errors"
	"log/slog"
	"math/rand"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/JosueRDx/DotsGo-backend/internal/apperr"
	"github.com/JosueRDx/DotsGo-backend/internal/guard"
	"github.com/JosueRDx/DotsGo-backend/internal/models"
	"github.com/JosueRDx/DotsGo-backend/internal/websocket"
)

const (
	minTimeLimit = 5
	maxTimeLimit = 300
	defaultLimit = 30

	defaultQuestionCount = 5
	maxUsernameLength    = 20
)

type RoomService struct {
	rooms     RoomStore
	questions QuestionStore
	hub       *websocket.Hub
	fingers   *guard.FingerprintGuard
	timers    *TimerTable
	logger    *slog.Logger

	// LeaveHold is how long a voluntary leaver's fingerprint registration
	// outlives the roster entry.
	LeaveHold time.Duration

	onRosterShrink func(pin string)
}

func NewRoomService(
	rooms RoomStore,
	questions QuestionStore,
	hub *websocket.Hub,
	fingers *guard.FingerprintGuard,
	timers *TimerTable,
	logger *slog.Logger,
) *RoomService {
	if logger == nil {
		logger = slog.Default()
	}
	return &RoomService{
		rooms:     rooms,
		questions: questions,
		hub:       hub,
		fingers:   fingers,
		timers:    timers,
		logger:    logger,
		LeaveHold: guard.LeaveHold,
	}
}

// SetRosterShrinkHook registers a callback fired after a leave or kick
// permanently removes a player, mirroring the presence-side hook. The
// game service uses it to close out a round that was only waiting on
// the removed seat.
func (s *RoomService) SetRosterShrinkHook(fn func(pin string)) {
	s.onRosterShrink = fn
}

type CreateRoomParams struct {
	Name          string   `json:"name"`
	Mode          string   `json:"mode"`
	TimeLimit     int      `json:"time_limit"`
	QuestionIDs   []string `json:"question_ids"`
	QuestionCount int      `json:"question_count"`
	MaxPlayers    int      `json:"max_players"`
}

// CreateRoom builds a waiting room with its question set fixed up front.
// An explicit question list is honored as given; otherwise the catalog is
// sampled at random.
func (s *RoomService) CreateRoom(p CreateRoomParams) (*models.Room, error) {
	mode := strings.ToLower(strings.TrimSpace(p.Mode))
	if mode == "" {
		mode = models.ModeClassic
	}
	switch mode {
	case models.ModeClassic, models.ModeAdventure, models.ModeDuel, models.ModeTournament:
	default:
		return nil, apperr.Validation("unknown game mode %q", p.Mode)
	}

	limit := p.TimeLimit
	if limit == 0 {
		limit = defaultLimit
	}
	if limit < minTimeLimit || limit > maxTimeLimit {
		return nil, apperr.Validation("time limit must be between %d and %d seconds", minTimeLimit, maxTimeLimit)
	}

	questionIDs, err := s.resolveQuestions(p)
	if err != nil {
		return nil, err
	}

	cfg := models.DefaultModeConfig(mode)
	if p.MaxPlayers > 0 && mode != models.ModeDuel {
		if p.MaxPlayers < 2 || p.MaxPlayers > 50 {
			return nil, apperr.Validation("max players must be between 2 and 50")
		}
		cfg.MaxPlayers = p.MaxPlayers
	}

	room := &models.Room{
		Name:        strings.TrimSpace(p.Name),
		Status:      models.StatusWaiting,
		Mode:        mode,
		Config:      cfg,
		QuestionIDs: questionIDs,
		TimeLimit:   limit,
	}

	for attempt := 0; attempt < 5; attempt++ {
		room.PIN = generatePIN()
		if _, err := s.rooms.FindByPIN(room.PIN); err == nil {
			continue
		}
		if err := s.rooms.Create(room); err != nil {
			return nil, apperr.Internal(err)
		}
		s.logger.Info("room created", "pin", room.PIN, "mode", mode, "questions", len(questionIDs))
		return room, nil
	}
	return nil, apperr.Internal(errors.New("could not allocate a unique pin"))
}

func (s *RoomService) resolveQuestions(p CreateRoomParams) ([]string, error) {
	if len(p.QuestionIDs) > 0 {
		found, err := s.questions.FindByIDs(p.QuestionIDs)
		if err != nil {
			return nil, apperr.Internal(err)
		}
		if len(found) != len(p.QuestionIDs) {
			return nil, apperr.Validation("question list contains unknown ids")
		}
		return p.QuestionIDs, nil
	}

	n := p.QuestionCount
	if n <= 0 {
		n = defaultQuestionCount
	}
	drawn, err := s.questions.RandomSet(n)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if len(drawn) == 0 {
		return nil, apperr.Validation("question catalog is empty")
	}
	ids := make([]string, len(drawn))
	for i, q := range drawn {
		ids[i] = q.ID.String()
	}
	return ids, nil
}

// InspectRoom is the pre-join lookup backing the REST endpoint.
func (s *RoomService) InspectRoom(pin string) (*models.Room, error) {
	room, err := s.rooms.FindByPIN(pin)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("room %s not found", models.NormalizePIN(pin))
		}
		return nil, apperr.Internal(err)
	}
	return room, nil
}

type JoinParams struct {
	PIN        string `json:"pin"`
	Username   string `json:"username"`
	Character  string `json:"character"`
	SessionKey string `json:"session_key"`
}

type JoinResult struct {
	Room        *models.Room
	Player      *models.Player
	Reconnected bool
}

// Join seats a player in a room or reattaches a returning one. The
// fingerprint guard rules on duplicates before any state changes; the
// session key, when presented and known, identifies the player
// regardless of the username sent.
func (s *RoomService) Join(client *websocket.Client, p JoinParams) (*JoinResult, error) {
	username := strings.TrimSpace(p.Username)
	if username == "" {
		return nil, apperr.Validation("username is required")
	}
	if len(username) > maxUsernameLength {
		return nil, apperr.Validation("username is limited to %d characters", maxUsernameLength)
	}
	pin := models.NormalizePIN(p.PIN)
	if pin == "" {
		return nil, apperr.Validation("room pin is required")
	}
	if client.RoomID != "" {
		return nil, apperr.Conflict("already in a room; leave it first")
	}

	switch verdict := s.fingers.Authorize(pin, client.Identity, username); verdict {
	case guard.VerdictDuplicateBrowser:
		return nil, apperr.Conflict("this browser already has a player in the room")
	case guard.VerdictIPLimit:
		return nil, apperr.Conflict("too many players from this network address")
	}

	var result *JoinResult
	err := withOptimisticRetry(func() error {
		room, err := s.rooms.FindByPIN(pin)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("room %s not found", pin)
			}
			return apperr.Internal(err)
		}

		existing := room.PlayerBySession(p.SessionKey)
		if existing == nil && s.fingers.Authorize(pin, client.Identity, username) == guard.VerdictReconnect {
			existing = room.PlayerByUsername(username)
		}

		if existing != nil {
			s.reattach(room, existing, client.ID)
			if err := s.rooms.Save(room); err != nil {
				return err
			}
			result = &JoinResult{Room: room, Player: existing, Reconnected: true}
			return nil
		}

		if room.Status != models.StatusWaiting {
			return apperr.Conflict("game already started")
		}
		if room.PlayerByUsername(username) != nil {
			return apperr.Conflict("username %q is taken in this room", username)
		}
		if len(room.Players) >= room.Config.MaxPlayers {
			return apperr.Conflict("room is full")
		}

		player := &models.Player{
			ID:          uuid.New().String(),
			ConnID:      client.ID,
			SessionKey:  uuid.New().String(),
			Username:    username,
			Character:   strings.TrimSpace(p.Character),
			Lives:       room.Config.MaxLives,
			Answers:     make(map[string]*models.AnswerRecord),
			IsConnected: true,
			JoinedAt:    time.Now(),
		}
		if len(room.Players) == 0 {
			room.HostUsername = player.Username
		}
		room.Players = append(room.Players, player)
		if err := s.rooms.Save(room); err != nil {
			return err
		}
		result = &JoinResult{Room: room, Player: player}
		return nil
	})
	if err != nil {
		return nil, err
	}

	player := result.Player
	s.fingers.Register(pin, client.Identity, player.Username)
	s.hub.JoinRoom(client, pin)
	client.Username = player.Username
	s.timers.Cancel(graceTimerKey(pin, player.SessionKey))

	if result.Reconnected {
		s.logger.Info("player reconnected", "room", pin, "username", player.Username)
		s.hub.BroadcastToRoom(pin, websocket.GameEvent{
			Type: "player_reconnected",
			Data: map[string]interface{}{
				"username":  player.Username,
				"player_id": player.ID,
			},
		})
	} else {
		s.logger.Info("player joined", "room", pin, "username", player.Username)
		s.hub.BroadcastToRoom(pin, websocket.GameEvent{
			Type: "player_joined",
			Data: map[string]interface{}{
				"username":      player.Username,
				"character":     player.Character,
				"player_id":     player.ID,
				"is_host":       player.Username == result.Room.HostUsername,
				"total_players": len(result.Room.Players),
			},
		})
	}
	return result, nil
}

// reattach binds a returning player to a fresh connection, displacing a
// still-open old one.
func (s *RoomService) reattach(room *models.Room, player *models.Player, connID string) {
	if player.IsConnected && player.ConnID != "" && player.ConnID != connID {
		if old := s.hub.Client(player.ConnID); old != nil {
			s.hub.SendToClient(old, websocket.GameEvent{
				Type:  "session_replaced",
				Error: "this seat reconnected from another device",
			})
			s.hub.LeaveRoom(old)
			s.hub.ForceDisconnect(player.ConnID, guard.DisconnectDelay)
		}
	}
	player.ConnID = connID
	player.IsConnected = true
	player.DisconnectedAt = nil
}

// Leave removes the caller from their room. The roster entry goes away at
// once; the fingerprint registration is held back so the device cannot
// immediately return under a new name.
func (s *RoomService) Leave(client *websocket.Client) error {
	pin := client.RoomID
	if pin == "" {
		return apperr.Validation("not in a room")
	}

	var (
		left     *models.Player
		promoted string
		emptied  bool
	)
	err := withOptimisticRetry(func() error {
		left, promoted, emptied = nil, "", false

		room, err := s.rooms.FindByPIN(pin)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("room %s not found", pin)
			}
			return apperr.Internal(err)
		}
		player := room.PlayerByConn(client.ID)
		if player == nil {
			return apperr.NotFound("player not in room")
		}
		left = player
		room.RemovePlayer(player.ID)

		if len(room.Players) == 0 {
			emptied = true
			if err := s.rooms.Delete(room); err != nil {
				return apperr.Internal(err)
			}
			return nil
		}
		if room.HostUsername == player.Username {
			promoted = promoteHost(room)
		}
		return s.rooms.Save(room)
	})
	if err != nil {
		return err
	}

	s.hub.LeaveRoom(client)
	s.timers.Cancel(graceTimerKey(pin, left.SessionKey))
	s.fingers.ReleaseAfter(pin, client.Identity, left.Username, s.LeaveHold)
	s.logger.Info("player left", "room", pin, "username", left.Username)

	if emptied {
		dropRoomState(s.timers, s.fingers, pin)
		s.logger.Info("room torn down", "pin", pin)
		return nil
	}

	s.hub.BroadcastToRoom(pin, websocket.GameEvent{
		Type: "player_left",
		Data: map[string]interface{}{"username": left.Username},
	})
	if promoted != "" {
		s.hub.BroadcastToRoom(pin, websocket.GameEvent{
			Type: "host_changed",
			Data: map[string]interface{}{"username": promoted},
		})
	}
	if s.onRosterShrink != nil {
		s.onRosterShrink(pin)
	}
	return nil
}

// Kick removes another player at the host's request. The target's
// fingerprint is released immediately so the host can re-admit them.
func (s *RoomService) Kick(client *websocket.Client, targetUsername string) error {
	pin := client.RoomID
	if pin == "" {
		return apperr.Validation("not in a room")
	}
	targetUsername = strings.TrimSpace(targetUsername)
	if targetUsername == "" {
		return apperr.Validation("target username is required")
	}

	var target *models.Player
	err := withOptimisticRetry(func() error {
		target = nil

		room, err := s.rooms.FindByPIN(pin)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("room %s not found", pin)
			}
			return apperr.Internal(err)
		}
		actor := room.PlayerByConn(client.ID)
		if actor == nil {
			return apperr.NotFound("player not in room")
		}
		if actor.Username != room.HostUsername {
			return apperr.Unauthorized("only the host can kick players")
		}
		if actor.Username == targetUsername {
			return apperr.Validation("the host cannot kick themselves")
		}
		target = room.PlayerByUsername(targetUsername)
		if target == nil {
			return apperr.NotFound("player %q not in room", targetUsername)
		}
		room.RemovePlayer(target.ID)
		return s.rooms.Save(room)
	})
	if err != nil {
		return err
	}

	s.timers.Cancel(graceTimerKey(pin, target.SessionKey))
	if targetClient := s.hub.Client(target.ConnID); targetClient != nil {
		s.fingers.Release(pin, targetClient.Identity, target.Username)
		s.hub.SendToClient(targetClient, websocket.GameEvent{
			Type: "player_kicked",
			Data: map[string]interface{}{"username": target.Username},
		})
		s.hub.LeaveRoom(targetClient)
	} else {
		// No live connection to read the identity from; release by the
		// roster name so the registration does not linger until the TTL.
		s.fingers.ReleaseByUsername(pin, target.Username)
	}
	s.logger.Info("player kicked", "room", pin, "username", target.Username, "by", client.Username)

	s.hub.BroadcastToRoom(pin, websocket.GameEvent{
		Type: "player_kicked",
		Data: map[string]interface{}{
			"username": target.Username,
			"by":       client.Username,
		},
	})
	if s.onRosterShrink != nil {
		s.onRosterShrink(pin)
	}
	return nil
}

// Roster returns the presentable player list for get_players.
func (s *RoomService) Roster(pin string) ([]map[string]interface{}, error) {
	room, err := s.rooms.FindByPIN(pin)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("room %s not found", models.NormalizePIN(pin))
		}
		return nil, apperr.Internal(err)
	}
	return RosterPayload(room), nil
}

// RosterPayload shapes the roster for the wire, host first then by seat
// order.
func RosterPayload(room *models.Room) []map[string]interface{} {
	players := make([]*models.Player, len(room.Players))
	copy(players, room.Players)
	sort.SliceStable(players, func(i, j int) bool {
		if (players[i].Username == room.HostUsername) != (players[j].Username == room.HostUsername) {
			return players[i].Username == room.HostUsername
		}
		return players[i].JoinedAt.Before(players[j].JoinedAt)
	})

	out := make([]map[string]interface{}, 0, len(players))
	for _, p := range players {
		entry := map[string]interface{}{
			"username":      p.Username,
			"character":     p.Character,
			"score":         p.Score,
			"is_host":       p.Username == room.HostUsername,
			"is_connected":  p.IsConnected,
			"is_eliminated": p.IsEliminated,
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

// promoteHost hands the room to the longest-seated connected player,
// falling back to the longest-seated seat when nobody is connected.
func promoteHost(room *models.Room) string {
	var candidate *models.Player
	for _, p := range room.Players {
		if !p.IsConnected {
			continue
		}
		if candidate == nil || p.JoinedAt.Before(candidate.JoinedAt) {
			candidate = p
		}
	}
	if candidate == nil {
		for _, p := range room.Players {
			if candidate == nil || p.JoinedAt.Before(candidate.JoinedAt) {
				candidate = p
			}
		}
	}
	if candidate == nil {
		return ""
	}
	room.HostUsername = candidate.Username
	return candidate.Username
}

// dropRoomState clears every per-room registry once the room row is gone.
func dropRoomState(timers *TimerTable, fingers *guard.FingerprintGuard, pin string) {
	timers.Cancel(roundTimerKey(pin))
	timers.CancelPrefix(graceTimerPrefix + pin + ":")
	fingers.DropRoom(pin)
}

func generatePIN() string {
	const letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	code := make([]byte, 6)
	for i := range code {
		code[i] = letters[rand.Intn(len(letters))]
	}
	return string(code)
}
