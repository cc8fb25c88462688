// internal/handlers/game_handler.go

package handlers

import (
	"encoding/json"
	"log/slog"

	"github.com/JosueRDx/DotsGo-backend/internal/apperr"
	"github.com/JosueRDx/DotsGo-backend/internal/guard"
	"github.com/JosueRDx/DotsGo-backend/internal/service"
	"github.com/JosueRDx/DotsGo-backend/internal/websocket"
)

// Client message types. Each doubles as the rate-limiter action key.
const (
	EventJoinRoom         = "join_room"
	EventLeaveRoom        = "leave_room"
	EventStartGame        = "start_game"
	EventSubmitAnswer     = "submit_answer"
	EventKickPlayer       = "kick_player"
	EventCreateTournament = "create_tournament"
	EventStartMatch       = "start_match"
	EventGetPlayers       = "get_players"
	EventGetQuestion      = "get_question"
)

type KickPlayerData struct {
	Username string `json:"username"`
}

type StartMatchData struct {
	MatchID string `json:"match_id"`
}

// GameHandler turns raw websocket frames into service calls. Every
// request gets a correlated "<type>_result" reply to the sender; the
// rate limiter gates each frame before it reaches a service and its
// escalation decisions (warn, block, disconnect) are enforced here.
type GameHandler struct {
	rooms   *service.RoomService
	games   *service.GameService
	tours   *service.TournamentService
	limiter *guard.RateLimiter
	hub     *websocket.Hub
	logger  *slog.Logger
}

func NewGameHandler(
	rooms *service.RoomService,
	games *service.GameService,
	tours *service.TournamentService,
	limiter *guard.RateLimiter,
	hub *websocket.Hub,
	logger *slog.Logger,
) *GameHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &GameHandler{
		rooms:   rooms,
		games:   games,
		tours:   tours,
		limiter: limiter,
		hub:     hub,
		logger:  logger,
	}
}

// HandleMessage processes one inbound frame.
func (h *GameHandler) HandleMessage(client *websocket.Client, message []byte) error {
	var event struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(message, &event); err != nil {
		return h.hub.SendToClient(client, websocket.GameEvent{
			Type:  "error",
			Error: "invalid message format",
		})
	}
	if event.Type == "" {
		return h.hub.SendToClient(client, websocket.GameEvent{
			Type:  "error",
			Error: "message type is required",
		})
	}

	if decision := h.limiter.Allow(client.ID, event.Type); !decision.Allowed {
		return h.enforce(client, event.Type, decision)
	}

	h.logger.Debug("ws message", "type", event.Type, "conn_id", client.ID)

	switch event.Type {
	case EventJoinRoom:
		return h.handleJoinRoom(client, event.Data)
	case EventStartGame:
		return h.reply(client, EventStartGame, nil, h.games.Start(client))
	case EventSubmitAnswer:
		return h.handleSubmitAnswer(client, event.Data)
	case EventLeaveRoom:
		return h.reply(client, EventLeaveRoom, nil, h.rooms.Leave(client))
	case EventKickPlayer:
		return h.handleKickPlayer(client, event.Data)
	case EventCreateTournament:
		return h.reply(client, EventCreateTournament, nil, h.tours.CreateTournament(client))
	case EventStartMatch:
		return h.handleStartMatch(client, event.Data)
	case EventGetPlayers:
		return h.handleGetPlayers(client)
	case EventGetQuestion:
		return h.handleGetQuestion(client)
	default:
		return h.hub.SendToClient(client, websocket.GameEvent{
			Type:  "error",
			Error: "unknown event type " + event.Type,
		})
	}
}

// enforce answers a rate-limited frame and applies the escalation the
// limiter decided on. The disconnect is delayed so the final notice can
// still reach the client.
func (h *GameHandler) enforce(client *websocket.Client, eventType string, d guard.Decision) error {
	h.logger.Warn("rate limited", "conn_id", client.ID, "type", eventType,
		"violations", d.Violations, "blocked", d.Blocked)

	err := h.hub.SendToClient(client, websocket.GameEvent{
		Type:  eventType + "_result",
		Error: "too many requests, slow down",
		Data: map[string]interface{}{
			"success":     false,
			"code":        apperr.CodeRateLimited,
			"retry_after": d.RetryAfterSeconds(),
		},
	})

	switch d.Escalation {
	case guard.EscalateWarn:
		h.hub.SendToClient(client, websocket.GameEvent{
			Type: "rate_limit_warning",
			Data: map[string]interface{}{
				"message": "keep this up and you will be blocked",
			},
		})
	case guard.EscalateBlock:
		h.hub.SendToClient(client, websocket.GameEvent{
			Type: "rate_limit_blocked",
			Data: map[string]interface{}{
				"blocked_seconds": d.RetryAfterSeconds(),
			},
		})
	case guard.EscalateDisconnect:
		h.hub.SendToClient(client, websocket.GameEvent{
			Type:  "rate_limit_disconnect",
			Error: "disconnected for flooding",
		})
		h.hub.ForceDisconnect(client.ID, guard.DisconnectDelay)
	}
	return err
}

func (h *GameHandler) handleJoinRoom(client *websocket.Client, data json.RawMessage) error {
	var p service.JoinParams
	if err := json.Unmarshal(data, &p); err != nil {
		return h.reply(client, EventJoinRoom, nil, apperr.Validation("invalid join payload"))
	}

	res, err := h.rooms.Join(client, p)
	if err != nil {
		return h.reply(client, EventJoinRoom, nil, err)
	}

	out := map[string]interface{}{
		"pin":             res.Room.PIN,
		"player_id":       res.Player.ID,
		"session_key":     res.Player.SessionKey,
		"username":        res.Player.Username,
		"reconnected":     res.Reconnected,
		"is_host":         res.Player.Username == res.Room.HostUsername,
		"mode":            res.Room.Mode,
		"status":          res.Room.Status,
		"time_limit":      res.Room.TimeLimit,
		"total_questions": len(res.Room.QuestionIDs),
		"players":         service.RosterPayload(res.Room),
	}
	if err := h.reply(client, EventJoinRoom, out, nil); err != nil {
		return err
	}
	// A reconnect into a live round lands straight on the open question.
	if res.Reconnected {
		h.games.ResendQuestion(client)
	}
	return nil
}

func (h *GameHandler) handleSubmitAnswer(client *websocket.Client, data json.RawMessage) error {
	var p service.SubmitAnswerParams
	if err := json.Unmarshal(data, &p); err != nil {
		return h.reply(client, EventSubmitAnswer, nil, apperr.Validation("invalid answer payload"))
	}
	result, err := h.games.SubmitAnswer(client, p)
	return h.reply(client, EventSubmitAnswer, result, err)
}

func (h *GameHandler) handleKickPlayer(client *websocket.Client, data json.RawMessage) error {
	var p KickPlayerData
	if err := json.Unmarshal(data, &p); err != nil {
		return h.reply(client, EventKickPlayer, nil, apperr.Validation("invalid kick payload"))
	}
	return h.reply(client, EventKickPlayer, nil, h.rooms.Kick(client, p.Username))
}

func (h *GameHandler) handleStartMatch(client *websocket.Client, data json.RawMessage) error {
	var p StartMatchData
	if len(data) > 0 {
		if err := json.Unmarshal(data, &p); err != nil {
			return h.reply(client, EventStartMatch, nil, apperr.Validation("invalid match payload"))
		}
	}
	return h.reply(client, EventStartMatch, nil, h.tours.StartMatch(client, p.MatchID))
}

func (h *GameHandler) handleGetPlayers(client *websocket.Client) error {
	if client.RoomID == "" {
		return h.reply(client, EventGetPlayers, nil, apperr.Validation("not in a room"))
	}
	roster, err := h.rooms.Roster(client.RoomID)
	if err != nil {
		return h.reply(client, EventGetPlayers, nil, err)
	}
	return h.reply(client, EventGetPlayers, map[string]interface{}{"players": roster}, nil)
}

func (h *GameHandler) handleGetQuestion(client *websocket.Client) error {
	frame, err := h.games.CurrentQuestion(client)
	return h.reply(client, EventGetQuestion, frame, err)
}

// reply sends the correlated result frame for a request. Failures carry
// the client-safe message and code; internals never leak.
func (h *GameHandler) reply(client *websocket.Client, eventType string, data map[string]interface{}, err error) error {
	if err != nil {
		if apperr.CodeOf(err) == apperr.CodeInternal {
			h.logger.Error("request failed", "type", eventType, "conn_id", client.ID, "error", err)
		}
		payload := map[string]interface{}{
			"success": false,
			"code":    apperr.CodeOf(err),
		}
		if retry := apperr.RetryAfterOf(err); retry > 0 {
			payload["retry_after"] = retry
		}
		return h.hub.SendToClient(client, websocket.GameEvent{
			Type:  eventType + "_result",
			Error: apperr.UserMessage(err),
			Data:  payload,
		})
	}

	payload := map[string]interface{}{"success": true}
	for k, v := range data {
		payload[k] = v
	}
	return h.hub.SendToClient(client, websocket.GameEvent{
		Type: eventType + "_result",
		Data: payload,
	})
}
