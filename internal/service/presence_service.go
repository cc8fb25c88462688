// internal/service/presence_service.go

package service

import (
	"errors"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"github.com/JosueRDx/DotsGo-backend/internal/guard"
	"github.com/JosueRDx/DotsGo-backend/internal/models"
	"github.com/JosueRDx/DotsGo-backend/internal/websocket"
)

// DefaultGraceWindow is how long a dropped player keeps their seat.
const DefaultGraceWindow = 180 * time.Second

// PresenceService reacts to connections going away. A drop never removes
// the player outright; the seat survives for the grace window and only
// then is vacated for good.
type PresenceService struct {
	rooms   RoomStore
	hub     *websocket.Hub
	fingers *guard.FingerprintGuard
	timers  *TimerTable
	logger  *slog.Logger

	// GraceWindow is the reconnect allowance; tests shorten it.
	GraceWindow time.Duration

	onRosterShrink func(pin string)
}

func NewPresenceService(
	rooms RoomStore,
	hub *websocket.Hub,
	fingers *guard.FingerprintGuard,
	timers *TimerTable,
	logger *slog.Logger,
) *PresenceService {
	if logger == nil {
		logger = slog.Default()
	}
	return &PresenceService{
		rooms:       rooms,
		hub:         hub,
		fingers:     fingers,
		timers:      timers,
		logger:      logger,
		GraceWindow: DefaultGraceWindow,
	}
}

// SetRosterShrinkHook registers a callback fired after a grace expiry
// permanently removes a player. The game service uses it to close out a
// round that was only waiting on the removed seat.
func (s *PresenceService) SetRosterShrinkHook(fn func(pin string)) {
	s.onRosterShrink = fn
}

// HandleDisconnect marks the seat as away and starts the grace clock.
// The hub calls this for every closed connection, joined or not.
func (s *PresenceService) HandleDisconnect(connID, pin string) {
	if pin == "" {
		return
	}

	var dropped *models.Player
	err := withOptimisticRetry(func() error {
		dropped = nil

		room, err := s.rooms.FindByPIN(pin)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}
		player := room.PlayerByConn(connID)
		if player == nil || !player.IsConnected {
			// Seat already vacated, or a reconnect took it over first.
			return nil
		}
		now := time.Now()
		player.IsConnected = false
		player.DisconnectedAt = &now
		if err := s.rooms.Save(room); err != nil {
			return err
		}
		dropped = player
		return nil
	})
	if err != nil {
		s.logger.Error("disconnect bookkeeping failed", "room", pin, "conn", connID, "error", err)
		return
	}
	if dropped == nil {
		return
	}

	sessionKey := dropped.SessionKey
	s.timers.Arm(graceTimerKey(pin, sessionKey), s.GraceWindow, func() {
		s.removeAfterGrace(pin, sessionKey)
	})
	s.logger.Info("player disconnected", "room", pin, "username", dropped.Username,
		"grace", s.GraceWindow)

	s.hub.BroadcastToRoom(pin, websocket.GameEvent{
		Type: "player_disconnected",
		Data: map[string]interface{}{
			"username":                 dropped.Username,
			"reconnect_window_seconds": int(s.GraceWindow.Seconds()),
		},
	})
}

// removeAfterGrace vacates a seat whose owner never came back. Runs from
// the grace timer, so every check is redone against fresh state.
func (s *PresenceService) removeAfterGrace(pin, sessionKey string) {
	var (
		removed  *models.Player
		promoted string
		emptied  bool
	)
	err := withOptimisticRetry(func() error {
		removed, promoted, emptied = nil, "", false

		room, err := s.rooms.FindByPIN(pin)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}
		player := room.PlayerBySession(sessionKey)
		if player == nil || player.IsConnected {
			// Removed by other means, or reconnected in time.
			return nil
		}
		removed = player
		room.RemovePlayer(player.ID)

		if len(room.Players) == 0 {
			emptied = true
			return s.rooms.Delete(room)
		}
		if room.HostUsername == player.Username {
			promoted = promoteHost(room)
		}
		return s.rooms.Save(room)
	})
	if err != nil {
		s.logger.Error("grace removal failed", "room", pin, "error", err)
		return
	}
	if removed == nil {
		return
	}

	s.fingers.ReleaseByUsername(pin, removed.Username)
	s.logger.Info("player removed after grace", "room", pin, "username", removed.Username)

	if emptied {
		dropRoomState(s.timers, s.fingers, pin)
		s.logger.Info("room torn down", "pin", pin)
		return
	}

	s.hub.BroadcastToRoom(pin, websocket.GameEvent{
		Type: "player_removed",
		Data: map[string]interface{}{
			"username": removed.Username,
			"reason":   "grace_expired",
		},
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
}
