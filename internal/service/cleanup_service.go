// internal/service/cleanup_service.go

package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/JosueRDx/DotsGo-backend/internal/guard"
	"github.com/JosueRDx/DotsGo-backend/internal/models"
	"github.com/JosueRDx/DotsGo-backend/internal/websocket"
)

const (
	// DefaultIdleTimeout retires rooms nobody has touched.
	DefaultIdleTimeout = 10 * time.Minute
	// DefaultFinishedTTL keeps finished rooms around for result reads.
	DefaultFinishedTTL = 30 * time.Minute
	// DefaultSweepInterval paces the background pass.
	DefaultSweepInterval = 1 * time.Minute
)

// CleanupService is the background janitor: it retires idle rooms,
// abandons games everyone walked away from, and prunes the guard
// registries. Failures are logged and never reach a client.
type CleanupService struct {
	rooms   RoomStore
	hub     *websocket.Hub
	fingers *guard.FingerprintGuard
	limiter *guard.RateLimiter
	timers  *TimerTable
	logger  *slog.Logger

	IdleTimeout   time.Duration
	FinishedTTL   time.Duration
	SweepInterval time.Duration
}

func NewCleanupService(
	rooms RoomStore,
	hub *websocket.Hub,
	fingers *guard.FingerprintGuard,
	limiter *guard.RateLimiter,
	timers *TimerTable,
	logger *slog.Logger,
) *CleanupService {
	if logger == nil {
		logger = slog.Default()
	}
	return &CleanupService{
		rooms:         rooms,
		hub:           hub,
		fingers:       fingers,
		limiter:       limiter,
		timers:        timers,
		logger:        logger,
		IdleTimeout:   DefaultIdleTimeout,
		FinishedTTL:   DefaultFinishedTTL,
		SweepInterval: DefaultSweepInterval,
	}
}

// Run ticks the sweep until the context is cancelled.
func (s *CleanupService) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.SweepInterval)
	defer ticker.Stop()
	s.logger.Info("cleanup routine started", "interval", s.SweepInterval)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.SweepOnce()
		}
	}
}

// SweepOnce runs a single cleanup pass.
func (s *CleanupService) SweepOnce() {
	s.limiter.Sweep()
	s.fingers.Sweep()

	idleBefore := time.Now().Add(-s.IdleTimeout)
	stale, err := s.rooms.FindIdleSince([]string{models.StatusWaiting, models.StatusPlaying}, idleBefore)
	if err != nil {
		s.logger.Error("stale room lookup failed", "error", err)
	}
	for i := range stale {
		room := &stale[i]
		switch room.Status {
		case models.StatusWaiting:
			s.removeRoom(room, "idle lobby")
		case models.StatusPlaying:
			if s.hub.GetPlayerCount(room.PIN) == 0 {
				s.abandonRoom(room.PIN)
			}
		}
	}

	expiredBefore := time.Now().Add(-s.FinishedTTL)
	expired, err := s.rooms.FindIdleSince([]string{models.StatusFinished}, expiredBefore)
	if err != nil {
		s.logger.Error("expired room lookup failed", "error", err)
	}
	for i := range expired {
		s.removeRoom(&expired[i], "results expired")
	}
}

// abandonRoom finishes a playing room nobody is connected to. No
// broadcast goes out; there is nobody left to hear it.
func (s *CleanupService) abandonRoom(pin string) {
	err := withOptimisticRetry(func() error {
		room, err := s.rooms.FindByPIN(pin)
		if err != nil {
			return nil
		}
		if room.Status != models.StatusPlaying {
			return nil
		}
		if s.hub.GetPlayerCount(pin) > 0 {
			return nil
		}
		now := time.Now()
		room.Status = models.StatusFinished
		room.RoundPhase = models.PhaseIdle
		room.RoundStartedAt = nil
		room.EndReason = models.EndAbandoned
		room.EndedAt = &now
		return s.rooms.Save(room)
	})
	if err != nil {
		s.logger.Error("abandon failed", "room", pin, "error", err)
		return
	}
	s.timers.Cancel(roundTimerKey(pin))
	s.logger.Info("room abandoned", "pin", pin)
}

func (s *CleanupService) removeRoom(room *models.Room, why string) {
	if err := s.rooms.Delete(room); err != nil {
		s.logger.Error("room delete failed", "pin", room.PIN, "error", err)
		return
	}
	dropRoomState(s.timers, s.fingers, room.PIN)
	s.logger.Info("room removed", "pin", room.PIN, "reason", why)
}
