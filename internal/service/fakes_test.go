// internal/service/fakes_test.go

package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/JosueRDx/DotsGo-backend/internal/guard"
	"github.com/JosueRDx/DotsGo-backend/internal/models"
	"github.com/JosueRDx/DotsGo-backend/internal/repository"
	"github.com/JosueRDx/DotsGo-backend/internal/websocket"
)

// fakeRoomStore is an in-memory RoomStore with the same version
// discipline as the real repository: reads hand out deep copies, saves
// check the loaded version and bump it. conflictNextSaves fails that
// many saves up front to exercise the retry loop.
type fakeRoomStore struct {
	mu                sync.Mutex
	rooms             map[string]*models.Room
	conflictNextSaves int
}

func newFakeRoomStore() *fakeRoomStore {
	return &fakeRoomStore{rooms: make(map[string]*models.Room)}
}

func (f *fakeRoomStore) Create(room *models.Room) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if room.ID == uuid.Nil {
		room.ID = uuid.New()
	}
	room.PIN = models.NormalizePIN(room.PIN)
	if _, exists := f.rooms[room.PIN]; exists {
		return errors.New("pin already taken")
	}
	now := time.Now()
	room.CreatedAt = now
	room.UpdatedAt = now
	f.rooms[room.PIN] = cloneRoom(room)
	return nil
}

func (f *fakeRoomStore) FindByPIN(pin string) (*models.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	stored, ok := f.rooms[models.NormalizePIN(pin)]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return cloneRoom(stored), nil
}

func (f *fakeRoomStore) FindByID(id string) (*models.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, stored := range f.rooms {
		if stored.ID.String() == id {
			return cloneRoom(stored), nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeRoomStore) Save(room *models.Room) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	stored, ok := f.rooms[room.PIN]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	if f.conflictNextSaves > 0 {
		f.conflictNextSaves--
		return repository.ErrVersionConflict
	}
	if room.Version != stored.Version {
		return repository.ErrVersionConflict
	}
	room.Version++
	room.UpdatedAt = time.Now()
	f.rooms[room.PIN] = cloneRoom(room)
	return nil
}

func (f *fakeRoomStore) Delete(room *models.Room) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.rooms, room.PIN)
	return nil
}

func (f *fakeRoomStore) FindIdleSince(statuses []string, threshold time.Time) ([]models.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	allowed := make(map[string]struct{}, len(statuses))
	for _, s := range statuses {
		allowed[s] = struct{}{}
	}
	var out []models.Room
	for _, stored := range f.rooms {
		if _, ok := allowed[stored.Status]; !ok {
			continue
		}
		if stored.UpdatedAt.Before(threshold) {
			out = append(out, *cloneRoom(stored))
		}
	}
	return out, nil
}

// touch backdates a stored room's activity clock for idle sweeps.
func (f *fakeRoomStore) touch(pin string, at time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if stored, ok := f.rooms[models.NormalizePIN(pin)]; ok {
		stored.UpdatedAt = at
	}
}

// cloneRoom deep-copies via the JSON shape; Version is excluded from the
// wire and copied by hand.
func cloneRoom(r *models.Room) *models.Room {
	raw, err := json.Marshal(r)
	if err != nil {
		panic(err)
	}
	var out models.Room
	if err := json.Unmarshal(raw, &out); err != nil {
		panic(err)
	}
	out.Version = r.Version
	return &out
}

// fakeQuestionStore serves a fixed catalog. RandomSet is deterministic
// (first n) so tests can predict the draw.
type fakeQuestionStore struct {
	qs []models.Question
}

func newCatalog(n int) *fakeQuestionStore {
	f := &fakeQuestionStore{}
	for i := 0; i < n; i++ {
		f.qs = append(f.qs, models.Question{
			ID:        uuid.New(),
			Name:      fmt.Sprintf("Placard %d", i+1),
			Pictogram: "flame",
			Colors:    []string{"red", "white"},
			Code:      fmt.Sprintf("15%02d", i+1),
		})
	}
	return f
}

func (f *fakeQuestionStore) FindByIDs(ids []string) ([]models.Question, error) {
	var out []models.Question
	for _, id := range ids {
		for _, q := range f.qs {
			if q.ID.String() == id {
				out = append(out, q)
				break
			}
		}
	}
	return out, nil
}

func (f *fakeQuestionStore) RandomSet(n int) ([]models.Question, error) {
	if n > len(f.qs) {
		n = len(f.qs)
	}
	out := make([]models.Question, n)
	copy(out, f.qs[:n])
	return out, nil
}

func (f *fakeQuestionStore) Count() (int64, error) {
	return int64(len(f.qs)), nil
}

// byID returns the catalog question, or fails the test.
func (f *fakeQuestionStore) byID(t *testing.T, id string) *models.Question {
	t.Helper()
	for i := range f.qs {
		if f.qs[i].ID.String() == id {
			return &f.qs[i]
		}
	}
	t.Fatalf("question %s not in catalog", id)
	return nil
}

// answerFor builds the correct answer to a catalog question.
func answerFor(q *models.Question) models.GivenAnswer {
	colors := make([]string, len(q.Colors))
	copy(colors, q.Colors)
	return models.GivenAnswer{Pictogram: q.Pictogram, Colors: colors, Code: q.Code}
}

// wrongAnswer is incorrect against every catalog question.
func wrongAnswer() models.GivenAnswer {
	return models.GivenAnswer{Pictogram: "skull", Colors: []string{"orange"}, Code: "9999"}
}

// env wires every service against the fakes and one real hub. The hub's
// Run loop is not started: broadcasts pile up in the exported channel
// where tests read them, and per-connection sends fail softly, which the
// services tolerate.
type env struct {
	store   *fakeRoomStore
	catalog *fakeQuestionStore
	hub     *websocket.Hub
	fingers *guard.FingerprintGuard
	limiter *guard.RateLimiter
	timers  *TimerTable

	rooms    *RoomService
	games    *GameService
	presence *PresenceService
	tours    *TournamentService
	cleanup  *CleanupService
}

func newEnv(t *testing.T) *env {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	e := &env{
		store:   newFakeRoomStore(),
		catalog: newCatalog(6),
		hub:     websocket.NewHub(logger),
		fingers: guard.NewFingerprintGuard(),
		limiter: guard.NewRateLimiter(guard.DefaultRules(), guard.LimitRule{}),
		timers:  NewTimerTable(),
	}
	e.rooms = NewRoomService(e.store, e.catalog, e.hub, e.fingers, e.timers, logger)
	e.rooms.LeaveHold = 50 * time.Millisecond
	e.games = NewGameService(e.store, e.catalog, e.hub, e.timers, logger)
	e.games.Countdown = 10 * time.Millisecond
	e.games.RevealDelay = 15 * time.Millisecond
	e.rooms.SetRosterShrinkHook(e.games.EarlyFinishIfComplete)
	e.presence = NewPresenceService(e.store, e.hub, e.fingers, e.timers, logger)
	e.presence.GraceWindow = 25 * time.Millisecond
	e.presence.SetRosterShrinkHook(e.games.EarlyFinishIfComplete)
	e.tours = NewTournamentService(e.store, e.hub, e.timers, e.games, logger)
	e.cleanup = NewCleanupService(e.store, e.hub, e.fingers, e.limiter, e.timers, logger)

	t.Cleanup(e.timers.CancelAll)
	return e
}

// client builds an unconnected websocket client with its own identity.
func (e *env) client(connID string) *websocket.Client {
	id := guard.Identity{Fingerprint: "fp-" + connID, IP: "10.0.0." + connID}
	return websocket.NewClient(e.hub, nil, connID, id)
}

// clientWithIdentity pins the fingerprint and address, for guard tests.
func (e *env) clientWithIdentity(connID, fingerprint, ip string) *websocket.Client {
	return websocket.NewClient(e.hub, nil, connID, guard.Identity{Fingerprint: fingerprint, IP: ip})
}

// createRoom makes a room through the service and returns it.
func (e *env) createRoom(t *testing.T, p CreateRoomParams) *models.Room {
	t.Helper()
	room, err := e.rooms.CreateRoom(p)
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	return room
}

// join seats a fresh client in the room and drains the join broadcast.
func (e *env) join(t *testing.T, pin, username, connID string) (*websocket.Client, *JoinResult) {
	t.Helper()
	c := e.client(connID)
	res, err := e.rooms.Join(c, JoinParams{PIN: pin, Username: username})
	if err != nil {
		t.Fatalf("join %s: %v", username, err)
	}
	return c, res
}

// mustRoom reads the stored aggregate.
func (e *env) mustRoom(t *testing.T, pin string) *models.Room {
	t.Helper()
	room, err := e.store.FindByPIN(pin)
	if err != nil {
		t.Fatalf("room %s: %v", pin, err)
	}
	return room
}

// drainEvents empties the broadcast queue.
func (e *env) drainEvents() []*websocket.GameEvent {
	var out []*websocket.GameEvent
	for {
		select {
		case ev := <-e.hub.Broadcast:
			out = append(out, ev)
		default:
			return out
		}
	}
}

// awaitEvent reads broadcasts until one of the wanted type shows up.
func (e *env) awaitEvent(t *testing.T, eventType string, timeout time.Duration) *websocket.GameEvent {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case ev := <-e.hub.Broadcast:
			if ev.Type == eventType {
				return ev
			}
		case <-deadline:
			t.Fatalf("no %q event within %v", eventType, timeout)
			return nil
		}
	}
}

// findEvent picks the first event of a type out of a drained batch.
func findEvent(events []*websocket.GameEvent, eventType string) *websocket.GameEvent {
	for _, ev := range events {
		if ev.Type == eventType {
			return ev
		}
	}
	return nil
}

func eventTypes(events []*websocket.GameEvent) []string {
	out := make([]string, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.Type)
	}
	return out
}

// eventData returns the event payload as a map for field asserts.
func eventData(t *testing.T, ev *websocket.GameEvent) map[string]interface{} {
	t.Helper()
	data, ok := ev.Data.(map[string]interface{})
	if !ok {
		t.Fatalf("event %s carries %T, not a map", ev.Type, ev.Data)
	}
	return data
}
