// internal/service/presence_service_test.go

package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleDisconnect_MarksSeatAway(t *testing.T) {
	e := newEnv(t)
	room := e.createRoom(t, CreateRoomParams{})
	e.join(t, room.PIN, "ana", "1")
	bruno, _ := e.join(t, room.PIN, "bruno", "2")
	e.drainEvents()

	e.presence.HandleDisconnect(bruno.ID, room.PIN)

	stored := e.mustRoom(t, room.PIN)
	seat := stored.PlayerByUsername("bruno")
	require.NotNil(t, seat, "the seat survives the drop")
	assert.False(t, seat.IsConnected)
	assert.NotNil(t, seat.DisconnectedAt)

	events := e.drainEvents()
	gone := findEvent(events, "player_disconnected")
	require.NotNil(t, gone)
	assert.Equal(t, "bruno", eventData(t, gone)["username"])

	// The hub can report the same closed connection twice.
	e.presence.HandleDisconnect(bruno.ID, room.PIN)
	assert.Nil(t, findEvent(e.drainEvents(), "player_disconnected"),
		"an already-away seat is not announced again")
}

func TestHandleDisconnect_IgnoresUnjoinedConnections(t *testing.T) {
	e := newEnv(t)
	room := e.createRoom(t, CreateRoomParams{})
	e.join(t, room.PIN, "ana", "1")
	e.drainEvents()

	e.presence.HandleDisconnect("stranger", room.PIN)
	e.presence.HandleDisconnect("stranger", "")

	assert.Empty(t, e.drainEvents())
	assert.True(t, e.mustRoom(t, room.PIN).PlayerByUsername("ana").IsConnected)
}

func TestGraceExpiry_VacatesSeatAndFreesIdentity(t *testing.T) {
	e := newEnv(t)
	room := e.createRoom(t, CreateRoomParams{})
	e.join(t, room.PIN, "ana", "1")
	bruno, _ := e.join(t, room.PIN, "bruno", "2")
	e.drainEvents()

	e.presence.HandleDisconnect(bruno.ID, room.PIN)

	removed := e.awaitEvent(t, "player_removed", time.Second)
	data := eventData(t, removed)
	assert.Equal(t, "bruno", data["username"])
	assert.Equal(t, "grace_expired", data["reason"])

	stored := e.mustRoom(t, room.PIN)
	assert.Nil(t, stored.PlayerByUsername("bruno"))
	assert.Equal(t, "ana", stored.HostUsername, "the host keeps the seat")

	// The vacated browser identity may seat a fresh player again.
	again := e.clientWithIdentity("3", "fp-2", "10.0.0.2")
	_, err := e.rooms.Join(again, JoinParams{PIN: room.PIN, Username: "carla"})
	require.NoError(t, err)
}

func TestGraceExpiry_PromotesNextHost(t *testing.T) {
	e := newEnv(t)
	room := e.createRoom(t, CreateRoomParams{})
	host, _ := e.join(t, room.PIN, "ana", "1")
	e.join(t, room.PIN, "bruno", "2")
	e.join(t, room.PIN, "carla", "3")
	e.drainEvents()

	e.presence.HandleDisconnect(host.ID, room.PIN)

	e.awaitEvent(t, "player_removed", time.Second)
	changed := e.awaitEvent(t, "host_changed", time.Second)
	assert.Equal(t, "bruno", eventData(t, changed)["username"],
		"the longest-seated connected player inherits the room")

	stored := e.mustRoom(t, room.PIN)
	assert.Equal(t, "bruno", stored.HostUsername)
}

func TestGraceExpiry_ReconnectKeepsTheSeat(t *testing.T) {
	e := newEnv(t)
	room := e.createRoom(t, CreateRoomParams{})
	e.join(t, room.PIN, "ana", "1")
	bruno, res := e.join(t, room.PIN, "bruno", "2")
	e.drainEvents()

	e.presence.HandleDisconnect(bruno.ID, room.PIN)

	// Same browser, new connection, inside the window.
	back := e.clientWithIdentity("2b", "fp-2", "10.0.0.2")
	rejoined, err := e.rooms.Join(back, JoinParams{
		PIN:        room.PIN,
		Username:   "bruno",
		SessionKey: res.Player.SessionKey,
	})
	require.NoError(t, err)
	assert.True(t, rejoined.Reconnected)
	assert.Equal(t, res.Player.ID, rejoined.Player.ID, "same seat, same identity")

	// A stale grace timer firing later must leave the seat alone.
	e.presence.removeAfterGrace(room.PIN, res.Player.SessionKey)

	stored := e.mustRoom(t, room.PIN)
	seat := stored.PlayerByUsername("bruno")
	require.NotNil(t, seat)
	assert.True(t, seat.IsConnected)
	assert.Equal(t, back.ID, seat.ConnID)
}

func TestGraceExpiry_LastSeatTearsDownRoom(t *testing.T) {
	e := newEnv(t)
	room := e.createRoom(t, CreateRoomParams{})
	solo, _ := e.join(t, room.PIN, "ana", "1")
	e.drainEvents()

	e.presence.HandleDisconnect(solo.ID, room.PIN)

	assert.Eventually(t, func() bool {
		_, err := e.store.FindByPIN(room.PIN)
		return err != nil
	}, time.Second, 5*time.Millisecond, "an emptied room is deleted outright")
}

func TestGraceExpiry_ClosesRoundWaitingOnRemovedSeat(t *testing.T) {
	e := newEnv(t)
	room := e.createRoom(t, CreateRoomParams{QuestionCount: 2})
	host, _ := e.join(t, room.PIN, "ana", "1")
	bruno, _ := e.join(t, room.PIN, "bruno", "2")
	startPlaying(t, e, host)
	e.drainEvents()

	submitCorrect(t, e, room.PIN, host, 3)

	// With bruno gone for good, ana is the only active player left and
	// she has answered, so the round closes without the deadline.
	e.presence.HandleDisconnect(bruno.ID, room.PIN)
	e.awaitEvent(t, "player_removed", time.Second)
	reveal := e.awaitEvent(t, "answers_revealed", time.Second)
	assert.Equal(t, 1, eventData(t, reveal)["round"])

	e.awaitEvent(t, "round_started", time.Second)
	stored := e.mustRoom(t, room.PIN)
	assert.Equal(t, 1, stored.CurrentRound)
	assert.Nil(t, stored.PlayerByUsername("bruno"))
}

func TestDisconnectDuringWaiting_DoesNotTouchOtherSeats(t *testing.T) {
	e := newEnv(t)
	room := e.createRoom(t, CreateRoomParams{})
	e.join(t, room.PIN, "ana", "1")
	bruno, _ := e.join(t, room.PIN, "bruno", "2")
	carla, _ := e.join(t, room.PIN, "carla", "3")
	e.drainEvents()

	e.presence.HandleDisconnect(bruno.ID, room.PIN)
	e.presence.HandleDisconnect(carla.ID, room.PIN)
	e.awaitEvent(t, "player_removed", time.Second)
	e.awaitEvent(t, "player_removed", time.Second)

	stored := e.mustRoom(t, room.PIN)
	require.Len(t, stored.Players, 1)
	assert.Equal(t, "ana", stored.Players[0].Username)
	assert.True(t, stored.Players[0].IsConnected)
}
