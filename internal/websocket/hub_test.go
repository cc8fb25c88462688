package websocket

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(id string) *Client {
	return &Client{ID: id, send: make(chan *GameEvent, 8)}
}

func TestJoinRoom_MovesBetweenBuckets(t *testing.T) {
	h := NewHub(nil)
	c := newTestClient("c1")
	h.handleRegister(c)

	h.JoinRoom(c, "AB12CD")
	assert.Equal(t, 1, h.GetPlayerCount("AB12CD"))

	h.JoinRoom(c, "EF56GH")
	assert.Zero(t, h.GetPlayerCount("AB12CD"), "the old bucket is left")
	assert.Equal(t, 1, h.GetPlayerCount("EF56GH"))
	assert.Equal(t, "EF56GH", c.RoomID)
}

func TestLeaveRoom_DetachesWithoutClosing(t *testing.T) {
	h := NewHub(nil)
	c := newTestClient("c1")
	h.handleRegister(c)
	h.JoinRoom(c, "AB12CD")

	h.LeaveRoom(c)

	assert.Zero(t, h.GetPlayerCount("AB12CD"))
	assert.Empty(t, c.RoomID)
	assert.NoError(t, h.SendToConn("c1", GameEvent{Type: "ping"}), "the connection stays usable")
}

func TestBroadcast_ReachesOnlyRoomMembers(t *testing.T) {
	h := NewHub(nil)
	a1, a2, b := newTestClient("a1"), newTestClient("a2"), newTestClient("b")
	for _, c := range []*Client{a1, a2, b} {
		h.handleRegister(c)
	}
	h.JoinRoom(a1, "AAAA11")
	h.JoinRoom(a2, "AAAA11")
	h.JoinRoom(b, "BBBB22")

	h.handleBroadcast(&GameEvent{RoomID: "AAAA11", Type: "round_started"})

	assert.Len(t, a1.send, 1)
	assert.Len(t, a2.send, 1)
	assert.Empty(t, b.send)
}

func TestSendToConn(t *testing.T) {
	h := NewHub(nil)
	c := newTestClient("c1")
	h.handleRegister(c)

	require.NoError(t, h.SendToConn("c1", GameEvent{Type: "question"}))
	got := <-c.send
	assert.Equal(t, "question", got.Type)

	assert.ErrorIs(t, h.SendToConn("stranger", GameEvent{Type: "question"}), ErrClientGone)
}

func TestUnregister_FiresDisconnectCallback(t *testing.T) {
	h := NewHub(nil)
	done := make(chan [2]string, 1)
	h.SetDisconnectHandler(func(connID, pin string) {
		done <- [2]string{connID, pin}
	})

	c := newTestClient("c1")
	h.handleRegister(c)
	h.JoinRoom(c, "AB12CD")

	h.handleUnregister(c)

	select {
	case got := <-done:
		assert.Equal(t, "c1", got[0])
		assert.Equal(t, "AB12CD", got[1])
	case <-time.After(time.Second):
		t.Fatal("disconnect callback never fired")
	}

	assert.ErrorIs(t, c.trySend(&GameEvent{Type: "x"}), ErrClientGone, "a dead client rejects sends")
	assert.Zero(t, h.GetPlayerCount("AB12CD"))
}

func TestUnregister_UnknownClientIsANoop(t *testing.T) {
	h := NewHub(nil)
	fired := false
	h.SetDisconnectHandler(func(string, string) { fired = true })

	h.handleUnregister(newTestClient("ghost"))

	assert.False(t, fired)
}

func TestTrySend_FullBufferFails(t *testing.T) {
	c := &Client{ID: "c1", send: make(chan *GameEvent, 1)}
	require.NoError(t, c.trySend(&GameEvent{Type: "one"}))

	assert.ErrorIs(t, c.trySend(&GameEvent{Type: "two"}), ErrClientGone)
}
