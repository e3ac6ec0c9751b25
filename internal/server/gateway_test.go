package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/skyjofree/skyjo-server-go/internal/config"
	"github.com/skyjofree/skyjo-server-go/internal/game"
	"github.com/skyjofree/skyjo-server-go/internal/invite"
	"github.com/skyjofree/skyjo-server-go/internal/presence"
	"github.com/skyjofree/skyjo-server-go/internal/room"
	"github.com/skyjofree/skyjo-server-go/internal/session"
)

func newTestGateway(t *testing.T) (*Gateway, *httptest.Server) {
	t.Helper()
	logger := zaptest.NewLogger(t)

	sessions := session.NewManager(time.Minute, 0, logger)
	rooms := room.NewManagerWithSeed(room.DefaultConfig(), 7, logger)
	tracker := presence.NewTracker(50*time.Millisecond, logger)

	var gw *Gateway
	invites := invite.NewService(invite.Config{
		MaxAttempts:  1,
		BaseDelay:    10 * time.Millisecond,
		DelayStep:    10 * time.Millisecond,
		DedupeWindow: 100 * time.Millisecond,
	}, tracker, func(connID string, inv invite.Invitation) {
		gw.DeliverInvite(connID, inv)
	}, logger)

	gw = NewGateway(config.ServerConfig{}, game.ModeStandard, sessions, rooms, tracker, invites, logger)

	srv := httptest.NewServer(http.HandlerFunc(gw.ServeWS))
	t.Cleanup(srv.Close)
	return gw, srv
}

type wsClient struct {
	t    *testing.T
	conn *websocket.Conn
}

func dial(t *testing.T, srv *httptest.Server) *wsClient {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return &wsClient{t: t, conn: conn}
}

func (c *wsClient) emit(eventType string, payload any) {
	c.t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(c.t, err)
	env := Envelope{Type: eventType, Data: raw}
	require.NoError(c.t, c.conn.WriteJSON(env))
}

// await reads until an event of the wanted type arrives, skipping
// unrelated broadcasts such as presence and lobby list updates.
func (c *wsClient) await(eventType string) json.RawMessage {
	c.t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		c.conn.SetReadDeadline(deadline)
		var env Envelope
		require.NoError(c.t, c.conn.ReadJSON(&env), "waiting for %s", eventType)
		if env.Type == eventType {
			return env.Data
		}
	}
	c.t.Fatalf("timed out waiting for %s", eventType)
	return nil
}

func (c *wsClient) register(userID, name string) registeredPayload {
	c.t.Helper()
	c.emit(EventRegisterUser, registerUserRequest{UserID: userID, Name: name})
	var reg registeredPayload
	require.NoError(c.t, json.Unmarshal(c.await(EventRegistered), &reg))
	return reg
}

func TestRegisterAndCreateRoom(t *testing.T) {
	_, srv := newTestGateway(t)
	a := dial(t, srv)

	reg := a.register("user-a", "alice")
	assert.Equal(t, "user-a", reg.UserID)
	assert.Equal(t, "alice", reg.Name)
	assert.NotEmpty(t, reg.SessionID)

	a.emit(EventCreateRoom, createRoomRequest{IsPublic: false})
	var created roomPayload
	require.NoError(t, json.Unmarshal(a.await(EventRoomCreated), &created))
	require.NotNil(t, created.Room)
	assert.Len(t, created.Room.Code, 4)
	assert.Len(t, created.Room.Players, 1)
	assert.Equal(t, "alice", created.Room.Players[0].Name)
}

func TestUnregisteredRequestsRejected(t *testing.T) {
	_, srv := newTestGateway(t)
	c := dial(t, srv)

	c.emit(EventListRooms, struct{}{})
	var errPayload errorPayload
	require.NoError(t, json.Unmarshal(c.await(EventError), &errPayload))
	assert.Equal(t, "NOT_REGISTERED", errPayload.Code)
}

func TestRegisterWithoutNameRejected(t *testing.T) {
	_, srv := newTestGateway(t)
	c := dial(t, srv)

	c.emit(EventRegisterUser, registerUserRequest{})
	var errPayload errorPayload
	require.NoError(t, json.Unmarshal(c.await(EventError), &errPayload))
	assert.Equal(t, "BAD_REQUEST", errPayload.Code)
}

func TestJoinBroadcastsPlayerList(t *testing.T) {
	_, srv := newTestGateway(t)
	a := dial(t, srv)
	b := dial(t, srv)
	a.register("user-a", "alice")
	b.register("user-b", "bob")

	a.emit(EventCreateRoom, createRoomRequest{})
	var created roomPayload
	require.NoError(t, json.Unmarshal(a.await(EventRoomCreated), &created))

	b.emit(EventJoinRoom, joinRoomRequest{Code: created.Room.Code})
	var joined roomPayload
	require.NoError(t, json.Unmarshal(b.await(EventRoomJoined), &joined))
	assert.Len(t, joined.Room.Players, 2)

	var list playerListPayload
	require.NoError(t, json.Unmarshal(a.await(EventPlayerListUpdate), &list))
	assert.Equal(t, created.Room.Code, list.Code)
	require.Len(t, list.Players, 2)
	assert.Equal(t, "bob", list.Players[1].Name)
}

func TestStartGameAndPhaseErrorSurfaced(t *testing.T) {
	_, srv := newTestGateway(t)
	a := dial(t, srv)
	b := dial(t, srv)
	a.register("user-a", "alice")
	b.register("user-b", "bob")

	a.emit(EventCreateRoom, createRoomRequest{})
	var created roomPayload
	require.NoError(t, json.Unmarshal(a.await(EventRoomCreated), &created))
	code := created.Room.Code

	b.emit(EventJoinRoom, joinRoomRequest{Code: code})
	b.await(EventRoomJoined)

	a.emit(EventStartGame, startGameRequest{Code: code})

	var started roomPayload
	require.NoError(t, json.Unmarshal(a.await(EventGameStarted), &started))
	require.NotNil(t, started.Room.Game)
	assert.Equal(t, game.PhaseInitialReveal, started.Room.Game.Phase)
	b.await(EventGameStarted)

	// Drawing before the opening reveals is rejected with the engine's
	// phase error.
	b.emit(EventGameAction, gameActionRequest{Code: code, Action: "draw_pile"})
	var errPayload errorPayload
	require.NoError(t, json.Unmarshal(b.await(EventError), &errPayload))
	assert.Equal(t, "WRONG_PHASE", errPayload.Code)

	// A legal opening reveal is applied and broadcast to everyone.
	a.emit(EventGameAction, gameActionRequest{Code: code, Action: "reveal_initial", Slots: [2]int{0, 1}})
	var update roomPayload
	require.NoError(t, json.Unmarshal(a.await(EventGameUpdate), &update))
	assert.True(t, update.Room.Game.Players[0].Hand[0].Revealed)
	b.await(EventGameUpdate)
}

func TestInviteDeliveryAndResult(t *testing.T) {
	_, srv := newTestGateway(t)
	a := dial(t, srv)
	b := dial(t, srv)
	a.register("user-a", "alice")
	b.register("user-b", "bob")

	a.emit(EventCreateRoom, createRoomRequest{AutoInviteFriendID: "user-b"})
	var created roomPayload
	require.NoError(t, json.Unmarshal(a.await(EventRoomCreated), &created))

	var inv invite.Invitation
	require.NoError(t, json.Unmarshal(b.await(EventInviteReceived), &inv))
	assert.Equal(t, "user-a", inv.InviterID)
	assert.Equal(t, "alice", inv.InviterName)
	assert.Equal(t, created.Room.Code, inv.RoomCode)

	var res invite.Result
	require.NoError(t, json.Unmarshal(a.await(EventInviteResult), &res))
	assert.True(t, res.Delivered)
}

func TestPresenceBroadcast(t *testing.T) {
	_, srv := newTestGateway(t)
	a := dial(t, srv)
	a.register("user-a", "alice")

	b := dial(t, srv)
	b.register("user-b", "bob")

	var p presencePayload
	require.NoError(t, json.Unmarshal(a.await(EventUserPresenceUpdate), &p))
	assert.Equal(t, "user-b", p.UserID)
	assert.Equal(t, presence.StatusOnline, p.Status)
}

func TestListRooms(t *testing.T) {
	_, srv := newTestGateway(t)
	a := dial(t, srv)
	b := dial(t, srv)
	a.register("user-a", "alice")
	b.register("user-b", "bob")

	a.emit(EventCreateRoom, createRoomRequest{IsPublic: true})
	a.await(EventRoomCreated)

	b.emit(EventListRooms, struct{}{})
	var list roomListPayload
	require.NoError(t, json.Unmarshal(b.await(EventRoomListUpdate), &list))
	require.Len(t, list.Rooms, 1)
	assert.Equal(t, "alice", list.Rooms[0].HostName)
}
