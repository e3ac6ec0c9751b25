// Package server is the websocket gateway: it owns the live connections
// and translates wire events into calls on the session, room, presence
// and invite managers. All room broadcasts happen synchronously with the
// mutation that caused them, so clients observe state changes in order.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/skyjofree/skyjo-server-go/internal/config"
	"github.com/skyjofree/skyjo-server-go/internal/game"
	"github.com/skyjofree/skyjo-server-go/internal/invite"
	"github.com/skyjofree/skyjo-server-go/internal/presence"
	"github.com/skyjofree/skyjo-server-go/internal/room"
	"github.com/skyjofree/skyjo-server-go/internal/session"
)

var errNotRegistered = errors.New("connection has not registered a user")

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		// The game is origin-agnostic; identity comes from register_user.
		return true
	},
}

// Gateway routes websocket traffic to the domain managers.
type Gateway struct {
	cfg      config.ServerConfig
	sessions *session.Manager
	rooms    *room.Manager
	presence *presence.Tracker
	invites  *invite.Service
	logger   *zap.Logger

	defaultMode game.Mode

	mu      sync.RWMutex
	clients map[string]*Client // by connID
}

// NewGateway wires the managers together and registers the cross-manager
// callbacks: presence transitions fan out to every client, invitations
// are delivered to target sockets, and final invite outcomes return to
// the inviter.
func NewGateway(
	cfg config.ServerConfig,
	defaultMode game.Mode,
	sessions *session.Manager,
	rooms *room.Manager,
	tracker *presence.Tracker,
	invites *invite.Service,
	logger *zap.Logger,
) *Gateway {
	g := &Gateway{
		cfg:         cfg,
		sessions:    sessions,
		rooms:       rooms,
		presence:    tracker,
		invites:     invites,
		logger:      logger,
		defaultMode: defaultMode,
		clients:     make(map[string]*Client),
	}

	tracker.SetOnChange(func(userID, status string) {
		g.broadcastAll(encode(EventUserPresenceUpdate, presencePayload{UserID: userID, Status: status}))
	})
	invites.SetOnResult(func(res invite.Result) {
		g.sendToUser(res.InviterID, encode(EventInviteResult, res))
	})

	return g
}

// DeliverInvite pushes invite_received to one connection. It is the
// delivery function handed to the invite service.
func (g *Gateway) DeliverInvite(connID string, inv invite.Invitation) {
	g.sendToConn(connID, encode(EventInviteReceived, inv))
}

// ServeWS upgrades an HTTP request and starts the connection's pumps.
func (g *Gateway) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &Client{
		connID: uuid.New().String(),
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
	}

	g.mu.Lock()
	g.clients[c.connID] = c
	g.mu.Unlock()

	g.logger.Debug("connection opened", zap.String("conn_id", c.connID))

	go g.writePump(c)
	go g.readPump(c)
}

// Start runs the websocket HTTP server until the context is cancelled.
func (g *Gateway) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc(g.cfg.WebSocket.Path, g.ServeWS)

	srv := &http.Server{
		Addr:    g.cfg.WebSocket.Address,
		Handler: mux,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	g.logger.Info("websocket server listening",
		zap.String("address", g.cfg.WebSocket.Address),
		zap.String("path", g.cfg.WebSocket.Path),
	)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (g *Gateway) handleMessage(c *Client, raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		g.sendError(c, fmt.Errorf("malformed message: %w", err))
		return
	}

	g.sessions.Touch(c.connID)

	var err error
	switch env.Type {
	case EventRegisterUser:
		err = g.handleRegisterUser(c, env.Data)
	case EventCreateRoom:
		err = g.requireUser(c, func() error { return g.handleCreateRoom(c, env.Data) })
	case EventJoinRoom:
		err = g.requireUser(c, func() error { return g.handleJoinRoom(c, env.Data) })
	case EventStartGame:
		err = g.requireUser(c, func() error { return g.handleStartGame(c, env.Data) })
	case EventGameAction:
		err = g.requireUser(c, func() error { return g.handleGameAction(c, env.Data) })
	case EventInviteFriend:
		err = g.requireUser(c, func() error { return g.handleInviteFriend(c, env.Data) })
	case EventLeaveRoom:
		err = g.requireUser(c, func() error { return g.handleLeaveRoom(c, env.Data) })
	case EventListRooms:
		err = g.requireUser(c, func() error { return g.handleListRooms(c) })
	default:
		err = fmt.Errorf("unknown event type %q", env.Type)
	}
	if err != nil {
		g.sendError(c, err)
	}
}

func (g *Gateway) requireUser(c *Client, fn func() error) error {
	if c.userID == "" {
		return errNotRegistered
	}
	return fn()
}

func (g *Gateway) handleRegisterUser(c *Client, data json.RawMessage) error {
	if err := g.sessions.RecordRegisterAttempt(c.connID); err != nil {
		// Abusive connections are cut, not just refused.
		g.sendError(c, err)
		c.conn.Close()
		return nil
	}

	var req registerUserRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return fmt.Errorf("malformed register_user: %w", err)
	}
	if req.Name == "" {
		return errors.New("register_user requires a name")
	}

	userID := req.UserID
	if userID == "" {
		userID = uuid.New().String()
	}

	s, err := g.sessions.Register(c.connID, userID, req.Name)
	if err != nil {
		return err
	}

	c.userID = userID
	c.name = req.Name
	g.presence.Connect(userID, c.connID)

	g.sendToConn(c.connID, encode(EventRegistered, registeredPayload{
		ConnID:    c.connID,
		UserID:    userID,
		SessionID: s.ID,
		Name:      req.Name,
	}))
	return nil
}

func (g *Gateway) handleCreateRoom(c *Client, data json.RawMessage) error {
	var req createRoomRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return fmt.Errorf("malformed create_room: %w", err)
	}

	mode := g.defaultMode
	if req.Mode != "" {
		mode = game.ParseMode(req.Mode)
	}

	r, err := g.rooms.CreateRoom(c.connID, c.userID, c.name, req.IsPublic, mode)
	if err != nil {
		return err
	}

	g.sendToConn(c.connID, encode(EventRoomCreated, roomPayload{Room: r}))
	if req.IsPublic {
		g.broadcastRoomList()
	}

	if req.AutoInviteFriendID != "" {
		g.invites.Invite(invite.Invitation{
			InviterID:   c.userID,
			InviterName: c.name,
			TargetID:    req.AutoInviteFriendID,
			RoomCode:    r.Code,
		})
	}
	return nil
}

func (g *Gateway) handleJoinRoom(c *Client, data json.RawMessage) error {
	var req joinRoomRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return fmt.Errorf("malformed join_room: %w", err)
	}

	r, err := g.rooms.JoinRoom(req.Code, c.connID, c.userID, c.name)
	if err != nil {
		return err
	}

	g.sendToConn(c.connID, encode(EventRoomJoined, roomPayload{Room: r}))
	g.broadcastToRoom(r, encode(EventPlayerListUpdate, playerListPayload{
		Code:    r.Code,
		Players: r.Players,
	}))
	if r.Public {
		g.broadcastRoomList()
	}
	return nil
}

func (g *Gateway) handleStartGame(c *Client, data json.RawMessage) error {
	var req startGameRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return fmt.Errorf("malformed start_game: %w", err)
	}

	r, err := g.rooms.StartGame(req.Code, c.connID)
	if err != nil {
		return err
	}

	g.broadcastToRoom(r, encode(EventGameStarted, roomPayload{Room: r}))
	if r.Public {
		g.broadcastRoomList()
	}
	return nil
}

func (g *Gateway) handleGameAction(c *Client, data json.RawMessage) error {
	var req gameActionRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return fmt.Errorf("malformed game_action: %w", err)
	}

	actionType, ok := room.ParseActionType(req.Action)
	if !ok {
		return fmt.Errorf("unknown game action %q", req.Action)
	}

	r, result, err := g.rooms.ApplyAction(req.Code, c.connID, room.Action{
		Type:         actionType,
		Slots:        req.Slots,
		Slot:         req.Slot,
		SrcSlot:      req.SrcSlot,
		TargetPlayer: req.TargetPlayer,
		TargetSlot:   req.TargetSlot,
	})
	if err != nil {
		return err
	}

	g.broadcastToRoom(r, encode(EventGameUpdate, roomPayload{Room: r}))
	if result != nil {
		g.broadcastToRoom(r, encode(EventGameOver, gameOverPayload{Room: r, Result: result}))
	}
	return nil
}

func (g *Gateway) handleInviteFriend(c *Client, data json.RawMessage) error {
	var req inviteFriendRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return fmt.Errorf("malformed invite_friend: %w", err)
	}

	g.invites.Invite(invite.Invitation{
		InviterID:   c.userID,
		InviterName: c.name,
		TargetID:    req.TargetUserID,
		RoomCode:    req.Code,
	})
	return nil
}

func (g *Gateway) handleLeaveRoom(c *Client, data json.RawMessage) error {
	var req leaveRoomRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return fmt.Errorf("malformed leave_room: %w", err)
	}
	return g.leaveOneRoom(req.Code, c.connID)
}

func (g *Gateway) handleListRooms(c *Client) error {
	g.sendToConn(c.connID, encode(EventRoomListUpdate, roomListPayload{Rooms: g.rooms.ListPublicRooms()}))
	return nil
}

// leaveOneRoom applies one departure and fans out its consequences.
func (g *Gateway) leaveOneRoom(code, connID string) error {
	res, err := g.rooms.LeaveRoom(code, connID)
	if err != nil {
		return err
	}

	switch {
	case res.Destroyed:
		// Nobody left to notify.
	case res.Cancelled:
		g.broadcastToRoom(res.Room, encode(EventGameCancelled, gameCancelledPayload{
			Code:   code,
			Reason: res.Reason,
		}))
	default:
		g.broadcastToRoom(res.Room, encode(EventPlayerListUpdate, playerListPayload{
			Code:    code,
			Players: res.Room.Players,
			NewHost: res.NewHost,
		}))
	}
	g.broadcastRoomList()
	return nil
}

// disconnect tears down a dropped connection: it leaves every room,
// notifies presence, and drops the session.
func (g *Gateway) disconnect(c *Client) {
	g.mu.Lock()
	if _, ok := g.clients[c.connID]; !ok {
		g.mu.Unlock()
		return
	}
	delete(g.clients, c.connID)
	close(c.send)
	g.mu.Unlock()

	for _, code := range g.rooms.RoomsOf(c.connID) {
		if err := g.leaveOneRoom(code, c.connID); err != nil {
			g.logger.Warn("leave on disconnect failed",
				zap.String("conn_id", c.connID),
				zap.String("code", code),
				zap.Error(err),
			)
		}
	}

	if c.userID != "" {
		g.presence.Disconnect(c.userID, c.connID)
	}
	g.sessions.Remove(c.connID)
	g.logger.Debug("connection closed", zap.String("conn_id", c.connID))
}

func (g *Gateway) sendError(c *Client, err error) {
	g.sendToConn(c.connID, encode(EventError, errorPayload{
		Code:    errorCode(err),
		Message: err.Error(),
	}))
}

func (g *Gateway) sendToConn(connID string, msg []byte) {
	g.mu.RLock()
	c, ok := g.clients[connID]
	g.mu.RUnlock()
	if !ok {
		return
	}
	select {
	case c.send <- msg:
	default:
		// A client that cannot drain its buffer is dropped rather than
		// allowed to stall the sender.
		g.logger.Warn("send buffer full, dropping client", zap.String("conn_id", connID))
		c.conn.Close()
	}
}

func (g *Gateway) sendToUser(userID string, msg []byte) {
	for _, connID := range g.presence.Sockets(userID) {
		g.sendToConn(connID, msg)
	}
}

func (g *Gateway) broadcastToRoom(r *room.Room, msg []byte) {
	for _, p := range r.Players {
		g.sendToConn(p.ConnID, msg)
	}
}

func (g *Gateway) broadcastAll(msg []byte) {
	g.mu.RLock()
	conns := make([]string, 0, len(g.clients))
	for connID := range g.clients {
		conns = append(conns, connID)
	}
	g.mu.RUnlock()

	for _, connID := range conns {
		g.sendToConn(connID, msg)
	}
}

// broadcastRoomList pushes the public lobby list to every client.
func (g *Gateway) broadcastRoomList() {
	g.broadcastAll(encode(EventRoomListUpdate, roomListPayload{Rooms: g.rooms.ListPublicRooms()}))
}
