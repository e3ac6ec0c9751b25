package server

import (
	"encoding/json"
	"errors"

	"github.com/skyjofree/skyjo-server-go/internal/game"
	"github.com/skyjofree/skyjo-server-go/internal/room"
	"github.com/skyjofree/skyjo-server-go/internal/session"
)

// Envelope is the wire frame for every message in both directions.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Client-to-server event types.
const (
	EventRegisterUser = "register_user"
	EventCreateRoom   = "create_room"
	EventJoinRoom     = "join_room"
	EventStartGame    = "start_game"
	EventGameAction   = "game_action"
	EventInviteFriend = "invite_friend"
	EventLeaveRoom    = "leave_room"
	EventListRooms    = "list_rooms"
)

// Server-to-client event types.
const (
	EventRegistered         = "registered"
	EventRoomCreated        = "room_created"
	EventRoomJoined         = "room_joined"
	EventGameStarted        = "game_started"
	EventGameUpdate         = "game_update"
	EventGameOver           = "game_over"
	EventGameCancelled      = "game_cancelled"
	EventPlayerListUpdate   = "player_list_update"
	EventRoomListUpdate     = "room_list_update"
	EventUserPresenceUpdate = "user_presence_update"
	EventInviteReceived     = "invite_received"
	EventInviteResult       = "invite_result"
	EventError              = "error"
)

type registerUserRequest struct {
	UserID string `json:"userId,omitempty"`
	Name   string `json:"name"`
}

type registeredPayload struct {
	ConnID    string `json:"connId"`
	UserID    string `json:"userId"`
	SessionID string `json:"sessionId"`
	Name      string `json:"name"`
}

type createRoomRequest struct {
	IsPublic           bool   `json:"isPublic"`
	Mode               string `json:"mode,omitempty"`
	AutoInviteFriendID string `json:"autoInviteFriendId,omitempty"`
}

type joinRoomRequest struct {
	Code string `json:"code"`
}

type startGameRequest struct {
	Code string `json:"code"`
}

type gameActionRequest struct {
	Code         string `json:"code"`
	Action       string `json:"action"`
	Slots        [2]int `json:"slots,omitempty"`
	Slot         int    `json:"slot,omitempty"`
	SrcSlot      int    `json:"srcSlot,omitempty"`
	TargetPlayer int    `json:"targetPlayerIndex,omitempty"`
	TargetSlot   int    `json:"targetSlot,omitempty"`
}

type inviteFriendRequest struct {
	TargetUserID string `json:"targetUserId"`
	Code         string `json:"code"`
}

type leaveRoomRequest struct {
	Code string `json:"code"`
}

type roomPayload struct {
	Room *room.Room `json:"room"`
}

type gameOverPayload struct {
	Room   *room.Room        `json:"room"`
	Result *room.RoundResult `json:"result"`
}

type gameCancelledPayload struct {
	Code   string `json:"code"`
	Reason string `json:"reason"`
}

type playerListPayload struct {
	Code    string             `json:"code"`
	Players []*room.RoomPlayer `json:"players"`
	NewHost string             `json:"newHost,omitempty"`
}

type roomListPayload struct {
	Rooms []room.Summary `json:"rooms"`
}

type presencePayload struct {
	UserID string `json:"userId"`
	Status string `json:"status"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// errorCode maps a domain error onto its wire code. Unknown errors are
// reported as BAD_REQUEST; internal details never leave the server.
func errorCode(err error) string {
	switch {
	case errors.Is(err, game.ErrNotYourTurn):
		return "NOT_YOUR_TURN"
	case errors.Is(err, game.ErrWrongPhase):
		return "WRONG_PHASE"
	case errors.Is(err, game.ErrLockedCard):
		return "LOCKED_CARD"
	case errors.Is(err, game.ErrIllegalSpecialPlacement):
		return "ILLEGAL_SPECIAL_PLACEMENT"
	case errors.Is(err, game.ErrIllegalDiscardTarget):
		return "ILLEGAL_DISCARD_TARGET"
	case errors.Is(err, game.ErrEmptyPile):
		return "EMPTY_PILE"
	case errors.Is(err, game.ErrInvalidSlot):
		return "INVALID_SLOT"
	case errors.Is(err, room.ErrRoomNotFound):
		return "ROOM_NOT_FOUND"
	case errors.Is(err, room.ErrRoomFull):
		return "ROOM_FULL"
	case errors.Is(err, room.ErrGameAlreadyStarted):
		return "GAME_ALREADY_STARTED"
	case errors.Is(err, room.ErrNotHost):
		return "NOT_HOST"
	case errors.Is(err, room.ErrNotInRoom):
		return "NOT_IN_ROOM"
	case errors.Is(err, room.ErrNotEnoughPlayers):
		return "NOT_ENOUGH_PLAYERS"
	case errors.Is(err, room.ErrNoActiveGame):
		return "NO_ACTIVE_GAME"
	case errors.Is(err, room.ErrMatchOver):
		return "MATCH_OVER"
	case errors.Is(err, session.ErrRegisterRateLimited):
		return "RATE_LIMITED"
	case errors.Is(err, session.ErrTooManySessions):
		return "SESSION_LIMIT"
	case errors.Is(err, errNotRegistered):
		return "NOT_REGISTERED"
	default:
		return "BAD_REQUEST"
	}
}

// encode marshals an outbound event. The payload types are all
// marshal-safe, so errors are ignored.
func encode(eventType string, data any) []byte {
	raw, _ := json.Marshal(data)
	msg, _ := json.Marshal(Envelope{Type: eventType, Data: raw})
	return msg
}
