// Package room owns the mutable per-match state: roster, authoritative
// game state, and the cumulative score ledger. Rooms are independent
// units of concurrency; every handler reads, validates and writes a
// room's state atomically under the manager lock and room state is only
// handed out as deep copies.
package room

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/skyjofree/skyjo-server-go/internal/game"
)

// Connection-level errors surfaced to clients; always recoverable by a
// corrected request.
var (
	ErrRoomNotFound       = errors.New("room not found")
	ErrRoomFull           = errors.New("room is full")
	ErrGameAlreadyStarted = errors.New("game already started")
	ErrNotHost            = errors.New("only the host can do this")
	ErrNotInRoom          = errors.New("player is not in this room")
	ErrNotEnoughPlayers   = errors.New("not enough players")
	ErrNoActiveGame       = errors.New("no active game in this room")
	ErrMatchOver          = errors.New("the match is over")
)

const (
	codeLength   = 4
	codeAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

	// Cancellation reasons surfaced to room members.
	ReasonHostLeft      = "The host left the game"
	ReasonTooFewPlayers = "Not enough players to continue"
)

// State is the room lifecycle stage.
type State int

const (
	StateLobby State = iota
	StatePlaying
	StateMatchOver
	StateCancelled
)

var stateNames = map[State]string{
	StateLobby:     "LOBBY",
	StatePlaying:   "PLAYING",
	StateMatchOver: "MATCH_OVER",
	StateCancelled: "CANCELLED",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("STATE_%d", int(s))
}

func (s State) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

func (s *State) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	for v, n := range stateNames {
		if n == name {
			*s = v
			return nil
		}
	}
	return fmt.Errorf("unknown room state %q", name)
}

// RoomPlayer is one roster entry. ConnID is the transient connection
// identity; DBID the stable one used for the score ledger.
type RoomPlayer struct {
	ConnID string `json:"connId"`
	DBID   string `json:"dbId,omitempty"`
	Name   string `json:"name"`
	IsHost bool   `json:"isHost"`
}

// Key returns the identity used for cross-round bookkeeping.
func (p *RoomPlayer) Key() string {
	if p.DBID != "" {
		return p.DBID
	}
	return p.ConnID
}

// Room is one active match.
type Room struct {
	Code        string         `json:"code"`
	State       State          `json:"state"`
	Players     []*RoomPlayer  `json:"players"`
	Game        *game.GameState `json:"gameState,omitempty"`
	TotalScores map[string]int `json:"totalScores"`
	Round       int            `json:"roundNumber"`
	Started     bool           `json:"gameStarted"`
	Public      bool           `json:"isPublic"`
	Mode        game.Mode      `json:"mode"`

	replay    *game.Replay
	chestSeed int64
}

func (r *Room) playerIndex(connID string) int {
	for i, p := range r.Players {
		if p.ConnID == connID {
			return i
		}
	}
	return -1
}

// Summary is the public lobby listing view of a room.
type Summary struct {
	Code       string    `json:"code"`
	HostName   string    `json:"hostName"`
	NumPlayers int       `json:"numPlayers"`
	MaxPlayers int       `json:"maxPlayers"`
	Started    bool      `json:"gameStarted"`
	Mode       game.Mode `json:"mode"`
}

// Config bounds room membership and the match.
type Config struct {
	MinPlayers int
	MaxPlayers int
	// ScoreLimit ends the match once any cumulative score reaches it.
	ScoreLimit int
}

// DefaultConfig returns the standard match parameters.
func DefaultConfig() Config {
	return Config{MinPlayers: 2, MaxPlayers: 8, ScoreLimit: 100}
}

// Manager owns the registry of active rooms.
type Manager struct {
	mu     sync.RWMutex
	rooms  map[string]*Room
	cfg    Config
	rng    *rand.Rand
	logger *zap.Logger
}

// NewManager creates a room manager seeded from the clock.
func NewManager(cfg Config, logger *zap.Logger) *Manager {
	return NewManagerWithSeed(cfg, time.Now().UnixNano(), logger)
}

// NewManagerWithSeed pins the manager's entropy, for deterministic tests
// and replays.
func NewManagerWithSeed(cfg Config, seed int64, logger *zap.Logger) *Manager {
	return &Manager{
		rooms:  make(map[string]*Room),
		cfg:    cfg,
		rng:    rand.New(rand.NewSource(seed)),
		logger: logger,
	}
}

// generateCode allocates a free 4-character uppercase base-36 code.
// Codes are collision-tolerant: we simply re-roll on a registry hit.
func (m *Manager) generateCode() (string, error) {
	buf := make([]byte, codeLength)
	for attempt := 0; attempt < 1000; attempt++ {
		for i := range buf {
			buf[i] = codeAlphabet[m.rng.Intn(len(codeAlphabet))]
		}
		code := string(buf)
		if _, taken := m.rooms[code]; !taken {
			return code, nil
		}
	}
	return "", errors.New("room code space exhausted")
}

// CreateRoom allocates a room with the caller as host.
func (m *Manager) CreateRoom(connID, dbID, name string, public bool, mode game.Mode) (*Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	code, err := m.generateCode()
	if err != nil {
		return nil, err
	}

	room := &Room{
		Code:        code,
		State:       StateLobby,
		Players:     []*RoomPlayer{{ConnID: connID, DBID: dbID, Name: name, IsHost: true}},
		TotalScores: make(map[string]int),
		Public:      public,
		Mode:        mode,
		replay:      game.NewReplay(code),
	}
	m.rooms[code] = room

	m.logger.Info("room created",
		zap.String("code", code),
		zap.String("host", name),
		zap.Bool("public", public),
		zap.String("mode", mode.String()),
	)
	return room.clone(), nil
}

// JoinRoom adds a player to an existing lobby.
func (m *Manager) JoinRoom(code, connID, dbID, name string) (*Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	room, ok := m.rooms[code]
	if !ok {
		return nil, ErrRoomNotFound
	}
	if room.Started || room.State != StateLobby {
		return nil, ErrGameAlreadyStarted
	}
	if len(room.Players) >= m.cfg.MaxPlayers {
		return nil, ErrRoomFull
	}

	room.Players = append(room.Players, &RoomPlayer{ConnID: connID, DBID: dbID, Name: name})

	m.logger.Info("player joined room",
		zap.String("code", code),
		zap.String("player", name),
		zap.Int("players", len(room.Players)),
	)
	return room.clone(), nil
}

// LeaveResult describes the aftermath of a player leaving.
type LeaveResult struct {
	Room      *Room
	Destroyed bool
	Cancelled bool
	Reason    string
	NewHost   string
}

// LeaveRoom removes a player. The host leaving or the roster dropping
// below the minimum during play cancels the match; game state is never
// rolled back. An emptied room is destroyed.
func (m *Manager) LeaveRoom(code, connID string) (*LeaveResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	room, ok := m.rooms[code]
	if !ok {
		return nil, ErrRoomNotFound
	}
	idx := room.playerIndex(connID)
	if idx < 0 {
		return nil, ErrNotInRoom
	}

	leaving := room.Players[idx]
	room.Players = append(room.Players[:idx], room.Players[idx+1:]...)

	res := &LeaveResult{}

	if len(room.Players) == 0 {
		delete(m.rooms, code)
		res.Destroyed = true
		m.logger.Info("room destroyed", zap.String("code", code))
		return res, nil
	}

	if room.State == StatePlaying && (leaving.IsHost || len(room.Players) < m.cfg.MinPlayers) {
		room.State = StateCancelled
		reason := ReasonTooFewPlayers
		if leaving.IsHost {
			reason = ReasonHostLeft
		}
		res.Cancelled = true
		res.Reason = reason
		res.Room = room.clone()
		delete(m.rooms, code)
		m.logger.Info("match cancelled",
			zap.String("code", code),
			zap.String("reason", reason),
		)
		return res, nil
	}

	if leaving.IsHost {
		room.Players[0].IsHost = true
		res.NewHost = room.Players[0].Name
	}
	res.Room = room.clone()
	return res, nil
}

// StartGame begins a round. Host-only; needs the minimum roster.
func (m *Manager) StartGame(code, connID string) (*Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	room, ok := m.rooms[code]
	if !ok {
		return nil, ErrRoomNotFound
	}
	idx := room.playerIndex(connID)
	if idx < 0 {
		return nil, ErrNotInRoom
	}
	if !room.Players[idx].IsHost {
		return nil, ErrNotHost
	}
	if room.State == StatePlaying {
		return nil, ErrGameAlreadyStarted
	}
	if room.State != StateLobby {
		return nil, ErrMatchOver
	}
	if len(room.Players) < m.cfg.MinPlayers {
		return nil, ErrNotEnoughPlayers
	}

	players := make([]*game.Player, len(room.Players))
	for i, p := range room.Players {
		players[i] = &game.Player{ID: p.ConnID, DBID: p.DBID, Name: p.Name}
	}

	round := room.Round + 1
	state, err := game.InitializeGame(players, room.Mode, round, m.rng)
	if err != nil {
		return nil, err
	}

	room.Round = round
	room.Game = state
	room.State = StatePlaying
	room.Started = true
	room.chestSeed = m.rng.Int63()
	room.replay.Record("start_round", state)

	m.logger.Info("round started",
		zap.String("code", code),
		zap.Int("round", round),
		zap.Int("players", len(players)),
	)
	return room.clone(), nil
}

func (r *Room) clone() *Room {
	dup := &Room{
		Code:        r.Code,
		State:       r.State,
		Players:     make([]*RoomPlayer, len(r.Players)),
		TotalScores: make(map[string]int, len(r.TotalScores)),
		Round:       r.Round,
		Started:     r.Started,
		Public:      r.Public,
		Mode:        r.Mode,
	}
	for i, p := range r.Players {
		cp := *p
		dup.Players[i] = &cp
	}
	for k, v := range r.TotalScores {
		dup.TotalScores[k] = v
	}
	if r.Game != nil {
		dup.Game = r.Game.Clone()
	}
	return dup
}

// GetRoom returns a copy of the room.
func (m *Manager) GetRoom(code string) (*Room, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	room, ok := m.rooms[code]
	if !ok {
		return nil, false
	}
	return room.clone(), true
}

// Replay returns the room's replay record.
func (m *Manager) Replay(code string) (*game.Replay, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	room, ok := m.rooms[code]
	if !ok {
		return nil, false
	}
	return room.replay, true
}

// ListPublicRooms returns joinable public rooms for the lobby list.
func (m *Manager) ListPublicRooms() []Summary {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Summary, 0)
	for _, room := range m.rooms {
		if !room.Public || room.Started {
			continue
		}
		hostName := ""
		for _, p := range room.Players {
			if p.IsHost {
				hostName = p.Name
				break
			}
		}
		out = append(out, Summary{
			Code:       room.Code,
			HostName:   hostName,
			NumPlayers: len(room.Players),
			MaxPlayers: m.cfg.MaxPlayers,
			Started:    room.Started,
			Mode:       room.Mode,
		})
	}
	return out
}

// RoomsOf returns the codes of every room containing the connection.
func (m *Manager) RoomsOf(connID string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]string, 0, 1)
	for code, room := range m.rooms {
		if room.playerIndex(connID) >= 0 {
			out = append(out, code)
		}
	}
	return out
}
