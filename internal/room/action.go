package room

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/skyjofree/skyjo-server-go/internal/game"
)

// ActionType enumerates the game actions a client may route to a room.
// The wire protocol's action strings map onto this tagged union so every
// variant gets a compile-time-checked handler.
type ActionType int

const (
	ActionRevealInitial ActionType = iota
	ActionDrawPile
	ActionDrawDiscard
	ActionReplaceCard
	ActionDiscardAndReveal
	ActionDiscardDrawn
	ActionRevealHidden
	ActionUndoDrawDiscard
	ActionPerformSwap
	ActionActivateBlackHole
)

var actionNames = map[ActionType]string{
	ActionRevealInitial:     "reveal_initial",
	ActionDrawPile:          "draw_pile",
	ActionDrawDiscard:       "draw_discard",
	ActionReplaceCard:       "replace_card",
	ActionDiscardAndReveal:  "discard_and_reveal",
	ActionDiscardDrawn:      "discard_drawn",
	ActionRevealHidden:      "reveal_hidden",
	ActionUndoDrawDiscard:   "undo_draw_discard",
	ActionPerformSwap:       "perform_swap",
	ActionActivateBlackHole: "activate_black_hole",
}

var actionTypes = func() map[string]ActionType {
	m := make(map[string]ActionType, len(actionNames))
	for t, name := range actionNames {
		m[name] = t
	}
	return m
}()

func (a ActionType) String() string {
	if name, ok := actionNames[a]; ok {
		return name
	}
	return fmt.Sprintf("action_%d", int(a))
}

// ParseActionType maps a wire action string onto its variant.
func ParseActionType(name string) (ActionType, bool) {
	t, ok := actionTypes[name]
	return t, ok
}

// Action is one decoded game action. Only the fields relevant to the
// variant are read.
type Action struct {
	Type         ActionType
	Slots        [2]int // reveal_initial
	Slot         int    // replace_card, discard_and_reveal, reveal_hidden
	SrcSlot      int    // perform_swap
	TargetPlayer int    // perform_swap
	TargetSlot   int    // perform_swap
}

// RoundResult carries the round-over bookkeeping published with
// game_over.
type RoundResult struct {
	Scores      map[string]int `json:"scores"`
	Totals      map[string]int `json:"totals"`
	Chest       map[string]int `json:"chestResults"`
	MatchOver   bool           `json:"matchOver"`
	Winner      string         `json:"winner,omitempty"`
	WinnerScore int            `json:"winnerScore,omitempty"`
}

// ApplyAction validates and applies one action to the room's game state
// atomically. On error the room's prior state is left untouched and
// returned state is nil; on success the updated room copy is returned,
// plus a RoundResult when the action finished the round.
func (m *Manager) ApplyAction(code, connID string, action Action) (*Room, *RoundResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	room, ok := m.rooms[code]
	if !ok {
		return nil, nil, ErrRoomNotFound
	}
	if room.State != StatePlaying || room.Game == nil {
		return nil, nil, ErrNoActiveGame
	}

	state := room.Game
	playerIdx := -1
	for i, p := range state.Players {
		if p.ID == connID {
			playerIdx = i
			break
		}
	}
	if playerIdx < 0 {
		return nil, nil, ErrNotInRoom
	}

	var err error
	switch action.Type {
	case ActionRevealInitial:
		err = state.RevealInitialCards(playerIdx, action.Slots)
	case ActionDrawPile:
		err = state.DrawFromPile(playerIdx, m.rng)
	case ActionDrawDiscard:
		err = state.DrawFromDiscard(playerIdx)
	case ActionReplaceCard:
		err = state.ReplaceCard(playerIdx, action.Slot)
	case ActionDiscardAndReveal:
		err = state.DiscardAndReveal(playerIdx, action.Slot)
	case ActionDiscardDrawn:
		err = state.DiscardDrawn(playerIdx)
	case ActionRevealHidden:
		err = state.RevealHidden(playerIdx, action.Slot)
	case ActionUndoDrawDiscard:
		err = state.UndoDrawFromDiscard(playerIdx)
	case ActionPerformSwap:
		err = state.PerformSwap(playerIdx, action.SrcSlot, action.TargetPlayer, action.TargetSlot)
	case ActionActivateBlackHole:
		err = state.ResolveBlackHole(playerIdx, m.rng)
	default:
		err = fmt.Errorf("unknown action type %d", int(action.Type))
	}
	if err != nil {
		return nil, nil, err
	}

	room.replay.Record(action.Type.String(), state)

	var result *RoundResult
	if state.Phase == game.PhaseFinished {
		result = m.finishRound(room)
	}

	return room.clone(), result, nil
}

// finishRound folds the finished round into the score ledger and either
// ends the match or returns the room to the between-rounds lobby.
// Caller holds the manager lock.
// playerKey is the scoring identity of a player: the account id when
// known, otherwise the connection id of a guest.
func playerKey(p *game.Player) string {
	if p.DBID != "" {
		return p.DBID
	}
	return p.ID
}

func (m *Manager) finishRound(room *Room) *RoundResult {
	state := room.Game
	chest := state.ChestResults(room.chestSeed)
	scores := state.FinalScores(chest)

	result := &RoundResult{
		Scores: make(map[string]int, len(scores)),
		Totals: make(map[string]int),
		Chest:  chest,
	}

	for i, p := range state.Players {
		key := playerKey(p)
		result.Scores[key] = scores[i]
		room.TotalScores[key] += scores[i]
	}
	for k, v := range room.TotalScores {
		result.Totals[k] = v
	}

	matchOver := false
	for _, total := range room.TotalScores {
		if total >= m.cfg.ScoreLimit {
			matchOver = true
			break
		}
	}

	if matchOver {
		room.State = StateMatchOver
		// Seat order breaks ties, so the winner is the same on every
		// replay of the match.
		first := true
		for _, p := range state.Players {
			key := playerKey(p)
			total := room.TotalScores[key]
			if first || total < result.WinnerScore {
				result.Winner = key
				result.WinnerScore = total
				first = false
			}
		}
		result.MatchOver = true
		m.logger.Info("match over",
			zap.String("code", room.Code),
			zap.String("winner", result.Winner),
			zap.Int("score", result.WinnerScore),
		)
	} else {
		room.State = StateLobby
		m.logger.Info("round over",
			zap.String("code", room.Code),
			zap.Int("round", room.Round),
		)
	}

	return result
}
