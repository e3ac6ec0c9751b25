package game

import (
	"encoding/json"
	"fmt"
	"math/rand"
)

// Hand geometry: 12 slots laid out as a 4-column by 3-row grid,
// slot index = column*3 + row. A nil slot is a cleared column slot and
// stays empty for the rest of the round.
const (
	HandSize       = 12
	HandColumns    = 4
	HandRows       = 3
	InitialReveals = 2

	// maxPenaltyLockTurns is how long a max-penalty card pins its slot.
	maxPenaltyLockTurns = 3
)

// Phase is the round-level stage.
type Phase int

const (
	PhaseInitialReveal Phase = iota
	PhasePlaying
	PhaseFinalRound
	PhaseFinished
)

var phaseNames = map[Phase]string{
	PhaseInitialReveal: "INITIAL_REVEAL",
	PhasePlaying:       "PLAYING",
	PhaseFinalRound:    "FINAL_ROUND",
	PhaseFinished:      "FINISHED",
}

func (p Phase) String() string {
	if name, ok := phaseNames[p]; ok {
		return name
	}
	return fmt.Sprintf("PHASE_%d", int(p))
}

func (p Phase) MarshalJSON() ([]byte, error) {
	return []byte(`"` + p.String() + `"`), nil
}

func (p *Phase) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	for v, n := range phaseNames {
		if n == name {
			*p = v
			return nil
		}
	}
	return fmt.Errorf("unknown phase %q", name)
}

// TurnPhase is the sub-state within the current player's turn.
type TurnPhase int

const (
	TurnDraw TurnPhase = iota
	TurnReplaceOrDiscard
	TurnMustReplace
	TurnMustReveal
	TurnSpecialActionSwap
	TurnResolveBlackHole
)

var turnPhaseNames = map[TurnPhase]string{
	TurnDraw:              "DRAW",
	TurnReplaceOrDiscard:  "REPLACE_OR_DISCARD",
	TurnMustReplace:       "MUST_REPLACE",
	TurnMustReveal:        "MUST_REVEAL",
	TurnSpecialActionSwap: "SPECIAL_ACTION_SWAP",
	TurnResolveBlackHole:  "RESOLVE_BLACK_HOLE",
}

func (t TurnPhase) String() string {
	if name, ok := turnPhaseNames[t]; ok {
		return name
	}
	return fmt.Sprintf("TURN_PHASE_%d", int(t))
}

func (t TurnPhase) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.String() + `"`), nil
}

func (t *TurnPhase) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	for v, n := range turnPhaseNames {
		if n == name {
			*t = v
			return nil
		}
	}
	return fmt.Errorf("unknown turn phase %q", name)
}

// Hand is the fixed grid of a player's slots.
type Hand [HandSize]*Card

// RevealedSum is the sum of the values of all revealed cards.
func (h *Hand) RevealedSum() int {
	sum := 0
	for _, c := range h {
		if c != nil && c.Revealed {
			sum += c.Value
		}
	}
	return sum
}

// RevealedCount counts revealed, non-cleared slots.
func (h *Hand) RevealedCount() int {
	n := 0
	for _, c := range h {
		if c != nil && c.Revealed {
			n++
		}
	}
	return n
}

// Resolved reports whether every remaining card in the hand is revealed.
// A fully cleared hand counts as resolved.
func (h *Hand) Resolved() bool {
	for _, c := range h {
		if c != nil && !c.Revealed {
			return false
		}
	}
	return true
}

// Player is one seat in a round. ID is the connection-scoped identity;
// DBID is the stable identity that survives reconnects.
type Player struct {
	ID   string `json:"id"`
	DBID string `json:"dbId,omitempty"`
	Name string `json:"name"`
	Hand Hand   `json:"hand"`
}

// GameState is the full authoritative state of one round. All engine
// transitions validate before mutating, so a returned error means the
// state is unchanged. Randomness only enters through explicit *rand.Rand
// parameters; given identical inputs and draws, two copies of the engine
// produce identical states.
type GameState struct {
	Mode             Mode      `json:"mode"`
	Players          []*Player `json:"players"`
	DrawPile         []*Card   `json:"drawPile"`
	DiscardPile      []*Card   `json:"discardPile"`
	CurrentPlayer    int       `json:"currentPlayerIndex"`
	Phase            Phase     `json:"phase"`
	TurnPhase        TurnPhase `json:"turnPhase"`
	DrawnCard        *Card     `json:"drawnCard"`
	DrawnFromDiscard bool      `json:"drawnFromDiscard"`
	FinishingPlayer  int       `json:"finishingPlayerIndex"`
	Round            int       `json:"roundNumber"`

	// freshLocks holds cards locked during the current transition so the
	// closing tick skips them. Always empty between transitions.
	freshLocks []*Card
}

// DealCards deals 12 face-down cards per player from the subset of the
// deck excluding swap and black hole cards, so no hand starts holding
// one. The excluded cards are shuffled back into the remaining pile.
func DealCards(deck []*Card, numPlayers int, r *rand.Rand) ([]Hand, []*Card, error) {
	legal := make([]*Card, 0, len(deck))
	held := make([]*Card, 0, 8)
	for _, c := range deck {
		if c.BoardIllegal() {
			held = append(held, c)
		} else {
			legal = append(legal, c)
		}
	}

	need := numPlayers * HandSize
	if len(legal) < need {
		return nil, nil, fmt.Errorf("deck has %d dealable cards, need %d: %w", len(legal), need, ErrEmptyPile)
	}

	hands := make([]Hand, numPlayers)
	for p := 0; p < numPlayers; p++ {
		for i := 0; i < HandSize; i++ {
			hands[p][i] = legal[0]
			legal = legal[1:]
		}
	}

	remaining := append(legal, held...)
	ShuffleDeck(remaining, r)
	return hands, remaining, nil
}

// InitializeGame builds and shuffles the deck for the mode, deals every
// player a hand, and flips the starting discard card. Swap and black
// hole cards flipped from the pile are buried at the bottom of the
// discard pile, never visible, until a legal top card is found.
func InitializeGame(players []*Player, mode Mode, round int, r *rand.Rand) (*GameState, error) {
	if len(players) < 2 {
		return nil, fmt.Errorf("need at least 2 players, got %d", len(players))
	}

	deck := CreateDeck(mode)
	ShuffleDeck(deck, r)

	hands, pile, err := DealCards(deck, len(players), r)
	if err != nil {
		return nil, err
	}
	for i := range players {
		players[i].Hand = hands[i]
	}

	state := &GameState{
		Mode:            mode,
		Players:         players,
		DrawPile:        pile,
		DiscardPile:     make([]*Card, 0, len(pile)),
		CurrentPlayer:   0,
		Phase:           PhaseInitialReveal,
		TurnPhase:       TurnDraw,
		FinishingPlayer: -1,
		Round:           round,
	}

	buried := make([]*Card, 0, 4)
	for {
		if len(state.DrawPile) == 0 {
			return nil, fmt.Errorf("draw pile exhausted before a legal discard top was found: %w", ErrEmptyPile)
		}
		top := state.DrawPile[len(state.DrawPile)-1]
		state.DrawPile = state.DrawPile[:len(state.DrawPile)-1]
		if top.BoardIllegal() {
			buried = append(buried, top)
			continue
		}
		top.Revealed = true
		state.DiscardPile = append(state.DiscardPile, buried...)
		state.DiscardPile = append(state.DiscardPile, top)
		break
	}

	return state, nil
}

// Clone returns a deep copy of the state. Room state is never handed
// out by reference; broadcasts and optimistic clients work on copies.
func (g *GameState) Clone() *GameState {
	cloneCard := func(c *Card) *Card {
		if c == nil {
			return nil
		}
		dup := *c
		return &dup
	}
	clonePile := func(pile []*Card) []*Card {
		out := make([]*Card, len(pile))
		for i, c := range pile {
			out[i] = cloneCard(c)
		}
		return out
	}

	dup := &GameState{
		Mode:             g.Mode,
		Players:          make([]*Player, len(g.Players)),
		DrawPile:         clonePile(g.DrawPile),
		DiscardPile:      clonePile(g.DiscardPile),
		CurrentPlayer:    g.CurrentPlayer,
		Phase:            g.Phase,
		TurnPhase:        g.TurnPhase,
		DrawnCard:        cloneCard(g.DrawnCard),
		DrawnFromDiscard: g.DrawnFromDiscard,
		FinishingPlayer:  g.FinishingPlayer,
		Round:            g.Round,
	}
	for i, p := range g.Players {
		cp := &Player{ID: p.ID, DBID: p.DBID, Name: p.Name}
		for slot, c := range p.Hand {
			cp.Hand[slot] = cloneCard(c)
		}
		dup.Players[i] = cp
	}
	return dup
}

// discardTop returns the top of the discard pile, or nil when empty.
func (g *GameState) discardTop() *Card {
	if len(g.DiscardPile) == 0 {
		return nil
	}
	return g.DiscardPile[len(g.DiscardPile)-1]
}

// pushDiscard puts a card face-up on top of the discard pile.
func (g *GameState) pushDiscard(c *Card) {
	c.Revealed = true
	g.DiscardPile = append(g.DiscardPile, c)
}

// buryDiscard hides a card at the bottom of the discard pile, where it is
// never visible or re-examined until a reshuffle recycles it.
func (g *GameState) buryDiscard(c *Card) {
	c.Revealed = false
	g.DiscardPile = append([]*Card{c}, g.DiscardPile...)
}
