package game

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func plainCard(v int) *Card {
	return &Card{ID: uuid.NewString(), Value: v, Color: valueColor(v)}
}

func actionCard(s SpecialType) *Card {
	return &Card{ID: uuid.NewString(), Special: s, Color: ColorSpecial}
}

// playingState builds a deterministic two-player state in PLAYING with
// all hand cards hidden, no column pre-matched, a three-card draw pile
// and a single revealed discard.
func playingState() *GameState {
	p0 := &Player{ID: "conn-0", Name: "Alice"}
	p1 := &Player{ID: "conn-1", Name: "Bob"}
	for i := 0; i < HandSize; i++ {
		p0.Hand[i] = plainCard(i % 5)
		p1.Hand[i] = plainCard((i + 1) % 5)
	}

	g := &GameState{
		Mode:            ModeStandard,
		Players:         []*Player{p0, p1},
		Phase:           PhasePlaying,
		TurnPhase:       TurnDraw,
		CurrentPlayer:   0,
		FinishingPlayer: -1,
		Round:           1,
	}
	g.DrawPile = []*Card{plainCard(7), plainCard(6), plainCard(5)}
	g.pushDiscard(plainCard(9))
	return g
}

func TestRevealInitialCardsFlowAndFirstTurn(t *testing.T) {
	state, err := InitializeGame(newTestPlayers(2), ModeStandard, 1, rand.New(rand.NewSource(3)))
	require.NoError(t, err)

	require.NoError(t, state.RevealInitialCards(0, [2]int{0, 1}))
	assert.Equal(t, PhaseInitialReveal, state.Phase, "phase must not change until all players revealed")

	// Same slot twice is rejected.
	err = state.RevealInitialCards(1, [2]int{4, 4})
	assert.ErrorIs(t, err, ErrInvalidSlot)

	require.NoError(t, state.RevealInitialCards(1, [2]int{3, 7}))
	assert.Equal(t, PhasePlaying, state.Phase)
	assert.Equal(t, TurnDraw, state.TurnPhase)

	// First turn goes to the higher revealed sum, ties to lowest index.
	s0 := state.Players[0].Hand.RevealedSum()
	s1 := state.Players[1].Hand.RevealedSum()
	want := 0
	if s1 > s0 {
		want = 1
	}
	assert.Equal(t, want, state.CurrentPlayer)

	// A third reveal for the same player is rejected.
	err = state.RevealInitialCards(0, [2]int{2, 3})
	assert.ErrorIs(t, err, ErrWrongPhase)
}

func TestDrawFromPileAndReplace(t *testing.T) {
	g := playingState()
	r := rand.New(rand.NewSource(1))

	drawn := g.DrawPile[len(g.DrawPile)-1]
	require.NoError(t, g.DrawFromPile(0, r))
	assert.Equal(t, drawn, g.DrawnCard)
	assert.True(t, g.DrawnCard.Revealed)
	assert.Equal(t, TurnReplaceOrDiscard, g.TurnPhase)

	// Second draw in the same turn is illegal.
	assert.ErrorIs(t, g.DrawFromPile(0, r), ErrWrongPhase)

	replaced := g.Players[0].Hand[2]
	require.NoError(t, g.ReplaceCard(0, 2))
	assert.Equal(t, drawn, g.Players[0].Hand[2])
	assert.True(t, g.Players[0].Hand[2].Revealed)
	assert.Equal(t, replaced, g.discardTop())
	assert.True(t, g.discardTop().Revealed)

	// Turn passed to the other player.
	assert.Equal(t, 1, g.CurrentPlayer)
	assert.Equal(t, TurnDraw, g.TurnPhase)
	assert.Nil(t, g.DrawnCard)
}

func TestDrawNotYourTurn(t *testing.T) {
	g := playingState()
	assert.ErrorIs(t, g.DrawFromPile(1, rand.New(rand.NewSource(1))), ErrNotYourTurn)
	assert.ErrorIs(t, g.DrawFromDiscard(1), ErrNotYourTurn)
}

func TestDrawFromDiscardRules(t *testing.T) {
	g := playingState()

	top := g.discardTop()
	require.NoError(t, g.DrawFromDiscard(0))
	assert.Equal(t, top, g.DrawnCard)
	assert.True(t, g.DrawnFromDiscard)
	assert.Equal(t, TurnReplaceOrDiscard, g.TurnPhase)

	// Discarding a card taken from the discard pile is pointless but the
	// player may undo the take instead.
	require.NoError(t, g.UndoDrawFromDiscard(0))
	assert.Nil(t, g.DrawnCard)
	assert.Equal(t, TurnDraw, g.TurnPhase)
	assert.Equal(t, top, g.discardTop())

	// Board-illegal cards can never be taken from the discard pile.
	g.pushDiscard(actionCard(SpecialSwap))
	assert.ErrorIs(t, g.DrawFromDiscard(0), ErrIllegalDiscardTarget)

	g.DiscardPile = g.DiscardPile[:len(g.DiscardPile)-1]
	g.pushDiscard(actionCard(SpecialBlackHole))
	assert.ErrorIs(t, g.DrawFromDiscard(0), ErrIllegalDiscardTarget)
}

func TestDrawFromEmptyDiscard(t *testing.T) {
	g := playingState()
	g.DiscardPile = nil
	assert.ErrorIs(t, g.DrawFromDiscard(0), ErrEmptyPile)
}

func TestDrawPileAutoReshuffle(t *testing.T) {
	g := playingState()
	g.DrawPile = nil
	g.pushDiscard(plainCard(1))
	g.pushDiscard(plainCard(2))
	top := g.discardTop()

	require.NoError(t, g.DrawFromPile(0, rand.New(rand.NewSource(4))))
	assert.NotNil(t, g.DrawnCard)
	// The discard keeps only its former top.
	require.Len(t, g.DiscardPile, 1)
	assert.Equal(t, top, g.discardTop())

	// With a single discard card left there is nothing to recycle.
	g2 := playingState()
	g2.DrawPile = nil
	g2.DiscardPile = g2.DiscardPile[:1]
	assert.ErrorIs(t, g2.DrawFromPile(0, rand.New(rand.NewSource(4))), ErrEmptyPile)
}

func TestMaxPenaltyDrawForcesReplace(t *testing.T) {
	g := playingState()
	g.DrawPile = append(g.DrawPile, plainCard(MaxPenaltyValue(g.Mode)))

	require.NoError(t, g.DrawFromPile(0, rand.New(rand.NewSource(1))))
	assert.Equal(t, TurnMustReplace, g.TurnPhase)

	// Discarding is no longer an option.
	assert.ErrorIs(t, g.DiscardDrawn(0), ErrWrongPhase)
	assert.ErrorIs(t, g.DiscardAndReveal(0, 0), ErrWrongPhase)

	// Placing the max-penalty card locks its slot. The tick at the end
	// of the placing turn skips the fresh lock.
	require.NoError(t, g.ReplaceCard(0, 4))
	placed := g.Players[0].Hand[4]
	assert.Equal(t, MaxPenaltyValue(g.Mode), placed.Value)
	assert.Equal(t, maxPenaltyLockTurns, placed.LockCount)
}

func TestPlacedLockHoldsForThreeFullTurns(t *testing.T) {
	g := playingState()
	g.DrawPile = append(g.DrawPile, plainCard(MaxPenaltyValue(g.Mode)))
	r := rand.New(rand.NewSource(2))

	require.NoError(t, g.DrawFromPile(0, r))
	require.NoError(t, g.ReplaceCard(0, 4))
	placed := g.Players[0].Hand[4]
	require.Equal(t, maxPenaltyLockTurns, placed.LockCount)

	// The slot refuses replacement on each of the holder's next three
	// turns, then opens again.
	for turn := 0; turn < maxPenaltyLockTurns; turn++ {
		require.NoError(t, g.DrawFromPile(1, r))
		require.NoError(t, g.ReplaceCard(1, 6))
		require.NoError(t, g.DrawFromPile(0, r))
		assert.ErrorIs(t, g.ReplaceCard(0, 4), ErrLockedCard)
		require.NoError(t, g.ReplaceCard(0, 5))
	}
	require.NoError(t, g.DrawFromPile(1, r))
	require.NoError(t, g.ReplaceCard(1, 6))
	require.NoError(t, g.DrawFromPile(0, r))
	assert.NoError(t, g.ReplaceCard(0, 4))
}

func TestMaxPenaltyTakenFromDiscardForcesReplace(t *testing.T) {
	g := playingState()
	g.pushDiscard(plainCard(MaxPenaltyValue(g.Mode)))

	require.NoError(t, g.DrawFromDiscard(0))
	assert.Equal(t, TurnMustReplace, g.TurnPhase)
	assert.ErrorIs(t, g.UndoDrawFromDiscard(0), ErrWrongPhase)
}

func TestLockedSlotRefusesActions(t *testing.T) {
	g := playingState()
	g.Players[0].Hand[3].LockCount = 2
	g.Players[0].Hand[3].Revealed = true

	require.NoError(t, g.DrawFromPile(0, rand.New(rand.NewSource(1))))
	assert.ErrorIs(t, g.ReplaceCard(0, 3), ErrLockedCard)

	// Locked hidden slot cannot be revealed either.
	g2 := playingState()
	g2.Players[0].Hand[6].LockCount = 1
	require.NoError(t, g2.DrawFromPile(0, rand.New(rand.NewSource(1))))
	assert.ErrorIs(t, g2.DiscardAndReveal(0, 6), ErrLockedCard)
}

func TestLockCountDecrementsPerTurn(t *testing.T) {
	g := playingState()
	locked := g.Players[0].Hand[3]
	locked.LockCount = 3
	locked.Revealed = true

	require.NoError(t, g.DrawFromPile(0, rand.New(rand.NewSource(1))))
	require.NoError(t, g.ReplaceCard(0, 5))
	assert.Equal(t, 2, locked.LockCount)

	// The other player's turn must not tick player 0's locks.
	require.NoError(t, g.DrawFromPile(1, rand.New(rand.NewSource(1))))
	require.NoError(t, g.ReplaceCard(1, 5))
	assert.Equal(t, 2, locked.LockCount)
}

func TestDiscardDrawnThenMustReveal(t *testing.T) {
	g := playingState()
	require.NoError(t, g.DrawFromPile(0, rand.New(rand.NewSource(1))))
	drawn := g.DrawnCard

	require.NoError(t, g.DiscardDrawn(0))
	assert.Equal(t, drawn, g.discardTop())
	assert.Equal(t, TurnMustReveal, g.TurnPhase)

	// Still player 0's move; drawing again is illegal.
	assert.ErrorIs(t, g.DrawFromPile(0, rand.New(rand.NewSource(1))), ErrWrongPhase)

	require.NoError(t, g.RevealHidden(0, 8))
	assert.True(t, g.Players[0].Hand[8].Revealed)
	assert.Equal(t, 1, g.CurrentPlayer)
}

func TestDiscardWithResolvedHandEndsTurn(t *testing.T) {
	g := playingState()
	for _, c := range g.Players[0].Hand {
		c.Revealed = true
	}

	require.NoError(t, g.DrawFromPile(0, rand.New(rand.NewSource(1))))
	require.NoError(t, g.DiscardDrawn(0))

	// With nothing left to reveal the discard ends the turn instead of
	// demanding a reveal the player cannot perform.
	assert.Equal(t, PhaseFinalRound, g.Phase)
	assert.Equal(t, 0, g.FinishingPlayer)
	assert.Equal(t, 1, g.CurrentPlayer)
	assert.Equal(t, TurnDraw, g.TurnPhase)
}

func TestSwapVictimWithResolvedHandCanFinishTurn(t *testing.T) {
	g := playingState()
	for i, c := range g.Players[1].Hand {
		if i != 0 {
			c.Revealed = true
		}
	}
	g.Players[0].Hand[0].Revealed = true

	// Player 0's swap takes player 1's last hidden card and hands back a
	// revealed one, resolving player 1's grid mid-round.
	g.TurnPhase = TurnSpecialActionSwap
	require.NoError(t, g.PerformSwap(0, 0, 1, 0))
	require.Equal(t, PhasePlaying, g.Phase)
	require.Equal(t, 1, g.CurrentPlayer)
	require.True(t, g.Players[1].Hand.Resolved())

	require.NoError(t, g.DrawFromPile(1, rand.New(rand.NewSource(1))))
	require.NoError(t, g.DiscardDrawn(1))

	assert.Equal(t, PhaseFinalRound, g.Phase)
	assert.Equal(t, 1, g.FinishingPlayer)
	assert.Equal(t, 0, g.CurrentPlayer)
	assert.Equal(t, TurnDraw, g.TurnPhase)
}

func TestDiscardAndRevealOneShot(t *testing.T) {
	g := playingState()
	require.NoError(t, g.DrawFromPile(0, rand.New(rand.NewSource(1))))
	drawn := g.DrawnCard

	require.NoError(t, g.DiscardAndReveal(0, 9))
	assert.Equal(t, drawn, g.discardTop())
	assert.True(t, g.Players[0].Hand[9].Revealed)
	assert.Equal(t, 1, g.CurrentPlayer)

	// Revealing an already revealed slot is rejected up front.
	g2 := playingState()
	g2.Players[0].Hand[9].Revealed = true
	require.NoError(t, g2.DrawFromPile(0, rand.New(rand.NewSource(1))))
	assert.ErrorIs(t, g2.DiscardAndReveal(0, 9), ErrInvalidSlot)
}

func TestSwapCardCannotBePlacedOrToppedOnDiscard(t *testing.T) {
	g := playingState()
	g.DrawPile = append(g.DrawPile, actionCard(SpecialSwap))
	require.NoError(t, g.DrawFromPile(0, rand.New(rand.NewSource(1))))

	assert.ErrorIs(t, g.ReplaceCard(0, 0), ErrIllegalSpecialPlacement)
	assert.ErrorIs(t, g.DiscardAndReveal(0, 0), ErrIllegalDiscardTarget)
}

func TestSwapActionFlow(t *testing.T) {
	g := playingState()
	swap := actionCard(SpecialSwap)
	g.DrawPile = append(g.DrawPile, swap)
	require.NoError(t, g.DrawFromPile(0, rand.New(rand.NewSource(1))))

	// DiscardDrawn on a swap card triggers the action instead of a reveal.
	require.NoError(t, g.DiscardDrawn(0))
	assert.Equal(t, TurnSpecialActionSwap, g.TurnPhase)
	assert.Equal(t, 0, g.CurrentPlayer, "swap resolution stays on the same player")
	assert.Nil(t, g.DrawnCard)

	// The swap card is buried at the bottom, never the visible top.
	assert.Equal(t, swap, g.DiscardPile[0])
	assert.False(t, swap.Revealed)
	assert.NotEqual(t, swap, g.discardTop())

	src := g.Players[0].Hand[1]
	dst := g.Players[1].Hand[10]
	require.NoError(t, g.PerformSwap(0, 1, 1, 10))
	assert.Equal(t, dst, g.Players[0].Hand[1])
	assert.Equal(t, src, g.Players[1].Hand[10])
	assert.Equal(t, 1, g.CurrentPlayer)
	assert.Equal(t, TurnDraw, g.TurnPhase)
}

func TestPerformSwapGuards(t *testing.T) {
	g := playingState()
	assert.ErrorIs(t, g.PerformSwap(0, 0, 1, 0), ErrWrongPhase)

	g.TurnPhase = TurnSpecialActionSwap
	g.Players[1].Hand[0].LockCount = 1
	assert.ErrorIs(t, g.PerformSwap(0, 0, 1, 0), ErrLockedCard)
}

func TestSwapLandingAppliesLockRule(t *testing.T) {
	g := playingState()
	g.TurnPhase = TurnSpecialActionSwap

	maxCard := plainCard(MaxPenaltyValue(g.Mode))
	maxCard.Revealed = true
	g.Players[0].Hand[0] = maxCard
	g.Players[1].Hand[0].Revealed = true

	require.NoError(t, g.PerformSwap(0, 0, 1, 0))
	// The max-penalty card landed in player 1's hand and locks there.
	assert.Equal(t, maxPenaltyLockTurns, g.Players[1].Hand[0].LockCount)
}

func TestBlackHoleDrawAndResolution(t *testing.T) {
	g := playingState()
	hole := actionCard(SpecialBlackHole)
	g.DrawPile = append(g.DrawPile, hole)
	g.pushDiscard(plainCard(4))
	discardSize := len(g.DiscardPile)

	require.NoError(t, g.DrawFromPile(0, rand.New(rand.NewSource(1))))
	assert.Equal(t, TurnResolveBlackHole, g.TurnPhase)

	// The black hole must be activated, not discarded or placed.
	assert.ErrorIs(t, g.DiscardDrawn(0), ErrWrongPhase)
	assert.ErrorIs(t, g.ReplaceCard(0, 0), ErrWrongPhase)

	pileBefore := len(g.DrawPile)
	require.NoError(t, g.ResolveBlackHole(0, rand.New(rand.NewSource(2))))

	assert.Len(t, g.DiscardPile, 0)
	assert.Equal(t, pileBefore+discardSize+1, len(g.DrawPile))
	for _, c := range g.DrawPile {
		assert.False(t, c.Revealed)
	}
	assert.Nil(t, g.DrawnCard)
	// Turn ended immediately.
	assert.Equal(t, 1, g.CurrentPlayer)
	assert.Equal(t, TurnDraw, g.TurnPhase)
}

func TestColumnClearing(t *testing.T) {
	reveal := func(c *Card) *Card {
		c.Revealed = true
		return c
	}

	t.Run("three equal values clear", func(t *testing.T) {
		g := playingState()
		for row := 0; row < HandRows; row++ {
			g.Players[0].Hand[row] = reveal(plainCard(7))
		}
		discardBefore := len(g.DiscardPile)

		removed := g.CheckAndRemoveColumns()
		assert.Equal(t, 1, removed)
		for row := 0; row < HandRows; row++ {
			assert.Nil(t, g.Players[0].Hand[row])
		}
		assert.Equal(t, discardBefore+HandRows, len(g.DiscardPile))
	})

	t.Run("one wildcard and two equal clear", func(t *testing.T) {
		g := playingState()
		g.Players[0].Hand[0] = reveal(plainCard(3))
		g.Players[0].Hand[1] = reveal(actionCard(SpecialWild))
		g.Players[0].Hand[2] = reveal(plainCard(3))

		assert.Equal(t, 1, g.CheckAndRemoveColumns())
		assert.Nil(t, g.Players[0].Hand[1])
	})

	t.Run("two wildcards always clear", func(t *testing.T) {
		g := playingState()
		g.Players[0].Hand[0] = reveal(actionCard(SpecialWild))
		g.Players[0].Hand[1] = reveal(actionCard(SpecialWild))
		g.Players[0].Hand[2] = reveal(plainCard(11))

		assert.Equal(t, 1, g.CheckAndRemoveColumns())
	})

	t.Run("unequal values never clear", func(t *testing.T) {
		g := playingState()
		g.Players[0].Hand[0] = reveal(plainCard(3))
		g.Players[0].Hand[1] = reveal(plainCard(4))
		g.Players[0].Hand[2] = reveal(plainCard(3))

		assert.Equal(t, 0, g.CheckAndRemoveColumns())
		assert.NotNil(t, g.Players[0].Hand[1])
	})

	t.Run("hidden card blocks clearing", func(t *testing.T) {
		g := playingState()
		g.Players[0].Hand[0] = reveal(plainCard(2))
		g.Players[0].Hand[1] = plainCard(2)
		g.Players[0].Hand[2] = reveal(plainCard(2))

		assert.Equal(t, 0, g.CheckAndRemoveColumns())
	})
}

func TestFinalRoundAndFinish(t *testing.T) {
	g := playingState()

	// Player 0 has everything but one slot revealed, with no matching
	// columns, so the next reveal finishes the hand.
	for i, c := range g.Players[0].Hand {
		if i != 8 {
			c.Revealed = true
		}
	}

	require.NoError(t, g.DrawFromPile(0, rand.New(rand.NewSource(1))))
	require.NoError(t, g.DiscardAndReveal(0, 8))

	assert.Equal(t, PhaseFinalRound, g.Phase)
	assert.Equal(t, 0, g.FinishingPlayer)
	assert.Equal(t, 1, g.CurrentPlayer, "remaining players get one last turn")

	// Player 1 takes the final turn; play cycling back to the finisher
	// ends the round.
	require.NoError(t, g.DrawFromPile(1, rand.New(rand.NewSource(1))))
	require.NoError(t, g.ReplaceCard(1, 0))

	assert.Equal(t, PhaseFinished, g.Phase)
	for _, p := range g.Players {
		assert.True(t, p.Hand.Resolved(), "all hands revealed at round end")
	}

	// No further actions are accepted.
	err := g.DrawFromPile(1, rand.New(rand.NewSource(1)))
	assert.True(t, errors.Is(err, ErrWrongPhase) || errors.Is(err, ErrNotYourTurn))
}
