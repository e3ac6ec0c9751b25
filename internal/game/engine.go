package game

import (
	"fmt"
	"math/rand"
)

// applyLockRule pins the slot for three of the holder's turns when the
// landed card shows the mode's maximum penalty value. Locks applied
// during a turn are tracked so that turn's own tick does not consume
// one of the three protected turns.
func (g *GameState) applyLockRule(c *Card) {
	if c.Special == SpecialNone && c.Value == MaxPenaltyValue(g.Mode) {
		c.LockCount = maxPenaltyLockTurns
		if g.Phase == PhasePlaying || g.Phase == PhaseFinalRound {
			g.freshLocks = append(g.freshLocks, c)
		}
	}
}

func (g *GameState) lockedThisTurn(c *Card) bool {
	for _, fresh := range g.freshLocks {
		if fresh == c {
			return true
		}
	}
	return false
}

// revealCard flips a card face-up and applies the lock-on-reveal rule.
func (g *GameState) revealCard(c *Card) {
	c.Revealed = true
	g.applyLockRule(c)
}

func (g *GameState) requirePlayer(playerIdx int) error {
	if playerIdx < 0 || playerIdx >= len(g.Players) {
		return fmt.Errorf("player index %d out of range: %w", playerIdx, ErrInvalidSlot)
	}
	return nil
}

func (g *GameState) requireTurn(playerIdx int) error {
	if err := g.requirePlayer(playerIdx); err != nil {
		return err
	}
	if g.Phase != PhasePlaying && g.Phase != PhaseFinalRound {
		return ErrWrongPhase
	}
	if playerIdx != g.CurrentPlayer {
		return ErrNotYourTurn
	}
	return nil
}

func (g *GameState) requireSlot(hand *Hand, slot int) (*Card, error) {
	if slot < 0 || slot >= HandSize {
		return nil, ErrInvalidSlot
	}
	return hand[slot], nil
}

// RevealInitialCards reveals a player's opening pair of cards during
// INITIAL_REVEAL. Once every player has revealed exactly two, the round
// moves to PLAYING and the player with the highest revealed sum takes
// the first turn, ties broken by lowest seat index.
func (g *GameState) RevealInitialCards(playerIdx int, slots [2]int) error {
	if err := g.requirePlayer(playerIdx); err != nil {
		return err
	}
	if g.Phase != PhaseInitialReveal {
		return ErrWrongPhase
	}
	if slots[0] == slots[1] {
		return fmt.Errorf("initial reveal requires two distinct slots: %w", ErrInvalidSlot)
	}

	player := g.Players[playerIdx]
	if player.Hand.RevealedCount() >= InitialReveals {
		return ErrWrongPhase
	}

	cards := make([]*Card, 2)
	for i, slot := range slots {
		c, err := g.requireSlot(&player.Hand, slot)
		if err != nil {
			return err
		}
		if c == nil || c.Revealed {
			return ErrInvalidSlot
		}
		cards[i] = c
	}

	for _, c := range cards {
		g.revealCard(c)
	}

	for _, p := range g.Players {
		if p.Hand.RevealedCount() < InitialReveals {
			return nil
		}
	}

	g.Phase = PhasePlaying
	g.TurnPhase = TurnDraw
	best, bestSum := 0, g.Players[0].Hand.RevealedSum()
	for i := 1; i < len(g.Players); i++ {
		if sum := g.Players[i].Hand.RevealedSum(); sum > bestSum {
			best, bestSum = i, sum
		}
	}
	g.CurrentPlayer = best
	return nil
}

// DrawFromPile pops the top of the draw pile into the drawn-card slot.
// An exhausted draw pile is rebuilt by shuffling the discard pile minus
// its top card; the supplied source drives that reshuffle. Drawing the
// maximum penalty value forces MUST_REPLACE; drawing a black hole card
// forces RESOLVE_BLACK_HOLE.
func (g *GameState) DrawFromPile(playerIdx int, r *rand.Rand) error {
	if err := g.requireTurn(playerIdx); err != nil {
		return err
	}
	if g.TurnPhase != TurnDraw {
		return ErrWrongPhase
	}

	if len(g.DrawPile) == 0 {
		if len(g.DiscardPile) <= 1 {
			return ErrEmptyPile
		}
		recycled := g.DiscardPile[:len(g.DiscardPile)-1]
		top := g.DiscardPile[len(g.DiscardPile)-1]
		for _, c := range recycled {
			c.Revealed = false
		}
		ShuffleDeck(recycled, r)
		g.DrawPile = append(g.DrawPile, recycled...)
		g.DiscardPile = []*Card{top}
	}

	card := g.DrawPile[len(g.DrawPile)-1]
	g.DrawPile = g.DrawPile[:len(g.DrawPile)-1]
	card.Revealed = true
	g.DrawnCard = card
	g.DrawnFromDiscard = false

	switch {
	case card.Special == SpecialBlackHole:
		g.TurnPhase = TurnResolveBlackHole
	case card.Special == SpecialNone && card.Value == MaxPenaltyValue(g.Mode):
		g.TurnPhase = TurnMustReplace
	default:
		g.TurnPhase = TurnReplaceOrDiscard
	}
	return nil
}

// DrawFromDiscard takes the top discard into the drawn-card slot. Swap
// and black hole cards are never legal targets; the maximum penalty
// value forces MUST_REPLACE.
func (g *GameState) DrawFromDiscard(playerIdx int) error {
	if err := g.requireTurn(playerIdx); err != nil {
		return err
	}
	if g.TurnPhase != TurnDraw {
		return ErrWrongPhase
	}
	top := g.discardTop()
	if top == nil {
		return ErrEmptyPile
	}
	if top.BoardIllegal() {
		return ErrIllegalDiscardTarget
	}

	g.DiscardPile = g.DiscardPile[:len(g.DiscardPile)-1]
	g.DrawnCard = top
	g.DrawnFromDiscard = true
	if top.Special == SpecialNone && top.Value == MaxPenaltyValue(g.Mode) {
		g.TurnPhase = TurnMustReplace
	} else {
		g.TurnPhase = TurnReplaceOrDiscard
	}
	return nil
}

// UndoDrawFromDiscard returns a card taken from the discard pile before
// any further action was committed, restoring the pre-draw turn state.
func (g *GameState) UndoDrawFromDiscard(playerIdx int) error {
	if err := g.requireTurn(playerIdx); err != nil {
		return err
	}
	if g.TurnPhase != TurnReplaceOrDiscard || !g.DrawnFromDiscard || g.DrawnCard == nil {
		return ErrWrongPhase
	}

	g.pushDiscard(g.DrawnCard)
	g.DrawnCard = nil
	g.DrawnFromDiscard = false
	g.TurnPhase = TurnDraw
	return nil
}

// ReplaceCard swaps the drawn card into the given slot and moves the
// previous occupant to the discard pile. Swap and black hole cards can
// never be grid-placed. Filling a cleared slot is legal.
func (g *GameState) ReplaceCard(playerIdx, slot int) error {
	if err := g.requireTurn(playerIdx); err != nil {
		return err
	}
	if g.TurnPhase != TurnReplaceOrDiscard && g.TurnPhase != TurnMustReplace {
		return ErrWrongPhase
	}
	if g.DrawnCard == nil {
		return ErrWrongPhase
	}
	if g.DrawnCard.BoardIllegal() {
		return ErrIllegalSpecialPlacement
	}

	hand := &g.Players[playerIdx].Hand
	prev, err := g.requireSlot(hand, slot)
	if err != nil {
		return err
	}
	if prev != nil && prev.LockCount > 0 {
		return ErrLockedCard
	}

	placed := g.DrawnCard
	placed.Revealed = true
	g.applyLockRule(placed)
	hand[slot] = placed
	g.DrawnCard = nil
	g.DrawnFromDiscard = false

	if prev != nil {
		// A swap card should never sit in a hand, but if one does it must
		// not surface as a playable discard top.
		if prev.Special == SpecialSwap {
			g.buryDiscard(prev)
		} else {
			g.pushDiscard(prev)
		}
	}

	g.endTurn()
	return nil
}

// DiscardDrawn discards the drawn card without touching the grid. A
// normal card lands on the discard top and the player must then reveal a
// hidden slot; a swap card is consumed as an action trigger, entering
// SPECIAL_ACTION_SWAP; a black hole card must be activated, not
// discarded. A hand with nothing left to reveal (possible when a swap
// took the last hidden card) skips the reveal and ends the turn, so the
// player is never trapped in MUST_REVEAL.
func (g *GameState) DiscardDrawn(playerIdx int) error {
	if err := g.requireTurn(playerIdx); err != nil {
		return err
	}
	if g.TurnPhase != TurnReplaceOrDiscard || g.DrawnCard == nil {
		return ErrWrongPhase
	}
	if g.DrawnCard.Special == SpecialBlackHole {
		return ErrIllegalDiscardTarget
	}
	if g.DrawnCard.Special == SpecialSwap {
		return g.PlayActionCard(playerIdx)
	}

	g.pushDiscard(g.DrawnCard)
	g.DrawnCard = nil
	g.DrawnFromDiscard = false
	if g.Players[playerIdx].Hand.Resolved() {
		g.TurnPhase = TurnDraw
		g.endTurn()
		return nil
	}
	g.TurnPhase = TurnMustReveal
	return nil
}

// RevealHidden flips one hidden, unlocked slot after the drawn card was
// discarded, then ends the turn.
func (g *GameState) RevealHidden(playerIdx, slot int) error {
	if err := g.requireTurn(playerIdx); err != nil {
		return err
	}
	if g.TurnPhase != TurnMustReveal {
		return ErrWrongPhase
	}

	hand := &g.Players[playerIdx].Hand
	c, err := g.requireSlot(hand, slot)
	if err != nil {
		return err
	}
	if c == nil || c.Revealed {
		return ErrInvalidSlot
	}
	if c.LockCount > 0 {
		return ErrLockedCard
	}

	g.revealCard(c)
	g.TurnPhase = TurnDraw
	g.endTurn()
	return nil
}

// DiscardAndReveal is the one-shot form of DiscardDrawn + RevealHidden
// for plain value cards.
func (g *GameState) DiscardAndReveal(playerIdx, slot int) error {
	if err := g.requireTurn(playerIdx); err != nil {
		return err
	}
	if g.TurnPhase != TurnReplaceOrDiscard || g.DrawnCard == nil {
		return ErrWrongPhase
	}
	if g.DrawnCard.Special == SpecialBlackHole || g.DrawnCard.Special == SpecialSwap {
		return ErrIllegalDiscardTarget
	}

	hand := &g.Players[playerIdx].Hand
	c, err := g.requireSlot(hand, slot)
	if err != nil {
		return err
	}
	if c == nil || c.Revealed {
		return ErrInvalidSlot
	}
	if c.LockCount > 0 {
		return ErrLockedCard
	}

	g.pushDiscard(g.DrawnCard)
	g.DrawnCard = nil
	g.DrawnFromDiscard = false
	g.revealCard(c)
	g.TurnPhase = TurnDraw
	g.endTurn()
	return nil
}

// PlayActionCard consumes a drawn swap card as a pure action trigger:
// the card is buried at the discard bottom and the turn enters
// SPECIAL_ACTION_SWAP on the same player.
func (g *GameState) PlayActionCard(playerIdx int) error {
	if err := g.requireTurn(playerIdx); err != nil {
		return err
	}
	if g.TurnPhase != TurnReplaceOrDiscard || g.DrawnCard == nil || g.DrawnCard.Special != SpecialSwap {
		return ErrWrongPhase
	}

	g.buryDiscard(g.DrawnCard)
	g.DrawnCard = nil
	g.DrawnFromDiscard = false
	g.TurnPhase = TurnSpecialActionSwap
	return nil
}

// ResolveBlackHole shuffles the entire discard pile together with the
// drawn black hole card back underneath the draw pile, empties the
// discard pile and ends the turn immediately.
func (g *GameState) ResolveBlackHole(playerIdx int, r *rand.Rand) error {
	if err := g.requireTurn(playerIdx); err != nil {
		return err
	}
	if g.TurnPhase != TurnResolveBlackHole || g.DrawnCard == nil {
		return ErrWrongPhase
	}

	recycled := make([]*Card, 0, len(g.DiscardPile)+1)
	recycled = append(recycled, g.DiscardPile...)
	recycled = append(recycled, g.DrawnCard)
	for _, c := range recycled {
		c.Revealed = false
	}
	ShuffleDeck(recycled, r)

	g.DrawPile = append(recycled, g.DrawPile...)
	g.DiscardPile = g.DiscardPile[:0]
	g.DrawnCard = nil
	g.DrawnFromDiscard = false
	g.TurnPhase = TurnDraw
	g.endTurn()
	return nil
}

// PerformSwap exchanges one of the acting player's cards with any card
// in a target hand, in place, then ends the turn. Locked cards on either
// side refuse the swap; the max-penalty lock rule re-applies to whichever
// revealed card lands where.
func (g *GameState) PerformSwap(playerIdx, srcSlot, targetPlayer, targetSlot int) error {
	if err := g.requireTurn(playerIdx); err != nil {
		return err
	}
	if g.TurnPhase != TurnSpecialActionSwap {
		return ErrWrongPhase
	}
	if err := g.requirePlayer(targetPlayer); err != nil {
		return err
	}

	srcHand := &g.Players[playerIdx].Hand
	dstHand := &g.Players[targetPlayer].Hand
	src, err := g.requireSlot(srcHand, srcSlot)
	if err != nil {
		return err
	}
	dst, err := g.requireSlot(dstHand, targetSlot)
	if err != nil {
		return err
	}
	if src == nil || dst == nil {
		return ErrInvalidSlot
	}
	if src.LockCount > 0 || dst.LockCount > 0 {
		return ErrLockedCard
	}

	srcHand[srcSlot], dstHand[targetSlot] = dst, src
	if dst.Revealed {
		g.applyLockRule(dst)
	}
	if src.Revealed {
		g.applyLockRule(src)
	}

	g.TurnPhase = TurnDraw
	g.endTurn()
	return nil
}

// columnMatches applies the wildcard rule: zero wildcards need three
// equal cards, one wildcard needs the other two equal, two or more
// wildcards always match.
func columnMatches(cards [HandRows]*Card) bool {
	plain := make([]*Card, 0, HandRows)
	wilds := 0
	for _, c := range cards {
		if c == nil || !c.Revealed {
			return false
		}
		if c.Special == SpecialWild {
			wilds++
		} else {
			plain = append(plain, c)
		}
	}
	switch wilds {
	case 0:
		return plain[0].Value == plain[1].Value && plain[1].Value == plain[2].Value &&
			plain[0].Special == plain[1].Special && plain[1].Special == plain[2].Special
	case 1:
		return plain[0].Value == plain[1].Value && plain[0].Special == plain[1].Special
	default:
		return true
	}
}

// CheckAndRemoveColumns clears every fully revealed matching column in
// every hand, moving the cleared cards to the discard pile. Swap cards
// among them are buried at the bottom instead of surfacing on top.
// It returns the number of columns removed.
func (g *GameState) CheckAndRemoveColumns() int {
	removed := 0
	for _, p := range g.Players {
		for col := 0; col < HandColumns; col++ {
			var cards [HandRows]*Card
			for row := 0; row < HandRows; row++ {
				cards[row] = p.Hand[col*HandRows+row]
			}
			if !columnMatches(cards) {
				continue
			}
			for row := 0; row < HandRows; row++ {
				c := p.Hand[col*HandRows+row]
				p.Hand[col*HandRows+row] = nil
				if c.Special == SpecialSwap {
					g.buryDiscard(c)
				} else {
					g.pushDiscard(c)
				}
			}
			removed++
		}
	}
	return removed
}

// endTurn finishes the acting player's move: clears matched columns,
// ticks down that player's slot locks, detects the round-finishing hand,
// and advances the seat unless a swap action is still pending. In the
// final round, play returning to the finisher ends the round.
func (g *GameState) endTurn() {
	g.CheckAndRemoveColumns()

	mover := g.Players[g.CurrentPlayer]
	for _, c := range mover.Hand {
		if c != nil && c.LockCount > 0 && !g.lockedThisTurn(c) {
			c.LockCount--
		}
	}
	g.freshLocks = nil

	if g.Phase == PhasePlaying && mover.Hand.Resolved() {
		g.Phase = PhaseFinalRound
		g.FinishingPlayer = g.CurrentPlayer
	}

	if g.TurnPhase == TurnSpecialActionSwap {
		// The same player still has to resolve the swap.
		return
	}

	next := (g.CurrentPlayer + 1) % len(g.Players)
	if g.Phase == PhaseFinalRound && next == g.FinishingPlayer {
		g.Phase = PhaseFinished
		g.revealAll()
		return
	}

	g.CurrentPlayer = next
	g.TurnPhase = TurnDraw
}

// revealAll flips every remaining hand card face-up for scoring.
func (g *GameState) revealAll() {
	for _, p := range g.Players {
		for _, c := range p.Hand {
			if c != nil {
				c.Revealed = true
			}
		}
	}
}
