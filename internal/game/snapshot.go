package game

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Checksum is a deterministic fingerprint of a game state. The room's
// authoritative copy and an optimistic client copy must produce the same
// checksum after applying the same action sequence; a mismatch means the
// two engines diverged.
type Checksum struct {
	Hash    string `json:"hash"`
	Version int    `json:"version"`
}

// Checksum computes the SHA-256 hash of the canonical representation.
func (g *GameState) Checksum() Checksum {
	sum := sha256.Sum256([]byte(g.canonical()))
	return Checksum{
		Hash:    hex.EncodeToString(sum[:]),
		Version: 1,
	}
}

// canonical builds a deterministic textual representation of the state.
// Hands and piles are ordered structures, so no sorting is needed; the
// representation covers every field that gameplay can observe.
func (g *GameState) canonical() string {
	var buf bytes.Buffer

	drawnID := "-"
	if g.DrawnCard != nil {
		drawnID = g.DrawnCard.ID
	}
	buf.WriteString(fmt.Sprintf("GAME:%s|%d|%s|%s|%d|%s|%t|%d\n",
		g.Mode,
		g.Round,
		g.Phase,
		g.TurnPhase,
		g.CurrentPlayer,
		drawnID,
		g.DrawnFromDiscard,
		g.FinishingPlayer,
	))

	for i, p := range g.Players {
		buf.WriteString(fmt.Sprintf("PLAYER:%d|%s|%s\n", i, p.ID, p.Name))
		for slot, c := range p.Hand {
			if c == nil {
				buf.WriteString(fmt.Sprintf("  SLOT:%d|-\n", slot))
				continue
			}
			buf.WriteString(fmt.Sprintf("  SLOT:%d|%s|%d|%s|%t|%d\n",
				slot, c.ID, c.Value, c.Special, c.Revealed, c.LockCount))
		}
	}

	buf.WriteString("DRAW:")
	for i, c := range g.DrawPile {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(c.ID)
	}
	buf.WriteByte('\n')

	buf.WriteString("DISCARD:")
	for i, c := range g.DiscardPile {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(c.ID)
	}
	buf.WriteByte('\n')

	return buf.String()
}
