package game

import (
	"crypto/sha256"
	"strconv"
)

// ChestSwing is the fixed magnitude of a chest card's hidden outcome.
const ChestSwing = 15

// FinalScores sums the revealed card values of every hand. Chest cards
// resolve through the supplied outcome map (see ChestResults). The
// finishing player's score is doubled only when it is at least the
// minimum of all other scores and strictly positive; a non-positive
// finisher score is never penalized.
func (g *GameState) FinalScores(chest map[string]int) []int {
	scores := make([]int, len(g.Players))
	for i, p := range g.Players {
		sum := 0
		for _, c := range p.Hand {
			if c == nil || !c.Revealed {
				continue
			}
			if c.Special == SpecialChest {
				sum += chest[c.ID]
			} else {
				sum += c.Value
			}
		}
		scores[i] = sum
	}

	f := g.FinishingPlayer
	if f < 0 || f >= len(scores) || len(scores) < 2 {
		return scores
	}
	minOther := 0
	first := true
	for i, s := range scores {
		if i == f {
			continue
		}
		if first || s < minOther {
			minOther = s
			first = false
		}
	}
	if scores[f] > 0 && scores[f] >= minOther {
		scores[f] *= 2
	}
	return scores
}

// ChestResults assigns every chest card in play a fixed +/-ChestSwing
// outcome derived from a hash of the seed and card ID. The same seed and
// cards always reproduce the same resolution, so the server and every
// client agree without transmitting the outcomes.
func (g *GameState) ChestResults(seed int64) map[string]int {
	out := make(map[string]int)
	for _, p := range g.Players {
		for _, c := range p.Hand {
			if c != nil && c.Special == SpecialChest {
				out[c.ID] = chestOutcome(seed, c.ID)
			}
		}
	}
	return out
}

func chestOutcome(seed int64, cardID string) int {
	h := sha256.Sum256([]byte(strconv.FormatInt(seed, 10) + ":" + cardID))
	if h[0]&1 == 0 {
		return ChestSwing
	}
	return -ChestSwing
}
