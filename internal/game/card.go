package game

import (
	"encoding/json"
	"fmt"
	"math/rand"

	"github.com/google/uuid"
)

// Mode selects the deck distribution table a round is built from.
type Mode int

const (
	ModeStandard Mode = iota
	ModeExtended
)

var modeNames = map[Mode]string{
	ModeStandard: "STANDARD",
	ModeExtended: "EXTENDED",
}

func (m Mode) String() string {
	if name, ok := modeNames[m]; ok {
		return name
	}
	return fmt.Sprintf("MODE_%d", int(m))
}

func (m Mode) MarshalJSON() ([]byte, error) {
	return []byte(`"` + m.String() + `"`), nil
}

func (m *Mode) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	for v, n := range modeNames {
		if n == name {
			*m = v
			return nil
		}
	}
	return fmt.Errorf("unknown mode %q", name)
}

// ParseMode maps a wire mode name back to its Mode. Unknown names fall
// back to the standard deck.
func ParseMode(name string) Mode {
	if name == "EXTENDED" {
		return ModeExtended
	}
	return ModeStandard
}

// SpecialType distinguishes action and special cards. Plain value cards
// are SpecialNone; specials all carry scoring value 0.
type SpecialType int

const (
	SpecialNone SpecialType = iota
	SpecialSwap
	SpecialWild
	SpecialChest
	SpecialBlackHole
)

var specialNames = map[SpecialType]string{
	SpecialNone:      "NONE",
	SpecialSwap:      "SWAP",
	SpecialWild:      "WILD",
	SpecialChest:     "CHEST",
	SpecialBlackHole: "BLACK_HOLE",
}

func (s SpecialType) String() string {
	if name, ok := specialNames[s]; ok {
		return name
	}
	return fmt.Sprintf("SPECIAL_%d", int(s))
}

func (s SpecialType) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

func (s *SpecialType) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	for v, n := range specialNames {
		if n == name {
			*s = v
			return nil
		}
	}
	return fmt.Errorf("unknown special type %q", name)
}

// Color is the display color group of a card face.
type Color int

const (
	ColorDarkBlue Color = iota
	ColorLightBlue
	ColorGreen
	ColorYellow
	ColorRed
	ColorPurple
	ColorBlack
	ColorSpecial
)

var colorNames = map[Color]string{
	ColorDarkBlue:  "DARK_BLUE",
	ColorLightBlue: "LIGHT_BLUE",
	ColorGreen:     "GREEN",
	ColorYellow:    "YELLOW",
	ColorRed:       "RED",
	ColorPurple:    "PURPLE",
	ColorBlack:     "BLACK",
	ColorSpecial:   "SPECIAL",
}

func (c Color) String() string {
	if name, ok := colorNames[c]; ok {
		return name
	}
	return fmt.Sprintf("COLOR_%d", int(c))
}

func (c Color) MarshalJSON() ([]byte, error) {
	return []byte(`"` + c.String() + `"`), nil
}

func (c *Color) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	for v, n := range colorNames {
		if n == name {
			*c = v
			return nil
		}
	}
	return fmt.Errorf("unknown color %q", name)
}

// Card is a single deck card. LockCount > 0 forbids replacing, swapping
// or revealing the slot holding it; it decrements once per elapsed turn
// of the player holding the card.
type Card struct {
	ID        string      `json:"id"`
	Value     int         `json:"value"`
	Special   SpecialType `json:"specialType"`
	Color     Color       `json:"color"`
	Revealed  bool        `json:"isRevealed"`
	LockCount int         `json:"lockCount"`
}

// BoardIllegal reports whether the card may never occupy a hand slot or
// sit face-up on top of the discard pile. Swap and black hole cards are
// pure action triggers.
func (c *Card) BoardIllegal() bool {
	return c.Special == SpecialSwap || c.Special == SpecialBlackHole
}

func valueColor(v int) Color {
	switch {
	case v <= -3:
		return ColorPurple
	case v < 0:
		return ColorDarkBlue
	case v == 0:
		return ColorLightBlue
	case v <= 4:
		return ColorGreen
	case v <= 8:
		return ColorYellow
	case v <= 12:
		return ColorRed
	default:
		return ColorBlack
	}
}

type cardCount struct {
	value   int
	special SpecialType
	count   int
}

// standardTable is the classic 150-card distribution.
var standardTable = []cardCount{
	{value: -2, count: 5},
	{value: -1, count: 10},
	{value: 0, count: 15},
	{value: 1, count: 10},
	{value: 2, count: 10},
	{value: 3, count: 10},
	{value: 4, count: 10},
	{value: 5, count: 10},
	{value: 6, count: 10},
	{value: 7, count: 10},
	{value: 8, count: 10},
	{value: 9, count: 10},
	{value: 10, count: 10},
	{value: 11, count: 10},
	{value: 12, count: 10},
}

// extendedTable is the 156-card variant: a thinner value spread plus six
// negative outliers, six high-penalty cards and the special types.
var extendedTable = []cardCount{
	{value: -5, count: 6},
	{value: -2, count: 5},
	{value: -1, count: 12},
	{value: 0, count: 15},
	{value: 1, count: 8},
	{value: 2, count: 8},
	{value: 3, count: 8},
	{value: 4, count: 8},
	{value: 5, count: 8},
	{value: 6, count: 8},
	{value: 7, count: 8},
	{value: 8, count: 8},
	{value: 9, count: 8},
	{value: 10, count: 8},
	{value: 11, count: 8},
	{value: 12, count: 8},
	{value: 20, count: 6},
	{special: SpecialSwap, count: 4},
	{special: SpecialWild, count: 4},
	{special: SpecialChest, count: 4},
	{special: SpecialBlackHole, count: 4},
}

func deckTable(mode Mode) []cardCount {
	if mode == ModeExtended {
		return extendedTable
	}
	return standardTable
}

// MaxPenaltyValue is the highest card value of the mode. Revealing,
// placing or swap-landing a card of this value locks its slot for three
// turns.
func MaxPenaltyValue(mode Mode) int {
	if mode == ModeExtended {
		return 20
	}
	return 12
}

// DeckSize returns the total card count of the mode's table.
func DeckSize(mode Mode) int {
	total := 0
	for _, entry := range deckTable(mode) {
		total += entry.count
	}
	return total
}

// CreateDeck builds the fixed multiset of cards for the mode. The result
// is unshuffled; callers supply entropy via ShuffleDeck.
func CreateDeck(mode Mode) []*Card {
	deck := make([]*Card, 0, DeckSize(mode))
	for _, entry := range deckTable(mode) {
		color := valueColor(entry.value)
		if entry.special != SpecialNone {
			color = ColorSpecial
		}
		for i := 0; i < entry.count; i++ {
			deck = append(deck, &Card{
				ID:      uuid.NewString(),
				Value:   entry.value,
				Special: entry.special,
				Color:   color,
			})
		}
	}
	return deck
}

// ShuffleDeck permutes the deck in place with a Fisher-Yates shuffle
// driven by the supplied source, so tests and replays can pin the order.
func ShuffleDeck(deck []*Card, r *rand.Rand) {
	for i := len(deck) - 1; i > 0; i-- {
		j := r.Intn(i + 1)
		deck[i], deck[j] = deck[j], deck[i]
	}
}
