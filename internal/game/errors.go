package game

import "errors"

// Engine errors are sentinels so the gateway can map them to protocol
// error codes with errors.Is. A failed transition never mutates state.
var (
	ErrNotYourTurn             = errors.New("not your turn")
	ErrWrongPhase              = errors.New("action not legal in current phase")
	ErrLockedCard              = errors.New("card slot is locked")
	ErrIllegalSpecialPlacement = errors.New("swap and black hole cards cannot be placed on the board")
	ErrIllegalDiscardTarget    = errors.New("illegal discard pile interaction for this card type")
	ErrEmptyPile               = errors.New("pile is empty")
	ErrInvalidSlot             = errors.New("invalid hand slot")
)
