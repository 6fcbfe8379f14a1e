package engine

import "errors"

// Precondition failures of a match transition. Idempotent repeats are not errors.
var (
	ErrMatchNotReady  = errors.New("match is not ready: both players and fleets are required")
	ErrNotParticipant = errors.New("user is not a player in this match")
	ErrNotYourTurn    = errors.New("not your turn")
	ErrInvalidCell    = errors.New("cell is outside the board")
	ErrSamePlayer     = errors.New("a player cannot be paired with themselves")
)
