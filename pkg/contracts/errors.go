package contracts

import "errors"

// Caller-visible failures. Every one of them aborts the triggering
// operation together with its whole dispatched chain.
var (
	ErrUnauthorized      = errors.New("not authorized")
	ErrUnexpectedFunds   = errors.New("unexpected funds attached")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrNotFound          = errors.New("not found")
	ErrNotInitialized    = errors.New("config not initialized")
	ErrInvalidAddress    = errors.New("invalid address")
	ErrTooEarly          = errors.New("bet not finished yet")
	ErrNotStaked         = errors.New("not staked yet")

	ErrAlreadyStaked   = errors.New("stake already locked")
	ErrAlreadySettled  = errors.New("ticket already settled")
	ErrDuplicateTicket = errors.New("ticket id already exists")
	ErrInvalidTicket   = errors.New("invalid ticket")
	ErrBettingClosed   = errors.New("betting closed")
	ErrCollateralFixed = errors.New("collateral fixed by locked stakes")
	ErrRateLimited     = errors.New("rate limited")
	ErrUnknownMessage  = errors.New("unknown message")
)
