package repository

import "errors"

var (
	// ErrVersionConflict means a compare-and-swap update matched no row:
	// somebody else moved the record first.
	ErrVersionConflict = errors.New("record was modified concurrently")
	ErrAlreadyUsed     = errors.New("verification code already used")
	ErrNotHolding      = errors.New("escrow is not holding funds")
)
