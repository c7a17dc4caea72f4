package orders

import "errors"

var (
	ErrOrderNotFound = errors.New("order not found")
	// ErrStateRegression means the requested transition would move the
	// payment state backward; callers treat it as a stale update.
	ErrStateRegression = errors.New("payment state regression")
	ErrInvalidState    = errors.New("invalid payment state")
)
