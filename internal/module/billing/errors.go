package billing

import "errors"

// Module errors.
var (
	ErrUserNotFound        = errors.New("user not found")
	ErrInvalidCredits      = errors.New("credits must be non-negative")
	ErrReservationConflict = errors.New("reservation retries exhausted under contention")
)
