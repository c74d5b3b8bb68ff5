package tool

import (
	"errors"
	"fmt"

	"github.com/convertly/server/internal/module/billing"
)

// Module errors.
var (
	ErrUnknownTool      = errors.New("unknown tool")
	ErrProcessingFailed = errors.New("processing failed")
)

// QuotaExceededError carries the denied reservation so callers can present
// the precise breached limit.
type QuotaExceededError struct {
	Reservation *billing.Reservation
}

// Error implements the error interface.
func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota exceeded: %s", e.Reservation.Reason)
}
