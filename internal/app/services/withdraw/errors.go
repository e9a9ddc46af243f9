package withdraw

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by Submit. Handlers map these to response codes.
var (
	ErrInvalidInput        = errors.New("invalid withdrawal request")
	ErrUnauthorized        = errors.New("session is not valid")
	ErrProofRequired       = errors.New("verification proof is required")
	ErrProofFailed         = errors.New("verification proof was rejected")
	ErrUnknownMethod       = errors.New("unknown withdrawal method")
	ErrBelowMinimum        = errors.New("amount is below the method minimum")
	ErrAmountTooSmall      = errors.New("amount does not cover the fee")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrThrottled           = errors.New("too many withdrawal attempts")
)

// ProcessorError carries the payout provider's rejection so the caller can
// surface it verbatim.
type ProcessorError struct {
	Code    int
	Message string
}

func (e *ProcessorError) Error() string {
	return fmt.Sprintf("payout rejected (code %d): %s", e.Code, e.Message)
}
