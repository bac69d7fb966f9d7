package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors. Callers classify them with the Is* helpers below; the
// HTTP layer maps each class to a coarse user-visible message.
var (
	ErrAccountNotFound         = errors.New("account not found")
	ErrDepositNotFound         = errors.New("deposit not found")
	ErrPeriodNotFound          = errors.New("period not found")
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")
	ErrAlreadyDistributed      = errors.New("period already distributed")
	ErrInsufficientLockedFunds = errors.New("insufficient locked funds")
	ErrInsufficientBalance     = errors.New("insufficient balance")
	ErrFundExhausted           = errors.New("guarantee fund exhausted")
	ErrNoParticipants          = errors.New("no participants in period")
	ErrInvalidTransition       = errors.New("invalid status transition")
	ErrBalanceMismatch         = errors.New("cached balance does not match entry sum")
	ErrAccountOnHold           = errors.New("account is on integrity hold")
)

// ValidationError rejects a request synchronously; nothing is applied.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Msg
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Msg)
}

func NewValidationError(field, msg string) error {
	return &ValidationError{Field: field, Msg: msg}
}

// IsValidation reports whether err rejects the caller's input.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve) || errors.Is(err, ErrInvalidTransition)
}

// IsConflict reports "already done": the caller should fetch and use the
// existing result instead of retrying.
func IsConflict(err error) bool {
	return errors.Is(err, ErrDuplicateIdempotencyKey) || errors.Is(err, ErrAlreadyDistributed)
}

// IsIntegrity reports a fatal inconsistency that halts automated processing
// of the entity and requires manual reconciliation.
func IsIntegrity(err error) bool {
	return errors.Is(err, ErrFundExhausted) || errors.Is(err, ErrBalanceMismatch) || errors.Is(err, ErrAccountOnHold)
}

// IsNotFound reports a missing entity.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrAccountNotFound) || errors.Is(err, ErrDepositNotFound) || errors.Is(err, ErrPeriodNotFound)
}
