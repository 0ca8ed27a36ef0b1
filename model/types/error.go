package types

import (
	"errors"
	"fmt"
)

// Sentinel errors let callers detect failure classes via errors.Is instead of
// brittle string comparisons.

var (
	// ErrNotFound is returned when the referenced approval request does not
	// exist.
	ErrNotFound = errors.New("approval request not found")

	// ErrChainNotFound is returned when the referenced approval chain is
	// unregistered or empty.
	ErrChainNotFound = errors.New("approval chain not found")

	// ErrInvalidState is returned when a mutation is attempted on a request
	// that is no longer pending.
	ErrInvalidState = errors.New("approval request not pending")

	// ErrValidation indicates a malformed payload or an out-of-domain value.
	ErrValidation = errors.New("invalid input")

	// ErrEvaluation indicates an internal scoring failure. It is always
	// recovered locally and never surfaces to workflow callers.
	ErrEvaluation = errors.New("evaluation failed")
)

func NewRequestNotFoundError(id string) error {
	return fmt.Errorf("request %v: %w", id, ErrNotFound)
}

func NewChainNotFoundError(id string) error {
	return fmt.Errorf("chain %v: %w", id, ErrChainNotFound)
}

func NewInvalidStateError(id, state string) error {
	return fmt.Errorf("request %v in state %v: %w", id, state, ErrInvalidState)
}

func NewValidationError(detail string) error {
	return fmt.Errorf("%v: %w", detail, ErrValidation)
}
