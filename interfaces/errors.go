package interfaces

import (
	"errors"
	"fmt"
)

// Error taxonomy. Every failure surfaced by a component wraps exactly one of
// the four base kinds so callers can classify without string matching:
// ErrUnauthorized, ErrPrecondition, ErrDeadlinePassed, ErrInvalidSignature.
var (
	// ErrUnauthorized means the caller lacks the required capability.
	ErrUnauthorized = errors.New("caller lacks required capability")

	// ErrPrecondition means a state invariant would be violated.
	ErrPrecondition = errors.New("precondition failed")

	// ErrDeadlinePassed means the current time exceeds an explicit deadline.
	ErrDeadlinePassed = errors.New("deadline passed")

	// ErrInvalidSignature means a signature does not recover to the claimed signer.
	ErrInvalidSignature = errors.New("invalid signature")
)

// Specific precondition failures. All wrap ErrPrecondition.
var (
	ErrAlreadySigned        = fmt.Errorf("%w: already signed", ErrPrecondition)
	ErrInvalidRole          = fmt.Errorf("%w: invalid role for signer", ErrPrecondition)
	ErrOutOfOrderStep       = fmt.Errorf("%w: must complete steps in order", ErrPrecondition)
	ErrStepAlreadyCompleted = fmt.Errorf("%w: step already completed", ErrPrecondition)
	ErrNonTransferable      = fmt.Errorf("%w: non-transferable", ErrPrecondition)
	ErrReentrantCall        = fmt.Errorf("%w: re-entrant call rejected", ErrPrecondition)

	ErrUnknownRole       = fmt.Errorf("%w: unknown role", ErrPrecondition)
	ErrUnknownMember     = fmt.Errorf("%w: unknown member", ErrPrecondition)
	ErrUnknownDepartment = fmt.Errorf("%w: unknown department", ErrPrecondition)
	ErrUnknownDocument   = fmt.Errorf("%w: unknown document", ErrPrecondition)
	ErrUnknownTemplate   = fmt.Errorf("%w: unknown workflow template", ErrPrecondition)
	ErrUnknownWorkflow   = fmt.Errorf("%w: no workflow for document", ErrPrecondition)
	ErrWorkflowExists    = fmt.Errorf("%w: workflow already exists for document", ErrPrecondition)
)
