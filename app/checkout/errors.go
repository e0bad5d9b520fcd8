package checkout

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidTransition   = errors.New("transition not allowed from current step")
	ErrRevealIncomplete    = errors.New("bundle reveal has not completed")
	ErrUnknownItem         = errors.New("unknown catalog item")
	ErrUnknownPlan         = errors.New("unknown plan")
	ErrCommitInFlight      = errors.New("payment already pending")
	ErrSessionClosed       = errors.New("checkout session closed")
	ErrProviderUnavailable = errors.New("payment provider unavailable")

	ErrValidation   = errors.New("validation failed")
	ErrPlanRequired = fmt.Errorf("%w: plan is required", ErrValidation)
	ErrInvalidEmail = fmt.Errorf("%w: email is invalid", ErrValidation)
)

const (
	MessagePlanRequired = "Please select a plan to continue."
	MessageInvalidEmail = "Please enter a valid email address."
)
