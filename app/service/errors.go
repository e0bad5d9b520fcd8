package service

import "errors"

var (
	ErrInvalidRequest        = errors.New("invalid request")
	ErrUnknownItem           = errors.New("unknown item")
	ErrMixedPlans            = errors.New("items must reference a single plan")
	ErrProviderNotConfigured = errors.New("payment provider is not configured")
	ErrIntentRejected        = errors.New("payment intent rejected")
	ErrIntentFailed          = errors.New("payment intent creation failed")
	ErrInvalidVisitor        = errors.New("invalid visitor id")
)
