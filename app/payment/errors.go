package payment

import "errors"

var (
	ErrAttemptInFlight          = errors.New("payment attempt already in flight")
	ErrIntentServiceNotDeployed = errors.New("intent service not deployed")
	ErrIntentServiceUnreachable = errors.New("intent service unreachable")
	ErrInvalidClientSecret      = errors.New("invalid client secret")
	ErrRedirectFailed           = errors.New("redirect handoff failed")
	ErrProviderUnavailable      = errors.New("payment provider unavailable")
)

const (
	NoticeServerMaintenance  = "Direct card payments are temporarily unavailable due to server maintenance. Please use PayPal."
	NoticeGatewayUnavailable = "Card gateway unavailable. Please try PayPal."
	MessageDeclined          = "Payment cancelled or failed. Please try again."
	MessageUnreachable       = "We could not reach the payment server. Check your connection and try again."
)
