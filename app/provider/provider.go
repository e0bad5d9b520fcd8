package provider

import "context"

type IntentInput struct {
	RequestID      string
	IdempotencyKey string
	AmountCents    int64
	Currency       string
	Description    string
	ReceiptEmail   string
	Metadata       map[string]string
}

type IntentOutput struct {
	ID           string
	ClientSecret string
	Status       string
}

// Provider issues payment intents server-side. Configured reports whether the
// provider holds credentials usable for a live call.
type Provider interface {
	Name() string
	Configured() bool
	CreateIntent(ctx context.Context, input *IntentInput) (*IntentOutput, error)
}
