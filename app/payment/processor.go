package payment

import (
	"context"

	"github.com/vibast-solutions/ms-go-checkout/app/catalog"
)

type BillingDetails struct {
	Name       string
	Email      string
	Line1      string
	City       string
	PostalCode string
	Country    string
}

// Mount is the primary payment UI bound to an issued intent.
type Mount struct {
	IntentID     string
	ClientSecret string
	AmountCents  int64
	Currency     string
	Status       string
}

type ConfirmRequest struct {
	Billing      BillingDetails
	ReceiptEmail string
	ReturnURL    string
}

type ConfirmKind int

const (
	ConfirmSucceeded ConfirmKind = iota + 1
	ConfirmRedirect
	ConfirmDeclined
)

type ConfirmResult struct {
	Kind        ConfirmKind
	Reference   string
	RedirectURL string
	// Message is the processor's user-facing explanation for a decline.
	Message string
}

// PrimaryProcessor mounts payment UI against a client secret and confirms it.
type PrimaryProcessor interface {
	Mount(ctx context.Context, clientSecret string) (*Mount, error)
	Confirm(ctx context.Context, mount *Mount, req ConfirmRequest) (*ConfirmResult, error)
}

type HandoffRequest struct {
	Reference string
	Plan      catalog.Plan
	Email     string
	ReturnURL string
	CancelURL string
}

type Handoff struct {
	URL       string
	Reference string
}

// SecondaryProcessor dispatches a one-way redirect. Nothing is awaited after dispatch.
type SecondaryProcessor interface {
	Handoff(ctx context.Context, req HandoffRequest) (*Handoff, error)
}

// Redirector sends the visitor to an external URL.
type Redirector interface {
	Open(ctx context.Context, url string) error
}
