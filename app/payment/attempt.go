package payment

import "time"

type Provider int

const (
	ProviderPrimary Provider = iota + 1
	ProviderSecondary
)

func (p Provider) String() string {
	switch p {
	case ProviderPrimary:
		return "PRIMARY"
	case ProviderSecondary:
		return "SECONDARY"
	default:
		return "UNKNOWN"
	}
}

type Status int

const (
	StatusNotStarted Status = iota
	StatusAwaitingIntent
	StatusConfirming
	StatusSucceeded
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusNotStarted:
		return "NOT_STARTED"
	case StatusAwaitingIntent:
		return "AWAITING_INTENT"
	case StatusConfirming:
		return "CONFIRMING"
	case StatusSucceeded:
		return "SUCCEEDED"
	case StatusFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// InFlight reports whether a second commit must be rejected.
func (s Status) InFlight() bool {
	return s == StatusAwaitingIntent || s == StatusConfirming
}

type Attempt struct {
	ID                string
	Provider          Provider
	Status            Status
	PlanID            string
	AmountCents       int64
	Currency          string
	ExternalReference string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

type OutcomeKind int

const (
	OutcomeSucceeded OutcomeKind = iota + 1
	// OutcomeDeclined is a processor-reported failure the visitor can retry.
	OutcomeDeclined
	// OutcomeDowngraded means the primary path is not configured and the
	// active provider is now SECONDARY.
	OutcomeDowngraded
	OutcomeUnreachable
	OutcomeCanceled
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSucceeded:
		return "succeeded"
	case OutcomeDeclined:
		return "declined"
	case OutcomeDowngraded:
		return "downgraded"
	case OutcomeUnreachable:
		return "unreachable"
	case OutcomeCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

type Outcome struct {
	Kind    OutcomeKind
	Attempt Attempt
	// Message is safe to show to the visitor.
	Message string
	Err     error
}
