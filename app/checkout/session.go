package checkout

import (
	"time"

	"github.com/vibast-solutions/ms-go-checkout/app/payment"
	"github.com/vibast-solutions/ms-go-checkout/app/timer"
)

type Step int

const (
	StepIdle Step = iota
	StepItemDetail
	StepBundleReveal
	StepPlanSelection
	StepPaymentPending
	StepSuccess
	StepRecoverableError
	StepConnectionError
)

func (s Step) String() string {
	switch s {
	case StepIdle:
		return "IDLE"
	case StepItemDetail:
		return "ITEM_DETAIL"
	case StepBundleReveal:
		return "BUNDLE_REVEAL"
	case StepPlanSelection:
		return "PLAN_SELECTION"
	case StepPaymentPending:
		return "PAYMENT_PENDING"
	case StepSuccess:
		return "SUCCESS"
	case StepRecoverableError:
		return "RECOVERABLE_ERROR"
	case StepConnectionError:
		return "CONNECTION_ERROR"
	default:
		return "UNKNOWN"
	}
}

// Session is a point-in-time copy of the checkout state.
type Session struct {
	ID             string
	Step           Step
	ItemID         string
	SelectedPlanID string
	ContactEmail   string
	// LastError is cleared on every step entry.
	LastError string
	// Notice explains a silent provider downgrade. It is not an error.
	Notice   string
	Provider payment.Provider

	RevealAdded    int
	RevealTotal    int
	RevealComplete bool

	Attempt  *payment.Attempt
	OpenedAt time.Time
}

func (s Session) clone() Session {
	if s.Attempt != nil {
		a := *s.Attempt
		s.Attempt = &a
	}
	return s
}

type Observer interface {
	StepChanged(s Session)
	ItemRevealed(added, total int)
	TimerTicked(c timer.Countdown)
}

type NopObserver struct{}

func (NopObserver) StepChanged(Session)         {}
func (NopObserver) ItemRevealed(int, int)       {}
func (NopObserver) TimerTicked(timer.Countdown) {}
