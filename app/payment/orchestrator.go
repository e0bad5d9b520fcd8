package payment

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-checkout/app/catalog"
	"github.com/vibast-solutions/ms-go-checkout/app/factory"
)

type Config struct {
	IntentTimeout time.Duration
	ReturnURL     string
	CancelURL     string
	Now           func() time.Time
}

type CommitRequest struct {
	Plan    catalog.Plan
	Email   string
	Billing BillingDetails
}

// Orchestrator negotiates one payment attempt at a time with the active provider.
type Orchestrator struct {
	primary    strategy
	secondary  strategy
	redirector Redirector
	cfg        Config
	logger     logrus.FieldLogger

	mu         sync.Mutex
	active     Provider
	notice     string
	downgraded bool
	attempt    *Attempt
	cancel     context.CancelFunc
}

// NewOrchestrator starts on the primary provider when one is given, otherwise on the secondary.
func NewOrchestrator(
	intents IntentIssuer,
	primary PrimaryProcessor,
	secondary SecondaryProcessor,
	redirector Redirector,
	cfg Config,
) *Orchestrator {
	if cfg.IntentTimeout <= 0 {
		cfg.IntentTimeout = 5 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.CancelURL == "" {
		cfg.CancelURL = cfg.ReturnURL
	}

	o := &Orchestrator{
		secondary:  secondaryStrategy{processor: secondary},
		redirector: redirector,
		cfg:        cfg,
		logger:     factory.NewModuleLogger("payment-orchestrator"),
	}
	if intents != nil && primary != nil {
		o.primary = primaryStrategy{intents: intents, processor: primary}
	}
	o.active = o.initialProvider()
	return o
}

func (o *Orchestrator) initialProvider() Provider {
	if o.primary == nil {
		return ProviderSecondary
	}
	return ProviderPrimary
}

func (o *Orchestrator) ActiveProvider() Provider {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.active
}

// Notice is the visitor-facing explanation of the last downgrade, if any.
func (o *Orchestrator) Notice() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.notice
}

// Use switches the provider for the next attempt at the visitor's request.
// The card path stays unavailable once it has been downgraded or when no
// primary processor is configured.
func (o *Orchestrator) Use(p Provider) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.attempt != nil && o.attempt.Status.InFlight() {
		return ErrAttemptInFlight
	}
	switch p {
	case ProviderPrimary:
		if o.primary == nil || o.downgraded {
			return ErrProviderUnavailable
		}
		o.notice = ""
	case ProviderSecondary:
	default:
		return ErrProviderUnavailable
	}
	if o.active != p {
		o.logger.WithField("provider", p.String()).Info("provider_selected")
	}
	o.active = p
	return nil
}

func (o *Orchestrator) Attempt() (Attempt, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.attempt == nil {
		return Attempt{}, false
	}
	return *o.attempt, true
}

// Commit runs a new attempt with the active provider and blocks until it settles.
// It returns ErrAttemptInFlight without side effects while another attempt is
// awaiting its intent or confirming.
func (o *Orchestrator) Commit(ctx context.Context, req CommitRequest) (Outcome, error) {
	o.mu.Lock()
	if o.attempt != nil && o.attempt.Status.InFlight() {
		o.mu.Unlock()
		return Outcome{}, ErrAttemptInFlight
	}

	strat := o.secondary
	if o.active == ProviderPrimary {
		strat = o.primary
	}
	now := o.cfg.Now()
	attempt := &Attempt{
		ID:          uuid.NewString(),
		Provider:    strat.provider(),
		Status:      StatusNotStarted,
		PlanID:      req.Plan.ID,
		AmountCents: req.Plan.AmountCents,
		Currency:    req.Plan.Currency,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	runCtx, cancel := context.WithCancel(ctx)
	o.attempt = attempt
	o.cancel = cancel
	o.mu.Unlock()
	defer cancel()

	l := o.logger.WithFields(logrus.Fields{
		"attempt_id": attempt.ID,
		"provider":   attempt.Provider.String(),
		"plan_id":    attempt.PlanID,
	})
	l.Info("attempt_started")

	outcome := strat.run(runCtx, o, attempt.ID, req)

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.attempt == nil || o.attempt.ID != attempt.ID {
		l.Info("attempt_discarded")
		return Outcome{Kind: OutcomeCanceled, Attempt: *attempt, Err: context.Canceled}, nil
	}
	o.cancel = nil
	if outcome.Kind == OutcomeCanceled && o.attempt.Status.InFlight() {
		o.attempt.Status = StatusFailed
		o.attempt.UpdatedAt = o.cfg.Now()
	}
	outcome.Attempt = *o.attempt

	entry := l.WithField("status", outcome.Attempt.Status.String()).WithField("outcome", outcome.Kind.String())
	if outcome.Err != nil {
		entry = entry.WithError(outcome.Err)
	}
	switch outcome.Kind {
	case OutcomeSucceeded:
		entry.WithField("external_reference", outcome.Attempt.ExternalReference).Info("attempt_succeeded")
	case OutcomeDowngraded:
		entry.Warn("attempt_downgraded")
	default:
		entry.Info("attempt_failed")
	}
	return outcome, nil
}

// Abort cancels the in-flight request, if any, and forgets the attempt.
func (o *Orchestrator) Abort() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.cancel != nil {
		o.cancel()
		o.cancel = nil
	}
	o.attempt = nil
}

// Reset aborts and returns to the initial provider.
func (o *Orchestrator) Reset() {
	o.Abort()
	o.mu.Lock()
	defer o.mu.Unlock()
	o.active = o.initialProvider()
	o.notice = ""
	o.downgraded = false
}

func (o *Orchestrator) update(attemptID string, fn func(a *Attempt)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.attempt == nil || o.attempt.ID != attemptID {
		return
	}
	fn(o.attempt)
	o.attempt.UpdatedAt = o.cfg.Now()
}

func (o *Orchestrator) setStatus(attemptID string, status Status) {
	o.update(attemptID, func(a *Attempt) { a.Status = status })
}

func (o *Orchestrator) fail(attemptID string) {
	o.setStatus(attemptID, StatusFailed)
}

func (o *Orchestrator) succeed(attemptID, reference string) {
	o.update(attemptID, func(a *Attempt) {
		a.Status = StatusSucceeded
		a.ExternalReference = reference
	})
}

func (o *Orchestrator) downgrade(notice string, cause error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.active = ProviderSecondary
	o.notice = notice
	o.downgraded = true
	o.logger.WithError(cause).Warn("provider_downgraded")
}
