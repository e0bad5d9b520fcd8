package checkout

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-checkout/app/catalog"
	"github.com/vibast-solutions/ms-go-checkout/app/factory"
	"github.com/vibast-solutions/ms-go-checkout/app/payment"
	"github.com/vibast-solutions/ms-go-checkout/app/reveal"
	"github.com/vibast-solutions/ms-go-checkout/app/timer"
	"github.com/vibast-solutions/ms-go-checkout/app/types"
)

type Payments interface {
	Commit(ctx context.Context, req payment.CommitRequest) (payment.Outcome, error)
	ActiveProvider() payment.Provider
	Use(p payment.Provider) error
	Notice() string
	Reset()
}

type Revealer interface {
	Start(ctx context.Context, total int) *reveal.Run
}

type Countdown interface {
	Watch(ctx context.Context, interval time.Duration, fn func(timer.Countdown))
}

type Config struct {
	TimerTick time.Duration
	// PreselectDefaultPlan selects the catalog default on first entry to plan selection.
	PreselectDefaultPlan bool
	Billing              payment.BillingDetails
	Now                  func() time.Time
}

// Machine owns one checkout session at a time. All methods are safe for
// concurrent use; reveal and timer events arrive on their own goroutines.
type Machine struct {
	catalog   *catalog.Catalog
	revealer  Revealer
	payments  Payments
	countdown Countdown
	observer  Observer
	cfg       Config
	logger    logrus.FieldLogger

	mu         sync.Mutex
	session    Session
	billing    payment.BillingDetails
	generation uint64
	cancel     context.CancelFunc
	surfaceCtx context.Context
	watchDone  chan struct{}
	run        *reveal.Run
	pending    []Session
}

func NewMachine(
	cat *catalog.Catalog,
	revealer Revealer,
	payments Payments,
	countdown Countdown,
	observer Observer,
	cfg Config,
) *Machine {
	if observer == nil {
		observer = NopObserver{}
	}
	if cfg.TimerTick <= 0 {
		cfg.TimerTick = time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Machine{
		catalog:   cat,
		revealer:  revealer,
		payments:  payments,
		countdown: countdown,
		observer:  observer,
		cfg:       cfg,
		logger:    factory.NewModuleLogger("checkout-machine"),
		session:   Session{Step: StepIdle},
	}
}

func (m *Machine) Session() Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session.clone()
}

// Open starts a fresh session. A non-empty itemID opens on that item's detail,
// otherwise the bundle reveal starts immediately. Reopening discards the
// previous session.
func (m *Machine) Open(ctx context.Context, itemID string) (Session, error) {
	itemID = strings.TrimSpace(itemID)
	if itemID != "" {
		if _, err := m.catalog.Item(itemID); err != nil {
			return m.Session(), ErrUnknownItem
		}
	}

	m.mu.Lock()
	prevWatch := m.closeLocked()

	surfaceCtx, cancel := context.WithCancel(ctx)
	m.surfaceCtx = surfaceCtx
	m.cancel = cancel
	m.billing = m.cfg.Billing
	m.session = Session{
		ID:       uuid.NewString(),
		Step:     StepIdle,
		ItemID:   itemID,
		Provider: m.payments.ActiveProvider(),
		OpenedAt: m.cfg.Now(),
	}

	if m.countdown != nil {
		done := make(chan struct{})
		m.watchDone = done
		go func() {
			defer close(done)
			m.countdown.Watch(surfaceCtx, m.cfg.TimerTick, m.observer.TimerTicked)
		}()
	}

	if itemID != "" {
		m.enterLocked(StepItemDetail)
	} else {
		m.startRevealLocked()
	}
	m.logger.WithField("session_id", m.session.ID).WithField("item_id", itemID).Info("checkout_opened")
	s, err := m.unlockAndNotify()
	waitWatch(prevWatch)
	return s, err
}

// Continue moves from an item's detail to the bundle reveal.
func (m *Machine) Continue() (Session, error) {
	m.mu.Lock()
	if m.session.Step != StepItemDetail {
		return m.unlockWithError(ErrInvalidTransition)
	}
	m.startRevealLocked()
	return m.unlockAndNotify()
}

// Proceed moves to plan selection once the reveal reported completion.
func (m *Machine) Proceed() (Session, error) {
	m.mu.Lock()
	if m.session.Step != StepBundleReveal {
		return m.unlockWithError(ErrInvalidTransition)
	}
	if !m.canProceedLocked() {
		return m.unlockWithError(ErrRevealIncomplete)
	}
	m.stopRevealLocked()
	m.enterPlanSelectionLocked("")
	return m.unlockAndNotify()
}

func (m *Machine) canProceedLocked() bool {
	return m.session.RevealComplete
}

// Back leaves plan selection for a replayed reveal, or the reveal for the item detail.
func (m *Machine) Back() (Session, error) {
	m.mu.Lock()
	switch m.session.Step {
	case StepPlanSelection:
		m.startRevealLocked()
	case StepBundleReveal:
		if m.session.ItemID == "" {
			return m.unlockWithError(ErrInvalidTransition)
		}
		m.stopRevealLocked()
		m.enterLocked(StepItemDetail)
	default:
		return m.unlockWithError(ErrInvalidTransition)
	}
	return m.unlockAndNotify()
}

func (m *Machine) SelectPlan(planID string) (Session, error) {
	m.mu.Lock()
	if m.session.Step != StepPlanSelection {
		return m.unlockWithError(ErrInvalidTransition)
	}
	plan, err := m.catalog.Plan(strings.TrimSpace(planID))
	if err != nil {
		return m.unlockWithError(ErrUnknownPlan)
	}
	m.session.SelectedPlanID = plan.ID
	return m.unlockWithError(nil)
}

// SetEmail records the contact email. It is validated on commit.
func (m *Machine) SetEmail(email string) (Session, error) {
	m.mu.Lock()
	switch m.session.Step {
	case StepItemDetail, StepBundleReveal, StepPlanSelection:
	default:
		return m.unlockWithError(ErrInvalidTransition)
	}
	m.session.ContactEmail = strings.TrimSpace(email)
	return m.unlockWithError(nil)
}

// SelectProvider switches between card and PayPal for the next commit.
func (m *Machine) SelectProvider(p payment.Provider) (Session, error) {
	m.mu.Lock()
	if m.session.Step != StepPlanSelection {
		return m.unlockWithError(ErrInvalidTransition)
	}
	if err := m.payments.Use(p); err != nil {
		if errors.Is(err, payment.ErrAttemptInFlight) {
			return m.unlockWithError(ErrCommitInFlight)
		}
		return m.unlockWithError(ErrProviderUnavailable)
	}
	m.session.Provider = m.payments.ActiveProvider()
	m.session.Notice = m.payments.Notice()
	m.pending = append(m.pending, m.session.clone())
	return m.unlockAndNotify()
}

func (m *Machine) SetBilling(b payment.BillingDetails) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.billing = b
}

// Commit validates the plan and email, then blocks while the payment attempt runs.
// Validation failures leave the session in plan selection with LastError set and
// never reach the network.
func (m *Machine) Commit(ctx context.Context) (Session, error) {
	m.mu.Lock()
	switch m.session.Step {
	case StepPlanSelection:
	case StepPaymentPending:
		return m.unlockWithError(ErrCommitInFlight)
	default:
		return m.unlockWithError(ErrInvalidTransition)
	}

	if m.session.SelectedPlanID == "" {
		return m.rejectLocked(MessagePlanRequired, ErrPlanRequired)
	}
	plan, err := m.catalog.Plan(m.session.SelectedPlanID)
	if err != nil {
		return m.rejectLocked(MessagePlanRequired, ErrPlanRequired)
	}
	if !types.ValidEmail(m.session.ContactEmail) {
		return m.rejectLocked(MessageInvalidEmail, ErrInvalidEmail)
	}

	billing := m.billing
	billing.Email = m.session.ContactEmail
	req := payment.CommitRequest{Plan: plan, Email: m.session.ContactEmail, Billing: billing}
	generation := m.generation
	m.enterLocked(StepPaymentPending)
	l := m.logger.WithField("session_id", m.session.ID).WithField("plan_id", plan.ID)
	m.unlockAndNotify()

	outcome, err := m.payments.Commit(ctx, req)

	m.mu.Lock()
	if generation != m.generation {
		l.Info("checkout_result_discarded")
		return m.unlockWithError(ErrSessionClosed)
	}
	if err != nil {
		l.WithError(err).Warn("checkout_commit_rejected")
		m.enterPlanSelectionLocked("")
		s, _ := m.unlockAndNotify()
		if errors.Is(err, payment.ErrAttemptInFlight) {
			return s, ErrCommitInFlight
		}
		return s, err
	}

	attempt := outcome.Attempt
	m.session.Attempt = &attempt
	m.session.Provider = m.payments.ActiveProvider()

	switch outcome.Kind {
	case payment.OutcomeSucceeded:
		m.enterLocked(StepSuccess)
		l.WithField("attempt_id", attempt.ID).Info("checkout_succeeded")
	case payment.OutcomeDeclined:
		// The recoverable error is observable but immediately returns to plan selection.
		m.failLocked(StepRecoverableError, outcome.Message)
		m.enterPlanSelectionLocked(outcome.Message)
	case payment.OutcomeDowngraded:
		m.enterPlanSelectionLocked("")
	case payment.OutcomeUnreachable:
		m.failLocked(StepConnectionError, outcome.Message)
		l.WithError(outcome.Err).Warn("checkout_connection_error")
	default:
		m.enterPlanSelectionLocked("")
	}
	return m.unlockAndNotify()
}

// Retry leaves the connection error state. It is the only way out besides Close.
func (m *Machine) Retry() (Session, error) {
	m.mu.Lock()
	if m.session.Step != StepConnectionError {
		return m.unlockWithError(ErrInvalidTransition)
	}
	m.enterPlanSelectionLocked("")
	return m.unlockAndNotify()
}

// Close tears down the session, the reveal, the timer watch and any in-flight
// attempt. No timer tick is delivered once Close returns.
func (m *Machine) Close() {
	m.mu.Lock()
	wasOpen := m.session.Step != StepIdle
	watch := m.closeLocked()
	if wasOpen {
		m.pending = append(m.pending, m.session.clone())
	}
	m.unlockAndNotify()
	waitWatch(watch)
}

// closeLocked returns the channel of the stopped timer watch. Callers wait on
// it after unlocking since the observer may call back into the machine.
func (m *Machine) closeLocked() <-chan struct{} {
	m.stopRevealLocked()
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	watch := m.watchDone
	m.watchDone = nil
	m.payments.Reset()
	m.generation++
	if m.session.ID != "" {
		m.logger.WithField("session_id", m.session.ID).WithField("step", m.session.Step.String()).Info("checkout_closed")
	}
	m.session = Session{Step: StepIdle}
	return watch
}

func waitWatch(done <-chan struct{}) {
	if done != nil {
		<-done
	}
}

func (m *Machine) enterLocked(step Step) {
	m.failLocked(step, "")
}

func (m *Machine) failLocked(step Step, message string) {
	m.session.Step = step
	m.session.LastError = message
	m.pending = append(m.pending, m.session.clone())
}

func (m *Machine) enterPlanSelectionLocked(message string) {
	if m.session.SelectedPlanID == "" && m.cfg.PreselectDefaultPlan {
		m.session.SelectedPlanID = m.catalog.DefaultPlanID
	}
	m.session.Provider = m.payments.ActiveProvider()
	m.session.Notice = m.payments.Notice()
	m.failLocked(StepPlanSelection, message)
}

func (m *Machine) startRevealLocked() {
	m.stopRevealLocked()
	m.session.RevealAdded = 0
	m.session.RevealComplete = false

	run := m.revealer.Start(m.surfaceCtx, len(m.catalog.Items))
	m.run = run
	m.session.RevealTotal = run.Total()
	m.enterLocked(StepBundleReveal)

	go m.consumeReveal(run, m.generation)
}

func (m *Machine) stopRevealLocked() {
	if m.run == nil {
		return
	}
	m.run.Stop()
	m.run = nil
}

func (m *Machine) consumeReveal(run *reveal.Run, generation uint64) {
	for ev := range run.Events() {
		m.mu.Lock()
		if m.generation != generation || m.run != run {
			m.mu.Unlock()
			continue
		}
		switch ev.Kind {
		case reveal.EventReveal:
			m.session.RevealAdded = ev.Added
		case reveal.EventComplete:
			m.session.RevealAdded = ev.Added
			m.session.RevealComplete = true
			m.pending = append(m.pending, m.session.clone())
		}
		m.unlockAndNotify()

		if ev.Kind == reveal.EventReveal {
			m.observer.ItemRevealed(ev.Added, ev.Total)
		}
	}
}

// rejectLocked shows a validation message in place without changing step.
func (m *Machine) rejectLocked(message string, err error) (Session, error) {
	m.session.LastError = message
	m.pending = append(m.pending, m.session.clone())
	s, _ := m.unlockAndNotify()
	return s, err
}

func (m *Machine) unlockWithError(err error) (Session, error) {
	s := m.session.clone()
	m.mu.Unlock()
	return s, err
}

func (m *Machine) unlockAndNotify() (Session, error) {
	s := m.session.clone()
	pending := m.pending
	m.pending = nil
	m.mu.Unlock()

	for _, p := range pending {
		m.observer.StepChanged(p)
	}
	return s, nil
}

// IsValidation reports whether err blocked a commit before any network call.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}
