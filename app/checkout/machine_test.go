package checkout

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vibast-solutions/ms-go-checkout/app/catalog"
	"github.com/vibast-solutions/ms-go-checkout/app/payment"
	"github.com/vibast-solutions/ms-go-checkout/app/reveal"
	"github.com/vibast-solutions/ms-go-checkout/app/timer"
)

type stubIntents struct {
	calls atomic.Int32
	fn    func(ctx context.Context, req payment.IntentRequest) (string, error)
}

func (s *stubIntents) CreateIntent(ctx context.Context, req payment.IntentRequest) (string, error) {
	s.calls.Add(1)
	if s.fn != nil {
		return s.fn(ctx, req)
	}
	return "pi_42_secret_xyz", nil
}

type stubPrimary struct {
	confirmFn func() (*payment.ConfirmResult, error)
}

func (s *stubPrimary) Mount(_ context.Context, secret string) (*payment.Mount, error) {
	return &payment.Mount{IntentID: "pi_42", ClientSecret: secret, AmountCents: 4900, Currency: "usd"}, nil
}

func (s *stubPrimary) Confirm(_ context.Context, mount *payment.Mount, _ payment.ConfirmRequest) (*payment.ConfirmResult, error) {
	if s.confirmFn != nil {
		return s.confirmFn()
	}
	return &payment.ConfirmResult{Kind: payment.ConfirmSucceeded, Reference: mount.IntentID}, nil
}

type stubSecondary struct {
	calls atomic.Int32
}

func (s *stubSecondary) Handoff(_ context.Context, req payment.HandoffRequest) (*payment.Handoff, error) {
	s.calls.Add(1)
	return &payment.Handoff{URL: "https://paypal.test/checkout", Reference: req.Reference}, nil
}

type nopRedirector struct{}

func (nopRedirector) Open(context.Context, string) error { return nil }

type recordingObserver struct {
	mu       sync.Mutex
	sessions []Session
	steps    []Step
	revealed []int
	ticks    int
}

func (r *recordingObserver) StepChanged(s Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions = append(r.sessions, s)
	r.steps = append(r.steps, s.Step)
}

func (r *recordingObserver) last() Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.sessions) == 0 {
		return Session{}
	}
	return r.sessions[len(r.sessions)-1]
}

func (r *recordingObserver) tickCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ticks
}

func (r *recordingObserver) ItemRevealed(added, _ int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.revealed = append(r.revealed, added)
}

func (r *recordingObserver) TimerTicked(timer.Countdown) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ticks++
}

func (r *recordingObserver) sawStep(step Step) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.steps {
		if s == step {
			return true
		}
	}
	return false
}

type harness struct {
	machine   *Machine
	intents   *stubIntents
	primary   *stubPrimary
	secondary *stubSecondary
	observer  *recordingObserver
}

func newHarness(t *testing.T, revealInterval time.Duration, intentTimeout time.Duration) *harness {
	t.Helper()
	cat, err := catalog.Default()
	require.NoError(t, err)

	h := &harness{
		intents:   &stubIntents{},
		primary:   &stubPrimary{},
		secondary: &stubSecondary{},
		observer:  &recordingObserver{},
	}
	orchestrator := payment.NewOrchestrator(h.intents, h.primary, h.secondary, nopRedirector{}, payment.Config{
		IntentTimeout: intentTimeout,
		ReturnURL:     "https://shop.test/books",
	})
	sequencer := reveal.NewSequencer(reveal.Config{Interval: revealInterval})
	h.machine = NewMachine(cat, sequencer, orchestrator, nil, h.observer, Config{})
	t.Cleanup(h.machine.Close)
	return h
}

func (h *harness) waitRevealComplete(t *testing.T) {
	t.Helper()
	require.Eventually(t, func() bool {
		return h.machine.Session().RevealComplete
	}, 2*time.Second, 2*time.Millisecond)
}

func (h *harness) toPlanSelection(t *testing.T) {
	t.Helper()
	_, err := h.machine.Open(context.Background(), "")
	require.NoError(t, err)
	h.waitRevealComplete(t)
	s, err := h.machine.Proceed()
	require.NoError(t, err)
	require.Equal(t, StepPlanSelection, s.Step)
}

func TestMachineRevealToSuccess(t *testing.T) {
	h := newHarness(t, time.Millisecond, time.Second)

	s, err := h.machine.Open(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, StepBundleReveal, s.Step)
	assert.Equal(t, 6, s.RevealTotal)
	assert.Equal(t, payment.ProviderPrimary, s.Provider)

	h.waitRevealComplete(t)
	assert.Equal(t, 6, h.machine.Session().RevealAdded)

	s, err = h.machine.Proceed()
	require.NoError(t, err)
	require.Equal(t, StepPlanSelection, s.Step)

	_, err = h.machine.SelectPlan("lifetime-basic")
	require.NoError(t, err)
	_, err = h.machine.SetEmail("visitor@example.com")
	require.NoError(t, err)

	s, err = h.machine.Commit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StepSuccess, s.Step)
	require.NotNil(t, s.Attempt)
	assert.Equal(t, payment.StatusSucceeded, s.Attempt.Status)
	assert.Equal(t, "pi_42", s.Attempt.ExternalReference)
	assert.Equal(t, int32(1), h.intents.calls.Load())
	assert.True(t, h.observer.sawStep(StepPaymentPending))

	h.observer.mu.Lock()
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6}, h.observer.revealed)
	h.observer.mu.Unlock()
}

func TestMachineRejectsInvalidEmailWithoutNetwork(t *testing.T) {
	h := newHarness(t, time.Millisecond, time.Second)
	h.toPlanSelection(t)

	_, err := h.machine.SelectPlan("lifetime-basic")
	require.NoError(t, err)
	_, err = h.machine.SetEmail("not-an-email")
	require.NoError(t, err)

	s, err := h.machine.Commit(context.Background())
	require.ErrorIs(t, err, ErrInvalidEmail)
	assert.True(t, IsValidation(err))
	assert.Equal(t, StepPlanSelection, s.Step)
	assert.Equal(t, MessageInvalidEmail, s.LastError)
	assert.Equal(t, int32(0), h.intents.calls.Load())
}

func TestMachineRequiresPlan(t *testing.T) {
	h := newHarness(t, time.Millisecond, time.Second)
	h.toPlanSelection(t)
	_, err := h.machine.SetEmail("visitor@example.com")
	require.NoError(t, err)

	s, err := h.machine.Commit(context.Background())
	require.ErrorIs(t, err, ErrPlanRequired)
	assert.Equal(t, MessagePlanRequired, s.LastError)

	_, err = h.machine.SelectPlan("missing")
	assert.ErrorIs(t, err, ErrUnknownPlan)
}

func TestMachineIntentTimeoutNeedsRetry(t *testing.T) {
	h := newHarness(t, time.Millisecond, 20*time.Millisecond)
	h.intents.fn = func(ctx context.Context, _ payment.IntentRequest) (string, error) {
		<-ctx.Done()
		return "", fmt.Errorf("%w: %v", payment.ErrIntentServiceUnreachable, ctx.Err())
	}
	h.toPlanSelection(t)
	_, _ = h.machine.SelectPlan("lifetime-basic")
	_, _ = h.machine.SetEmail("visitor@example.com")

	s, err := h.machine.Commit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StepConnectionError, s.Step)
	assert.Equal(t, payment.MessageUnreachable, s.LastError)

	_, err = h.machine.Commit(context.Background())
	assert.ErrorIs(t, err, ErrInvalidTransition)

	s, err = h.machine.Retry()
	require.NoError(t, err)
	assert.Equal(t, StepPlanSelection, s.Step)
	assert.Empty(t, s.LastError)
	assert.Equal(t, "lifetime-basic", s.SelectedPlanID)
}

func TestMachineDowngradesOnMissingIntentService(t *testing.T) {
	h := newHarness(t, time.Millisecond, time.Second)
	h.intents.fn = func(context.Context, payment.IntentRequest) (string, error) {
		return "", payment.ErrIntentServiceNotDeployed
	}
	h.toPlanSelection(t)
	_, _ = h.machine.SelectPlan("lifetime-basic")
	_, _ = h.machine.SetEmail("visitor@example.com")

	s, err := h.machine.Commit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StepPlanSelection, s.Step)
	assert.Equal(t, payment.ProviderSecondary, s.Provider)
	assert.Equal(t, payment.NoticeServerMaintenance, s.Notice)
	assert.Empty(t, s.LastError)
	assert.False(t, h.observer.sawStep(StepConnectionError))

	s, err = h.machine.Commit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StepSuccess, s.Step)
	assert.Equal(t, payment.ProviderSecondary, s.Attempt.Provider)
	assert.Equal(t, int32(1), h.secondary.calls.Load())
	assert.Equal(t, int32(1), h.intents.calls.Load())
}

func TestMachineDeclineReturnsToPlanSelection(t *testing.T) {
	h := newHarness(t, time.Millisecond, time.Second)
	h.primary.confirmFn = func() (*payment.ConfirmResult, error) {
		return &payment.ConfirmResult{Kind: payment.ConfirmDeclined, Message: "Your card was declined."}, nil
	}
	h.toPlanSelection(t)
	_, _ = h.machine.SelectPlan("lifetime-basic")
	_, _ = h.machine.SetEmail("visitor@example.com")

	s, err := h.machine.Commit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StepPlanSelection, s.Step)
	assert.Equal(t, "Your card was declined.", s.LastError)
	assert.True(t, h.observer.sawStep(StepRecoverableError))
	assert.Equal(t, payment.ProviderPrimary, s.Provider)
}

func TestMachineProceedGuardedByReveal(t *testing.T) {
	h := newHarness(t, time.Hour, time.Second)

	_, err := h.machine.Open(context.Background(), "")
	require.NoError(t, err)

	s, err := h.machine.Proceed()
	assert.ErrorIs(t, err, ErrRevealIncomplete)
	assert.Equal(t, StepBundleReveal, s.Step)

	_, err = h.machine.Commit(context.Background())
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestMachineBackReplaysReveal(t *testing.T) {
	h := newHarness(t, time.Millisecond, time.Second)
	h.toPlanSelection(t)
	_, _ = h.machine.SelectPlan("lifetime-plus")

	s, err := h.machine.Back()
	require.NoError(t, err)
	assert.Equal(t, StepBundleReveal, s.Step)
	assert.False(t, s.RevealComplete)
	assert.Equal(t, "lifetime-plus", s.SelectedPlanID)

	h.waitRevealComplete(t)
	s, err = h.machine.Proceed()
	require.NoError(t, err)
	assert.Equal(t, StepPlanSelection, s.Step)
}

func TestMachineItemDetailFlow(t *testing.T) {
	h := newHarness(t, time.Hour, time.Second)

	_, err := h.machine.Open(context.Background(), "99")
	assert.ErrorIs(t, err, ErrUnknownItem)

	s, err := h.machine.Open(context.Background(), "3")
	require.NoError(t, err)
	assert.Equal(t, StepItemDetail, s.Step)
	assert.Equal(t, "3", s.ItemID)

	s, err = h.machine.Continue()
	require.NoError(t, err)
	assert.Equal(t, StepBundleReveal, s.Step)

	s, err = h.machine.Back()
	require.NoError(t, err)
	assert.Equal(t, StepItemDetail, s.Step)
}

func TestMachineCommitIsSingleFlight(t *testing.T) {
	h := newHarness(t, time.Millisecond, 5*time.Second)
	release := make(chan struct{})
	h.intents.fn = func(ctx context.Context, _ payment.IntentRequest) (string, error) {
		select {
		case <-release:
			return "pi_42_secret_xyz", nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	h.toPlanSelection(t)
	_, _ = h.machine.SelectPlan("lifetime-basic")
	_, _ = h.machine.SetEmail("visitor@example.com")

	type result struct {
		s   Session
		err error
	}
	done := make(chan result, 1)
	go func() {
		s, err := h.machine.Commit(context.Background())
		done <- result{s, err}
	}()

	require.Eventually(t, func() bool {
		return h.machine.Session().Step == StepPaymentPending
	}, time.Second, time.Millisecond)

	_, err := h.machine.Commit(context.Background())
	assert.ErrorIs(t, err, ErrCommitInFlight)
	_, err = h.machine.Back()
	assert.ErrorIs(t, err, ErrInvalidTransition)

	close(release)
	r := <-done
	require.NoError(t, r.err)
	assert.Equal(t, StepSuccess, r.s.Step)
	assert.Equal(t, int32(1), h.intents.calls.Load())
}

func TestMachineCloseDiscardsPendingAttempt(t *testing.T) {
	h := newHarness(t, time.Millisecond, 5*time.Second)
	h.intents.fn = func(ctx context.Context, _ payment.IntentRequest) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}
	h.toPlanSelection(t)
	_, _ = h.machine.SelectPlan("lifetime-basic")
	_, _ = h.machine.SetEmail("visitor@example.com")

	done := make(chan error, 1)
	go func() {
		_, err := h.machine.Commit(context.Background())
		done <- err
	}()
	require.Eventually(t, func() bool {
		return h.machine.Session().Step == StepPaymentPending
	}, time.Second, time.Millisecond)

	h.machine.Close()

	select {
	case err := <-done:
		assert.True(t, errors.Is(err, ErrSessionClosed))
	case <-time.After(2 * time.Second):
		t.Fatal("commit did not return after close")
	}
	s := h.machine.Session()
	assert.Equal(t, StepIdle, s.Step)
	assert.Nil(t, s.Attempt)
}

func TestMachineCloseLeavesOfferTimerAnchor(t *testing.T) {
	cat, err := catalog.Default()
	require.NoError(t, err)

	store := timer.NewMemoryStore()
	offer, err := timer.New(store, timer.Config{Key: "offer_timer_test", Cycle: time.Hour})
	require.NoError(t, err)
	require.NoError(t, offer.Initialize(context.Background()))
	before, ok, err := store.Get(context.Background(), "offer_timer_test")
	require.NoError(t, err)
	require.True(t, ok)

	observer := &recordingObserver{}
	orchestrator := payment.NewOrchestrator(&stubIntents{}, &stubPrimary{}, &stubSecondary{}, nopRedirector{}, payment.Config{})
	m := NewMachine(cat, reveal.NewSequencer(reveal.Config{Interval: time.Hour}), orchestrator, offer, observer, Config{TimerTick: 2 * time.Millisecond})

	_, err = m.Open(context.Background(), "")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		observer.mu.Lock()
		defer observer.mu.Unlock()
		return observer.ticks > 0
	}, time.Second, time.Millisecond)

	m.Close()
	assert.Equal(t, StepIdle, m.Session().Step)

	after, ok, err := store.Get(context.Background(), "offer_timer_test")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, before, after)
}

func TestMachinePreselectsDefaultPlan(t *testing.T) {
	cat, err := catalog.Default()
	require.NoError(t, err)
	orchestrator := payment.NewOrchestrator(&stubIntents{}, &stubPrimary{}, &stubSecondary{}, nopRedirector{}, payment.Config{})
	m := NewMachine(cat, reveal.NewSequencer(reveal.Config{Interval: time.Millisecond}), orchestrator, nil, nil, Config{PreselectDefaultPlan: true})
	t.Cleanup(m.Close)

	_, err = m.Open(context.Background(), "")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return m.Session().RevealComplete }, 2*time.Second, time.Millisecond)

	s, err := m.Proceed()
	require.NoError(t, err)
	assert.Equal(t, cat.DefaultPlanID, s.SelectedPlanID)
}

func TestMachineValidationErrorReachesObserver(t *testing.T) {
	h := newHarness(t, time.Millisecond, time.Second)
	h.toPlanSelection(t)
	_, _ = h.machine.SelectPlan("lifetime-basic")
	_, _ = h.machine.SetEmail("nope")

	_, err := h.machine.Commit(context.Background())
	require.ErrorIs(t, err, ErrInvalidEmail)

	last := h.observer.last()
	assert.Equal(t, StepPlanSelection, last.Step)
	assert.Equal(t, MessageInvalidEmail, last.LastError)
}

func TestMachineSelectPayPalSkipsIntent(t *testing.T) {
	h := newHarness(t, time.Millisecond, time.Second)
	h.toPlanSelection(t)
	_, _ = h.machine.SelectPlan("lifetime-plus")
	_, _ = h.machine.SetEmail("visitor@example.com")

	s, err := h.machine.SelectProvider(payment.ProviderSecondary)
	require.NoError(t, err)
	assert.Equal(t, payment.ProviderSecondary, s.Provider)
	assert.Empty(t, s.Notice)
	assert.Equal(t, payment.ProviderSecondary, h.observer.last().Provider)

	s, err = h.machine.Commit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StepSuccess, s.Step)
	assert.Equal(t, payment.ProviderSecondary, s.Attempt.Provider)
	assert.Equal(t, int32(0), h.intents.calls.Load())
	assert.Equal(t, int32(1), h.secondary.calls.Load())
}

func TestMachineSelectCardAgainUsesIntent(t *testing.T) {
	h := newHarness(t, time.Millisecond, time.Second)
	h.toPlanSelection(t)
	_, _ = h.machine.SelectPlan("lifetime-basic")
	_, _ = h.machine.SetEmail("visitor@example.com")

	_, err := h.machine.SelectProvider(payment.ProviderSecondary)
	require.NoError(t, err)
	s, err := h.machine.SelectProvider(payment.ProviderPrimary)
	require.NoError(t, err)
	assert.Equal(t, payment.ProviderPrimary, s.Provider)

	s, err = h.machine.Commit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, payment.ProviderPrimary, s.Attempt.Provider)
	assert.Equal(t, int32(1), h.intents.calls.Load())
	assert.Equal(t, int32(0), h.secondary.calls.Load())
}

func TestMachineSelectProviderRefusedWhilePending(t *testing.T) {
	h := newHarness(t, time.Millisecond, 5*time.Second)
	release := make(chan struct{})
	h.intents.fn = func(ctx context.Context, _ payment.IntentRequest) (string, error) {
		select {
		case <-release:
			return "pi_42_secret_xyz", nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	h.toPlanSelection(t)
	_, _ = h.machine.SelectPlan("lifetime-basic")
	_, _ = h.machine.SetEmail("visitor@example.com")

	done := make(chan Session, 1)
	go func() {
		s, _ := h.machine.Commit(context.Background())
		done <- s
	}()
	require.Eventually(t, func() bool {
		return h.machine.Session().Step == StepPaymentPending
	}, time.Second, time.Millisecond)

	s, err := h.machine.SelectProvider(payment.ProviderSecondary)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, StepPaymentPending, s.Step)
	assert.Equal(t, payment.ProviderPrimary, s.Provider)

	close(release)
	final := <-done
	assert.Equal(t, StepSuccess, final.Step)
	assert.Equal(t, payment.ProviderPrimary, final.Attempt.Provider)
}

func TestMachineSelectCardRefusedAfterDowngrade(t *testing.T) {
	h := newHarness(t, time.Millisecond, time.Second)
	h.intents.fn = func(context.Context, payment.IntentRequest) (string, error) {
		return "", payment.ErrIntentServiceNotDeployed
	}
	h.toPlanSelection(t)
	_, _ = h.machine.SelectPlan("lifetime-basic")
	_, _ = h.machine.SetEmail("visitor@example.com")

	_, err := h.machine.Commit(context.Background())
	require.NoError(t, err)

	s, err := h.machine.SelectProvider(payment.ProviderPrimary)
	assert.ErrorIs(t, err, ErrProviderUnavailable)
	assert.Equal(t, payment.ProviderSecondary, s.Provider)
	assert.Equal(t, payment.NoticeServerMaintenance, s.Notice)
}

func TestMachineCloseStopsTimerTicks(t *testing.T) {
	cat, err := catalog.Default()
	require.NoError(t, err)
	offer, err := timer.New(timer.NewMemoryStore(), timer.Config{Key: "offer_timer_test", Cycle: time.Hour})
	require.NoError(t, err)

	observer := &recordingObserver{}
	orchestrator := payment.NewOrchestrator(&stubIntents{}, &stubPrimary{}, &stubSecondary{}, nopRedirector{}, payment.Config{})
	m := NewMachine(cat, reveal.NewSequencer(reveal.Config{Interval: time.Hour}), orchestrator, offer, observer, Config{TimerTick: time.Millisecond})

	_, err = m.Open(context.Background(), "")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return observer.tickCount() > 2 }, time.Second, time.Millisecond)

	m.Close()
	ticks := observer.tickCount()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, ticks, observer.tickCount())
}
