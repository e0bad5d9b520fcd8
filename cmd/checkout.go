package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/vibast-solutions/ms-go-checkout/app/catalog"
	"github.com/vibast-solutions/ms-go-checkout/app/checkout"
	"github.com/vibast-solutions/ms-go-checkout/app/payment"
	"github.com/vibast-solutions/ms-go-checkout/app/reveal"
	"github.com/vibast-solutions/ms-go-checkout/app/timer"
	"github.com/vibast-solutions/ms-go-checkout/config"
)

var (
	checkoutItem      string
	checkoutPlan      string
	checkoutEmail     string
	checkoutCardToken string
	checkoutProvider  string
	checkoutRetries   int
)

var checkoutCmd = &cobra.Command{
	Use:   "checkout",
	Short: "Run one checkout session headlessly",
	Long:  "Open a checkout session, play the bundle reveal, select a plan and pay with the card processor or the PayPal fallback.",
	RunE:  runCheckout,
}

func init() {
	checkoutCmd.Flags().StringVar(&checkoutItem, "item", "", "Catalog item to open on (empty opens the bundle reveal)")
	checkoutCmd.Flags().StringVar(&checkoutPlan, "plan", "", "Plan id (defaults to the catalog default plan)")
	checkoutCmd.Flags().StringVar(&checkoutEmail, "email", "", "Contact email")
	checkoutCmd.Flags().StringVar(&checkoutCardToken, "card-token", "", "Tokenized card for the card processor, e.g. tok_visa")
	checkoutCmd.Flags().StringVar(&checkoutProvider, "provider", "", "Payment method: card or paypal (defaults to card when configured)")
	checkoutCmd.Flags().IntVar(&checkoutRetries, "retries", 2, "Extra commit attempts after a decline or a downgrade to PayPal")
	rootCmd.AddCommand(checkoutCmd)
}

func runCheckout(cmd *cobra.Command, _ []string) error {
	provider, err := parseCheckoutProvider(checkoutProvider)
	if err != nil {
		return err
	}
	cfg := mustLoadConfig()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cat, err := catalog.Load(cfg.App.CatalogPath)
	if err != nil {
		return err
	}

	store, cleanup, err := createAnchorStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	offer, err := timer.New(store, timer.Config{Key: cfg.Timer.StorageKey, Cycle: cfg.Timer.Cycle})
	if err != nil {
		return err
	}

	observer := newConsoleObserver(cmd.OutOrStdout())
	machine := checkout.NewMachine(
		cat,
		reveal.NewSequencer(reveal.Config{Interval: cfg.Checkout.RevealInterval, Settle: cfg.Checkout.RevealSettle}),
		newOrchestrator(cfg, observer, checkoutCardToken),
		offer,
		observer,
		checkout.Config{TimerTick: cfg.Checkout.TimerTick, PreselectDefaultPlan: true},
	)
	defer machine.Close()

	return driveCheckout(ctx, machine, observer, checkoutSettings{
		ItemID:   checkoutItem,
		PlanID:   checkoutPlan,
		Email:    checkoutEmail,
		Provider: provider,
		Retries:  checkoutRetries,
	})
}

func parseCheckoutProvider(value string) (payment.Provider, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "":
		return 0, nil
	case "card":
		return payment.ProviderPrimary, nil
	case "paypal":
		return payment.ProviderSecondary, nil
	default:
		return 0, fmt.Errorf("unknown provider %q: use card or paypal", value)
	}
}

func newOrchestrator(cfg *config.Config, out io.Writer, cardToken string) *payment.Orchestrator {
	logger := logrus.WithField("module", "checkout-client")
	redirector := payment.NewWriterRedirector(out, logger)

	var primary payment.PrimaryProcessor
	if cfg.Stripe.PublishableKey != "" {
		primary = payment.NewStripeProcessor(payment.StripeConfig{
			PublishableKey: cfg.Stripe.PublishableKey,
			BaseURL:        cfg.Stripe.APIBaseURL,
			HTTPTimeout:    cfg.Stripe.HTTPTimeout,
			PaymentToken:   cardToken,
		})
	} else {
		logger.Warn("STRIPE_PUBLISHABLE_KEY not set; starting on PayPal")
	}

	return payment.NewOrchestrator(
		payment.NewIntentClient(cfg.Checkout.ServiceURL, cfg.Checkout.IntentTimeout),
		primary,
		payment.NewPayPalProcessor(payment.PayPalConfig{
			BusinessEmail: cfg.PayPal.BusinessEmail,
			CheckoutURL:   cfg.PayPal.CheckoutURL,
		}, redirector),
		redirector,
		payment.Config{
			IntentTimeout: cfg.Checkout.IntentTimeout,
			ReturnURL:     cfg.Checkout.ReturnURL,
		},
	)
}

// checkoutSettings.Provider zero keeps the orchestrator's starting provider.
type checkoutSettings struct {
	ItemID   string
	PlanID   string
	Email    string
	Provider payment.Provider
	Retries  int
}

type checkoutDriver interface {
	Open(ctx context.Context, itemID string) (checkout.Session, error)
	Continue() (checkout.Session, error)
	Proceed() (checkout.Session, error)
	SelectPlan(planID string) (checkout.Session, error)
	SetEmail(email string) (checkout.Session, error)
	SelectProvider(p payment.Provider) (checkout.Session, error)
	Commit(ctx context.Context) (checkout.Session, error)
}

var (
	errCheckoutIncomplete = errors.New("checkout did not complete")
	errConnectionError    = errors.New("payment server unreachable")
)

// driveCheckout walks a session from open to a terminal outcome. Declines and
// downgrades are recommitted up to settings.Retries times; a connection error
// stops the run and is left for the visitor to retry.
func driveCheckout(ctx context.Context, m checkoutDriver, observer *consoleObserver, settings checkoutSettings) error {
	s, err := m.Open(ctx, settings.ItemID)
	if err != nil {
		return err
	}
	if s.Step == checkout.StepItemDetail {
		if _, err := m.Continue(); err != nil {
			return err
		}
	}

	select {
	case <-observer.revealComplete():
	case <-ctx.Done():
		return ctx.Err()
	}
	if _, err := m.Proceed(); err != nil {
		return err
	}

	if settings.PlanID != "" {
		if _, err := m.SelectPlan(settings.PlanID); err != nil {
			return err
		}
	}
	if _, err := m.SetEmail(settings.Email); err != nil {
		return err
	}
	if settings.Provider != 0 {
		if _, err := m.SelectProvider(settings.Provider); err != nil {
			return fmt.Errorf("select %s: %w", settings.Provider, err)
		}
	}

	for attempt := 0; attempt <= settings.Retries; attempt++ {
		s, err = m.Commit(ctx)
		if err != nil {
			if checkout.IsValidation(err) {
				return fmt.Errorf("%s: %w", s.LastError, err)
			}
			return err
		}

		switch s.Step {
		case checkout.StepSuccess:
			observer.printf("Payment complete (%s, reference %s)\n", s.Provider, s.Attempt.ExternalReference)
			return nil
		case checkout.StepConnectionError:
			observer.printf("%s\n", s.LastError)
			return errConnectionError
		case checkout.StepPlanSelection:
			if s.Notice != "" {
				observer.printf("%s\n", s.Notice)
			}
			if s.LastError != "" {
				observer.printf("%s\n", s.LastError)
			}
		}
	}
	return errCheckoutIncomplete
}

// consoleObserver renders machine notifications as plain text lines.
type consoleObserver struct {
	out io.Writer

	mu        sync.Mutex
	lastTimer string
	done      chan struct{}
	doneOnce  sync.Once
}

func newConsoleObserver(out io.Writer) *consoleObserver {
	return &consoleObserver{out: out, done: make(chan struct{})}
}

func (o *consoleObserver) printf(format string, args ...interface{}) {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, _ = fmt.Fprintf(o.out, format, args...)
}

// Write lets redirect notices share the observer's serialized output.
func (o *consoleObserver) Write(p []byte) (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.out.Write(p)
}

func (o *consoleObserver) revealComplete() <-chan struct{} {
	return o.done
}

func (o *consoleObserver) StepChanged(s checkout.Session) {
	if s.Step == checkout.StepBundleReveal && s.RevealComplete {
		o.printf("Bundle unlocked: %d items\n", s.RevealTotal)
		o.doneOnce.Do(func() { close(o.done) })
		return
	}
	o.printf("[%s]\n", s.Step)
}

func (o *consoleObserver) ItemRevealed(added, total int) {
	o.printf("  + item %d/%d\n", added, total)
}

func (o *consoleObserver) TimerTicked(c timer.Countdown) {
	display := c.String()
	o.mu.Lock()
	changed := display[:5] != o.lastTimer
	if changed {
		o.lastTimer = display[:5]
	}
	o.mu.Unlock()
	if changed {
		o.printf("Offer ends in %s\n", display)
	}
}

var _ checkout.Observer = (*consoleObserver)(nil)
