package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-checkout/app/catalog"
	"github.com/vibast-solutions/ms-go-checkout/app/factory"
	"github.com/vibast-solutions/ms-go-checkout/app/metrics"
	"github.com/vibast-solutions/ms-go-checkout/app/provider"
	"github.com/vibast-solutions/ms-go-checkout/config"
)

type createIntentRequest interface {
	ItemIDs() []string
	GetEmail() string
	GetRequestID() string
}

type planResolver interface {
	Resolve(key string) (catalog.Plan, error)
	DefaultPlan() catalog.Plan
}

type IntentResult struct {
	IntentID     string
	ClientSecret string
	Plan         catalog.Plan
}

type IntentService struct {
	plans    planResolver
	registry *provider.Registry
	cfg      config.IntentConfig
	metrics  metrics.Recorder
	logger   logrus.FieldLogger
	now      func() time.Time
}

func NewIntentService(plans planResolver, registry *provider.Registry, cfg config.IntentConfig, recorder metrics.Recorder) *IntentService {
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	return &IntentService{
		plans:    plans,
		registry: registry,
		cfg:      cfg,
		metrics:  recorder,
		logger:   factory.NewModuleLogger("intent-service"),
		now:      time.Now,
	}
}

// Configured reports whether a provider can issue intents. The HTTP route is
// only mounted when this is true.
func (s *IntentService) Configured() bool {
	_, err := s.registry.Active()
	return err == nil
}

func (s *IntentService) CreateIntent(ctx context.Context, req createIntentRequest) (*IntentResult, error) {
	plan, err := s.resolvePlan(req.ItemIDs())
	if err != nil {
		s.metrics.ObserveIntent(metrics.IntentResultInvalid, 0)
		return nil, err
	}

	p, err := s.registry.Active()
	if err != nil {
		s.metrics.ObserveIntent(metrics.IntentResultNotConfigured, 0)
		return nil, ErrProviderNotConfigured
	}

	currency := strings.ToLower(strings.TrimSpace(s.cfg.Currency))
	if currency == "" {
		currency = plan.Currency
	}
	requestID := strings.TrimSpace(req.GetRequestID())

	started := s.now()
	out, err := p.CreateIntent(ctx, &provider.IntentInput{
		RequestID:      requestID,
		IdempotencyKey: requestID,
		AmountCents:    plan.AmountCents,
		Currency:       currency,
		Description:    s.cfg.Description,
		ReceiptEmail:   strings.TrimSpace(req.GetEmail()),
		Metadata: map[string]string{
			"product_id": s.cfg.ProductID,
			"plan_id":    plan.ID,
		},
	})
	elapsed := s.now().Sub(started)

	l := s.logger.WithFields(logrus.Fields{
		"provider":   p.Name(),
		"plan_id":    plan.ID,
		"request_id": requestID,
	})
	if err != nil {
		switch {
		case errors.Is(err, provider.ErrProviderRejected):
			s.metrics.ObserveIntent(metrics.IntentResultRejected, elapsed)
			l.WithError(err).Warn("intent_rejected")
			return nil, fmt.Errorf("%w: %v", ErrIntentRejected, err)
		case errors.Is(err, provider.ErrProviderNotConfigured):
			s.metrics.ObserveIntent(metrics.IntentResultNotConfigured, elapsed)
			return nil, ErrProviderNotConfigured
		default:
			s.metrics.ObserveIntent(metrics.IntentResultError, elapsed)
			l.WithError(err).Error("intent_failed")
			return nil, fmt.Errorf("%w: %v", ErrIntentFailed, err)
		}
	}

	s.metrics.ObserveIntent(metrics.IntentResultCreated, elapsed)
	l.WithField("intent_id", out.ID).WithField("amount_cents", plan.AmountCents).Info("intent_created")

	return &IntentResult{IntentID: out.ID, ClientSecret: out.ClientSecret, Plan: plan}, nil
}

// resolvePlan maps item ids to exactly one plan. An empty list selects the default plan.
func (s *IntentService) resolvePlan(itemIDs []string) (catalog.Plan, error) {
	if len(itemIDs) == 0 {
		return s.plans.DefaultPlan(), nil
	}

	var resolved catalog.Plan
	for i, id := range itemIDs {
		plan, err := s.plans.Resolve(id)
		if err != nil {
			return catalog.Plan{}, fmt.Errorf("%w: %q", ErrUnknownItem, id)
		}
		if i > 0 && plan.ID != resolved.ID {
			return catalog.Plan{}, ErrMixedPlans
		}
		resolved = plan
	}
	return resolved, nil
}
