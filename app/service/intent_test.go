package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/vibast-solutions/ms-go-checkout/app/catalog"
	"github.com/vibast-solutions/ms-go-checkout/app/provider"
	"github.com/vibast-solutions/ms-go-checkout/app/types"
	"github.com/vibast-solutions/ms-go-checkout/config"
)

type fakeProvider struct {
	configured bool
	inputs     []*provider.IntentInput
	createFn   func(ctx context.Context, input *provider.IntentInput) (*provider.IntentOutput, error)
}

func (f *fakeProvider) Name() string     { return "fake" }
func (f *fakeProvider) Configured() bool { return f.configured }

func (f *fakeProvider) CreateIntent(ctx context.Context, input *provider.IntentInput) (*provider.IntentOutput, error) {
	f.inputs = append(f.inputs, input)
	if f.createFn != nil {
		return f.createFn(ctx, input)
	}
	return &provider.IntentOutput{ID: "pi_1", ClientSecret: "pi_1_secret_1", Status: "requires_payment_method"}, nil
}

type fakeRecorder struct {
	mu      sync.Mutex
	intents []string
	reads   int
}

func (r *fakeRecorder) ObserveIntent(result string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.intents = append(r.intents, result)
}

func (r *fakeRecorder) IncRateLimited() {}

func (r *fakeRecorder) IncOfferTimerRead() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reads++
}

func newTestIntentService(t *testing.T, p *fakeProvider) (*IntentService, *fakeRecorder) {
	t.Helper()
	cat, err := catalog.Default()
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}
	recorder := &fakeRecorder{}
	svc := NewIntentService(cat, provider.NewRegistry(p), config.IntentConfig{
		Currency:    "usd",
		Description: "Avada Design Bundle",
		ProductID:   "lifetime-bundle-01",
	}, recorder)
	return svc, recorder
}

func TestCreateIntentDefaultPlan(t *testing.T) {
	p := &fakeProvider{configured: true}
	svc, recorder := newTestIntentService(t, p)

	res, err := svc.CreateIntent(context.Background(), &types.CreatePaymentIntentRequest{
		Email:     "visitor@example.com",
		RequestID: "req-123",
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if res.ClientSecret != "pi_1_secret_1" || res.Plan.ID != "lifetime-basic" {
		t.Fatalf("unexpected result: %+v", res)
	}

	if len(p.inputs) != 1 {
		t.Fatalf("expected one provider call, got %d", len(p.inputs))
	}
	in := p.inputs[0]
	if in.AmountCents != 4900 || in.Currency != "usd" {
		t.Fatalf("unexpected amount: %d %s", in.AmountCents, in.Currency)
	}
	if in.IdempotencyKey != "req-123" || in.ReceiptEmail != "visitor@example.com" {
		t.Fatalf("unexpected input: %+v", in)
	}
	if in.Metadata["product_id"] != "lifetime-bundle-01" || in.Description != "Avada Design Bundle" {
		t.Fatalf("unexpected metadata: %+v", in.Metadata)
	}
	if len(recorder.intents) != 1 || recorder.intents[0] != "created" {
		t.Fatalf("unexpected metrics: %v", recorder.intents)
	}
}

func TestCreateIntentResolvesAlias(t *testing.T) {
	p := &fakeProvider{configured: true}
	svc, _ := newTestIntentService(t, p)

	res, err := svc.CreateIntent(context.Background(), &types.CreatePaymentIntentRequest{
		Items: []types.IntentItem{{ID: "lifetime-bundle"}},
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if res.Plan.ID != "lifetime-basic" {
		t.Fatalf("expected alias to resolve to lifetime-basic, got %s", res.Plan.ID)
	}

	res, err = svc.CreateIntent(context.Background(), &types.CreatePaymentIntentRequest{
		Items: []types.IntentItem{{ID: "lifetime-plus"}},
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if p.inputs[1].AmountCents != 9900 || res.Plan.ID != "lifetime-plus" {
		t.Fatalf("unexpected plus intent: %+v", p.inputs[1])
	}
}

func TestCreateIntentRejectsUnknownAndMixedItems(t *testing.T) {
	p := &fakeProvider{configured: true}
	svc, recorder := newTestIntentService(t, p)

	_, err := svc.CreateIntent(context.Background(), &types.CreatePaymentIntentRequest{
		Items: []types.IntentItem{{ID: "nope"}},
	})
	if !errors.Is(err, ErrUnknownItem) {
		t.Fatalf("expected ErrUnknownItem, got %v", err)
	}

	_, err = svc.CreateIntent(context.Background(), &types.CreatePaymentIntentRequest{
		Items: []types.IntentItem{{ID: "lifetime-basic"}, {ID: "lifetime-plus"}},
	})
	if !errors.Is(err, ErrMixedPlans) {
		t.Fatalf("expected ErrMixedPlans, got %v", err)
	}
	if len(p.inputs) != 0 {
		t.Fatalf("expected no provider calls, got %d", len(p.inputs))
	}
	if len(recorder.intents) != 2 || recorder.intents[0] != "invalid" {
		t.Fatalf("unexpected metrics: %v", recorder.intents)
	}
}

func TestCreateIntentNotConfigured(t *testing.T) {
	svc, _ := newTestIntentService(t, &fakeProvider{})
	if svc.Configured() {
		t.Fatal("expected service to be unconfigured")
	}
	_, err := svc.CreateIntent(context.Background(), &types.CreatePaymentIntentRequest{})
	if !errors.Is(err, ErrProviderNotConfigured) {
		t.Fatalf("expected ErrProviderNotConfigured, got %v", err)
	}
}

func TestCreateIntentMapsProviderErrors(t *testing.T) {
	p := &fakeProvider{configured: true}
	svc, recorder := newTestIntentService(t, p)

	p.createFn = func(context.Context, *provider.IntentInput) (*provider.IntentOutput, error) {
		return nil, fmt.Errorf("%w: amount too small", provider.ErrProviderRejected)
	}
	_, err := svc.CreateIntent(context.Background(), &types.CreatePaymentIntentRequest{})
	if !errors.Is(err, ErrIntentRejected) {
		t.Fatalf("expected ErrIntentRejected, got %v", err)
	}

	p.createFn = func(context.Context, *provider.IntentInput) (*provider.IntentOutput, error) {
		return nil, errors.New("connection reset")
	}
	_, err = svc.CreateIntent(context.Background(), &types.CreatePaymentIntentRequest{})
	if !errors.Is(err, ErrIntentFailed) {
		t.Fatalf("expected ErrIntentFailed, got %v", err)
	}

	if len(recorder.intents) != 2 || recorder.intents[0] != "rejected" || recorder.intents[1] != "error" {
		t.Fatalf("unexpected metrics: %v", recorder.intents)
	}
}
