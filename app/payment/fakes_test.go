package payment

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/vibast-solutions/ms-go-checkout/app/catalog"
)

type fakeIntents struct {
	calls    atomic.Int32
	mu       sync.Mutex
	requests []IntentRequest
	fn       func(ctx context.Context, req IntentRequest) (string, error)
}

func (f *fakeIntents) CreateIntent(ctx context.Context, req IntentRequest) (string, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if f.fn != nil {
		return f.fn(ctx, req)
	}
	return "pi_123_secret_abc", nil
}

type fakePrimary struct {
	mountFn   func(ctx context.Context, secret string) (*Mount, error)
	confirmFn func(ctx context.Context, mount *Mount, req ConfirmRequest) (*ConfirmResult, error)
}

func (f *fakePrimary) Mount(ctx context.Context, secret string) (*Mount, error) {
	if f.mountFn != nil {
		return f.mountFn(ctx, secret)
	}
	return &Mount{IntentID: "pi_123", ClientSecret: secret, AmountCents: 4900, Currency: "usd"}, nil
}

func (f *fakePrimary) Confirm(ctx context.Context, mount *Mount, req ConfirmRequest) (*ConfirmResult, error) {
	if f.confirmFn != nil {
		return f.confirmFn(ctx, mount, req)
	}
	return &ConfirmResult{Kind: ConfirmSucceeded, Reference: mount.IntentID}, nil
}

type fakeRedirector struct {
	mu   sync.Mutex
	urls []string
	err  error
}

func (f *fakeRedirector) Open(_ context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.urls = append(f.urls, url)
	return f.err
}

func (f *fakeRedirector) opened() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.urls...)
}

func testPlan() catalog.Plan {
	return catalog.Plan{ID: "lifetime-basic", Name: "The Digital Collection", AmountCents: 4900, Currency: "usd"}
}
