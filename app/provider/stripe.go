package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v79"
	stripeclient "github.com/stripe/stripe-go/v79/client"
)

const StripeName = "stripe"

var stripeKeyPrefixes = []string{"sk_live_", "sk_test_", "rk_"}

type StripeConfig struct {
	SecretKey   string
	APIBaseURL  string
	HTTPTimeout time.Duration
	Logger      logrus.FieldLogger
}

type StripeProvider struct {
	cfg    StripeConfig
	client *stripeclient.API
}

func NewStripeProvider(cfg StripeConfig) *StripeProvider {
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	cfg.SecretKey = strings.TrimSpace(cfg.SecretKey)

	backendCfg := &stripe.BackendConfig{
		HTTPClient:        &http.Client{Timeout: timeout},
		MaxNetworkRetries: stripe.Int64(0),
	}
	if base := strings.TrimRight(strings.TrimSpace(cfg.APIBaseURL), "/"); base != "" {
		backendCfg.URL = stripe.String(base)
	}
	if cfg.Logger != nil {
		backendCfg.LeveledLogger = cfg.Logger
	}

	p := &StripeProvider{cfg: cfg}
	if p.Configured() {
		p.client = stripeclient.New(cfg.SecretKey, &stripe.Backends{
			API:     stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg),
			Connect: stripe.GetBackendWithConfig(stripe.ConnectBackend, backendCfg),
			Uploads: stripe.GetBackendWithConfig(stripe.UploadsBackend, backendCfg),
		})
	}
	return p
}

func (p *StripeProvider) Name() string {
	return StripeName
}

// Configured reports whether the secret key has a recognised live, test or restricted prefix.
func (p *StripeProvider) Configured() bool {
	return ValidStripeKey(p.cfg.SecretKey)
}

func ValidStripeKey(key string) bool {
	for _, prefix := range stripeKeyPrefixes {
		if strings.HasPrefix(key, prefix) {
			return true
		}
	}
	return false
}

func (p *StripeProvider) CreateIntent(ctx context.Context, input *IntentInput) (*IntentOutput, error) {
	if p.client == nil {
		return nil, ErrProviderNotConfigured
	}
	if input.AmountCents <= 0 {
		return nil, errors.New("intent amount must be positive")
	}

	params := &stripe.PaymentIntentParams{
		Amount:             stripe.Int64(input.AmountCents),
		Currency:           stripe.String(strings.ToLower(input.Currency)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
	}
	params.Context = ctx
	if s := strings.TrimSpace(input.Description); s != "" {
		params.Description = stripe.String(s)
	}
	if s := strings.TrimSpace(input.ReceiptEmail); s != "" {
		params.ReceiptEmail = stripe.String(s)
	}
	for k, v := range input.Metadata {
		params.AddMetadata(k, v)
	}
	if input.RequestID != "" {
		params.AddMetadata("request_id", input.RequestID)
	}
	if input.IdempotencyKey != "" {
		params.SetIdempotencyKey(input.IdempotencyKey)
	}

	intent, err := p.client.PaymentIntents.New(params)
	if err != nil {
		return nil, mapStripeError(err)
	}
	if strings.TrimSpace(intent.ClientSecret) == "" {
		return nil, errors.New("stripe payment intent client secret missing")
	}

	return &IntentOutput{
		ID:           intent.ID,
		ClientSecret: intent.ClientSecret,
		Status:       string(intent.Status),
	}, nil
}

func mapStripeError(err error) error {
	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) {
		return fmt.Errorf("stripe create payment intent failed: %w", err)
	}
	if stripeErr.HTTPStatusCode >= 400 && stripeErr.HTTPStatusCode < 500 && stripeErr.HTTPStatusCode != http.StatusUnauthorized {
		return fmt.Errorf("%w: %s", ErrProviderRejected, stripeErr.Msg)
	}
	return fmt.Errorf("stripe create payment intent failed: status=%d type=%s: %w", stripeErr.HTTPStatusCode, stripeErr.Type, err)
}
