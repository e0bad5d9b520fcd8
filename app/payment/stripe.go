package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type StripeConfig struct {
	PublishableKey string
	BaseURL        string
	HTTPTimeout    time.Duration
	// PaymentToken is the tokenized card collected by the payment UI, e.g. tok_visa.
	PaymentToken string
}

// StripeProcessor retrieves and confirms payment intents with a publishable key
// and the intent's client secret, the same calls the hosted card element makes.
type StripeProcessor struct {
	cfg    StripeConfig
	client *http.Client
}

func NewStripeProcessor(cfg StripeConfig) *StripeProcessor {
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = "https://api.stripe.com"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &StripeProcessor{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

type stripeIntent struct {
	ID               string `json:"id"`
	Status           string `json:"status"`
	Amount           int64  `json:"amount"`
	Currency         string `json:"currency"`
	LastPaymentError *struct {
		Message string `json:"message"`
	} `json:"last_payment_error"`
	NextAction *struct {
		Type          string `json:"type"`
		RedirectToURL *struct {
			URL string `json:"url"`
		} `json:"redirect_to_url"`
	} `json:"next_action"`
}

type stripeErrorEnvelope struct {
	Error struct {
		Type        string `json:"type"`
		Code        string `json:"code"`
		DeclineCode string `json:"decline_code"`
		Message     string `json:"message"`
	} `json:"error"`
}

func (p *StripeProcessor) Mount(ctx context.Context, clientSecret string) (*Mount, error) {
	if strings.TrimSpace(p.cfg.PublishableKey) == "" {
		return nil, errors.New("stripe publishable key is not configured")
	}
	intentID, err := intentIDFromSecret(clientSecret)
	if err != nil {
		return nil, err
	}

	endpoint := p.cfg.BaseURL + "/v1/payment_intents/" + url.PathEscape(intentID) + "?client_secret=" + url.QueryEscape(clientSecret)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+p.cfg.PublishableKey)

	status, body, err := p.do(req)
	if err != nil {
		return nil, err
	}
	if status >= 400 {
		return nil, fmt.Errorf("stripe retrieve intent failed: status=%d body=%s", status, string(body))
	}

	var intent stripeIntent
	if err := json.Unmarshal(body, &intent); err != nil {
		return nil, err
	}

	return &Mount{
		IntentID:     intent.ID,
		ClientSecret: clientSecret,
		AmountCents:  intent.Amount,
		Currency:     intent.Currency,
		Status:       intent.Status,
	}, nil
}

func (p *StripeProcessor) Confirm(ctx context.Context, mount *Mount, in ConfirmRequest) (*ConfirmResult, error) {
	if strings.TrimSpace(p.cfg.PaymentToken) == "" {
		return &ConfirmResult{Kind: ConfirmDeclined, Message: "Please enter your card details."}, nil
	}

	form := url.Values{}
	form.Set("client_secret", mount.ClientSecret)
	form.Set("payment_method_data[type]", "card")
	form.Set("payment_method_data[card][token]", p.cfg.PaymentToken)
	setIfNotEmpty(form, "return_url", in.ReturnURL)
	setIfNotEmpty(form, "receipt_email", in.ReceiptEmail)
	setIfNotEmpty(form, "payment_method_data[billing_details][name]", in.Billing.Name)
	setIfNotEmpty(form, "payment_method_data[billing_details][email]", in.Billing.Email)
	setIfNotEmpty(form, "payment_method_data[billing_details][address][line1]", in.Billing.Line1)
	setIfNotEmpty(form, "payment_method_data[billing_details][address][city]", in.Billing.City)
	setIfNotEmpty(form, "payment_method_data[billing_details][address][postal_code]", in.Billing.PostalCode)
	setIfNotEmpty(form, "payment_method_data[billing_details][address][country]", in.Billing.Country)

	endpoint := p.cfg.BaseURL + "/v1/payment_intents/" + url.PathEscape(mount.IntentID) + "/confirm"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+p.cfg.PublishableKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	status, body, err := p.do(req)
	if err != nil {
		return nil, err
	}

	if status >= 400 {
		var envelope stripeErrorEnvelope
		if jsonErr := json.Unmarshal(body, &envelope); jsonErr == nil && isUserFacingStripeError(status, envelope.Error.Type) {
			return &ConfirmResult{Kind: ConfirmDeclined, Message: envelope.Error.Message}, nil
		}
		return nil, fmt.Errorf("stripe confirm failed: status=%d body=%s", status, string(body))
	}

	var intent stripeIntent
	if err := json.Unmarshal(body, &intent); err != nil {
		return nil, err
	}

	switch intent.Status {
	case "succeeded", "processing":
		return &ConfirmResult{Kind: ConfirmSucceeded, Reference: intent.ID}, nil
	case "requires_action":
		if intent.NextAction != nil && intent.NextAction.RedirectToURL != nil && intent.NextAction.RedirectToURL.URL != "" {
			return &ConfirmResult{Kind: ConfirmRedirect, Reference: intent.ID, RedirectURL: intent.NextAction.RedirectToURL.URL}, nil
		}
	}

	message := ""
	if intent.LastPaymentError != nil {
		message = intent.LastPaymentError.Message
	}
	return &ConfirmResult{Kind: ConfirmDeclined, Reference: intent.ID, Message: message}, nil
}

func (p *StripeProcessor) do(req *http.Request) (int, []byte, error) {
	resp, err := p.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, body, nil
}

func isUserFacingStripeError(status int, errType string) bool {
	if status == http.StatusUnauthorized || status == http.StatusForbidden || status >= 500 {
		return false
	}
	return errType == "card_error" || errType == "validation_error"
}

func intentIDFromSecret(clientSecret string) (string, error) {
	idx := strings.Index(clientSecret, "_secret_")
	if idx <= 0 {
		return "", ErrInvalidClientSecret
	}
	return clientSecret[:idx], nil
}

func setIfNotEmpty(form url.Values, key, value string) {
	if strings.TrimSpace(value) != "" {
		form.Set(key, value)
	}
}
