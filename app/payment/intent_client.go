package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/vibast-solutions/ms-go-checkout/app/types"
)

type IntentRequest struct {
	ItemIDs        []string
	Email          string
	IdempotencyKey string
}

type IntentIssuer interface {
	CreateIntent(ctx context.Context, req IntentRequest) (clientSecret string, err error)
}

// IntentClient calls the intent issuance service over HTTP.
type IntentClient struct {
	baseURL string
	client  *http.Client
}

func NewIntentClient(baseURL string, timeout time.Duration) *IntentClient {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &IntentClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// CreateIntent returns ErrIntentServiceNotDeployed on 404 and wraps
// ErrIntentServiceUnreachable for every other failure.
func (c *IntentClient) CreateIntent(ctx context.Context, in IntentRequest) (string, error) {
	payload := types.CreatePaymentIntentRequest{Email: in.Email}
	for _, id := range in.ItemIDs {
		payload.Items = append(payload.Items, types.IntentItem{ID: id})
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/create-payment-intent", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrIntentServiceUnreachable, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if in.IdempotencyKey != "" {
		req.Header.Set("X-Request-ID", in.IdempotencyKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrIntentServiceUnreachable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("%w: read body: %v", ErrIntentServiceUnreachable, err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return "", ErrIntentServiceNotDeployed
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var failure types.ErrorResponse
		_ = json.Unmarshal(raw, &failure)
		return "", fmt.Errorf("%w: status=%d error=%s", ErrIntentServiceUnreachable, resp.StatusCode, failure.Error)
	}

	var out types.CreatePaymentIntentResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", ErrIntentServiceUnreachable, err)
	}
	if strings.TrimSpace(out.ClientSecret) == "" {
		return "", fmt.Errorf("%w: empty client secret", ErrIntentServiceUnreachable)
	}
	return out.ClientSecret, nil
}
