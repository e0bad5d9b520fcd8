package types

import (
	"errors"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// ValidEmail applies the simple address check used before any payment attempt.
func ValidEmail(email string) bool {
	return emailPattern.MatchString(email)
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type HealthResponse struct {
	Status           string `json:"status"`
	Mode             string `json:"mode"`
	StripeConfigured bool   `json:"stripe_configured"`
}

type IntentItem struct {
	ID string `json:"id"`
}

type CreatePaymentIntentRequest struct {
	Items []IntentItem `json:"items"`
	Email string       `json:"email,omitempty"`

	RequestID string `json:"-"`
}

type CreatePaymentIntentResponse struct {
	ClientSecret string `json:"clientSecret"`
}

func NewCreatePaymentIntentRequestFromContext(ctx echo.Context) (*CreatePaymentIntentRequest, error) {
	var body CreatePaymentIntentRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}

	body.Email = strings.TrimSpace(body.Email)
	for i := range body.Items {
		body.Items[i].ID = strings.TrimSpace(body.Items[i].ID)
	}
	body.RequestID = strings.TrimSpace(ctx.Request().Header.Get(echo.HeaderXRequestID))
	if body.RequestID == "" {
		body.RequestID = strings.TrimSpace(ctx.Response().Header().Get(echo.HeaderXRequestID))
	}

	return &body, nil
}

func (r *CreatePaymentIntentRequest) Validate() error {
	if r.Email != "" && !ValidEmail(r.Email) {
		return errors.New("email is invalid")
	}
	for _, item := range r.Items {
		if item.ID == "" {
			return errors.New("items[].id is required")
		}
	}
	return nil
}

func (r *CreatePaymentIntentRequest) GetEmail() string {
	return r.Email
}

func (r *CreatePaymentIntentRequest) GetRequestID() string {
	return r.RequestID
}

// ItemIDs returns the requested item ids in order.
func (r *CreatePaymentIntentRequest) ItemIDs() []string {
	ids := make([]string, 0, len(r.Items))
	for _, item := range r.Items {
		ids = append(ids, item.ID)
	}
	return ids
}

type GetOfferTimerRequest struct {
	VisitorID string
}

func NewGetOfferTimerRequestFromContext(ctx echo.Context) (*GetOfferTimerRequest, error) {
	return &GetOfferTimerRequest{VisitorID: strings.TrimSpace(ctx.Param("visitor"))}, nil
}

func (r *GetOfferTimerRequest) GetVisitorID() string {
	return r.VisitorID
}

func (r *GetOfferTimerRequest) Validate() error {
	if r.VisitorID == "" {
		return errors.New("visitor is required")
	}
	if _, err := uuid.Parse(r.VisitorID); err != nil {
		return errors.New("visitor must be a uuid")
	}
	return nil
}

type OfferTimerResponse struct {
	VisitorID   string `json:"visitor_id"`
	AnchorMs    int64  `json:"anchor_ms"`
	CycleMs     int64  `json:"cycle_ms"`
	RemainingMs int64  `json:"remaining_ms"`
	Hours       int    `json:"hours"`
	Minutes     int    `json:"minutes"`
	Seconds     int    `json:"seconds"`
	Display     string `json:"display"`
}
