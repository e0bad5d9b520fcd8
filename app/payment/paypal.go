package payment

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-checkout/app/catalog"
)

type PayPalConfig struct {
	BusinessEmail string
	CheckoutURL   string
}

// PayPalProcessor hands the visitor off to a PayPal Standard "_xclick" checkout.
// Settlement is confirmed by PayPal at the return URL, out of band.
type PayPalProcessor struct {
	cfg        PayPalConfig
	redirector Redirector
}

func NewPayPalProcessor(cfg PayPalConfig, redirector Redirector) *PayPalProcessor {
	if strings.TrimSpace(cfg.CheckoutURL) == "" {
		cfg.CheckoutURL = "https://www.paypal.com/cgi-bin/webscr"
	}
	return &PayPalProcessor{cfg: cfg, redirector: redirector}
}

func (p *PayPalProcessor) HandoffURL(req HandoffRequest) string {
	q := url.Values{}
	q.Set("cmd", "_xclick")
	q.Set("business", p.cfg.BusinessEmail)
	q.Set("item_name", req.Plan.Name)
	q.Set("item_number", req.Plan.ID)
	q.Set("amount", catalog.FormatCents(req.Plan.AmountCents))
	q.Set("currency_code", strings.ToUpper(req.Plan.Currency))
	q.Set("no_shipping", "1")
	q.Set("invoice", req.Reference)
	setIfNotEmpty(q, "email", req.Email)
	setIfNotEmpty(q, "return", req.ReturnURL)
	setIfNotEmpty(q, "cancel_return", req.CancelURL)

	return p.cfg.CheckoutURL + "?" + q.Encode()
}

func (p *PayPalProcessor) Handoff(ctx context.Context, req HandoffRequest) (*Handoff, error) {
	target := p.HandoffURL(req)
	if err := p.redirector.Open(ctx, target); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedirectFailed, err)
	}
	return &Handoff{URL: target, Reference: req.Reference}, nil
}

// WriterRedirector prints redirect targets for headless surfaces.
type WriterRedirector struct {
	out    io.Writer
	logger logrus.FieldLogger
}

func NewWriterRedirector(out io.Writer, logger logrus.FieldLogger) *WriterRedirector {
	return &WriterRedirector{out: out, logger: logger}
}

func (r *WriterRedirector) Open(_ context.Context, target string) error {
	r.logger.WithField("url", target).Info("redirect_dispatched")
	_, err := fmt.Fprintf(r.out, "Continue in your browser: %s\n", target)
	return err
}
