package controller

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-checkout/app/factory"
	"github.com/vibast-solutions/ms-go-checkout/app/service"
	"github.com/vibast-solutions/ms-go-checkout/app/types"
)

type CheckoutController struct {
	intentService *service.IntentService
	timerService  *service.OfferTimerService
	mode          string
	logger        logrus.FieldLogger
}

func NewCheckoutController(intentService *service.IntentService, timerService *service.OfferTimerService, mode string) *CheckoutController {
	return &CheckoutController{
		intentService: intentService,
		timerService:  timerService,
		mode:          mode,
		logger:        factory.NewModuleLogger("checkout-controller"),
	}
}

func (c *CheckoutController) Health(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, &types.HealthResponse{
		Status:           "online",
		Mode:             c.mode,
		StripeConfigured: c.intentService.Configured(),
	})
}

func (c *CheckoutController) CreatePaymentIntent(ctx echo.Context) error {
	req, err := types.NewCreatePaymentIntentRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	res, err := c.intentService.CreateIntent(ctx.Request().Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUnknownItem), errors.Is(err, service.ErrMixedPlans), errors.Is(err, service.ErrInvalidRequest):
			return c.writeError(ctx, http.StatusBadRequest, err.Error())
		case errors.Is(err, service.ErrIntentRejected):
			return c.writeError(ctx, http.StatusBadRequest, err.Error())
		case errors.Is(err, service.ErrProviderNotConfigured):
			factory.LoggerWithContext(c.logger, ctx).Warn("Create payment intent without configured provider")
			return c.writeError(ctx, http.StatusServiceUnavailable, "payment provider is not configured")
		default:
			factory.LoggerWithContext(c.logger, ctx).WithError(err).Error("Create payment intent failed")
			return c.writeError(ctx, http.StatusBadGateway, "payment provider unavailable")
		}
	}

	return ctx.JSON(http.StatusOK, &types.CreatePaymentIntentResponse{ClientSecret: res.ClientSecret})
}

func (c *CheckoutController) GetOfferTimer(ctx echo.Context) error {
	req, err := types.NewGetOfferTimerRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	view, err := c.timerService.GetOfferTimer(ctx.Request().Context(), req)
	if err != nil {
		if errors.Is(err, service.ErrInvalidVisitor) {
			return c.writeError(ctx, http.StatusBadRequest, err.Error())
		}
		factory.LoggerWithContext(c.logger, ctx).WithError(err).Error("Get offer timer failed")
		return c.writeError(ctx, http.StatusInternalServerError, "internal server error")
	}

	return ctx.JSON(http.StatusOK, &types.OfferTimerResponse{
		VisitorID:   view.VisitorID,
		AnchorMs:    view.Anchor.UnixMilli(),
		CycleMs:     view.Cycle.Milliseconds(),
		RemainingMs: view.Remaining.Milliseconds(),
		Hours:       view.Countdown.Hours,
		Minutes:     view.Countdown.Minutes,
		Seconds:     view.Countdown.Seconds,
		Display:     view.Countdown.String(),
	})
}

func (c *CheckoutController) writeError(ctx echo.Context, statusCode int, message string) error {
	return ctx.JSON(statusCode, &types.ErrorResponse{Error: message})
}
