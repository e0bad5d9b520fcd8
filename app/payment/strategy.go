package payment

import (
	"context"
	"errors"
)

// strategy is chosen once per attempt and drives it to a terminal status.
type strategy interface {
	provider() Provider
	run(ctx context.Context, o *Orchestrator, attemptID string, req CommitRequest) Outcome
}

type primaryStrategy struct {
	intents   IntentIssuer
	processor PrimaryProcessor
}

func (primaryStrategy) provider() Provider {
	return ProviderPrimary
}

func (s primaryStrategy) run(ctx context.Context, o *Orchestrator, attemptID string, req CommitRequest) Outcome {
	o.setStatus(attemptID, StatusAwaitingIntent)

	intentCtx, cancel := context.WithTimeout(ctx, o.cfg.IntentTimeout)
	secret, err := s.intents.CreateIntent(intentCtx, IntentRequest{
		ItemIDs:        []string{req.Plan.ID},
		Email:          req.Email,
		IdempotencyKey: attemptID,
	})
	cancel()
	if ctx.Err() != nil {
		return Outcome{Kind: OutcomeCanceled, Err: ctx.Err()}
	}
	if err != nil {
		if errors.Is(err, ErrIntentServiceNotDeployed) {
			o.fail(attemptID)
			o.downgrade(NoticeServerMaintenance, err)
			return Outcome{Kind: OutcomeDowngraded, Message: NoticeServerMaintenance, Err: err}
		}
		o.fail(attemptID)
		return Outcome{Kind: OutcomeUnreachable, Message: MessageUnreachable, Err: err}
	}

	mount, err := s.processor.Mount(ctx, secret)
	if ctx.Err() != nil {
		return Outcome{Kind: OutcomeCanceled, Err: ctx.Err()}
	}
	if err != nil {
		o.fail(attemptID)
		o.downgrade(NoticeGatewayUnavailable, err)
		return Outcome{Kind: OutcomeDowngraded, Message: NoticeGatewayUnavailable, Err: err}
	}

	o.setStatus(attemptID, StatusConfirming)
	result, err := s.processor.Confirm(ctx, mount, ConfirmRequest{
		Billing:      req.Billing,
		ReceiptEmail: req.Email,
		ReturnURL:    o.cfg.ReturnURL,
	})
	if ctx.Err() != nil {
		return Outcome{Kind: OutcomeCanceled, Err: ctx.Err()}
	}
	if err != nil {
		o.fail(attemptID)
		return Outcome{Kind: OutcomeDeclined, Message: MessageDeclined, Err: err}
	}

	switch result.Kind {
	case ConfirmSucceeded:
		o.succeed(attemptID, firstNonEmpty(result.Reference, mount.IntentID))
		return Outcome{Kind: OutcomeSucceeded}
	case ConfirmRedirect:
		if err := o.redirector.Open(ctx, result.RedirectURL); err != nil {
			o.fail(attemptID)
			return Outcome{Kind: OutcomeDeclined, Message: MessageDeclined, Err: err}
		}
		o.succeed(attemptID, firstNonEmpty(result.Reference, mount.IntentID))
		return Outcome{Kind: OutcomeSucceeded}
	default:
		o.fail(attemptID)
		return Outcome{Kind: OutcomeDeclined, Message: firstNonEmpty(result.Message, MessageDeclined)}
	}
}

type secondaryStrategy struct {
	processor SecondaryProcessor
}

func (secondaryStrategy) provider() Provider {
	return ProviderSecondary
}

func (s secondaryStrategy) run(ctx context.Context, o *Orchestrator, attemptID string, req CommitRequest) Outcome {
	o.setStatus(attemptID, StatusConfirming)

	handoff, err := s.processor.Handoff(ctx, HandoffRequest{
		Reference: attemptID,
		Plan:      req.Plan,
		Email:     req.Email,
		ReturnURL: o.cfg.ReturnURL,
		CancelURL: o.cfg.CancelURL,
	})
	if ctx.Err() != nil {
		return Outcome{Kind: OutcomeCanceled, Err: ctx.Err()}
	}
	if err != nil {
		o.fail(attemptID)
		return Outcome{Kind: OutcomeDeclined, Message: MessageDeclined, Err: err}
	}

	o.succeed(attemptID, handoff.Reference)
	return Outcome{Kind: OutcomeSucceeded}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
