package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/vibast-solutions/ms-go-checkout/app/metrics"
	"github.com/vibast-solutions/ms-go-checkout/app/timer"
	"github.com/vibast-solutions/ms-go-checkout/config"
)

type getOfferTimerRequest interface {
	GetVisitorID() string
}

type OfferTimerView struct {
	VisitorID string
	Anchor    time.Time
	Cycle     time.Duration
	Remaining time.Duration
	Countdown timer.Countdown
}

// OfferTimerService serves per-visitor evergreen countdowns from a shared anchor store.
type OfferTimerService struct {
	store   timer.AnchorStore
	cfg     config.TimerConfig
	metrics metrics.Recorder
	now     func() time.Time
}

func NewOfferTimerService(store timer.AnchorStore, cfg config.TimerConfig, recorder metrics.Recorder) *OfferTimerService {
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	return &OfferTimerService{
		store:   store,
		cfg:     cfg,
		metrics: recorder,
		now:     time.Now,
	}
}

func (s *OfferTimerService) GetOfferTimer(ctx context.Context, req getOfferTimerRequest) (*OfferTimerView, error) {
	visitorID := strings.TrimSpace(req.GetVisitorID())
	parsed, err := uuid.Parse(visitorID)
	if err != nil {
		return nil, ErrInvalidVisitor
	}
	visitorID = parsed.String()

	t, err := timer.New(s.store, timer.Config{
		Key:   s.keyFor(visitorID),
		Cycle: s.cfg.Cycle,
		Now:   s.now,
	})
	if err != nil {
		return nil, err
	}
	if err := t.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("initialize offer timer: %w", err)
	}

	anchor, err := t.Anchor()
	if err != nil {
		return nil, err
	}
	remaining := timer.Remaining(anchor, s.now(), t.Cycle())
	s.metrics.IncOfferTimerRead()

	return &OfferTimerView{
		VisitorID: visitorID,
		Anchor:    anchor,
		Cycle:     t.Cycle(),
		Remaining: remaining,
		Countdown: timer.NewCountdown(remaining),
	}, nil
}

func (s *OfferTimerService) keyFor(visitorID string) string {
	base := strings.TrimSpace(s.cfg.StorageKey)
	if base == "" {
		base = timer.DefaultStorageKey
	}
	return base + ":" + visitorID
}
