package timer

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-checkout/app/factory"
)

const (
	DefaultCycle      = 2*time.Hour + 23*time.Minute + 49*time.Second
	DefaultStorageKey = "offer_timer_v1"
)

type Countdown struct {
	Hours   int `json:"hours"`
	Minutes int `json:"minutes"`
	Seconds int `json:"seconds"`
}

func (c Countdown) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", c.Hours, c.Minutes, c.Seconds)
}

func NewCountdown(remaining time.Duration) Countdown {
	total := int(remaining / time.Second)
	return Countdown{
		Hours:   total / 3600,
		Minutes: (total % 3600) / 60,
		Seconds: total % 60,
	}
}

// Remaining returns cycle - ((now - anchor) mod cycle), always in (0, cycle].
func Remaining(anchor, now time.Time, cycle time.Duration) time.Duration {
	elapsed := now.Sub(anchor) % cycle
	if elapsed < 0 {
		elapsed += cycle
	}
	return cycle - elapsed
}

type Config struct {
	Key   string
	Cycle time.Duration
	Now   func() time.Time
}

// Timer is an evergreen offer countdown. The anchor is read from the store once
// and re-validated on every tick; it is only rewritten when missing or corrupt.
type Timer struct {
	store  AnchorStore
	key    string
	cycle  time.Duration
	now    func() time.Time
	logger logrus.FieldLogger

	mu          sync.RWMutex
	anchor      time.Time
	initialized bool
}

func New(store AnchorStore, cfg Config) (*Timer, error) {
	if cfg.Cycle == 0 {
		cfg.Cycle = DefaultCycle
	}
	if cfg.Cycle < 0 {
		return nil, ErrInvalidCycle
	}
	if strings.TrimSpace(cfg.Key) == "" {
		cfg.Key = DefaultStorageKey
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Timer{
		store:  store,
		key:    cfg.Key,
		cycle:  cfg.Cycle,
		now:    cfg.Now,
		logger: factory.NewModuleLogger("offer-timer").WithField("key", cfg.Key),
	}, nil
}

func (t *Timer) Key() string {
	return t.key
}

func (t *Timer) Cycle() time.Duration {
	return t.cycle
}

// Initialize loads the persisted anchor, writing now when none exists.
func (t *Timer) Initialize(ctx context.Context) error {
	anchor, err := t.load(ctx)
	if err != nil {
		return err
	}
	t.setAnchor(anchor)
	return nil
}

func (t *Timer) Anchor() (time.Time, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if !t.initialized {
		return time.Time{}, ErrNotInitialized
	}
	return t.anchor, nil
}

// RemainingAt computes the remaining time against the cached anchor.
func (t *Timer) RemainingAt(now time.Time) (time.Duration, error) {
	anchor, err := t.Anchor()
	if err != nil {
		return 0, err
	}
	return Remaining(anchor, now, t.cycle), nil
}

// Tick re-reads the anchor and returns the current countdown. Storage failures
// never stop the countdown: the cached anchor, or now, is used instead.
func (t *Timer) Tick(ctx context.Context) Countdown {
	anchor, err := t.load(ctx)
	if err != nil {
		t.logger.WithError(err).Warn("offer_timer_store_unavailable")
		t.mu.RLock()
		anchor, ok := t.anchor, t.initialized
		t.mu.RUnlock()
		if !ok {
			anchor = truncateMillis(t.now())
			t.setAnchor(anchor)
		}
		return NewCountdown(Remaining(anchor, t.now(), t.cycle))
	}
	t.setAnchor(anchor)
	return NewCountdown(Remaining(anchor, t.now(), t.cycle))
}

// Watch calls fn with the countdown immediately and then every interval until ctx is done.
func (t *Timer) Watch(ctx context.Context, interval time.Duration, fn func(Countdown)) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	fn(t.Tick(ctx))
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn(t.Tick(ctx))
		}
	}
}

func (t *Timer) load(ctx context.Context) (time.Time, error) {
	raw, found, err := t.store.Get(ctx, t.key)
	if err != nil {
		return time.Time{}, fmt.Errorf("read anchor: %w", err)
	}

	if !found {
		anchor := truncateMillis(t.now())
		stored, err := t.store.SetIfAbsent(ctx, t.key, EncodeAnchor(anchor))
		if err != nil {
			return time.Time{}, fmt.Errorf("write anchor: %w", err)
		}
		if stored {
			if t.wasInitialized() {
				t.logger.Info("offer_timer_reanchored_missing")
			}
			return anchor, nil
		}
		// Another writer won the race.
		raw, found, err = t.store.Get(ctx, t.key)
		if err != nil {
			return time.Time{}, fmt.Errorf("read anchor: %w", err)
		}
		if !found {
			return anchor, nil
		}
	}

	anchor, err := DecodeAnchor(raw)
	if err == nil {
		return anchor, nil
	}

	t.logger.WithError(err).WithField("value", raw).Warn("offer_timer_reanchored_corrupt")
	anchor = truncateMillis(t.now())
	if err := t.store.Set(ctx, t.key, EncodeAnchor(anchor)); err != nil {
		return time.Time{}, fmt.Errorf("overwrite corrupt anchor: %w", err)
	}
	return anchor, nil
}

func (t *Timer) setAnchor(anchor time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.anchor = anchor
	t.initialized = true
}

func (t *Timer) wasInitialized() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.initialized
}

// EncodeAnchor renders an anchor as unix milliseconds.
func EncodeAnchor(anchor time.Time) string {
	return strconv.FormatInt(anchor.UnixMilli(), 10)
}

func DecodeAnchor(raw string) (time.Time, error) {
	ms, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || ms <= 0 {
		return time.Time{}, fmt.Errorf("%w: %q", ErrCorruptAnchor, raw)
	}
	return time.UnixMilli(ms), nil
}

func truncateMillis(t time.Time) time.Time {
	return time.UnixMilli(t.UnixMilli())
}
