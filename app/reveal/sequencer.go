package reveal

import (
	"context"
	"sync"
	"time"
)

const (
	DefaultInterval = 150 * time.Millisecond
	DefaultSettle   = 500 * time.Millisecond
)

type EventKind int

const (
	EventReveal EventKind = iota + 1
	EventComplete
)

func (k EventKind) String() string {
	switch k {
	case EventReveal:
		return "reveal"
	case EventComplete:
		return "complete"
	default:
		return "unknown"
	}
}

type Event struct {
	Kind  EventKind
	Added int
	Total int
}

type Config struct {
	// Interval between consecutive reveal events.
	Interval time.Duration
	// Settle is the pause between the last reveal and completion.
	Settle time.Duration
	// MaxItems caps the number of reveal events. Zero means no cap.
	MaxItems int
}

type Sequencer struct {
	cfg Config
}

func NewSequencer(cfg Config) *Sequencer {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Settle < 0 {
		cfg.Settle = 0
	}
	return &Sequencer{cfg: cfg}
}

// Run is one playback of the reveal. It cannot be restarted; start a new Run instead.
type Run struct {
	total  int
	events chan Event
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Start begins emitting total reveal events followed by one completion event.
// The events channel is closed when the run finishes or is stopped.
func (s *Sequencer) Start(ctx context.Context, total int) *Run {
	if total < 0 {
		total = 0
	}
	if s.cfg.MaxItems > 0 && total > s.cfg.MaxItems {
		total = s.cfg.MaxItems
	}

	runCtx, cancel := context.WithCancel(ctx)
	r := &Run{
		total:  total,
		events: make(chan Event),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go r.play(runCtx, s.cfg)
	return r
}

func (r *Run) Events() <-chan Event {
	return r.events
}

func (r *Run) Total() int {
	return r.total
}

func (r *Run) Done() <-chan struct{} {
	return r.done
}

// Stop tears the run down and waits for its goroutine to exit. Progress is discarded.
func (r *Run) Stop() {
	r.once.Do(r.cancel)
	<-r.done
}

func (r *Run) play(ctx context.Context, cfg Config) {
	defer close(r.done)
	defer close(r.events)
	defer r.once.Do(r.cancel)

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	for added := 1; added <= r.total; added++ {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if !r.emit(ctx, Event{Kind: EventReveal, Added: added, Total: r.total}) {
			return
		}
	}

	if cfg.Settle > 0 {
		settle := time.NewTimer(cfg.Settle)
		defer settle.Stop()
		select {
		case <-ctx.Done():
			return
		case <-settle.C:
		}
	}

	r.emit(ctx, Event{Kind: EventComplete, Added: r.total, Total: r.total})
}

func (r *Run) emit(ctx context.Context, ev Event) bool {
	select {
	case <-ctx.Done():
		return false
	case r.events <- ev:
		return true
	}
}
