package auction

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// reconcileEvery is the tick cadence at which the timer replaces local
// extrapolation with the backend's authoritative remaining time.
const reconcileEvery = 5

// TimerConfig wires a Timer to its owner. FetchRemaining asks the backend
// for the authoritative remaining seconds; LocalRemaining extrapolates from
// the snapshot; OnTick publishes the displayed value; OnExpired fires once
// when the backend confirms the round is over.
type TimerConfig struct {
	FetchRemaining func(ctx context.Context) (int, error)
	LocalRemaining func(now time.Time) int
	OnTick         func(secondsLeft int)
	OnExpired      func()
}

// Timer produces a drift-corrected countdown for one active auction.
// Every tick extrapolates locally; every reconcileEvery-th tick fetches the
// authoritative value instead, bounding both clock skew and request volume.
type Timer struct {
	clock clockwork.Clock

	mu      sync.Mutex
	cancel  context.CancelFunc
	running bool
}

func NewTimer(clock clockwork.Clock) *Timer {
	return &Timer{clock: clock}
}

// Start begins the 1-second tick loop. Starting while running stops the
// previous loop first, so at most one loop ever ticks.
func (t *Timer) Start(ctx context.Context, cfg TimerConfig) {
	t.Stop()

	ctx, cancel := context.WithCancel(ctx)
	t.mu.Lock()
	t.cancel = cancel
	t.running = true
	t.mu.Unlock()

	go t.loop(ctx, cfg)
}

// Stop halts the tick loop. Safe to call when not running, and from the
// loop's own callbacks.
func (t *Timer) Stop() {
	t.mu.Lock()
	cancel := t.cancel
	t.cancel = nil
	t.running = false
	t.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (t *Timer) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

func (t *Timer) loop(ctx context.Context, cfg TimerConfig) {
	ticker := t.clock.NewTicker(time.Second)
	defer ticker.Stop()

	ticks := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
		}
		if ctx.Err() != nil {
			return
		}
		ticks++

		if ticks%reconcileEvery != 0 {
			cfg.OnTick(cfg.LocalRemaining(t.clock.Now()))
			continue
		}

		left, err := cfg.FetchRemaining(ctx)
		if err != nil {
			// Transport failure degrades to extrapolation for this tick.
			zap.L().Warn("timer_reconcile_failed", zap.Error(err))
			cfg.OnTick(cfg.LocalRemaining(t.clock.Now()))
			continue
		}
		if left <= 0 {
			cfg.OnTick(0)
			t.Stop()
			cfg.OnExpired()
			return
		}
		cfg.OnTick(left)
	}
}
