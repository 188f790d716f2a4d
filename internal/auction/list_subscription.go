package auction

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"economicgoose/internal/gateway"
)

// heartbeatInterval is how often an open lobby asks the backend to advance
// the global auction pool lifecycle.
const heartbeatInterval = 10 * time.Second

// LifecycleAdvancer asks the backend to progress the auction pool: create
// replacement auctions and expire elapsed ones. Safe to invoke from many
// clients concurrently; the result is diagnostic only.
type LifecycleAdvancer func(ctx context.Context) (json.RawMessage, error)

// ListHooks receive the list feed's signals. OnChange fires for any
// insert/update/delete on the auctions table (the owner refetches the whole
// bounded list); OnTick fires once per second for local extrapolation.
type ListHooks struct {
	OnChange func()
	OnTick   func(now time.Time)
}

// ListSubscription keeps the browsable auction list fresh: a table-wide
// change feed, a 1-second extrapolation ticker and the recurring lifecycle
// heartbeat.
type ListSubscription struct {
	clock   clockwork.Clock
	feed    gateway.ChangeFeed
	advance LifecycleAdvancer

	mu     sync.Mutex
	handle *gateway.FeedHandle
	cancel context.CancelFunc
}

func NewListSubscription(clock clockwork.Clock, feed gateway.ChangeFeed, advance LifecycleAdvancer) *ListSubscription {
	return &ListSubscription{clock: clock, feed: feed, advance: advance}
}

// Open starts the feed and both tickers, closing any previous session first.
// The first heartbeat fires immediately.
func (l *ListSubscription) Open(ctx context.Context, hooks ListHooks) error {
	l.Close()

	ctx, cancel := context.WithCancel(ctx)

	handle, err := l.feed.Subscribe(ctx, gateway.Subscription{Table: tableAuctions})
	if err != nil {
		cancel()
		return err
	}

	l.mu.Lock()
	l.handle = handle
	l.cancel = cancel
	l.mu.Unlock()

	go pumpEvents(ctx, handle.Events, func(gateway.ChangeEvent) { hooks.OnChange() })
	go l.extrapolate(ctx, hooks.OnTick)
	go l.heartbeat(ctx)

	return nil
}

// Close stops both tickers and the feed. Safe to call when not open.
func (l *ListSubscription) Close() {
	l.mu.Lock()
	cancel := l.cancel
	handle := l.handle
	l.cancel = nil
	l.handle = nil
	l.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if handle != nil {
		handle.Close()
	}
}

func (l *ListSubscription) extrapolate(ctx context.Context, onTick func(time.Time)) {
	ticker := l.clock.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			onTick(l.clock.Now())
		}
	}
}

func (l *ListSubscription) heartbeat(ctx context.Context) {
	l.beat(ctx)

	ticker := l.clock.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			l.beat(ctx)
		}
	}
}

func (l *ListSubscription) beat(ctx context.Context) {
	res, err := l.advance(ctx)
	if err != nil {
		zap.L().Warn("auction_heartbeat", zap.Error(err))
		return
	}
	zap.L().Debug("auction_heartbeat", zap.ByteString("result", res))
}
