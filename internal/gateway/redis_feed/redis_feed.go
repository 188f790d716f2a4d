// Package redis_feed delivers row-change events over Redis pub/sub. The
// backend publishes one JSON change envelope per mutation on
// "changes:<table>"; the feed resubscribes with backoff when the connection
// drops and applies the subscription's row filter locally.
package redis_feed

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"economicgoose/internal/gateway"
)

const (
	channelPrefix = "changes:"

	initialBackoff = time.Second
	maxBackoff     = 30 * time.Second
)

// pubsubConn is the slice of *redis.PubSub the pump drives: one confirmation
// round-trip, then a message channel, then teardown.
type pubsubConn interface {
	Receive(ctx context.Context) (any, error)
	Channel(opts ...redis.ChannelOption) <-chan *redis.Message
	Close() error
}

type Feed struct {
	dial  func(ctx context.Context, channel string) pubsubConn
	clock clockwork.Clock
}

func New(rdc *redis.Client) *Feed {
	return &Feed{
		dial: func(ctx context.Context, channel string) pubsubConn {
			return rdc.Subscribe(ctx, channel)
		},
		clock: clockwork.NewRealClock(),
	}
}

var _ gateway.ChangeFeed = (*Feed)(nil)

// Channel returns the pub/sub channel name carrying a table's change events.
func Channel(table string) string { return channelPrefix + table }

func (f *Feed) Subscribe(ctx context.Context, sub gateway.Subscription) (*gateway.FeedHandle, error) {
	events := make(chan gateway.ChangeEvent, 16)
	status := make(chan bool, 4)

	ctx, cancel := context.WithCancel(ctx)
	go f.pump(ctx, sub, events, status)

	return gateway.NewFeedHandle(events, status, cancel), nil
}

// pump owns both output channels. It reconnects forever until the handle is
// closed; every connectivity flip is reported on the status channel.
func (f *Feed) pump(ctx context.Context, sub gateway.Subscription, events chan<- gateway.ChangeEvent, status chan<- bool) {
	defer close(events)
	defer close(status)

	backoff := initialBackoff
	for {
		ok := f.consume(ctx, sub, events, status)
		if ctx.Err() != nil {
			return
		}
		report(status, false)
		if ok {
			backoff = initialBackoff
		}
		zap.L().Warn("feed_reconnect",
			zap.String("table", sub.Table),
			zap.Duration("backoff", backoff),
		)
		select {
		case <-ctx.Done():
			return
		case <-f.clock.After(backoff):
		}
		backoff = min(backoff*2, maxBackoff)
	}
}

// consume runs one subscription until it fails or the context ends. It
// reports true when at least one message round-trip succeeded, so the caller
// can reset the backoff.
func (f *Feed) consume(ctx context.Context, sub gateway.Subscription, events chan<- gateway.ChangeEvent, status chan<- bool) bool {
	ps := f.dial(ctx, Channel(sub.Table))
	defer ps.Close()

	// First frame is the subscription confirmation.
	if _, err := ps.Receive(ctx); err != nil {
		return false
	}
	report(status, true)

	delivered := false
	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return delivered
		case m, ok := <-ch:
			if !ok {
				return delivered
			}
			ev, err := decode(m.Payload)
			if err != nil {
				zap.L().Warn("feed_bad_payload", zap.String("table", sub.Table), zap.Error(err))
				continue
			}
			delivered = true
			if !sub.Matches(ev) {
				continue
			}
			select {
			case events <- ev:
			case <-ctx.Done():
				return delivered
			}
		}
	}
}

func decode(payload string) (gateway.ChangeEvent, error) {
	var ev gateway.ChangeEvent
	err := json.Unmarshal([]byte(payload), &ev)
	return ev, err
}

// report never blocks; a slow status consumer only loses intermediate flips.
func report(status chan<- bool, connected bool) {
	select {
	case status <- connected:
	default:
	}
}
