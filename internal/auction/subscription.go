package auction

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"economicgoose/internal/gateway"
)

// SubscriptionHandlers receive the translated feed events for one auction.
// They are invoked from the subscription's pump goroutines; the owner is
// responsible for its own locking.
type SubscriptionHandlers struct {
	OnAuctionUpdate func(r row)
	OnBid           func(b Bid)
	OnParticipant   func()
	OnStatus        func(connected bool)
}

// Subscription maintains the live feed for a single auction: row updates on
// the auction itself, bid inserts, and participant inserts. At most one
// auction's feed is open per instance.
type Subscription struct {
	feed gateway.ChangeFeed

	mu        sync.Mutex
	auctionID string
	handles   []*gateway.FeedHandle
	cancel    context.CancelFunc
}

func NewSubscription(feed gateway.ChangeFeed) *Subscription {
	return &Subscription{feed: feed}
}

// Open tears down any previous feed and subscribes to the given auction.
func (s *Subscription) Open(ctx context.Context, auctionID string, h SubscriptionHandlers) error {
	s.Close()

	ctx, cancel := context.WithCancel(ctx)

	filter := "auction_id=eq." + auctionID
	subs := []gateway.Subscription{
		{Table: tableAuctions, Types: []gateway.ChangeType{gateway.ChangeUpdate}, Filter: "id=eq." + auctionID},
		{Table: tableBids, Types: []gateway.ChangeType{gateway.ChangeInsert}, Filter: filter},
		{Table: tableParticipants, Types: []gateway.ChangeType{gateway.ChangeInsert}, Filter: filter},
	}

	handles := make([]*gateway.FeedHandle, 0, len(subs))
	for _, sub := range subs {
		handle, err := s.feed.Subscribe(ctx, sub)
		if err != nil {
			cancel()
			for _, open := range handles {
				open.Close()
			}
			return err
		}
		handles = append(handles, handle)
	}

	s.mu.Lock()
	s.auctionID = auctionID
	s.handles = handles
	s.cancel = cancel
	s.mu.Unlock()

	go pumpEvents(ctx, handles[0].Events, func(ev gateway.ChangeEvent) {
		var r row
		if err := json.Unmarshal(ev.New, &r); err != nil {
			zap.L().Warn("auction_event_decode", zap.String("auction_id", auctionID), zap.Error(err))
			return
		}
		h.OnAuctionUpdate(r)
	})
	go pumpEvents(ctx, handles[1].Events, func(ev gateway.ChangeEvent) {
		var b Bid
		if err := json.Unmarshal(ev.New, &b); err != nil {
			zap.L().Warn("bid_event_decode", zap.String("auction_id", auctionID), zap.Error(err))
			return
		}
		h.OnBid(b)
	})
	go pumpEvents(ctx, handles[2].Events, func(gateway.ChangeEvent) {
		// The insert payload is not assumed to carry the full ordered set;
		// the owner refetches participants instead.
		h.OnParticipant()
	})
	go pumpStatus(ctx, handles[0].Status, h.OnStatus)

	return nil
}

// AuctionID returns the id of the currently open feed, or "".
func (s *Subscription) AuctionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.auctionID
}

// Close unsubscribes everything. Safe to call when nothing is open.
func (s *Subscription) Close() {
	s.mu.Lock()
	cancel := s.cancel
	handles := s.handles
	s.cancel = nil
	s.handles = nil
	s.auctionID = ""
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	for _, h := range handles {
		h.Close()
	}
}

func pumpEvents(ctx context.Context, events <-chan gateway.ChangeEvent, apply func(gateway.ChangeEvent)) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			apply(ev)
		}
	}
}

func pumpStatus(ctx context.Context, status <-chan bool, apply func(bool)) {
	if apply == nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case connected, ok := <-status:
			if !ok {
				return
			}
			apply(connected)
		}
	}
}
