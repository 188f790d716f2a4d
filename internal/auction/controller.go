package auction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"economicgoose/internal/gateway"
)

// autoStartDelay is the grace period after a join before the client tries to
// transition the auction from waiting to active, giving other players time
// to join.
const autoStartDelay = 3 * time.Second

var (
	ErrNotJoined         = errors.New("auction: no auction joined")
	ErrNotActive         = errors.New("auction: auction is not active")
	ErrBidTooLow         = errors.New("auction: bid must exceed the current bid")
	ErrInsufficientFunds = errors.New("auction: insufficient funds")
	ErrBidRejected       = errors.New("auction: bid rejected")
)

// Identity supplies the caller's player identity and available balance.
type Identity interface {
	PlayerID() string
	PlayerName() string
	Balance() int64
}

// BalanceRefresher is implemented by identities whose balance can be
// reloaded from the backend, e.g. after winning a settlement.
type BalanceRefresher interface {
	RefreshBalance(ctx context.Context) error
}

// EventKind classifies controller notifications pushed to the UI layer.
type EventKind string

const (
	EventList    EventKind = "list"
	EventAuction EventKind = "auction"
	EventBid     EventKind = "bid"
)

// Event is one state-change notification.
type Event struct {
	Kind      EventKind `json:"kind"`
	AuctionID string    `json:"auction_id,omitempty"`
	Body      any       `json:"body,omitempty"`
}

// procResult is the common shape of the backend's procedure replies.
type procResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

type sessionState int

const (
	stateIdle sessionState = iota
	stateListing
	stateJoining
	stateJoined
)

func (s sessionState) String() string {
	switch s {
	case stateListing:
		return "listing"
	case stateJoining:
		return "joining"
	case stateJoined:
		return "joined"
	default:
		return "idle"
	}
}

// Controller is the top-level session state machine: it owns the snapshot,
// the timer and both subscriptions, and is the only writer of its own state.
// All timers and feeds are per-instance; independent controllers never
// collide.
type Controller struct {
	remote   gateway.Remote
	identity Identity
	clock    clockwork.Clock
	notify   func(Event)

	timer   *Timer
	sub     *Subscription
	listSub *ListSubscription

	mu        sync.Mutex
	state     sessionState
	current   *Auction
	available []ListEntry
	connected bool
	lastErr   string
	listOpen  bool
}

type Option func(*Controller)

// WithClock substitutes the wall clock, primarily for tests.
func WithClock(clock clockwork.Clock) Option {
	return func(c *Controller) { c.clock = clock }
}

// WithNotify registers the event sink the UI bridge listens on.
func WithNotify(notify func(Event)) Option {
	return func(c *Controller) { c.notify = notify }
}

func NewController(remote gateway.Remote, identity Identity, opts ...Option) *Controller {
	c := &Controller{
		remote:   remote,
		identity: identity,
		clock:    clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.timer = NewTimer(c.clock)
	c.sub = NewSubscription(remote.Feed)
	c.listSub = NewListSubscription(c.clock, remote.Feed, func(ctx context.Context) (json.RawMessage, error) {
		return remote.Procs.Call(ctx, procHeartbeat, map[string]any{})
	})
	return c
}

// ---------------------------------------------------------------------------
//  Lobby
// ---------------------------------------------------------------------------

// LoadAvailableAuctions fetches the bounded auction list, asks the backend to
// replenish the pool when it runs low, and opens the list subscription.
func (c *Controller) LoadAvailableAuctions(ctx context.Context) ([]ListEntry, error) {
	c.setError("")

	entries, err := c.fetchList(ctx)
	if err != nil {
		c.setError(err.Error())
		return nil, err
	}

	qualifying := lo.CountBy(entries, func(e ListEntry) bool {
		return e.Status == StatusWaiting || e.Status == StatusActive
	})
	if qualifying < minPoolSize {
		// One-shot pool seed; the recurring heartbeat converges on the same
		// backend procedure.
		if _, err := c.remote.Procs.Call(ctx, procHeartbeat, map[string]any{}); err != nil {
			zap.L().Warn("auction_pool_seed", zap.Error(err))
		} else if entries, err = c.fetchList(ctx); err != nil {
			c.setError(err.Error())
			return nil, err
		}
	}

	c.mu.Lock()
	c.available = entries
	if c.state == stateIdle {
		c.state = stateListing
	}
	c.listOpen = true
	c.mu.Unlock()

	// Feeds outlive the (possibly request-scoped) caller context.
	if err := c.listSub.Open(context.Background(), ListHooks{
		OnChange: func() { c.refreshList(context.Background()) },
		OnTick:   c.extrapolateList,
	}); err != nil {
		c.setError(err.Error())
		return nil, err
	}

	c.emit(Event{Kind: EventList, Body: entries})
	return entries, nil
}

func (c *Controller) fetchList(ctx context.Context) ([]ListEntry, error) {
	var rows []row
	err := c.remote.Rows.Select(ctx, gateway.Query{
		Table:      tableAuctions,
		In:         map[string][]string{"status": {string(StatusWaiting), string(StatusActive), string(StatusFinished)}},
		OrderBy:    "created_at",
		Descending: true,
		Limit:      listLimit,
	}, &rows)
	if err != nil {
		return nil, err
	}
	return lo.Map(rows, func(r row, _ int) ListEntry { return listEntryFromRow(r) }), nil
}

func (c *Controller) refreshList(ctx context.Context) {
	entries, err := c.fetchList(ctx)
	if err != nil {
		zap.L().Warn("auction_list_refresh", zap.Error(err))
		return
	}
	c.mu.Lock()
	c.available = entries
	c.mu.Unlock()
	c.emit(Event{Kind: EventList, Body: entries})
}

func (c *Controller) extrapolateList(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.available {
		e := &c.available[i]
		if e.Status == StatusActive && e.StartedAt != nil {
			e.TimeLeft = remainingAt(e.StartedAt, now)
		}
	}
}

// ---------------------------------------------------------------------------
//  Join / leave
// ---------------------------------------------------------------------------

// JoinAuction registers the player as a participant, loads the snapshot and
// opens the live feed. Joining an auction twice is not an error.
func (c *Controller) JoinAuction(ctx context.Context, auctionID string) error {
	c.setError("")
	c.setState(stateJoining)

	// A previous session's countdown must not outlive its auction; the new
	// snapshot decides whether a timer runs at all.
	c.timer.Stop()

	err := c.remote.Rows.Insert(ctx, tableParticipants, map[string]any{
		"auction_id":  auctionID,
		"player_id":   c.identity.PlayerID(),
		"player_name": c.identity.PlayerName(),
	})
	if err != nil && !errors.Is(err, gateway.ErrDuplicate) {
		c.setError(err.Error())
		c.setState(stateListing)
		return err
	}

	if err := c.loadAuction(ctx, auctionID); err != nil {
		c.setError(err.Error())
		c.setState(stateListing)
		return err
	}

	if err := c.sub.Open(context.Background(), auctionID, SubscriptionHandlers{
		OnAuctionUpdate: c.onAuctionUpdate,
		OnBid:           c.onBid,
		OnParticipant:   func() { c.reloadParticipants(context.Background(), auctionID) },
		OnStatus:        c.onFeedStatus,
	}); err != nil {
		c.setError(err.Error())
		c.setState(stateListing)
		return err
	}

	// Fire-and-forget: whoever triggers the start first wins, the feed
	// reflects the true status either way.
	c.clock.AfterFunc(autoStartDelay, func() {
		c.tryAutoStart(context.Background(), auctionID)
	})

	return nil
}

func (c *Controller) loadAuction(ctx context.Context, auctionID string) error {
	var r row
	if err := c.remote.Rows.SelectOne(ctx, gateway.Query{
		Table: tableAuctions,
		Eq:    map[string]any{"id": auctionID},
	}, &r); err != nil {
		return err
	}

	var participants []Participant
	if err := c.remote.Rows.Select(ctx, gateway.Query{
		Table: tableParticipants,
		Eq:    map[string]any{"auction_id": auctionID},
	}, &participants); err != nil {
		return err
	}

	var bids []Bid
	if err := c.remote.Rows.Select(ctx, gateway.Query{
		Table:      tableBids,
		Eq:         map[string]any{"auction_id": auctionID},
		OrderBy:    "created_at",
		Descending: true,
		Limit:      historyCap,
	}, &bids); err != nil {
		return err
	}

	snap := snapshotFromRow(r)
	snap.Participants = participants
	snap.BidsHistory = bids

	c.mu.Lock()
	c.current = snap
	c.state = stateJoined
	active := snap.Status == StatusActive
	c.mu.Unlock()

	if active && !c.timer.Running() {
		c.startTimer(auctionID)
	}
	c.emitAuction()
	return nil
}

func (c *Controller) tryAutoStart(ctx context.Context, auctionID string) {
	if c.sub.AuctionID() != auctionID {
		return // player already left
	}
	raw, err := c.remote.Procs.Call(ctx, procAutoStart, map[string]any{"p_auction_id": auctionID})
	if err != nil {
		zap.L().Warn("auction_auto_start", zap.String("auction_id", auctionID), zap.Error(err))
		return
	}
	var res procResult
	if err := json.Unmarshal(raw, &res); err != nil {
		zap.L().Warn("auction_auto_start_decode", zap.Error(err))
		return
	}
	if res.Success {
		zap.L().Info("auction_started", zap.String("auction_id", auctionID), zap.String("message", res.Message))
	} else {
		zap.L().Debug("auction_auto_start_skipped", zap.String("auction_id", auctionID), zap.String("reason", res.Error))
	}
}

// LeaveAuction voluntarily exits the joined auction: the timer stops, the
// per-auction feed closes and the snapshot is dropped. The lobby list stays
// open.
func (c *Controller) LeaveAuction() {
	c.timer.Stop()
	c.sub.Close()

	c.mu.Lock()
	c.current = nil
	c.connected = false
	if c.listOpen {
		c.state = stateListing
	} else {
		c.state = stateIdle
	}
	c.mu.Unlock()
}

// Reset is the full teardown: timer, auction feed, list feed and all local
// state.
func (c *Controller) Reset() {
	c.timer.Stop()
	c.sub.Close()
	c.listSub.Close()

	c.mu.Lock()
	c.current = nil
	c.available = nil
	c.connected = false
	c.lastErr = ""
	c.listOpen = false
	c.state = stateIdle
	c.mu.Unlock()
}

// ---------------------------------------------------------------------------
//  Bidding
// ---------------------------------------------------------------------------

// PlaceBid validates locally for responsiveness, calls the authoritative
// procedure, and only then applies the optimistic update. A rejection leaves
// the snapshot untouched.
func (c *Controller) PlaceBid(ctx context.Context, amount int64) error {
	c.mu.Lock()
	if c.current == nil || c.state != stateJoined {
		c.mu.Unlock()
		return c.fail(ErrNotJoined)
	}
	if c.current.Status != StatusActive {
		c.mu.Unlock()
		return c.fail(ErrNotActive)
	}
	if amount <= c.current.CurrentBid {
		c.mu.Unlock()
		return c.fail(ErrBidTooLow)
	}
	if amount > c.identity.Balance() {
		c.mu.Unlock()
		return c.fail(ErrInsufficientFunds)
	}
	auctionID := c.current.ID
	c.mu.Unlock()

	raw, err := c.remote.Procs.Call(ctx, procPlaceBid, map[string]any{
		"p_auction_id":  auctionID,
		"p_player_id":   c.identity.PlayerID(),
		"p_player_name": c.identity.PlayerName(),
		"p_bid_amount":  amount,
	})
	if err != nil {
		c.setError(err.Error())
		return err
	}
	var res procResult
	if err := json.Unmarshal(raw, &res); err != nil {
		c.setError(err.Error())
		return err
	}
	if !res.Success {
		c.setError(res.Error)
		return fmt.Errorf("%w: %s", ErrBidRejected, res.Error)
	}

	// Optimistic update; the authoritative feed event overwrites the same
	// fields unconditionally and therefore always wins on conflict. The
	// joined-id check guards against a response landing after leave.
	c.mu.Lock()
	if c.current != nil && c.current.ID == auctionID {
		c.current.CurrentBid = amount
		c.current.CurrentBidderID = c.identity.PlayerID()
		c.current.CurrentBidderName = c.identity.PlayerName()
	}
	c.mu.Unlock()

	c.emitAuction()
	return nil
}

// MinimumNextBid returns the advisory floor for the next bid on the joined
// auction, or 0 when none is joined.
func (c *Controller) MinimumNextBid() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return 0
	}
	return MinimumNextBid(c.current.CurrentBid)
}

// ---------------------------------------------------------------------------
//  Settlement
// ---------------------------------------------------------------------------

// FinishAuction asks the backend to settle the joined auction and, when this
// player won, refreshes their balance. The feed remains the source of truth
// for the terminal status.
func (c *Controller) FinishAuction(ctx context.Context) error {
	c.mu.Lock()
	if c.current == nil {
		c.mu.Unlock()
		return c.fail(ErrNotJoined)
	}
	auctionID := c.current.ID
	c.mu.Unlock()

	c.timer.Stop()

	raw, err := c.remote.Procs.Call(ctx, procFinish, map[string]any{"p_auction_id": auctionID})
	if err != nil {
		c.setError(err.Error())
		return err
	}
	var res struct {
		WinnerID   string `json:"winner_id"`
		WinnerName string `json:"winner_name"`
	}
	if err := json.Unmarshal(raw, &res); err != nil {
		c.setError(err.Error())
		return err
	}
	zap.L().Info("auction_finished",
		zap.String("auction_id", auctionID),
		zap.String("winner_id", res.WinnerID),
	)

	if res.WinnerID == c.identity.PlayerID() {
		if r, ok := c.identity.(BalanceRefresher); ok {
			if err := r.RefreshBalance(ctx); err != nil {
				zap.L().Warn("balance_refresh", zap.Error(err))
			}
		}
	}

	// Give the pool a moment to settle, then refresh the lobby.
	c.clock.AfterFunc(autoStartDelay, func() {
		c.refreshList(context.Background())
	})
	return nil
}

// ---------------------------------------------------------------------------
//  Feed handlers
// ---------------------------------------------------------------------------

func (c *Controller) onAuctionUpdate(r row) {
	c.mu.Lock()
	if c.current == nil || c.current.ID != r.ID {
		c.mu.Unlock()
		return
	}
	oldStatus := c.current.Status

	c.current.CurrentBid = r.CurrentBid
	c.current.CurrentBidderID = r.CurrentBidderID
	c.current.CurrentBidderName = r.CurrentBidderName
	c.current.Status = r.Status
	c.current.TimeLeft = r.TimeLeft
	if r.StartedAt != nil {
		c.current.StartedAt = r.StartedAt
	}

	started := r.Status == StatusActive && oldStatus != StatusActive
	finished := r.Status == StatusFinished
	if finished {
		c.current.WinnerID = r.WinnerID
		c.current.WinnerName = r.WinnerName
		c.current.FinishedAt = r.FinishedAt
	}
	auctionID := c.current.ID
	c.mu.Unlock()

	// Edge-triggered: repeated active updates must not restart the timer.
	if started {
		c.startTimer(auctionID)
	}
	if finished {
		c.timer.Stop()
	}
	c.emitAuction()
}

func (c *Controller) onBid(b Bid) {
	c.mu.Lock()
	if c.current == nil || c.current.ID != b.AuctionID {
		c.mu.Unlock()
		return
	}
	c.current.applyBid(b)
	c.mu.Unlock()
	c.emit(Event{Kind: EventBid, AuctionID: b.AuctionID, Body: b})
}

func (c *Controller) reloadParticipants(ctx context.Context, auctionID string) {
	var participants []Participant
	if err := c.remote.Rows.Select(ctx, gateway.Query{
		Table: tableParticipants,
		Eq:    map[string]any{"auction_id": auctionID},
	}, &participants); err != nil {
		zap.L().Warn("participants_reload", zap.String("auction_id", auctionID), zap.Error(err))
		return
	}
	c.mu.Lock()
	if c.current == nil || c.current.ID != auctionID {
		c.mu.Unlock()
		return
	}
	c.current.Participants = participants
	c.mu.Unlock()
	c.emitAuction()
}

func (c *Controller) onFeedStatus(connected bool) {
	c.mu.Lock()
	c.connected = connected
	c.mu.Unlock()
}

// ---------------------------------------------------------------------------
//  Timer plumbing
// ---------------------------------------------------------------------------

func (c *Controller) startTimer(auctionID string) {
	c.timer.Start(context.Background(), TimerConfig{
		FetchRemaining: func(ctx context.Context) (int, error) {
			return c.fetchTimeLeft(ctx, auctionID)
		},
		LocalRemaining: func(now time.Time) int {
			c.mu.Lock()
			defer c.mu.Unlock()
			if c.current == nil || c.current.ID != auctionID {
				return 0
			}
			return c.current.localTimeLeft(now)
		},
		OnTick: func(secondsLeft int) {
			c.mu.Lock()
			if c.current != nil && c.current.ID == auctionID {
				c.current.TimeLeft = secondsLeft
			}
			c.mu.Unlock()
		},
		OnExpired: func() {
			c.onTimerExpired(auctionID)
		},
	})
}

func (c *Controller) fetchTimeLeft(ctx context.Context, auctionID string) (int, error) {
	raw, err := c.remote.Procs.Call(ctx, procTimeLeft, map[string]any{"p_auction_id": auctionID})
	if err != nil {
		return 0, err
	}
	var left int
	if err := json.Unmarshal(raw, &left); err != nil {
		return 0, err
	}
	return left, nil
}

// onTimerExpired refreshes the joined auction so the terminal transition
// comes from the backend, never from local clock arithmetic.
func (c *Controller) onTimerExpired(auctionID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var r row
	if err := c.remote.Rows.SelectOne(ctx, gateway.Query{
		Table: tableAuctions,
		Eq:    map[string]any{"id": auctionID},
	}, &r); err != nil {
		zap.L().Warn("auction_expire_refresh", zap.String("auction_id", auctionID), zap.Error(err))
	} else {
		c.onAuctionUpdate(r)
	}

	c.mu.Lock()
	listOpen := c.listOpen
	c.mu.Unlock()
	if listOpen {
		c.refreshList(ctx)
	}
}

// ---------------------------------------------------------------------------
//  Accessors
// ---------------------------------------------------------------------------

// CurrentAuction returns a copy of the joined auction's snapshot, or nil.
func (c *Controller) CurrentAuction() *Auction {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() *Auction {
	if c.current == nil {
		return nil
	}
	snap := *c.current
	snap.Participants = append([]Participant(nil), c.current.Participants...)
	snap.BidsHistory = append([]Bid(nil), c.current.BidsHistory...)
	return &snap
}

// AvailableAuctions returns a copy of the lobby list.
func (c *Controller) AvailableAuctions() []ListEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]ListEntry(nil), c.available...)
}

// Connected reports the per-auction feed's connection status.
func (c *Controller) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// LastError is the most recent operation failure, for display. It is a
// single overwritten field, not a log.
func (c *Controller) LastError() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// State names the session state: idle, listing, joining or joined.
func (c *Controller) State() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.String()
}

// IsParticipating reports whether this player appears in the joined
// auction's participant set.
func (c *Controller) IsParticipating() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return false
	}
	for _, p := range c.current.Participants {
		if p.ID == c.identity.PlayerID() {
			return true
		}
	}
	return false
}

// IsCurrentBidder reports whether this player holds the leading bid.
func (c *Controller) IsCurrentBidder() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current != nil && c.current.CurrentBidderID == c.identity.PlayerID()
}

// CanPlaceBid reports whether a bid attempt would pass the state
// precondition (the amount is still validated separately).
func (c *Controller) CanPlaceBid() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current != nil && c.current.Status == StatusActive
}

// ---------------------------------------------------------------------------
//  internals
// ---------------------------------------------------------------------------

func (c *Controller) setState(s sessionState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Controller) setError(msg string) {
	c.mu.Lock()
	c.lastErr = msg
	c.mu.Unlock()
}

func (c *Controller) fail(err error) error {
	c.setError(err.Error())
	zap.L().Debug("auction_op_rejected", zap.Error(err))
	return err
}

func (c *Controller) emitAuction() {
	c.mu.Lock()
	snap := c.snapshotLocked()
	c.mu.Unlock()
	if snap == nil {
		return
	}
	c.emit(Event{Kind: EventAuction, AuctionID: snap.ID, Body: snap})
}

func (c *Controller) emit(ev Event) {
	if c.notify != nil {
		c.notify(ev)
	}
}
