// Package auction implements the client side of the real-time auction
// mini-game: the locally mirrored auction snapshot, a drift-corrected
// countdown timer, live change-feed subscriptions, and the session
// controller that coordinates join, bidding and teardown.
package auction

import (
	"encoding/json"
	"time"
)

// Status is the auction lifecycle state as stored by the backend.
type Status string

const (
	StatusWaiting  Status = "waiting"
	StatusActive   Status = "active"
	StatusFinished Status = "finished"
)

const (
	// RoundDuration is the fixed length of one active bidding round.
	RoundDuration = 60 * time.Second

	// historyCap bounds the locally kept bid history. Older entries are
	// dropped client-side only.
	historyCap = 10

	// listLimit caps the browsable auction list.
	listLimit = 20

	// minPoolSize is the fewest waiting/active auctions the lobby tolerates
	// before asking the backend to replenish the pool.
	minPoolSize = 3
)

// Backend tables and procedures.
const (
	tableAuctions     = "auctions"
	tableBids         = "auction_bids"
	tableParticipants = "auction_participants"

	procAutoStart = "auto_start_auction"
	procPlaceBid  = "place_auction_bid"
	procTimeLeft  = "get_auction_time_left"
	procFinish    = "finish_auction"
	procHeartbeat = "heartbeat_check_auctions"
)

// Participant is one joined player.
type Participant struct {
	ID      string `json:"player_id"`
	Name    string `json:"player_name"`
	IsReady bool   `json:"is_ready"`
}

// Bid is one entry of the bid history, newest first.
type Bid struct {
	ID         string    `json:"id"`
	AuctionID  string    `json:"auction_id"`
	PlayerID   string    `json:"player_id"`
	PlayerName string    `json:"player_name"`
	Amount     int64     `json:"bid_amount"`
	CreatedAt  time.Time `json:"created_at"`
}

// row mirrors one auctions-table row. The material payload is opaque to the
// client and copied verbatim.
type row struct {
	ID                string          `json:"id"`
	MaterialData      json.RawMessage `json:"material_data"`
	StartingPrice     int64           `json:"starting_price"`
	CurrentBid        int64           `json:"current_bid"`
	CurrentBidderID   string          `json:"current_bidder_id"`
	CurrentBidderName string          `json:"current_bidder_name"`
	TimeLeft          int             `json:"time_left"`
	Status            Status          `json:"status"`
	WinnerID          string          `json:"winner_id"`
	WinnerName        string          `json:"winner_name"`
	CreatedAt         time.Time       `json:"created_at"`
	StartedAt         *time.Time      `json:"started_at"`
	FinishedAt        *time.Time      `json:"finished_at"`
}

// Auction is the locally held snapshot of one auction, mutated in place by
// feed handlers and the timer. The authoritative copy lives server-side.
type Auction struct {
	ID                string          `json:"id"`
	Material          json.RawMessage `json:"material"`
	StartingPrice     int64           `json:"starting_price"`
	CurrentBid        int64           `json:"current_bid"`
	CurrentBidderID   string          `json:"current_bidder_id"`
	CurrentBidderName string          `json:"current_bidder_name"`
	TimeLeft          int             `json:"time_left"`
	Status            Status          `json:"status"`
	Participants      []Participant   `json:"participants"`
	BidsHistory       []Bid           `json:"bids_history"`
	WinnerID          string          `json:"winner_id"`
	WinnerName        string          `json:"winner_name"`
	CreatedAt         time.Time       `json:"created_at"`
	StartedAt         *time.Time      `json:"started_at"`
	FinishedAt        *time.Time      `json:"finished_at"`
}

// ListEntry is the reduced list-view snapshot: no participants or history.
type ListEntry struct {
	ID                string          `json:"id"`
	Material          json.RawMessage `json:"material"`
	StartingPrice     int64           `json:"starting_price"`
	CurrentBid        int64           `json:"current_bid"`
	CurrentBidderID   string          `json:"current_bidder_id"`
	CurrentBidderName string          `json:"current_bidder_name"`
	TimeLeft          int             `json:"time_left"`
	Status            Status          `json:"status"`
	WinnerID          string          `json:"winner_id"`
	WinnerName        string          `json:"winner_name"`
	CreatedAt         time.Time       `json:"created_at"`
	StartedAt         *time.Time      `json:"started_at"`
	FinishedAt        *time.Time      `json:"finished_at"`
}

func snapshotFromRow(r row) *Auction {
	return &Auction{
		ID:                r.ID,
		Material:          r.MaterialData,
		StartingPrice:     r.StartingPrice,
		CurrentBid:        r.CurrentBid,
		CurrentBidderID:   r.CurrentBidderID,
		CurrentBidderName: r.CurrentBidderName,
		TimeLeft:          r.TimeLeft,
		Status:            r.Status,
		WinnerID:          r.WinnerID,
		WinnerName:        r.WinnerName,
		CreatedAt:         r.CreatedAt,
		StartedAt:         r.StartedAt,
		FinishedAt:        r.FinishedAt,
	}
}

func listEntryFromRow(r row) ListEntry {
	return ListEntry{
		ID:                r.ID,
		Material:          r.MaterialData,
		StartingPrice:     r.StartingPrice,
		CurrentBid:        r.CurrentBid,
		CurrentBidderID:   r.CurrentBidderID,
		CurrentBidderName: r.CurrentBidderName,
		TimeLeft:          r.TimeLeft,
		Status:            r.Status,
		WinnerID:          r.WinnerID,
		WinnerName:        r.WinnerName,
		CreatedAt:         r.CreatedAt,
		StartedAt:         r.StartedAt,
		FinishedAt:        r.FinishedAt,
	}
}

// MinimumNextBid is the advisory UI floor for the next bid: current plus 10%
// rounded up, but never less than +100. The backend only enforces "strictly
// greater than current".
func MinimumNextBid(currentBid int64) int64 {
	increment := (currentBid + 9) / 10
	if increment < 100 {
		increment = 100
	}
	return currentBid + increment
}

// applyBid inserts a bid into the history, newest first. Events can arrive
// out of chronological order under network jitter, so placement is by
// creation timestamp rather than arrival order.
func (a *Auction) applyBid(b Bid) {
	pos := 0
	for pos < len(a.BidsHistory) && a.BidsHistory[pos].CreatedAt.After(b.CreatedAt) {
		pos++
	}
	a.BidsHistory = append(a.BidsHistory, Bid{})
	copy(a.BidsHistory[pos+1:], a.BidsHistory[pos:])
	a.BidsHistory[pos] = b
	if len(a.BidsHistory) > historyCap {
		a.BidsHistory = a.BidsHistory[:historyCap]
	}
}

// localTimeLeft extrapolates the remaining seconds from the start timestamp.
// Used between authoritative refreshes; never negative.
func (a *Auction) localTimeLeft(now time.Time) int {
	return remainingAt(a.StartedAt, now)
}

func remainingAt(startedAt *time.Time, now time.Time) int {
	total := int(RoundDuration / time.Second)
	if startedAt == nil {
		return total
	}
	left := total - int(now.Sub(*startedAt)/time.Second)
	if left < 0 {
		return 0
	}
	return left
}
