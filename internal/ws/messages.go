package ws

import "encoding/json"

// Envelope wraps every WS frame.
type Envelope struct {
	Event string          `json:"event"`          // e.g. "auctions/bid"
	Body  json.RawMessage `json:"body,omitempty"` // arbitrary JSON object
}

// ──────────────────────────── Request / Response DTOs ─────────────────────────

// JoinRequest is the body for "auctions/join".
type JoinRequest struct {
	AuctionID string `json:"auction_id" validate:"required"`
}

// BidRequest is the body for "auctions/bid". The auction is the one the
// session has joined.
type BidRequest struct {
	Amount int64 `json:"amount" validate:"gt=0"`
}

// VolumeRequest is the body for "music/volume".
type VolumeRequest struct {
	Master *float64 `json:"master,omitempty"`
	Music  *float64 `json:"music,omitempty"`
}

// Empty ACK body (useful for many handlers).
type AckBody struct{}

// ErrorBody is returned for failures.
type ErrorBody struct {
	Error string `json:"error"`
}
