// Package gateway defines the narrow contract this client needs from the
// hosted backend: row storage with point queries, server-authoritative remote
// procedures, and a change-event channel keyed by table and row filter.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
)

var (
	// ErrDuplicate reports a unique-constraint violation on insert.
	// Callers that want idempotent inserts check for it with errors.Is.
	ErrDuplicate = errors.New("gateway: duplicate row")

	// ErrNotFound reports an empty point read.
	ErrNotFound = errors.New("gateway: row not found")
)

// ChangeType classifies a change event.
type ChangeType string

const (
	ChangeInsert ChangeType = "insert"
	ChangeUpdate ChangeType = "update"
	ChangeDelete ChangeType = "delete"
)

// ChangeEvent is one row-level change delivered by the feed.
// New carries the row after the change, Old (updates/deletes only) before it.
type ChangeEvent struct {
	Type  ChangeType      `json:"type"`
	Table string          `json:"table"`
	New   json.RawMessage `json:"new,omitempty"`
	Old   json.RawMessage `json:"old,omitempty"`
}

// Query describes a filtered, ordered, bounded row selection.
type Query struct {
	Table      string
	Eq         map[string]any      // column = value, ANDed
	In         map[string][]string // column IN (...), ANDed
	OrderBy    string
	Descending bool
	Limit      int
}

// RowStore is the row-storage half of the backend.
// Select decodes the result set into dest, which must be a pointer to a
// slice of structs with json tags matching the column names. SelectOne
// decodes a single row and returns ErrNotFound when nothing matches.
type RowStore interface {
	Select(ctx context.Context, q Query, dest any) error
	SelectOne(ctx context.Context, q Query, dest any) error
	Insert(ctx context.Context, table string, row any) error
	Update(ctx context.Context, table string, id string, fields map[string]any) error
}

// ProcedureCaller invokes a server-authoritative remote procedure and returns
// its raw JSON result. Transactionality and validation live server-side.
type ProcedureCaller interface {
	Call(ctx context.Context, name string, args map[string]any) (json.RawMessage, error)
}

// Subscription selects which change events a feed delivers.
// Filter is either empty (whole table) or "column=eq.value".
// Types empty means all event types.
type Subscription struct {
	Table  string
	Types  []ChangeType
	Filter string
}

// FeedHandle is one open change feed. Events carries matching change events;
// Status reports the connection state, starting with the subscription
// confirmation. Both channels are closed by Close.
type FeedHandle struct {
	Events <-chan ChangeEvent
	Status <-chan bool

	stop func()
}

// NewFeedHandle wires a handle around implementation-owned channels.
func NewFeedHandle(events <-chan ChangeEvent, status <-chan bool, stop func()) *FeedHandle {
	return &FeedHandle{Events: events, Status: status, stop: stop}
}

// Close tears the feed down. Safe to call more than once.
func (h *FeedHandle) Close() {
	if h.stop != nil {
		h.stop()
		h.stop = nil
	}
}

// ChangeFeed is the publish/subscribe half of the backend.
type ChangeFeed interface {
	Subscribe(ctx context.Context, sub Subscription) (*FeedHandle, error)
}

// Remote bundles the three capabilities a store needs.
type Remote struct {
	Rows  RowStore
	Procs ProcedureCaller
	Feed  ChangeFeed
}
