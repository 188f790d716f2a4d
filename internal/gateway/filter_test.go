package gateway

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseFilter(t *testing.T) {
	column, value, ok := ParseFilter("auction_id=eq.a1")
	assert.True(t, ok)
	assert.Equal(t, "auction_id", column)
	assert.Equal(t, "a1", value)

	_, _, ok = ParseFilter("auction_id=a1")
	assert.False(t, ok)

	_, _, ok = ParseFilter("=eq.a1")
	assert.False(t, ok)
}

func TestSubscriptionMatchesTableAndType(t *testing.T) {
	sub := Subscription{Table: "auction_bids", Types: []ChangeType{ChangeInsert}}

	ev := ChangeEvent{Table: "auction_bids", Type: ChangeInsert, New: json.RawMessage(`{}`)}
	assert.True(t, sub.Matches(ev))

	assert.False(t, sub.Matches(ChangeEvent{Table: "auctions", Type: ChangeInsert}))
	assert.False(t, sub.Matches(ChangeEvent{Table: "auction_bids", Type: ChangeUpdate}))
}

func TestSubscriptionMatchesRowFilter(t *testing.T) {
	sub := Subscription{Table: "auction_bids", Filter: "auction_id=eq.a1"}

	match := ChangeEvent{
		Table: "auction_bids",
		Type:  ChangeInsert,
		New:   json.RawMessage(`{"auction_id":"a1","amount":500}`),
	}
	assert.True(t, sub.Matches(match))

	other := ChangeEvent{
		Table: "auction_bids",
		Type:  ChangeInsert,
		New:   json.RawMessage(`{"auction_id":"a2"}`),
	}
	assert.False(t, sub.Matches(other))
}

func TestSubscriptionMatchesNumericFilterValues(t *testing.T) {
	sub := Subscription{Table: "warehouse_materials", Filter: "slot=eq.3"}

	ev := ChangeEvent{
		Table: "warehouse_materials",
		Type:  ChangeUpdate,
		New:   json.RawMessage(`{"slot":3}`),
	}
	assert.True(t, sub.Matches(ev))
}

func TestSubscriptionMatchesDeleteAgainstOldRow(t *testing.T) {
	sub := Subscription{Table: "auction_participants", Filter: "auction_id=eq.a1"}

	ev := ChangeEvent{
		Table: "auction_participants",
		Type:  ChangeDelete,
		Old:   json.RawMessage(`{"auction_id":"a1"}`),
	}
	assert.True(t, sub.Matches(ev))
}
