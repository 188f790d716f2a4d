package auction

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMinimumNextBid(t *testing.T) {
	cases := []struct {
		name    string
		current int64
		want    int64
	}{
		{"zero uses the flat floor", 0, 100},
		{"small bid uses the flat floor", 500, 600},
		{"exactly at the crossover", 1000, 1100},
		{"ten percent rounds up", 1001, 1102},
		{"large bid", 25000, 27500},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, MinimumNextBid(tc.current))
		})
	}
}

func TestApplyBidKeepsNewestFirst(t *testing.T) {
	base := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	a := &Auction{ID: "a1"}

	a.applyBid(Bid{ID: "b1", AuctionID: "a1", Amount: 100, CreatedAt: base})
	a.applyBid(Bid{ID: "b2", AuctionID: "a1", Amount: 200, CreatedAt: base.Add(2 * time.Second)})

	require.Len(t, a.BidsHistory, 2)
	assert.Equal(t, "b2", a.BidsHistory[0].ID)
	assert.Equal(t, "b1", a.BidsHistory[1].ID)
}

func TestApplyBidOrdersLateArrivalsByTimestamp(t *testing.T) {
	base := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	a := &Auction{ID: "a1"}

	a.applyBid(Bid{ID: "b1", Amount: 100, CreatedAt: base})
	a.applyBid(Bid{ID: "b3", Amount: 300, CreatedAt: base.Add(4 * time.Second)})
	// b2 was created between b1 and b3 but its event arrives last.
	a.applyBid(Bid{ID: "b2", Amount: 200, CreatedAt: base.Add(2 * time.Second)})

	require.Len(t, a.BidsHistory, 3)
	assert.Equal(t, []string{"b3", "b2", "b1"}, []string{
		a.BidsHistory[0].ID, a.BidsHistory[1].ID, a.BidsHistory[2].ID,
	})
}

func TestApplyBidCapsHistory(t *testing.T) {
	base := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	a := &Auction{ID: "a1"}

	for i := 0; i < historyCap+4; i++ {
		a.applyBid(Bid{
			ID:        string(rune('a' + i)),
			Amount:    int64(100 * (i + 1)),
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		})
	}

	require.Len(t, a.BidsHistory, historyCap)
	// Newest survives, oldest entries fall off.
	assert.Equal(t, int64(100*(historyCap+4)), a.BidsHistory[0].Amount)
	assert.Equal(t, int64(500), a.BidsHistory[historyCap-1].Amount)
}

func TestLocalTimeLeft(t *testing.T) {
	start := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	a := &Auction{StartedAt: &start}

	assert.Equal(t, 60, a.localTimeLeft(start))
	assert.Equal(t, 45, a.localTimeLeft(start.Add(15*time.Second)))
	assert.Equal(t, 0, a.localTimeLeft(start.Add(61*time.Second)), "never negative")

	notStarted := &Auction{}
	assert.Equal(t, 60, notStarted.localTimeLeft(start), "full round before start")
}
