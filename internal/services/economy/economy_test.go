package economy

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore() *Store {
	return NewStore(rand.New(rand.NewSource(1)))
}

func TestPriceAppliesModifiers(t *testing.T) {
	s := newTestStore()
	assert.Equal(t, int64(1000), s.Price(1000, "dresses"), "spring is price-neutral")

	s.SetSeason(SeasonWinter)
	assert.Equal(t, int64(1200), s.Price(1000, "dresses"), "winter prices run 20% hot")

	s.AddTrend(Trend{Category: "dresses", Direction: TrendUp, Strength: 0.5, Duration: 5})
	assert.Equal(t, int64(1800), s.Price(1000, "dresses"))
	assert.Equal(t, int64(1200), s.Price(1000, "shirts"), "trend scoped to its category")

	s.AddTrend(Trend{Category: "all", Direction: TrendDown, Strength: 0.25, Duration: 5})
	assert.Equal(t, int64(900), s.Price(1000, "shirts"), "all-category trends hit everything")

	// Stable trends change nothing.
	s.AddTrend(Trend{Category: "shirts", Direction: TrendStable, Strength: 0.9, Duration: 5})
	assert.Equal(t, int64(900), s.Price(1000, "shirts"))
}

func TestEventEffectsScopeToCategory(t *testing.T) {
	s := newTestStore()
	s.AddEvent(Event{
		ID:       "e1",
		Name:     "supply disruption",
		Effects:  []Effect{{Target: EffectPrice, Value: 0.2, Category: "materials"}},
		Duration: 3,
	})

	assert.Equal(t, int64(1200), s.Price(1000, "materials"))
	assert.Equal(t, int64(1000), s.Price(1000, "dresses"))

	s.RemoveEvent("e1")
	assert.Equal(t, int64(1000), s.Price(1000, "materials"))
}

func TestDemandIsClamped(t *testing.T) {
	s := newTestStore()
	s.SetSeason(SeasonSummer)
	s.AddTrend(Trend{Category: "all", Direction: TrendUp, Strength: 0.6, Duration: 5})
	s.AddEvent(Event{
		ID:       "e1",
		Effects:  []Effect{{Target: EffectDemand, Value: 0.3, Category: "all"}},
		Duration: 3,
	})

	// 1.5 * 1.2 * 1.6 * 1.3 would be 3.74; the ceiling holds.
	assert.Equal(t, 2.0, s.Demand(1.5, "dresses"))

	s.SetSeason(SeasonWinter)
	s.Reset()
	s.AddTrend(Trend{Category: "all", Direction: TrendDown, Strength: 1.0, Duration: 5})
	assert.Equal(t, 0.0, s.Demand(1.0, "dresses"), "floor holds")
}

func TestDailyUpdateDecaysTrendsAndAccruesInflation(t *testing.T) {
	s := newTestStore()
	s.AddTrend(Trend{Category: "pants", Direction: TrendUp, Strength: 0.2, Duration: 2})
	s.AddEvent(Event{ID: "e1", Duration: 1})

	findPants := func() *Trend {
		for _, tr := range s.Trends() {
			if tr.Category == "pants" && tr.Strength == 0.2 {
				return &tr
			}
		}
		return nil
	}
	findEvent := func(id string) bool {
		for _, e := range s.Events() {
			if e.ID == id {
				return true
			}
		}
		return false
	}

	s.DailyUpdate()
	pants := findPants()
	require.NotNil(t, pants)
	assert.Equal(t, 1, pants.Duration)
	assert.False(t, findEvent("e1"), "expired events drop out")
	assert.InDelta(t, inflationRate/30, s.Inflation(), 1e-9)

	s.DailyUpdate()
	assert.Nil(t, findPants(), "trend expires after its duration")

	// Thirty days accrue one month of inflation.
	for i := 0; i < 28; i++ {
		s.DailyUpdate()
	}
	assert.InDelta(t, inflationRate, s.Inflation(), 1e-9)
}

func TestNextSeasonCycles(t *testing.T) {
	s := newTestStore()
	order := []Season{SeasonSummer, SeasonAutumn, SeasonWinter, SeasonSpring}
	for _, want := range order {
		next := s.NextSeason()
		assert.Equal(t, want, next)
		s.SetSeason(next)
	}
}
