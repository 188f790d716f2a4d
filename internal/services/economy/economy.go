// Package economy models the market around the atelier: category trends,
// inflation, season modifiers and random economic events. Prices and demand
// are derived values; nothing here is persisted remotely.
package economy

import (
	"math"
	"math/rand"
	"sync"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

const (
	// Monthly inflation, accrued in daily slices.
	inflationRate = 0.02
	// Daily chance of a fresh market trend or economic event.
	trendChance = 0.10
	eventChance = 0.05

	demandFloor = 0.0
	demandCeil  = 2.0
)

type Season string

const (
	SeasonSpring Season = "spring"
	SeasonSummer Season = "summer"
	SeasonAutumn Season = "autumn"
	SeasonWinter Season = "winter"
)

type seasonModifier struct {
	demand     float64
	price      float64
	reputation float64
}

var seasonModifiers = map[Season]seasonModifier{
	SeasonSpring: {demand: 1.1, price: 1.0, reputation: 1.0},
	SeasonSummer: {demand: 1.2, price: 1.1, reputation: 1.1},
	SeasonAutumn: {demand: 0.9, price: 0.9, reputation: 0.9},
	SeasonWinter: {demand: 0.8, price: 1.2, reputation: 0.8},
}

type TrendDirection string

const (
	TrendUp     TrendDirection = "up"
	TrendDown   TrendDirection = "down"
	TrendStable TrendDirection = "stable"
)

// Trend is one category-level market movement with a remaining lifetime in
// days.
type Trend struct {
	Category  string         `json:"category"`
	Direction TrendDirection `json:"direction"`
	Strength  float64        `json:"strength"`
	Duration  int            `json:"duration"`
}

type EffectTarget string

const (
	EffectDemand EffectTarget = "demand"
	EffectPrice  EffectTarget = "price"
)

type Effect struct {
	Target   EffectTarget `json:"target"`
	Value    float64      `json:"value"`
	Category string       `json:"category"`
}

// Event is a running economic event with its effects and remaining days.
type Event struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Type        string   `json:"type"`
	Effects     []Effect `json:"effects"`
	Duration    int      `json:"duration"`
}

var trendCategories = []string{"dresses", "shirts", "pants", "accessories"}

var eventTemplates = []Event{
	{
		Name:        "fashion week",
		Description: "clothing demand spikes across the board",
		Type:        "positive",
		Effects:     []Effect{{Target: EffectDemand, Value: 0.3, Category: "all"}},
	},
	{
		Name:        "economic downturn",
		Description: "buyers tighten their purses",
		Type:        "negative",
		Effects:     []Effect{{Target: EffectDemand, Value: -0.2, Category: "all"}},
	},
	{
		Name:        "new style craze",
		Description: "one silhouette is suddenly everywhere",
		Type:        "positive",
		Effects:     []Effect{{Target: EffectDemand, Value: 0.4, Category: "dresses"}},
	},
	{
		Name:        "supply disruption",
		Description: "material prices climb",
		Type:        "negative",
		Effects:     []Effect{{Target: EffectPrice, Value: 0.2, Category: "materials"}},
	},
}

type Store struct {
	rng *rand.Rand

	mu        sync.Mutex
	trends    []Trend
	events    []Event
	inflation float64
	season    Season
}

// NewStore builds the economy with its own randomness source so daily rolls
// are reproducible in tests.
func NewStore(rng *rand.Rand) *Store {
	return &Store{rng: rng, season: SeasonSpring}
}

// DailyUpdate advances the economy by one game day: trends and events decay
// and may spawn, inflation accrues.
func (s *Store) DailyUpdate() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.trends = lo.FilterMap(s.trends, func(t Trend, _ int) (Trend, bool) {
		t.Duration--
		return t, t.Duration > 0
	})
	if s.rng.Float64() < trendChance {
		t := s.spawnTrend()
		s.trends = append(s.trends, t)
		zap.L().Debug("market_trend",
			zap.String("category", t.Category),
			zap.String("direction", string(t.Direction)),
		)
	}

	s.events = lo.FilterMap(s.events, func(e Event, _ int) (Event, bool) {
		e.Duration--
		return e, e.Duration > 0
	})
	if s.rng.Float64() < eventChance {
		e := s.spawnEvent()
		s.events = append(s.events, e)
		zap.L().Info("economic_event", zap.String("name", e.Name), zap.Int("days", e.Duration))
	}

	s.inflation += inflationRate / 30
}

func (s *Store) spawnTrend() Trend {
	return Trend{
		Category:  trendCategories[s.rng.Intn(len(trendCategories))],
		Direction: []TrendDirection{TrendUp, TrendDown, TrendStable}[s.rng.Intn(3)],
		Strength:  s.rng.Float64()*0.5 + 0.1,
		Duration:  s.rng.Intn(7) + 3,
	}
}

func (s *Store) spawnEvent() Event {
	e := eventTemplates[s.rng.Intn(len(eventTemplates))]
	e.ID = uuid.NewString()
	e.Effects = append([]Effect(nil), e.Effects...)
	e.Duration = s.rng.Intn(5) + 3
	return e
}

// AddTrend injects a trend directly, used by scripted content.
func (s *Store) AddTrend(t Trend) {
	s.mu.Lock()
	s.trends = append(s.trends, t)
	s.mu.Unlock()
}

// AddEvent injects an event directly.
func (s *Store) AddEvent(e Event) {
	s.mu.Lock()
	s.events = append(s.events, e)
	s.mu.Unlock()
}

// RemoveEvent cancels a running event by id.
func (s *Store) RemoveEvent(id string) {
	s.mu.Lock()
	s.events = lo.Reject(s.events, func(e Event, _ int) bool { return e.ID == id })
	s.mu.Unlock()
}

// SetSeason switches the active season; the game clock drives this.
func (s *Store) SetSeason(season Season) {
	s.mu.Lock()
	s.season = season
	s.mu.Unlock()
}

func (s *Store) Season() Season {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.season
}

func (s *Store) Inflation() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inflation
}

func (s *Store) Trends() []Trend {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Trend(nil), s.trends...)
}

func (s *Store) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

// Price applies inflation, the season and every matching trend and event to
// a base price, rounded to whole currency units.
func (s *Store) Price(basePrice int64, category string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	price := float64(basePrice)
	price *= 1 + s.inflation
	price *= seasonModifiers[s.season].price

	for _, t := range s.trends {
		if t.Category != category && t.Category != "all" {
			continue
		}
		switch t.Direction {
		case TrendUp:
			price *= 1 + t.Strength
		case TrendDown:
			price *= 1 - t.Strength
		}
	}
	for _, e := range s.events {
		for _, eff := range e.Effects {
			if eff.Target == EffectPrice && effectApplies(eff, category) {
				price *= 1 + eff.Value
			}
		}
	}
	return int64(math.Round(price))
}

// Demand applies the season and every matching trend and event to a base
// demand, clamped to the playable range.
func (s *Store) Demand(baseDemand float64, category string) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	demand := baseDemand * seasonModifiers[s.season].demand

	for _, t := range s.trends {
		if t.Category != category && t.Category != "all" {
			continue
		}
		switch t.Direction {
		case TrendUp:
			demand *= 1 + t.Strength
		case TrendDown:
			demand *= 1 - t.Strength
		}
	}
	for _, e := range s.events {
		for _, eff := range e.Effects {
			if eff.Target == EffectDemand && effectApplies(eff, category) {
				demand *= 1 + eff.Value
			}
		}
	}

	return math.Max(demandFloor, math.Min(demandCeil, demand))
}

func effectApplies(eff Effect, category string) bool {
	return eff.Category == "" || eff.Category == "all" || eff.Category == category
}

// ReputationModifier is the season's reputation multiplier.
func (s *Store) ReputationModifier() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return seasonModifiers[s.season].reputation
}

// NextSeason returns the season that follows the active one.
func (s *Store) NextSeason() Season {
	order := []Season{SeasonSpring, SeasonSummer, SeasonAutumn, SeasonWinter}
	current := s.Season()
	for i, season := range order {
		if season == current {
			return order[(i+1)%len(order)]
		}
	}
	return SeasonSpring
}

// Reset clears all accumulated state.
func (s *Store) Reset() {
	s.mu.Lock()
	s.trends, s.events, s.inflation, s.season = nil, nil, 0, SeasonSpring
	s.mu.Unlock()
}
