// Package company tracks the player's company: which town facilities it
// rents, where it sits on the map, and its progression level.
package company

import (
	"context"
	"errors"
	"sync"

	"github.com/samber/lo"
	"go.uber.org/zap"
)

type Place string

const (
	PlaceWarehouse Place = "warehouse"
	PlaceAtelier   Place = "atelier"
	PlaceMarket    Place = "market"
)

// The goose's home is the map starting point.
const homePointID = 7

var rentCosts = map[Place]int64{
	PlaceWarehouse: 3_000,
	PlaceAtelier:   2_500,
	PlaceMarket:    2_000,
}

var dailyFees = map[Place]int64{
	PlaceWarehouse: 500,
	PlaceAtelier:   400,
	PlaceMarket:    300,
}

var ErrUnknownPlace = errors.New("company: unknown place")

// Wallet funds rents and daily fees.
type Wallet interface {
	SpendMoney(ctx context.Context, amount int64) error
}

type Progress struct {
	Level      int `json:"level"`
	Experience int `json:"experience"`
}

type Location struct {
	CurrentPointID   int   `json:"current_point_id"`
	DiscoveredPoints []int `json:"discovered_points"`
}

type Store struct {
	wallet Wallet

	mu       sync.Mutex
	rented   map[Place]bool
	location Location
	progress Progress
}

func NewStore(wallet Wallet) *Store {
	return &Store{
		wallet: wallet,
		rented: map[Place]bool{
			PlaceWarehouse: false,
			PlaceAtelier:   false,
			PlaceMarket:    false,
		},
		location: Location{
			CurrentPointID:   homePointID,
			DiscoveredPoints: []int{homePointID},
		},
		progress: Progress{Level: 1},
	}
}

// Rent pays the one-off cost and unlocks the place. Renting an already
// rented place is a no-op.
func (s *Store) Rent(ctx context.Context, place Place) error {
	cost, ok := rentCosts[place]
	if !ok {
		return ErrUnknownPlace
	}

	s.mu.Lock()
	if s.rented[place] {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	if err := s.wallet.SpendMoney(ctx, cost); err != nil {
		return err
	}

	s.mu.Lock()
	s.rented[place] = true
	s.mu.Unlock()

	zap.L().Info("place_rented", zap.String("place", string(place)), zap.Int64("cost", cost))
	return nil
}

// CancelRent releases the place without a refund.
func (s *Store) CancelRent(place Place) error {
	if _, ok := rentCosts[place]; !ok {
		return ErrUnknownPlace
	}
	s.mu.Lock()
	s.rented[place] = false
	s.mu.Unlock()
	return nil
}

// IsRented reports whether the place is currently rented.
func (s *Store) IsRented(place Place) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rented[place]
}

// DailyFee sums the fees of all rented places.
func (s *Store) DailyFee() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total int64
	for place, rented := range s.rented {
		if rented {
			total += dailyFees[place]
		}
	}
	return total
}

// ChargeDailyFees collects the daily rent. The game clock invokes it on day
// boundaries; an empty wallet is logged, not fatal.
func (s *Store) ChargeDailyFees(ctx context.Context) {
	total := s.DailyFee()
	if total == 0 {
		return
	}
	if err := s.wallet.SpendMoney(ctx, total); err != nil {
		zap.L().Warn("daily_fees_unpaid", zap.Int64("total", total), zap.Error(err))
		return
	}
	zap.L().Debug("daily_fees_charged", zap.Int64("total", total))
}

// MoveToPoint relocates the company and marks the point discovered.
func (s *Store) MoveToPoint(pointID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.location.CurrentPointID = pointID
	if !lo.Contains(s.location.DiscoveredPoints, pointID) {
		s.location.DiscoveredPoints = append(s.location.DiscoveredPoints, pointID)
	}
}

// CurrentLocation returns a copy of the map state.
func (s *Store) CurrentLocation() Location {
	s.mu.Lock()
	defer s.mu.Unlock()
	loc := s.location
	loc.DiscoveredPoints = append([]int(nil), s.location.DiscoveredPoints...)
	return loc
}

// AddExperience grants company experience, levelling up when the threshold
// is crossed. Surplus experience carries into the next level.
func (s *Store) AddExperience(amount int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress.Experience += amount
	for {
		required := levelThreshold(s.progress.Level)
		if s.progress.Experience < required {
			return
		}
		s.progress.Experience -= required
		s.progress.Level++
		zap.L().Info("company_level_up", zap.Int("level", s.progress.Level))
	}
}

func levelThreshold(level int) int {
	return 100 + (level-1)*50
}

func (s *Store) Level() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progress.Level
}

func (s *Store) Experience() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progress.Experience
}
