// Package profile holds the signed-in player's profile row and exposes the
// money operations every other store spends through.
package profile

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"economicgoose/internal/gateway"
)

const (
	tableProfiles = "user_profiles"

	startMoney = 5_000
	startLevel = 1
)

var (
	ErrNotLoaded         = errors.New("profile: no profile loaded")
	ErrInsufficientFunds = errors.New("profile: insufficient funds")
)

// Profile mirrors one user_profiles row.
type Profile struct {
	ID         string    `json:"id"`
	Email      string    `json:"email"`
	Username   string    `json:"username"`
	FullName   string    `json:"full_name"`
	Money      int64     `json:"money"`
	Level      int       `json:"level"`
	Experience int       `json:"experience"`
	CreatedAt  time.Time `json:"created_at"`
}

// Store owns the current player's profile. It satisfies the identity
// contract the auction controller expects (id, display name, balance).
type Store struct {
	rows gateway.RowStore

	mu      sync.Mutex
	current *Profile
}

func NewStore(rows gateway.RowStore) *Store {
	return &Store{rows: rows}
}

// Load fetches the profile row, creating it with starting money on first
// sign-in. A zero balance on an existing row is repaired to the starting
// amount, matching the backend's new-account guarantee.
func (s *Store) Load(ctx context.Context, userID, email, username, fullName string) (*Profile, error) {
	var p Profile
	err := s.rows.SelectOne(ctx, gateway.Query{
		Table: tableProfiles,
		Eq:    map[string]any{"id": userID},
	}, &p)

	switch {
	case errors.Is(err, gateway.ErrNotFound):
		p = Profile{
			ID:       userID,
			Email:    email,
			Username: username,
			FullName: fullName,
			Money:    startMoney,
			Level:    startLevel,
		}
		if err := s.rows.Insert(ctx, tableProfiles, map[string]any{
			"id":         p.ID,
			"email":      p.Email,
			"username":   p.Username,
			"full_name":  p.FullName,
			"money":      p.Money,
			"level":      p.Level,
			"experience": p.Experience,
		}); err != nil && !errors.Is(err, gateway.ErrDuplicate) {
			return nil, err
		}
		zap.L().Info("profile_created", zap.String("user_id", userID))

	case err != nil:
		return nil, err

	case p.Money == 0:
		if err := s.rows.Update(ctx, tableProfiles, userID, map[string]any{"money": int64(startMoney)}); err != nil {
			zap.L().Warn("profile_start_money", zap.String("user_id", userID), zap.Error(err))
		} else {
			p.Money = startMoney
		}
	}

	s.mu.Lock()
	s.current = &p
	s.mu.Unlock()
	return s.snapshot(), nil
}

// Current returns a copy of the loaded profile, or nil.
func (s *Store) Current() *Profile {
	return s.snapshot()
}

func (s *Store) snapshot() *Profile {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil
	}
	p := *s.current
	return &p
}

// AddMoney adjusts the balance by delta, which may be negative. The row is
// written first so the local copy never runs ahead of the backend.
func (s *Store) AddMoney(ctx context.Context, delta int64) error {
	s.mu.Lock()
	if s.current == nil {
		s.mu.Unlock()
		return ErrNotLoaded
	}
	id := s.current.ID
	next := s.current.Money + delta
	s.mu.Unlock()

	if next < 0 {
		return ErrInsufficientFunds
	}
	if err := s.rows.Update(ctx, tableProfiles, id, map[string]any{"money": next}); err != nil {
		return err
	}

	s.mu.Lock()
	if s.current != nil && s.current.ID == id {
		s.current.Money = next
	}
	s.mu.Unlock()
	return nil
}

// SpendMoney deducts amount, failing without a write when the balance does
// not cover it.
func (s *Store) SpendMoney(ctx context.Context, amount int64) error {
	s.mu.Lock()
	if s.current == nil {
		s.mu.Unlock()
		return ErrNotLoaded
	}
	if s.current.Money < amount {
		s.mu.Unlock()
		return ErrInsufficientFunds
	}
	s.mu.Unlock()
	return s.AddMoney(ctx, -amount)
}

// AddExperience grants experience and persists it together with any level
// the caller computed.
func (s *Store) AddExperience(ctx context.Context, exp int) error {
	s.mu.Lock()
	if s.current == nil {
		s.mu.Unlock()
		return ErrNotLoaded
	}
	id := s.current.ID
	next := s.current.Experience + exp
	s.mu.Unlock()

	if err := s.rows.Update(ctx, tableProfiles, id, map[string]any{"experience": next}); err != nil {
		return err
	}
	s.mu.Lock()
	if s.current != nil && s.current.ID == id {
		s.current.Experience = next
	}
	s.mu.Unlock()
	return nil
}

// Unload drops the local profile on sign-out.
func (s *Store) Unload() {
	s.mu.Lock()
	s.current = nil
	s.mu.Unlock()
}

// ---------------------------------------------------------------------------
//  identity for the auction controller
// ---------------------------------------------------------------------------

func (s *Store) PlayerID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return ""
	}
	return s.current.ID
}

func (s *Store) PlayerName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return ""
	}
	return s.current.Username
}

func (s *Store) Balance() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return 0
	}
	return s.current.Money
}

// RefreshBalance re-reads the money column, used after auction settlements
// where the backend moved funds on its own.
func (s *Store) RefreshBalance(ctx context.Context) error {
	s.mu.Lock()
	if s.current == nil {
		s.mu.Unlock()
		return ErrNotLoaded
	}
	id := s.current.ID
	s.mu.Unlock()

	var p Profile
	if err := s.rows.SelectOne(ctx, gateway.Query{
		Table: tableProfiles,
		Eq:    map[string]any{"id": id},
	}, &p); err != nil {
		return err
	}

	s.mu.Lock()
	if s.current != nil && s.current.ID == id {
		s.current.Money = p.Money
		s.current.Level = p.Level
		s.current.Experience = p.Experience
	}
	s.mu.Unlock()
	return nil
}
