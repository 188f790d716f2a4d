package profile

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"economicgoose/internal/gateway/gatewaytest"
)

func TestLoadCreatesProfileWithStartingMoney(t *testing.T) {
	fake := gatewaytest.New()
	s := NewStore(fake)

	p, err := s.Load(context.Background(), "u1", "goose@example.com", "goose", "Goose Atelier")
	require.NoError(t, err)
	assert.Equal(t, int64(5000), p.Money)
	assert.Equal(t, 1, p.Level)

	rows := fake.Rows("user_profiles")
	require.Len(t, rows, 1)
	assert.EqualValues(t, "goose", rows[0]["username"])
}

func TestLoadRepairsZeroBalance(t *testing.T) {
	fake := gatewaytest.New()
	fake.Seed("user_profiles", map[string]any{
		"id": "u1", "email": "goose@example.com", "username": "goose",
		"full_name": "Goose", "money": 0, "level": 2, "experience": 150,
	})
	s := NewStore(fake)

	p, err := s.Load(context.Background(), "u1", "", "", "")
	require.NoError(t, err)
	assert.Equal(t, int64(5000), p.Money)
	assert.Equal(t, 2, p.Level, "existing progress preserved")
	assert.EqualValues(t, 5000, fake.Rows("user_profiles")[0]["money"])
}

func TestSpendMoneyRefusesOverdraft(t *testing.T) {
	fake := gatewaytest.New()
	s := NewStore(fake)
	_, err := s.Load(context.Background(), "u1", "", "goose", "")
	require.NoError(t, err)

	require.NoError(t, s.SpendMoney(context.Background(), 3000))
	assert.Equal(t, int64(2000), s.Balance())

	err = s.SpendMoney(context.Background(), 2001)
	assert.ErrorIs(t, err, ErrInsufficientFunds)
	assert.Equal(t, int64(2000), s.Balance(), "failed spend leaves balance alone")
	assert.EqualValues(t, 2000, fake.Rows("user_profiles")[0]["money"])
}

func TestRefreshBalancePicksUpBackendWrites(t *testing.T) {
	fake := gatewaytest.New()
	s := NewStore(fake)
	_, err := s.Load(context.Background(), "u1", "", "goose", "")
	require.NoError(t, err)

	// A settlement procedure moved money server-side.
	require.NoError(t, fake.Update(context.Background(), "user_profiles", "u1",
		map[string]any{"money": 12_345}))

	require.NoError(t, s.RefreshBalance(context.Background()))
	assert.Equal(t, int64(12_345), s.Balance())
}

func TestIdentityBeforeLoad(t *testing.T) {
	s := NewStore(gatewaytest.New())
	assert.Empty(t, s.PlayerID())
	assert.Zero(t, s.Balance())
	assert.ErrorIs(t, s.AddMoney(context.Background(), 100), ErrNotLoaded)
}
