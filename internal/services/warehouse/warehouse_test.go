package warehouse

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"economicgoose/internal/gateway/gatewaytest"
)

type fakeWallet struct {
	money int64
}

func (w *fakeWallet) PlayerID() string { return "u1" }

func (w *fakeWallet) AddMoney(_ context.Context, delta int64) error {
	w.money += delta
	return nil
}

func (w *fakeWallet) SpendMoney(_ context.Context, amount int64) error {
	if w.money < amount {
		return ErrInsufficientFunds
	}
	w.money -= amount
	return nil
}

func newTestStore(t *testing.T, money int64) (*Store, *fakeWallet, *gatewaytest.Fake) {
	t.Helper()
	fake := gatewaytest.New()
	fake.Seed(tableMaterials,
		map[string]any{"id": "m1", "name": "silk", "quality": "fine", "quantity": 20, "price": 150},
		map[string]any{"id": "m2", "name": "wool", "quality": "common", "quantity": 5, "price": 40},
	)
	fake.Seed(tableClothing,
		map[string]any{"id": "c1", "name": "coat", "quality": "fine", "quantity": 3, "price": 900},
	)
	fake.Seed(tableStats, map[string]any{"id": "s1", "capacity_percent": 35, "free_space": 650})

	wallet := &fakeWallet{money: money}
	clock := clockwork.NewFakeClockAt(time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC))
	s := NewStore(fake, wallet, clock)
	require.NoError(t, s.Load(context.Background()))
	return s, wallet, fake
}

func TestBuyMovesMoneyAndStock(t *testing.T) {
	s, wallet, fake := newTestStore(t, 1_000)

	require.NoError(t, s.Buy(context.Background(), KindMaterial, "m1", 4))

	assert.Equal(t, int64(400), wallet.money, "4 * 150 paid")
	assert.Equal(t, int64(16), s.Materials()[0].Quantity, "stock decreased")

	journal := s.Transactions()
	require.Len(t, journal, 1)
	assert.Equal(t, "out", journal[0].Type)
	assert.Equal(t, int64(-4), journal[0].QuantityChange)
	assert.Equal(t, int64(600), journal[0].TotalValue)
	assert.Len(t, fake.Rows(tableTransactions), 1)
}

func TestBuyRefusesOverdraftAndOverstock(t *testing.T) {
	s, wallet, fake := newTestStore(t, 100)

	err := s.Buy(context.Background(), KindMaterial, "m1", 4)
	assert.ErrorIs(t, err, ErrInsufficientFunds)
	assert.Equal(t, int64(100), wallet.money)

	wallet.money = 10_000
	err = s.Buy(context.Background(), KindMaterial, "m2", 6)
	assert.ErrorIs(t, err, ErrOutOfStock)
	assert.Equal(t, int64(10_000), wallet.money, "no charge without stock")

	err = s.Buy(context.Background(), KindMaterial, "missing", 1)
	assert.ErrorIs(t, err, ErrItemNotFound)
	assert.Empty(t, fake.Rows(tableTransactions))
}

func TestSellCreditsEightyPercent(t *testing.T) {
	s, wallet, _ := newTestStore(t, 0)

	require.NoError(t, s.Sell(context.Background(), KindClothing, "c1", 2))

	// 2 * 900 * 0.8
	assert.Equal(t, int64(1_440), wallet.money)
	assert.Equal(t, int64(5), s.Clothing()[0].Quantity, "stock increased")

	journal := s.Transactions()
	require.Len(t, journal, 1)
	assert.Equal(t, "in", journal[0].Type)
	assert.Equal(t, int64(2), journal[0].QuantityChange)
}

func TestSummaryAggregatesStock(t *testing.T) {
	s, _, _ := newTestStore(t, 0)

	sum := s.Summary()
	assert.Equal(t, int64(25), sum.MaterialsTotal)
	assert.Equal(t, int64(20*150+5*40), sum.MaterialsValue)
	assert.Equal(t, int64(3), sum.ClothingTotal)
	assert.Equal(t, int64(2700), sum.ClothingValue)
	assert.Equal(t, sum.MaterialsValue+sum.ClothingValue, sum.TotalValue)
	assert.Equal(t, 35, sum.CapacityUsed)
	assert.Equal(t, int64(650), sum.FreeSpace)
}

func TestInStockTracksMaterialQuantity(t *testing.T) {
	s, _, _ := newTestStore(t, 0)

	assert.True(t, s.InStock("m1"))
	assert.False(t, s.InStock("missing"))

	require.NoError(t, s.AdjustQuantity(context.Background(), KindMaterial, "m2", -5, "atelier crafting"))
	assert.False(t, s.InStock("m2"), "depleted stock")
}

func TestAdjustQuantityJournalsReason(t *testing.T) {
	s, _, fake := newTestStore(t, 0)

	require.NoError(t, s.AdjustQuantity(context.Background(), KindMaterial, "m2", -3, "atelier crafting"))

	rows := fake.Rows(tableTransactions)
	require.Len(t, rows, 1)
	assert.EqualValues(t, "atelier crafting", rows[0]["reason"])

	err := s.AdjustQuantity(context.Background(), KindMaterial, "m2", -5, "atelier crafting")
	assert.ErrorIs(t, err, ErrOutOfStock)
}
