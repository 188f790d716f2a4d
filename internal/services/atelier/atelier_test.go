package atelier

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"economicgoose/internal/gateway/gatewaytest"
)

var errNoMoney = errors.New("no money")

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
		return errNoMoney
	}
	w.money -= amount
	return nil
}

type fakeMaterials struct {
	stock map[string]bool
}

func (m *fakeMaterials) InStock(id string) bool { return m.stock[id] }

func allMaterials() *fakeMaterials {
	stock := map[string]bool{}
	for _, tpl := range orderTemplates {
		for _, id := range tpl.materials {
			stock[id] = true
		}
	}
	return &fakeMaterials{stock: stock}
}

func newTestStore(t *testing.T, money int64) (*Store, *fakeWallet, *gatewaytest.Fake) {
	t.Helper()
	fake := gatewaytest.New()
	fake.Unique(tableAtelier, "id")
	wallet := &fakeWallet{money: money}
	clock := clockwork.NewFakeClockAt(time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC))
	s := NewStore(fake, wallet, allMaterials(), clock, rand.New(rand.NewSource(1)))
	return s, wallet, fake
}

func TestLoadWithoutRowStartsFresh(t *testing.T) {
	s, _, _ := newTestStore(t, 0)

	require.NoError(t, s.Load(context.Background()))

	st := s.State()
	assert.False(t, st.Rented)
	assert.Empty(t, st.Equipment)
	assert.EqualValues(t, defaultMonthlyRent, st.MonthlyRent)
	assert.GreaterOrEqual(t, len(s.OpenOrders()), 2)
	assert.LessOrEqual(t, len(s.OpenOrders()), 4)
}

func TestRentInstallsStarterMachine(t *testing.T) {
	s, _, fake := newTestStore(t, 0)
	require.NoError(t, s.Load(context.Background()))

	require.NoError(t, s.Rent(context.Background()))

	st := s.State()
	require.True(t, st.Rented)
	require.Len(t, st.Equipment, 1)
	assert.Equal(t, "basic_sewing_machine", st.Equipment[0].ID)
	assert.True(t, st.Equipment[0].Working)
	assert.True(t, s.CanTakeOrder())

	rows := fake.Rows(tableAtelier)
	require.Len(t, rows, 1, "state persisted")
}

func TestTakeOrderRequiresRentAndEquipment(t *testing.T) {
	s, _, _ := newTestStore(t, 0)
	require.NoError(t, s.Load(context.Background()))

	open := s.OpenOrders()
	require.NotEmpty(t, open)
	assert.ErrorIs(t, s.TakeOrder(context.Background(), open[0].ID), ErrNotRented)

	require.NoError(t, s.Rent(context.Background()))
	require.NoError(t, s.TakeOrder(context.Background(), open[0].ID))

	st := s.State()
	require.Len(t, st.Orders, 1)
	assert.Equal(t, OrderInProgress, st.Orders[0].Status)
	assert.Equal(t, 1, st.ActiveOrders)
}

func TestTakeOrderChecksMaterials(t *testing.T) {
	fake := gatewaytest.New()
	fake.Unique(tableAtelier, "id")
	clock := clockwork.NewFakeClockAt(time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC))
	s := NewStore(fake, &fakeWallet{}, &fakeMaterials{stock: map[string]bool{}}, clock, rand.New(rand.NewSource(1)))
	require.NoError(t, s.Load(context.Background()))
	require.NoError(t, s.Rent(context.Background()))

	open := s.OpenOrders()
	require.NotEmpty(t, open)
	assert.ErrorIs(t, s.TakeOrder(context.Background(), open[0].ID), ErrMissingMaterials)
	assert.Empty(t, s.State().Orders)
}

func TestBoardRefillsWhenOrdersRunLow(t *testing.T) {
	s, _, _ := newTestStore(t, 0)
	require.NoError(t, s.Load(context.Background()))
	require.NoError(t, s.Rent(context.Background()))

	for len(s.OpenOrders()) > minOpenOrders {
		require.NoError(t, s.TakeOrder(context.Background(), s.OpenOrders()[0].ID))
	}
	require.NoError(t, s.TakeOrder(context.Background(), s.OpenOrders()[0].ID))

	assert.GreaterOrEqual(t, len(s.OpenOrders()), minOpenOrders, "board regenerated")
}

func TestWorkOnOrderPaysOutOnCompletion(t *testing.T) {
	s, wallet, _ := newTestStore(t, 0)
	require.NoError(t, s.Load(context.Background()))
	require.NoError(t, s.Rent(context.Background()))

	order := s.OpenOrders()[0]
	require.NoError(t, s.TakeOrder(context.Background(), order.ID))

	require.NoError(t, s.WorkOnOrder(context.Background(), order.ID, 60))
	st := s.State()
	require.Len(t, st.Orders, 1)
	assert.Equal(t, 60, st.Orders[0].Progress)
	assert.Zero(t, wallet.money, "no pay before completion")

	// 60 + 70 clamps at 100 and completes the piece.
	require.NoError(t, s.WorkOnOrder(context.Background(), order.ID, 70))
	st = s.State()
	assert.Empty(t, st.Orders)
	assert.Equal(t, 0, st.ActiveOrders)
	assert.Equal(t, 1, st.CompletedOrders)
	assert.Equal(t, order.Price, wallet.money)
	assert.Equal(t, order.Complexity, st.Reputation)
	assert.Equal(t, order.Price, st.DailyIncome)
	assert.Equal(t, order.Price, st.MonthlyIncome)

	assert.ErrorIs(t, s.WorkOnOrder(context.Background(), order.ID, 10), ErrOrderNotFound)
}

func TestHireAndFireMoveStaffBetweenRosters(t *testing.T) {
	s, wallet, _ := newTestStore(t, 100_000)
	require.NoError(t, s.Load(context.Background()))

	roster := s.StaffRoster()
	require.Len(t, roster, 3)
	hired := roster[0]

	require.NoError(t, s.HireStaff(context.Background(), hired.ID))
	assert.Equal(t, 100_000-hired.Salary, wallet.money, "first month paid up front")
	require.Len(t, s.State().Staff, 1)
	assert.True(t, s.State().Staff[0].Working)
	assert.Len(t, s.StaffRoster(), 2)

	require.NoError(t, s.FireStaff(context.Background(), hired.ID))
	assert.Empty(t, s.State().Staff)
	assert.Len(t, s.StaffRoster(), 3, "back on the roster")

	assert.ErrorIs(t, s.FireStaff(context.Background(), hired.ID), ErrStaffNotFound)
}

func TestHireFailsWithoutMoney(t *testing.T) {
	s, wallet, _ := newTestStore(t, 100)
	require.NoError(t, s.Load(context.Background()))

	err := s.HireStaff(context.Background(), s.StaffRoster()[0].ID)
	assert.ErrorIs(t, err, errNoMoney)
	assert.Equal(t, int64(100), wallet.money)
	assert.Empty(t, s.State().Staff)
}

func TestBuyAndRepairEquipment(t *testing.T) {
	s, wallet, _ := newTestStore(t, 200_000)
	require.NoError(t, s.Load(context.Background()))
	require.NoError(t, s.Rent(context.Background()))

	shop := s.ShopEquipment()
	require.Len(t, shop, 5)
	bought := shop[0]

	require.NoError(t, s.BuyEquipment(context.Background(), bought.ID))
	assert.Equal(t, 200_000-bought.Price, wallet.money)
	assert.Len(t, s.ShopEquipment(), 4)
	require.Len(t, s.State().Equipment, 2)

	// Starter machine is at condition 80; a repair costs a tenth of the
	// price, which is free for the starter.
	before := wallet.money
	require.NoError(t, s.RepairEquipment(context.Background(), "basic_sewing_machine"))
	assert.Equal(t, before, wallet.money)
	assert.Equal(t, 100, s.State().Equipment[0].Condition)

	require.NoError(t, s.RepairEquipment(context.Background(), bought.ID))
	assert.Equal(t, before-bought.Price/10, wallet.money)

	assert.ErrorIs(t, s.BuyEquipment(context.Background(), "no_such"), ErrEquipmentNotFound)
}

func TestTotalEfficiencyCapsAtHundred(t *testing.T) {
	s, _, _ := newTestStore(t, 500_000)
	require.NoError(t, s.Load(context.Background()))
	require.NoError(t, s.Rent(context.Background()))

	assert.Equal(t, 50, s.TotalEfficiency(), "starter machine alone")

	require.NoError(t, s.HireStaff(context.Background(), "staff_1"))
	assert.Equal(t, 100, s.TotalEfficiency(), "50 + 80 capped")
}

func TestDailyExpensesProrateSalaries(t *testing.T) {
	s, _, _ := newTestStore(t, 500_000)
	require.NoError(t, s.Load(context.Background()))

	assert.Zero(t, s.DailyExpenses())

	require.NoError(t, s.HireStaff(context.Background(), "staff_1"))
	require.NoError(t, s.HireStaff(context.Background(), "staff_2"))
	assert.Equal(t, int64(30_000/30+25_000/30), s.DailyExpenses())
}

func TestProcessMonthPaysWorkingStaff(t *testing.T) {
	s, wallet, _ := newTestStore(t, 100_000)
	require.NoError(t, s.Load(context.Background()))
	require.NoError(t, s.HireStaff(context.Background(), "staff_1"))
	require.Equal(t, int64(70_000), wallet.money)

	s.ProcessMonth(context.Background())
	assert.Equal(t, int64(40_000), wallet.money, "30k payroll charged")
	assert.Zero(t, s.State().MonthlyIncome)

	// Short wallet: payroll is skipped, staff stay on.
	wallet.money = 10
	s.ProcessMonth(context.Background())
	assert.Equal(t, int64(10), wallet.money)
	assert.True(t, s.State().Staff[0].Working)
}

func TestProcessDayResetsDailyIncome(t *testing.T) {
	s, _, _ := newTestStore(t, 0)
	require.NoError(t, s.Load(context.Background()))
	require.NoError(t, s.Rent(context.Background()))

	order := s.OpenOrders()[0]
	require.NoError(t, s.TakeOrder(context.Background(), order.ID))
	require.NoError(t, s.WorkOnOrder(context.Background(), order.ID, 100))
	require.Equal(t, order.Price, s.State().DailyIncome)

	s.ProcessDay(context.Background())
	assert.Zero(t, s.State().DailyIncome)
	assert.Equal(t, order.Price, s.State().MonthlyIncome, "monthly ledger untouched")
}

func TestStateSurvivesReload(t *testing.T) {
	s, _, fake := newTestStore(t, 500_000)
	require.NoError(t, s.Load(context.Background()))
	require.NoError(t, s.Rent(context.Background()))
	require.NoError(t, s.HireStaff(context.Background(), "staff_1"))
	require.NoError(t, s.BuyEquipment(context.Background(), "overlock_juki"))

	require.Len(t, fake.Rows(tableAtelier), 1, "upsert keeps a single row")

	reloaded := NewStore(fake, &fakeWallet{}, allMaterials(),
		clockwork.NewFakeClockAt(time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)),
		rand.New(rand.NewSource(2)))
	require.NoError(t, reloaded.Load(context.Background()))

	st := reloaded.State()
	assert.True(t, st.Rented)
	require.Len(t, st.Staff, 1)
	assert.Equal(t, "staff_1", st.Staff[0].ID)
	assert.Len(t, st.Equipment, 2)

	// Owned gear and hired staff do not reappear in the shop or roster.
	assert.Len(t, reloaded.ShopEquipment(), 4)
	assert.Len(t, reloaded.StaffRoster(), 2)
}

func TestLoadReinstallsStarterMachineWhenMissing(t *testing.T) {
	s, _, fake := newTestStore(t, 0)
	fake.Seed(tableAtelier, map[string]any{
		"id":           "u1",
		"atelier_data": map[string]any{"rented": true, "monthly_rent": 15000},
	})

	require.NoError(t, s.Load(context.Background()))

	st := s.State()
	require.True(t, st.Rented)
	require.Len(t, st.Equipment, 1)
	assert.Equal(t, "basic_sewing_machine", st.Equipment[0].ID)
}

func TestResetDropsLocalState(t *testing.T) {
	s, _, _ := newTestStore(t, 500_000)
	require.NoError(t, s.Load(context.Background()))
	require.NoError(t, s.Rent(context.Background()))
	require.NoError(t, s.HireStaff(context.Background(), "staff_1"))

	s.Reset()

	st := s.State()
	assert.False(t, st.Rented)
	assert.Empty(t, st.Staff)
	assert.Len(t, s.StaffRoster(), 3)
	assert.Len(t, s.ShopEquipment(), 5)
	assert.Empty(t, s.OpenOrders())
}
