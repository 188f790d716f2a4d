// Package atelier runs the player's tailoring workshop: client orders,
// equipment, staff and the income they generate. The whole workshop state
// lives in one jsonb row keyed by the player.
package atelier

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"economicgoose/internal/gateway"
)

const (
	tableAtelier = "user_atelier"

	defaultMonthlyRent = 15_000

	// New orders appear once the board runs this low.
	minOpenOrders = 2

	repairRateNum = 1
	repairRateDen = 10

	maxReputation = 100
	maxProgress   = 100
)

var (
	ErrNotRented         = errors.New("atelier: atelier is not rented")
	ErrNoEquipment       = errors.New("atelier: no working equipment")
	ErrOrderNotFound     = errors.New("atelier: order not found")
	ErrMissingMaterials  = errors.New("atelier: materials not in stock")
	ErrStaffNotFound     = errors.New("atelier: staff not found")
	ErrEquipmentNotFound = errors.New("atelier: equipment not found")
)

type OrderStatus string

const (
	OrderPending    OrderStatus = "pending"
	OrderInProgress OrderStatus = "in_progress"
	OrderCompleted  OrderStatus = "completed"
)

// Order is one client commission. Complexity runs 1..5 and scales how much
// work a piece takes.
type Order struct {
	ID         string      `json:"id"`
	ClientName string      `json:"client_name"`
	ItemName   string      `json:"item_name"`
	Price      int64       `json:"price"`
	Progress   int         `json:"progress"`
	Status     OrderStatus `json:"status"`
	DueDays    int         `json:"due_days"`
	Complexity int         `json:"complexity"`
	Materials  []string    `json:"materials"`
	CreatedAt  time.Time   `json:"created_at"`
}

type EquipmentType string

const (
	EquipSewingMachine EquipmentType = "sewing_machine"
	EquipOverlock      EquipmentType = "overlock"
	EquipMannequin     EquipmentType = "mannequin"
	EquipIroningBoard  EquipmentType = "ironing_board"
	EquipCuttingTable  EquipmentType = "cutting_table"
)

// Equipment efficiency and condition both run 0..100.
type Equipment struct {
	ID         string        `json:"id"`
	Name       string        `json:"name"`
	Type       EquipmentType `json:"type"`
	Level      int           `json:"level"`
	Efficiency int           `json:"efficiency"`
	Condition  int           `json:"condition"`
	Price      int64         `json:"price"`
	Working    bool          `json:"working"`
}

type Position string

const (
	PositionSeamstress Position = "seamstress"
	PositionCutter     Position = "cutter"
	PositionManager    Position = "manager"
)

type Staff struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Position   Position  `json:"position"`
	Skill      int       `json:"skill"`
	Salary     int64     `json:"salary"`
	Efficiency int       `json:"efficiency"`
	Working    bool      `json:"working"`
	HiredAt    time.Time `json:"hired_at"`
}

// State is the persisted workshop snapshot.
type State struct {
	Rented          bool        `json:"rented"`
	MonthlyRent     int64       `json:"monthly_rent"`
	Orders          []Order     `json:"orders"`
	Equipment       []Equipment `json:"equipment"`
	Staff           []Staff     `json:"staff"`
	Reputation      int         `json:"reputation"`
	DailyIncome     int64       `json:"daily_income"`
	MonthlyIncome   int64       `json:"monthly_income"`
	ActiveOrders    int         `json:"active_orders"`
	CompletedOrders int         `json:"completed_orders"`
}

// Wallet pays salaries and equipment and receives order income.
type Wallet interface {
	PlayerID() string
	AddMoney(ctx context.Context, delta int64) error
	SpendMoney(ctx context.Context, amount int64) error
}

// MaterialSource answers whether an order's materials are in stock. A nil
// source disables the check.
type MaterialSource interface {
	InStock(itemID string) bool
}

// stateRow mirrors the user_atelier table: the player id plus the whole
// state as jsonb.
type stateRow struct {
	ID   string          `json:"id"`
	Data json.RawMessage `json:"atelier_data"`
}

type orderTemplate struct {
	clientName string
	itemName   string
	price      int64
	dueDays    int
	complexity int
	materials  []string
}

var orderTemplates = []orderTemplate{
	{"Anna Petrova", "Evening dress", 15_000, 3, 3, []string{"fabric_silk", "thread_gold", "zipper"}},
	{"Mikhail Sokolov", "Business suit", 25_000, 7, 4, []string{"fabric_wool", "thread_black", "buttons_pearl"}},
	{"Elena Kozlova", "Summer dress", 8_000, 2, 2, []string{"fabric_cotton", "thread_white"}},
	{"Dmitry Volkov", "Shirt", 6_000, 1, 1, []string{"fabric_cotton", "thread_blue"}},
	{"Svetlana Morozova", "Coat", 35_000, 10, 5, []string{"fabric_wool", "thread_black", "buttons_wood", "lining"}},
	{"Alexander Novikov", "Trousers", 12_000, 4, 3, []string{"fabric_denim", "thread_blue", "zipper"}},
}

func starterEquipment() []Equipment {
	return []Equipment{{
		ID:         "basic_sewing_machine",
		Name:       "Basic sewing machine",
		Type:       EquipSewingMachine,
		Level:      1,
		Efficiency: 50,
		Condition:  80,
		Working:    true,
	}}
}

func defaultStaffRoster() []Staff {
	return []Staff{
		{ID: "staff_1", Name: "Maria Ivanova", Position: PositionSeamstress, Skill: 85, Salary: 30_000, Efficiency: 80},
		{ID: "staff_2", Name: "Olga Smirnova", Position: PositionCutter, Skill: 72, Salary: 25_000, Efficiency: 75},
		{ID: "staff_3", Name: "Tatiana Kozlova", Position: PositionManager, Skill: 90, Salary: 35_000, Efficiency: 85},
	}
}

func defaultShopEquipment() []Equipment {
	return []Equipment{
		{ID: "sewing_machine_pro", Name: "Professional sewing machine", Type: EquipSewingMachine, Level: 3, Efficiency: 90, Condition: 100, Price: 50_000, Working: true},
		{ID: "overlock_juki", Name: "Juki overlock", Type: EquipOverlock, Level: 2, Efficiency: 80, Condition: 100, Price: 35_000, Working: true},
		{ID: "mannequin_pro", Name: "Professional mannequin", Type: EquipMannequin, Level: 2, Efficiency: 70, Condition: 100, Price: 20_000, Working: true},
		{ID: "ironing_board_pro", Name: "Professional ironing board", Type: EquipIroningBoard, Level: 2, Efficiency: 60, Condition: 100, Price: 15_000, Working: true},
		{ID: "cutting_table_pro", Name: "Professional cutting table", Type: EquipCuttingTable, Level: 2, Efficiency: 75, Condition: 100, Price: 25_000, Working: true},
	}
}

type Store struct {
	rows      gateway.RowStore
	wallet    Wallet
	materials MaterialSource
	clock     clockwork.Clock
	rng       *rand.Rand

	mu         sync.Mutex
	state      State
	openOrders []Order
	roster     []Staff
	shop       []Equipment
}

func NewStore(rows gateway.RowStore, wallet Wallet, materials MaterialSource, clock clockwork.Clock, rng *rand.Rand) *Store {
	return &Store{
		rows:      rows,
		wallet:    wallet,
		materials: materials,
		clock:     clock,
		rng:       rng,
		state:     State{MonthlyRent: defaultMonthlyRent},
		roster:    defaultStaffRoster(),
		shop:      defaultShopEquipment(),
	}
}

// Load fetches the persisted workshop state; a missing row means a fresh
// workshop. Owned equipment leaves the shop and hired staff leave the
// roster, and a rented workshop is guaranteed its starter machine.
func (s *Store) Load(ctx context.Context) error {
	var r stateRow
	err := s.rows.SelectOne(ctx, gateway.Query{
		Table: tableAtelier,
		Eq:    map[string]any{"id": s.wallet.PlayerID()},
	}, &r)

	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case errors.Is(err, gateway.ErrNotFound):
	case err != nil:
		return err
	default:
		var st State
		if err := json.Unmarshal(r.Data, &st); err != nil {
			return err
		}
		s.state = st
		if s.state.MonthlyRent == 0 {
			s.state.MonthlyRent = defaultMonthlyRent
		}
		if s.state.Rented && len(s.state.Equipment) == 0 {
			s.state.Equipment = starterEquipment()
		}
		owned := lo.Map(s.state.Equipment, func(e Equipment, _ int) string { return e.ID })
		s.shop = lo.Reject(s.shop, func(e Equipment, _ int) bool { return lo.Contains(owned, e.ID) })
		hired := lo.Map(s.state.Staff, func(st Staff, _ int) string { return st.ID })
		s.roster = lo.Reject(s.roster, func(st Staff, _ int) bool { return lo.Contains(hired, st.ID) })
	}

	s.generateOrdersLocked()
	return nil
}

// Save writes the whole state back as one jsonb value. Insert-then-update
// gives upsert semantics over the row gateway.
func (s *Store) Save(ctx context.Context) error {
	s.mu.Lock()
	data, err := json.Marshal(s.state)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}

	id := s.wallet.PlayerID()
	insertErr := s.rows.Insert(ctx, tableAtelier, map[string]any{
		"id":           id,
		"atelier_data": doc,
	})
	if errors.Is(insertErr, gateway.ErrDuplicate) {
		return s.rows.Update(ctx, tableAtelier, id, map[string]any{
			"atelier_data": doc,
		})
	}
	return insertErr
}

// Rent marks the workshop as rented and installs the starter machine. The
// rent itself is charged through the company store, not here.
func (s *Store) Rent(ctx context.Context) error {
	s.mu.Lock()
	if !s.state.Rented {
		s.state.Rented = true
		if len(s.state.Equipment) == 0 {
			s.state.Equipment = starterEquipment()
		}
	}
	s.mu.Unlock()

	zap.L().Info("atelier_rented")
	return s.Save(ctx)
}

// CanTakeOrder requires a rented workshop with at least one working machine.
// Staff are optional; the player can sew alone.
func (s *Store) CanTakeOrder() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.canTakeOrderLocked()
}

func (s *Store) canTakeOrderLocked() bool {
	return s.state.Rented && lo.SomeBy(s.state.Equipment, func(e Equipment) bool { return e.Working })
}

// TakeOrder moves an open order onto the workbench after checking its
// materials. The board refills once it runs low.
func (s *Store) TakeOrder(ctx context.Context, orderID string) error {
	s.mu.Lock()
	if !s.state.Rented {
		s.mu.Unlock()
		return ErrNotRented
	}
	if !s.canTakeOrderLocked() {
		s.mu.Unlock()
		return ErrNoEquipment
	}
	idx := lo.IndexOf(lo.Map(s.openOrders, func(o Order, _ int) string { return o.ID }), orderID)
	if idx < 0 {
		s.mu.Unlock()
		return ErrOrderNotFound
	}
	order := s.openOrders[idx]
	s.mu.Unlock()

	if s.materials != nil {
		for _, id := range order.Materials {
			if !s.materials.InStock(id) {
				return ErrMissingMaterials
			}
		}
	}

	s.mu.Lock()
	order.Status = OrderInProgress
	order.CreatedAt = s.clock.Now()
	s.state.Orders = append(s.state.Orders, order)
	s.state.ActiveOrders++
	s.openOrders = lo.Reject(s.openOrders, func(o Order, _ int) bool { return o.ID == orderID })
	if len(s.openOrders) < minOpenOrders {
		s.generateOrdersLocked()
	}
	s.mu.Unlock()

	zap.L().Info("atelier_order_taken", zap.String("item", order.ItemName), zap.Int64("price", order.Price))
	return s.Save(ctx)
}

// WorkOnOrder advances a commission. A finished piece pays out, raises the
// workshop's reputation by its complexity and leaves the bench.
func (s *Store) WorkOnOrder(ctx context.Context, orderID string, progress int) error {
	s.mu.Lock()
	idx := lo.IndexOf(lo.Map(s.state.Orders, func(o Order, _ int) string { return o.ID }), orderID)
	if idx < 0 {
		s.mu.Unlock()
		return ErrOrderNotFound
	}
	order := &s.state.Orders[idx]
	order.Progress = min(maxProgress, order.Progress+progress)
	done := order.Progress >= maxProgress
	if !done {
		s.mu.Unlock()
		return s.Save(ctx)
	}

	completed := *order
	s.state.Orders = lo.Reject(s.state.Orders, func(o Order, _ int) bool { return o.ID == orderID })
	s.state.ActiveOrders--
	s.state.CompletedOrders++
	s.state.Reputation = min(maxReputation, s.state.Reputation+completed.Complexity)
	s.state.DailyIncome += completed.Price
	s.state.MonthlyIncome += completed.Price
	s.mu.Unlock()

	if err := s.wallet.AddMoney(ctx, completed.Price); err != nil {
		return err
	}
	zap.L().Info("atelier_order_completed",
		zap.String("item", completed.ItemName),
		zap.Int64("price", completed.Price),
	)
	return s.Save(ctx)
}

// HireStaff charges the first month's salary up front and puts the person
// to work.
func (s *Store) HireStaff(ctx context.Context, staffID string) error {
	s.mu.Lock()
	idx := lo.IndexOf(lo.Map(s.roster, func(st Staff, _ int) string { return st.ID }), staffID)
	if idx < 0 {
		s.mu.Unlock()
		return ErrStaffNotFound
	}
	hired := s.roster[idx]
	s.mu.Unlock()

	if err := s.wallet.SpendMoney(ctx, hired.Salary); err != nil {
		return err
	}

	s.mu.Lock()
	hired.Working = true
	hired.HiredAt = s.clock.Now()
	s.state.Staff = append(s.state.Staff, hired)
	s.roster = lo.Reject(s.roster, func(st Staff, _ int) bool { return st.ID == staffID })
	s.mu.Unlock()

	zap.L().Info("atelier_staff_hired", zap.String("name", hired.Name))
	return s.Save(ctx)
}

// FireStaff releases the person back onto the hiring roster. No severance.
func (s *Store) FireStaff(ctx context.Context, staffID string) error {
	s.mu.Lock()
	idx := lo.IndexOf(lo.Map(s.state.Staff, func(st Staff, _ int) string { return st.ID }), staffID)
	if idx < 0 {
		s.mu.Unlock()
		return ErrStaffNotFound
	}
	fired := s.state.Staff[idx]
	fired.Working = false
	fired.HiredAt = time.Time{}
	s.state.Staff = lo.Reject(s.state.Staff, func(st Staff, _ int) bool { return st.ID == staffID })
	s.roster = append(s.roster, fired)
	s.mu.Unlock()

	zap.L().Info("atelier_staff_fired", zap.String("name", fired.Name))
	return s.Save(ctx)
}

// BuyEquipment pays the shop price and installs the machine.
func (s *Store) BuyEquipment(ctx context.Context, equipmentID string) error {
	s.mu.Lock()
	idx := lo.IndexOf(lo.Map(s.shop, func(e Equipment, _ int) string { return e.ID }), equipmentID)
	if idx < 0 {
		s.mu.Unlock()
		return ErrEquipmentNotFound
	}
	bought := s.shop[idx]
	s.mu.Unlock()

	if err := s.wallet.SpendMoney(ctx, bought.Price); err != nil {
		return err
	}

	s.mu.Lock()
	s.state.Equipment = append(s.state.Equipment, bought)
	s.shop = lo.Reject(s.shop, func(e Equipment, _ int) bool { return e.ID == equipmentID })
	s.mu.Unlock()

	zap.L().Info("atelier_equipment_bought", zap.String("name", bought.Name), zap.Int64("price", bought.Price))
	return s.Save(ctx)
}

// RepairEquipment restores a machine to full condition for a tenth of its
// price.
func (s *Store) RepairEquipment(ctx context.Context, equipmentID string) error {
	s.mu.Lock()
	idx := lo.IndexOf(lo.Map(s.state.Equipment, func(e Equipment, _ int) string { return e.ID }), equipmentID)
	if idx < 0 {
		s.mu.Unlock()
		return ErrEquipmentNotFound
	}
	cost := s.state.Equipment[idx].Price * repairRateNum / repairRateDen
	s.mu.Unlock()

	if err := s.wallet.SpendMoney(ctx, cost); err != nil {
		return err
	}

	s.mu.Lock()
	s.state.Equipment[idx].Condition = 100
	s.state.Equipment[idx].Working = true
	name := s.state.Equipment[idx].Name
	s.mu.Unlock()

	zap.L().Info("atelier_equipment_repaired", zap.String("name", name), zap.Int64("cost", cost))
	return s.Save(ctx)
}

// TotalEfficiency sums working staff and equipment, capped at 100.
func (s *Store) TotalEfficiency() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := lo.SumBy(s.state.Staff, func(st Staff) int {
		if st.Working {
			return st.Efficiency
		}
		return 0
	})
	total += lo.SumBy(s.state.Equipment, func(e Equipment) int {
		if e.Working {
			return e.Efficiency
		}
		return 0
	})
	return min(100, total)
}

// DailyExpenses is the working staff's payroll prorated to one game day.
func (s *Store) DailyExpenses() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return lo.SumBy(s.state.Staff, func(st Staff) int64 {
		if st.Working {
			return st.Salary / 30
		}
		return 0
	})
}

// ProcessDay closes the day's books. The game clock invokes it on day
// boundaries.
func (s *Store) ProcessDay(ctx context.Context) {
	s.mu.Lock()
	income := s.state.DailyIncome
	s.state.DailyIncome = 0
	s.mu.Unlock()

	if income > 0 {
		zap.L().Debug("atelier_daily_income", zap.Int64("income", income))
	}
	if err := s.Save(ctx); err != nil {
		zap.L().Warn("atelier_day_save", zap.Error(err))
	}
}

// ProcessMonth pays the working staff and resets the monthly ledger. An
// unpayable payroll is logged, not fatal; the staff keep working.
func (s *Store) ProcessMonth(ctx context.Context) {
	s.mu.Lock()
	payroll := lo.SumBy(s.state.Staff, func(st Staff) int64 {
		if st.Working {
			return st.Salary
		}
		return 0
	})
	income := s.state.MonthlyIncome
	s.state.MonthlyIncome = 0
	s.mu.Unlock()

	if payroll > 0 {
		if err := s.wallet.SpendMoney(ctx, payroll); err != nil {
			zap.L().Warn("atelier_payroll_unpaid", zap.Int64("payroll", payroll), zap.Error(err))
		} else {
			zap.L().Info("atelier_payroll_paid", zap.Int64("payroll", payroll))
		}
	}
	zap.L().Debug("atelier_monthly_income", zap.Int64("income", income))
	if err := s.Save(ctx); err != nil {
		zap.L().Warn("atelier_month_save", zap.Error(err))
	}
}

// GenerateOrders refreshes the open order board.
func (s *Store) GenerateOrders() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generateOrdersLocked()
}

func (s *Store) generateOrdersLocked() {
	count := s.rng.Intn(3) + 2 // 2..4 open orders
	orders := make([]Order, 0, count)
	for i := 0; i < count; i++ {
		tpl := orderTemplates[s.rng.Intn(len(orderTemplates))]
		orders = append(orders, Order{
			ID:         uuid.NewString(),
			ClientName: tpl.clientName,
			ItemName:   tpl.itemName,
			Price:      tpl.price,
			Status:     OrderPending,
			DueDays:    tpl.dueDays,
			Complexity: tpl.complexity,
			Materials:  append([]string(nil), tpl.materials...),
			CreatedAt:  s.clock.Now(),
		})
	}
	s.openOrders = orders
}

// ---------------------------------------------------------------------------
//  accessors
// ---------------------------------------------------------------------------

// State returns a copy of the persisted snapshot.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state
	st.Orders = append([]Order(nil), s.state.Orders...)
	st.Equipment = append([]Equipment(nil), s.state.Equipment...)
	st.Staff = append([]Staff(nil), s.state.Staff...)
	return st
}

// OpenOrders returns the commissions waiting on the board.
func (s *Store) OpenOrders() []Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Order(nil), s.openOrders...)
}

// StaffRoster returns the candidates available for hire.
func (s *Store) StaffRoster() []Staff {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Staff(nil), s.roster...)
}

// ShopEquipment returns the machines available for purchase.
func (s *Store) ShopEquipment() []Equipment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Equipment(nil), s.shop...)
}

// Reset drops the local state on sign-out.
func (s *Store) Reset() {
	s.mu.Lock()
	s.state = State{MonthlyRent: defaultMonthlyRent}
	s.openOrders = nil
	s.roster = defaultStaffRoster()
	s.shop = defaultShopEquipment()
	s.mu.Unlock()
}
