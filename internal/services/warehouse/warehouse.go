// Package warehouse tracks the shared warehouse's material and clothing
// stock. Buying pulls stock out of the warehouse against the player's
// wallet; selling pushes stock back in at a discounted rate. Every stock
// movement leaves a journal row.
package warehouse

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"economicgoose/internal/gateway"
)

const (
	tableMaterials    = "warehouse_materials"
	tableClothing     = "warehouse_clothing"
	tableStats        = "warehouse_stats"
	tableTransactions = "warehouse_transactions"

	// The warehouse buys back player goods below the list price.
	sellRateNum = 8
	sellRateDen = 10
)

var (
	ErrItemNotFound      = errors.New("warehouse: item not found")
	ErrOutOfStock        = errors.New("warehouse: not enough stock")
	ErrInsufficientFunds = errors.New("warehouse: insufficient funds")
)

type ItemKind string

const (
	KindMaterial ItemKind = "material"
	KindClothing ItemKind = "clothing"
)

// Item is one stock row, shared between the material and clothing tables.
type Item struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Quality  string `json:"quality"`
	Quantity int64  `json:"quantity"`
	Price    int64  `json:"price"`
}

// Stats mirrors the singleton warehouse_stats row.
type Stats struct {
	ID              string `json:"id"`
	CapacityPercent int    `json:"capacity_percent"`
	FreeSpace       int64  `json:"free_space"`
}

// Transaction is one journal row.
type Transaction struct {
	ID             string    `json:"id"`
	Type           string    `json:"transaction_type"`
	ItemType       ItemKind  `json:"item_type"`
	ItemID         string    `json:"item_id"`
	ItemName       string    `json:"item_name"`
	QuantityChange int64     `json:"quantity_change"`
	PricePerUnit   int64     `json:"price_per_unit"`
	TotalValue     int64     `json:"total_value"`
	Reason         string    `json:"reason"`
	PerformedBy    string    `json:"performed_by"`
	CreatedAt      time.Time `json:"created_at"`
}

// Summary aggregates the stock for display.
type Summary struct {
	MaterialsTotal int64 `json:"materials_total"`
	MaterialsValue int64 `json:"materials_value"`
	ClothingTotal  int64 `json:"clothing_total"`
	ClothingValue  int64 `json:"clothing_value"`
	TotalValue     int64 `json:"total_value"`
	CapacityUsed   int   `json:"capacity_used"`
	FreeSpace      int64 `json:"free_space"`
}

// Wallet is the money side of every trade.
type Wallet interface {
	PlayerID() string
	AddMoney(ctx context.Context, delta int64) error
	SpendMoney(ctx context.Context, amount int64) error
}

type Store struct {
	rows   gateway.RowStore
	wallet Wallet
	clock  clockwork.Clock

	mu           sync.Mutex
	materials    []Item
	clothing     []Item
	stats        *Stats
	transactions []Transaction
}

func NewStore(rows gateway.RowStore, wallet Wallet, clock clockwork.Clock) *Store {
	return &Store{rows: rows, wallet: wallet, clock: clock}
}

// Load fetches stock and the stats row. A missing stats row is tolerated;
// the warehouse works without capacity numbers.
func (s *Store) Load(ctx context.Context) error {
	var materials []Item
	if err := s.rows.Select(ctx, gateway.Query{Table: tableMaterials, OrderBy: "name"}, &materials); err != nil {
		return err
	}
	var clothing []Item
	if err := s.rows.Select(ctx, gateway.Query{Table: tableClothing, OrderBy: "name"}, &clothing); err != nil {
		return err
	}

	var stats Stats
	statsPtr := &stats
	if err := s.rows.SelectOne(ctx, gateway.Query{Table: tableStats}, &stats); err != nil {
		if !errors.Is(err, gateway.ErrNotFound) {
			return err
		}
		statsPtr = nil
		zap.L().Warn("warehouse_stats_missing")
	}

	s.mu.Lock()
	s.materials, s.clothing, s.stats = materials, clothing, statsPtr
	s.mu.Unlock()
	return nil
}

// Buy purchases quantity of an item: the wallet pays the list price and the
// warehouse stock goes down.
func (s *Store) Buy(ctx context.Context, kind ItemKind, itemID string, quantity int64) error {
	item := s.find(kind, itemID)
	if item == nil {
		return ErrItemNotFound
	}
	if item.Quantity < quantity {
		return ErrOutOfStock
	}

	cost := item.Price * quantity
	if err := s.wallet.SpendMoney(ctx, cost); err != nil {
		return fmt.Errorf("%w: need %d", ErrInsufficientFunds, cost)
	}
	if err := s.adjustQuantity(ctx, kind, item, -quantity,
		fmt.Sprintf("player purchase (%d pcs)", quantity)); err != nil {
		// Undo the charge; the stock write never happened.
		if refundErr := s.wallet.AddMoney(ctx, cost); refundErr != nil {
			zap.L().Error("warehouse_refund", zap.Error(refundErr))
		}
		return err
	}

	zap.L().Info("warehouse_buy",
		zap.String("item", item.Name),
		zap.Int64("quantity", quantity),
		zap.Int64("cost", cost),
	)
	return nil
}

// Sell returns quantity of an item to the warehouse. The wallet is credited
// at the buy-back rate and the stock goes up.
func (s *Store) Sell(ctx context.Context, kind ItemKind, itemID string, quantity int64) error {
	item := s.find(kind, itemID)
	if item == nil {
		return ErrItemNotFound
	}

	proceeds := item.Price * quantity * sellRateNum / sellRateDen
	if err := s.adjustQuantity(ctx, kind, item, quantity,
		fmt.Sprintf("player sale (%d pcs)", quantity)); err != nil {
		return err
	}
	if err := s.wallet.AddMoney(ctx, proceeds); err != nil {
		return err
	}

	zap.L().Info("warehouse_sell",
		zap.String("item", item.Name),
		zap.Int64("quantity", quantity),
		zap.Int64("proceeds", proceeds),
	)
	return nil
}

// AdjustQuantity applies a raw stock change outside of a trade, e.g. crafting
// consuming materials.
func (s *Store) AdjustQuantity(ctx context.Context, kind ItemKind, itemID string, change int64, reason string) error {
	item := s.find(kind, itemID)
	if item == nil {
		return ErrItemNotFound
	}
	return s.adjustQuantity(ctx, kind, item, change, reason)
}

func (s *Store) adjustQuantity(ctx context.Context, kind ItemKind, item *Item, change int64, reason string) error {
	next := item.Quantity + change
	if next < 0 {
		return ErrOutOfStock
	}

	table := tableMaterials
	if kind == KindClothing {
		table = tableClothing
	}
	if err := s.rows.Update(ctx, table, item.ID, map[string]any{"quantity": next}); err != nil {
		return err
	}

	s.mu.Lock()
	item.Quantity = next
	s.mu.Unlock()

	s.recordTransaction(ctx, kind, item, change, reason)
	return nil
}

// recordTransaction journals a stock movement. Journal failures are logged
// and swallowed; the movement itself already happened.
func (s *Store) recordTransaction(ctx context.Context, kind ItemKind, item *Item, change int64, reason string) {
	direction := "in"
	if change < 0 {
		direction = "out"
	}
	abs := change
	if abs < 0 {
		abs = -abs
	}
	tx := Transaction{
		ID:             uuid.NewString(),
		Type:           direction,
		ItemType:       kind,
		ItemID:         item.ID,
		ItemName:       item.Name,
		QuantityChange: change,
		PricePerUnit:   item.Price,
		TotalValue:     abs * item.Price,
		Reason:         reason,
		PerformedBy:    s.wallet.PlayerID(),
		CreatedAt:      s.clock.Now(),
	}
	if err := s.rows.Insert(ctx, tableTransactions, map[string]any{
		"id":               tx.ID,
		"transaction_type": tx.Type,
		"item_type":        string(tx.ItemType),
		"item_id":          tx.ItemID,
		"item_name":        tx.ItemName,
		"quantity_change":  tx.QuantityChange,
		"price_per_unit":   tx.PricePerUnit,
		"total_value":      tx.TotalValue,
		"reason":           tx.Reason,
		"performed_by":     tx.PerformedBy,
		"created_at":       tx.CreatedAt,
	}); err != nil {
		zap.L().Warn("warehouse_journal", zap.String("item", tx.ItemName), zap.Error(err))
		return
	}

	s.mu.Lock()
	s.transactions = append([]Transaction{tx}, s.transactions...)
	s.mu.Unlock()
}

func (s *Store) find(kind ItemKind, itemID string) *Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := s.materials
	if kind == KindClothing {
		items = s.clothing
	}
	for i := range items {
		if items[i].ID == itemID {
			return &items[i]
		}
	}
	return nil
}

// Materials returns a copy of the material stock.
func (s *Store) Materials() []Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Item(nil), s.materials...)
}

// InStock reports whether a material has any quantity on hand.
func (s *Store) InStock(itemID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return lo.SomeBy(s.materials, func(i Item) bool {
		return i.ID == itemID && i.Quantity > 0
	})
}

// Clothing returns a copy of the clothing stock.
func (s *Store) Clothing() []Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Item(nil), s.clothing...)
}

// Transactions returns the local journal, newest first.
func (s *Store) Transactions() []Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Transaction(nil), s.transactions...)
}

// Summary computes the stock totals and values.
func (s *Store) Summary() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := Summary{
		MaterialsTotal: lo.SumBy(s.materials, func(i Item) int64 { return i.Quantity }),
		MaterialsValue: lo.SumBy(s.materials, func(i Item) int64 { return i.Quantity * i.Price }),
		ClothingTotal:  lo.SumBy(s.clothing, func(i Item) int64 { return i.Quantity }),
		ClothingValue:  lo.SumBy(s.clothing, func(i Item) int64 { return i.Quantity * i.Price }),
	}
	out.TotalValue = out.MaterialsValue + out.ClothingValue
	if s.stats != nil {
		out.CapacityUsed = s.stats.CapacityPercent
		out.FreeSpace = s.stats.FreeSpace
	}
	return out
}

// Reset drops the local state on sign-out.
func (s *Store) Reset() {
	s.mu.Lock()
	s.materials, s.clothing, s.stats, s.transactions = nil, nil, nil, nil
	s.mu.Unlock()
}
