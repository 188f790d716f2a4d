// Package bank implements the in-game bank: credits paid off by annuity,
// fixed-term deposits, and per-type bank accounts. All monetary flow goes
// through the player's wallet; the bank never touches the profile row
// directly.
package bank

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"economicgoose/internal/gateway"
)

const (
	tableCredits  = "bank_credits"
	tableDeposits = "bank_deposits"
	tableAccounts = "bank_accounts"

	minDeposit = 1_000

	ipAccountLevel  = 3
	oooAccountLevel = 5
)

var (
	ErrOverCreditLimit   = errors.New("bank: amount exceeds the credit limit")
	ErrDepositTooSmall   = errors.New("bank: deposit below the minimum amount")
	ErrInsufficientFunds = errors.New("bank: insufficient funds")
	ErrAccountExists     = errors.New("bank: an active account of this type already exists")
	ErrAccountLocked     = errors.New("bank: company level too low for this account type")
	ErrNoAccount         = errors.New("bank: no active account of this type")
)

type CreditStatus string

const (
	CreditActive  CreditStatus = "active"
	CreditPaid    CreditStatus = "paid"
	CreditOverdue CreditStatus = "overdue"
)

type DepositStatus string

const (
	DepositActive  DepositStatus = "active"
	DepositMatured DepositStatus = "matured"
	DepositClosed  DepositStatus = "closed"
)

type AccountType string

const (
	AccountPersonal AccountType = "personal"
	AccountIP       AccountType = "ip"
	AccountOOO      AccountType = "ooo"
)

type Credit struct {
	ID              string       `json:"id"`
	Amount          int64        `json:"amount"`
	InterestRate    float64      `json:"interest_rate"`
	TermMonths      int          `json:"term_months"`
	MonthlyPayment  int64        `json:"monthly_payment"`
	RemainingAmount int64        `json:"remaining_amount"`
	RemainingMonths int          `json:"remaining_months"`
	TakenAt         time.Time    `json:"taken_at"`
	Status          CreditStatus `json:"status"`
}

type Deposit struct {
	ID           string        `json:"id"`
	Amount       int64         `json:"amount"`
	InterestRate float64       `json:"interest_rate"`
	TermMonths   int           `json:"term_months"`
	CreatedAt    time.Time     `json:"created_at"`
	MaturityDate time.Time     `json:"maturity_date"`
	Status       DepositStatus `json:"status"`
}

type Account struct {
	ID        string      `json:"id"`
	Type      AccountType `json:"account_type"`
	Balance   int64       `json:"balance"`
	CreatedAt time.Time   `json:"created_at"`
	Status    string      `json:"status"`
}

// Offer is one term/rate product available at the player's current rating.
type Offer struct {
	TermMonths int     `json:"term_months"`
	Rate       float64 `json:"rate"`
	Name       string  `json:"name"`
}

// Wallet is the player's main balance, implemented by the profile store.
type Wallet interface {
	PlayerID() string
	Balance() int64
	AddMoney(ctx context.Context, delta int64) error
	SpendMoney(ctx context.Context, amount int64) error
}

// Progress exposes the company progression the rating formula reads.
type Progress interface {
	Level() int
	Experience() int
}

type Store struct {
	rows     gateway.RowStore
	wallet   Wallet
	progress Progress
	clock    clockwork.Clock

	mu       sync.Mutex
	credits  []Credit
	deposits []Deposit
	accounts []Account
}

func NewStore(rows gateway.RowStore, wallet Wallet, progress Progress, clock clockwork.Clock) *Store {
	return &Store{rows: rows, wallet: wallet, progress: progress, clock: clock}
}

// Load pulls the player's credits, deposits and accounts.
func (s *Store) Load(ctx context.Context) error {
	userID := s.wallet.PlayerID()

	var credits []Credit
	if err := s.rows.Select(ctx, gateway.Query{
		Table: tableCredits, Eq: map[string]any{"user_id": userID},
	}, &credits); err != nil {
		return err
	}
	var deposits []Deposit
	if err := s.rows.Select(ctx, gateway.Query{
		Table: tableDeposits, Eq: map[string]any{"user_id": userID},
	}, &deposits); err != nil {
		return err
	}
	var accounts []Account
	if err := s.rows.Select(ctx, gateway.Query{
		Table: tableAccounts, Eq: map[string]any{"user_id": userID},
	}, &accounts); err != nil {
		return err
	}

	s.mu.Lock()
	s.credits, s.deposits, s.accounts = credits, deposits, accounts
	s.mu.Unlock()
	return nil
}

// ---------------------------------------------------------------------------
//  rating and limits
// ---------------------------------------------------------------------------

// MonthlyPayment computes the annuity payment for a credit: the annual rate
// in percent is converted to a monthly fraction and the standard annuity
// formula is rounded to whole currency units.
func MonthlyPayment(amount int64, annualRate float64, termMonths int) int64 {
	r := annualRate / 100 / 12
	n := float64(termMonths)
	payment := float64(amount) * (r * math.Pow(1+r, n)) / (math.Pow(1+r, n) - 1)
	return int64(math.Round(payment))
}

// CreditRating scores the player 0..100 from company level, experience,
// liquid money, and overdue history.
func (s *Store) CreditRating() int {
	level := s.progress.Level()
	exp := s.progress.Experience()
	money := s.wallet.Balance()

	rating := level * 10
	rating += exp / 100 * 5

	switch {
	case money > 100_000:
		rating += 20
	case money > 50_000:
		rating += 15
	case money > 20_000:
		rating += 10
	case money > 10_000:
		rating += 5
	}

	s.mu.Lock()
	overdue := lo.CountBy(s.credits, func(c Credit) bool { return c.Status == CreditOverdue })
	s.mu.Unlock()
	rating -= overdue * 15

	if rating < 0 {
		return 0
	}
	if rating > 100 {
		return 100
	}
	return rating
}

// MaxCreditAmount is the borrowing ceiling: rating-proportional base scaled
// by company level.
func (s *Store) MaxCreditAmount() int64 {
	rating := s.CreditRating()
	level := s.progress.Level()
	base := float64(rating) * 1000
	multiplier := 1 + float64(level-1)*0.5
	return int64(math.Floor(base * multiplier))
}

// CreditOffers lists the terms and rates available at the current rating.
func (s *Store) CreditOffers() []Offer {
	rating := s.CreditRating()
	switch {
	case rating >= 80:
		return []Offer{
			{TermMonths: 6, Rate: 12, Name: "short-term"},
			{TermMonths: 12, Rate: 15, Name: "medium-term"},
			{TermMonths: 24, Rate: 18, Name: "long-term"},
		}
	case rating >= 60:
		return []Offer{
			{TermMonths: 6, Rate: 15, Name: "short-term"},
			{TermMonths: 12, Rate: 18, Name: "medium-term"},
			{TermMonths: 24, Rate: 22, Name: "long-term"},
		}
	case rating >= 40:
		return []Offer{
			{TermMonths: 6, Rate: 18, Name: "short-term"},
			{TermMonths: 12, Rate: 22, Name: "medium-term"},
			{TermMonths: 24, Rate: 26, Name: "long-term"},
		}
	default:
		return []Offer{
			{TermMonths: 6, Rate: 25, Name: "short-term"},
			{TermMonths: 12, Rate: 30, Name: "medium-term"},
		}
	}
}

// DepositOffers lists the deposit products; better ratings unlock better
// yields.
func (s *Store) DepositOffers() []Offer {
	rating := s.CreditRating()
	switch {
	case rating >= 80:
		return []Offer{
			{TermMonths: 3, Rate: 8, Name: "short-term"},
			{TermMonths: 6, Rate: 10, Name: "medium-term"},
			{TermMonths: 12, Rate: 12, Name: "long-term"},
		}
	case rating >= 60:
		return []Offer{
			{TermMonths: 3, Rate: 6, Name: "short-term"},
			{TermMonths: 6, Rate: 8, Name: "medium-term"},
			{TermMonths: 12, Rate: 10, Name: "long-term"},
		}
	default:
		return []Offer{
			{TermMonths: 3, Rate: 4, Name: "short-term"},
			{TermMonths: 6, Rate: 6, Name: "medium-term"},
		}
	}
}

// ---------------------------------------------------------------------------
//  credits
// ---------------------------------------------------------------------------

// TakeCredit opens a credit: the row is persisted, then the principal lands
// on the wallet.
func (s *Store) TakeCredit(ctx context.Context, amount int64, termMonths int, annualRate float64) (*Credit, error) {
	if amount > s.MaxCreditAmount() {
		return nil, ErrOverCreditLimit
	}

	credit := Credit{
		ID:              uuid.NewString(),
		Amount:          amount,
		InterestRate:    annualRate,
		TermMonths:      termMonths,
		MonthlyPayment:  MonthlyPayment(amount, annualRate, termMonths),
		RemainingAmount: amount,
		RemainingMonths: termMonths,
		TakenAt:         s.clock.Now(),
		Status:          CreditActive,
	}
	if err := s.rows.Insert(ctx, tableCredits, map[string]any{
		"id":               credit.ID,
		"user_id":          s.wallet.PlayerID(),
		"amount":           credit.Amount,
		"interest_rate":    credit.InterestRate,
		"term_months":      credit.TermMonths,
		"monthly_payment":  credit.MonthlyPayment,
		"remaining_amount": credit.RemainingAmount,
		"remaining_months": credit.RemainingMonths,
		"taken_at":         credit.TakenAt,
		"status":           string(credit.Status),
	}); err != nil {
		return nil, err
	}
	if err := s.wallet.AddMoney(ctx, amount); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.credits = append(s.credits, credit)
	s.mu.Unlock()

	zap.L().Info("credit_taken",
		zap.String("credit_id", credit.ID),
		zap.Int64("amount", amount),
		zap.Int64("monthly_payment", credit.MonthlyPayment),
	)
	return &credit, nil
}

// TotalDebt sums the remaining principal of active credits.
func (s *Store) TotalDebt() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return lo.SumBy(s.credits, func(c Credit) int64 {
		if c.Status != CreditActive {
			return 0
		}
		return c.RemainingAmount
	})
}

// MonthlyObligations sums the active credits' monthly payments.
func (s *Store) MonthlyObligations() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return lo.SumBy(s.credits, func(c Credit) int64 {
		if c.Status != CreditActive {
			return 0
		}
		return c.MonthlyPayment
	})
}

func (s *Store) Credits() []Credit {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Credit(nil), s.credits...)
}

// ---------------------------------------------------------------------------
//  deposits
// ---------------------------------------------------------------------------

// OpenDeposit moves money from the wallet into a fixed-term deposit.
func (s *Store) OpenDeposit(ctx context.Context, amount int64, termMonths int, annualRate float64) (*Deposit, error) {
	if amount < minDeposit {
		return nil, ErrDepositTooSmall
	}
	if amount > s.wallet.Balance() {
		return nil, ErrInsufficientFunds
	}

	now := s.clock.Now()
	deposit := Deposit{
		ID:           uuid.NewString(),
		Amount:       amount,
		InterestRate: annualRate,
		TermMonths:   termMonths,
		CreatedAt:    now,
		MaturityDate: now.AddDate(0, termMonths, 0),
		Status:       DepositActive,
	}
	if err := s.rows.Insert(ctx, tableDeposits, map[string]any{
		"id":            deposit.ID,
		"user_id":       s.wallet.PlayerID(),
		"amount":        deposit.Amount,
		"interest_rate": deposit.InterestRate,
		"term_months":   deposit.TermMonths,
		"maturity_date": deposit.MaturityDate,
		"status":        string(deposit.Status),
	}); err != nil {
		return nil, err
	}
	if err := s.wallet.SpendMoney(ctx, amount); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.deposits = append(s.deposits, deposit)
	s.mu.Unlock()

	zap.L().Info("deposit_opened", zap.String("deposit_id", deposit.ID), zap.Int64("amount", amount))
	return &deposit, nil
}

// TotalDeposits sums the principal of active deposits.
func (s *Store) TotalDeposits() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return lo.SumBy(s.deposits, func(d Deposit) int64 {
		if d.Status != DepositActive {
			return 0
		}
		return d.Amount
	})
}

func (s *Store) Deposits() []Deposit {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Deposit(nil), s.deposits...)
}

// ---------------------------------------------------------------------------
//  accounts
// ---------------------------------------------------------------------------

// CreateAccount opens a bank account of the given type. Business accounts
// are gated on company level.
func (s *Store) CreateAccount(ctx context.Context, typ AccountType) (*Account, error) {
	if s.accountByType(typ) != nil {
		return nil, ErrAccountExists
	}
	level := s.progress.Level()
	if typ == AccountIP && level < ipAccountLevel {
		return nil, ErrAccountLocked
	}
	if typ == AccountOOO && level < oooAccountLevel {
		return nil, ErrAccountLocked
	}

	account := Account{
		ID:        uuid.NewString(),
		Type:      typ,
		CreatedAt: s.clock.Now(),
		Status:    "active",
	}
	if err := s.rows.Insert(ctx, tableAccounts, map[string]any{
		"id":           account.ID,
		"user_id":      s.wallet.PlayerID(),
		"account_type": string(account.Type),
		"balance":      account.Balance,
		"status":       account.Status,
	}); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.accounts = append(s.accounts, account)
	s.mu.Unlock()
	return &account, nil
}

func (s *Store) accountByType(typ AccountType) *Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.accounts {
		if s.accounts[i].Type == typ && s.accounts[i].Status == "active" {
			return &s.accounts[i]
		}
	}
	return nil
}

// AccountByType returns a copy of the active account of the given type, or
// nil.
func (s *Store) AccountByType(typ AccountType) *Account {
	acc := s.accountByType(typ)
	if acc == nil {
		return nil
	}
	copied := *acc
	return &copied
}

// TransferToAccount moves money from the wallet onto a bank account.
func (s *Store) TransferToAccount(ctx context.Context, amount int64, typ AccountType) error {
	acc := s.accountByType(typ)
	if acc == nil {
		return ErrNoAccount
	}
	if err := s.wallet.SpendMoney(ctx, amount); err != nil {
		return err
	}
	return s.adjustAccount(ctx, acc, amount)
}

// TransferFromAccount moves money from a bank account back to the wallet.
func (s *Store) TransferFromAccount(ctx context.Context, amount int64, typ AccountType) error {
	acc := s.accountByType(typ)
	if acc == nil {
		return ErrNoAccount
	}
	if acc.Balance < amount {
		return ErrInsufficientFunds
	}
	if err := s.adjustAccount(ctx, acc, -amount); err != nil {
		return err
	}
	return s.wallet.AddMoney(ctx, amount)
}

func (s *Store) adjustAccount(ctx context.Context, acc *Account, delta int64) error {
	next := acc.Balance + delta
	if err := s.rows.Update(ctx, tableAccounts, acc.ID, map[string]any{"balance": next}); err != nil {
		return err
	}
	s.mu.Lock()
	acc.Balance = next
	s.mu.Unlock()
	return nil
}

func (s *Store) Accounts() []Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Account(nil), s.accounts...)
}

// ---------------------------------------------------------------------------
//  monthly processing
// ---------------------------------------------------------------------------

// ProcessMonth runs one monthly settlement pass: amortize active credits,
// mark credits overdue when the wallet cannot cover the payment, and pay out
// matured deposits. The game clock invokes it on month boundaries.
func (s *Store) ProcessMonth(ctx context.Context, now time.Time) {
	s.mu.Lock()
	credits := make([]*Credit, 0, len(s.credits))
	for i := range s.credits {
		credits = append(credits, &s.credits[i])
	}
	deposits := make([]*Deposit, 0, len(s.deposits))
	for i := range s.deposits {
		deposits = append(deposits, &s.deposits[i])
	}
	s.mu.Unlock()

	for _, credit := range credits {
		if credit.Status != CreditActive {
			continue
		}
		if err := s.wallet.SpendMoney(ctx, credit.MonthlyPayment); err != nil {
			s.settleCredit(ctx, credit, credit.RemainingAmount, credit.RemainingMonths, CreditOverdue)
			zap.L().Warn("credit_overdue",
				zap.String("credit_id", credit.ID),
				zap.Int64("payment", credit.MonthlyPayment),
			)
			continue
		}
		remaining := credit.RemainingAmount - credit.MonthlyPayment
		months := credit.RemainingMonths - 1
		status := CreditActive
		if remaining <= 0 {
			remaining = 0
			status = CreditPaid
		}
		s.settleCredit(ctx, credit, remaining, months, status)
	}

	for _, deposit := range deposits {
		if deposit.Status != DepositActive || now.Before(deposit.MaturityDate) {
			continue
		}
		interest := int64(math.Round(float64(deposit.Amount) *
			(deposit.InterestRate / 100) * (float64(deposit.TermMonths) / 12)))
		payout := deposit.Amount + interest
		if err := s.wallet.AddMoney(ctx, payout); err != nil {
			zap.L().Warn("deposit_payout", zap.String("deposit_id", deposit.ID), zap.Error(err))
			continue
		}
		s.mu.Lock()
		deposit.Status = DepositMatured
		s.mu.Unlock()
		if err := s.rows.Update(ctx, tableDeposits, deposit.ID, map[string]any{
			"status": string(DepositMatured),
		}); err != nil {
			zap.L().Warn("deposit_update", zap.String("deposit_id", deposit.ID), zap.Error(err))
		}
		zap.L().Info("deposit_matured",
			zap.String("deposit_id", deposit.ID),
			zap.Int64("payout", payout),
		)
	}
}

func (s *Store) settleCredit(ctx context.Context, credit *Credit, remaining int64, months int, status CreditStatus) {
	s.mu.Lock()
	credit.RemainingAmount = remaining
	credit.RemainingMonths = months
	credit.Status = status
	s.mu.Unlock()

	if err := s.rows.Update(ctx, tableCredits, credit.ID, map[string]any{
		"remaining_amount": remaining,
		"remaining_months": months,
		"status":           string(status),
	}); err != nil {
		zap.L().Warn("credit_update", zap.String("credit_id", credit.ID), zap.Error(err))
	}
}
