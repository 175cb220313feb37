package models

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Portfolio struct {
	ID          uuid.UUID       `json:"id" db:"id"`
	OwnerID     uuid.UUID       `json:"owner_id" db:"owner_id"`
	CashBalance decimal.Decimal `json:"cash_balance" db:"cash_balance"`
	InitialCash decimal.Decimal `json:"initial_cash" db:"initial_cash"`
	Positions   []Position      `json:"positions"`
	Version     int64           `json:"version" db:"version"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at" db:"updated_at"`
}

// Position is a held quantity of one symbol. Quantity is always > 0; a
// position that would drop to zero is removed instead.
type Position struct {
	Symbol      string          `json:"symbol" db:"symbol"`
	Quantity    decimal.Decimal `json:"quantity" db:"quantity"`
	AverageCost decimal.Decimal `json:"average_cost" db:"average_cost"`
	UpdatedAt   time.Time       `json:"updated_at" db:"updated_at"`
}

type TradeType string

const (
	TradeBuy  TradeType = "BUY"
	TradeSell TradeType = "SELL"
)

// Transaction is an immutable record of one executed trade. Sequence equals
// the portfolio version produced by the trade.
type Transaction struct {
	ID          uuid.UUID       `json:"id" db:"id"`
	PortfolioID uuid.UUID       `json:"portfolio_id" db:"portfolio_id"`
	Sequence    int64           `json:"sequence" db:"sequence"`
	Symbol      string          `json:"symbol" db:"symbol"`
	Type        TradeType       `json:"type" db:"type"`
	Quantity    decimal.Decimal `json:"quantity" db:"quantity"`
	Price       decimal.Decimal `json:"price" db:"price"`
	Amount      decimal.Decimal `json:"amount" db:"amount"`
	ExecutedAt  time.Time       `json:"executed_at" db:"executed_at"`
}

// TradeResult is returned by a successful buy or sell. Position is nil when
// the trade closed the position.
type TradeResult struct {
	Portfolio   *Portfolio   `json:"portfolio"`
	Position    *Position    `json:"position"`
	Transaction *Transaction `json:"transaction"`
}

// TransactionPage is one page of a portfolio's log, newest first.
type TransactionPage struct {
	Transactions []Transaction `json:"transactions"`
	Page         int           `json:"page"`
	PageSize     int           `json:"page_size"`
}

// FindPosition returns the position for symbol and its index, or nil and -1.
func (p *Portfolio) FindPosition(symbol string) (*Position, int) {
	for i := range p.Positions {
		if p.Positions[i].Symbol == symbol {
			return &p.Positions[i], i
		}
	}
	return nil, -1
}

// Clone returns a deep copy so callers can never alias stored state.
func (p *Portfolio) Clone() *Portfolio {
	c := *p
	c.Positions = make([]Position, len(p.Positions))
	copy(c.Positions, p.Positions)
	return &c
}

// SortPositions orders positions by symbol.
func SortPositions(positions []Position) {
	sort.Slice(positions, func(i, j int) bool {
		return positions[i].Symbol < positions[j].Symbol
	})
}
