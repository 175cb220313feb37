package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Quote is a price snapshot for a symbol. Timestamp is the provider's time,
// FetchedAt and ExpiresAt are set by the quote cache.
type Quote struct {
	Symbol    string          `json:"symbol"`
	Price     decimal.Decimal `json:"price"`
	Timestamp time.Time       `json:"timestamp"`
	FetchedAt time.Time       `json:"fetched_at"`
	ExpiresAt time.Time       `json:"expires_at"`
	Stale     bool            `json:"stale,omitempty"`
}

// PositionView is a position valued at a display quote.
type PositionView struct {
	Position
	Price        *decimal.Decimal `json:"price,omitempty"`
	MarketValue  *decimal.Decimal `json:"market_value,omitempty"`
	UnrealizedPL *decimal.Decimal `json:"unrealized_pl,omitempty"`
	QuoteStale   bool             `json:"quote_stale,omitempty"`
}

// Valuation is a portfolio snapshot with positions priced for display.
// Positions without any quote carry no market value and are excluded from
// TotalValue; Complete reports whether every position was priced.
type Valuation struct {
	Portfolio  *Portfolio      `json:"portfolio"`
	Positions  []PositionView  `json:"positions"`
	TotalValue decimal.Decimal `json:"total_value"`
	Complete   bool            `json:"complete"`
}
