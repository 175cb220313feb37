package cache

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Entry is a cached price. Price is already at currency precision.
type Entry struct {
	Symbol    string          `json:"symbol"`
	Price     decimal.Decimal `json:"price"`
	Timestamp time.Time       `json:"timestamp"`
	FetchedAt time.Time       `json:"fetched_at"`
	ExpiresAt time.Time       `json:"expires_at"`
}

// SnapshotStore shares entries between QuoteCache instances. A store only
// keeps entries; whether one is fresh is decided by the cache's clock.
type SnapshotStore interface {
	Load(ctx context.Context, symbol string) (Entry, bool, error)
	Save(ctx context.Context, entry Entry) error
	Delete(ctx context.Context, symbol string) error
}
