// Package marketdata adapts upstream price sources to a common interface.
package marketdata

import (
	"context"
	"errors"

	"github.com/shyamanurag/stock-trading-app-sub000/internal/models"
)

// ErrSymbolNotFound is returned when the upstream has no price for a symbol.
var ErrSymbolNotFound = errors.New("symbol not found")

// Provider fetches the latest price for one symbol. Prices are returned as
// reported; rounding to currency precision is the caller's job.
type Provider interface {
	Name() string
	FetchQuote(ctx context.Context, symbol string) (models.Quote, error)
}

// BatchProvider is implemented by providers that can price several symbols
// in one upstream call. Symbols missing from the result had no price.
type BatchProvider interface {
	Provider
	FetchBatch(ctx context.Context, symbols []string) (map[string]models.Quote, error)
}
