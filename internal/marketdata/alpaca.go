package marketdata

import (
	"context"
	"fmt"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/shopspring/decimal"

	"github.com/shyamanurag/stock-trading-app-sub000/internal/models"
)

// tradeClient is the subset of *marketdata.Client used here.
type tradeClient interface {
	GetLatestTrade(symbol string, req marketdata.GetLatestTradeRequest) (*marketdata.Trade, error)
	GetLatestTrades(symbols []string, req marketdata.GetLatestTradeRequest) (map[string]marketdata.Trade, error)
}

// AlpacaProvider prices symbols at their latest trade.
type AlpacaProvider struct {
	client tradeClient
}

var _ BatchProvider = (*AlpacaProvider)(nil)

type AlpacaConfig struct {
	APIKey    string
	APISecret string
	BaseURL   string
}

func NewAlpacaProvider(cfg AlpacaConfig) *AlpacaProvider {
	return &AlpacaProvider{
		client: marketdata.NewClient(marketdata.ClientOpts{
			APIKey:    cfg.APIKey,
			APISecret: cfg.APISecret,
			BaseURL:   cfg.BaseURL,
		}),
	}
}

func (p *AlpacaProvider) Name() string { return "alpaca" }

func (p *AlpacaProvider) FetchQuote(ctx context.Context, symbol string) (models.Quote, error) {
	trade, err := withContext(ctx, func() (*marketdata.Trade, error) {
		return p.client.GetLatestTrade(symbol, marketdata.GetLatestTradeRequest{})
	})
	if err != nil {
		return models.Quote{}, fmt.Errorf("fetch latest trade %s: %w", symbol, err)
	}
	if trade == nil {
		return models.Quote{}, ErrSymbolNotFound
	}
	return tradeQuote(symbol, *trade)
}

func (p *AlpacaProvider) FetchBatch(ctx context.Context, symbols []string) (map[string]models.Quote, error) {
	trades, err := withContext(ctx, func() (map[string]marketdata.Trade, error) {
		return p.client.GetLatestTrades(symbols, marketdata.GetLatestTradeRequest{})
	})
	if err != nil {
		return nil, fmt.Errorf("fetch latest trades: %w", err)
	}

	quotes := make(map[string]models.Quote, len(trades))
	for symbol, trade := range trades {
		q, err := tradeQuote(symbol, trade)
		if err != nil {
			return nil, err
		}
		quotes[symbol] = q
	}
	return quotes, nil
}

func tradeQuote(symbol string, trade marketdata.Trade) (models.Quote, error) {
	price := decimal.NewFromFloat(trade.Price)
	if !price.IsPositive() {
		return models.Quote{}, fmt.Errorf("invalid price %s for %s", price, symbol)
	}
	return models.Quote{
		Symbol:    symbol,
		Price:     price,
		Timestamp: trade.Timestamp,
	}, nil
}

// withContext runs a blocking SDK call and abandons it when ctx ends.
func withContext[T any](ctx context.Context, call func() (T, error)) (T, error) {
	type result struct {
		val T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := call()
		done <- result{v, err}
	}()

	select {
	case r := <-done:
		return r.val, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
