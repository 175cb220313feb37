package ledger

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/shyamanurag/stock-trading-app-sub000/internal/errors"
	"github.com/shyamanurag/stock-trading-app-sub000/internal/models"
	"github.com/shyamanurag/stock-trading-app-sub000/internal/store"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// fakeQuotes prices symbols from a map. Missing symbols are unavailable.
type fakeQuotes struct {
	mu     sync.Mutex
	prices map[string]decimal.Decimal
	stale  map[string]bool
	calls  int32
}

func newFakeQuotes() *fakeQuotes {
	return &fakeQuotes{
		prices: make(map[string]decimal.Decimal),
		stale:  make(map[string]bool),
	}
}

func (f *fakeQuotes) set(symbol, price string) {
	symbol = strings.ToUpper(symbol)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prices[symbol] = d(price)
	delete(f.stale, symbol)
}

func (f *fakeQuotes) markStale(symbol string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stale[symbol] = true
}

func (f *fakeQuotes) remove(symbol string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.prices, symbol)
}

func (f *fakeQuotes) Get(ctx context.Context, symbol string) (models.Quote, error) {
	atomic.AddInt32(&f.calls, 1)
	f.mu.Lock()
	defer f.mu.Unlock()
	price, ok := f.prices[symbol]
	if !ok {
		return models.Quote{}, apperrors.NewQuoteUnavailableError(symbol, errors.New("upstream down"))
	}
	return models.Quote{Symbol: symbol, Price: price, Stale: f.stale[symbol]}, nil
}

func (f *fakeQuotes) GetForDisplay(ctx context.Context, symbols []string) map[string]models.Quote {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]models.Quote)
	for _, s := range symbols {
		if price, ok := f.prices[s]; ok {
			out[s] = models.Quote{Symbol: s, Price: price, Stale: f.stale[s]}
		}
	}
	return out
}

type fixture struct {
	ledger *Ledger
	store  store.Store
	quotes *fakeQuotes
	id     uuid.UUID
}

func newFixture(t *testing.T, s store.Store, cfg Config) *fixture {
	t.Helper()
	if s == nil {
		s = store.NewMemoryStore()
	}
	if cfg.StartingBalance.IsZero() {
		cfg.StartingBalance = d("10000.00")
	}
	quotes := newFakeQuotes()
	l := New(s, quotes, cfg)

	p, err := l.OpenPortfolio(context.Background(), uuid.New())
	require.NoError(t, err)

	return &fixture{ledger: l, store: s, quotes: quotes, id: p.ID}
}

func (f *fixture) buy(t *testing.T, symbol, qty, price string) (*models.TradeResult, error) {
	t.Helper()
	f.quotes.set(symbol, price)
	return f.ledger.Buy(context.Background(), f.id, symbol, d(qty))
}

func (f *fixture) sell(t *testing.T, symbol, qty, price string) (*models.TradeResult, error) {
	t.Helper()
	f.quotes.set(symbol, price)
	return f.ledger.Sell(context.Background(), f.id, symbol, d(qty))
}

func (f *fixture) snapshot(t *testing.T) (*models.Portfolio, []models.Transaction) {
	t.Helper()
	p, err := f.store.GetPortfolio(context.Background(), f.id)
	require.NoError(t, err)
	txs, err := f.store.AllTransactions(context.Background(), f.id)
	require.NoError(t, err)
	return p, txs
}

func TestConcreteScenario(t *testing.T) {
	f := newFixture(t, nil, Config{})

	res, err := f.buy(t, "AAPL", "10", "150.00")
	require.NoError(t, err)
	assert.Equal(t, "8500.00", res.Portfolio.CashBalance.StringFixed(2))
	require.NotNil(t, res.Position)
	assert.Equal(t, "10", res.Position.Quantity.String())
	assert.Equal(t, "150.00", res.Position.AverageCost.StringFixed(2))
	assert.Equal(t, int64(1), res.Transaction.Sequence)

	res, err = f.buy(t, "AAPL", "5", "180.00")
	require.NoError(t, err)
	assert.Equal(t, "7600.00", res.Portfolio.CashBalance.StringFixed(2))
	assert.Equal(t, "15", res.Position.Quantity.String())
	assert.Equal(t, "160.00", res.Position.AverageCost.StringFixed(2))

	res, err = f.sell(t, "AAPL", "15", "200.00")
	require.NoError(t, err)
	assert.Equal(t, "10600.00", res.Portfolio.CashBalance.StringFixed(2))
	assert.Nil(t, res.Position)
	assert.Empty(t, res.Portfolio.Positions)

	p, txs := f.snapshot(t)
	assert.Equal(t, "10600.00", p.CashBalance.StringFixed(2))
	assert.Empty(t, p.Positions)
	require.Len(t, txs, 3)
	assert.Equal(t, models.TradeSell, txs[2].Type)
	assert.Equal(t, "3000.00", txs[2].Amount.StringFixed(2))
}

func TestSellWithoutPosition(t *testing.T) {
	f := newFixture(t, nil, Config{})

	_, err := f.sell(t, "MSFT", "1", "100.00")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrPositionNotFound)
	assert.Contains(t, err.Error(), "MSFT")

	p, txs := f.snapshot(t)
	assert.Equal(t, "10000.00", p.CashBalance.StringFixed(2))
	assert.Empty(t, txs)
}

func TestInvalidQuantity(t *testing.T) {
	f := newFixture(t, nil, Config{})

	tests := []struct {
		name string
		call func() error
	}{
		{"buy zero", func() error { _, err := f.buy(t, "AAPL", "0", "150"); return err }},
		{"sell negative", func() error { _, err := f.sell(t, "AAPL", "-1", "150"); return err }},
		{"too many decimals", func() error { _, err := f.buy(t, "AAPL", "0.00001", "150"); return err }},
		{"amount below a cent", func() error { _, err := f.buy(t, "AAPL", "0.5", "150.25"); return err }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			require.Error(t, err)
			assert.ErrorIs(t, err, apperrors.ErrInvalidQuantity)
		})
	}

	p, txs := f.snapshot(t)
	assert.Equal(t, "10000.00", p.CashBalance.StringFixed(2))
	assert.Empty(t, p.Positions)
	assert.Empty(t, txs)
}

func TestQuantityCheckedBeforeQuote(t *testing.T) {
	f := newFixture(t, nil, Config{})

	_, err := f.ledger.Buy(context.Background(), f.id, "AAPL", decimal.Zero)
	assert.ErrorIs(t, err, apperrors.ErrInvalidQuantity)
	assert.Equal(t, int32(0), atomic.LoadInt32(&f.quotes.calls))
}

func TestInvalidSymbol(t *testing.T) {
	f := newFixture(t, nil, Config{})

	_, err := f.buy(t, "not a symbol", "1", "10")
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestFractionalShares(t *testing.T) {
	f := newFixture(t, nil, Config{})

	res, err := f.buy(t, "aapl", "0.5", "150.00")
	require.NoError(t, err)
	assert.Equal(t, "AAPL", res.Transaction.Symbol)
	assert.Equal(t, "9925.00", res.Portfolio.CashBalance.StringFixed(2))

	res, err = f.sell(t, "AAPL", "0.25", "150.00")
	require.NoError(t, err)
	assert.Equal(t, "0.25", res.Position.Quantity.String())
}

func TestQuoteUnavailable(t *testing.T) {
	f := newFixture(t, nil, Config{})

	_, err := f.ledger.Buy(context.Background(), f.id, "AAPL", d("1"))
	assert.ErrorIs(t, err, apperrors.ErrQuoteUnavailable)

	t.Run("stale quotes are refused", func(t *testing.T) {
		f.quotes.set("AAPL", "150")
		f.quotes.markStale("AAPL")

		_, err := f.ledger.Buy(context.Background(), f.id, "AAPL", d("1"))
		assert.ErrorIs(t, err, apperrors.ErrQuoteUnavailable)
	})

	_, txs := f.snapshot(t)
	assert.Empty(t, txs)
}

func TestInsufficientFunds(t *testing.T) {
	f := newFixture(t, nil, Config{})

	_, err := f.buy(t, "AAPL", "70", "150.00")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrInsufficientFunds)
	assert.Equal(t, "insufficient funds: need $10,500.00, have $10,000.00", err.Error())

	// spending the exact balance is allowed and leaves zero
	res, err := f.buy(t, "AAPL", "50", "200.00")
	require.NoError(t, err)
	assert.True(t, res.Portfolio.CashBalance.IsZero())
}

func TestInsufficientShares(t *testing.T) {
	f := newFixture(t, nil, Config{})

	_, err := f.buy(t, "AAPL", "10", "150.00")
	require.NoError(t, err)

	_, err = f.sell(t, "AAPL", "10.5", "150.00")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrInsufficientShares)
	assert.Equal(t, "insufficient shares of AAPL: need 10.5, have 10", err.Error())

	p, txs := f.snapshot(t)
	assert.Equal(t, "10", p.Positions[0].Quantity.String())
	assert.Len(t, txs, 1)
}

func TestWeightedAverageLaw(t *testing.T) {
	tests := []struct {
		q1, p1, q2, p2 string
		want           string
	}{
		{"10", "150.00", "5", "180.00", "160"},
		{"1", "100.00", "1", "200.00", "150"},
		{"3", "10.01", "7", "10.02", "10.017"},
		{"1", "100.00", "2", "100.01", "100.006667"},
	}

	for _, tt := range tests {
		t.Run(tt.q1+"@"+tt.p1+"+"+tt.q2+"@"+tt.p2, func(t *testing.T) {
			f := newFixture(t, nil, Config{})

			_, err := f.buy(t, "AAPL", tt.q1, tt.p1)
			require.NoError(t, err)
			res, err := f.buy(t, "AAPL", tt.q2, tt.p2)
			require.NoError(t, err)

			assert.True(t, res.Position.AverageCost.Equal(d(tt.want)), res.Position.AverageCost.String())
		})
	}
}

func TestFullLiquidationResetsCostBasis(t *testing.T) {
	f := newFixture(t, nil, Config{})

	_, err := f.buy(t, "AAPL", "10", "150.00")
	require.NoError(t, err)
	_, err = f.sell(t, "AAPL", "10", "160.00")
	require.NoError(t, err)

	p, _ := f.snapshot(t)
	pos, _ := p.FindPosition("AAPL")
	assert.Nil(t, pos)

	res, err := f.buy(t, "AAPL", "2", "90.00")
	require.NoError(t, err)
	assert.True(t, res.Position.AverageCost.Equal(d("90")))
}

func TestPartialSellKeepsAverageCost(t *testing.T) {
	f := newFixture(t, nil, Config{})

	_, err := f.buy(t, "AAPL", "10", "150.00")
	require.NoError(t, err)
	res, err := f.sell(t, "AAPL", "4", "999.00")
	require.NoError(t, err)

	assert.Equal(t, "6", res.Position.Quantity.String())
	assert.True(t, res.Position.AverageCost.Equal(d("150")))
	assert.Equal(t, "12496.00", res.Portfolio.CashBalance.StringFixed(2))
}

func TestReplayMatchesState(t *testing.T) {
	f := newFixture(t, nil, Config{})
	rng := rand.New(rand.NewSource(42))
	symbols := []string{"AAPL", "MSFT", "GOOG"}

	for i := 0; i < 200; i++ {
		symbol := symbols[rng.Intn(len(symbols))]
		price := decimal.New(int64(5000+rng.Intn(20000)), -2)
		qty := decimal.NewFromInt(int64(1 + rng.Intn(20)))
		f.quotes.set(symbol, price.String())

		if rng.Intn(2) == 0 {
			_, _ = f.ledger.Buy(context.Background(), f.id, symbol, qty)
		} else {
			_, _ = f.ledger.Sell(context.Background(), f.id, symbol, qty)
		}

		p, _ := f.snapshot(t)
		require.False(t, p.CashBalance.IsNegative(), "cash went negative at step %d", i)
		for _, pos := range p.Positions {
			require.True(t, pos.Quantity.IsPositive(), "non-positive position at step %d", i)
		}
	}

	p, txs := f.snapshot(t)
	require.NotEmpty(t, txs)

	replayed, err := Replay(p.InitialCash, txs)
	require.NoError(t, err)
	assert.True(t, replayed.CashBalance.Equal(p.CashBalance))
	assert.Equal(t, p.Version, replayed.Version)
	require.Len(t, replayed.Positions, len(p.Positions))
	for i := range p.Positions {
		assert.Equal(t, p.Positions[i].Symbol, replayed.Positions[i].Symbol)
		assert.True(t, p.Positions[i].Quantity.Equal(replayed.Positions[i].Quantity))
		assert.True(t, p.Positions[i].AverageCost.Equal(replayed.Positions[i].AverageCost))
	}

	report, err := f.ledger.Audit(context.Background(), f.id)
	require.NoError(t, err)
	assert.True(t, report.Consistent, report.Discrepancies)
	assert.Equal(t, len(txs), report.Transactions)
}

func TestReplayRejectsGaps(t *testing.T) {
	_, err := Replay(d("100"), []models.Transaction{
		{Sequence: 1, Symbol: "X", Type: models.TradeBuy, Quantity: d("1"), Price: d("10"), Amount: d("10")},
		{Sequence: 3, Symbol: "X", Type: models.TradeBuy, Quantity: d("1"), Price: d("10"), Amount: d("10")},
	})
	assert.ErrorContains(t, err, "expected sequence 2")
}

func TestAuditDetectsDrift(t *testing.T) {
	s := store.NewMemoryStore()
	l := New(s, newFakeQuotes(), Config{StartingBalance: d("10000")})

	p := &models.Portfolio{
		ID:          uuid.New(),
		OwnerID:     uuid.New(),
		CashBalance: d("12000"),
		InitialCash: d("10000"),
	}
	require.NoError(t, s.CreatePortfolio(context.Background(), p))

	report, err := l.Audit(context.Background(), p.ID)
	require.NoError(t, err)
	assert.False(t, report.Consistent)
	require.Len(t, report.Discrepancies, 1)
	assert.Contains(t, report.Discrepancies[0], "cash balance")
}
