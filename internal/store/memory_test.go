package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shyamanurag/stock-trading-app-sub000/internal/models"
)

func newPortfolio() *models.Portfolio {
	now := time.Date(2024, 1, 2, 15, 0, 0, 0, time.UTC)
	cash := decimal.RequireFromString("10000.00")
	return &models.Portfolio{
		ID:          uuid.New(),
		OwnerID:     uuid.New(),
		CashBalance: cash,
		InitialCash: cash,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func buyMutation(p *models.Portfolio, version int64, symbol, qty, cash string) Mutation {
	return Mutation{
		PortfolioID:     p.ID,
		ExpectedVersion: version,
		CashBalance:     decimal.RequireFromString(cash),
		Upsert: &models.Position{
			Symbol:      symbol,
			Quantity:    decimal.RequireFromString(qty),
			AverageCost: decimal.RequireFromString("100"),
		},
		Transaction: models.Transaction{
			ID:          uuid.New(),
			PortfolioID: p.ID,
			Sequence:    version + 1,
			Symbol:      symbol,
			Type:        models.TradeBuy,
			Quantity:    decimal.RequireFromString(qty),
		},
	}
}

func TestMemoryStoreCreate(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	p := newPortfolio()

	require.NoError(t, s.CreatePortfolio(ctx, p))

	dup := newPortfolio()
	dup.OwnerID = p.OwnerID
	assert.ErrorIs(t, s.CreatePortfolio(ctx, dup), ErrOwnerExists)

	got, err := s.GetPortfolioByOwner(ctx, p.OwnerID)
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)

	_, err = s.GetPortfolio(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreApply(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	p := newPortfolio()
	require.NoError(t, s.CreatePortfolio(ctx, p))

	require.NoError(t, s.Apply(ctx, buyMutation(p, 0, "MSFT", "5", "9500")))
	require.NoError(t, s.Apply(ctx, buyMutation(p, 1, "AAPL", "10", "8500")))

	got, err := s.GetPortfolio(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Version)
	assert.Equal(t, "8500", got.CashBalance.String())
	require.Len(t, got.Positions, 2)
	assert.Equal(t, "AAPL", got.Positions[0].Symbol)

	t.Run("stale version rejected without effect", func(t *testing.T) {
		err := s.Apply(ctx, buyMutation(p, 1, "GOOG", "1", "1"))
		assert.ErrorIs(t, err, ErrVersionConflict)

		again, err := s.GetPortfolio(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, got, again)
	})

	t.Run("delete removes position", func(t *testing.T) {
		require.NoError(t, s.Apply(ctx, Mutation{
			PortfolioID:     p.ID,
			ExpectedVersion: 2,
			CashBalance:     decimal.RequireFromString("9000"),
			Delete:          "MSFT",
			Transaction:     models.Transaction{ID: uuid.New(), Sequence: 3, Symbol: "MSFT", Type: models.TradeSell},
		}))

		after, err := s.GetPortfolio(ctx, p.ID)
		require.NoError(t, err)
		require.Len(t, after.Positions, 1)
		assert.Equal(t, "AAPL", after.Positions[0].Symbol)
	})

	t.Run("returned snapshots are copies", func(t *testing.T) {
		snap, err := s.GetPortfolio(ctx, p.ID)
		require.NoError(t, err)
		snap.Positions[0].Quantity = decimal.NewFromInt(1000)

		fresh, err := s.GetPortfolio(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, "10", fresh.Positions[0].Quantity.String())
	})
}

func TestMemoryStoreTransactions(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	p := newPortfolio()
	require.NoError(t, s.CreatePortfolio(ctx, p))

	for v := int64(0); v < 5; v++ {
		require.NoError(t, s.Apply(ctx, buyMutation(p, v, "AAPL", "1", "100")))
	}

	page, err := s.ListTransactions(ctx, p.ID, 0, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, int64(5), page[0].Sequence)
	assert.Equal(t, int64(4), page[1].Sequence)

	page, err = s.ListTransactions(ctx, p.ID, 4, 2)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, int64(1), page[0].Sequence)

	page, err = s.ListTransactions(ctx, p.ID, 10, 2)
	require.NoError(t, err)
	assert.Empty(t, page)

	all, err := s.AllTransactions(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, all, 5)
	assert.Equal(t, int64(1), all[0].Sequence)
}
