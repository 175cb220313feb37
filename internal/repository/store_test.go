package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shyamanurag/stock-trading-app-sub000/internal/database"
	"github.com/shyamanurag/stock-trading-app-sub000/internal/models"
	"github.com/shyamanurag/stock-trading-app-sub000/internal/store"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewStore(database.New(db, database.Postgres)), mock
}

var executedAt = time.Date(2024, 1, 2, 15, 0, 0, 0, time.UTC)

func sampleMutation() store.Mutation {
	pid := uuid.MustParse("11111111-1111-1111-1111-111111111111")
	return store.Mutation{
		PortfolioID:     pid,
		ExpectedVersion: 3,
		CashBalance:     decimal.RequireFromString("8500.00"),
		Upsert: &models.Position{
			Symbol:      "AAPL",
			Quantity:    decimal.NewFromInt(10),
			AverageCost: decimal.RequireFromString("150"),
			UpdatedAt:   executedAt,
		},
		Transaction: models.Transaction{
			ID:          uuid.MustParse("22222222-2222-2222-2222-222222222222"),
			PortfolioID: pid,
			Sequence:    4,
			Symbol:      "AAPL",
			Type:        models.TradeBuy,
			Quantity:    decimal.NewFromInt(10),
			Price:       decimal.RequireFromString("150.00"),
			Amount:      decimal.RequireFromString("1500.00"),
			ExecutedAt:  executedAt,
		},
	}
}

func TestApply(t *testing.T) {
	t.Run("commits all three writes", func(t *testing.T) {
		s, mock := newMockStore(t)
		m := sampleMutation()

		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE portfolios`).
			WithArgs("8500", int64(4), executedAt.UnixMicro(), m.PortfolioID.String(), int64(3)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`INSERT INTO positions .* ON CONFLICT \(portfolio_id, symbol\) DO UPDATE`).
			WithArgs(m.PortfolioID.String(), "AAPL", "10", "150", executedAt.UnixMicro()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`INSERT INTO transactions`).
			WithArgs(m.Transaction.ID.String(), m.PortfolioID.String(), int64(4), "AAPL", "BUY", "10", "150", "1500", executedAt.UnixMicro()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		require.NoError(t, s.Apply(context.Background(), m))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("stale version rolls back", func(t *testing.T) {
		s, mock := newMockStore(t)

		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE portfolios`).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		err := s.Apply(context.Background(), sampleMutation())
		assert.ErrorIs(t, err, store.ErrVersionConflict)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("delete on full sell", func(t *testing.T) {
		s, mock := newMockStore(t)
		m := sampleMutation()
		m.Upsert = nil
		m.Delete = "AAPL"

		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE portfolios`).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`DELETE FROM positions`).
			WithArgs(m.PortfolioID.String(), "AAPL").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`INSERT INTO transactions`).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		require.NoError(t, s.Apply(context.Background(), m))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("duplicate sequence is a conflict", func(t *testing.T) {
		s, mock := newMockStore(t)

		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE portfolios`).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`INSERT INTO positions`).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`INSERT INTO transactions`).WillReturnError(&pq.Error{Code: "23505"})
		mock.ExpectRollback()

		err := s.Apply(context.Background(), sampleMutation())
		assert.ErrorIs(t, err, store.ErrVersionConflict)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("driver failure rolls back", func(t *testing.T) {
		s, mock := newMockStore(t)

		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE portfolios`).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`INSERT INTO positions`).WillReturnError(errors.New("disk full"))
		mock.ExpectRollback()

		err := s.Apply(context.Background(), sampleMutation())
		require.Error(t, err)
		assert.NotErrorIs(t, err, store.ErrVersionConflict)
		assert.Contains(t, err.Error(), "disk full")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGetPortfolio(t *testing.T) {
	id := uuid.New()
	owner := uuid.New()

	t.Run("found with positions", func(t *testing.T) {
		s, mock := newMockStore(t)

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT id, owner_id, cash_balance.*FROM portfolios\s+WHERE id = \$1`).
			WithArgs(id.String()).
			WillReturnRows(sqlmock.NewRows([]string{"id", "owner_id", "cash_balance", "initial_cash", "version", "created_at", "updated_at"}).
				AddRow(id.String(), owner.String(), "8500.00", "10000.00", 1, executedAt.UnixMicro(), executedAt.UnixMicro()))
		mock.ExpectQuery(`SELECT symbol, quantity, average_cost, updated_at\s+FROM positions`).
			WithArgs(id.String()).
			WillReturnRows(sqlmock.NewRows([]string{"symbol", "quantity", "average_cost", "updated_at"}).
				AddRow("AAPL", "10.0000", "150.000000", executedAt.UnixMicro()))
		mock.ExpectCommit()

		p, err := s.GetPortfolio(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, owner, p.OwnerID)
		assert.True(t, p.CashBalance.Equal(decimal.NewFromInt(8500)))
		assert.Equal(t, int64(1), p.Version)
		assert.Equal(t, executedAt, p.CreatedAt)
		require.Len(t, p.Positions, 1)
		assert.True(t, p.Positions[0].Quantity.Equal(decimal.NewFromInt(10)))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing", func(t *testing.T) {
		s, mock := newMockStore(t)

		mock.ExpectBegin()
		mock.ExpectQuery(`FROM portfolios\s+WHERE owner_id = \$1`).
			WithArgs(owner.String()).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))
		mock.ExpectRollback()

		_, err := s.GetPortfolioByOwner(context.Background(), owner)
		assert.ErrorIs(t, err, store.ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestCreatePortfolioDuplicateOwner(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`INSERT INTO portfolios`).WillReturnError(&pq.Error{Code: "23505"})

	err := s.CreatePortfolio(context.Background(), &models.Portfolio{ID: uuid.New(), OwnerID: uuid.New()})
	assert.ErrorIs(t, err, store.ErrOwnerExists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListTransactionsNewestFirst(t *testing.T) {
	s, mock := newMockStore(t)
	pid := uuid.New()

	cols := []string{"id", "portfolio_id", "sequence", "symbol", "type", "quantity", "price", "amount", "executed_at"}
	mock.ExpectQuery(`FROM transactions\s+WHERE portfolio_id = \$1\s+ORDER BY sequence DESC\s+LIMIT \$2 OFFSET \$3`).
		WithArgs(pid.String(), 20, 20).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(uuid.NewString(), pid.String(), 2, "AAPL", "SELL", "4", "150.00", "600.00", executedAt.UnixMicro()).
			AddRow(uuid.NewString(), pid.String(), 1, "AAPL", "BUY", "10", "150.00", "1500.00", executedAt.UnixMicro()))

	txs, err := NewTransactionLog(s.db).ListFor(context.Background(), pid, 2, 20)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, int64(2), txs[0].Sequence)
	assert.Equal(t, models.TradeSell, txs[0].Type)
	assert.NoError(t, mock.ExpectationsWereMet())
}
