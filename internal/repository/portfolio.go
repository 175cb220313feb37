package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/shyamanurag/stock-trading-app-sub000/internal/database"
	"github.com/shyamanurag/stock-trading-app-sub000/internal/models"
	"github.com/shyamanurag/stock-trading-app-sub000/internal/store"
)

type PortfolioRepository struct {
	db *database.DB
}

func NewPortfolioRepository(db *database.DB) *PortfolioRepository {
	return &PortfolioRepository{db: db}
}

func (r *PortfolioRepository) Create(ctx context.Context, portfolio *models.Portfolio) error {
	qb := r.db.NewQueryBuilder()
	qb.AddParam("id", portfolio.ID)
	qb.AddParam("owner_id", portfolio.OwnerID)
	qb.AddParam("cash_balance", portfolio.CashBalance)
	qb.AddParam("initial_cash", portfolio.InitialCash)
	qb.AddParam("version", portfolio.Version)
	qb.AddParam("created_at", toMicros(portfolio.CreatedAt))
	qb.AddParam("updated_at", toMicros(portfolio.UpdatedAt))

	query, args, err := qb.Build(`
		INSERT INTO portfolios (id, owner_id, cash_balance, initial_cash, version, created_at, updated_at)
		VALUES (@id, @owner_id, @cash_balance, @initial_cash, @version, @created_at, @updated_at)
	`)
	if err != nil {
		return err
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		if database.IsUniqueViolation(err) {
			return store.ErrOwnerExists
		}
		return fmt.Errorf("create portfolio: %w", err)
	}

	return nil
}

func (r *PortfolioRepository) GetByID(ctx context.Context, q querier, id uuid.UUID) (*models.Portfolio, error) {
	return r.getBy(ctx, q, "id", id)
}

func (r *PortfolioRepository) GetByOwner(ctx context.Context, q querier, ownerID uuid.UUID) (*models.Portfolio, error) {
	return r.getBy(ctx, q, "owner_id", ownerID)
}

// getBy loads the portfolio row only; positions are attached by the caller.
func (r *PortfolioRepository) getBy(ctx context.Context, q querier, column string, value uuid.UUID) (*models.Portfolio, error) {
	qb := r.db.NewQueryBuilder()
	qb.AddParam("value", value)

	// column is one of two literals above, never user input
	query, args, err := qb.Build(`
		SELECT id, owner_id, cash_balance, initial_cash, version, created_at, updated_at
		FROM portfolios
		WHERE ` + column + ` = @value
	`)
	if err != nil {
		return nil, err
	}

	var (
		p                    models.Portfolio
		createdAt, updatedAt int64
	)
	err = q.QueryRowContext(ctx, query, args...).Scan(
		&p.ID,
		&p.OwnerID,
		&p.CashBalance,
		&p.InitialCash,
		&p.Version,
		&createdAt,
		&updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get portfolio: %w", err)
	}

	p.CreatedAt = fromMicros(createdAt)
	p.UpdatedAt = fromMicros(updatedAt)
	return &p, nil
}

// UpdateBalance advances the portfolio to expected+1 if it is still at
// expected. It reports store.ErrVersionConflict otherwise.
func (r *PortfolioRepository) UpdateBalance(ctx context.Context, q querier, id uuid.UUID, expected int64, cash decimal.Decimal, updatedAt int64) error {
	qb := r.db.NewQueryBuilder()
	qb.AddParam("id", id)
	qb.AddParam("expected", expected)
	qb.AddParam("next", expected+1)
	qb.AddParam("cash_balance", cash)
	qb.AddParam("updated_at", updatedAt)

	query, args, err := qb.Build(`
		UPDATE portfolios
		SET cash_balance = @cash_balance,
			version = @next,
			updated_at = @updated_at
		WHERE id = @id AND version = @expected
	`)
	if err != nil {
		return err
	}

	result, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update portfolio: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return store.ErrVersionConflict
	}

	return nil
}
