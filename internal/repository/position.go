package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/shyamanurag/stock-trading-app-sub000/internal/database"
	"github.com/shyamanurag/stock-trading-app-sub000/internal/models"
)

type PositionRepository struct {
	db *database.DB
}

func NewPositionRepository(db *database.DB) *PositionRepository {
	return &PositionRepository{db: db}
}

// ListFor returns a portfolio's positions ordered by symbol.
func (r *PositionRepository) ListFor(ctx context.Context, q querier, portfolioID uuid.UUID) ([]models.Position, error) {
	qb := r.db.NewQueryBuilder()
	qb.AddParam("portfolio_id", portfolioID)

	query, args, err := qb.Build(`
		SELECT symbol, quantity, average_cost, updated_at
		FROM positions
		WHERE portfolio_id = @portfolio_id
		ORDER BY symbol
	`)
	if err != nil {
		return nil, err
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list positions: %w", err)
	}
	defer rows.Close()

	positions := []models.Position{}
	for rows.Next() {
		var (
			pos       models.Position
			updatedAt int64
		)
		if err := rows.Scan(&pos.Symbol, &pos.Quantity, &pos.AverageCost, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan position: %w", err)
		}
		pos.UpdatedAt = fromMicros(updatedAt)
		positions = append(positions, pos)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate positions: %w", err)
	}
	return positions, nil
}

func (r *PositionRepository) Upsert(ctx context.Context, q querier, portfolioID uuid.UUID, pos models.Position) error {
	qb := r.db.NewQueryBuilder()
	qb.AddParam("portfolio_id", portfolioID)
	qb.AddParam("symbol", pos.Symbol)
	qb.AddParam("quantity", pos.Quantity)
	qb.AddParam("average_cost", pos.AverageCost)
	qb.AddParam("updated_at", toMicros(pos.UpdatedAt))

	query, args, err := qb.Build(`
		INSERT INTO positions (portfolio_id, symbol, quantity, average_cost, updated_at)
		VALUES (@portfolio_id, @symbol, @quantity, @average_cost, @updated_at)
		ON CONFLICT (portfolio_id, symbol) DO UPDATE
		SET quantity = excluded.quantity,
			average_cost = excluded.average_cost,
			updated_at = excluded.updated_at
	`)
	if err != nil {
		return err
	}

	if _, err := q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert position: %w", err)
	}
	return nil
}

func (r *PositionRepository) Delete(ctx context.Context, q querier, portfolioID uuid.UUID, symbol string) error {
	qb := r.db.NewQueryBuilder()
	qb.AddParam("portfolio_id", portfolioID)
	qb.AddParam("symbol", symbol)

	query, args, err := qb.Build(`
		DELETE FROM positions
		WHERE portfolio_id = @portfolio_id AND symbol = @symbol
	`)
	if err != nil {
		return err
	}

	if _, err := q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("delete position: %w", err)
	}
	return nil
}
