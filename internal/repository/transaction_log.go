package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/shyamanurag/stock-trading-app-sub000/internal/database"
	"github.com/shyamanurag/stock-trading-app-sub000/internal/models"
	"github.com/shyamanurag/stock-trading-app-sub000/internal/store"
)

// TransactionLog is append-only: there is no update or delete.
type TransactionLog struct {
	db *database.DB
}

func NewTransactionLog(db *database.DB) *TransactionLog {
	return &TransactionLog{db: db}
}

const transactionColumns = `id, portfolio_id, sequence, symbol, type, quantity, price, amount, executed_at`

// Append writes t inside the caller's transaction. A duplicate sequence
// means another writer got there first.
func (l *TransactionLog) Append(ctx context.Context, q querier, t models.Transaction) error {
	qb := l.db.NewQueryBuilder()
	qb.AddParam("id", t.ID)
	qb.AddParam("portfolio_id", t.PortfolioID)
	qb.AddParam("sequence", t.Sequence)
	qb.AddParam("symbol", t.Symbol)
	qb.AddParam("type", string(t.Type))
	qb.AddParam("quantity", t.Quantity)
	qb.AddParam("price", t.Price)
	qb.AddParam("amount", t.Amount)
	qb.AddParam("executed_at", toMicros(t.ExecutedAt))

	query, args, err := qb.Build(`
		INSERT INTO transactions (` + transactionColumns + `)
		VALUES (@id, @portfolio_id, @sequence, @symbol, @type, @quantity, @price, @amount, @executed_at)
	`)
	if err != nil {
		return err
	}

	if _, err := q.ExecContext(ctx, query, args...); err != nil {
		if database.IsUniqueViolation(err) {
			return store.ErrVersionConflict
		}
		return fmt.Errorf("append transaction: %w", err)
	}
	return nil
}

// ListFor returns one page of the log, newest first. page starts at 1.
func (l *TransactionLog) ListFor(ctx context.Context, portfolioID uuid.UUID, page, pageSize int) ([]models.Transaction, error) {
	limit := database.SafeLimit(pageSize)
	if page < 1 {
		page = 1
	}
	return l.list(ctx, portfolioID, (page-1)*limit, limit)
}

// All returns the complete log oldest first.
func (l *TransactionLog) All(ctx context.Context, portfolioID uuid.UUID) ([]models.Transaction, error) {
	qb := l.db.NewQueryBuilder()
	qb.AddParam("portfolio_id", portfolioID)

	query, args, err := qb.Build(`
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE portfolio_id = @portfolio_id
		ORDER BY sequence ASC
	`)
	if err != nil {
		return nil, err
	}
	return l.query(ctx, query, args)
}

func (l *TransactionLog) list(ctx context.Context, portfolioID uuid.UUID, offset, limit int) ([]models.Transaction, error) {
	qb := l.db.NewQueryBuilder()
	qb.AddParam("portfolio_id", portfolioID)
	qb.AddParam("limit", limit)
	qb.AddParam("offset", database.SafeOffset(offset))

	query, args, err := qb.Build(`
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE portfolio_id = @portfolio_id
		ORDER BY sequence DESC
		LIMIT @limit OFFSET @offset
	`)
	if err != nil {
		return nil, err
	}
	return l.query(ctx, query, args)
}

func (l *TransactionLog) query(ctx context.Context, query string, args []interface{}) ([]models.Transaction, error) {
	rows, err := l.db.QuerySafe(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	transactions := []models.Transaction{}
	for rows.Next() {
		var (
			t          models.Transaction
			tradeType  string
			executedAt int64
		)
		err := rows.Scan(
			&t.ID,
			&t.PortfolioID,
			&t.Sequence,
			&t.Symbol,
			&tradeType,
			&t.Quantity,
			&t.Price,
			&t.Amount,
			&executedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		t.Type = models.TradeType(tradeType)
		t.ExecutedAt = fromMicros(executedAt)
		transactions = append(transactions, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return transactions, nil
}
