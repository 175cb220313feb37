package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/shyamanurag/stock-trading-app-sub000/internal/database"
	"github.com/shyamanurag/stock-trading-app-sub000/internal/models"
	"github.com/shyamanurag/stock-trading-app-sub000/internal/store"
)

// Store is the relational implementation of store.Store.
type Store struct {
	db           *database.DB
	portfolios   *PortfolioRepository
	positions    *PositionRepository
	transactions *TransactionLog
}

var _ store.Store = (*Store)(nil)

func NewStore(db *database.DB) *Store {
	return &Store{
		db:           db,
		portfolios:   NewPortfolioRepository(db),
		positions:    NewPositionRepository(db),
		transactions: NewTransactionLog(db),
	}
}

func (s *Store) CreatePortfolio(ctx context.Context, p *models.Portfolio) error {
	return s.portfolios.Create(ctx, p)
}

func (s *Store) GetPortfolio(ctx context.Context, id uuid.UUID) (*models.Portfolio, error) {
	return s.load(ctx, func(tx *sql.Tx) (*models.Portfolio, error) {
		return s.portfolios.GetByID(ctx, tx, id)
	})
}

func (s *Store) GetPortfolioByOwner(ctx context.Context, ownerID uuid.UUID) (*models.Portfolio, error) {
	return s.load(ctx, func(tx *sql.Tx) (*models.Portfolio, error) {
		return s.portfolios.GetByOwner(ctx, tx, ownerID)
	})
}

// load reads the portfolio row and its positions in one read transaction,
// so the balance and the positions always belong to the same version.
func (s *Store) load(ctx context.Context, row func(*sql.Tx) (*models.Portfolio, error)) (*models.Portfolio, error) {
	var p *models.Portfolio
	err := s.db.WithReadTransaction(ctx, func(tx *sql.Tx) error {
		var err error
		if p, err = row(tx); err != nil {
			return err
		}
		p.Positions, err = s.positions.ListFor(ctx, tx, p.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Apply writes the balance, the position change and the log entry in one
// database transaction. The version-guarded update runs first so a stale
// writer fails before touching anything else.
func (s *Store) Apply(ctx context.Context, m store.Mutation) error {
	return s.db.WithTransaction(ctx, func(tx *sql.Tx) error {
		err := s.portfolios.UpdateBalance(ctx, tx, m.PortfolioID, m.ExpectedVersion, m.CashBalance, toMicros(m.Transaction.ExecutedAt))
		if err != nil {
			return err
		}

		switch {
		case m.Upsert != nil:
			err = s.positions.Upsert(ctx, tx, m.PortfolioID, *m.Upsert)
		case m.Delete != "":
			err = s.positions.Delete(ctx, tx, m.PortfolioID, m.Delete)
		default:
			err = fmt.Errorf("mutation for %s changes no position", m.PortfolioID)
		}
		if err != nil {
			return err
		}

		return s.transactions.Append(ctx, tx, m.Transaction)
	})
}

func (s *Store) ListTransactions(ctx context.Context, portfolioID uuid.UUID, offset, limit int) ([]models.Transaction, error) {
	return s.transactions.list(ctx, portfolioID, offset, limit)
}

func (s *Store) AllTransactions(ctx context.Context, portfolioID uuid.UUID) ([]models.Transaction, error) {
	return s.transactions.All(ctx, portfolioID)
}
