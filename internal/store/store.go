// Package store defines the persistence contract the ledger depends on.
package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/shyamanurag/stock-trading-app-sub000/internal/models"
)

var (
	// ErrNotFound means no portfolio matched the lookup.
	ErrNotFound = errors.New("portfolio not found")

	// ErrOwnerExists means the owner already has a portfolio.
	ErrOwnerExists = errors.New("portfolio already exists for owner")

	// ErrVersionConflict means the portfolio changed after it was read.
	ErrVersionConflict = errors.New("portfolio version conflict")
)

// Mutation is the complete effect of one trade. It is applied only if the
// stored portfolio is still at ExpectedVersion; the new version is
// ExpectedVersion+1 and equals Transaction.Sequence.
type Mutation struct {
	PortfolioID     uuid.UUID
	ExpectedVersion int64
	CashBalance     decimal.Decimal

	// Exactly one of Upsert or Delete is set.
	Upsert *models.Position
	Delete string

	Transaction models.Transaction
}

// Store persists portfolios, positions and the transaction log. Apply must
// be all-or-nothing.
type Store interface {
	CreatePortfolio(ctx context.Context, p *models.Portfolio) error
	GetPortfolio(ctx context.Context, id uuid.UUID) (*models.Portfolio, error)
	GetPortfolioByOwner(ctx context.Context, ownerID uuid.UUID) (*models.Portfolio, error)
	Apply(ctx context.Context, m Mutation) error

	// ListTransactions returns the log newest first.
	ListTransactions(ctx context.Context, portfolioID uuid.UUID, offset, limit int) ([]models.Transaction, error)
	// AllTransactions returns the full log oldest first.
	AllTransactions(ctx context.Context, portfolioID uuid.UUID) ([]models.Transaction, error)
}
