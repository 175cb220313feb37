package store

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/shyamanurag/stock-trading-app-sub000/internal/models"
)

type memoryPortfolio struct {
	portfolio    *models.Portfolio
	transactions []models.Transaction
}

// MemoryStore keeps everything in process memory. Returned values are
// copies; callers never alias stored state.
type MemoryStore struct {
	mu      sync.RWMutex
	byID    map[uuid.UUID]*memoryPortfolio
	byOwner map[uuid.UUID]uuid.UUID
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:    make(map[uuid.UUID]*memoryPortfolio),
		byOwner: make(map[uuid.UUID]uuid.UUID),
	}
}

func (s *MemoryStore) CreatePortfolio(ctx context.Context, p *models.Portfolio) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byOwner[p.OwnerID]; exists {
		return ErrOwnerExists
	}

	s.byID[p.ID] = &memoryPortfolio{portfolio: p.Clone()}
	s.byOwner[p.OwnerID] = p.ID
	return nil
}

func (s *MemoryStore) GetPortfolio(ctx context.Context, id uuid.UUID) (*models.Portfolio, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return entry.portfolio.Clone(), nil
}

func (s *MemoryStore) GetPortfolioByOwner(ctx context.Context, ownerID uuid.UUID) (*models.Portfolio, error) {
	s.mu.RLock()
	id, ok := s.byOwner[ownerID]
	s.mu.RUnlock()

	if !ok {
		return nil, ErrNotFound
	}
	return s.GetPortfolio(ctx, id)
}

func (s *MemoryStore) Apply(ctx context.Context, m Mutation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.byID[m.PortfolioID]
	if !ok {
		return ErrNotFound
	}
	if entry.portfolio.Version != m.ExpectedVersion {
		return ErrVersionConflict
	}

	next := entry.portfolio.Clone()
	next.CashBalance = m.CashBalance
	next.Version = m.ExpectedVersion + 1
	next.UpdatedAt = m.Transaction.ExecutedAt

	switch {
	case m.Upsert != nil:
		if pos, _ := next.FindPosition(m.Upsert.Symbol); pos != nil {
			*pos = *m.Upsert
		} else {
			next.Positions = append(next.Positions, *m.Upsert)
			models.SortPositions(next.Positions)
		}
	case m.Delete != "":
		if _, idx := next.FindPosition(m.Delete); idx >= 0 {
			next.Positions = append(next.Positions[:idx], next.Positions[idx+1:]...)
		}
	}

	entry.portfolio = next
	entry.transactions = append(entry.transactions, m.Transaction)
	return nil
}

func (s *MemoryStore) ListTransactions(ctx context.Context, portfolioID uuid.UUID, offset, limit int) ([]models.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.byID[portfolioID]
	if !ok {
		return nil, ErrNotFound
	}

	n := len(entry.transactions)
	out := make([]models.Transaction, 0, limit)
	for i := n - 1 - offset; i >= 0 && len(out) < limit; i-- {
		out = append(out, entry.transactions[i])
	}
	return out, nil
}

func (s *MemoryStore) AllTransactions(ctx context.Context, portfolioID uuid.UUID) ([]models.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.byID[portfolioID]
	if !ok {
		return nil, ErrNotFound
	}

	out := make([]models.Transaction, len(entry.transactions))
	copy(out, entry.transactions)
	return out, nil
}
