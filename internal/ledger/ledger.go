// Package ledger executes paper trades against portfolios and keeps cash,
// positions and the transaction log consistent.
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	apperrors "github.com/shyamanurag/stock-trading-app-sub000/internal/errors"
	"github.com/shyamanurag/stock-trading-app-sub000/internal/logger"
	"github.com/shyamanurag/stock-trading-app-sub000/internal/models"
	"github.com/shyamanurag/stock-trading-app-sub000/internal/monitoring"
	"github.com/shyamanurag/stock-trading-app-sub000/internal/store"
	"github.com/shyamanurag/stock-trading-app-sub000/internal/validator"
)

const (
	DefaultLockTimeout = 2 * time.Second
	DefaultMaxRetries  = 3
	DefaultPageSize    = 20
	MaxPageSize        = 100
)

// QuoteSource prices trades and valuations. Get must only return quotes
// that are fit for execution; GetForDisplay may return stale ones.
type QuoteSource interface {
	Get(ctx context.Context, symbol string) (models.Quote, error)
	GetForDisplay(ctx context.Context, symbols []string) map[string]models.Quote
}

// TradeObserver hears about every trade once it is committed.
type TradeObserver interface {
	TradeExecuted(ctx context.Context, result *models.TradeResult)
}

type Config struct {
	StartingBalance decimal.Decimal
	Currency        string
	LockTimeout     time.Duration
	MaxRetries      int
	Observer        TradeObserver

	Clock   func() time.Time
	Logger  *logger.Logger
	Metrics *monitoring.Metrics
}

type Ledger struct {
	store  store.Store
	quotes QuoteSource
	locks  *lockTable

	startingBalance decimal.Decimal
	currency        string
	lockTimeout     time.Duration
	maxRetries      int
	observer        TradeObserver

	now     func() time.Time
	log     *logger.Logger
	metrics *monitoring.Metrics
}

func New(s store.Store, quotes QuoteSource, cfg Config) *Ledger {
	l := &Ledger{
		store:           s,
		quotes:          quotes,
		locks:           newLockTable(),
		startingBalance: cfg.StartingBalance,
		currency:        cfg.Currency,
		lockTimeout:     cfg.LockTimeout,
		maxRetries:      cfg.MaxRetries,
		observer:        cfg.Observer,
		now:             cfg.Clock,
		log:             cfg.Logger,
		metrics:         cfg.Metrics,
	}
	if l.currency == "" {
		l.currency = models.DefaultCurrency
	}
	if l.lockTimeout <= 0 {
		l.lockTimeout = DefaultLockTimeout
	}
	if l.maxRetries < 0 {
		l.maxRetries = 0
	}
	if l.now == nil {
		l.now = time.Now
	}
	if l.log == nil {
		l.log = logger.NewNop()
	}
	return l
}

// OpenPortfolio creates the owner's demo portfolio funded with the
// configured starting balance. Each owner gets at most one.
func (l *Ledger) OpenPortfolio(ctx context.Context, ownerID uuid.UUID) (*models.Portfolio, error) {
	now := l.now().UTC()
	p := &models.Portfolio{
		ID:          uuid.New(),
		OwnerID:     ownerID,
		CashBalance: l.startingBalance,
		InitialCash: l.startingBalance,
		Positions:   []models.Position{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := l.store.CreatePortfolio(ctx, p); err != nil {
		if errors.Is(err, store.ErrOwnerExists) {
			return nil, apperrors.NewPortfolioExistsError(ownerID.String())
		}
		return nil, apperrors.NewStorageFaultError("create portfolio", err)
	}

	l.log.WithContext(ctx).Infow("Portfolio opened",
		"portfolio_id", p.ID.String(),
		"owner_id", ownerID.String(),
		"cash_balance", p.CashBalance.StringFixed(models.CurrencyPlaces),
	)
	return p, nil
}

func (l *Ledger) Portfolio(ctx context.Context, id uuid.UUID) (*models.Portfolio, error) {
	p, err := l.store.GetPortfolio(ctx, id)
	if err != nil {
		return nil, l.loadError(err, id.String())
	}
	return p, nil
}

func (l *Ledger) PortfolioForOwner(ctx context.Context, ownerID uuid.UUID) (*models.Portfolio, error) {
	p, err := l.store.GetPortfolioByOwner(ctx, ownerID)
	if err != nil {
		return nil, l.loadError(err, "owner "+ownerID.String())
	}
	return p, nil
}

// Transactions returns one page of the log, newest first. page starts at
// 1; pageSize 0 means DefaultPageSize.
func (l *Ledger) Transactions(ctx context.Context, id uuid.UUID, page, pageSize int) (*models.TransactionPage, error) {
	if pageSize == 0 {
		pageSize = DefaultPageSize
	}

	v := validator.New()
	v.Check(page >= 1, "page", "must be at least 1")
	v.Check(pageSize >= 1 && pageSize <= MaxPageSize, "page_size", "must be between 1 and 100")
	if !v.Valid() {
		return nil, apperrors.NewValidationError(v.Error(), nil)
	}

	if _, err := l.Portfolio(ctx, id); err != nil {
		return nil, err
	}

	txs, err := l.store.ListTransactions(ctx, id, (page-1)*pageSize, pageSize)
	if err != nil {
		return nil, apperrors.NewStorageFaultError("list transactions", err)
	}

	return &models.TransactionPage{
		Transactions: txs,
		Page:         page,
		PageSize:     pageSize,
	}, nil
}

// Valuation prices every position with display quotes. Stale quotes are
// used and flagged; positions with no quote at all are left unpriced.
func (l *Ledger) Valuation(ctx context.Context, id uuid.UUID) (*models.Valuation, error) {
	p, err := l.Portfolio(ctx, id)
	if err != nil {
		return nil, err
	}
	return l.value(ctx, p), nil
}

func (l *Ledger) value(ctx context.Context, p *models.Portfolio) *models.Valuation {
	symbols := make([]string, len(p.Positions))
	for i, pos := range p.Positions {
		symbols[i] = pos.Symbol
	}

	var quotes map[string]models.Quote
	if len(symbols) > 0 {
		quotes = l.quotes.GetForDisplay(ctx, symbols)
	}

	v := &models.Valuation{
		Portfolio:  p,
		Positions:  make([]models.PositionView, 0, len(p.Positions)),
		TotalValue: p.CashBalance,
		Complete:   true,
	}

	for _, pos := range p.Positions {
		view := models.PositionView{Position: pos}
		if q, ok := quotes[pos.Symbol]; ok {
			price := q.Price
			marketValue := pos.Quantity.Mul(price).RoundBank(models.CurrencyPlaces)
			costBasis := pos.Quantity.Mul(pos.AverageCost)
			pl := marketValue.Sub(costBasis).RoundBank(models.CurrencyPlaces)

			view.Price = &price
			view.MarketValue = &marketValue
			view.UnrealizedPL = &pl
			view.QuoteStale = q.Stale
			v.TotalValue = v.TotalValue.Add(marketValue)
		} else {
			v.Complete = false
		}
		v.Positions = append(v.Positions, view)
	}

	return v
}

func (l *Ledger) loadError(err error, key string) error {
	if errors.Is(err, store.ErrNotFound) {
		return apperrors.NewPortfolioNotFoundError(key)
	}
	return apperrors.NewStorageFaultError("load portfolio", err)
}
