package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	apperrors "github.com/shyamanurag/stock-trading-app-sub000/internal/errors"
	"github.com/shyamanurag/stock-trading-app-sub000/internal/models"
	"github.com/shyamanurag/stock-trading-app-sub000/internal/store"
	"github.com/shyamanurag/stock-trading-app-sub000/internal/validator"
)

// Buy purchases quantity shares of symbol at the current quote.
func (l *Ledger) Buy(ctx context.Context, portfolioID uuid.UUID, symbol string, quantity decimal.Decimal) (*models.TradeResult, error) {
	return l.trade(ctx, models.TradeBuy, portfolioID, symbol, quantity)
}

// Sell disposes of quantity shares of symbol at the current quote. Selling
// the whole position removes it.
func (l *Ledger) Sell(ctx context.Context, portfolioID uuid.UUID, symbol string, quantity decimal.Decimal) (*models.TradeResult, error) {
	return l.trade(ctx, models.TradeSell, portfolioID, symbol, quantity)
}

func (l *Ledger) trade(ctx context.Context, tradeType models.TradeType, portfolioID uuid.UUID, symbol string, quantity decimal.Decimal) (*models.TradeResult, error) {
	start := time.Now()
	symbol = validator.NormalizeSymbol(symbol)

	result, err := l.executeWithRetry(ctx, tradeType, portfolioID, symbol, quantity)

	outcome := "executed"
	price := ""
	if err != nil {
		outcome = apperrors.FromError(err).ErrorCode
	} else {
		price = result.Transaction.Price.StringFixed(models.CurrencyPlaces)
	}
	l.metrics.ObserveTrade(string(tradeType), outcome, time.Since(start))
	l.log.WithContext(ctx).LogTrade(portfolioID.String(), string(tradeType), symbol, quantity.String(), price, err)

	if err == nil && l.observer != nil {
		l.observer.TradeExecuted(ctx, result)
	}
	return result, err
}

// executeWithRetry repeats an attempt that lost an optimistic version race,
// with backoff. Business rejections and storage faults return at once.
func (l *Ledger) executeWithRetry(ctx context.Context, tradeType models.TradeType, portfolioID uuid.UUID, symbol string, quantity decimal.Decimal) (*models.TradeResult, error) {
	v := validator.New()
	v.ValidateQuantity(quantity)
	if !v.Valid() {
		return nil, apperrors.NewInvalidQuantityError(v.Error())
	}
	v.ValidateSymbol(symbol)
	if !v.Valid() {
		return nil, apperrors.NewValidationError(v.Error(), nil)
	}

	for attempt := 0; ; attempt++ {
		result, err := l.execute(ctx, tradeType, portfolioID, symbol, quantity)
		if !errors.Is(err, store.ErrVersionConflict) {
			return result, err
		}
		if attempt >= l.maxRetries {
			return nil, apperrors.NewConcurrentModificationError(portfolioID.String(), err)
		}

		l.log.WithContext(ctx).Debugw("Retrying trade after version conflict",
			"portfolio_id", portfolioID.String(),
			"attempt", attempt+1,
		)

		timer := time.NewTimer(retryBackoff(attempt))
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil, apperrors.NewConcurrentModificationError(portfolioID.String(), ctx.Err())
		}
	}
}

// execute performs one attempt. The quote is resolved before the portfolio
// lock is taken so the lock only covers load, check and write.
func (l *Ledger) execute(ctx context.Context, tradeType models.TradeType, portfolioID uuid.UUID, symbol string, quantity decimal.Decimal) (*models.TradeResult, error) {
	quote, err := l.resolveQuote(ctx, symbol)
	if err != nil {
		return nil, err
	}

	amount, err := tradeAmount(quantity, quote.Price)
	if err != nil {
		return nil, err
	}

	release, err := l.locks.acquire(ctx, portfolioID, l.lockTimeout)
	if err != nil {
		return nil, apperrors.NewConcurrentModificationError(portfolioID.String(), err)
	}
	defer release()

	current, err := l.store.GetPortfolio(ctx, portfolioID)
	if err != nil {
		return nil, l.loadError(err, portfolioID.String())
	}

	now := l.now().UTC()
	tx := models.Transaction{
		ID:          uuid.New(),
		PortfolioID: portfolioID,
		Sequence:    current.Version + 1,
		Symbol:      symbol,
		Type:        tradeType,
		Quantity:    quantity,
		Price:       quote.Price,
		Amount:      amount,
		ExecutedAt:  now,
	}

	next := current.Clone()
	if err := applyTrade(next, tx, l.currency); err != nil {
		return nil, err
	}

	m := store.Mutation{
		PortfolioID:     portfolioID,
		ExpectedVersion: current.Version,
		CashBalance:     next.CashBalance,
		Transaction:     tx,
	}
	position, _ := next.FindPosition(symbol)
	if position != nil {
		upsert := *position
		m.Upsert = &upsert
	} else {
		m.Delete = symbol
	}

	if err := l.store.Apply(ctx, m); err != nil {
		if errors.Is(err, store.ErrVersionConflict) {
			return nil, err
		}
		return nil, apperrors.NewStorageFaultError("apply trade", err)
	}

	result := &models.TradeResult{
		Portfolio:   next,
		Transaction: &tx,
	}
	if m.Upsert != nil {
		pos := *m.Upsert
		result.Position = &pos
	}
	return result, nil
}

// resolveQuote returns an execution-grade quote. Stale quotes are never
// traded on, whatever the cache's display policy.
func (l *Ledger) resolveQuote(ctx context.Context, symbol string) (models.Quote, error) {
	q, err := l.quotes.Get(ctx, symbol)
	if err != nil {
		if apperrors.KindOf(err) == apperrors.ErrorTypeQuoteUnavailable {
			return models.Quote{}, err
		}
		return models.Quote{}, apperrors.NewQuoteUnavailableError(symbol, err)
	}
	if q.Stale {
		return models.Quote{}, apperrors.NewQuoteUnavailableError(symbol, errors.New("quote is stale"))
	}
	return q, nil
}
