package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"

	apperrors "github.com/shyamanurag/stock-trading-app-sub000/internal/errors"
	"github.com/shyamanurag/stock-trading-app-sub000/internal/models"
)

// applyTrade applies t to p in place using average-cost accounting. It is
// the only place cash and positions change, for live trades and replay
// alike. p is left untouched when an error is returned.
func applyTrade(p *models.Portfolio, t models.Transaction, currency string) error {
	pos, idx := p.FindPosition(t.Symbol)

	switch t.Type {
	case models.TradeBuy:
		if t.Amount.GreaterThan(p.CashBalance) {
			return apperrors.NewInsufficientFundsError(
				models.FormatMoney(t.Amount, currency),
				models.FormatMoney(p.CashBalance, currency),
			)
		}
		p.CashBalance = p.CashBalance.Sub(t.Amount)

		if pos == nil {
			p.Positions = append(p.Positions, models.Position{
				Symbol:      t.Symbol,
				Quantity:    t.Quantity,
				AverageCost: t.Price,
				UpdatedAt:   t.ExecutedAt,
			})
			models.SortPositions(p.Positions)
		} else {
			pos.AverageCost = models.WeightedAverage(pos.Quantity, pos.AverageCost, t.Quantity, t.Price)
			pos.Quantity = pos.Quantity.Add(t.Quantity)
			pos.UpdatedAt = t.ExecutedAt
		}

	case models.TradeSell:
		if pos == nil {
			return apperrors.NewPositionNotFoundError(t.Symbol)
		}
		if t.Quantity.GreaterThan(pos.Quantity) {
			return apperrors.NewInsufficientSharesError(
				t.Symbol,
				models.FormatQuantity(t.Quantity),
				models.FormatQuantity(pos.Quantity),
			)
		}
		p.CashBalance = p.CashBalance.Add(t.Amount)

		remaining := pos.Quantity.Sub(t.Quantity)
		if remaining.IsZero() {
			p.Positions = append(p.Positions[:idx], p.Positions[idx+1:]...)
		} else {
			pos.Quantity = remaining
			pos.UpdatedAt = t.ExecutedAt
		}

	default:
		return fmt.Errorf("unknown trade type %q", t.Type)
	}

	p.Version = t.Sequence
	p.UpdatedAt = t.ExecutedAt
	return nil
}

// tradeAmount is quantity*price, rejected if it cannot be held in cents.
func tradeAmount(quantity, price decimal.Decimal) (decimal.Decimal, error) {
	amount := quantity.Mul(price)
	if !models.Fits(amount, models.CurrencyPlaces) {
		return decimal.Zero, apperrors.NewInvalidQuantityError(fmt.Sprintf(
			"trade amount %s x %s = %s cannot be settled in whole cents",
			models.FormatQuantity(quantity), price.StringFixed(models.CurrencyPlaces), amount.String(),
		))
	}
	return amount, nil
}

// Replay rebuilds cash and positions from the initial balance and the full
// log, oldest first. Sequences must run 1..n without gaps.
func Replay(initialCash decimal.Decimal, transactions []models.Transaction) (*models.Portfolio, error) {
	return replay(initialCash, transactions, models.DefaultCurrency)
}

func replay(initialCash decimal.Decimal, transactions []models.Transaction, currency string) (*models.Portfolio, error) {
	p := &models.Portfolio{
		CashBalance: initialCash,
		InitialCash: initialCash,
		Positions:   []models.Position{},
	}

	for i, t := range transactions {
		if want := int64(i + 1); t.Sequence != want {
			return nil, fmt.Errorf("transaction log gap: expected sequence %d, found %d", want, t.Sequence)
		}
		if err := applyTrade(p, t, currency); err != nil {
			return nil, fmt.Errorf("replay sequence %d: %w", t.Sequence, err)
		}
	}

	return p, nil
}
