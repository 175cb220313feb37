package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	apperrors "github.com/shyamanurag/stock-trading-app-sub000/internal/errors"
	"github.com/shyamanurag/stock-trading-app-sub000/internal/models"
)

// AuditReport compares stored state with the state rebuilt from the log.
type AuditReport struct {
	PortfolioID   uuid.UUID         `json:"portfolio_id"`
	Transactions  int               `json:"transactions"`
	Consistent    bool              `json:"consistent"`
	Stored        *models.Portfolio `json:"stored"`
	Replayed      *models.Portfolio `json:"replayed,omitempty"`
	Discrepancies []string          `json:"discrepancies,omitempty"`
}

// Audit replays the portfolio's log from its initial cash and reports any
// difference from the stored cash, version and positions. It holds the
// portfolio lock so no trade lands between the two reads.
func (l *Ledger) Audit(ctx context.Context, id uuid.UUID) (*AuditReport, error) {
	release, err := l.locks.acquire(ctx, id, l.lockTimeout)
	if err != nil {
		return nil, apperrors.NewConcurrentModificationError(id.String(), err)
	}
	defer release()

	stored, err := l.Portfolio(ctx, id)
	if err != nil {
		return nil, err
	}

	txs, err := l.store.AllTransactions(ctx, id)
	if err != nil {
		return nil, apperrors.NewStorageFaultError("read transaction log", err)
	}

	report := &AuditReport{
		PortfolioID:  id,
		Transactions: len(txs),
		Stored:       stored,
	}

	replayed, err := replay(stored.InitialCash, txs, l.currency)
	if err != nil {
		report.Discrepancies = append(report.Discrepancies, err.Error())
		l.logAudit(ctx, report)
		return report, nil
	}
	report.Replayed = replayed
	report.Discrepancies = compareState(stored, replayed, int64(len(txs)))
	report.Consistent = len(report.Discrepancies) == 0

	l.logAudit(ctx, report)
	return report, nil
}

func (l *Ledger) logAudit(ctx context.Context, r *AuditReport) {
	log := l.log.WithContext(ctx)
	if r.Consistent {
		log.Infow("Portfolio audit passed", "portfolio_id", r.PortfolioID.String(), "transactions", r.Transactions)
		return
	}
	log.Errorw("Portfolio audit failed",
		"portfolio_id", r.PortfolioID.String(),
		"transactions", r.Transactions,
		"discrepancies", r.Discrepancies,
	)
}

func compareState(stored, replayed *models.Portfolio, logLength int64) []string {
	var diffs []string

	if !stored.CashBalance.Equal(replayed.CashBalance) {
		diffs = append(diffs, fmt.Sprintf("cash balance: stored %s, replayed %s",
			stored.CashBalance.StringFixed(models.CurrencyPlaces),
			replayed.CashBalance.StringFixed(models.CurrencyPlaces)))
	}
	if stored.Version != logLength {
		diffs = append(diffs, fmt.Sprintf("version %d does not match %d logged transactions", stored.Version, logLength))
	}

	for _, want := range replayed.Positions {
		got, _ := stored.FindPosition(want.Symbol)
		switch {
		case got == nil:
			diffs = append(diffs, fmt.Sprintf("%s: missing from stored positions", want.Symbol))
		case !got.Quantity.Equal(want.Quantity):
			diffs = append(diffs, fmt.Sprintf("%s quantity: stored %s, replayed %s", want.Symbol, got.Quantity, want.Quantity))
		case !got.AverageCost.Equal(want.AverageCost):
			diffs = append(diffs, fmt.Sprintf("%s average cost: stored %s, replayed %s", want.Symbol, got.AverageCost, want.AverageCost))
		}
	}
	for _, pos := range stored.Positions {
		if p, _ := replayed.FindPosition(pos.Symbol); p == nil {
			diffs = append(diffs, fmt.Sprintf("%s: stored position has no transactions behind it", pos.Symbol))
		}
	}

	return diffs
}
