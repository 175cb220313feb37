package cache

import (
	"context"
	"sync"
	"time"

	"github.com/shyamanurag/stock-trading-app-sub000/internal/logger"
	"github.com/shyamanurag/stock-trading-app-sub000/internal/models"
)

type refresher interface {
	Refresh(ctx context.Context, symbols []string, horizon time.Duration) (map[string]models.Quote, error)
}

// Warmer keeps a watchlist of symbols fresh by refreshing it through the
// cache every interval. Entries that would expire before the next tick are
// refetched early, so with an interval shorter than TTL a watched symbol is
// never expired when a trade asks for it, barring upstream failures.
type Warmer struct {
	quotes   refresher
	symbols  []string
	interval time.Duration
	log      *logger.Logger

	stopOnce sync.Once
	stopChan chan struct{}
}

func NewWarmer(quotes refresher, symbols []string, interval time.Duration, log *logger.Logger) *Warmer {
	if log == nil {
		log = logger.NewNop()
	}
	return &Warmer{
		quotes:   quotes,
		symbols:  symbols,
		interval: interval,
		log:      log,
		stopChan: make(chan struct{}),
	}
}

// Start warms once immediately and then on every tick until ctx is done
// or Stop is called.
func (w *Warmer) Start(ctx context.Context) error {
	if len(w.symbols) == 0 || w.interval <= 0 {
		return nil
	}

	w.warm(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stopChan:
			return nil
		case <-ticker.C:
			w.warm(ctx)
		}
	}
}

func (w *Warmer) Stop() {
	w.stopOnce.Do(func() { close(w.stopChan) })
}

func (w *Warmer) warm(ctx context.Context) {
	quotes, err := w.quotes.Refresh(ctx, w.symbols, w.interval)
	if err != nil {
		w.log.WithContext(ctx).Warnw("Quote warm-up incomplete",
			"warmed", len(quotes),
			"symbols", len(w.symbols),
			"error", err,
		)
		return
	}
	w.log.WithContext(ctx).Debugw("Quotes warmed", "symbols", len(quotes))
}
