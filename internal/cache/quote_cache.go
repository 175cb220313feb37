package cache

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	apperrors "github.com/shyamanurag/stock-trading-app-sub000/internal/errors"
	"github.com/shyamanurag/stock-trading-app-sub000/internal/logger"
	"github.com/shyamanurag/stock-trading-app-sub000/internal/marketdata"
	"github.com/shyamanurag/stock-trading-app-sub000/internal/models"
	"github.com/shyamanurag/stock-trading-app-sub000/internal/monitoring"
)

const (
	// TTL is how long a fetched price is served without asking upstream.
	TTL = 60 * time.Second

	DefaultFetchTimeout = 5 * time.Second

	// parallel single fetches when the provider has no batch endpoint
	fetchConcurrency = 8
)

type Options struct {
	FetchTimeout time.Duration

	// ServeStaleOnError returns an expired entry, flagged Stale, when the
	// refresh fails. Off by default: a failed refresh is QuoteUnavailable.
	ServeStaleOnError bool

	// Store is an optional shared layer behind the in-process map.
	Store SnapshotStore

	Clock   func() time.Time
	Logger  *logger.Logger
	Metrics *monitoring.Metrics
}

// QuoteCache serves prices from memory for TTL after each successful fetch
// and collapses concurrent refreshes of a symbol into one upstream call.
type QuoteCache struct {
	provider     marketdata.Provider
	store        SnapshotStore
	fetchTimeout time.Duration
	serveStale   bool
	now          func() time.Time
	log          *logger.Logger
	metrics      *monitoring.Metrics

	mu      sync.RWMutex
	entries map[string]Entry

	flightMu sync.Mutex
	flights  map[string]*flight
}

// flight is one in-progress upstream refresh of a symbol. Whoever claims it
// fetches; everyone else waits on done and shares the result.
type flight struct {
	done  chan struct{}
	entry Entry
	err   error
}

func (f *flight) wait(ctx context.Context) (Entry, error) {
	select {
	case <-f.done:
		return f.entry, f.err
	case <-ctx.Done():
		return Entry{}, ctx.Err()
	}
}

func NewQuoteCache(provider marketdata.Provider, opts Options) *QuoteCache {
	c := &QuoteCache{
		provider:     provider,
		store:        opts.Store,
		fetchTimeout: opts.FetchTimeout,
		serveStale:   opts.ServeStaleOnError,
		now:          opts.Clock,
		log:          opts.Logger,
		metrics:      opts.Metrics,
		entries:      make(map[string]Entry),
		flights:      make(map[string]*flight),
	}
	if c.fetchTimeout <= 0 {
		c.fetchTimeout = DefaultFetchTimeout
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.log == nil {
		c.log = logger.NewNop()
	}
	return c
}

// Get returns a fresh quote for symbol, fetching it if needed. Without the
// stale policy the result is never older than TTL.
func (c *QuoteCache) Get(ctx context.Context, symbol string) (models.Quote, error) {
	if entry, ok := c.lookup(ctx, symbol); ok && c.fresh(entry) {
		c.metrics.ObserveCacheRequest("hit")
		return c.quote(entry), nil
	}
	c.metrics.ObserveCacheRequest("miss")

	entry, err := c.fetchOne(ctx, symbol)
	if err == nil {
		return c.quote(entry), nil
	}

	if c.serveStale {
		if q, ok := c.staleQuote(ctx, symbol); ok {
			return q, nil
		}
	}
	return models.Quote{}, apperrors.NewQuoteUnavailableError(symbol, err)
}

// GetBatch returns quotes for every symbol it could price. Fresh symbols
// come from memory; the rest are fetched together. If any symbol is left
// without a quote the error lists them and the map holds the others.
func (c *QuoteCache) GetBatch(ctx context.Context, symbols []string) (map[string]models.Quote, error) {
	return c.getBatch(ctx, symbols, 0, c.serveStale)
}

// Refresh is GetBatch that also refetches entries expiring within horizon,
// so a periodic caller can keep symbols fresh without gaps.
func (c *QuoteCache) Refresh(ctx context.Context, symbols []string, horizon time.Duration) (map[string]models.Quote, error) {
	return c.getBatch(ctx, symbols, horizon, c.serveStale)
}

// GetForDisplay is GetBatch with stale entries always allowed. Symbols that
// have never been priced are absent from the result.
func (c *QuoteCache) GetForDisplay(ctx context.Context, symbols []string) map[string]models.Quote {
	quotes, err := c.getBatch(ctx, symbols, 0, true)
	if err != nil {
		c.log.WithContext(ctx).Debugw("Display quotes incomplete", "error", err)
	}
	return quotes
}

// Invalidate drops symbol from every layer so the next Get refetches.
func (c *QuoteCache) Invalidate(ctx context.Context, symbol string) error {
	c.mu.Lock()
	delete(c.entries, symbol)
	c.mu.Unlock()

	if c.store != nil {
		return c.store.Delete(ctx, symbol)
	}
	return nil
}

func (c *QuoteCache) getBatch(ctx context.Context, symbols []string, horizon time.Duration, allowStale bool) (map[string]models.Quote, error) {
	quotes := make(map[string]models.Quote, len(symbols))
	var missing []string

	for _, symbol := range uniqueSymbols(symbols) {
		if entry, ok := c.lookup(ctx, symbol); ok && c.freshFor(entry, horizon) {
			c.metrics.ObserveCacheRequest("hit")
			quotes[symbol] = c.quote(entry)
			continue
		}
		c.metrics.ObserveCacheRequest("miss")
		missing = append(missing, symbol)
	}

	if len(missing) == 0 {
		return quotes, nil
	}

	fetched, errs := c.fetchMany(ctx, missing, horizon)

	var unavailable []string
	var cause error
	for _, symbol := range missing {
		if entry, ok := fetched[symbol]; ok {
			quotes[symbol] = c.quote(entry)
			continue
		}
		if allowStale {
			if q, ok := c.staleQuote(ctx, symbol); ok {
				quotes[symbol] = q
				continue
			}
		}
		unavailable = append(unavailable, symbol)
		if cause == nil {
			cause = errs[symbol]
		}
	}

	if len(unavailable) > 0 {
		return quotes, apperrors.NewQuoteUnavailableError(strings.Join(unavailable, ","), cause)
	}
	return quotes, nil
}

// claim returns the flight for symbol and whether the caller started it.
// The starter must land it.
func (c *QuoteCache) claim(symbol string) (*flight, bool) {
	c.flightMu.Lock()
	defer c.flightMu.Unlock()

	if f, ok := c.flights[symbol]; ok {
		return f, false
	}
	f := &flight{done: make(chan struct{})}
	c.flights[symbol] = f
	return f, true
}

func (c *QuoteCache) land(symbol string, f *flight, entry Entry, err error) {
	f.entry, f.err = entry, err

	c.flightMu.Lock()
	delete(c.flights, symbol)
	c.flightMu.Unlock()

	close(f.done)
}

// fetchOne refreshes a single symbol, joining the flight already under way
// if there is one. The upstream call runs on its own deadline so one caller
// giving up does not fail the others waiting on the same flight.
func (c *QuoteCache) fetchOne(ctx context.Context, symbol string) (Entry, error) {
	f, owner := c.claim(symbol)
	if owner {
		go c.refreshOne(symbol, f, 0)
	}
	return f.wait(ctx)
}

func (c *QuoteCache) refreshOne(symbol string, f *flight, horizon time.Duration) {
	fctx, cancel := context.WithTimeout(context.Background(), c.fetchTimeout)
	defer cancel()

	// a flight that started after another one landed finds the entry here
	if entry, ok := c.lookup(fctx, symbol); ok && c.freshFor(entry, horizon) {
		c.land(symbol, f, entry, nil)
		return
	}

	start := time.Now()
	q, err := c.provider.FetchQuote(fctx, symbol)
	c.observeFetch([]string{symbol}, start, err)
	if err != nil {
		c.land(symbol, f, Entry{}, err)
		return
	}
	entry, err := c.admit(fctx, symbol, q)
	c.land(symbol, f, entry, err)
}

// fetchMany claims a flight per symbol. Symbols already in flight, whether
// from Get or another batch, are waited on; only the rest go upstream, in
// one batch call when the provider has one.
func (c *QuoteCache) fetchMany(ctx context.Context, symbols []string, horizon time.Duration) (map[string]Entry, map[string]error) {
	bp, ok := c.provider.(marketdata.BatchProvider)
	if !ok {
		return c.fetchParallel(ctx, symbols, horizon)
	}

	flights := make(map[string]*flight, len(symbols))
	owned := make(map[string]*flight)
	for _, symbol := range symbols {
		f, owner := c.claim(symbol)
		flights[symbol] = f
		if owner {
			owned[symbol] = f
		}
	}

	switch len(owned) {
	case 0:
	case 1:
		for symbol, f := range owned {
			go c.refreshOne(symbol, f, horizon)
		}
	default:
		go c.refreshBatch(bp, owned, horizon)
	}

	entries := make(map[string]Entry, len(symbols))
	errs := make(map[string]error)
	for _, symbol := range symbols {
		entry, err := flights[symbol].wait(ctx)
		if err != nil {
			errs[symbol] = err
			continue
		}
		entries[symbol] = entry
	}
	return entries, errs
}

// refreshBatch lands every flight in owned, fetching the ones that are
// still missing in a single upstream request.
func (c *QuoteCache) refreshBatch(bp marketdata.BatchProvider, owned map[string]*flight, horizon time.Duration) {
	fctx, cancel := context.WithTimeout(context.Background(), c.fetchTimeout)
	defer cancel()

	var stillMissing []string
	for symbol, f := range owned {
		if entry, ok := c.lookup(fctx, symbol); ok && c.freshFor(entry, horizon) {
			c.land(symbol, f, entry, nil)
			continue
		}
		stillMissing = append(stillMissing, symbol)
	}
	if len(stillMissing) == 0 {
		return
	}

	start := time.Now()
	quotes, err := bp.FetchBatch(fctx, stillMissing)
	c.observeFetch(stillMissing, start, err)

	for _, symbol := range stillMissing {
		f := owned[symbol]
		if err != nil {
			c.land(symbol, f, Entry{}, err)
			continue
		}
		q, ok := quotes[symbol]
		if !ok {
			c.land(symbol, f, Entry{}, marketdata.ErrSymbolNotFound)
			continue
		}
		entry, admitErr := c.admit(fctx, symbol, q)
		c.land(symbol, f, entry, admitErr)
	}
}

func (c *QuoteCache) fetchParallel(ctx context.Context, symbols []string, horizon time.Duration) (map[string]Entry, map[string]error) {
	var (
		mu      sync.Mutex
		entries = make(map[string]Entry, len(symbols))
		errs    = make(map[string]error)
	)

	var g errgroup.Group
	g.SetLimit(fetchConcurrency)
	for _, symbol := range symbols {
		symbol := symbol
		g.Go(func() error {
			f, owner := c.claim(symbol)
			if owner {
				go c.refreshOne(symbol, f, horizon)
			}
			entry, err := f.wait(ctx)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs[symbol] = err
			} else {
				entries[symbol] = entry
			}
			return nil
		})
	}
	g.Wait()

	return entries, errs
}

// admit normalises an upstream quote and stores it in every layer.
func (c *QuoteCache) admit(ctx context.Context, symbol string, q models.Quote) (Entry, error) {
	price := models.NormalizePrice(q.Price)
	if !price.IsPositive() {
		return Entry{}, fmt.Errorf("invalid price %s for %s", q.Price, symbol)
	}

	now := c.now()
	entry := Entry{
		Symbol:    symbol,
		Price:     price,
		Timestamp: q.Timestamp,
		FetchedAt: now,
		ExpiresAt: now.Add(TTL),
	}

	c.mu.Lock()
	c.entries[symbol] = entry
	c.mu.Unlock()

	if c.store != nil {
		if err := c.store.Save(ctx, entry); err != nil {
			c.log.Warnw("Quote snapshot save failed", "symbol", symbol, "error", err)
		}
	}

	return entry, nil
}

// lookup returns the newest entry known for symbol, fresh or not. The
// shared store is consulted only when memory has nothing fresh.
func (c *QuoteCache) lookup(ctx context.Context, symbol string) (Entry, bool) {
	c.mu.RLock()
	entry, ok := c.entries[symbol]
	c.mu.RUnlock()

	if (ok && c.fresh(entry)) || c.store == nil {
		return entry, ok
	}

	shared, found, err := c.store.Load(ctx, symbol)
	if err != nil {
		c.log.Warnw("Quote snapshot load failed", "symbol", symbol, "error", err)
		return entry, ok
	}
	if !found || (ok && !shared.FetchedAt.After(entry.FetchedAt)) {
		return entry, ok
	}

	c.mu.Lock()
	if cur, exists := c.entries[symbol]; !exists || shared.FetchedAt.After(cur.FetchedAt) {
		c.entries[symbol] = shared
	}
	c.mu.Unlock()

	return shared, true
}

func (c *QuoteCache) staleQuote(ctx context.Context, symbol string) (models.Quote, bool) {
	entry, ok := c.lookup(ctx, symbol)
	if !ok {
		return models.Quote{}, false
	}
	c.metrics.ObserveCacheRequest("stale")
	return c.quote(entry), true
}

func (c *QuoteCache) fresh(entry Entry) bool {
	return c.freshFor(entry, 0)
}

// freshFor reports whether entry will still be fresh horizon from now.
func (c *QuoteCache) freshFor(entry Entry, horizon time.Duration) bool {
	return c.now().Add(horizon).Before(entry.ExpiresAt)
}

func (c *QuoteCache) quote(entry Entry) models.Quote {
	return models.Quote{
		Symbol:    entry.Symbol,
		Price:     entry.Price,
		Timestamp: entry.Timestamp,
		FetchedAt: entry.FetchedAt,
		ExpiresAt: entry.ExpiresAt,
		Stale:     !c.fresh(entry),
	}
}

func (c *QuoteCache) observeFetch(symbols []string, start time.Time, err error) {
	duration := time.Since(start)
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	c.metrics.ObserveUpstreamFetch(c.provider.Name(), outcome, duration)
	c.log.LogQuoteFetch(c.provider.Name(), symbols, duration, err)
}

func uniqueSymbols(symbols []string) []string {
	seen := make(map[string]struct{}, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
