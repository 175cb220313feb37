package cache

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWarmerRefreshesWatchlist(t *testing.T) {
	clock := newFakeClock()
	p := newFakeProvider(map[string]string{"AAPL": "150.00", "MSFT": "300.00"})
	c := newTestCache(p, clock, Options{})

	w := NewWarmer(c, []string{"AAPL", "MSFT"}, 5*time.Millisecond, nil)

	done := make(chan error, 1)
	go func() { done <- w.Start(context.Background()) }()

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&p.calls) >= 2
	}, time.Second, time.Millisecond)

	// entries are still fresh, so further ticks do not reach upstream
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(2), atomic.LoadInt32(&p.calls))

	clock.Advance(TTL + time.Second)
	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&p.calls) >= 4
	}, time.Second, time.Millisecond)

	w.Stop()
	w.Stop()
	assert.NoError(t, <-done)

	q, err := c.Get(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, "150", q.Price.String())
}

func TestWarmerRefreshesBeforeExpiry(t *testing.T) {
	clock := newFakeClock()
	p := newFakeProvider(map[string]string{"AAPL": "150.00"})
	c := newTestCache(p, clock, Options{})

	w := NewWarmer(c, []string{"AAPL"}, 10*time.Millisecond, nil)
	defer w.Stop()
	go w.Start(context.Background())

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&p.calls) == 1
	}, time.Second, time.Millisecond)

	// the entry expires before the next tick would come round
	clock.Advance(TTL - 5*time.Millisecond)

	require.Eventually(t, func() bool {
		q, err := c.Get(context.Background(), "AAPL")
		return err == nil && q.ExpiresAt.Equal(clock.Now().Add(TTL))
	}, time.Second, time.Millisecond)
	assert.Equal(t, int32(2), atomic.LoadInt32(&p.calls))
}

func TestWarmerStopsWithContext(t *testing.T) {
	p := newFakeProvider(map[string]string{})
	c := newTestCache(p, newFakeClock(), Options{})
	w := NewWarmer(c, []string{"NOPE"}, time.Millisecond, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	assert.ErrorIs(t, w.Start(ctx), context.DeadlineExceeded)
	assert.Positive(t, atomic.LoadInt32(&p.calls))
}

func TestWarmerWithoutSymbolsReturns(t *testing.T) {
	w := NewWarmer(nil, nil, time.Second, nil)
	assert.NoError(t, w.Start(context.Background()))
}
