package logger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func observed() (*Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return FromZap(zap.New(core)), logs
}

func TestLogTrade(t *testing.T) {
	l, logs := observed()

	l.LogTrade("p1", "BUY", "AAPL", "10", "150.00", nil)
	l.LogTrade("p1", "SELL", "MSFT", "1", "", errors.New("no position in MSFT"))

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "Trade executed", entries[0].Message)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, "AAPL", entries[0].ContextMap()["symbol"])

	assert.Equal(t, "Trade rejected", entries[1].Message)
	assert.Equal(t, "no position in MSFT", entries[1].ContextMap()["error"])
	_, hasPrice := entries[1].ContextMap()["price"]
	assert.False(t, hasPrice)
}

func TestWithContext(t *testing.T) {
	l, logs := observed()

	ctx := context.WithValue(context.Background(), RequestIDKey, "req-1")
	ctx = context.WithValue(ctx, UserIDKey, "user-9")
	l.WithContext(ctx).Info("hello")

	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "req-1", fields["request_id"])
	assert.Equal(t, "user-9", fields["user_id"])
}

func TestLogQuoteFetchFailure(t *testing.T) {
	l, logs := observed()
	l.LogQuoteFetch("http", []string{"AAPL", "MSFT"}, 20*time.Millisecond, errors.New("timeout"))

	entry := logs.All()[0]
	assert.Equal(t, zapcore.ErrorLevel, entry.Level)
	assert.Equal(t, "AAPL,MSFT", entry.ContextMap()["symbols"])
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(Config{Level: "loud"})
	assert.Error(t, err)

	l, err := New(Config{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, l)
}
