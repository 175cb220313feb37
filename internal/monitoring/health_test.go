package monitoring

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthAggregation(t *testing.T) {
	hc := NewHealthChecker(time.Minute)
	hc.RegisterCheck("redis", PingCheck("redis", func(context.Context) error { return nil }))

	hc.RunChecks(context.Background())
	assert.Equal(t, StatusUp, hc.GetHealth().Status)

	hc.RegisterCheck("redis", PingCheck("redis", func(context.Context) error {
		return errors.New("connection refused")
	}))
	hc.RunChecks(context.Background())

	health := hc.GetHealth()
	assert.Equal(t, StatusDown, health.Status)
	assert.Contains(t, health.Components["redis"].Error, "connection refused")
}

func TestDatabaseCheck(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	t.Run("up", func(t *testing.T) {
		mock.ExpectPing()
		result := DatabaseCheck(db)(context.Background())
		assert.Equal(t, StatusUp, result.Status)
	})

	t.Run("down", func(t *testing.T) {
		mock.ExpectPing().WillReturnError(errors.New("gone"))
		result := DatabaseCheck(db)(context.Background())
		assert.Equal(t, StatusDown, result.Status)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHealthHTTPHandler(t *testing.T) {
	hc := NewHealthChecker(time.Minute)
	hc.RegisterCheck("upstream", PingCheck("upstream", func(context.Context) error {
		return errors.New("timeout")
	}))

	rec := httptest.NewRecorder()
	hc.HTTPHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body SystemHealth
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, StatusDown, body.Status)
	assert.Contains(t, body.Components, "goroutines")
}
