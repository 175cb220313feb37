package monitoring

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"sync"
	"time"
)

// Health check status constants
const (
	StatusUp      = "UP"
	StatusDown    = "DOWN"
	StatusWarning = "WARNING"
)

// HealthChecker runs named component checks and reports the aggregate.
type HealthChecker struct {
	checks        map[string]HealthCheckFunc
	lastResults   map[string]*CheckResult
	checkInterval time.Duration
	checkTimeout  time.Duration
	now           func() time.Time
	mu            sync.RWMutex
}

// HealthCheckFunc defines a health check function
type HealthCheckFunc func(context.Context) *CheckResult

// CheckResult represents the result of a health check
type CheckResult struct {
	Status      string                 `json:"status"`
	Component   string                 `json:"component"`
	Details     map[string]interface{} `json:"details,omitempty"`
	LastChecked time.Time              `json:"last_checked"`
	Error       string                 `json:"error,omitempty"`
}

// SystemHealth represents overall system health
type SystemHealth struct {
	Status     string                  `json:"status"`
	Components map[string]*CheckResult `json:"components"`
	Timestamp  time.Time               `json:"timestamp"`
}

// NewHealthChecker creates a checker with the goroutine check registered.
func NewHealthChecker(interval time.Duration) *HealthChecker {
	hc := &HealthChecker{
		checks:        make(map[string]HealthCheckFunc),
		lastResults:   make(map[string]*CheckResult),
		checkInterval: interval,
		checkTimeout:  2 * time.Second,
		now:           time.Now,
	}

	hc.RegisterCheck("goroutines", GoroutineCheck)

	return hc
}

// RegisterCheck adds a new health check
func (h *HealthChecker) RegisterCheck(name string, check HealthCheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = check
}

// StartChecks begins periodic health checking
func (h *HealthChecker) StartChecks(ctx context.Context) {
	h.RunChecks(ctx)

	ticker := time.NewTicker(h.checkInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				h.RunChecks(ctx)
			}
		}
	}()
}

// RunChecks executes every registered check once and stores the results.
func (h *HealthChecker) RunChecks(ctx context.Context) {
	h.mu.RLock()
	checks := make(map[string]HealthCheckFunc, len(h.checks))
	for name, check := range h.checks {
		checks[name] = check
	}
	h.mu.RUnlock()

	results := make(map[string]*CheckResult, len(checks))
	for name, check := range checks {
		checkCtx, cancel := context.WithTimeout(ctx, h.checkTimeout)
		result := check(checkCtx)
		cancel()
		result.LastChecked = h.now()
		results[name] = result
	}

	h.mu.Lock()
	for name, result := range results {
		h.lastResults[name] = result
	}
	h.mu.Unlock()
}

// GetHealth returns current system health status
func (h *HealthChecker) GetHealth() *SystemHealth {
	h.mu.RLock()
	defer h.mu.RUnlock()

	health := &SystemHealth{
		Status:     StatusUp,
		Components: make(map[string]*CheckResult),
		Timestamp:  h.now(),
	}

	for name, result := range h.lastResults {
		health.Components[name] = result
		if result.Status == StatusDown {
			health.Status = StatusDown
		} else if result.Status == StatusWarning && health.Status != StatusDown {
			health.Status = StatusWarning
		}
	}

	return health
}

// PingCheck adapts a ping function (redis, upstream) into a check.
func PingCheck(component string, ping func(context.Context) error) HealthCheckFunc {
	return func(ctx context.Context) *CheckResult {
		result := &CheckResult{
			Status:    StatusUp,
			Component: component,
		}
		if err := ping(ctx); err != nil {
			result.Status = StatusDown
			result.Error = fmt.Sprintf("%s ping failed: %v", component, err)
		}
		return result
	}
}

// DatabaseCheck checks database connectivity and pool pressure
func DatabaseCheck(db *sql.DB) HealthCheckFunc {
	return func(ctx context.Context) *CheckResult {
		result := &CheckResult{
			Status:    StatusUp,
			Component: "database",
		}

		if err := db.PingContext(ctx); err != nil {
			result.Status = StatusDown
			result.Error = fmt.Sprintf("Database connection failed: %v", err)
			return result
		}

		stats := db.Stats()
		result.Details = map[string]interface{}{
			"open_connections": stats.OpenConnections,
			"in_use":           stats.InUse,
			"idle":             stats.Idle,
			"wait_count":       stats.WaitCount,
			"wait_duration":    stats.WaitDuration.Milliseconds(),
		}

		if stats.OpenConnections > 0 && float64(stats.InUse)/float64(stats.OpenConnections) > 0.8 {
			result.Status = StatusWarning
			result.Error = "High connection pool utilization"
		}

		return result
	}
}

// GoroutineCheck monitors goroutine count
func GoroutineCheck(ctx context.Context) *CheckResult {
	result := &CheckResult{
		Status:    StatusUp,
		Component: "goroutines",
		Details:   make(map[string]interface{}),
	}

	goroutineCount := runtime.NumGoroutine()
	result.Details["count"] = goroutineCount

	if goroutineCount > 10000 {
		result.Status = StatusWarning
		result.Error = "High number of goroutines"
	}

	return result
}

// HTTPHandler runs the checks and writes the aggregate as JSON; 503 when
// any component is down.
func (h *HealthChecker) HTTPHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.RunChecks(r.Context())
		health := h.GetHealth()

		w.Header().Set("Content-Type", "application/json")
		if health.Status == StatusDown {
			w.WriteHeader(http.StatusServiceUnavailable)
		}

		json.NewEncoder(w).Encode(health)
	}
}
