package api

import (
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/trendsift/viral-engine/internal/capabilities/health"
	"github.com/trendsift/viral-engine/internal/jobserver"
)

// HealthMetrics tracks the API's own error rate over a sliding window. It
// feeds the readiness probe: a deployment that answers almost every request
// with a 5xx should be rotated out even though the process is alive.
type HealthMetrics struct {
	mu             sync.RWMutex
	errorCount     int
	successCount   int
	windowStart    time.Time
	windowDuration time.Duration
	errorThreshold float64
}

// NewHealthMetrics creates a new health metrics tracker.
func NewHealthMetrics() *HealthMetrics {
	return &HealthMetrics{
		windowStart:    time.Now(),
		windowDuration: 10 * time.Minute,
		errorThreshold: 0.95, // 95% error rate threshold
	}
}

// RecordSuccess records a successful request.
func (hm *HealthMetrics) RecordSuccess() {
	hm.mu.Lock()
	defer hm.mu.Unlock()

	hm.checkAndResetWindow()
	hm.successCount++
}

// RecordError records a failed request.
func (hm *HealthMetrics) RecordError() {
	hm.mu.Lock()
	defer hm.mu.Unlock()

	hm.checkAndResetWindow()
	hm.errorCount++
}

// checkAndResetWindow resets the counters once the window has expired.
// Callers hold hm.mu.
func (hm *HealthMetrics) checkAndResetWindow() {
	if time.Since(hm.windowStart) > hm.windowDuration {
		hm.errorCount = 0
		hm.successCount = 0
		hm.windowStart = time.Now()
	}
}

// IsHealthy reports whether the error rate is under the threshold.
func (hm *HealthMetrics) IsHealthy() bool {
	hm.mu.RLock()
	defer hm.mu.RUnlock()

	total := hm.errorCount + hm.successCount
	if total == 0 {
		return true // no requests yet
	}

	errorRate := float64(hm.errorCount) / float64(total)
	return errorRate < hm.errorThreshold
}

// GetStats returns the current window's counters.
func (hm *HealthMetrics) GetStats() map[string]interface{} {
	hm.mu.RLock()
	defer hm.mu.RUnlock()

	total := hm.errorCount + hm.successCount
	errorRate := 0.0
	if total > 0 {
		errorRate = float64(hm.errorCount) / float64(total)
	}

	return map[string]interface{}{
		"error_count":     hm.errorCount,
		"success_count":   hm.successCount,
		"total_count":     total,
		"error_rate":      errorRate,
		"window_start":    hm.windowStart.Format(time.RFC3339),
		"window_duration": hm.windowDuration.String(),
	}
}

// Healthz is the liveness probe endpoint.
func Healthz() func(c echo.Context) error {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"service": "viral-engine",
		})
	}
}

// Readyz is the readiness probe endpoint. Three things gate readiness: the
// job server's workers must be up, the API error rate must be under the
// threshold, and the working directories must be writable. The provider
// snapshot rides along for observability but does not gate; an instance with
// every provider down still serves heuristic-only sessions.
func Readyz(jobServer *jobserver.JobServer, healthMetrics *HealthMetrics, tracker *health.Tracker, dirs []string) func(c echo.Context) error {
	return func(c echo.Context) error {
		checks := map[string]interface{}{}
		ready := true

		if jobServer == nil || !jobServer.Running() {
			ready = false
			checks["job_server"] = "not running"
		} else {
			checks["job_server"] = "ok"
		}

		if healthMetrics.IsHealthy() {
			checks["error_rate"] = "healthy"
		} else {
			ready = false
			checks["error_rate"] = "unhealthy"
			checks["error_stats"] = healthMetrics.GetStats()
		}

		if err := dirsWritable(dirs); err != nil {
			ready = false
			checks["directories"] = err.Error()
		} else {
			checks["directories"] = "writable"
		}

		if tracker != nil {
			checks["providers"] = tracker.Snapshot()
		}

		code := http.StatusOK
		if !ready {
			code = http.StatusServiceUnavailable
		}
		return c.JSON(code, map[string]interface{}{
			"service": "viral-engine",
			"ready":   ready,
			"checks":  checks,
		})
	}
}

// dirsWritable proves each directory accepts writes by creating and removing
// a probe file. Empty entries are skipped.
func dirsWritable(dirs []string) error {
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		probe, err := os.CreateTemp(dir, ".readyz-*")
		if err != nil {
			return fmt.Errorf("%s is not writable: %v", dir, err)
		}
		probe.Close()
		os.Remove(probe.Name())
	}
	return nil
}
