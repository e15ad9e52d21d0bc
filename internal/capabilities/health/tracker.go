// Package health tracks which providers are currently able to serve.
// Outcomes stream in from the resolver and aggregator; the snapshot feeds
// the readiness endpoint and the manifest api_status block.
package health

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	defaultFailureThreshold  = 3
	defaultRecoveryWindow    = 5 * time.Minute
	defaultReconcileInterval = time.Minute
)

type entry struct {
	healthy     bool
	consecutive int
	errorCount  int
	lastError   string
	lastChecked time.Time
}

// Tracker flips a provider unhealthy after a run of consecutive failures
// and back on any success. Unhealthy providers recover by aging out, so a
// transient outage never poisons readiness permanently.
type Tracker struct {
	mu        sync.RWMutex
	threshold int
	recovery  time.Duration
	interval  time.Duration
	now       func() time.Time
	entries   map[string]*entry
}

type Option func(*Tracker)

// WithThreshold sets how many consecutive failures flip a provider
// unhealthy.
func WithThreshold(n int) Option {
	return func(t *Tracker) { t.threshold = n }
}

// WithRecoveryWindow sets how long an unhealthy provider stays down before
// reconciliation marks it eligible again.
func WithRecoveryWindow(d time.Duration) Option {
	return func(t *Tracker) { t.recovery = d }
}

// WithReconcileInterval sets how often the reconciliation loop runs.
func WithReconcileInterval(d time.Duration) Option {
	return func(t *Tracker) { t.interval = d }
}

// WithClock injects a clock for tests.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// NewTracker creates a new instance of a Tracker.
func NewTracker(opts ...Option) *Tracker {
	t := &Tracker{
		threshold: defaultFailureThreshold,
		recovery:  defaultRecoveryWindow,
		interval:  defaultReconcileInterval,
		now:       time.Now,
		entries:   make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// ReportSuccess marks the provider healthy and ends any failure run.
func (t *Tracker) ReportSuccess(provider string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e := t.entry(provider)
	e.healthy = true
	e.consecutive = 0
	e.lastChecked = t.now()
}

// ReportFailure counts a failure; a run of threshold consecutive failures
// flips the provider unhealthy.
func (t *Tracker) ReportFailure(provider string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e := t.entry(provider)
	e.errorCount++
	e.consecutive++
	e.lastChecked = t.now()
	if err != nil {
		e.lastError = err.Error()
	}
	if e.healthy && e.consecutive >= t.threshold {
		e.healthy = false
		logrus.Warnf("Provider %s marked unhealthy after %d consecutive failures: %v", provider, e.consecutive, err)
	}
}

// Healthy reports whether every tracked provider is currently serving. An
// empty tracker is healthy.
func (t *Tracker) Healthy() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, e := range t.entries {
		if !e.healthy {
			return false
		}
	}
	return true
}

// Snapshot returns a copy of all tracked provider statuses.
func (t *Tracker) Snapshot() map[string]Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]Status, len(t.entries))
	for provider, e := range t.entries {
		out[provider] = Status{
			Provider:    provider,
			Healthy:     e.healthy,
			LastError:   e.lastError,
			ErrorCount:  e.errorCount,
			LastChecked: e.lastChecked,
		}
	}
	return out
}

// Reconcile re-marks unhealthy providers whose last outcome is older than
// the recovery window, giving them another chance to serve.
func (t *Tracker) Reconcile() {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	for provider, e := range t.entries {
		if !e.healthy && now.Sub(e.lastChecked) >= t.recovery {
			e.healthy = true
			e.consecutive = 0
			logrus.Infof("Provider %s aged out of unhealthy state, marking eligible again", provider)
		}
	}
}

// StartReconciliationLoop reconciles on the configured interval until ctx
// is done.
func (t *Tracker) StartReconciliationLoop(ctx context.Context) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.Reconcile()
		}
	}
}

// entry lazily initializes a provider as healthy; callers hold t.mu.
func (t *Tracker) entry(provider string) *entry {
	e, ok := t.entries[provider]
	if !ok {
		e = &entry{healthy: true}
		t.entries[provider] = e
	}
	return e
}
