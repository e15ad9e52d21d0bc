package health

import (
	"context"
	"time"
)

// Status holds the health information for a single provider.
type Status struct {
	Provider    string    `json:"provider"`
	Healthy     bool      `json:"healthy"`
	LastError   string    `json:"last_error,omitempty"`
	ErrorCount  int       `json:"error_count"`
	LastChecked time.Time `json:"last_checked"`
}

// ProviderHealthTracker defines the interface for managing the health status
// of all acquisition providers.
type ProviderHealthTracker interface {
	// ReportSuccess marks the provider healthy and ends any failure run.
	ReportSuccess(provider string)
	// ReportFailure records a failed provider call together with its error.
	ReportFailure(provider string, err error)
	// Healthy reports whether every tracked provider is currently serving.
	Healthy() bool
	// Snapshot returns a copy of all tracked provider statuses.
	Snapshot() map[string]Status
	// StartReconciliationLoop periodically re-marks recoverable providers
	// until the context is cancelled.
	StartReconciliationLoop(ctx context.Context)
}
