// Package vectorstore provides vector storage implementations.
package vectorstore

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// HealthChecker interface for dependency injection and testability.
type HealthChecker interface {
	// IsHealthy returns true if the remote store is healthy.
	IsHealthy(ctx context.Context) bool

	// WatchState watches for connectivity state changes.
	// The callback is invoked whenever health status changes.
	WatchState(ctx context.Context, callback func(healthy bool)) error
}

// ESHealthChecker implements HealthChecker against an Elasticsearch
// cluster's `_cluster/health` endpoint, replacing the teacher's gRPC
// connectivity-state watcher (Qdrant has no equivalent here; ES health is
// polled rather than pushed).
type ESHealthChecker struct {
	store  *ElasticsearchStore
	logger *zap.Logger
}

// NewESHealthChecker creates a new Elasticsearch health checker.
func NewESHealthChecker(store *ElasticsearchStore, logger *zap.Logger) *ESHealthChecker {
	return &ESHealthChecker{store: store, logger: logger}
}

// IsHealthy returns true if the cluster health check succeeds.
func (e *ESHealthChecker) IsHealthy(ctx context.Context) bool {
	if e.store == nil {
		return false
	}
	return e.store.HealthCheck(ctx) == nil
}

// WatchState polls IsHealthy every 15s and invokes callback on transitions.
// Elasticsearch has no native connectivity-state push notification, so
// unlike the teacher's gRPC watcher this is poll-only; HealthMonitor's own
// periodic check (runPeriodicCheck) covers the same ground, so this mainly
// exists to satisfy the HealthChecker interface uniformly.
func (e *ESHealthChecker) WatchState(ctx context.Context, callback func(healthy bool)) error {
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		last := e.IsHealthy(ctx)
		callback(last)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				cur := e.IsHealthy(ctx)
				if cur != last {
					callback(cur)
					last = cur
				}
			}
		}
	}()
	return nil
}

// MockHealthChecker for testing.
type MockHealthChecker struct {
	healthy atomic.Bool
}

// NewMockHealthChecker creates a new mock health checker.
func NewMockHealthChecker() *MockHealthChecker {
	return &MockHealthChecker{}
}

// IsHealthy returns the mock health status.
func (m *MockHealthChecker) IsHealthy(ctx context.Context) bool {
	return m.healthy.Load()
}

// SetHealthy sets the mock health status and does not trigger callbacks.
func (m *MockHealthChecker) SetHealthy(healthy bool) {
	m.healthy.Store(healthy)
}

// WatchState does nothing for mock (no state changes to watch).
func (m *MockHealthChecker) WatchState(ctx context.Context, callback func(healthy bool)) error {
	return nil
}

// HealthMonitor monitors remote store connectivity.
type HealthMonitor struct {
	checker       HealthChecker     // Interface for DI (gRPC, HTTP, mock)
	healthy       atomic.Bool       // Current health status
	lastCheck     atomic.Value      // time.Time
	checkInterval time.Duration     // Configurable via FallbackConfig
	mu            sync.RWMutex      // Protects callbacks slice
	callbacks     []func(bool)      // Callbacks to notify on health change
	ctx           context.Context   // For graceful shutdown
	cancel        context.CancelFunc
	logger        *zap.Logger
}

// NewHealthMonitor creates a new health monitor.
func NewHealthMonitor(ctx context.Context, checker HealthChecker, checkInterval time.Duration, logger *zap.Logger) *HealthMonitor {
	ctx, cancel := context.WithCancel(ctx)
	hm := &HealthMonitor{
		checker:       checker,
		checkInterval: checkInterval,
		callbacks:     make([]func(bool), 0),
		ctx:           ctx,
		cancel:        cancel,
		logger:        logger,
	}

	// Initialize with current health status
	hm.healthy.Store(checker.IsHealthy(ctx))
	hm.lastCheck.Store(time.Now())

	return hm
}

// Start begins health monitoring.
func (hm *HealthMonitor) Start() {
	// Watch for state changes (primary detection)
	hm.checker.WatchState(hm.ctx, func(healthy bool) {
		hm.updateHealth(healthy)
	})

	// Periodic ping (fallback detection)
	go hm.runPeriodicCheck()
}

// runPeriodicCheck performs periodic health checks.
func (hm *HealthMonitor) runPeriodicCheck() {
	ticker := time.NewTicker(hm.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-hm.ctx.Done():
			return
		case <-ticker.C:
			healthy := hm.checker.IsHealthy(hm.ctx)
			hm.updateHealth(healthy)
		}
	}
}

// updateHealth updates health status and notifies callbacks if changed.
func (hm *HealthMonitor) updateHealth(healthy bool) {
	oldHealth := hm.healthy.Load()
	hm.healthy.Store(healthy)
	hm.lastCheck.Store(time.Now())

	// Only notify if health status changed
	if oldHealth != healthy {
		hm.logger.Info("health status changed",
			zap.Bool("healthy", healthy),
			zap.Bool("previous", oldHealth))
		hm.notifyCallbacks(healthy)
	}
}

// IsHealthy returns the current health status.
func (hm *HealthMonitor) IsHealthy() bool {
	return hm.healthy.Load()
}

// LastCheck returns the time of the last health check.
func (hm *HealthMonitor) LastCheck() time.Time {
	v := hm.lastCheck.Load()
	if v == nil {
		return time.Time{}
	}
	return v.(time.Time)
}

// RegisterCallback adds a callback with mutex protection.
// Returns an error if the callback is nil.
func (hm *HealthMonitor) RegisterCallback(cb func(bool)) error {
	if cb == nil {
		return fmt.Errorf("health: callback cannot be nil")
	}

	hm.mu.Lock()
	defer hm.mu.Unlock()
	hm.callbacks = append(hm.callbacks, cb)
	return nil
}

// notifyCallbacks fires all callbacks under read lock (allows concurrent reads).
// Copy-before-fire pattern prevents holding lock during callbacks.
func (hm *HealthMonitor) notifyCallbacks(healthy bool) {
	hm.mu.RLock()
	callbacks := make([]func(bool), len(hm.callbacks))
	copy(callbacks, hm.callbacks)
	hm.mu.RUnlock()

	for _, cb := range callbacks {
		// Call in separate goroutine to prevent blocking
		go func(callback func(bool)) {
			defer func() {
				if r := recover(); r != nil {
					hm.logger.Error("health callback panic",
						zap.Any("panic", r))
				}
			}()

			// Create timeout context for callback (5 seconds)
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			// Run callback with timeout protection
			done := make(chan struct{})
			go func() {
				callback(healthy)
				close(done)
			}()

			select {
			case <-done:
				// Callback completed successfully
			case <-ctx.Done():
				hm.logger.Warn("health callback timeout",
					zap.Duration("timeout", 5*time.Second))
			}
		}(cb)
	}
}

// Stop gracefully shuts down the health monitor.
func (hm *HealthMonitor) Stop() {
	hm.cancel()
}
