// Package monitor keeps the most recent analysis in memory and refreshes it
// on a schedule for the HTTP server.
package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/nuclearlighters/drivehealth/internal/analysis"
	"github.com/nuclearlighters/drivehealth/internal/metrics"
)

// RunFunc performs one analysis.
type RunFunc func(ctx context.Context) (analysis.Report, error)

// Monitor caches the last successful report. Refreshes are serialized; a
// failed refresh keeps serving the previous report.
type Monitor struct {
	run      RunFunc
	interval time.Duration
	metrics  *metrics.Metrics
	logger   zerolog.Logger

	refreshMu sync.Mutex

	mu      sync.RWMutex
	latest  *analysis.Report
	lastErr error
	lastRun time.Time
}

// New creates a monitor. m may be nil to skip metrics.
func New(run RunFunc, interval time.Duration, m *metrics.Metrics, logger zerolog.Logger) *Monitor {
	return &Monitor{
		run:      run,
		interval: interval,
		metrics:  m,
		logger:   logger.With().Str("component", "monitor").Logger(),
	}
}

// Refresh runs an analysis now and caches it on success.
func (m *Monitor) Refresh(ctx context.Context) (analysis.Report, error) {
	m.refreshMu.Lock()
	defer m.refreshMu.Unlock()

	start := time.Now()
	report, err := m.run(ctx)
	took := time.Since(start)

	m.mu.Lock()
	m.lastRun = start
	m.lastErr = err
	if err == nil {
		m.latest = &report
	}
	m.mu.Unlock()

	if err != nil {
		m.logger.Error().Err(err).Dur("took", took).Msg("Refresh failed")
		if m.metrics != nil {
			m.metrics.ObserveFailedRun(took)
		}
		return report, err
	}
	if m.metrics != nil {
		m.metrics.ObserveRun(report.Health, len(report.Failures), took)
	}
	return report, nil
}

// Latest returns the cached report, false before the first success.
func (m *Monitor) Latest() (analysis.Report, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.latest == nil {
		return analysis.Report{}, false
	}
	return *m.latest, true
}

// Status reports when the last refresh ran and how it ended.
func (m *Monitor) Status() (lastRun time.Time, lastErr error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastRun, m.lastErr
}

// Start refreshes immediately and then every interval until ctx is done.
// A non-positive interval refreshes once.
func (m *Monitor) Start(ctx context.Context) {
	m.Refresh(ctx)
	if m.interval <= 0 {
		return
	}

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	m.logger.Info().Dur("interval", m.interval).Msg("Periodic refresh started")
	for {
		select {
		case <-ctx.Done():
			m.logger.Info().Msg("Periodic refresh stopped")
			return
		case <-ticker.C:
			m.Refresh(ctx)
		}
	}
}
