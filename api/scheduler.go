/*
scheduler.go - Periodic overdue loan monitor

PURPOSE:
  Periodically asks the ledger for overdue loans, logs each one and
  publishes the count. Overdue status is computed on demand by the
  ledger; the monitor never writes.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Checks once immediately on Start
  - Publishes the count through a Gauge (Prometheus in cmd/server)

CONFIGURATION:
  - CheckInterval: How often to check (default: 1 hour)
  - Enabled: Whether the monitor is active (default: true)

USAGE:
  monitor := NewOverdueMonitor(lib.Ledger, gauge, logger)
  monitor.Start()
  // ... later
  monitor.Stop()

SEE ALSO:
  - handlers.go: ListOverdue endpoint (same query on demand)
  - library/ledger.go: LedgerEngine.Overdue
*/
package api

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/warp/lending-engine/library"
)

// OverdueLister is the part of the ledger the monitor reads.
type OverdueLister interface {
	Overdue(ctx context.Context) ([]library.Transaction, error)
}

// Gauge receives the latest overdue count.
type Gauge interface {
	Set(float64)
}

// OverdueMonitor reports overdue loans on a fixed interval.
type OverdueMonitor struct {
	Ledger        OverdueLister
	Gauge         Gauge
	CheckInterval time.Duration
	Enabled       bool

	logger  *slog.Logger
	ticker  *time.Ticker
	stop    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	lastRun time.Time
}

// NewOverdueMonitor creates a monitor. gauge may be nil.
func NewOverdueMonitor(ledger OverdueLister, gauge Gauge, logger *slog.Logger) *OverdueMonitor {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &OverdueMonitor{
		Ledger:        ledger,
		Gauge:         gauge,
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
		logger:        logger.With("component", "overdue_monitor"),
	}
}

// Start begins the periodic checks.
func (m *OverdueMonitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.Enabled {
		m.logger.Info("monitor disabled, not starting")
		return
	}
	if m.ticker != nil {
		return
	}

	m.ticker = time.NewTicker(m.CheckInterval)
	m.stop = make(chan struct{})
	m.wg.Add(1)

	go m.run(m.ticker, m.stop)

	m.logger.Info("monitor started", "interval", m.CheckInterval)
}

// Stop halts the checks and waits for an in-flight check to finish.
func (m *OverdueMonitor) Stop() {
	m.mu.Lock()
	ticker, stop := m.ticker, m.stop
	m.ticker, m.stop = nil, nil
	m.mu.Unlock()

	if ticker == nil {
		return
	}
	ticker.Stop()
	close(stop)
	// RunNow takes mu, so wait outside it.
	m.wg.Wait()
	m.logger.Info("monitor stopped")
}

func (m *OverdueMonitor) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer m.wg.Done()

	m.RunNow(context.Background())

	for {
		select {
		case <-ticker.C:
			m.RunNow(context.Background())
		case <-stop:
			return
		}
	}
}

// RunNow performs one check and returns the overdue loans it found.
func (m *OverdueMonitor) RunNow(ctx context.Context) ([]library.Transaction, error) {
	overdue, err := m.Ledger.Overdue(ctx)
	if err != nil {
		m.logger.Error("overdue check failed", "error", err)
		return nil, err
	}

	for _, tx := range overdue {
		m.logger.Info("loan overdue",
			"transaction", tx.ID,
			"member", tx.MemberID,
			"isbn", tx.ISBN,
			"due", tx.DueDate.String(),
		)
	}
	if m.Gauge != nil {
		m.Gauge.Set(float64(len(overdue)))
	}

	m.mu.Lock()
	m.lastRun = time.Now()
	m.mu.Unlock()
	return overdue, nil
}

// NextRunTime returns when the next scheduled check will occur.
func (m *OverdueMonitor) NextRunTime() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lastRun.IsZero() {
		return time.Now()
	}
	return m.lastRun.Add(m.CheckInterval)
}
