package library

import (
	"errors"
	"time"
)

// MetricsCollector receives lending metrics. The metrics package adapts it to
// Prometheus; the default discards everything.
type MetricsCollector interface {
	RecordDuration(metric string, duration time.Duration, labels map[string]string)
	IncrementCounter(metric string, labels map[string]string)
	RecordValue(metric string, value float64, labels map[string]string)
}

// Metric names emitted by the engine.
const (
	MetricOperationDuration = "lending_operation_duration_seconds"
	MetricBorrows           = "lending_borrows_total"
	MetricReturns           = "lending_returns_total"
	MetricFinesAssessed     = "lending_fines_assessed"
	MetricFinesPaid         = "lending_fines_paid"
)

// Label keys.
const (
	LabelOperation = "operation"
	LabelOutcome   = "outcome"
)

const outcomeOK = "ok"

type nopMetrics struct{}

func (nopMetrics) RecordDuration(string, time.Duration, map[string]string) {}
func (nopMetrics) IncrementCounter(string, map[string]string)              {}
func (nopMetrics) RecordValue(string, float64, map[string]string)          {}

// outcomeOf turns an error into a low-cardinality label value.
func outcomeOf(err error) string {
	if err == nil {
		return outcomeOK
	}
	var denied *BorrowNotPermittedError
	if errors.As(err, &denied) {
		return string(denied.Reason)
	}
	switch {
	case errors.Is(err, ErrBookUnavailable):
		return "book_unavailable"
	case IsNotFound(err):
		return "not_found"
	case IsConflict(err):
		return "conflict"
	case IsRuleViolation(err):
		return "denied"
	case IsClientError(err):
		return "invalid"
	}
	return "error"
}

func (e *env) observe(op string, started time.Time, err error) {
	e.metrics.RecordDuration(MetricOperationDuration, time.Since(started), map[string]string{
		LabelOperation: op,
		LabelOutcome:   outcomeOf(err),
	})
}
