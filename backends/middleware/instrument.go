package middleware

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/gannonmg/lockbox/internal/metrics"
	"github.com/gannonmg/lockbox/pkg/backend"
)

// Instrumented records Prometheus metrics and debug logs for every backend
// call. Logs carry namespaces and key names, never values.
type Instrumented struct {
	next   backend.Backend
	name   string
	logger *slog.Logger
}

// NewInstrumented wraps next with metrics and logging. name labels the
// backend in metrics and log lines.
func NewInstrumented(next backend.Backend, name string, logger *slog.Logger) *Instrumented {
	if logger == nil {
		logger = slog.Default()
	}
	return &Instrumented{next: next, name: name, logger: logger}
}

// errorLabel maps a backend error onto the low-cardinality error_kind label.
func errorLabel(err error) string {
	switch {
	case errors.Is(err, backend.ErrNotFound):
		return "not_found"
	case errors.Is(err, backend.ErrUnavailable):
		return "unavailable"
	default:
		return "other"
	}
}

func (m *Instrumented) observe(operation string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
		metrics.BackendFailures.WithLabelValues(m.name, operation, errorLabel(err)).Inc()
	}
	metrics.BackendOperations.WithLabelValues(m.name, operation, status).Inc()
	metrics.BackendLatency.WithLabelValues(m.name, operation).Observe(time.Since(start).Seconds())
}

// Put delegates and records the outcome.
func (m *Instrumented) Put(ctx context.Context, namespace, key string, value []byte) error {
	start := time.Now()
	err := m.next.Put(ctx, namespace, key, value)
	m.observe("put", start, err)

	m.logger.Debug("backend put",
		"backend", m.name,
		"namespace", namespace,
		"key", key,
		"duration_ms", time.Since(start).Milliseconds(),
		"error", err,
	)
	return err
}

// Get delegates and records the outcome.
func (m *Instrumented) Get(ctx context.Context, namespace, key string) ([]byte, error) {
	start := time.Now()
	value, err := m.next.Get(ctx, namespace, key)
	m.observe("get", start, err)

	m.logger.Debug("backend get",
		"backend", m.name,
		"namespace", namespace,
		"key", key,
		"duration_ms", time.Since(start).Milliseconds(),
		"error", err,
	)
	return value, err
}

// Delete delegates and records the outcome.
func (m *Instrumented) Delete(ctx context.Context, namespace, key string) error {
	start := time.Now()
	err := m.next.Delete(ctx, namespace, key)
	m.observe("delete", start, err)

	m.logger.Debug("backend delete",
		"backend", m.name,
		"namespace", namespace,
		"key", key,
		"duration_ms", time.Since(start).Milliseconds(),
		"error", err,
	)
	return err
}

// Clear delegates, records the outcome and counts one sweep per class.
func (m *Instrumented) Clear(ctx context.Context, namespace string, classes []backend.Class) error {
	start := time.Now()
	err := m.next.Clear(ctx, namespace, classes)
	m.observe("clear", start, err)

	for _, class := range classes {
		metrics.ClassSweeps.WithLabelValues(m.name, string(class)).Inc()
	}

	m.logger.Debug("backend clear",
		"backend", m.name,
		"namespace", namespace,
		"classes", len(classes),
		"duration_ms", time.Since(start).Milliseconds(),
		"error", err,
	)
	return err
}
