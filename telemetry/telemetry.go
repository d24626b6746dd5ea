// Package telemetry defines the observability surface used across the weft
// engine: a structured logger and a metrics recorder. The scheduler, trigger
// worker, and DAG executor all log and count through these interfaces so the
// concrete stack (clue + OTEL in production, no-ops in tests) stays swappable.
package telemetry

import (
	"context"
	"time"
)

type (
	// Logger emits structured log messages with key-value pairs.
	// Implementations must be safe for concurrent use.
	Logger interface {
		// Debug emits a debug-level message with structured key-value pairs.
		Debug(ctx context.Context, msg string, keyvals ...any)
		// Info emits an info-level message with structured key-value pairs.
		Info(ctx context.Context, msg string, keyvals ...any)
		// Warn emits a warning-level message with structured key-value pairs.
		Warn(ctx context.Context, msg string, keyvals ...any)
		// Error emits an error-level message with structured key-value pairs.
		Error(ctx context.Context, msg string, keyvals ...any)
	}

	// Metrics records counters and timers for engine instrumentation.
	// Tags are flat key-value string pairs (k1, v1, k2, v2, ...).
	Metrics interface {
		// IncCounter increments a counter metric by the given value.
		IncCounter(name string, value float64, tags ...string)
		// RecordTimer records a duration metric.
		RecordTimer(name string, duration time.Duration, tags ...string)
	}
)
