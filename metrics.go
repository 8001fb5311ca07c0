package docsync

import "time"

// MetricsCollector provides hooks for observability.
type MetricsCollector interface {
	// RecordReconcile records a completed reconciler pass.
	RecordReconcile(direction string, records int, d time.Duration)

	// RecordQueueDrain records the outcome of one queue drain cycle.
	RecordQueueDrain(forwarded, failed, discarded int)

	// RecordListenerChange records one applied inbound change.
	RecordListenerChange(scope string, kind ChangeKind)

	// RecordSyncErrors records sync operation errors.
	RecordSyncErrors(op, reason string)
}

// NoOpMetricsCollector is a stub implementation that discards metrics.
type NoOpMetricsCollector struct{}

func (*NoOpMetricsCollector) RecordReconcile(direction string, records int, d time.Duration) {}
func (*NoOpMetricsCollector) RecordQueueDrain(forwarded, failed, discarded int)              {}
func (*NoOpMetricsCollector) RecordListenerChange(scope string, kind ChangeKind)             {}
func (*NoOpMetricsCollector) RecordSyncErrors(op, reason string)                             {}
