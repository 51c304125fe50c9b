package pbft

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/dicemesh/go-dicebft/internal/measurements"
)

var meter = otel.Meter("dicebft/pbft")

var metrics = struct {
	batchesCut          metric.Int64Counter
	batchSize           metric.Int64Histogram
	operationsSubmitted metric.Int64Counter
	operationsRejected  metric.Int64Counter
	commits             metric.Int64Counter
	executions          metric.Int64Counter
	viewChanges         metric.Int64Counter
	instanceEvictions   metric.Int64Counter
	sigCacheHits        metric.Int64Counter
	sigCacheMisses      metric.Int64Counter
	commitLatency       metric.Float64Histogram
}{
	batchesCut: measurements.Must(meter.Int64Counter("dicebft_pbft_batches_cut",
		metric.WithDescription("Number of operation batches cut."))),
	batchSize: measurements.Must(meter.Int64Histogram("dicebft_pbft_batch_size",
		metric.WithDescription("Number of operations per batch."))),
	operationsSubmitted: measurements.Must(meter.Int64Counter("dicebft_pbft_operations_submitted",
		metric.WithDescription("Number of operations accepted into the pending queue."))),
	operationsRejected: measurements.Must(meter.Int64Counter("dicebft_pbft_operations_rejected",
		metric.WithDescription("Number of operations rejected at submission."))),
	commits: measurements.Must(meter.Int64Counter("dicebft_pbft_commits",
		metric.WithDescription("Number of consensus instances that reached commit quorum."))),
	executions: measurements.Must(meter.Int64Counter("dicebft_pbft_executions",
		metric.WithDescription("Number of batches handed to the executor."))),
	viewChanges: measurements.Must(meter.Int64Counter("dicebft_pbft_view_changes",
		metric.WithDescription("Number of view changes triggered."))),
	instanceEvictions: measurements.Must(meter.Int64Counter("dicebft_pbft_instance_evictions",
		metric.WithDescription("Number of in-flight instances evicted to respect the pipeline depth."))),
	sigCacheHits: measurements.Must(meter.Int64Counter("dicebft_pbft_sig_cache_hits",
		metric.WithDescription("Number of signature verifications avoided by the cache."))),
	sigCacheMisses: measurements.Must(meter.Int64Counter("dicebft_pbft_sig_cache_misses",
		metric.WithDescription("Number of signature verifications performed."))),
	commitLatency: measurements.Must(meter.Float64Histogram("dicebft_pbft_commit_latency",
		metric.WithDescription("Seconds from pre-prepare to commit quorum."),
		metric.WithUnit("s"))),
}
