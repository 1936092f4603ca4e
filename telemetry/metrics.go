package telemetry

// OpBuckets covers local SQLite reads and writes
var OpBuckets = []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1}

var (
	// CatalogOpsTotal counts repository operations by op and result (success, error)
	CatalogOpsTotal CounterVec = noopCounterVec{}

	// CatalogOpDurationSeconds measures repository operation latency by op
	CatalogOpDurationSeconds HistogramVec = noopHistogramVec{}
)

// InitMetrics initializes all Prometheus metrics.
// Must be called after InitializeTelemetry().
func InitMetrics() {
	CatalogOpsTotal = NewCounterVec(
		"ops_total",
		"Repository operations by op and result",
		[]string{"op", "result"},
	)
	CatalogOpDurationSeconds = NewHistogramVec(
		"op_duration_seconds",
		"Repository operation duration in seconds",
		[]string{"op"},
		OpBuckets,
	)
}
