package pipeline

import "github.com/prometheus/client_golang/prometheus"

const (
	MetricRecordsAccepted    = "records_accepted_total"
	MetricBatchesFlushed     = "batches_flushed_total"
	MetricFieldOutcomes      = "coerce_fields_total"
	MetricRecordsQuarantined = "records_quarantined_total"
	MetricFilesCommitted     = "files_committed_total"
	MetricRowsCommitted      = "rows_committed_total"
	MetricRecordsSpilled     = "records_spilled_total"
	MetricCommitAttempts     = "commit_attempts"
	MetricFlushDuration      = "flush_duration_seconds"
)

var CounterRecordsAccepted = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "lakeingest",
		Name:      MetricRecordsAccepted,
		Help:      "Records read from the source.",
	},
	[]string{"entity"},
)

var CounterBatchesFlushed = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "lakeingest",
		Name:      MetricBatchesFlushed,
		Help:      "Batches flushed, by trigger.",
	},
	[]string{"entity", "trigger"},
)

var CounterFieldOutcomes = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "lakeingest",
		Name:      MetricFieldOutcomes,
		Help:      "Extracted fields by outcome.",
	},
	[]string{"entity", "outcome"},
)

var CounterRecordsQuarantined = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "lakeingest",
		Name:      MetricRecordsQuarantined,
		Help:      "Records removed from batches by the quarantine policy.",
	},
	[]string{"entity"},
)

var CounterFilesCommitted = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "lakeingest",
		Name:      MetricFilesCommitted,
		Help:      "Data files committed to the catalog.",
	},
	[]string{"entity"},
)

var CounterRowsCommitted = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "lakeingest",
		Name:      MetricRowsCommitted,
		Help:      "Rows in committed data files.",
	},
	[]string{"entity"},
)

var CounterRecordsSpilled = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "lakeingest",
		Name:      MetricRecordsSpilled,
		Help:      "Raw records spilled to the journal.",
	},
	[]string{"entity"},
)

var HistogramCommitAttempts = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "lakeingest",
		Name:      MetricCommitAttempts,
		Help:      "Catalog appends tried per commit.",
		Buckets:   []float64{1, 2, 3, 5, 8},
	},
	[]string{"entity"},
)

var HistogramFlushDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "lakeingest",
		Name:      MetricFlushDuration,
		Help:      "Time from flush to commit.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"entity"},
)

func init() {
	prometheus.MustRegister(CounterRecordsAccepted)
	prometheus.MustRegister(CounterBatchesFlushed)
	prometheus.MustRegister(CounterFieldOutcomes)
	prometheus.MustRegister(CounterRecordsQuarantined)
	prometheus.MustRegister(CounterFilesCommitted)
	prometheus.MustRegister(CounterRowsCommitted)
	prometheus.MustRegister(CounterRecordsSpilled)
	prometheus.MustRegister(HistogramCommitAttempts)
	prometheus.MustRegister(HistogramFlushDuration)
}
