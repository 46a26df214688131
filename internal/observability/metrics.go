package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation scope of pipeline spans.
const TracerName = "github.com/tbourn/go-memes-bot"

var (
	// Evaluations counts engine outcomes. reason is empty for delivered
	// and failed evaluations.
	Evaluations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "memebot_evaluations_total",
			Help: "Repost evaluations by outcome and skip reason.",
		},
		[]string{"outcome", "reason"},
	)

	EvaluationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "memebot_evaluation_duration_seconds",
			Help:    "Duration of one repost evaluation.",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Deliveries counts sink calls by result (ok|error).
	Deliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "memebot_deliveries_total",
			Help: "Repost deliveries by result.",
		},
		[]string{"result"},
	)

	// BackfillScans counts scanner iterations by result (ok|error).
	BackfillScans = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "memebot_backfill_scans_total",
			Help: "Backfill scan iterations by result.",
		},
		[]string{"result"},
	)

	DispatchQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "memebot_dispatch_queue_depth",
			Help: "Events waiting in the dispatcher, including per-post backlogs.",
		},
	)
)

func init() {
	prometheus.MustRegister(Evaluations, EvaluationDuration, Deliveries, BackfillScans, DispatchQueueDepth)
}

// Tracer returns the pipeline tracer from the global provider, a no-op
// until SetupOTel installs one.
func Tracer() trace.Tracer {
	return otel.Tracer(TracerName)
}
