package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Monitoring metrics
	MonitorState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "moverwatch_monitor_state",
			Help: "Current lifecycle state (1 for the active state, 0 otherwise)",
		},
		[]string{"state"},
	)

	StateTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moverwatch_state_transitions_total",
			Help: "Total lifecycle transitions by source and destination state",
		},
		[]string{"from", "to"},
	)

	SamplesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "moverwatch_disk_samples_total",
			Help: "Total disk usage samples taken",
		},
	)

	SampleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "moverwatch_disk_sample_duration_seconds",
			Help:    "Disk usage sample duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	ProgressPercent = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "moverwatch_progress_percent",
			Help: "Current transfer progress percentage",
		},
	)

	ETCSeconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "moverwatch_etc_seconds",
			Help: "Estimated seconds until the transfer completes",
		},
	)

	// Dispatch metrics
	QueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "moverwatch_dispatch_queue_depth",
			Help: "Messages currently waiting in the dispatch queue",
		},
	)

	MessagesEnqueued = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moverwatch_dispatch_enqueued_total",
			Help: "Messages accepted into the queue by priority",
		},
		[]string{"priority"},
	)

	MessagesDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moverwatch_dispatch_dropped_total",
			Help: "Messages rejected before enqueue by reason",
		},
		[]string{"reason"},
	)

	DeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moverwatch_deliveries_total",
			Help: "Provider delivery attempts by provider and result",
		},
		[]string{"provider", "result"},
	)

	DeliveryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "moverwatch_delivery_duration_seconds",
			Help:    "End-to-end delivery duration per provider in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider"},
	)

	RateLimitWait = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "moverwatch_rate_limit_wait_seconds",
			Help:    "Time spent waiting on rate-limit tokens in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	BreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "moverwatch_breaker_state",
			Help: "Circuit breaker state per provider (0 closed, 1 half-open, 2 open)",
		},
		[]string{"provider"},
	)

	// Error metrics
	ErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moverwatch_errors_total",
			Help: "Classified errors by category and severity",
		},
		[]string{"category", "severity"},
	)
)

func init() {
	prometheus.MustRegister(MonitorState)
	prometheus.MustRegister(StateTransitions)
	prometheus.MustRegister(SamplesTotal)
	prometheus.MustRegister(SampleDuration)
	prometheus.MustRegister(ProgressPercent)
	prometheus.MustRegister(ETCSeconds)
	prometheus.MustRegister(QueueDepth)
	prometheus.MustRegister(MessagesEnqueued)
	prometheus.MustRegister(MessagesDropped)
	prometheus.MustRegister(DeliveriesTotal)
	prometheus.MustRegister(DeliveryDuration)
	prometheus.MustRegister(RateLimitWait)
	prometheus.MustRegister(BreakerState)
	prometheus.MustRegister(ErrorsTotal)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
