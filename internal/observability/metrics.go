package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sentinel",
		Name:      "events_ingested_total",
		Help:      "Total number of detection events accepted by the pipeline",
	}, []string{"camera_id", "detection_type"})

	EventsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sentinel",
		Name:      "events_rejected_total",
		Help:      "Total number of raw detections rejected during normalization",
	}, []string{"reason"})

	EventsDeduplicated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sentinel",
		Name:      "events_deduplicated_total",
		Help:      "Total number of re-delivered raw detections collapsed onto an existing event",
	}, []string{"camera_id"})

	WatchlistMatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sentinel",
		Name:      "watchlist_matches_total",
		Help:      "Total number of detections correlated to a watchlist person",
	}, []string{"risk_level"})

	LedgerSubmissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sentinel",
		Name:      "ledger_submissions_total",
		Help:      "Total number of ledger write attempts by outcome",
	}, []string{"outcome"})

	LedgerConfirmLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "sentinel",
		Name:      "ledger_confirm_latency_seconds",
		Help:      "Time from outbox enqueue to ledger confirmation",
		Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
	})

	OutboxDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "sentinel",
		Name:      "outbox_depth",
		Help:      "Number of outbox records not yet confirmed or abandoned",
	})

	OutboxAbandoned = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "sentinel",
		Name:      "outbox_abandoned_total",
		Help:      "Total number of events whose ledger anchoring was abandoned",
	})

	BusSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "sentinel",
		Name:      "bus_subscribers",
		Help:      "Number of active event bus subscribers",
	})

	BusDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "sentinel",
		Name:      "bus_dropped_total",
		Help:      "Total number of messages dropped from slow subscriber queues",
	})

	LaneDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "sentinel",
		Name:      "lane_depth",
		Help:      "Queued raw detections per camera processing lane",
	}, []string{"camera_id"})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "sentinel",
		Name:      "ws_connections",
		Help:      "Number of active WebSocket connections",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "sentinel",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})
)
