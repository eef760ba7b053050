package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pmb_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pmb_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	}, []string{"method", "path"})
)

// Analysis metrics
var (
	AnalysesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pmb_risk_analyses_total",
		Help: "Total number of risk analyses performed",
	}, []string{"content_type"})

	AnalysesDegradedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pmb_risk_analyses_degraded_total",
		Help: "Total number of analyses that fell back to a degraded result",
	})

	RiskFactorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pmb_risk_factors_total",
		Help: "Total number of risk factors detected",
	}, []string{"type"})

	AutoFlagsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pmb_auto_flags_total",
		Help: "Total number of content items auto-flagged for review",
	})
)

// Orchestrator metrics
var (
	OperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pmb_operations_total",
		Help: "Total number of orchestrated operations",
	}, []string{"action", "status"})

	OperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pmb_operation_duration_seconds",
		Help:    "Orchestrated operation duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	}, []string{"action"})

	BatchItemsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pmb_batch_items_total",
		Help: "Total number of batch items by outcome",
	}, []string{"outcome"})
)

// Event bus metrics
var (
	EventsEmittedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pmb_events_emitted_total",
		Help: "Total number of events emitted on the bus",
	}, []string{"event"})

	EventsDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pmb_events_dropped_total",
		Help: "Total number of events dropped because a subscriber buffer was full",
	}, []string{"event"})
)

// Queue gauges (updated periodically by the collector)
var (
	QueueItemsByStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "pmb_queue_items_by_status",
		Help: "Number of moderation queue items by status",
	}, []string{"status"})

	QueueHighPriorityPending = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pmb_queue_high_priority_pending",
		Help: "Number of pending queue items at priority 4 or 5",
	})

	QueueProcessedToday = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pmb_queue_processed_today",
		Help: "Number of queue items resolved since UTC midnight",
	})
)

// Health gauges
var (
	ServiceUp = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "pmb_service_up",
		Help: "Dependency health by service (1=up, 0=down)",
	}, []string{"service"})

	HealthState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pmb_health_state",
		Help: "Overall health (1=healthy, 0.5=degraded, 0=unhealthy)",
	})
)

// GaugeValue reads the current value of a prometheus.Gauge.
func GaugeValue(g prometheus.Gauge) float64 {
	m := &dto.Metric{}
	if err := g.Write(m); err != nil {
		return 0
	}
	if m.Gauge != nil {
		return m.GetGauge().GetValue()
	}
	return 0
}

// NormalizePath reduces high-cardinality path labels by replacing dynamic
// segments with placeholders. This keeps the metric label space bounded.
func NormalizePath(path string) string {
	segments := splitPath(path)
	if len(segments) < 3 || segments[0] != "v1" {
		return path
	}

	// Routes like /v1/queue/{id}/moderate carry the queue id as the third
	// segment.
	if segments[1] == "queue" {
		switch segments[2] {
		case "stats", "bulk-moderate":
			return path
		}
		if len(segments) == 4 {
			return "/v1/queue/:id/" + segments[3]
		}
		return "/v1/queue/:id"
	}

	return path
}

func splitPath(path string) []string {
	// Skip leading slash
	if len(path) > 0 && path[0] == '/' {
		path = path[1:]
	}
	var segments []string
	start := 0
	for i := 0; i < len(path); i++ {
		if path[i] == '/' {
			segments = append(segments, path[start:i])
			start = i + 1
		}
	}
	if start < len(path) {
		segments = append(segments, path[start:])
	}
	return segments
}
