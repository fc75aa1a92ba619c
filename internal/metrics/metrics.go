package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Namespace prefixes the exporter's own operational metrics.
const Namespace = "rbd_label_exporter"

// Skip reasons for SkippedTotal.
const (
	ReasonImageList     = "image_list"
	ReasonImageMetadata = "image_metadata"
	ReasonMissingLabel  = "missing_label"
)

// Metrics holds Prometheus metrics describing the exporter itself.
type Metrics struct {
	RefreshesTotal    prometheus.Counter
	CommandFailures   *prometheus.CounterVec
	SkippedTotal      *prometheus.CounterVec
	LastRefreshImages prometheus.Gauge
}

// NewMetrics initializes the metrics and registers them with reg.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RefreshesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name:      "refreshes_total",
				Namespace: namespace,
				Help:      "Number of completed image metadata refresh cycles.",
			},
		),
		CommandFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:      "command_failures_total",
				Namespace: namespace,
				Help:      "Number of cluster CLI invocations that failed or exited nonzero.",
			},
			[]string{"command"},
		),
		SkippedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:      "skipped_total",
				Namespace: namespace,
				Help:      "Number of pools or images skipped, by reason.",
			},
			[]string{"reason"},
		),
		LastRefreshImages: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name:      "last_refresh_images",
				Namespace: namespace,
				Help:      "Number of images found by the most recent refresh.",
			},
		),
	}

	reg.MustRegister(
		m.RefreshesTotal,
		m.CommandFailures,
		m.SkippedTotal,
		m.LastRefreshImages,
	)

	return m
}
