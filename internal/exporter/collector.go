package exporter

import (
	"fmt"
	"slices"
	"strings"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/devzero-inc/rbd-label-exporter/internal/metrics"
	"github.com/devzero-inc/rbd-label-exporter/internal/rbd"
	"github.com/devzero-inc/rbd-label-exporter/internal/snapshot"
)

// MissingLabelPolicy decides what happens to an image lacking a label key
// the schema expects.
type MissingLabelPolicy string

const (
	// MissingLabelEmpty renders the missing label as the empty string.
	MissingLabelEmpty MissingLabelPolicy = "empty"
	// MissingLabelSkip drops the image from the scrape.
	MissingLabelSkip MissingLabelPolicy = "skip"
)

// ParseMissingLabelPolicy validates a policy name
func ParseMissingLabelPolicy(s string) (MissingLabelPolicy, error) {
	switch p := MissingLabelPolicy(strings.ToLower(s)); p {
	case MissingLabelEmpty, MissingLabelSkip:
		return p, nil
	default:
		return "", fmt.Errorf("unknown missing label policy %q, want %q or %q", s, MissingLabelEmpty, MissingLabelSkip)
	}
}

// LabelMapping binds a metric label name to the LabelSet key it is read from.
type LabelMapping struct {
	Metric string
	Key    string
}

// DefaultLabelSchema is the label set of ceph_rbd_image_labels.
var DefaultLabelSchema = []LabelMapping{
	{Metric: "pool", Key: rbd.LabelPool},
	{Metric: "image", Key: rbd.LabelImage},
	{Metric: "namespace", Key: "namespace"},
	{Metric: "pv", Key: "PV"},
	{Metric: "pvc", Key: "PVC"},
}

// SnapshotReader is the read side of the snapshot store
type SnapshotReader interface {
	WithSnapshot(fn func(snapshot.Snapshot) error) error
}

var _ prometheus.Collector = &Collector{}

// Collector renders the current snapshot as metrics on every scrape
type Collector struct {
	store   SnapshotReader
	schema  []LabelMapping
	policy  MissingLabelPolicy
	log     logr.Logger
	metrics *metrics.Metrics

	imageLabels    *prometheus.Desc
	collectSeconds *prometheus.Desc
	lastRefresh    *prometheus.Desc
}

// NewCollector creates a Collector reading from store. A nil schema uses
// DefaultLabelSchema.
func NewCollector(store SnapshotReader, schema []LabelMapping, policy MissingLabelPolicy, log logr.Logger, m *metrics.Metrics) *Collector {
	if schema == nil {
		schema = DefaultLabelSchema
	}
	labelNames := make([]string, 0, len(schema))
	for _, lm := range schema {
		labelNames = append(labelNames, lm.Metric)
	}

	return &Collector{
		store:   store,
		schema:  schema,
		policy:  policy,
		log:     log,
		metrics: m,
		imageLabels: prometheus.NewDesc(
			prometheus.BuildFQName("ceph", "rbd", "image_labels"),
			"rbd image labels coming from metadata",
			labelNames,
			nil,
		),
		collectSeconds: prometheus.NewDesc(
			prometheus.BuildFQName("ceph", "rbd", "image_labels_collect_seconds"),
			"time taken to gather rbd image labels from ceph (secs)",
			nil,
			nil,
		),
		lastRefresh: prometheus.NewDesc(
			prometheus.BuildFQName("ceph", "rbd", "image_labels_last_refresh_timestamp_seconds"),
			"unix time of the last rbd image label refresh, 0 before the first one",
			nil,
			nil,
		),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.imageLabels
	ch <- c.collectSeconds
	ch <- c.lastRefresh
}

// Collect renders under the store's read lock and sends once it is released
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	var out []prometheus.Metric
	err := c.store.WithSnapshot(func(s snapshot.Snapshot) error {
		out = c.render(s)
		return nil
	})
	if err != nil {
		c.log.Error(err, "Failed to render snapshot")
		return
	}

	for _, m := range out {
		ch <- m
	}
}

func (c *Collector) render(s snapshot.Snapshot) []prometheus.Metric {
	out := make([]prometheus.Metric, 0, len(s.Images)+2)

	var refreshed float64
	if !s.RefreshedAt.IsZero() {
		refreshed = float64(s.RefreshedAt.UnixNano()) / 1e9
	}
	out = append(out,
		prometheus.MustNewConstMetric(c.collectSeconds, prometheus.GaugeValue, s.FetchDuration.Seconds()),
		prometheus.MustNewConstMetric(c.lastRefresh, prometheus.GaugeValue, refreshed),
	)

	ids := make([]rbd.ImageID, 0, len(s.Images))
	for id := range s.Images {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	for _, id := range ids {
		values, ok := c.labelValues(id, s.Images[id])
		if !ok {
			continue
		}
		out = append(out, prometheus.MustNewConstMetric(c.imageLabels, prometheus.GaugeValue, 1, values...))
	}

	return out
}

// labelValues resolves the schema against labels, applying the missing
// label policy. ok is false when the image must be dropped.
func (c *Collector) labelValues(id rbd.ImageID, labels rbd.LabelSet) ([]string, bool) {
	values := make([]string, 0, len(c.schema))
	var missing []string
	for _, lm := range c.schema {
		v, found := labels[lm.Key]
		if !found {
			missing = append(missing, lm.Key)
		}
		values = append(values, v)
	}

	if len(missing) == 0 {
		return values, true
	}

	if c.policy == MissingLabelSkip {
		c.log.Info("Skipping image with missing labels", "image", id, "missing", missing)
		c.metrics.SkippedTotal.WithLabelValues(metrics.ReasonMissingLabel).Inc()
		return nil, false
	}

	c.log.V(1).Info("Image has missing labels, rendering them empty", "image", id, "missing", missing)
	return values, true
}
