package exporter

import (
	"strings"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	clocktesting "k8s.io/utils/clock/testing"

	"github.com/devzero-inc/rbd-label-exporter/internal/metrics"
	"github.com/devzero-inc/rbd-label-exporter/internal/rbd"
	"github.com/devzero-inc/rbd-label-exporter/internal/snapshot"
)

var epoch = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

const (
	imageLabelsHeader = `
# HELP ceph_rbd_image_labels rbd image labels coming from metadata
# TYPE ceph_rbd_image_labels gauge
`
	collectSecondsHeader = `
# HELP ceph_rbd_image_labels_collect_seconds time taken to gather rbd image labels from ceph (secs)
# TYPE ceph_rbd_image_labels_collect_seconds gauge
`
)

func newStore(images map[rbd.ImageID]rbd.LabelSet, took time.Duration) *snapshot.Store {
	store := snapshot.NewStore(clocktesting.NewFakePassiveClock(epoch), logr.Discard())
	store.Replace(images, took)
	return store
}

func newTestCollector(t *testing.T, store SnapshotReader, policy MissingLabelPolicy) (*Collector, *metrics.Metrics) {
	m := metrics.NewMetrics("test", prometheus.NewRegistry())
	return NewCollector(store, nil, policy, zapr.NewLogger(zaptest.NewLogger(t)), m), m
}

func TestCollect(t *testing.T) {
	store := newStore(map[rbd.ImageID]rbd.LabelSet{
		"rbd/foo":         {"pool": "rbd", "image": "foo", "namespace": "ns1", "PV": "pv1", "PVC": "pvc1"},
		"replicapool/foo": {"pool": "replicapool", "image": "foo", "namespace": "ns2", "PV": "pv2", "PVC": "pvc2", "extra": "ignored"},
	}, 1500*time.Millisecond)
	c, _ := newTestCollector(t, store, MissingLabelEmpty)

	expected := imageLabelsHeader + `
ceph_rbd_image_labels{image="foo",namespace="ns1",pool="rbd",pv="pv1",pvc="pvc1"} 1
ceph_rbd_image_labels{image="foo",namespace="ns2",pool="replicapool",pv="pv2",pvc="pvc2"} 1
` + collectSecondsHeader + `
ceph_rbd_image_labels_collect_seconds 1.5
# HELP ceph_rbd_image_labels_last_refresh_timestamp_seconds unix time of the last rbd image label refresh, 0 before the first one
# TYPE ceph_rbd_image_labels_last_refresh_timestamp_seconds gauge
ceph_rbd_image_labels_last_refresh_timestamp_seconds 1.7145648e+09
`
	require.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(expected)))
}

func TestCollectBeforeFirstRefresh(t *testing.T) {
	store := snapshot.NewStore(clocktesting.NewFakePassiveClock(epoch), logr.Discard())
	c, _ := newTestCollector(t, store, MissingLabelEmpty)

	expected := collectSecondsHeader + `
ceph_rbd_image_labels_collect_seconds 0
# HELP ceph_rbd_image_labels_last_refresh_timestamp_seconds unix time of the last rbd image label refresh, 0 before the first one
# TYPE ceph_rbd_image_labels_last_refresh_timestamp_seconds gauge
ceph_rbd_image_labels_last_refresh_timestamp_seconds 0
`
	require.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(expected)))
	assert.Equal(t, 2, testutil.CollectAndCount(c))
}

func TestCollectMissingLabelEmpty(t *testing.T) {
	store := newStore(map[rbd.ImageID]rbd.LabelSet{
		"rbd/bare": {"pool": "rbd", "image": "bare", "namespace": "ns1"},
		"rbd/foo":  {"pool": "rbd", "image": "foo", "namespace": "ns1", "PV": "pv1", "PVC": "pvc1"},
	}, time.Second)
	c, m := newTestCollector(t, store, MissingLabelEmpty)

	expected := imageLabelsHeader + `
ceph_rbd_image_labels{image="bare",namespace="ns1",pool="rbd",pv="",pvc=""} 1
ceph_rbd_image_labels{image="foo",namespace="ns1",pool="rbd",pv="pv1",pvc="pvc1"} 1
`
	require.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(expected), "ceph_rbd_image_labels"))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.SkippedTotal.WithLabelValues(metrics.ReasonMissingLabel)))
}

func TestCollectMissingLabelSkip(t *testing.T) {
	store := newStore(map[rbd.ImageID]rbd.LabelSet{
		"rbd/bare": {"pool": "rbd", "image": "bare"},
		"rbd/foo":  {"pool": "rbd", "image": "foo", "namespace": "ns1", "PV": "pv1", "PVC": "pvc1"},
	}, time.Second)
	c, m := newTestCollector(t, store, MissingLabelSkip)

	expected := imageLabelsHeader + `
ceph_rbd_image_labels{image="foo",namespace="ns1",pool="rbd",pv="pv1",pvc="pvc1"} 1
`
	require.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(expected), "ceph_rbd_image_labels"))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SkippedTotal.WithLabelValues(metrics.ReasonMissingLabel)))
}

func TestCollectIsIdempotent(t *testing.T) {
	store := newStore(map[rbd.ImageID]rbd.LabelSet{
		"rbd/a": {"pool": "rbd", "image": "a", "namespace": "ns", "PV": "pv-a", "PVC": "pvc-a"},
		"rbd/b": {"pool": "rbd", "image": "b", "namespace": "ns", "PV": "pv-b", "PVC": "pvc-b"},
		"rbd/c": {"pool": "rbd", "image": "c"},
	}, 250*time.Millisecond)
	c, _ := newTestCollector(t, store, MissingLabelEmpty)

	reg := prometheus.NewPedanticRegistry()
	reg.MustRegister(c)

	first, err := reg.Gather()
	require.NoError(t, err)
	second, err := reg.Gather()
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestCollectCustomSchema(t *testing.T) {
	store := newStore(map[rbd.ImageID]rbd.LabelSet{
		"rbd/foo": {"pool": "rbd", "image": "foo", "team": "storage"},
	}, time.Second)
	m := metrics.NewMetrics("test", prometheus.NewRegistry())
	c := NewCollector(store, []LabelMapping{
		{Metric: "image", Key: rbd.LabelImage},
		{Metric: "owner", Key: "team"},
	}, MissingLabelSkip, logr.Discard(), m)

	expected := imageLabelsHeader + `
ceph_rbd_image_labels{image="foo",owner="storage"} 1
`
	require.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(expected), "ceph_rbd_image_labels"))
}

func TestParseMissingLabelPolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    MissingLabelPolicy
		wantErr bool
	}{
		{in: "empty", want: MissingLabelEmpty},
		{in: "SKIP", want: MissingLabelSkip},
		{in: "drop", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMissingLabelPolicy(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
