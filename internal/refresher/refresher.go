package refresher

import (
	"context"
	"time"

	"github.com/go-logr/logr"
	"k8s.io/utils/clock"

	"github.com/devzero-inc/rbd-label-exporter/internal/metrics"
	"github.com/devzero-inc/rbd-label-exporter/internal/rbd"
)

// DefaultInterval is how often image metadata is re-read from the cluster.
const DefaultInterval = 30 * time.Second

// Fetcher produces a complete image label mapping. It absorbs its own
// failures and returns an empty map at worst.
type Fetcher interface {
	Fetch(ctx context.Context) map[rbd.ImageID]rbd.LabelSet
}

// Store receives each freshly fetched mapping
type Store interface {
	Replace(images map[rbd.ImageID]rbd.LabelSet, took time.Duration)
}

// Refresher periodically fetches image labels and swaps them into a Store
type Refresher struct {
	interval time.Duration
	clock    clock.WithTicker
	fetcher  Fetcher
	store    Store
	log      logr.Logger
	metrics  *metrics.Metrics
}

// NewRefresher creates a new Refresher. A non-positive interval falls back
// to DefaultInterval.
func NewRefresher(interval time.Duration, clk clock.WithTicker, fetcher Fetcher, store Store, log logr.Logger, m *metrics.Metrics) *Refresher {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Refresher{
		interval: interval,
		clock:    clk,
		fetcher:  fetcher,
		store:    store,
		log:      log,
		metrics:  m,
	}
}

// Run refreshes once immediately and then on every tick until ctx is done
func (r *Refresher) Run(ctx context.Context) {
	ticker := r.clock.NewTicker(r.interval)
	defer ticker.Stop()

	r.log.Info("Starting refresh loop", "interval", r.interval)
	r.refresh(ctx)

	for {
		select {
		case <-ctx.Done():
			r.log.Info("Refresh loop stopped")
			return
		case <-ticker.C():
			r.refresh(ctx)
		}
	}
}

func (r *Refresher) refresh(ctx context.Context) {
	start := r.clock.Now()
	images := r.fetcher.Fetch(ctx)
	took := r.clock.Since(start)

	// A fetch cut short by shutdown is partial; keep serving the last snapshot
	if ctx.Err() != nil {
		r.log.Info("Refresh interrupted, keeping previous snapshot", "elapsed", took.Seconds())
		return
	}

	r.log.V(1).Info("Replacing snapshot", "images", len(images))
	r.store.Replace(images, took)

	r.metrics.LastRefreshImages.Set(float64(len(images)))
	r.metrics.RefreshesTotal.Inc()
	r.log.Info("Refreshed image metadata", "images", len(images), "elapsed", took.Seconds())
}
