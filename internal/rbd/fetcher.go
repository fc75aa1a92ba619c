package rbd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-logr/logr"
	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/devzero-inc/rbd-label-exporter/internal/cephcli"
	"github.com/devzero-inc/rbd-label-exporter/internal/metrics"
)

// Config holds configuration for the fetcher
type Config struct {
	CephBinary string
	RBDBinary  string
	// Applications a pool must declare one of to be inspected.
	Applications []string
}

// DefaultConfig returns the stock ceph/rbd binaries and the rbd application filter
func DefaultConfig() Config {
	return Config{
		CephBinary:   "ceph",
		RBDBinary:    "rbd",
		Applications: []string{"rbd"},
	}
}

// Fetcher walks pools, images and image-meta tags through the cluster CLI
type Fetcher struct {
	runner       cephcli.Runner
	log          logr.Logger
	metrics      *metrics.Metrics
	cephBinary   string
	rbdBinary    string
	applications sets.Set[string]
}

// NewFetcher creates a new Fetcher instance
func NewFetcher(cfg Config, runner cephcli.Runner, log logr.Logger, m *metrics.Metrics) *Fetcher {
	return &Fetcher{
		runner:       runner,
		log:          log,
		metrics:      m,
		cephBinary:   cfg.CephBinary,
		rbdBinary:    cfg.RBDBinary,
		applications: sets.New(cfg.Applications...),
	}
}

// Fetch returns the labels of every image in every qualifying pool. Failures
// are logged and skip only the affected pool or image; if the pool list
// itself cannot be read the result is empty.
func (f *Fetcher) Fetch(ctx context.Context) map[ImageID]LabelSet {
	images := make(map[ImageID]LabelSet)

	pools, err := f.listPools(ctx)
	if err != nil {
		f.log.Error(err, "Failed to list pools, returning no images")
		return images
	}

	for _, p := range pools {
		if !f.qualifies(p) {
			f.log.V(1).Info("Skipping pool without matching application", "pool", p.Name)
			continue
		}

		names, err := f.listImages(ctx, p.Name)
		if err != nil {
			f.log.Error(err, "Failed to list images, skipping pool", "pool", p.Name)
			f.metrics.SkippedTotal.WithLabelValues(metrics.ReasonImageList).Inc()
			continue
		}

		for _, name := range names {
			tags, err := f.imageMeta(ctx, p.Name, name)
			if err != nil {
				f.log.Error(err, "Failed to read image metadata, skipping image", "pool", p.Name, "image", name)
				f.metrics.SkippedTotal.WithLabelValues(metrics.ReasonImageMetadata).Inc()
				continue
			}

			labels := make(LabelSet, len(tags)+2)
			for k, v := range tags {
				labels[k] = v
			}
			labels[LabelPool] = p.Name
			labels[LabelImage] = name

			images[NewImageID(p.Name, name)] = labels
		}
	}

	return images
}

func (f *Fetcher) qualifies(p pool) bool {
	for app := range p.ApplicationMetadata {
		if f.applications.Has(app) {
			return true
		}
	}
	return false
}

func (f *Fetcher) listPools(ctx context.Context) ([]pool, error) {
	var pools []pool
	if err := f.runJSON(ctx, cephcli.Command{
		Name: f.cephBinary,
		Args: []string{"osd", "pool", "ls", "detail", "-f", "json"},
	}, &pools); err != nil {
		return nil, err
	}
	return pools, nil
}

func (f *Fetcher) listImages(ctx context.Context, poolName string) ([]string, error) {
	var names []string
	if err := f.runJSON(ctx, cephcli.Command{
		Name: f.rbdBinary,
		Args: []string{"ls", "-p", poolName, "--format", "json"},
	}, &names); err != nil {
		return nil, err
	}
	return names, nil
}

func (f *Fetcher) imageMeta(ctx context.Context, poolName, image string) (map[string]string, error) {
	var tags map[string]string
	if err := f.runJSON(ctx, cephcli.Command{
		Name: f.rbdBinary,
		Args: []string{"image-meta", "list", poolName + "/" + image, "--format", "json"},
	}, &tags); err != nil {
		return nil, err
	}
	return tags, nil
}

// runJSON runs cmd and decodes its stdout into out. Nonzero exits, empty
// output and malformed JSON are all errors.
func (f *Fetcher) runJSON(ctx context.Context, cmd cephcli.Command, out any) error {
	res := f.runner.Run(ctx, cmd)
	if res.Err != nil {
		return fmt.Errorf("running %q: %w", cmd, res.Err)
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("%q exited with status %d", cmd, res.ExitCode)
	}
	if len(bytes.TrimSpace(res.Stdout)) == 0 {
		return fmt.Errorf("%q returned no output", cmd)
	}
	if err := json.Unmarshal(res.Stdout, out); err != nil {
		return fmt.Errorf("parsing output of %q: %w", cmd, err)
	}
	return nil
}
