package snapshot

import (
	"sync"
	"time"

	"github.com/go-logr/logr"
	"k8s.io/utils/clock"

	"github.com/devzero-inc/rbd-label-exporter/internal/rbd"
)

// Snapshot is the result of one refresh cycle. Readers must treat Images
// as read-only.
type Snapshot struct {
	Images        map[rbd.ImageID]rbd.LabelSet
	FetchDuration time.Duration
	// RefreshedAt is zero until the first Replace.
	RefreshedAt time.Time
}

// Store guards the single current Snapshot. The refresh loop writes through
// Replace and scrapes read through WithSnapshot; there is no other access.
type Store struct {
	clock clock.PassiveClock
	log   logr.Logger

	mu   sync.RWMutex
	snap Snapshot
}

// NewStore creates an empty Store stamping refreshes with clk
func NewStore(clk clock.PassiveClock, log logr.Logger) *Store {
	return &Store{
		clock: clk,
		log:   log,
		snap: Snapshot{
			Images: make(map[rbd.ImageID]rbd.LabelSet),
		},
	}
}

// Replace swaps in a fully built image map. The caller must not modify
// images afterwards.
func (s *Store) Replace(images map[rbd.ImageID]rbd.LabelSet, took time.Duration) {
	if images == nil {
		images = make(map[rbd.ImageID]rbd.LabelSet)
	}
	now := s.clock.Now()

	s.log.V(1).Info("Acquiring snapshot write lock")
	s.mu.Lock()
	s.snap = Snapshot{
		Images:        images,
		FetchDuration: took,
		RefreshedAt:   now,
	}
	s.mu.Unlock()
	s.log.V(1).Info("Released snapshot write lock", "images", len(images))
}

// WithSnapshot calls fn with the current snapshot while holding the read
// lock. fn must not retain the map or call Replace.
func (s *Store) WithSnapshot(fn func(Snapshot) error) error {
	s.log.V(1).Info("Acquiring snapshot read lock")
	s.mu.RLock()
	defer func() {
		s.mu.RUnlock()
		s.log.V(1).Info("Released snapshot read lock")
	}()
	return fn(s.snap)
}
