// Package dedup decides which observed frames are novel enough to store.
package dedup

import (
	"fmt"
	"sync"

	"github.com/kdimtricp/timelens/internal/hash"
)

// DefaultSimilarityThreshold is the similarity percentage above which a
// frame is treated as a duplicate of the last stored frame.
const DefaultSimilarityThreshold = 95.0

// Deduplicator keeps one "last stored fingerprint" baseline per source.
// The baseline only advances when a frame is actually stored, so a scene
// flickering around the threshold does not repeatedly re-store.
type Deduplicator struct {
	threshold float64

	mu         sync.Mutex
	lastHashes map[string]string
}

func New(threshold float64) *Deduplicator {
	if threshold <= 0 {
		threshold = DefaultSimilarityThreshold
	}
	return &Deduplicator{
		threshold:  threshold,
		lastHashes: make(map[string]string),
	}
}

// Threshold returns the configured similarity threshold.
func (d *Deduplicator) Threshold() float64 {
	return d.threshold
}

// Evaluate hashes the image and decides whether it should be stored for
// the source. The first observation for a source is always stored with
// similarity 0. Duplicate observations do not reset the baseline.
func (d *Deduplicator) Evaluate(sourceID string, imageBytes []byte) (bool, string, float64, error) {
	current, err := hash.Compute(imageBytes)
	if err != nil {
		return false, "", 0, fmt.Errorf("failed to fingerprint frame: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	last, ok := d.lastHashes[sourceID]
	if !ok {
		d.lastHashes[sourceID] = current
		return true, current, 0, nil
	}

	similarity := hash.Similarity(current, last)
	shouldStore := similarity < d.threshold
	if shouldStore {
		d.lastHashes[sourceID] = current
	}
	return shouldStore, current, similarity, nil
}

// Reset clears the baseline for a source so a restarted session starts
// its own comparison lineage.
func (d *Deduplicator) Reset(sourceID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.lastHashes, sourceID)
}

// Stats reports how many sources currently have a baseline.
func (d *Deduplicator) Stats() (sourcesTracked int, threshold float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.lastHashes), d.threshold
}
