package facematch

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/kozaktomas/face-attendance/internal/constants"
)

// ErrEmptyGallery is returned when no reference image yielded an embedding.
var ErrEmptyGallery = errors.New("no usable face embeddings in gallery")

// Gallery is the in-memory set of known identities used for nearest-match lookup.
// It is replaced as a whole by Load and is safe for concurrent use.
type Gallery struct {
	mu         sync.RWMutex
	entries    []GalleryEntry
	identities int
	index      *hnswIndex // nil for small galleries
}

// NewGallery creates an empty gallery.
func NewGallery() *Gallery {
	return &Gallery{}
}

// Load replaces the gallery. Entries without an embedding are skipped.
// Fails with ErrEmptyGallery if nothing usable remains, leaving the previous
// contents untouched.
func (g *Gallery) Load(entries []GalleryEntry) error {
	usable := make([]GalleryEntry, 0, len(entries))
	dim := 0
	for _, e := range entries {
		if len(e.Embedding) == 0 {
			continue
		}
		if dim == 0 {
			dim = len(e.Embedding)
		}
		if len(e.Embedding) != dim {
			return fmt.Errorf("embedding for %q has dimension %d, expected %d", e.Identity, len(e.Embedding), dim)
		}
		usable = append(usable, e)
	}
	if len(usable) == 0 {
		return ErrEmptyGallery
	}

	names := make(map[string]struct{}, len(usable))
	for _, e := range usable {
		names[e.Identity] = struct{}{}
	}

	var index *hnswIndex
	if len(usable) >= constants.GalleryIndexThreshold {
		index = newHNSWIndex(usable)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.entries = usable
	g.identities = len(names)
	g.index = index
	return nil
}

// Replace makes g serve the contents of src. src must not be loaded again afterwards.
func (g *Gallery) Replace(src *Gallery) {
	src.mu.RLock()
	entries, identities, index := src.entries, src.identities, src.index
	src.mu.RUnlock()

	g.mu.Lock()
	defer g.mu.Unlock()
	g.entries = entries
	g.identities = identities
	g.index = index
}

// Match finds the nearest gallery entry. The face is reported as unknown when
// the gallery is empty or the nearest distance exceeds tolerance.
func (g *Gallery) Match(embedding []float32, tolerance float64) Match {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if len(g.entries) == 0 || len(embedding) == 0 {
		return unknownMatch()
	}

	best, bestDist := g.nearest(embedding)
	if best < 0 || bestDist > tolerance {
		return unknownMatch()
	}

	e := g.entries[best]
	return Match{
		Identity:   e.Identity,
		EmployeeID: e.EmployeeID,
		Distance:   bestDist,
		Confidence: 1 - bestDist,
	}
}

// nearest must be called with the read lock held.
func (g *Gallery) nearest(embedding []float32) (int, float64) {
	if g.index != nil && len(embedding) == len(g.entries[0].Embedding) {
		if pos, err := g.index.nearest(embedding); err == nil {
			return pos, EuclideanDistance(embedding, g.entries[pos].Embedding)
		}
	}

	best, bestDist := -1, math.Inf(1)
	for i := range g.entries {
		if d := EuclideanDistance(embedding, g.entries[i].Embedding); d < bestDist {
			best, bestDist = i, d
		}
	}
	return best, bestDist
}

// Len returns the number of reference embeddings.
func (g *Gallery) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.entries)
}

// Identities returns the number of distinct identities loaded.
func (g *Gallery) Identities() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.identities
}

// Entries returns a copy of the distinct identities with their employee IDs.
func (g *Gallery) Entries() []GalleryEntry {
	g.mu.RLock()
	defer g.mu.RUnlock()

	seen := make(map[string]struct{}, g.identities)
	out := make([]GalleryEntry, 0, g.identities)
	for _, e := range g.entries {
		if _, ok := seen[e.Identity]; ok {
			continue
		}
		seen[e.Identity] = struct{}{}
		out = append(out, GalleryEntry{Identity: e.Identity, EmployeeID: e.EmployeeID})
	}
	return out
}
