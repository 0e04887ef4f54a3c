package facematch

import (
	"errors"

	"github.com/coder/hnsw"
	"github.com/kozaktomas/face-attendance/internal/constants"
)

// hnswIndex wraps an HNSW graph keyed by gallery position.
type hnswIndex struct {
	graph *hnsw.Graph[int]
}

// newHNSWIndex builds a graph over the given entries using Euclidean distance.
func newHNSWIndex(entries []GalleryEntry) *hnswIndex {
	g := hnsw.NewGraph[int]()
	g.M = constants.HNSWMaxNeighbors
	g.Ml = 1.0 / float64(constants.HNSWMaxNeighbors) // Standard HNSW formula
	g.EfSearch = constants.HNSWEfSearch
	g.Distance = hnsw.EuclideanDistance

	for i := range entries {
		g.Add(hnsw.MakeNode(i, entries[i].Embedding))
	}
	return &hnswIndex{graph: g}
}

// nearest returns the gallery position closest to the query.
func (h *hnswIndex) nearest(query []float32) (int, error) {
	if h.graph == nil || h.graph.Len() == 0 {
		return 0, errors.New("index not initialized")
	}
	neighbors := h.graph.Search(query, 1)
	if len(neighbors) == 0 {
		return 0, errors.New("no neighbors found")
	}
	return neighbors[0].Key, nil
}
