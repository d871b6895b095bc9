package match

import (
	"fmt"
	"sync"

	"github.com/coder/hnsw"

	"github.com/vkravcenko/attendance/internal/codec"
)

const (
	indexMaxNeighbors = 16

	// indexSearchK is how many approximate neighbors are pulled from the
	// graph before the exact re-rank. Large enough that ties at the
	// threshold boundary are still resolved by enrollment order.
	indexSearchK = 16
)

// Index accelerates matching for large galleries with an HNSW graph.
// Search results are re-ranked with exact Euclidean distances and the same
// enrollment-order tie-break as Match, so the decision stays deterministic;
// only candidate recall is approximate.
type Index struct {
	graph      *hnsw.Graph[int]
	candidates []Candidate
	mu         sync.RWMutex
}

// NewIndex builds an index over the given snapshot. Node keys are
// enrollment positions.
func NewIndex(candidates []Candidate) (*Index, error) {
	g := hnsw.NewGraph[int]()
	g.M = indexMaxNeighbors
	g.Ml = 1.0 / float64(indexMaxNeighbors)
	g.Distance = hnsw.EuclideanDistance

	for i, c := range candidates {
		if len(c.Embedding) == 0 {
			return nil, fmt.Errorf("candidate %q has an empty embedding", c.Identity)
		}
		g.Add(hnsw.MakeNode(i, c.Embedding))
	}

	snapshot := make([]Candidate, len(candidates))
	copy(snapshot, candidates)

	return &Index{graph: g, candidates: snapshot}, nil
}

// Match finds the best identity for the probe using the graph, then applies
// the exact threshold decision and tie-break over the returned neighbors.
func (ix *Index) Match(probe codec.Embedding, threshold float64) Outcome {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if len(ix.candidates) == 0 {
		return Outcome{}
	}

	neighbors := ix.graph.Search(probe, indexSearchK)

	best := Outcome{}
	bestRank := -1
	for _, n := range neighbors {
		if n.Key < 0 || n.Key >= len(ix.candidates) {
			continue
		}
		c := ix.candidates[n.Key]
		d := EuclideanDistance(probe, c.Embedding)
		if d > threshold {
			continue
		}
		if !best.Matched || d < best.Distance || (d == best.Distance && n.Key < bestRank) {
			best = Outcome{Identity: c.Identity, Distance: d, Matched: true}
			bestRank = n.Key
		}
	}
	return best
}

// Len returns the number of indexed candidates.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.candidates)
}
