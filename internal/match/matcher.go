// Package match decides which enrolled identity, if any, a probe embedding
// represents. The decision is deterministic: distances are ranked exactly,
// the threshold boundary is inclusive, and equal minimal distances are
// broken by enrollment order (earliest enrolled wins).
package match

import "github.com/vkravcenko/attendance/internal/codec"

// DefaultThreshold is the maximum Euclidean distance for a probe to count
// as a match. 0.6 mirrors common face-embedding practice.
const DefaultThreshold = 0.6

// Candidate is one enrolled identity considered for matching. Candidates
// are ordered by enrollment; the slice index is the tie-break rank.
type Candidate struct {
	Identity  string
	Embedding codec.Embedding
}

// Outcome is the result of matching a probe against a gallery snapshot.
// An unmatched probe ("unknown") is a normal outcome, not an error.
type Outcome struct {
	Identity string
	Distance float64
	Matched  bool
}

// Match compares the probe against every candidate and returns the best
// match within threshold, or an unmatched outcome. For a fixed snapshot and
// probe the result is identical on repeated calls: the scan follows
// enrollment order and a later candidate replaces the current best only on
// a strictly smaller distance, so equal minima keep the earliest identity.
func Match(probe codec.Embedding, candidates []Candidate, threshold float64) Outcome {
	best := Outcome{}
	for _, c := range candidates {
		d := EuclideanDistance(probe, c.Embedding)
		if d > threshold {
			continue
		}
		if !best.Matched || d < best.Distance {
			best = Outcome{Identity: c.Identity, Distance: d, Matched: true}
		}
	}
	return best
}
