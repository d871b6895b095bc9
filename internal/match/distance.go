package match

import (
	"math"

	"github.com/vkravcenko/attendance/internal/codec"
)

// EuclideanDistance computes the Euclidean (L2) distance between two
// embeddings. Mismatched or empty vectors yield +Inf so they can never
// qualify as a match candidate.
func EuclideanDistance(a, b codec.Embedding) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return math.Inf(1)
	}

	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}

	return math.Sqrt(sum)
}
