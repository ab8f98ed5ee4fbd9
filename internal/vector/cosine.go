// Package vector holds the embedding math and the persisted vector codec.
package vector

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Sentinel is the similarity reported when cosine is undefined. It sits below every
// valid similarity so an undefined pair can never win a ranking.
const Sentinel = -1.0

// Cosine returns the cosine similarity of a and b, or Sentinel when either vector is
// empty, has zero norm, or the lengths differ.
func Cosine(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return Sentinel
	}

	normA := floats.Norm(a, 2)
	normB := floats.Norm(b, 2)
	if normA == 0 || normB == 0 {
		return Sentinel
	}

	sim := floats.Dot(a, b) / (normA * normB)
	if math.IsNaN(sim) || math.IsInf(sim, 0) {
		return Sentinel
	}
	return math.Max(-1, math.Min(1, sim))
}
