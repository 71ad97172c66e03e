package helper

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Normalize returns a unit-length copy of v. A zero vector comes back as a
// zero-filled copy rather than NaNs so a broken embedding can never match
// anything (its cosine similarity stays 0).
func Normalize(v []float64) []float64 {
	out := make([]float64, len(v))
	norm := floats.Norm(v, 2)
	if norm == 0 {
		return out
	}
	copy(out, v)
	floats.Scale(1/norm, out)
	return out
}

// CosineSimilarity between two vectors of equal length. Mismatched or empty
// vectors score 0.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	na := floats.Norm(a, 2)
	nb := floats.Norm(b, 2)
	if na == 0 || nb == 0 {
		return 0
	}
	return floats.Dot(a, b) / (na * nb)
}

// CosineDistance is 1 - cosine similarity; +Inf for incomparable vectors so
// they can never win a nearest-neighbor search.
func CosineDistance(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return math.Inf(1)
	}
	return 1 - CosineSimilarity(a, b)
}
