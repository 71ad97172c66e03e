package helper

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/floats"
)

func TestNormalizeUnitNorm(t *testing.T) {
	vectors := [][]float64{
		{3, 4},
		{1, 1, 1, 1},
		{-2.5, 0.1, 7, -0.004},
		{1e-8, 2e-8},
		{100000, -200000, 300000},
	}
	for _, v := range vectors {
		n := Normalize(v)
		assert.InDelta(t, 1.0, floats.Norm(n, 2), 1e-9)
	}
}

func TestNormalizeZeroVector(t *testing.T) {
	n := Normalize([]float64{0, 0, 0})
	assert.Equal(t, []float64{0, 0, 0}, n)
	// A zero embedding must never match anything.
	assert.Equal(t, 0.0, CosineSimilarity(n, []float64{1, 0, 0}))
}

func TestCosineSimilarityScaleInvariant(t *testing.T) {
	a := []float64{0.2, -0.5, 0.8, 0.1}
	b := []float64{0.7, 0.1, -0.3, 0.4}

	base := CosineSimilarity(a, b)
	for _, scale := range []float64{0.001, 0.5, 3, 1000} {
		scaled := make([]float64, len(a))
		copy(scaled, a)
		floats.Scale(scale, scaled)
		assert.InDelta(t, base, CosineSimilarity(scaled, b), 1e-9)
	}
}

func TestCosineDistance(t *testing.T) {
	a := []float64{1, 0}
	assert.InDelta(t, 0.0, CosineDistance(a, a), 1e-9)
	assert.InDelta(t, 1.0, CosineDistance(a, []float64{0, 1}), 1e-9)
	assert.InDelta(t, 2.0, CosineDistance(a, []float64{-1, 0}), 1e-9)

	assert.True(t, math.IsInf(CosineDistance(a, []float64{1, 2, 3}), 1))
	assert.True(t, math.IsInf(CosineDistance(nil, nil), 1))
}

func TestGeolocation(t *testing.T) {
	assert.Equal(t, 0.0, Geolocation(-18.8792, 47.5079, -18.8792, 47.5079))

	// Antananarivo city center to a point ~1.1km north.
	d := Geolocation(-18.8792, 47.5079, -18.8692, 47.5079)
	assert.InDelta(t, 1112, d, 5)
}
