package faces

import (
	"math"

	"TMIFACE/helper"
)

// DefaultThreshold is the tuned cosine-distance cutoff for an accepted
// identity match.
const DefaultThreshold = 0.59999

// Match runs a nearest-neighbor search of the query vector over a snapshot
// and returns the closest label strictly under the threshold, with its
// distance. No match (including an empty snapshot) returns ("", +Inf).
//
// The query is normalized first, so callers may pass raw detector output.
// When two labels sit at exactly the same minimum distance, whichever the
// snapshot iteration visits first wins; the tie-break is deliberately
// unspecified and may differ between calls.
func Match(snapshot map[string][]float64, query []float64, threshold float64) (string, float64) {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	q := helper.Normalize(query)

	best := ""
	bestDist := math.Inf(1)
	for label, emb := range snapshot {
		dist := helper.CosineDistance(q, emb)
		if dist < threshold && dist < bestDist {
			best = label
			bestDist = dist
		}
	}
	if best == "" {
		return "", math.Inf(1)
	}
	return best, bestDist
}

// Match on the store's current snapshot.
func (s *Store) Match(query []float64, threshold float64) (string, float64) {
	return Match(s.Snapshot(), query, threshold)
}
