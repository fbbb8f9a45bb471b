package knn

import "math"

// Confidence maps an average neighbour distance to a score in [0, 100]:
// 100 / (avgDistance + 1), clamped. It is a monotonic heuristic, not a
// probability; only its ordering is meaningful.
func Confidence(avgDistance float64) float64 {
	if math.IsNaN(avgDistance) {
		return 0
	}
	if avgDistance <= 0 {
		return 100
	}
	return math.Max(0, math.Min(100, 100/(avgDistance+1)))
}
