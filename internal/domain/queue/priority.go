package queue

import "math"

// ComputePriority combines a patient's category weight and vulnerability
// boosts into a single priority score in [0,1]. When an authoritative triage
// score is available (post-vitals, triageScore non-nil) it supersedes the
// category sum entirely: the scoring service has already factored category
// and vulnerability context into its score.
//
// The function never errors. Negative, NaN, or infinite inputs count as 0,
// and the result is always clamped to [0,1].
func ComputePriority(categoryWeight float64, boosts []float64, triageScore *float64) float64 {
	if triageScore != nil {
		return clamp01(sanitize(*triageScore))
	}

	score := sanitize(categoryWeight)
	for _, b := range boosts {
		score += sanitize(b)
	}
	return clamp01(score)
}

func sanitize(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
