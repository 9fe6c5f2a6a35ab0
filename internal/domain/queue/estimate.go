package queue

import "math"

const (
	// defaultServiceMinutes is used when no consultation history exists at all.
	defaultServiceMinutes = 15

	// minBucketSamples is how many historical consultations a severity bucket
	// needs before its median is trusted over the global average.
	minBucketSamples = 6

	// DefaultVitalsMinutes is the flat per-patient estimate for the
	// pre-triage vitals queue.
	DefaultVitalsMinutes = 5
)

// BucketStat summarises historical consultation durations for one severity
// bucket.
type BucketStat struct {
	Median float64
	Count  int
}

// ServiceStats carries the historical service-time inputs of the wait-time
// estimator. Buckets are keyed by SeverityBucket of the consultation's
// severity score.
type ServiceStats struct {
	// GlobalAverage is the mean consultation length in minutes over all
	// completed visits, 0 when there is no history.
	GlobalAverage float64
	Buckets       map[int]BucketStat
}

// SeverityBucket maps a severity score onto one of eleven buckets (0.0, 0.1,
// ... 1.0) so medians aggregate over usefully-sized sample sets.
func SeverityBucket(severity float64) int {
	return int(math.Round(clamp01(sanitize(severity)) * 10))
}

func (s ServiceStats) baseWaitFor(severity float64) float64 {
	if b, ok := s.Buckets[SeverityBucket(severity)]; ok && b.Count >= minBucketSamples {
		return b.Median
	}
	if s.GlobalAverage > 0 {
		return s.GlobalAverage
	}
	return defaultServiceMinutes
}

// Estimator derives per-entry wait estimates from queue position, staffing,
// and historical service times. It is invoked exactly once per mutation for
// every waiting entry, since a single insertion or removal shifts every
// downstream position.
type Estimator struct {
	// VitalsMinutesPerPatient is the flat per-patient minutes used for the
	// vitals queue.
	VitalsMinutesPerPatient int
}

// NewEstimator returns an Estimator with the default vitals pacing.
func NewEstimator() *Estimator {
	return &Estimator{VitalsMinutesPerPatient: DefaultVitalsMinutes}
}

// Estimate recomputes EstimatedWaitTime, MinWaitTime, and MaxWaitTime for
// every entry of an ordered waiting set. Entries must already carry their
// positions from Reorder.
func (est *Estimator) Estimate(ordered []*Entry, queueType Type, availableStaff int, stats ServiceStats) {
	if queueType == TypeVitals {
		per := est.VitalsMinutesPerPatient
		if per <= 0 {
			per = DefaultVitalsMinutes
		}
		for _, e := range ordered {
			// Head of the queue is being taken now; only patients ahead of an
			// entry contribute to its wait.
			wait := (e.Position - 1) * per
			e.EstimatedWaitTime = wait
			e.MinWaitTime = wait
			e.MaxWaitTime = wait
		}
		return
	}

	if availableStaff < 1 {
		availableStaff = 1
	}

	for i, e := range ordered {
		// i is the 0-indexed position: the head of the queue is served now,
		// so parallel staff only matter for everyone behind it.
		positionFactor := math.Ceil(float64(i) / float64(availableStaff))

		severity := clamp01(sanitize(e.PriorityScore))
		priorityFactor := 1 - severity*0.6
		criticalAdjustment := float64(len(e.CriticalFlags)) * 0.05
		adjustedFactor := math.Max(0.4, priorityFactor-criticalAdjustment)

		base := stats.baseWaitFor(severity)

		minWait := math.Max(3, math.Round(base*positionFactor*adjustedFactor*0.8))
		maxWait := math.Round(base * positionFactor * adjustedFactor * 1.2)

		e.MinWaitTime = int(minWait)
		e.MaxWaitTime = int(maxWait)
		e.EstimatedWaitTime = int(math.Round((minWait + maxWait) / 2))
	}
}
