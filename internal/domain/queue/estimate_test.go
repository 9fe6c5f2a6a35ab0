package queue

import (
	"testing"
	"time"
)

func orderedDoctorEntries(severities ...float64) []*Entry {
	entries := make([]*Entry, len(severities))
	for i, s := range severities {
		e := entry(s, false, time.Duration(i)*time.Minute)
		e.Position = i + 1
		entries[i] = e
	}
	return entries
}

func TestEstimate_DoctorNoHistory(t *testing.T) {
	est := NewEstimator()
	entries := orderedDoctorEntries(0.5, 0.5, 0.5)

	est.Estimate(entries, TypeDoctor, 1, ServiceStats{})

	// Head of queue: position factor 0, floored minimum applies.
	if entries[0].MinWaitTime != 3 {
		t.Errorf("head min wait = %d, want 3", entries[0].MinWaitTime)
	}

	// Second entry: base 15, priority factor 0.7.
	// min = round(15*1*0.7*0.8) = 8, max = round(15*1*0.7*1.2) = 13.
	if entries[1].MinWaitTime != 8 || entries[1].MaxWaitTime != 13 {
		t.Errorf("second entry min/max = %d/%d, want 8/13", entries[1].MinWaitTime, entries[1].MaxWaitTime)
	}
	if entries[1].EstimatedWaitTime != 11 {
		t.Errorf("second entry estimate = %d, want 11", entries[1].EstimatedWaitTime)
	}

	// Third entry doubles the position factor.
	if entries[2].MinWaitTime != 17 || entries[2].MaxWaitTime != 25 {
		t.Errorf("third entry min/max = %d/%d, want 17/25", entries[2].MinWaitTime, entries[2].MaxWaitTime)
	}
}

func TestEstimate_StaffParallelism(t *testing.T) {
	est := NewEstimator()
	entries := orderedDoctorEntries(0.5, 0.5, 0.5)

	est.Estimate(entries, TypeDoctor, 2, ServiceStats{})

	// With two doctors the second and third entries share a position factor
	// of one.
	if entries[1].EstimatedWaitTime != entries[2].EstimatedWaitTime {
		t.Errorf("entries 2 and 3 should share an estimate with 2 doctors: %d vs %d",
			entries[1].EstimatedWaitTime, entries[2].EstimatedWaitTime)
	}
}

func TestEstimate_ZeroStaffTreatedAsOne(t *testing.T) {
	est := NewEstimator()
	withZero := orderedDoctorEntries(0.5, 0.5)
	withOne := orderedDoctorEntries(0.5, 0.5)

	est.Estimate(withZero, TypeDoctor, 0, ServiceStats{})
	est.Estimate(withOne, TypeDoctor, 1, ServiceStats{})

	for i := range withZero {
		if withZero[i].EstimatedWaitTime != withOne[i].EstimatedWaitTime {
			t.Fatalf("zero staff must estimate like one staff member at position %d", i+1)
		}
	}
}

func TestEstimate_SeverityShortensWait(t *testing.T) {
	est := NewEstimator()
	mild := orderedDoctorEntries(0.1, 0.1)
	severe := orderedDoctorEntries(0.1, 0.9)

	est.Estimate(mild, TypeDoctor, 1, ServiceStats{})
	est.Estimate(severe, TypeDoctor, 1, ServiceStats{})

	if severe[1].EstimatedWaitTime >= mild[1].EstimatedWaitTime {
		t.Errorf("higher severity must shorten the wait: severe=%d mild=%d",
			severe[1].EstimatedWaitTime, mild[1].EstimatedWaitTime)
	}
}

func TestEstimate_CriticalFlagsReduceWait(t *testing.T) {
	est := NewEstimator()
	plain := orderedDoctorEntries(0.5, 0.5)
	flagged := orderedDoctorEntries(0.5, 0.5)
	flagged[1].CriticalFlags = []string{"chest_pain", "difficulty_breathing"}

	est.Estimate(plain, TypeDoctor, 1, ServiceStats{})
	est.Estimate(flagged, TypeDoctor, 1, ServiceStats{})

	if flagged[1].EstimatedWaitTime >= plain[1].EstimatedWaitTime {
		t.Errorf("critical flags must shorten the wait: flagged=%d plain=%d",
			flagged[1].EstimatedWaitTime, plain[1].EstimatedWaitTime)
	}
}

func TestEstimate_AdjustedFactorFloor(t *testing.T) {
	est := NewEstimator()
	entries := orderedDoctorEntries(0.5, 1.0)
	entries[1].CriticalFlags = []string{"a", "b", "c", "d", "e", "f"}

	est.Estimate(entries, TypeDoctor, 1, ServiceStats{})

	// severity 1.0 with six flags would drive the factor to 0.1; the floor
	// holds it at 0.4: min = round(15*1*0.4*0.8) = 5.
	if entries[1].MinWaitTime != 5 {
		t.Errorf("adjusted factor floor not applied, min = %d, want 5", entries[1].MinWaitTime)
	}
}

func TestEstimate_BucketMedianPreferred(t *testing.T) {
	est := NewEstimator()
	stats := ServiceStats{
		GlobalAverage: 10,
		Buckets: map[int]BucketStat{
			5: {Median: 20, Count: 6},
		},
	}
	entries := orderedDoctorEntries(0.5, 0.5)

	est.Estimate(entries, TypeDoctor, 1, stats)

	// base 20, factor 0.7: min = round(20*0.7*0.8) = 11, max = round(16.8) = 17.
	if entries[1].MinWaitTime != 11 || entries[1].MaxWaitTime != 17 {
		t.Errorf("bucket median not used: min/max = %d/%d, want 11/17",
			entries[1].MinWaitTime, entries[1].MaxWaitTime)
	}
}

func TestEstimate_SparseBucketFallsBackToAverage(t *testing.T) {
	est := NewEstimator()
	stats := ServiceStats{
		GlobalAverage: 10,
		Buckets: map[int]BucketStat{
			5: {Median: 20, Count: 5},
		},
	}
	entries := orderedDoctorEntries(0.5, 0.5)

	est.Estimate(entries, TypeDoctor, 1, stats)

	// base 10 from the global average: min = round(10*0.7*0.8) = 6.
	if entries[1].MinWaitTime != 6 {
		t.Errorf("sparse bucket should fall back to global average, min = %d, want 6", entries[1].MinWaitTime)
	}
}

func TestEstimate_VitalsFlatPacing(t *testing.T) {
	est := NewEstimator()
	entries := orderedDoctorEntries(0.9, 0.1, 0.5)
	for _, e := range entries {
		e.QueueType = TypeVitals
	}

	est.Estimate(entries, TypeVitals, 3, ServiceStats{})

	// The head is being taken now and waits 0; each patient behind adds the
	// flat per-patient pace.
	for i, e := range entries {
		want := i * DefaultVitalsMinutes
		if e.EstimatedWaitTime != want || e.MinWaitTime != want || e.MaxWaitTime != want {
			t.Errorf("vitals entry %d: est/min/max = %d/%d/%d, want all %d",
				i+1, e.EstimatedWaitTime, e.MinWaitTime, e.MaxWaitTime, want)
		}
	}
}

func TestEstimate_VitalsHeadWaitsZero(t *testing.T) {
	est := NewEstimator()
	entries := orderedDoctorEntries(0.5)
	entries[0].QueueType = TypeVitals

	est.Estimate(entries, TypeVitals, 1, ServiceStats{})

	if entries[0].EstimatedWaitTime != 0 {
		t.Errorf("head of vitals queue: est = %d, want 0", entries[0].EstimatedWaitTime)
	}
}

func TestSeverityBucket(t *testing.T) {
	cases := []struct {
		severity float64
		want     int
	}{
		{0, 0},
		{0.04, 0},
		{0.05, 1},
		{0.5, 5},
		{0.95, 10},
		{1, 10},
		{1.5, 10},
		{-1, 0},
	}
	for _, tc := range cases {
		if got := SeverityBucket(tc.severity); got != tc.want {
			t.Errorf("SeverityBucket(%v) = %d, want %d", tc.severity, got, tc.want)
		}
	}
}
