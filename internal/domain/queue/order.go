package queue

import (
	"fmt"
	"sort"
)

// DefaultAppointmentThreshold is the priority score at which a walk-in
// outranks a scheduled appointment. Appointments represent pre-committed
// clinical slots and must not be starved by walk-ins, but a near-critical
// walk-in must still be seen promptly. Overridable through configuration.
const DefaultAppointmentThreshold = 0.9

// Reorder total-orders the waiting entries of a single queue and assigns
// dense positions 1..N. Non-waiting entries keep position 0. The input slice
// is ordered in place; the returned slice holds only the waiting entries in
// their final order.
//
// The vitals queue is strictly first-come-first-served. The doctor queue
// sorts by priority with appointment-aware tie rules, see orderedBefore.
// Reordering never fails: malformed scores count as 0 and sort last within
// their partition.
func Reorder(entries []*Entry, queueType Type, appointmentThreshold float64) []*Entry {
	waiting := make([]*Entry, 0, len(entries))
	for _, e := range entries {
		if e.Status == StatusWaiting {
			waiting = append(waiting, e)
		} else {
			e.Position = 0
		}
	}

	sort.SliceStable(waiting, func(i, j int) bool {
		if queueType == TypeVitals {
			return arrivalBefore(waiting[i], waiting[j])
		}
		return orderedBefore(waiting[i], waiting[j], appointmentThreshold)
	})

	for i, e := range waiting {
		e.Position = i + 1
	}
	return waiting
}

func arrivalBefore(a, b *Entry) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID.String() < b.ID.String()
}

// orderedBefore is the doctor-queue comparator. When both entries are in the
// same partition (both appointments or both walk-ins) the higher priority
// score wins, ties broken by earlier arrival. Across partitions the
// appointment wins unless the walk-in's score has reached the threshold, in
// which case the walk-in is seen first.
func orderedBefore(a, b *Entry, threshold float64) bool {
	as, bs := clamp01(sanitize(a.PriorityScore)), clamp01(sanitize(b.PriorityScore))

	if a.IsAppointment == b.IsAppointment {
		if as != bs {
			return as > bs
		}
		return arrivalBefore(a, b)
	}
	if a.IsAppointment {
		return bs < threshold
	}
	return as >= threshold
}

// CheckDense verifies the ordering invariant over a waiting set: unique ids
// and positions forming exactly 1..N. A nil return means the ordering is
// sound.
func CheckDense(waiting []*Entry) error {
	seenID := make(map[string]struct{}, len(waiting))
	seenPos := make(map[int]struct{}, len(waiting))
	for _, e := range waiting {
		key := e.ID.String()
		if _, dup := seenID[key]; dup {
			return &InconsistencyError{Reason: fmt.Sprintf("duplicate entry id %s", key)}
		}
		seenID[key] = struct{}{}

		if e.Position < 1 || e.Position > len(waiting) {
			return &InconsistencyError{Reason: fmt.Sprintf("position %d out of range 1..%d", e.Position, len(waiting))}
		}
		if _, dup := seenPos[e.Position]; dup {
			return &InconsistencyError{Reason: fmt.Sprintf("duplicate position %d", e.Position)}
		}
		seenPos[e.Position] = struct{}{}
	}
	return nil
}
