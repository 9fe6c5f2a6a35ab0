package queue

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Type identifies which waiting line an entry belongs to. The vitals queue is
// strictly first-come-first-served; the doctor queue is ordered by priority.
type Type string

const (
	TypeVitals Type = "vitals"
	TypeDoctor Type = "doctor"
)

// Valid reports whether t is a known queue type.
func (t Type) Valid() bool {
	return t == TypeVitals || t == TypeDoctor
}

// Status is the lifecycle state of a queue entry.
//
//	waiting -> in-progress -> completed
//	waiting -> no-show
//
// completed and no-show are terminal.
type Status string

const (
	StatusWaiting    Status = "waiting"
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
	StatusNoShow     Status = "no-show"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusWaiting, StatusInProgress, StatusCompleted, StatusNoShow:
		return true
	}
	return false
}

// Terminal reports whether s admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusNoShow
}

// Entry maps to the queue_positions table. One row per active visit in a
// queue. IsAppointment is the explicit discriminant between walk-in/referral
// entries and entries spawned from a confirmed appointment; the orderer
// dispatches on it.
type Entry struct {
	ID                uuid.UUID  `db:"id" json:"id"`
	PatientID         uuid.UUID  `db:"patient_id" json:"patient_id"`
	VisitID           uuid.UUID  `db:"visit_id" json:"visit_id"`
	QueueType         Type       `db:"queue_type" json:"queue_type"`
	Status            Status     `db:"status" json:"status"`
	PriorityScore     float64    `db:"priority_score" json:"priority_score"`
	IsAppointment     bool       `db:"is_appointment" json:"is_appointment"`
	DisplayNumber     string     `db:"display_number" json:"display_number"`
	Position          int        `db:"position" json:"position,omitempty"`
	EstimatedWaitTime int        `db:"estimated_wait_time" json:"estimated_wait_time"`
	MinWaitTime       int        `db:"min_wait_time" json:"min_wait_time"`
	MaxWaitTime       int        `db:"max_wait_time" json:"max_wait_time"`
	CriticalFlags     []string   `db:"critical_flags" json:"critical_flags,omitempty"`
	DoctorID          *uuid.UUID `db:"doctor_id" json:"doctor_id,omitempty"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	LastStatusChange  time.Time  `db:"last_status_change" json:"last_status_change"`
}

// Clone returns a deep copy so callers can mutate freely without tearing a
// snapshot someone else is reading.
func (e *Entry) Clone() *Entry {
	c := *e
	if e.CriticalFlags != nil {
		c.CriticalFlags = append([]string(nil), e.CriticalFlags...)
	}
	if e.DoctorID != nil {
		id := *e.DoctorID
		c.DoctorID = &id
	}
	return &c
}

// SnapshotEntry is the per-entry view broadcast to subscribers after every
// completed mutation. The full recomputed list is always published, never a
// delta.
type SnapshotEntry struct {
	ID                uuid.UUID `json:"id"`
	PatientID         uuid.UUID `json:"patient_id"`
	Position          int       `json:"position"`
	Status            Status    `json:"status"`
	EstimatedWaitTime int       `json:"estimated_wait_time"`
	MinWaitTime       int       `json:"min_wait_time"`
	MaxWaitTime       int       `json:"max_wait_time"`
	DisplayNumber     string    `json:"display_number"`
	PriorityScore     float64   `json:"priority_score"`
}

// SnapshotOf projects the waiting entries, already ordered, into the shape
// the change publisher fans out.
func SnapshotOf(entries []*Entry) []SnapshotEntry {
	snap := make([]SnapshotEntry, 0, len(entries))
	for _, e := range entries {
		if e.Status != StatusWaiting {
			continue
		}
		snap = append(snap, SnapshotEntry{
			ID:                e.ID,
			PatientID:         e.PatientID,
			Position:          e.Position,
			Status:            e.Status,
			EstimatedWaitTime: e.EstimatedWaitTime,
			MinWaitTime:       e.MinWaitTime,
			MaxWaitTime:       e.MaxWaitTime,
			DisplayNumber:     e.DisplayNumber,
			PriorityScore:     e.PriorityScore,
		})
	}
	return snap
}

// HistoryRecord maps to the queue_history audit table. One row is appended
// for every status transition and priority change.
type HistoryRecord struct {
	ID         uuid.UUID `db:"id" json:"id"`
	EntryID    uuid.UUID `db:"entry_id" json:"entry_id"`
	VisitID    uuid.UUID `db:"visit_id" json:"visit_id"`
	Event      string    `db:"event" json:"event"`
	FromStatus Status    `db:"from_status" json:"from_status,omitempty"`
	ToStatus   Status    `db:"to_status" json:"to_status,omitempty"`
	Detail     string    `db:"detail" json:"detail,omitempty"`
	RecordedAt time.Time `db:"recorded_at" json:"recorded_at"`
}

// PatientContext is the slice of patient state the queue needs for priority
// and display purposes. Patient identity is owned by the patient registry;
// the queue references it by id only.
type PatientContext struct {
	PatientID      uuid.UUID
	CategoryName   string
	CategoryWeight float64
	// Vulnerabilities and Boosts are parallel: the factor names the patient
	// carries (elderly, wheelchair user, ...) and each factor's priority
	// boost.
	Vulnerabilities []string
	Boosts          []float64
}

// DisplayPrefix returns the single-letter display-number prefix for the
// patient's category, 'A' when the patient has none.
func (p *PatientContext) DisplayPrefix() string {
	name := strings.TrimSpace(p.CategoryName)
	if name == "" {
		return "A"
	}
	return strings.ToUpper(string([]rune(name)[0]))
}
