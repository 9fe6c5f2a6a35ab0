// Package registry holds the front-desk master data: patients with their
// priority categories and vulnerability factors, the staff roster, and
// visits. A visit is the unit the queues operate on; check-in opens one.
package registry

import (
	"time"

	"github.com/google/uuid"
)

// Patient is a registered patient with their resolved category.
type Patient struct {
	ID              uuid.UUID `json:"id"`
	Name            string    `json:"name"`
	Phone           string    `json:"phone,omitempty"`
	CategoryID      uuid.UUID `json:"category_id"`
	CategoryName    string    `json:"category_name,omitempty"`
	Vulnerabilities []string  `json:"vulnerabilities,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// Category is a patient priority category with its base weight.
type Category struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	PriorityWeight float64   `json:"priority_weight"`
}

// VulnerabilityFactor is a registered factor and the priority boost it adds.
type VulnerabilityFactor struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Boost float64   `json:"boost"`
}

// StaffMember is a roster entry. Available doctors drive wait-time
// estimation; contact is where urgent-case alerts go.
type StaffMember struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	Available bool      `json:"available"`
	Contact   string    `json:"contact,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Visit statuses.
const (
	VisitWaiting   = "waiting"
	VisitCompleted = "completed"
	VisitCancelled = "cancelled"
)

// Visit is one patient attendance, opened at check-in.
type Visit struct {
	ID          uuid.UUID `json:"id"`
	PatientID   uuid.UUID `json:"patient_id"`
	CheckInTime time.Time `json:"check_in_time"`
	Status      string    `json:"status"`
}
