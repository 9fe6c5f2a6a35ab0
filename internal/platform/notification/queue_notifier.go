package notification

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// StaffDirectory resolves the contact address of a staff member. The zero
// uuid asks for the shared front-desk address.
type StaffDirectory interface {
	ContactFor(ctx context.Context, staffID uuid.UUID) (string, error)
}

// StaticDirectory routes every alert to one shared address. It stands in
// until per-doctor contacts are wired to the staff table.
type StaticDirectory struct {
	Address string
}

func (d StaticDirectory) ContactFor(context.Context, uuid.UUID) (string, error) {
	return d.Address, nil
}

// QueueNotifier turns queue engine events into templated notifications. It
// implements the engine's Notifier contract; delivery failures are the
// caller's to log, never to retry inline.
type QueueNotifier struct {
	mgr   *NotificationManager
	staff StaffDirectory
	log   zerolog.Logger
}

func NewQueueNotifier(mgr *NotificationManager, staff StaffDirectory, logger zerolog.Logger) *QueueNotifier {
	return &QueueNotifier{mgr: mgr, staff: staff, log: logger}
}

// NotifyUrgent alerts the front desk about a high-severity patient.
func (n *QueueNotifier) NotifyUrgent(ctx context.Context, patientID uuid.UUID, severityScore float64) error {
	to, err := n.staff.ContactFor(ctx, uuid.Nil)
	if err != nil {
		return err
	}
	_, err = n.mgr.SendFromTemplate(ctx, "urgent-case", map[string]string{
		"patient_id":     patientID.String(),
		"severity_score": fmt.Sprintf("%.2f", severityScore),
	}, to)
	return err
}

// NotifyDoctorAssigned tells a doctor a patient has entered their care.
func (n *QueueNotifier) NotifyDoctorAssigned(ctx context.Context, doctorID, patientID, entryID uuid.UUID, priority float64) error {
	to, err := n.staff.ContactFor(ctx, doctorID)
	if err != nil {
		return err
	}
	_, err = n.mgr.SendFromTemplate(ctx, "doctor-assigned", map[string]string{
		"patient_id":     patientID.String(),
		"entry_id":       entryID.String(),
		"priority_score": fmt.Sprintf("%.2f", priority),
	}, to)
	return err
}
