package queue

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store is the persistence collaborator for queue entries. The engine treats
// it as durable and implements no durability of its own. SaveAll must be
// atomic for the batch: either every entry of a recomputed ordering is
// persisted or none is.
type Store interface {
	Load(ctx context.Context, queueType Type) ([]*Entry, error)
	SaveAll(ctx context.Context, entries []*Entry) error
	AppendHistory(ctx context.Context, rec *HistoryRecord) error
}

// Registry resolves the read-only context the engine needs from the
// surrounding system: patient category and vulnerability data, staffing, and
// historical consultation statistics.
type Registry interface {
	PatientContext(ctx context.Context, patientID uuid.UUID) (*PatientContext, error)
	// CountCategoryToday returns how many entries with the given display
	// prefix were created on the given calendar day, across both queues.
	CountCategoryToday(ctx context.Context, prefix string, day time.Time) (int, error)
	AvailableDoctorCount(ctx context.Context) (int, error)
	ServiceStats(ctx context.Context) (ServiceStats, error)
}

// Publisher receives the full recomputed snapshot once per completed
// mutation and fans it out to subscribed clients. Broadcasting the complete
// ordered list rather than deltas guarantees every subscriber observes a
// state at least as recent as the mutation.
type Publisher interface {
	Publish(ctx context.Context, queueType Type, snapshot []SnapshotEntry) error
}

// Notifier is the notification collaborator. Calls are fire-and-forget from
// the engine's perspective: failures are logged and never roll back the
// queue mutation.
type Notifier interface {
	NotifyUrgent(ctx context.Context, patientID uuid.UUID, severityScore float64) error
	NotifyDoctorAssigned(ctx context.Context, doctorID, patientID, entryID uuid.UUID, priority float64) error
}
