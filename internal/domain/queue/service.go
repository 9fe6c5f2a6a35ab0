package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Config carries the policy knobs of the queue engine. The thresholds are
// deliberate policy constants, not derived values; they default to the
// figures the clinic has run with but are surfaced through configuration.
type Config struct {
	// AppointmentThreshold is the walk-in priority score that outranks a
	// scheduled appointment.
	AppointmentThreshold float64
	// UrgentThreshold is the severity score at or above which staff are
	// alerted about a case.
	UrgentThreshold float64
	// VitalsMinutesPerPatient paces the flat vitals-queue estimate.
	VitalsMinutesPerPatient int
	// DependencyTimeout bounds every store and registry call. Zero means the
	// caller's context deadline alone applies.
	DependencyTimeout time.Duration
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		AppointmentThreshold:    DefaultAppointmentThreshold,
		UrgentThreshold:         0.8,
		VitalsMinutesPerPatient: DefaultVitalsMinutes,
	}
}

// Service owns queue entries for their full lifecycle: external callers may
// only request transitions through its operations, never mutate entries
// directly. All collaborators are injected; there are no ambient globals.
//
// Every operation that read-modify-writes a waiting set runs under a single
// mutex per queue type, so two reorderings of the same queue never
// interleave. The vitals and doctor queues are independently locked and may
// proceed concurrently.
type Service struct {
	store     Store
	registry  Registry
	notifier  Notifier
	publisher Publisher
	est       *Estimator
	log       zerolog.Logger
	cfg       Config

	locks map[Type]*sync.Mutex

	// displayMu serializes display-number allocation. The daily counter is
	// backed by committed store rows, so the read-count and the commit of the
	// new row must form one critical section or two concurrent enqueues of
	// the same category observe the same count.
	displayMu sync.Mutex
}

// NewService constructs the queue engine with its injected collaborators.
func NewService(store Store, registry Registry, notifier Notifier, publisher Publisher, logger zerolog.Logger, cfg Config) *Service {
	if cfg.AppointmentThreshold <= 0 {
		cfg.AppointmentThreshold = DefaultAppointmentThreshold
	}
	if cfg.UrgentThreshold <= 0 {
		cfg.UrgentThreshold = 0.8
	}
	if cfg.VitalsMinutesPerPatient <= 0 {
		cfg.VitalsMinutesPerPatient = DefaultVitalsMinutes
	}
	return &Service{
		store:     store,
		registry:  registry,
		notifier:  notifier,
		publisher: publisher,
		est:       &Estimator{VitalsMinutesPerPatient: cfg.VitalsMinutesPerPatient},
		log:       logger,
		cfg:       cfg,
		locks: map[Type]*sync.Mutex{
			TypeVitals: {},
			TypeDoctor: {},
		},
	}
}

// boundedCtx applies the configured dependency timeout, if any.
func (s *Service) boundedCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.DependencyTimeout > 0 {
		return context.WithTimeout(ctx, s.cfg.DependencyTimeout)
	}
	return ctx, func() {}
}

func dependencyErr(dependency string, err error) error {
	return &DependencyError{
		Dependency: dependency,
		Timeout:    errors.Is(err, context.DeadlineExceeded),
		Err:        err,
	}
}

// ---------------------------------------------------------------------------
// Enqueue
// ---------------------------------------------------------------------------

// EnqueueRequest is the input to Enqueue. CategoryWeight and
// VulnerabilityBoosts come from the patient registry; the handler layer
// resolves them before calling in.
type EnqueueRequest struct {
	VisitID             uuid.UUID
	PatientID           uuid.UUID
	QueueType           Type
	IsAppointment       bool
	CategoryName        string
	CategoryWeight      float64
	VulnerabilityBoosts []float64
}

// Enqueue creates a waiting entry, computes its pre-triage priority from the
// category weight and vulnerability boosts, assigns its display number, and
// reorders the queue.
func (s *Service) Enqueue(ctx context.Context, req EnqueueRequest) (*Entry, error) {
	if req.VisitID == uuid.Nil {
		return nil, &ValidationError{Field: "visit_id", Reason: "required"}
	}
	if req.PatientID == uuid.Nil {
		return nil, &ValidationError{Field: "patient_id", Reason: "required"}
	}
	if !req.QueueType.Valid() {
		return nil, &ValidationError{Field: "queue_type", Reason: fmt.Sprintf("unknown queue type %q", req.QueueType)}
	}

	now := time.Now().UTC()
	entry := &Entry{
		ID:               uuid.New(),
		PatientID:        req.PatientID,
		VisitID:          req.VisitID,
		QueueType:        req.QueueType,
		Status:           StatusWaiting,
		PriorityScore:    ComputePriority(req.CategoryWeight, req.VulnerabilityBoosts, nil),
		IsAppointment:    req.IsAppointment,
		CreatedAt:        now,
		LastStatusChange: now,
	}

	pc := PatientContext{PatientID: req.PatientID, CategoryName: req.CategoryName}
	prefix := pc.DisplayPrefix()

	// Hold the allocation lock from the counter read until the new row is
	// committed, so the next allocation observes it. A per-day unique index
	// on (queue_type, display_number) backs this in the store.
	s.displayMu.Lock()
	rctx, cancel := s.boundedCtx(ctx)
	count, err := s.registry.CountCategoryToday(rctx, prefix, now)
	cancel()
	if err != nil {
		s.displayMu.Unlock()
		return nil, dependencyErr("registry", err)
	}
	entry.DisplayNumber = fmt.Sprintf("%s%03d", prefix, count+1)

	err = s.mutate(ctx, req.QueueType, func(entries []*Entry) ([]*Entry, error) {
		return append(entries, entry), nil
	})
	s.displayMu.Unlock()
	if err != nil {
		return nil, err
	}

	s.appendHistory(ctx, &HistoryRecord{
		EntryID:  entry.ID,
		VisitID:  entry.VisitID,
		Event:    "enqueue",
		ToStatus: StatusWaiting,
		Detail:   fmt.Sprintf("display=%s appointment=%t score=%.2f", entry.DisplayNumber, entry.IsAppointment, entry.PriorityScore),
	})
	return entry.Clone(), nil
}

// ---------------------------------------------------------------------------
// UpdatePriority
// ---------------------------------------------------------------------------

// UpdatePriority replaces an entry's priority score with an authoritative
// triage result and reorders the queue. Critical flags feed the wait-time
// estimator. Scores at or above the urgent threshold alert staff through the
// notification collaborator.
func (s *Service) UpdatePriority(ctx context.Context, entryID uuid.UUID, newScore float64, criticalFlags []string) (*Entry, error) {
	score := clamp01(sanitize(newScore))

	var updated *Entry
	err := s.mutateWhere(ctx, entryID, func(e *Entry) error {
		e.PriorityScore = score
		if criticalFlags != nil {
			e.CriticalFlags = append([]string(nil), criticalFlags...)
		}
		updated = e
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.appendHistory(ctx, &HistoryRecord{
		EntryID: updated.ID,
		VisitID: updated.VisitID,
		Event:   "priority_update",
		Detail:  fmt.Sprintf("score=%.2f flags=%d", score, len(updated.CriticalFlags)),
	})

	if score >= s.cfg.UrgentThreshold {
		if nerr := s.notifier.NotifyUrgent(ctx, updated.PatientID, score); nerr != nil {
			s.log.Error().Err(nerr).
				Str("entry_id", updated.ID.String()).
				Float64("score", score).
				Msg("urgent notification failed")
		}
	}
	return updated.Clone(), nil
}

// ---------------------------------------------------------------------------
// Transition
// ---------------------------------------------------------------------------

var allowedTransitions = map[Status][]Status{
	StatusWaiting:    {StatusInProgress, StatusNoShow},
	StatusInProgress: {StatusCompleted},
}

func transitionAllowed(from, to Status) bool {
	for _, t := range allowedTransitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// Transition moves an entry through the status state machine. Moving to
// in-progress records the treating doctor and emits an assignment
// notification; completed and no-show remove the entry from future ordering.
// The remaining waiting set is always reordered and re-estimated.
func (s *Service) Transition(ctx context.Context, entryID uuid.UUID, newStatus Status, doctorID *uuid.UUID) (*Entry, error) {
	if !newStatus.Valid() {
		return nil, &ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", newStatus)}
	}

	var updated *Entry
	var from Status
	err := s.mutateWhere(ctx, entryID, func(e *Entry) error {
		from = e.Status
		if !transitionAllowed(e.Status, newStatus) {
			return &InvalidTransitionError{From: e.Status, To: newStatus}
		}
		e.Status = newStatus
		e.LastStatusChange = time.Now().UTC()
		if newStatus == StatusInProgress && doctorID != nil {
			id := *doctorID
			e.DoctorID = &id
		}
		updated = e
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.appendHistory(ctx, &HistoryRecord{
		EntryID:    updated.ID,
		VisitID:    updated.VisitID,
		Event:      "transition",
		FromStatus: from,
		ToStatus:   newStatus,
	})

	if newStatus == StatusInProgress && updated.DoctorID != nil {
		if nerr := s.notifier.NotifyDoctorAssigned(ctx, *updated.DoctorID, updated.PatientID, updated.ID, updated.PriorityScore); nerr != nil {
			s.log.Error().Err(nerr).
				Str("entry_id", updated.ID.String()).
				Str("doctor_id", updated.DoctorID.String()).
				Msg("doctor assignment notification failed")
		}
	}
	return updated.Clone(), nil
}

// ---------------------------------------------------------------------------
// CompleteVitals
// ---------------------------------------------------------------------------

// CompleteVitals finishes a patient's vitals intake and moves them to the
// doctor queue carrying their authoritative triage severity. The vitals
// entry is completed and a fresh doctor-queue entry is created under the
// same display number.
func (s *Service) CompleteVitals(ctx context.Context, visitID uuid.UUID, severityScore float64, criticalFlags []string) (*Entry, error) {
	if visitID == uuid.Nil {
		return nil, &ValidationError{Field: "visit_id", Reason: "required"}
	}

	var src *Entry
	err := s.mutate(ctx, TypeVitals, func(entries []*Entry) ([]*Entry, error) {
		for _, e := range entries {
			if e.VisitID == visitID && e.Status == StatusWaiting {
				e.Status = StatusCompleted
				e.LastStatusChange = time.Now().UTC()
				src = e
				return entries, nil
			}
		}
		return nil, ErrNotFound
	})
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	entry := &Entry{
		ID:               uuid.New(),
		PatientID:        src.PatientID,
		VisitID:          src.VisitID,
		QueueType:        TypeDoctor,
		Status:           StatusWaiting,
		PriorityScore:    clamp01(sanitize(severityScore)),
		DisplayNumber:    src.DisplayNumber,
		CriticalFlags:    append([]string(nil), criticalFlags...),
		CreatedAt:        now,
		LastStatusChange: now,
	}

	err = s.mutate(ctx, TypeDoctor, func(entries []*Entry) ([]*Entry, error) {
		return append(entries, entry), nil
	})
	if err != nil {
		return nil, err
	}

	s.appendHistory(ctx, &HistoryRecord{
		EntryID:    entry.ID,
		VisitID:    entry.VisitID,
		Event:      "vitals_complete",
		FromStatus: StatusWaiting,
		ToStatus:   StatusWaiting,
		Detail:     fmt.Sprintf("severity=%.2f", entry.PriorityScore),
	})
	return entry.Clone(), nil
}

// Refresh re-runs ordering and estimation over a queue without changing its
// membership, for when an external input (staff availability) moved.
func (s *Service) Refresh(ctx context.Context, queueType Type) error {
	if !queueType.Valid() {
		return &ValidationError{Field: "queue_type", Reason: fmt.Sprintf("unknown queue type %q", queueType)}
	}
	return s.mutate(ctx, queueType, func(entries []*Entry) ([]*Entry, error) {
		return entries, nil
	})
}

// ---------------------------------------------------------------------------
// Reads
// ---------------------------------------------------------------------------

// GetPosition returns the entry's current 1-indexed position among waiting
// entries of its queue, 0 when the entry exists but is not waiting, and
// ErrNotFound when it does not exist.
func (s *Service) GetPosition(ctx context.Context, entryID uuid.UUID) (int, error) {
	for _, qt := range []Type{TypeDoctor, TypeVitals} {
		entries, err := s.load(ctx, qt)
		if err != nil {
			return 0, err
		}
		for _, e := range entries {
			if e.ID == entryID {
				if e.Status != StatusWaiting {
					return 0, nil
				}
				return e.Position, nil
			}
		}
	}
	return 0, ErrNotFound
}

// FindByVisit returns the waiting or in-progress entry for a visit,
// preferring the doctor queue when the visit appears in both.
func (s *Service) FindByVisit(ctx context.Context, visitID uuid.UUID) (*Entry, error) {
	for _, qt := range []Type{TypeDoctor, TypeVitals} {
		entries, err := s.load(ctx, qt)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if e.VisitID == visitID && !e.Status.Terminal() {
				return e.Clone(), nil
			}
		}
	}
	return nil, ErrNotFound
}

// Snapshot returns the current ordered waiting set of a queue. Reads never
// block writers: Load materialises fresh rows, so the result is a consistent
// copy of the last committed ordering.
func (s *Service) Snapshot(ctx context.Context, queueType Type) ([]SnapshotEntry, error) {
	if !queueType.Valid() {
		return nil, &ValidationError{Field: "queue_type", Reason: fmt.Sprintf("unknown queue type %q", queueType)}
	}
	entries, err := s.load(ctx, queueType)
	if err != nil {
		return nil, err
	}
	ordered := Reorder(entries, queueType, s.cfg.AppointmentThreshold)
	return SnapshotOf(ordered), nil
}

// QueueStats summarises one queue for dashboards.
type QueueStats struct {
	QueueType Type `json:"queue_type"`
	Length    int  `json:"length"`
	// TailWait is the estimated wait of the last waiting entry, in minutes.
	TailWait int `json:"tail_wait_minutes"`
}

// Stats reports length and tail wait for both queues.
func (s *Service) Stats(ctx context.Context) ([]QueueStats, error) {
	out := make([]QueueStats, 0, 2)
	for _, qt := range []Type{TypeVitals, TypeDoctor} {
		snap, err := s.Snapshot(ctx, qt)
		if err != nil {
			return nil, err
		}
		st := QueueStats{QueueType: qt, Length: len(snap)}
		if n := len(snap); n > 0 {
			st.TailWait = snap[n-1].EstimatedWaitTime
		}
		out = append(out, st)
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Internals
// ---------------------------------------------------------------------------

func (s *Service) load(ctx context.Context, qt Type) ([]*Entry, error) {
	rctx, cancel := s.boundedCtx(ctx)
	defer cancel()
	entries, err := s.store.Load(rctx, qt)
	if err != nil {
		return nil, dependencyErr("store", err)
	}
	return entries, nil
}

// mutate runs one read-modify-write cycle on a queue under its lock: load,
// apply, reorder, re-estimate, verify, save, publish. Either the whole
// sequence commits or the store keeps its prior state and an error surfaces;
// a partial reordering is never persisted.
func (s *Service) mutate(ctx context.Context, qt Type, apply func([]*Entry) ([]*Entry, error)) error {
	mu := s.locks[qt]
	mu.Lock()
	defer mu.Unlock()

	entries, err := s.load(ctx, qt)
	if err != nil {
		return err
	}

	entries, err = apply(entries)
	if err != nil {
		return err
	}

	ordered, err := s.recompute(ctx, qt, entries)
	var inconsistent *InconsistencyError
	if errors.As(err, &inconsistent) {
		// Invariant violation: discard this reorder and recompute once from
		// the persisted source of truth.
		s.log.Error().Err(err).Str("queue_type", string(qt)).Msg("discarding inconsistent reorder")
		entries, err = s.load(ctx, qt)
		if err != nil {
			return err
		}
		if entries, err = apply(entries); err != nil {
			return err
		}
		if ordered, err = s.recompute(ctx, qt, entries); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}

	rctx, cancel := s.boundedCtx(ctx)
	err = s.store.SaveAll(rctx, entries)
	cancel()
	if err != nil {
		return dependencyErr("store", err)
	}

	if perr := s.publisher.Publish(ctx, qt, SnapshotOf(ordered)); perr != nil {
		s.log.Error().Err(perr).Str("queue_type", string(qt)).Msg("snapshot publish failed")
	}
	return nil
}

// recompute orders and re-estimates a queue's waiting set, verifying the
// density invariant.
func (s *Service) recompute(ctx context.Context, qt Type, entries []*Entry) ([]*Entry, error) {
	ordered := Reorder(entries, qt, s.cfg.AppointmentThreshold)
	if err := CheckDense(ordered); err != nil {
		return nil, err
	}

	staff := 1
	stats := ServiceStats{}
	if qt == TypeDoctor {
		rctx, cancel := s.boundedCtx(ctx)
		defer cancel()
		n, err := s.registry.AvailableDoctorCount(rctx)
		if err != nil {
			return nil, dependencyErr("registry", err)
		}
		staff = n
		if stats, err = s.registry.ServiceStats(rctx); err != nil {
			return nil, dependencyErr("registry", err)
		}
	}
	s.est.Estimate(ordered, qt, staff, stats)
	return ordered, nil
}

// mutateWhere locates an entry by id in either queue and applies fn to it
// inside that queue's mutation cycle.
func (s *Service) mutateWhere(ctx context.Context, entryID uuid.UUID, fn func(*Entry) error) error {
	for _, qt := range []Type{TypeDoctor, TypeVitals} {
		found := false
		err := s.mutate(ctx, qt, func(entries []*Entry) ([]*Entry, error) {
			for _, e := range entries {
				if e.ID == entryID {
					found = true
					if err := fn(e); err != nil {
						return nil, err
					}
					return entries, nil
				}
			}
			return nil, ErrNotFound
		})
		if found || !errors.Is(err, ErrNotFound) {
			return err
		}
	}
	return ErrNotFound
}

// appendHistory records an audit row; history is best-effort and never fails
// a mutation that already committed.
func (s *Service) appendHistory(ctx context.Context, rec *HistoryRecord) {
	rec.ID = uuid.New()
	rec.RecordedAt = time.Now().UTC()
	rctx, cancel := s.boundedCtx(ctx)
	defer cancel()
	if err := s.store.AppendHistory(rctx, rec); err != nil {
		s.log.Warn().Err(err).Str("event", rec.Event).Msg("history append failed")
	}
}
