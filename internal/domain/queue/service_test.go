package queue

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ---------------------------------------------------------------------------
// In-memory collaborators
// ---------------------------------------------------------------------------

type memStore struct {
	mu       sync.Mutex
	entries  map[uuid.UUID]*Entry
	history  []*HistoryRecord
	failSave error
}

func newMemStore() *memStore {
	return &memStore{entries: make(map[uuid.UUID]*Entry)}
}

func (s *memStore) Load(_ context.Context, queueType Type) ([]*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Entry
	for _, e := range s.entries {
		if e.QueueType == queueType {
			out = append(out, e.Clone())
		}
	}
	return out, nil
}

func (s *memStore) SaveAll(_ context.Context, entries []*Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSave != nil {
		return s.failSave
	}
	for _, e := range entries {
		s.entries[e.ID] = e.Clone()
	}
	return nil
}

func (s *memStore) AppendHistory(_ context.Context, rec *HistoryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, rec)
	return nil
}

func (s *memStore) get(id uuid.UUID) *Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[id]; ok {
		return e.Clone()
	}
	return nil
}

type memRegistry struct {
	doctors   int
	stats     ServiceStats
	todayBase int
}

func (r *memRegistry) PatientContext(_ context.Context, patientID uuid.UUID) (*PatientContext, error) {
	return &PatientContext{PatientID: patientID, CategoryName: "Standard", CategoryWeight: 0.1}, nil
}

func (r *memRegistry) CountCategoryToday(_ context.Context, _ string, _ time.Time) (int, error) {
	return r.todayBase, nil
}

func (r *memRegistry) AvailableDoctorCount(_ context.Context) (int, error) {
	return r.doctors, nil
}

func (r *memRegistry) ServiceStats(_ context.Context) (ServiceStats, error) {
	return r.stats, nil
}

// countingRegistry backs the daily counter with the committed store rows,
// the way the real registry query does.
type countingRegistry struct {
	memRegistry
	store *memStore
}

func (r *countingRegistry) CountCategoryToday(_ context.Context, prefix string, _ time.Time) (int, error) {
	time.Sleep(2 * time.Millisecond) // database round-trip
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	seen := make(map[string]struct{})
	for _, e := range r.store.entries {
		if strings.HasPrefix(e.DisplayNumber, prefix) {
			seen[e.DisplayNumber] = struct{}{}
		}
	}
	return len(seen), nil
}

type memPublisher struct {
	mu        sync.Mutex
	snapshots []struct {
		queueType Type
		entries   []SnapshotEntry
	}
}

func (p *memPublisher) Publish(_ context.Context, queueType Type, snapshot []SnapshotEntry) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snapshots = append(p.snapshots, struct {
		queueType Type
		entries   []SnapshotEntry
	}{queueType, snapshot})
	return nil
}

func (p *memPublisher) last() []SnapshotEntry {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.snapshots) == 0 {
		return nil
	}
	return p.snapshots[len(p.snapshots)-1].entries
}

type memNotifier struct {
	mu       sync.Mutex
	urgent   []float64
	assigned []uuid.UUID
}

func (n *memNotifier) NotifyUrgent(_ context.Context, _ uuid.UUID, severityScore float64) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.urgent = append(n.urgent, severityScore)
	return nil
}

func (n *memNotifier) NotifyDoctorAssigned(_ context.Context, doctorID, _, _ uuid.UUID, _ float64) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.assigned = append(n.assigned, doctorID)
	return nil
}

type fixture struct {
	svc       *Service
	store     *memStore
	registry  *memRegistry
	publisher *memPublisher
	notifier  *memNotifier
}

func newFixture() *fixture {
	store := newMemStore()
	registry := &memRegistry{doctors: 1}
	publisher := &memPublisher{}
	notifier := &memNotifier{}
	svc := NewService(store, registry, notifier, publisher, zerolog.Nop(), DefaultConfig())
	return &fixture{svc: svc, store: store, registry: registry, publisher: publisher, notifier: notifier}
}

func (f *fixture) enqueue(t *testing.T, queueType Type, weight float64, appointment bool) *Entry {
	t.Helper()
	e, err := f.svc.Enqueue(context.Background(), EnqueueRequest{
		VisitID:        uuid.New(),
		PatientID:      uuid.New(),
		QueueType:      queueType,
		IsAppointment:  appointment,
		CategoryName:   "Standard",
		CategoryWeight: weight,
	})
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	return e
}

// ---------------------------------------------------------------------------
// Enqueue
// ---------------------------------------------------------------------------

func TestEnqueue_AssignsDisplayNumberAndPosition(t *testing.T) {
	f := newFixture()
	e := f.enqueue(t, TypeDoctor, 0.1, false)

	if e.DisplayNumber != "S001" {
		t.Errorf("display number = %q, want S001", e.DisplayNumber)
	}
	if e.Status != StatusWaiting {
		t.Errorf("status = %q, want waiting", e.Status)
	}

	stored := f.store.get(e.ID)
	if stored == nil {
		t.Fatal("entry not persisted")
	}
	if stored.Position != 1 {
		t.Errorf("position = %d, want 1", stored.Position)
	}
}

func TestEnqueue_Validation(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.svc.Enqueue(ctx, EnqueueRequest{PatientID: uuid.New(), QueueType: TypeDoctor})
	var ve *ValidationError
	if !errors.As(err, &ve) || ve.Field != "visit_id" {
		t.Fatalf("missing visit id: got %v", err)
	}

	_, err = f.svc.Enqueue(ctx, EnqueueRequest{VisitID: uuid.New(), PatientID: uuid.New(), QueueType: Type("walkup")})
	if !errors.As(err, &ve) || ve.Field != "queue_type" {
		t.Fatalf("bad queue type: got %v", err)
	}
}

func TestEnqueue_PublishesSnapshot(t *testing.T) {
	f := newFixture()
	f.enqueue(t, TypeDoctor, 0.3, false)
	f.enqueue(t, TypeDoctor, 0.9, false)

	snap := f.publisher.last()
	if len(snap) != 2 {
		t.Fatalf("snapshot has %d entries, want 2", len(snap))
	}
	if snap[0].PriorityScore != 0.9 {
		t.Errorf("snapshot head score = %v, want 0.9", snap[0].PriorityScore)
	}
	for i, se := range snap {
		if se.Position != i+1 {
			t.Errorf("snapshot position %d = %d", i+1, se.Position)
		}
	}
}

func TestEnqueue_SaveFailureSurfacesAsDependencyError(t *testing.T) {
	f := newFixture()
	f.store.failSave = errors.New("connection reset")

	_, err := f.svc.Enqueue(context.Background(), EnqueueRequest{
		VisitID:   uuid.New(),
		PatientID: uuid.New(),
		QueueType: TypeDoctor,
	})
	var de *DependencyError
	if !errors.As(err, &de) || de.Dependency != "store" {
		t.Fatalf("expected store dependency error, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// UpdatePriority
// ---------------------------------------------------------------------------

func TestUpdatePriority_ReordersQueue(t *testing.T) {
	f := newFixture()
	first := f.enqueue(t, TypeDoctor, 0.3, false)
	second := f.enqueue(t, TypeDoctor, 0.3, false)

	if _, err := f.svc.UpdatePriority(context.Background(), second.ID, 0.7, nil); err != nil {
		t.Fatalf("UpdatePriority failed: %v", err)
	}

	if got := f.store.get(second.ID); got.Position != 1 {
		t.Errorf("boosted entry position = %d, want 1", got.Position)
	}
	if got := f.store.get(first.ID); got.Position != 2 {
		t.Errorf("displaced entry position = %d, want 2", got.Position)
	}
}

func TestUpdatePriority_ClampsScore(t *testing.T) {
	f := newFixture()
	e := f.enqueue(t, TypeDoctor, 0.3, false)

	updated, err := f.svc.UpdatePriority(context.Background(), e.ID, 1.8, nil)
	if err != nil {
		t.Fatalf("UpdatePriority failed: %v", err)
	}
	if updated.PriorityScore != 1.0 {
		t.Errorf("score = %v, want 1.0", updated.PriorityScore)
	}
}

func TestUpdatePriority_UrgentTriggersNotification(t *testing.T) {
	f := newFixture()
	e := f.enqueue(t, TypeDoctor, 0.3, false)

	if _, err := f.svc.UpdatePriority(context.Background(), e.ID, 0.85, []string{"chest_pain"}); err != nil {
		t.Fatalf("UpdatePriority failed: %v", err)
	}
	if len(f.notifier.urgent) != 1 || f.notifier.urgent[0] != 0.85 {
		t.Fatalf("urgent notification not sent: %v", f.notifier.urgent)
	}
}

func TestUpdatePriority_BelowThresholdNoNotification(t *testing.T) {
	f := newFixture()
	e := f.enqueue(t, TypeDoctor, 0.3, false)

	if _, err := f.svc.UpdatePriority(context.Background(), e.ID, 0.79, nil); err != nil {
		t.Fatalf("UpdatePriority failed: %v", err)
	}
	if len(f.notifier.urgent) != 0 {
		t.Fatalf("no urgent notification expected below threshold")
	}
}

func TestUpdatePriority_UnknownEntry(t *testing.T) {
	f := newFixture()
	if _, err := f.svc.UpdatePriority(context.Background(), uuid.New(), 0.5, nil); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// Transition
// ---------------------------------------------------------------------------

func TestTransition_StateMachine(t *testing.T) {
	cases := []struct {
		name string
		from Status
		to   Status
		ok   bool
	}{
		{"waiting to in-progress", StatusWaiting, StatusInProgress, true},
		{"waiting to no-show", StatusWaiting, StatusNoShow, true},
		{"waiting to completed", StatusWaiting, StatusCompleted, false},
		{"in-progress to completed", StatusInProgress, StatusCompleted, true},
		{"in-progress to waiting", StatusInProgress, StatusWaiting, false},
		{"in-progress to no-show", StatusInProgress, StatusNoShow, false},
		{"completed is terminal", StatusCompleted, StatusInProgress, false},
		{"no-show is terminal", StatusNoShow, StatusWaiting, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if transitionAllowed(tc.from, tc.to) != tc.ok {
				t.Errorf("transitionAllowed(%s, %s) = %v, want %v", tc.from, tc.to, !tc.ok, tc.ok)
			}
		})
	}
}

func TestTransition_InvalidReturnsTypedError(t *testing.T) {
	f := newFixture()
	e := f.enqueue(t, TypeDoctor, 0.3, false)

	_, err := f.svc.Transition(context.Background(), e.ID, StatusCompleted, nil)
	var te *InvalidTransitionError
	if !errors.As(err, &te) {
		t.Fatalf("expected InvalidTransitionError, got %v", err)
	}
	if te.From != StatusWaiting || te.To != StatusCompleted {
		t.Errorf("error carries %s -> %s, want waiting -> completed", te.From, te.To)
	}
}

func TestTransition_InProgressAssignsDoctor(t *testing.T) {
	f := newFixture()
	e := f.enqueue(t, TypeDoctor, 0.3, false)
	doctorID := uuid.New()

	updated, err := f.svc.Transition(context.Background(), e.ID, StatusInProgress, &doctorID)
	if err != nil {
		t.Fatalf("Transition failed: %v", err)
	}
	if updated.DoctorID == nil || *updated.DoctorID != doctorID {
		t.Fatal("doctor not recorded on entry")
	}
	if len(f.notifier.assigned) != 1 || f.notifier.assigned[0] != doctorID {
		t.Fatal("doctor assignment notification not sent")
	}
}

func TestTransition_CompletedLeavesOrdering(t *testing.T) {
	f := newFixture()
	head := f.enqueue(t, TypeDoctor, 0.9, false)
	tail := f.enqueue(t, TypeDoctor, 0.3, false)

	if _, err := f.svc.Transition(context.Background(), head.ID, StatusInProgress, nil); err != nil {
		t.Fatalf("to in-progress: %v", err)
	}
	if _, err := f.svc.Transition(context.Background(), head.ID, StatusCompleted, nil); err != nil {
		t.Fatalf("to completed: %v", err)
	}

	snap := f.publisher.last()
	if len(snap) != 1 || snap[0].ID != tail.ID {
		t.Fatalf("completed entry must leave the published ordering")
	}
	if snap[0].Position != 1 {
		t.Errorf("remaining entry position = %d, want 1", snap[0].Position)
	}
	if got := f.store.get(head.ID); got.Position != 0 {
		t.Errorf("completed entry position = %d, want 0", got.Position)
	}
}

func TestTransition_NoShowKeepsRecord(t *testing.T) {
	f := newFixture()
	e := f.enqueue(t, TypeDoctor, 0.3, false)

	if _, err := f.svc.Transition(context.Background(), e.ID, StatusNoShow, nil); err != nil {
		t.Fatalf("Transition failed: %v", err)
	}
	stored := f.store.get(e.ID)
	if stored == nil || stored.Status != StatusNoShow {
		t.Fatal("no-show entry must stay persisted with its status")
	}
}

// ---------------------------------------------------------------------------
// CompleteVitals
// ---------------------------------------------------------------------------

func TestCompleteVitals_MovesToDoctorQueue(t *testing.T) {
	f := newFixture()
	vitals := f.enqueue(t, TypeVitals, 0.1, false)

	moved, err := f.svc.CompleteVitals(context.Background(), vitals.VisitID, 0.72, []string{"chest_pain"})
	if err != nil {
		t.Fatalf("CompleteVitals failed: %v", err)
	}

	if moved.QueueType != TypeDoctor {
		t.Errorf("queue type = %q, want doctor", moved.QueueType)
	}
	if moved.PriorityScore != 0.72 {
		t.Errorf("score = %v, want 0.72", moved.PriorityScore)
	}
	if moved.DisplayNumber != vitals.DisplayNumber {
		t.Errorf("display number must carry over: %q vs %q", moved.DisplayNumber, vitals.DisplayNumber)
	}

	if got := f.store.get(vitals.ID); got.Status != StatusCompleted {
		t.Errorf("vitals entry status = %q, want completed", got.Status)
	}
}

func TestCompleteVitals_UnknownVisit(t *testing.T) {
	f := newFixture()
	if _, err := f.svc.CompleteVitals(context.Background(), uuid.New(), 0.5, nil); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// Reads
// ---------------------------------------------------------------------------

func TestGetPosition(t *testing.T) {
	f := newFixture()
	first := f.enqueue(t, TypeDoctor, 0.9, false)
	second := f.enqueue(t, TypeDoctor, 0.3, false)

	ctx := context.Background()
	if pos, err := f.svc.GetPosition(ctx, second.ID); err != nil || pos != 2 {
		t.Fatalf("GetPosition = %d, %v; want 2, nil", pos, err)
	}

	if _, err := f.svc.Transition(ctx, first.ID, StatusInProgress, nil); err != nil {
		t.Fatalf("Transition failed: %v", err)
	}
	if pos, err := f.svc.GetPosition(ctx, first.ID); err != nil || pos != 0 {
		t.Fatalf("non-waiting entry position = %d, %v; want 0, nil", pos, err)
	}

	if _, err := f.svc.GetPosition(ctx, uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown entry: expected ErrNotFound, got %v", err)
	}
}

func TestFindByVisit(t *testing.T) {
	f := newFixture()
	e := f.enqueue(t, TypeVitals, 0.1, false)

	got, err := f.svc.FindByVisit(context.Background(), e.VisitID)
	if err != nil {
		t.Fatalf("FindByVisit failed: %v", err)
	}
	if got.ID != e.ID {
		t.Fatal("wrong entry returned")
	}

	if _, err := f.svc.FindByVisit(context.Background(), uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

// An entry left waiting overnight stays in the working set: it holds its
// place in arrival order and can still be transitioned.
func TestService_OvernightWaitingEntrySurvives(t *testing.T) {
	f := newFixture()
	old := f.enqueue(t, TypeVitals, 0.1, false)

	// Age the committed row past midnight.
	f.store.mu.Lock()
	f.store.entries[old.ID].CreatedAt = time.Now().UTC().Add(-25 * time.Hour)
	f.store.mu.Unlock()

	f.enqueue(t, TypeVitals, 0.1, false)

	snap, err := f.svc.Snapshot(context.Background(), TypeVitals)
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if len(snap) != 2 {
		t.Fatalf("expected 2 waiting entries, got %d", len(snap))
	}
	if snap[0].ID != old.ID {
		t.Errorf("overnight entry should head the arrival order, head = %s", snap[0].ID)
	}

	if _, err := f.svc.Transition(context.Background(), old.ID, StatusInProgress, nil); err != nil {
		t.Fatalf("Transition on overnight entry failed: %v", err)
	}
}

func TestStats(t *testing.T) {
	f := newFixture()
	f.enqueue(t, TypeDoctor, 0.3, false)
	f.enqueue(t, TypeDoctor, 0.5, false)

	stats, err := f.svc.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if len(stats) != 2 {
		t.Fatalf("expected stats for both queues, got %d", len(stats))
	}
	for _, st := range stats {
		switch st.QueueType {
		case TypeVitals:
			if st.Length != 0 {
				t.Errorf("vitals length = %d, want 0", st.Length)
			}
		case TypeDoctor:
			if st.Length != 2 {
				t.Errorf("doctor length = %d, want 2", st.Length)
			}
			if st.TailWait <= 0 {
				t.Errorf("tail wait should be positive, got %d", st.TailWait)
			}
		}
	}
}

// Concurrent mutations of the same queue must serialize without losing
// entries or breaking density.
func TestService_ConcurrentEnqueues(t *testing.T) {
	f := newFixture()
	const n = 20

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Enqueue(context.Background(), EnqueueRequest{
				VisitID:        uuid.New(),
				PatientID:      uuid.New(),
				QueueType:      TypeDoctor,
				CategoryWeight: 0.3,
			})
			if err != nil {
				t.Errorf("Enqueue failed: %v", err)
			}
		}()
	}
	wg.Wait()

	snap, err := f.svc.Snapshot(context.Background(), TypeDoctor)
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if len(snap) != n {
		t.Fatalf("expected %d waiting entries, got %d", n, len(snap))
	}
	for i, se := range snap {
		if se.Position != i+1 {
			t.Fatalf("positions not dense at index %d: %d", i, se.Position)
		}
	}
}

// The daily counter only reflects committed rows, so concurrent enqueues of
// one category must serialize allocation or they all read the same count.
// Spread across both queues because numbering is per category, not per queue.
func TestEnqueue_ConcurrentDisplayNumbersUnique(t *testing.T) {
	store := newMemStore()
	registry := &countingRegistry{memRegistry: memRegistry{doctors: 1}, store: store}
	svc := NewService(store, registry, &memNotifier{}, &memPublisher{}, zerolog.Nop(), DefaultConfig())

	const n = 8
	results := make(chan string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		qt := TypeDoctor
		if i%2 == 0 {
			qt = TypeVitals
		}
		wg.Add(1)
		go func(qt Type) {
			defer wg.Done()
			e, err := svc.Enqueue(context.Background(), EnqueueRequest{
				VisitID:        uuid.New(),
				PatientID:      uuid.New(),
				QueueType:      qt,
				CategoryName:   "Standard",
				CategoryWeight: 0.3,
			})
			if err != nil {
				t.Errorf("Enqueue failed: %v", err)
				return
			}
			results <- e.DisplayNumber
		}(qt)
	}
	wg.Wait()
	close(results)

	seen := make(map[string]bool)
	for num := range results {
		if seen[num] {
			t.Fatalf("display number %q issued twice", num)
		}
		seen[num] = true
	}
	if len(seen) != n {
		t.Fatalf("expected %d distinct display numbers, got %d", n, len(seen))
	}
}
