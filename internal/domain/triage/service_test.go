package triage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/kalims/queue-engine/internal/domain/queue"
)

// ---------------------------------------------------------------------------
// Collaborator stubs
// ---------------------------------------------------------------------------

type stubStore struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*queue.Entry
}

func newStubStore() *stubStore {
	return &stubStore{entries: make(map[uuid.UUID]*queue.Entry)}
}

func (s *stubStore) Load(_ context.Context, queueType queue.Type) ([]*queue.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*queue.Entry
	for _, e := range s.entries {
		if e.QueueType == queueType {
			out = append(out, e.Clone())
		}
	}
	return out, nil
}

func (s *stubStore) SaveAll(_ context.Context, entries []*queue.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		s.entries[e.ID] = e.Clone()
	}
	return nil
}

func (s *stubStore) AppendHistory(context.Context, *queue.HistoryRecord) error { return nil }

func (s *stubStore) get(id uuid.UUID) *queue.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[id]; ok {
		return e.Clone()
	}
	return nil
}

type stubRegistry struct {
	vulnerabilities []string
}

func (r *stubRegistry) PatientContext(_ context.Context, patientID uuid.UUID) (*queue.PatientContext, error) {
	return &queue.PatientContext{
		PatientID:       patientID,
		CategoryName:    "Standard",
		CategoryWeight:  0.1,
		Vulnerabilities: r.vulnerabilities,
	}, nil
}

func (r *stubRegistry) CountCategoryToday(context.Context, string, time.Time) (int, error) {
	return 0, nil
}

func (r *stubRegistry) AvailableDoctorCount(context.Context) (int, error) { return 1, nil }

func (r *stubRegistry) ServiceStats(context.Context) (queue.ServiceStats, error) {
	return queue.ServiceStats{}, nil
}

type stubPublisher struct{}

func (stubPublisher) Publish(context.Context, queue.Type, []queue.SnapshotEntry) error { return nil }

type stubNotifier struct{}

func (stubNotifier) NotifyUrgent(context.Context, uuid.UUID, float64) error { return nil }
func (stubNotifier) NotifyDoctorAssigned(context.Context, uuid.UUID, uuid.UUID, uuid.UUID, float64) error {
	return nil
}

type stubScorer struct {
	assessment *Assessment
	err        error
	calls      int
	lastReq    AssessRequest
}

func (s *stubScorer) Assess(_ context.Context, req AssessRequest) (*Assessment, error) {
	s.calls++
	s.lastReq = req
	if s.err != nil {
		return nil, s.err
	}
	return s.assessment, nil
}

type stubRepo struct {
	records []*Record
}

func (r *stubRepo) Create(_ context.Context, rec *Record) error {
	r.records = append(r.records, rec)
	return nil
}

func (r *stubRepo) GetByVisit(_ context.Context, visitID uuid.UUID) (*Record, error) {
	for i := len(r.records) - 1; i >= 0; i-- {
		if r.records[i].VisitID == visitID {
			return r.records[i], nil
		}
	}
	return nil, queue.ErrNotFound
}

func (r *stubRepo) ListRecent(_ context.Context, limit int) ([]*Record, error) {
	if limit > len(r.records) {
		limit = len(r.records)
	}
	return r.records[:limit], nil
}

type triageFixture struct {
	svc    *Service
	scorer *stubScorer
	repo   *stubRepo
	store  *stubStore
	queues *queue.Service
}

func newTriageFixture(vulnerabilities []string) *triageFixture {
	store := newStubStore()
	registry := &stubRegistry{vulnerabilities: vulnerabilities}
	queues := queue.NewService(store, registry, stubNotifier{}, stubPublisher{}, zerolog.Nop(), queue.DefaultConfig())
	scorer := &stubScorer{assessment: &Assessment{SeverityScore: 0.5, RecommendedAction: "See within 1 hour", Source: "ai"}}
	repo := &stubRepo{}
	return &triageFixture{
		svc:    NewService(scorer, repo, queues, registry, zerolog.Nop()),
		scorer: scorer,
		repo:   repo,
		store:  store,
		queues: queues,
	}
}

func (f *triageFixture) admit(t *testing.T, queueType queue.Type) *queue.Entry {
	t.Helper()
	e, err := f.queues.Enqueue(context.Background(), queue.EnqueueRequest{
		VisitID:        uuid.New(),
		PatientID:      uuid.New(),
		QueueType:      queueType,
		CategoryName:   "Standard",
		CategoryWeight: 0.1,
	})
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	return e
}

// ---------------------------------------------------------------------------
// ProcessTriage
// ---------------------------------------------------------------------------

func TestProcessTriage_VitalsVisitGraduatesToDoctorQueue(t *testing.T) {
	f := newTriageFixture(nil)
	vitals := f.admit(t, queue.TypeVitals)
	f.scorer.assessment = &Assessment{SeverityScore: 0.72, RecommendedAction: "See within 30 minutes", CriticalFlags: []string{"chest_pain"}, Source: "ai"}

	res, err := f.svc.ProcessTriage(context.Background(), TriageInput{
		VisitID: vitals.VisitID,
		Notes:   "chest pain on exertion",
		Vitals:  VitalSigns{HeartRate: 112, BloodPressure: "150/95"},
	})
	if err != nil {
		t.Fatalf("ProcessTriage failed: %v", err)
	}

	if res.Entry.QueueType != queue.TypeDoctor {
		t.Errorf("entry queue = %q, want doctor", res.Entry.QueueType)
	}
	if res.Entry.PriorityScore != 0.72 {
		t.Errorf("entry score = %v, want 0.72", res.Entry.PriorityScore)
	}
	if res.Entry.DisplayNumber != vitals.DisplayNumber {
		t.Errorf("display number must carry over")
	}
	if res.Category != CategoryEmergency {
		t.Errorf("category = %q, want emergency", res.Category)
	}

	if got := f.store.get(vitals.ID); got.Status != queue.StatusCompleted {
		t.Errorf("vitals entry status = %q, want completed", got.Status)
	}

	if len(f.repo.records) != 1 {
		t.Fatalf("expected one triage record, got %d", len(f.repo.records))
	}
	rec := f.repo.records[0]
	if rec.Source != "ai" || rec.SeverityScore != 0.72 {
		t.Errorf("record = %+v", rec)
	}
	if rec.RequiresUrgentCare {
		t.Error("0.72 must not flag urgent care")
	}
}

func TestProcessTriage_DoctorVisitUpdatedInPlace(t *testing.T) {
	f := newTriageFixture(nil)
	entry := f.admit(t, queue.TypeDoctor)
	f.scorer.assessment = &Assessment{SeverityScore: 0.9, RecommendedAction: "Immediate medical attention required", Source: "ai"}

	res, err := f.svc.ProcessTriage(context.Background(), TriageInput{VisitID: entry.VisitID, Notes: "severe bleeding"})
	if err != nil {
		t.Fatalf("ProcessTriage failed: %v", err)
	}

	if res.Entry.ID != entry.ID {
		t.Error("doctor-queue visit must keep its entry")
	}
	if res.Entry.PriorityScore != 0.9 {
		t.Errorf("score = %v, want 0.9", res.Entry.PriorityScore)
	}
	if !f.repo.records[0].RequiresUrgentCare {
		t.Error("0.9 must flag urgent care")
	}
}

func TestProcessTriage_ScorerFailureLeavesQueueUntouched(t *testing.T) {
	f := newTriageFixture(nil)
	vitals := f.admit(t, queue.TypeVitals)
	f.scorer.err = &queue.DependencyError{Dependency: "ai", Timeout: true, Err: context.DeadlineExceeded}

	_, err := f.svc.ProcessTriage(context.Background(), TriageInput{VisitID: vitals.VisitID, Notes: "dizzy"})

	var de *queue.DependencyError
	if !errors.As(err, &de) || !de.Timeout {
		t.Fatalf("expected timeout dependency error, got %v", err)
	}

	if got := f.store.get(vitals.ID); got.Status != queue.StatusWaiting || got.QueueType != queue.TypeVitals {
		t.Error("failed assessment must not move the patient")
	}
	if len(f.repo.records) != 0 {
		t.Error("failed assessment must not persist a record")
	}
}

func TestProcessTriage_OfflineUsesRuleScorer(t *testing.T) {
	f := newTriageFixture([]string{"elderly"})
	vitals := f.admit(t, queue.TypeVitals)

	res, err := f.svc.ProcessTriage(context.Background(), TriageInput{
		VisitID:  vitals.VisitID,
		Notes:    "short of breath",
		Symptoms: Symptoms{DifficultyBreathing: true},
		Offline:  true,
	})
	if err != nil {
		t.Fatalf("ProcessTriage failed: %v", err)
	}

	if f.scorer.calls != 0 {
		t.Error("offline triage must not call the AI scorer")
	}
	if res.Assessment.Source != "rules" {
		t.Errorf("source = %q, want rules", res.Assessment.Source)
	}
	// breathing 0.3 * 0.5 + elderly boost 0.15
	if got := res.Assessment.SeverityScore; got < 0.29 || got > 0.31 {
		t.Errorf("score = %v, want 0.30", got)
	}
}

func TestProcessTriage_ForwardsPatientContext(t *testing.T) {
	f := newTriageFixture([]string{"elderly", "urgent_referral"})
	entry := f.admit(t, queue.TypeDoctor)

	if _, err := f.svc.ProcessTriage(context.Background(), TriageInput{VisitID: entry.VisitID, Notes: "fever"}); err != nil {
		t.Fatalf("ProcessTriage failed: %v", err)
	}

	req := f.scorer.lastReq
	if req.PatientCategory != "Standard" {
		t.Errorf("category = %q", req.PatientCategory)
	}
	if len(req.VulnerabilityFactors) != 2 {
		t.Errorf("vulnerability factors = %v", req.VulnerabilityFactors)
	}
}

func TestProcessTriage_UnknownVisit(t *testing.T) {
	f := newTriageFixture(nil)
	_, err := f.svc.ProcessTriage(context.Background(), TriageInput{VisitID: uuid.New()})
	if !errors.Is(err, queue.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestProcessTriage_EmptyNotesDefaulted(t *testing.T) {
	f := newTriageFixture(nil)
	entry := f.admit(t, queue.TypeDoctor)

	if _, err := f.svc.ProcessTriage(context.Background(), TriageInput{VisitID: entry.VisitID}); err != nil {
		t.Fatalf("ProcessTriage failed: %v", err)
	}
	if f.scorer.lastReq.Symptoms != "No symptoms provided" {
		t.Errorf("symptoms = %q", f.scorer.lastReq.Symptoms)
	}
}

// ---------------------------------------------------------------------------
// Reads
// ---------------------------------------------------------------------------

func TestRecentRecords_LimitNormalized(t *testing.T) {
	repo := &stubRepo{}
	for i := 0; i < 30; i++ {
		repo.records = append(repo.records, &Record{ID: uuid.New()})
	}
	svc := NewService(&stubScorer{}, repo, nil, nil, zerolog.Nop())

	got, err := svc.RecentRecords(context.Background(), 0)
	if err != nil {
		t.Fatalf("RecentRecords failed: %v", err)
	}
	if len(got) != 20 {
		t.Errorf("default limit: got %d records, want 20", len(got))
	}

	got, err = svc.RecentRecords(context.Background(), 500)
	if err != nil {
		t.Fatalf("RecentRecords failed: %v", err)
	}
	if len(got) != 20 {
		t.Errorf("oversized limit must fall back to default, got %d", len(got))
	}
}
