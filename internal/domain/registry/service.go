package registry

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/kalims/queue-engine/internal/domain/queue"
)

// Service wraps the master data with validation and owns check-in, the
// operation that turns a patient at the desk into a queued visit.
type Service struct {
	repo   Repository
	queues *queue.Service
	qreg   queue.Registry
	log    zerolog.Logger
}

func NewService(repo Repository, queues *queue.Service, qreg queue.Registry, logger zerolog.Logger) *Service {
	return &Service{repo: repo, queues: queues, qreg: qreg, log: logger}
}

// RegisterPatientInput creates a patient under a named category with zero or
// more vulnerability factors.
type RegisterPatientInput struct {
	Name                 string   `json:"name"`
	Phone                string   `json:"phone"`
	Category             string   `json:"category"`
	VulnerabilityFactors []string `json:"vulnerability_factors"`
}

func (s *Service) RegisterPatient(ctx context.Context, in RegisterPatientInput) (*Patient, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, &queue.ValidationError{Field: "name", Reason: "required"}
	}
	category := in.Category
	if category == "" {
		category = "Standard"
	}
	cat, err := s.repo.GetCategoryByName(ctx, category)
	if err != nil {
		if errors.Is(err, queue.ErrNotFound) {
			return nil, &queue.ValidationError{Field: "category", Reason: "unknown category " + category}
		}
		return nil, err
	}

	p := &Patient{Name: name, Phone: strings.TrimSpace(in.Phone), CategoryID: cat.ID}
	if err := s.repo.CreatePatient(ctx, p, in.VulnerabilityFactors); err != nil {
		return nil, err
	}
	return s.repo.GetPatient(ctx, p.ID)
}

func (s *Service) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.repo.GetPatient(ctx, id)
}

func (s *Service) ListPatients(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListPatients(ctx, limit, offset)
}

func (s *Service) ListCategories(ctx context.Context) ([]*Category, error) {
	return s.repo.ListCategories(ctx)
}

func (s *Service) ListVulnerabilityFactors(ctx context.Context) ([]*VulnerabilityFactor, error) {
	return s.repo.ListVulnerabilityFactors(ctx)
}

func (s *Service) ListStaff(ctx context.Context) ([]*StaffMember, error) {
	return s.repo.ListStaff(ctx)
}

// SetStaffAvailability flips a roster entry and republishes the doctor queue
// so wait estimates track the new staffing level.
func (s *Service) SetStaffAvailability(ctx context.Context, id uuid.UUID, available bool) error {
	if err := s.repo.SetStaffAvailability(ctx, id, available); err != nil {
		return err
	}
	if err := s.queues.Refresh(ctx, queue.TypeDoctor); err != nil {
		s.log.Warn().Err(err).Msg("doctor queue refresh after staffing change failed")
	}
	return nil
}

// CheckInInput admits a patient at the front desk.
type CheckInInput struct {
	PatientID     uuid.UUID `json:"patient_id"`
	QueueType     queue.Type `json:"queue_type"`
	IsAppointment bool      `json:"is_appointment"`
}

// CheckInResult is the opened visit and its queue entry.
type CheckInResult struct {
	Visit *Visit       `json:"visit"`
	Entry *queue.Entry `json:"entry"`
}

// CheckIn opens (or reuses) today's visit for the patient and enqueues it.
// Walk-ins normally enter the vitals queue; appointments may go straight to
// the doctor queue.
func (s *Service) CheckIn(ctx context.Context, in CheckInInput) (*CheckInResult, error) {
	if in.PatientID == uuid.Nil {
		return nil, &queue.ValidationError{Field: "patient_id", Reason: "required"}
	}
	qt := in.QueueType
	if qt == "" {
		qt = queue.TypeVitals
	}
	if !qt.Valid() {
		return nil, &queue.ValidationError{Field: "queue_type", Reason: "unknown queue type " + string(qt)}
	}

	pc, err := s.qreg.PatientContext(ctx, in.PatientID)
	if err != nil {
		return nil, err
	}

	visit, err := s.repo.OpenVisitForPatient(ctx, in.PatientID)
	if errors.Is(err, queue.ErrNotFound) {
		visit = &Visit{PatientID: in.PatientID, Status: VisitWaiting}
		err = s.repo.CreateVisit(ctx, visit)
	}
	if err != nil {
		return nil, err
	}

	entry, err := s.queues.Enqueue(ctx, queue.EnqueueRequest{
		VisitID:             visit.ID,
		PatientID:           in.PatientID,
		QueueType:           qt,
		IsAppointment:       in.IsAppointment,
		CategoryName:        pc.CategoryName,
		CategoryWeight:      pc.CategoryWeight,
		VulnerabilityBoosts: pc.Boosts,
	})
	if err != nil {
		return nil, err
	}
	return &CheckInResult{Visit: visit, Entry: entry}, nil
}

// CloseVisit marks a visit completed or cancelled.
func (s *Service) CloseVisit(ctx context.Context, id uuid.UUID, status string) (*Visit, error) {
	if status != VisitCompleted && status != VisitCancelled {
		return nil, &queue.ValidationError{Field: "status", Reason: "must be completed or cancelled"}
	}
	if err := s.repo.UpdateVisitStatus(ctx, id, status); err != nil {
		return nil, err
	}
	return s.repo.GetVisit(ctx, id)
}

func (s *Service) GetVisit(ctx context.Context, id uuid.UUID) (*Visit, error) {
	return s.repo.GetVisit(ctx, id)
}
