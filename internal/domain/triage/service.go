package triage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/kalims/queue-engine/internal/domain/queue"
)

// Service runs triage assessments and feeds the results into the queue
// engine. The AI scorer is authoritative; the rule scorer only runs when a
// caller asks for an offline assessment. When the AI call fails, the queue
// is left untouched and stale positions stand until a retry succeeds.
type Service struct {
	scorer   Scorer
	repo     Repository
	queues   *queue.Service
	registry queue.Registry
	log      zerolog.Logger
}

func NewService(scorer Scorer, repo Repository, queues *queue.Service, registry queue.Registry, logger zerolog.Logger) *Service {
	return &Service{
		scorer:   scorer,
		repo:     repo,
		queues:   queues,
		registry: registry,
		log:      logger,
	}
}

// TriageInput is one intake assessment request.
type TriageInput struct {
	VisitID  uuid.UUID
	Notes    string
	Vitals   VitalSigns
	Symptoms Symptoms
	// Offline requests the rule-based scorer instead of the AI service.
	Offline bool
}

// TriageResult is the assessment plus the patient's resulting queue state.
type TriageResult struct {
	Assessment *Assessment  `json:"assessment"`
	Category   Category     `json:"category"`
	Entry      *queue.Entry `json:"entry"`
}

// ProcessTriage assesses a visit and applies the verdict to the queue. A
// visit still in the vitals queue graduates to the doctor queue; a visit
// already in the doctor queue gets its priority replaced in place.
func (s *Service) ProcessTriage(ctx context.Context, in TriageInput) (*TriageResult, error) {
	if in.VisitID == uuid.Nil {
		return nil, &queue.ValidationError{Field: "visit_id", Reason: "required"}
	}

	entry, err := s.queues.FindByVisit(ctx, in.VisitID)
	if err != nil {
		return nil, err
	}

	pc, err := s.registry.PatientContext(ctx, entry.PatientID)
	if err != nil {
		return nil, err
	}

	notes := in.Notes
	if notes == "" {
		notes = "No symptoms provided"
	}

	var assessment *Assessment
	if in.Offline {
		assessment = RuleAssessment(in.Vitals, in.Symptoms, pc.Vulnerabilities)
	} else {
		assessment, err = s.scorer.Assess(ctx, AssessRequest{
			Symptoms:             notes,
			Vitals:               in.Vitals,
			PatientCategory:      pc.CategoryName,
			VulnerabilityFactors: pc.Vulnerabilities,
		})
		if err != nil {
			s.log.Error().Err(err).
				Str("visit_id", in.VisitID.String()).
				Msg("triage assessment failed, queue unchanged")
			return nil, err
		}
	}

	rec := &Record{
		VisitID:            in.VisitID,
		Symptoms:           notes,
		Vitals:             in.Vitals,
		SeverityScore:      assessment.SeverityScore,
		Recommendations:    assessment.RecommendedAction,
		RequiresUrgentCare: assessment.SeverityScore > 0.8,
		CriticalFlags:      assessment.CriticalFlags,
		Source:             assessment.Source,
		RecordedAt:         time.Now().UTC(),
	}
	if err := s.repo.Create(ctx, rec); err != nil {
		return nil, err
	}

	var updated *queue.Entry
	if entry.QueueType == queue.TypeVitals {
		updated, err = s.queues.CompleteVitals(ctx, in.VisitID, assessment.SeverityScore, assessment.CriticalFlags)
	} else {
		updated, err = s.queues.UpdatePriority(ctx, entry.ID, assessment.SeverityScore, assessment.CriticalFlags)
	}
	if err != nil {
		return nil, err
	}

	return &TriageResult{
		Assessment: assessment,
		Category:   Categorize(assessment.SeverityScore),
		Entry:      updated,
	}, nil
}

// RecordForVisit returns the latest triage record of a visit.
func (s *Service) RecordForVisit(ctx context.Context, visitID uuid.UUID) (*Record, error) {
	return s.repo.GetByVisit(ctx, visitID)
}

// RecentRecords lists the newest triage records for the dashboard.
func (s *Service) RecentRecords(ctx context.Context, limit int) ([]*Record, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.repo.ListRecent(ctx, limit)
}
