package registry

import (
	"context"

	"github.com/google/uuid"
)

// Repository is the persistence surface of the front-desk master data.
type Repository interface {
	CreatePatient(ctx context.Context, p *Patient, factorNames []string) error
	GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error)
	ListPatients(ctx context.Context, limit, offset int) ([]*Patient, int, error)

	ListCategories(ctx context.Context) ([]*Category, error)
	GetCategoryByName(ctx context.Context, name string) (*Category, error)
	ListVulnerabilityFactors(ctx context.Context) ([]*VulnerabilityFactor, error)

	ListStaff(ctx context.Context) ([]*StaffMember, error)
	SetStaffAvailability(ctx context.Context, id uuid.UUID, available bool) error

	CreateVisit(ctx context.Context, v *Visit) error
	GetVisit(ctx context.Context, id uuid.UUID) (*Visit, error)
	UpdateVisitStatus(ctx context.Context, id uuid.UUID, status string) error
	OpenVisitForPatient(ctx context.Context, patientID uuid.UUID) (*Visit, error)
}
