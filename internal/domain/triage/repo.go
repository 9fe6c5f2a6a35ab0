package triage

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists triage records.
type Repository interface {
	Create(ctx context.Context, rec *Record) error
	GetByVisit(ctx context.Context, visitID uuid.UUID) (*Record, error)
	ListRecent(ctx context.Context, limit int) ([]*Record, error)
}
