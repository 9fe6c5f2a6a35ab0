package triage

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kalims/queue-engine/internal/domain/queue"
)

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

const recordCols = `id, visit_id, symptoms, vitals_data, severity_score,
	recommendations, requires_urgent_care, critical_flags, source, recorded_at`

func (r *repoPG) Create(ctx context.Context, rec *Record) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	vitals, err := json.Marshal(rec.Vitals)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO triage_records (
			id, visit_id, symptoms, vitals_data, severity_score,
			recommendations, requires_urgent_care, critical_flags, source, recorded_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		rec.ID, rec.VisitID, rec.Symptoms, vitals, rec.SeverityScore,
		rec.Recommendations, rec.RequiresUrgentCare, rec.CriticalFlags, rec.Source, rec.RecordedAt,
	)
	return err
}

func (r *repoPG) GetByVisit(ctx context.Context, visitID uuid.UUID) (*Record, error) {
	return scanRecord(r.pool.QueryRow(ctx, `
		SELECT `+recordCols+`
		FROM triage_records
		WHERE visit_id = $1
		ORDER BY recorded_at DESC LIMIT 1`, visitID))
}

func (r *repoPG) ListRecent(ctx context.Context, limit int) ([]*Record, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+recordCols+`
		FROM triage_records
		ORDER BY recorded_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

func scanRecord(row pgx.Row) (*Record, error) {
	var rec Record
	var vitals []byte
	err := row.Scan(
		&rec.ID, &rec.VisitID, &rec.Symptoms, &vitals, &rec.SeverityScore,
		&rec.Recommendations, &rec.RequiresUrgentCare, &rec.CriticalFlags, &rec.Source, &rec.RecordedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, queue.ErrNotFound
		}
		return nil, err
	}
	if len(vitals) > 0 {
		if err := json.Unmarshal(vitals, &rec.Vitals); err != nil {
			return nil, err
		}
	}
	return &rec, nil
}
