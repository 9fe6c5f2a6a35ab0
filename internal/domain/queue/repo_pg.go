package queue

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type repoPG struct {
	pool *pgxpool.Pool
}

// NewStore returns the Postgres-backed queue store.
func NewStore(pool *pgxpool.Pool) Store {
	return &repoPG{pool: pool}
}

// NewRegistry returns the Postgres-backed patient registry.
func NewRegistry(pool *pgxpool.Pool) Registry {
	return &repoPG{pool: pool}
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

const entryCols = `id, patient_id, visit_id, queue_type, status, priority_score,
	is_appointment, display_number, position,
	estimated_wait_time, min_wait_time, max_wait_time,
	critical_flags, doctor_id, created_at, last_status_change`

// Load returns one queue's working set: every row created today plus any
// older row still waiting or in progress. Resolved rows age off the board at
// midnight; an unresolved entry stays orderable until a transition closes it.
func (r *repoPG) Load(ctx context.Context, queueType Type) ([]*Entry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+entryCols+`
		FROM queue_positions
		WHERE queue_type = $1
		  AND (created_at >= date_trunc('day', now())
		       OR status IN ('waiting', 'in-progress'))
		ORDER BY position, created_at`, queueType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// SaveAll upserts the full working set of one queue in a single transaction,
// so readers never observe a half-written ordering.
func (r *repoPG) SaveAll(ctx context.Context, entries []*Entry) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, e := range entries {
		if err := upsertEntry(ctx, tx, e); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func upsertEntry(ctx context.Context, q querier, e *Entry) error {
	_, err := q.Exec(ctx, `
		INSERT INTO queue_positions (
			id, patient_id, visit_id, queue_type, status, priority_score,
			is_appointment, display_number, position,
			estimated_wait_time, min_wait_time, max_wait_time,
			critical_flags, doctor_id, created_at, last_status_change
		) VALUES (
			$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16
		)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			priority_score = EXCLUDED.priority_score,
			position = EXCLUDED.position,
			estimated_wait_time = EXCLUDED.estimated_wait_time,
			min_wait_time = EXCLUDED.min_wait_time,
			max_wait_time = EXCLUDED.max_wait_time,
			critical_flags = EXCLUDED.critical_flags,
			doctor_id = EXCLUDED.doctor_id,
			last_status_change = EXCLUDED.last_status_change`,
		e.ID, e.PatientID, e.VisitID, e.QueueType, e.Status, e.PriorityScore,
		e.IsAppointment, e.DisplayNumber, e.Position,
		e.EstimatedWaitTime, e.MinWaitTime, e.MaxWaitTime,
		e.CriticalFlags, e.DoctorID, e.CreatedAt, e.LastStatusChange,
	)
	return err
}

func (r *repoPG) AppendHistory(ctx context.Context, rec *HistoryRecord) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO queue_history (id, entry_id, visit_id, event, from_status, to_status, detail, recorded_at)
		VALUES ($1,$2,$3,$4,NULLIF($5,''),NULLIF($6,''),$7,$8)`,
		rec.ID, rec.EntryID, rec.VisitID, rec.Event, string(rec.FromStatus), string(rec.ToStatus), rec.Detail, rec.RecordedAt,
	)
	return err
}

func scanEntry(row pgx.Row) (*Entry, error) {
	var e Entry
	err := row.Scan(
		&e.ID, &e.PatientID, &e.VisitID, &e.QueueType, &e.Status, &e.PriorityScore,
		&e.IsAppointment, &e.DisplayNumber, &e.Position,
		&e.EstimatedWaitTime, &e.MinWaitTime, &e.MaxWaitTime,
		&e.CriticalFlags, &e.DoctorID, &e.CreatedAt, &e.LastStatusChange,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &e, nil
}

// ---------------------------------------------------------------------------
// Registry
// ---------------------------------------------------------------------------

func (r *repoPG) PatientContext(ctx context.Context, patientID uuid.UUID) (*PatientContext, error) {
	pc := PatientContext{PatientID: patientID}
	err := r.pool.QueryRow(ctx, `
		SELECT c.name, c.priority_weight
		FROM patients p
		JOIN patient_categories c ON c.id = p.category_id
		WHERE p.id = $1`, patientID,
	).Scan(&pc.CategoryName, &pc.CategoryWeight)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT v.name, v.boost
		FROM patient_vulnerabilities pv
		JOIN vulnerability_factors v ON v.id = pv.factor_id
		WHERE pv.patient_id = $1`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		var b float64
		if err := rows.Scan(&name, &b); err != nil {
			return nil, err
		}
		pc.Vulnerabilities = append(pc.Vulnerabilities, name)
		pc.Boosts = append(pc.Boosts, b)
	}
	return &pc, rows.Err()
}

// CountCategoryToday counts the distinct display numbers issued for a
// category prefix today. Distinct, because a patient graduating from vitals
// to the doctor queue keeps their number on a second row.
func (r *repoPG) CountCategoryToday(ctx context.Context, prefix string, day time.Time) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(DISTINCT display_number)
		FROM queue_positions
		WHERE display_number LIKE $1
		  AND created_at >= date_trunc('day', $2::timestamptz)
		  AND created_at < date_trunc('day', $2::timestamptz) + interval '1 day'`,
		strings.ToUpper(prefix)+"%", day,
	).Scan(&count)
	return count, err
}

func (r *repoPG) AvailableDoctorCount(ctx context.Context) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM staff
		WHERE role = 'doctor' AND available = TRUE`,
	).Scan(&count)
	return count, err
}

// ServiceStats derives consultation-time statistics from the last seven days
// of completed doctor-queue entries. A severity bucket contributes a median
// only once it has enough samples; the estimator falls back to the global
// average otherwise.
func (r *repoPG) ServiceStats(ctx context.Context) (ServiceStats, error) {
	stats := ServiceStats{Buckets: map[int]BucketStat{}}

	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(AVG(EXTRACT(EPOCH FROM (last_status_change - created_at)) / 60), 0)
		FROM queue_positions
		WHERE queue_type = 'doctor' AND status = 'completed'
		  AND last_status_change >= now() - interval '7 days'`,
	).Scan(&stats.GlobalAverage)
	if err != nil {
		return stats, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT ROUND(priority_score * 10)::int AS bucket,
		       percentile_cont(0.5) WITHIN GROUP (
		           ORDER BY EXTRACT(EPOCH FROM (last_status_change - created_at)) / 60
		       ) AS median,
		       COUNT(*) AS samples
		FROM queue_positions
		WHERE queue_type = 'doctor' AND status = 'completed'
		  AND last_status_change >= now() - interval '7 days'
		GROUP BY 1`)
	if err != nil {
		return stats, err
	}
	defer rows.Close()

	for rows.Next() {
		var bucket, samples int
		var median float64
		if err := rows.Scan(&bucket, &median, &samples); err != nil {
			return stats, err
		}
		stats.Buckets[bucket] = BucketStat{Median: median, Count: samples}
	}
	return stats, rows.Err()
}
