package registry

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kalims/queue-engine/internal/domain/queue"
)

type repoPG struct {
	pool *pgxpool.Pool
}

// NewRepo returns the Postgres-backed registry repository.
func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) CreatePatient(ctx context.Context, p *Patient, factorNames []string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO patients (id, name, phone, category_id)
		VALUES ($1, $2, NULLIF($3, ''), $4)`,
		p.ID, p.Name, p.Phone, p.CategoryID)
	if err != nil {
		return err
	}

	for _, name := range factorNames {
		tag, err := tx.Exec(ctx, `
			INSERT INTO patient_vulnerabilities (patient_id, factor_id)
			SELECT $1, id FROM vulnerability_factors WHERE name = $2
			ON CONFLICT DO NOTHING`, p.ID, name)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return &queue.ValidationError{Field: "vulnerability_factors", Reason: "unknown factor " + name}
		}
	}
	return tx.Commit(ctx)
}

func (r *repoPG) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	var p Patient
	var phone *string
	err := r.pool.QueryRow(ctx, `
		SELECT p.id, p.name, p.phone, p.category_id, c.name, p.created_at
		FROM patients p
		JOIN patient_categories c ON c.id = p.category_id
		WHERE p.id = $1`, id,
	).Scan(&p.ID, &p.Name, &phone, &p.CategoryID, &p.CategoryName, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, queue.ErrNotFound
		}
		return nil, err
	}
	if phone != nil {
		p.Phone = *phone
	}

	rows, err := r.pool.Query(ctx, `
		SELECT v.name
		FROM patient_vulnerabilities pv
		JOIN vulnerability_factors v ON v.id = pv.factor_id
		WHERE pv.patient_id = $1
		ORDER BY v.name`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		p.Vulnerabilities = append(p.Vulnerabilities, name)
	}
	return &p, rows.Err()
}

func (r *repoPG) ListPatients(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM patients`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT p.id, p.name, p.phone, p.category_id, c.name, p.created_at
		FROM patients p
		JOIN patient_categories c ON c.id = p.category_id
		ORDER BY p.created_at DESC
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Patient
	for rows.Next() {
		var p Patient
		var phone *string
		if err := rows.Scan(&p.ID, &p.Name, &phone, &p.CategoryID, &p.CategoryName, &p.CreatedAt); err != nil {
			return nil, 0, err
		}
		if phone != nil {
			p.Phone = *phone
		}
		items = append(items, &p)
	}
	return items, total, rows.Err()
}

func (r *repoPG) ListCategories(ctx context.Context) ([]*Category, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, priority_weight
		FROM patient_categories
		ORDER BY priority_weight`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Name, &c.PriorityWeight); err != nil {
			return nil, err
		}
		items = append(items, &c)
	}
	return items, rows.Err()
}

func (r *repoPG) GetCategoryByName(ctx context.Context, name string) (*Category, error) {
	var c Category
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, priority_weight
		FROM patient_categories
		WHERE name = $1`, name,
	).Scan(&c.ID, &c.Name, &c.PriorityWeight)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, queue.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (r *repoPG) ListVulnerabilityFactors(ctx context.Context) ([]*VulnerabilityFactor, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, boost
		FROM vulnerability_factors
		ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*VulnerabilityFactor
	for rows.Next() {
		var f VulnerabilityFactor
		if err := rows.Scan(&f.ID, &f.Name, &f.Boost); err != nil {
			return nil, err
		}
		items = append(items, &f)
	}
	return items, rows.Err()
}

func (r *repoPG) ListStaff(ctx context.Context) ([]*StaffMember, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, role, available, COALESCE(contact, ''), created_at
		FROM staff
		ORDER BY role, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*StaffMember
	for rows.Next() {
		var s StaffMember
		if err := rows.Scan(&s.ID, &s.Name, &s.Role, &s.Available, &s.Contact, &s.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, &s)
	}
	return items, rows.Err()
}

func (r *repoPG) SetStaffAvailability(ctx context.Context, id uuid.UUID, available bool) error {
	tag, err := r.pool.Exec(ctx, `UPDATE staff SET available = $2 WHERE id = $1`, id, available)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return queue.ErrNotFound
	}
	return nil
}

func (r *repoPG) CreateVisit(ctx context.Context, v *Visit) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	return r.pool.QueryRow(ctx, `
		INSERT INTO visits (id, patient_id, status)
		VALUES ($1, $2, $3)
		RETURNING check_in_time`,
		v.ID, v.PatientID, v.Status,
	).Scan(&v.CheckInTime)
}

func (r *repoPG) GetVisit(ctx context.Context, id uuid.UUID) (*Visit, error) {
	var v Visit
	err := r.pool.QueryRow(ctx, `
		SELECT id, patient_id, check_in_time, status
		FROM visits
		WHERE id = $1`, id,
	).Scan(&v.ID, &v.PatientID, &v.CheckInTime, &v.Status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, queue.ErrNotFound
		}
		return nil, err
	}
	return &v, nil
}

func (r *repoPG) UpdateVisitStatus(ctx context.Context, id uuid.UUID, status string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE visits SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return queue.ErrNotFound
	}
	return nil
}

// OpenVisitForPatient returns the patient's still-open visit from today, if
// one exists. Re-checking in the same patient must not fork a second visit.
func (r *repoPG) OpenVisitForPatient(ctx context.Context, patientID uuid.UUID) (*Visit, error) {
	var v Visit
	err := r.pool.QueryRow(ctx, `
		SELECT id, patient_id, check_in_time, status
		FROM visits
		WHERE patient_id = $1 AND status = 'waiting'
		  AND check_in_time >= date_trunc('day', now())
		ORDER BY check_in_time DESC
		LIMIT 1`, patientID,
	).Scan(&v.ID, &v.PatientID, &v.CheckInTime, &v.Status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, queue.ErrNotFound
		}
		return nil, err
	}
	return &v, nil
}
