package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	pgUniqueViolation    = "23505"
	doctorSlotConstraint = "appointments_doctor_slot_key"
	appointmentColumns   = "id, doctor_id, patient_id, scheduled_at, kind, insurance, insurance_plan_id, created_at, updated_at"
)

// PgRepository is the Postgres backed Store and directory set.
type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

func scanUser(row pgx.Row) (*User, error) {
	var u User
	var email *string

	err := row.Scan(
		&u.ID,
		&u.Name,
		&email,
		&u.Role,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}

	u.Email = email
	return &u, nil
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient

	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.Email,
		&p.Phone,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}

	return &p, nil
}

func scanPlan(row pgx.Row) (*InsurancePlan, error) {
	var ip InsurancePlan

	err := row.Scan(
		&ip.ID,
		&ip.Name,
		&ip.CreatedAt,
		&ip.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}

	return &ip, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var planID *uuid.UUID

	err := row.Scan(
		&a.ID,
		&a.DoctorID,
		&a.PatientID,
		&a.ScheduledAt,
		&a.Kind,
		&a.Insurance,
		&planID,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}

	a.ScheduledAt = a.ScheduledAt.UTC()
	a.InsurancePlanID = planID
	return &a, nil
}

// translateWriteError maps the doctor/instant unique violation to ErrConflict.
func translateWriteError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation && pgErr.ConstraintName == doctorSlotConstraint {
		return ErrConflict
	}
	return err
}

// whereClause renders c as a SQL predicate with positional arguments.
func whereClause(c Criteria) (string, []any) {
	var conds []string
	var args []any

	add := func(expr string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(expr, len(args)))
	}

	if c.ID != nil {
		add("id = $%d", *c.ID)
	}
	if c.DoctorID != nil {
		add("doctor_id = $%d", *c.DoctorID)
	}
	if c.PatientID != nil {
		add("patient_id = $%d", *c.PatientID)
	}
	if c.Kind != nil {
		add("kind = $%d", string(*c.Kind))
	}
	if c.ScheduledAt != nil {
		add("scheduled_at = $%d", c.ScheduledAt.UTC())
	}
	if c.ExcludeID != nil {
		add("id <> $%d", *c.ExcludeID)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// Directories

func (r *PgRepository) FindUserByID(ctx context.Context, id uuid.UUID) (*User, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, email, role, created_at, updated_at
		FROM users
		WHERE id = $1
	`, id)
	return scanUser(row)
}

func (r *PgRepository) FindPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, email, phone, created_at, updated_at
		FROM patients
		WHERE id = $1
	`, id)
	return scanPatient(row)
}

func (r *PgRepository) FindPlanByID(ctx context.Context, id uuid.UUID) (*InsurancePlan, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, created_at, updated_at
		FROM insurance_plans
		WHERE id = $1
	`, id)
	return scanPlan(row)
}

// Store

func (r *PgRepository) Insert(ctx context.Context, a Appointment) (*Appointment, error) {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO appointments (id, doctor_id, patient_id, scheduled_at, kind, insurance, insurance_plan_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
		RETURNING `+appointmentColumns,
		a.ID, a.DoctorID, a.PatientID, a.ScheduledAt.UTC(), string(a.Kind), a.Insurance, a.InsurancePlanID)

	created, err := scanAppointment(row)
	if err != nil {
		return nil, translateWriteError(err)
	}
	return created, nil
}

func (r *PgRepository) FindOne(ctx context.Context, c Criteria) (*Appointment, error) {
	where, args := whereClause(c)
	row := r.pool.QueryRow(ctx, "SELECT "+appointmentColumns+" FROM appointments"+where+" LIMIT 1", args...)
	return scanAppointment(row)
}

func (r *PgRepository) FindMany(ctx context.Context, c Criteria) ([]Appointment, error) {
	where, args := whereClause(c)
	rows, err := r.pool.Query(ctx, "SELECT "+appointmentColumns+" FROM appointments"+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []Appointment{}
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) UpdateByID(ctx context.Context, a Appointment) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET doctor_id = $2,
		    patient_id = $3,
		    scheduled_at = $4,
		    kind = $5,
		    insurance = $6,
		    insurance_plan_id = $7,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+appointmentColumns,
		a.ID, a.DoctorID, a.PatientID, a.ScheduledAt.UTC(), string(a.Kind), a.Insurance, a.InsurancePlanID)

	updated, err := scanAppointment(row)
	if err != nil {
		return nil, translateWriteError(err)
	}
	return updated, nil
}

func (r *PgRepository) DeleteByID(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM appointments WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRecordNotFound
	}
	return nil
}
