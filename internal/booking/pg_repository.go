package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const appointmentColumns = `
	id, patient_id, provider_id, start_time, duration_minutes,
	modality, status, reason, hold_expires_at, consult_seconds,
	created_at, updated_at
`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var holdExpiresAt *time.Time

	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.ProviderID,
		&a.StartTime,
		&a.DurationMinutes,
		&a.Modality,
		&a.Status,
		&a.Reason,
		&holdExpiresAt,
		&a.ConsultSeconds,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.HoldExpiresAt = holdExpiresAt
	return &a, nil
}

func (r *PgRepository) Create(ctx context.Context, appt *Appointment) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO appointments (
			id, patient_id, provider_id, start_time, duration_minutes,
			modality, status, reason, hold_expires_at, consult_seconds,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 0, now(), now())
	`,
		appt.ID, appt.PatientID, appt.ProviderID, appt.StartTime.UTC(), appt.DurationMinutes,
		appt.Modality, appt.Status, appt.Reason, appt.HoldExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("insert appointment: %w", err)
	}
	return nil
}

func (r *PgRepository) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $3,
		    hold_expires_at = CASE WHEN $3 = 'confirmed' THEN NULL ELSE hold_expires_at END,
		    updated_at = now()
		WHERE id = $1 AND status = $2
		RETURNING `+appointmentColumns+`
	`, id, from, to)
	return scanAppointment(row)
}

func (r *PgRepository) RecordConsultSeconds(ctx context.Context, id uuid.UUID, seconds int) error {
	ct, err := r.pool.Exec(ctx, `
		UPDATE appointments
		SET consult_seconds = $2, updated_at = now()
		WHERE id = $1
	`, id, seconds)
	if err != nil {
		return fmt.Errorf("record consult seconds: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func (r *PgRepository) FindStaleRequested(ctx context.Context, now time.Time) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status = 'requested' AND hold_expires_at < $1
		ORDER BY hold_expires_at
		LIMIT 500
	`, now.UTC())
	if err != nil {
		return nil, fmt.Errorf("find stale requested: %w", err)
	}
	defer rows.Close()

	return collectAppointments(rows)
}

func (r *PgRepository) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE patient_id = $1
		ORDER BY start_time DESC
		LIMIT $2 OFFSET $3
	`, patientID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list appointments by patient: %w", err)
	}
	defer rows.Close()

	return collectAppointments(rows)
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	var appts []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		appts = append(appts, *a)
	}
	return appts, rows.Err()
}
