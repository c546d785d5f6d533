package booking

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrAppointmentNotFound     = errors.New("appointment not found")
	ErrInvalidStatusTransition = errors.New("invalid status transition")
)

// Repository contains all appointment persistence needed by the scheduler.
type Repository interface {
	Create(ctx context.Context, appt *Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// UpdateStatus is a compare-and-swap: it moves the appointment from
	// `from` to `to` only if it is still in `from`, and reports
	// ErrAppointmentNotFound otherwise. Confirm clears the hold;
	// completion records the consultation length.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Appointment, error)
	RecordConsultSeconds(ctx context.Context, id uuid.UUID, seconds int) error

	// FindStaleRequested returns requested appointments whose hold expired
	// before now. Used by the sync worker.
	FindStaleRequested(ctx context.Context, now time.Time) ([]Appointment, error)

	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error)
}
