package booking

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemRepository is the in-process Repository used by tests and the simulate
// tool.
type MemRepository struct {
	mu    sync.Mutex
	appts map[uuid.UUID]*Appointment
}

func NewMemRepository() *MemRepository {
	return &MemRepository{appts: make(map[uuid.UUID]*Appointment)}
}

func (r *MemRepository) Create(ctx context.Context, appt *Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *appt
	now := time.Now().UTC()
	cp.CreatedAt = now
	cp.UpdatedAt = now
	r.appts[appt.ID] = &cp
	return nil
}

func (r *MemRepository) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *MemRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.appts[id]
	if !ok || a.Status != from {
		return nil, ErrAppointmentNotFound
	}
	a.Status = to
	if to == StatusConfirmed {
		a.HoldExpiresAt = nil
	}
	a.UpdatedAt = time.Now().UTC()
	cp := *a
	return &cp, nil
}

func (r *MemRepository) RecordConsultSeconds(ctx context.Context, id uuid.UUID, seconds int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.appts[id]
	if !ok {
		return ErrAppointmentNotFound
	}
	a.ConsultSeconds = seconds
	a.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *MemRepository) FindStaleRequested(ctx context.Context, now time.Time) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var stale []Appointment
	for _, a := range r.appts {
		if a.Status == StatusRequested && a.HoldExpiresAt != nil && a.HoldExpiresAt.Before(now) {
			stale = append(stale, *a)
		}
	}
	sort.Slice(stale, func(i, j int) bool {
		return stale[i].HoldExpiresAt.Before(*stale[j].HoldExpiresAt)
	})
	return stale, nil
}

func (r *MemRepository) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var all []Appointment
	for _, a := range r.appts {
		if a.PatientID == patientID {
			all = append(all, *a)
		}
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].StartTime.After(all[j].StartTime)
	})

	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}
