package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/imanmay2/sehat-server/internal/availability"
	"github.com/imanmay2/sehat-server/internal/connectivity"
	"github.com/imanmay2/sehat-server/internal/observability/metrics"
	redisclient "github.com/imanmay2/sehat-server/internal/redis"
)

var (
	ErrInvalidModality          = errors.New("invalid consultation modality")
	ErrOfflineBookingNotAllowed = errors.New("live bookings are not allowed while offline")
	ErrProviderUnavailable      = errors.New("provider unavailable")
	ErrSlotBeingBooked          = errors.New("slot is currently being booked, please retry")
	ErrAppointmentNotConfirmed  = errors.New("appointment is not in confirmed state")
)

// Service is the booking scheduler. It owns the appointment lifecycle: every
// appointment is created through Book and mutated only via the status edges
// in validTransitions.
type Service struct {
	repo    Repository
	store   availability.Store
	locker  Locker
	conn    connectivity.Source
	holdTTL time.Duration
	now     func() time.Time
	logger  zerolog.Logger
	metrics *metrics.CoreMetrics
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.CoreMetrics) Option {
	return func(s *Service) { s.metrics = m }
}

func NewService(repo Repository, store availability.Store, locker Locker, conn connectivity.Source, holdTTL time.Duration, opts ...Option) *Service {
	s := &Service{
		repo:    repo,
		store:   store,
		locker:  locker,
		conn:    conn,
		holdTTL: holdTTL,
		now:     time.Now,
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type BookRequest struct {
	PatientID       uuid.UUID
	ProviderID      uuid.UUID
	StartTime       time.Time
	DurationMinutes int
	Modality        Modality
	Reason          string
}

// Book reserves the slot and commits a confirmed appointment, or fails with
// no partial state: any error after the reservation rolls the slot back.
//
// Video and audio bookings need live slot negotiation; while offline they
// fail immediately and are never queued, so a reconnect can't surface a
// double-booked slot. In-person requests are the one kind the offline queue
// may carry.
func (s *Service) Book(ctx context.Context, req BookRequest) (*Appointment, error) {
	if !req.Modality.Valid() {
		s.metrics.ObserveBooking("invalid_modality")
		return nil, ErrInvalidModality
	}

	if req.Modality.RequiresLiveSession() && s.conn.Current().State == connectivity.Offline {
		s.metrics.ObserveBooking("offline_rejected")
		return nil, ErrOfflineBookingNotAllowed
	}

	slot := availability.AppointmentSlot{
		ProviderID:      req.ProviderID,
		StartTime:       req.StartTime,
		DurationMinutes: req.DurationMinutes,
	}

	var created *Appointment

	err := s.locker.WithSlotLock(ctx, slot.Key(), func(lockCtx context.Context) error {
		holdUntil := s.now().Add(s.holdTTL)

		if err := s.store.Reserve(lockCtx, slot, holdUntil); err != nil {
			if errors.Is(err, availability.ErrProviderNotFound) {
				return ErrProviderUnavailable
			}
			return err
		}

		appt := &Appointment{
			ID:              uuid.New(),
			PatientID:       req.PatientID,
			ProviderID:      req.ProviderID,
			StartTime:       req.StartTime.UTC(),
			DurationMinutes: req.DurationMinutes,
			Modality:        req.Modality,
			Status:          StatusRequested,
			Reason:          req.Reason,
			HoldExpiresAt:   &holdUntil,
		}

		if err := s.repo.Create(lockCtx, appt); err != nil {
			s.releaseSlot(lockCtx, req.ProviderID, req.StartTime)
			return fmt.Errorf("create requested appointment: %w", err)
		}

		// Connectivity may have dropped during the reservation round-trip;
		// re-check before committing.
		if req.Modality.RequiresLiveSession() && s.conn.Current().State == connectivity.Offline {
			s.rollbackRequested(lockCtx, appt)
			return ErrOfflineBookingNotAllowed
		}

		confirmed, err := s.repo.UpdateStatus(lockCtx, appt.ID, StatusRequested, StatusConfirmed)
		if err != nil {
			s.rollbackRequested(lockCtx, appt)
			return fmt.Errorf("confirm appointment: %w", err)
		}

		created = confirmed
		return nil
	})

	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			s.metrics.ObserveBooking("lock_contended")
			return nil, ErrSlotBeingBooked
		}
		s.metrics.ObserveBooking(bookingOutcome(err))
		return nil, err
	}

	s.metrics.ObserveBooking("confirmed")
	s.logger.Info().
		Str("appointment_id", created.ID.String()).
		Str("provider_id", created.ProviderID.String()).
		Time("start", created.StartTime).
		Str("modality", string(created.Modality)).
		Msg("appointment confirmed")

	return created, nil
}

// Cancel moves a requested or confirmed appointment to cancelled and frees
// its slot. Active and terminal appointments are not cancellable here; active
// ones end through the session negotiator.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if appt.Status != StatusRequested && appt.Status != StatusConfirmed {
		return nil, ErrInvalidStatusTransition
	}

	cancelled, err := s.repo.UpdateStatus(ctx, appt.ID, appt.Status, StatusCancelled)
	if err != nil {
		return nil, fmt.Errorf("cancel appointment: %w", err)
	}

	s.releaseSlot(ctx, appt.ProviderID, appt.StartTime)
	s.logger.Info().Str("appointment_id", id.String()).Msg("appointment cancelled")
	return cancelled, nil
}

// MarkActive is called by the session negotiator when a participant joins.
func (s *Service) MarkActive(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if appt.Status != StatusConfirmed {
		return nil, ErrAppointmentNotConfirmed
	}
	return s.repo.UpdateStatus(ctx, id, StatusConfirmed, StatusActive)
}

// MarkEnded is called by the session negotiator on termination. A session
// that recorded no connected time counts as an aborted join: the appointment
// is cancelled and its slot released, so nothing is charged or logged as a
// consultation that never happened.
func (s *Service) MarkEnded(ctx context.Context, id uuid.UUID, elapsed time.Duration) (*Appointment, error) {
	appt, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if appt.Status != StatusActive {
		return nil, ErrInvalidStatusTransition
	}

	if elapsed <= 0 {
		cancelled, err := s.repo.UpdateStatus(ctx, id, StatusActive, StatusCancelled)
		if err != nil {
			return nil, fmt.Errorf("cancel aborted appointment: %w", err)
		}
		s.releaseSlot(ctx, appt.ProviderID, appt.StartTime)
		return cancelled, nil
	}

	completed, err := s.repo.UpdateStatus(ctx, id, StatusActive, StatusCompleted)
	if err != nil {
		return nil, fmt.Errorf("complete appointment: %w", err)
	}
	if err := s.repo.RecordConsultSeconds(ctx, id, int(elapsed.Seconds())); err != nil {
		s.logger.Error().Err(err).Str("appointment_id", id.String()).Msg("record consult duration")
	}
	completed.ConsultSeconds = int(elapsed.Seconds())
	return completed, nil
}

// ExpireStaleRequests cancels requested appointments whose hold lapsed and
// frees their reservations. Run periodically by the sync worker.
func (s *Service) ExpireStaleRequests(ctx context.Context) error {
	stale, err := s.repo.FindStaleRequested(ctx, s.now())
	if err != nil {
		return fmt.Errorf("find stale requested appointments: %w", err)
	}

	for _, appt := range stale {
		if _, err := s.repo.UpdateStatus(ctx, appt.ID, StatusRequested, StatusCancelled); err != nil {
			if !errors.Is(err, ErrAppointmentNotFound) {
				s.logger.Error().Err(err).Str("appointment_id", appt.ID.String()).Msg("expire stale request")
			}
			continue
		}
		s.releaseSlot(ctx, appt.ProviderID, appt.StartTime)
		s.logger.Info().Str("appointment_id", appt.ID.String()).Msg("stale reservation expired")
	}
	return nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListByPatient(ctx, patientID, limit, offset)
}

func (s *Service) rollbackRequested(ctx context.Context, appt *Appointment) {
	if _, err := s.repo.UpdateStatus(ctx, appt.ID, StatusRequested, StatusCancelled); err != nil {
		s.logger.Error().Err(err).Str("appointment_id", appt.ID.String()).Msg("rollback requested appointment")
	}
	s.releaseSlot(ctx, appt.ProviderID, appt.StartTime)
}

func (s *Service) releaseSlot(ctx context.Context, providerID uuid.UUID, start time.Time) {
	err := s.store.Release(ctx, providerID, start)
	if err != nil && !errors.Is(err, availability.ErrReservationNotFound) {
		s.logger.Error().Err(err).
			Str("provider_id", providerID.String()).
			Time("start", start).
			Msg("release slot reservation")
	}
}

func bookingOutcome(err error) string {
	switch {
	case errors.Is(err, availability.ErrSlotTaken):
		return "slot_taken"
	case errors.Is(err, availability.ErrSlotOutsideAvailability):
		return "outside_availability"
	case errors.Is(err, ErrProviderUnavailable):
		return "provider_unavailable"
	case errors.Is(err, ErrOfflineBookingNotAllowed):
		return "offline_rejected"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "error"
	}
}
