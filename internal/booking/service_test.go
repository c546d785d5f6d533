package booking

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imanmay2/sehat-server/internal/availability"
	"github.com/imanmay2/sehat-server/internal/connectivity"
)

// 2026-09-07 is a Monday.
var monday = time.Date(2026, time.September, 7, 0, 0, 0, 0, time.UTC)

// stubSource is a settable connectivity source. calls counts Current() reads
// so tests can flip state mid-booking.
type stubSource struct {
	mu    sync.Mutex
	state connectivity.State
	calls atomic.Int64

	// flipAfter, when > 0, switches to flipTo once calls passes it.
	flipAfter int64
	flipTo    connectivity.State
}

func (s *stubSource) Current() connectivity.Snapshot {
	n := s.calls.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	state := s.state
	if s.flipAfter > 0 && n > s.flipAfter {
		state = s.flipTo
	}
	return connectivity.Snapshot{State: state, Since: time.Now()}
}

func (s *stubSource) set(state connectivity.State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

type fixture struct {
	svc      *Service
	repo     *MemRepository
	store    *availability.MemStore
	conn     *stubSource
	provider *availability.Provider
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	provider := &availability.Provider{
		ID:   uuid.New(),
		Name: "Dr. Test",
		Windows: []availability.AvailabilityWindow{
			{Weekday: time.Monday, StartMinute: 9 * 60, EndMinute: 17 * 60, SlotMinutes: 30},
		},
	}
	store := availability.NewMemStore()
	store.AddProvider(provider)

	f := &fixture{
		repo:     NewMemRepository(),
		store:    store,
		conn:     &stubSource{state: connectivity.Online},
		provider: provider,
		now:      monday.Add(8 * time.Hour),
	}
	f.svc = NewService(f.repo, store, NewMemLocker(), f.conn, 2*time.Minute,
		WithClock(func() time.Time { return f.now }))
	return f
}

func (f *fixture) bookReq(modality Modality) BookRequest {
	return BookRequest{
		PatientID:       uuid.New(),
		ProviderID:      f.provider.ID,
		StartTime:       monday.Add(9 * time.Hour),
		DurationMinutes: 30,
		Modality:        modality,
		Reason:          "fever and cough",
	}
}

func TestBookConfirmsAndConsumesSlot(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	appt, err := f.svc.Book(ctx, f.bookReq(ModalityVideo))
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, appt.Status)
	assert.Nil(t, appt.HoldExpiresAt, "confirm must clear the hold")

	_, err = f.svc.Book(ctx, f.bookReq(ModalityVideo))
	assert.ErrorIs(t, err, availability.ErrSlotTaken)
}

func TestBookRejectsInvalidModality(t *testing.T) {
	f := newFixture(t)
	req := f.bookReq("carrier_pigeon")
	_, err := f.svc.Book(context.Background(), req)
	assert.ErrorIs(t, err, ErrInvalidModality)
}

func TestBookOfflinePolicy(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.conn.set(connectivity.Offline)

	_, err := f.svc.Book(ctx, f.bookReq(ModalityVideo))
	assert.ErrorIs(t, err, ErrOfflineBookingNotAllowed)

	_, err = f.svc.Book(ctx, f.bookReq(ModalityAudio))
	assert.ErrorIs(t, err, ErrOfflineBookingNotAllowed)

	// In-person has no live session and may book while offline.
	appt, err := f.svc.Book(ctx, f.bookReq(ModalityInPerson))
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, appt.Status)
}

func TestBookRollsBackWhenConnectivityDropsMidBooking(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	// Online at the gate, offline by the pre-commit re-check.
	f.conn.flipAfter = 1
	f.conn.flipTo = connectivity.Offline

	req := f.bookReq(ModalityVideo)
	_, err := f.svc.Book(ctx, req)
	require.ErrorIs(t, err, ErrOfflineBookingNotAllowed)

	// The reservation must have been rolled back.
	f.conn.flipAfter = 0
	appt, err := f.svc.Book(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, appt.Status)
}

func TestBookUnknownProvider(t *testing.T) {
	f := newFixture(t)
	req := f.bookReq(ModalityVideo)
	req.ProviderID = uuid.New()
	_, err := f.svc.Book(context.Background(), req)
	assert.ErrorIs(t, err, ErrProviderUnavailable)
}

func TestBookOutsideAvailability(t *testing.T) {
	f := newFixture(t)
	req := f.bookReq(ModalityVideo)
	req.StartTime = monday.Add(18 * time.Hour)
	_, err := f.svc.Book(context.Background(), req)
	assert.ErrorIs(t, err, availability.ErrSlotOutsideAvailability)
}

func TestCancelReleasesSlot(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	appt, err := f.svc.Book(ctx, f.bookReq(ModalityVideo))
	require.NoError(t, err)

	cancelled, err := f.svc.Cancel(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)

	// The freed slot is immediately bookable by someone else.
	rebooked, err := f.svc.Book(ctx, f.bookReq(ModalityVideo))
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, rebooked.Status)
}

func TestCancelRejectsTerminalAndActive(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	appt, err := f.svc.Book(ctx, f.bookReq(ModalityVideo))
	require.NoError(t, err)

	_, err = f.svc.Cancel(ctx, appt.ID)
	require.NoError(t, err)
	_, err = f.svc.Cancel(ctx, appt.ID)
	assert.ErrorIs(t, err, ErrInvalidStatusTransition)

	active, err := f.svc.Book(ctx, BookRequest{
		PatientID:       uuid.New(),
		ProviderID:      f.provider.ID,
		StartTime:       monday.Add(10 * time.Hour),
		DurationMinutes: 30,
		Modality:        ModalityVideo,
	})
	require.NoError(t, err)
	_, err = f.svc.MarkActive(ctx, active.ID)
	require.NoError(t, err)
	_, err = f.svc.Cancel(ctx, active.ID)
	assert.ErrorIs(t, err, ErrInvalidStatusTransition)
}

func TestMarkActiveRequiresConfirmed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	appt, err := f.svc.Book(ctx, f.bookReq(ModalityVideo))
	require.NoError(t, err)

	activated, err := f.svc.MarkActive(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusActive, activated.Status)

	_, err = f.svc.MarkActive(ctx, appt.ID)
	assert.ErrorIs(t, err, ErrAppointmentNotConfirmed)
}

func TestMarkEndedCompletesWithDuration(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	appt, err := f.svc.Book(ctx, f.bookReq(ModalityVideo))
	require.NoError(t, err)
	_, err = f.svc.MarkActive(ctx, appt.ID)
	require.NoError(t, err)

	done, err := f.svc.MarkEnded(ctx, appt.ID, 17*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, done.Status)
	assert.Equal(t, int((17 * time.Minute).Seconds()), done.ConsultSeconds)
}

func TestMarkEndedAbortedJoinCancelsAndFreesSlot(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	appt, err := f.svc.Book(ctx, f.bookReq(ModalityVideo))
	require.NoError(t, err)
	_, err = f.svc.MarkActive(ctx, appt.ID)
	require.NoError(t, err)

	// No connected time was recorded.
	done, err := f.svc.MarkEnded(ctx, appt.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, done.Status)

	rebooked, err := f.svc.Book(ctx, f.bookReq(ModalityVideo))
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, rebooked.Status)
}

func TestExpireStaleRequests(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	// A requested appointment stuck holding its slot.
	hold := f.now.Add(2 * time.Minute)
	slot := availability.AppointmentSlot{
		ProviderID:      f.provider.ID,
		StartTime:       monday.Add(9 * time.Hour),
		DurationMinutes: 30,
	}
	require.NoError(t, f.store.Reserve(ctx, slot, hold))
	stuck := &Appointment{
		ID:              uuid.New(),
		PatientID:       uuid.New(),
		ProviderID:      f.provider.ID,
		StartTime:       slot.StartTime,
		DurationMinutes: 30,
		Modality:        ModalityVideo,
		Status:          StatusRequested,
		HoldExpiresAt:   &hold,
	}
	require.NoError(t, f.repo.Create(ctx, stuck))

	// Before the hold lapses nothing changes.
	require.NoError(t, f.svc.ExpireStaleRequests(ctx))
	got, err := f.repo.GetByID(ctx, stuck.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusRequested, got.Status)

	f.now = f.now.Add(3 * time.Minute)
	require.NoError(t, f.svc.ExpireStaleRequests(ctx))

	got, err = f.repo.GetByID(ctx, stuck.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, got.Status)

	// Slot is free again.
	_, err = f.svc.Book(ctx, f.bookReq(ModalityVideo))
	require.NoError(t, err)
}

func TestListByPatientClampsLimit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	patientID := uuid.New()
	for i := 0; i < 3; i++ {
		req := f.bookReq(ModalityInPerson)
		req.PatientID = patientID
		req.StartTime = monday.Add(time.Duration(9*60+30*i) * time.Minute)
		_, err := f.svc.Book(ctx, req)
		require.NoError(t, err)
	}

	appts, err := f.svc.ListByPatient(ctx, patientID, -5, -1)
	require.NoError(t, err)
	assert.Len(t, appts, 3)

	appts, err = f.svc.ListByPatient(ctx, patientID, 2, 0)
	require.NoError(t, err)
	require.Len(t, appts, 2)
	assert.True(t, appts[0].StartTime.After(appts[1].StartTime), "most recent first")
}
