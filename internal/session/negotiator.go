package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/imanmay2/sehat-server/internal/booking"
	"github.com/imanmay2/sehat-server/internal/connectivity"
	"github.com/imanmay2/sehat-server/internal/observability/metrics"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionEnded    = errors.New("session already ended")
	ErrNoConnectivity  = errors.New("no connectivity")
	ErrInPersonVisit   = errors.New("in-person visits have no consultation session")
)

type Phase string

const (
	PhaseConnecting Phase = "connecting"
	PhaseConnected  Phase = "connected"
	PhaseDegraded   Phase = "degraded"
	PhaseEnded      Phase = "ended"
)

type EndReason string

const (
	EndReasonHangup  EndReason = "hangup"
	EndReasonOffline EndReason = "offline"
	EndReasonTimeout EndReason = "degraded_timeout"
)

// ConsultationSession is the ephemeral per-join state, bound 1:1 to an active
// appointment.
type ConsultationSession struct {
	ID            uuid.UUID
	AppointmentID uuid.UUID
	Modality      booking.Modality
	Phase         Phase
	StartedAt     time.Time
	ConnectedAt   *time.Time
	DegradedSince *time.Time
	LastSample    float64
	EndReason     EndReason

	badStreak int
}

// Scheduler is the slice of the booking service the negotiator drives.
type Scheduler interface {
	MarkActive(ctx context.Context, appointmentID uuid.UUID) (*booking.Appointment, error)
	MarkEnded(ctx context.Context, appointmentID uuid.UUID, elapsed time.Duration) (*booking.Appointment, error)
}

// Config are the quality thresholds. They are plain numbers, no randomness:
// the same sample sequence always produces the same transitions.
type Config struct {
	DegradedThreshold float64       // sample below this counts as bad
	DowngradeAfter    int           // consecutive bad samples before degrading
	MaxDegradedDwell  time.Duration // degraded time before the session is ended
}

// Negotiator manages consultation session lifecycles. All session state is
// mutated under one mutex; sample processing is a bounded synchronous update,
// never a goroutine per sample.
type Negotiator struct {
	scheduler Scheduler
	conn      connectivity.Source
	cfg       Config
	now       func() time.Time
	logger    zerolog.Logger
	metrics   *metrics.CoreMetrics

	mu       sync.Mutex
	sessions map[uuid.UUID]*ConsultationSession
}

type Option func(*Negotiator)

func WithClock(now func() time.Time) Option {
	return func(n *Negotiator) { n.now = now }
}

func WithLogger(logger zerolog.Logger) Option {
	return func(n *Negotiator) { n.logger = logger }
}

func WithMetrics(m *metrics.CoreMetrics) Option {
	return func(n *Negotiator) { n.metrics = m }
}

func NewNegotiator(scheduler Scheduler, conn connectivity.Source, cfg Config, opts ...Option) *Negotiator {
	n := &Negotiator{
		scheduler: scheduler,
		conn:      conn,
		cfg:       cfg,
		now:       time.Now,
		logger:    zerolog.Nop(),
		sessions:  make(map[uuid.UUID]*ConsultationSession),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Join creates a session for a confirmed appointment and moves the
// appointment to active. The appointment must carry a live modality and
// connectivity must be up.
func (n *Negotiator) Join(ctx context.Context, appointmentID uuid.UUID) (*ConsultationSession, error) {
	if n.conn.Current().State == connectivity.Offline {
		return nil, ErrNoConnectivity
	}

	appt, err := n.scheduler.MarkActive(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if !appt.Modality.RequiresLiveSession() {
		// Undo the join; nothing substantively occurred.
		if _, endErr := n.scheduler.MarkEnded(ctx, appointmentID, 0); endErr != nil {
			n.logger.Error().Err(endErr).Str("appointment_id", appointmentID.String()).Msg("unwind in-person join")
		}
		return nil, ErrInPersonVisit
	}

	sess := &ConsultationSession{
		ID:            uuid.New(),
		AppointmentID: appointmentID,
		Modality:      appt.Modality,
		Phase:         PhaseConnecting,
		StartedAt:     n.now(),
	}

	n.mu.Lock()
	n.sessions[sess.ID] = sess
	cp := *sess
	n.mu.Unlock()

	n.logger.Info().
		Str("session_id", sess.ID.String()).
		Str("appointment_id", appointmentID.String()).
		Msg("session joined")
	return &cp, nil
}

// MarkConnected records transport establishment. The elapsed consultation
// duration is measured from this point, not from Join.
func (n *Negotiator) MarkConnected(sessionID uuid.UUID) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	sess, ok := n.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	if sess.Phase == PhaseEnded {
		return ErrSessionEnded
	}
	if sess.Phase != PhaseConnecting {
		return nil
	}
	now := n.now()
	sess.Phase = PhaseConnected
	sess.ConnectedAt = &now
	return nil
}

// ReportQuality feeds one quality sample into the session state machine.
// Fire-and-forget: unknown or ended sessions are ignored.
//
// DowngradeAfter consecutive samples below DegradedThreshold move a connected
// session to degraded, and a degraded video session's modality drops to
// audio. A sample at or above the threshold recovers to connected. Dwelling
// degraded past MaxDegradedDwell ends the session.
func (n *Negotiator) ReportQuality(sessionID uuid.UUID, sample float64) {
	n.metrics.ObserveQuality(sample)

	n.mu.Lock()
	sess, ok := n.sessions[sessionID]
	if !ok || sess.Phase == PhaseEnded {
		n.mu.Unlock()
		return
	}

	now := n.now()
	sess.LastSample = sample

	timedOut := false

	if sample < n.cfg.DegradedThreshold {
		sess.badStreak++
		if sess.Phase == PhaseConnected && sess.badStreak >= n.cfg.DowngradeAfter {
			sess.Phase = PhaseDegraded
			sess.DegradedSince = &now
			if sess.Modality == booking.ModalityVideo {
				sess.Modality = booking.ModalityAudio
				n.metrics.ObserveDowngrade()
				n.logger.Info().Str("session_id", sessionID.String()).Msg("video session downgraded to audio")
			}
		}
		if sess.Phase == PhaseDegraded && sess.DegradedSince != nil &&
			now.Sub(*sess.DegradedSince) >= n.cfg.MaxDegradedDwell {
			timedOut = true
		}
	} else {
		sess.badStreak = 0
		if sess.Phase == PhaseDegraded {
			sess.Phase = PhaseConnected
			sess.DegradedSince = nil
		}
	}
	n.mu.Unlock()

	if timedOut {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := n.End(ctx, sessionID, EndReasonTimeout); err != nil && !errors.Is(err, ErrSessionEnded) {
			n.logger.Error().Err(err).Str("session_id", sessionID.String()).Msg("end session after degraded timeout")
		}
	}
}

// End terminates the session and reports the finalized duration to the
// scheduler, which decides completed versus aborted. Slot release for aborted
// joins happens inside that same call, so no reservation is orphaned.
func (n *Negotiator) End(ctx context.Context, sessionID uuid.UUID, reason EndReason) (time.Duration, error) {
	n.mu.Lock()
	sess, ok := n.sessions[sessionID]
	if !ok {
		n.mu.Unlock()
		return 0, ErrSessionNotFound
	}
	if sess.Phase == PhaseEnded {
		n.mu.Unlock()
		return 0, ErrSessionEnded
	}

	var elapsed time.Duration
	if sess.ConnectedAt != nil {
		elapsed = n.now().Sub(*sess.ConnectedAt)
	}
	sess.Phase = PhaseEnded
	sess.EndReason = reason
	appointmentID := sess.AppointmentID
	delete(n.sessions, sessionID)
	n.mu.Unlock()

	if _, err := n.scheduler.MarkEnded(ctx, appointmentID, elapsed); err != nil {
		return elapsed, err
	}

	n.logger.Info().
		Str("session_id", sessionID.String()).
		Str("reason", string(reason)).
		Dur("elapsed", elapsed).
		Msg("session ended")
	return elapsed, nil
}

// Get returns a copy of the live session, if any.
func (n *Negotiator) Get(sessionID uuid.UUID) (ConsultationSession, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	sess, ok := n.sessions[sessionID]
	if !ok {
		return ConsultationSession{}, false
	}
	return *sess, true
}

// HandleOffline ends every live session; wired to the connectivity monitor's
// offline transition.
func (n *Negotiator) HandleOffline(ctx context.Context) {
	n.mu.Lock()
	ids := make([]uuid.UUID, 0, len(n.sessions))
	for id := range n.sessions {
		ids = append(ids, id)
	}
	n.mu.Unlock()

	for _, id := range ids {
		if _, err := n.End(ctx, id, EndReasonOffline); err != nil &&
			!errors.Is(err, ErrSessionNotFound) && !errors.Is(err, ErrSessionEnded) {
			n.logger.Error().Err(err).Str("session_id", id.String()).Msg("end session on offline transition")
		}
	}
}
