package syncqueue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/imanmay2/sehat-server/internal/connectivity"
	"github.com/imanmay2/sehat-server/internal/observability/metrics"
)

// Applier replays one mutation through its owning service's validating entry
// point. Mutations are never applied straight to storage.
type Applier interface {
	Apply(ctx context.Context, m PendingMutation) error
}

// Queue buffers mutations made while offline and replays them in strict FIFO
// order once connectivity returns.
type Queue struct {
	store   Store
	applier Applier
	conn    connectivity.Source
	timeout time.Duration // per-mutation replay budget
	now     func() time.Time
	logger  zerolog.Logger
	metrics *metrics.CoreMetrics
}

type Option func(*Queue)

func WithClock(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

func WithLogger(logger zerolog.Logger) Option {
	return func(q *Queue) { q.logger = logger }
}

func WithMetrics(m *metrics.CoreMetrics) Option {
	return func(q *Queue) { q.metrics = m }
}

func NewQueue(store Store, applier Applier, conn connectivity.Source, timeout time.Duration, opts ...Option) *Queue {
	q := &Queue{
		store:   store,
		applier: applier,
		conn:    conn,
		timeout: timeout,
		now:     time.Now,
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue captures a mutation for later replay, assigning an id, logical
// timestamp and, when absent, an idempotency key. A repeated idempotency key
// is a no-op and returns the same accepted mutation shape.
func (q *Queue) Enqueue(ctx context.Context, kind Kind, payload []byte, idempotencyKey string) (PendingMutation, error) {
	if !kind.Valid() {
		return PendingMutation{}, ErrUnknownMutationKind
	}

	m := PendingMutation{
		ID:             uuid.New(),
		Kind:           kind,
		Payload:        payload,
		IdempotencyKey: idempotencyKey,
		EnqueuedAt:     q.now().UTC(),
	}
	if m.IdempotencyKey == "" {
		m.IdempotencyKey = uuid.NewString()
	}

	inserted, err := q.store.Append(ctx, m)
	if err != nil {
		return PendingMutation{}, fmt.Errorf("enqueue mutation: %w", err)
	}
	if !inserted {
		q.logger.Debug().Str("idempotency_key", m.IdempotencyKey).Msg("duplicate mutation ignored")
	}
	return m, nil
}

// Flush replays every pending mutation in FIFO order through the applier.
//
// A validation failure moves the mutation to the dead-letter list and
// continues; a timeout stops the flush and leaves the rest queued for the
// next online transition, preserving order.
func (q *Queue) Flush(ctx context.Context) ([]Outcome, error) {
	if q.conn.Current().State == connectivity.Offline {
		return nil, ErrOffline
	}

	pending, err := q.store.Pending(ctx)
	if err != nil {
		return nil, fmt.Errorf("load pending mutations: %w", err)
	}

	var outcomes []Outcome
	for _, m := range pending {
		applyCtx, cancel := context.WithTimeout(ctx, q.timeout)
		applyErr := q.applier.Apply(applyCtx, m)
		cancel()

		if applyErr == nil {
			if err := q.store.Remove(ctx, m); err != nil {
				return outcomes, fmt.Errorf("remove replayed mutation: %w", err)
			}
			q.metrics.ObserveReplay("applied")
			outcomes = append(outcomes, Outcome{Mutation: m})
			continue
		}

		if errors.Is(applyErr, context.DeadlineExceeded) || errors.Is(applyErr, context.Canceled) {
			q.metrics.ObserveReplay("timeout")
			outcomes = append(outcomes, Outcome{Mutation: m, Err: applyErr})
			q.logger.Warn().Err(applyErr).Str("mutation_id", m.ID.String()).Msg("replay timed out, flush suspended")
			return outcomes, applyErr
		}

		// Validation failure: the world changed while we were offline.
		reason := applyErr.Error()
		if err := q.store.DeadLetter(ctx, DeadLetter{
			Mutation: m,
			Reason:   reason,
			FailedAt: q.now().UTC(),
		}); err != nil {
			return outcomes, fmt.Errorf("dead-letter mutation: %w", err)
		}
		if err := q.store.Remove(ctx, m); err != nil {
			return outcomes, fmt.Errorf("remove dead-lettered mutation: %w", err)
		}
		q.metrics.ObserveReplay("dead_lettered")
		q.logger.Warn().
			Str("mutation_id", m.ID.String()).
			Str("kind", string(m.Kind)).
			Str("reason", reason).
			Msg("mutation moved to dead letter")
		outcomes = append(outcomes, Outcome{
			Mutation: m,
			Err:      fmt.Errorf("%w: %s", ErrReplayValidationFailed, reason),
		})
	}
	return outcomes, nil
}

func (q *Queue) Pending(ctx context.Context) ([]PendingMutation, error) {
	return q.store.Pending(ctx)
}

func (q *Queue) DeadLetters(ctx context.Context) ([]DeadLetter, error) {
	return q.store.DeadLetters(ctx)
}
