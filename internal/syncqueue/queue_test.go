package syncqueue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imanmay2/sehat-server/internal/connectivity"
)

type stubSource struct {
	state connectivity.State
}

func (s *stubSource) Current() connectivity.Snapshot {
	return connectivity.Snapshot{State: s.state, Since: time.Now()}
}

// stubApplier records replay order and fails configured mutation ids.
type stubApplier struct {
	applied  []uuid.UUID
	failWith map[uuid.UUID]error
}

func (a *stubApplier) Apply(ctx context.Context, m PendingMutation) error {
	if err, ok := a.failWith[m.ID]; ok {
		return err
	}
	a.applied = append(a.applied, m.ID)
	return nil
}

func newTestQueue(applier Applier, conn connectivity.Source) (*Queue, *MemStore) {
	store := NewMemStore()
	return NewQueue(store, applier, conn, 100*time.Millisecond), store
}

func payload(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

func TestEnqueueAssignsIdentity(t *testing.T) {
	ctx := context.Background()
	q, _ := newTestQueue(&stubApplier{}, &stubSource{state: connectivity.Offline})

	m, err := q.Enqueue(ctx, KindStockUpdate, payload(t, StockUpdatePayload{Medicine: "paracetamol", Quantity: 4}), "")
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, m.ID)
	assert.NotEmpty(t, m.IdempotencyKey)
	assert.False(t, m.EnqueuedAt.IsZero())
}

func TestEnqueueRejectsUnknownKind(t *testing.T) {
	q, _ := newTestQueue(&stubApplier{}, &stubSource{state: connectivity.Offline})
	_, err := q.Enqueue(context.Background(), Kind("book_video"), nil, "")
	assert.ErrorIs(t, err, ErrUnknownMutationKind)
}

func TestEnqueueIdempotencyKeyDeduplicates(t *testing.T) {
	ctx := context.Background()
	q, _ := newTestQueue(&stubApplier{}, &stubSource{state: connectivity.Offline})

	_, err := q.Enqueue(ctx, KindStockUpdate, payload(t, StockUpdatePayload{Medicine: "ibuprofen"}), "retry-42")
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, KindStockUpdate, payload(t, StockUpdatePayload{Medicine: "ibuprofen"}), "retry-42")
	require.NoError(t, err)

	pending, err := q.Pending(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 1, "duplicate idempotency key must not enqueue twice")
}

func TestFlushRefusesWhileOffline(t *testing.T) {
	q, _ := newTestQueue(&stubApplier{}, &stubSource{state: connectivity.Offline})
	_, err := q.Flush(context.Background())
	assert.ErrorIs(t, err, ErrOffline)
}

func TestFlushReplaysInFIFOOrder(t *testing.T) {
	ctx := context.Background()
	applier := &stubApplier{}
	q, _ := newTestQueue(applier, &stubSource{state: connectivity.Online})

	var want []uuid.UUID
	for i := 0; i < 5; i++ {
		m, err := q.Enqueue(ctx, KindStockUpdate, payload(t, StockUpdatePayload{Medicine: "paracetamol", Quantity: i}), "")
		require.NoError(t, err)
		want = append(want, m.ID)
	}

	outcomes, err := q.Flush(ctx)
	require.NoError(t, err)
	require.Len(t, outcomes, 5)
	assert.Equal(t, want, applier.applied, "replay must preserve enqueue order")

	pending, err := q.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestFlushDeadLettersValidationFailures(t *testing.T) {
	ctx := context.Background()
	applier := &stubApplier{failWith: map[uuid.UUID]error{}}
	q, _ := newTestQueue(applier, &stubSource{state: connectivity.Online})

	first, err := q.Enqueue(ctx, KindCancelAppointment, payload(t, CancelAppointmentPayload{AppointmentID: uuid.New()}), "")
	require.NoError(t, err)
	bad, err := q.Enqueue(ctx, KindStockUpdate, payload(t, StockUpdatePayload{Quantity: -1}), "")
	require.NoError(t, err)
	last, err := q.Enqueue(ctx, KindStockUpdate, payload(t, StockUpdatePayload{Medicine: "cetirizine", Quantity: 2}), "")
	require.NoError(t, err)

	applier.failWith[bad.ID] = errors.New("quantity must not be negative")

	outcomes, err := q.Flush(ctx)
	require.NoError(t, err, "validation failures do not abort the flush")
	require.Len(t, outcomes, 3)

	assert.NoError(t, outcomes[0].Err)
	assert.ErrorIs(t, outcomes[1].Err, ErrReplayValidationFailed)
	assert.NoError(t, outcomes[2].Err)
	assert.Equal(t, []uuid.UUID{first.ID, last.ID}, applier.applied)

	dead, err := q.DeadLetters(ctx)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Equal(t, bad.ID, dead[0].Mutation.ID)
	assert.Contains(t, dead[0].Reason, "negative")

	pending, err := q.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending, "dead-lettered mutation must leave the pending list")
}

func TestFlushTimeoutSuspendsAndPreservesOrder(t *testing.T) {
	ctx := context.Background()
	applier := &stubApplier{failWith: map[uuid.UUID]error{}}
	q, _ := newTestQueue(applier, &stubSource{state: connectivity.Online})

	first, err := q.Enqueue(ctx, KindStockUpdate, payload(t, StockUpdatePayload{Medicine: "insulin glargine", Quantity: 1}), "")
	require.NoError(t, err)
	slow, err := q.Enqueue(ctx, KindStockUpdate, payload(t, StockUpdatePayload{Medicine: "metformin", Quantity: 9}), "")
	require.NoError(t, err)
	third, err := q.Enqueue(ctx, KindStockUpdate, payload(t, StockUpdatePayload{Medicine: "omeprazole", Quantity: 3}), "")
	require.NoError(t, err)

	applier.failWith[slow.ID] = context.DeadlineExceeded

	outcomes, err := q.Flush(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Len(t, outcomes, 2)
	assert.Equal(t, first.ID, outcomes[0].Mutation.ID)
	assert.Equal(t, slow.ID, outcomes[1].Mutation.ID)

	// The slow mutation and everything behind it stay queued, in order.
	pending, err := q.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, slow.ID, pending[0].ID)
	assert.Equal(t, third.ID, pending[1].ID)

	// Next flush picks up exactly where the last one stopped.
	delete(applier.failWith, slow.ID)
	outcomes, err = q.Flush(ctx)
	require.NoError(t, err)
	require.Len(t, outcomes, 2)
	assert.Equal(t, []uuid.UUID{first.ID, slow.ID, third.ID}, applier.applied)
}
