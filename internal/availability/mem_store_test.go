package availability

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemStoreReserveAndRelease(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	p := testProvider()
	store.AddProvider(p)

	slot := AppointmentSlot{ProviderID: p.ID, StartTime: monday.Add(9 * time.Hour), DurationMinutes: 30}
	holdUntil := time.Now().Add(2 * time.Minute)

	require.NoError(t, store.Reserve(ctx, slot, holdUntil))
	assert.ErrorIs(t, store.Reserve(ctx, slot, holdUntil), ErrSlotTaken)

	open, err := store.OpenSlots(ctx, p.ID, monday, monday.AddDate(0, 0, 1))
	require.NoError(t, err)
	for _, s := range open {
		assert.NotEqual(t, slot.Key(), s.Key(), "reserved slot must not be listed as open")
	}

	require.NoError(t, store.Release(ctx, p.ID, slot.StartTime))
	assert.ErrorIs(t, store.Release(ctx, p.ID, slot.StartTime), ErrReservationNotFound)

	// Released slot is bookable again.
	require.NoError(t, store.Reserve(ctx, slot, holdUntil))
}

func TestMemStoreReserveOutsideAvailability(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	p := testProvider()
	store.AddProvider(p)

	err := store.Reserve(ctx, AppointmentSlot{
		ProviderID:      p.ID,
		StartTime:       monday.Add(8 * time.Hour),
		DurationMinutes: 30,
	}, time.Now().Add(time.Minute))
	assert.ErrorIs(t, err, ErrSlotOutsideAvailability)
}

func TestMemStoreUnknownProvider(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()

	_, err := store.GetProvider(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrProviderNotFound)

	_, err = store.OpenSlots(ctx, uuid.New(), monday, monday.AddDate(0, 0, 1))
	assert.ErrorIs(t, err, ErrProviderNotFound)
}

func TestMemStoreConcurrentReserveSingleWinner(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	p := testProvider()
	store.AddProvider(p)

	slot := AppointmentSlot{ProviderID: p.ID, StartTime: monday.Add(9 * time.Hour), DurationMinutes: 30}

	const contenders = 50
	var wg sync.WaitGroup
	results := make(chan error, contenders)

	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- store.Reserve(ctx, slot, time.Now().Add(time.Minute))
		}()
	}
	wg.Wait()
	close(results)

	var wins, losses int
	for err := range results {
		switch {
		case err == nil:
			wins++
		default:
			require.ErrorIs(t, err, ErrSlotTaken)
			losses++
		}
	}
	assert.Equal(t, 1, wins, "exactly one contender must win the slot")
	assert.Equal(t, contenders-1, losses)
}
