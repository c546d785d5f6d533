package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/imanmay2/sehat-server/internal/availability"
	"github.com/imanmay2/sehat-server/internal/booking"
	"github.com/imanmay2/sehat-server/internal/connectivity"
)

// simulate races concurrent booking workers against a shared in-memory
// scheduler and checks the single-winner invariant: for every slot, at most
// one confirmed appointment, everyone else turned away with a slot error.

type counters struct {
	confirmed  atomic.Int64
	slotTaken  atomic.Int64
	contended  atomic.Int64
	outside    atomic.Int64
	otherError atomic.Int64
}

type alwaysOnline struct{}

func (alwaysOnline) Current() connectivity.Snapshot {
	return connectivity.Snapshot{State: connectivity.Online, Since: time.Now()}
}

func main() {
	workers := flag.Int("workers", 16, "concurrent booking workers")
	attempts := flag.Int("attempts", 2000, "booking attempts per worker")
	slotCount := flag.Int("slots", 50, "distinct slots to fight over")
	flag.Parse()

	log.SetFlags(log.LstdFlags)
	log.Printf("simulate starting: workers=%d attempts=%d slots=%d", *workers, *attempts, *slotCount)

	provider := &availability.Provider{
		ID:        uuid.New(),
		Name:      "Dr. Simulated",
		Specialty: "General Medicine",
		Windows: []availability.AvailabilityWindow{
			{Weekday: time.Monday, StartMinute: 9 * 60, EndMinute: 18 * 60, SlotMinutes: 30},
			{Weekday: time.Tuesday, StartMinute: 9 * 60, EndMinute: 18 * 60, SlotMinutes: 30},
			{Weekday: time.Wednesday, StartMinute: 9 * 60, EndMinute: 18 * 60, SlotMinutes: 30},
		},
	}

	store := availability.NewMemStore()
	store.AddProvider(provider)

	svc := booking.NewService(
		booking.NewMemRepository(),
		store,
		booking.NewMemLocker(),
		alwaysOnline{},
		2*time.Minute,
	)

	from := nextMonday(time.Now().UTC())
	slots, err := store.OpenSlots(context.Background(), provider.ID, from, from.AddDate(0, 0, 7))
	if err != nil {
		log.Fatalf("expand slots: %v", err)
	}
	if len(slots) > *slotCount {
		slots = slots[:*slotCount]
	}
	log.Printf("fighting over %d slots starting %s", len(slots), slots[0].StartTime.Format(time.RFC3339))

	var c counters
	start := time.Now()

	var wg sync.WaitGroup
	for w := 0; w < *workers; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(int64(worker) + start.UnixNano()))
			patientID := uuid.New()

			for i := 0; i < *attempts; i++ {
				slot := slots[rng.Intn(len(slots))]
				_, err := svc.Book(context.Background(), booking.BookRequest{
					PatientID:       patientID,
					ProviderID:      provider.ID,
					StartTime:       slot.StartTime,
					DurationMinutes: slot.DurationMinutes,
					Modality:        booking.ModalityVideo,
					Reason:          "simulated consult",
				})
				switch {
				case err == nil:
					c.confirmed.Add(1)
				case errors.Is(err, availability.ErrSlotTaken):
					c.slotTaken.Add(1)
				case errors.Is(err, booking.ErrSlotBeingBooked):
					c.contended.Add(1)
				case errors.Is(err, availability.ErrSlotOutsideAvailability):
					c.outside.Add(1)
				default:
					c.otherError.Add(1)
					log.Printf("worker %d unexpected error: %v", worker, err)
				}
			}
		}(w)
	}
	wg.Wait()

	took := time.Since(start)
	total := int64(*workers) * int64(*attempts)

	log.Printf("done in %s (%.0f attempts/sec)", took, float64(total)/took.Seconds())
	log.Printf("confirmed=%d slot_taken=%d contended=%d outside=%d errors=%d",
		c.confirmed.Load(), c.slotTaken.Load(), c.contended.Load(), c.outside.Load(), c.otherError.Load())

	verify(store, provider.ID, slots, c.confirmed.Load())
}

// verify re-reads open slots and asserts confirmed bookings == slots consumed.
func verify(store *availability.MemStore, providerID uuid.UUID, slots []availability.AppointmentSlot, confirmed int64) {
	sort.Slice(slots, func(i, j int) bool { return slots[i].StartTime.Before(slots[j].StartTime) })
	from := slots[0].StartTime
	to := slots[len(slots)-1].StartTime.Add(time.Minute)

	open, err := store.OpenSlots(context.Background(), providerID, from, to)
	if err != nil {
		log.Fatalf("verify open slots: %v", err)
	}

	consumed := int64(len(slots) - len(open))
	if consumed != confirmed {
		log.Fatalf("INVARIANT VIOLATED: %d slots consumed but %d bookings confirmed", consumed, confirmed)
	}
	fmt.Printf("invariant holds: %d slots consumed, %d bookings confirmed\n", consumed, confirmed)
}

func nextMonday(t time.Time) time.Time {
	t = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	for t.Weekday() != time.Monday {
		t = t.AddDate(0, 0, 1)
	}
	return t
}
