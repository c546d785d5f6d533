package availability

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrProviderNotFound        = errors.New("provider not found")
	ErrSlotTaken               = errors.New("slot already reserved")
	ErrSlotOutsideAvailability = errors.New("slot outside provider availability")
	ErrReservationNotFound     = errors.New("slot reservation not found")
)

// Store holds provider availability and slot reservation state.
//
// Reserve is the single point of contention in the system: exactly one caller
// may move a given (provider, start) from open to reserved. Both
// implementations enforce that with a compare-and-swap on the slot key.
type Store interface {
	GetProvider(ctx context.Context, id uuid.UUID) (*Provider, error)

	// OpenSlots returns the still-bookable slots for the provider in
	// [from, to), ordered by start time.
	OpenSlots(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]AppointmentSlot, error)

	// Reserve atomically claims the slot until holdUntil. Losers of a race
	// get ErrSlotTaken; slots off the provider's grid get
	// ErrSlotOutsideAvailability.
	Reserve(ctx context.Context, slot AppointmentSlot, holdUntil time.Time) error

	// Release frees a reservation (booking rollback, cancellation, aborted
	// join). Releasing an unknown key is ErrReservationNotFound.
	Release(ctx context.Context, providerID uuid.UUID, start time.Time) error
}
