package syncqueue

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrUnknownMutationKind    = errors.New("unknown mutation kind")
	ErrReplayValidationFailed = errors.New("mutation failed validation at replay")
	ErrOffline                = errors.New("cannot flush while offline")
)

// Kind enumerates the mutations the queue may carry. Live bookings (video,
// audio) are deliberately absent: they contend on a live slot and must fail
// fast while offline instead of being queued.
type Kind string

const (
	KindBookInPerson      Kind = "book_in_person"
	KindCancelAppointment Kind = "cancel_appointment"
	KindStockUpdate       Kind = "stock_update"
)

func (k Kind) Valid() bool {
	switch k {
	case KindBookInPerson, KindCancelAppointment, KindStockUpdate:
		return true
	}
	return false
}

// PendingMutation is a queued, not-yet-applied change captured while offline.
type PendingMutation struct {
	ID             uuid.UUID       `json:"id"`
	Kind           Kind            `json:"kind"`
	Payload        json.RawMessage `json:"payload"`
	IdempotencyKey string          `json:"idempotency_key"`
	EnqueuedAt     time.Time       `json:"enqueued_at"`
}

// DeadLetter is a mutation that failed replay validation. It stays visible to
// the user; it is never silently dropped or retried forever.
type DeadLetter struct {
	Mutation PendingMutation `json:"mutation"`
	Reason   string          `json:"reason"`
	FailedAt time.Time       `json:"failed_at"`
}

// Outcome reports one mutation's replay result.
type Outcome struct {
	Mutation PendingMutation
	Err      error
}

// Payload shapes, one per kind.

type BookInPersonPayload struct {
	PatientID       uuid.UUID `json:"patient_id"`
	ProviderID      uuid.UUID `json:"provider_id"`
	StartTime       time.Time `json:"start_time"`
	DurationMinutes int       `json:"duration_minutes"`
	Reason          string    `json:"reason"`
}

type CancelAppointmentPayload struct {
	AppointmentID uuid.UUID `json:"appointment_id"`
}

type StockUpdatePayload struct {
	PharmacyID uuid.UUID `json:"pharmacy_id"`
	Medicine   string    `json:"medicine"`
	Quantity   int       `json:"quantity"`
}
