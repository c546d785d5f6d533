package booking

import (
	"time"

	"github.com/google/uuid"
)

type Modality string

const (
	ModalityVideo    Modality = "video"
	ModalityAudio    Modality = "audio"
	ModalityInPerson Modality = "in_person"
)

func (m Modality) Valid() bool {
	switch m {
	case ModalityVideo, ModalityAudio, ModalityInPerson:
		return true
	}
	return false
}

// RequiresLiveSession reports whether the modality carries a real-time
// consultation session. In-person visits have none, which is also why they
// alone may be booked through the offline queue.
func (m Modality) RequiresLiveSession() bool {
	return m == ModalityVideo || m == ModalityAudio
}

type Status string

const (
	StatusRequested Status = "requested" // transient, holds the slot reservation
	StatusConfirmed Status = "confirmed" // reservation committed
	StatusActive    Status = "active"    // participant joined
	StatusCompleted Status = "completed" // terminal
	StatusCancelled Status = "cancelled" // terminal
)

// validTransitions are the only legal status edges. Appointments are never
// deleted; cancellation is a transition like any other.
var validTransitions = map[Status][]Status{
	StatusRequested: {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusActive, StatusCancelled},
	StatusActive:    {StatusCompleted, StatusCancelled},
}

func CanTransition(from, to Status) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

type Appointment struct {
	ID              uuid.UUID
	PatientID       uuid.UUID
	ProviderID      uuid.UUID
	StartTime       time.Time
	DurationMinutes int
	Modality        Modality
	Status          Status
	Reason          string
	HoldExpiresAt   *time.Time // set while requested; cleared on confirm
	ConsultSeconds  int        // recorded consultation length, set at completion
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
