package api

import (
	"encoding/json"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/imanmay2/sehat-server/internal/availability"
	"github.com/imanmay2/sehat-server/internal/booking"
	"github.com/imanmay2/sehat-server/internal/session"
	"github.com/imanmay2/sehat-server/internal/syncqueue"
)

var validate = validator.New()

type BookAppointmentRequest struct {
	PatientID       string `json:"patient_id" validate:"required,uuid4"`
	ProviderID      string `json:"provider_id" validate:"required,uuid4"`
	StartTime       string `json:"start_time" validate:"required"`
	DurationMinutes int    `json:"duration_minutes" validate:"required,gt=0"`
	Modality        string `json:"modality" validate:"required,oneof=video audio in_person"`
	Reason          string `json:"reason" validate:"max=1000"`
}

type AppointmentResponse struct {
	ID              uuid.UUID  `json:"id"`
	PatientID       uuid.UUID  `json:"patient_id"`
	ProviderID      uuid.UUID  `json:"provider_id"`
	StartTime       time.Time  `json:"start_time"`
	DurationMinutes int        `json:"duration_minutes"`
	Modality        string     `json:"modality"`
	Status          string     `json:"status"`
	Reason          string     `json:"reason,omitempty"`
	HoldExpiresAt   *time.Time `json:"hold_expires_at,omitempty"`
	ConsultSeconds  int        `json:"consult_seconds,omitempty"`
}

func toAppointmentResponse(a *booking.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:              a.ID,
		PatientID:       a.PatientID,
		ProviderID:      a.ProviderID,
		StartTime:       a.StartTime,
		DurationMinutes: a.DurationMinutes,
		Modality:        string(a.Modality),
		Status:          string(a.Status),
		Reason:          a.Reason,
		HoldExpiresAt:   a.HoldExpiresAt,
		ConsultSeconds:  a.ConsultSeconds,
	}
}

type SlotResponse struct {
	ProviderID      uuid.UUID `json:"provider_id"`
	StartTime       time.Time `json:"start_time"`
	DurationMinutes int       `json:"duration_minutes"`
}

func toSlotResponses(slots []availability.AppointmentSlot) []SlotResponse {
	out := make([]SlotResponse, 0, len(slots))
	for _, s := range slots {
		out = append(out, SlotResponse{
			ProviderID:      s.ProviderID,
			StartTime:       s.StartTime,
			DurationMinutes: s.DurationMinutes,
		})
	}
	return out
}

type SessionResponse struct {
	ID            uuid.UUID  `json:"id"`
	AppointmentID uuid.UUID  `json:"appointment_id"`
	Modality      string     `json:"modality"`
	Phase         string     `json:"phase"`
	StartedAt     time.Time  `json:"started_at"`
	ConnectedAt   *time.Time `json:"connected_at,omitempty"`
	LastSample    float64    `json:"last_sample"`
}

func toSessionResponse(s session.ConsultationSession) SessionResponse {
	return SessionResponse{
		ID:            s.ID,
		AppointmentID: s.AppointmentID,
		Modality:      string(s.Modality),
		Phase:         string(s.Phase),
		StartedAt:     s.StartedAt,
		ConnectedAt:   s.ConnectedAt,
		LastSample:    s.LastSample,
	}
}

type QualitySampleRequest struct {
	Sample float64 `json:"sample" validate:"gte=0,lte=1"`
}

type EndSessionRequest struct {
	Reason string `json:"reason" validate:"omitempty,oneof=hangup offline degraded_timeout"`
}

type EndSessionResponse struct {
	FinalizedSeconds int `json:"finalized_seconds"`
}

type ConnectivityResponse struct {
	State string    `json:"state"`
	Since time.Time `json:"since"`
}

type EnqueueMutationRequest struct {
	Kind           string          `json:"kind" validate:"required,oneof=book_in_person cancel_appointment stock_update"`
	Payload        json.RawMessage `json:"payload" validate:"required"`
	IdempotencyKey string          `json:"idempotency_key"`
}

type MutationResponse struct {
	ID             uuid.UUID       `json:"id"`
	Kind           string          `json:"kind"`
	Payload        json.RawMessage `json:"payload"`
	IdempotencyKey string          `json:"idempotency_key"`
	EnqueuedAt     time.Time       `json:"enqueued_at"`
}

func toMutationResponse(m syncqueue.PendingMutation) MutationResponse {
	return MutationResponse{
		ID:             m.ID,
		Kind:           string(m.Kind),
		Payload:        m.Payload,
		IdempotencyKey: m.IdempotencyKey,
		EnqueuedAt:     m.EnqueuedAt,
	}
}

type FlushOutcomeResponse struct {
	Mutation MutationResponse `json:"mutation"`
	Applied  bool             `json:"applied"`
	Error    string           `json:"error,omitempty"`
}

type DeadLetterResponse struct {
	Mutation MutationResponse `json:"mutation"`
	Reason   string           `json:"reason"`
	FailedAt time.Time        `json:"failed_at"`
}

type StockUpdateRequest struct {
	Medicine string `json:"medicine" validate:"required"`
	Quantity int    `json:"quantity" validate:"gte=0"`
}

type StockItemResponse struct {
	Medicine  string    `json:"medicine"`
	Quantity  int       `json:"quantity"`
	UpdatedAt time.Time `json:"updated_at"`
}

type StockedPharmacyResponse struct {
	ID         uuid.UUID `json:"id"`
	Name       string    `json:"name"`
	Address    string    `json:"address"`
	Quantity   int       `json:"quantity"`
	DistanceKm float64   `json:"distance_km"`
}
