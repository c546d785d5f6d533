package syncqueue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/imanmay2/sehat-server/internal/booking"
	"github.com/imanmay2/sehat-server/internal/pharmacy"
)

// Dispatcher routes each mutation kind to the service that owns it, so every
// replay goes through the same validation an online request would.
type Dispatcher struct {
	bookings   *booking.Service
	pharmacies *pharmacy.Service
}

func NewDispatcher(bookings *booking.Service, pharmacies *pharmacy.Service) *Dispatcher {
	return &Dispatcher{bookings: bookings, pharmacies: pharmacies}
}

func (d *Dispatcher) Apply(ctx context.Context, m PendingMutation) error {
	switch m.Kind {
	case KindBookInPerson:
		var p BookInPersonPayload
		if err := json.Unmarshal(m.Payload, &p); err != nil {
			return fmt.Errorf("decode book_in_person payload: %w", err)
		}
		_, err := d.bookings.Book(ctx, booking.BookRequest{
			PatientID:       p.PatientID,
			ProviderID:      p.ProviderID,
			StartTime:       p.StartTime,
			DurationMinutes: p.DurationMinutes,
			Modality:        booking.ModalityInPerson,
			Reason:          p.Reason,
		})
		return err

	case KindCancelAppointment:
		var p CancelAppointmentPayload
		if err := json.Unmarshal(m.Payload, &p); err != nil {
			return fmt.Errorf("decode cancel_appointment payload: %w", err)
		}
		_, err := d.bookings.Cancel(ctx, p.AppointmentID)
		return err

	case KindStockUpdate:
		var p StockUpdatePayload
		if err := json.Unmarshal(m.Payload, &p); err != nil {
			return fmt.Errorf("decode stock_update payload: %w", err)
		}
		return d.pharmacies.UpdateStock(ctx, p.PharmacyID, p.Medicine, p.Quantity)

	default:
		return ErrUnknownMutationKind
	}
}
