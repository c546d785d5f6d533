package pharmacy

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrPharmacyNotFound = errors.New("pharmacy not found")
	ErrNegativeQuantity = errors.New("stock quantity cannot be negative")
)

type Repository interface {
	GetPharmacy(ctx context.Context, id uuid.UUID) (*Pharmacy, error)
	ListStock(ctx context.Context, pharmacyID uuid.UUID) ([]StockItem, error)
	UpsertStock(ctx context.Context, item StockItem) error

	// FindWithMedicine returns every pharmacy with positive stock of the
	// medicine.
	FindWithMedicine(ctx context.Context, medicine string) ([]Pharmacy, map[uuid.UUID]int, error)
}
