package pharmacy

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type Service struct {
	repo   Repository
	logger zerolog.Logger
}

func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// UpdateStock sets the absolute stock level for one medicine. This is the
// validating entry point the offline queue replays stock mutations through.
func (s *Service) UpdateStock(ctx context.Context, pharmacyID uuid.UUID, medicine string, quantity int) error {
	if quantity < 0 {
		return ErrNegativeQuantity
	}
	medicine = strings.TrimSpace(medicine)
	if medicine == "" {
		return fmt.Errorf("medicine name is required")
	}

	if _, err := s.repo.GetPharmacy(ctx, pharmacyID); err != nil {
		return err
	}

	if err := s.repo.UpsertStock(ctx, StockItem{
		PharmacyID: pharmacyID,
		Medicine:   medicine,
		Quantity:   quantity,
	}); err != nil {
		return err
	}

	s.logger.Debug().
		Str("pharmacy_id", pharmacyID.String()).
		Str("medicine", strings.ToLower(medicine)).
		Int("quantity", quantity).
		Msg("stock updated")
	return nil
}

func (s *Service) ListStock(ctx context.Context, pharmacyID uuid.UUID) ([]StockItem, error) {
	return s.repo.ListStock(ctx, pharmacyID)
}

// FindNearby locates pharmacies stocking the medicine, ordered by distance
// from the searcher.
func (s *Service) FindNearby(ctx context.Context, medicine string, lat, lng float64, limit int) ([]StockedPharmacy, error) {
	pharmacies, quantities, err := s.repo.FindWithMedicine(ctx, medicine)
	if err != nil {
		return nil, err
	}

	results := make([]StockedPharmacy, 0, len(pharmacies))
	for _, p := range pharmacies {
		results = append(results, StockedPharmacy{
			Pharmacy:   p,
			Quantity:   quantities[p.ID],
			DistanceKm: distanceKm(lat, lng, p.Latitude, p.Longitude),
		})
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].DistanceKm < results[j].DistanceKm
	})

	if limit > 0 && limit < len(results) {
		results = results[:limit]
	}
	return results, nil
}
