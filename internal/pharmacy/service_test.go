package pharmacy

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService() (*Service, *MemRepository) {
	repo := NewMemRepository()
	return NewService(repo, zerolog.Nop()), repo
}

func addPharmacy(repo *MemRepository, name string, lat, lng float64) *Pharmacy {
	p := &Pharmacy{ID: uuid.New(), Name: name, Latitude: lat, Longitude: lng}
	repo.AddPharmacy(p)
	return p
}

func TestUpdateStockValidation(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTestService()
	p := addPharmacy(repo, "City Pharmacy", 31.5, 74.3)

	assert.ErrorIs(t, svc.UpdateStock(ctx, p.ID, "paracetamol", -1), ErrNegativeQuantity)
	assert.Error(t, svc.UpdateStock(ctx, p.ID, "   ", 5))
	assert.ErrorIs(t, svc.UpdateStock(ctx, uuid.New(), "paracetamol", 5), ErrPharmacyNotFound)

	require.NoError(t, svc.UpdateStock(ctx, p.ID, "Paracetamol", 5))

	items, err := svc.ListStock(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "paracetamol", items[0].Medicine, "medicine names are stored lowercase")
	assert.Equal(t, 5, items[0].Quantity)

	// Absolute set, not increment.
	require.NoError(t, svc.UpdateStock(ctx, p.ID, "paracetamol", 2))
	items, err = svc.ListStock(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 2, items[0].Quantity)
}

func TestFindNearbyOrdersByDistance(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTestService()

	// Searcher stands in Lahore; pharmacies at increasing distance.
	near := addPharmacy(repo, "Near", 31.52, 74.36)
	mid := addPharmacy(repo, "Mid", 31.60, 74.50)
	far := addPharmacy(repo, "Far", 32.20, 75.20)
	empty := addPharmacy(repo, "Empty", 31.52, 74.36)

	for _, p := range []*Pharmacy{near, mid, far} {
		require.NoError(t, svc.UpdateStock(ctx, p.ID, "cetirizine", 10))
	}
	require.NoError(t, svc.UpdateStock(ctx, empty.ID, "cetirizine", 0))

	results, err := svc.FindNearby(ctx, "cetirizine", 31.52, 74.36, 0)
	require.NoError(t, err)
	require.Len(t, results, 3, "zero-stock pharmacies are excluded")

	assert.Equal(t, near.ID, results[0].Pharmacy.ID)
	assert.Equal(t, mid.ID, results[1].Pharmacy.ID)
	assert.Equal(t, far.ID, results[2].Pharmacy.ID)
	assert.Less(t, results[0].DistanceKm, results[1].DistanceKm)
	assert.Less(t, results[1].DistanceKm, results[2].DistanceKm)

	limited, err := svc.FindNearby(ctx, "cetirizine", 31.52, 74.36, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, near.ID, limited[0].Pharmacy.ID)
}

func TestFindNearbyNoMatches(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTestService()
	addPharmacy(repo, "City Pharmacy", 31.5, 74.3)

	results, err := svc.FindNearby(ctx, "unobtainium", 31.5, 74.3, 0)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestDistanceKm(t *testing.T) {
	// Lahore to Islamabad is roughly 270 km great-circle.
	d := distanceKm(31.5204, 74.3587, 33.6844, 73.0479)
	assert.InDelta(t, 270, d, 20)

	assert.InDelta(t, 0, distanceKm(31.5, 74.3, 31.5, 74.3), 1e-9)
}
