package pharmacy

import (
	"math"
	"time"

	"github.com/google/uuid"
)

type Pharmacy struct {
	ID        uuid.UUID
	Name      string
	Address   string
	Latitude  float64
	Longitude float64
	CreatedAt time.Time
	UpdatedAt time.Time
}

type StockItem struct {
	PharmacyID uuid.UUID
	Medicine   string
	Quantity   int
	UpdatedAt  time.Time
}

// StockedPharmacy pairs a pharmacy with its stock level for one medicine,
// plus the distance from the searcher.
type StockedPharmacy struct {
	Pharmacy   Pharmacy
	Quantity   int
	DistanceKm float64
}

const earthRadiusKm = 6371.0

// distanceKm is the haversine great-circle distance.
func distanceKm(lat1, lng1, lat2, lng2 float64) float64 {
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }

	dLat := toRad(lat2 - lat1)
	dLng := toRad(lng2 - lng1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(a))
}
