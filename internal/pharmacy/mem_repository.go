package pharmacy

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

type MemRepository struct {
	mu         sync.Mutex
	pharmacies map[uuid.UUID]*Pharmacy
	stock      map[uuid.UUID]map[string]int
}

func NewMemRepository() *MemRepository {
	return &MemRepository{
		pharmacies: make(map[uuid.UUID]*Pharmacy),
		stock:      make(map[uuid.UUID]map[string]int),
	}
}

func (r *MemRepository) AddPharmacy(p *Pharmacy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *p
	r.pharmacies[p.ID] = &cp
}

func (r *MemRepository) GetPharmacy(ctx context.Context, id uuid.UUID) (*Pharmacy, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.pharmacies[id]
	if !ok {
		return nil, ErrPharmacyNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *MemRepository) ListStock(ctx context.Context, pharmacyID uuid.UUID) ([]StockItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.pharmacies[pharmacyID]; !ok {
		return nil, ErrPharmacyNotFound
	}

	var items []StockItem
	for medicine, qty := range r.stock[pharmacyID] {
		items = append(items, StockItem{
			PharmacyID: pharmacyID,
			Medicine:   medicine,
			Quantity:   qty,
			UpdatedAt:  time.Now().UTC(),
		})
	}
	return items, nil
}

func (r *MemRepository) UpsertStock(ctx context.Context, item StockItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.stock[item.PharmacyID]; !ok {
		r.stock[item.PharmacyID] = make(map[string]int)
	}
	r.stock[item.PharmacyID][strings.ToLower(item.Medicine)] = item.Quantity
	return nil
}

func (r *MemRepository) FindWithMedicine(ctx context.Context, medicine string) ([]Pharmacy, map[uuid.UUID]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	medicine = strings.ToLower(medicine)
	var pharmacies []Pharmacy
	quantities := make(map[uuid.UUID]int)
	for id, stock := range r.stock {
		qty, ok := stock[medicine]
		if !ok || qty <= 0 {
			continue
		}
		p, ok := r.pharmacies[id]
		if !ok {
			continue
		}
		pharmacies = append(pharmacies, *p)
		quantities[id] = qty
	}
	return pharmacies, quantities, nil
}
