package pharmacy

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func (r *PgRepository) GetPharmacy(ctx context.Context, id uuid.UUID) (*Pharmacy, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, address, latitude, longitude, created_at, updated_at
		FROM pharmacies
		WHERE id = $1
	`, id)

	var p Pharmacy
	err := row.Scan(&p.ID, &p.Name, &p.Address, &p.Latitude, &p.Longitude, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPharmacyNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *PgRepository) ListStock(ctx context.Context, pharmacyID uuid.UUID) ([]StockItem, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT pharmacy_id, medicine, quantity, updated_at
		FROM pharmacy_stock
		WHERE pharmacy_id = $1
		ORDER BY medicine
	`, pharmacyID)
	if err != nil {
		return nil, fmt.Errorf("list stock: %w", err)
	}
	defer rows.Close()

	var items []StockItem
	for rows.Next() {
		var item StockItem
		if err := rows.Scan(&item.PharmacyID, &item.Medicine, &item.Quantity, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan stock item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (r *PgRepository) UpsertStock(ctx context.Context, item StockItem) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO pharmacy_stock (pharmacy_id, medicine, quantity, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (pharmacy_id, medicine)
		DO UPDATE SET quantity = EXCLUDED.quantity, updated_at = now()
	`, item.PharmacyID, strings.ToLower(item.Medicine), item.Quantity)
	if err != nil {
		return fmt.Errorf("upsert stock: %w", err)
	}
	return nil
}

func (r *PgRepository) FindWithMedicine(ctx context.Context, medicine string) ([]Pharmacy, map[uuid.UUID]int, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT p.id, p.name, p.address, p.latitude, p.longitude, p.created_at, p.updated_at, s.quantity
		FROM pharmacies p
		JOIN pharmacy_stock s ON s.pharmacy_id = p.id
		WHERE s.medicine = $1 AND s.quantity > 0
	`, strings.ToLower(medicine))
	if err != nil {
		return nil, nil, fmt.Errorf("find pharmacies with medicine: %w", err)
	}
	defer rows.Close()

	var pharmacies []Pharmacy
	quantities := make(map[uuid.UUID]int)
	for rows.Next() {
		var p Pharmacy
		var qty int
		var createdAt, updatedAt time.Time
		if err := rows.Scan(&p.ID, &p.Name, &p.Address, &p.Latitude, &p.Longitude, &createdAt, &updatedAt, &qty); err != nil {
			return nil, nil, fmt.Errorf("scan pharmacy: %w", err)
		}
		p.CreatedAt = createdAt
		p.UpdatedAt = updatedAt
		pharmacies = append(pharmacies, p)
		quantities[p.ID] = qty
	}
	return pharmacies, quantities, rows.Err()
}
