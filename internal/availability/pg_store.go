package availability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgStore keeps providers_availability and slot reservations in Postgres.
// The unique primary key on (provider_id, start_time) is the compare-and-swap:
// a reservation insert either wins the row or affects nothing.
type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

func (s *PgStore) GetProvider(ctx context.Context, id uuid.UUID) (*Provider, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, name, specialty, created_at, updated_at
		FROM providers
		WHERE id = $1
	`, id)

	var p Provider
	err := row.Scan(&p.ID, &p.Name, &p.Specialty, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProviderNotFound
		}
		return nil, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT weekday, start_minute, end_minute, slot_minutes
		FROM availability_windows
		WHERE provider_id = $1
		ORDER BY weekday, start_minute
	`, id)
	if err != nil {
		return nil, fmt.Errorf("load availability windows: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var w AvailabilityWindow
		var weekday int
		if err := rows.Scan(&weekday, &w.StartMinute, &w.EndMinute, &w.SlotMinutes); err != nil {
			return nil, fmt.Errorf("scan availability window: %w", err)
		}
		w.Weekday = time.Weekday(weekday)
		p.Windows = append(p.Windows, w)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &p, nil
}

func (s *PgStore) OpenSlots(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]AppointmentSlot, error) {
	p, err := s.GetProvider(ctx, providerID)
	if err != nil {
		return nil, err
	}

	all := ExpandSlots(p, from, to)
	if len(all) == 0 {
		return nil, nil
	}

	rows, err := s.pool.Query(ctx, `
		SELECT start_time
		FROM slot_reservations
		WHERE provider_id = $1 AND start_time >= $2 AND start_time < $3
	`, providerID, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("load reservations: %w", err)
	}
	defer rows.Close()

	reserved := make(map[string]struct{})
	for rows.Next() {
		var start time.Time
		if err := rows.Scan(&start); err != nil {
			return nil, fmt.Errorf("scan reservation: %w", err)
		}
		reserved[SlotKey(providerID, start)] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	open := all[:0]
	for _, slot := range all {
		if _, taken := reserved[slot.Key()]; !taken {
			open = append(open, slot)
		}
	}
	return open, nil
}

func (s *PgStore) Reserve(ctx context.Context, slot AppointmentSlot, holdUntil time.Time) error {
	p, err := s.GetProvider(ctx, slot.ProviderID)
	if err != nil {
		return err
	}
	if !p.Covers(slot) {
		return ErrSlotOutsideAvailability
	}

	ct, err := s.pool.Exec(ctx, `
		INSERT INTO slot_reservations (provider_id, start_time, duration_minutes, hold_until, created_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (provider_id, start_time) DO NOTHING
	`, slot.ProviderID, slot.StartTime.UTC(), slot.DurationMinutes, holdUntil.UTC())
	if err != nil {
		return fmt.Errorf("reserve slot: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrSlotTaken
	}
	return nil
}

func (s *PgStore) Release(ctx context.Context, providerID uuid.UUID, start time.Time) error {
	ct, err := s.pool.Exec(ctx, `
		DELETE FROM slot_reservations
		WHERE provider_id = $1 AND start_time = $2
	`, providerID, start.UTC())
	if err != nil {
		return fmt.Errorf("release slot: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrReservationNotFound
	}
	return nil
}
