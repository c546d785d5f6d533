package main

import (
	"context"
	"log"
	"os"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/imanmay2/sehat-server/internal/db"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	if err := seedProviders(context.Background(), pool, 50); err != nil {
		log.Fatalf("seed providers: %v", err)
	}
	if err := seedPatients(context.Background(), pool, 2000); err != nil {
		log.Fatalf("seed patients: %v", err)
	}
	if err := seedPharmacies(context.Background(), pool, 30); err != nil {
		log.Fatalf("seed pharmacies: %v", err)
	}

	log.Println("seed complete")
}

func seedProviders(ctx context.Context, pool *pgxpool.Pool, count int) error {
	log.Printf("seeding %d providers", count)

	specialties := []string{
		"General Medicine",
		"Pediatrics",
		"Gynecology",
		"Dermatology",
		"Cardiology",
		"Orthopedics",
		"Psychiatry",
		"ENT",
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for i := 0; i < count; i++ {
		id := uuid.New()
		name := "Dr. " + gofakeit.Name()
		spec := specialties[gofakeit.Number(0, len(specialties)-1)]

		_, err := tx.Exec(ctx, `
			INSERT INTO providers (id, name, specialty, created_at, updated_at)
			VALUES ($1, $2, $3, now(), now())
		`, id, name, spec)
		if err != nil {
			return err
		}

		// Weekday morning and afternoon windows, 30 minute slots.
		for weekday := 1; weekday <= 5; weekday++ {
			if gofakeit.Bool() {
				continue
			}
			for _, window := range [][2]int{{9 * 60, 12 * 60}, {14 * 60, 17 * 60}} {
				_, err := tx.Exec(ctx, `
					INSERT INTO availability_windows (provider_id, weekday, start_minute, end_minute, slot_minutes)
					VALUES ($1, $2, $3, $4, 30)
				`, id, weekday, window[0], window[1])
				if err != nil {
					return err
				}
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	log.Println("providers seeded")
	return nil
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, count int) error {
	log.Printf("seeding %d patients", count)

	const batchSize = 500

	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}

		for i := offset; i < end; i++ {
			id := uuid.New()
			name := gofakeit.Name()
			phone := gofakeit.Phone()

			_, err := tx.Exec(ctx, `
				INSERT INTO patients (id, name, phone, created_at, updated_at)
				VALUES ($1, $2, $3, now(), now())
			`, id, name, phone)
			if err != nil {
				_ = tx.Rollback(ctx)
				return err
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}

		log.Printf("patients seeded: %d/%d", end, count)
	}

	log.Println("patients seeded")
	return nil
}

func seedPharmacies(ctx context.Context, pool *pgxpool.Pool, count int) error {
	log.Printf("seeding %d pharmacies", count)

	medicines := []string{
		"paracetamol", "ibuprofen", "amoxicillin", "metformin",
		"amlodipine", "omeprazole", "cetirizine", "azithromycin",
		"salbutamol", "insulin glargine",
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for i := 0; i < count; i++ {
		id := uuid.New()
		name := strings.TrimSuffix(gofakeit.Company(), ",") + " Pharmacy"
		addr := gofakeit.Street()
		lat := gofakeit.Float64Range(30.5, 31.5)
		lng := gofakeit.Float64Range(74.5, 76.0)

		_, err := tx.Exec(ctx, `
			INSERT INTO pharmacies (id, name, address, latitude, longitude, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, now(), now())
		`, id, name, addr, lat, lng)
		if err != nil {
			return err
		}

		for _, med := range medicines {
			if gofakeit.Number(0, 3) == 0 {
				continue
			}
			_, err := tx.Exec(ctx, `
				INSERT INTO pharmacy_stock (pharmacy_id, medicine, quantity, updated_at)
				VALUES ($1, $2, $3, now())
			`, id, med, gofakeit.Number(0, 200))
			if err != nil {
				return err
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	log.Println("pharmacies seeded")
	return nil
}
