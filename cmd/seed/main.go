package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medbook/clinic-booking/internal/booking"
	"github.com/medbook/clinic-booking/internal/db"
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

	clinicRooms, err := seedClinics(context.Background(), pool, 5)
	if err != nil {
		log.Fatalf("seed clinics: %v", err)
	}
	if err := seedDoctors(context.Background(), pool, 100, clinicRooms); err != nil {
		log.Fatalf("seed doctors: %v", err)
	}
	if err := seedPatients(context.Background(), pool, 2000); err != nil {
		log.Fatalf("seed patients: %v", err)
	}

	log.Println("seed complete")
}

type clinicWithRooms struct {
	clinicID uuid.UUID
	roomIDs  []uuid.UUID
}

func seedClinics(ctx context.Context, pool *pgxpool.Pool, count int) ([]clinicWithRooms, error) {
	log.Printf("seeding %d clinics", count)

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var out []clinicWithRooms
	for i := 0; i < count; i++ {
		clinicID := uuid.New()
		name := gofakeit.Company() + " Clinic"

		_, err := tx.Exec(ctx, `
			INSERT INTO clinics (id, name, created_at)
			VALUES ($1, $2, now())
		`, clinicID, name)
		if err != nil {
			return nil, err
		}

		cw := clinicWithRooms{clinicID: clinicID}
		rooms := gofakeit.Number(2, 4)
		for j := 0; j < rooms; j++ {
			roomID := uuid.New()
			// Keep one room per clinic under maintenance so the
			// generator's fallback path gets exercised.
			maintenance := j == rooms-1

			_, err := tx.Exec(ctx, `
				INSERT INTO rooms (id, clinic_id, name, under_maintenance, created_at)
				VALUES ($1, $2, $3, $4, now())
			`, roomID, clinicID, gofakeit.LetterN(1)+"-10"+gofakeit.DigitN(1), maintenance)
			if err != nil {
				return nil, err
			}
			if !maintenance {
				cw.roomIDs = append(cw.roomIDs, roomID)
			}
		}
		out = append(out, cw)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	log.Println("clinics seeded")
	return out, nil
}

func seedDoctors(ctx context.Context, pool *pgxpool.Pool, count int, clinics []clinicWithRooms) error {
	log.Printf("seeding %d doctors", count)

	specialties := []string{
		"Dermatology",
		"Cardiology",
		"General Practice",
		"Orthopedics",
		"Endocrinology",
		"Neurology",
		"Pediatrics",
		"Psychiatry",
		"Ophthalmology",
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
		fee := gofakeit.Number(2, 10) * 50

		clinic := clinics[gofakeit.Number(0, len(clinics)-1)]
		rows := randomScheduleRows(clinic)
		scheduleJSON, err := json.Marshal(rows)
		if err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO doctors (id, name, specialty, consultation_fee, schedule_days, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, now(), now())
		`, id, name, spec, fee, scheduleJSON)
		if err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	log.Println("doctors seeded")
	return nil
}

func randomScheduleRows(clinic clinicWithRooms) []booking.ScheduleRow {
	starts := []string{"08:00", "09:00", "10:00", "14:00"}
	durations := []int{15, 20, 30, 60}

	var rows []booking.ScheduleRow
	// Two to four working days per week, Monday through Saturday.
	days := gofakeit.Number(2, 4)
	for d := 0; d < days; d++ {
		start := starts[gofakeit.Number(0, len(starts)-1)]
		var roomID *uuid.UUID
		if len(clinic.roomIDs) > 0 && gofakeit.Bool() {
			id := clinic.roomIDs[gofakeit.Number(0, len(clinic.roomIDs)-1)]
			roomID = &id
		}
		rows = append(rows, booking.ScheduleRow{
			DayOfWeek:           1 + d,
			ClinicID:            clinic.clinicID,
			RoomID:              roomID,
			StartTime:           start,
			EndTime:             addHours(start, gofakeit.Number(2, 4)),
			SlotDurationMinutes: durations[gofakeit.Number(0, len(durations)-1)],
			IsActive:            true,
		})
	}
	return rows
}

func addHours(clock string, hours int) string {
	t, _ := time.Parse("15:04", clock)
	return t.Add(time.Duration(hours) * time.Hour).Format("15:04")
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
			email := gofakeit.Email()

			_, err := tx.Exec(ctx, `
				INSERT INTO patients (id, name, email, created_at, updated_at)
				VALUES ($1, $2, $3, now(), now())
			`, id, name, email)
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
