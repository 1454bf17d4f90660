package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	var email *string

	err := row.Scan(&p.ID, &p.Name, &email, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}

	p.Email = email
	return &p, nil
}

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	var specialty *string
	var scheduleJSON []byte

	err := row.Scan(&d.ID, &d.Name, &specialty, &d.ConsultationFee, &scheduleJSON, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, err
	}

	d.Specialty = specialty
	if len(scheduleJSON) > 0 {
		if err := json.Unmarshal(scheduleJSON, &d.ScheduleDays); err != nil {
			return nil, fmt.Errorf("decode schedule_days: %w", err)
		}
	}
	return &d, nil
}

func scanSlot(row pgx.Row) (*Slot, error) {
	var s Slot

	err := row.Scan(&s.ID, &s.DoctorID, &s.ClinicID, &s.RoomID, &s.Date, &s.StartTime, &s.Status, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSlotNotFound
		}
		return nil, err
	}

	return &s, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment

	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.DoctorID,
		&a.ClinicID,
		&a.RoomID,
		&a.SlotID,
		&a.Status,
		&a.Payment.Amount,
		&a.Payment.Method,
		&a.Payment.TransactionID,
		&a.Payment.Status,
		&a.Payment.PaidAt,
		&a.Notes,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	return &a, nil
}

const appointmentColumns = `
	id, patient_id, doctor_id, clinic_id, room_id, slot_id, status,
	payment_amount, payment_method, payment_transaction_id, payment_status, payment_paid_at,
	notes, created_at, updated_at`

const slotColumns = `id, doctor_id, clinic_id, room_id, date, start_time, status, created_at, updated_at`

// Reference data

func (r *PgRepository) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, email, created_at, updated_at
		FROM patients
		WHERE id = $1
	`, id)
	return scanPatient(row)
}

func (r *PgRepository) GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, specialty, consultation_fee, schedule_days, created_at, updated_at
		FROM doctors
		WHERE id = $1
	`, id)
	return scanDoctor(row)
}

func (r *PgRepository) GetClinicByID(ctx context.Context, id uuid.UUID) (*Clinic, error) {
	var c Clinic
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, created_at
		FROM clinics
		WHERE id = $1
	`, id).Scan(&c.ID, &c.Name, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrClinicNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (r *PgRepository) GetRoomByID(ctx context.Context, id uuid.UUID) (*Room, error) {
	var rm Room
	err := r.pool.QueryRow(ctx, `
		SELECT id, clinic_id, name, under_maintenance, created_at
		FROM rooms
		WHERE id = $1
	`, id).Scan(&rm.ID, &rm.ClinicID, &rm.Name, &rm.UnderMaintenance, &rm.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRoomNotFound
		}
		return nil, err
	}
	return &rm, nil
}

func (r *PgRepository) ListClinicRooms(ctx context.Context, clinicID uuid.UUID) ([]Room, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, clinic_id, name, under_maintenance, created_at
		FROM rooms
		WHERE clinic_id = $1
		ORDER BY name
	`, clinicID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Room
	for rows.Next() {
		var rm Room
		if err := rows.Scan(&rm.ID, &rm.ClinicID, &rm.Name, &rm.UnderMaintenance, &rm.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, rm)
	}
	return result, rows.Err()
}

func (r *PgRepository) UpdateDoctorSchedule(ctx context.Context, doctorID uuid.UUID, rows []ScheduleRow) error {
	data, err := json.Marshal(rows)
	if err != nil {
		return fmt.Errorf("encode schedule_days: %w", err)
	}

	tag, err := r.pool.Exec(ctx, `
		UPDATE doctors
		SET schedule_days = $2,
		    updated_at = now()
		WHERE id = $1
	`, doctorID, data)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrDoctorNotFound
	}
	return nil
}

// Slots

func (r *PgRepository) CreateSlot(ctx context.Context, slot *Slot) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO slots (id, doctor_id, clinic_id, room_id, date, start_time, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
	`, slot.ID, slot.DoctorID, slot.ClinicID, slot.RoomID, slot.Date, slot.StartTime, slot.Status)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateSlot
		}
		return err
	}
	return nil
}

func (r *PgRepository) GetSlotByID(ctx context.Context, id uuid.UUID) (*Slot, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+slotColumns+`
		FROM slots
		WHERE id = $1
	`, id)
	return scanSlot(row)
}

// ClaimSlot is the conditional write deciding every booking race: only
// one caller can move the row out of AVAILABLE.
func (r *PgRepository) ClaimSlot(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE slots
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
	`, id, SlotBooked, SlotAvailable)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM slots WHERE id = $1)`, id).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrSlotNotFound
		}
		return ErrSlotUnavailable
	}
	return nil
}

// ReleaseSlot reverts a claim. A slot already AVAILABLE is a no-op.
func (r *PgRepository) ReleaseSlot(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE slots
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
	`, id, SlotAvailable, SlotBooked)
	return err
}

func (r *PgRepository) DeleteAvailableSlot(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM slots
		WHERE id = $1
		  AND status = $2
	`, id, SlotAvailable)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *PgRepository) ListAvailableSlots(ctx context.Context, doctorID uuid.UUID, fromDate, toDate string) ([]Slot, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+slotColumns+`
		FROM slots
		WHERE doctor_id = $1
		  AND status = $2
		  AND date >= $3
		  AND date <= $4
		ORDER BY date, start_time
	`, doctorID, SlotAvailable, fromDate, toDate)
	if err != nil {
		return nil, err
	}
	return collectSlots(rows)
}

func (r *PgRepository) ListFutureAvailableSlots(ctx context.Context, doctorID uuid.UUID, nowDate, nowClock string) ([]Slot, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+slotColumns+`
		FROM slots
		WHERE doctor_id = $1
		  AND status = $2
		  AND (date > $3 OR (date = $3 AND start_time > $4))
		ORDER BY date, start_time
	`, doctorID, SlotAvailable, nowDate, nowClock)
	if err != nil {
		return nil, err
	}
	return collectSlots(rows)
}

func (r *PgRepository) FindExpiredBookedSlots(ctx context.Context, nowDate, nowClock string) ([]Slot, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+slotColumns+`
		FROM slots
		WHERE status = $1
		  AND (date < $2 OR (date = $2 AND start_time < $3))
	`, SlotBooked, nowDate, nowClock)
	if err != nil {
		return nil, err
	}
	return collectSlots(rows)
}

func (r *PgRepository) FindOrphanedBookedSlots(ctx context.Context) ([]Slot, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+slotColumns+`
		FROM slots s
		WHERE s.status = $1
		  AND NOT EXISTS (
			SELECT 1 FROM appointments a
			WHERE a.slot_id = s.id
		  )
	`, SlotBooked)
	if err != nil {
		return nil, err
	}
	return collectSlots(rows)
}

func collectSlots(rows pgx.Rows) ([]Slot, error) {
	defer rows.Close()

	var result []Slot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *s)
	}
	return result, rows.Err()
}

// Appointments

func (r *PgRepository) CreateAppointment(ctx context.Context, appt *Appointment) error {
	notes := appt.Notes
	if notes == nil {
		notes = []string{}
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO appointments (
			id, patient_id, doctor_id, clinic_id, room_id, slot_id, status,
			payment_amount, payment_method, payment_transaction_id, payment_status, payment_paid_at,
			notes, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, now(), now())
	`, appt.ID, appt.PatientID, appt.DoctorID, appt.ClinicID, appt.RoomID, appt.SlotID, appt.Status,
		appt.Payment.Amount, appt.Payment.Method, appt.Payment.TransactionID, appt.Payment.Status, appt.Payment.PaidAt,
		notes)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrSlotTaken
		}
		return err
	}
	return nil
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) TransitionAppointment(ctx context.Context, id uuid.UUID, from []AppointmentStatus, to AppointmentStatus, note string) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    notes = array_append(notes, $3),
		    updated_at = now()
		WHERE id = $1
		  AND status = ANY($4)
		RETURNING `+appointmentColumns+`
	`, id, to, note, statusStrings(from))

	appt, err := scanAppointment(row)
	if errors.Is(err, ErrAppointmentNotFound) {
		// Distinguish a missing row from a state mismatch.
		var exists bool
		if qErr := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM appointments WHERE id = $1)`, id).Scan(&exists); qErr != nil {
			return nil, qErr
		}
		if exists {
			return nil, ErrWrongState
		}
		return nil, ErrAppointmentNotFound
	}
	return appt, err
}

func (r *PgRepository) MoveAppointmentSlot(ctx context.Context, id, slotID, clinicID, roomID uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET slot_id = $2,
		    clinic_id = $3,
		    room_id = $4,
		    notes = array_append(notes, 'Rescheduled by patient'),
		    updated_at = now()
		WHERE id = $1
		  AND status = ANY($5)
		RETURNING `+appointmentColumns+`
	`, id, slotID, clinicID, roomID, liveStatuses())

	appt, err := scanAppointment(row)
	if errors.Is(err, ErrAppointmentNotFound) {
		return nil, ErrWrongState
	}
	return appt, err
}

func (r *PgRepository) ListFutureLiveAppointments(ctx context.Context, doctorID uuid.UUID, nowDate, nowClock string) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT a.id, a.patient_id, a.doctor_id, a.clinic_id, a.room_id, a.slot_id, a.status,
		       a.payment_amount, a.payment_method, a.payment_transaction_id, a.payment_status, a.payment_paid_at,
		       a.notes, a.created_at, a.updated_at
		FROM appointments a
		JOIN slots s ON s.id = a.slot_id
		WHERE a.doctor_id = $1
		  AND a.status = ANY($2)
		  AND (s.date > $3 OR (s.date = $3 AND s.start_time > $4))
	`, doctorID, liveStatuses(), nowDate, nowClock)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *PgRepository) ListLiveAppointmentsBySlots(ctx context.Context, slotIDs []uuid.UUID) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE slot_id = ANY($1)
		  AND status = ANY($2)
	`, slotIDs, liveStatuses())
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *PgRepository) ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE patient_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, patientID, limit, offset)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	return result, rows.Err()
}

func liveStatuses() []string {
	return []string{string(StatusBooked), string(StatusConfirmed)}
}

func statusStrings(statuses []AppointmentStatus) []string {
	out := make([]string, len(statuses))
	for i, st := range statuses {
		out[i] = string(st)
	}
	return out
}

// Event logging

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}
	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
