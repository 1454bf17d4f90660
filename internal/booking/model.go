package booking

import (
	"time"

	"github.com/google/uuid"
)

type SlotStatus string

const (
	SlotAvailable SlotStatus = "AVAILABLE"
	SlotBooked    SlotStatus = "BOOKED"
)

type AppointmentStatus string

const (
	StatusBooked    AppointmentStatus = "BOOKED"
	StatusConfirmed AppointmentStatus = "CONFIRMED"
	StatusCancelled AppointmentStatus = "CANCELLED"
	StatusCompleted AppointmentStatus = "COMPLETED"
)

// IsLive reports whether the appointment still holds its slot.
func (s AppointmentStatus) IsLive() bool {
	return s == StatusBooked || s == StatusConfirmed
}

type PaymentMethod string

const (
	MethodCash   PaymentMethod = "CASH"
	MethodCard   PaymentMethod = "CARD"
	MethodOnline PaymentMethod = "ONLINE"
)

func ValidPaymentMethod(m PaymentMethod) bool {
	switch m {
	case MethodCash, MethodCard, MethodOnline:
		return true
	}
	return false
}

type PaymentStatus string

const (
	PaymentPaid     PaymentStatus = "PAID"
	PaymentRefunded PaymentStatus = "REFUNDED"
)

// ScheduleRow is one recurring weekly availability rule for a doctor.
// Rows are replaced wholesale on every schedule update, never patched.
type ScheduleRow struct {
	DayOfWeek           int        `json:"day_of_week"`
	ClinicID            uuid.UUID  `json:"clinic_id"`
	RoomID              *uuid.UUID `json:"room_id,omitempty"`
	StartTime           string     `json:"start_time"`
	EndTime             string     `json:"end_time"`
	SlotDurationMinutes int        `json:"slot_duration_minutes"`
	IsActive            bool       `json:"is_active"`
}

type Patient struct {
	ID        uuid.UUID
	Name      string
	Email     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Doctor struct {
	ID              uuid.UUID
	Name            string
	Specialty       *string
	ConsultationFee int
	ScheduleDays    []ScheduleRow
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ActiveScheduleRows filters the doctor's template down to the rows
// currently in force.
func (d *Doctor) ActiveScheduleRows() []ScheduleRow {
	var active []ScheduleRow
	for _, row := range d.ScheduleDays {
		if row.IsActive {
			active = append(active, row)
		}
	}
	return active
}

type Clinic struct {
	ID        uuid.UUID
	Name      string
	CreatedAt time.Time
}

type Room struct {
	ID               uuid.UUID
	ClinicID         uuid.UUID
	Name             string
	UnderMaintenance bool
	CreatedAt        time.Time
}

// Slot is a single bookable (doctor, clinic, room, date, time) unit.
// Identity is the full tuple; the store enforces uniqueness on it.
type Slot struct {
	ID        uuid.UUID
	DoctorID  uuid.UUID
	ClinicID  uuid.UUID
	RoomID    uuid.UUID
	Date      string // 2006-01-02
	StartTime string // 15:04
	Status    SlotStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// PaymentSnapshot is captured on the appointment at booking time.
type PaymentSnapshot struct {
	Amount        int           `json:"amount"`
	Method        PaymentMethod `json:"method"`
	TransactionID string        `json:"transaction_id"`
	Status        PaymentStatus `json:"status"`
	PaidAt        time.Time     `json:"paid_at"`
}

type Appointment struct {
	ID        uuid.UUID
	PatientID uuid.UUID
	DoctorID  uuid.UUID
	ClinicID  uuid.UUID
	RoomID    uuid.UUID
	SlotID    uuid.UUID
	Status    AppointmentStatus
	Payment   PaymentSnapshot
	Notes     []string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// PaymentRecord is the row mirrored into the external payment store.
type PaymentRecord struct {
	ID            uuid.UUID
	AppointmentID uuid.UUID
	PatientID     uuid.UUID
	Amount        int
	Method        PaymentMethod
	TransactionID string
	Status        PaymentStatus
	CreatedAt     time.Time
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}
