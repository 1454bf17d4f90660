package booking

import (
	"context"

	"github.com/google/uuid"
)

// Repository contains all store interactions needed by the service.
//
// ClaimSlot is the single serialization point that prevents double
// booking: it must be an atomic conditional write, not a read followed
// by a write. Everything else tolerates read-then-write semantics.
type Repository interface {
	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error)
	GetClinicByID(ctx context.Context, id uuid.UUID) (*Clinic, error)
	GetRoomByID(ctx context.Context, id uuid.UUID) (*Room, error)

	// ListClinicRooms returns a clinic's rooms ordered by name, so the
	// generator's no-explicit-room fallback is deterministic.
	ListClinicRooms(ctx context.Context, clinicID uuid.UUID) ([]Room, error)

	// UpdateDoctorSchedule replaces the doctor's recurring template wholesale.
	UpdateDoctorSchedule(ctx context.Context, doctorID uuid.UUID, rows []ScheduleRow) error

	// Slots
	CreateSlot(ctx context.Context, slot *Slot) error // ErrDuplicateSlot on identity conflict
	GetSlotByID(ctx context.Context, id uuid.UUID) (*Slot, error)
	ClaimSlot(ctx context.Context, id uuid.UUID) error   // AVAILABLE -> BOOKED, ErrSlotUnavailable if missed
	ReleaseSlot(ctx context.Context, id uuid.UUID) error // BOOKED -> AVAILABLE
	DeleteAvailableSlot(ctx context.Context, id uuid.UUID) (bool, error)
	ListAvailableSlots(ctx context.Context, doctorID uuid.UUID, fromDate, toDate string) ([]Slot, error)
	ListFutureAvailableSlots(ctx context.Context, doctorID uuid.UUID, nowDate, nowClock string) ([]Slot, error)

	// Sweeper / repair
	FindExpiredBookedSlots(ctx context.Context, nowDate, nowClock string) ([]Slot, error)
	FindOrphanedBookedSlots(ctx context.Context) ([]Slot, error) // BOOKED with no appointment row at all

	// Appointments
	CreateAppointment(ctx context.Context, appt *Appointment) error // ErrSlotTaken if the slot already has a live appointment
	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// TransitionAppointment moves the appointment to the target status
	// only when its current status is one of from, appending note to the
	// audit trail. ErrWrongState when the current status does not match.
	TransitionAppointment(ctx context.Context, id uuid.UUID, from []AppointmentStatus, to AppointmentStatus, note string) (*Appointment, error)

	// MoveAppointmentSlot repoints a live appointment at a new slot,
	// carrying the new slot's room and clinic along.
	MoveAppointmentSlot(ctx context.Context, id, slotID, clinicID, roomID uuid.UUID) (*Appointment, error)

	ListFutureLiveAppointments(ctx context.Context, doctorID uuid.UUID, nowDate, nowClock string) ([]Appointment, error)
	ListLiveAppointmentsBySlots(ctx context.Context, slotIDs []uuid.UUID) ([]Appointment, error)
	ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error)

	// Event logging
	InsertEvent(ctx context.Context, ev EventLog) error
}

// PaymentSink mirrors payment state into the external payment store.
// Callers treat it as fire-and-forget: failures are logged, never
// surfaced to the patient.
type PaymentSink interface {
	Record(ctx context.Context, rec PaymentRecord) error
	RefundForAppointment(ctx context.Context, appointmentID uuid.UUID) error
}
