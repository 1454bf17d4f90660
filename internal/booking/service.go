package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/medbook/clinic-booking/internal/account"
	redisclient "github.com/medbook/clinic-booking/internal/redis"
	"github.com/medbook/clinic-booking/internal/timegrid"
)

const (
	EventAppointmentBooked      = "APPOINTMENT_BOOKED"
	EventAppointmentCancelled   = "APPOINTMENT_CANCELLED"
	EventAppointmentRescheduled = "APPOINTMENT_RESCHEDULED"
	EventAppointmentCompleted   = "APPOINTMENT_COMPLETED"
	EventScheduleReconciled     = "SCHEDULE_RECONCILED"
	EventSlotRepaired           = "SLOT_REPAIRED"
)

type Service struct {
	repo     Repository
	payments PaymentSink
	locker   redisclient.Locker
	log      *zap.Logger

	now func() time.Time
}

func NewService(repo Repository, payments PaymentSink, locker redisclient.Locker, log *zap.Logger) *Service {
	return &Service{
		repo:     repo,
		payments: payments,
		locker:   locker,
		log:      log,
		now:      time.Now,
	}
}

// BookRequest carries everything needed to claim a slot. The booking
// patient is never part of the request; it comes from the caller's
// authenticated identity.
type BookRequest struct {
	DoctorID uuid.UUID
	ClinicID uuid.UUID
	RoomID   uuid.UUID
	SlotID   uuid.UUID
	Method   PaymentMethod
}

// Book claims a slot for the calling patient and creates the appointment
// with its payment snapshot. The per-slot lock guards the in-flight
// critical section; the conditional claim on the slot row is what
// actually decides the race between concurrent callers.
func (s *Service) Book(ctx context.Context, caller account.Account, req BookRequest) (*Appointment, error) {
	patient, ok := caller.(account.Patient)
	if !ok {
		return nil, ErrNotAllowed
	}
	if !ValidPaymentMethod(req.Method) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidMethod, req.Method)
	}

	if _, err := s.repo.GetPatientByID(ctx, patient.ID()); err != nil {
		if errors.Is(err, ErrPatientNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load patient: %w", err)
	}

	room, err := s.repo.GetRoomByID(ctx, req.RoomID)
	if err != nil {
		if errors.Is(err, ErrRoomNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load room: %w", err)
	}
	if room.UnderMaintenance {
		return nil, ErrRoomUnderMaintenance
	}

	doctor, err := s.repo.GetDoctorByID(ctx, req.DoctorID)
	if err != nil {
		if errors.Is(err, ErrDoctorNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load doctor: %w", err)
	}
	if doctor.ConsultationFee <= 0 {
		return nil, ErrNoConsultationFee
	}

	slot, err := s.repo.GetSlotByID(ctx, req.SlotID)
	if err != nil {
		if errors.Is(err, ErrSlotNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load slot: %w", err)
	}
	if slot.DoctorID != req.DoctorID || slot.ClinicID != req.ClinicID || slot.RoomID != req.RoomID {
		return nil, ErrSlotMismatch
	}
	if !timegrid.IsAfter(slot.Date, slot.StartTime, s.now()) {
		return nil, ErrSlotInPast
	}

	var created *Appointment

	err = s.locker.WithSlotLock(ctx, slot.ID, func(lockCtx context.Context) error {
		if err := s.repo.ClaimSlot(lockCtx, slot.ID); err != nil {
			return err
		}

		now := s.now()
		appt := &Appointment{
			ID:        uuid.New(),
			PatientID: patient.ID(),
			DoctorID:  doctor.ID,
			ClinicID:  slot.ClinicID,
			RoomID:    slot.RoomID,
			SlotID:    slot.ID,
			Status:    StatusBooked,
			Payment: PaymentSnapshot{
				Amount:        doctor.ConsultationFee,
				Method:        req.Method,
				TransactionID: uuid.NewString(),
				Status:        PaymentPaid,
				PaidAt:        now,
			},
		}

		if err := s.repo.CreateAppointment(lockCtx, appt); err != nil {
			// Compensate: the slot was claimed but no appointment holds
			// it. Revert the claim so the slot is not stranded.
			if relErr := s.repo.ReleaseSlot(lockCtx, slot.ID); relErr != nil {
				s.log.Error("slot claimed but appointment creation and release both failed; slot stranded until repair pass",
					zap.String("slot_id", slot.ID.String()),
					zap.NamedError("create_err", err),
					zap.NamedError("release_err", relErr))
			}
			if errors.Is(err, ErrSlotTaken) {
				return ErrSlotUnavailable
			}
			return fmt.Errorf("create appointment: %w", err)
		}

		created = appt
		s.logEvent(lockCtx, appt.ID, EventAppointmentBooked, map[string]any{
			"slot_id":    slot.ID.String(),
			"patient_id": patient.ID().String(),
			"doctor_id":  doctor.ID.String(),
			"amount":     doctor.ConsultationFee,
		})
		return nil
	})

	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrSlotBeingBooked
		}
		return nil, err
	}

	// Mirror into the payment store. Best effort only.
	rec := PaymentRecord{
		ID:            uuid.New(),
		AppointmentID: created.ID,
		PatientID:     created.PatientID,
		Amount:        created.Payment.Amount,
		Method:        created.Payment.Method,
		TransactionID: created.Payment.TransactionID,
		Status:        created.Payment.Status,
		CreatedAt:     created.Payment.PaidAt,
	}
	if err := s.payments.Record(ctx, rec); err != nil {
		s.log.Error("failed to mirror payment record",
			zap.String("appointment_id", created.ID.String()), zap.Error(err))
	}

	return created, nil
}

// Cancel moves a live appointment to CANCELLED, frees its slot and marks
// the mirrored payment refunded. Patients may only cancel their own
// future appointments; the assigned doctor may cancel regardless of time.
func (s *Service) Cancel(ctx context.Context, caller account.Account, appointmentID uuid.UUID) error {
	appt, err := s.repo.GetAppointmentByID(ctx, appointmentID)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return err
		}
		return fmt.Errorf("load appointment: %w", err)
	}

	var note string
	switch c := caller.(type) {
	case account.Patient:
		if appt.PatientID != c.ID() {
			return ErrNotAllowed
		}
		slot, err := s.repo.GetSlotByID(ctx, appt.SlotID)
		if err != nil {
			return fmt.Errorf("load slot: %w", err)
		}
		if !timegrid.IsAfter(slot.Date, slot.StartTime, s.now()) {
			return ErrAppointmentInPast
		}
		note = "Cancelled by patient"
	case account.Doctor:
		if appt.DoctorID != c.ID() {
			return ErrNotAllowed
		}
		note = "Cancelled by doctor"
	default:
		return ErrNotAllowed
	}

	if !appt.Status.IsLive() {
		return ErrWrongState
	}

	if _, err := s.repo.TransitionAppointment(ctx, appt.ID,
		[]AppointmentStatus{StatusBooked, StatusConfirmed}, StatusCancelled, note); err != nil {
		return err
	}

	if err := s.repo.ReleaseSlot(ctx, appt.SlotID); err != nil {
		// The cancellation already committed, so the slot is now held
		// only by a terminal appointment and the repair pass will not
		// touch it. Shout so an operator can free it.
		s.log.Error("appointment cancelled but slot release failed; slot stranded",
			zap.String("appointment_id", appt.ID.String()),
			zap.String("slot_id", appt.SlotID.String()),
			zap.Error(err))
	}

	if err := s.payments.RefundForAppointment(ctx, appt.ID); err != nil {
		s.log.Error("failed to mark mirrored payment refunded",
			zap.String("appointment_id", appt.ID.String()), zap.Error(err))
	}

	s.logEvent(ctx, appt.ID, EventAppointmentCancelled, map[string]any{
		"by": string(caller.Role()),
	})

	return nil
}

// Reschedule swaps a live appointment onto a new slot for the same
// doctor. Same-day appointments cannot be moved, and the target slot
// must be on a strictly future date.
func (s *Service) Reschedule(ctx context.Context, caller account.Account, appointmentID, newSlotID uuid.UUID) (*Appointment, error) {
	patient, ok := caller.(account.Patient)
	if !ok {
		return nil, ErrNotAllowed
	}

	appt, err := s.repo.GetAppointmentByID(ctx, appointmentID)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load appointment: %w", err)
	}
	if appt.PatientID != patient.ID() {
		return nil, ErrNotAllowed
	}
	if !appt.Status.IsLive() {
		return nil, ErrWrongState
	}

	oldSlot, err := s.repo.GetSlotByID(ctx, appt.SlotID)
	if err != nil {
		return nil, fmt.Errorf("load current slot: %w", err)
	}
	now := s.now()
	if timegrid.SameDate(oldSlot.Date, now) {
		return nil, ErrRescheduleToday
	}

	newSlot, err := s.repo.GetSlotByID(ctx, newSlotID)
	if err != nil {
		if errors.Is(err, ErrSlotNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load new slot: %w", err)
	}
	if newSlot.DoctorID != appt.DoctorID {
		return nil, ErrRescheduleDoctor
	}
	if timegrid.SameDate(newSlot.Date, now) || !timegrid.IsAfter(newSlot.Date, newSlot.StartTime, now) {
		return nil, ErrRescheduleNotFuture
	}

	var updated *Appointment

	err = s.locker.WithSlotLock(ctx, newSlot.ID, func(lockCtx context.Context) error {
		if err := s.repo.ClaimSlot(lockCtx, newSlot.ID); err != nil {
			if errors.Is(err, ErrSlotUnavailable) {
				return ErrRescheduleUnavailable
			}
			return err
		}

		moved, err := s.repo.MoveAppointmentSlot(lockCtx, appt.ID, newSlot.ID, newSlot.ClinicID, newSlot.RoomID)
		if err != nil {
			if relErr := s.repo.ReleaseSlot(lockCtx, newSlot.ID); relErr != nil {
				s.log.Error("new slot claimed but appointment move and release both failed; slot stranded until repair pass",
					zap.String("slot_id", newSlot.ID.String()),
					zap.NamedError("move_err", err),
					zap.NamedError("release_err", relErr))
			}
			return fmt.Errorf("move appointment: %w", err)
		}

		updated = moved
		return nil
	})

	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrRescheduleUnavailable
		}
		return nil, err
	}

	if err := s.repo.ReleaseSlot(ctx, oldSlot.ID); err != nil {
		s.log.Error("failed to release old slot after reschedule",
			zap.String("slot_id", oldSlot.ID.String()), zap.Error(err))
	}

	s.logEvent(ctx, appt.ID, EventAppointmentRescheduled, map[string]any{
		"old_slot_id": oldSlot.ID.String(),
		"new_slot_id": newSlot.ID.String(),
		"new_date":    newSlot.Date,
		"new_time":    newSlot.StartTime,
	})

	return updated, nil
}

// Complete is the doctor marking a visit as done. Slot and payment are
// left untouched.
func (s *Service) Complete(ctx context.Context, caller account.Account, appointmentID uuid.UUID) error {
	doctor, ok := caller.(account.Doctor)
	if !ok {
		return ErrNotAllowed
	}

	appt, err := s.repo.GetAppointmentByID(ctx, appointmentID)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return err
		}
		return fmt.Errorf("load appointment: %w", err)
	}
	if appt.DoctorID != doctor.ID() {
		return ErrNotAllowed
	}
	if !appt.Status.IsLive() {
		return ErrWrongState
	}

	if _, err := s.repo.TransitionAppointment(ctx, appt.ID,
		[]AppointmentStatus{StatusBooked, StatusConfirmed}, StatusCompleted, "Marked completed by doctor"); err != nil {
		return err
	}

	s.logEvent(ctx, appt.ID, EventAppointmentCompleted, map[string]any{
		"by": "doctor",
	})

	return nil
}

// GetSlot returns a slot by id.
func (s *Service) GetSlot(ctx context.Context, id uuid.UUID) (*Slot, error) {
	return s.repo.GetSlotByID(ctx, id)
}

// GetAppointment returns an appointment to its owning patient or
// assigned doctor.
func (s *Service) GetAppointment(ctx context.Context, caller account.Account, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load appointment: %w", err)
	}

	switch c := caller.(type) {
	case account.Patient:
		if appt.PatientID != c.ID() {
			return nil, ErrNotAllowed
		}
	case account.Doctor:
		if appt.DoctorID != c.ID() {
			return nil, ErrNotAllowed
		}
	default:
		return nil, ErrNotAllowed
	}

	return appt, nil
}

// ListMyAppointments returns the calling patient's appointments, newest
// first.
func (s *Service) ListMyAppointments(ctx context.Context, caller account.Account, limit, offset int) ([]Appointment, error) {
	patient, ok := caller.(account.Patient)
	if !ok {
		return nil, ErrNotAllowed
	}

	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	appts, err := s.repo.ListAppointmentsByPatient(ctx, patient.ID(), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return appts, nil
}

// ListAvailableSlots returns a doctor's open slots in the range, so a
// client that lost a booking race can refresh its view.
func (s *Service) ListAvailableSlots(ctx context.Context, doctorID uuid.UUID, fromDate, toDate string) ([]Slot, error) {
	if _, err := timegrid.DaysInRange(fromDate, toDate); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRange, err)
	}
	if _, err := s.repo.GetDoctorByID(ctx, doctorID); err != nil {
		if errors.Is(err, ErrDoctorNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load doctor: %w", err)
	}

	slots, err := s.repo.ListAvailableSlots(ctx, doctorID, fromDate, toDate)
	if err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}
	return slots, nil
}

func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Error("failed to marshal event payload", zap.String("event", eventType), zap.Error(err))
		data = nil
	}

	apptID := appointmentID

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     s.now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.log.Error("failed to insert event log",
			zap.String("event", eventType),
			zap.String("appointment_id", appointmentID.String()),
			zap.Error(err))
	}
}
