package booking

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/medbook/clinic-booking/internal/account"
	"github.com/medbook/clinic-booking/internal/timegrid"
)

// UpdateSchedule replaces the doctor's recurring template and then
// reconciles future state against it. Only the doctor may edit their own
// schedule. Reconciliation runs best-effort: its failures are logged and
// the schedule update still succeeds.
func (s *Service) UpdateSchedule(ctx context.Context, caller account.Account, doctorID uuid.UUID, rows []ScheduleRow) error {
	doc, ok := caller.(account.Doctor)
	if !ok || doc.ID() != doctorID {
		return ErrNotAllowed
	}

	if err := ValidateScheduleRows(rows); err != nil {
		return err
	}

	if _, err := s.repo.GetDoctorByID(ctx, doctorID); err != nil {
		if errors.Is(err, ErrDoctorNotFound) {
			return err
		}
		return fmt.Errorf("load doctor: %w", err)
	}

	if err := s.repo.UpdateDoctorSchedule(ctx, doctorID, rows); err != nil {
		return fmt.Errorf("update schedule: %w", err)
	}

	var active []ScheduleRow
	for _, row := range rows {
		if row.IsActive {
			active = append(active, row)
		}
	}

	s.reconcileSchedule(ctx, doctorID, active)

	return nil
}

// reconcileSchedule cancels future live appointments and deletes future
// available slots that no longer fall inside any active schedule row.
// Slots held by appointments cancelled here are intentionally left
// BOOKED; the repair pass does not touch them either, since their
// appointment rows are terminal, not missing.
func (s *Service) reconcileSchedule(ctx context.Context, doctorID uuid.UUID, activeRows []ScheduleRow) {
	nowDate, nowClock := timegrid.SplitNow(s.now())

	cancelled := 0
	appts, err := s.repo.ListFutureLiveAppointments(ctx, doctorID, nowDate, nowClock)
	if err != nil {
		s.log.Error("reconciliation: failed to list future appointments",
			zap.String("doctor_id", doctorID.String()), zap.Error(err))
	} else {
		for _, appt := range appts {
			slot, err := s.repo.GetSlotByID(ctx, appt.SlotID)
			if err != nil {
				s.log.Error("reconciliation: failed to load appointment slot",
					zap.String("appointment_id", appt.ID.String()), zap.Error(err))
				continue
			}
			if scheduleContainsSlot(activeRows, slot) {
				continue
			}

			_, err = s.repo.TransitionAppointment(ctx, appt.ID,
				[]AppointmentStatus{StatusBooked, StatusConfirmed}, StatusCancelled,
				"Cancelled by clinic after a schedule change")
			if err != nil {
				s.log.Error("reconciliation: failed to cancel appointment",
					zap.String("appointment_id", appt.ID.String()), zap.Error(err))
				continue
			}
			cancelled++

			if err := s.payments.RefundForAppointment(ctx, appt.ID); err != nil {
				s.log.Error("reconciliation: failed to mark payment refunded",
					zap.String("appointment_id", appt.ID.String()), zap.Error(err))
			}
		}
	}

	deleted := 0
	slots, err := s.repo.ListFutureAvailableSlots(ctx, doctorID, nowDate, nowClock)
	if err != nil {
		s.log.Error("reconciliation: failed to list future available slots",
			zap.String("doctor_id", doctorID.String()), zap.Error(err))
	} else {
		for _, slot := range slots {
			if scheduleContainsSlot(activeRows, &slot) {
				continue
			}
			ok, err := s.repo.DeleteAvailableSlot(ctx, slot.ID)
			if err != nil {
				s.log.Error("reconciliation: failed to delete orphaned slot",
					zap.String("slot_id", slot.ID.String()), zap.Error(err))
				continue
			}
			if ok {
				deleted++
			}
		}
	}

	s.log.Info("schedule reconciliation finished",
		zap.String("doctor_id", doctorID.String()),
		zap.Int("appointments_cancelled", cancelled),
		zap.Int("slots_deleted", deleted))

	if cancelled > 0 || deleted > 0 {
		ev := EventLog{
			EventType: EventScheduleReconciled,
			Payload: mustJSON(map[string]any{
				"doctor_id":              doctorID.String(),
				"appointments_cancelled": cancelled,
				"slots_deleted":          deleted,
			}),
			CreatedAt: s.now(),
		}
		if err := s.repo.InsertEvent(ctx, ev); err != nil {
			s.log.Error("reconciliation: failed to insert event log", zap.Error(err))
		}
	}
}
