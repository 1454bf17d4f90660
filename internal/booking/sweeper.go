package booking

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/medbook/clinic-booking/internal/timegrid"
)

// SweepExpired transitions live appointments whose slot time has passed
// to COMPLETED. Slot status is left as-is. Idempotent; returns the
// number of appointments updated.
func (s *Service) SweepExpired(ctx context.Context) (int, error) {
	nowDate, nowClock := timegrid.SplitNow(s.now())

	slots, err := s.repo.FindExpiredBookedSlots(ctx, nowDate, nowClock)
	if err != nil {
		return 0, fmt.Errorf("find expired booked slots: %w", err)
	}
	if len(slots) == 0 {
		return 0, nil
	}

	slotIDs := make([]uuid.UUID, 0, len(slots))
	for _, slot := range slots {
		slotIDs = append(slotIDs, slot.ID)
	}

	appts, err := s.repo.ListLiveAppointmentsBySlots(ctx, slotIDs)
	if err != nil {
		return 0, fmt.Errorf("list appointments for expired slots: %w", err)
	}

	updated := 0
	for _, appt := range appts {
		_, err := s.repo.TransitionAppointment(ctx, appt.ID,
			[]AppointmentStatus{StatusBooked, StatusConfirmed}, StatusCompleted,
			"Auto-completed after visit time passed")
		if err != nil {
			s.log.Error("sweeper: failed to complete appointment",
				zap.String("appointment_id", appt.ID.String()), zap.Error(err))
			continue
		}
		updated++
		s.logEvent(ctx, appt.ID, EventAppointmentCompleted, map[string]any{
			"by": "sweeper",
		})
	}

	return updated, nil
}

// RepairOrphanedSlots reverts BOOKED slots that no appointment row
// references back to AVAILABLE. These exist only when a booking crashed
// between the slot claim and the appointment insert and the in-line
// compensation also failed. Slots held by terminal appointments are left
// alone; schedule-change cancellations rely on that.
func (s *Service) RepairOrphanedSlots(ctx context.Context) (int, error) {
	slots, err := s.repo.FindOrphanedBookedSlots(ctx)
	if err != nil {
		return 0, fmt.Errorf("find orphaned booked slots: %w", err)
	}

	repaired := 0
	for _, slot := range slots {
		if err := s.repo.ReleaseSlot(ctx, slot.ID); err != nil {
			s.log.Error("repair: failed to release orphaned slot",
				zap.String("slot_id", slot.ID.String()), zap.Error(err))
			continue
		}
		repaired++

		ev := EventLog{
			EventType: EventSlotRepaired,
			Payload: mustJSON(map[string]any{
				"slot_id": slot.ID.String(),
			}),
			CreatedAt: s.now(),
		}
		if err := s.repo.InsertEvent(ctx, ev); err != nil {
			s.log.Error("repair: failed to insert event log", zap.Error(err))
		}
	}

	if repaired > 0 {
		s.log.Warn("reverted orphaned booked slots", zap.Int("count", repaired))
	}

	return repaired, nil
}

func mustJSON(payload map[string]any) []byte {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil
	}
	return data
}
