package booking

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/medbook/clinic-booking/internal/timegrid"
)

// GenerateSlots expands the doctor's active schedule template across the
// closed date range [fromDate, toDate], inserting one AVAILABLE slot per
// duration step. Existing slots are skipped, so re-running over an
// overlapping range is a no-op for anything already generated. Returns
// the number of newly created slots.
func (s *Service) GenerateSlots(ctx context.Context, doctorID uuid.UUID, fromDate, toDate string) (int, error) {
	doctor, err := s.repo.GetDoctorByID(ctx, doctorID)
	if err != nil {
		if errors.Is(err, ErrDoctorNotFound) {
			return 0, err
		}
		return 0, fmt.Errorf("load doctor: %w", err)
	}

	days, err := timegrid.DaysInRange(fromDate, toDate)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidRange, err)
	}

	fallbackRooms := make(map[uuid.UUID]*uuid.UUID) // clinic -> resolved room, nil when none
	created := 0

	for _, row := range doctor.ActiveScheduleRows() {
		roomID, err := s.resolveRoom(ctx, row, fallbackRooms)
		if err != nil {
			return created, err
		}
		if roomID == uuid.Nil {
			// No resolvable room for this row.
			s.log.Warn("skipping schedule row with no resolvable room",
				zap.String("doctor_id", doctorID.String()),
				zap.String("clinic_id", row.ClinicID.String()),
				zap.Int("day_of_week", row.DayOfWeek))
			continue
		}

		// Persisted rows bypass request validation, so a corrupt
		// duration would loop forever below.
		if row.SlotDurationMinutes <= 0 {
			s.log.Warn("skipping schedule row with nonpositive slot duration",
				zap.String("doctor_id", doctorID.String()),
				zap.Int("slot_duration_minutes", row.SlotDurationMinutes))
			continue
		}

		start, err := timegrid.ParseClock(row.StartTime)
		if err != nil {
			s.log.Warn("skipping schedule row with malformed start time",
				zap.String("doctor_id", doctorID.String()), zap.Error(err))
			continue
		}
		end, err := timegrid.ParseClock(row.EndTime)
		if err != nil {
			s.log.Warn("skipping schedule row with malformed end time",
				zap.String("doctor_id", doctorID.String()), zap.Error(err))
			continue
		}

		for _, day := range days {
			dow, err := timegrid.DayOfWeek(day)
			if err != nil {
				return created, fmt.Errorf("%w: %v", ErrInvalidRange, err)
			}
			if dow != row.DayOfWeek {
				continue
			}

			for t := start; t+row.SlotDurationMinutes <= end; t += row.SlotDurationMinutes {
				slot := &Slot{
					ID:        uuid.New(),
					DoctorID:  doctor.ID,
					ClinicID:  row.ClinicID,
					RoomID:    roomID,
					Date:      day,
					StartTime: timegrid.FormatClock(t),
					Status:    SlotAvailable,
				}

				err := s.repo.CreateSlot(ctx, slot)
				if errors.Is(err, ErrDuplicateSlot) {
					continue
				}
				if err != nil {
					return created, fmt.Errorf("create slot: %w", err)
				}
				created++
			}
		}
	}

	return created, nil
}

// resolveRoom picks the row's explicit room, or falls back to the first
// non-maintenance room of the clinic. uuid.Nil means the row has no
// usable room and must be skipped.
func (s *Service) resolveRoom(ctx context.Context, row ScheduleRow, cache map[uuid.UUID]*uuid.UUID) (uuid.UUID, error) {
	if row.RoomID != nil {
		return *row.RoomID, nil
	}

	if cached, ok := cache[row.ClinicID]; ok {
		if cached == nil {
			return uuid.Nil, nil
		}
		return *cached, nil
	}

	rooms, err := s.repo.ListClinicRooms(ctx, row.ClinicID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("list clinic rooms: %w", err)
	}
	for _, room := range rooms {
		if !room.UnderMaintenance {
			id := room.ID
			cache[row.ClinicID] = &id
			return id, nil
		}
	}

	cache[row.ClinicID] = nil
	return uuid.Nil, nil
}
