package booking

import (
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/medbook/clinic-booking/internal/timegrid"
)

// ValidateScheduleRows checks a replacement schedule template before it
// is persisted. All failures wrap ErrInvalidSchedule.
func ValidateScheduleRows(rows []ScheduleRow) error {
	type window struct {
		start, end int
		idx        int
	}
	groups := make(map[string][]window)

	for i, row := range rows {
		if row.DayOfWeek < 0 || row.DayOfWeek > 6 {
			return fmt.Errorf("%w: row %d: day_of_week must be 0-6, got %d", ErrInvalidSchedule, i, row.DayOfWeek)
		}
		if row.ClinicID == uuid.Nil {
			return fmt.Errorf("%w: row %d: clinic_id is required", ErrInvalidSchedule, i)
		}
		start, err := timegrid.ParseClock(row.StartTime)
		if err != nil {
			return fmt.Errorf("%w: row %d: %v", ErrInvalidSchedule, i, err)
		}
		end, err := timegrid.ParseClock(row.EndTime)
		if err != nil {
			return fmt.Errorf("%w: row %d: %v", ErrInvalidSchedule, i, err)
		}
		if start >= end {
			return fmt.Errorf("%w: row %d: start_time must be before end_time", ErrInvalidSchedule, i)
		}
		if row.SlotDurationMinutes <= 0 {
			return fmt.Errorf("%w: row %d: slot_duration_minutes must be positive", ErrInvalidSchedule, i)
		}
		if row.SlotDurationMinutes > end-start {
			return fmt.Errorf("%w: row %d: slot_duration_minutes exceeds the window", ErrInvalidSchedule, i)
		}

		key := groupKey(row)
		groups[key] = append(groups[key], window{start: start, end: end, idx: i})
	}

	// Overlap check within each (day, clinic, room) group.
	for _, ws := range groups {
		sort.Slice(ws, func(a, b int) bool { return ws[a].start < ws[b].start })
		for i := 1; i < len(ws); i++ {
			if ws[i].start < ws[i-1].end {
				return fmt.Errorf("%w: rows %d and %d overlap", ErrInvalidSchedule, ws[i-1].idx, ws[i].idx)
			}
		}
	}

	return nil
}

func groupKey(row ScheduleRow) string {
	room := "any"
	if row.RoomID != nil {
		room = row.RoomID.String()
	}
	return fmt.Sprintf("%d|%s|%s", row.DayOfWeek, row.ClinicID, room)
}

// rowContainsSlot reports whether the slot still falls inside the row's
// weekly window. A row with no explicit room covers every room of its
// clinic, matching how generation resolves rooms lazily.
func rowContainsSlot(row ScheduleRow, dayOfWeek, startMinutes int, clinicID, roomID uuid.UUID) bool {
	if !row.IsActive || row.DayOfWeek != dayOfWeek || row.ClinicID != clinicID {
		return false
	}
	if row.RoomID != nil && *row.RoomID != roomID {
		return false
	}
	rowStart, err := timegrid.ParseClock(row.StartTime)
	if err != nil {
		return false
	}
	rowEnd, err := timegrid.ParseClock(row.EndTime)
	if err != nil {
		return false
	}
	return startMinutes >= rowStart && startMinutes < rowEnd
}

// scheduleContainsSlot checks the slot against every active row.
func scheduleContainsSlot(rows []ScheduleRow, slot *Slot) bool {
	dayOfWeek, err := timegrid.DayOfWeek(slot.Date)
	if err != nil {
		return false
	}
	startMinutes, err := timegrid.ParseClock(slot.StartTime)
	if err != nil {
		return false
	}
	for _, row := range rows {
		if rowContainsSlot(row, dayOfWeek, startMinutes, slot.ClinicID, slot.RoomID) {
			return true
		}
	}
	return false
}
