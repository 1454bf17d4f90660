package booking

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (f *fixture) addAppointment(t *testing.T, slot *Slot, status AppointmentStatus) *Appointment {
	t.Helper()

	appt := &Appointment{
		ID: uuid.New(), PatientID: f.patient.ID, DoctorID: f.doctor.ID,
		ClinicID: f.clinic.ID, RoomID: f.room.ID, SlotID: slot.ID, Status: status,
	}
	if err := f.repo.CreateAppointment(context.Background(), appt); err != nil {
		t.Fatalf("create appointment: %v", err)
	}
	return appt
}

func TestSweepExpiredCompletesPastVisits(t *testing.T) {
	f := newFixture(t)

	// Two visits before the 10:00 test clock, one after.
	pastSlotA := f.addSlot(t, "2025-06-16", "08:00", SlotBooked)
	pastSlotB := f.addSlot(t, "2025-06-09", "09:00", SlotBooked)
	futureSlot := f.addSlot(t, "2025-06-16", "11:00", SlotBooked)

	pastA := f.addAppointment(t, pastSlotA, StatusBooked)
	pastB := f.addAppointment(t, pastSlotB, StatusConfirmed)
	future := f.addAppointment(t, futureSlot, StatusBooked)

	updated, err := f.svc.SweepExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, updated)

	assert.Equal(t, StatusCompleted, f.mustGetAppointment(t, pastA.ID).Status)
	assert.Equal(t, StatusCompleted, f.mustGetAppointment(t, pastB.ID).Status)
	assert.Equal(t, StatusBooked, f.mustGetAppointment(t, future.ID).Status)

	// The sweep never touches slot status.
	assert.Equal(t, SlotBooked, f.mustGetSlot(t, pastSlotA.ID).Status)
	assert.Equal(t, SlotBooked, f.mustGetSlot(t, pastSlotB.ID).Status)
}

func TestSweepExpiredSkipsTerminalAppointments(t *testing.T) {
	f := newFixture(t)

	slot := f.addSlot(t, "2025-06-16", "08:00", SlotBooked)
	cancelled := f.addAppointment(t, slot, StatusCancelled)

	updated, err := f.svc.SweepExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, updated)
	assert.Equal(t, StatusCancelled, f.mustGetAppointment(t, cancelled.ID).Status)
}

func TestSweepExpiredIdempotent(t *testing.T) {
	f := newFixture(t)

	slot := f.addSlot(t, "2025-06-16", "08:00", SlotBooked)
	f.addAppointment(t, slot, StatusBooked)

	updated, err := f.svc.SweepExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, updated)

	updated, err = f.svc.SweepExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, updated)
}

func TestSweepExpiredNothingToDo(t *testing.T) {
	f := newFixture(t)

	updated, err := f.svc.SweepExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, updated)
}

func TestRepairOrphanedSlots(t *testing.T) {
	f := newFixture(t)

	// BOOKED with no appointment at all: orphaned.
	orphan := f.addSlot(t, "2025-06-23", "09:00", SlotBooked)

	// BOOKED and held by a live appointment: healthy.
	held := f.addSlot(t, "2025-06-23", "10:00", SlotBooked)
	f.addAppointment(t, held, StatusBooked)

	// BOOKED with only a terminal appointment. Not orphaned; this is the
	// trace a schedule-change cancellation leaves behind.
	retired := f.addSlot(t, "2025-06-30", "09:00", SlotBooked)
	f.addAppointment(t, retired, StatusCancelled)

	available := f.addSlot(t, "2025-06-30", "10:00", SlotAvailable)

	repaired, err := f.svc.RepairOrphanedSlots(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, repaired)

	assert.Equal(t, SlotAvailable, f.mustGetSlot(t, orphan.ID).Status)
	assert.Equal(t, SlotBooked, f.mustGetSlot(t, held.ID).Status)
	assert.Equal(t, SlotBooked, f.mustGetSlot(t, retired.ID).Status)
	assert.Equal(t, SlotAvailable, f.mustGetSlot(t, available.ID).Status)

	events := f.repo.Events()
	var repairs int
	for _, ev := range events {
		if ev.EventType == EventSlotRepaired {
			repairs++
		}
	}
	assert.Equal(t, 1, repairs)
}
