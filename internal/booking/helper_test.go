package booking

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	redisclient "github.com/medbook/clinic-booking/internal/redis"
)

// The fixed test clock: Monday 2025-06-16 at 10:00 local time.
var testNow = time.Date(2025, 6, 16, 10, 0, 0, 0, time.Local)

type fixture struct {
	svc      *Service
	repo     *MemoryRepository
	payments *MemoryPaymentSink

	clinic  Clinic
	room    Room
	doctor  Doctor
	patient Patient
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	repo := NewMemoryRepository()
	payments := NewMemoryPaymentSink()
	svc := NewService(repo, payments, redisclient.NoopLocker{}, zap.NewNop())
	svc.now = func() time.Time { return testNow }

	f := &fixture{
		svc:      svc,
		repo:     repo,
		payments: payments,
		clinic:   Clinic{ID: uuid.New(), Name: "Riverside Clinic"},
	}
	f.room = Room{ID: uuid.New(), ClinicID: f.clinic.ID, Name: "B-101"}
	roomID := f.room.ID
	f.doctor = Doctor{
		ID:              uuid.New(),
		Name:            "Dr. Osei",
		ConsultationFee: 300,
		ScheduleDays: []ScheduleRow{{
			DayOfWeek:           1, // Monday
			ClinicID:            f.clinic.ID,
			RoomID:              &roomID,
			StartTime:           "09:00",
			EndTime:             "11:00",
			SlotDurationMinutes: 60,
			IsActive:            true,
		}},
	}
	f.patient = Patient{ID: uuid.New(), Name: "Ama Mensah"}

	repo.AddClinic(f.clinic)
	repo.AddRoom(f.room)
	repo.AddDoctor(f.doctor)
	repo.AddPatient(f.patient)

	return f
}

func (f *fixture) setNow(now time.Time) {
	f.svc.now = func() time.Time { return now }
}

// addSlot persists a slot for the fixture doctor in the fixture room.
func (f *fixture) addSlot(t *testing.T, date, clock string, status SlotStatus) *Slot {
	t.Helper()

	slot := &Slot{
		ID:        uuid.New(),
		DoctorID:  f.doctor.ID,
		ClinicID:  f.clinic.ID,
		RoomID:    f.room.ID,
		Date:      date,
		StartTime: clock,
		Status:    status,
	}
	if err := f.repo.CreateSlot(context.Background(), slot); err != nil {
		t.Fatalf("create slot: %v", err)
	}
	return slot
}

func (f *fixture) bookRequest(slot *Slot) BookRequest {
	return BookRequest{
		DoctorID: slot.DoctorID,
		ClinicID: slot.ClinicID,
		RoomID:   slot.RoomID,
		SlotID:   slot.ID,
		Method:   MethodCash,
	}
}

func (f *fixture) mustGetSlot(t *testing.T, id uuid.UUID) *Slot {
	t.Helper()
	slot, err := f.repo.GetSlotByID(context.Background(), id)
	if err != nil {
		t.Fatalf("get slot: %v", err)
	}
	return slot
}

func (f *fixture) mustGetAppointment(t *testing.T, id uuid.UUID) *Appointment {
	t.Helper()
	appt, err := f.repo.GetAppointmentByID(context.Background(), id)
	if err != nil {
		t.Fatalf("get appointment: %v", err)
	}
	return appt
}
