package booking

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medbook/clinic-booking/internal/account"
)

func TestBookSuccess(t *testing.T) {
	f := newFixture(t)
	slot := f.addSlot(t, "2025-06-23", "09:00", SlotAvailable)

	appt, err := f.svc.Book(context.Background(), account.Patient{AccountID: f.patient.ID}, f.bookRequest(slot))
	require.NoError(t, err)

	assert.Equal(t, StatusBooked, appt.Status)
	assert.Equal(t, f.patient.ID, appt.PatientID)
	assert.Equal(t, f.doctor.ID, appt.DoctorID)
	assert.Equal(t, slot.ID, appt.SlotID)

	assert.Equal(t, 300, appt.Payment.Amount)
	assert.Equal(t, MethodCash, appt.Payment.Method)
	assert.Equal(t, PaymentPaid, appt.Payment.Status)
	assert.NotEmpty(t, appt.Payment.TransactionID)

	assert.Equal(t, SlotBooked, f.mustGetSlot(t, slot.ID).Status)

	// A mirrored payment record exists with the same amount.
	records := f.payments.Records()
	require.Len(t, records, 1)
	assert.Equal(t, appt.ID, records[0].AppointmentID)
	assert.Equal(t, 300, records[0].Amount)
	assert.Equal(t, PaymentPaid, records[0].Status)
}

func TestBookConcurrentSingleWinner(t *testing.T) {
	f := newFixture(t)
	slot := f.addSlot(t, "2025-06-23", "09:00", SlotAvailable)

	const callers = 20
	var wg sync.WaitGroup
	errs := make([]error, callers)

	for i := 0; i < callers; i++ {
		p := Patient{ID: uuid.New(), Name: "patient"}
		f.repo.AddPatient(p)

		wg.Add(1)
		go func(i int, patientID uuid.UUID) {
			defer wg.Done()
			_, errs[i] = f.svc.Book(context.Background(), account.Patient{AccountID: patientID}, f.bookRequest(slot))
		}(i, p.ID)
	}
	wg.Wait()

	wins, conflicts := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrSlotUnavailable):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}

	assert.Equal(t, 1, wins)
	assert.Equal(t, callers-1, conflicts)
}

func TestBookRejectsNonPatient(t *testing.T) {
	f := newFixture(t)
	slot := f.addSlot(t, "2025-06-23", "09:00", SlotAvailable)

	_, err := f.svc.Book(context.Background(), account.Doctor{AccountID: f.doctor.ID}, f.bookRequest(slot))
	assert.ErrorIs(t, err, ErrNotAllowed)
}

func TestBookInvalidMethod(t *testing.T) {
	f := newFixture(t)
	slot := f.addSlot(t, "2025-06-23", "09:00", SlotAvailable)

	req := f.bookRequest(slot)
	req.Method = "BARTER"

	_, err := f.svc.Book(context.Background(), account.Patient{AccountID: f.patient.ID}, req)
	assert.ErrorIs(t, err, ErrInvalidMethod)
}

func TestBookRoomUnderMaintenance(t *testing.T) {
	f := newFixture(t)
	maintenance := Room{ID: uuid.New(), ClinicID: f.clinic.ID, Name: "C-500", UnderMaintenance: true}
	f.repo.AddRoom(maintenance)

	slot := f.addSlot(t, "2025-06-23", "09:00", SlotAvailable)
	req := f.bookRequest(slot)
	req.RoomID = maintenance.ID

	_, err := f.svc.Book(context.Background(), account.Patient{AccountID: f.patient.ID}, req)
	assert.ErrorIs(t, err, ErrRoomUnderMaintenance)
}

func TestBookSlotMismatch(t *testing.T) {
	f := newFixture(t)
	other := Room{ID: uuid.New(), ClinicID: f.clinic.ID, Name: "D-300"}
	f.repo.AddRoom(other)

	slot := f.addSlot(t, "2025-06-23", "09:00", SlotAvailable)
	req := f.bookRequest(slot)
	req.RoomID = other.ID

	_, err := f.svc.Book(context.Background(), account.Patient{AccountID: f.patient.ID}, req)
	assert.ErrorIs(t, err, ErrSlotMismatch)
}

func TestBookPastSlot(t *testing.T) {
	f := newFixture(t)
	// 09:00 on the test Monday is an hour before the fixed clock.
	slot := f.addSlot(t, "2025-06-16", "09:00", SlotAvailable)

	_, err := f.svc.Book(context.Background(), account.Patient{AccountID: f.patient.ID}, f.bookRequest(slot))
	assert.ErrorIs(t, err, ErrSlotInPast)
}

func TestBookNoConsultationFee(t *testing.T) {
	f := newFixture(t)
	free := f.doctor
	free.ID = uuid.New()
	free.ConsultationFee = 0
	f.repo.AddDoctor(free)

	slot := &Slot{
		ID: uuid.New(), DoctorID: free.ID, ClinicID: f.clinic.ID, RoomID: f.room.ID,
		Date: "2025-06-23", StartTime: "09:00", Status: SlotAvailable,
	}
	require.NoError(t, f.repo.CreateSlot(context.Background(), slot))

	req := f.bookRequest(slot)
	_, err := f.svc.Book(context.Background(), account.Patient{AccountID: f.patient.ID}, req)
	assert.ErrorIs(t, err, ErrNoConsultationFee)
}

func TestBookUnknownSlot(t *testing.T) {
	f := newFixture(t)

	req := BookRequest{
		DoctorID: f.doctor.ID,
		ClinicID: f.clinic.ID,
		RoomID:   f.room.ID,
		SlotID:   uuid.New(),
		Method:   MethodCard,
	}
	_, err := f.svc.Book(context.Background(), account.Patient{AccountID: f.patient.ID}, req)
	assert.ErrorIs(t, err, ErrSlotNotFound)
}

// failingRepo wraps the memory repository to force appointment creation
// to fail after the slot claim succeeded.
type failingRepo struct {
	*MemoryRepository
}

func (r *failingRepo) CreateAppointment(context.Context, *Appointment) error {
	return errors.New("store exploded")
}

func TestBookCompensatesWhenCreateFails(t *testing.T) {
	f := newFixture(t)
	slot := f.addSlot(t, "2025-06-23", "09:00", SlotAvailable)

	f.svc.repo = &failingRepo{MemoryRepository: f.repo}

	_, err := f.svc.Book(context.Background(), account.Patient{AccountID: f.patient.ID}, f.bookRequest(slot))
	require.Error(t, err)

	// The claim was compensated: the slot is bookable again.
	assert.Equal(t, SlotAvailable, f.mustGetSlot(t, slot.ID).Status)
}

func TestCancelByPatient(t *testing.T) {
	f := newFixture(t)
	slot := f.addSlot(t, "2025-06-23", "09:00", SlotAvailable)
	caller := account.Patient{AccountID: f.patient.ID}

	appt, err := f.svc.Book(context.Background(), caller, f.bookRequest(slot))
	require.NoError(t, err)

	require.NoError(t, f.svc.Cancel(context.Background(), caller, appt.ID))

	got := f.mustGetAppointment(t, appt.ID)
	assert.Equal(t, StatusCancelled, got.Status)
	assert.Contains(t, got.Notes, "Cancelled by patient")

	assert.Equal(t, SlotAvailable, f.mustGetSlot(t, slot.ID).Status)

	records := f.payments.Records()
	require.Len(t, records, 1)
	assert.Equal(t, PaymentRefunded, records[0].Status)
}

func TestCancelTwiceFailsButSlotStaysAvailable(t *testing.T) {
	f := newFixture(t)
	slot := f.addSlot(t, "2025-06-23", "09:00", SlotAvailable)
	caller := account.Patient{AccountID: f.patient.ID}

	appt, err := f.svc.Book(context.Background(), caller, f.bookRequest(slot))
	require.NoError(t, err)

	require.NoError(t, f.svc.Cancel(context.Background(), caller, appt.ID))

	err = f.svc.Cancel(context.Background(), caller, appt.ID)
	assert.ErrorIs(t, err, ErrWrongState)
	assert.Equal(t, SlotAvailable, f.mustGetSlot(t, slot.ID).Status)
}

// releaseFailingRepo lets the cancellation transition commit but fails
// the slot release that follows it.
type releaseFailingRepo struct {
	*MemoryRepository
}

func (r *releaseFailingRepo) ReleaseSlot(context.Context, uuid.UUID) error {
	return errors.New("release exploded")
}

func TestCancelSurvivesReleaseFailure(t *testing.T) {
	f := newFixture(t)
	slot := f.addSlot(t, "2025-06-23", "09:00", SlotAvailable)
	caller := account.Patient{AccountID: f.patient.ID}

	appt, err := f.svc.Book(context.Background(), caller, f.bookRequest(slot))
	require.NoError(t, err)

	f.svc.repo = &releaseFailingRepo{MemoryRepository: f.repo}

	// The cancellation committed, so the caller still gets success; the
	// stranded slot is an operator problem, not a client retry.
	require.NoError(t, f.svc.Cancel(context.Background(), caller, appt.ID))

	assert.Equal(t, StatusCancelled, f.mustGetAppointment(t, appt.ID).Status)
	assert.Equal(t, SlotBooked, f.mustGetSlot(t, slot.ID).Status)

	records := f.payments.Records()
	require.Len(t, records, 1)
	assert.Equal(t, PaymentRefunded, records[0].Status)
}

func TestCancelWrongPatient(t *testing.T) {
	f := newFixture(t)
	slot := f.addSlot(t, "2025-06-23", "09:00", SlotAvailable)

	appt, err := f.svc.Book(context.Background(), account.Patient{AccountID: f.patient.ID}, f.bookRequest(slot))
	require.NoError(t, err)

	stranger := Patient{ID: uuid.New(), Name: "stranger"}
	f.repo.AddPatient(stranger)

	err = f.svc.Cancel(context.Background(), account.Patient{AccountID: stranger.ID}, appt.ID)
	assert.ErrorIs(t, err, ErrNotAllowed)
	assert.Equal(t, SlotBooked, f.mustGetSlot(t, slot.ID).Status)
}

func TestCancelPastAppointmentByPatient(t *testing.T) {
	f := newFixture(t)
	slot := f.addSlot(t, "2025-06-09", "09:00", SlotBooked)

	appt := &Appointment{
		ID: uuid.New(), PatientID: f.patient.ID, DoctorID: f.doctor.ID,
		ClinicID: f.clinic.ID, RoomID: f.room.ID, SlotID: slot.ID, Status: StatusBooked,
	}
	require.NoError(t, f.repo.CreateAppointment(context.Background(), appt))

	err := f.svc.Cancel(context.Background(), account.Patient{AccountID: f.patient.ID}, appt.ID)
	assert.ErrorIs(t, err, ErrAppointmentInPast)
}

func TestCancelPastAppointmentByDoctorAllowed(t *testing.T) {
	f := newFixture(t)
	slot := f.addSlot(t, "2025-06-09", "09:00", SlotBooked)

	appt := &Appointment{
		ID: uuid.New(), PatientID: f.patient.ID, DoctorID: f.doctor.ID,
		ClinicID: f.clinic.ID, RoomID: f.room.ID, SlotID: slot.ID, Status: StatusBooked,
	}
	require.NoError(t, f.repo.CreateAppointment(context.Background(), appt))

	require.NoError(t, f.svc.Cancel(context.Background(), account.Doctor{AccountID: f.doctor.ID}, appt.ID))
	assert.Equal(t, StatusCancelled, f.mustGetAppointment(t, appt.ID).Status)
}

func TestRescheduleSuccess(t *testing.T) {
	f := newFixture(t)
	caller := account.Patient{AccountID: f.patient.ID}

	oldSlot := f.addSlot(t, "2025-06-23", "09:00", SlotAvailable)
	newSlot := f.addSlot(t, "2025-06-30", "10:00", SlotAvailable)

	appt, err := f.svc.Book(context.Background(), caller, f.bookRequest(oldSlot))
	require.NoError(t, err)

	updated, err := f.svc.Reschedule(context.Background(), caller, appt.ID, newSlot.ID)
	require.NoError(t, err)

	assert.Equal(t, newSlot.ID, updated.SlotID)
	assert.Equal(t, StatusBooked, updated.Status)

	assert.Equal(t, SlotAvailable, f.mustGetSlot(t, oldSlot.ID).Status)
	assert.Equal(t, SlotBooked, f.mustGetSlot(t, newSlot.ID).Status)

	// Exactly one live appointment references the new slot, none the old.
	live, err := f.repo.ListLiveAppointmentsBySlots(context.Background(), []uuid.UUID{newSlot.ID})
	require.NoError(t, err)
	require.Len(t, live, 1)
	assert.Equal(t, appt.ID, live[0].ID)

	live, err = f.repo.ListLiveAppointmentsBySlots(context.Background(), []uuid.UUID{oldSlot.ID})
	require.NoError(t, err)
	assert.Empty(t, live)
}

func TestRescheduleSameDayForbidden(t *testing.T) {
	f := newFixture(t)
	caller := account.Patient{AccountID: f.patient.ID}

	// Appointment later today.
	todaySlot := f.addSlot(t, "2025-06-16", "10:30", SlotAvailable)
	newSlot := f.addSlot(t, "2025-06-30", "10:00", SlotAvailable)

	appt, err := f.svc.Book(context.Background(), caller, f.bookRequest(todaySlot))
	require.NoError(t, err)

	_, err = f.svc.Reschedule(context.Background(), caller, appt.ID, newSlot.ID)
	assert.ErrorIs(t, err, ErrRescheduleToday)
}

func TestRescheduleTargetMustBeFutureDate(t *testing.T) {
	f := newFixture(t)
	caller := account.Patient{AccountID: f.patient.ID}

	oldSlot := f.addSlot(t, "2025-06-23", "09:00", SlotAvailable)
	// Later today is still not allowed; the target must be a future date.
	target := f.addSlot(t, "2025-06-16", "16:00", SlotAvailable)

	appt, err := f.svc.Book(context.Background(), caller, f.bookRequest(oldSlot))
	require.NoError(t, err)

	_, err = f.svc.Reschedule(context.Background(), caller, appt.ID, target.ID)
	assert.ErrorIs(t, err, ErrRescheduleNotFuture)
}

func TestRescheduleDifferentDoctor(t *testing.T) {
	f := newFixture(t)
	caller := account.Patient{AccountID: f.patient.ID}

	other := f.doctor
	other.ID = uuid.New()
	f.repo.AddDoctor(other)

	oldSlot := f.addSlot(t, "2025-06-23", "09:00", SlotAvailable)
	foreign := &Slot{
		ID: uuid.New(), DoctorID: other.ID, ClinicID: f.clinic.ID, RoomID: f.room.ID,
		Date: "2025-06-30", StartTime: "10:00", Status: SlotAvailable,
	}
	require.NoError(t, f.repo.CreateSlot(context.Background(), foreign))

	appt, err := f.svc.Book(context.Background(), caller, f.bookRequest(oldSlot))
	require.NoError(t, err)

	_, err = f.svc.Reschedule(context.Background(), caller, appt.ID, foreign.ID)
	assert.ErrorIs(t, err, ErrRescheduleDoctor)
}

func TestRescheduleUnavailableTarget(t *testing.T) {
	f := newFixture(t)
	caller := account.Patient{AccountID: f.patient.ID}

	oldSlot := f.addSlot(t, "2025-06-23", "09:00", SlotAvailable)
	taken := f.addSlot(t, "2025-06-30", "10:00", SlotBooked)

	appt, err := f.svc.Book(context.Background(), caller, f.bookRequest(oldSlot))
	require.NoError(t, err)

	// Losing the target is a bad request, not the booking conflict.
	_, err = f.svc.Reschedule(context.Background(), caller, appt.ID, taken.ID)
	assert.ErrorIs(t, err, ErrRescheduleUnavailable)
	assert.NotErrorIs(t, err, ErrSlotUnavailable)

	// Nothing moved.
	assert.Equal(t, oldSlot.ID, f.mustGetAppointment(t, appt.ID).SlotID)
	assert.Equal(t, SlotBooked, f.mustGetSlot(t, oldSlot.ID).Status)
}

func TestRescheduleTerminalAppointment(t *testing.T) {
	f := newFixture(t)
	caller := account.Patient{AccountID: f.patient.ID}

	oldSlot := f.addSlot(t, "2025-06-23", "09:00", SlotAvailable)
	newSlot := f.addSlot(t, "2025-06-30", "10:00", SlotAvailable)

	appt, err := f.svc.Book(context.Background(), caller, f.bookRequest(oldSlot))
	require.NoError(t, err)
	require.NoError(t, f.svc.Cancel(context.Background(), caller, appt.ID))

	_, err = f.svc.Reschedule(context.Background(), caller, appt.ID, newSlot.ID)
	assert.ErrorIs(t, err, ErrWrongState)
}

func TestCompleteByDoctor(t *testing.T) {
	f := newFixture(t)
	slot := f.addSlot(t, "2025-06-23", "09:00", SlotAvailable)

	appt, err := f.svc.Book(context.Background(), account.Patient{AccountID: f.patient.ID}, f.bookRequest(slot))
	require.NoError(t, err)

	require.NoError(t, f.svc.Complete(context.Background(), account.Doctor{AccountID: f.doctor.ID}, appt.ID))

	assert.Equal(t, StatusCompleted, f.mustGetAppointment(t, appt.ID).Status)
	// Completion has no slot side effect.
	assert.Equal(t, SlotBooked, f.mustGetSlot(t, slot.ID).Status)
}

func TestCompleteWrongDoctor(t *testing.T) {
	f := newFixture(t)
	slot := f.addSlot(t, "2025-06-23", "09:00", SlotAvailable)

	appt, err := f.svc.Book(context.Background(), account.Patient{AccountID: f.patient.ID}, f.bookRequest(slot))
	require.NoError(t, err)

	err = f.svc.Complete(context.Background(), account.Doctor{AccountID: uuid.New()}, appt.ID)
	assert.ErrorIs(t, err, ErrNotAllowed)
}

func TestCompleteFromTerminalState(t *testing.T) {
	f := newFixture(t)
	caller := account.Patient{AccountID: f.patient.ID}
	slot := f.addSlot(t, "2025-06-23", "09:00", SlotAvailable)

	appt, err := f.svc.Book(context.Background(), caller, f.bookRequest(slot))
	require.NoError(t, err)
	require.NoError(t, f.svc.Cancel(context.Background(), caller, appt.ID))

	err = f.svc.Complete(context.Background(), account.Doctor{AccountID: f.doctor.ID}, appt.ID)
	assert.ErrorIs(t, err, ErrWrongState)
}

func TestGetAppointmentAuthorization(t *testing.T) {
	f := newFixture(t)
	slot := f.addSlot(t, "2025-06-23", "09:00", SlotAvailable)

	appt, err := f.svc.Book(context.Background(), account.Patient{AccountID: f.patient.ID}, f.bookRequest(slot))
	require.NoError(t, err)

	_, err = f.svc.GetAppointment(context.Background(), account.Patient{AccountID: f.patient.ID}, appt.ID)
	assert.NoError(t, err)

	_, err = f.svc.GetAppointment(context.Background(), account.Doctor{AccountID: f.doctor.ID}, appt.ID)
	assert.NoError(t, err)

	_, err = f.svc.GetAppointment(context.Background(), account.Patient{AccountID: uuid.New()}, appt.ID)
	assert.ErrorIs(t, err, ErrNotAllowed)

	_, err = f.svc.GetAppointment(context.Background(), account.Doctor{AccountID: uuid.New()}, appt.ID)
	assert.ErrorIs(t, err, ErrNotAllowed)
}

func TestListMyAppointmentsPatientOnly(t *testing.T) {
	f := newFixture(t)
	slot := f.addSlot(t, "2025-06-23", "09:00", SlotAvailable)

	_, err := f.svc.Book(context.Background(), account.Patient{AccountID: f.patient.ID}, f.bookRequest(slot))
	require.NoError(t, err)

	appts, err := f.svc.ListMyAppointments(context.Background(), account.Patient{AccountID: f.patient.ID}, 0, 0)
	require.NoError(t, err)
	assert.Len(t, appts, 1)

	_, err = f.svc.ListMyAppointments(context.Background(), account.Doctor{AccountID: f.doctor.ID}, 0, 0)
	assert.ErrorIs(t, err, ErrNotAllowed)
}
