package booking

import "errors"

var (
	ErrPatientNotFound     = errors.New("patient not found")
	ErrDoctorNotFound      = errors.New("doctor not found")
	ErrClinicNotFound      = errors.New("clinic not found")
	ErrRoomNotFound        = errors.New("room not found")
	ErrSlotNotFound        = errors.New("slot not found")
	ErrAppointmentNotFound = errors.New("appointment not found")

	// ErrDuplicateSlot signals a unique violation on the slot identity
	// tuple. Generation treats it as an idempotent no-op.
	ErrDuplicateSlot = errors.New("slot already exists")

	// ErrSlotUnavailable means the conditional claim matched zero rows:
	// the slot was already booked, most likely by a concurrent caller.
	ErrSlotUnavailable = errors.New("slot is no longer available")

	// ErrSlotBeingBooked means the per-slot lock is held by another
	// in-flight booking attempt.
	ErrSlotBeingBooked = errors.New("slot is currently being booked, please retry")

	// ErrSlotTaken signals the one-live-appointment-per-slot constraint
	// fired on appointment creation.
	ErrSlotTaken = errors.New("slot already has a live appointment")

	ErrInvalidRange    = errors.New("invalid date range")
	ErrInvalidSchedule = errors.New("invalid schedule")
	ErrInvalidMethod   = errors.New("invalid payment method")

	ErrRoomUnderMaintenance = errors.New("room is under maintenance")
	ErrSlotMismatch         = errors.New("slot does not belong to the requested doctor, clinic and room")
	ErrSlotInPast           = errors.New("slot time has already passed")
	ErrNoConsultationFee    = errors.New("doctor has no consultation fee configured")

	ErrNotAllowed = errors.New("caller is not allowed to perform this operation")

	// ErrWrongState rejects a transition from a state the operation does
	// not accept (e.g. cancelling a completed appointment).
	ErrWrongState = errors.New("appointment is not in a valid state for this operation")

	ErrAppointmentInPast   = errors.New("appointment time has already passed")
	ErrRescheduleToday     = errors.New("same-day reschedule is not allowed")
	ErrRescheduleDoctor    = errors.New("new slot belongs to a different doctor")
	ErrRescheduleNotFuture = errors.New("new slot must be on a future date")

	// ErrRescheduleUnavailable is an invalid reschedule target, unlike
	// the booking conflict ErrSlotUnavailable: losing the claim race on
	// a reschedule is a bad target, not a retryable conflict.
	ErrRescheduleUnavailable = errors.New("new slot is not available")
)
