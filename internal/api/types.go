package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/medbook/clinic-booking/internal/booking"
)

type GenerateSlotsRequest struct {
	FromDate string `json:"from_date" validate:"required,datetime=2006-01-02"`
	ToDate   string `json:"to_date" validate:"required,datetime=2006-01-02"`
}

type GenerateSlotsResponse struct {
	CreatedCount int `json:"created_count"`
}

type ScheduleRowRequest struct {
	DayOfWeek           int     `json:"day_of_week" validate:"min=0,max=6"`
	ClinicID            string  `json:"clinic_id" validate:"required,uuid4"`
	RoomID              *string `json:"room_id,omitempty" validate:"omitempty,uuid4"`
	StartTime           string  `json:"start_time" validate:"required"`
	EndTime             string  `json:"end_time" validate:"required"`
	SlotDurationMinutes int     `json:"slot_duration_minutes" validate:"required,gt=0"`
	IsActive            bool    `json:"is_active"`
}

type UpdateScheduleRequest struct {
	Rows []ScheduleRowRequest `json:"rows" validate:"required,dive"`
}

type BookRequest struct {
	DoctorID string `json:"doctor_id" validate:"required,uuid4"`
	ClinicID string `json:"clinic_id" validate:"required,uuid4"`
	RoomID   string `json:"room_id" validate:"required,uuid4"`
	SlotID   string `json:"slot_id" validate:"required,uuid4"`
	Method   string `json:"method" validate:"required,oneof=CASH CARD ONLINE"`
}

type RescheduleRequest struct {
	NewSlotID string `json:"new_slot_id" validate:"required,uuid4"`
}

type RescheduleResponse struct {
	NewDate string `json:"new_date"`
	NewTime string `json:"new_time"`
}

type PaymentResponse struct {
	Amount        int       `json:"amount"`
	Method        string    `json:"method"`
	TransactionID string    `json:"transaction_id"`
	Status        string    `json:"status"`
	PaidAt        time.Time `json:"paid_at"`
}

type AppointmentResponse struct {
	ID        uuid.UUID       `json:"id"`
	PatientID uuid.UUID       `json:"patient_id"`
	DoctorID  uuid.UUID       `json:"doctor_id"`
	ClinicID  uuid.UUID       `json:"clinic_id"`
	RoomID    uuid.UUID       `json:"room_id"`
	SlotID    uuid.UUID       `json:"slot_id"`
	Status    string          `json:"status"`
	Payment   PaymentResponse `json:"payment"`
	Notes     []string        `json:"notes,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

type SlotResponse struct {
	ID        uuid.UUID `json:"id"`
	DoctorID  uuid.UUID `json:"doctor_id"`
	ClinicID  uuid.UUID `json:"clinic_id"`
	RoomID    uuid.UUID `json:"room_id"`
	Date      string    `json:"date"`
	StartTime string    `json:"start_time"`
	Status    string    `json:"status"`
}

type SweepResponse struct {
	UpdatedCount int `json:"updated_count"`
}

type OKResponse struct {
	OK bool `json:"ok"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func toAppointmentResponse(a *booking.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:        a.ID,
		PatientID: a.PatientID,
		DoctorID:  a.DoctorID,
		ClinicID:  a.ClinicID,
		RoomID:    a.RoomID,
		SlotID:    a.SlotID,
		Status:    string(a.Status),
		Payment: PaymentResponse{
			Amount:        a.Payment.Amount,
			Method:        string(a.Payment.Method),
			TransactionID: a.Payment.TransactionID,
			Status:        string(a.Payment.Status),
			PaidAt:        a.Payment.PaidAt,
		},
		Notes:     a.Notes,
		CreatedAt: a.CreatedAt,
	}
}

func toSlotResponse(s booking.Slot) SlotResponse {
	return SlotResponse{
		ID:        s.ID,
		DoctorID:  s.DoctorID,
		ClinicID:  s.ClinicID,
		RoomID:    s.RoomID,
		Date:      s.Date,
		StartTime: s.StartTime,
		Status:    string(s.Status),
	}
}
