package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/medbook/clinic-booking/internal/account"
	"github.com/medbook/clinic-booking/internal/booking"
)

var validate = validator.New()

func decodeAndValidate(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return errors.New("could not parse JSON body")
	}
	return validate.Struct(dst)
}

func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	return uuid.Parse(chi.URLParam(r, name))
}

func generateSlotsHandler(svc *booking.Service, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, err := pathUUID(r, "doctorID")
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctorID must be a valid UUID")
			return
		}

		caller, _ := CallerFromContext(r.Context())
		if doc, ok := caller.(account.Doctor); !ok || doc.ID() != doctorID {
			writeError(w, http.StatusForbidden, "forbidden", "only the doctor may generate their own slots")
			return
		}

		var req GenerateSlotsRequest
		if err := decodeAndValidate(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
			return
		}

		created, err := svc.GenerateSlots(r.Context(), doctorID, req.FromDate, req.ToDate)
		if err != nil {
			handleServiceError(w, r, log, err)
			return
		}

		writeJSON(w, http.StatusOK, GenerateSlotsResponse{CreatedCount: created})
	}
}

func listSlotsHandler(svc *booking.Service, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, err := pathUUID(r, "doctorID")
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctorID must be a valid UUID")
			return
		}

		from := r.URL.Query().Get("from")
		to := r.URL.Query().Get("to")
		if from == "" || to == "" {
			writeError(w, http.StatusBadRequest, "missing_range", "from and to query parameters are required")
			return
		}

		slots, err := svc.ListAvailableSlots(r.Context(), doctorID, from, to)
		if err != nil {
			handleServiceError(w, r, log, err)
			return
		}

		resp := make([]SlotResponse, 0, len(slots))
		for _, s := range slots {
			resp = append(resp, toSlotResponse(s))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func updateScheduleHandler(svc *booking.Service, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, err := pathUUID(r, "doctorID")
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctorID must be a valid UUID")
			return
		}

		var req UpdateScheduleRequest
		if err := decodeAndValidate(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
			return
		}

		rows := make([]booking.ScheduleRow, 0, len(req.Rows))
		for _, row := range req.Rows {
			clinicID, err := uuid.Parse(row.ClinicID)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_clinic_id", "clinic_id must be a valid UUID")
				return
			}
			var roomID *uuid.UUID
			if row.RoomID != nil {
				id, err := uuid.Parse(*row.RoomID)
				if err != nil {
					writeError(w, http.StatusBadRequest, "invalid_room_id", "room_id must be a valid UUID")
					return
				}
				roomID = &id
			}
			rows = append(rows, booking.ScheduleRow{
				DayOfWeek:           row.DayOfWeek,
				ClinicID:            clinicID,
				RoomID:              roomID,
				StartTime:           row.StartTime,
				EndTime:             row.EndTime,
				SlotDurationMinutes: row.SlotDurationMinutes,
				IsActive:            row.IsActive,
			})
		}

		caller, _ := CallerFromContext(r.Context())
		if err := svc.UpdateSchedule(r.Context(), caller, doctorID, rows); err != nil {
			handleServiceError(w, r, log, err)
			return
		}

		writeJSON(w, http.StatusOK, OKResponse{OK: true})
	}
}

func bookHandler(svc *booking.Service, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req BookRequest
		if err := decodeAndValidate(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
			return
		}

		doctorID, err1 := uuid.Parse(req.DoctorID)
		clinicID, err2 := uuid.Parse(req.ClinicID)
		roomID, err3 := uuid.Parse(req.RoomID)
		slotID, err4 := uuid.Parse(req.SlotID)
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
			writeError(w, http.StatusBadRequest, "invalid_id", "all ids must be valid UUIDs")
			return
		}

		caller, _ := CallerFromContext(r.Context())
		appt, err := svc.Book(r.Context(), caller, booking.BookRequest{
			DoctorID: doctorID,
			ClinicID: clinicID,
			RoomID:   roomID,
			SlotID:   slotID,
			Method:   booking.PaymentMethod(req.Method),
		})
		if err != nil {
			handleServiceError(w, r, log, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
	}
}

func cancelAppointmentHandler(svc *booking.Service, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathUUID(r, "id")
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		caller, _ := CallerFromContext(r.Context())
		if err := svc.Cancel(r.Context(), caller, id); err != nil {
			handleServiceError(w, r, log, err)
			return
		}

		writeJSON(w, http.StatusOK, OKResponse{OK: true})
	}
}

func rescheduleAppointmentHandler(svc *booking.Service, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathUUID(r, "id")
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		var req RescheduleRequest
		if err := decodeAndValidate(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
			return
		}
		newSlotID, err := uuid.Parse(req.NewSlotID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_slot_id", "new_slot_id must be a valid UUID")
			return
		}

		caller, _ := CallerFromContext(r.Context())
		appt, err := svc.Reschedule(r.Context(), caller, id, newSlotID)
		if err != nil {
			handleServiceError(w, r, log, err)
			return
		}

		slot, err := svc.GetSlot(r.Context(), appt.SlotID)
		if err != nil {
			handleServiceError(w, r, log, err)
			return
		}

		writeJSON(w, http.StatusOK, RescheduleResponse{
			NewDate: slot.Date,
			NewTime: slot.StartTime,
		})
	}
}

func completeAppointmentHandler(svc *booking.Service, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathUUID(r, "id")
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		caller, _ := CallerFromContext(r.Context())
		if err := svc.Complete(r.Context(), caller, id); err != nil {
			handleServiceError(w, r, log, err)
			return
		}

		writeJSON(w, http.StatusOK, OKResponse{OK: true})
	}
}

func getAppointmentHandler(svc *booking.Service, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathUUID(r, "id")
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		caller, _ := CallerFromContext(r.Context())
		appt, err := svc.GetAppointment(r.Context(), caller, id)
		if err != nil {
			handleServiceError(w, r, log, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func listAppointmentsHandler(svc *booking.Service, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

		caller, _ := CallerFromContext(r.Context())
		appts, err := svc.ListMyAppointments(r.Context(), caller, limit, offset)
		if err != nil {
			handleServiceError(w, r, log, err)
			return
		}

		resp := make([]AppointmentResponse, 0, len(appts))
		for i := range appts {
			resp = append(resp, toAppointmentResponse(&appts[i]))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func sweepHandler(svc *booking.Service, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		updated, err := svc.SweepExpired(r.Context())
		if err != nil {
			handleServiceError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, SweepResponse{UpdatedCount: updated})
	}
}

// handleServiceError maps service errors onto the HTTP error taxonomy:
// validation 400, authorization 403, not-found 404, conflict 409,
// anything else 500 with the detail kept server-side.
func handleServiceError(w http.ResponseWriter, r *http.Request, log *zap.Logger, err error) {
	switch {
	case errors.Is(err, booking.ErrInvalidRange),
		errors.Is(err, booking.ErrInvalidSchedule),
		errors.Is(err, booking.ErrInvalidMethod),
		errors.Is(err, booking.ErrRoomUnderMaintenance),
		errors.Is(err, booking.ErrSlotMismatch),
		errors.Is(err, booking.ErrSlotInPast),
		errors.Is(err, booking.ErrNoConsultationFee),
		errors.Is(err, booking.ErrWrongState),
		errors.Is(err, booking.ErrAppointmentInPast),
		errors.Is(err, booking.ErrRescheduleToday),
		errors.Is(err, booking.ErrRescheduleDoctor),
		errors.Is(err, booking.ErrRescheduleNotFuture),
		errors.Is(err, booking.ErrRescheduleUnavailable):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())

	case errors.Is(err, booking.ErrNotAllowed):
		writeError(w, http.StatusForbidden, "forbidden", err.Error())

	case errors.Is(err, booking.ErrPatientNotFound),
		errors.Is(err, booking.ErrDoctorNotFound),
		errors.Is(err, booking.ErrClinicNotFound),
		errors.Is(err, booking.ErrRoomNotFound),
		errors.Is(err, booking.ErrSlotNotFound),
		errors.Is(err, booking.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())

	case errors.Is(err, booking.ErrSlotUnavailable),
		errors.Is(err, booking.ErrSlotTaken):
		writeError(w, http.StatusConflict, "slot_unavailable", err.Error())

	case errors.Is(err, booking.ErrSlotBeingBooked):
		writeError(w, http.StatusConflict, "slot_being_booked", "slot is currently being booked, please retry shortly")

	default:
		log.Error("unexpected error handling request",
			zap.String("path", r.URL.Path),
			zap.String("request_id", GetRequestID(r.Context())),
			zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "something went wrong")
	}
}
