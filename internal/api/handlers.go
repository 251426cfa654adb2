package api

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/metrics"
)

const (
	opCreate = "create"
	opList   = "list"
	opGet    = "get"
	opUpdate = "update"
	opDelete = "delete"
)

func createAppointmentHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			metrics.RecordAppointmentOperation(opCreate, metrics.OutcomeInvalid)
			writeError(w, http.StatusBadRequest, msgInvalidBody)
			return
		}

		view, err := svc.Create(r.Context(), appointment.CreateInput{
			DoctorID:        parseRef(req.DoctorID),
			PatientID:       parseRef(req.PatientID),
			Date:            req.Date,
			Kind:            appointment.Kind(req.Type),
			Insurance:       req.Insurance,
			InsurancePlanID: parseOptionalRef(req.InsurancePlanID),
		})
		if err != nil {
			handleServiceError(w, r, opCreate, err)
			return
		}

		metrics.RecordAppointmentOperation(opCreate, metrics.OutcomeOK)
		writeJSON(w, http.StatusCreated, toResponse(*view))
	}
}

func listAppointmentsHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		var f appointment.Filter
		if v := q.Get("type"); v != "" {
			kind := appointment.Kind(v)
			f.Kind = &kind
		}
		if v := q.Get("doctorId"); v != "" {
			id := parseRef(v)
			f.DoctorID = &id
		}
		if v := q.Get("patientId"); v != "" {
			id := parseRef(v)
			f.PatientID = &id
		}

		views, err := svc.List(r.Context(), f)
		if err != nil {
			handleServiceError(w, r, opList, err)
			return
		}

		resp := make([]AppointmentResponse, 0, len(views))
		for _, v := range views {
			resp = append(resp, toResponse(v))
		}

		metrics.RecordAppointmentOperation(opList, metrics.OutcomeOK)
		writeJSON(w, http.StatusOK, resp)
	}
}

func getAppointmentHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := parseRef(chi.URLParam(r, "id"))

		view, err := svc.Get(r.Context(), id)
		if err != nil {
			handleServiceError(w, r, opGet, err)
			return
		}

		metrics.RecordAppointmentOperation(opGet, metrics.OutcomeOK)
		writeJSON(w, http.StatusOK, toResponse(*view))
	}
}

func updateAppointmentHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := parseRef(chi.URLParam(r, "id"))

		body, err := io.ReadAll(r.Body)
		if err != nil {
			metrics.RecordAppointmentOperation(opUpdate, metrics.OutcomeInvalid)
			writeError(w, http.StatusBadRequest, msgInvalidBody)
			return
		}

		var req UpdateAppointmentRequest
		var keys map[string]json.RawMessage
		if err := json.Unmarshal(body, &req); err != nil {
			metrics.RecordAppointmentOperation(opUpdate, metrics.OutcomeInvalid)
			writeError(w, http.StatusBadRequest, msgInvalidBody)
			return
		}
		_ = json.Unmarshal(body, &keys)

		in := appointment.UpdateInput{
			DoctorID:        parseOptionalRef(req.DoctorID),
			PatientID:       parseOptionalRef(req.PatientID),
			Date:            req.Date,
			Insurance:       req.Insurance,
			InsurancePlanID: parseOptionalRef(req.InsurancePlanID),
		}
		// An explicit null or "" plan id removes the plan; an absent key
		// keeps it.
		if _, present := keys["insurancePlanId"]; present && in.InsurancePlanID == nil {
			in.ClearInsurancePlan = true
		}
		if req.Type != nil {
			kind := appointment.Kind(*req.Type)
			in.Kind = &kind
		}

		view, err := svc.Update(r.Context(), id, in)
		if err != nil {
			handleServiceError(w, r, opUpdate, err)
			return
		}

		metrics.RecordAppointmentOperation(opUpdate, metrics.OutcomeOK)
		writeJSON(w, http.StatusOK, toResponse(*view))
	}
}

func deleteAppointmentHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := parseRef(chi.URLParam(r, "id"))

		if err := svc.Delete(r.Context(), id); err != nil {
			handleServiceError(w, r, opDelete, err)
			return
		}

		metrics.RecordAppointmentOperation(opDelete, metrics.OutcomeOK)
		w.WriteHeader(http.StatusNoContent)
	}
}

// parseRef returns uuid.Nil for anything that is not a UUID. No record has
// the nil ID, so a malformed reference surfaces as not found at the point
// where the scheduler looks it up.
func parseRef(s string) uuid.UUID {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil
	}
	return id
}

func parseOptionalRef(s *string) *uuid.UUID {
	if s == nil || *s == "" {
		return nil
	}
	id := parseRef(*s)
	return &id
}

func toResponse(v appointment.View) AppointmentResponse {
	return AppointmentResponse{
		ID:              v.ID,
		DoctorID:        v.DoctorID,
		PatientID:       v.PatientID,
		Date:            v.Date,
		Type:            string(v.Kind),
		Insurance:       v.Insurance,
		InsurancePlanID: v.InsurancePlanID,
		Doctor:          RefResponse{ID: v.Doctor.ID, Name: v.Doctor.Name},
		Patient:         RefResponse{ID: v.Patient.ID, Name: v.Patient.Name},
		CreatedAt:       v.CreatedAt,
		UpdatedAt:       v.UpdatedAt,
	}
}
