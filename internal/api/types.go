package api

import (
	"time"

	"github.com/google/uuid"
)

type CreateAppointmentRequest struct {
	DoctorID        string  `json:"doctorId"`
	PatientID       string  `json:"patientId"`
	Date            string  `json:"date"`
	Type            string  `json:"type"`
	Insurance       bool    `json:"insurance"`
	InsurancePlanID *string `json:"insurancePlanId,omitempty"`
}

// UpdateAppointmentRequest leaves absent keys untouched. A null or empty
// insurancePlanId removes the plan.
type UpdateAppointmentRequest struct {
	DoctorID        *string `json:"doctorId,omitempty"`
	PatientID       *string `json:"patientId,omitempty"`
	Date            *string `json:"date,omitempty"`
	Type            *string `json:"type,omitempty"`
	Insurance       *bool   `json:"insurance,omitempty"`
	InsurancePlanID *string `json:"insurancePlanId,omitempty"`
}

type RefResponse struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

type AppointmentResponse struct {
	ID              uuid.UUID   `json:"id"`
	DoctorID        uuid.UUID   `json:"doctorId"`
	PatientID       uuid.UUID   `json:"patientId"`
	Date            string      `json:"date"`
	Type            string      `json:"type"`
	Insurance       bool        `json:"insurance"`
	InsurancePlanID *uuid.UUID  `json:"insurancePlanId,omitempty"`
	Doctor          RefResponse `json:"doctor"`
	Patient         RefResponse `json:"patient"`
	CreatedAt       time.Time   `json:"createdAt"`
	UpdatedAt       time.Time   `json:"updatedAt"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
