package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/metrics"
)

const (
	msgInvalidBody   = "Corpo da requisição inválido"
	msgInternalError = "Erro interno do servidor"
	msgUnauthorized  = "Token de acesso inválido ou ausente"
	msgForbidden     = "Acesso não permitido para este perfil"
	msgRouteNotFound = "Recurso não encontrado"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

// classify maps a scheduler error to its HTTP status and metrics outcome.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, appointment.ErrMalformedDate),
		errors.Is(err, appointment.ErrPastDate),
		errors.Is(err, appointment.ErrInvalidKind):
		return http.StatusBadRequest, metrics.OutcomeInvalid
	case errors.Is(err, appointment.ErrNotFound):
		return http.StatusNotFound, metrics.OutcomeNotFound
	case errors.Is(err, appointment.ErrConflict),
		errors.Is(err, appointment.ErrSlotBeingBooked):
		return http.StatusConflict, metrics.OutcomeConflict
	default:
		return http.StatusInternalServerError, metrics.OutcomeError
	}
}

// handleServiceError writes the error body for err. Unexpected errors are
// logged and replaced by a generic message.
func handleServiceError(w http.ResponseWriter, r *http.Request, operation string, err error) {
	status, outcome := classify(err)
	metrics.RecordAppointmentOperation(operation, outcome)

	logger := zerolog.Ctx(r.Context())
	if status == http.StatusInternalServerError {
		logger.Error().
			Err(err).
			Str("operation", operation).
			Str("user_id", UserIDFromContext(r.Context())).
			Msg("appointment operation failed")
		writeError(w, status, msgInternalError)
		return
	}

	logger.Debug().
		Err(err).
		Str("operation", operation).
		Str("user_id", UserIDFromContext(r.Context())).
		Int("status", status).
		Msg("appointment request rejected")
	writeError(w, status, err.Error())
}
