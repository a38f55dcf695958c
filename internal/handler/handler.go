package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"sgl-admin/internal/middleware"
	"sgl-admin/internal/model"

	"github.com/rs/zerolog"
)

// maxBodyBytes caps JSON request bodies. Bulk code lists are the largest payloads.
const maxBodyBytes = 8 << 20

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Log the error but don't expose it to the client
		return
	}
}

// statusFor maps an error kind to its HTTP status.
func statusFor(kind model.ErrorKind) int {
	switch kind {
	case model.KindValidation:
		return http.StatusBadRequest
	case model.KindAuth:
		return http.StatusUnauthorized
	case model.KindNotFound:
		return http.StatusNotFound
	case model.KindConflict:
		return http.StatusConflict
	case model.KindState:
		return http.StatusUnprocessableEntity
	case model.KindTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError writes the error response for err. Domain errors keep their
// code and message; anything else is reported as an internal error.
func writeError(w http.ResponseWriter, r *http.Request, err error, logger zerolog.Logger) {
	var de *model.DomainError
	if !errors.As(err, &de) {
		logger.Error().Err(err).Str("path", r.URL.Path).Msg("handler error")
		writeErrorCode(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "internal server error")
		return
	}

	status := statusFor(de.Kind)
	event := logger.Warn()
	if status >= http.StatusInternalServerError {
		event = logger.Error().Err(err)
	}
	event.Str("error_code", de.Code).Int("status", status).Str("path", r.URL.Path).Msg("request rejected")

	writeErrorCode(w, r, status, de.Code, de.Message)
}

// writeErrorCode writes an error response with an explicit code and message.
func writeErrorCode(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, model.ErrorResponse{
		Error:         code,
		Message:       message,
		CorrelationID: middleware.CorrelationIDFromContext(r.Context()),
	})
}

// decodeJSON decodes the request body into v, writing a 400 response on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any, logger zerolog.Logger) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		logger.Debug().Err(err).Str("path", r.URL.Path).Msg("invalid request body")
		writeErrorCode(w, r, http.StatusBadRequest, model.ErrCodeInvalidJSON, "invalid request body")
		return false
	}
	return true
}
