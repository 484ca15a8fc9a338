package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/whereabouts/pkg/apperrors"
	"github.com/ekaya-inc/whereabouts/pkg/locking"
)

// ApiResponse wraps data in the envelope every JSON endpoint returns.
type ApiResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

// ErrorResponse writes a JSON error response and returns any encoding error.
func ErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(map[string]string{
		"error":   errorCode,
		"message": message,
	})
}

// WriteJSON writes a JSON response and returns any encoding error.
func WriteJSON(w http.ResponseWriter, statusCode int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	if statusCode != http.StatusOK {
		w.WriteHeader(statusCode)
	}
	return json.NewEncoder(w).Encode(data)
}

// ErrorStatus maps a service error to an HTTP status and a stable error code.
func ErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, apperrors.ErrInvalidReference):
		return http.StatusNotFound, "invalid_reference"
	case errors.Is(err, apperrors.ErrAmbiguousResolution):
		return http.StatusBadRequest, "ambiguous_resolution"
	case errors.Is(err, apperrors.ErrDuplicateRelationship):
		return http.StatusConflict, "duplicate_relationship"
	case errors.Is(err, apperrors.ErrAlreadyInLocation):
		return http.StatusConflict, "already_in_location"
	case errors.Is(err, apperrors.ErrConstraintViolation):
		return http.StatusConflict, "constraint_violation"
	case errors.Is(err, apperrors.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, locking.ErrLockTimeout):
		return http.StatusServiceUnavailable, "lock_timeout"
	case errors.Is(err, apperrors.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, "store_unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// writeServiceError logs err and writes the mapped error response.
// Caller mistakes log at DEBUG, backend trouble at ERROR.
func writeServiceError(w http.ResponseWriter, logger *zap.Logger, msg string, err error, fields ...zap.Field) {
	status, code := ErrorStatus(err)
	fields = append(fields, zap.Error(err))
	if status >= http.StatusInternalServerError {
		logger.Error(msg, fields...)
	} else {
		logger.Debug(msg, fields...)
	}

	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "Internal server error"
	}
	if err := ErrorResponse(w, status, code, message); err != nil {
		logger.Error("Failed to write error response", zap.Error(err))
	}
}

func writeBadRequest(w http.ResponseWriter, logger *zap.Logger, code, message string) {
	if err := ErrorResponse(w, http.StatusBadRequest, code, message); err != nil {
		logger.Error("Failed to write error response", zap.Error(err))
	}
}

func writeData(w http.ResponseWriter, logger *zap.Logger, status int, data any) {
	if err := WriteJSON(w, status, ApiResponse{Success: true, Data: data}); err != nil {
		logger.Error("Failed to write response", zap.Error(err))
	}
}

// changedResponse reports whether a relationship mutation took effect.
type changedResponse struct {
	Changed bool `json:"changed"`
}

// decodeBody decodes a JSON request body, writing a 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, logger *zap.Logger, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeBadRequest(w, logger, "invalid_request", "Invalid request body")
		return false
	}
	return true
}
