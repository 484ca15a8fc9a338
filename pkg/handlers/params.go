package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ParseUserID extracts and validates the user ID from the request path.
// Returns the id and true on success, or "" and false after writing an error response.
// Expects path parameter: uid
func ParseUserID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (string, bool) {
	return parseID(w, r, "uid", "invalid_user_id", "Invalid user ID format", logger)
}

// ParseDeviceID extracts and validates the device ID from the request path.
// Expects path parameter: did
func ParseDeviceID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (string, bool) {
	return parseID(w, r, "did", "invalid_device_id", "Invalid device ID format", logger)
}

// ParseLocationID extracts and validates the location ID from the request path.
// Expects path parameter: lid
func ParseLocationID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (string, bool) {
	return parseID(w, r, "lid", "invalid_location_id", "Invalid location ID format", logger)
}

// ParseSignalID extracts and validates the signal ID from the request path.
// Expects path parameter: sid
func ParseSignalID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (string, bool) {
	return parseID(w, r, "sid", "invalid_signal_id", "Invalid signal ID format", logger)
}

// parseID accepts only UUIDs, which is what every graph store backend issues.
// The canonical lowercase form is returned.
func parseID(w http.ResponseWriter, r *http.Request, pathParam, errorCode, errorMessage string, logger *zap.Logger) (string, bool) {
	id, err := uuid.Parse(r.PathValue(pathParam))
	if err != nil {
		writeBadRequest(w, logger, errorCode, errorMessage)
		return "", false
	}
	return id.String(), true
}

// queryParams reads optional query string values, remembering the first error.
type queryParams struct {
	r   *http.Request
	err error
}

func (q *queryParams) intValue(name string, def int) int {
	raw := q.r.URL.Query().Get(name)
	if raw == "" || q.err != nil {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		q.err = fmt.Errorf("%s must be an integer", name)
		return def
	}
	return v
}

func (q *queryParams) floatValue(name string, def float64) float64 {
	raw := q.r.URL.Query().Get(name)
	if raw == "" || q.err != nil {
		return def
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		q.err = fmt.Errorf("%s must be a number", name)
		return def
	}
	return v
}

// timeValue parses an RFC 3339 timestamp; absent values return nil.
func (q *queryParams) timeValue(name string) *time.Time {
	raw := q.r.URL.Query().Get(name)
	if raw == "" || q.err != nil {
		return nil
	}
	v, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		q.err = fmt.Errorf("%s must be an RFC 3339 timestamp", name)
		return nil
	}
	return &v
}

func (q *queryParams) stringValue(name string) string {
	return q.r.URL.Query().Get(name)
}

// check writes a 400 when any parameter failed to parse.
func (q *queryParams) check(w http.ResponseWriter, logger *zap.Logger) bool {
	if q.err != nil {
		writeBadRequest(w, logger, "invalid_query_parameter", q.err.Error())
		return false
	}
	return true
}
