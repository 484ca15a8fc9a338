package tools

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ekaya-inc/whereabouts/pkg/apperrors"
)

// ErrorResponse represents a structured error in tool results.
// Errors the caller can act on (bad ids, ambiguous signals, out-of-range
// arguments) are returned this way so the client sees them as tool output
// instead of a protocol failure.
type ErrorResponse struct {
	Error   bool   `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// NewErrorResult creates a tool result containing a structured error.
//
// Do NOT use this for backend failures (store unavailable, lock timeouts);
// those are returned as Go errors.
//
// Example:
//
//	if userID == "" {
//	    return NewErrorResult("invalid_parameters", "user_id is required"), nil
//	}
func NewErrorResult(code, message string) *mcp.CallToolResult {
	return NewErrorResultWithDetails(code, message, nil)
}

// NewErrorResultWithDetails creates an error result with additional context.
func NewErrorResultWithDetails(code, message string, details any) *mcp.CallToolResult {
	resp := ErrorResponse{
		Error:   true,
		Code:    code,
		Message: message,
		Details: details,
	}
	jsonBytes, _ := json.Marshal(resp)
	result := mcp.NewToolResultText(string(jsonBytes))
	result.IsError = true
	return result
}

// inputErrors are the service errors caused by the arguments rather than the backend.
var inputErrors = []struct {
	err  error
	code string
}{
	{apperrors.ErrInvalidReference, "invalid_reference"},
	{apperrors.ErrAmbiguousResolution, "ambiguous_resolution"},
	{apperrors.ErrConstraintViolation, "constraint_violation"},
	{apperrors.ErrDuplicateRelationship, "duplicate_relationship"},
	{apperrors.ErrAlreadyInLocation, "already_in_location"},
}

// InputErrorCode returns the tool error code for err, or "" when err is not
// something the caller can fix.
func InputErrorCode(err error) string {
	for _, ie := range inputErrors {
		if errors.Is(err, ie.err) {
			return ie.code
		}
	}
	return ""
}

// IsInputError reports whether err was caused by tool arguments.
// Input errors are logged at DEBUG, not ERROR.
func IsInputError(err error) bool {
	return InputErrorCode(err) != ""
}

// serviceResult converts a service error into the tool's return values:
// a structured error result for input errors, a Go error otherwise.
func serviceResult(op string, err error) (*mcp.CallToolResult, error) {
	if code := InputErrorCode(err); code != "" {
		return NewErrorResult(code, err.Error()), nil
	}
	return nil, fmt.Errorf("%s: %w", op, err)
}

// jsonResult marshals v as the tool's text content.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	return mcp.NewToolResultText(string(out)), nil
}
