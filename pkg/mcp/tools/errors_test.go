package tools

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/whereabouts/pkg/apperrors"
	"github.com/ekaya-inc/whereabouts/pkg/locking"
)

// getTextContent extracts the text string from the first text content item
func getTextContent(result *mcp.CallToolResult) string {
	if len(result.Content) == 0 {
		return ""
	}
	jsonBytes, _ := json.Marshal(result.Content[0])
	var textContent struct {
		Text string `json:"text"`
	}
	_ = json.Unmarshal(jsonBytes, &textContent)
	return textContent.Text
}

func TestNewErrorResult(t *testing.T) {
	result := NewErrorResult("invalid_parameters", "user_id is required")

	require.NotNil(t, result)
	assert.True(t, result.IsError)

	var errResp ErrorResponse
	require.NoError(t, json.Unmarshal([]byte(getTextContent(result)), &errResp))
	assert.True(t, errResp.Error)
	assert.Equal(t, "invalid_parameters", errResp.Code)
	assert.Equal(t, "user_id is required", errResp.Message)
	assert.Nil(t, errResp.Details)
}

func TestNewErrorResultWithDetails(t *testing.T) {
	result := NewErrorResultWithDetails("invalid_parameters", "location_id requires strength",
		map[string]any{"location_id": "l1"})

	var errResp ErrorResponse
	require.NoError(t, json.Unmarshal([]byte(getTextContent(result)), &errResp))
	details, ok := errResp.Details.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "l1", details["location_id"])
}

func TestInputErrorCode(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{apperrors.ErrInvalidReference, "invalid_reference"},
		{apperrors.ErrAmbiguousResolution, "ambiguous_resolution"},
		{apperrors.ErrConstraintViolation, "constraint_violation"},
		{apperrors.ErrDuplicateRelationship, "duplicate_relationship"},
		{apperrors.ErrAlreadyInLocation, "already_in_location"},
		{apperrors.ErrStoreUnavailable, ""},
		{locking.ErrLockTimeout, ""},
		{errors.New("boom"), ""},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			err := fmt.Errorf("wrapped: %w", tt.err)
			assert.Equal(t, tt.want, InputErrorCode(err))
			assert.Equal(t, tt.want != "", IsInputError(err))
		})
	}
}

func TestServiceResult(t *testing.T) {
	result, err := serviceResult("get user", fmt.Errorf("user u1: %w", apperrors.ErrInvalidReference))
	require.NoError(t, err)
	assert.True(t, result.IsError)

	result, err = serviceResult("get user", apperrors.ErrStoreUnavailable)
	assert.Nil(t, result)
	assert.ErrorIs(t, err, apperrors.ErrStoreUnavailable)
}
