package tools

import (
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func toolRequest(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func TestTrimString(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"empty string", "", ""},
		{"whitespace only", "   ", ""},
		{"both sides whitespace", "  test  ", "test"},
		{"mixed whitespace", " \t\ntest\n\t ", "test"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, trimString(tt.input))
		})
	}
}

func TestOptionalArguments(t *testing.T) {
	req := toolRequest(map[string]any{
		"location_id": "  l1 ",
		"blank":       "   ",
		"strength":    float64(60),
		"start":       "2024-06-01T09:00:00Z",
		"bad_time":    "yesterday",
	})

	s, ok := getOptionalString(req, "location_id")
	assert.True(t, ok)
	assert.Equal(t, "l1", s)
	_, ok = getOptionalString(req, "blank")
	assert.False(t, ok, "blank strings count as absent")

	n, ok := getOptionalInt(req, "strength")
	assert.True(t, ok)
	assert.Equal(t, 60, n)
	_, ok = getOptionalFloat(req, "missing")
	assert.False(t, ok)

	ts, err := getOptionalTime(req, "start")
	require.NoError(t, err)
	require.NotNil(t, ts)
	assert.Equal(t, 9, ts.Hour())

	ts, err = getOptionalTime(req, "missing")
	assert.NoError(t, err)
	assert.Nil(t, ts)

	_, err = getOptionalTime(req, "bad_time")
	assert.Error(t, err)
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, 20, clampLimit(toolRequest(nil), 20, 100))
	assert.Equal(t, 20, clampLimit(toolRequest(map[string]any{"limit": float64(0)}), 20, 100))
	assert.Equal(t, 5, clampLimit(toolRequest(map[string]any{"limit": float64(5)}), 20, 100))
	assert.Equal(t, 100, clampLimit(toolRequest(map[string]any{"limit": float64(5000)}), 20, 100))
}
