package tools

import (
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
)

// trimString removes leading and trailing whitespace from a string.
func trimString(s string) string {
	return strings.TrimSpace(s)
}

func arguments(req mcp.CallToolRequest) map[string]any {
	args, _ := req.Params.Arguments.(map[string]any)
	return args
}

// getOptionalString extracts an optional, trimmed string argument.
func getOptionalString(req mcp.CallToolRequest, key string) (string, bool) {
	val, ok := arguments(req)[key].(string)
	if !ok {
		return "", false
	}
	val = trimString(val)
	return val, val != ""
}

// getOptionalFloat extracts an optional numeric argument. JSON numbers decode as float64.
func getOptionalFloat(req mcp.CallToolRequest, key string) (float64, bool) {
	val, ok := arguments(req)[key].(float64)
	return val, ok
}

// getOptionalInt is getOptionalFloat truncated to an int.
func getOptionalInt(req mcp.CallToolRequest, key string) (int, bool) {
	val, ok := getOptionalFloat(req, key)
	return int(val), ok
}

// getOptionalTime parses an optional RFC 3339 timestamp argument.
func getOptionalTime(req mcp.CallToolRequest, key string) (*time.Time, error) {
	raw, ok := getOptionalString(req, key)
	if !ok {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, fmt.Errorf("%s must be an RFC 3339 timestamp, got %q", key, raw)
	}
	return &t, nil
}

// clampLimit applies a default for missing or non-positive limits and caps the rest.
func clampLimit(req mcp.CallToolRequest, def, maxLimit int) int {
	limit, ok := getOptionalInt(req, "limit")
	if !ok || limit < 1 {
		return def
	}
	return min(limit, maxLimit)
}
