package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func serveMCP(t *testing.T, logger *zap.Logger, reqBody, respBody string) {
	t.Helper()
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(respBody))
	})
	req := httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewBufferString(reqBody))
	MCPRequestLogger(logger)(handler).ServeHTTP(httptest.NewRecorder(), req)
}

func TestMCPRequestLogger(t *testing.T) {
	t.Run("logs successful tool call", func(t *testing.T) {
		core, logs := observer.New(zapcore.DebugLevel)

		serveMCP(t, zap.New(core),
			`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"get_current_locality","arguments":{"user_id":"u1"}}}`,
			`{"jsonrpc":"2.0","id":1,"result":{"content":[{"type":"text","text":"{}"}]}}`)

		require.Equal(t, 2, logs.Len(), "Should log request and response")
		requestLog := logs.All()[0]
		assert.Equal(t, "MCP request", requestLog.Message)
		assert.Equal(t, "tools/call", requestLog.ContextMap()["method"])
		assert.Equal(t, "get_current_locality", requestLog.ContextMap()["tool"])

		responseLog := logs.All()[1]
		assert.Equal(t, "MCP response success", responseLog.Message)
		assert.Equal(t, "get_current_locality", responseLog.ContextMap()["tool"])
		assert.NotNil(t, responseLog.ContextMap()["duration"])
	})

	t.Run("logs protocol error", func(t *testing.T) {
		core, logs := observer.New(zapcore.DebugLevel)

		serveMCP(t, zap.New(core),
			`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"query_proximity"}}`,
			`{"jsonrpc":"2.0","id":1,"error":{"code":-32602,"message":"invalid params"}}`)

		require.Equal(t, 2, logs.Len())
		responseLog := logs.All()[1]
		assert.Equal(t, "MCP response error", responseLog.Message)
		assert.Equal(t, int64(-32602), responseLog.ContextMap()["error_code"])
		assert.Equal(t, "invalid params", responseLog.ContextMap()["error_message"])
	})

	t.Run("logs tool level error", func(t *testing.T) {
		core, logs := observer.New(zapcore.DebugLevel)

		serveMCP(t, zap.New(core),
			`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"get_contacts","arguments":{"user_id":"missing"}}}`,
			`{"jsonrpc":"2.0","id":1,"result":{"isError":true,"content":[{"type":"text","text":"invalid_reference"}]}}`)

		require.Equal(t, 2, logs.Len())
		assert.Equal(t, "MCP tool error", logs.All()[1].Message)
	})

	t.Run("sanitizes personal and secret arguments", func(t *testing.T) {
		core, logs := observer.New(zapcore.DebugLevel)

		serveMCP(t, zap.New(core),
			`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"test_tool","arguments":{"email":"ada@example.com","api_key":"abc123","user_id":"u1"}}}`,
			`{"jsonrpc":"2.0","id":1,"result":{}}`)

		args := logs.All()[0].ContextMap()["arguments"].(map[string]any)
		assert.Equal(t, "[REDACTED]", args["email"])
		assert.Equal(t, "[REDACTED]", args["api_key"])
		assert.Equal(t, "u1", args["user_id"])
	})

	t.Run("passes through with nil logger", func(t *testing.T) {
		called := false
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			called = true
			w.WriteHeader(http.StatusOK)
		})

		req := httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewBufferString(`{}`))
		rec := httptest.NewRecorder()
		MCPRequestLogger(nil)(handler).ServeHTTP(rec, req)

		assert.True(t, called)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("handles malformed and empty bodies", func(t *testing.T) {
		core, _ := observer.New(zapcore.DebugLevel)
		logger := zap.New(core)
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"bad request"}`))
		})

		for _, body := range []string{`{invalid json`, ``} {
			req := httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewBufferString(body))
			rec := httptest.NewRecorder()
			MCPRequestLogger(logger)(handler).ServeHTTP(rec, req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		}
	})
}

func TestSanitizeArguments(t *testing.T) {
	t.Run("redacts sensitive keywords case insensitively", func(t *testing.T) {
		result := sanitizeArguments(map[string]any{
			"PASSWORD":     "secret",
			"Api_Key":      "abc123",
			"AccessToken":  "xyz789",
			"home_address": "1 Main St",
			"location_id":  "l1",
			"min_strength": 60,
		})

		assert.Equal(t, "[REDACTED]", result["PASSWORD"])
		assert.Equal(t, "[REDACTED]", result["Api_Key"])
		assert.Equal(t, "[REDACTED]", result["AccessToken"])
		assert.Equal(t, "[REDACTED]", result["home_address"])
		assert.Equal(t, "l1", result["location_id"])
		assert.Equal(t, 60, result["min_strength"])
	})

	t.Run("truncates long strings", func(t *testing.T) {
		result := sanitizeArguments(map[string]any{
			"description": strings.Repeat("x", 250),
			"short":       "abc",
		})

		truncated := result["description"].(string)
		assert.Len(t, truncated, maxLoggedArgLen+3)
		assert.True(t, strings.HasSuffix(truncated, "..."))
		assert.Equal(t, "abc", result["short"])
	})

	t.Run("handles nil and empty arguments", func(t *testing.T) {
		assert.Nil(t, sanitizeArguments(nil))
		result := sanitizeArguments(map[string]any{})
		assert.NotNil(t, result)
		assert.Empty(t, result)
	})
}
