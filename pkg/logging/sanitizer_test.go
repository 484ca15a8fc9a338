package logging

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeConnectionString(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "empty string",
			input:    "",
			expected: "",
		},
		{
			name:     "keyword password",
			input:    "host=localhost password=secret123 dbname=places",
			expected: "host=localhost password=[REDACTED] dbname=places",
		},
		{
			name:     "keyword password uppercase",
			input:    "host=localhost PASSWORD=secret123",
			expected: "host=localhost PASSWORD=[REDACTED]",
		},
		{
			name:     "postgres url",
			input:    "postgres://tracker:hunter2@db:5432/places?sslmode=disable",
			expected: "postgres://[REDACTED]@db:5432/places?sslmode=disable",
		},
		{
			name:     "redis url with empty user",
			input:    "redis://:hunter2@cache:6379/0",
			expected: "redis://[REDACTED]@cache:6379/0",
		},
		{
			name:     "neo4j uri without credentials",
			input:    "neo4j://graph:7687",
			expected: "neo4j://graph:7687",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SanitizeConnectionString(tt.input))
		})
	}
}

func TestSanitizeError(t *testing.T) {
	assert.Equal(t, "", SanitizeError(nil))

	err := errors.New("failed to connect to postgres://tracker:hunter2@db:5432/places")
	got := SanitizeError(err)
	assert.NotContains(t, got, "hunter2")
	assert.Contains(t, got, "[REDACTED]")
}
