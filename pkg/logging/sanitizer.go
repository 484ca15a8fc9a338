package logging

import (
	"regexp"
)

// RedactedText is the replacement text for sensitive data
const RedactedText = "[REDACTED]"

var (
	// Matches password=xxx, pwd=xxx, pass=xxx (until next delimiter)
	passwordPattern = regexp.MustCompile(`(?i)(password|pwd|pass)=[^;&\s]+`)

	// Matches credentials in URLs of any scheme (postgres, neo4j, bolt, redis)
	credentialPattern = regexp.MustCompile(`://[^:/\s]*:[^@\s]+@`)
)

// SanitizeConnectionString removes credentials from connection strings and URIs.
// Use this before logging any backend address.
func SanitizeConnectionString(connStr string) string {
	if connStr == "" {
		return ""
	}
	sanitized := passwordPattern.ReplaceAllString(connStr, "${1}="+RedactedText)
	return credentialPattern.ReplaceAllString(sanitized, "://"+RedactedText+"@")
}

// SanitizeError sanitizes error messages that might echo a connection string.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	return SanitizeConnectionString(err.Error())
}
