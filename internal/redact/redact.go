// Package redact strips sensitive information from strings before they
// reach logs or error responses. Besides the usual credentials and
// connection strings, the companion domain handles patient contact
// details, so phone numbers, emails, and date-of-birth shaped values
// are scrubbed as well.
package redact

import (
	"fmt"
	"regexp"
)

// Redaction placeholders.
const (
	RedactedCredential = "[REDACTED_CREDENTIAL]"
	RedactedJWT        = "[REDACTED_JWT]"
	RedactedPath       = "[REDACTED_PATH]"
	RedactedEmail      = "[REDACTED_EMAIL]"
	RedactedPhone      = "[REDACTED_PHONE]"
	RedactedDate       = "[REDACTED_DATE]"
	RedactedHost       = "[REDACTED_HOST]"
	RedactedSQL        = "[REDACTED_SQL]"
)

type rule struct {
	pattern     *regexp.Regexp
	placeholder string
}

var rules = []rule{
	{regexp.MustCompile(`(?i)(postgres|mysql|mongodb|redis)://[^@\s]+@`), RedactedCredential},
	{regexp.MustCompile(`(?i)(password|passwd|secret|token|api[_-]?key|auth)['"\s:=]+[A-Za-z0-9_\-.~+/]{6,}`), RedactedCredential},
	{regexp.MustCompile(`eyJ[a-zA-Z0-9_-]+\.eyJ[a-zA-Z0-9_-]+\.[a-zA-Z0-9_-]+`), RedactedJWT},
	{regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`), RedactedEmail},
	{regexp.MustCompile(`\+?\d{1,3}[\s.-]?\(?\d{3}\)?[\s.-]?\d{3}[\s.-]?\d{4}\b`), RedactedPhone},
	{regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`), RedactedDate},
	{regexp.MustCompile(`(?i)(SELECT|INSERT|UPDATE|DELETE)\s[\s\w,*()='"]*\b(FROM|INTO|SET)\b[\s\w,*()='"]*`), RedactedSQL},
	{regexp.MustCompile(`(/[\w.-]+){2,}`), RedactedPath},
	{regexp.MustCompile(`\b(?:[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?\.)+[a-zA-Z]{2,}:\d{1,5}\b`), RedactedHost},
}

// String redacts sensitive information from the input string.
func String(input string) string {
	if input == "" {
		return input
	}
	result := input
	for _, r := range rules {
		result = r.pattern.ReplaceAllString(result, r.placeholder)
	}
	return result
}

// Error redacts the message of an error. Returns the empty string for
// a nil error.
func Error(err error) string {
	if err == nil {
		return ""
	}
	return String(err.Error())
}

// Errorf formats like fmt.Sprintf and redacts the result.
func Errorf(format string, args ...interface{}) string {
	return String(fmt.Sprintf(format, args...))
}
