// Package provider implements the external model backends: chat
// completion, speech recognition, and speech synthesis over
// OpenAI-compatible HTTP APIs.
package provider

import (
	"fmt"
	"net/http"
	"strings"

	"voxagent/internal/resilience"
)

// Error is an API failure classified for the retry policy.
type Error struct {
	Provider string
	Status   int
	Message  string
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s: HTTP %d: %s", e.Provider, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

// ErrorClass maps the HTTP status onto the retry policy. Rate limits
// and server errors are worth retrying; quota and payload-size
// failures will not heal with a retry but a cheaper model might
// succeed; everything else in the 4xx range is a caller bug.
func (e *Error) ErrorClass() resilience.Class {
	switch {
	case e.Status == http.StatusTooManyRequests:
		return resilience.Transient
	case e.Status >= 500:
		return resilience.Transient
	case e.Status == http.StatusPaymentRequired,
		e.Status == http.StatusRequestEntityTooLarge:
		return resilience.ResourceExhausted
	case strings.Contains(strings.ToLower(e.Message), "quota"),
		strings.Contains(strings.ToLower(e.Message), "context length"):
		return resilience.ResourceExhausted
	case e.Status >= 400:
		return resilience.Permanent
	default:
		return resilience.Transient
	}
}

func apiError(name string, status int, body []byte) *Error {
	msg := strings.TrimSpace(string(body))
	if len(msg) > 500 {
		msg = msg[:500]
	}
	return &Error{Provider: name, Status: status, Message: msg}
}
