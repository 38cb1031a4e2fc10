package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"google.golang.org/genai"
)

// TransientError marks an upstream failure that is expected to clear after a
// short wait (overload, rate limiting).
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	if e == nil || e.Err == nil {
		return "transient error"
	}
	return e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// SchemaError reports a response that does not match the requested shape.
type SchemaError struct {
	Reason string
	Err    error
}

func (e *SchemaError) Error() string {
	return "invalid structured response: " + e.Reason
}

func (e *SchemaError) Unwrap() error { return e.Err }

var transientMarkers = []string{
	"overloaded",
	"unavailable",
	"rate limit",
	"resource_exhausted",
	"429",
	"503",
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var schemaErr *SchemaError
	if errors.As(err, &schemaErr) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var te *TransientError
	if errors.As(err, &te) {
		return true
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == 429 || apiErr.Code/100 == 5
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range transientMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// statusError converts a non-200 HTTP response into an error, marking rate
// limiting and server errors transient.
func statusError(service string, code int, body []byte) error {
	err := fmt.Errorf("%s API returned %d: %s", service, code, strings.TrimSpace(string(body)))
	if code == 429 || code/100 == 5 {
		return &TransientError{Err: err}
	}
	return err
}
