package request

import (
	"errors"
	"fmt"
	"strings"
)

// MissingParametersError reports required parameters that resolved to no
// value. It is raised before any header, query or network work happens.
type MissingParametersError struct {
	// Names lists the missing parameters in declaration order.
	Names []string
}

func (e *MissingParametersError) Error() string {
	return fmt.Sprintf("missing required parameters: %s", strings.Join(e.Names, ", "))
}

// IsMissingParameters checks if the error is a missing-parameters error.
func IsMissingParameters(err error) bool {
	var e *MissingParametersError
	return errors.As(err, &e)
}

// StatusError is returned by the default executor when the status predicate
// rejects a response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("request failed with status %d", e.StatusCode)
	}
	return fmt.Sprintf("request failed with status %d: %s", e.StatusCode, e.Body)
}

// IsStatusError checks if the error is a rejected-status error.
func IsStatusError(err error) bool {
	var e *StatusError
	return errors.As(err, &e)
}

// StatusCodeFromError returns the HTTP status carried by err, or 0.
func StatusCodeFromError(err error) int {
	var e *StatusError
	if errors.As(err, &e) {
		return e.StatusCode
	}
	return 0
}

// IsNotFoundError checks if the error indicates a 404 response.
func IsNotFoundError(err error) bool {
	return StatusCodeFromError(err) == 404
}
