package utils

import (
	"fmt"
	"net/http"
)

// CustomError is an error with an HTTP status code, a stable machine-readable
// reason and a remediation hint for API clients.
type CustomError struct {
	Code    int
	Reason  string
	Message string
	Hint    string
	Err     error
}

func (e *CustomError) Error() string {
	return fmt.Sprintf("Code: %d, Message: %s", e.Code, e.Message)
}

func (e *CustomError) Unwrap() error { return e.Err }

func New(code int, message string) error {
	return &CustomError{
		Code:    code,
		Reason:  reasonFor(code),
		Message: message,
	}
}

func reasonFor(code int) string {
	switch code {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusServiceUnavailable:
		return "unavailable"
	}
	return "error"
}
