package backend

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrUnavailable = errors.New("backend unavailable")
	ErrNotFound    = errors.New("resource not found")
)

// APIError is a non-2xx answer from the backend. Message is the backend's user-facing text.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("backend returned %d: %s", e.Status, e.Message)
}

func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.Status == http.StatusNotFound
}

// IsRejection reports whether err is a business rejection (4xx) rather than a transport or server
// failure.
func IsRejection(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status >= 400 && apiErr.Status < 500
}

// Message extracts the user-facing message from err, falling back to fallback.
func Message(err error, fallback string) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return fallback
}
