package remote

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// ErrUnsupported is returned by backends for operations they cannot perform
var ErrUnsupported = errors.New("operation not supported by this backend")

// APIError is a structured rejection from the service. Anything else a
// backend returns means no usable response was received.
type APIError struct {
	Status      int               `json:"-"`
	Message     string            `json:"message"`
	FieldErrors map[string]string `json:"field_errors,omitempty"`
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	if len(e.FieldErrors) > 0 {
		fields := make([]string, 0, len(e.FieldErrors))
		for f, m := range e.FieldErrors {
			fields = append(fields, fmt.Sprintf("%s: %s", f, m))
		}
		sort.Strings(fields)
		msg += " (" + strings.Join(fields, ", ") + ")"
	}
	return msg
}

// Rejected builds an APIError
func Rejected(status int, message string) *APIError {
	return &APIError{Status: status, Message: message}
}

// AsAPIError unwraps err to an APIError
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// IsRejected reports whether the service answered with an error body
func IsRejected(err error) bool {
	_, ok := AsAPIError(err)
	return ok
}

// IsNotFound reports a rejection with status 404
func IsNotFound(err error) bool {
	apiErr, ok := AsAPIError(err)
	return ok && apiErr.Status == http.StatusNotFound
}

// IsUnauthorized reports a rejection with status 401 or 403
func IsUnauthorized(err error) bool {
	apiErr, ok := AsAPIError(err)
	return ok && (apiErr.Status == http.StatusUnauthorized || apiErr.Status == http.StatusForbidden)
}

// IsFault reports an error that carries no service response: a network
// failure, a cancelled context or an undecodable body.
func IsFault(err error) bool {
	return err != nil && !IsRejected(err) && !errors.Is(err, ErrUnsupported)
}
