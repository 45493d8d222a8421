package remote

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is returned for any failed call to the backend: a non-2xx response or
// a transport failure (Status 0).
type Error struct {
	// Resource is the collection or endpoint that was called.
	Resource string
	Status   int
	Code     string
	Message  string

	// Err is the transport error, if any.
	Err error
}

func (e *Error) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("remote error (%s): %s", e.Resource, e.Message)
	}
	if e.Code != "" {
		return fmt.Sprintf("remote error (%s, %d %s): %s", e.Resource, e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("remote error (%s, %d): %s", e.Resource, e.Status, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsRemoteError reports whether err (or any error in its chain) is an Error.
func IsRemoteError(err error) bool {
	var remoteErr *Error
	return errors.As(err, &remoteErr)
}

// StatusOf returns the HTTP status of the Error in err's chain, or 0.
func StatusOf(err error) int {
	var remoteErr *Error
	if errors.As(err, &remoteErr) {
		return remoteErr.Status
	}
	return 0
}

// uniqueViolation is the Postgres code for a duplicate key.
const uniqueViolation = "23505"

// IsConflict reports whether err is a duplicate-key rejection.
func IsConflict(err error) bool {
	var remoteErr *Error
	if !errors.As(err, &remoteErr) {
		return false
	}
	return remoteErr.Status == http.StatusConflict || remoteErr.Code == uniqueViolation
}

// IsUnauthorized reports whether err is an authentication failure.
func IsUnauthorized(err error) bool {
	status := StatusOf(err)
	return status == http.StatusUnauthorized || status == http.StatusForbidden
}

// errorBody covers the error shapes of PostgREST ({message, code, details,
// hint}) and the auth server ({error, error_description} or {msg, code}).
type errorBody struct {
	Message          string `json:"message"`
	Msg              string `json:"msg"`
	Code             any    `json:"code"`
	Details          string `json:"details"`
	Hint             string `json:"hint"`
	ErrorName        string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

func (b errorBody) message() string {
	switch {
	case b.Message != "":
		if b.Details != "" {
			return b.Message + ": " + b.Details
		}
		return b.Message
	case b.ErrorDescription != "":
		return b.ErrorDescription
	case b.Msg != "":
		return b.Msg
	}
	return b.ErrorName
}

func (b errorBody) code() string {
	switch c := b.Code.(type) {
	case string:
		return c
	case float64:
		return fmt.Sprintf("%d", int(c))
	}
	return b.ErrorName
}
