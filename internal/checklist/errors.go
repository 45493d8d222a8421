package checklist

import (
	"errors"
	"fmt"

	jujuerrors "github.com/juju/errors"
)

// ErrEmptyChecklist is returned when a draft without entries is submitted.
// It is a validation error.
var ErrEmptyChecklist = jujuerrors.NotValidf("checklist without entries")

// DecodeError reports a stored draft collection that could not be parsed.
// Callers may treat the owner's collection as corrupt and reset it.
type DecodeError struct {
	Key string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decoding drafts under %q: %v", e.Key, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// IsDecodeError reports whether err (or any error in its chain) is a DecodeError.
func IsDecodeError(err error) bool {
	var decodeErr *DecodeError
	return errors.As(err, &decodeErr)
}

// IsNotFound reports whether err means a draft, entry or submission does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, jujuerrors.NotFound)
}

// IsValidation reports whether err means the request was rejected before any
// state changed.
func IsValidation(err error) bool {
	return errors.Is(err, jujuerrors.NotValid)
}

func draftNotFound(draftID string) error {
	return jujuerrors.NotFoundf("draft %s", draftID)
}
