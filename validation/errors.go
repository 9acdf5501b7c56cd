package validation

import (
	"fmt"

	"github.com/pkg/errors"
)

type Kind string

const (
	Text          Kind = "text"
	Integer       Kind = "integer"
	StructuredMap Kind = "structured-map"
)

var ErrEmptyPayload = errors.New("no data received")

type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("missing field: %s", e.Field)
}

type TypeMismatchError struct {
	Field    string
	Expected Kind
	Got      string
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("%s must be %s, got %s", e.Field, e.Expected, e.Got)
}

// MalformedPayloadError is returned when the body is not a JSON object.
type MalformedPayloadError struct {
	Err error
}

func (e *MalformedPayloadError) Error() string {
	return fmt.Sprintf("malformed payload: %v", e.Err)
}

func (e *MalformedPayloadError) Unwrap() error {
	return e.Err
}

// IsValidation reports whether err means the caller sent bad input.
func IsValidation(err error) bool {
	var (
		missing   *MissingFieldError
		mismatch  *TypeMismatchError
		malformed *MalformedPayloadError
	)
	return errors.Is(err, ErrEmptyPayload) ||
		errors.As(err, &missing) ||
		errors.As(err, &mismatch) ||
		errors.As(err, &malformed)
}
