package core

import "github.com/pkg/errors"

// FieldError describes why a request field was rejected.
type FieldError struct {
	Field string
	Error string
}

// ValidationError is returned when a request fails validation outside of struct tags.
type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{Err: err, Fields: flds}
}

func (err ValidationError) Error() string {
	if err.Err != nil {
		return err.Err.Error()
	}
	if len(err.Fields) > 0 {
		return err.Fields[0].Field + ": " + err.Fields[0].Error
	}
	return "validation failed"
}

// ShutdownError marks a failure the process cannot recover from, eg. a lost database connection.
type ShutdownError struct {
	Err error
}

func NewShutdownError(err error) error {
	return &ShutdownError{Err: err}
}

func (err *ShutdownError) Error() string {
	return "unrecoverable: " + err.Err.Error()
}

func (err *ShutdownError) Unwrap() error {
	return err.Err
}

// IsShutdown reports whether a ShutdownError is found in err's chain.
func IsShutdown(err error) bool {
	var sErr *ShutdownError
	return errors.As(err, &sErr)
}
