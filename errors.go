package lbpcascade

import "fmt"

// ModelFormatError reports a missing or malformed field of a cascade description.
type ModelFormatError struct {
	// Field is the path of the offending node, e.g. "stages[3].weakClassifiers[0].leafValues".
	Field string
	Err   error
}

func (e *ModelFormatError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("malformed cascade model: %s", e.Field)
	}
	return fmt.Sprintf("malformed cascade model: %s: %v", e.Field, e.Err)
}

func (e *ModelFormatError) Unwrap() error { return e.Err }

// InvalidGeometryError reports a cascade whose window or rectangle geometry is unusable.
type InvalidGeometryError struct {
	Field  string
	Reason string
}

func (e *InvalidGeometryError) Error() string {
	return fmt.Sprintf("invalid cascade geometry: %s: %s", e.Field, e.Reason)
}

// InputError reports a pixel buffer that cannot be turned into an integral image.
type InputError struct {
	Reason string
}

func (e *InputError) Error() string {
	return "invalid input image: " + e.Reason
}

// InvalidArgumentError reports a detection parameter outside its domain.
type InvalidArgumentError struct {
	Name   string
	Value  any
	Reason string
}

func (e *InvalidArgumentError) Error() string {
	return fmt.Sprintf("invalid argument %s=%v: %s", e.Name, e.Value, e.Reason)
}
