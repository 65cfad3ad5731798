package contracts

import (
	"errors"
	"fmt"
	"strings"
)

// ErrAlreadyApplied is returned when a performance record's applied flag is set twice
var ErrAlreadyApplied = errors.New("performance record already applied")

// ErrNoGeneration is returned when no weight generation has been published yet
var ErrNoGeneration = errors.New("no weight generation published")

// ErrStaleGeneration is returned when a publish is not newer than the active generation
var ErrStaleGeneration = errors.New("weight generation is older than the active generation")

// DataError reports insufficient history or missing snapshot fields.
// Recoverable by skipping the affected stock.
type DataError struct {
	Code    string // 종목 코드
	Field   string
	Message string
	Err     error
}

func (e *DataError) Error() string {
	msg := fmt.Sprintf("data error [%s]", e.Code)
	if e.Field != "" {
		msg += " " + e.Field
	}
	msg += ": " + e.Message
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DataError) Unwrap() error { return e.Err }

// FieldError is one failing field of a structured response
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError reports a reasoning response that fails the output contract.
// Fields lists every failing field, not just the first.
type ValidationError struct {
	Code    string
	Fields  []FieldError
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f.Field, f.Message))
	}
	msg := "validation error"
	if e.Code != "" {
		msg += fmt.Sprintf(" [%s]", e.Code)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if len(parts) > 0 {
		msg += ": " + strings.Join(parts, "; ")
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ValidationError) Unwrap() error { return e.Err }

// HasField reports whether field is among the failures
func (e *ValidationError) HasField(field string) bool {
	for _, f := range e.Fields {
		if f.Field == field {
			return true
		}
	}
	return false
}

// TimeoutError reports a provider call that exceeded its deadline
type TimeoutError struct {
	Code    string
	Stage   string
	Message string
	Err     error
}

func (e *TimeoutError) Error() string {
	msg := fmt.Sprintf("timeout [%s] %s: %s", e.Code, e.Stage, e.Message)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// CalibrationError aborts the current calibration run only.
// The previously active generation stays authoritative.
type CalibrationError struct {
	Stage   string
	Message string
	Err     error
}

func (e *CalibrationError) Error() string {
	msg := fmt.Sprintf("calibration error [%s]: %s", e.Stage, e.Message)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CalibrationError) Unwrap() error { return e.Err }

// ErrorKind classifies an error for failure records
func ErrorKind(err error) string {
	var dataErr *DataError
	var validationErr *ValidationError
	var timeoutErr *TimeoutError
	var calibrationErr *CalibrationError

	switch {
	case errors.As(err, &dataErr):
		return "data"
	case errors.As(err, &validationErr):
		return "validation"
	case errors.As(err, &timeoutErr):
		return "timeout"
	case errors.As(err, &calibrationErr):
		return "calibration"
	default:
		return "internal"
	}
}
