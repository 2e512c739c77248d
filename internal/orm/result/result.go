// Package result provides the value returned by every mutating ORM operation.
// A Result never carries a Go error; it carries a status, a machine-readable
// code and a human-readable message so callers can aggregate outcomes across
// a batch without aborting it.
package result

import "fmt"

// Status is the outcome class of an operation
type Status int

const (
	// Success means the operation did what was asked
	Success Status = iota
	// Warning means the operation completed with something worth reporting
	Warning
	// Error means the operation did not happen
	Error
)

// String returns the string representation of the status
func (s Status) String() string {
	switch s {
	case Success:
		return "success"
	case Warning:
		return "warning"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// MarshalText encodes the status by name
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Code is a machine-readable result code
type Code string

// Result is an immutable operation outcome
type Result struct {
	status  Status
	code    Code
	message string
	data    interface{}
}

// New creates a result with the given fields
func New(status Status, code Code, message string, data interface{}) Result {
	return Result{status: status, code: code, message: message, data: data}
}

// NewSuccess creates a success result
func NewSuccess(code Code, message string, data interface{}) Result {
	return New(Success, code, message, data)
}

// NewWarning creates a warning result
func NewWarning(code Code, message string, data interface{}) Result {
	return New(Warning, code, message, data)
}

// NewError creates an error result
func NewError(code Code, message string, data interface{}) Result {
	return New(Error, code, message, data)
}

// Errorf creates an error result with a formatted message
func Errorf(code Code, data interface{}, format string, args ...interface{}) Result {
	return New(Error, code, fmt.Sprintf(format, args...), data)
}

// Status returns the result status
func (r Result) Status() Status { return r.status }

// Code returns the result code
func (r Result) Code() Code { return r.code }

// Message returns the human-readable message
func (r Result) Message() string { return r.message }

// Data returns the payload the result concerns, if any
func (r Result) Data() interface{} { return r.data }

// IsSuccess reports whether the status is Success
func (r Result) IsSuccess() bool { return r.status == Success }

// IsWarning reports whether the status is Warning
func (r Result) IsWarning() bool { return r.status == Warning }

// IsError reports whether the status is Error
func (r Result) IsError() bool { return r.status == Error }

// String implements fmt.Stringer
func (r Result) String() string {
	return fmt.Sprintf("%s[%s]: %s", r.status, r.code, r.message)
}
