package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Predefined errors for common scenarios.
var (
	ErrInvalidCredentials = New("INVALID_CREDENTIALS", http.StatusUnauthorized, "invalid email or password")
	ErrInactiveAccount    = New("ACCOUNT_INACTIVE", http.StatusForbidden, "account is inactive")
	ErrNotFound           = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrForbidden          = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrUnauthorized       = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrConflict           = New("CONFLICT", http.StatusConflict, "conflict")
	ErrValidation         = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal           = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
	ErrCacheMiss          = New("CACHE_MISS", http.StatusNotFound, "cache miss")
)

// Enrollment and graduation domain errors.
var (
	ErrInvalidRole      = New("INVALID_ROLE", http.StatusUnprocessableEntity, "user role not allowed for this operation")
	ErrBatchMismatch    = New("BATCH_MISMATCH", http.StatusUnprocessableEntity, "student does not belong to the target batch")
	ErrNotLinked        = New("CLASS_NOT_IN_BATCH", http.StatusUnprocessableEntity, "class is not offered in the batch")
	ErrAlreadyEnrolled  = New("ALREADY_ENROLLED", http.StatusConflict, "student is already enrolled")
	ErrAlreadyGraduated = New("ALREADY_GRADUATED", http.StatusConflict, "student is already graduated")
	ErrNotPublished     = New("MODULE_NOT_PUBLISHED", http.StatusPreconditionFailed, "module is not published")
	ErrBatchNotReady    = New("BATCH_NOT_READY", http.StatusPreconditionFailed, "batch has not completed yet")
	ErrHasProgress      = New("HAS_PROGRESS", http.StatusConflict, "enrollment has recorded progress")
	ErrNoStudents       = New("NO_STUDENTS", http.StatusUnprocessableEntity, "no students resolved for the operation")
	ErrInvalidStudents  = New("INVALID_STUDENTS", http.StatusUnprocessableEntity, "one or more student ids are invalid")
)

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}
