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

// Common transport-level errors.
var (
	ErrInvalidCredentials = New("INVALID_CREDENTIALS", http.StatusUnauthorized, "invalid email or password")
	ErrInactiveAccount    = New("ACCOUNT_INACTIVE", http.StatusForbidden, "account is inactive")
	ErrNotFound           = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrUnauthorized       = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrForbidden          = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrConflict           = New("CONFLICT", http.StatusConflict, "conflict")
	ErrValidation         = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal           = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
	ErrCacheMiss          = New("CACHE_MISS", http.StatusNotFound, "cache miss")
)

// Registration and validation domain errors.
var (
	ErrAuthorizationDenied      = New("AUTHORIZATION_DENIED", http.StatusForbidden, "actor lacks scope for this operation")
	ErrRegistrationWindowClosed = New("REGISTRATION_WINDOW_CLOSED", http.StatusConflict, "registration window is closed")
	ErrCancellationWindowClosed = New("CANCELLATION_WINDOW_CLOSED", http.StatusConflict, "cancellation window is closed")
	ErrSlotFull                 = New("SLOT_FULL", http.StatusConflict, "no remaining places on slot")
	ErrAlreadyRegistered        = New("ALREADY_REGISTERED", http.StatusConflict, "an active registration already exists for this slot")
	ErrQuotaExceeded            = New("QUOTA_EXCEEDED", http.StatusConflict, "yearly immersion quota exceeded")
	ErrLevelNotAllowed          = New("LEVEL_NOT_ALLOWED", http.StatusForbidden, "high school level not allowed on this slot")
	ErrRecordNotValidated       = New("RECORD_NOT_VALIDATED", http.StatusPreconditionFailed, "student record is not validated")
	ErrHighSchoolNotAgreed      = New("HIGH_SCHOOL_NOT_AGREED", http.StatusPreconditionFailed, "high school is not currently agreed")
	ErrStaleState               = New("STALE_STATE", http.StatusConflict, "state changed concurrently, reload and retry")
	ErrNoPeriodForSlot          = New("NO_PERIOD_FOR_SLOT", http.StatusUnprocessableEntity, "no period covers the slot date")
	ErrInvalidSettings          = New("INVALID_SETTINGS", http.StatusUnprocessableEntity, "settings entry failed schema validation")
	ErrTargetInactive           = New("TARGET_INACTIVE", http.StatusPreconditionFailed, "hijack target account is inactive")
	ErrSlotHasRegistrations     = New("SLOT_HAS_REGISTRATIONS", http.StatusConflict, "slot already has registrations")
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

// Is reports whether err carries the same code as target.
func Is(err error, target *Error) bool {
	if err == nil || target == nil {
		return false
	}
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Code == target.Code
}
