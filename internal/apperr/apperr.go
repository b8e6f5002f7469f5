// Package apperr defines the error kinds shared by services and transports.
package apperr

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	// ErrNotAuthenticated is returned when the caller has no valid session.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrNotFound covers records that are missing or owned by another student.
	ErrNotFound = errors.New("not found")
)

// AuthError is a not-authenticated failure with a message safe to show the user.
type AuthError struct {
	Message string
}

func (e *AuthError) Error() string { return e.Message }

// Is makes AuthError match ErrNotAuthenticated.
func (e *AuthError) Is(target error) bool { return target == ErrNotAuthenticated }

// Unauthenticated builds an AuthError.
func Unauthenticated(message string) error {
	return &AuthError{Message: message}
}

// Message returns the user-facing text of err for its kind.
func Message(err error) string {
	var aerr *AuthError
	var verr *ValidationError
	var cerr *CeremonyError
	switch {
	case errors.As(err, &aerr):
		return aerr.Message
	case errors.Is(err, ErrNotAuthenticated):
		return "Not authenticated"
	case errors.As(err, &verr):
		return verr.Message
	case errors.Is(err, ErrNotFound):
		return "Record not found"
	case errors.As(err, &cerr):
		return cerr.Error()
	default:
		return "Something went wrong, please try again"
	}
}

// FieldError is used to indicate an error with a specific request field.
type FieldError struct {
	Field string `json:"field"`
	Error string `json:"error"`
}

// ValidationError is returned before any storage mutation when input is rejected.
type ValidationError struct {
	Message string
	Fields  []FieldError
}

func (e *ValidationError) Error() string { return e.Message }

// Invalid builds a ValidationError with a human readable message.
func Invalid(format string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// FromValidator converts go-playground validator errors into a ValidationError.
// Any other error is returned unchanged.
func FromValidator(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := make([]FieldError, 0, len(verrs))
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		var msg string
		switch fe.ActualTag() {
		case "required":
			msg = fmt.Sprintf("%s is required", fe.Field())
		case "min", "gte":
			msg = fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
		case "max", "lte":
			msg = fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param())
		case "oneof":
			msg = fmt.Sprintf("%s must be one of %s", fe.Field(), fe.Param())
		case "datetime":
			msg = fmt.Sprintf("%s must be a date formatted YYYY-MM-DD", fe.Field())
		default:
			msg = fmt.Sprintf("%s is invalid", fe.Field())
		}
		fields = append(fields, FieldError{Field: fe.Field(), Error: msg})
		msgs = append(msgs, msg)
	}
	return &ValidationError{Message: strings.Join(msgs, ", "), Fields: fields}
}

// CeremonyReason says why a platform authenticator ceremony did not complete.
type CeremonyReason string

const (
	CeremonyCancelled   CeremonyReason = "cancelled"
	CeremonyTimedOut    CeremonyReason = "timed_out"
	CeremonyUnsupported CeremonyReason = "unsupported"
)

// CeremonyError is a recoverable failure of the biometric ceremony.
type CeremonyError struct {
	Reason CeremonyReason
	Err    error
}

func (e *CeremonyError) Error() string {
	switch e.Reason {
	case CeremonyCancelled, CeremonyTimedOut:
		return "authentication was cancelled or timed out"
	case CeremonyUnsupported:
		return "this device does not support fingerprint login"
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return "fingerprint ceremony failed"
}

func (e *CeremonyError) Unwrap() error { return e.Err }

// Kind classifies an error for transports.
type Kind int

const (
	KindTransient Kind = iota
	KindNotAuthenticated
	KindValidation
	KindNotFound
	KindCeremony
)

// KindOf maps any error onto the taxonomy; unknown errors are transient.
func KindOf(err error) Kind {
	var verr *ValidationError
	var cerr *CeremonyError
	switch {
	case errors.Is(err, ErrNotAuthenticated):
		return KindNotAuthenticated
	case errors.As(err, &verr):
		return KindValidation
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.As(err, &cerr):
		return KindCeremony
	default:
		return KindTransient
	}
}
