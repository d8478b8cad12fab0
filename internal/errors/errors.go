package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Common error types for the session coordinator
var (
	// OAuth flow errors
	ErrUserCancelled            = errors.New("user cancelled")
	ErrMissingAuthorizationCode = errors.New("missing authorization code")
	ErrStateMismatch            = errors.New("state mismatch")
	ErrUnsupportedProvider      = errors.New("unsupported provider")

	// Session errors
	ErrNotAuthenticated  = errors.New("not authenticated")
	ErrNoRefreshToken    = errors.New("no refresh token")
	ErrIllegalTransition = errors.New("illegal state transition")

	// Messaging errors
	ErrNoReceiver        = errors.New("no receiving context")
	ErrForeignSender     = errors.New("sender is not part of this extension")
	ErrMalformedMessage  = errors.New("malformed message")
	ErrUnknownMessage    = errors.New("unknown message type")
	ErrMessengerShutdown = errors.New("messenger closed")
)

// KindType classifies an error into the coordinator's error taxonomy.
type KindType string

const (
	KindNone          KindType = ""
	KindUserCancelled KindType = "user_cancelled"
	KindProvider      KindType = "provider"
	KindTransport     KindType = "transport"
	KindValidation    KindType = "validation"
	KindUnknown       KindType = "unknown"
)

// ProviderError is returned when the identity provider rejects a request.
type ProviderError struct {
	Op          string // e.g. "refresh", "exchange", "password"
	Code        string // OAuth2 error code, e.g. "invalid_grant"
	Description string
	Status      int
	Err         error
}

func (e *ProviderError) Error() string {
	var sb strings.Builder
	sb.WriteString("identity provider rejected ")
	sb.WriteString(e.Op)
	if e.Code != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Code)
	}
	if e.Description != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Description)
	}
	if e.Code == "" && e.Description == "" && e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

func (e *ProviderError) Unwrap() error { return e.Err }

// TransportError wraps a store or messaging failure.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport failure during %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ValidationError reports malformed input such as a redirect without a code.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed: %v", e.Err)
	}
	return fmt.Sprintf("validation failed for %s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// NewProviderError builds a ProviderError for op.
func NewProviderError(op, code, description string, status int, err error) error {
	return &ProviderError{Op: op, Code: code, Description: description, Status: status, Err: err}
}

// NewTransportError wraps err as a TransportError, nil stays nil.
func NewTransportError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &TransportError{Op: op, Err: err}
}

// NewValidationError wraps err as a ValidationError for field.
func NewValidationError(field string, err error) error {
	return &ValidationError{Field: field, Err: err}
}

// Kind returns the taxonomy bucket of err.
func Kind(err error) KindType {
	if err == nil {
		return KindNone
	}
	var (
		pe *ProviderError
		te *TransportError
		ve *ValidationError
	)
	switch {
	case errors.Is(err, ErrUserCancelled):
		return KindUserCancelled
	case errors.As(err, &ve):
		return KindValidation
	case errors.As(err, &pe):
		return KindProvider
	case errors.As(err, &te):
		return KindTransport
	}
	return KindUnknown
}

// IsRefreshTokenRejected reports whether err means the refresh token itself is
// no longer usable, in which case the session cannot be recovered.
func IsRefreshTokenRejected(err error) bool {
	var pe *ProviderError
	if !errors.As(err, &pe) {
		return false
	}
	if pe.Code == "invalid_grant" {
		return true
	}
	msg := strings.ToLower(pe.Error())
	return strings.Contains(msg, "expired") || strings.Contains(msg, "invalid")
}

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}
