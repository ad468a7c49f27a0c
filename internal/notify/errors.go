package notify

import (
	"errors"
	"fmt"
)

// ErrNoSubscribers is reported by a broadcaster when nobody listens on a channel.
var ErrNoSubscribers = errors.New("no subscribers on channel")

// ValidationError marks a malformed domain event. Nothing was written.
type ValidationError struct {
	Field   string
	message string
}

// Error returns the error message for a ValidationError.
func (e ValidationError) Error() string {
	if e.Field == "" {
		return "invalid event: " + e.message
	}
	return fmt.Sprintf("invalid event: %s: %s", e.Field, e.message)
}

// NewValidationError returns a validation error for the given field.
func NewValidationError(field, formatString string, a ...interface{}) ValidationError {
	return ValidationError{Field: field, message: fmt.Sprintf(formatString, a...)}
}

// StorageError wraps a failed read or write against the notification store.
type StorageError struct {
	Op  string
	Err error
}

// Error returns the error message for a StorageError.
func (e StorageError) Error() string {
	return fmt.Sprintf("notification store %s: %v", e.Op, e.Err)
}

func (e StorageError) Unwrap() error { return e.Err }

// NewStorageError wraps err as a StorageError for operation op.
func NewStorageError(op string, err error) StorageError {
	return StorageError{Op: op, Err: err}
}

// AuthorizationError is returned when an identity asks for a channel it does not own.
type AuthorizationError struct {
	IdentityID uint
	Channel    string
	reason     string
}

// Error returns the error message for an AuthorizationError.
func (e AuthorizationError) Error() string {
	return fmt.Sprintf("identity %d may not subscribe to %q: %s", e.IdentityID, e.Channel, e.reason)
}

// NewAuthorizationError returns a denial for identity on channel.
func NewAuthorizationError(identityID uint, channel, reason string) AuthorizationError {
	return AuthorizationError{IdentityID: identityID, Channel: channel, reason: reason}
}

// TransportError reports a push that could not be delivered. It is never
// surfaced to end users.
type TransportError struct {
	Channel string
	Err     error
}

// Error returns the error message for a TransportError.
func (e TransportError) Error() string {
	return fmt.Sprintf("push to %s: %v", e.Channel, e.Err)
}

func (e TransportError) Unwrap() error { return e.Err }

// NewTransportError wraps err as a TransportError for channel.
func NewTransportError(channel string, err error) TransportError {
	return TransportError{Channel: channel, Err: err}
}

// IsValidation reports whether err is or wraps a ValidationError.
func IsValidation(err error) bool {
	var ve ValidationError
	return errors.As(err, &ve)
}

// IsStorage reports whether err is or wraps a StorageError.
func IsStorage(err error) bool {
	var se StorageError
	return errors.As(err, &se)
}

// IsAuthorization reports whether err is or wraps an AuthorizationError.
func IsAuthorization(err error) bool {
	var ae AuthorizationError
	return errors.As(err, &ae)
}
