package apikey

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a rejected request.
type Kind string

// Rejection kinds.
const (
	KindMissingCredential Kind = "MissingCredential"
	KindUnknownKey        Kind = "UnknownKey"
	KindClockSkewExceeded Kind = "ClockSkewExceeded"
	KindSignatureMismatch Kind = "SignatureMismatch"
	KindReplayDetected    Kind = "ReplayDetected"
	KindStoreUnavailable  Kind = "StoreUnavailable"
)

// Sentinel errors, one per Kind. A *ValidationError matches the sentinel
// of its kind with errors.Is.
var (
	ErrMissingCredential = errors.New("missing credential")
	ErrUnknownKey        = errors.New("unknown api key")
	ErrClockSkewExceeded = errors.New("request timestamp outside allowed window")
	ErrSignatureMismatch = errors.New("signature mismatch")
	ErrReplayDetected    = errors.New("nonce already used")
	ErrStoreUnavailable  = errors.New("nonce store unavailable")
)

var kindSentinels = map[Kind]error{
	KindMissingCredential: ErrMissingCredential,
	KindUnknownKey:        ErrUnknownKey,
	KindClockSkewExceeded: ErrClockSkewExceeded,
	KindSignatureMismatch: ErrSignatureMismatch,
	KindReplayDetected:    ErrReplayDetected,
	KindStoreUnavailable:  ErrStoreUnavailable,
}

// HTTPStatus maps a kind onto the response status code.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindReplayDetected:
		return http.StatusForbidden
	case KindStoreUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusUnauthorized
	}
}

// ValidationError is returned by validators for every rejected request.
type ValidationError struct {
	Kind    Kind
	Message string
	KeyID   string
	Cause   error
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying error.
func (e *ValidationError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is the sentinel for this error's kind.
func (e *ValidationError) Is(target error) bool {
	sentinel, ok := kindSentinels[e.Kind]
	return ok && sentinel == target
}

// HTTPStatus returns the response status code for the error.
func (e *ValidationError) HTTPStatus() int {
	return e.Kind.HTTPStatus()
}

func reject(kind Kind, keyID, message string) *ValidationError {
	return &ValidationError{Kind: kind, KeyID: keyID, Message: message}
}

// AsValidationError extracts a *ValidationError from err.
func AsValidationError(err error) (*ValidationError, bool) {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr, true
	}
	return nil, false
}
