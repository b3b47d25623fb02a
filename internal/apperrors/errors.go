package apperrors

import (
	"errors"
	"strings"
)

type Kind string

const (
	// KindTransient covers upstream timeouts, transport failures and
	// empty/invalid responses. Retryable.
	KindTransient Kind = "transient"
	// KindRateLimit marks upstream rate limiting. Retryable.
	KindRateLimit Kind = "rate_limit"
	// KindAuth marks authentication/authorization failures. Not retryable.
	KindAuth Kind = "auth"
	// KindValidation marks an invalid request, caught before any backend
	// call. Terminal for the item.
	KindValidation Kind = "validation"
	// KindExtraction marks a transport-valid response lacking the expected
	// structured payload. The model is non-deterministic, so retrying may
	// succeed.
	KindExtraction Kind = "extraction"
	// KindPersistence marks a store write failure. Surfaced separately,
	// never flips a successful translation.
	KindPersistence Kind = "persistence"
	// KindConfig marks invalid configuration. Fatal at startup.
	KindConfig Kind = "config"
)

type Error struct {
	Kind Kind
	// SafeMessage is intended for user-facing output and logs.
	SafeMessage string
	// Cause keeps the original internal error for troubleshooting.
	Cause error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if msg := strings.TrimSpace(e.SafeMessage); msg != "" {
		return msg
	}
	if e.Cause != nil {
		return e.Cause.Error()
	}
	return "unknown error"
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func defaultSafeMessage(kind Kind) string {
	switch kind {
	case KindTransient:
		return "Temporary upstream error. Please try again."
	case KindRateLimit:
		return "Rate limit exceeded. Please try again later."
	case KindAuth:
		return "Authentication failed. Please verify your API key and permissions."
	case KindValidation:
		return "Request validation failed."
	case KindExtraction:
		return "Response did not contain the expected translations."
	case KindPersistence:
		return "Failed to persist translations."
	case KindConfig:
		return "Invalid configuration."
	default:
		return "Request failed."
	}
}

func New(kind Kind, safeMessage string, cause error) error {
	msg := strings.TrimSpace(safeMessage)
	if msg == "" {
		msg = defaultSafeMessage(kind)
	}
	return &Error{
		Kind:        kind,
		SafeMessage: msg,
		Cause:       cause,
	}
}

func Transient(err error) error {
	return New(KindTransient, "", err)
}

func RateLimit(err error) error {
	return New(KindRateLimit, "", err)
}

func Auth(err error) error {
	return New(KindAuth, "", err)
}

func Validation(err error) error {
	return New(KindValidation, "", err)
}

func Extraction(err error) error {
	return New(KindExtraction, "", err)
}

func Persistence(err error) error {
	return New(KindPersistence, "", err)
}

func Config(err error) error {
	return New(KindConfig, "", err)
}

func KindOf(err error) (Kind, bool) {
	var e *Error
	if !errors.As(err, &e) {
		return "", false
	}
	return e.Kind, true
}

func PublicMessage(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Error()
	}
	return err.Error()
}

// IsRetryable reports whether another attempt against the backend can
// reasonably succeed.
//
// Transient: server errors, timeouts, network issues
// RateLimit: upstream rate limiting
// Extraction: well-formed response without the structured payload; the LLM
// is non-deterministic, so retrying may succeed
func IsRetryable(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == KindTransient || e.Kind == KindRateLimit || e.Kind == KindExtraction
}

func IsRateLimit(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == KindRateLimit
}
