package provider

import (
	"errors"
	"time"
)

// Kind is the failure category a provider boundary assigns to an error.
// Classification happens exactly once, in the provider that produced the
// failure; downstream layers only inspect the tag.
type Kind string

const (
	KindRateLimited   Kind = "rate_limited"
	KindInvalidConfig Kind = "invalid_config"
	KindModelNotFound Kind = "model_not_found"
	KindTransient     Kind = "transient"
	KindFatal         Kind = "fatal"
)

// Error is the classified failure type shared by all providers.
type Error struct {
	Kind       Kind
	Provider   string
	Model      string
	Message    string
	StatusCode int
	RetryAfter time.Duration // vendor rate-limit hint, zero if absent
	Cause      error
}

func (e *Error) Error() string {
	msg := "[" + e.Provider + "] " + e.Message
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Retryable reports whether the retry policy may re-attempt the call.
func (e *Error) Retryable() bool {
	return e.Kind == KindRateLimited || e.Kind == KindTransient
}

// RateLimited builds a rate-limit error. retryAfter is the vendor's hint for
// when to try again, zero if the vendor sent none.
func RateLimited(providerName, message string, retryAfter time.Duration, cause error) *Error {
	return &Error{
		Kind:       KindRateLimited,
		Provider:   providerName,
		Message:    message,
		StatusCode: 429,
		RetryAfter: retryAfter,
		Cause:      cause,
	}
}

// InvalidConfig builds a configuration error. Never retried.
func InvalidConfig(providerName, message string) *Error {
	return &Error{Kind: KindInvalidConfig, Provider: providerName, Message: message}
}

// ModelNotFound builds an unknown-model error. Never retried.
func ModelNotFound(providerName, model string) *Error {
	return &Error{
		Kind:     KindModelNotFound,
		Provider: providerName,
		Model:    model,
		Message:  "model " + model + " is not available",
	}
}

// Transient builds a retryable network or server-side error.
func Transient(providerName, message string, cause error) *Error {
	return &Error{Kind: KindTransient, Provider: providerName, Message: message, Cause: cause}
}

// Fatal builds an unclassified vendor failure. Conservative default: never
// retried, so unknown failure modes are not masked by the retry loop.
func Fatal(providerName, message string, cause error) *Error {
	return &Error{Kind: KindFatal, Provider: providerName, Message: message, Cause: cause}
}

// KindOf extracts the classification from err, unwrapping as needed.
// Unclassified errors report KindFatal.
func KindOf(err error) Kind {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Kind
	}
	return KindFatal
}

// IsRetryable reports whether err carries a retryable classification.
func IsRetryable(err error) bool {
	var perr *Error
	return errors.As(err, &perr) && perr.Retryable()
}

// RetryAfterHint extracts the vendor rate-limit hint, zero if none.
func RetryAfterHint(err error) time.Duration {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.RetryAfter
	}
	return 0
}
