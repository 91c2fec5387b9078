package assistant

import (
	"errors"
	"fmt"

	"ledgermate-backend/internal/llm"
)

// Kind classifies why an exchange ended without a completed response.
type Kind int

const (
	// KindQuotaExceeded means the tenant's daily exchange budget is spent.
	KindQuotaExceeded Kind = iota
	// KindDisabled means the assistant is switched off for the tenant.
	KindDisabled
	// KindRateLimited means the provider kept rate limiting past the retry
	// budget.
	KindRateLimited
	// KindTransient means the provider kept failing with retryable errors
	// past the retry budget.
	KindTransient
	// KindFatal means the provider rejected the request outright.
	KindFatal
	// KindTimeout means the exchange was cancelled or its deadline expired.
	KindTimeout
	// KindInternal means the orchestrator itself failed unexpectedly.
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindQuotaExceeded:
		return "quota_exceeded"
	case KindDisabled:
		return "disabled"
	case KindRateLimited:
		return "rate_limited"
	case KindTransient:
		return "transient"
	case KindFatal:
		return "fatal"
	case KindTimeout:
		return "timeout"
	default:
		return "internal"
	}
}

// Error is a classified exchange failure. Message is safe to show the user;
// Err carries the detail that stays in the logs.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf extracts the classification from an error chain. Unclassified
// errors report KindInternal.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}

// fromModelError converts a chat completion client failure into the exchange
// taxonomy with a user-safe message.
func fromModelError(err error) *Error {
	var le *llm.Error
	if errors.As(err, &le) {
		switch le.Kind {
		case llm.KindRateLimited:
			return &Error{
				Kind:    KindRateLimited,
				Message: "The assistant is handling a lot of requests right now. Please try again shortly.",
				Err:     err,
			}
		case llm.KindTransient:
			return &Error{
				Kind:    KindTransient,
				Message: "The assistant service is temporarily unavailable. Please try again.",
				Err:     err,
			}
		case llm.KindTimeout:
			return &Error{
				Kind:    KindTimeout,
				Message: "The request took too long and was cancelled.",
				Err:     err,
			}
		}
	}
	return &Error{
		Kind:    KindFatal,
		Message: "The assistant could not process this request.",
		Err:     err,
	}
}
