package llm

import (
	"errors"
	"fmt"
)

// Kind classifies a provider failure. The orchestrator maps these onto
// user-safe outcomes; raw provider detail is only ever logged.
type Kind int

const (
	// KindRateLimited means the provider returned a rate-limit signal (429).
	// Retried with exponential backoff.
	KindRateLimited Kind = iota
	// KindTransient covers request timeouts and 502/503/504 responses.
	// Retried with a gentler backoff.
	KindTransient
	// KindFatal covers everything else: malformed requests, auth failures,
	// unexpected status codes. Never retried.
	KindFatal
	// KindTimeout means the caller's deadline expired or the call was
	// cancelled. Never retried; distinct from upstream failure.
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindRateLimited:
		return "rate_limited"
	case KindTransient:
		return "transient"
	case KindFatal:
		return "fatal"
	case KindTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// ErrUnknownRole is returned when a message carries a role the provider wire
// format does not define. This is an input error: no request is sent.
var ErrUnknownRole = errors.New("unknown message role")

// Error is a classified provider failure.
type Error struct {
	Kind    Kind
	Status  int    // HTTP status when applicable, 0 otherwise
	Message string // provider-supplied detail, for logs only
	Err     error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("llm %s [%d]: %s", e.Kind, e.Status, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("llm %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("llm %s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf extracts the failure kind from err, defaulting to KindFatal for
// errors that did not originate in this package.
func KindOf(err error) Kind {
	var lerr *Error
	if errors.As(err, &lerr) {
		return lerr.Kind
	}
	return KindFatal
}

// retryable reports whether a failure kind may be retried at all.
func retryable(k Kind) bool {
	return k == KindRateLimited || k == KindTransient
}
