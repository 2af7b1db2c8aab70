package llm

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"
)

// LLMError is the base error type for all LLM client errors.
type LLMError struct {
	Code    int
	Message string
	Cause   error
}

func (e *LLMError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("llm error %d: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("llm error %d: %s", e.Code, e.Message)
}

func (e *LLMError) Unwrap() error { return e.Cause }

// StatusCode reports the HTTP status the provider answered with.
func (e *LLMError) StatusCode() int { return e.Code }

// RateLimitError is returned when the provider rate-limits the request.
type RateLimitError struct{ LLMError }

// ServerError is returned on 5xx responses from the provider.
type ServerError struct{ LLMError }

// AuthError is returned on authentication/authorization failures.
type AuthError struct{ LLMError }

// ContextLengthError is returned when the request exceeds the model's context window.
type ContextLengthError struct{ LLMError }

// ContentFilterError is returned when the request is blocked by the provider's safety filter.
type ContentFilterError struct{ LLMError }

// MalformedResponseError is returned when the provider answered 2xx with a
// body that does not contain a usable completion.
type MalformedResponseError struct {
	Message string
}

func (e *MalformedResponseError) Error() string {
	return "malformed completion response: " + e.Message
}

// StatusError builds the typed error for an HTTP status, as the providers
// classify them.
func StatusError(code int, message string, cause error) error {
	base := LLMError{Code: code, Message: message, Cause: cause}
	switch {
	case code == 429:
		return &RateLimitError{LLMError: base}
	case code == 401 || code == 403:
		return &AuthError{LLMError: base}
	case code == 400 || code == 413:
		return &ContextLengthError{LLMError: base}
	case code >= 500:
		return &ServerError{LLMError: base}
	default:
		return &base
	}
}

// ErrorKind classifies a failed model invocation.
type ErrorKind string

const (
	KindNetwork   ErrorKind = "network"
	KindStatus    ErrorKind = "status"
	KindMalformed ErrorKind = "malformed"
	KindTimeout   ErrorKind = "timeout"
	KindCanceled  ErrorKind = "canceled"
	KindBinding   ErrorKind = "binding"
)

// ModelInvocationError carries the stage a failed completion belonged to.
type ModelInvocationError struct {
	Stage string
	Kind  ErrorKind
	Err   error
}

func (e *ModelInvocationError) Error() string {
	return fmt.Sprintf("%s: model invocation failed (%s): %v", e.Stage, e.Kind, e.Err)
}

func (e *ModelInvocationError) Unwrap() error { return e.Err }

// InvocationError wraps err for stage, classifying it. An err that is already
// a ModelInvocationError keeps its kind and gets the new stage.
func InvocationError(stage string, err error) *ModelInvocationError {
	var mie *ModelInvocationError
	if errors.As(err, &mie) {
		return &ModelInvocationError{Stage: stage, Kind: mie.Kind, Err: mie.Err}
	}
	return &ModelInvocationError{Stage: stage, Kind: Classify(err), Err: err}
}

// Classify maps an error from a Client to an ErrorKind.
func Classify(err error) ErrorKind {
	var (
		status    interface{ StatusCode() int }
		malformed *MalformedResponseError
		timeout   interface{ Timeout() bool }
	)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, context.Canceled):
		return KindCanceled
	case errors.As(err, &malformed):
		return KindMalformed
	case errors.As(err, &status):
		return KindStatus
	case errors.As(err, &timeout) && timeout.Timeout():
		return KindTimeout
	default:
		return KindNetwork
	}
}

// Retryable returns true if the error is transient and the request may be retried.
func Retryable(err error) bool {
	var rl *RateLimitError
	var se *ServerError
	return errors.As(err, &rl) || errors.As(err, &se)
}

// backoffBase is the first retry wait. Tests shrink it.
var backoffBase = time.Second

// WithRetry retries fn up to maxAttempts using exponential backoff with jitter.
// It respects context cancellation.
func WithRetry(ctx context.Context, maxAttempts int, fn func() error) error {
	attempts := max(1, maxAttempts)
	var lastErr error
	for i := range attempts {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !Retryable(lastErr) {
			return lastErr
		}
		if i == attempts-1 {
			break
		}
		// Exponential backoff: max 30s, ±25% jitter
		base := backoffBase << uint(i)
		if base > 30*time.Second {
			base = 30 * time.Second
		}
		jitter := time.Duration(rand.Float64() * 0.5 * float64(base))
		wait := base/4*3 + jitter
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	if attempts == 1 {
		return lastErr
	}
	return fmt.Errorf("max retries (%d) exceeded: %w", attempts, lastErr)
}
