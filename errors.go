package lifecycle

import (
	"context"
	"errors"
	"net/http"

	goerrors "github.com/goliatone/go-errors"
)

// Kind classifies lifecycle failures so callers can render precise messages.
type Kind string

const (
	KindNone               Kind = ""
	KindValidation         Kind = "validation"
	KindInvalidCredentials Kind = "invalid_credentials"
	KindInvalidCode        Kind = "invalid_code"
	KindInvalidToken       Kind = "invalid_token"
	KindExpired            Kind = "expired"
	KindAttemptsExhausted  Kind = "attempts_exhausted"
	KindConflict           Kind = "conflict"
	KindNetwork            Kind = "network"
	KindInvalidTransition  Kind = "invalid_transition"
	KindAbandoned          Kind = "abandoned"
	KindInternal           Kind = "internal"
)

const (
	TextCodeValidation         = "VALIDATION_ERROR"
	TextCodeInvalidCredentials = "INVALID_CREDENTIALS"
	TextCodeInvalidCode        = "INVALID_CODE"
	TextCodeInvalidToken       = "INVALID_TOKEN"
	TextCodeExpired            = "EXPIRED"
	TextCodeAttemptsExhausted  = "ATTEMPTS_EXHAUSTED"
	TextCodeConflict           = "CONFLICT"
	TextCodeOperationInFlight  = "OPERATION_IN_FLIGHT"
	TextCodeNetwork            = "NETWORK_ERROR"
	TextCodeInvalidTransition  = "INVALID_SESSION_TRANSITION"
	TextCodeAbandoned          = "OPERATION_ABANDONED"
	TextCodeCredentialStorage  = "CREDENTIAL_STORAGE_FAILED"
	TextCodeInternal           = "INTERNAL_ERROR"
)

// ErrValidation is returned for local, pre-network input failures.
var ErrValidation = goerrors.New("invalid input", goerrors.CategoryValidation).
	WithTextCode(TextCodeValidation).
	WithCode(goerrors.CodeBadRequest)

// ErrInvalidCredentials is returned when the backend rejects a credential pair
// or the current password.
var ErrInvalidCredentials = goerrors.New("invalid credentials", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidCredentials).
	WithCode(goerrors.CodeUnauthorized)

// ErrInvalidCode is returned when the backend rejects a verification code.
var ErrInvalidCode = goerrors.New("invalid verification code", goerrors.CategoryValidation).
	WithTextCode(TextCodeInvalidCode).
	WithCode(http.StatusUnprocessableEntity)

// ErrInvalidToken is returned for rejected reset tokens and undecodable credentials.
var ErrInvalidToken = goerrors.New("invalid token", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidToken).
	WithCode(goerrors.CodeUnauthorized)

// ErrExpired is returned when a code, token, confirmation window or session is stale.
var ErrExpired = goerrors.New("expired", goerrors.CategoryAuth).
	WithTextCode(TextCodeExpired).
	WithCode(http.StatusGone)

// ErrAttemptsExhausted is returned once a workflow has no attempts left.
var ErrAttemptsExhausted = goerrors.New("no attempts remaining", goerrors.CategoryRateLimit).
	WithTextCode(TextCodeAttemptsExhausted).
	WithCode(http.StatusTooManyRequests)

// ErrConflict is returned for duplicate resources.
var ErrConflict = goerrors.New("conflict", goerrors.CategoryConflict).
	WithTextCode(TextCodeConflict).
	WithCode(goerrors.CodeConflict)

// ErrOperationInFlight is returned when a mutating operation is issued while
// another one is still pending. It is a Conflict.
var ErrOperationInFlight = goerrors.New("another session operation is in progress", goerrors.CategoryConflict).
	WithTextCode(TextCodeOperationInFlight).
	WithCode(goerrors.CodeConflict)

// ErrNetwork is returned for transport failures. Retrying is up to the caller.
var ErrNetwork = goerrors.New("identity service unreachable", goerrors.CategoryOperation).
	WithTextCode(TextCodeNetwork).
	WithCode(http.StatusServiceUnavailable)

// ErrInvalidTransition is returned when an operation is not valid in the
// current session state.
var ErrInvalidTransition = goerrors.New("invalid session transition", goerrors.CategoryValidation).
	WithTextCode(TextCodeInvalidTransition).
	WithCode(goerrors.CodeBadRequest)

// ErrAbandoned is returned when a result arrived after its operation was
// abandoned (logout, expiry, AbandonWorkflow or context cancellation).
var ErrAbandoned = goerrors.New("operation abandoned", goerrors.CategoryOperation).
	WithTextCode(TextCodeAbandoned).
	WithCode(http.StatusRequestTimeout)

// ErrCredentialStorage is returned when the token store could not persist a credential.
var ErrCredentialStorage = goerrors.New("could not store credential", goerrors.CategoryInternal).
	WithTextCode(TextCodeCredentialStorage).
	WithCode(goerrors.CodeInternal)

// ErrInternal covers incomplete backend answers and misconfiguration.
var ErrInternal = goerrors.New("internal error", goerrors.CategoryInternal).
	WithTextCode(TextCodeInternal).
	WithCode(goerrors.CodeInternal)

var kindsByTextCode = map[string]Kind{
	TextCodeValidation:         KindValidation,
	TextCodeInvalidCredentials: KindInvalidCredentials,
	TextCodeInvalidCode:        KindInvalidCode,
	TextCodeInvalidToken:       KindInvalidToken,
	TextCodeExpired:            KindExpired,
	TextCodeAttemptsExhausted:  KindAttemptsExhausted,
	TextCodeConflict:           KindConflict,
	TextCodeOperationInFlight:  KindConflict,
	TextCodeNetwork:            KindNetwork,
	TextCodeInvalidTransition:  KindInvalidTransition,
	TextCodeAbandoned:          KindAbandoned,
	TextCodeCredentialStorage:  KindInternal,
	TextCodeInternal:           KindInternal,
}

// KindOf returns the lifecycle Kind of err, walking wrapped errors until it
// finds a known text code. Unknown errors are KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}

	for e := err; e != nil; e = errors.Unwrap(e) {
		if rich, ok := e.(*goerrors.Error); ok {
			if kind, known := kindsByTextCode[rich.TextCode]; known {
				return kind
			}
		}
	}

	return KindInternal
}

// IsKind reports whether err is classified as kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// TextCode returns the go-errors text code carried by err, if any.
func TextCode(err error) string {
	var rich *goerrors.Error
	if goerrors.As(err, &rich) && rich != nil {
		return rich.TextCode
	}
	return ""
}

func newError(base *goerrors.Error, message string, metadata map[string]any) error {
	clone := base.Clone()
	if clone == nil {
		return base
	}
	if message != "" {
		clone.Message = message
	}
	if len(metadata) > 0 {
		return clone.WithMetadata(metadata)
	}
	return clone
}

func wrapError(base *goerrors.Error, source error, metadata map[string]any) error {
	clone := base.Clone()
	if clone == nil {
		return base
	}
	clone.Source = source
	if len(metadata) > 0 {
		return clone.WithMetadata(metadata)
	}
	return clone
}

func transitionError(from, to Status, operation string) error {
	return newError(ErrInvalidTransition, "", map[string]any{
		"from":      from,
		"to":        to,
		"operation": operation,
	})
}

// normalizeBackendError keeps lifecycle errors as they are and maps anything
// else a Backend returns onto the taxonomy.
func normalizeBackendError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.Canceled) {
		return wrapError(ErrAbandoned, err, nil)
	}

	if KindOf(err) != KindInternal {
		return err
	}

	var rich *goerrors.Error
	if goerrors.As(err, &rich) && rich != nil && rich.TextCode == TextCodeInternal {
		return err
	}

	return wrapError(ErrNetwork, err, map[string]any{"cause": err.Error()})
}

func errorMetadata(err error) map[string]any {
	var rich *goerrors.Error
	if goerrors.As(err, &rich) && rich != nil {
		return rich.Metadata
	}
	return nil
}

func errorMessage(err error) string {
	if err == nil {
		return ""
	}
	var rich *goerrors.Error
	if goerrors.As(err, &rich) && rich != nil && rich.Message != "" {
		return rich.Message
	}
	return err.Error()
}
