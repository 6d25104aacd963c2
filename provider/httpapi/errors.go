package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	lifecycle "github.com/goliatone/go-auth-lifecycle"
	goerrors "github.com/goliatone/go-errors"
)

// errorBody is the error envelope the identity service answers with.
type errorBody struct {
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details,omitempty"`
	} `json:"error"`
}

var sentinelsByCode = map[string]*goerrors.Error{
	lifecycle.TextCodeValidation:         lifecycle.ErrValidation,
	lifecycle.TextCodeInvalidCredentials: lifecycle.ErrInvalidCredentials,
	lifecycle.TextCodeInvalidCode:        lifecycle.ErrInvalidCode,
	lifecycle.TextCodeInvalidToken:       lifecycle.ErrInvalidToken,
	lifecycle.TextCodeExpired:            lifecycle.ErrExpired,
	lifecycle.TextCodeAttemptsExhausted:  lifecycle.ErrAttemptsExhausted,
	lifecycle.TextCodeConflict:           lifecycle.ErrConflict,
	"DUPLICATE_EMAIL":                    lifecycle.ErrConflict,
	"TOKEN_EXPIRED":                      lifecycle.ErrExpired,
	"CODE_EXPIRED":                       lifecycle.ErrExpired,
	"UNAUTHORIZED":                       lifecycle.ErrInvalidCredentials,
}

// responseError maps a non 2xx answer onto the lifecycle taxonomy. fallback
// is used for 4xx answers without a known code.
func responseError(endpoint string, status int, body []byte, fallback *goerrors.Error) error {
	var envelope errorBody
	_ = json.Unmarshal(body, &envelope)

	code := strings.ToUpper(strings.TrimSpace(envelope.Error.Code))
	message := envelope.Error.Message

	meta := map[string]any{
		"endpoint": endpoint,
		"status":   status,
	}
	if code != "" {
		meta["code"] = code
	}
	if len(envelope.Error.Details) > 0 {
		meta["details"] = envelope.Error.Details
	}

	if status >= http.StatusInternalServerError {
		return build(lifecycle.ErrNetwork, message, meta)
	}

	if base, ok := sentinelsByCode[code]; ok {
		return build(base, message, meta)
	}

	switch status {
	case http.StatusBadRequest:
		return build(lifecycle.ErrValidation, message, meta)
	case http.StatusConflict:
		return build(lifecycle.ErrConflict, message, meta)
	case http.StatusGone:
		return build(lifecycle.ErrExpired, message, meta)
	case http.StatusTooManyRequests:
		return build(lifecycle.ErrAttemptsExhausted, message, meta)
	}

	if fallback != nil {
		return build(fallback, message, meta)
	}
	return build(lifecycle.ErrInternal, message, meta)
}

func transportError(endpoint string, err error) error {
	return wrap(lifecycle.ErrNetwork, err, map[string]any{
		"endpoint": endpoint,
		"cause":    err.Error(),
	})
}

func build(base *goerrors.Error, message string, meta map[string]any) error {
	clone := base.Clone()
	if clone == nil {
		return base
	}
	if message != "" {
		clone.Message = message
	}
	return clone.WithMetadata(meta)
}

func wrap(base *goerrors.Error, source error, meta map[string]any) error {
	clone := base.Clone()
	if clone == nil {
		return fmt.Errorf("%s: %w", base.Message, source)
	}
	clone.Source = source
	return clone.WithMetadata(meta)
}
