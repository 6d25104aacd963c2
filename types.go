package lifecycle

import (
	"context"
	"fmt"
	"time"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Backend is the contract the manager expects from the remote identity
// service. Implementations return the lifecycle sentinel errors
// (ErrInvalidCredentials, ErrInvalidCode, ErrInvalidToken, ErrExpired,
// ErrConflict, ErrValidation); anything else is treated as a network failure.
type Backend interface {
	Register(ctx context.Context, req RegistrationRequest) (PendingRegistration, error)
	VerifyEmail(ctx context.Context, pendingID, code string) (Grant, error)
	ResendVerification(ctx context.Context, pendingID string) (PendingRegistration, error)
	Login(ctx context.Context, identifier, password string) (Grant, error)
	Logout(ctx context.Context, credential string) error
	RequestPasswordReset(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, newPassword string) error
	ChangePassword(ctx context.Context, credential, currentPassword, newPassword string) error
	DeleteAccount(ctx context.Context, credential string) error
}

// RegistrationRequest is the validated registration payload sent to the backend.
type RegistrationRequest struct {
	Username    string `json:"username"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name,omitempty"`
	Phone       string `json:"phone,omitempty"`
}

// PendingRegistration identifies a registration awaiting email verification.
// ExpiresAt is optional; the configured verification TTL applies when zero.
type PendingRegistration struct {
	PendingID string    `json:"pending_id"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// Grant is what the backend hands back on a successful login or verification.
type Grant struct {
	Identity   Identity `json:"identity"`
	Credential string   `json:"credential"`
}

func (g Grant) validate() error {
	if g.Credential == "" {
		return newError(ErrInternal, "identity service returned no credential", nil)
	}
	if g.Identity.ID == "" {
		return newError(ErrInternal, "identity service returned no user id", nil)
	}
	return nil
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] LIFECYCLE "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] LIFECYCLE "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] LIFECYCLE "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] LIFECYCLE "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
