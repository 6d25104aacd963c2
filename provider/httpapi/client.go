package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	lifecycle "github.com/goliatone/go-auth-lifecycle"
	goerrors "github.com/goliatone/go-errors"
)

// Endpoint paths, relative to Config.BaseURL.
const (
	PathRegister           = "/auth/register"
	PathVerifyEmail        = "/auth/verify-email"
	PathResendVerification = "/auth/verify-email/resend"
	PathLogin              = "/auth/login"
	PathLogout             = "/auth/logout"
	PathForgotPassword     = "/auth/password/forgot"
	PathResetPassword      = "/auth/password/reset"
	PathChangePassword     = "/auth/password/change"
	PathAccount            = "/auth/account"
)

// VerifyEmailRequest is the body of PathVerifyEmail.
type VerifyEmailRequest struct {
	PendingID string `json:"pending_id"`
	Code      string `json:"code"`
}

// ResendRequest is the body of PathResendVerification.
type ResendRequest struct {
	PendingID string `json:"pending_id"`
}

// LoginRequest is the body of PathLogin.
type LoginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

// ForgotPasswordRequest is the body of PathForgotPassword.
type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

// ResetPasswordRequest is the body of PathResetPassword.
type ResetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

// ChangePasswordRequest is the body of PathChangePassword.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// Client implements lifecycle.Backend with the fiber HTTP client.
type Client struct {
	config Config
	http   *fiber.Client
	logger lifecycle.Logger
}

var _ lifecycle.Backend = (*Client)(nil)

// NewClient creates a client for cfg.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = nopLogger{}
	}
	return &Client{
		config: cfg,
		http:   &fiber.Client{UserAgent: cfg.UserAgent},
		logger: logger,
	}
}

func (c *Client) Register(ctx context.Context, req lifecycle.RegistrationRequest) (lifecycle.PendingRegistration, error) {
	var out lifecycle.PendingRegistration
	err := c.do(ctx, fiber.MethodPost, PathRegister, "", req, &out, lifecycle.ErrValidation)
	return out, err
}

func (c *Client) VerifyEmail(ctx context.Context, pendingID, code string) (lifecycle.Grant, error) {
	var out lifecycle.Grant
	err := c.do(ctx, fiber.MethodPost, PathVerifyEmail, "", VerifyEmailRequest{PendingID: pendingID, Code: code}, &out, lifecycle.ErrInvalidCode)
	return out, err
}

func (c *Client) ResendVerification(ctx context.Context, pendingID string) (lifecycle.PendingRegistration, error) {
	var out lifecycle.PendingRegistration
	err := c.do(ctx, fiber.MethodPost, PathResendVerification, "", ResendRequest{PendingID: pendingID}, &out, lifecycle.ErrExpired)
	return out, err
}

func (c *Client) Login(ctx context.Context, identifier, password string) (lifecycle.Grant, error) {
	var out lifecycle.Grant
	err := c.do(ctx, fiber.MethodPost, PathLogin, "", LoginRequest{Identifier: identifier, Password: password}, &out, lifecycle.ErrInvalidCredentials)
	return out, err
}

func (c *Client) Logout(ctx context.Context, credential string) error {
	return c.do(ctx, fiber.MethodPost, PathLogout, credential, nil, nil, lifecycle.ErrExpired)
}

func (c *Client) RequestPasswordReset(ctx context.Context, email string) error {
	return c.do(ctx, fiber.MethodPost, PathForgotPassword, "", ForgotPasswordRequest{Email: email}, nil, lifecycle.ErrValidation)
}

func (c *Client) ResetPassword(ctx context.Context, token, newPassword string) error {
	return c.do(ctx, fiber.MethodPost, PathResetPassword, "", ResetPasswordRequest{Token: token, NewPassword: newPassword}, nil, lifecycle.ErrInvalidToken)
}

func (c *Client) ChangePassword(ctx context.Context, credential, currentPassword, newPassword string) error {
	body := ChangePasswordRequest{CurrentPassword: currentPassword, NewPassword: newPassword}
	return c.do(ctx, fiber.MethodPost, PathChangePassword, credential, body, nil, lifecycle.ErrInvalidCredentials)
}

func (c *Client) DeleteAccount(ctx context.Context, credential string) error {
	return c.do(ctx, fiber.MethodDelete, PathAccount, credential, nil, nil, lifecycle.ErrExpired)
}

type response struct {
	status int
	body   []byte
	err    error
}

// do sends one request. The fiber agent has no context support, so the call
// runs in its own goroutine and a cancelled ctx returns without waiting.
func (c *Client) do(ctx context.Context, method, path, credential string, body, out any, fallback *goerrors.Error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	timeout := c.config.Timeout
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < timeout {
			timeout = left
		}
	}

	agent := c.agent(method, c.config.url(path))
	agent.Timeout(timeout)
	agent.Set(fiber.HeaderAccept, fiber.MIMEApplicationJSON)
	if credential != "" {
		agent.Set(fiber.HeaderAuthorization, "Bearer "+credential)
	}
	if body != nil {
		agent.JSON(body)
	}

	done := make(chan response, 1)
	go func() {
		status, raw, errs := agent.Bytes()
		var err error
		if len(errs) > 0 {
			err = errs[0]
		}
		done <- response{status: status, body: raw, err: err}
	}()

	var res response
	select {
	case <-ctx.Done():
		return ctx.Err()
	case res = <-done:
	}

	if res.err != nil {
		c.logger.Warn("%s %s failed: %v", method, path, res.err)
		return transportError(path, res.err)
	}

	if res.status < http.StatusOK || res.status >= http.StatusMultipleChoices {
		err := responseError(path, res.status, res.body, fallback)
		if res.status >= http.StatusInternalServerError {
			c.logger.Warn("%s %s answered %d", method, path, res.status)
		}
		return err
	}

	if out == nil || len(res.body) == 0 {
		return nil
	}

	if err := json.Unmarshal(res.body, out); err != nil {
		return wrap(lifecycle.ErrInternal, err, map[string]any{
			"endpoint": path,
			"reason":   "undecodable response",
		})
	}
	return nil
}

func (c *Client) agent(method, url string) *fiber.Agent {
	switch method {
	case fiber.MethodDelete:
		return c.http.Delete(url)
	default:
		return c.http.Post(url)
	}
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
