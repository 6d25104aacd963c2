package cli_test

import (
	"bytes"
	"net"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	lifecycle "github.com/goliatone/go-auth-lifecycle"
	"github.com/goliatone/go-auth-lifecycle/internal/cli"
	"github.com/goliatone/go-auth-lifecycle/provider/httpapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	t     *testing.T
	api   string
	store string
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	credential := signedCredential(t)

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Post(httpapi.PathLogin, func(c *fiber.Ctx) error {
		var req httpapi.LoginRequest
		if err := c.BodyParser(&req); err != nil {
			return err
		}
		if req.Password != "correct-horse" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": fiber.Map{"code": "INVALID_CREDENTIALS", "message": "wrong username or password"},
			})
		}
		return c.JSON(lifecycle.Grant{
			Credential: credential,
			Identity: lifecycle.Identity{
				ID:       "user-1",
				Username: "ada",
				Email:    "ada@example.com",
				Roles:    []string{"admin"},
			},
		})
	})
	app.Post(httpapi.PathLogout, func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})
	app.Delete(httpapi.PathAccount, func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() {
		_ = app.Listener(ln)
	}()
	t.Cleanup(func() {
		_ = app.Shutdown()
	})

	return &harness{
		t:     t,
		api:   "http://" + ln.Addr().String(),
		store: filepath.Join(t.TempDir(), "session.db"),
	}
}

func signedCredential(t *testing.T) string {
	t.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, lifecycle.CredentialClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		Username: "ada",
		Email:    "ada@example.com",
		Roles:    []string{"admin"},
	})
	signed, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return signed
}

func (h *harness) run(stdin string, args ...string) (string, string, error) {
	h.t.Helper()

	var out, errOut bytes.Buffer
	cmd := cli.NewRootCommand()
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append([]string{"--api", h.api, "--store", h.store}, args...))

	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func TestCLI_LoginPersistsAcrossInvocations(t *testing.T) {
	h := newHarness(t)

	out, errOut, err := h.run("", "login", "ada", "--password", "correct-horse")
	require.NoError(t, err, errOut)
	assert.Contains(t, out, "status: authenticated_admin")
	assert.Contains(t, errOut, "Signed in")

	out, _, err = h.run("", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "authenticated_admin")
	assert.Contains(t, out, "user-1")

	out, _, err = h.run("", "route", "/admin/users")
	require.NoError(t, err)
	assert.Contains(t, out, `"allow": true`)

	out, _, err = h.run("", "logout")
	require.NoError(t, err)
	assert.Contains(t, out, "status: anonymous")

	out, _, err = h.run("", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "anonymous")
	assert.NotContains(t, out, "user-1")
}

func TestCLI_LoginFailure(t *testing.T) {
	h := newHarness(t)

	_, errOut, err := h.run("", "login", "ada", "--password", "wrong-password")
	require.Error(t, err)
	assert.True(t, lifecycle.IsKind(err, lifecycle.KindInvalidCredentials))
	assert.Contains(t, errOut, "Sign in failed")

	_, errOut, err = h.run("\n", "login", "", "--password", "x")
	require.Error(t, err)
	assert.True(t, lifecycle.IsKind(err, lifecycle.KindValidation))
	assert.Contains(t, errOut, "identifier")
}

func TestCLI_DeleteRequiresConfirmation(t *testing.T) {
	h := newHarness(t)

	_, _, err := h.run("", "login", "ada", "--password", "correct-horse")
	require.NoError(t, err)

	_, errOut, err := h.run("nope\n", "delete")
	require.NoError(t, err)
	assert.Contains(t, errOut, "cancelled")

	out, _, err := h.run("", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "authenticated_admin")

	out, errOut, err = h.run("DELETE\n", "delete")
	require.NoError(t, err, errOut)
	assert.Contains(t, out, "status: anonymous")
	assert.Contains(t, errOut, "Account deleted")

	out, _, err = h.run("", "status")
	require.NoError(t, err)
	assert.NotContains(t, out, "user-1")
}

func TestCLI_SealedStore(t *testing.T) {
	t.Setenv("AUTHCTL_PASSPHRASE", "correct horse battery staple")
	h := newHarness(t)

	_, _, err := h.run("", "login", "ada", "--password", "correct-horse")
	require.NoError(t, err)

	out, _, err := h.run("", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "authenticated_admin")
}
