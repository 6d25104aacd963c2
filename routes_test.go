package lifecycle_test

import (
	"testing"

	lifecycle "github.com/goliatone/go-auth-lifecycle"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sessionFor(status lifecycle.Status) lifecycle.Session {
	s := lifecycle.Session{Status: status}
	if status.IsAuthenticated() {
		s.Identity = &lifecycle.Identity{ID: "user-1"}
		s.HasCredential = true
	}
	if status == lifecycle.StatusPendingVerification {
		s.PendingEmail = "ada@example.com"
	}
	return s
}

func TestDecide(t *testing.T) {
	routes := lifecycle.DefaultRoutes()

	tests := []struct {
		name     string
		path     string
		status   lifecycle.Status
		allow    bool
		redirect string
		resume   string
	}{
		{name: "admin area for admin", path: "/admin", status: lifecycle.StatusAuthenticatedAdmin, allow: true},
		{name: "admin area for member", path: "/admin/users", status: lifecycle.StatusAuthenticated, redirect: "/"},
		{name: "admin area for anonymous", path: "/admin/users", status: lifecycle.StatusAnonymous, redirect: "/"},
		{name: "admin lookalike is not admin", path: "/administrator", status: lifecycle.StatusAnonymous, redirect: "/"},
		{name: "account area for member", path: "/account/profile", status: lifecycle.StatusAuthenticated, allow: true},
		{
			name:     "account area for anonymous",
			path:     "/account/profile",
			status:   lifecycle.StatusAnonymous,
			redirect: "/login?next=%2Faccount%2Fprofile",
			resume:   "/account/profile",
		},
		{
			name:     "account area while pending",
			path:     "/account",
			status:   lifecycle.StatusPendingVerification,
			redirect: "/login?next=%2Faccount",
			resume:   "/account",
		},
		{name: "login when signed in", path: "/login", status: lifecycle.StatusAuthenticated, redirect: "/"},
		{name: "register when signed in", path: "/register/", status: lifecycle.StatusAuthenticatedAdmin, redirect: "/"},
		{name: "login when anonymous", path: "/login", status: lifecycle.StatusAnonymous, allow: true},
		{name: "verify while pending", path: "/verify-email", status: lifecycle.StatusPendingVerification, allow: true},
		{name: "home", path: "/", status: lifecycle.StatusAnonymous, allow: true},
		{name: "public page", path: "/about#team", status: lifecycle.StatusAnonymous, allow: true},
		{name: "unknown page", path: "/does-not-exist", status: lifecycle.StatusAuthenticated, redirect: "/"},
		{name: "dot segments are cleaned", path: "/about/../admin", status: lifecycle.StatusAuthenticated, redirect: "/"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := lifecycle.Decide(tt.path, sessionFor(tt.status), routes)
			assert.Equal(t, tt.allow, d.Allow)
			assert.Equal(t, tt.redirect, d.RedirectTo)
			assert.Equal(t, tt.resume, d.Resume)
		})
	}
}

func TestDecide_PublicWildcard(t *testing.T) {
	routes := lifecycle.DefaultRoutes()
	routes.Public = append(routes.Public, "/docs/*")

	assert.True(t, lifecycle.Decide("/docs/getting-started", sessionFor(lifecycle.StatusAnonymous), routes).Allow)
	assert.True(t, lifecycle.Decide("/docs", sessionFor(lifecycle.StatusAnonymous), routes).Allow)
	assert.False(t, lifecycle.Decide("/documents", sessionFor(lifecycle.StatusAnonymous), routes).Allow)
}

func TestRoutes_ResumeTarget(t *testing.T) {
	routes := lifecycle.DefaultRoutes()

	d := lifecycle.NewRouteAccessController(routes).Decide("/account/billing?plan=pro", sessionFor(lifecycle.StatusAnonymous))
	require.False(t, d.Allow)
	assert.Equal(t, "/account/billing?plan=pro", routes.ResumeTarget(d.RedirectTo))

	assert.Empty(t, routes.ResumeTarget("/login?next=https://evil.example.com"))
	assert.Empty(t, routes.ResumeTarget("/login?next=//evil.example.com"))
	assert.Empty(t, routes.ResumeTarget("/login"))

	offsite := []string{
		"/login?next=%2F%5Cevil.example",
		"/login?next=%5C%5Cevil.example",
		"/login?next=%2F%09%2Fevil.example",
		"/login?next=%2F%0A%2Fevil.example",
		"/login?next=%2Faccount%7F",
		"/login?next=javascript:alert(1)",
	}
	for _, loginURL := range offsite {
		assert.Empty(t, routes.ResumeTarget(loginURL), loginURL)
	}
	assert.Equal(t, "/account/a%5Cb", routes.ResumeTarget("/login?next=%2Faccount%2Fa%255Cb"))
}

func TestRoutes_Validate(t *testing.T) {
	assert.NoError(t, lifecycle.DefaultRoutes().Validate())

	routes := lifecycle.DefaultRoutes()
	routes.Login = "login"
	routes.Public = []string{"/ok", "relative"}

	err := routes.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "login")
}
