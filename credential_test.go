package lifecycle_test

import (
	"testing"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
	lifecycle "github.com/goliatone/go-auth-lifecycle"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signWithKid(t *testing.T, claims lifecycle.CredentialClaims, kid, secret string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	token.Header["kid"] = kid
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestJWTInspector_DecodesClaims(t *testing.T) {
	expires := time.Date(2026, 3, 1, 13, 0, 0, 0, time.UTC)
	credential := signedCredential(t, "user-1", expires, "member")

	info, err := lifecycle.NewJWTInspector().Inspect(credential)
	require.NoError(t, err)

	assert.Equal(t, "user-1", info.Identity.ID)
	assert.Equal(t, "ada", info.Identity.Username)
	assert.Equal(t, "ada@example.com", info.Identity.Email)
	assert.Equal(t, []string{"member"}, info.Identity.Roles)
	assert.True(t, info.ExpiresAt.Equal(expires))
}

func TestJWTInspector_ExpiredCredentialStillDecodes(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	credential := signedCredential(t, "user-1", now.Add(-time.Minute))

	info, err := lifecycle.NewJWTInspector().Inspect(credential)
	require.NoError(t, err)

	assert.True(t, info.ExpiredAt(now))
	assert.False(t, info.ExpiredAt(now.Add(-2*time.Minute)))
}

func TestJWTInspector_Rejects(t *testing.T) {
	noSubject := signedCredential(t, "", time.Now().Add(time.Hour))

	tests := []struct {
		name       string
		credential string
	}{
		{name: "empty", credential: "   "},
		{name: "opaque", credential: "not-a-jwt"},
		{name: "no subject", credential: noSubject},
	}

	inspector := lifecycle.NewJWTInspector()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := inspector.Inspect(tt.credential)
			require.Error(t, err)
			assert.True(t, lifecycle.IsKind(err, lifecycle.KindInvalidToken))
		})
	}
}

func TestGivenKeysInspector_VerifiesSignature(t *testing.T) {
	inspector := lifecycle.NewGivenKeysInspector(map[string]keyfunc.GivenKey{
		"primary": keyfunc.NewGivenCustom([]byte("signing-secret"), keyfunc.GivenKeyOptions{Algorithm: "HS256"}),
	})

	claims := lifecycle.CredentialClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-7",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
		UID:  "uid-7",
		Name: "Grace Hopper",
		Role: "admin",
	}

	t.Run("valid signature", func(t *testing.T) {
		info, err := inspector.Inspect(signWithKid(t, claims, "primary", "signing-secret"))
		require.NoError(t, err)

		assert.Equal(t, "uid-7", info.Identity.ID)
		assert.Equal(t, "Grace Hopper", info.Identity.Name())
		assert.True(t, info.Identity.IsAtLeast(lifecycle.RoleAdmin))
		assert.True(t, info.ExpiredAt(time.Now()))
	})

	t.Run("wrong key", func(t *testing.T) {
		_, err := inspector.Inspect(signWithKid(t, claims, "primary", "other-secret"))
		require.Error(t, err)
		assert.True(t, lifecycle.IsKind(err, lifecycle.KindInvalidToken))
	})

	t.Run("unknown kid", func(t *testing.T) {
		_, err := inspector.Inspect(signWithKid(t, claims, "retired", "signing-secret"))
		require.Error(t, err)
		assert.True(t, lifecycle.IsKind(err, lifecycle.KindInvalidToken))
	})
}

func TestCredentialClaims_IdentityMergesRoles(t *testing.T) {
	claims := &lifecycle.CredentialClaims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1"},
		Role:             "Admin",
		Roles:            []string{"member", "admin"},
	}

	identity := claims.Identity()
	assert.Equal(t, "user-1", identity.ID)
	assert.Equal(t, []string{"member", "admin"}, identity.Roles)

	claims.Role = "owner"
	assert.Equal(t, []string{"member", "admin", "owner"}, claims.Identity().Roles)
}

func TestCredentialInspectorFunc_Nil(t *testing.T) {
	var fn lifecycle.CredentialInspectorFunc

	_, err := fn.Inspect("anything")
	assert.ErrorIs(t, err, lifecycle.ErrInvalidToken)
}
