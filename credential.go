package lifecycle

import (
	"errors"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
)

// CredentialInfo is what the manager learns from a stored credential.
type CredentialInfo struct {
	Identity  Identity
	ExpiresAt time.Time
	IssuedAt  time.Time
}

// ExpiredAt reports whether the credential is stale at now. Credentials
// without an expiry never go stale locally.
func (c CredentialInfo) ExpiredAt(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt)
}

// CredentialInspector decodes a credential. It must not decide freshness;
// the manager compares ExpiresAt with its own clock.
type CredentialInspector interface {
	Inspect(credential string) (CredentialInfo, error)
}

// CredentialInspectorFunc adapts a function into a CredentialInspector.
type CredentialInspectorFunc func(credential string) (CredentialInfo, error)

// Inspect satisfies the CredentialInspector interface.
func (f CredentialInspectorFunc) Inspect(credential string) (CredentialInfo, error) {
	if f == nil {
		return CredentialInfo{}, ErrInvalidToken
	}
	return f(credential)
}

// CredentialClaims is the JWT payload the inspectors understand.
type CredentialClaims struct {
	jwt.RegisteredClaims
	UID      string   `json:"uid,omitempty"`
	Username string   `json:"username,omitempty"`
	Name     string   `json:"name,omitempty"`
	Email    string   `json:"email,omitempty"`
	Role     string   `json:"role,omitempty"`
	Roles    []string `json:"roles,omitempty"`
}

// UserID returns the user ID, falling back to the subject.
func (c *CredentialClaims) UserID() string {
	if c.UID != "" {
		return c.UID
	}
	return c.Subject
}

// Identity builds the session identity carried by the claims.
func (c *CredentialClaims) Identity() Identity {
	roles := append([]string(nil), c.Roles...)
	if c.Role != "" {
		found := false
		for _, r := range roles {
			if strings.EqualFold(r, c.Role) {
				found = true
				break
			}
		}
		if !found {
			roles = append(roles, c.Role)
		}
	}

	return Identity{
		ID:          c.UserID(),
		Username:    c.Username,
		DisplayName: c.Name,
		Email:       c.Email,
		Roles:       roles,
	}
}

func (c *CredentialClaims) info() CredentialInfo {
	info := CredentialInfo{Identity: c.Identity()}
	if c.ExpiresAt != nil {
		info.ExpiresAt = c.ExpiresAt.Time
	}
	if c.IssuedAt != nil {
		info.IssuedAt = c.IssuedAt.Time
	}
	return info
}

// JWTInspector reads JWT credentials. Without a key function the signature is
// not checked; the backend stays the authority and the client only needs the
// claims to rebuild the session.
type JWTInspector struct {
	parser  *jwt.Parser
	keyfunc jwt.Keyfunc
}

var _ CredentialInspector = (*JWTInspector)(nil)

// NewJWTInspector returns an inspector that decodes claims without verifying
// the signature.
func NewJWTInspector() *JWTInspector {
	return &JWTInspector{parser: jwt.NewParser()}
}

// NewKeyfuncInspector verifies signatures with kf. Time based claims are not
// validated here.
func NewKeyfuncInspector(kf jwt.Keyfunc, opts ...jwt.ParserOption) *JWTInspector {
	opts = append([]jwt.ParserOption{jwt.WithoutClaimsValidation()}, opts...)
	return &JWTInspector{
		parser:  jwt.NewParser(opts...),
		keyfunc: kf,
	}
}

// NewJWKSInspector verifies signatures against a remote JWK Set. The returned
// stop function ends the background refresh.
func NewJWKSInspector(jwksURL string, refresh time.Duration, logger Logger) (*JWTInspector, func(), error) {
	if logger == nil {
		logger = defLogger{}
	}
	if refresh <= 0 {
		refresh = time.Hour
	}

	jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{
		RefreshErrorHandler: func(err error) {
			logger.Warn("failed to do a background refresh of JWK set: %v", err)
		},
		RefreshInterval:   refresh,
		RefreshRateLimit:  time.Minute * 5,
		RefreshTimeout:    time.Second * 10,
		RefreshUnknownKID: true,
	})
	if err != nil {
		return nil, nil, wrapError(ErrInternal, err, map[string]any{"jwks_url": jwksURL})
	}

	return NewKeyfuncInspector(jwks.Keyfunc), jwks.EndBackground, nil
}

// NewGivenKeysInspector verifies signatures against a fixed set of keys,
// indexed by key id.
func NewGivenKeysInspector(keys map[string]keyfunc.GivenKey) *JWTInspector {
	return NewKeyfuncInspector(keyfunc.NewGiven(keys).Keyfunc)
}

// Inspect decodes credential and maps its claims.
func (i *JWTInspector) Inspect(credential string) (CredentialInfo, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return CredentialInfo{}, newError(ErrInvalidToken, "credential is empty", nil)
	}

	claims := &CredentialClaims{}
	var err error
	if i.keyfunc == nil {
		_, _, err = i.parser.ParseUnverified(credential, claims)
	} else {
		_, err = i.parser.ParseWithClaims(credential, claims, i.keyfunc)
	}
	if err != nil {
		return CredentialInfo{}, normalizeCredentialError(err)
	}

	if claims.UserID() == "" {
		return CredentialInfo{}, newError(ErrInvalidToken, "credential has no subject", nil)
	}

	return claims.info(), nil
}

func normalizeCredentialError(err error) error {
	base := ErrInvalidToken
	if errors.Is(err, jwt.ErrTokenExpired) {
		base = ErrExpired
	}
	return wrapError(base, err, map[string]any{"cause": err.Error()})
}
