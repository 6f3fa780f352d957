// Package auth resolves the caller of a request and decides whether it may use
// admin endpoints.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	RoleOwner = "owner"
	RoleAdmin = "admin"
	RoleUser  = "user"

	bearerPrefix = "Bearer "
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
)

// Identity is who made a request. The zero value is the anonymous caller.
type Identity struct {
	Username string `json:"username"`
	Role     string `json:"role"`
}

func (i Identity) Anonymous() bool {
	return i.Username == ""
}

// Claims is the token payload issued for a user.
type Claims struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

type Verifier struct {
	secret []byte
	owner  string
	now    func() time.Time
}

// NewVerifier builds a verifier. With an empty secret the bearer value itself is
// taken as the username and no signature is checked.
func NewVerifier(secret, owner string) *Verifier {
	return &Verifier{
		secret: []byte(strings.TrimSpace(secret)),
		owner:  strings.TrimSpace(owner),
		now:    time.Now,
	}
}

func (v *Verifier) SignedTokens() bool {
	return len(v.secret) > 0
}

// Identify reads the caller from the Authorization header. Without a header the
// userName query parameter is accepted when tokens are not signed.
func (v *Verifier) Identify(r *http.Request) (Identity, error) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	token := ""
	if strings.HasPrefix(header, bearerPrefix) {
		token = strings.TrimSpace(strings.TrimPrefix(header, bearerPrefix))
	}

	if v.SignedTokens() {
		if token == "" {
			return Identity{}, nil
		}
		return v.Verify(token)
	}

	username := token
	if username == "" {
		username = strings.TrimSpace(r.URL.Query().Get("userName"))
	}
	if username == "" {
		return Identity{}, nil
	}
	return v.identity(username, RoleUser), nil
}

// Verify checks an HS256 token and returns its identity.
func (v *Verifier) Verify(raw string) (Identity, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}
	if strings.TrimSpace(claims.Username) == "" {
		return Identity{}, fmt.Errorf("%w: token has no username", ErrUnauthorized)
	}
	role := strings.TrimSpace(claims.Role)
	if role == "" {
		role = RoleUser
	}
	return v.identity(strings.TrimSpace(claims.Username), role), nil
}

// Issue signs a token for username. Used by the operator CLI.
func (v *Verifier) Issue(username, role string, ttl time.Duration) (string, error) {
	if !v.SignedTokens() {
		return "", errors.New("token signing requires a secret")
	}
	now := v.now()
	claims := Claims{
		Username: username,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// Authorize allows owners and admins. The configured owner is always an owner.
func (v *Verifier) Authorize(identity Identity) error {
	if identity.Anonymous() {
		return ErrUnauthorized
	}
	switch identity.Role {
	case RoleOwner, RoleAdmin:
		return nil
	}
	return ErrForbidden
}

func (v *Verifier) identity(username, role string) Identity {
	if v.owner != "" && username == v.owner {
		role = RoleOwner
	}
	return Identity{Username: username, Role: role}
}
