package auth

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestIdentifyBearerUsername(t *testing.T) {
	verifier := NewVerifier("", "root")

	req := httptest.NewRequest("GET", "/api/search?q=x", nil)
	req.Header.Set("Authorization", "Bearer alice")
	identity, err := verifier.Identify(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if identity.Username != "alice" || identity.Role != RoleUser {
		t.Fatalf("unexpected identity: %+v", identity)
	}

	req = httptest.NewRequest("GET", "/api/search?q=x&userName=bob", nil)
	identity, _ = verifier.Identify(req)
	if identity.Username != "bob" {
		t.Fatalf("expected userName fallback, got %+v", identity)
	}

	req = httptest.NewRequest("GET", "/api/search?q=x", nil)
	identity, _ = verifier.Identify(req)
	if !identity.Anonymous() {
		t.Fatalf("expected anonymous caller, got %+v", identity)
	}

	req.Header.Set("Authorization", "Bearer root")
	identity, _ = verifier.Identify(req)
	if identity.Role != RoleOwner {
		t.Fatalf("configured owner should be an owner, got %+v", identity)
	}
}

func TestVerifySignedTokens(t *testing.T) {
	verifier := NewVerifier("s3cret", "")
	token, err := verifier.Issue("carol", RoleAdmin, time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	req := httptest.NewRequest("GET", "/api/admin/source", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	identity, err := verifier.Identify(req)
	if err != nil {
		t.Fatalf("identify: %v", err)
	}
	if identity.Username != "carol" || identity.Role != RoleAdmin {
		t.Fatalf("unexpected identity: %+v", identity)
	}

	// Query fallback is ignored once tokens are signed.
	req = httptest.NewRequest("GET", "/api/search?userName=mallory", nil)
	identity, _ = verifier.Identify(req)
	if !identity.Anonymous() {
		t.Fatalf("expected anonymous caller, got %+v", identity)
	}
}

func TestVerifyRejectsBadTokens(t *testing.T) {
	verifier := NewVerifier("s3cret", "")
	other := NewVerifier("different", "")
	forged, _ := other.Issue("carol", RoleAdmin, time.Hour)

	expired := NewVerifier("s3cret", "")
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	stale, _ := expired.Issue("carol", RoleAdmin, time.Hour)

	none, _ := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{Username: "carol"}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	missingUser, _ := verifier.Issue("", RoleAdmin, time.Hour)

	for name, token := range map[string]string{
		"forged":       forged,
		"expired":      stale,
		"alg none":     none,
		"garbage":      "not-a-token",
		"missing user": missingUser,
	} {
		if _, err := verifier.Verify(token); !errors.Is(err, ErrUnauthorized) {
			t.Errorf("%s: expected ErrUnauthorized, got %v", name, err)
		}
	}
}

func TestAuthorize(t *testing.T) {
	verifier := NewVerifier("", "root")
	cases := []struct {
		identity Identity
		want     error
	}{
		{identity: Identity{}, want: ErrUnauthorized},
		{identity: Identity{Username: "alice", Role: RoleUser}, want: ErrForbidden},
		{identity: Identity{Username: "carol", Role: RoleAdmin}, want: nil},
		{identity: Identity{Username: "root", Role: RoleOwner}, want: nil},
	}
	for _, tc := range cases {
		if err := verifier.Authorize(tc.identity); !errors.Is(err, tc.want) {
			t.Errorf("Authorize(%+v) = %v, want %v", tc.identity, err, tc.want)
		}
	}
}

func TestIssueRequiresSecret(t *testing.T) {
	if _, err := NewVerifier("", "").Issue("alice", RoleUser, time.Hour); err == nil {
		t.Fatal("expected error without secret")
	}
}
