package auth

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func issueTestSession(t *testing.T, secret, userID, role string, ttl time.Duration) string {
	t.Helper()
	claims := SessionClaims{
		UserID: userID,
		Name:   "Avery",
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign session: %v", err)
	}
	return token
}

func TestVerifySession(t *testing.T) {
	token := issueTestSession(t, "secret", "user-1", RoleAdmin, time.Hour)
	claims, err := VerifySession("secret", token)
	if err != nil {
		t.Fatalf("VerifySession() error = %v", err)
	}
	if claims.UserID != "user-1" || claims.Role != RoleAdmin {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestVerifySessionRejectsExpired(t *testing.T) {
	token := issueTestSession(t, "secret", "user-1", "buyer", -time.Minute)
	if _, err := VerifySession("secret", token); err == nil {
		t.Fatal("expected expired session to fail verification")
	}
}

func TestVerifySessionRejectsWrongSecret(t *testing.T) {
	token := issueTestSession(t, "secret-a", "user-1", "buyer", time.Hour)
	if _, err := VerifySession("secret-b", token); err == nil {
		t.Fatal("expected wrong-secret session to fail verification")
	}
}

func TestSessionFromRequest(t *testing.T) {
	r := httptest.NewRequest("GET", "/api/quotes/42/files", nil)
	r.Header.Set("Authorization", "Bearer abc")
	if got := SessionFromRequest(r); got != "abc" {
		t.Fatalf("expected header token, got %q", got)
	}

	r = httptest.NewRequest("GET", "/api/quotes/42/files?session=def", nil)
	if got := SessionFromRequest(r); got != "def" {
		t.Fatalf("expected query token, got %q", got)
	}
}
