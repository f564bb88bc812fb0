// Package auth verifies marketplace-issued session JWTs. Session issuance
// lives in the marketplace auth tier; this service only reads the claims it
// needs to identify the caller and gate privileged routes.
package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

const RoleAdmin = "admin"

type SessionClaims struct {
	UserID string `json:"uid"`
	Name   string `json:"name"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

var ErrInvalidSession = errors.New("invalid session token")

// VerifySession parses and validates a session JWT with the shared secret.
func VerifySession(secret string, tokenString string) (SessionClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidSession
		}
		return []byte(secret), nil
	})
	if err != nil {
		return SessionClaims{}, ErrInvalidSession
	}
	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid || claims.UserID == "" {
		return SessionClaims{}, ErrInvalidSession
	}
	return *claims, nil
}

// SessionFromRequest pulls the session token from the Authorization header,
// falling back to the `session` query parameter for contexts that cannot set
// headers (viewer download links).
func SessionFromRequest(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	return strings.TrimSpace(r.URL.Query().Get("session"))
}
