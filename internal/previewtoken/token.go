// Package previewtoken mints and verifies the signed capability tokens that
// authorize a single (user, bucket, path) preview fetch through the proxy.
package previewtoken

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Payload is the signed token body. UserID, Bucket, Path and Exp control the
// proxy's behavior and are all covered by the signature; QuoteID, FileID and
// Filename are audit context only and never loosen verification.
type Payload struct {
	UserID   string `json:"uid"`
	Bucket   string `json:"bkt"`
	Path     string `json:"pth"`
	Exp      int64  `json:"exp"`
	QuoteID  string `json:"qid,omitempty"`
	FileID   string `json:"fid,omitempty"`
	Filename string `json:"fn,omitempty"`
}

var (
	ErrMalformedToken = errors.New("malformed preview token")
	ErrInvalidToken   = errors.New("invalid preview token")
	ErrExpiredToken   = errors.New("expired preview token")
)

// Issue signs a payload. The encoding is URL-safe so the token can ride in a
// query string unescaped.
func Issue(secret []byte, payload Payload) (string, error) {
	if payload.UserID == "" || payload.Bucket == "" || payload.Path == "" {
		return "", fmt.Errorf("issue preview token: userId, bucket and path are required")
	}
	if payload.Exp <= time.Now().Unix() {
		return "", fmt.Errorf("issue preview token: exp must be in the future")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	encoded := base64.RawURLEncoding.EncodeToString(body)
	return encoded + "." + sign(secret, encoded), nil
}

// Verify checks the signature before anything else so a tampered token never
// reaches expiry or structure inspection.
func Verify(secret []byte, token string) (Payload, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 2 {
		return Payload{}, ErrMalformedToken
	}
	encoded, signature := parts[0], parts[1]

	expected := sign(secret, encoded)
	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return Payload{}, ErrInvalidToken
	}

	decoded, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return Payload{}, ErrMalformedToken
	}
	var payload Payload
	if err := json.Unmarshal(decoded, &payload); err != nil {
		return Payload{}, ErrMalformedToken
	}
	if payload.UserID == "" || payload.Bucket == "" || payload.Path == "" || payload.Exp == 0 {
		return Payload{}, ErrMalformedToken
	}
	if time.Now().Unix() >= payload.Exp {
		return Payload{}, ErrExpiredToken
	}
	return payload, nil
}

func sign(secret []byte, encoded string) string {
	sum := hmac.New(sha256.New, secret)
	_, _ = sum.Write([]byte(encoded))
	return base64.RawURLEncoding.EncodeToString(sum.Sum(nil))
}
