// Package auth verifies client credentials for the gateway and control API.
package auth

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
)

// ErrUnauthorized is returned when a presented token fails verification.
var ErrUnauthorized = errors.New("auth: unauthorized")

// TokenVerifier checks a presented bearer token.
type TokenVerifier interface {
	Verify(token string) error
}

// StaticVerifier compares tokens against a single shared secret.
// A nil StaticVerifier or an empty secret accepts every token, which
// matches running with auth disabled.
type StaticVerifier struct {
	secret string
}

// NewStaticVerifier creates a verifier for the shared secret. An empty
// secret disables verification.
func NewStaticVerifier(secret string) *StaticVerifier {
	return &StaticVerifier{secret: strings.TrimSpace(secret)}
}

func (v *StaticVerifier) Verify(token string) error {
	if v == nil || v.secret == "" {
		return nil
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(v.secret)) != 1 {
		return ErrUnauthorized
	}
	return nil
}

// BearerToken extracts a bearer token from a request, checking the
// Authorization header first and then the token query parameter. Websocket
// clients in browsers cannot set headers, so the query form is accepted.
func BearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

// Middleware returns a middleware that validates bearer tokens against the
// verifier. With a nil verifier all requests pass through.
func Middleware(verifier TokenVerifier, next http.HandlerFunc) http.HandlerFunc {
	if verifier == nil {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if err := verifier.Verify(BearerToken(r)); err != nil {
			w.Header().Set("Content-Type", "application/json")
			http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}
