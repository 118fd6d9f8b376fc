// Package auth checks the optional shared bearer token that guards the
// control API and the development relay.
package auth

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
)

var (
	ErrMissingCredentials = errors.New("missing credentials")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// QueryParam carries the token for browser websockets, which cannot set
// request headers.
const QueryParam = "token"

// Token is a shared secret. The zero Token disables authentication.
type Token struct {
	expected []byte
}

func NewToken(secret string) Token {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return Token{}
	}
	return Token{expected: []byte(secret)}
}

func (t Token) Enabled() bool { return len(t.expected) > 0 }

func (t Token) Verify(credential string) error {
	if credential == "" {
		return ErrMissingCredentials
	}
	if subtle.ConstantTimeCompare([]byte(credential), t.expected) != 1 {
		return ErrInvalidCredentials
	}
	return nil
}

// CredentialFromRequest returns the bearer token from the Authorization
// header, falling back to the token query parameter.
func CredentialFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, cred, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(cred)
		}
		return ""
	}
	return r.URL.Query().Get(QueryParam)
}

// Allow reports whether r carries the token. It always succeeds when the
// token is disabled.
func (t Token) Allow(r *http.Request) error {
	if !t.Enabled() {
		return nil
	}
	return t.Verify(CredentialFromRequest(r))
}

// Middleware rejects unauthenticated requests with 401.
func (t Token) Middleware(next http.Handler) http.Handler {
	if !t.Enabled() {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := t.Allow(r); err != nil {
			w.Header().Set("WWW-Authenticate", `Bearer realm="voicecall"`)
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
