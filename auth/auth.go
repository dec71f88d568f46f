// Package auth implements the Auth Coordinator's pluggable AuthProvider
// contract (transport.AuthProvider) against golang.org/x/oauth2: a static
// token source for pre-issued credentials, and a simplified
// authorization-code flow for interactive login against a preregistered
// OAuth client.
package auth

import (
	"crypto/rand"
	"encoding/base64"
)

// randomState returns a URL-safe random string suitable for an OAuth state
// or PKCE code_verifier parameter.
func randomState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
