package transport

import (
	"context"
	"time"
)

// AuthToken is the minimal projection the transport needs from whatever
// token record an auth provider manages internally: the access token
// string and type for the Authorization header, plus an optional expiry
// the Header Composer uses to refresh proactively (§4.5) instead of
// waiting for a reactive 401.
type AuthToken struct {
	AccessToken string
	TokenType   string // usually "Bearer"
	// ExpiresAt is the access token's expiry, if known. Nil means unknown;
	// the transport then relies solely on a reactive 401 to learn the
	// token has expired.
	ExpiresAt *time.Time
}

// AuthOutcome reports what an AuthProvider did in response to a 401.
type AuthOutcome int

const (
	// AuthRefreshed means the provider obtained new credentials silently
	// (it held a refresh token or similar); the failed request should be
	// retried once with the new Authorization header.
	AuthRefreshed AuthOutcome = iota
	// AuthRedirectRequired means the provider could not refresh silently
	// and has triggered (or will trigger) an out-of-band user-interactive
	// flow; the send fails with ErrUnauthorized.
	AuthRedirectRequired
)

// AuthProvider is the Auth Coordinator's pluggable contract (§6.3). It is a
// capability interface: implementations are free to be as small as a single
// static token or as involved as a full authorization-code dance; see
// package auth for both.
type AuthProvider interface {
	// Token returns the current access token, or nil if none has been
	// acquired yet. It must not block on user interaction.
	Token(ctx context.Context) (*AuthToken, error)

	// Refresh is called once when a request (including a reconnect) gets a
	// 401; a 401 on the single retry that follows is not refreshed again. It
	// is also called before a request when the current token's ExpiresAt is
	// within the proactive-refresh window. It returns AuthRefreshed if the
	// provider silently obtained new credentials -- Token must return them
	// afterwards -- or AuthRedirectRequired if user interaction is needed.
	Refresh(ctx context.Context) (AuthOutcome, error)
}
