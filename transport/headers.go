package transport

import (
	"context"
	"net/http"
	"time"
)

// sessionIDHeader is the header name used to convey the opaque session id,
// matching the wire name used throughout the pack's MCP implementations.
const sessionIDHeader = "Mcp-Session-Id"

const lastEventIDHeader = "Last-Event-ID"

const defaultAccept = "application/json, text/event-stream"

// authRefreshSkew is how far ahead of a known expiry the Header Composer
// proactively asks the provider to refresh (§4.5), instead of waiting for
// the server to reject the request with a 401.
const authRefreshSkew = 30 * time.Second

// headerRequest carries everything the Header Composer needs to build one
// outbound request's headers, re-evaluated fresh on every call so that late
// mutations to caller-supplied headers and session id are always visible.
type headerRequest struct {
	method      string // POST, GET, or DELETE
	sessionID   string // "" if not yet known
	lastEventID string // "" unless this is a reconnect GET
	extra       http.Header
	authToken   *AuthToken
}

// composeHeaders merges headers in the order specified by §4.6: defaults,
// then caller overrides, then auth, then session id, then Last-Event-ID,
// then Content-Type for POST. Header names are deduped case-insensitively
// by relying on http.Header's canonicalization.
func composeHeaders(hr headerRequest) http.Header {
	h := make(http.Header)
	if hr.method != http.MethodDelete {
		h.Set("Accept", defaultAccept)
	}

	for k, vs := range hr.extra {
		h.Del(k)
		for _, v := range vs {
			h.Add(k, v)
		}
	}

	if hr.authToken != nil && hr.authToken.AccessToken != "" {
		tokenType := hr.authToken.TokenType
		if tokenType == "" {
			tokenType = "Bearer"
		}
		h.Set("Authorization", tokenType+" "+hr.authToken.AccessToken)
	}

	if hr.sessionID != "" {
		h.Set(sessionIDHeader, hr.sessionID)
	}

	if hr.lastEventID != "" {
		h.Set(lastEventIDHeader, hr.lastEventID)
	}

	if hr.method == http.MethodPost {
		h.Set("Content-Type", "application/json")
	}

	return h
}

// currentAuthToken fetches the provider's current token, if any provider is
// configured. If the token is within authRefreshSkew of its known expiry, it
// proactively asks the provider to refresh (§4.5) rather than waiting for a
// reactive 401; a refresh that requires user interaction, or that fails, is
// not fatal here -- the request proceeds with whatever token is on hand and
// the usual reactive 401 path covers it if the server rejects it.
func currentAuthToken(ctx context.Context, p AuthProvider) *AuthToken {
	if p == nil {
		return nil
	}
	tok, err := p.Token(ctx)
	if err != nil {
		return nil
	}
	if tok == nil {
		return nil
	}

	if nearExpiry(tok, authRefreshSkew) {
		if outcome, rerr := p.Refresh(ctx); rerr == nil && outcome == AuthRefreshed {
			if fresh, ferr := p.Token(ctx); ferr == nil && fresh != nil {
				return fresh
			}
		}
	}
	return tok
}

// nearExpiry reports whether tok's ExpiresAt is known and within skew of now
// (or already past it). A nil ExpiresAt means the provider has no expiry
// information, so proactive refresh is skipped entirely.
func nearExpiry(tok *AuthToken, skew time.Duration) bool {
	if tok.ExpiresAt == nil {
		return false
	}
	return time.Now().Add(skew).After(*tok.ExpiresAt)
}
