package auth

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"

	"github.com/mcpstream/client/transport"
)

// StaticProvider adapts an oauth2.TokenSource (client-credentials, a
// refresh-token source, or any other non-interactive source) to
// transport.AuthProvider. It never triggers user interaction: if the
// wrapped source cannot produce a token, Refresh reports
// transport.AuthRedirectRequired.
type StaticProvider struct {
	Source oauth2.TokenSource
}

var _ transport.AuthProvider = (*StaticProvider)(nil)

func (p *StaticProvider) Token(ctx context.Context) (*transport.AuthToken, error) {
	if p.Source == nil {
		return nil, nil
	}
	tok, err := p.Source.Token()
	if err != nil {
		return nil, fmt.Errorf("auth: static token source: %w", err)
	}
	at := &transport.AuthToken{AccessToken: tok.AccessToken, TokenType: tok.TokenType}
	if expiry, ok := accessTokenExpiry(tok); ok {
		at.ExpiresAt = &expiry
	}
	return at, nil
}

// Refresh asks the underlying TokenSource for a token again. oauth2's
// TokenSource implementations (oauth2.ReuseTokenSource and friends) already
// refresh internally when the held token is expired, so this either
// succeeds silently or fails because there is truly no way to get a new
// token without user interaction.
func (p *StaticProvider) Refresh(ctx context.Context) (transport.AuthOutcome, error) {
	if p.Source == nil {
		return transport.AuthRedirectRequired, nil
	}
	if _, err := p.Source.Token(); err != nil {
		return transport.AuthRedirectRequired, nil
	}
	return transport.AuthRefreshed, nil
}
