package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"

	"github.com/mcpstream/client/transport"
)

// ErrAuthorizationPending describes the state in which an authorization flow
// has been started but SetAuthorizationCode has not yet been called with the
// redirect result. Refresh does not return it: while a flow is pending,
// Refresh reports transport.AuthRedirectRequired with a nil error.
var ErrAuthorizationPending = errors.New("auth: authorization flow in progress")

// PreregisteredClientConfig identifies a client that has already been
// registered with the authorization server out of band, per the
// preregistration method of the MCP authorization spec.
type PreregisteredClientConfig struct {
	ClientID     string
	ClientSecret string
	AuthURL      string
	TokenURL     string
	RedirectURL  string
	Scopes       []string
}

// AuthorizationCodeProvider implements transport.AuthProvider using the
// OAuth 2.0 authorization code grant with PKCE, against a single
// preregistered client. It is stateful and reentrant: a 401 that cannot be
// resolved from a held refresh token starts a new flow by invoking
// AuthorizationURLHandler, and the caller completes it out of band by
// calling SetAuthorizationCode once the authorization server redirects back.
type AuthorizationCodeProvider struct {
	Config PreregisteredClientConfig

	// AuthorizationURLHandler is invoked with the URL the user must visit to
	// authorize the client. It should return once the URL has been
	// presented (e.g. opened in a browser); it must not block on the
	// authorization completing.
	AuthorizationURLHandler func(ctx context.Context, authorizationURL string) error

	mu           sync.Mutex
	oauth        oauth2.Config
	token        *oauth2.Token
	codeVerifier string
	state        string
	pending      bool
}

var _ transport.AuthProvider = (*AuthorizationCodeProvider)(nil)

func (p *AuthorizationCodeProvider) config() oauth2.Config {
	return oauth2.Config{
		ClientID:     p.Config.ClientID,
		ClientSecret: p.Config.ClientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:  p.Config.AuthURL,
			TokenURL: p.Config.TokenURL,
		},
		RedirectURL: p.Config.RedirectURL,
		Scopes:      p.Config.Scopes,
	}
}

// Token returns the currently held access token, or nil if none has been
// obtained yet.
func (p *AuthorizationCodeProvider) Token(ctx context.Context) (*transport.AuthToken, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.token == nil {
		return nil, nil
	}
	at := &transport.AuthToken{AccessToken: p.token.AccessToken, TokenType: p.token.TokenType}
	if expiry, ok := accessTokenExpiry(p.token); ok {
		at.ExpiresAt = &expiry
	}
	return at, nil
}

// Refresh attempts a silent refresh-token exchange first. If no refresh
// token is held, or the exchange fails, it starts (or reports) an
// interactive authorization-code flow and returns AuthRedirectRequired.
func (p *AuthorizationCodeProvider) Refresh(ctx context.Context) (transport.AuthOutcome, error) {
	p.mu.Lock()
	cfg := p.config()
	tok := p.token
	p.mu.Unlock()

	if tok != nil && tok.RefreshToken != "" {
		src := cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: tok.RefreshToken})
		if fresh, err := src.Token(); err == nil {
			p.mu.Lock()
			p.token = fresh
			p.mu.Unlock()
			return transport.AuthRefreshed, nil
		}
	}

	return p.startAuthorizationFlow(ctx, cfg)
}

func (p *AuthorizationCodeProvider) startAuthorizationFlow(ctx context.Context, cfg oauth2.Config) (transport.AuthOutcome, error) {
	p.mu.Lock()
	if p.pending {
		p.mu.Unlock()
		return transport.AuthRedirectRequired, nil
	}
	state, err := randomState()
	if err != nil {
		p.mu.Unlock()
		return transport.AuthRedirectRequired, fmt.Errorf("auth: generating state: %w", err)
	}
	verifier, err := randomState()
	if err != nil {
		p.mu.Unlock()
		return transport.AuthRedirectRequired, fmt.Errorf("auth: generating PKCE verifier: %w", err)
	}
	p.state = state
	p.codeVerifier = verifier
	p.pending = true
	p.mu.Unlock()

	if p.AuthorizationURLHandler == nil {
		return transport.AuthRedirectRequired, fmt.Errorf("auth: no AuthorizationURLHandler configured")
	}

	authURL := cfg.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier))
	if err := p.AuthorizationURLHandler(ctx, authURL); err != nil {
		p.mu.Lock()
		p.pending = false
		p.mu.Unlock()
		return transport.AuthRedirectRequired, fmt.Errorf("auth: presenting authorization URL: %w", err)
	}
	return transport.AuthRedirectRequired, nil
}

// SetAuthorizationCode completes a pending authorization flow, exchanging
// code for an access token. state must match the value passed to
// AuthorizationURLHandler's URL, or the exchange is rejected.
func (p *AuthorizationCodeProvider) SetAuthorizationCode(ctx context.Context, code, state string) error {
	p.mu.Lock()
	if !p.pending {
		p.mu.Unlock()
		return fmt.Errorf("auth: no authorization flow is pending")
	}
	if state != p.state {
		p.mu.Unlock()
		return fmt.Errorf("auth: state mismatch: expected %q, got %q", p.state, state)
	}
	cfg := p.config()
	verifier := p.codeVerifier
	p.mu.Unlock()

	tok, err := cfg.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return fmt.Errorf("auth: exchanging authorization code: %w", err)
	}

	p.mu.Lock()
	p.token = tok
	p.pending = false
	p.state = ""
	p.codeVerifier = ""
	p.mu.Unlock()
	return nil
}

// accessTokenExpiry returns tok.Expiry if set, falling back to the "exp"
// claim of the access token when the server issues a JWT access token
// without a separate expiry on the oauth2.Token envelope. The token is
// parsed without signature verification: the client has no way to verify an
// access token meant for the resource server, and only needs the claim to
// decide whether to proactively refresh.
func accessTokenExpiry(tok *oauth2.Token) (time.Time, bool) {
	if !tok.Expiry.IsZero() {
		return tok.Expiry, true
	}
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(tok.AccessToken, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
