package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
)

// doExchange performs one HTTP round trip, composing headers fresh (§4.6)
// and transparently handling the Auth Coordinator's single-retry-on-401
// protocol (§4.5). The returned response's body is the caller's to consume
// and close; on a non-nil error, any response body has already been
// closed.
func (t *Transport) doExchange(ctx context.Context, method string, body []byte, lastEventID string) (*http.Response, error) {
	resp, err := t.attempt(ctx, method, body, lastEventID)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}
	resp.Body.Close()

	outcome, err := t.refreshAuth(ctx)
	if err != nil {
		return nil, err
	}
	if outcome == AuthRedirectRequired {
		return nil, ErrUnauthorized
	}
	t.metrics.RecordAuthRetry()

	resp2, err := t.attempt(ctx, method, body, lastEventID)
	if err != nil {
		return nil, err
	}
	if resp2.StatusCode == http.StatusUnauthorized {
		resp2.Body.Close()
		return nil, ErrUnauthorized
	}
	return resp2, nil
}

// refreshAuth invokes the configured AuthProvider's Refresh, or reports
// AuthRedirectRequired immediately if no provider is configured (there is no
// one to ask for new credentials), which doExchange turns into
// ErrUnauthorized.
func (t *Transport) refreshAuth(ctx context.Context) (AuthOutcome, error) {
	if t.authProvider == nil {
		return AuthRedirectRequired, nil
	}
	return t.authProvider.Refresh(ctx)
}

func (t *Transport) attempt(ctx context.Context, method string, body []byte, lastEventID string) (*http.Response, error) {
	hdrs := composeHeaders(headerRequest{
		method:      method,
		sessionID:   t.currentSessionID(),
		lastEventID: lastEventID,
		extra:       t.headers,
		authToken:   currentAuthToken(ctx, t.authProvider),
	})

	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, t.endpoint, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("transport: building %s request: %w", method, err)
	}
	req.Header = hdrs

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("transport: %s request failed: %w", method, err)
	}
	return resp, nil
}

// mediaType returns the media type of a Content-Type header, ignoring
// parameters and matching case-insensitively (§4.2 tie-break). An empty
// header on a 200 response is treated as application/json, per §4.2.
func mediaType(contentType string) string {
	if contentType == "" {
		return "application/json"
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		// Fall back to a best-effort split on ';' for malformed headers
		// rather than failing the whole classification.
		mt = strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0])
	}
	return strings.ToLower(mt)
}
