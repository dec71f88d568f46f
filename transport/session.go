package transport

import (
	"context"
	"io"
	"net/http"
)

// TerminateSession explicitly ends the current session by issuing DELETE to
// the endpoint (§4.1, §8 scenario 3). It is a no-op, returning nil, if no
// session id has been captured yet -- there is nothing to terminate.
//
// A 2xx response clears the captured session id; any subsequent Send begins
// a fresh session on its next "initialize" call. A 405 response means the
// server does not support client-initiated termination and is treated as
// success without clearing the session id, since the session may still be
// valid server-side. Any other status is reported as an HTTPError and the
// session id is left untouched.
func (t *Transport) TerminateSession(ctx context.Context) error {
	if t.isClosed() {
		return ErrConnectionClosed
	}
	sid := t.currentSessionID()
	if sid == "" {
		return nil
	}

	resp, err := t.doExchange(ctx, http.MethodDelete, nil, "")
	if err != nil {
		t.reportError(err)
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		t.clearSessionID()
		return nil
	case resp.StatusCode == http.StatusMethodNotAllowed:
		return nil
	default:
		body, _ := io.ReadAll(resp.Body)
		err := &HTTPError{Status: resp.Status, StatusCode: resp.StatusCode, Method: "DELETE", Body: body}
		t.reportError(err)
		return err
	}
}

func (t *Transport) clearSessionID() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sessionID = ""
}
