package transport

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

func newTestTransport(t *testing.T, handler http.HandlerFunc) (*Transport, *httptest.Server) {
	t.Helper()
	return newTestTransportWithOptions(t, handler, &Options{})
}

func newTestTransportWithOptions(t *testing.T, handler http.HandlerFunc, opts *Options) (*Transport, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	tr, err := New(srv.URL, opts)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := tr.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() {
		tr.Close()
		srv.Close()
	})
	return tr, srv
}

// Scenario: a simple request that the server accepts without a body
// (§8 scenario 1).
func TestSend_Accepted(t *testing.T) {
	tr, _ := newTestTransport(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		w.WriteHeader(http.StatusAccepted)
	})

	err := tr.Send(context.Background(), &Notification{Method: "notifications/initialized"})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
}

// Scenario: session id is captured from the initialize response and sent on
// every subsequent request (§8 scenario 2).
func TestSend_SessionCaptureAndReuse(t *testing.T) {
	var gotSessionIDOnSecond string
	first := true
	tr, _ := newTestTransport(t, func(w http.ResponseWriter, r *http.Request) {
		if first {
			first = false
			w.Header().Set(sessionIDHeader, "sess-123")
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{}}`))
			return
		}
		gotSessionIDOnSecond = r.Header.Get(sessionIDHeader)
		w.WriteHeader(http.StatusAccepted)
	})

	err := tr.Send(context.Background(), &Request{Method: "initialize", ID: NumberID(1)})
	if err != nil {
		t.Fatalf("Send(initialize) error = %v", err)
	}
	if got := tr.SessionID(); got != "sess-123" {
		t.Fatalf("SessionID() = %q, want sess-123", got)
	}

	err = tr.Send(context.Background(), &Notification{Method: "notifications/initialized"})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if gotSessionIDOnSecond != "sess-123" {
		t.Fatalf("second request session id = %q, want sess-123", gotSessionIDOnSecond)
	}
}

// Scenario: DELETE terminates the session and clears the captured id
// (§8 scenario 3).
func TestTerminateSession(t *testing.T) {
	var deleteCount int
	tr, _ := newTestTransport(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			w.Header().Set(sessionIDHeader, "sess-abc")
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{}}`))
		case http.MethodDelete:
			deleteCount++
			if got := r.Header.Get(sessionIDHeader); got != "sess-abc" {
				t.Errorf("DELETE session id = %q, want sess-abc", got)
			}
			w.WriteHeader(http.StatusNoContent)
		}
	})

	if err := tr.Send(context.Background(), &Request{Method: "initialize", ID: NumberID(1)}); err != nil {
		t.Fatalf("Send(initialize) error = %v", err)
	}
	if err := tr.TerminateSession(context.Background()); err != nil {
		t.Fatalf("TerminateSession() error = %v", err)
	}
	if tr.SessionID() != "" {
		t.Fatalf("SessionID() after terminate = %q, want empty", tr.SessionID())
	}
	if deleteCount != 1 {
		t.Fatalf("delete count = %d, want 1", deleteCount)
	}

	// Terminating again with no session id held is a no-op.
	if err := tr.TerminateSession(context.Background()); err != nil {
		t.Fatalf("second TerminateSession() error = %v", err)
	}
	if deleteCount != 1 {
		t.Fatalf("delete count after no-op terminate = %d, want 1", deleteCount)
	}
}

// A 405 on DELETE is treated as success, without clearing the session id.
func TestTerminateSession_MethodNotAllowed(t *testing.T) {
	tr, _ := newTestTransport(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			w.Header().Set(sessionIDHeader, "sess-xyz")
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{}}`))
		case http.MethodDelete:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})

	if err := tr.Send(context.Background(), &Request{Method: "initialize", ID: NumberID(1)}); err != nil {
		t.Fatalf("Send(initialize) error = %v", err)
	}
	if err := tr.TerminateSession(context.Background()); err != nil {
		t.Fatalf("TerminateSession() error = %v", err)
	}
	if tr.SessionID() != "sess-xyz" {
		t.Fatalf("SessionID() after 405 terminate = %q, want sess-xyz (unchanged)", tr.SessionID())
	}
}

// Scenario: a streamed response delivers its event to OnMessage (§8 scenario 4).
func TestSend_StreamedResponse(t *testing.T) {
	tr, _ := newTestTransport(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, "id: 1\ndata: {\"jsonrpc\":\"2.0\",\"id\":7,\"result\":{}}\n\n")
		w.(http.Flusher).Flush()
	})

	var mu sync.Mutex
	var received Message
	done := make(chan struct{})
	tr.OnMessage = func(m Message) {
		mu.Lock()
		received = m
		mu.Unlock()
		close(done)
	}

	if err := tr.Send(context.Background(), &Request{Method: "tools/call", ID: NumberID(7)}); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for streamed message")
	}

	mu.Lock()
	defer mu.Unlock()
	resp, ok := received.(*Response)
	if !ok {
		t.Fatalf("received = %T, want *Response", received)
	}
	if resp.ID.String() != "7" {
		t.Fatalf("response id = %q, want 7", resp.ID.String())
	}
}

// Scenario: a 401 with no auth provider configured surfaces ErrUnauthorized
// (§8 scenario 6).
func TestSend_UnauthorizedNoProvider(t *testing.T) {
	tr, _ := newTestTransport(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	err := tr.Send(context.Background(), &Notification{Method: "notifications/initialized"})
	if err != ErrUnauthorized {
		t.Fatalf("Send() error = %v, want ErrUnauthorized", err)
	}
}

// Operations issued after Close fail immediately.
func TestSend_AfterClose(t *testing.T) {
	tr, _ := newTestTransport(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})
	if err := tr.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	err := tr.Send(context.Background(), &Notification{Method: "x"})
	if err != ErrConnectionClosed {
		t.Fatalf("Send() after Close error = %v, want ErrConnectionClosed", err)
	}
}

// A 404 on a plain request is reported as an HTTPError and never silently
// clears a previously captured session id.
func TestSend_NotFoundDoesNotClearSession(t *testing.T) {
	first := true
	tr, _ := newTestTransport(t, func(w http.ResponseWriter, r *http.Request) {
		if first {
			first = false
			w.Header().Set(sessionIDHeader, "sess-keep")
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{}}`))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	})

	if err := tr.Send(context.Background(), &Request{Method: "initialize", ID: NumberID(1)}); err != nil {
		t.Fatalf("Send(initialize) error = %v", err)
	}

	err := tr.Send(context.Background(), &Notification{Method: "x"})
	if _, ok := StatusCodeOf(err); !ok {
		t.Fatalf("Send() error = %v, want HTTPError", err)
	}
	if tr.SessionID() != "sess-keep" {
		t.Fatalf("SessionID() after 404 = %q, want sess-keep (unchanged)", tr.SessionID())
	}
}

// Scenario: two requests in flight at once each get their own per-request
// stream, and each delivers the message carrying its own id (§8 scenario 4).
func TestSend_ConcurrentPerRequestStreams(t *testing.T) {
	tr, _ := newTestTransport(t, func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		msgs, err := DecodeBatch(body)
		if err != nil || len(msgs) != 1 {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		req, ok := msgs[0].(*Request)
		if !ok {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "id: evt-%s\ndata: {\"jsonrpc\":\"2.0\",\"id\":%s,\"result\":{}}\n\n",
			req.ID.String(), req.ID.String())
		w.(http.Flusher).Flush()
	})

	var mu sync.Mutex
	received := make(map[string]bool)
	done := make(chan struct{})
	tr.OnMessage = func(m Message) {
		resp, ok := m.(*Response)
		if !ok {
			return
		}
		mu.Lock()
		received[resp.ID.String()] = true
		n := len(received)
		mu.Unlock()
		if n == 2 {
			close(done)
		}
	}

	var wg sync.WaitGroup
	for _, id := range []float64{1, 2} {
		wg.Add(1)
		go func(id float64) {
			defer wg.Done()
			if err := tr.Send(context.Background(), &Request{Method: "tools/call", ID: NumberID(id)}); err != nil {
				t.Errorf("Send(id=%v) error = %v", id, err)
			}
		}(id)
	}
	wg.Wait()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for both streamed messages")
	}

	mu.Lock()
	defer mu.Unlock()
	if !received["1"] || !received["2"] {
		t.Fatalf("received = %v, want both id 1 and id 2", received)
	}
}

// Scenario: a 401 with a configured provider that can refresh silently is
// retried once and succeeds, as opposed to the no-provider branch covered by
// TestSend_UnauthorizedNoProvider (§8 scenario 6).
func TestSend_UnauthorizedWithProvider_RefreshesAndRetries(t *testing.T) {
	var attempts int
	tr, _ := newTestTransportWithOptions(t, func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if r.Header.Get("Authorization") != "Bearer fresh-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}, &Options{
		AuthProvider: &fakeAuthProvider{
			tokens: []*AuthToken{
				{AccessToken: "stale-token"},
				{AccessToken: "fresh-token"},
			},
			refreshOutcome: AuthRefreshed,
		},
	})

	err := tr.Send(context.Background(), &Notification{Method: "notifications/initialized"})
	if err != nil {
		t.Fatalf("Send() error = %v, want nil (provider refreshes silently)", err)
	}
	if attempts != 2 {
		t.Fatalf("server saw %d attempts, want 2 (initial 401, then retry)", attempts)
	}
}

// Scenario 5: Listen's standalone GET stream sends Last-Event-ID when given a
// resumption token.
func TestListen_SendsLastEventID(t *testing.T) {
	var gotLastEventID string
	tr, _ := newTestTransport(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		gotLastEventID = r.Header.Get(lastEventIDHeader)
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, "id: 1\ndata: {\"jsonrpc\":\"2.0\",\"method\":\"notifications/ping\"}\n\n")
		w.(http.Flusher).Flush()
	})

	if err := tr.Listen(context.Background(), "test-event-id"); err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	if gotLastEventID != "test-event-id" {
		t.Fatalf("Last-Event-ID header = %q, want test-event-id", gotLastEventID)
	}
}

// A 405 (server offers no standalone stream) is swallowed silently with no
// error and no OnError call.
func TestListen_MethodNotAllowed_Silent(t *testing.T) {
	tr, _ := newTestTransport(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusMethodNotAllowed)
	})

	var gotErr error
	tr.OnError = func(err error) { gotErr = err }

	if err := tr.Listen(context.Background(), ""); err != nil {
		t.Fatalf("Listen() error = %v, want nil on 405", err)
	}
	if gotErr != nil {
		t.Fatalf("OnError called with %v, want no error reported on 405", gotErr)
	}
}
