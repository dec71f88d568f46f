package transport

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/google/uuid"

	"github.com/mcpstream/client/transport/sse"
)

const (
	kindStandalone = "standalone"
	kindPerRequest = "per-request"
)

// activeStream is the §3 "Active Stream" record: at most one standalone
// stream plus any number of per-request streams, each independent.
type activeStream struct {
	id         string // correlation id; also the key in Transport.perRequest
	kind       string
	requestIDs map[string]struct{}

	mu          sync.Mutex
	lastEventID string

	cancel context.CancelFunc
}

func (t *Transport) registerStream(as *activeStream) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if as.kind == kindStandalone {
		t.standalone = as
	} else {
		t.perRequest[as.id] = as
	}
}

func (t *Transport) unregisterStream(as *activeStream) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if as.kind == kindStandalone {
		if t.standalone == as {
			t.standalone = nil
		}
	} else {
		delete(t.perRequest, as.id)
	}
}

// Listen opens the optional standalone listening GET stream for
// server-initiated pushes unrelated to any single request (§4.1, §6.1). If
// resumptionToken is non-empty, it is sent as Last-Event-ID so the server
// can replay missed events (§8 scenario 5). A 405 response means the server
// does not offer this stream; Listen returns nil in that case (§4.2, §9).
func (t *Transport) Listen(ctx context.Context, resumptionToken string) error {
	if t.isClosed() {
		return ErrConnectionClosed
	}
	if t.disableSSE {
		return nil
	}

	t.mu.Lock()
	if t.standalone != nil {
		t.mu.Unlock()
		return fmt.Errorf("transport: standalone stream already open")
	}
	t.mu.Unlock()

	resp, err := t.doExchange(ctx, http.MethodGet, nil, resumptionToken)
	if err != nil {
		t.reportError(err)
		return err
	}

	switch resp.StatusCode {
	case http.StatusMethodNotAllowed:
		resp.Body.Close()
		return nil
	case http.StatusOK:
		ct := mediaType(resp.Header.Get("Content-Type"))
		if ct != "text/event-stream" {
			resp.Body.Close()
			err := &UnexpectedContentTypeError{ContentType: ct}
			t.reportError(err)
			return err
		}
		t.consumeStream(kindStandalone, nil, resp, resumptionToken)
		return nil
	default:
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		err := &HTTPError{Status: resp.Status, StatusCode: resp.StatusCode, Method: "GET", Body: body}
		t.reportError(err)
		return err
	}
}

// consumeStream takes ownership of resp's body (status 200,
// text/event-stream already verified by the caller) and reads it to
// completion, handing off to the Resumption Manager on abrupt disconnection
// for resumable streams (§4.3, §4.4).
func (t *Transport) consumeStream(kind string, ids map[string]struct{}, resp *http.Response, initialLastEventID string) {
	streamCtx, cancel := context.WithCancel(context.Background())
	as := &activeStream{
		id:          uuid.NewString(),
		kind:        kind,
		requestIDs:  ids,
		lastEventID: initialLastEventID,
		cancel:      cancel,
	}
	t.registerStream(as)

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		defer t.unregisterStream(as)
		defer cancel()

		resumable := kind == kindStandalone
		_, err := t.readOneStream(streamCtx, resp, as, &resumable)
		if err == nil {
			return // clean EOF: stream is done, nothing to resume
		}
		if !resumable {
			t.reportError(err)
			return
		}
		t.resumeStream(streamCtx, as, err)
	}()
}

// resumeStream drives the Resumption Manager's reconnect loop for a stream
// that failed abruptly (with cause) after establishing resumability.
func (t *Transport) resumeStream(ctx context.Context, as *activeStream, cause error) {
	rc := &reconnector{
		opts:         t.reconnOpts,
		metrics:      t.metrics,
		endpointHost: t.endpointHost,
		logger:       t.logger,
	}
	err := rc.run(ctx, t.closeCh, cause, func(dctx context.Context) (bool, error) {
		as.mu.Lock()
		leid := as.lastEventID
		as.mu.Unlock()

		resp, derr := t.doExchange(dctx, http.MethodGet, nil, leid)
		if derr != nil {
			return false, derr
		}
		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			return false, &HTTPError{Status: resp.Status, StatusCode: resp.StatusCode, Method: "GET", Body: body}
		}
		ct := mediaType(resp.Header.Get("Content-Type"))
		if ct != "text/event-stream" {
			resp.Body.Close()
			return false, &UnexpectedContentTypeError{ContentType: ct}
		}
		resumable := true
		return t.readOneStream(dctx, resp, as, &resumable)
	})
	if err != nil {
		if errRecoverable(err) {
			return // ctx canceled / transport closed: not a user-facing error
		}
		t.reportError(err)
	}
}

func errRecoverable(err error) bool {
	return err == context.Canceled || err == ErrConnectionClosed
}

// readOneStream parses one SSE body (the SSE Stream Reader, §4.3) until EOF
// or error, delivering JSON-RPC messages and updating as.lastEventID before
// each delivery (§3 invariant 3). It reports whether any event was seen at
// all, which determines resumability for per-request streams (§4.3).
func (t *Transport) readOneStream(ctx context.Context, resp *http.Response, as *activeStream, resumable *bool) (bool, error) {
	defer resp.Body.Close()
	r := sse.NewReader(resp.Body)
	sawEvent := false

	for {
		select {
		case <-ctx.Done():
			return sawEvent, ctx.Err()
		default:
		}

		ev, err := r.Next()
		if err != nil {
			if err == io.EOF {
				return sawEvent, nil
			}
			return sawEvent, err
		}
		sawEvent = true
		if resumable != nil {
			*resumable = true
		}
		if ev.ID != "" {
			as.mu.Lock()
			as.lastEventID = ev.ID
			as.mu.Unlock()
		}

		msg, perr := DecodeMessage(ev.Data)
		if perr != nil {
			t.reportError(&ParseError{Raw: ev.Data, Err: perr})
			continue
		}
		t.deliver(msg)
	}
}
