package transport

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/mcpstream/client/internal/metrics"
)

// Send transmits a single JSON-RPC message and resolves once the response
// has been classified (§4.1) -- not once a streaming response completes.
func (t *Transport) Send(ctx context.Context, msg Message) error {
	return t.send(ctx, []Message{msg})
}

// SendBatch transmits a batch of JSON-RPC messages as a single HTTP body.
func (t *Transport) SendBatch(ctx context.Context, msgs []Message) error {
	return t.send(ctx, msgs)
}

func (t *Transport) send(ctx context.Context, msgs []Message) error {
	if t.isClosed() {
		return ErrConnectionClosed
	}
	if len(msgs) == 0 {
		return nil
	}

	body, err := EncodeBatch(msgs)
	if err != nil {
		return err
	}

	start := time.Now()
	resp, err := t.doExchange(ctx, http.MethodPost, body, "")
	if err != nil {
		t.reportError(err)
		t.recordSend(http.MethodPost, metrics.OutcomeError, start)
		return err
	}

	if containsInitialize(msgs) {
		if sid := resp.Header.Get(sessionIDHeader); sid != "" {
			t.setSessionID(sid)
		}
	}

	outcome, sendErr := t.classifySend(resp, msgs)
	t.recordSend(http.MethodPost, outcome, start)
	if sendErr != nil {
		t.reportError(sendErr)
	}
	return sendErr
}

func containsInitialize(msgs []Message) bool {
	for _, m := range msgs {
		if r, ok := m.(*Request); ok && r.IsInitialize() {
			return true
		}
	}
	return false
}

func requestIDsOf(msgs []Message) map[string]struct{} {
	ids := make(map[string]struct{})
	for _, m := range msgs {
		if r, ok := m.(*Request); ok && r.ID.IsValid() {
			ids[r.ID.String()] = struct{}{}
		}
	}
	return ids
}

// classifySend implements the Request Dispatcher's response classification
// for a POST exchange (§4.2).
func (t *Transport) classifySend(resp *http.Response, msgs []Message) (string, error) {
	switch resp.StatusCode {
	case http.StatusAccepted:
		resp.Body.Close()
		return metrics.OutcomeAccepted, nil

	case http.StatusOK:
		ct := mediaType(resp.Header.Get("Content-Type"))
		switch ct {
		case "application/json":
			defer resp.Body.Close()
			data, err := io.ReadAll(resp.Body)
			if err != nil {
				return metrics.OutcomeError, err
			}
			decoded, err := DecodeBatch(data)
			if err != nil {
				return metrics.OutcomeError, err
			}
			for _, m := range decoded {
				t.deliver(m)
			}
			return metrics.OutcomeInline, nil

		case "text/event-stream":
			ids := requestIDsOf(msgs)
			t.consumeStream(kindPerRequest, ids, resp, "")
			return metrics.OutcomeStream, nil

		default:
			resp.Body.Close()
			return metrics.OutcomeError, &UnexpectedContentTypeError{ContentType: ct}
		}

	case http.StatusNotFound:
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return metrics.OutcomeError, &HTTPError{Status: resp.Status, StatusCode: resp.StatusCode, Method: "POST", Body: body}

	default:
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return metrics.OutcomeError, &HTTPError{Status: resp.Status, StatusCode: resp.StatusCode, Method: "POST", Body: body}
	}
}

func (t *Transport) recordSend(method, outcome string, start time.Time) {
	if t.metrics == nil {
		return
	}
	t.metrics.RecordSend(t.endpointHost, method, outcome, time.Since(start).Seconds())
}
