// Package transport implements the client side of the MCP streamable HTTP
// transport: a single endpoint that multiplexes JSON-RPC request/response
// traffic, server-initiated notifications, and resumable SSE streams.
package transport

import (
	"encoding/json"
	"fmt"
)

// methodInitialize is the one JSON-RPC method the transport must recognize,
// in order to capture the session id carried on its response.
const methodInitialize = "initialize"

// ID is a JSON-RPC request id: a string, a number, or absent.
//
// The transport never generates ids; it only reads the one a caller already
// attached, to correlate streams and to recognize "initialize" responses.
type ID struct {
	value any // nil, string, or float64
}

// IsValid reports whether the id was explicitly set (as opposed to the zero
// value, which denotes a notification).
func (id ID) IsValid() bool { return id.value != nil }

// String renders the id for logging and for use as a map key.
func (id ID) String() string {
	switch v := id.value.(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%g", v)
	default:
		return ""
	}
}

// StringID returns an ID wrapping a string value.
func StringID(s string) ID { return ID{value: s} }

// NumberID returns an ID wrapping a numeric value.
func NumberID(n float64) ID { return ID{value: n} }

func (id ID) MarshalJSON() ([]byte, error) {
	if id.value == nil {
		return []byte("null"), nil
	}
	return json.Marshal(id.value)
}

func (id *ID) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	id.value = v
	return nil
}

// Message is any of Request, Notification, or Response.
type Message interface {
	isMessage()
}

// Request is an outbound or inbound JSON-RPC call that expects a Response.
type Request struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
	ID     ID              `json:"id"`
}

func (*Request) isMessage() {}

// IsInitialize reports whether this request is the "initialize" call that
// the transport must watch for session-id capture.
func (r *Request) IsInitialize() bool { return r.Method == methodInitialize }

// Notification is a JSON-RPC call that expects no response.
type Notification struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

func (*Notification) isMessage() {}

// Response is a JSON-RPC reply, either a Result or an Error.
type Response struct {
	ID     ID              `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *ResponseError  `json:"error,omitempty"`
}

func (*Response) isMessage() {}

// ResponseError is the JSON-RPC error object.
type ResponseError struct {
	Code    int64           `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

type wireMessage struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      *ID             `json:"id,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *ResponseError  `json:"error,omitempty"`
}

const jsonrpcVersion = "2.0"

// EncodeMessage serializes a single Message to its wire form.
func EncodeMessage(msg Message) ([]byte, error) {
	return json.Marshal(toWire(msg))
}

// EncodeBatch serializes a slice of messages as a JSON array, or a single
// object if there is exactly one message, matching the spec's "one message
// or a batch" body contract.
func EncodeBatch(msgs []Message) ([]byte, error) {
	if len(msgs) == 1 {
		return EncodeMessage(msgs[0])
	}
	wire := make([]wireMessage, len(msgs))
	for i, m := range msgs {
		wire[i] = toWire(m)
	}
	return json.Marshal(wire)
}

func toWire(msg Message) wireMessage {
	w := wireMessage{JSONRPC: jsonrpcVersion}
	switch m := msg.(type) {
	case *Request:
		w.Method = m.Method
		w.Params = m.Params
		id := m.ID
		w.ID = &id
	case *Notification:
		w.Method = m.Method
		w.Params = m.Params
	case *Response:
		id := m.ID
		w.ID = &id
		w.Result = m.Result
		w.Error = m.Error
	}
	return w
}

func fromWire(w wireMessage) (Message, error) {
	switch {
	case w.Method != "" && w.ID != nil:
		return &Request{Method: w.Method, Params: w.Params, ID: *w.ID}, nil
	case w.Method != "":
		return &Notification{Method: w.Method, Params: w.Params}, nil
	case w.ID != nil:
		return &Response{ID: *w.ID, Result: w.Result, Error: w.Error}, nil
	default:
		return nil, fmt.Errorf("transport: message has neither method nor id")
	}
}

// DecodeMessage parses a single JSON-RPC message (object form).
func DecodeMessage(data []byte) (Message, error) {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("transport: decoding message: %w", err)
	}
	return fromWire(w)
}

// DecodeBatch parses a JSON-RPC body that may be a single object or an
// array of objects, returning the messages in wire order.
func DecodeBatch(data []byte) ([]Message, error) {
	trimmed := trimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("transport: empty message body")
	}
	if trimmed[0] == '[' {
		var ws []wireMessage
		if err := json.Unmarshal(trimmed, &ws); err != nil {
			return nil, fmt.Errorf("transport: decoding batch: %w", err)
		}
		msgs := make([]Message, len(ws))
		for i, w := range ws {
			m, err := fromWire(w)
			if err != nil {
				return nil, err
			}
			msgs[i] = m
		}
		return msgs, nil
	}
	msg, err := DecodeMessage(trimmed)
	if err != nil {
		return nil, err
	}
	return []Message{msg}, nil
}

func trimSpace(b []byte) []byte {
	i, j := 0, len(b)
	for i < j && isJSONSpace(b[i]) {
		i++
	}
	for j > i && isJSONSpace(b[j-1]) {
		j--
	}
	return b[i:j]
}

func isJSONSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r':
		return true
	default:
		return false
	}
}
