package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"

	"github.com/mcpstream/client/internal/metrics"
)

// ErrAlreadyStarted is returned by Start when the transport has already been
// started.
var ErrAlreadyStarted = errors.New("transport: already started")

// Options configures a Transport (§6.4).
type Options struct {
	// HTTPClient performs the underlying HTTP exchanges. Defaults to
	// http.DefaultClient. This is the integration point described in §6.2;
	// wrap http.RoundTripper for custom auth, proxying, or instrumentation.
	HTTPClient *http.Client

	// Headers is a template for per-request headers (the requestInit of
	// §4.6 and §6.4). The transport never mutates it, and re-reads it on
	// every request, so mutations the caller makes to the same map after
	// construction are visible on the next send.
	Headers http.Header

	// AuthProvider drives the Auth Coordinator (§4.5, §6.3). May be nil.
	AuthProvider AuthProvider

	// Reconnection configures the Resumption Manager (§3, §4.4).
	Reconnection ReconnectionOptions

	// DisableStandaloneSSE prevents the transport from ever opening the
	// optional listening GET stream, even when Listen is called.
	DisableStandaloneSSE bool

	// Logger receives structured diagnostic logs. Defaults to slog.Default().
	Logger *slog.Logger

	// Metrics receives Prometheus instrumentation. A nil value is a no-op.
	Metrics *metrics.Recorder
}

// Transport is the Transport Controller (§4.1): the public lifecycle of a
// streamable HTTP client connection bound to one endpoint.
type Transport struct {
	endpoint     string
	endpointHost string
	httpClient   *http.Client
	headers      http.Header
	authProvider AuthProvider
	reconnOpts   ReconnectionOptions
	disableSSE   bool
	logger       *slog.Logger
	metrics      *metrics.Recorder

	// OnMessage is invoked for every JSON-RPC message the transport
	// receives, whether from an inline JSON response or a streamed SSE
	// event. May be called concurrently from multiple stream goroutines;
	// implementations must be safe for concurrent use.
	OnMessage func(Message)
	// OnError is invoked for errors not tied to, or in addition to, a
	// specific Send call (§7).
	OnError func(error)
	// OnClose is invoked once, when the transport transitions to closed.
	OnClose func()

	mu         sync.Mutex
	started    bool
	closed     bool
	sessionID  string
	standalone *activeStream
	perRequest map[string]*activeStream // keyed by activeStream.id

	closeCh chan struct{}
	wg      sync.WaitGroup
}

// New returns a Transport bound to endpoint. endpoint must be an absolute
// URL; it is immutable after construction (§3).
func New(endpoint string, opts *Options) (*Transport, error) {
	if _, err := url.ParseRequestURI(endpoint); err != nil {
		return nil, fmt.Errorf("transport: invalid endpoint %q: %w", endpoint, err)
	}
	if opts == nil {
		opts = &Options{}
	}
	client := opts.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	host := endpoint
	if u, err := url.Parse(endpoint); err == nil {
		host = u.Host
	}
	return &Transport{
		endpoint:     endpoint,
		endpointHost: host,
		httpClient:   client,
		headers:      opts.Headers,
		authProvider: opts.AuthProvider,
		reconnOpts:   opts.Reconnection.withDefaults(),
		disableSSE:   opts.DisableStandaloneSSE,
		logger:       logger,
		metrics:      opts.Metrics,
		perRequest:   make(map[string]*activeStream),
		closeCh:      make(chan struct{}),
	}, nil
}

// Start marks the transport as started. It does not open any network
// connection by itself (§4.1): Send and Listen do that.
func (t *Transport) Start(context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrConnectionClosed
	}
	if t.started {
		return ErrAlreadyStarted
	}
	t.started = true
	return nil
}

// SessionID returns the currently captured session id, or "" if none has
// been captured (or it was cleared by TerminateSession).
func (t *Transport) SessionID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sessionID
}

func (t *Transport) currentSessionID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sessionID
}

func (t *Transport) setSessionID(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sessionID == "" {
		t.sessionID = id
	}
}

func (t *Transport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// Close aborts all active streams, cancels pending reconnection timers, and
// marks the transport closed (§4.1, §5 "Cancellation").
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	close(t.closeCh)
	if t.standalone != nil {
		t.standalone.cancel()
	}
	for _, s := range t.perRequest {
		s.cancel()
	}
	onClose := t.OnClose
	t.mu.Unlock()

	t.wg.Wait()
	if onClose != nil {
		onClose()
	}
	return nil
}

func (t *Transport) reportError(err error) {
	if err == nil {
		return
	}
	if t.OnError != nil {
		t.OnError(err)
	}
}

func (t *Transport) deliver(msg Message) {
	if t.OnMessage != nil {
		t.OnMessage(msg)
	}
}
