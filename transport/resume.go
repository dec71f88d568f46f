package transport

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/mcpstream/client/internal/metrics"
)

// ReconnectionOptions configures the Resumption Manager (§3, §4.4).
type ReconnectionOptions struct {
	// InitialReconnectionDelay is the delay before the first retry. Zero
	// means 1 second.
	InitialReconnectionDelay time.Duration
	// MaxReconnectionDelay caps the geometric backoff. Zero means 30 seconds.
	MaxReconnectionDelay time.Duration
	// ReconnectionDelayGrowFactor is the geometric multiplier, must be >= 1.
	// Zero means 1.5.
	ReconnectionDelayGrowFactor float64
	// MaxRetries is the number of reconnection attempts permitted before
	// giving up. Zero disables reconnection entirely.
	MaxRetries int
}

func (o ReconnectionOptions) withDefaults() ReconnectionOptions {
	if o.InitialReconnectionDelay <= 0 {
		o.InitialReconnectionDelay = time.Second
	}
	if o.MaxReconnectionDelay <= 0 {
		o.MaxReconnectionDelay = 30 * time.Second
	}
	if o.ReconnectionDelayGrowFactor < 1 {
		o.ReconnectionDelayGrowFactor = 1.5
	}
	return o
}

// reconnectDelay implements the formula required by §4.4 and §8 invariant 2:
// delay(k) = min(maxReconnectionDelay, initialReconnectionDelay * growFactor^k).
func reconnectDelay(opts ReconnectionOptions, attempt int) time.Duration {
	d := float64(opts.InitialReconnectionDelay) * math.Pow(opts.ReconnectionDelayGrowFactor, float64(attempt))
	if max := float64(opts.MaxReconnectionDelay); d > max {
		d = max
	}
	return time.Duration(d)
}

// dialFunc performs one reconnection attempt. It blocks until the stream
// this attempt opened has ended, then reports whether the attempt made any
// visible progress (delivered at least one event, which resets the retry
// counter per §4.4.4) and the error that ended it, if
// any. err == nil means the stream ended gracefully and reconnection should
// stop altogether.
type dialFunc func(ctx context.Context) (progressed bool, err error)

// reconnector drives the Resumption Manager's retry loop for one resumable
// stream (the standalone stream, or a per-request stream whose first event
// has been seen).
type reconnector struct {
	opts         ReconnectionOptions
	metrics      *metrics.Recorder
	endpointHost string
	logger       *slog.Logger
}

// run drives every reconnect attempt -- including the first -- through
// "compute delay, gate on maxRetries, wait the delay, then dial" (§4.4,
// §8 invariant 2): dial is never called before the gate and the wait have
// both passed. cause is the error that ended the stream this reconnector is
// resuming; it is what MaxRetries: 0 reports immediately, with zero network
// attempts made. run otherwise repeats until dial reports a graceful end,
// the retry budget is exhausted, or closed is signaled (the transport's
// Close()).
func (rc *reconnector) run(ctx context.Context, closed <-chan struct{}, cause error, dial dialFunc) error {
	opts := rc.opts.withDefaults()
	attempt := 0
	lastErr := cause
	for {
		if attempt >= opts.MaxRetries {
			rc.recordReconnect(metrics.ReconnectExhausted)
			return &ReconnectExhaustedError{Attempts: attempt, Err: lastErr}
		}

		delay := reconnectDelay(opts, attempt)
		corrID := uuid.NewString()
		if rc.logger != nil {
			rc.logger.Debug("scheduling SSE reconnect",
				"attempt", attempt, "delay", delay, "correlation_id", corrID, "cause", lastErr)
		}

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-closed:
			timer.Stop()
			return ErrConnectionClosed
		}

		progressed, err := dial(ctx)
		if err == nil {
			return nil // graceful stream end; nothing left to resume
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-closed:
			return ErrConnectionClosed
		default:
		}

		lastErr = err
		rc.recordReconnect(metrics.ReconnectFailed)
		if progressed {
			attempt = 0
		} else {
			attempt++
		}
	}
}

func (rc *reconnector) recordReconnect(result string) {
	if rc.metrics == nil {
		return
	}
	rc.metrics.RecordReconnect(rc.endpointHost, result)
}
