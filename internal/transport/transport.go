package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Panorama-Block/archive/internal/logging"
	"github.com/Panorama-Block/archive/internal/metrics"
)

// Options configures a Transport
type Options struct {
	Timeout    time.Duration
	RetryCount int
	RetryDelay time.Duration
	RateLimit  float64 // requests per second, 0 disables limiting
	RateBurst  int
	BatchSize  int
	Headers    http.Header
	Logger     *zap.Logger
	Metrics    *metrics.RPC
}

// DefaultOptions returns the options used when none are given
func DefaultOptions() Options {
	return Options{
		Timeout:    10 * time.Second,
		RetryCount: 3,
		RetryDelay: 150 * time.Millisecond,
		RateLimit:  5,
		RateBurst:  10,
		BatchSize:  100,
	}
}

// Transport sends JSON-RPC requests to one endpoint
type Transport struct {
	url     string
	client  *rpc.Client
	opts    Options
	limiter *rate.Limiter
	logger  *zap.Logger
	closed  atomic.Bool
}

// Dial connects to rawURL. HTTP(S) endpoints are stateless; WS(S) endpoints
// keep a connection open and support subscriptions.
func Dial(ctx context.Context, rawURL string, opts Options) (*Transport, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid rpc url %q: %w", rawURL, err)
	}
	switch u.Scheme {
	case "http", "https", "ws", "wss":
	default:
		return nil, fmt.Errorf("unsupported rpc url scheme %q", u.Scheme)
	}

	defaults := DefaultOptions()
	if opts.Timeout <= 0 {
		opts.Timeout = defaults.Timeout
	}
	if opts.RetryCount < 0 {
		opts.RetryCount = 0
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = defaults.RetryDelay
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaults.BatchSize
	}

	clientOpts := []rpc.ClientOption{
		rpc.WithHTTPClient(&http.Client{Timeout: opts.Timeout}),
	}
	if len(opts.Headers) > 0 {
		clientOpts = append(clientOpts, rpc.WithHeaders(opts.Headers))
	}

	client, err := rpc.DialOptions(ctx, rawURL, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", redact(u), err)
	}

	t := &Transport{
		url:    rawURL,
		client: client,
		opts:   opts,
		logger: logging.OrNop(opts.Logger).Named("transport").With(zap.String("endpoint", redact(u))),
	}
	if opts.RateLimit > 0 {
		burst := opts.RateBurst
		if burst <= 0 {
			burst = 1
		}
		t.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}
	return t, nil
}

// URL returns the endpoint the transport is connected to
func (t *Transport) URL() string {
	return t.url
}

// SupportsSubscriptions reports whether eth_subscribe can be used
func (t *Transport) SupportsSubscriptions() bool {
	return strings.HasPrefix(t.url, "ws://") || strings.HasPrefix(t.url, "wss://")
}

// Call performs a single JSON-RPC call, decoding the result into result.
func (t *Transport) Call(ctx context.Context, result interface{}, method string, args ...interface{}) error {
	return t.withRetry(ctx, method, func(ctx context.Context) error {
		return t.client.CallContext(ctx, result, method, args...)
	})
}

// BatchCall sends elems in batches of at most BatchSize. Per-element errors are
// reported in elem.Error; the returned error is a transport failure.
func (t *Transport) BatchCall(ctx context.Context, elems []rpc.BatchElem) error {
	for start := 0; start < len(elems); start += t.opts.BatchSize {
		end := start + t.opts.BatchSize
		if end > len(elems) {
			end = len(elems)
		}
		chunk := elems[start:end]
		err := t.withRetry(ctx, "batch", func(ctx context.Context) error {
			return t.client.BatchCallContext(ctx, chunk)
		})
		if err != nil {
			return err
		}
		for i := range chunk {
			chunk[i].Error = normalizeError(chunk[i].Method, chunk[i].Error)
		}
	}
	return nil
}

// Subscribe starts an eth_subscribe subscription delivering into channel.
func (t *Transport) Subscribe(ctx context.Context, channel interface{}, args ...interface{}) (*rpc.ClientSubscription, error) {
	if t.closed.Load() {
		return nil, ErrClientClosed
	}
	if !t.SupportsSubscriptions() {
		return nil, ErrSubscriptionsNotSupported
	}
	if err := t.wait(ctx); err != nil {
		return nil, err
	}
	sub, err := t.client.EthSubscribe(ctx, channel, args...)
	if err != nil {
		return nil, normalizeError("eth_subscribe", err)
	}
	return sub, nil
}

// Close releases the connection. It is safe to call more than once.
func (t *Transport) Close() {
	if t.closed.CompareAndSwap(false, true) {
		t.client.Close()
	}
}

func (t *Transport) withRetry(ctx context.Context, method string, fn func(context.Context) error) error {
	if t.closed.Load() {
		return ErrClientClosed
	}

	start := time.Now()
	var err error
	for attempt := 0; attempt <= t.opts.RetryCount; attempt++ {
		if attempt > 0 {
			delay := t.opts.RetryDelay << (attempt - 1)
			t.logger.Debug("retrying request",
				zap.String("method", method),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(err),
			)
			if t.opts.Metrics != nil {
				t.opts.Metrics.Retries.WithLabelValues(method).Inc()
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		if err = t.wait(ctx); err != nil {
			break
		}
		callCtx, cancel := context.WithTimeout(ctx, t.opts.Timeout)
		err = normalizeError(method, fn(callCtx))
		// the attempt ran out of time but the caller still has some left
		attemptTimedOut := errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil
		cancel()

		if err == nil || ctx.Err() != nil || t.closed.Load() {
			break
		}
		if !attemptTimedOut && !retryable(err) {
			break
		}
	}

	t.observe(method, start, err)
	return err
}

func (t *Transport) wait(ctx context.Context) error {
	if t.limiter == nil {
		return nil
	}
	return t.limiter.Wait(ctx)
}

func (t *Transport) observe(method string, start time.Time, err error) {
	if t.opts.Metrics == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	t.opts.Metrics.Requests.WithLabelValues(method, status).Inc()
	t.opts.Metrics.Duration.WithLabelValues(method).Observe(time.Since(start).Seconds())
}

// redact drops credentials and API keys in the path from log output
func redact(u *url.URL) string {
	return u.Scheme + "://" + u.Host
}
