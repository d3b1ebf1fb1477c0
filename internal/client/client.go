package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/Panorama-Block/archive/internal/chain"
	"github.com/Panorama-Block/archive/internal/config"
	"github.com/Panorama-Block/archive/internal/logging"
	"github.com/Panorama-Block/archive/internal/transport"
)

// Options configures a Client
type Options struct {
	Chain chain.Chain

	// RPCURL overrides the chain's default HTTP endpoint.
	RPCURL string
	// WSURL enables subscriptions for watch actions. Empty means polling only.
	WSURL string

	Transport       transport.Options
	PollingInterval time.Duration
	// CacheTime bounds how stale GetBlockNumber may be. Defaults to PollingInterval.
	CacheTime     time.Duration
	VerifyChainID bool
	Logger        *zap.Logger
}

// Client reads chain data from an archive node and submits signed transactions
type Client struct {
	chain           chain.Chain
	rpc             *transport.Transport
	ws              *transport.Transport
	pollingInterval time.Duration
	cacheTime       time.Duration
	logger          *zap.Logger

	blockNumberGroup singleflight.Group
	cacheMutex       sync.Mutex
	cachedNumber     uint64
	cachedAt         time.Time
}

// New dials the configured endpoints and returns a ready client
func New(ctx context.Context, opts Options) (*Client, error) {
	rpcURL := opts.RPCURL
	if rpcURL == "" {
		rpcURL = opts.Chain.DefaultHTTP()
	}
	if rpcURL == "" {
		return nil, fmt.Errorf("no rpc url configured for chain %s", opts.Chain)
	}

	logger := logging.OrNop(opts.Logger).Named("client").With(zap.Uint64("chainId", opts.Chain.ID))
	opts.Transport.Logger = logger

	pollingInterval := opts.PollingInterval
	if pollingInterval <= 0 {
		pollingInterval = config.PollingIntervalFor(opts.Chain)
	}
	cacheTime := opts.CacheTime
	if cacheTime <= 0 {
		cacheTime = pollingInterval
	}

	httpTransport, err := transport.Dial(ctx, rpcURL, opts.Transport)
	if err != nil {
		return nil, err
	}

	c := &Client{
		chain:           opts.Chain,
		rpc:             httpTransport,
		pollingInterval: pollingInterval,
		cacheTime:       cacheTime,
		logger:          logger,
	}

	if opts.WSURL != "" {
		c.ws, err = transport.Dial(ctx, opts.WSURL, opts.Transport)
		if err != nil {
			httpTransport.Close()
			return nil, err
		}
	}

	if opts.VerifyChainID && opts.Chain.ID != 0 {
		id, err := c.GetChainID(ctx)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("failed to verify chain id: %w", err)
		}
		if id != opts.Chain.ID {
			c.Close()
			return nil, fmt.Errorf("%w: expected %d, node reports %d", ErrChainMismatch, opts.Chain.ID, id)
		}
	}

	logger.Info("archive client ready",
		zap.String("chain", opts.Chain.Name),
		zap.Bool("subscriptions", c.ws != nil),
		zap.Duration("pollingInterval", pollingInterval),
	)
	return c, nil
}

// Chain returns the chain descriptor the client was built for
func (c *Client) Chain() chain.Chain {
	return c.chain
}

// PollingInterval returns the default interval of watch and wait actions
func (c *Client) PollingInterval() time.Duration {
	return c.pollingInterval
}

// Transport returns the HTTP transport for methods the client does not wrap
func (c *Client) Transport() *transport.Transport {
	return c.rpc
}

// Close closes all transports
func (c *Client) Close() {
	c.rpc.Close()
	if c.ws != nil {
		c.ws.Close()
	}
}

func (c *Client) call(ctx context.Context, result interface{}, method string, args ...interface{}) error {
	return c.rpc.Call(ctx, result, method, args...)
}

// subscriber returns the transport to use for eth_subscribe, or nil when watch
// actions must poll.
func (c *Client) subscriber(poll bool) *transport.Transport {
	if poll || c.ws == nil || !c.ws.SupportsSubscriptions() {
		return nil
	}
	return c.ws
}
