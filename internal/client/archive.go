package client

import (
	"context"

	"go.uber.org/zap"

	"github.com/Panorama-Block/archive/internal/config"
	"github.com/Panorama-Block/archive/internal/logging"
	"github.com/Panorama-Block/archive/internal/metrics"
)

// FromConfig builds a client from a loaded configuration. rpcMetrics may be nil.
func FromConfig(ctx context.Context, cfg *config.Config, logger *zap.Logger, rpcMetrics *metrics.RPC) (*Client, error) {
	transportOpts := cfg.TransportOptions()
	transportOpts.Metrics = rpcMetrics

	return New(ctx, Options{
		Chain:           cfg.Chain,
		RPCURL:          cfg.RPCURL,
		WSURL:           cfg.WSURL,
		Transport:       transportOpts,
		PollingInterval: cfg.PollingInterval,
		CacheTime:       cfg.CacheTime,
		VerifyChainID:   cfg.VerifyChainID,
		Logger:          logger,
	})
}

// NewArchiveClient builds the archive client from .env and the environment,
// logging to the logger stored in ctx.
func NewArchiveClient(ctx context.Context) (*Client, error) {
	logger := logging.FromContext(ctx)
	cfg, err := config.Load(logger)
	if err != nil {
		return nil, err
	}
	return FromConfig(ctx, cfg, logger, nil)
}
