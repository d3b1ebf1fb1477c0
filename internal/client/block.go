package client

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/Panorama-Block/archive/internal/types"
)

// BlockQuery selects a block for GetBlock. At most one of Hash, Number and Tag
// may be set; none selects the latest block.
type BlockQuery struct {
	Hash                *common.Hash
	Number              *uint64
	Tag                 types.BlockTag
	IncludeTransactions bool
}

func (q BlockQuery) selector() (types.BlockSelector, error) {
	set := 0
	if q.Hash != nil {
		set++
	}
	if q.Number != nil {
		set++
	}
	if q.Tag != "" {
		set++
	}
	if set > 1 {
		return types.BlockSelector{}, fmt.Errorf("block query must set only one of hash, number or tag")
	}

	switch {
	case q.Hash != nil:
		return types.AtHash(*q.Hash), nil
	case q.Number != nil:
		return types.AtNumber(*q.Number), nil
	case q.Tag != "":
		return types.AtTag(q.Tag), nil
	default:
		return types.Latest(), nil
	}
}

// BlockNumberOption adjusts a GetBlockNumber call
type BlockNumberOption func(*blockNumberOptions)

type blockNumberOptions struct {
	cacheTime time.Duration
}

// WithCacheTime overrides how stale the returned number may be. Zero forces a
// request to the node.
func WithCacheTime(d time.Duration) BlockNumberOption {
	return func(o *blockNumberOptions) { o.cacheTime = d }
}

// GetChainID returns the chain id reported by the node
func (c *Client) GetChainID(ctx context.Context) (uint64, error) {
	var id hexutil.Big
	if err := c.call(ctx, &id, "eth_chainId"); err != nil {
		return 0, err
	}
	return id.ToInt().Uint64(), nil
}

// GetBlockNumber returns the latest block number. Results are cached for the
// client's cache time and concurrent callers share a single request.
func (c *Client) GetBlockNumber(ctx context.Context, opts ...BlockNumberOption) (uint64, error) {
	o := blockNumberOptions{cacheTime: c.cacheTime}
	for _, opt := range opts {
		opt(&o)
	}

	if o.cacheTime > 0 {
		c.cacheMutex.Lock()
		if !c.cachedAt.IsZero() && time.Since(c.cachedAt) < o.cacheTime {
			n := c.cachedNumber
			c.cacheMutex.Unlock()
			return n, nil
		}
		c.cacheMutex.Unlock()
	}

	// the shared request must outlive any one caller's context; the transport
	// timeout bounds it
	flight := context.WithoutCancel(ctx)
	ch := c.blockNumberGroup.DoChan("blockNumber", func() (interface{}, error) {
		var n hexutil.Uint64
		if err := c.call(flight, &n, "eth_blockNumber"); err != nil {
			return uint64(0), err
		}

		c.cacheMutex.Lock()
		c.cachedNumber = uint64(n)
		c.cachedAt = time.Now()
		c.cacheMutex.Unlock()
		return uint64(n), nil
	})

	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return 0, res.Err
		}
		return res.Val.(uint64), nil
	}
}

// GetBlock returns a block by hash, number or tag
func (c *Client) GetBlock(ctx context.Context, q BlockQuery) (*types.Block, error) {
	sel, err := q.selector()
	if err != nil {
		return nil, err
	}

	var raw *types.RPCBlock
	if sel.Hash != nil {
		err = c.call(ctx, &raw, "eth_getBlockByHash", *sel.Hash, q.IncludeTransactions)
	} else {
		err = c.call(ctx, &raw, "eth_getBlockByNumber", sel.Param(), q.IncludeTransactions)
	}
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, &BlockNotFoundError{Block: sel}
	}
	return raw.Format()
}

// GetBlockTransactionCount returns the number of transactions in a block
func (c *Client) GetBlockTransactionCount(ctx context.Context, q BlockQuery) (uint64, error) {
	sel, err := q.selector()
	if err != nil {
		return 0, err
	}

	var count *hexutil.Uint64
	if sel.Hash != nil {
		err = c.call(ctx, &count, "eth_getBlockTransactionCountByHash", *sel.Hash)
	} else {
		err = c.call(ctx, &count, "eth_getBlockTransactionCountByNumber", sel.Param())
	}
	if err != nil {
		return 0, err
	}
	if count == nil {
		return 0, &BlockNotFoundError{Block: sel}
	}
	return uint64(*count), nil
}

// blockRange formats an inclusive range for logging
func blockRange(from, to uint64) string {
	return strconv.FormatUint(from, 10) + "-" + strconv.FormatUint(to, 10)
}
