package client

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"

	"github.com/Panorama-Block/archive/internal/transport"
	"github.com/Panorama-Block/archive/internal/types"
)

// Unwatch stops a watcher. It does not block and may be called any number of
// times, including from inside a watcher callback. No callback is started
// after it returns.
type Unwatch func()

// WatchBlockNumberOptions configures WatchBlockNumber
type WatchBlockNumberOptions struct {
	// EmitMissed emits every number skipped between two observations.
	EmitMissed bool
	// EmitOnBegin emits the first observed number instead of only recording it.
	EmitOnBegin bool
	// Poll forces polling even when a websocket transport is configured.
	Poll            bool
	PollingInterval time.Duration
	OnBlockNumber   func(number uint64)
	OnError         func(err error)
}

// WatchBlocksOptions configures WatchBlocks
type WatchBlocksOptions struct {
	IncludeTransactions bool
	// BlockTag is the block polled for; only latest can be subscribed to.
	BlockTag        types.BlockTag
	EmitMissed      bool
	EmitOnBegin     bool
	Poll            bool
	PollingInterval time.Duration
	// OnBlock receives each new block and the previously emitted one, nil for
	// the first.
	OnBlock func(block, prev *types.Block)
	OnError func(err error)
}

// head is the part of a newHeads notification the watchers use
type head struct {
	Number *hexutil.Big `json:"number"`
	Hash   common.Hash  `json:"hash"`
}

// blockTracker decides which block numbers a watcher still has to emit. It
// never yields a number at or below the last one marked.
type blockTracker struct {
	last        uint64
	started     bool
	emitMissed  bool
	emitOnBegin bool
}

func (t *blockTracker) pending(n uint64) []uint64 {
	if !t.started {
		if t.emitOnBegin {
			return []uint64{n}
		}
		t.mark(n)
		return nil
	}
	if n <= t.last {
		return nil
	}
	from := n
	if t.emitMissed {
		from = t.last + 1
	}
	out := make([]uint64, 0, n-from+1)
	for i := from; i <= n; i++ {
		out = append(out, i)
	}
	return out
}

func (t *blockTracker) mark(n uint64) {
	if !t.started || n > t.last {
		t.last = n
		t.started = true
	}
}

// watch runs fn in its own goroutine until ctx is done or the returned
// Unwatch is called.
func watch(ctx context.Context, fn func(ctx context.Context)) Unwatch {
	ctx, cancel := context.WithCancel(ctx)
	go fn(ctx)
	return Unwatch(cancel)
}

func pollLoop(ctx context.Context, interval time.Duration, fn func(ctx context.Context)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	fn(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn(ctx)
		}
	}
}

// subscribeLoop keeps a subscription open, resubscribing after interval when it
// fails. onItem runs on the loop's goroutine.
func subscribeLoop[T any](ctx context.Context, ws *transport.Transport, interval time.Duration, onItem func(context.Context, T), onError func(error), args ...interface{}) {
	for {
		items := make(chan T, 64)
		sub, err := ws.Subscribe(ctx, items, args...)
		if err != nil {
			onError(err)
		} else {
			func() {
				defer sub.Unsubscribe()
				for {
					select {
					case <-ctx.Done():
						return
					case err := <-sub.Err():
						if err != nil {
							onError(err)
						}
						return
					case item := <-items:
						onItem(ctx, item)
					}
				}
			}()
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
	}
}

func (c *Client) errorHandler(ctx context.Context, action string, onError func(error)) func(error) {
	return func(err error) {
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			return
		}
		c.logger.Debug("watch error", zap.String("action", action), zap.Error(err))
		if onError != nil {
			onError(err)
		}
	}
}

// WatchBlockNumber calls OnBlockNumber for every new block number. Numbers are
// strictly increasing and never repeated.
func (c *Client) WatchBlockNumber(ctx context.Context, opts WatchBlockNumberOptions) (Unwatch, error) {
	if opts.OnBlockNumber == nil {
		return nil, errors.New("OnBlockNumber is required")
	}
	interval := opts.PollingInterval
	if interval <= 0 {
		interval = c.pollingInterval
	}
	tracker := &blockTracker{emitMissed: opts.EmitMissed, emitOnBegin: opts.EmitOnBegin}

	observe := func(ctx context.Context, n uint64) {
		for _, number := range tracker.pending(n) {
			if ctx.Err() != nil {
				return
			}
			opts.OnBlockNumber(number)
			tracker.mark(number)
		}
	}

	ws := c.subscriber(opts.Poll)
	return watch(ctx, func(ctx context.Context) {
		onError := c.errorHandler(ctx, "blockNumber", opts.OnError)
		if ws != nil {
			subscribeLoop(ctx, ws, interval, func(ctx context.Context, h *head) {
				if h != nil && h.Number != nil {
					observe(ctx, h.Number.ToInt().Uint64())
				}
			}, onError, "newHeads")
			return
		}
		pollLoop(ctx, interval, func(ctx context.Context) {
			n, err := c.GetBlockNumber(ctx, WithCacheTime(interval))
			if err != nil {
				onError(err)
				return
			}
			observe(ctx, n)
		})
	}), nil
}

// WatchBlocks calls OnBlock for every new block. With EmitMissed, blocks
// skipped between two polls are fetched and emitted in order.
func (c *Client) WatchBlocks(ctx context.Context, opts WatchBlocksOptions) (Unwatch, error) {
	if opts.OnBlock == nil {
		return nil, errors.New("OnBlock is required")
	}
	interval := opts.PollingInterval
	if interval <= 0 {
		interval = c.pollingInterval
	}
	tag := opts.BlockTag
	if tag == "" {
		tag = types.BlockLatest
	}
	tracker := &blockTracker{emitMissed: opts.EmitMissed, emitOnBegin: opts.EmitOnBegin}
	var prev *types.Block

	observe := func(ctx context.Context, n uint64, latest *types.Block, onError func(error)) {
		for _, number := range tracker.pending(n) {
			block := latest
			if block == nil || number != n {
				var err error
				block, err = c.GetBlock(ctx, BlockQuery{Number: &number, IncludeTransactions: opts.IncludeTransactions})
				if err != nil {
					onError(err)
					return
				}
			}
			if ctx.Err() != nil {
				return
			}
			opts.OnBlock(block, prev)
			prev = block
			tracker.mark(number)
		}
	}

	ws := c.subscriber(opts.Poll || tag != types.BlockLatest)
	return watch(ctx, func(ctx context.Context) {
		onError := c.errorHandler(ctx, "blocks", opts.OnError)
		if ws != nil {
			subscribeLoop(ctx, ws, interval, func(ctx context.Context, h *head) {
				if h != nil && h.Number != nil {
					observe(ctx, h.Number.ToInt().Uint64(), nil, onError)
				}
			}, onError, "newHeads")
			return
		}
		pollLoop(ctx, interval, func(ctx context.Context) {
			block, err := c.GetBlock(ctx, BlockQuery{Tag: tag, IncludeTransactions: opts.IncludeTransactions})
			if err != nil {
				onError(err)
				return
			}
			if block.Pending() {
				return
			}
			observe(ctx, block.NumberU64(), block, onError)
		})
	}), nil
}
