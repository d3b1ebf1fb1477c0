package client

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/Panorama-Block/archive/internal/transport"
	"github.com/Panorama-Block/archive/internal/types"
)

const uninstallTimeout = 5 * time.Second

// WatchContractEventOptions configures WatchContractEvent
type WatchContractEventOptions struct {
	Address   []common.Address
	ABI       *abi.ABI
	EventName string
	Args      map[string]interface{}
	// Batch delivers all logs of a poll in one OnLogs call instead of one by one.
	Batch           bool
	Poll            bool
	PollingInterval time.Duration
	Strict          bool
	// FromBlock starts the watch at a past block. It implies polling with
	// eth_getLogs.
	FromBlock *uint64
	OnLogs    func(logs []types.DecodedLog)
	OnError   func(err error)
}

// WatchContractEvent calls OnLogs with the logs emitted by matching events.
// Polling uses a node side filter and falls back to eth_getLogs over block
// ranges when the node does not support filters.
func (c *Client) WatchContractEvent(ctx context.Context, opts WatchContractEventOptions) (Unwatch, error) {
	if opts.OnLogs == nil {
		return nil, errors.New("OnLogs is required")
	}
	q := LogQuery{
		Address:   opts.Address,
		ABI:       opts.ABI,
		EventName: opts.EventName,
		Args:      opts.Args,
		Strict:    opts.Strict,
	}
	f, err := q.filter()
	if err != nil {
		return nil, err
	}
	interval := opts.PollingInterval
	if interval <= 0 {
		interval = c.pollingInterval
	}

	ws := c.subscriber(opts.Poll || opts.FromBlock != nil)
	return watch(ctx, func(ctx context.Context) {
		w := &eventWatcher{
			c:        c,
			query:    q,
			filter:   f,
			opts:     opts,
			interval: interval,
			onError:  c.errorHandler(ctx, "contractEvent", opts.OnError),
		}
		if ws != nil {
			w.subscribe(ctx, ws)
			return
		}
		defer w.uninstall()
		if opts.FromBlock != nil {
			// node filters only report changes after they are installed
			w.useLogs = true
			w.next = *opts.FromBlock
			w.started = true
		}
		pollLoop(ctx, interval, w.poll)
	}), nil
}

type eventWatcher struct {
	c        *Client
	query    LogQuery
	filter   types.FilterQuery
	opts     WatchContractEventOptions
	interval time.Duration
	onError  func(error)

	filterID string
	useLogs  bool

	// eth_getLogs fallback: next block to fetch
	next    uint64
	started bool
}

func (w *eventWatcher) poll(ctx context.Context) {
	if !w.useLogs && w.filterID == "" {
		id, err := w.c.newFilter(ctx, w.filter)
		switch {
		case errors.Is(err, ErrFilterNotSupported):
			w.c.logger.Info("node has no filter support, polling eth_getLogs")
			w.useLogs = true
		case err != nil:
			w.onError(err)
			return
		default:
			w.filterID = id
		}
	}
	if w.useLogs {
		w.pollLogs(ctx)
		return
	}

	var raw []types.RPCLog
	if err := w.c.call(ctx, &raw, "eth_getFilterChanges", w.filterID); err != nil {
		if filterNotFound(err) {
			w.c.logger.Debug("filter expired, recreating", zap.String("filter", w.filterID))
			w.filterID = ""
			return
		}
		w.onError(err)
		return
	}
	w.emit(ctx, types.FormatLogs(raw))
}

func (w *eventWatcher) pollLogs(ctx context.Context) {
	number, err := w.c.GetBlockNumber(ctx, WithCacheTime(w.interval))
	if err != nil {
		w.onError(err)
		return
	}
	if !w.started {
		w.started = true
		w.next = number + 1
		return
	}
	if number < w.next {
		return
	}

	f := w.filter
	f.FromBlock = ptr(types.AtNumber(w.next))
	f.ToBlock = ptr(types.AtNumber(number))
	logs, err := w.c.getLogs(ctx, f)
	if err != nil {
		w.onError(err)
		return
	}
	w.c.logger.Debug("fetched logs", zap.String("range", blockRange(w.next, number)), zap.Int("logs", len(logs)))
	w.emit(ctx, logs)
	w.next = number + 1
}

func (w *eventWatcher) subscribe(ctx context.Context, ws *transport.Transport) {
	arg, err := w.filter.ToRPC()
	if err != nil {
		w.onError(err)
		return
	}
	subscribeLoop(ctx, ws, w.interval, func(ctx context.Context, l types.RPCLog) {
		w.emit(ctx, []types.Log{l.Format()})
	}, w.onError, "logs", arg)
}

func (w *eventWatcher) emit(ctx context.Context, logs []types.Log) {
	decoded := w.query.decode(logs)
	if len(decoded) == 0 || ctx.Err() != nil {
		return
	}
	if w.opts.Batch {
		w.opts.OnLogs(decoded)
		return
	}
	for i := range decoded {
		if ctx.Err() != nil {
			return
		}
		w.opts.OnLogs(decoded[i : i+1])
	}
}

func (w *eventWatcher) uninstall() {
	if w.filterID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), uninstallTimeout)
	defer cancel()
	var ok bool
	if err := w.c.call(ctx, &ok, "eth_uninstallFilter", w.filterID); err != nil {
		w.c.logger.Debug("failed to uninstall filter", zap.String("filter", w.filterID), zap.Error(err))
	}
}

// newFilter installs a log filter and returns its id
func (c *Client) newFilter(ctx context.Context, f types.FilterQuery) (string, error) {
	arg, err := f.ToRPC()
	if err != nil {
		return "", err
	}
	var id string
	if err := c.call(ctx, &id, "eth_newFilter", arg); err != nil {
		if methodUnsupported(err) {
			return "", fmt.Errorf("%w: %v", ErrFilterNotSupported, err)
		}
		return "", err
	}
	return id, nil
}

func methodUnsupported(err error) bool {
	var rpcErr *transport.RPCError
	if !errors.As(err, &rpcErr) {
		return false
	}
	if rpcErr.Code == transport.CodeMethodNotFound {
		return true
	}
	msg := strings.ToLower(rpcErr.Message)
	return strings.Contains(msg, "not supported") || strings.Contains(msg, "method not found") || strings.Contains(msg, "does not exist")
}

func filterNotFound(err error) bool {
	var rpcErr *transport.RPCError
	if !errors.As(err, &rpcErr) {
		return false
	}
	return strings.Contains(strings.ToLower(rpcErr.Message), "filter not found")
}

func ptr[T any](v T) *T {
	return &v
}
