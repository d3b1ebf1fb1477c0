package archiver

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Panorama-Block/archive/internal/client"
	"github.com/Panorama-Block/archive/internal/metrics"
	"github.com/Panorama-Block/archive/internal/service"
	"github.com/Panorama-Block/archive/internal/types"
)

const (
	blockBuffer      = 100
	archiveAttempts  = 3
	blockServiceName = "blocks"
)

// BlockSource is the part of the archive client the block archiver uses
type BlockSource interface {
	WatchBlocks(ctx context.Context, opts client.WatchBlocksOptions) (client.Unwatch, error)
	GetTransactionReceipt(ctx context.Context, hash common.Hash) (*types.TransactionReceipt, error)
}

// BlockArchiver archives every new block with its transactions, receipts
// and logs. Blocks are archived in order and none is skipped.
type BlockArchiver struct {
	*service.Base
	source  BlockSource
	metrics *metrics.Archive
	blocks  chan *types.Block

	mutex             sync.Mutex
	unwatch           client.Unwatch
	lastArchivedBlock uint64
	lastArchivedHash  common.Hash
	lastArchivedAt    time.Time
	blocksArchived    uint64
	reorgs            uint64
	failures          uint64
	lastError         string
}

// NewBlockArchiver creates a block archiver. archiveMetrics may be nil.
func NewBlockArchiver(source BlockSource, publisher service.EventPublisher, archiveMetrics *metrics.Archive, options ...service.ServiceOption) *BlockArchiver {
	if archiveMetrics == nil {
		archiveMetrics = metrics.NewArchive(nil)
	}
	return &BlockArchiver{
		Base:    service.NewBase(publisher, blockServiceName, options...),
		source:  source,
		metrics: archiveMetrics,
		blocks:  make(chan *types.Block, blockBuffer),
	}
}

// Start begins watching for new blocks
func (a *BlockArchiver) Start(parent context.Context) error {
	ctx, err := a.Base.Start(parent)
	if err != nil {
		return err
	}

	a.RunWorker(0, a.processBlocks)

	unwatch, err := a.source.WatchBlocks(ctx, client.WatchBlocksOptions{
		IncludeTransactions: true,
		EmitMissed:          true,
		EmitOnBegin:         true,
		PollingInterval:     a.GetPollInterval(),
		OnBlock: func(block, _ *types.Block) {
			select {
			case a.blocks <- block:
			case <-ctx.Done():
			}
		},
		OnError: func(err error) {
			a.Logger().Warn("block watch failed", zap.Error(err))
		},
	})
	if err != nil {
		a.Base.Stop()
		return fmt.Errorf("failed to watch blocks: %w", err)
	}

	a.mutex.Lock()
	a.unwatch = unwatch
	a.mutex.Unlock()
	return nil
}

// Stop stops the watcher and waits for the block in progress
func (a *BlockArchiver) Stop() {
	a.mutex.Lock()
	unwatch := a.unwatch
	a.unwatch = nil
	a.mutex.Unlock()

	if unwatch != nil {
		unwatch()
	}
	a.Base.Stop()
}

func (a *BlockArchiver) processBlocks(ctx context.Context, _ int) {
	for {
		select {
		case <-ctx.Done():
			return
		case block := <-a.blocks:
			a.archiveWithRetry(ctx, block)
		}
	}
}

func (a *BlockArchiver) archiveWithRetry(ctx context.Context, block *types.Block) {
	var err error
	// events already published for block; retries resume after them
	sent := 0
	for attempt := 1; attempt <= archiveAttempts; attempt++ {
		if err = a.archiveBlock(ctx, block, &sent); err == nil {
			return
		}
		if ctx.Err() != nil {
			return
		}
		a.Logger().Warn("failed to archive block",
			zap.Uint64("block", block.NumberU64()),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return
		case <-time.After(a.GetPollInterval()):
		}
	}

	a.mutex.Lock()
	a.failures++
	a.lastError = err.Error()
	a.mutex.Unlock()
	a.Logger().Error("giving up on block", zap.Uint64("block", block.NumberU64()), zap.Error(err))
}

// pendingEvent is an event archiveBlock still has to publish
type pendingEvent struct {
	eventType string
	key       string
	data      interface{}
}

// archiveBlock publishes the block, then each transaction with its receipt,
// then the receipt logs. Publishing starts at event *sent, which is advanced
// after every published event.
func (a *BlockArchiver) archiveBlock(ctx context.Context, block *types.Block, sent *int) error {
	number := block.NumberU64()
	hashes := block.Transactions.TransactionHashes()
	full := block.Transactions.FullTransactions()

	receipts, err := a.fetchReceipts(ctx, hashes)
	if err != nil {
		return err
	}

	var events []pendingEvent
	reorg := a.checkReorg(block)
	if reorg != nil {
		events = append(events, pendingEvent{types.EventBlockReorged, strconv.FormatUint(number, 10), *reorg})
	}
	events = append(events, pendingEvent{types.EventBlockArchived, strconv.FormatUint(number, 10), block})

	logs := 0
	for i, hash := range hashes {
		archived := types.ArchivedTransaction{Receipt: receipts[i]}
		if full != nil {
			archived.Transaction = full[i]
		}
		events = append(events, pendingEvent{types.EventTransactionArchived, hash.Hex(), archived})
		for _, l := range receipts[i].Logs {
			key := fmt.Sprintf("%s:%d", l.TransactionHash.Hex(), l.LogIndex)
			events = append(events, pendingEvent{types.EventLogArchived, key, l})
			logs++
		}
	}

	for *sent < len(events) {
		e := events[*sent]
		if err := a.publish(ctx, e.eventType, e.key, e.data); err != nil {
			return err
		}
		*sent++
	}

	a.metrics.BlocksArchived.Inc()
	a.metrics.TransactionsArchived.Add(float64(len(hashes)))
	a.metrics.LogsArchived.Add(float64(logs))
	a.metrics.LastArchivedBlock.Set(float64(number))

	a.mutex.Lock()
	if reorg != nil {
		a.reorgs++
	}
	a.lastArchivedBlock = number
	if block.Hash != nil {
		a.lastArchivedHash = *block.Hash
	}
	a.lastArchivedAt = time.Now()
	a.blocksArchived++
	a.mutex.Unlock()

	a.Logger().Debug("archived block",
		zap.Uint64("block", number),
		zap.Int("transactions", len(hashes)),
		zap.Int("logs", logs),
	)
	return nil
}

// fetchReceipts loads the receipts of hashes concurrently, bounded by the
// worker count. The result is in block order.
func (a *BlockArchiver) fetchReceipts(ctx context.Context, hashes []common.Hash) ([]*types.TransactionReceipt, error) {
	receipts := make([]*types.TransactionReceipt, len(hashes))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(a.GetWorkerCount())
	for i, hash := range hashes {
		g.Go(func() error {
			receipt, err := a.source.GetTransactionReceipt(ctx, hash)
			if err != nil {
				return fmt.Errorf("failed to get receipt %s: %w", hash.Hex(), err)
			}
			receipts[i] = receipt
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return receipts, nil
}

// checkReorg reports a reorg when block follows the last archived block by
// number but not by parent hash
func (a *BlockArchiver) checkReorg(block *types.Block) *types.BlockReorg {
	a.mutex.Lock()
	lastNumber, lastHash := a.lastArchivedBlock, a.lastArchivedHash
	a.mutex.Unlock()

	number := block.NumberU64()
	if lastHash == (common.Hash{}) || number != lastNumber+1 || block.ParentHash == lastHash {
		return nil
	}

	reorg := &types.BlockReorg{
		Number:         number,
		ParentHash:     block.ParentHash,
		ArchivedParent: lastHash,
	}
	if block.Hash != nil {
		reorg.Hash = *block.Hash
	}
	a.Logger().Warn("chain reorganized",
		zap.Uint64("block", number),
		zap.Stringer("parentHash", block.ParentHash),
		zap.Stringer("archivedParent", lastHash),
	)
	return reorg
}

func (a *BlockArchiver) publish(ctx context.Context, eventType, key string, data interface{}) error {
	if err := a.PublishEvent(ctx, eventType, key, data); err != nil {
		a.metrics.PublishFailures.Inc()
		return fmt.Errorf("failed to publish %s %s: %w", eventType, key, err)
	}
	return nil
}

// LastArchivedBlock returns the number of the last archived block
func (a *BlockArchiver) LastArchivedBlock() uint64 {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	return a.lastArchivedBlock
}

// Status returns the current status of the archiver
func (a *BlockArchiver) Status() map[string]interface{} {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	lastArchivedAt := ""
	if !a.lastArchivedAt.IsZero() {
		lastArchivedAt = a.lastArchivedAt.Format(time.RFC3339)
	}

	return map[string]interface{}{
		"chainId":           a.GetChainID(),
		"running":           a.IsRunning(),
		"lastArchivedBlock": a.lastArchivedBlock,
		"lastArchivedAt":    lastArchivedAt,
		"blocksArchived":    a.blocksArchived,
		"reorgs":            a.reorgs,
		"failures":          a.failures,
		"lastError":         a.lastError,
		"queuedBlocks":      len(a.blocks),
	}
}
