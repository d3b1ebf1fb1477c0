package event

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Panorama-Block/archive/internal/logging"
	"github.com/Panorama-Block/archive/internal/types"
)

// BatchFunc handles one batch of events
type BatchFunc func([]types.Event) error

// BatchProcessor groups events into batches flushed by size or timeout
type BatchProcessor struct {
	maxBatchSize int
	batchTimeout time.Duration
	eventChan    chan types.Event
	processBatch BatchFunc
	currentBatch []types.Event
	mutex        sync.Mutex
	workerCount  int
	processingWg sync.WaitGroup
	flushWg      sync.WaitGroup
	shutdown     chan struct{}
	stopOnce     sync.Once
	logger       *zap.Logger
}

// NewBatchProcessor creates a new batch processor
func NewBatchProcessor(config BatchConfig, processBatch BatchFunc, logger *zap.Logger) *BatchProcessor {
	if config.MaxBatchSize <= 0 {
		config.MaxBatchSize = 1
	}
	if config.WorkerCount <= 0 {
		config.WorkerCount = 1
	}
	return &BatchProcessor{
		maxBatchSize: config.MaxBatchSize,
		batchTimeout: config.BatchTimeout,
		eventChan:    make(chan types.Event, config.EventBufferSize),
		processBatch: processBatch,
		currentBatch: make([]types.Event, 0, config.MaxBatchSize),
		workerCount:  config.WorkerCount,
		shutdown:     make(chan struct{}),
		logger:       logging.OrNop(logger).Named("batch"),
	}
}

// AddEvent adds an event to the batch processor
func (b *BatchProcessor) AddEvent(event types.Event) error {
	select {
	case b.eventChan <- event:
		return nil
	default:
		return ErrBatchProcessorFull
	}
}

// Start begins processing batches
func (b *BatchProcessor) Start(ctx context.Context) {
	for i := 0; i < b.workerCount; i++ {
		b.processingWg.Add(1)
		go b.processingWorker(ctx)
	}

	if b.batchTimeout > 0 {
		b.processingWg.Add(1)
		go b.batchTimerWorker(ctx)
	}
}

// Stop stops the workers, flushes what is left and waits for all batches to
// be processed
func (b *BatchProcessor) Stop() {
	b.stopOnce.Do(func() { close(b.shutdown) })
	b.processingWg.Wait()

	// drain events queued after the workers left
	for {
		select {
		case event := <-b.eventChan:
			b.addToBatch(event)
			continue
		default:
		}
		break
	}
	b.flushBatchIfNeeded(true)
	b.flushWg.Wait()
}

func (b *BatchProcessor) processingWorker(ctx context.Context) {
	defer b.processingWg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-b.shutdown:
			return
		case event := <-b.eventChan:
			b.addToBatch(event)
		}
	}
}

func (b *BatchProcessor) batchTimerWorker(ctx context.Context) {
	defer b.processingWg.Done()
	ticker := time.NewTicker(b.batchTimeout)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-b.shutdown:
			return
		case <-ticker.C:
			b.flushBatchIfNeeded(true)
		}
	}
}

func (b *BatchProcessor) addToBatch(event types.Event) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	b.currentBatch = append(b.currentBatch, event)
	if len(b.currentBatch) >= b.maxBatchSize {
		b.flushBatchLocked()
	}
}

func (b *BatchProcessor) flushBatchIfNeeded(force bool) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if len(b.currentBatch) > 0 && (force || len(b.currentBatch) >= b.maxBatchSize) {
		b.flushBatchLocked()
	}
}

func (b *BatchProcessor) flushBatchLocked() {
	if len(b.currentBatch) == 0 {
		return
	}

	batch := make([]types.Event, len(b.currentBatch))
	copy(batch, b.currentBatch)
	b.currentBatch = b.currentBatch[:0]

	b.flushWg.Add(1)
	go func(eventBatch []types.Event) {
		defer b.flushWg.Done()
		if err := b.processBatch(eventBatch); err != nil {
			b.logger.Error("failed to process batch",
				zap.String("type", eventBatch[0].Type),
				zap.Int("size", len(eventBatch)),
				zap.Error(err),
			)
		}
	}(batch)
}

// ErrBatchProcessorFull is returned when the batch processor channel is full
var ErrBatchProcessorFull = &BatchProcessorError{message: "batch processor is full"}

// BatchProcessorError represents an error in the batch processor
type BatchProcessorError struct {
	message string
}

func (e *BatchProcessorError) Error() string {
	return e.message
}
