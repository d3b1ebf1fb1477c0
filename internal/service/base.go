package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Panorama-Block/archive/internal/logging"
	"github.com/Panorama-Block/archive/internal/types"
)

// ErrAlreadyRunning is returned by Start on a running service
var ErrAlreadyRunning = errors.New("service already running")

// EventPublisher hands events to the event pipeline
type EventPublisher interface {
	PublishEventBlocking(ctx context.Context, event types.Event) error
}

// Base provides common functionality for all services
type Base struct {
	publisher    EventPublisher
	logger       *zap.Logger
	chainID      uint64
	pollInterval time.Duration
	workerCount  int
	workerWg     sync.WaitGroup
	context      context.Context
	cancelFunc   context.CancelFunc
	name         string
	isRunning    bool
	runningMutex sync.Mutex
}

// ServiceOption is a function that configures a Service
type ServiceOption func(*Base)

// NewBase creates a new base service
func NewBase(publisher EventPublisher, name string, options ...ServiceOption) *Base {
	base := &Base{
		publisher:    publisher,
		logger:       zap.NewNop(),
		pollInterval: 4 * time.Second,
		workerCount:  5,
		name:         name,
	}

	for _, option := range options {
		option(base)
	}
	base.logger = base.logger.Named(name)

	return base
}

// WithPollInterval sets the poll interval
func WithPollInterval(interval time.Duration) ServiceOption {
	return func(b *Base) {
		if interval > 0 {
			b.pollInterval = interval
		}
	}
}

// WithWorkerCount sets the worker count
func WithWorkerCount(count int) ServiceOption {
	return func(b *Base) {
		if count > 0 {
			b.workerCount = count
		}
	}
}

// WithChainID sets the chain id stamped on published events
func WithChainID(id uint64) ServiceOption {
	return func(b *Base) {
		b.chainID = id
	}
}

// WithLogger sets the service logger
func WithLogger(logger *zap.Logger) ServiceOption {
	return func(b *Base) {
		b.logger = logging.OrNop(logger)
	}
}

// Start marks the service running and derives its context from parent
func (b *Base) Start(parent context.Context) (context.Context, error) {
	b.runningMutex.Lock()
	defer b.runningMutex.Unlock()

	if b.isRunning {
		return nil, ErrAlreadyRunning
	}

	b.context, b.cancelFunc = context.WithCancel(parent)
	b.isRunning = true
	b.logger.Info("service started",
		zap.Int("workers", b.workerCount),
		zap.Duration("pollInterval", b.pollInterval),
	)
	return b.context, nil
}

// Stop cancels the service context and waits for its workers
func (b *Base) Stop() {
	b.runningMutex.Lock()
	if !b.isRunning {
		b.runningMutex.Unlock()
		return
	}
	cancel := b.cancelFunc
	b.isRunning = false
	b.runningMutex.Unlock()

	cancel()
	b.workerWg.Wait()
	b.logger.Info("service stopped")
}

// IsRunning returns whether the service is running
func (b *Base) IsRunning() bool {
	b.runningMutex.Lock()
	defer b.runningMutex.Unlock()
	return b.isRunning
}

// PublishEvent publishes an event, waiting for room on the bus
func (b *Base) PublishEvent(ctx context.Context, eventType, key string, data interface{}) error {
	return b.publisher.PublishEventBlocking(ctx, types.Event{
		Type:    eventType,
		ChainID: b.chainID,
		Key:     key,
		Data:    data,
	})
}

// RunWorker runs workerFunc until the service context is done. Stop waits for it.
func (b *Base) RunWorker(id int, workerFunc func(context.Context, int)) {
	b.runningMutex.Lock()
	ctx := b.context
	b.runningMutex.Unlock()

	b.logger.Debug("starting worker", zap.Int("worker", id))
	b.workerWg.Add(1)
	go func() {
		defer b.workerWg.Done()
		workerFunc(ctx, id)
	}()
}

// GetContext returns the service context
func (b *Base) GetContext() context.Context {
	b.runningMutex.Lock()
	defer b.runningMutex.Unlock()
	return b.context
}

// Logger returns the service logger
func (b *Base) Logger() *zap.Logger {
	return b.logger
}

// GetChainID returns the chain id stamped on events
func (b *Base) GetChainID() uint64 {
	return b.chainID
}

// GetWorkerCount returns the worker count
func (b *Base) GetWorkerCount() int {
	return b.workerCount
}

// GetPollInterval returns the poll interval
func (b *Base) GetPollInterval() time.Duration {
	return b.pollInterval
}

// GetName returns the service name
func (b *Base) GetName() string {
	return b.name
}
