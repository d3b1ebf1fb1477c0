package event

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Panorama-Block/archive/internal/logging"
	"github.com/Panorama-Block/archive/internal/types"
)

// Manager coordinates event processing throughout the application
type Manager struct {
	bus           *Bus
	batchConfig   map[string]BatchConfig
	processors    map[string]*BatchProcessor
	lock          sync.RWMutex
	defaultConfig BatchConfig
	logger        *zap.Logger
}

// BatchConfig holds configuration for batch processing
type BatchConfig struct {
	MaxBatchSize    int
	BatchTimeout    time.Duration
	EventBufferSize int
	WorkerCount     int
}

// DefaultBatchConfig is used for event types without their own configuration
var DefaultBatchConfig = BatchConfig{
	MaxBatchSize:    100,
	BatchTimeout:    5 * time.Second,
	EventBufferSize: 1000,
	WorkerCount:     5,
}

// NewManager creates a new event manager
func NewManager(busWorkerCount, busEventBufferSize int, logger *zap.Logger) *Manager {
	logger = logging.OrNop(logger).Named("events")
	return &Manager{
		bus:           NewBus(busWorkerCount, busEventBufferSize, logger),
		batchConfig:   make(map[string]BatchConfig),
		processors:    make(map[string]*BatchProcessor),
		defaultConfig: DefaultBatchConfig,
		logger:        logger,
	}
}

// SetBatchConfig sets the batch configuration for a specific event type
func (m *Manager) SetBatchConfig(eventType string, config BatchConfig) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.batchConfig[eventType] = config
}

// GetBatchConfig gets the batch configuration for a specific event type
func (m *Manager) GetBatchConfig(eventType string) BatchConfig {
	m.lock.RLock()
	defer m.lock.RUnlock()

	config, exists := m.batchConfig[eventType]
	if !exists {
		return m.defaultConfig
	}
	return config
}

// RegisterBatchProcessor registers a batch processor for a specific event
// type. It must be called before Start.
func (m *Manager) RegisterBatchProcessor(eventType string, processBatch BatchFunc) {
	processor := NewBatchProcessor(m.GetBatchConfig(eventType), processBatch, m.logger)

	m.lock.Lock()
	m.processors[eventType] = processor
	m.lock.Unlock()

	m.bus.Subscribe(eventType, func(event types.Event) error {
		return processor.AddEvent(event)
	})
}

// PublishEvent publishes an event to the event bus
func (m *Manager) PublishEvent(event types.Event) error {
	return m.bus.Publish(event)
}

// PublishEventBlocking publishes an event, waiting for room on the bus
func (m *Manager) PublishEventBlocking(ctx context.Context, event types.Event) error {
	return m.bus.PublishBlocking(ctx, event)
}

// Start starts the event manager and all registered processors
func (m *Manager) Start(ctx context.Context) error {
	if err := m.bus.Start(ctx); err != nil {
		return err
	}

	m.lock.RLock()
	defer m.lock.RUnlock()
	for eventType, processor := range m.processors {
		processor.Start(ctx)
		m.logger.Debug("batch processor started", zap.String("type", eventType))
	}
	return nil
}

// Stop stops the bus first so no new events reach the processors, then
// flushes and stops every processor
func (m *Manager) Stop() {
	m.bus.Stop()

	m.lock.RLock()
	defer m.lock.RUnlock()
	for _, processor := range m.processors {
		processor.Stop()
	}
}

// Subscribe directly subscribes to the event bus
func (m *Manager) Subscribe(eventType string, subscriber Subscriber) {
	m.bus.Subscribe(eventType, subscriber)
}
