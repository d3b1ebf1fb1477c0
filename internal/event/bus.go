package event

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/Panorama-Block/archive/internal/logging"
	"github.com/Panorama-Block/archive/internal/types"
)

// Subscriber is a function that processes events
type Subscriber func(event types.Event) error

// Bus fans published events out to the subscribers of their type
type Bus struct {
	subscribers map[string][]Subscriber
	mutex       sync.RWMutex
	workerCount int
	eventChan   chan types.Event
	shutdown    chan struct{}
	stopOnce    sync.Once
	workers     sync.WaitGroup
	logger      *zap.Logger
}

// NewBus creates a new event bus with the specified configuration
func NewBus(workerCount, eventBufferSize int, logger *zap.Logger) *Bus {
	if workerCount <= 0 {
		workerCount = 1
	}
	return &Bus{
		subscribers: make(map[string][]Subscriber),
		workerCount: workerCount,
		eventChan:   make(chan types.Event, eventBufferSize),
		shutdown:    make(chan struct{}),
		logger:      logging.OrNop(logger).Named("bus"),
	}
}

// Subscribe registers a subscriber for a specific event type
func (b *Bus) Subscribe(eventType string, subscriber Subscriber) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], subscriber)
}

// Publish queues an event without blocking; ErrEventBusFull is returned when
// the buffer is full
func (b *Bus) Publish(event types.Event) error {
	select {
	case <-b.shutdown:
		return ErrEventBusStopped
	default:
	}

	select {
	case b.eventChan <- event:
		return nil
	default:
		return ErrEventBusFull
	}
}

// PublishBlocking queues an event, waiting for buffer space until ctx is done
func (b *Bus) PublishBlocking(ctx context.Context, event types.Event) error {
	select {
	case b.eventChan <- event:
		return nil
	case <-b.shutdown:
		return ErrEventBusStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Start begins processing events
func (b *Bus) Start(ctx context.Context) error {
	for i := 0; i < b.workerCount; i++ {
		b.workers.Add(1)
		go b.worker(ctx)
	}
	return nil
}

// Stop stops the workers and waits for in-flight events
func (b *Bus) Stop() {
	b.stopOnce.Do(func() { close(b.shutdown) })
	b.workers.Wait()
}

func (b *Bus) worker(ctx context.Context) {
	defer b.workers.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-b.shutdown:
			return
		case event := <-b.eventChan:
			b.processEvent(event)
		}
	}
}

func (b *Bus) processEvent(event types.Event) {
	b.mutex.RLock()
	subscribers := b.subscribers[event.Type]
	b.mutex.RUnlock()

	for _, subscriber := range subscribers {
		if err := subscriber(event); err != nil {
			b.logger.Warn("subscriber failed",
				zap.String("type", event.Type),
				zap.String("key", event.Key),
				zap.Error(err),
			)
		}
	}
}

var (
	// ErrEventBusFull is returned when the event bus channel is full
	ErrEventBusFull = &EventBusError{message: "event bus is full"}
	// ErrEventBusStopped is returned by publishes after Stop
	ErrEventBusStopped = &EventBusError{message: "event bus is stopped"}
)

// EventBusError represents an error in the event bus
type EventBusError struct {
	message string
}

func (e *EventBusError) Error() string {
	return e.message
}
