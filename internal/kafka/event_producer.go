package kafka

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/Panorama-Block/archive/internal/config"
	"github.com/Panorama-Block/archive/internal/logging"
	"github.com/Panorama-Block/archive/internal/types"
)

// EventProducer adapts our event system to Kafka
type EventProducer struct {
	producer      Publisher
	topicMappings map[string]string
	mutex         sync.RWMutex
	logger        *zap.Logger
}

// NewEventProducer creates a new event producer
func NewEventProducer(producer Publisher, logger *zap.Logger) *EventProducer {
	return &EventProducer{
		producer:      producer,
		topicMappings: make(map[string]string),
		logger:        logging.OrNop(logger).Named("kafka"),
	}
}

// RegisterTopicMapping maps an event type to a Kafka topic
func (ep *EventProducer) RegisterTopicMapping(eventType, topic string) {
	ep.mutex.Lock()
	defer ep.mutex.Unlock()
	ep.topicMappings[eventType] = topic
}

// RegisterTopics maps every archive event type to its configured topic.
// Types whose topic is empty are left unmapped.
func (ep *EventProducer) RegisterTopics(cfg config.Kafka) {
	for eventType, topic := range map[string]string{
		types.EventBlockArchived:       cfg.TopicBlocks,
		types.EventBlockReorged:        cfg.TopicBlocks,
		types.EventTransactionArchived: cfg.TopicTransactions,
		types.EventLogArchived:         cfg.TopicLogs,
		types.EventContractEvent:       cfg.TopicContractEvents,
	} {
		if topic != "" {
			ep.RegisterTopicMapping(eventType, topic)
		}
	}
}

// EventTypes returns the mapped event types
func (ep *EventProducer) EventTypes() []string {
	ep.mutex.RLock()
	defer ep.mutex.RUnlock()
	eventTypes := make([]string, 0, len(ep.topicMappings))
	for eventType := range ep.topicMappings {
		eventTypes = append(eventTypes, eventType)
	}
	return eventTypes
}

func (ep *EventProducer) topic(eventType string) (string, bool) {
	ep.mutex.RLock()
	defer ep.mutex.RUnlock()
	topic, ok := ep.topicMappings[eventType]
	return topic, ok
}

// ProcessEvents publishes a batch of events to their topics. Every event is
// attempted; the failures are joined into the returned error.
func (ep *EventProducer) ProcessEvents(events []types.Event) error {
	var errs []error
	published := 0
	for _, event := range events {
		topic, ok := ep.topic(event.Type)
		if !ok {
			ep.logger.Debug("no topic mapping", zap.String("type", event.Type))
			continue
		}
		if err := ep.publish(topic, event); err != nil {
			errs = append(errs, err)
			continue
		}
		published++
	}

	if published > 0 {
		ep.logger.Debug("published events", zap.Int("count", published))
	}
	return errors.Join(errs...)
}

// HandleEvent handles a single event
func (ep *EventProducer) HandleEvent(event types.Event) error {
	topic, ok := ep.topic(event.Type)
	if !ok {
		return fmt.Errorf("no topic mapping for event type: %s", event.Type)
	}
	return ep.publish(topic, event)
}

// publish sends only the event data, keyed by the event key
func (ep *EventProducer) publish(topic string, event types.Event) error {
	data, err := json.Marshal(event.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event %s: %w", event.Type, event.Key, err)
	}

	var key []byte
	if event.Key != "" {
		key = []byte(event.Key)
	}
	return ep.producer.Publish(topic, key, data)
}

// Close closes the producer
func (ep *EventProducer) Close() {
	ep.producer.Close()
}
