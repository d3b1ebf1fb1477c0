package kafka

import (
	"fmt"
	"time"

	"github.com/confluentinc/confluent-kafka-go/kafka"
	"go.uber.org/zap"

	"github.com/Panorama-Block/archive/internal/logging"
)

const flushTimeout = 5 * time.Second

// Publisher sends a keyed message to a topic
type Publisher interface {
	Publish(topic string, key, value []byte) error
	Close()
}

// Producer publishes messages to Kafka. Delivery reports are read in the
// background and failures are logged.
type Producer struct {
	producer *kafka.Producer
	logger   *zap.Logger
	done     chan struct{}
}

var _ Publisher = (*Producer)(nil)

// NewProducer connects a producer to broker
func NewProducer(broker string, logger *zap.Logger) (*Producer, error) {
	p, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": broker,
		"acks":              "all",
		"linger.ms":         20,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	producer := &Producer{
		producer: p,
		logger:   logging.OrNop(logger).Named("kafka"),
		done:     make(chan struct{}),
	}
	go producer.handleDeliveries()
	return producer, nil
}

// Publish queues value for topic. The call does not wait for delivery.
func (p *Producer) Publish(topic string, key, value []byte) error {
	err := p.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: kafka.PartitionAny},
		Key:            key,
		Value:          value,
	}, nil)
	if err != nil {
		return fmt.Errorf("failed to produce to %s: %w", topic, err)
	}
	return nil
}

// Close flushes outstanding messages and closes the producer
func (p *Producer) Close() {
	if remaining := p.producer.Flush(int(flushTimeout.Milliseconds())); remaining > 0 {
		p.logger.Warn("messages not delivered before close", zap.Int("remaining", remaining))
	}
	p.producer.Close()
	<-p.done
}

func (p *Producer) handleDeliveries() {
	defer close(p.done)
	for e := range p.producer.Events() {
		switch ev := e.(type) {
		case *kafka.Message:
			if ev.TopicPartition.Error != nil {
				p.logger.Error("delivery failed",
					zap.Stringp("topic", ev.TopicPartition.Topic),
					zap.ByteString("key", ev.Key),
					zap.Error(ev.TopicPartition.Error),
				)
			}
		case kafka.Error:
			p.logger.Error("kafka error", zap.Error(ev))
		}
	}
}
