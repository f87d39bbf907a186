// Package messaging selects the queue backend once at startup.
package messaging

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"tenantlog/config"
	"tenantlog/internal/messaging/consumer"
	"tenantlog/internal/messaging/memory"
	"tenantlog/internal/messaging/producer"
)

// ErrNoLocalBroker is returned when the memory backend is requested without
// an in-process broker to attach to.
var ErrNoLocalBroker = errors.New("memory queue backend needs an in-process broker")

// Option customizes backend construction.
type Option func(*options)

type options struct {
	broker *memory.Broker
}

// WithBroker attaches the memory backend to an existing in-process broker, so
// the ingestion side and a co-located worker share one queue.
func WithBroker(b *memory.Broker) Option {
	return func(o *options) { o.broker = b }
}

func apply(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// NewProducer creates a producer for the configured backend.
func NewProducer(cfg config.QueueConfig, logger *zap.Logger, opts ...Option) (producer.Producer, error) {
	o := apply(opts)
	switch cfg.Backend {
	case config.QueueKafka:
		p, err := producer.NewKafkaProducer(cfg.KafkaProducer, logger.Named("kafka"))
		if err != nil {
			return nil, err
		}
		return p, nil
	case config.QueueRabbitMQ:
		p, err := producer.NewRabbitProducer(cfg.RabbitMQ, logger.Named("rabbitmq"))
		if err != nil {
			return nil, err
		}
		return p, nil
	case config.QueueMemory, "":
		if o.broker != nil {
			return o.broker, nil
		}
		return memory.NewBroker(cfg.Memory, logger.Named("memory")), nil
	default:
		return nil, fmt.Errorf("unsupported queue backend: %s", cfg.Backend)
	}
}

// NewConsumer creates a consumer for the configured backend.
func NewConsumer(cfg config.QueueConfig, logger *zap.Logger, opts ...Option) (consumer.Consumer, error) {
	o := apply(opts)
	switch cfg.Backend {
	case config.QueueKafka:
		c, err := consumer.NewKafkaConsumer(cfg.KafkaConsumer, cfg.KafkaProducer, logger.Named("kafka"))
		if err != nil {
			return nil, err
		}
		return c, nil
	case config.QueueRabbitMQ:
		c, err := consumer.NewRabbitConsumer(cfg.RabbitMQ, logger.Named("rabbitmq"))
		if err != nil {
			return nil, err
		}
		return c, nil
	case config.QueueMemory, "":
		if o.broker == nil {
			return nil, ErrNoLocalBroker
		}
		return o.broker, nil
	default:
		return nil, fmt.Errorf("unsupported queue backend: %s", cfg.Backend)
	}
}
