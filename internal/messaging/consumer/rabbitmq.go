package consumer

import (
	"context"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"tenantlog/config"
	"tenantlog/internal/messaging/rabbit"
	"tenantlog/internal/models"
)

// RabbitConsumer consumes with manual acknowledgement. Nack requeues; a
// message whose consumer dies unacked is requeued by the broker.
type RabbitConsumer struct {
	conn       *amqp.Connection
	ch         *amqp.Channel
	deliveries <-chan amqp.Delivery
	logger     *zap.Logger
}

// NewRabbitConsumer connects, declares the topology and starts consuming.
func NewRabbitConsumer(cfg config.RabbitMQConfig, logger *zap.Logger) (*RabbitConsumer, error) {
	if cfg.URL == "" {
		return nil, errors.New("rabbitmq consumer configuration incomplete: url is required")
	}
	cfg.SetDefaults()

	conn, ch, err := rabbit.Connect(cfg)
	if err != nil {
		return nil, err
	}
	if err := rabbit.DeclareTopology(ch, cfg); err != nil {
		conn.Close()
		return nil, err
	}
	if err := ch.Qos(cfg.Prefetch, 0, false); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to set QoS: %w", err)
	}

	deliveries, err := ch.Consume(cfg.Queue, "", false, false, false, false, nil)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to register a consumer: %w", err)
	}

	logger.Info("rabbitmq consumer created", zap.String("queue", cfg.Queue), zap.Int("prefetch", cfg.Prefetch))
	return &RabbitConsumer{conn: conn, ch: ch, deliveries: deliveries, logger: logger}, nil
}

// Consume waits for the next delivery.
func (r *RabbitConsumer) Consume(ctx context.Context) (*Delivery, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case d, ok := <-r.deliveries:
		if !ok {
			return nil, fmt.Errorf("rabbitmq delivery channel closed: %w", ErrConsumerClosed)
		}

		rec, err := models.DecodeIngestRecord(d.Body)
		if err != nil {
			r.logger.Error("malformed message, dead-lettering", zap.Uint64("delivery_tag", d.DeliveryTag), zap.Error(err))
			if nackErr := d.Nack(false, false); nackErr != nil {
				r.logger.Error("failed to nack message", zap.Error(nackErr))
			}
			return nil, err
		}

		attempt := 1
		if d.Redelivered {
			attempt = 2
		}
		return NewDelivery(rec, attempt,
			func() error { return d.Ack(false) },
			func() error { return d.Nack(false, true) },
		), nil
	}
}

// Close closes the channel and connection; unacked deliveries are requeued.
func (r *RabbitConsumer) Close() error {
	r.logger.Info("closing rabbitmq consumer")
	if err := r.ch.Close(); err != nil {
		r.logger.Warn("failed to close channel", zap.Error(err))
	}
	return r.conn.Close()
}

var _ Consumer = (*RabbitConsumer)(nil)
