package producer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"tenantlog/config"
	"tenantlog/internal/messaging/rabbit"
	"tenantlog/internal/models"
)

// RabbitProducer publishes persistent messages with publisher confirms. A
// connection lost between publishes is re-dialed on the next publish.
type RabbitProducer struct {
	conn   *amqp.Connection
	ch     *amqp.Channel
	cfg    config.RabbitMQConfig
	logger *zap.Logger
	mu     sync.Mutex
	closed bool
}

// NewRabbitProducer connects, declares the topology and puts the channel in
// confirm mode.
func NewRabbitProducer(cfg config.RabbitMQConfig, logger *zap.Logger) (*RabbitProducer, error) {
	if cfg.URL == "" {
		return nil, errors.New("rabbitmq producer configuration incomplete: url is required")
	}
	cfg.SetDefaults()

	conn, ch, err := dialConfirming(cfg)
	if err != nil {
		return nil, err
	}

	logger.Info("rabbitmq producer created",
		zap.String("exchange", cfg.Exchange),
		zap.String("routing_key", cfg.RoutingKey))

	return &RabbitProducer{conn: conn, ch: ch, cfg: cfg, logger: logger}, nil
}

func dialConfirming(cfg config.RabbitMQConfig) (*amqp.Connection, *amqp.Channel, error) {
	conn, ch, err := rabbit.Connect(cfg)
	if err != nil {
		return nil, nil, err
	}
	if err := rabbit.DeclareTopology(ch, cfg); err != nil {
		conn.Close()
		return nil, nil, err
	}
	if err := ch.Confirm(false); err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("failed to enable publisher confirms: %w", err)
	}
	return conn, ch, nil
}

// ensureOpen re-dials after a lost connection or channel. Callers hold p.mu.
func (p *RabbitProducer) ensureOpen() error {
	if p.closed {
		return errors.New("rabbitmq producer closed")
	}
	if !p.conn.IsClosed() && !p.ch.IsClosed() {
		return nil
	}

	p.logger.Warn("rabbitmq connection lost, reconnecting")
	if !p.conn.IsClosed() {
		_ = p.conn.Close()
	}
	conn, ch, err := dialConfirming(p.cfg)
	if err != nil {
		return err
	}
	p.conn, p.ch = conn, ch
	p.logger.Info("rabbitmq producer reconnected")
	return nil
}

// Publish sends one record and waits for the broker confirm.
func (p *RabbitProducer) Publish(ctx context.Context, rec *models.IngestRecord) (MessageHandle, error) {
	handles, err := p.PublishBatch(ctx, []*models.IngestRecord{rec})
	if err != nil {
		return MessageHandle{}, err
	}
	return handles[0], nil
}

// PublishBatch publishes every record, then waits for all confirms.
func (p *RabbitProducer) PublishBatch(ctx context.Context, recs []*models.IngestRecord) ([]MessageHandle, error) {
	if len(recs) == 0 {
		return nil, nil
	}

	confirmCtx, cancel := context.WithTimeout(ctx, p.cfg.ConfirmTimeout)
	defer cancel()

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.ensureOpen(); err != nil {
		return nil, publishErr(config.QueueRabbitMQ, err)
	}

	confirms := make([]*amqp.DeferredConfirmation, 0, len(recs))
	handles := make([]MessageHandle, 0, len(recs))
	for _, rec := range recs {
		body, err := models.EncodeIngestRecord(rec)
		if err != nil {
			return nil, publishErr(config.QueueRabbitMQ, err)
		}

		dc, err := p.ch.PublishWithDeferredConfirmWithContext(confirmCtx,
			p.cfg.Exchange,
			p.cfg.RoutingKey,
			false,
			false,
			amqp.Publishing{
				ContentType:  "application/json",
				Body:         body,
				DeliveryMode: amqp.Persistent,
				MessageId:    rec.Key(),
				Timestamp:    time.Now(),
			},
		)
		if err != nil {
			p.logger.Error("failed to publish message", zap.String("key", rec.Key()), zap.Error(err))
			return nil, publishErr(config.QueueRabbitMQ, err)
		}
		confirms = append(confirms, dc)
		handles = append(handles, MessageHandle{
			Backend:   config.QueueRabbitMQ,
			MessageID: rec.Key(),
			Offset:    int64(dc.DeliveryTag),
		})
	}

	for i, dc := range confirms {
		acked, err := dc.WaitContext(confirmCtx)
		if err != nil {
			return nil, publishErr(config.QueueRabbitMQ, fmt.Errorf("waiting for confirm of %s: %w", handles[i].MessageID, err))
		}
		if !acked {
			return nil, publishErr(config.QueueRabbitMQ, fmt.Errorf("broker nacked %s", handles[i].MessageID))
		}
	}
	return handles, nil
}

// Close closes the channel and connection.
func (p *RabbitProducer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true

	p.logger.Info("closing rabbitmq producer")
	if err := p.ch.Close(); err != nil {
		p.logger.Warn("failed to close channel", zap.Error(err))
	}
	return p.conn.Close()
}

var _ Producer = (*RabbitProducer)(nil)
