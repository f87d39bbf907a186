// Package rabbit holds the RabbitMQ connection and topology shared by the
// producer and consumer sides.
package rabbit

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"tenantlog/config"
)

const deadLetterRoutingKey = "logs.invalid"

// Connect dials the broker and opens one channel.
func Connect(cfg config.RabbitMQConfig) (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("failed to open a channel: %w", err)
	}
	return conn, ch, nil
}

// DeclareTopology declares the ingest exchange, the durable work queue and the
// dead-letter pair. Declarations are idempotent so both sides call it.
func DeclareTopology(ch *amqp.Channel, cfg config.RabbitMQConfig) error {
	if err := ch.ExchangeDeclare(cfg.Exchange, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare exchange %q: %w", cfg.Exchange, err)
	}
	if err := ch.ExchangeDeclare(cfg.DeadLetter, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare exchange %q: %w", cfg.DeadLetter, err)
	}

	dlq, err := ch.QueueDeclare(cfg.Queue+".dead-letter", true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to declare dead letter queue: %w", err)
	}
	if err := ch.QueueBind(dlq.Name, deadLetterRoutingKey, cfg.DeadLetter, false, nil); err != nil {
		return fmt.Errorf("failed to bind dead letter queue: %w", err)
	}

	q, err := ch.QueueDeclare(cfg.Queue, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange":    cfg.DeadLetter,
		"x-dead-letter-routing-key": deadLetterRoutingKey,
	})
	if err != nil {
		return fmt.Errorf("failed to declare queue %q: %w", cfg.Queue, err)
	}
	if err := ch.QueueBind(q.Name, cfg.RoutingKey, cfg.Exchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue %q: %w", cfg.Queue, err)
	}
	return nil
}
