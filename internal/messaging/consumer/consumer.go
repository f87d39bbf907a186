package consumer

import (
	"context"
	"errors"
	"sync"

	"tenantlog/internal/models"
)

var (
	// ErrSettled is returned when a delivery is acked or nacked twice.
	ErrSettled = errors.New("delivery already settled")
	// ErrConsumerClosed means the consumer can deliver nothing more, for
	// example after the broker connection dropped. Retrying on the same
	// consumer is pointless.
	ErrConsumerClosed = errors.New("consumer closed")
)

// Delivery is one received message. Exactly one of Ack or Nack takes effect;
// a delivery that is never settled is redelivered by the broker.
type Delivery struct {
	Record  *models.IngestRecord
	Attempt int // 1 on first delivery

	ack  func() error
	nack func() error

	mu      sync.Mutex
	settled bool
}

// NewDelivery wraps a record with the backend's settle callbacks.
func NewDelivery(rec *models.IngestRecord, attempt int, ack, nack func() error) *Delivery {
	return &Delivery{Record: rec, Attempt: attempt, ack: ack, nack: nack}
}

// Ack confirms durable processing; the message will not be delivered again.
func (d *Delivery) Ack() error {
	return d.settle(d.ack)
}

// Nack hands the message back for redelivery.
func (d *Delivery) Nack() error {
	return d.settle(d.nack)
}

func (d *Delivery) settle(fn func() error) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.settled {
		return ErrSettled
	}
	d.settled = true
	return fn()
}

// Consumer defines the interface for message queue consumers.
type Consumer interface {
	// Consume blocks until a message is received or the context is cancelled.
	// Bodies that cannot be decoded are dead-lettered by the backend and
	// reported as models.ErrMalformedRecord.
	Consume(ctx context.Context) (*Delivery, error)

	// Close gracefully shuts down the consumer connection.
	Close() error
}

// Handler processes one record and must call exactly one of ack or nack.
type Handler func(ctx context.Context, rec *models.IngestRecord, ack, nack func())

// Subscribe feeds every delivery of c to handler until ctx is done. Malformed
// bodies are skipped; any other consumer error ends the subscription.
func Subscribe(ctx context.Context, c Consumer, handler Handler) error {
	for {
		d, err := c.Consume(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, models.ErrMalformedRecord) {
				continue
			}
			return err
		}

		handler(ctx, d.Record, func() { _ = d.Ack() }, func() { _ = d.Nack() })
	}
}
