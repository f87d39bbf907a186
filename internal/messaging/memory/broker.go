// Package memory is an in-process at-least-once queue. A delivery that is not
// acked within the visibility timeout is handed out again, which is how a
// worker crash between receive and ack is recovered.
package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tenantlog/config"
	"tenantlog/internal/messaging/consumer"
	"tenantlog/internal/messaging/producer"
	"tenantlog/internal/models"
)

var (
	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("memory broker closed")
	// ErrQueueFull rejects a publish once capacity is reached.
	ErrQueueFull = errors.New("memory broker at capacity")
	// ErrExpired is returned when settling a delivery whose visibility
	// timeout already elapsed; the message has been requeued.
	ErrExpired = errors.New("delivery expired")
)

type message struct {
	id      string
	body    []byte
	attempt int
}

type lease struct {
	msg   *message
	timer *time.Timer
}

// Broker implements both producer.Producer and consumer.Consumer.
type Broker struct {
	capacity     int
	visibility   time.Duration
	requeueDelay time.Duration
	logger       *zap.Logger

	mu       sync.Mutex
	ready    []*message
	inflight map[uint64]*lease
	delayed  int // nacked, waiting out requeueDelay
	nextTag  uint64
	closed   bool
	signal   chan struct{}
}

// NewBroker creates an empty broker.
func NewBroker(cfg config.MemoryQueueConfig, logger *zap.Logger) *Broker {
	cfg.SetDefaults()
	return &Broker{
		capacity:     cfg.Capacity,
		visibility:   cfg.VisibilityTimeout,
		requeueDelay: cfg.RequeueDelay,
		logger:       logger,
		inflight:     make(map[uint64]*lease),
		signal:       make(chan struct{}, 1),
	}
}

func (b *Broker) notify() {
	select {
	case b.signal <- struct{}{}:
	default:
	}
}

// Publish enqueues one record.
func (b *Broker) Publish(ctx context.Context, rec *models.IngestRecord) (producer.MessageHandle, error) {
	handles, err := b.PublishBatch(ctx, []*models.IngestRecord{rec})
	if err != nil {
		return producer.MessageHandle{}, err
	}
	return handles[0], nil
}

// PublishBatch enqueues all records or none of them.
func (b *Broker) PublishBatch(ctx context.Context, recs []*models.IngestRecord) ([]producer.MessageHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, &producer.PublishError{Backend: config.QueueMemory, Err: err}
	}

	msgs := make([]*message, len(recs))
	handles := make([]producer.MessageHandle, len(recs))
	for i, rec := range recs {
		body, err := models.EncodeIngestRecord(rec)
		if err != nil {
			return nil, &producer.PublishError{Backend: config.QueueMemory, Err: err}
		}
		msgs[i] = &message{id: uuid.NewString(), body: body, attempt: 1}
		handles[i] = producer.MessageHandle{Backend: config.QueueMemory, MessageID: msgs[i].id}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, &producer.PublishError{Backend: config.QueueMemory, Err: ErrClosed}
	}
	if len(b.ready)+len(b.inflight)+b.delayed+len(msgs) > b.capacity {
		return nil, &producer.PublishError{Backend: config.QueueMemory, Err: ErrQueueFull}
	}
	b.ready = append(b.ready, msgs...)
	b.notify()
	return handles, nil
}

// Consume leases the oldest ready message.
func (b *Broker) Consume(ctx context.Context) (*consumer.Delivery, error) {
	for {
		b.mu.Lock()
		if b.closed {
			b.mu.Unlock()
			return nil, ErrClosed
		}
		if len(b.ready) > 0 {
			msg := b.ready[0]
			b.ready[0] = nil
			b.ready = b.ready[1:]
			b.nextTag++
			tag := b.nextTag
			b.inflight[tag] = &lease{
				msg:   msg,
				timer: time.AfterFunc(b.visibility, func() { b.expire(tag) }),
			}
			if len(b.ready) > 0 {
				b.notify()
			}
			b.mu.Unlock()
			return b.deliver(tag, msg)
		}
		b.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-b.signal:
		}
	}
}

func (b *Broker) deliver(tag uint64, msg *message) (*consumer.Delivery, error) {
	rec, err := models.DecodeIngestRecord(msg.body)
	if err != nil {
		b.logger.Error("dropping undecodable message", zap.String("message_id", msg.id), zap.Error(err))
		_ = b.ack(tag)
		return nil, err
	}
	return consumer.NewDelivery(rec, msg.attempt,
		func() error { return b.ack(tag) },
		func() error { return b.requeue(tag, "nack", b.requeueDelay) },
	), nil
}

func (b *Broker) take(tag uint64) (*lease, error) {
	l, ok := b.inflight[tag]
	if !ok {
		return nil, ErrExpired
	}
	delete(b.inflight, tag)
	l.timer.Stop()
	return l, nil
}

func (b *Broker) ack(tag uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, err := b.take(tag)
	return err
}

// requeue returns a leased message to the ready list, after delay when
// positive, so a failing consumer does not spin on the same message.
func (b *Broker) requeue(tag uint64, reason string, delay time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	l, err := b.take(tag)
	if err != nil {
		return err
	}
	if b.closed {
		return ErrClosed
	}
	l.msg.attempt++
	b.logger.Debug("message requeued",
		zap.String("message_id", l.msg.id), zap.String("reason", reason),
		zap.Int("attempt", l.msg.attempt), zap.Duration("delay", delay))

	if delay <= 0 {
		b.ready = append(b.ready, l.msg)
		b.notify()
		return nil
	}
	b.delayed++
	msg := l.msg
	time.AfterFunc(delay, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.delayed--
		if b.closed {
			return
		}
		b.ready = append(b.ready, msg)
		b.notify()
	})
	return nil
}

func (b *Broker) expire(tag uint64) {
	if err := b.requeue(tag, "visibility timeout", 0); err == nil {
		b.logger.Warn("delivery not acknowledged in time, redelivering", zap.Uint64("tag", tag), zap.Duration("visibility_timeout", b.visibility))
	}
}

// Depth reports ready and not-yet-ready message counts. Nacked messages
// waiting out the requeue delay count as in flight.
func (b *Broker) Depth() (ready, inflight int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.ready), len(b.inflight) + b.delayed
}

// Close stops the broker. It is safe to call more than once, since one broker
// serves as both the producer and the consumer of a process.
func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for tag, l := range b.inflight {
		l.timer.Stop()
		delete(b.inflight, tag)
	}
	close(b.signal)
	if n := len(b.ready); n > 0 {
		b.logger.Warn("memory broker closed with undelivered messages", zap.Int("count", n))
	}
	return nil
}

var (
	_ producer.Producer = (*Broker)(nil)
	_ consumer.Consumer = (*Broker)(nil)
)
