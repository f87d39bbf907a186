package consumer

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"tenantlog/config"
	"tenantlog/internal/messaging/producer"
	"tenantlog/internal/models"
)

// AttemptHeader carries the delivery count of a republished message.
const AttemptHeader = "x-attempt"

// KafkaConsumer implements the Consumer interface to consume records from Kafka.
//
// Kafka has no per-message negative acknowledgement, so Nack republishes the
// body to the same topic with an incremented attempt header and then commits
// the original offset.
//
// Offsets are committed per partition only up to the lowest message that is
// still unsettled, so concurrent handlers cannot commit past in-flight work.
type KafkaConsumer struct {
	reader  *kafka.Reader
	retry   *kafka.Writer
	logger  *zap.Logger
	offsets *offsetTracker
}

// NewKafkaConsumer creates a new KafkaConsumer instance
func NewKafkaConsumer(cfg config.KafkaConsumerConfig, retryCfg config.KafkaProducerConfig, logger *zap.Logger) (*KafkaConsumer, error) {
	if len(cfg.Brokers) == 0 || cfg.Topic == "" || cfg.GroupID == "" {
		return nil, errors.New("incomplete kafka configuration: brokers, topic, group_id are all required")
	}
	cfg.SetDefaults()
	retryCfg.SetDefaults()

	readerConfig := kafka.ReaderConfig{
		Brokers:           cfg.Brokers,
		GroupID:           cfg.GroupID,
		Topic:             cfg.Topic,
		MinBytes:          10e3,            // 10KB
		MaxBytes:          10e6,            // 10MB
		MaxWait:           1 * time.Second, // Max wait time for message fetch
		SessionTimeout:    cfg.SessionTimeout,
		HeartbeatInterval: cfg.HeartbeatInterval,
	}

	switch cfg.AutoOffsetReset {
	case "latest":
		readerConfig.StartOffset = kafka.LastOffset
	case "earliest":
		readerConfig.StartOffset = kafka.FirstOffset
	default:
		logger.Warn("unknown auto_offset_reset, using earliest", zap.String("auto_offset_reset", cfg.AutoOffsetReset))
		readerConfig.StartOffset = kafka.FirstOffset
	}

	retry := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: producer.RequiredAcks(retryCfg.RequiredAcks),
		WriteTimeout: retryCfg.WriteTimeout,
	}

	logger.Info("kafka consumer created",
		zap.Strings("brokers", cfg.Brokers),
		zap.String("topic", cfg.Topic),
		zap.String("group_id", cfg.GroupID))

	return &KafkaConsumer{
		reader:  kafka.NewReader(readerConfig),
		retry:   retry,
		logger:  logger,
		offsets: newOffsetTracker(),
	}, nil
}

func attemptOf(msg kafka.Message) int {
	for _, h := range msg.Headers {
		if h.Key == AttemptHeader {
			if n, err := strconv.Atoi(string(h.Value)); err == nil && n > 0 {
				return n
			}
		}
	}
	return 1
}

// Consume implements the Consumer interface by reading messages from Kafka
func (k *KafkaConsumer) Consume(ctx context.Context) (*Delivery, error) {
	kafkaMsg, err := k.reader.FetchMessage(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}

	k.offsets.track(kafkaMsg)

	rec, err := models.DecodeIngestRecord(kafkaMsg.Value)
	if err != nil {
		k.logger.Error("discarding undecodable message",
			zap.Int("partition", kafkaMsg.Partition), zap.Int64("offset", kafkaMsg.Offset), zap.Error(err))
		_ = k.commit(kafkaMsg) // Commit offset to avoid blocking
		return nil, err
	}

	attempt := attemptOf(kafkaMsg)
	ack := func() error {
		return k.commit(kafkaMsg)
	}
	nack := func() error {
		retryMsg := kafka.Message{
			Key:   kafkaMsg.Key,
			Value: kafkaMsg.Value,
			Headers: []kafka.Header{
				{Key: AttemptHeader, Value: []byte(strconv.Itoa(attempt + 1))},
			},
		}
		// Without a successful republish the offset stays uncommitted and the
		// group redelivers after a rebalance.
		if err := k.retry.WriteMessages(context.Background(), retryMsg); err != nil {
			k.logger.Error("failed to republish nacked message",
				zap.String("key", rec.Key()), zap.Error(err))
			return fmt.Errorf("republish %s: %w", rec.Key(), err)
		}
		return ack()
	}

	return NewDelivery(rec, attempt, ack, nack), nil
}

// commit marks msg settled and commits the highest contiguous settled offset
// of its partition, if that advanced.
func (k *KafkaConsumer) commit(msg kafka.Message) error {
	upTo, ok := k.offsets.settle(msg)
	if !ok {
		return nil
	}
	if err := k.reader.CommitMessages(context.Background(), upTo); err != nil {
		k.logger.Error("failed to commit offset", zap.Int64("offset", upTo.Offset), zap.Error(err))
		return fmt.Errorf("commit offset %d: %w", upTo.Offset, err)
	}
	return nil
}

// offsetTracker orders settlements per partition.
type offsetTracker struct {
	mu         sync.Mutex
	partitions map[int]*partitionOffsets
}

type partitionOffsets struct {
	pending []int64 // fetch order
	settled map[int64]kafka.Message
}

func newOffsetTracker() *offsetTracker {
	return &offsetTracker{partitions: make(map[int]*partitionOffsets)}
}

func (t *offsetTracker) track(msg kafka.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.partitions[msg.Partition]
	if !ok {
		p = &partitionOffsets{settled: make(map[int64]kafka.Message)}
		t.partitions[msg.Partition] = p
	}
	p.pending = append(p.pending, msg.Offset)
}

// settle returns the message whose offset may now be committed.
func (t *offsetTracker) settle(msg kafka.Message) (kafka.Message, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.partitions[msg.Partition]
	if !ok {
		return msg, true
	}
	p.settled[msg.Offset] = msg

	var upTo kafka.Message
	advanced := false
	for len(p.pending) > 0 {
		m, done := p.settled[p.pending[0]]
		if !done {
			break
		}
		delete(p.settled, p.pending[0])
		p.pending = p.pending[1:]
		upTo, advanced = m, true
	}
	return upTo, advanced
}

// Close implements the Consumer interface by closing the Kafka reader
func (k *KafkaConsumer) Close() error {
	k.logger.Info("closing kafka consumer")
	if err := k.retry.Close(); err != nil {
		k.logger.Warn("failed to close retry writer", zap.Error(err))
	}
	return k.reader.Close()
}

// Ensure KafkaConsumer implements the Consumer interface
var _ Consumer = (*KafkaConsumer)(nil)
