package producer

import (
	"context"
	"errors"
	"fmt"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"tenantlog/config"
	"tenantlog/internal/models"
)

// KafkaProducer implements the Producer interface
type KafkaProducer struct {
	writer *kafka.Writer
	logger *zap.Logger
	topic  string
}

// RequiredAcks parses the required_acks setting.
func RequiredAcks(s string) kafka.RequiredAcks {
	switch s {
	case "none":
		return kafka.RequireNone
	case "one":
		return kafka.RequireOne
	default:
		return kafka.RequireAll
	}
}

// NewKafkaProducer creates a new KafkaProducer. Writes are synchronous so a
// broker rejection reaches the caller of Publish.
func NewKafkaProducer(cfg config.KafkaProducerConfig, logger *zap.Logger) (*KafkaProducer, error) {
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return nil, errors.New("kafka producer configuration incomplete: both brokers and topic are required")
	}
	cfg.SetDefaults()

	w := &kafka.Writer{
		Addr:     kafka.TCP(cfg.Brokers...),
		Topic:    cfg.Topic,
		Balancer: &kafka.Hash{}, // one key, one partition

		BatchSize:    cfg.BatchSize,
		BatchTimeout: cfg.BatchTimeout,
		BatchBytes:   int64(cfg.BatchBytes),

		RequiredAcks: RequiredAcks(cfg.RequiredAcks),
		Async:        false,

		WriteTimeout: cfg.WriteTimeout,
		ReadTimeout:  cfg.ReadTimeout,

		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			logger.Error("kafka writer error", zap.String("detail", fmt.Sprintf(msg, args...)))
		}),
	}

	logger.Info("kafka producer created",
		zap.Strings("brokers", cfg.Brokers),
		zap.String("topic", cfg.Topic),
		zap.String("required_acks", cfg.RequiredAcks))

	return &KafkaProducer{
		writer: w,
		logger: logger,
		topic:  cfg.Topic,
	}, nil
}

func toKafkaMessage(rec *models.IngestRecord) (kafka.Message, error) {
	body, err := models.EncodeIngestRecord(rec)
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{
		Key:   []byte(rec.Key()),
		Value: body,
	}, nil
}

// Publish sends a message
func (p *KafkaProducer) Publish(ctx context.Context, rec *models.IngestRecord) (MessageHandle, error) {
	handles, err := p.PublishBatch(ctx, []*models.IngestRecord{rec})
	if err != nil {
		return MessageHandle{}, err
	}
	return handles[0], nil
}

// PublishBatch sends records in batch to the configured topic
func (p *KafkaProducer) PublishBatch(ctx context.Context, recs []*models.IngestRecord) ([]MessageHandle, error) {
	if len(recs) == 0 {
		return nil, nil
	}

	msgs := make([]kafka.Message, len(recs))
	handles := make([]MessageHandle, len(recs))
	for i, rec := range recs {
		msg, err := toKafkaMessage(rec)
		if err != nil {
			return nil, publishErr(config.QueueKafka, err)
		}
		msgs[i] = msg
		handles[i] = MessageHandle{Backend: config.QueueKafka, MessageID: rec.Key(), Partition: -1, Offset: -1}
	}

	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		p.logger.Error("failed to write kafka messages",
			zap.Int("count", len(msgs)), zap.String("topic", p.topic), zap.Error(err))
		return nil, publishErr(config.QueueKafka, err)
	}

	p.logger.Debug("kafka messages written", zap.Int("count", len(msgs)), zap.String("topic", p.topic))
	return handles, nil
}

// Close closes the producer
func (p *KafkaProducer) Close() error {
	p.logger.Info("closing kafka producer")
	return p.writer.Close()
}

var _ Producer = (*KafkaProducer)(nil) // Compile-time interface check
