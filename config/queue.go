package config

import (
	"fmt"
	"time"
)

// Queue backends.
const (
	QueueKafka    = "kafka"
	QueueRabbitMQ = "rabbitmq"
	QueueMemory   = "memory"
)

// KafkaProducerConfig defines configuration for Kafka producer
type KafkaProducerConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`

	// Batch processing settings
	BatchSize    int           `yaml:"batch_size"`
	BatchTimeout time.Duration `yaml:"batch_timeout"`
	BatchBytes   int           `yaml:"batch_bytes"`

	// Reliability settings. Publishing is always synchronous so a broker
	// rejection reaches the caller.
	RequiredAcks string `yaml:"required_acks"`

	// Performance settings
	WriteTimeout time.Duration `yaml:"write_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
}

// SetDefaults sets reasonable default values for the Kafka producer
func (c *KafkaProducerConfig) SetDefaults() {
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.BatchTimeout <= 0 {
		c.BatchTimeout = 10 * time.Millisecond
	}
	if c.BatchBytes <= 0 {
		c.BatchBytes = 5 * 1024 * 1024
	}
	if c.RequiredAcks == "" {
		c.RequiredAcks = "all"
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 5 * time.Second
	}
}

// KafkaConsumerConfig defines configuration for Kafka consumer
type KafkaConsumerConfig struct {
	Brokers           []string      `yaml:"brokers"`             // e.g., ["kafka1:9092", "kafka2:9092"]
	Topic             string        `yaml:"topic"`               // Topic to consume from
	GroupID           string        `yaml:"group_id"`            // Consumer group ID
	SessionTimeout    time.Duration `yaml:"session_timeout"`     // Kafka session timeout
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`  // Kafka heartbeat interval
	AutoOffsetReset   string        `yaml:"auto_offset_reset"`   // earliest/latest
}

// SetDefaults sets reasonable default values for Kafka consumer configuration
func (c *KafkaConsumerConfig) SetDefaults() {
	if c.SessionTimeout <= 0 {
		c.SessionTimeout = 30 * time.Second
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 3 * time.Second
	}
	if c.AutoOffsetReset == "" {
		c.AutoOffsetReset = "earliest"
	}
}

// RabbitMQConfig configures the RabbitMQ queue backend.
type RabbitMQConfig struct {
	URL            string        `yaml:"url"`
	Exchange       string        `yaml:"exchange"`
	RoutingKey     string        `yaml:"routing_key"`
	Queue          string        `yaml:"queue"`
	DeadLetter     string        `yaml:"dead_letter_exchange"` // receives undecodable bodies
	Prefetch       int           `yaml:"prefetch"`
	ConfirmTimeout time.Duration `yaml:"confirm_timeout"`
}

// SetDefaults sets reasonable default values for RabbitMQ
func (c *RabbitMQConfig) SetDefaults() {
	if c.Exchange == "" {
		c.Exchange = "logs.ingest"
	}
	if c.RoutingKey == "" {
		c.RoutingKey = "logs.raw"
	}
	if c.Queue == "" {
		c.Queue = "logs.to-redact"
	}
	if c.DeadLetter == "" {
		c.DeadLetter = "logs.dead-letter-x"
	}
	if c.Prefetch <= 0 {
		c.Prefetch = 10
	}
	if c.ConfirmTimeout <= 0 {
		c.ConfirmTimeout = 5 * time.Second
	}
}

// MemoryQueueConfig configures the in-process broker.
type MemoryQueueConfig struct {
	Capacity          int           `yaml:"capacity"`
	VisibilityTimeout time.Duration `yaml:"visibility_timeout"` // unacked deliveries reappear after this
	RequeueDelay      time.Duration `yaml:"requeue_delay"`      // nacked messages wait this long; negative means immediately
}

// SetDefaults sets reasonable default values for the in-process broker
func (c *MemoryQueueConfig) SetDefaults() {
	if c.Capacity <= 0 {
		c.Capacity = 1024
	}
	if c.VisibilityTimeout <= 0 {
		c.VisibilityTimeout = 30 * time.Second
	}
	if c.RequeueDelay == 0 {
		c.RequeueDelay = 200 * time.Millisecond
	}
}

// QueueConfig selects and configures the queue backend.
type QueueConfig struct {
	Backend       string              `yaml:"backend" validate:"oneof=kafka rabbitmq memory"`
	KafkaProducer KafkaProducerConfig `yaml:"kafka_producer"`
	KafkaConsumer KafkaConsumerConfig `yaml:"kafka_consumer"`
	RabbitMQ      RabbitMQConfig      `yaml:"rabbitmq"`
	Memory        MemoryQueueConfig   `yaml:"memory"`
}

// SetDefaults fills every backend section so switching backends by
// environment override needs no extra keys.
func (c *QueueConfig) SetDefaults() {
	if c.Backend == "" {
		c.Backend = QueueMemory
	}
	c.KafkaProducer.SetDefaults()
	c.KafkaConsumer.SetDefaults()
	c.RabbitMQ.SetDefaults()
	c.Memory.SetDefaults()
}

// Validate checks the settings of the selected backend only.
func (c *QueueConfig) Validate(producer bool) error {
	switch c.Backend {
	case QueueKafka:
		if producer {
			if len(c.KafkaProducer.Brokers) == 0 || c.KafkaProducer.Topic == "" {
				return fmt.Errorf("kafka_producer: brokers and topic are required")
			}
			return nil
		}
		if len(c.KafkaConsumer.Brokers) == 0 || c.KafkaConsumer.Topic == "" || c.KafkaConsumer.GroupID == "" {
			return fmt.Errorf("kafka_consumer: brokers, topic and group_id are required")
		}
	case QueueRabbitMQ:
		if c.RabbitMQ.URL == "" {
			return fmt.Errorf("rabbitmq: url is required")
		}
	case QueueMemory:
	default:
		return fmt.Errorf("unsupported queue backend: %q", c.Backend)
	}
	return nil
}
