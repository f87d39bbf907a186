package producer

import (
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"tenantlog/config"
)

func TestPublishErrorMatchesSentinelAndCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := publishErr("kafka", cause)

	assert.ErrorIs(t, err, ErrPublish)
	assert.ErrorIs(t, err, cause)
	assert.EqualError(t, err, "kafka publish failed: connection refused")

	var pe *PublishError
	assert.ErrorAs(t, err, &pe)
	assert.Equal(t, "kafka", pe.Backend)
}

func TestRequiredAcks(t *testing.T) {
	assert.Equal(t, kafka.RequireNone, RequiredAcks("none"))
	assert.Equal(t, kafka.RequireOne, RequiredAcks("one"))
	assert.Equal(t, kafka.RequireAll, RequiredAcks("all"))
	assert.Equal(t, kafka.RequireAll, RequiredAcks(""))
}

func TestConstructorsRejectIncompleteConfig(t *testing.T) {
	_, err := NewKafkaProducer(config.KafkaProducerConfig{Topic: "logs.raw"}, zap.NewNop())
	assert.Error(t, err)

	_, err = NewRabbitProducer(config.RabbitMQConfig{}, zap.NewNop())
	assert.Error(t, err)
}
