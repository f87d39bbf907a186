package consumer

import (
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tenantlog/internal/models"
)

func TestDeliverySettlesOnce(t *testing.T) {
	var acks, nacks int
	d := NewDelivery(&models.IngestRecord{TenantID: "acme", LogID: "1"}, 1,
		func() error { acks++; return nil },
		func() error { nacks++; return nil })

	require.NoError(t, d.Ack())
	assert.ErrorIs(t, d.Nack(), ErrSettled)
	assert.ErrorIs(t, d.Ack(), ErrSettled)
	assert.Equal(t, 1, acks)
	assert.Zero(t, nacks)
}

func TestAttemptOf(t *testing.T) {
	assert.Equal(t, 1, attemptOf(kafka.Message{}))
	assert.Equal(t, 3, attemptOf(kafka.Message{Headers: []kafka.Header{{Key: AttemptHeader, Value: []byte("3")}}}))
	assert.Equal(t, 1, attemptOf(kafka.Message{Headers: []kafka.Header{{Key: AttemptHeader, Value: []byte("x")}}}))
}

func TestOffsetTrackerCommitsContiguousOnly(t *testing.T) {
	tr := newOffsetTracker()
	msgs := []kafka.Message{{Partition: 0, Offset: 10}, {Partition: 0, Offset: 11}, {Partition: 0, Offset: 12}}
	for _, m := range msgs {
		tr.track(m)
	}
	other := kafka.Message{Partition: 1, Offset: 4}
	tr.track(other)

	_, ok := tr.settle(msgs[2])
	assert.False(t, ok, "offset 12 must wait for 10 and 11")

	upTo, ok := tr.settle(msgs[0])
	require.True(t, ok)
	assert.Equal(t, int64(10), upTo.Offset)

	upTo, ok = tr.settle(msgs[1])
	require.True(t, ok)
	assert.Equal(t, int64(12), upTo.Offset)

	upTo, ok = tr.settle(other)
	require.True(t, ok)
	assert.Equal(t, 1, upTo.Partition)
}
