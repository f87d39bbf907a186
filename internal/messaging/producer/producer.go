package producer

import (
	"context"
	"errors"
	"fmt"

	"tenantlog/internal/models"
)

// ErrPublish is matched by every PublishError.
var ErrPublish = errors.New("publish failed")

// PublishError reports that the broker did not confirm an enqueue. Callers
// must not report the record as accepted.
type PublishError struct {
	Backend string
	Err     error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("%s publish failed: %v", e.Backend, e.Err)
}

func (e *PublishError) Unwrap() []error {
	return []error{ErrPublish, e.Err}
}

func publishErr(backend string, err error) error {
	return &PublishError{Backend: backend, Err: err}
}

// MessageHandle identifies a message the broker has confirmed.
type MessageHandle struct {
	Backend   string
	MessageID string // log key for kafka/rabbitmq, generated id for the memory broker
	Partition int
	Offset    int64
}

// Producer defines the interface for message queue producer
type Producer interface {
	// Publish sends a single record and returns once the broker confirmed it.
	Publish(ctx context.Context, rec *models.IngestRecord) (MessageHandle, error)

	// PublishBatch sends records in one broker call. Either every record is
	// confirmed or an error is returned.
	PublishBatch(ctx context.Context, recs []*models.IngestRecord) ([]MessageHandle, error)

	// Close closes the producer connection
	Close() error
}
