package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tenantlog/ingestion/normalizer"
	"tenantlog/internal/messaging/producer"
	"tenantlog/internal/models"
)

const (
	StatusAccepted  = "accepted"
	acceptedMessage = "Log queued for processing"
)

// Acknowledgment is returned once the broker confirmed the enqueue. It means
// accepted, not processed.
type Acknowledgment struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	LogID     string `json:"log_id"`
	TenantID  string `json:"tenant_id"`
	RequestID string `json:"request_id"`
}

// Service encapsulates the core business logic of the ingestion entry point
type Service struct {
	normalizer     *normalizer.Normalizer
	producer       producer.Producer
	publishTimeout time.Duration
	logger         *zap.Logger
	newRequestID   func() string
}

// NewService creates a new Service instance with configuration
func NewService(n *normalizer.Normalizer, p producer.Producer, publishTimeout time.Duration, logger *zap.Logger) *Service {
	if publishTimeout <= 0 {
		publishTimeout = 5 * time.Second
	}
	return &Service{
		normalizer:     n,
		producer:       p,
		publishTimeout: publishTimeout,
		logger:         logger,
		newRequestID:   uuid.NewString,
	}
}

func acknowledge(rec *models.IngestRecord) *Acknowledgment {
	return &Acknowledgment{
		Status:    StatusAccepted,
		Message:   acceptedMessage,
		LogID:     rec.LogID,
		TenantID:  rec.TenantID,
		RequestID: rec.RequestID,
	}
}

// Submit normalizes one input and publishes it. Validation failures return a
// *normalizer.ValidationError and publish nothing; a broker failure returns a
// *producer.PublishError.
func (s *Service) Submit(ctx context.Context, in normalizer.Input) (*Acknowledgment, error) {
	rec, err := s.normalizer.Normalize(in)
	if err != nil {
		return nil, err
	}
	rec.RequestID = s.newRequestID()

	publishCtx, cancel := context.WithTimeout(ctx, s.publishTimeout)
	defer cancel()

	if _, err := s.producer.Publish(publishCtx, rec); err != nil {
		s.logger.Error("failed to queue log",
			zap.String("tenant_id", rec.TenantID),
			zap.String("log_id", rec.LogID),
			zap.String("request_id", rec.RequestID),
			zap.Error(err))
		return nil, err
	}

	s.logger.Info("log queued",
		zap.String("tenant_id", rec.TenantID),
		zap.String("log_id", rec.LogID),
		zap.String("source", string(rec.Source)),
		zap.String("request_id", rec.RequestID))
	return acknowledge(rec), nil
}

// SubmitBatch normalizes every input first and publishes only if all of them
// are valid, in a single broker call.
func (s *Service) SubmitBatch(ctx context.Context, inputs []normalizer.Structured) ([]*Acknowledgment, error) {
	if len(inputs) == 0 {
		return nil, &normalizer.ValidationError{Field: "body", Reason: "must contain at least one record"}
	}

	recs := make([]*models.IngestRecord, len(inputs))
	for i, in := range inputs {
		rec, err := s.normalizer.Normalize(in)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		rec.RequestID = s.newRequestID()
		recs[i] = rec
	}

	publishCtx, cancel := context.WithTimeout(ctx, s.publishTimeout)
	defer cancel()

	if _, err := s.producer.PublishBatch(publishCtx, recs); err != nil {
		s.logger.Error("failed to queue log batch", zap.Int("count", len(recs)), zap.Error(err))
		return nil, err
	}

	acks := make([]*Acknowledgment, len(recs))
	for i, rec := range recs {
		acks[i] = acknowledge(rec)
	}
	s.logger.Info("log batch queued", zap.Int("count", len(recs)))
	return acks, nil
}

// Close closes the producer.
func (s *Service) Close() error {
	return s.producer.Close()
}
