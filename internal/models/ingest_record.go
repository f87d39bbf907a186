package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Source identifies which inbound shape produced an IngestRecord.
type Source string

const (
	SourceJSON Source = "json" // structured {tenant_id, log_id?, text}
	SourceText Source = "text" // raw body plus tenant header
)

// IngestRecord is the canonical message passed from ingestion to the workers.
// It is the exact body published on the queue.
type IngestRecord struct {
	TenantID   string    `json:"tenant_id"`
	LogID      string    `json:"log_id"`
	Text       string    `json:"text"` // raw, unredacted; never persisted
	Source     Source    `json:"source"`
	RequestID  string    `json:"request_id"`
	ReceivedAt time.Time `json:"received_at"`
}

// Key returns the idempotency key of the record.
func (r *IngestRecord) Key() string {
	return NamespaceKey(r.TenantID, r.LogID)
}

// ErrMalformedRecord marks a queue body that can never be processed.
var ErrMalformedRecord = errors.New("malformed ingest record")

// EncodeIngestRecord serializes a record into the queue wire format.
func EncodeIngestRecord(r *IngestRecord) ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize ingest record %s: %w", r.Key(), err)
	}
	return data, nil
}

// DecodeIngestRecord parses a queue body and rejects records whose key could
// escape the tenant namespace.
func DecodeIngestRecord(data []byte) (*IngestRecord, error) {
	var r IngestRecord
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	if err := ValidateKey(r.TenantID, r.LogID); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	return &r, nil
}
