package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIngestRecordWireFormat(t *testing.T) {
	rec := &IngestRecord{
		TenantID:   "acme",
		LogID:      "x1",
		Text:       "call 555-123-4567",
		Source:     SourceJSON,
		RequestID:  "req-1",
		ReceivedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}

	data, err := EncodeIngestRecord(rec)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"tenant_id":"acme"`)

	decoded, err := DecodeIngestRecord(data)
	require.NoError(t, err)
	assert.Equal(t, rec, decoded)
}

func TestDecodeIngestRecordRejectsBadBodies(t *testing.T) {
	_, err := DecodeIngestRecord([]byte("not json"))
	assert.ErrorIs(t, err, ErrMalformedRecord)

	_, err = DecodeIngestRecord([]byte(`{"tenant_id":"../beta","log_id":"1","text":"x"}`))
	assert.ErrorIs(t, err, ErrMalformedRecord)
}
