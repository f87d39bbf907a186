package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tenantlog/internal/models"
)

func newMemoryStore(t *testing.T) *BadgerStore {
	t.Helper()
	s, err := OpenBadgerStore("", true, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func processed(text string) *models.ProcessedLog {
	return &models.ProcessedLog{
		Source:         "json_upload",
		RedactedText:   text,
		RedactionCount: 1,
		CharacterCount: len(text),
		RequestID:      "req-1",
		IngestedAt:     time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		ProcessedAt:    time.Date(2024, 5, 1, 12, 0, 1, 0, time.UTC),
	}
}

func TestBadgerUpsertIsIdempotent(t *testing.T) {
	s := newMemoryStore(t)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, "acme", "123", processed("call [PHONE_REDACTED]")))
	require.NoError(t, s.Upsert(ctx, "acme", "123", processed("call [PHONE_REDACTED]")))

	docs, err := s.List(ctx, "acme", 0)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "acme", docs[0].TenantID)
	assert.Equal(t, "123", docs[0].LogID)
	assert.Equal(t, "call [PHONE_REDACTED]", docs[0].RedactedText)
}

func TestBadgerUpsertOverwritesWholeDocument(t *testing.T) {
	s := newMemoryStore(t)
	ctx := context.Background()

	first := processed("first")
	first.RedactionCount = 5
	require.NoError(t, s.Upsert(ctx, "acme", "1", first))

	second := processed("second")
	second.RedactionCount = 0
	require.NoError(t, s.Upsert(ctx, "acme", "1", second))

	got, err := s.Get(ctx, "acme", "1")
	require.NoError(t, err)
	assert.Equal(t, "second", got.RedactedText)
	assert.Zero(t, got.RedactionCount)
}

func TestBadgerTenantIsolation(t *testing.T) {
	s := newMemoryStore(t)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, "acme_corp", "dup", processed("acme data")))

	_, err := s.Get(ctx, "beta_inc", "dup")
	assert.ErrorIs(t, err, ErrNotFound)

	docs, err := s.List(ctx, "beta_inc", 0)
	require.NoError(t, err)
	assert.Empty(t, docs)

	// A same-named log of another tenant is a separate document.
	require.NoError(t, s.Upsert(ctx, "beta_inc", "dup", processed("beta data")))
	got, err := s.Get(ctx, "acme_corp", "dup")
	require.NoError(t, err)
	assert.Equal(t, "acme data", got.RedactedText)

	// Tenant prefixes never match a longer tenant id.
	require.NoError(t, s.Upsert(ctx, "acme", "x", processed("short tenant")))
	docs, err = s.List(ctx, "acme", 0)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "short tenant", docs[0].RedactedText)
}

func TestBadgerRejectsNamespaceEscape(t *testing.T) {
	s := newMemoryStore(t)
	ctx := context.Background()

	err := s.Upsert(ctx, "acme/../beta_inc", "1", processed("x"))
	assert.ErrorIs(t, err, ErrInvalidKey)

	err = s.Upsert(ctx, "acme", "log:1", processed("x"))
	assert.ErrorIs(t, err, ErrInvalidKey)

	_, err = s.List(ctx, "", 10)
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestBadgerPinsDocumentToKey(t *testing.T) {
	s := newMemoryStore(t)
	ctx := context.Background()

	doc := processed("x")
	doc.TenantID = "beta_inc"
	doc.LogID = "other"
	require.NoError(t, s.Upsert(ctx, "acme", "1", doc))

	got, err := s.Get(ctx, "acme", "1")
	require.NoError(t, err)
	assert.Equal(t, "acme", got.TenantID)
	assert.Equal(t, "1", got.LogID)

	_, err = s.Get(ctx, "beta_inc", "other")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBadgerListLimit(t *testing.T) {
	s := newMemoryStore(t)
	ctx := context.Background()

	for _, id := range []string{"c", "a", "b"} {
		require.NoError(t, s.Upsert(ctx, "acme", id, processed(id)))
	}

	docs, err := s.List(ctx, "acme", 2)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "a", docs[0].LogID)
	assert.Equal(t, "b", docs[1].LogID)
}

func TestBadgerHonorsCancelledContext(t *testing.T) {
	s := newMemoryStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Upsert(ctx, "acme", "1", processed("x"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBadgerPingAfterClose(t *testing.T) {
	s, err := OpenBadgerStore("", true, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, s.Ping(context.Background()))
	require.NoError(t, s.Close())
	assert.Error(t, s.Ping(context.Background()))
}
