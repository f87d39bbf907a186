package normalizer

import (
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tenantlog/internal/models"
	"tenantlog/internal/redact"
)

var fixedNow = time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)

func newTestNormalizer() *Normalizer {
	return New(
		WithClock(func() time.Time { return fixedNow }),
		WithSuffix(func() string { return "0a1b2c3d" }),
	)
}

func TestNormalize_Structured(t *testing.T) {
	rec, err := newTestNormalizer().Normalize(Structured{TenantID: "acme", LogID: "x1", Text: "call 555-123-4567"})
	require.NoError(t, err)

	assert.Equal(t, "acme", rec.TenantID)
	assert.Equal(t, "x1", rec.LogID)
	assert.Equal(t, "call 555-123-4567", rec.Text)
	assert.Equal(t, models.SourceJSON, rec.Source)
	assert.Equal(t, fixedNow, rec.ReceivedAt)
}

func TestNormalize_UnstructuredSynthesizesLogID(t *testing.T) {
	rec, err := newTestNormalizer().Normalize(Unstructured{TenantHeader: "acme", Body: "call 555-123-4567"})
	require.NoError(t, err)

	assert.Equal(t, "acme_20250314092653_0a1b2c3d", rec.LogID)
	assert.Equal(t, models.SourceText, rec.Source)
	assert.True(t, models.IsSafeID(rec.LogID))
}

func TestNormalize_ShapesConverge(t *testing.T) {
	n := newTestNormalizer()
	structured, err := n.Normalize(Structured{TenantID: "acme", LogID: "x1", Text: "call 555-123-4567"})
	require.NoError(t, err)
	text, err := n.Normalize(&Unstructured{TenantHeader: "acme", Body: "call 555-123-4567"})
	require.NoError(t, err)

	assert.Equal(t, structured.TenantID, text.TenantID)
	assert.Equal(t, structured.Text, text.Text)
	assert.NotEqual(t, structured.LogID, text.LogID)
	assert.Equal(t, redact.Redact(structured.Text), redact.Redact(text.Text))
	assert.Equal(t, "call [PHONE_REDACTED]", redact.Redact(text.Text))
}

func TestNormalize_DefaultSuffixIsEightHex(t *testing.T) {
	n := New()
	seen := map[string]bool{}
	pattern := regexp.MustCompile(`^acme_\d{14}_[0-9a-f]{8}$`)
	for i := 0; i < 200; i++ {
		rec, err := n.Normalize(Unstructured{TenantHeader: "acme", Body: "same body"})
		require.NoError(t, err)
		assert.Regexp(t, pattern, rec.LogID)
		assert.False(t, seen[rec.LogID], "duplicate synthesized id %s", rec.LogID)
		seen[rec.LogID] = true
	}
}

func TestNormalize_ValidationErrors(t *testing.T) {
	tests := []struct {
		name  string
		input Input
		field string
	}{
		{"structured missing text", Structured{TenantID: "acme", LogID: "x1"}, "text"},
		{"structured missing tenant", Structured{LogID: "x1", Text: "hello"}, "tenant_id"},
		{"structured blank text", Structured{TenantID: "acme", Text: "  \n\t "}, "text"},
		{"structured unsafe log id", Structured{TenantID: "acme", LogID: "../x", Text: "hello"}, "log_id"},
		{"structured tenant too long", Structured{TenantID: strings.Repeat("a", 101), Text: "hello"}, "tenant_id"},
		{"structured tenant too long once prefixed", Structured{TenantID: "_" + strings.Repeat("a", 99), Text: "hello"}, "tenant_id"},
		{"unstructured tenant too long once prefixed", Unstructured{TenantHeader: "_" + strings.Repeat("a", 99), Body: "hello"}, TenantHeader},
		{"unstructured missing header", Unstructured{Body: "hello"}, TenantHeader},
		{"unstructured empty body", Unstructured{TenantHeader: "acme", Body: "   "}, "text"},
		{"nil structured", (*Structured)(nil), "body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := newTestNormalizer().Normalize(tt.input)
			require.Error(t, err)
			assert.Nil(t, rec)
			assert.True(t, errors.Is(err, ErrValidation))

			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestNormalizeTenantID(t *testing.T) {
	tests := map[string]string{
		"acme":       "acme",
		"ACME_Corp":  "acme_corp",
		"beta inc":   "beta_inc",
		"a/b":        "a_b",
		"_hidden":    "tenant_hidden",
		"-dash":      "tenant-dash",
		"  spaced  ": "spaced",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeTenantID(in), "input %q", in)
	}
}

func TestNormalize_LongestTenantStillFitsSynthesizedID(t *testing.T) {
	n := newTestNormalizer()
	tenant := strings.Repeat("a", 100)

	for _, in := range []Input{
		Structured{TenantID: tenant, Text: "hello"},
		Unstructured{TenantHeader: tenant, Body: "hello"},
	} {
		rec, err := n.Normalize(in)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(rec.LogID), models.MaxIDLength)
		assert.NoError(t, models.ValidateKey(rec.TenantID, rec.LogID))
	}

	rec, err := n.Normalize(Unstructured{TenantHeader: "_" + strings.Repeat("a", 93), Body: "hello"})
	require.NoError(t, err)
	assert.Len(t, rec.TenantID, 100)
	assert.NoError(t, models.ValidateKey(rec.TenantID, rec.LogID))
}
