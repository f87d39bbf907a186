// Package normalizer converts both inbound request shapes into one canonical
// models.IngestRecord.
package normalizer

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"tenantlog/internal/models"
)

// TenantHeader carries the tenant id for unstructured (text/plain) requests.
const TenantHeader = "X-Tenant-ID"

const (
	// maxTenantLength bounds the normalized tenant id so a synthesized
	// {tenant}_{YYYYMMDDHHMMSS}_{8hex} log id stays within models.MaxIDLength.
	maxTenantLength = 100
	logIDTimeLayout = "20060102150405"
)

// Input is one of Structured or Unstructured.
type Input interface {
	source() models.Source
}

// Structured is the JSON request shape. LogID is optional; when present it is
// used verbatim as the idempotency key.
type Structured struct {
	TenantID string `json:"tenant_id" validate:"required"`
	LogID    string `json:"log_id,omitempty" validate:"omitempty,safeid"`
	Text     string `json:"text" validate:"required"`
}

func (Structured) source() models.Source { return models.SourceJSON }

// Unstructured is a raw body plus the tenant header. The log id is always synthesized.
type Unstructured struct {
	TenantHeader string
	Body         string
}

func (Unstructured) source() models.Source { return models.SourceText }

// Normalizer is safe for concurrent use.
type Normalizer struct {
	validate *validator.Validate
	now      func() time.Time
	suffix   func() string
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithClock overrides the time source used for received_at and synthesized ids.
func WithClock(now func() time.Time) Option {
	return func(n *Normalizer) { n.now = now }
}

// WithSuffix overrides the 8-hex suffix generator of synthesized log ids.
func WithSuffix(fn func() string) Option {
	return func(n *Normalizer) { n.suffix = fn }
}

// New creates a Normalizer.
func New(opts ...Option) *Normalizer {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("safeid", func(fl validator.FieldLevel) bool {
		return models.IsSafeID(fl.Field().String())
	})

	n := &Normalizer{
		validate: v,
		now:      time.Now,
		suffix:   randomSuffix,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Normalize validates the input and produces the canonical record.
func (n *Normalizer) Normalize(in Input) (*models.IngestRecord, error) {
	var tenantRaw, tenantField, logID, text string

	switch v := in.(type) {
	case Structured:
		if err := n.validate.Struct(v); err != nil {
			return nil, toValidationError(err)
		}
		tenantRaw, tenantField, logID, text = v.TenantID, "tenant_id", v.LogID, v.Text
	case *Structured:
		if v == nil {
			return nil, invalid("body", "is required")
		}
		return n.Normalize(*v)
	case Unstructured:
		if strings.TrimSpace(v.TenantHeader) == "" {
			return nil, invalid(TenantHeader, "header is required")
		}
		tenantRaw, tenantField, text = v.TenantHeader, TenantHeader, v.Body
	case *Unstructured:
		if v == nil {
			return nil, invalid("body", "is required")
		}
		return n.Normalize(*v)
	default:
		return nil, invalid("body", fmt.Sprintf("unsupported input %T", in))
	}

	if strings.TrimSpace(text) == "" {
		return nil, invalid("text", "must not be empty")
	}

	tenantID := NormalizeTenantID(tenantRaw)
	if len(tenantID) > maxTenantLength {
		return nil, invalid(tenantField, fmt.Sprintf("exceeds %d characters after normalization", maxTenantLength))
	}
	if !models.IsSafeID(tenantID) {
		return nil, invalid(tenantField, "is not a usable identifier")
	}

	receivedAt := n.now().UTC()
	if logID == "" {
		logID = fmt.Sprintf("%s_%s_%s", tenantID, receivedAt.Format(logIDTimeLayout), n.suffix())
	}
	// Anything published here must decode on the worker side.
	if err := models.ValidateKey(tenantID, logID); err != nil {
		return nil, invalid("log_id", err.Error())
	}

	return &models.IngestRecord{
		TenantID:   tenantID,
		LogID:      logID,
		Text:       text,
		Source:     in.source(),
		ReceivedAt: receivedAt,
	}, nil
}

var unsafeTenantChars = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// NormalizeTenantID maps a caller-supplied tenant id onto the safe alphabet:
// disallowed characters become "_", a leading "_" or "-" is prefixed with
// "tenant", and the result is lowercased.
func NormalizeTenantID(raw string) string {
	s := unsafeTenantChars.ReplaceAllString(strings.TrimSpace(raw), "_")
	if s != "" && (s[0] == '_' || s[0] == '-') {
		s = "tenant" + s
	}
	return strings.ToLower(s)
}

// randomSuffix returns 8 hex characters taken from a v4 UUID (32 random bits).
func randomSuffix() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

func toValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return invalid("body", err.Error())
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return invalid(fe.Field(), "is required")
	case "safeid":
		return invalid(fe.Field(), "must contain only letters, digits, '-' and '_'")
	default:
		return invalid(fe.Field(), "failed "+fe.Tag()+" check")
	}
}
