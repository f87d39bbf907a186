package models

import (
	"errors"
	"fmt"
	"regexp"
)

// ErrInvalidKey indicates a tenant or log id that cannot be used as a namespace segment.
var ErrInvalidKey = errors.New("invalid namespace key")

const (
	tenantSegment = "tenant:"
	logSegment    = "log:"
	MaxIDLength   = 128
)

var safeIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// IsSafeID reports whether id can be embedded in a storage key without
// escaping its namespace.
func IsSafeID(id string) bool {
	return id != "" && len(id) <= MaxIDLength && safeIDPattern.MatchString(id)
}

// ValidateKey checks both halves of the idempotency key.
func ValidateKey(tenantID, logID string) error {
	if !IsSafeID(tenantID) {
		return fmt.Errorf("%w: tenant_id %q", ErrInvalidKey, tenantID)
	}
	if !IsSafeID(logID) {
		return fmt.Errorf("%w: log_id %q", ErrInvalidKey, logID)
	}
	return nil
}

// TenantPrefix is the namespace root of one tenant: "tenant:{tenant_id}/".
func TenantPrefix(tenantID string) string {
	return tenantSegment + tenantID + "/"
}

// NamespaceKey builds "tenant:{tenant_id}/log:{log_id}".
func NamespaceKey(tenantID, logID string) string {
	return TenantPrefix(tenantID) + logSegment + logID
}
