// Package store persists processed logs under a two-level namespace,
// tenant:{tenant_id}/log:{log_id}. Every operation takes the tenant id, so no
// method can reach another tenant's documents.
package store

import (
	"context"
	"errors"
	"fmt"

	"tenantlog/internal/models"
)

var (
	// ErrNotFound is returned by Get when no document exists for the key.
	ErrNotFound = errors.New("processed log not found")
	// ErrInvalidKey is returned for ids that cannot form a namespace key.
	ErrInvalidKey = models.ErrInvalidKey
)

// DefaultListLimit caps List when the caller passes a non-positive limit.
const DefaultListLimit = 100

// Store is the idempotent keyed store of processed logs. Implementations do
// not retry; failures propagate to the worker, which nacks the message.
type Store interface {
	// Upsert fully overwrites the document at (tenantID, logID).
	Upsert(ctx context.Context, tenantID, logID string, doc *models.ProcessedLog) error

	// Get reads one document of one tenant.
	Get(ctx context.Context, tenantID, logID string) (*models.ProcessedLog, error)

	// List returns up to limit documents of one tenant ordered by log id.
	List(ctx context.Context, tenantID string, limit int) ([]*models.ProcessedLog, error)

	// Ping checks the backend is reachable.
	Ping(ctx context.Context) error

	Close() error
}

// prepare validates the key and pins the document to it, so the stored body
// can never disagree with the key it lives under.
func prepare(tenantID, logID string, doc *models.ProcessedLog) error {
	if err := models.ValidateKey(tenantID, logID); err != nil {
		return err
	}
	if doc == nil {
		return fmt.Errorf("nil document for %s", models.NamespaceKey(tenantID, logID))
	}
	doc.TenantID = tenantID
	doc.LogID = logID
	return nil
}

func validateTenant(tenantID string) error {
	if !models.IsSafeID(tenantID) {
		return fmt.Errorf("%w: tenant_id %q", ErrInvalidKey, tenantID)
	}
	return nil
}

func listLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	return limit
}
