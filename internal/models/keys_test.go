package models

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNamespaceKey(t *testing.T) {
	assert.Equal(t, "tenant:acme/log:x1", NamespaceKey("acme", "x1"))
	assert.True(t, strings.HasPrefix(NamespaceKey("acme", "x1"), TenantPrefix("acme")))
	// prefix of one tenant never covers another tenant sharing a name prefix
	assert.False(t, strings.HasPrefix(NamespaceKey("acme_corp", "dup"), TenantPrefix("acme")))
}

func TestValidateKey(t *testing.T) {
	tests := []struct {
		name     string
		tenantID string
		logID    string
		wantErr  bool
	}{
		{"valid", "acme", "x1", false},
		{"dashes and underscores", "beta_inc", "log-01_a", false},
		{"empty tenant", "", "x1", true},
		{"empty log", "acme", "", true},
		{"slash in tenant", "acme/../beta", "x1", true},
		{"colon in log", "acme", "log:x", true},
		{"too long", strings.Repeat("a", MaxIDLength+1), "x1", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateKey(tt.tenantID, tt.logID)
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrInvalidKey))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
