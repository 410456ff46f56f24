package domain

import (
	"context"

	"github.com/google/uuid"
)

// Identity is the authenticated caller driving a migration.
type Identity struct {
	UserID   uuid.UUID `json:"userId"`
	TenantID uuid.UUID `json:"tenantId"`
	Email    string    `json:"email,omitempty"`
	Roles    []string  `json:"roles,omitempty"`
}

type Authorizer interface {
	IsSuperAdmin(ctx context.Context, identity Identity) (bool, error)
}
