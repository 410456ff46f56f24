package services

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/legacy-migrator/modules/migration/domain"
	"github.com/iota-uz/legacy-migrator/modules/migration/permissions"
	"github.com/iota-uz/legacy-migrator/pkg/authz"
	"github.com/iota-uz/legacy-migrator/pkg/composables"
)

const (
	StageAnalyze = "analyze"
	StageMapping = "mapping"
	StageExecute = "execute"
)

// Gate asserts that the caller is a super administrator. It is evaluated on
// every session transition and never caches a decision.
type Gate struct {
	authorizer domain.Authorizer
}

func NewGate(authorizer domain.Authorizer) *Gate {
	return &Gate{authorizer: authorizer}
}

// RequireSuperAdmin returns a *domain.PermissionDeniedError unless the caller
// is a super administrator. Authorizer failures deny.
func (g *Gate) RequireSuperAdmin(ctx context.Context, identity domain.Identity, stage string) error {
	logger := composables.UseLogger(ctx).WithFields(logrus.Fields{
		"component": "migration.gate",
		"user":      identity.UserID,
		"stage":     stage,
	})
	if identity.UserID == uuid.Nil {
		logger.Warn("anonymous caller denied")
		return &domain.PermissionDeniedError{UserID: identity.UserID, Stage: stage}
	}
	ok, err := g.authorizer.IsSuperAdmin(ctx, identity)
	if err != nil {
		logger.WithError(err).Error("authorizer failed, denying")
		return &domain.PermissionDeniedError{UserID: identity.UserID, Stage: stage, Cause: err}
	}
	if !ok {
		logger.Warn("caller is not a super administrator")
		return &domain.PermissionDeniedError{UserID: identity.UserID, Stage: stage}
	}
	return nil
}

type reportReader interface {
	CanReadReports(ctx context.Context, identity domain.Identity) (bool, error)
}

// CanReadReports reports whether the caller may read migration reports.
// Authorizers without a dedicated report permission fall back to the super
// administrator check.
func (g *Gate) CanReadReports(ctx context.Context, identity domain.Identity) (bool, error) {
	if identity.UserID == uuid.Nil {
		return false, nil
	}
	if rr, ok := g.authorizer.(reportReader); ok {
		return rr.CanReadReports(ctx, identity)
	}
	return g.authorizer.IsSuperAdmin(ctx, identity)
}

// AuthorizerFunc adapts a function to domain.Authorizer.
type AuthorizerFunc func(ctx context.Context, identity domain.Identity) (bool, error)

func (f AuthorizerFunc) IsSuperAdmin(ctx context.Context, identity domain.Identity) (bool, error) {
	return f(ctx, identity)
}

// CasbinAuthorizer evaluates the migration policy with pkg/authz. Super
// administrators are global, so requests are checked in the global domain.
type CasbinAuthorizer struct {
	svc *authz.Service
}

func NewCasbinAuthorizer(svc *authz.Service) *CasbinAuthorizer {
	return &CasbinAuthorizer{svc: svc}
}

func (a *CasbinAuthorizer) IsSuperAdmin(ctx context.Context, identity domain.Identity) (bool, error) {
	return a.allowed(ctx, identity, permissions.LegacyImportObject, permissions.ActionExecute)
}

// CanReadReports reports whether the caller may read migration reports.
func (a *CasbinAuthorizer) CanReadReports(ctx context.Context, identity domain.Identity) (bool, error) {
	if identity.UserID == uuid.Nil {
		return false, nil
	}
	return a.allowed(ctx, identity, permissions.ReportsObject, permissions.ActionRead)
}

func (a *CasbinAuthorizer) allowed(ctx context.Context, identity domain.Identity, object, action string) (bool, error) {
	principal := authz.Principal{UserID: identity.UserID, Roles: identity.Roles}
	err := a.svc.Authorize(ctx, principal, authz.DomainFromTenant(uuid.Nil), object, action)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, authz.ErrForbidden):
		return false, nil
	default:
		return false, err
	}
}
