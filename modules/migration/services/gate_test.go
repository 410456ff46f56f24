package services

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/legacy-migrator/modules/migration/domain"
	"github.com/iota-uz/legacy-migrator/pkg/authz"
)

var (
	superadminUser = uuid.MustParse("f6f8b13e-755f-41e0-af1a-f2671e40c15c")
	viewerUser     = uuid.MustParse("0b3b9bcb-1b7e-4c55-9a8f-4f2a1d0e7c11")
)

func newTestAuthz(t *testing.T, mode authz.Mode) *authz.Service {
	t.Helper()
	root := filepath.Join("..", "..", "..", "pkg", "authz", "testdata")
	svc, err := authz.NewService(authz.Config{
		ModelPath:    filepath.Join(root, "model.conf"),
		PolicyPath:   filepath.Join(root, "policy.csv"),
		FlagProvider: authz.StaticFlagProvider(mode),
	})
	require.NoError(t, err)
	return svc
}

func TestGate_CasbinEnforce(t *testing.T) {
	gate := NewGate(NewCasbinAuthorizer(newTestAuthz(t, authz.ModeEnforce)))
	ctx := context.Background()

	require.NoError(t, gate.RequireSuperAdmin(ctx, domain.Identity{UserID: superadminUser}, StageAnalyze))
	require.NoError(t, gate.RequireSuperAdmin(ctx, domain.Identity{UserID: uuid.New(), Roles: []string{"core.superadmin"}}, StageExecute))

	err := gate.RequireSuperAdmin(ctx, domain.Identity{UserID: viewerUser}, StageExecute)
	require.ErrorIs(t, err, domain.ErrPermissionDenied)
	var pde *domain.PermissionDeniedError
	require.ErrorAs(t, err, &pde)
	require.Equal(t, viewerUser, pde.UserID)
	require.Equal(t, StageExecute, pde.Stage)

	err = gate.RequireSuperAdmin(ctx, domain.Identity{UserID: uuid.New(), Roles: []string{"core.viewer"}}, StageMapping)
	require.ErrorIs(t, err, domain.ErrPermissionDenied)
}

func TestGate_CasbinModes(t *testing.T) {
	ctx := context.Background()
	stranger := domain.Identity{UserID: uuid.New()}

	shadow := NewGate(NewCasbinAuthorizer(newTestAuthz(t, authz.ModeShadow)))
	require.NoError(t, shadow.RequireSuperAdmin(ctx, stranger, StageAnalyze))

	disabled := NewGate(NewCasbinAuthorizer(newTestAuthz(t, authz.ModeDisabled)))
	require.NoError(t, disabled.RequireSuperAdmin(ctx, stranger, StageAnalyze))
}

func TestGate_AnonymousAndFailingAuthorizer(t *testing.T) {
	ctx := context.Background()
	var calls int
	allowAll := NewGate(AuthorizerFunc(func(context.Context, domain.Identity) (bool, error) {
		calls++
		return true, nil
	}))
	err := allowAll.RequireSuperAdmin(ctx, domain.Identity{}, StageAnalyze)
	require.ErrorIs(t, err, domain.ErrPermissionDenied)
	require.Zero(t, calls, "anonymous callers never reach the authorizer")

	boom := errors.New("policy backend unavailable")
	failing := NewGate(AuthorizerFunc(func(context.Context, domain.Identity) (bool, error) {
		return true, boom
	}))
	err = failing.RequireSuperAdmin(ctx, domain.Identity{UserID: uuid.New()}, StageAnalyze)
	require.ErrorIs(t, err, domain.ErrPermissionDenied)
	require.ErrorIs(t, err, boom)
}

func TestCasbinAuthorizer_CanReadReports(t *testing.T) {
	a := NewCasbinAuthorizer(newTestAuthz(t, authz.ModeEnforce))
	ctx := context.Background()

	ok, err := a.CanReadReports(ctx, domain.Identity{UserID: viewerUser})
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = a.CanReadReports(ctx, domain.Identity{UserID: uuid.New()})
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = a.CanReadReports(ctx, domain.Identity{})
	require.NoError(t, err)
	require.False(t, ok)
}

func TestGate_CanReadReports(t *testing.T) {
	ctx := context.Background()

	casbinGate := NewGate(NewCasbinAuthorizer(newTestAuthz(t, authz.ModeEnforce)))
	ok, err := casbinGate.CanReadReports(ctx, domain.Identity{UserID: viewerUser})
	require.NoError(t, err)
	require.True(t, ok)

	fallback := NewGate(AuthorizerFunc(func(_ context.Context, id domain.Identity) (bool, error) {
		return id.UserID == superadminUser, nil
	}))
	ok, err = fallback.CanReadReports(ctx, domain.Identity{UserID: superadminUser})
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = fallback.CanReadReports(ctx, domain.Identity{UserID: viewerUser})
	require.NoError(t, err)
	require.False(t, ok)
	ok, err = fallback.CanReadReports(ctx, domain.Identity{})
	require.NoError(t, err)
	require.False(t, ok)
}
