package authz

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/legacy-migrator/pkg/configuration"
)

var (
	superadminUser = uuid.MustParse("f6f8b13e-755f-41e0-af1a-f2671e40c15c")
	viewerUser     = uuid.MustParse("0b3b9bcb-1b7e-4c55-9a8f-4f2a1d0e7c11")
)

func newTestService(t *testing.T, mode Mode) *Service {
	t.Helper()
	root := filepath.Join("testdata")
	svc, err := NewService(Config{
		ModelPath:    filepath.Join(root, "model.conf"),
		PolicyPath:   filepath.Join(root, "policy.csv"),
		FlagProvider: StaticFlagProvider(mode),
	})
	require.NoError(t, err)
	return svc
}

func TestServiceAuthorize(t *testing.T) {
	svc := newTestService(t, ModeEnforce)
	ctx := context.Background()
	global := DomainFromTenant(uuid.Nil)
	importObject := ObjectName("migration", "legacy_import")

	cases := []struct {
		name      string
		principal Principal
		object    string
		action    string
		allowed   bool
	}{
		{"superadmin user", Principal{UserID: superadminUser}, importObject, "execute", true},
		{"superadmin role", Principal{UserID: uuid.New(), Roles: []string{"Core.SuperAdmin"}}, importObject, "execute", true},
		{"viewer cannot import", Principal{UserID: viewerUser}, importObject, "execute", false},
		{"viewer reads reports", Principal{UserID: viewerUser}, ObjectName("migration", "reports"), "read", true},
		{"stranger", Principal{UserID: uuid.New(), Roles: []string{"core.cashier"}}, importObject, "execute", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := svc.Authorize(ctx, tc.principal, global, tc.object, NormalizeAction(tc.action))
			if tc.allowed {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, ErrForbidden)
		})
	}
}

func TestServiceCheck_RoleSubject(t *testing.T) {
	svc := newTestService(t, ModeEnforce)

	allowed, err := svc.Check(context.Background(), NewRequest(
		SubjectForRole("core.superadmin"),
		DomainFromTenant(uuid.Nil),
		ObjectName("migration", "legacy_import"),
		"execute",
	))
	require.NoError(t, err)
	require.True(t, allowed)

	allowed, err = svc.Check(context.Background(), NewRequest(
		SubjectForRole("core.viewer"),
		DomainFromTenant(uuid.Nil),
		ObjectName("migration", "reports"),
		"read",
	))
	require.NoError(t, err)
	require.True(t, allowed)
}

func TestServiceAuthorizeShadowMode(t *testing.T) {
	svc := newTestService(t, ModeShadow)
	stranger := Principal{UserID: uuid.New()}
	object := ObjectName("migration", "legacy_import")
	require.NoError(t, svc.Authorize(context.Background(), stranger, DomainFromTenant(uuid.Nil), object, "execute"))

	allowed, err := svc.Check(context.Background(), NewRequest(
		SubjectForUser(uuid.Nil, stranger.UserID), DomainFromTenant(uuid.Nil), object, "execute",
	))
	require.NoError(t, err)
	require.False(t, allowed, "Check ignores shadow mode")
}

func TestServiceAuthorizeDisabledMode(t *testing.T) {
	svc := newTestService(t, ModeDisabled)
	require.NoError(t, svc.Authorize(context.Background(), Principal{}, DomainFromTenant(uuid.Nil), "migration.legacy_import", "execute"))
}

func TestConfigFromOptions(t *testing.T) {
	cfg := ConfigFromOptions(configuration.AuthzOptions{
		ModelPath:      "testdata/./model.conf",
		PolicyPath:     "testdata/policy.csv",
		FlagConfigPath: "testdata/authz_flags.yaml",
		Mode:           "bogus",
	}, nil)
	prepared, err := cfg.prepare()
	require.NoError(t, err)
	require.Equal(t, filepath.Join("testdata", "model.conf"), prepared.ModelPath)
	require.Equal(t, ModeShadow, prepared.FlagMode, "unknown modes fall back to shadow")

	svc, err := NewService(cfg)
	require.NoError(t, err)
	require.Equal(t, ModeEnforce, svc.Mode(), "the flag file wins over the fallback mode")

	_, err = NewService(Config{ModelPath: "testdata/model.conf"})
	require.Error(t, err)
	_, err = NewService(Config{ModelPath: "testdata/model.conf", PolicyPath: "testdata/policy.csv"})
	require.ErrorContains(t, err, "missing flag configuration path")
}

func TestServiceMode(t *testing.T) {
	svc := newTestService(t, ModeDisabled)
	require.Equal(t, ModeDisabled, svc.Mode())
}

func TestFileFlagProvider(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flags.yaml")
	provider := NewFileFlagProvider(path, ModeEnforce)
	require.Equal(t, ModeEnforce, provider.Mode(), "missing file falls back")

	require.NoError(t, os.WriteFile(path, []byte("mode: shadow\n"), 0o644))
	require.Equal(t, ModeShadow, provider.Mode())

	require.NoError(t, os.Remove(path))
	require.Equal(t, ModeShadow, provider.Mode(), "last good mode is kept")
}
