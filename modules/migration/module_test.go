package migration

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/legacy-migrator/modules/migration/domain"
	"github.com/iota-uz/legacy-migrator/modules/migration/infrastructure/locking"
	"github.com/iota-uz/legacy-migrator/modules/migration/infrastructure/persistence"
	"github.com/iota-uz/legacy-migrator/modules/migration/services"
	"github.com/iota-uz/legacy-migrator/pkg/application"
	"github.com/iota-uz/legacy-migrator/pkg/authz"
	"github.com/iota-uz/legacy-migrator/pkg/configuration"
)

func testConfig() *configuration.Configuration {
	return &configuration.Configuration{
		Migration: configuration.MigrationOptions{
			BatchSize:      50,
			MaxInFlight:    2,
			MaxRetries:     1,
			InitialBackoff: time.Millisecond,
			MaxBackoff:     time.Millisecond,
			StoreTimeout:   time.Second,
			SampleSize:     20,
			MinConfidence:  0.5,
			CountryCode:    "55",
			Currency:       "BRL",
			DedupStrategy:  "phone_email",
			LockTTL:        time.Minute,
		},
	}
}

func TestModule_RegistersServicesAndController(t *testing.T) {
	root := filepath.Join("..", "..", "pkg", "authz", "testdata")
	az, err := authz.NewService(authz.Config{
		ModelPath:    filepath.Join(root, "model.conf"),
		PolicyPath:   filepath.Join(root, "policy.csv"),
		FlagProvider: authz.StaticFlagProvider(authz.ModeEnforce),
	})
	require.NoError(t, err)

	store := persistence.NewMemoryStore()
	app := application.New(&application.ApplicationOptions{Logger: logrus.New()})
	module := NewModule(&ModuleOptions{Config: testConfig(), Authz: az, Store: store})
	require.Equal(t, "migration", module.Name())
	require.NoError(t, module.Register(app))

	sessions, ok := app.Service(services.SessionService{}).(*services.SessionService)
	require.True(t, ok)
	require.NotNil(t, sessions)
	_, ok = app.Service(locking.TenantGuard{}).(*locking.TenantGuard)
	require.True(t, ok)
	executor := app.Service(services.ExecutorService{}).(*services.ExecutorService)
	require.Equal(t, 50, executor.Options().BatchSize)
	require.Equal(t, 2, executor.Options().MaxInFlight)

	controllers := app.Controllers()
	require.Len(t, controllers, 1)
	require.Equal(t, "/migration/api", controllers[0].Key())
	router := mux.NewRouter()
	controllers[0].Register(router)

	// An unknown operator is refused before anything is parsed.
	_, err = sessions.StartAnalyze(context.Background(), []domain.SourceFile{
		{Name: "clientes.csv", Content: []byte("Nome,Telefone\nMaria,85999990000\n")},
	}, uuid.New(), domain.Identity{UserID: uuid.New()})
	require.ErrorIs(t, err, domain.ErrPermissionDenied)
	require.Greater(t, app.EventPublisher().SubscribersCount(), 0)
}

func TestOptionsFromConfig(t *testing.T) {
	conf := testConfig().Migration
	require.Equal(t, 20, AnalyzerOptions(conf).SampleSize)
	require.Equal(t, "55", ExecutorOptions(conf).CountryCode)
	require.Equal(t, domain.DedupByPhoneEmail, SessionOptions(conf).DedupStrategy)
}
