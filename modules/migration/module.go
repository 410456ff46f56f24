package migration

import (
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/legacy-migrator/modules/migration/domain"
	"github.com/iota-uz/legacy-migrator/modules/migration/infrastructure/locking"
	"github.com/iota-uz/legacy-migrator/modules/migration/infrastructure/persistence"
	"github.com/iota-uz/legacy-migrator/modules/migration/presentation/controllers"
	"github.com/iota-uz/legacy-migrator/modules/migration/services"
	"github.com/iota-uz/legacy-migrator/pkg/application"
	"github.com/iota-uz/legacy-migrator/pkg/authz"
	"github.com/iota-uz/legacy-migrator/pkg/configuration"
)

type ModuleOptions struct {
	Config *configuration.Configuration
	// Authz defaults to authz.Use().
	Authz *authz.Service
	// Redis enables the shared tenant lock; without it locks are process local.
	Redis redis.UniversalClient
	// Store and Reports default to Postgres when the application has a pool
	// and to memory otherwise.
	Store   domain.Store
	Reports domain.ReportRepository
}

func NewModule(opts *ModuleOptions) application.Module {
	if opts == nil {
		opts = &ModuleOptions{}
	}
	return &Module{options: opts}
}

type Module struct {
	options *ModuleOptions
}

func (m *Module) Register(app application.Application) error {
	conf := m.options.Config
	if conf == nil {
		conf = configuration.Use()
	}
	az := m.options.Authz
	if az == nil {
		az = authz.Use()
	}

	store, reports := m.options.Store, m.options.Reports
	if pool := app.DB(); pool != nil {
		if store == nil {
			store = persistence.NewPgStore(pool)
		}
		if reports == nil {
			reports = persistence.NewPgReportRepository(pool)
		}
	}
	if store == nil {
		store = persistence.NewMemoryStore()
	}
	if reports == nil {
		reports = persistence.NewMemoryReportRepository()
	}

	var locker locking.Locker = locking.NewMemoryLocker()
	if m.options.Redis != nil {
		locker = locking.NewRedisTenantLocker(m.options.Redis)
	}

	analyzer := services.NewAnalyzerService(AnalyzerOptions(conf.Migration))
	executor := services.NewExecutorService(store, ExecutorOptions(conf.Migration))
	gate := services.NewGate(services.NewCasbinAuthorizer(az))
	sessions := services.NewSessionService(
		analyzer,
		executor,
		gate,
		reports,
		app.EventPublisher(),
		SessionOptions(conf.Migration),
	)

	app.RegisterServices(
		analyzer,
		executor,
		gate,
		sessions,
		locking.NewTenantGuard(locker, conf.Migration.LockTTL),
	)
	app.RegisterControllers(
		controllers.NewMigrationAPIController(app),
	)

	logger := conf.Logger()
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	subscribeAuditLog(app, logger.WithField("component", "migration.audit"))
	return nil
}

func (m *Module) Name() string {
	return "migration"
}

func AnalyzerOptions(conf configuration.MigrationOptions) services.AnalyzerOptions {
	return services.AnalyzerOptions{
		SampleSize:        conf.SampleSize,
		MinConfidence:     conf.MinConfidence,
		MaxDistinctValues: conf.MaxDistinctValues,
	}
}

func ExecutorOptions(conf configuration.MigrationOptions) services.ExecutorOptions {
	return services.ExecutorOptions{
		BatchSize:      conf.BatchSize,
		MaxInFlight:    conf.MaxInFlight,
		MaxRetries:     conf.MaxRetries,
		InitialBackoff: conf.InitialBackoff,
		MaxBackoff:     conf.MaxBackoff,
		StoreTimeout:   conf.StoreTimeout,
		CountryCode:    conf.CountryCode,
		AreaCode:       conf.AreaCode,
		Currency:       conf.Currency,
	}
}

func SessionOptions(conf configuration.MigrationOptions) services.SessionServiceOptions {
	return services.SessionServiceOptions{
		DedupStrategy: domain.DedupStrategy(conf.DedupStrategy),
	}
}

// subscribeAuditLog writes session lifecycle events to the log.
func subscribeAuditLog(app application.Application, logger *logrus.Entry) {
	bus := app.EventPublisher()
	bus.Subscribe(func(e *domain.SessionStateChangedEvent) {
		logger.WithFields(logrus.Fields{
			"session": e.SessionID,
			"tenant":  e.TenantID,
			"from":    e.From,
			"to":      e.To,
		}).Info("session state changed")
	})
	bus.Subscribe(func(e *domain.PlanRevisedEvent) {
		logger.WithFields(logrus.Fields{
			"session":     e.SessionID,
			"plan":        e.PlanID,
			"revision":    e.Revision,
			"fingerprint": e.Fingerprint,
		}).Info("mapping revised")
	})
	bus.Subscribe(func(e *domain.BatchCommittedEvent) {
		entry := logger.WithFields(logrus.Fields{
			"session":  e.SessionID,
			"batch":    e.Batch,
			"rows":     e.Rows,
			"attempts": e.Attempts,
		})
		if e.Err != nil {
			entry.WithError(e.Err).Warn("batch failed")
			return
		}
		entry.Debug("batch committed")
	})
	bus.Subscribe(func(e *domain.MigrationCompletedEvent) {
		logger.WithFields(logrus.Fields{
			"session":  e.SessionID,
			"report":   e.Report.ID,
			"created":  e.Report.Count(domain.OutcomeCreated),
			"merged":   e.Report.Count(domain.OutcomeMerged),
			"skipped":  e.Report.Count(domain.OutcomeSkippedInvalid),
			"failed":   e.Report.Count(domain.OutcomeFailed),
			"canceled": e.Report.Canceled,
		}).Info("migration completed")
	})
}
