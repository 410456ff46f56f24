package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/iota-uz/legacy-migrator/modules/migration"
	"github.com/iota-uz/legacy-migrator/modules/migration/domain"
	"github.com/iota-uz/legacy-migrator/modules/migration/infrastructure/locking"
	"github.com/iota-uz/legacy-migrator/modules/migration/infrastructure/persistence"
	"github.com/iota-uz/legacy-migrator/modules/migration/services"
	"github.com/iota-uz/legacy-migrator/pkg/authz"
	"github.com/iota-uz/legacy-migrator/pkg/configuration"
	"github.com/iota-uz/legacy-migrator/pkg/eventbus"
)

// newAuthorizer is replaced in tests.
var newAuthorizer = func() (domain.Authorizer, error) {
	return services.NewCasbinAuthorizer(authz.Use()), nil
}

// operatorFlags identify the person running the tool.
type operatorFlags struct {
	tenant string
	user   string
	email  string
	roles  []string

	tenantID uuid.UUID
	identity domain.Identity
}

func (o *operatorFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.tenant, "tenant", "", "Target tenant UUID (required)")
	cmd.Flags().StringVar(&o.user, "user", "", "Operator user UUID (required)")
	cmd.Flags().StringVar(&o.email, "email", "", "Operator e-mail, for the audit log")
	cmd.Flags().StringSliceVar(&o.roles, "role", nil, "Operator role, repeatable")
	_ = cmd.MarkFlagRequired("tenant")
	_ = cmd.MarkFlagRequired("user")
}

func (o *operatorFlags) parse() error {
	tenantID, err := uuid.Parse(strings.TrimSpace(o.tenant))
	if err != nil {
		return withCode(exitUsage, fmt.Errorf("invalid --tenant: %w", err))
	}
	userID, err := uuid.Parse(strings.TrimSpace(o.user))
	if err != nil {
		return withCode(exitUsage, fmt.Errorf("invalid --user: %w", err))
	}
	o.tenantID = tenantID
	o.identity = domain.Identity{UserID: userID, Email: strings.TrimSpace(o.email), Roles: o.roles}
	return nil
}

type engineOptions struct {
	apply   bool
	offline bool
}

type engine struct {
	sessions *services.SessionService
	guard    *locking.TenantGuard
	// staged holds the writes of a dry run.
	staged *persistence.MemoryStore
	close  func()
}

func buildEngine(ctx context.Context, opts engineOptions) (*engine, error) {
	if opts.apply && opts.offline {
		return nil, withCode(exitUsage, fmt.Errorf("--apply cannot be combined with --offline"))
	}
	conf := configuration.Use()
	authorizer, err := newAuthorizer()
	if err != nil {
		return nil, withCode(exitUsage, fmt.Errorf("authorization setup: %w", err))
	}

	e := &engine{close: func() {}}
	var backing domain.Store
	var reports domain.ReportRepository
	var locker locking.Locker = locking.NewMemoryLocker()

	if opts.offline {
		backing = persistence.NewMemoryStore()
		reports = persistence.NewMemoryReportRepository()
	} else {
		pool, err := connectDB(ctx, conf)
		if err != nil {
			return nil, withCode(exitDB, err)
		}
		closers := []func(){pool.Close}
		backing = persistence.NewPgStore(pool)
		reports = persistence.NewMemoryReportRepository()
		if opts.apply {
			reports = persistence.NewPgReportRepository(pool)
		}
		if conf.RedisURL != "" {
			redisOpts, err := redis.ParseURL(conf.RedisURL)
			if err != nil {
				pool.Close()
				return nil, withCode(exitUsage, fmt.Errorf("invalid REDIS_URL: %w", err))
			}
			client := redis.NewClient(redisOpts)
			closers = append(closers, func() { _ = client.Close() })
			locker = locking.NewRedisTenantLocker(client)
		}
		e.close = func() {
			for i := len(closers) - 1; i >= 0; i-- {
				closers[i]()
			}
		}
	}

	store := backing
	execOpts := migration.ExecutorOptions(conf.Migration)
	if !opts.apply {
		dry := persistence.NewDryRunStore(backing)
		e.staged = dry.Staged()
		store = dry
		execOpts.DryRun = true
	}

	e.sessions = services.NewSessionService(
		services.NewAnalyzerService(migration.AnalyzerOptions(conf.Migration)),
		services.NewExecutorService(store, execOpts),
		services.NewGate(authorizer),
		reports,
		eventbus.NewEventPublisher(conf.Logger()),
		migration.SessionOptions(conf.Migration),
	)
	e.guard = locking.NewTenantGuard(locker, conf.Migration.LockTTL)
	return e, nil
}

func connectDB(ctx context.Context, conf *configuration.Configuration) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	pool, err := pgxpool.New(ctx, conf.Database.Opts)
	if err != nil {
		return nil, fmt.Errorf("db connect failed: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("db connect failed: %w", err)
	}
	return pool, nil
}
