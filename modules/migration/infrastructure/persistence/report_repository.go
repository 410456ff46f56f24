package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	gerrors "github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iota-uz/legacy-migrator/modules/migration/domain"
)

const (
	saveReportQuery = `
		INSERT INTO migration_reports (
			id, tenant_id, session_id, plan_id, plan_fingerprint, dry_run, canceled,
			counts, created_entities, results, started_at, finished_at, elapsed_ms
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			canceled = EXCLUDED.canceled,
			counts = EXCLUDED.counts,
			created_entities = EXCLUDED.created_entities,
			results = EXCLUDED.results,
			finished_at = EXCLUDED.finished_at,
			elapsed_ms = EXCLUDED.elapsed_ms`

	selectReportColumns = `
		SELECT id, tenant_id, session_id, plan_id, plan_fingerprint, dry_run, canceled,
			counts, created_entities, results, started_at, finished_at, elapsed_ms
		FROM migration_reports`

	getReportQuery   = selectReportColumns + ` WHERE id = $1`
	listReportsQuery = selectReportColumns + ` WHERE tenant_id = $1 ORDER BY started_at DESC LIMIT $2`
)

type PgReportRepository struct {
	pool *pgxpool.Pool
}

func NewPgReportRepository(pool *pgxpool.Pool) *PgReportRepository {
	return &PgReportRepository{pool: pool}
}

func (r *PgReportRepository) Save(ctx context.Context, report *domain.MigrationReport) error {
	counts, err := json.Marshal(report.Counts)
	if err != nil {
		return gerrors.Wrap(err, "marshal counts")
	}
	created, err := json.Marshal(report.Created)
	if err != nil {
		return gerrors.Wrap(err, "marshal created")
	}
	results, err := json.Marshal(report.Results)
	if err != nil {
		return gerrors.Wrap(err, "marshal results")
	}
	if _, err := r.pool.Exec(ctx, saveReportQuery,
		report.ID, report.TenantID, report.SessionID, report.PlanID, report.Fingerprint,
		report.DryRun, report.Canceled, counts, created, results,
		report.StartedAt, report.FinishedAt, report.Elapsed.Milliseconds(),
	); err != nil {
		return gerrors.Wrap(err, "save report")
	}
	return nil
}

func (r *PgReportRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.MigrationReport, error) {
	report, err := scanReport(r.pool.QueryRow(ctx, getReportQuery, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrReportNotFound
	}
	if err != nil {
		return nil, gerrors.Wrap(err, "get report")
	}
	return report, nil
}

func (r *PgReportRepository) ListByTenant(ctx context.Context, tenantID uuid.UUID, limit int) ([]*domain.MigrationReport, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, listReportsQuery, tenantID, limit)
	if err != nil {
		return nil, gerrors.Wrap(err, "list reports")
	}
	defer rows.Close()
	var out []*domain.MigrationReport
	for rows.Next() {
		report, err := scanReport(rows)
		if err != nil {
			return nil, gerrors.Wrap(err, "scan report")
		}
		out = append(out, report)
	}
	return out, rows.Err()
}

func scanReport(row pgx.Row) (*domain.MigrationReport, error) {
	var (
		report                   domain.MigrationReport
		counts, created, results []byte
		elapsedMs                int64
	)
	if err := row.Scan(
		&report.ID, &report.TenantID, &report.SessionID, &report.PlanID, &report.Fingerprint,
		&report.DryRun, &report.Canceled, &counts, &created, &results,
		&report.StartedAt, &report.FinishedAt, &elapsedMs,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(counts, &report.Counts); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(created, &report.Created); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(results, &report.Results); err != nil {
		return nil, err
	}
	report.Elapsed = time.Duration(elapsedMs) * time.Millisecond
	return &report, nil
}

// MemoryReportRepository is used when no database is configured.
type MemoryReportRepository struct {
	mu      sync.RWMutex
	reports map[uuid.UUID]*domain.MigrationReport
}

func NewMemoryReportRepository() *MemoryReportRepository {
	return &MemoryReportRepository{reports: make(map[uuid.UUID]*domain.MigrationReport)}
}

func (r *MemoryReportRepository) Save(_ context.Context, report *domain.MigrationReport) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *report
	r.reports[report.ID] = &cp
	return nil
}

func (r *MemoryReportRepository) GetByID(_ context.Context, id uuid.UUID) (*domain.MigrationReport, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	report, ok := r.reports[id]
	if !ok {
		return nil, domain.ErrReportNotFound
	}
	cp := *report
	return &cp, nil
}

func (r *MemoryReportRepository) ListByTenant(_ context.Context, tenantID uuid.UUID, limit int) ([]*domain.MigrationReport, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domain.MigrationReport
	for _, report := range r.reports {
		if report.TenantID == tenantID {
			cp := *report
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
