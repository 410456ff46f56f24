package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/iota-uz/legacy-migrator/modules/migration/domain"
	"github.com/iota-uz/legacy-migrator/pkg/composables"
)

const (
	MaxBatchSize   = 500
	MaxInFlight    = 4
	DefaultBatch   = 400
	DefaultFlights = 3
)

// BatchProgress is reported after every batch, committed or not.
type BatchProgress struct {
	Batch      int
	Rows       int
	Operations int
	Attempts   int
	Err        error
}

type ExecutorOptions struct {
	BatchSize      int
	MaxInFlight    int
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	StoreTimeout   time.Duration
	CountryCode    string
	AreaCode       string
	Currency       string
	// DryRun only labels the report; the store decides whether writes stick.
	DryRun  bool
	OnBatch func(BatchProgress)
}

func DefaultExecutorOptions() ExecutorOptions {
	return ExecutorOptions{
		BatchSize:      DefaultBatch,
		MaxInFlight:    DefaultFlights,
		MaxRetries:     3,
		InitialBackoff: 200 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		StoreTimeout:   15 * time.Second,
		CountryCode:    "55",
		Currency:       "BRL",
	}
}

func (o ExecutorOptions) normalized() ExecutorOptions {
	d := DefaultExecutorOptions()
	if o.BatchSize <= 0 {
		o.BatchSize = d.BatchSize
	}
	o.BatchSize = min(o.BatchSize, MaxBatchSize)
	if o.MaxInFlight <= 0 {
		o.MaxInFlight = d.MaxInFlight
	}
	o.MaxInFlight = min(o.MaxInFlight, MaxInFlight)
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.InitialBackoff <= 0 {
		o.InitialBackoff = d.InitialBackoff
	}
	if o.MaxBackoff < o.InitialBackoff {
		o.MaxBackoff = max(d.MaxBackoff, o.InitialBackoff)
	}
	if o.StoreTimeout <= 0 {
		o.StoreTimeout = d.StoreTimeout
	}
	if o.Currency == "" {
		o.Currency = d.Currency
	}
	return o
}

// ExecutorService replays source rows through a plan into the store.
type ExecutorService struct {
	store domain.Store
	opts  ExecutorOptions
}

func NewExecutorService(store domain.Store, opts ExecutorOptions) *ExecutorService {
	return &ExecutorService{store: store, opts: opts.normalized()}
}

func (s *ExecutorService) Options() ExecutorOptions {
	return s.opts
}

// rowPlan is the work derived from one parsed row before dedup.
type rowPlan struct {
	slot     int
	source   string
	customer *domain.Customer
	match    customerMatch
	address  *domain.Address
	zone     *domain.DeliveryZone
	// notes collects non-fatal problems reported with the row.
	notes []string
}

// Execute imports every row of tables. Row level problems never abort the run:
// they are reported in the returned MigrationReport. The error is non-nil only
// for an unusable plan.
func (s *ExecutorService) Execute(ctx context.Context, tables []domain.RawTable, plan *domain.MigrationPlan) (*domain.MigrationReport, error) {
	return s.ExecuteWithProgress(ctx, tables, plan, s.opts.OnBatch)
}

// ExecuteWithProgress is Execute with a per call batch progress callback.
func (s *ExecutorService) ExecuteWithProgress(
	ctx context.Context,
	tables []domain.RawTable,
	plan *domain.MigrationPlan,
	onBatch func(BatchProgress),
) (*domain.MigrationReport, error) {
	if plan == nil {
		return nil, errors.New("execute: plan is required")
	}
	if plan.TenantID() == uuid.Nil {
		return nil, &domain.ValidationError{Issues: []domain.ValidationIssue{{Code: IssueMissingTenant, Message: "target tenant is required"}}}
	}

	ctx, span := tracer.Start(ctx, "migration.execute")
	defer span.End()
	logger := composables.UseLogger(ctx).WithFields(logrus.Fields{
		"component": "migration.executor",
		"tenant":    plan.TenantID(),
		"plan":      plan.ID(),
	})

	report := &domain.MigrationReport{
		ID:          uuid.New(),
		PlanID:      plan.ID(),
		TenantID:    plan.TenantID(),
		Fingerprint: plan.Fingerprint(),
		DryRun:      s.opts.DryRun,
		StartedAt:   time.Now(),
	}

	total := 0
	for _, t := range tables {
		total += t.RowCount() + len(t.Rejected())
	}
	results := make([]domain.RowResult, total)
	span.SetAttributes(attribute.Int("migration.rows", total))

	plans := s.planRows(tables, plan, results)

	idx := newDedupIndex(plan.TenantID())
	if err := idx.prefetch(ctx, s.query(plan.TenantID()), plans); err != nil {
		logger.WithError(err).Error("dedup lookup failed")
		reason := "dedup lookup failed: " + err.Error()
		outcome := domain.OutcomeFailed
		if ctx.Err() != nil {
			reason, outcome = domain.CanceledReason, domain.OutcomeSkippedInvalid
			report.Canceled = true
		}
		for _, rp := range plans {
			results[rp.slot].Outcome = outcome
			results[rp.slot].ErrorDetail = reason
		}
		return s.finish(report, results), nil
	}

	rows := make([]rowOps, 0, len(plans))
	for _, rp := range plans {
		ops, deps := s.resolveRow(idx, rp, &results[rp.slot])
		rows = append(rows, rowOps{slot: rp.slot, ops: ops, deps: deps})
	}

	batches := packBatches(rows, s.opts.BatchSize)
	logger.WithFields(logrus.Fields{"rows": total, "batches": len(batches)}).Info("executing migration")

	tracker := newCommitTracker(batches)
	g := new(errgroup.Group)
	g.SetLimit(s.opts.MaxInFlight)
	for i, b := range batches {
		if ctx.Err() != nil {
			report.Canceled = true
			for _, rest := range batches[i:] {
				markBatch(results, rest, domain.OutcomeSkippedInvalid, domain.CanceledReason)
			}
			logger.WithField("remaining_batches", len(batches)-i).Warn("migration canceled")
			break
		}
		g.Go(func() error {
			tracker.wait(b.index)
			s.commit(ctx, plan.TenantID(), tracker.prune(b, results), results, onBatch)
			tracker.release(b, results)
			return nil
		})
	}
	_ = g.Wait()

	report = s.finish(report, results)
	if report.Canceled {
		span.SetStatus(codes.Error, "canceled")
	}
	logger.WithFields(logrus.Fields{
		"created": report.Count(domain.OutcomeCreated),
		"merged":  report.Count(domain.OutcomeMerged),
		"skipped": report.Count(domain.OutcomeSkippedInvalid),
		"failed":  report.Count(domain.OutcomeFailed),
	}).Info("migration finished")
	return report, nil
}

func (s *ExecutorService) finish(report *domain.MigrationReport, results []domain.RowResult) *domain.MigrationReport {
	report.Results = results
	report.FinishedAt = time.Now()
	report.Elapsed = report.FinishedAt.Sub(report.StartedAt)
	report.Tally()
	for _, o := range domain.Outcomes {
		rowOutcomes.WithLabelValues(string(o)).Add(float64(report.Counts[o]))
	}
	return report
}

// planRows projects every row and validates the inferred entities. Rows that
// cannot produce anything are settled in results right away.
func (s *ExecutorService) planRows(tables []domain.RawTable, plan *domain.MigrationPlan, results []domain.RowResult) []*rowPlan {
	builder := entityBuilder{
		phones:   PhonePolicy{CountryCode: s.opts.CountryCode, AreaCode: s.opts.AreaCode},
		currency: s.opts.Currency,
	}
	var plans []*rowPlan
	offset := 0
	for _, table := range tables {
		file := table.FileName()
		for _, rej := range table.Rejected() {
			results[offset+rej.Index] = domain.RowResult{
				SourceFile:     file,
				SourceRowIndex: rej.Index,
				Line:           rej.Line,
				Outcome:        domain.OutcomeSkippedInvalid,
				ErrorDetail:    "rejected by parser: " + rej.Reason,
			}
		}

		headers := table.Headers()
		for _, row := range table.Rows() {
			slot := offset + row.Index
			res := &results[slot]
			*res = domain.RowResult{SourceFile: file, SourceRowIndex: row.Index, Line: row.Line}

			record := projectRow(plan, file, headers, row)
			if len(record) == 0 {
				res.Outcome = domain.OutcomeSkippedInvalid
				res.ErrorDetail = "row has no mapped values"
				continue
			}

			source := fmt.Sprintf("%s#%d", file, row.Index)
			p := builder.build(record, source)
			rp := &rowPlan{slot: slot, source: source}

			if p.customer != nil {
				if err := p.customer.Validate(); err != nil {
					res.Outcome = domain.OutcomeSkippedInvalid
					res.ErrorDetail = err.Error()
					continue
				}
				rp.customer = p.customer
				rp.match = customerIdentity(plan.DedupStrategy(), *p.customer)
			}
			if p.address != nil {
				if rp.customer == nil && p.zone == nil {
					res.Outcome = domain.OutcomeSkippedInvalid
					res.ErrorDetail = (&domain.RowValidationFailure{Entity: domain.EntityAddress, Reason: "address has no customer to attach to"}).Error()
					continue
				}
				if rp.customer != nil {
					rp.address = p.address
				} else {
					rp.notes = append(rp.notes, "address ignored: no customer on this row")
				}
			}
			if p.zoneErr != nil {
				if rp.customer == nil {
					res.Outcome = domain.OutcomeSkippedInvalid
					res.ErrorDetail = p.zoneErr.Error()
					continue
				}
				rp.notes = append(rp.notes, p.zoneErr.Error())
			}
			rp.zone = p.zone
			plans = append(plans, rp)
		}
		offset += table.RowCount() + len(table.Rejected())
	}
	return plans
}

// resolveRow dedups the row's entities and returns its writes together with
// the slots of earlier rows that create entities it builds on. The planned
// outcome is stored in res; a failed commit overrides it later.
func (s *ExecutorService) resolveRow(idx *dedupIndex, rp *rowPlan, res *domain.RowResult) ([]domain.Operation, []int) {
	var (
		ops  []domain.Operation
		deps []int
	)
	created := make(map[domain.EntityType]int)
	primaryExisted := false

	upsert := func(entity domain.EntityType, identity string, existing *domain.Document, fields map[string]any) (string, bool) {
		c, existed, added := idx.resolve(rp.slot, identity, existing, fields)
		if c.origin >= 0 && c.origin != rp.slot && !slices.Contains(deps, c.origin) {
			deps = append(deps, c.origin)
		}
		if existed {
			res.MergedEntityIDs = append(res.MergedEntityIDs, c.key)
			if len(added) == 0 {
				return c.key, true
			}
		} else {
			res.CreatedEntityIDs = append(res.CreatedEntityIDs, c.key)
			created[entity]++
		}
		// the full known field set travels with every write so commit order
		// across concurrent batches cannot change the result
		ops = append(ops, domain.Operation{
			Collection:  entity,
			DocumentKey: c.key,
			Fields:      copyFields(c.fields),
			Merge:       true,
		})
		return c.key, existed
	}

	if rp.customer != nil {
		fields := rp.customer.Fields()
		fields[fieldDedupKey] = rp.match.identity
		existing := idx.existingCustomer(rp.match)
		var customerKey string
		customerKey, primaryExisted = upsert(domain.EntityCustomer, rp.match.identity, existing, fields)

		if rp.address != nil {
			addr := *rp.address
			addr.CustomerID = customerKey
			if err := addr.Validate(); err != nil {
				rp.notes = append(rp.notes, err.Error())
			} else {
				id := addressIdentity(customerKey, addr.Street, addr.Number, addr.Neighborhood)
				upsert(domain.EntityAddress, id, idx.existingAddress(id), addr.Fields())
			}
		}
	}

	if rp.zone != nil {
		id := zoneIdentity(rp.zone.Neighborhood)
		_, existed := upsert(domain.EntityDeliveryZone, id, idx.existingZone(id), rp.zone.Fields())
		if rp.customer == nil {
			primaryExisted = existed
		}
	}

	res.Outcome = domain.OutcomeCreated
	if primaryExisted {
		res.Outcome = domain.OutcomeMerged
	}
	res.Created = created
	if len(rp.notes) > 0 {
		res.ErrorDetail = strings.Join(rp.notes, "; ")
	}
	return ops, deps
}

func copyFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out
}

func (s *ExecutorService) query(tenantID uuid.UUID) queryFunc {
	return func(ctx context.Context, collection domain.EntityType, predicate domain.Predicate) ([]domain.Document, error) {
		var docs []domain.Document
		_, err := s.withRetry(ctx, func(attemptCtx context.Context) error {
			var err error
			docs, err = s.store.Query(attemptCtx, tenantID, collection, predicate)
			return err
		})
		return docs, err
	}
}

// withRetry runs op with a per-attempt timeout, retrying transient failures
// with exponential backoff. It returns the number of attempts made.
func (s *ExecutorService) withRetry(ctx context.Context, op func(context.Context) error) (int, error) {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = s.opts.InitialBackoff
	eb.MaxInterval = s.opts.MaxBackoff
	eb.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(s.opts.MaxRetries)), ctx)

	var attempts atomic.Int32
	err := backoff.RetryNotify(func() error {
		attempts.Add(1)
		attemptCtx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
		defer cancel()
		err := op(attemptCtx)
		if err == nil {
			return nil
		}
		if domain.IsTransient(err) || errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return err
		}
		return backoff.Permanent(err)
	}, policy, func(err error, wait time.Duration) {
		batchRetries.Inc()
	})
	return int(attempts.Load()), err
}

// commit writes one batch. In-flight commits are detached from cancellation so
// a canceled run never leaves a batch half reported.
func (s *ExecutorService) commit(ctx context.Context, tenantID uuid.UUID, b batch, results []domain.RowResult, onBatch func(BatchProgress)) {
	ops := b.operations()
	progress := BatchProgress{Batch: b.index, Rows: len(b.rows), Operations: len(ops)}
	if len(ops) > 0 {
		ctx, span := tracer.Start(context.WithoutCancel(ctx), "migration.batch_commit")
		span.SetAttributes(attribute.Int("migration.batch", b.index), attribute.Int("migration.operations", len(ops)))
		attempts, err := s.withRetry(ctx, func(attemptCtx context.Context) error {
			start := time.Now()
			defer func() { commitDuration.Observe(time.Since(start).Seconds()) }()
			return s.store.BatchWrite(attemptCtx, tenantID, ops)
		})
		progress.Attempts, progress.Err = attempts, err
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}

	if progress.Err != nil {
		batchCommits.WithLabelValues("failed").Inc()
		composables.UseLogger(ctx).WithError(progress.Err).
			WithFields(logrus.Fields{"component": "migration.executor", "batch": b.index, "attempts": progress.Attempts}).
			Error("batch commit failed")
		markBatch(results, b, domain.OutcomeFailed, progress.Err.Error())
	} else {
		batchCommits.WithLabelValues("committed").Inc()
	}
	if onBatch != nil {
		onBatch(progress)
	}
}

func markBatch(results []domain.RowResult, b batch, outcome domain.Outcome, reason string) {
	for _, r := range b.rows {
		res := &results[r.slot]
		res.Outcome = outcome
		res.ErrorDetail = reason
		res.CreatedEntityIDs = nil
		res.MergedEntityIDs = nil
		res.Created = nil
	}
}
