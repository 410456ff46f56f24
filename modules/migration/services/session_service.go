package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/wI2L/jsondiff"

	"github.com/iota-uz/legacy-migrator/modules/migration/domain"
	"github.com/iota-uz/legacy-migrator/pkg/composables"
	"github.com/iota-uz/legacy-migrator/pkg/eventbus"
)

// PlanRevision records one accepted mapping submission as a JSON patch
// against the previous plan.
type PlanRevision struct {
	Revision    int             `json:"revision"`
	PlanID      uuid.UUID       `json:"planId"`
	Fingerprint string          `json:"fingerprint"`
	Patch       json.RawMessage `json:"patch"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// SessionSnapshot is a read-only view of a session.
type SessionSnapshot struct {
	ID        uuid.UUID              `json:"id"`
	TenantID  uuid.UUID              `json:"tenantId"`
	UserID    uuid.UUID              `json:"userId"`
	State     domain.SessionState    `json:"state"`
	Analysis  *domain.AnalysisResult `json:"analysis,omitempty"`
	Plan      *domain.PlanSnapshot   `json:"plan,omitempty"`
	Revisions []PlanRevision         `json:"revisions,omitempty"`
	ReportID  uuid.UUID              `json:"reportId,omitempty"`
	Failure   string                 `json:"failure,omitempty"`
	CreatedAt time.Time              `json:"createdAt"`
	UpdatedAt time.Time              `json:"updatedAt"`
}

type session struct {
	mu        sync.Mutex
	id        uuid.UUID
	tenantID  uuid.UUID
	identity  domain.Identity
	state     domain.SessionState
	tables    []domain.RawTable
	analysis  *domain.AnalysisResult
	plan      *domain.MigrationPlan
	revisions []PlanRevision
	report    *domain.MigrationReport
	failure   string
	createdAt time.Time
	updatedAt time.Time
}

type SessionServiceOptions struct {
	DedupStrategy domain.DedupStrategy
}

// SessionService drives migration sessions through
// idle → analyzing → mapping_review → executing → completed, with failed as
// the terminal state for authorization failures and unusable uploads.
type SessionService struct {
	analyzer  *AnalyzerService
	executor  *ExecutorService
	gate      *Gate
	reports   domain.ReportRepository
	publisher eventbus.EventBus
	opts      SessionServiceOptions

	mu       sync.RWMutex
	sessions map[uuid.UUID]*session
	now      func() time.Time
}

func NewSessionService(
	analyzer *AnalyzerService,
	executor *ExecutorService,
	gate *Gate,
	reports domain.ReportRepository,
	publisher eventbus.EventBus,
	opts SessionServiceOptions,
) *SessionService {
	if opts.DedupStrategy == "" {
		opts.DedupStrategy = domain.DedupByPhone
	}
	return &SessionService{
		analyzer:  analyzer,
		executor:  executor,
		gate:      gate,
		reports:   reports,
		publisher: publisher,
		opts:      opts,
		sessions:  make(map[uuid.UUID]*session),
		now:       time.Now,
	}
}

// StartAnalyze opens a session, checks the caller and analyzes the files.
// Files that fail to parse are reported in AnalysisResult.FileErrors; the
// session fails only when none of them parse.
func (s *SessionService) StartAnalyze(ctx context.Context, files []domain.SourceFile, tenantID uuid.UUID, identity domain.Identity) (*domain.AnalysisResult, error) {
	now := s.now()
	sess := &session{
		id:        uuid.New(),
		tenantID:  tenantID,
		identity:  identity,
		state:     domain.StateIdle,
		createdAt: now,
		updatedAt: now,
	}
	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()

	logger := s.logger(ctx, sess)

	if err := s.gate.RequireSuperAdmin(ctx, identity, StageAnalyze); err != nil {
		s.fail(sess, domain.StateIdle, err)
		return nil, err
	}
	if tenantID == uuid.Nil {
		err := &domain.ValidationError{Issues: []domain.ValidationIssue{{Code: IssueMissingTenant, Message: "target tenant is required"}}}
		s.fail(sess, domain.StateIdle, err)
		return nil, err
	}
	s.transition(sess, domain.StateIdle, domain.StateAnalyzing, "")

	result, tables, err := s.analyzer.AnalyzeFiles(ctx, files)
	if err != nil {
		s.fail(sess, domain.StateAnalyzing, err)
		return nil, err
	}
	result.SessionID = sess.id
	if len(tables) == 0 {
		err := fmt.Errorf("%w: %d file(s) rejected", domain.ErrNoParsableFiles, len(result.FileErrors))
		s.fail(sess, domain.StateAnalyzing, err)
		return result, err
	}

	sess.mu.Lock()
	sess.tables = tables
	sess.analysis = result
	sess.mu.Unlock()
	s.transition(sess, domain.StateAnalyzing, domain.StateMappingReview, "")

	logger.WithFields(logrus.Fields{
		"files":       len(tables),
		"file_errors": len(result.FileErrors),
	}).Info("analysis ready for review")
	return result, nil
}

// SubmitMapping resolves the operator's mapping into a plan. An invalid
// mapping keeps the session in review so the operator can correct it.
func (s *SessionService) SubmitMapping(
	ctx context.Context,
	sessionID uuid.UUID,
	columns domain.ColumnMapping,
	values domain.ValueMapping,
	opts ...ResolveOption,
) (*domain.MigrationPlan, error) {
	sess, err := s.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	if err := s.requireState(sess, domain.StateMappingReview, "submit a mapping"); err != nil {
		return nil, err
	}
	identity, err := s.callerIdentity(ctx, sess)
	if err != nil {
		return nil, err
	}
	if err := s.gate.RequireSuperAdmin(ctx, identity, StageMapping); err != nil {
		s.fail(sess, domain.StateMappingReview, err)
		return nil, err
	}

	resolveOpts := append([]ResolveOption{ResolveWithDedupStrategy(string(s.opts.DedupStrategy))}, opts...)
	plan, err := Resolve(columns, values, sess.tenantID, resolveOpts...)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	if sess.state != domain.StateMappingReview {
		state := sess.state
		sess.mu.Unlock()
		return nil, &domain.InvalidTransitionError{From: state, Action: "submit a mapping"}
	}
	prev := sess.plan
	patch, perr := planPatch(prev, plan)
	rev := PlanRevision{
		Revision:    len(sess.revisions) + 1,
		PlanID:      plan.ID(),
		Fingerprint: plan.Fingerprint(),
		Patch:       patch,
		CreatedAt:   s.now(),
	}
	sess.plan = plan
	sess.revisions = append(sess.revisions, rev)
	sess.updatedAt = rev.CreatedAt
	sess.mu.Unlock()

	if perr != nil {
		s.logger(ctx, sess).WithError(perr).Warn("plan diff failed")
	}
	s.publish(&domain.PlanRevisedEvent{
		SessionID:   sess.id,
		PlanID:      plan.ID(),
		Revision:    rev.Revision,
		Fingerprint: rev.Fingerprint,
		Patch:       patch,
	})
	return plan, nil
}

// Execute runs the last submitted plan. Row failures are reported in the
// returned report and never fail the session.
func (s *SessionService) Execute(ctx context.Context, sessionID uuid.UUID) (*domain.MigrationReport, error) {
	sess, err := s.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	if err := s.requireState(sess, domain.StateMappingReview, "execute"); err != nil {
		return nil, err
	}
	identity, err := s.callerIdentity(ctx, sess)
	if err != nil {
		return nil, err
	}
	if err := s.gate.RequireSuperAdmin(ctx, identity, StageExecute); err != nil {
		s.fail(sess, domain.StateMappingReview, err)
		return nil, err
	}

	// the state check and the move to executing share one critical section so
	// a session is executed at most once
	sess.mu.Lock()
	if sess.state != domain.StateMappingReview {
		state := sess.state
		sess.mu.Unlock()
		return nil, &domain.InvalidTransitionError{From: state, Action: "execute"}
	}
	if sess.plan == nil {
		sess.mu.Unlock()
		return nil, &domain.InvalidTransitionError{From: domain.StateMappingReview, Action: "execute without a submitted mapping"}
	}
	plan, tables := sess.plan, sess.tables
	sess.state = domain.StateExecuting
	sess.updatedAt = s.now()
	at := sess.updatedAt
	sess.mu.Unlock()
	s.announce(sess, domain.StateMappingReview, domain.StateExecuting, "", at)

	logger := s.logger(ctx, sess)
	report, err := s.executor.ExecuteWithProgress(ctx, tables, plan, func(p BatchProgress) {
		s.publish(&domain.BatchCommittedEvent{
			SessionID: sess.id,
			TenantID:  sess.tenantID,
			Batch:     p.Batch,
			Rows:      p.Rows,
			Attempts:  p.Attempts,
			Err:       p.Err,
		})
	})
	if err != nil {
		s.fail(sess, domain.StateExecuting, err)
		return nil, err
	}
	report.SessionID = sess.id

	if s.reports != nil {
		if err := s.reports.Save(context.WithoutCancel(ctx), report); err != nil {
			logger.WithError(err).Error("failed to persist migration report")
		}
	}

	sess.mu.Lock()
	sess.report = report
	sess.tables = nil
	sess.mu.Unlock()
	s.transition(sess, domain.StateExecuting, domain.StateCompleted, "")
	s.publish(&domain.MigrationCompletedEvent{SessionID: sess.id, Report: report})
	return report, nil
}

// Get returns a snapshot of the session.
func (s *SessionService) Get(sessionID uuid.UUID) (*SessionSnapshot, error) {
	sess, err := s.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	snap := &SessionSnapshot{
		ID:        sess.id,
		TenantID:  sess.tenantID,
		UserID:    sess.identity.UserID,
		State:     sess.state,
		Analysis:  sess.analysis,
		Revisions: append([]PlanRevision(nil), sess.revisions...),
		Failure:   sess.failure,
		CreatedAt: sess.createdAt,
		UpdatedAt: sess.updatedAt,
	}
	if sess.plan != nil {
		p := sess.plan.Snapshot()
		snap.Plan = &p
	}
	if sess.report != nil {
		snap.ReportID = sess.report.ID
	}
	return snap, nil
}

// Report returns the report of a completed session, or a persisted report by id.
func (s *SessionService) Report(ctx context.Context, reportID uuid.UUID) (*domain.MigrationReport, error) {
	s.mu.RLock()
	for _, sess := range s.sessions {
		sess.mu.Lock()
		r := sess.report
		sess.mu.Unlock()
		if r != nil && r.ID == reportID {
			s.mu.RUnlock()
			return r, nil
		}
	}
	s.mu.RUnlock()
	if s.reports == nil {
		return nil, domain.ErrReportNotFound
	}
	return s.reports.GetByID(ctx, reportID)
}

// ListReports returns the persisted reports of a tenant, newest first.
func (s *SessionService) ListReports(ctx context.Context, tenantID uuid.UUID, limit int) ([]*domain.MigrationReport, error) {
	if s.reports == nil {
		return nil, nil
	}
	return s.reports.ListByTenant(ctx, tenantID, limit)
}

// Prune drops sessions untouched for longer than ttl. Executing sessions are kept.
func (s *SessionService) Prune(ttl time.Duration) int {
	cutoff := s.now().Add(-ttl)
	s.mu.Lock()
	defer s.mu.Unlock()
	pruned := 0
	for id, sess := range s.sessions {
		sess.mu.Lock()
		stale := sess.state != domain.StateExecuting && sess.updatedAt.Before(cutoff)
		sess.mu.Unlock()
		if stale {
			delete(s.sessions, id)
			pruned++
		}
	}
	return pruned
}

// List returns snapshots of the sessions of a tenant, newest first.
func (s *SessionService) List(tenantID uuid.UUID) []*SessionSnapshot {
	s.mu.RLock()
	ids := make([]uuid.UUID, 0, len(s.sessions))
	for id, sess := range s.sessions {
		if sess.tenantID == tenantID {
			ids = append(ids, id)
		}
	}
	s.mu.RUnlock()

	out := make([]*SessionSnapshot, 0, len(ids))
	for _, id := range ids {
		if snap, err := s.Get(id); err == nil {
			out = append(out, snap)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (s *SessionService) lookup(id uuid.UUID) (*session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrSessionNotFound, id)
	}
	return sess, nil
}

func (s *SessionService) requireState(sess *session, want domain.SessionState, action string) error {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.state != want {
		return &domain.InvalidTransitionError{From: sess.state, Action: action}
	}
	return nil
}

// callerIdentity prefers the identity of the current request. A different
// user than the session owner is refused and the session is left as it is.
func (s *SessionService) callerIdentity(ctx context.Context, sess *session) (domain.Identity, error) {
	identity, err := composables.UseIdentity(ctx)
	if errors.Is(err, composables.ErrNoIdentity) {
		return sess.identity, nil
	}
	if identity.UserID != sess.identity.UserID {
		return identity, &domain.PermissionDeniedError{
			UserID: identity.UserID,
			Stage:  "session",
			Cause:  errors.New("session belongs to another operator"),
		}
	}
	return identity, nil
}

func (s *SessionService) transition(sess *session, from, to domain.SessionState, reason string) {
	sess.mu.Lock()
	if sess.state != from {
		sess.mu.Unlock()
		return
	}
	sess.state = to
	sess.updatedAt = s.now()
	if to == domain.StateFailed {
		sess.failure = reason
		sess.tables = nil
	}
	at := sess.updatedAt
	sess.mu.Unlock()
	s.announce(sess, from, to, reason, at)
}

func (s *SessionService) announce(sess *session, from, to domain.SessionState, reason string, at time.Time) {
	sessionTransitions.WithLabelValues(string(to)).Inc()
	s.publish(&domain.SessionStateChangedEvent{
		SessionID: sess.id,
		TenantID:  sess.tenantID,
		From:      from,
		To:        to,
		Reason:    reason,
		At:        at,
	})
}

func (s *SessionService) fail(sess *session, from domain.SessionState, err error) {
	s.transition(sess, from, domain.StateFailed, err.Error())
}

func (s *SessionService) publish(event interface{}) {
	if s.publisher != nil {
		s.publisher.Publish(event)
	}
}

func (s *SessionService) logger(ctx context.Context, sess *session) *logrus.Entry {
	return composables.UseLogger(ctx).WithFields(logrus.Fields{
		"component": "migration.session",
		"session":   sess.id,
		"tenant":    sess.tenantID,
	})
}

func planPatch(prev, next *domain.MigrationPlan) (json.RawMessage, error) {
	before := []byte("{}")
	if prev != nil {
		b, err := json.Marshal(prev.Snapshot())
		if err != nil {
			return nil, err
		}
		before = b
	}
	after, err := json.Marshal(next.Snapshot())
	if err != nil {
		return nil, err
	}
	patch, err := jsondiff.CompareJSON(before, after)
	if err != nil {
		return nil, err
	}
	return json.Marshal(patch)
}
