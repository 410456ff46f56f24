package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Outcome string

const (
	OutcomeCreated        Outcome = "created"
	OutcomeMerged         Outcome = "merged_as_duplicate"
	OutcomeSkippedInvalid Outcome = "skipped_invalid"
	OutcomeFailed         Outcome = "failed"
)

// Outcomes lists every outcome in report order.
var Outcomes = []Outcome{OutcomeCreated, OutcomeMerged, OutcomeSkippedInvalid, OutcomeFailed}

const CanceledReason = "migration canceled"

// RowResult is the outcome of one source row.
type RowResult struct {
	SourceFile       string   `json:"sourceFile"`
	SourceRowIndex   int      `json:"sourceRowIndex"`
	Line             int      `json:"line"`
	Outcome          Outcome  `json:"outcome"`
	CreatedEntityIDs []string `json:"createdEntityIds,omitempty"`
	MergedEntityIDs  []string `json:"mergedEntityIds,omitempty"`
	ErrorDetail      string   `json:"errorDetail,omitempty"`
	// Created maps collection to the number of documents this row created.
	Created map[EntityType]int `json:"-"`
}

type MigrationReport struct {
	ID          uuid.UUID          `json:"id"`
	SessionID   uuid.UUID          `json:"sessionId"`
	PlanID      uuid.UUID          `json:"planId"`
	TenantID    uuid.UUID          `json:"tenantId"`
	Fingerprint string             `json:"planFingerprint"`
	DryRun      bool               `json:"dryRun"`
	Canceled    bool               `json:"canceled"`
	Counts      map[Outcome]int    `json:"counts"`
	Created     map[EntityType]int `json:"created"`
	StartedAt   time.Time          `json:"startedAt"`
	FinishedAt  time.Time          `json:"finishedAt"`
	Elapsed     time.Duration      `json:"elapsedNs"`
	Results     []RowResult        `json:"results"`
}

// Tally recomputes the outcome and created entity counts from Results.
func (r *MigrationReport) Tally() {
	r.Counts = make(map[Outcome]int, len(Outcomes))
	for _, o := range Outcomes {
		r.Counts[o] = 0
	}
	r.Created = make(map[EntityType]int)
	for _, res := range r.Results {
		r.Counts[res.Outcome]++
		if res.Outcome != OutcomeCreated && res.Outcome != OutcomeMerged {
			continue
		}
		for entity, n := range res.Created {
			r.Created[entity] += n
		}
	}
}

func (r *MigrationReport) Count(o Outcome) int {
	return r.Counts[o]
}

// NeedsAttention reports whether any row was skipped or failed.
func (r *MigrationReport) NeedsAttention() bool {
	return r.Counts[OutcomeSkippedInvalid] > 0 || r.Counts[OutcomeFailed] > 0
}

type ReportRepository interface {
	Save(ctx context.Context, report *MigrationReport) error
	GetByID(ctx context.Context, id uuid.UUID) (*MigrationReport, error)
	ListByTenant(ctx context.Context, tenantID uuid.UUID, limit int) ([]*MigrationReport, error)
}
