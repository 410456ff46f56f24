package dtos

import (
	"time"

	"github.com/google/uuid"

	"github.com/iota-uz/legacy-migrator/modules/migration/domain"
)

type APIError struct {
	Code     string                   `json:"code"`
	Message  string                   `json:"message"`
	Meta     map[string]string        `json:"meta,omitempty"`
	Issues   []domain.ValidationIssue `json:"issues,omitempty"`
	Analysis *domain.AnalysisResult   `json:"analysis,omitempty"`
}

// MappingRequest is the operator confirmed mapping. It is accepted as JSON by
// the API and as YAML by the CLI.
type MappingRequest struct {
	Columns       []domain.ColumnMappingEntry `json:"columns" yaml:"columns" validate:"required,dive"`
	Values        []domain.ValueMappingEntry  `json:"values" yaml:"values" validate:"dive"`
	DedupStrategy string                      `json:"dedupStrategy,omitempty" yaml:"dedupStrategy" validate:"omitempty,oneof=phone phone_email phone_name"`
}

func (r *MappingRequest) ColumnMapping() domain.ColumnMapping {
	return domain.ColumnMappingFromEntries(r.Columns)
}

func (r *MappingRequest) ValueMapping() domain.ValueMapping {
	return domain.ValueMappingFromEntries(r.Values)
}

type MappingResponse struct {
	SessionID uuid.UUID           `json:"sessionId"`
	Plan      domain.PlanSnapshot `json:"plan"`
}

// ReportSummary is a report without its per row results.
type ReportSummary struct {
	ID          uuid.UUID                 `json:"id"`
	SessionID   uuid.UUID                 `json:"sessionId"`
	PlanID      uuid.UUID                 `json:"planId"`
	Fingerprint string                    `json:"planFingerprint"`
	DryRun      bool                      `json:"dryRun"`
	Canceled    bool                      `json:"canceled"`
	Counts      map[domain.Outcome]int    `json:"counts"`
	Created     map[domain.EntityType]int `json:"created"`
	StartedAt   time.Time                 `json:"startedAt"`
	ElapsedMs   int64                     `json:"elapsedMs"`
}

func NewReportSummary(r *domain.MigrationReport) ReportSummary {
	return ReportSummary{
		ID:          r.ID,
		SessionID:   r.SessionID,
		PlanID:      r.PlanID,
		Fingerprint: r.Fingerprint,
		DryRun:      r.DryRun,
		Canceled:    r.Canceled,
		Counts:      r.Counts,
		Created:     r.Created,
		StartedAt:   r.StartedAt,
		ElapsedMs:   r.Elapsed.Milliseconds(),
	}
}

type ReportList struct {
	Reports []ReportSummary `json:"reports"`
}
