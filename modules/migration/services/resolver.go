package services

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/iota-uz/legacy-migrator/modules/migration/domain"
)

const (
	IssueUnknownField       = "UNKNOWN_FIELD"
	IssueDuplicateField     = "DUPLICATE_SINGLE_VALUED_FIELD"
	IssueMissingTenant      = "MISSING_TENANT"
	IssueNotValueMapped     = "FIELD_NOT_VALUE_MAPPED"
	IssueBlankCanonical     = "BLANK_CANONICAL_VALUE"
	IssueUnknownDedup       = "UNKNOWN_DEDUP_STRATEGY"
	IssueIncompleteColumnID = "INCOMPLETE_COLUMN_REFERENCE"
)

type resolveConfig struct {
	dedup string
	id    uuid.UUID
}

type ResolveOption func(*resolveConfig)

func ResolveWithDedupStrategy(s string) ResolveOption {
	return func(c *resolveConfig) {
		c.dedup = s
	}
}

func ResolveWithPlanID(id uuid.UUID) ResolveOption {
	return func(c *resolveConfig) {
		c.id = id
	}
}

// Resolve validates an operator confirmed mapping and freezes it into a plan.
// It has no side effects. Partial mappings are valid.
func Resolve(columns domain.ColumnMapping, values domain.ValueMapping, tenantID uuid.UUID, opts ...ResolveOption) (*domain.MigrationPlan, error) {
	cfg := resolveConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	verr := &domain.ValidationError{}

	if tenantID == uuid.Nil {
		verr.Add(domain.ValidationIssue{Code: IssueMissingTenant, Message: "target tenant is required"})
	}

	dedup, err := domain.ParseDedupStrategy(cfg.dedup)
	if err != nil {
		verr.Add(domain.ValidationIssue{Code: IssueUnknownDedup, Message: err.Error()})
	}

	refs := make([]domain.ColumnRef, 0, len(columns))
	for ref := range columns {
		refs = append(refs, ref)
	}
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].File != refs[j].File {
			return refs[i].File < refs[j].File
		}
		return refs[i].Header < refs[j].Header
	})

	claims := make(map[[2]string]string)
	for _, ref := range refs {
		key := strings.TrimSpace(columns[ref])
		if key == "" {
			continue
		}
		if ref.File == "" || ref.Header == "" {
			verr.Add(domain.ValidationIssue{
				Code: IssueIncompleteColumnID, File: ref.File, Header: ref.Header, Field: key,
				Message: "column reference needs both a file and a header",
			})
			continue
		}
		field, ok := domain.LookupField(key)
		if !ok {
			verr.Add(domain.ValidationIssue{
				Code: IssueUnknownField, File: ref.File, Header: ref.Header, Field: key,
				Message: fmt.Sprintf("%s/%s is mapped to unknown field %q", ref.File, ref.Header, key),
			})
			continue
		}
		if field.MultiValued {
			continue
		}
		claim := [2]string{ref.File, field.Key}
		if prev, taken := claims[claim]; taken {
			verr.Add(domain.ValidationIssue{
				Code: IssueDuplicateField, File: ref.File, Header: ref.Header, Field: key,
				Message: fmt.Sprintf("%s: columns %q and %q both map to single-valued field %s", ref.File, prev, ref.Header, key),
			})
			continue
		}
		claims[claim] = ref.Header
	}

	fields := make([]string, 0, len(values))
	for f := range values {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	for _, key := range fields {
		field, ok := domain.LookupField(key)
		if !ok {
			verr.Add(domain.ValidationIssue{
				Code: IssueUnknownField, Field: key,
				Message: fmt.Sprintf("value mapping names unknown field %q", key),
			})
			continue
		}
		if !field.RequiresValueMapping {
			verr.Add(domain.ValidationIssue{
				Code: IssueNotValueMapped, Field: key,
				Message: fmt.Sprintf("field %s does not take a value mapping", key),
			})
			continue
		}
		raws := make([]string, 0, len(values[key]))
		for raw := range values[key] {
			raws = append(raws, raw)
		}
		sort.Strings(raws)
		for _, raw := range raws {
			if strings.TrimSpace(values[key][raw]) == "" {
				verr.Add(domain.ValidationIssue{
					Code: IssueBlankCanonical, Field: key,
					Message: fmt.Sprintf("value %q of %s maps to a blank value", raw, key),
				})
			}
		}
	}

	if len(verr.Issues) > 0 {
		return nil, verr
	}

	cleanValues := make(domain.ValueMapping, len(values))
	for field, m := range values {
		inner := make(map[string]string, len(m))
		for raw, canonical := range m {
			inner[raw] = strings.TrimSpace(canonical)
		}
		cleanValues[field] = inner
	}
	cleanColumns := make(domain.ColumnMapping, len(columns))
	for ref, key := range columns {
		cleanColumns[ref] = strings.TrimSpace(key)
	}

	planOpts := []domain.PlanOption{domain.WithDedupStrategy(dedup)}
	if cfg.id != uuid.Nil {
		planOpts = append(planOpts, domain.WithPlanID(cfg.id))
	}
	return domain.NewMigrationPlan(tenantID, cleanColumns, cleanValues, planOpts...), nil
}
