package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"time"

	"github.com/google/uuid"
)

// MigrationPlan is the finalized, immutable mapping consumed by the executor.
// Only the mapping resolver builds plans.
type MigrationPlan struct {
	id          uuid.UUID
	tenantID    uuid.UUID
	columns     ColumnMapping
	values      ValueMapping
	dedup       DedupStrategy
	fingerprint string
	createdAt   time.Time
}

type PlanOption func(*MigrationPlan)

func WithPlanID(id uuid.UUID) PlanOption {
	return func(p *MigrationPlan) {
		p.id = id
	}
}

func WithDedupStrategy(s DedupStrategy) PlanOption {
	return func(p *MigrationPlan) {
		p.dedup = s
	}
}

func WithPlanCreatedAt(t time.Time) PlanOption {
	return func(p *MigrationPlan) {
		p.createdAt = t
	}
}

func NewMigrationPlan(tenantID uuid.UUID, columns ColumnMapping, values ValueMapping, opts ...PlanOption) *MigrationPlan {
	p := &MigrationPlan{
		id:        uuid.New(),
		tenantID:  tenantID,
		columns:   make(ColumnMapping, len(columns)),
		values:    values.Clone(),
		dedup:     DedupByPhone,
		createdAt: time.Now(),
	}
	for ref, field := range columns {
		if field != "" {
			p.columns[ref] = field
		}
	}
	for _, opt := range opts {
		opt(p)
	}
	p.fingerprint = p.computeFingerprint()
	return p
}

func (p *MigrationPlan) ID() uuid.UUID {
	return p.id
}

func (p *MigrationPlan) TenantID() uuid.UUID {
	return p.tenantID
}

func (p *MigrationPlan) DedupStrategy() DedupStrategy {
	return p.dedup
}

func (p *MigrationPlan) CreatedAt() time.Time {
	return p.createdAt
}

// Fingerprint is a content hash of tenant, mapping and dedup strategy. Two plans
// with equal fingerprints produce the same writes.
func (p *MigrationPlan) Fingerprint() string {
	return p.fingerprint
}

func (p *MigrationPlan) Columns() ColumnMapping {
	return p.columns.Clone()
}

func (p *MigrationPlan) Values() ValueMapping {
	return p.values.Clone()
}

// FieldFor returns the field a source column is mapped to.
func (p *MigrationPlan) FieldFor(file, header string) (string, bool) {
	f, ok := p.columns[ColumnRef{File: file, Header: header}]
	return f, ok && f != ""
}

// Canonical applies the value mapping with identity fallback.
func (p *MigrationPlan) Canonical(field, raw string) string {
	return p.values.Canonical(field, raw)
}

// PlanSnapshot is the serializable form of a plan.
type PlanSnapshot struct {
	ID            uuid.UUID            `json:"id"`
	TenantID      uuid.UUID            `json:"tenantId"`
	DedupStrategy DedupStrategy        `json:"dedupStrategy"`
	Fingerprint   string               `json:"fingerprint"`
	CreatedAt     time.Time            `json:"createdAt"`
	Columns       []ColumnMappingEntry `json:"columns"`
	Values        []ValueMappingEntry  `json:"values"`
}

type ValueMappingEntry struct {
	Field     string `json:"field" yaml:"field" validate:"required"`
	Raw       string `json:"raw" yaml:"raw"`
	Canonical string `json:"canonical" yaml:"canonical"`
}

func ValueEntries(v ValueMapping) []ValueMappingEntry {
	out := make([]ValueMappingEntry, 0)
	for field, values := range v {
		for raw, canonical := range values {
			out = append(out, ValueMappingEntry{Field: field, Raw: raw, Canonical: canonical})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Field != out[j].Field {
			return out[i].Field < out[j].Field
		}
		return out[i].Raw < out[j].Raw
	})
	return out
}

func ValueMappingFromEntries(entries []ValueMappingEntry) ValueMapping {
	v := make(ValueMapping)
	for _, e := range entries {
		if v[e.Field] == nil {
			v[e.Field] = make(map[string]string)
		}
		v[e.Field][e.Raw] = e.Canonical
	}
	return v
}

func (p *MigrationPlan) Snapshot() PlanSnapshot {
	return PlanSnapshot{
		ID:            p.id,
		TenantID:      p.tenantID,
		DedupStrategy: p.dedup,
		Fingerprint:   p.fingerprint,
		CreatedAt:     p.createdAt,
		Columns:       p.columns.Entries(),
		Values:        ValueEntries(p.values),
	}
}

func (p *MigrationPlan) computeFingerprint() string {
	content := struct {
		TenantID uuid.UUID            `json:"t"`
		Dedup    DedupStrategy        `json:"d"`
		Columns  []ColumnMappingEntry `json:"c"`
		Values   []ValueMappingEntry  `json:"v"`
	}{p.tenantID, p.dedup, p.columns.Entries(), ValueEntries(p.values)}
	b, err := json.Marshal(content)
	if err != nil {
		panic(err)
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
