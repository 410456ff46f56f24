package domain

import (
	"context"

	"github.com/google/uuid"
)

// Operation is one document upsert. With Merge set, fields are merged into an
// existing document instead of replacing it.
type Operation struct {
	Collection  EntityType
	DocumentKey string
	Fields      map[string]any
	Merge       bool
}

// Predicate matches documents whose Field equals any of Values.
type Predicate struct {
	Field  string
	Values []string
}

type Document struct {
	Key    string
	Fields map[string]any
}

// String returns a string field, empty when missing or not a string.
func (d Document) String(field string) string {
	if v, ok := d.Fields[field].(string); ok {
		return v
	}
	return ""
}

// Store is the multi-tenant document store the executor writes to.
// BatchWrite applies every operation or none.
type Store interface {
	BatchWrite(ctx context.Context, tenantID uuid.UUID, ops []Operation) error
	Query(ctx context.Context, tenantID uuid.UUID, collection EntityType, predicate Predicate) ([]Document, error)
}
