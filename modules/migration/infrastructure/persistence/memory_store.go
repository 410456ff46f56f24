package persistence

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/iota-uz/legacy-migrator/modules/migration/domain"
)

type collectionKey struct {
	tenant     uuid.UUID
	collection domain.EntityType
}

// MemoryStore keeps documents in process. It backs dry runs and tests and
// follows the same merge rules as PgStore.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[collectionKey]map[string]map[string]any
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[collectionKey]map[string]map[string]any)}
}

func (s *MemoryStore) BatchWrite(ctx context.Context, tenantID uuid.UUID, ops []domain.Operation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, op := range ops {
		ck := collectionKey{tenant: tenantID, collection: op.Collection}
		bucket, ok := s.docs[ck]
		if !ok {
			bucket = make(map[string]map[string]any)
			s.docs[ck] = bucket
		}
		existing, ok := bucket[op.DocumentKey]
		if !ok || !op.Merge {
			bucket[op.DocumentKey] = copyFields(op.Fields)
			continue
		}
		for k, v := range op.Fields {
			if _, taken := existing[k]; !taken {
				existing[k] = v
			}
		}
	}
	return nil
}

func (s *MemoryStore) Query(ctx context.Context, tenantID uuid.UUID, collection domain.EntityType, predicate domain.Predicate) ([]domain.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	want := make(map[string]struct{}, len(predicate.Values))
	for _, v := range predicate.Values {
		want[v] = struct{}{}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Document
	for key, fields := range s.docs[collectionKey{tenant: tenantID, collection: collection}] {
		v, ok := fields[predicate.Field].(string)
		if !ok {
			continue
		}
		if _, hit := want[v]; hit {
			out = append(out, domain.Document{Key: key, Fields: copyFields(fields)})
		}
	}
	sortDocuments(out)
	return out, nil
}

// Count returns how many documents a tenant has in collection.
func (s *MemoryStore) Count(tenantID uuid.UUID, collection domain.EntityType) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs[collectionKey{tenant: tenantID, collection: collection}])
}

// All returns every document of collection sorted by key.
func (s *MemoryStore) All(tenantID uuid.UUID, collection domain.EntityType) []domain.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	bucket := s.docs[collectionKey{tenant: tenantID, collection: collection}]
	out := make([]domain.Document, 0, len(bucket))
	for key, fields := range bucket {
		out = append(out, domain.Document{Key: key, Fields: copyFields(fields)})
	}
	sortDocuments(out)
	return out
}

func sortDocuments(docs []domain.Document) {
	sort.Slice(docs, func(i, j int) bool { return docs[i].Key < docs[j].Key })
}

func copyFields(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
