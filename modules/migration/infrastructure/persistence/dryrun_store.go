package persistence

import (
	"context"

	"github.com/google/uuid"

	"github.com/iota-uz/legacy-migrator/modules/migration/domain"
)

// DryRunStore reads through to a backing store and keeps every write in an
// in-memory overlay. The backing store is never written.
type DryRunStore struct {
	backing domain.Store
	overlay *MemoryStore
}

func NewDryRunStore(backing domain.Store) *DryRunStore {
	return &DryRunStore{backing: backing, overlay: NewMemoryStore()}
}

func (s *DryRunStore) BatchWrite(ctx context.Context, tenantID uuid.UUID, ops []domain.Operation) error {
	return s.overlay.BatchWrite(ctx, tenantID, ops)
}

func (s *DryRunStore) Query(ctx context.Context, tenantID uuid.UUID, collection domain.EntityType, predicate domain.Predicate) ([]domain.Document, error) {
	base, err := s.backing.Query(ctx, tenantID, collection, predicate)
	if err != nil {
		return nil, err
	}
	staged, err := s.overlay.Query(ctx, tenantID, collection, predicate)
	if err != nil {
		return nil, err
	}
	if len(staged) == 0 {
		return base, nil
	}
	byKey := make(map[string]int, len(base))
	out := make([]domain.Document, 0, len(base)+len(staged))
	for _, doc := range base {
		byKey[doc.Key] = len(out)
		out = append(out, doc)
	}
	for _, doc := range staged {
		if i, ok := byKey[doc.Key]; ok {
			// stored fields win, mirroring the merge rule of the real store
			merged := copyFields(doc.Fields)
			for k, v := range out[i].Fields {
				merged[k] = v
			}
			out[i] = domain.Document{Key: doc.Key, Fields: merged}
			continue
		}
		out = append(out, doc)
	}
	sortDocuments(out)
	return out, nil
}

// Staged exposes the overlay for inspection.
func (s *DryRunStore) Staged() *MemoryStore {
	return s.overlay
}
