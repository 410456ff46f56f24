package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/legacy-migrator/modules/migration/domain"
)

func TestCustomerIdentity(t *testing.T) {
	withPhone := domain.Customer{Name: "Ana Souza", Phone: "5585911110000", Email: "ana@example.com", Source: "a.csv#0"}
	noPhone := domain.Customer{Name: "Ana", Email: "ana@example.com", Source: "a.csv#3"}

	m := customerIdentity(domain.DedupByPhone, withPhone)
	require.Equal(t, "phone:5585911110000", m.identity)
	require.Equal(t, fieldPhone, m.lookupField)

	m = customerIdentity(domain.DedupByPhoneEmail, withPhone)
	require.Equal(t, "phone:5585911110000|email:ana@example.com", m.identity)
	require.True(t, m.matches(domain.Document{Fields: map[string]any{"email": "ANA@example.com"}}))
	require.False(t, m.matches(domain.Document{Fields: map[string]any{"email": "other@example.com"}}))

	m = customerIdentity(domain.DedupByPhoneName, withPhone)
	require.True(t, m.matches(domain.Document{Fields: map[string]any{"name": "ANA  SOUZA"}}))
	require.False(t, m.matches(domain.Document{Fields: map[string]any{"name": "Bia"}}))

	m = customerIdentity(domain.DedupByPhoneEmail, noPhone)
	require.Equal(t, "email:ana@example.com", m.identity)
	require.Equal(t, fieldEmail, m.lookupField)

	m = customerIdentity(domain.DedupByPhone, noPhone)
	require.Equal(t, "source:a.csv#3", m.identity)
	require.Equal(t, fieldDedupKey, m.lookupField)
}

func TestDocumentKeyIsStablePerTenant(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	require.Equal(t, documentKey(a, "phone:1"), documentKey(a, "phone:1"))
	require.NotEqual(t, documentKey(a, "phone:1"), documentKey(b, "phone:1"))
	require.NotEqual(t, documentKey(a, "phone:1"), documentKey(a, "phone:2"))
}

func TestDedupIndex_Resolve(t *testing.T) {
	idx := newDedupIndex(uuid.New())

	c, existed, added := idx.resolve(0, "phone:1", nil, map[string]any{"name": "Ana"})
	require.False(t, existed)
	require.Equal(t, map[string]any{"name": "Ana"}, added)

	same, existed, added := idx.resolve(1, "phone:1", nil, map[string]any{"name": "Other", "email": "a@x.io"})
	require.True(t, existed)
	require.Equal(t, c.key, same.key)
	require.Equal(t, map[string]any{"email": "a@x.io"}, added)
	require.Equal(t, "Ana", same.fields["name"])
	require.Equal(t, 0, same.origin, "the first row keeps ownership")

	stored := &domain.Document{Key: "stored-key", Fields: map[string]any{"name": "Bia", "phone": "2"}}
	got, existed, added := idx.resolve(2, "phone:2", stored, map[string]any{"name": "Bia", "phone": "2"})
	require.True(t, existed)
	require.True(t, got.fromStore)
	require.Equal(t, -1, got.origin)
	require.Equal(t, "stored-key", got.key)
	require.Empty(t, added)
}

func TestChunkedQuery(t *testing.T) {
	var calls [][]string
	query := func(_ context.Context, _ domain.EntityType, p domain.Predicate) ([]domain.Document, error) {
		calls = append(calls, p.Values)
		return nil, nil
	}
	values := make([]string, 0, lookupChunkSize+10)
	for i := 0; i < lookupChunkSize+5; i++ {
		values = append(values, uuid.NewString())
	}
	values = append(values, values[0], "")

	_, err := chunkedQuery(context.Background(), query, domain.EntityCustomer, fieldPhone, values)
	require.NoError(t, err)
	require.Len(t, calls, 2)
	require.Len(t, calls[0], lookupChunkSize)
	require.Len(t, calls[1], 5)
}
