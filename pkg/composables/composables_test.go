package composables

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/legacy-migrator/modules/migration/domain"
)

func TestTenantID_RoundTrip(t *testing.T) {
	_, err := UseTenantID(context.Background())
	require.ErrorIs(t, err, ErrNoTenantID)

	id := uuid.New()
	got, err := UseTenantID(WithTenantID(context.Background(), id))
	require.NoError(t, err)
	require.Equal(t, id, got)

	_, err = UseTenantID(WithTenantID(context.Background(), uuid.Nil))
	require.ErrorIs(t, err, ErrNoTenantID)
}

func TestIdentity_RoundTrip(t *testing.T) {
	_, err := UseIdentity(context.Background())
	require.ErrorIs(t, err, ErrNoIdentity)

	identity := domain.Identity{UserID: uuid.New(), Roles: []string{"core.superadmin"}}
	got, err := UseIdentity(WithIdentity(context.Background(), identity))
	require.NoError(t, err)
	require.Equal(t, identity.UserID, got.UserID)
}

func TestUseLogger_FallsBackToStandardLogger(t *testing.T) {
	require.NotNil(t, UseLogger(context.Background()))
}

func TestUsePool_Missing(t *testing.T) {
	_, err := UsePool(context.Background())
	require.ErrorIs(t, err, ErrNoPool)
	_, err = UseTx(context.Background())
	require.ErrorIs(t, err, ErrNoTx)
}
