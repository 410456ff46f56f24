package composables

import (
	"context"
	"errors"

	"github.com/iota-uz/legacy-migrator/modules/migration/domain"
	"github.com/iota-uz/legacy-migrator/pkg/constants"
)

var ErrNoIdentity = errors.New("identity not found in context")

type Params struct {
	IP        string
	UserAgent string
	RequestID string
}

func WithIdentity(ctx context.Context, identity domain.Identity) context.Context {
	return context.WithValue(ctx, constants.IdentityKey, identity)
}

func UseIdentity(ctx context.Context) (domain.Identity, error) {
	identity, ok := ctx.Value(constants.IdentityKey).(domain.Identity)
	if !ok {
		return domain.Identity{}, ErrNoIdentity
	}
	return identity, nil
}

// WithParams returns a new context with the request parameters.
func WithParams(ctx context.Context, params *Params) context.Context {
	return context.WithValue(ctx, constants.ParamsKey, params)
}

// UseParams returns the request parameters from the context.
// If the parameters are not found, the second return value will be false.
func UseParams(ctx context.Context) (*Params, bool) {
	params, ok := ctx.Value(constants.ParamsKey).(*Params)
	return params, ok
}
