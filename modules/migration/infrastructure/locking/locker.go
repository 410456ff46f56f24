package locking

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/iota-uz/legacy-migrator/pkg/composables"
	"github.com/iota-uz/legacy-migrator/pkg/serrors"
)

var ErrLocked = serrors.NewError("MIGRATION_TENANT_LOCKED", "another migration is running for this tenant", "Migration.Errors.TenantLocked")

// Release gives the lock back. Calling it more than once is harmless.
type Release func(ctx context.Context) error

// Locker serializes executions per tenant.
type Locker interface {
	Acquire(ctx context.Context, tenantID uuid.UUID, ttl time.Duration) (Release, error)
}

const keyPrefix = "legacy-migrator:lock:"

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type RedisTenantLocker struct {
	client redis.UniversalClient
}

func NewRedisTenantLocker(client redis.UniversalClient) *RedisTenantLocker {
	return &RedisTenantLocker{client: client}
}

func (l *RedisTenantLocker) Acquire(ctx context.Context, tenantID uuid.UUID, ttl time.Duration) (Release, error) {
	key := keyPrefix + tenantID.String()
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire tenant lock: %w", err)
	}
	if !ok {
		return nil, ErrLocked
	}
	var once sync.Once
	return func(ctx context.Context) error {
		var err error
		once.Do(func() {
			err = releaseScript.Run(ctx, l.client, []string{key}, token).Err()
		})
		return err
	}, nil
}

type memoryLock struct {
	token   uuid.UUID
	expires time.Time
}

// MemoryLocker is a process-local Locker for single instance deployments.
type MemoryLocker struct {
	mu    sync.Mutex
	locks map[uuid.UUID]memoryLock
	now   func() time.Time
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{locks: make(map[uuid.UUID]memoryLock), now: time.Now}
}

func (l *MemoryLocker) Acquire(_ context.Context, tenantID uuid.UUID, ttl time.Duration) (Release, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if held, ok := l.locks[tenantID]; ok && now.Before(held.expires) {
		return nil, ErrLocked
	}
	token := uuid.New()
	l.locks[tenantID] = memoryLock{token: token, expires: now.Add(ttl)}
	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		if held, ok := l.locks[tenantID]; ok && held.token == token {
			delete(l.locks, tenantID)
		}
		return nil
	}, nil
}

// TenantGuard runs work while holding the tenant lock.
type TenantGuard struct {
	locker Locker
	ttl    time.Duration
}

func NewTenantGuard(locker Locker, ttl time.Duration) *TenantGuard {
	return &TenantGuard{locker: locker, ttl: ttl}
}

// Run acquires the lock for tenantID, calls fn and releases the lock even when
// ctx has been canceled by then.
func (g *TenantGuard) Run(ctx context.Context, tenantID uuid.UUID, fn func(ctx context.Context) error) error {
	release, err := g.locker.Acquire(ctx, tenantID, g.ttl)
	if err != nil {
		return err
	}
	defer func() {
		if rerr := release(context.WithoutCancel(ctx)); rerr != nil {
			composables.UseLogger(ctx).WithError(rerr).WithField("tenant", tenantID).Warn("tenant lock release failed")
		}
	}()
	return fn(ctx)
}
