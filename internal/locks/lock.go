package locks

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	pkgerrors "github.com/angelmondragon/barter-backend/pkg/errors"
	"github.com/angelmondragon/barter-backend/pkg/redis"
)

const (
	defaultLockTTL = 30 * time.Second
	itemScope      = "item"
)

// ErrContended is returned when another request holds one of the requested locks.
var ErrContended = pkgerrors.New(pkgerrors.CodeDependency, "trade is being processed")

// Lock coordinates exclusive access to a single key.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// RedisLock implements Lock using Redis SETNX + TTL.
type RedisLock struct {
	client redis.LockStore
	key    string
	ttl    time.Duration
	owner  string
}

// NewRedisLock constructs a Redis-backed lock.
func NewRedisLock(client redis.LockStore, key string, ttl time.Duration) (*RedisLock, error) {
	if client == nil {
		return nil, errors.New("redis client required for lock")
	}
	if key == "" {
		return nil, errors.New("lock key is required")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &RedisLock{client: client, key: key, ttl: ttl}, nil
}

// Acquire tries to own the lock for the configured TTL.
func (l *RedisLock) Acquire(ctx context.Context) (bool, error) {
	owner := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key, owner, l.ttl)
	if err != nil {
		return false, fmt.Errorf("setnx %s: %w", l.key, err)
	}
	if ok {
		l.owner = owner
	}
	return ok, nil
}

// Release frees the lock only if the owner value still matches.
func (l *RedisLock) Release(ctx context.Context) error {
	if l.owner == "" {
		return nil
	}
	if _, err := l.client.ReleaseIfOwner(ctx, l.key, l.owner); err != nil {
		return fmt.Errorf("release %s: %w", l.key, err)
	}
	l.owner = ""
	return nil
}

// Held is a set of acquired locks released together.
type Held struct {
	locks []Lock
}

// Release frees every held lock in reverse acquisition order.
func (h *Held) Release(ctx context.Context) error {
	if h == nil {
		return nil
	}
	var err error
	for i := len(h.locks) - 1; i >= 0; i-- {
		err = multierr.Append(err, h.locks[i].Release(ctx))
	}
	h.locks = nil
	return err
}

// ItemLocker serialises work touching the same items across processes.
type ItemLocker interface {
	LockItems(ctx context.Context, itemIDs ...uint64) (*Held, error)
}

// RedisItemLocker takes one Redis lock per item id.
type RedisItemLocker struct {
	store redis.LockStore
	ttl   time.Duration
}

// NewRedisItemLocker returns a locker backed by store.
func NewRedisItemLocker(store redis.LockStore, ttl time.Duration) (*RedisItemLocker, error) {
	if store == nil {
		return nil, errors.New("redis client required for item locks")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &RedisItemLocker{store: store, ttl: ttl}, nil
}

// LockItems acquires locks for the distinct ids in ascending order. On
// contention every lock already taken is released and ErrContended is returned.
func (l *RedisItemLocker) LockItems(ctx context.Context, itemIDs ...uint64) (*Held, error) {
	held := &Held{}
	for _, id := range sortedUnique(itemIDs) {
		lock, err := NewRedisLock(l.store, l.store.LockKey(itemScope, strconv.FormatUint(id, 10)), l.ttl)
		if err != nil {
			return nil, multierr.Append(err, held.Release(ctx))
		}
		ok, err := lock.Acquire(ctx)
		if err != nil {
			return nil, multierr.Append(
				pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquire item lock"),
				held.Release(ctx),
			)
		}
		if !ok {
			if relErr := held.Release(ctx); relErr != nil {
				return nil, multierr.Append(ErrContended, relErr)
			}
			return nil, ErrContended
		}
		held.locks = append(held.locks, lock)
	}
	return held, nil
}

// NoopItemLocker is used when Redis is not configured; row locks still apply.
type NoopItemLocker struct{}

func (NoopItemLocker) LockItems(context.Context, ...uint64) (*Held, error) {
	return &Held{}, nil
}

func sortedUnique(ids []uint64) []uint64 {
	seen := make(map[uint64]struct{}, len(ids))
	out := make([]uint64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
