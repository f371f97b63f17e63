package locks

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/barter-backend/pkg/errors"
)

type fakeStore struct {
	data       map[string]string
	setNXErr   error
	acquireLog []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: map[string]string{}}
}

func (f *fakeStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if f.setNXErr != nil {
		return false, f.setNXErr
	}
	if _, ok := f.data[key]; ok {
		return false, nil
	}
	f.data[key] = fmt.Sprint(value)
	f.acquireLog = append(f.acquireLog, key)
	return true, nil
}

func (f *fakeStore) ReleaseIfOwner(_ context.Context, key, owner string) (bool, error) {
	if f.data[key] != owner {
		return false, nil
	}
	delete(f.data, key)
	return true, nil
}

func (f *fakeStore) LockKey(scope, id string) string {
	return "bx:lock:" + scope + ":" + id
}

func TestLockItemsAcquiresInAscendingOrderAndReleases(t *testing.T) {
	store := newFakeStore()
	locker, err := NewRedisItemLocker(store, time.Minute)
	require.NoError(t, err)

	held, err := locker.LockItems(context.Background(), 20, 10, 20)
	require.NoError(t, err)
	require.Equal(t, []string{"bx:lock:item:10", "bx:lock:item:20"}, store.acquireLog)
	require.Len(t, store.data, 2)

	require.NoError(t, held.Release(context.Background()))
	require.Empty(t, store.data)
}

func TestLockItemsContentionReleasesPartialSet(t *testing.T) {
	store := newFakeStore()
	store.data["bx:lock:item:20"] = "someone-else"
	locker, err := NewRedisItemLocker(store, time.Minute)
	require.NoError(t, err)

	held, err := locker.LockItems(context.Background(), 10, 20)
	require.Nil(t, held)
	require.ErrorIs(t, err, ErrContended)
	require.True(t, pkgerrors.As(err).Retryable())

	require.NotContains(t, store.data, "bx:lock:item:10")
	require.Equal(t, "someone-else", store.data["bx:lock:item:20"])
}

func TestLockItemsStoreFailureIsRetryable(t *testing.T) {
	store := newFakeStore()
	store.setNXErr = errors.New("connection refused")
	locker, err := NewRedisItemLocker(store, 0)
	require.NoError(t, err)

	_, err = locker.LockItems(context.Background(), 10)
	require.Error(t, err)
	require.Equal(t, pkgerrors.CodeDependency, pkgerrors.CodeOf(err))
}

func TestRedisLockReleaseIgnoresForeignOwner(t *testing.T) {
	store := newFakeStore()
	lock, err := NewRedisLock(store, "bx:lock:item:1", time.Minute)
	require.NoError(t, err)

	ok, err := lock.Acquire(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	store.data["bx:lock:item:1"] = "expired-and-retaken"
	require.NoError(t, lock.Release(context.Background()))
	require.Equal(t, "expired-and-retaken", store.data["bx:lock:item:1"])
}

func TestNewRedisLockValidates(t *testing.T) {
	_, err := NewRedisLock(nil, "k", time.Second)
	require.Error(t, err)
	_, err = NewRedisLock(newFakeStore(), "", time.Second)
	require.Error(t, err)
	_, err = NewRedisItemLocker(nil, time.Second)
	require.Error(t, err)
}

func TestNoopItemLocker(t *testing.T) {
	held, err := NoopItemLocker{}.LockItems(context.Background(), 1, 2)
	require.NoError(t, err)
	require.NoError(t, held.Release(context.Background()))
}
