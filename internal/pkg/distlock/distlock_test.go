package distlock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return client, mr
}

func TestRedisLockExclusive(t *testing.T) {
	ctx := context.Background()
	client, mr := setupRedis(t)

	a := NewRedisLock(client, "audience-upload:123", time.Minute)
	b := NewRedisLock(client, "audience-upload:123", time.Minute)

	ok, err := a.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, mr.Exists("lock:audience-upload:123"))

	ok, err = b.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	// b must not be able to release a's lock
	require.NoError(t, b.Release(ctx))
	assert.True(t, mr.Exists("lock:audience-upload:123"))

	require.NoError(t, a.Release(ctx))
	assert.False(t, mr.Exists("lock:audience-upload:123"))

	ok, err = b.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisLockExtend(t *testing.T) {
	ctx := context.Background()
	client, mr := setupRedis(t)

	l := NewRedisLock(client, "k", time.Second)
	ok, err := l.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, l.Extend(ctx, time.Minute))
	assert.Greater(t, mr.TTL("lock:k"), 30*time.Second)

	mr.FastForward(2 * time.Minute)
	assert.ErrorIs(t, l.Extend(ctx, time.Minute), ErrLockLost)
}

func TestRedisLockBackendDown(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	mr.Close()

	_, err = NewRedisLock(client, "k", time.Second).Acquire(context.Background())
	assert.Error(t, err)
}

func TestPGAdvisoryLock(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create sqlmock: %v", err)
	}
	defer db.Close()

	l := NewPGAdvisoryLock(db, "audience-upload:123")

	mock.ExpectQuery("SELECT pg_try_advisory_lock").
		WithArgs(l.lockID).
		WillReturnRows(sqlmock.NewRows([]string{"pg_try_advisory_lock"}).AddRow(true))
	mock.ExpectExec("SELECT pg_advisory_unlock").
		WithArgs(l.lockID).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := l.Acquire(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, l.Release(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())

	assert.Equal(t, l.lockID, NewPGAdvisoryLock(db, "audience-upload:123").lockID, "lock id is stable")
	assert.NotEqual(t, l.lockID, NewPGAdvisoryLock(db, "audience-upload:456").lockID)
}

func TestPGAdvisoryLockNotAcquired(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	l := NewPGAdvisoryLock(db, "busy")
	mock.ExpectQuery("SELECT pg_try_advisory_lock").
		WillReturnRows(sqlmock.NewRows([]string{"pg_try_advisory_lock"}).AddRow(false))

	ok, err := l.Acquire(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, l.Release(context.Background()), "release without ownership is a no-op")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewLockSelection(t *testing.T) {
	client, _ := setupRedis(t)
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	assert.IsType(t, &RedisLock{}, NewLock(client, db, "k", time.Second))
	assert.IsType(t, &PGAdvisoryLock{}, NewLock(nil, db, "k", time.Second))
	assert.IsType(t, NopLock{}, NewLock(nil, nil, "k", time.Second))
}

func TestWithLock(t *testing.T) {
	ctx := context.Background()
	client, mr := setupRedis(t)

	ran := false
	err := WithLock(ctx, NewRedisLock(client, "job", time.Minute), func(context.Context) error {
		ran = true
		assert.True(t, mr.Exists("lock:job"))
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)
	assert.False(t, mr.Exists("lock:job"), "released after fn")

	holder := NewRedisLock(client, "job", time.Minute)
	_, err = holder.Acquire(ctx)
	require.NoError(t, err)

	err = WithLock(ctx, NewRedisLock(client, "job", time.Minute), func(context.Context) error {
		t.Fatal("fn must not run while lock is held")
		return nil
	})
	assert.ErrorIs(t, err, ErrLockHeld)

	boom := errors.New("upload failed")
	err = WithLock(ctx, NopLock{}, func(context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)
}

func TestRenew(t *testing.T) {
	ctx := context.Background()
	client, mr := setupRedis(t)

	l := NewRedisLock(client, "audience-upload:9", 10*time.Second)
	ok, err := l.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(8 * time.Second)
	require.NoError(t, Renew(ctx, l, 10*time.Second))
	assert.Equal(t, 10*time.Second, mr.TTL("lock:audience-upload:9"))

	mr.FastForward(11 * time.Second)
	assert.ErrorIs(t, Renew(ctx, l, 10*time.Second), ErrLockLost)

	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	assert.NoError(t, Renew(ctx, NewPGAdvisoryLock(db, "k"), time.Second), "no queries for session locks")
	assert.NoError(t, Renew(ctx, NopLock{}, time.Second))
}
