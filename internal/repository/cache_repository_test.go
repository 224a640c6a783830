package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	appErrors "github.com/studiva/campus-portal-api/pkg/errors"
)

func newCacheRepo(t *testing.T) (*CacheRepository, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewCacheRepository(client, zap.NewNop()), mr
}

func TestCacheRepositorySetGet(t *testing.T) {
	repo, _ := newCacheRepo(t)
	ctx := context.Background()

	type payload struct {
		Count int `json:"count"`
	}
	require.NoError(t, repo.Set(ctx, "notifications:unread:user-1", payload{Count: 4}, time.Minute))

	var got payload
	require.NoError(t, repo.Get(ctx, "notifications:unread:user-1", &got))
	require.Equal(t, 4, got.Count)
}

func TestCacheRepositoryGetMiss(t *testing.T) {
	repo, _ := newCacheRepo(t)

	var got int
	err := repo.Get(context.Background(), "missing", &got)
	require.True(t, errors.Is(err, appErrors.ErrCacheMiss))
}

func TestCacheRepositoryDeleteByPattern(t *testing.T) {
	repo, mr := newCacheRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Set(ctx, "slots:svc-1:2026-09-10", []string{"09:00"}, time.Minute))
	require.NoError(t, repo.Set(ctx, "slots:svc-2:2026-09-10", []string{"09:30"}, time.Minute))
	require.NoError(t, repo.Set(ctx, "notifications:unread:user-1", 2, time.Minute))

	require.NoError(t, repo.DeleteByPattern(ctx, "slots:*"))
	require.False(t, mr.Exists("slots:svc-1:2026-09-10"))
	require.False(t, mr.Exists("slots:svc-2:2026-09-10"))
	require.True(t, mr.Exists("notifications:unread:user-1"))
}

func TestCacheRepositoryNilClient(t *testing.T) {
	repo := NewCacheRepository(nil, zap.NewNop())
	ctx := context.Background()

	var got int
	err := repo.Get(ctx, "anything", &got)
	require.True(t, errors.Is(err, appErrors.ErrCacheMiss))
	require.NoError(t, repo.Set(ctx, "anything", 1, time.Minute))
	require.NoError(t, repo.Delete(ctx, "anything"))
}
