package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-promotion-api/internal/models"
	appErrors "github.com/noah-isme/sma-promotion-api/pkg/errors"
)

func newCacheRepo(t *testing.T) (*CacheRepository, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCacheRepository(client), mr
}

func TestCacheRepositorySetGet(t *testing.T) {
	ctx := context.Background()
	repo, mr := newCacheRepo(t)
	roster := []models.RosterEntry{{StudentID: "stu-1", StudentName: "Ana", Classification: models.Classification{GradeLevel: "10", Section: "A"}}}

	require.NoError(t, repo.Set(ctx, "promotion:cache:roster:2024", roster, time.Minute))

	var got []models.RosterEntry
	require.NoError(t, repo.Get(ctx, "promotion:cache:roster:2024", &got))
	assert.Equal(t, roster, got)

	mr.FastForward(2 * time.Minute)
	assert.ErrorIs(t, repo.Get(ctx, "promotion:cache:roster:2024", &got), appErrors.ErrCacheMiss)
}

func TestCacheRepositoryCorruptPayload(t *testing.T) {
	repo, mr := newCacheRepo(t)
	require.NoError(t, mr.Set("promotion:cache:roster:2024", "{not json"))

	var got []models.RosterEntry
	err := repo.Get(context.Background(), "promotion:cache:roster:2024", &got)
	require.Error(t, err)
	assert.NotErrorIs(t, err, appErrors.ErrCacheMiss)
}

func TestCacheRepositoryWithoutClient(t *testing.T) {
	repo := NewCacheRepository(nil)
	var dest string
	assert.ErrorIs(t, repo.Get(context.Background(), "k", &dest), appErrors.ErrCacheMiss)
	assert.NoError(t, repo.Set(context.Background(), "k", "v", time.Minute))
}
