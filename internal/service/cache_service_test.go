package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/sma-promotion-api/pkg/errors"
)

type brokenCache struct {
	getErr error
	sets   int
}

func (b *brokenCache) Get(ctx context.Context, key string, dest interface{}) error { return b.getErr }

func (b *brokenCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	b.sets++
	return errors.New("read-only replica")
}

func TestRememberFallsBackToLoader(t *testing.T) {
	repo := &brokenCache{getErr: errors.New("connection reset")}
	cache := NewCacheService(repo, nil, 0, nil, true)

	loads := 0
	got, err := Remember(context.Background(), cache, CacheKey("roster", "2024"), 0, func(context.Context) ([]string, error) {
		loads++
		return []string{"stu-1"}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"stu-1"}, got)
	assert.Equal(t, 1, loads)
	assert.Equal(t, 1, repo.sets)
}

func TestRememberDisabledNeverTouchesRepository(t *testing.T) {
	repo := &brokenCache{getErr: appErrors.ErrCacheMiss}
	for _, cache := range []*CacheService{nil, NewCacheService(repo, nil, 0, nil, false)} {
		got, err := Remember(context.Background(), cache, "k", time.Minute, func(context.Context) (int, error) { return 7, nil })
		require.NoError(t, err)
		assert.Equal(t, 7, got)
	}
	assert.Zero(t, repo.sets)
}

func TestRememberReturnsLoaderError(t *testing.T) {
	cache := NewCacheService(&brokenCache{getErr: appErrors.ErrCacheMiss}, nil, 0, nil, true)
	_, err := Remember(context.Background(), cache, "k", 0, func(context.Context) (int, error) {
		return 0, appErrors.ErrNotFound
	})
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestCacheKeyNamespace(t *testing.T) {
	assert.Equal(t, "promotion:cache:roster:2024", CacheKey("roster", "2024"))
}
