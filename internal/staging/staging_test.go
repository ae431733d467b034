package staging

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-promotion-api/internal/models"
)

type backend struct {
	store  Store
	ledger Ledger
}

func backends() map[string]func(*testing.T) backend {
	return map[string]func(*testing.T) backend{
		"memory": func(*testing.T) backend {
			return backend{store: NewMemoryStore(), ledger: NewMemoryLedger()}
		},
		"redis": func(t *testing.T) backend {
			mr := miniredis.RunT(t)
			client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			t.Cleanup(func() { _ = client.Close() })
			return backend{store: NewRedisStore(client, time.Hour), ledger: NewRedisLedger(client, time.Hour)}
		},
	}
}

var (
	keyA = models.SessionKey{SourceYearID: "2024", TargetYearID: "2025"}
	keyB = models.SessionKey{SourceYearID: "2023", TargetYearID: "2025"}
)

func TestStoreKeepsOneMappingPerStudent(t *testing.T) {
	ctx := context.Background()
	for name, build := range backends() {
		t.Run(name, func(t *testing.T) {
			b := build(t)

			prior, had, err := b.store.Stage(ctx, keyA, "stu-1", "class-a")
			require.NoError(t, err)
			assert.False(t, had)
			assert.Empty(t, prior)

			prior, had, err = b.store.Stage(ctx, keyA, "stu-1", "class-b")
			require.NoError(t, err)
			assert.True(t, had)
			assert.Equal(t, "class-a", prior)

			_, _, err = b.store.Stage(ctx, keyA, "stu-2", "class-b")
			require.NoError(t, err)

			all, err := b.store.All(ctx, keyA)
			require.NoError(t, err)
			assert.Equal(t, []models.StagedPlacement{
				{StudentID: "stu-1", ClassID: "class-b"},
				{StudentID: "stu-2", ClassID: "class-b"},
			}, all)

			countA, err := b.store.CountForClass(ctx, keyA, "class-a")
			require.NoError(t, err)
			assert.Zero(t, countA)
			countB, err := b.store.CountForClass(ctx, keyA, "class-b")
			require.NoError(t, err)
			assert.Equal(t, 2, countB)
		})
	}
}

func TestStoreUnstageAndGet(t *testing.T) {
	ctx := context.Background()
	for name, build := range backends() {
		t.Run(name, func(t *testing.T) {
			b := build(t)
			_, _, err := b.store.Stage(ctx, keyA, "stu-1", "class-a")
			require.NoError(t, err)

			classID, found, err := b.store.Get(ctx, keyA, "stu-1")
			require.NoError(t, err)
			assert.True(t, found)
			assert.Equal(t, "class-a", classID)

			removed, found, err := b.store.Unstage(ctx, keyA, "stu-1")
			require.NoError(t, err)
			assert.True(t, found)
			assert.Equal(t, "class-a", removed)

			_, found, err = b.store.Unstage(ctx, keyA, "stu-1")
			require.NoError(t, err)
			assert.False(t, found)

			_, found, err = b.store.Get(ctx, keyA, "stu-1")
			require.NoError(t, err)
			assert.False(t, found)
		})
	}
}

func TestStoreCountForTargetSpansWorkspaces(t *testing.T) {
	ctx := context.Background()
	for name, build := range backends() {
		t.Run(name, func(t *testing.T) {
			b := build(t)
			_, _, err := b.store.Stage(ctx, keyA, "stu-1", "class-a")
			require.NoError(t, err)
			_, _, err = b.store.Stage(ctx, keyB, "stu-9", "class-c")
			require.NoError(t, err)
			_, _, err = b.store.Stage(ctx, models.SessionKey{SourceYearID: "2025", TargetYearID: "2026"}, "stu-5", "class-z")
			require.NoError(t, err)

			total, err := b.store.CountForTarget(ctx, "2025")
			require.NoError(t, err)
			assert.Equal(t, 2, total)

			require.NoError(t, b.store.Discard(ctx, keyB))
			total, err = b.store.CountForTarget(ctx, "2025")
			require.NoError(t, err)
			assert.Equal(t, 1, total)
		})
	}
}

func TestLedgerIsLastInFirstOut(t *testing.T) {
	ctx := context.Background()
	for name, build := range backends() {
		t.Run(name, func(t *testing.T) {
			b := build(t)
			require.NoError(t, b.ledger.Push(ctx, keyA, StageEntry{StudentID: "stu-1", ClassID: "class-a"}))
			require.NoError(t, b.ledger.Push(ctx, keyA, UnstageEntry{StudentID: "stu-2", ClassID: "class-b"}))

			n, err := b.ledger.Len(ctx, keyA)
			require.NoError(t, err)
			assert.Equal(t, 2, n)

			entry, err := b.ledger.Pop(ctx, keyA)
			require.NoError(t, err)
			assert.Equal(t, UnstageEntry{StudentID: "stu-2", ClassID: "class-b"}, entry)

			entry, err = b.ledger.Pop(ctx, keyA)
			require.NoError(t, err)
			assert.Equal(t, StageEntry{StudentID: "stu-1", ClassID: "class-a"}, entry)

			_, err = b.ledger.Pop(ctx, keyA)
			assert.ErrorIs(t, err, ErrEmptyLedger)
		})
	}
}

func TestLedgerForgetDropsEntriesForStudents(t *testing.T) {
	ctx := context.Background()
	for name, build := range backends() {
		t.Run(name, func(t *testing.T) {
			b := build(t)
			require.NoError(t, b.ledger.Push(ctx, keyA, StageEntry{StudentID: "stu-1", ClassID: "class-a"}))
			require.NoError(t, b.ledger.Push(ctx, keyA, StageEntry{StudentID: "stu-2", ClassID: "class-a"}))
			require.NoError(t, b.ledger.Push(ctx, keyA, StageEntry{StudentID: "stu-1", ClassID: "class-b", PriorClassID: "class-a"}))

			require.NoError(t, b.ledger.Forget(ctx, keyA, "stu-1"))

			n, err := b.ledger.Len(ctx, keyA)
			require.NoError(t, err)
			assert.Equal(t, 1, n)
			entry, err := b.ledger.Pop(ctx, keyA)
			require.NoError(t, err)
			assert.Equal(t, "stu-2", entry.Student())
		})
	}
}

func TestRedisWorkspaceExpires(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	store := NewRedisStore(client, time.Minute)

	_, _, err := store.Stage(ctx, keyA, "stu-1", "class-a")
	require.NoError(t, err)
	mr.FastForward(2 * time.Minute)

	all, err := store.All(ctx, keyA)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestRedisWorkspaceAndHistoryExpireTogether(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	store := NewRedisStore(client, time.Minute)
	ledger := NewRedisLedger(client, time.Minute)

	for _, id := range []string{"stu-1", "stu-2"} {
		_, _, err := store.Stage(ctx, keyA, id, "class-a")
		require.NoError(t, err)
		require.NoError(t, ledger.Push(ctx, keyA, StageEntry{StudentID: id, ClassID: "class-a"}))
	}

	mr.FastForward(40 * time.Second)
	_, _, err := store.Unstage(ctx, keyA, "stu-1")
	require.NoError(t, err)
	assert.Equal(t, time.Minute, mr.TTL(stagingKey(keyA)))
	assert.Equal(t, time.Minute, mr.TTL(ledgerKey(keyA)))

	mr.FastForward(40 * time.Second)
	entry, err := ledger.Pop(ctx, keyA)
	require.NoError(t, err)
	assert.Equal(t, "stu-2", entry.Student())
	assert.Equal(t, time.Minute, mr.TTL(stagingKey(keyA)))
	assert.Equal(t, time.Minute, mr.TTL(ledgerKey(keyA)))

	mr.FastForward(40 * time.Second)
	all, err := store.All(ctx, keyA)
	require.NoError(t, err)
	assert.Len(t, all, 1)
	n, err := ledger.Len(ctx, keyA)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	mr.FastForward(2 * time.Minute)
	all, err = store.All(ctx, keyA)
	require.NoError(t, err)
	assert.Empty(t, all)
	n, err = ledger.Len(ctx, keyA)
	require.NoError(t, err)
	assert.Zero(t, n)
}
