package staging

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/sma-promotion-api/internal/models"
)

const (
	stagingKeyPrefix = "promotion:staging:"
	ledgerKeyPrefix  = "promotion:undo:"
)

// The scripts below touch the workspace hash and the undo list of one session
// key and refresh the expiry of both, so the pair always expires together.

// Returns the prior value (nil when absent) and writes the new one.
var stageScript = redis.NewScript(`
local prior = redis.call('HGET', KEYS[1], ARGV[1])
redis.call('HSET', KEYS[1], ARGV[1], ARGV[2])
local ttl = tonumber(ARGV[3])
if ttl > 0 then
  redis.call('PEXPIRE', KEYS[1], ttl)
  redis.call('PEXPIRE', KEYS[2], ttl)
end
return prior
`)

var unstageScript = redis.NewScript(`
local prior = redis.call('HGET', KEYS[1], ARGV[1])
if prior then redis.call('HDEL', KEYS[1], ARGV[1]) end
local ttl = tonumber(ARGV[2])
if ttl > 0 then
  redis.call('PEXPIRE', KEYS[1], ttl)
  redis.call('PEXPIRE', KEYS[2], ttl)
end
return prior
`)

var popScript = redis.NewScript(`
local entry = redis.call('RPOP', KEYS[1])
local ttl = tonumber(ARGV[1])
if entry and ttl > 0 then
  redis.call('PEXPIRE', KEYS[1], ttl)
  redis.call('PEXPIRE', KEYS[2], ttl)
end
return entry
`)

func stagingKey(key models.SessionKey) string {
	return stagingKeyPrefix + key.SourceYearID + ":" + key.TargetYearID
}

func ledgerKey(key models.SessionKey) string {
	return ledgerKeyPrefix + key.SourceYearID + ":" + key.TargetYearID
}

// RedisStore keeps each workspace in a Redis hash so several API replicas can
// serve the same operator. Workspaces expire after ttl of inactivity.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore constructs a RedisStore. A non-positive ttl disables expiry.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

// Stage implements Store.
func (s *RedisStore) Stage(ctx context.Context, key models.SessionKey, studentID, classID string) (string, bool, error) {
	prior, err := stageScript.Run(ctx, s.client, []string{stagingKey(key), ledgerKey(key)}, studentID, classID, s.ttl.Milliseconds()).Text()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("redis stage %s: %w", studentID, err)
	}
	return prior, true, nil
}

// Unstage implements Store.
func (s *RedisStore) Unstage(ctx context.Context, key models.SessionKey, studentID string) (string, bool, error) {
	removed, err := unstageScript.Run(ctx, s.client, []string{stagingKey(key), ledgerKey(key)}, studentID, s.ttl.Milliseconds()).Text()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("redis unstage %s: %w", studentID, err)
	}
	return removed, true, nil
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, key models.SessionKey, studentID string) (string, bool, error) {
	classID, err := s.client.HGet(ctx, stagingKey(key), studentID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("redis get staged %s: %w", studentID, err)
	}
	return classID, true, nil
}

// All implements Store.
func (s *RedisStore) All(ctx context.Context, key models.SessionKey) ([]models.StagedPlacement, error) {
	values, err := s.client.HGetAll(ctx, stagingKey(key)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list staged %s: %w", key, err)
	}
	placements := make([]models.StagedPlacement, 0, len(values))
	for studentID, classID := range values {
		placements = append(placements, models.StagedPlacement{StudentID: studentID, ClassID: classID})
	}
	sortPlacements(placements)
	return placements, nil
}

// CountForClass implements Store.
func (s *RedisStore) CountForClass(ctx context.Context, key models.SessionKey, classID string) (int, error) {
	values, err := s.client.HVals(ctx, stagingKey(key)).Result()
	if err != nil {
		return 0, fmt.Errorf("redis count staged %s: %w", key, err)
	}
	count := 0
	for _, staged := range values {
		if staged == classID {
			count++
		}
	}
	return count, nil
}

// CountForTarget implements Store.
func (s *RedisStore) CountForTarget(ctx context.Context, targetYearID string) (int, error) {
	pattern := stagingKeyPrefix + "*:" + targetYearID
	suffix := ":" + targetYearID
	total := 0
	iter := s.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		k := iter.Val()
		if !strings.HasSuffix(k, suffix) {
			continue
		}
		n, err := s.client.HLen(ctx, k).Result()
		if err != nil {
			return 0, fmt.Errorf("redis count %s: %w", k, err)
		}
		total += int(n)
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("redis scan pattern %s: %w", pattern, err)
	}
	return total, nil
}

// Discard implements Store.
func (s *RedisStore) Discard(ctx context.Context, key models.SessionKey) error {
	if err := s.client.Del(ctx, stagingKey(key)).Err(); err != nil {
		return fmt.Errorf("redis discard %s: %w", key, err)
	}
	return nil
}

// RedisLedger keeps each undo stack in a Redis list (tail is most recent).
// Its ttl should match the RedisStore of the same workspaces.
type RedisLedger struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisLedger constructs a RedisLedger. A non-positive ttl disables expiry.
func NewRedisLedger(client *redis.Client, ttl time.Duration) *RedisLedger {
	return &RedisLedger{client: client, ttl: ttl}
}

// Push implements Ledger.
func (l *RedisLedger) Push(ctx context.Context, key models.SessionKey, entry Entry) error {
	payload, err := encodeEntry(entry)
	if err != nil {
		return err
	}
	k := ledgerKey(key)
	_, err = l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, k, payload)
		l.touch(ctx, pipe, key)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis push ledger %s: %w", key, err)
	}
	return nil
}

// Pop implements Ledger.
func (l *RedisLedger) Pop(ctx context.Context, key models.SessionKey) (Entry, error) {
	raw, err := popScript.Run(ctx, l.client, []string{ledgerKey(key), stagingKey(key)}, l.ttl.Milliseconds()).Text()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrEmptyLedger
		}
		return nil, fmt.Errorf("redis pop ledger %s: %w", key, err)
	}
	return decodeEntry([]byte(raw))
}

// touch extends the undo list and the workspace hash of key to the full ttl.
func (l *RedisLedger) touch(ctx context.Context, pipe redis.Pipeliner, key models.SessionKey) {
	if l.ttl <= 0 {
		return
	}
	pipe.PExpire(ctx, ledgerKey(key), l.ttl)
	pipe.PExpire(ctx, stagingKey(key), l.ttl)
}

// Forget implements Ledger.
func (l *RedisLedger) Forget(ctx context.Context, key models.SessionKey, studentIDs ...string) error {
	if len(studentIDs) == 0 {
		return nil
	}
	drop := make(map[string]struct{}, len(studentIDs))
	for _, id := range studentIDs {
		drop[id] = struct{}{}
	}
	k := ledgerKey(key)
	items, err := l.client.LRange(ctx, k, 0, -1).Result()
	if err != nil {
		return fmt.Errorf("redis read ledger %s: %w", key, err)
	}
	stale := make(map[string]struct{})
	for _, raw := range items {
		entry, err := decodeEntry([]byte(raw))
		if err != nil {
			return err
		}
		if _, ok := drop[entry.Student()]; ok {
			stale[raw] = struct{}{}
		}
	}
	if len(stale) == 0 {
		return nil
	}
	_, err = l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for raw := range stale {
			pipe.LRem(ctx, k, 0, raw)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis forget ledger %s: %w", key, err)
	}
	return nil
}

// Clear implements Ledger.
func (l *RedisLedger) Clear(ctx context.Context, key models.SessionKey) error {
	if err := l.client.Del(ctx, ledgerKey(key)).Err(); err != nil {
		return fmt.Errorf("redis clear ledger %s: %w", key, err)
	}
	return nil
}

// Len implements Ledger.
func (l *RedisLedger) Len(ctx context.Context, key models.SessionKey) (int, error) {
	n, err := l.client.LLen(ctx, ledgerKey(key)).Result()
	if err != nil {
		return 0, fmt.Errorf("redis ledger length %s: %w", key, err)
	}
	return int(n), nil
}
