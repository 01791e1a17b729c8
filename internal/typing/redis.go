package typing

import (
	"context"
	"sort"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

func typingKey(conversationID string) string { return "typing:" + conversationID }

// RedisStore keeps a sorted set per conversation scored by each member's
// expiry (unix ms). The key itself carries a TTL so an idle set disappears
// without any reader.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
	now func() time.Time
}

func NewRedisStore(rdb *redis.Client, ttl time.Duration, now func() time.Time) *RedisStore {
	if now == nil {
		now = time.Now
	}
	return &RedisStore{rdb: rdb, ttl: ttl, now: now}
}

func (s *RedisStore) Start(ctx context.Context, conversationID, userID string) error {
	key := typingKey(conversationID)
	expiry := s.now().Add(s.ttl).UnixMilli()
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, key, &redis.Z{Score: float64(expiry), Member: userID})
		pipe.PExpire(ctx, key, s.ttl)
		return nil
	})
	return err
}

func (s *RedisStore) Stop(ctx context.Context, conversationID, userID string) error {
	return s.rdb.ZRem(ctx, typingKey(conversationID), userID).Err()
}

func (s *RedisStore) List(ctx context.Context, conversationID string) ([]string, error) {
	key := typingKey(conversationID)
	now := strconv.FormatInt(s.now().UnixMilli(), 10)

	var members *redis.StringSliceCmd
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, key, "-inf", now)
		members = pipe.ZRange(ctx, key, 0, -1)
		return nil
	})
	if err != nil {
		return nil, err
	}
	out := append([]string{}, members.Val()...)
	sort.Strings(out)
	return out, nil
}
