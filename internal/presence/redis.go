package presence

import (
	"context"
	"errors"

	"github.com/go-redis/redis/v8"
)

const onlineUsersKey = "online_users"

func socketKey(connID string) string { return "socket:" + connID }

// KEYS[1] = online users hash, KEYS[2] = socket key
// ARGV[1] = userID, ARGV[2] = connID
var setOfflineScript = redis.NewScript(`
if redis.call("HGET", KEYS[1], ARGV[1]) == ARGV[2] then
  redis.call("HDEL", KEYS[1], ARGV[1])
end
redis.call("DEL", KEYS[2])
return 1
`)

type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func (s *RedisStore) SetOnline(ctx context.Context, userID, connID string) error {
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, onlineUsersKey, userID, connID)
		pipe.Set(ctx, socketKey(connID), userID, 0)
		return nil
	})
	return err
}

func (s *RedisStore) SetOffline(ctx context.Context, userID, connID string) error {
	return setOfflineScript.Run(ctx, s.rdb, []string{onlineUsersKey, socketKey(connID)}, userID, connID).Err()
}

func (s *RedisStore) Connection(ctx context.Context, userID string) (string, bool, error) {
	connID, err := s.rdb.HGet(ctx, onlineUsersKey, userID).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return connID, true, nil
}

func (s *RedisStore) User(ctx context.Context, connID string) (string, bool, error) {
	userID, err := s.rdb.Get(ctx, socketKey(connID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return userID, true, nil
}

func (s *RedisStore) Online(ctx context.Context) (map[string]string, error) {
	return s.rdb.HGetAll(ctx, onlineUsersKey).Result()
}
