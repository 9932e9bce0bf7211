package storage

import (
	"context"
	stderrors "errors"

	"spamfightbot/internal/errors"

	"github.com/redis/go-redis/v9"
)

// RedisHashKey is the hash holding every stored pair
const RedisHashKey = "spamfightbot:store"

// RedisStore keeps pairs as fields of one Redis hash
type RedisStore struct {
	client *redis.Client
	hash   string
}

// NewRedisStore connects using a redis:// or rediss:// URL
func NewRedisStore(ctx context.Context, dsn string) (*RedisStore, error) {
	opts, err := redis.ParseURL(dsn)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInvalidConfig, "invalid redis URL")
	}
	return NewRedisStoreFromClient(ctx, redis.NewClient(opts))
}

// NewRedisStoreFromClient wraps an existing client and checks the connection
func NewRedisStoreFromClient(ctx context.Context, client *redis.Client) (*RedisStore, error) {
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseConnection, "failed to ping redis")
	}
	return &RedisStore{client: client, hash: RedisHashKey}, nil
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := s.client.HGet(ctx, s.hash, key).Result()
	if stderrors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.NewDatabaseError("get", err).WithContext("key", key)
	}
	return value, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key, value string) error {
	if err := s.client.HSet(ctx, s.hash, key, value).Err(); err != nil {
		return errors.NewDatabaseError("set", err).WithContext("key", key)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.HDel(ctx, s.hash, key).Err(); err != nil {
		return errors.NewDatabaseError("delete", err).WithContext("key", key)
	}
	return nil
}

// Apply runs the writes inside MULTI/EXEC
func (s *RedisStore) Apply(ctx context.Context, sets map[string]string, deletes []string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if len(sets) > 0 {
			values := make([]any, 0, 2*len(sets))
			for k, v := range sets {
				values = append(values, k, v)
			}
			pipe.HSet(ctx, s.hash, values...)
		}
		if len(deletes) > 0 {
			pipe.HDel(ctx, s.hash, deletes...)
		}
		return nil
	})
	if err != nil {
		return errors.NewDatabaseError("apply", err)
	}
	return nil
}

func (s *RedisStore) All(ctx context.Context) (map[string]string, error) {
	values, err := s.client.HGetAll(ctx, s.hash).Result()
	if err != nil {
		return nil, errors.NewDatabaseError("scan", err)
	}
	return values, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
