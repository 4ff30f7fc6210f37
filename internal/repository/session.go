package repository

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	errs "givetrack/internal/errors"
)

type RedisSessionStorage struct {
	client *redis.Client
	ttl    time.Duration
}

func NewSessionRedisStorage(client *redis.Client, ttl time.Duration) *RedisSessionStorage {
	return &RedisSessionStorage{
		client: client,
		ttl:    ttl,
	}
}

func sessionKey(sessionID string) string {
	return "session:" + sessionID
}

func (r *RedisSessionStorage) GetUserIdBySession(ctx context.Context, sessionID string) (string, error) {
	v, err := r.client.Get(ctx, sessionKey(sessionID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", errs.ErrSessionNotFound
		}
		return "", err
	}
	return v, nil
}

func (r *RedisSessionStorage) StoreSession(ctx context.Context, sessionID string, userID string) error {
	return r.client.Set(ctx, sessionKey(sessionID), userID, r.ttl).Err()
}

func (r *RedisSessionStorage) DeleteSession(ctx context.Context, sessionID string) error {
	n, err := r.client.Del(ctx, sessionKey(sessionID)).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return errs.ErrSessionNotFound
	}
	return nil
}
