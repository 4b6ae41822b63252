package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
)

// RedisStore shares a session between hosts through Redis. A zero ttl keeps
// the key until it is cleared.
type RedisStore struct {
	redis   *redis.Client
	profile string
	ttl     time.Duration
}

func NewRedisStore(client *redis.Client, profile string, ttl time.Duration) *RedisStore {
	if client == nil {
		panic("session.NewRedisStore: redis client is nil")
	}
	if profile == "" {
		profile = "default"
	}
	if ttl < 0 {
		ttl = 0
	}
	return &RedisStore{redis: client, profile: profile, ttl: ttl}
}

func (r *RedisStore) Load(ctx context.Context) (Session, error) {
	data, err := r.redis.Get(ctx, sessionKey(r.profile)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Session{}, ErrNoSession
	}
	if err != nil {
		return Session{}, fmt.Errorf("load session: %w", err)
	}
	var s Session
	if err := sonic.Unmarshal(data, &s); err != nil {
		_ = r.redis.Del(ctx, sessionKey(r.profile)).Err()
		return Session{}, ErrNoSession
	}
	return s, nil
}

func (r *RedisStore) Save(ctx context.Context, s Session) error {
	data, err := sonic.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := r.redis.Set(ctx, sessionKey(r.profile), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (r *RedisStore) Clear(ctx context.Context) error {
	return r.redis.Del(ctx, sessionKey(r.profile)).Err()
}

func sessionKey(profile string) string {
	return "taskflow:session:" + profile
}
