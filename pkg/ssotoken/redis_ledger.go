package ssotoken

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisClient is the subset of go-redis used by RedisLedger.
type RedisClient interface {
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
	Get(ctx context.Context, key string) *redis.StringCmd
}

// RedisLedger keeps usage records in Redis with SET NX and a TTL, so records
// expire on their own.
type RedisLedger struct {
	client RedisClient
	prefix string
}

// NewRedisLedger keeps usage under prefix plus the token hash.
func NewRedisLedger(client RedisClient, prefix string) *RedisLedger {
	if prefix == "" {
		prefix = "sso:usage:"
	}
	return &RedisLedger{client: client, prefix: prefix}
}

// Claim stores u with SET NX and u.ExpiresAt as the key TTL.
func (l *RedisLedger) Claim(ctx context.Context, u Usage) (*Usage, error) {
	body, err := json.Marshal(u)
	if err != nil {
		return nil, err
	}
	ttl := u.ExpiresAt.Sub(u.UsedAt)
	if ttl <= 0 {
		ttl = time.Minute
	}

	key := l.prefix + u.TokenHash
	created, err := l.client.SetNX(ctx, key, body, ttl).Result()
	if err != nil {
		return nil, err
	}
	if created {
		return nil, nil
	}

	raw, err := l.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrAlreadyClaimed
	}
	if err != nil {
		return nil, err
	}
	var existing Usage
	if err := json.Unmarshal(raw, &existing); err != nil {
		return nil, ErrAlreadyClaimed
	}
	return &existing, ErrAlreadyClaimed
}
