package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"

	"bakehouse/backend/internal/domain"
)

const staffKeyPrefix = "bakehouse:staff:"

type RedisStaffCache struct {
	client *redis.Client
}

func NewRedisStaffCache(client *redis.Client) *RedisStaffCache {
	return &RedisStaffCache{client: client}
}

func (c *RedisStaffCache) Get(ctx context.Context, id string) (*domain.StaffMember, bool, error) {
	val, err := c.client.Get(ctx, staffKeyPrefix+id).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var member domain.StaffMember
	if err := json.Unmarshal([]byte(val), &member); err != nil {
		return nil, false, err
	}
	return &member, true, nil
}

func (c *RedisStaffCache) Set(ctx context.Context, member domain.StaffMember, ttl time.Duration) error {
	payload, err := json.Marshal(member)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, staffKeyPrefix+member.ID, payload, ttl).Err()
}

func (c *RedisStaffCache) Delete(ctx context.Context, id string) error {
	return c.client.Del(ctx, staffKeyPrefix+id).Err()
}
