package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// CodeReserver claims room codes across instances with a liveness key per code.
// Claims are stored as: SET quiz:room:{code} 1 NX EX ttl
type CodeReserver struct {
	client *redis.Client
	ttl    time.Duration
}

func NewCodeReserver(client *redis.Client, ttl time.Duration) *CodeReserver {
	return &CodeReserver{client: client, ttl: ttl}
}

func (c *CodeReserver) Reserve(ctx context.Context, code string) (bool, error) {
	ok, err := c.client.SetNX(ctx, c.key(code), "1", c.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("reserve code %s: %w", code, err)
	}
	return ok, nil
}

func (c *CodeReserver) Release(ctx context.Context, code string) error {
	if err := c.client.Del(ctx, c.key(code)).Err(); err != nil {
		return fmt.Errorf("release code %s: %w", code, err)
	}
	return nil
}

func (c *CodeReserver) key(code string) string {
	return "quiz:room:" + code
}
