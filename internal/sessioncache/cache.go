// Package sessioncache tracks server-side session markers in redis so
// "logout everywhere" can invalidate state beyond the cookie/registry pair.
// The client is optional: without redis every operation is a no-op, and the
// logout path never fails because of it.
package sessioncache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type Cache struct {
	client *redis.Client
}

func New(client *redis.Client) *Cache {
	return &Cache{client: client}
}

func sessionKey(principalID, recordID string) string {
	return fmt.Sprintf("sessions:%s:%s", principalID, recordID)
}

func indexKey(principalID string) string {
	return fmt.Sprintf("sessions:%s", principalID)
}

// Track registers a session marker at issuance with the refresh ttl.
func (c *Cache) Track(ctx context.Context, principalID, recordID string, ttl time.Duration) error {
	if c == nil || c.client == nil {
		return nil
	}
	pipe := c.client.TxPipeline()
	pipe.Set(ctx, sessionKey(principalID, recordID), "1", ttl)
	pipe.SAdd(ctx, indexKey(principalID), recordID)
	pipe.Expire(ctx, indexKey(principalID), ttl)
	_, err := pipe.Exec(ctx)
	return err
}

// InvalidateSession removes one session marker.
func (c *Cache) InvalidateSession(ctx context.Context, principalID, recordID string) error {
	if c == nil || c.client == nil {
		return nil
	}
	pipe := c.client.TxPipeline()
	pipe.Del(ctx, sessionKey(principalID, recordID))
	pipe.SRem(ctx, indexKey(principalID), recordID)
	_, err := pipe.Exec(ctx)
	return err
}

// InvalidatePrincipal removes every marker for the principal.
func (c *Cache) InvalidatePrincipal(ctx context.Context, principalID string) error {
	if c == nil || c.client == nil {
		return nil
	}
	recordIDs, err := c.client.SMembers(ctx, indexKey(principalID)).Result()
	if err != nil && err != redis.Nil {
		return err
	}
	keys := make([]string, 0, len(recordIDs)+1)
	for _, recordID := range recordIDs {
		keys = append(keys, sessionKey(principalID, recordID))
	}
	keys = append(keys, indexKey(principalID))
	return c.client.Del(ctx, keys...).Err()
}

// Active reports whether a session marker exists. Without redis the answer
// is always true so the registry remains the source of truth.
func (c *Cache) Active(ctx context.Context, principalID, recordID string) (bool, error) {
	if c == nil || c.client == nil {
		return true, nil
	}
	n, err := c.client.Exists(ctx, sessionKey(principalID, recordID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
