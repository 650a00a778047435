package debt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache wraps Redis based caching of customer debt summaries. A nil Cache or
// client degrades to loading straight from the database.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache instantiates the cache helper.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func summaryKey(customerID int64) string {
	return fmt.Sprintf("debt:summary:%d", customerID)
}

// FetchSummary loads a cached summary or populates it using the loader.
func (c *Cache) FetchSummary(ctx context.Context, customerID int64, loader func(context.Context) (Summary, error)) (Summary, error) {
	if loader == nil {
		return Summary{}, errors.New("cache: loader required")
	}
	if c == nil || c.client == nil {
		return loader(ctx)
	}
	key := summaryKey(customerID)
	payload, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var summary Summary
		if err := json.Unmarshal(payload, &summary); err == nil {
			return summary, nil
		}
		// Corrupt entry: fall through and rebuild.
	} else if err != redis.Nil {
		return Summary{}, err
	}
	summary, err := loader(ctx)
	if err != nil {
		return Summary{}, err
	}
	raw, err := json.Marshal(summary)
	if err != nil {
		return Summary{}, err
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		return Summary{}, err
	}
	return summary, nil
}

// Invalidate drops the cached summary after any write touching the customer.
func (c *Cache) Invalidate(ctx context.Context, customerID int64) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Del(ctx, summaryKey(customerID)).Err()
}
