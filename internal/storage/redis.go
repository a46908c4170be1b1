package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/flyspark015/nexacat/internal/domain"
	"github.com/flyspark015/nexacat/pkg/utils"
	"github.com/redis/go-redis/v9"
)

const pageKeyPrefix = "page:"

// PageCache keeps fetched pages in Redis so repeated extractions of the
// same URL skip the proxies.
type PageCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewPageCache(addr string, ttl time.Duration) *PageCache {
	return NewPageCacheFromClient(redis.NewClient(&redis.Options{Addr: addr}), ttl)
}

func NewPageCacheFromClient(client *redis.Client, ttl time.Duration) *PageCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &PageCache{client: client, ttl: ttl}
}

func (c *PageCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *PageCache) Close() error {
	return c.client.Close()
}

func key(rawURL string) string {
	return fmt.Sprintf("%s%s", pageKeyPrefix, utils.HashURL(rawURL))
}

// Load returns (nil, nil) on a miss.
func (c *PageCache) Load(ctx context.Context, rawURL string) (*domain.FetchedPage, error) {
	b, err := c.client.Get(ctx, key(rawURL)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var page domain.FetchedPage
	if err := json.Unmarshal(b, &page); err != nil {
		// Corrupt entries are dropped and treated as a miss.
		c.client.Del(ctx, key(rawURL))
		return nil, nil
	}
	return &page, nil
}

func (c *PageCache) Store(ctx context.Context, rawURL string, page *domain.FetchedPage) error {
	b, err := json.Marshal(page)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key(rawURL), b, c.ttl).Err()
}

// Forget removes a cached page so the next extraction refetches it.
func (c *PageCache) Forget(ctx context.Context, rawURL string) error {
	return c.client.Del(ctx, key(rawURL)).Err()
}
