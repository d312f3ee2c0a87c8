package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gamassss/shortlink/internal/domain"
	"github.com/redis/go-redis/v9"
)

// LinkCache caches links by short key. Links never change once created, so
// entries only leave the cache through TTL expiry.
type LinkCache struct {
	client *redis.Client
}

func NewLinkCache(client *redis.Client) *LinkCache {
	return &LinkCache{client: client}
}

func linkKey(shortKey string) string {
	return fmt.Sprintf("link:%s", shortKey)
}

func (r *LinkCache) GetLink(ctx context.Context, shortKey string) (*domain.Link, error) {
	data, err := r.client.Get(ctx, linkKey(shortKey)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var link domain.Link
	if err := json.Unmarshal(data, &link); err != nil {
		return nil, err
	}

	return &link, nil
}

func (r *LinkCache) SetLink(ctx context.Context, link *domain.Link, ttl time.Duration) error {
	data, err := json.Marshal(link)
	if err != nil {
		return err
	}

	return r.client.Set(ctx, linkKey(link.Short), data, ttl).Err()
}
