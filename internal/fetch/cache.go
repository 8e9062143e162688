package fetch

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CachingFetcher keeps the most recent raw documents in memory so a retried
// stage does not download the same page again.
type CachingFetcher struct {
	next  DocumentFetcher
	cache *lru.Cache[string, string]
}

func NewCachingFetcher(next DocumentFetcher, size int) (*CachingFetcher, error) {
	cache, err := lru.New[string, string](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create fetch cache: %w", err)
	}
	return &CachingFetcher{next: next, cache: cache}, nil
}

func (c *CachingFetcher) Fetch(ctx context.Context, url string) (string, error) {
	if raw, ok := c.cache.Get(url); ok {
		return raw, nil
	}
	raw, err := c.next.Fetch(ctx, url)
	if err != nil {
		return "", err
	}
	c.cache.Add(url, raw)
	return raw, nil
}

func (c *CachingFetcher) Len() int { return c.cache.Len() }
