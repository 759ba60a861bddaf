package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/Guyuepp/pretty-like/domain"
	"github.com/Guyuepp/pretty-like/internal/metrics"
)

// TieredCache puts a bounded TTL-based local tier in front of a hash-structured
// backing store. Values only enter the local tier once the detector reports
// their key as hot.
type TieredCache struct {
	local    *expirable.LRU[string, string]
	remote   domain.HashGetter
	detector domain.HotKeyDetector
}

func NewTieredCache(remote domain.HashGetter, detector domain.HotKeyDetector, size int, ttl time.Duration) *TieredCache {
	return &TieredCache{
		local:    expirable.NewLRU[string, string](size, nil, ttl),
		remote:   remote,
		detector: detector,
	}
}

func compositeKey(namespace, field string) string {
	return namespace + ":" + field
}

// Get returns the value and whether it was found. A miss in both tiers is not
// an error.
func (c *TieredCache) Get(ctx context.Context, namespace, field string) (string, bool, error) {
	key := compositeKey(namespace, field)
	if v, ok := c.local.Get(key); ok {
		metrics.LocalCacheHits.Inc()
		c.detector.Add(key, 1)
		return v, true, nil
	}
	metrics.LocalCacheMisses.Inc()

	v, err := c.remote.HGet(ctx, namespace, field)
	if errors.Is(err, domain.ErrCacheMiss) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("tiered get %s: %w", key, err)
	}

	if c.detector.Add(key, 1).Hot {
		c.local.Add(key, v)
		metrics.LocalCachePromotions.Inc()
	}
	return v, true, nil
}

// PutIfPresent refreshes a value already held in the local tier. It never
// inserts.
func (c *TieredCache) PutIfPresent(namespace, field, value string) {
	key := compositeKey(namespace, field)
	if _, ok := c.local.Peek(key); ok {
		c.local.Add(key, value)
	}
}

// Len is the number of entries resident in the local tier.
func (c *TieredCache) Len() int {
	return c.local.Len()
}
