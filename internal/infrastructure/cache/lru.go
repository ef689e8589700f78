package cache

import (
	"context"
	"time"

	"github.com/garyjia/claim-review/internal/application/port"
	"github.com/garyjia/claim-review/internal/domain/entity"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// LRUCache is an in-process review cache with size and TTL bounds
type LRUCache struct {
	lru *expirable.LRU[string, entity.ReviewSnapshot]
}

var _ port.ReviewCache = (*LRUCache)(nil)

// NewLRUCache creates a cache holding at most size snapshots for ttl each
func NewLRUCache(size int, ttl time.Duration) *LRUCache {
	if size <= 0 {
		size = 10000
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &LRUCache{lru: expirable.NewLRU[string, entity.ReviewSnapshot](size, nil, ttl)}
}

// Get returns a copy of the cached snapshot
func (c *LRUCache) Get(ctx context.Context, claimID string) (*entity.ReviewSnapshot, bool, error) {
	snap, ok := c.lru.Get(claimID)
	if !ok {
		return nil, false, nil
	}
	return cloneSnapshot(&snap), true, nil
}

// Set stores a copy of the snapshot
func (c *LRUCache) Set(ctx context.Context, snapshot *entity.ReviewSnapshot) error {
	c.lru.Add(snapshot.ClaimID, *cloneSnapshot(snapshot))
	return nil
}

// Invalidate drops the claim's snapshot
func (c *LRUCache) Invalidate(ctx context.Context, claimID string) error {
	c.lru.Remove(claimID)
	return nil
}

// Len returns the number of live entries
func (c *LRUCache) Len() int {
	return c.lru.Len()
}

func cloneSnapshot(s *entity.ReviewSnapshot) *entity.ReviewSnapshot {
	cp := *s
	cp.Alerts = append([]entity.Alert(nil), s.Alerts...)
	return &cp
}
