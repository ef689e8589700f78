// Package cache keeps review snapshots for display. Entries expire after a
// fixed TTL and are never consulted for workflow decisions.
package cache

import (
	"fmt"
	"time"

	"github.com/garyjia/claim-review/internal/application/port"
)

// Config selects and sizes the review cache
type Config struct {
	Type          string // memory | redis | none
	TTL           time.Duration
	Size          int
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	KeyPrefix     string
}

// New creates the cache selected by cfg. Type "none" returns nil, nil.
func New(cfg Config) (port.ReviewCache, error) {
	switch cfg.Type {
	case "", "memory":
		return NewLRUCache(cfg.Size, cfg.TTL), nil
	case "redis":
		c, err := NewRedisCache(cfg)
		if err != nil {
			return nil, err
		}
		return c, nil
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported cache type: %s", cfg.Type)
	}
}
