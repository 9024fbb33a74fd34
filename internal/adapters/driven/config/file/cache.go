package file

import (
	"sync"
	"time"

	"github.com/jltournay/farmer-power-knowledge/internal/core/domain"
	"github.com/jltournay/farmer-power-knowledge/internal/core/ports/driven"
	"github.com/jltournay/farmer-power-knowledge/internal/logger"
)

// Ensure Cache implements the interface.
var _ driven.RankingConfigProvider = (*Cache)(nil)

// DefaultCacheTTL is how long a loaded config is served before re-reading.
const DefaultCacheTTL = time.Minute

// Cache serves the last good Config and re-reads the file once the TTL
// expires or after Invalidate. A file that fails to load leaves the
// previous Config in place.
type Cache struct {
	path string
	ttl  time.Duration
	now  func() time.Time

	mu       sync.RWMutex
	cfg      *Config
	loadedAt time.Time
	stale    bool
	hooks    []func(*Config)
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithCacheTTL sets the reload interval. Zero or negative keeps the default.
func WithCacheTTL(ttl time.Duration) CacheOption {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithCacheClock overrides the time source.
func WithCacheClock(now func() time.Time) CacheOption {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// NewCache loads path and returns a cache over it. The initial load must
// succeed.
func NewCache(path string, opts ...CacheOption) (*Cache, error) {
	c := &Cache{
		path: path,
		ttl:  DefaultCacheTTL,
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	c.cfg = cfg
	c.loadedAt = c.now()
	return c, nil
}

// Path returns the watched file path.
func (c *Cache) Path() string {
	return c.path
}

// Get returns the current Config. The result is shared and must be
// treated as read-only.
func (c *Cache) Get() *Config {
	c.mu.RLock()
	fresh := !c.stale && c.now().Sub(c.loadedAt) < c.ttl
	cfg := c.cfg
	c.mu.RUnlock()
	if fresh {
		return cfg
	}

	if err := c.Reload(); err != nil {
		logger.Warn("config: reload failed, keeping previous config", "path", c.path, "error", err)
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg
}

// Reload re-reads the file now. On failure the previous Config stays
// active until the next TTL expiry.
func (c *Cache) Reload() error {
	cfg, err := Load(c.path)

	c.mu.Lock()
	c.loadedAt = c.now()
	c.stale = false
	if err != nil {
		c.mu.Unlock()
		return err
	}
	c.cfg = cfg
	hooks := make([]func(*Config), len(c.hooks))
	copy(hooks, c.hooks)
	c.mu.Unlock()

	logger.Debug("config: reloaded", "path", c.path)
	for _, fn := range hooks {
		fn(cfg)
	}
	return nil
}

// Invalidate forces the next Get to re-read the file.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.stale = true
	c.mu.Unlock()
}

// OnReload registers fn to run after every successful reload.
func (c *Cache) OnReload(fn func(*Config)) {
	c.mu.Lock()
	c.hooks = append(c.hooks, fn)
	c.mu.Unlock()
}

// RankingConfig returns a copy of the current ranking settings.
func (c *Cache) RankingConfig() domain.RankingConfig {
	return c.Get().Ranking.Clone()
}
