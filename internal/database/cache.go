package database

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/koustreak/dblens/internal/errs"
	"github.com/koustreak/dblens/internal/logger"
)

// Creator builds providers. *Factory is the production implementation.
type Creator interface {
	Create(desc Descriptor, opts Options) (Provider, error)
}

// CacheStats is an observability snapshot of the cache.
type CacheStats struct {
	Count int      `json:"count"`
	IDs   []string `json:"ids"`
}

// Cache keeps one connected provider per connection id. Create it at
// process start and Close it at shutdown. Concurrent GetOrCreate calls for
// the same id share a single construction.
type Cache struct {
	factory Creator
	log     *logger.Logger

	mu      sync.Mutex
	entries map[string]Provider
	// building counts in-flight constructions per id. Remove and ClearAll
	// bump gens and epoch so those constructions are discarded on finish.
	building map[string]int
	gens     map[string]uint64
	epoch    uint64

	group singleflight.Group
}

func NewCache(factory Creator, log *logger.Logger) *Cache {
	if log == nil {
		log = logger.Global()
	}
	return &Cache{
		factory: factory,
		log:     log.With().Str("component", "provider_cache").Logger(),
		entries:  make(map[string]Provider),
		building: make(map[string]int),
		gens:     make(map[string]uint64),
	}
}

// Get returns the cached provider for id without connecting anything.
func (c *Cache) Get(id string) (Provider, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.entries[id]
	return p, ok
}

// GetOrCreate returns the cached provider when it is still connected.
// Otherwise it builds one through the factory, connects it and caches it,
// replacing any stale entry.
func (c *Cache) GetOrCreate(ctx context.Context, desc Descriptor, opts Options) (Provider, error) {
	if desc.ID == "" {
		return nil, errs.Config(string(desc.Type), "connection id is required")
	}

	if p, ok := c.Get(desc.ID); ok && p.IsConnected() {
		return p, nil
	}

	v, err, _ := c.group.Do(desc.ID, func() (any, error) {
		c.mu.Lock()
		// Another caller may have finished while we waited.
		stale, ok := c.entries[desc.ID]
		if ok && stale.IsConnected() {
			c.mu.Unlock()
			return stale, nil
		}
		delete(c.entries, desc.ID)
		gen, epoch := c.gens[desc.ID], c.epoch
		c.building[desc.ID]++
		c.mu.Unlock()
		defer c.doneBuilding(desc.ID)

		if ok {
			if err := stale.Disconnect(ctx); err != nil {
				c.log.WarnWith("failed to disconnect stale provider", err, map[string]interface{}{
					"connection_id": desc.ID,
				})
			}
		}

		p, err := c.factory.Create(desc, opts)
		if err != nil {
			return nil, err
		}
		if err := p.Connect(ctx); err != nil {
			_ = p.Disconnect(ctx)
			return nil, err
		}

		c.mu.Lock()
		if c.gens[desc.ID] != gen || c.epoch != epoch {
			c.mu.Unlock()
			_ = p.Disconnect(ctx)
			return nil, errs.Config(string(desc.Type), "connection was removed while it was being opened")
		}
		c.entries[desc.ID] = p
		c.mu.Unlock()

		c.log.InfoWith("provider cached", map[string]interface{}{
			"connection_id": desc.ID,
			"type":          string(desc.Type),
		})
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(Provider), nil
}

func (c *Cache) doneBuilding(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.building[id]--; c.building[id] <= 0 {
		delete(c.building, id)
		delete(c.gens, id)
	}
}

// Remove disconnects and evicts one entry. A disconnect failure is logged
// and does not keep the entry in the cache. A construction in flight for id
// is discarded when it finishes. It reports whether id was cached or being
// built.
func (c *Cache) Remove(ctx context.Context, id string) bool {
	c.mu.Lock()
	p, ok := c.entries[id]
	delete(c.entries, id)
	pending := c.building[id] > 0
	if pending {
		c.gens[id]++
		c.group.Forget(id)
	}
	c.mu.Unlock()

	if !ok {
		return pending
	}
	if err := p.Disconnect(ctx); err != nil {
		c.log.WarnWith("failed to disconnect provider", err, map[string]interface{}{
			"connection_id": id,
		})
	}
	return true
}

// ClearAll disconnects every entry concurrently and waits for all of them.
// Failures are logged, never returned.
func (c *Cache) ClearAll(ctx context.Context) {
	c.mu.Lock()
	entries := c.entries
	c.entries = make(map[string]Provider)
	c.epoch++
	for id := range c.building {
		c.group.Forget(id)
	}
	c.mu.Unlock()

	var wg sync.WaitGroup
	for id, p := range entries {
		wg.Add(1)
		go func(id string, p Provider) {
			defer wg.Done()
			if err := p.Disconnect(ctx); err != nil {
				c.log.WarnWith("failed to disconnect provider", err, map[string]interface{}{
					"connection_id": id,
				})
			}
		}(id, p)
	}
	wg.Wait()

	if len(entries) > 0 {
		c.log.Infof("provider cache cleared (%d entries)", len(entries))
	}
}

// Close is ClearAll for shutdown paths.
func (c *Cache) Close(ctx context.Context) {
	c.ClearAll(ctx)
}

// Stats returns the entry count and the cached ids in sorted order.
func (c *Cache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	ids := make([]string, 0, len(c.entries))
	for id := range c.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return CacheStats{Count: len(ids), IDs: ids}
}
