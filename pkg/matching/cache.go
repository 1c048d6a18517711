package matching

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/PatrickalKhouri/ingredient-manager/pkg/errkind"
	"github.com/PatrickalKhouri/ingredient-manager/pkg/metrics"
	"github.com/PatrickalKhouri/ingredient-manager/pkg/models"
	"github.com/PatrickalKhouri/ingredient-manager/pkg/tracing"
)

// CatalogLoader reads every catalog name in insertion order.
type CatalogLoader interface {
	ListNames(ctx context.Context) ([]models.CatalogName, error)
}

// CatalogSnapshot is an immutable view of the catalog.
type CatalogSnapshot struct {
	entries  []models.CatalogName
	byName   map[string]int
	byID     map[string]int
	loadedAt time.Time
}

func NewCatalogSnapshot(entries []models.CatalogName) *CatalogSnapshot {
	s := &CatalogSnapshot{
		entries:  entries,
		byName:   make(map[string]int, len(entries)),
		byID:     make(map[string]int, len(entries)),
		loadedAt: time.Now().UTC(),
	}
	for i, e := range entries {
		// first inserted entry wins a duplicated name
		if _, exists := s.byName[e.CanonicalName]; !exists {
			s.byName[e.CanonicalName] = i
		}
		s.byID[e.ID] = i
	}
	return s
}

// Entries returns the names in insertion order. Callers must not modify the slice.
func (s *CatalogSnapshot) Entries() []models.CatalogName {
	return s.entries
}

func (s *CatalogSnapshot) LookupExact(name string) (models.CatalogName, bool) {
	i, ok := s.byName[name]
	if !ok {
		return models.CatalogName{}, false
	}
	return s.entries[i], true
}

func (s *CatalogSnapshot) LookupID(id string) (models.CatalogName, bool) {
	i, ok := s.byID[id]
	if !ok {
		return models.CatalogName{}, false
	}
	return s.entries[i], true
}

func (s *CatalogSnapshot) Len() int {
	return len(s.entries)
}

// CatalogCache lazily loads the catalog once and shares the snapshot across goroutines. A failed
// load is not remembered; the next caller tries again.
type CatalogCache struct {
	loader   CatalogLoader
	logger   ectologger.Logger
	mu       sync.Mutex
	snapshot atomic.Pointer[CatalogSnapshot]
	loads    atomic.Int64
	hits     atomic.Int64
	misses   atomic.Int64
}

func NewCatalogCache(loader CatalogLoader, logger ectologger.Logger) *CatalogCache {
	return &CatalogCache{
		loader: loader,
		logger: logger,
	}
}

// Snapshot returns the loaded catalog, loading it on first use.
func (c *CatalogCache) Snapshot(ctx context.Context) (*CatalogSnapshot, error) {
	if s := c.snapshot.Load(); s != nil {
		return s, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if s := c.snapshot.Load(); s != nil {
		return s, nil
	}

	s, err := c.load(ctx)
	if err != nil {
		return nil, err
	}
	c.snapshot.Store(s)
	return s, nil
}

// Rebuild loads a fresh snapshot and swaps it in. Readers keep the old snapshot until the swap.
func (c *CatalogCache) Rebuild(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, err := c.load(ctx)
	if err != nil {
		return err
	}
	c.snapshot.Store(s)
	return nil
}

func (c *CatalogCache) load(ctx context.Context) (*CatalogSnapshot, error) {
	ctx, span := tracing.StartSpan(ctx, "matching.CatalogCache.load")
	defer span.End()

	start := time.Now()
	entries, err := c.loader.ListNames(ctx)
	if err != nil {
		metrics.CatalogCacheLoads.WithLabelValues("failed").Inc()
		c.logger.WithContext(ctx).WithError(err).Error("Failed to load catalog cache")
		return nil, errkind.Wrap(errkind.Fatal, err, "failed to load catalog")
	}

	s := NewCatalogSnapshot(entries)
	c.loads.Add(1)
	metrics.CatalogCacheLoads.WithLabelValues("ok").Inc()
	metrics.CatalogCacheSize.Set(float64(s.Len()))

	c.logger.WithContext(ctx).WithFields(map[string]any{
		"entries":  s.Len(),
		"duration": time.Since(start).String(),
	}).Info("Catalog cache loaded")
	return s, nil
}

// Entries returns the catalog names in insertion order.
func (c *CatalogCache) Entries(ctx context.Context) ([]models.CatalogName, error) {
	s, err := c.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return s.Entries(), nil
}

// LookupExact finds a catalog entry by exact canonical name.
func (c *CatalogCache) LookupExact(ctx context.Context, name string) (models.CatalogName, bool, error) {
	s, err := c.Snapshot(ctx)
	if err != nil {
		return models.CatalogName{}, false, err
	}
	entry, ok := s.LookupExact(name)
	c.record(ok)
	return entry, ok, nil
}

func (c *CatalogCache) record(hit bool) {
	if hit {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
}

// Invalidate drops the snapshot; the next reader reloads.
func (c *CatalogCache) Invalidate() {
	c.snapshot.Store(nil)
}

type CacheStats struct {
	Size     int        `json:"size"`
	Loads    int64      `json:"loads"`
	Hits     int64      `json:"hits"`
	Misses   int64      `json:"misses"`
	LoadedAt *time.Time `json:"loaded_at,omitempty"`
}

func (c *CatalogCache) Stats() CacheStats {
	stats := CacheStats{
		Loads:  c.loads.Load(),
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
	}
	if s := c.snapshot.Load(); s != nil {
		loadedAt := s.loadedAt
		stats.Size = s.Len()
		stats.LoadedAt = &loadedAt
	}
	return stats
}
