package spatial

import (
	"context"
	"strings"

	"placemap/internal/core"
	"placemap/internal/filters"
	"placemap/internal/geo"
	"placemap/internal/observability"
)

// PreloadNearbyAreas warms the cache for the geohash cell around center and
// its eight neighbours, once per category (or once with the current category
// when categories is empty). It returns immediately; searches run in the
// background, bounded by the preload concurrency, and their failures are
// logged and dropped. Variants with nothing to search for (no query,
// category or subcategory) are skipped.
//
// Preloaded entries are keyed by cell, so they answer any lookup whose
// center falls inside that cell.
func (c *Cache) PreloadNearbyAreas(center core.Coordinates, f filters.Filters, categories []string) {
	if !c.cfg.PreloadEnabled || c.searcher == nil {
		return
	}

	cells := append([]geo.Cell{geo.CellAround(center, c.cfg.PreloadPrecision)},
		geo.Neighbors(center, c.cfg.PreloadPrecision)...)

	variants := make([]filters.Filters, 0, max(1, len(categories)))
	if len(categories) == 0 {
		variants = append(variants, f.Clone())
	}
	for _, cat := range categories {
		v := f.Merge(filters.Partial{Category: filters.String(cat)})
		variants = append(variants, v)
	}

	for _, v := range variants {
		if !searchable(v) {
			continue
		}
		for _, cell := range cells {
			c.schedulePreload(cell, v)
		}
	}
}

func searchable(f filters.Filters) bool {
	return NormalizeQuery(f.Query) != "" ||
		strings.TrimSpace(f.CategoryValue()) != "" ||
		strings.TrimSpace(f.SubcategoryValue()) != ""
}

func (c *Cache) schedulePreload(cell geo.Cell, f filters.Filters) {
	point := cell.Center()
	key := CellKey(f.Query, cell, f)

	if _, ok := c.lookup(key); ok {
		observability.PreloadsTotal.WithLabelValues("skipped").Inc()
		return
	}
	if _, busy := c.inflight.LoadOrStore(key, struct{}{}); busy {
		observability.PreloadsTotal.WithLabelValues("skipped").Inc()
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.inflight.Delete(key)
		return
	}
	c.wg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.wg.Done()
		defer c.inflight.Delete(key)

		if err := c.sem.Acquire(c.baseCtx, 1); err != nil {
			return
		}
		defer c.sem.Release(1)

		ctx, cancel := context.WithTimeout(c.baseCtx, c.cfg.PreloadTimeout)
		defer cancel()

		results, err := c.searcher.Search(ctx, f.SearchQuery(point))
		if err != nil {
			c.logger.Warn("preload search failed", "cell", cell.Hash, "category", f.CategoryValue(), "error", err)
			observability.PreloadsTotal.WithLabelValues("error").Inc()
			return
		}
		c.store(key, results)
		c.stats.preloads.Add(1)
		observability.PreloadsTotal.WithLabelValues("fetched").Inc()
		c.logger.Debug("preloaded cell", "cell", cell.Hash, "category", f.CategoryValue(), "results", len(results))
	}()
}

// Wait blocks until every scheduled preload has finished. Intended for tests
// and shutdown.
func (c *Cache) Wait() {
	c.wg.Wait()
}
