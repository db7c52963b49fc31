// Package standard provides the standard sink implementations fed by the poller.
package standard

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/st-keller/objid-poller/component"
	"github.com/st-keller/objid-poller/types"
)

// ConsumptionCache holds the last known consumed object ids per app.
type ConsumptionCache struct {
	mu        sync.RWMutex
	snapshots map[string]component.Snapshot
	data      map[string]types.ConsumptionMap
	logger    *slog.Logger
}

// NewConsumptionCache creates an empty cache.
func NewConsumptionCache(logger *slog.Logger) *ConsumptionCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConsumptionCache{
		snapshots: make(map[string]component.Snapshot),
		data:      make(map[string]types.ConsumptionMap),
		logger:    logger,
	}
}

// UpdateConsumption stores the consumption of appID and reports whether it
// differs from what was stored before. Id order and empty categories do not
// count as differences.
func (c *ConsumptionCache) UpdateConsumption(appID string, consumption types.ConsumptionMap) bool {
	canonical := canonicalize(consumption)

	snap, err := component.New(appID, canonical)
	if err != nil {
		// ConsumptionMap always marshals; keep the old state if it ever doesn't.
		c.logger.Warn("failed to snapshot consumption", "app_id", appID, "error", err)
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	prev, known := c.snapshots[appID]
	if known && prev.Equal(snap) {
		return false
	}
	if !known && len(canonical) == 0 {
		// Nothing consumed and nothing known: not a change.
		c.snapshots[appID] = snap
		c.data[appID] = canonical
		return false
	}

	c.snapshots[appID] = snap
	c.data[appID] = canonical
	return true
}

// GetConsumption returns a copy of the consumption stored for appID.
func (c *ConsumptionCache) GetConsumption(appID string) (types.ConsumptionMap, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	data, ok := c.data[appID]
	if !ok {
		return nil, false
	}
	return copyConsumption(data), true
}

// Apps returns the ids of all apps with stored consumption, sorted.
func (c *ConsumptionCache) Apps() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ids := make([]string, 0, len(c.data))
	for id := range c.data {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// canonicalize returns a sorted, deduplicated copy without empty categories.
func canonicalize(in types.ConsumptionMap) types.ConsumptionMap {
	out := make(types.ConsumptionMap, len(in))
	for category, ids := range in {
		if len(ids) == 0 {
			continue
		}
		sorted := append([]int(nil), ids...)
		sort.Ints(sorted)

		uniq := sorted[:1]
		for _, id := range sorted[1:] {
			if id != uniq[len(uniq)-1] {
				uniq = append(uniq, id)
			}
		}
		out[category] = uniq
	}
	return out
}

func copyConsumption(in types.ConsumptionMap) types.ConsumptionMap {
	out := make(types.ConsumptionMap, len(in))
	for category, ids := range in {
		out[category] = append([]int(nil), ids...)
	}
	return out
}
