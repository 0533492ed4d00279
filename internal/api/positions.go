package api

import (
	"sort"
	"strings"
	"sync"

	"railopt/internal/model"
)

// PositionCache stores the latest simulated position per train for each
// tenant. The feeder writes it on every tick; the REST snapshot and new
// feed clients read it.
type PositionCache struct {
	mu sync.Mutex
	// key: tenant|trainId
	m map[string]model.Position
}

// NewPositionCache constructs a PositionCache.
func NewPositionCache() *PositionCache { return &PositionCache{m: map[string]model.Position{}} }

func (c *PositionCache) key(tenant, trainID string) string {
	return tenant + "|" + trainID
}

// Upsert stores or updates the latest position for a train.
func (c *PositionCache) Upsert(tenant string, p model.Position) {
	if tenant == "" || p.TrainID == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[c.key(tenant, p.TrainID)] = p
}

// Snapshot returns the latest known positions for a tenant, ordered by
// train so output is stable.
func (c *PositionCache) Snapshot(tenant string) []model.Position {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := []model.Position{}
	prefix := tenant + "|"
	for k, v := range c.m {
		if strings.HasPrefix(k, prefix) {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TrainID < out[j].TrainID })
	return out
}
