// Package marketcache holds a periodically-refreshed snapshot of active
// markets, so the Basket Engine and Copy Engine can compute a signal's
// timing-gate fields (minutes to resolution, room left to move) without
// hitting the market discovery adapter on every trade.
package marketcache

import (
	"context"
	"fmt"
	"sync"

	"github.com/alejandrodnm/polybot/internal/domain"
	"github.com/alejandrodnm/polybot/internal/domain/corerr"
	"github.com/alejandrodnm/polybot/internal/ports"
)

// Cache is a read-mostly map of active markets keyed by condition ID,
// refreshed wholesale rather than incrementally patched.
type Cache struct {
	discovery ports.MarketDiscovery

	mu       sync.RWMutex
	byMarket map[string]domain.ActiveMarket
}

// New constructs an empty Cache. Callers should Refresh once before relying
// on Get, then on whatever cadence RuntimeConfig.MarketDiscoveryInterval
// names.
func New(discovery ports.MarketDiscovery) *Cache {
	return &Cache{discovery: discovery, byMarket: make(map[string]domain.ActiveMarket)}
}

// Refresh replaces the cache contents with a fresh pull from the discovery
// adapter.
func (c *Cache) Refresh(ctx context.Context) error {
	markets, err := c.discovery.FetchActiveMarkets(ctx)
	if err != nil {
		return fmt.Errorf("marketcache.Refresh: %w", &corerr.TransientNetworkError{Op: "FetchActiveMarkets", Err: err})
	}
	byMarket := make(map[string]domain.ActiveMarket, len(markets))
	for _, m := range markets {
		byMarket[m.ConditionID] = m
	}
	c.mu.Lock()
	c.byMarket = byMarket
	c.mu.Unlock()
	return nil
}

// Get returns the cached market for conditionID, if known.
func (c *Cache) Get(conditionID string) (domain.ActiveMarket, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.byMarket[conditionID]
	return m, ok
}

// AssetIDs returns every outcome token ID across the cached markets, for
// subscribing the whale trade stream to exactly the markets worth watching.
func (c *Cache) AssetIDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]string, 0, len(c.byMarket)*2)
	for _, m := range c.byMarket {
		if m.YesTokenID != "" {
			ids = append(ids, m.YesTokenID)
		}
		if m.NoTokenID != "" {
			ids = append(ids, m.NoTokenID)
		}
	}
	return ids
}
