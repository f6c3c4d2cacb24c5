package gate

import (
	"context"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/optiq-io/qbrix/internal/cache"
	"github.com/optiq-io/qbrix/internal/domain"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// L2Source fetches a gate config from the backing store on an L1 miss
// (cmd/proxy wires this to the catalog's GetFeatureGate).
type L2Source func(ctx context.Context, experimentID string) (*domain.FeatureGate, error)

// ConfigCache is the proxy's two-level gate config cache: an
// in-process TTL L1 in front of the catalog-backed L2, mirroring the
// agent cache's own miss-then-backfill shape so gate reads get the
// same hot-path latency win as selection does.
type ConfigCache struct {
	l1     *cache.TTLStore
	ttl    time.Duration
	source L2Source
}

func NewConfigCache(ttl time.Duration, source L2Source) (*ConfigCache, error) {
	store, err := cache.NewTTLStore()
	if err != nil {
		return nil, err
	}
	return &ConfigCache{l1: store, ttl: ttl, source: source}, nil
}

func (c *ConfigCache) Get(ctx context.Context, experimentID string) (*domain.FeatureGate, error) {
	if raw, ok, err := c.l1.Get(experimentID); err == nil && ok {
		var cfg domain.FeatureGate
		if jsonErr := json.Unmarshal([]byte(raw), &cfg); jsonErr == nil {
			return &cfg, nil
		}
	}
	cfg, err := c.source(ctx, experimentID)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, nil
	}
	if data, err := json.Marshal(cfg); err == nil {
		_ = c.l1.Set(experimentID, string(data), c.ttl)
	}
	return cfg, nil
}

// Invalidate evicts the L1 entry; called after any catalog write that
// changes the gate's behavior, so the new config takes effect
// immediately rather than waiting out the TTL.
func (c *ConfigCache) Invalidate(experimentID string) {
	_ = c.l1.Delete(experimentID)
}
