package provider

import (
	"context"
	"sync"
	"time"

	"neoquery/internal/telemetry"
)

const catalogTTL = time.Hour

// ModelInfo is one entry in a transport's model listing.
type ModelInfo struct {
	ID   string `json:"id"`
	Name string `json:"display_name,omitempty"`
}

// ModelCatalog caches a transport's model listing so the models endpoint
// does not hit the provider on every request.
type ModelCatalog struct {
	mu        sync.Mutex
	lister    ModelLister
	logger    telemetry.Logger
	ttl       time.Duration
	models    []ModelInfo
	fetchedAt time.Time
}

// NewModelCatalog wraps a model lister with an hour of caching.
func NewModelCatalog(lister ModelLister, logger telemetry.Logger) *ModelCatalog {
	if logger == nil {
		logger = telemetry.NopLogger()
	}
	return &ModelCatalog{lister: lister, logger: logger, ttl: catalogTTL}
}

// Models returns the available models, refreshing the cached listing when
// it has gone stale. A failed refresh falls back to the previous listing
// when one exists.
func (c *ModelCatalog) Models(ctx context.Context) ([]ModelInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.fetchedAt.IsZero() && time.Since(c.fetchedAt) < c.ttl {
		return c.models, nil
	}

	models, err := c.lister.ListModels(ctx)
	if err != nil {
		if !c.fetchedAt.IsZero() {
			c.logger.Warn("model list refresh failed, serving cached listing", "error", err)
			return c.models, nil
		}
		return nil, err
	}

	c.models = models
	c.fetchedAt = time.Now()
	return c.models, nil
}
