package metadata

import (
	"context"
	"sync"

	"strata-backend/internal/store"
)

// Catalog hands out per-tenant registries, lazy-loading each tenant's
// metadata on first use. Catalog mutations call Invalidate to force a reload.
type Catalog struct {
	mu      sync.RWMutex
	q       store.Querier
	tenants map[string]*Registry
}

func NewCatalog(q store.Querier) *Catalog {
	return &Catalog{
		q:       q,
		tenants: make(map[string]*Registry),
	}
}

// Tenant returns the registry for a tenant, loading it on cache miss.
func (c *Catalog) Tenant(ctx context.Context, tenant string) (*Registry, error) {
	c.mu.RLock()
	reg, ok := c.tenants[tenant]
	c.mu.RUnlock()
	if ok {
		return reg, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if reg, ok := c.tenants[tenant]; ok {
		return reg, nil
	}

	reg, err := LoadTenant(ctx, c.q, tenant)
	if err != nil {
		return nil, err
	}
	c.tenants[tenant] = reg
	return reg, nil
}

// Invalidate drops a tenant's cached registry so the next access reloads it.
func (c *Catalog) Invalidate(tenant string) {
	c.mu.Lock()
	delete(c.tenants, tenant)
	c.mu.Unlock()
}

// Reload refreshes a tenant's registry immediately.
func (c *Catalog) Reload(ctx context.Context, tenant string) (*Registry, error) {
	c.Invalidate(tenant)
	return c.Tenant(ctx, tenant)
}
