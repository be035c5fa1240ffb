package catalog

import (
	"context"
	"encoding/json"
	"fmt"

	"strata-backend/internal/apperr"
	"strata-backend/internal/metadata"
	"strata-backend/internal/store"
)

// CreateNavGroup inserts a navigation group.
func (s *Service) CreateNavGroup(ctx context.Context, tenant string, g *metadata.NavGroup) (*metadata.NavGroup, error) {
	err := s.db.Pool.QueryRow(ctx,
		`INSERT INTO _nav_groups (tenant, name, icon, position)
		 VALUES ($1, $2, $3, $4) RETURNING id::text`,
		tenant, g.Name, g.Icon, g.Position).Scan(&g.ID)
	if err != nil {
		return nil, mapCatalogError(err)
	}
	g.Tenant = tenant
	s.catalog.Invalidate(tenant)
	return g, nil
}

// UpdateNavGroup rewrites a group's attributes.
func (s *Service) UpdateNavGroup(ctx context.Context, tenant string, g *metadata.NavGroup) error {
	affected, err := store.Exec(ctx, s.db.Pool,
		`UPDATE _nav_groups SET name = $1, icon = $2, position = $3, updated_at = NOW()
		 WHERE id = $4 AND tenant = $5`,
		g.Name, g.Icon, g.Position, g.ID, tenant)
	if err != nil {
		return mapCatalogError(err)
	}
	if affected == 0 {
		return apperr.NotFound("nav group", g.ID)
	}
	s.catalog.Invalidate(tenant)
	return nil
}

// DeleteNavGroup removes a group; its pages cascade.
func (s *Service) DeleteNavGroup(ctx context.Context, tenant, id string) error {
	affected, err := store.Exec(ctx, s.db.Pool,
		"DELETE FROM _nav_groups WHERE id = $1 AND tenant = $2", id, tenant)
	if err != nil {
		return mapCatalogError(err)
	}
	if affected == 0 {
		return apperr.NotFound("nav group", id)
	}
	s.catalog.Invalidate(tenant)
	return nil
}

// CreateNavPage inserts a page. EntitySlug, when set, resolves to an entity
// reference; a page without one is allowed.
func (s *Service) CreateNavPage(ctx context.Context, tenant string, p *metadata.NavPage, entitySlug string) (*metadata.NavPage, error) {
	if entitySlug != "" {
		reg, err := s.catalog.Tenant(ctx, tenant)
		if err != nil {
			return nil, err
		}
		entity := reg.GetEntity(entitySlug)
		if entity == nil {
			return nil, apperr.UnknownEntity(entitySlug)
		}
		p.EntityID = entity.ID
	}

	layoutJSON, err := json.Marshal(orEmptyMap(p.Layout))
	if err != nil {
		return nil, fmt.Errorf("encode layout: %w", err)
	}
	subpagesJSON, err := json.Marshal(orEmptySubpages(p.Subpages))
	if err != nil {
		return nil, fmt.Errorf("encode subpages: %w", err)
	}

	err = s.db.Pool.QueryRow(ctx,
		`INSERT INTO _nav_pages (tenant, group_id, name, entity_id, layout, subpages, default_detail, default_form, position)
		 VALUES ($1, $2, $3, NULLIF($4, '')::uuid, $5, $6, $7, $8, $9) RETURNING id::text`,
		tenant, p.GroupID, p.Name, p.EntityID, layoutJSON, subpagesJSON,
		p.DefaultDetail, p.DefaultForm, p.Position).Scan(&p.ID)
	if err != nil {
		return nil, mapCatalogError(err)
	}
	p.Tenant = tenant
	s.catalog.Invalidate(tenant)
	return p, nil
}

// UpdateNavPage rewrites a page's attributes.
func (s *Service) UpdateNavPage(ctx context.Context, tenant string, p *metadata.NavPage) error {
	layoutJSON, err := json.Marshal(orEmptyMap(p.Layout))
	if err != nil {
		return fmt.Errorf("encode layout: %w", err)
	}
	subpagesJSON, err := json.Marshal(orEmptySubpages(p.Subpages))
	if err != nil {
		return fmt.Errorf("encode subpages: %w", err)
	}

	affected, err := store.Exec(ctx, s.db.Pool,
		`UPDATE _nav_pages SET group_id = $1, name = $2, entity_id = NULLIF($3, '')::uuid,
		        layout = $4, subpages = $5, default_detail = $6, default_form = $7,
		        position = $8, updated_at = NOW()
		 WHERE id = $9 AND tenant = $10`,
		p.GroupID, p.Name, p.EntityID, layoutJSON, subpagesJSON,
		p.DefaultDetail, p.DefaultForm, p.Position, p.ID, tenant)
	if err != nil {
		return mapCatalogError(err)
	}
	if affected == 0 {
		return apperr.NotFound("nav page", p.ID)
	}
	s.catalog.Invalidate(tenant)
	return nil
}

// DeleteNavPage removes a page.
func (s *Service) DeleteNavPage(ctx context.Context, tenant, id string) error {
	affected, err := store.Exec(ctx, s.db.Pool,
		"DELETE FROM _nav_pages WHERE id = $1 AND tenant = $2", id, tenant)
	if err != nil {
		return mapCatalogError(err)
	}
	if affected == 0 {
		return apperr.NotFound("nav page", id)
	}
	s.catalog.Invalidate(tenant)
	return nil
}

func orEmptySubpages(sp []metadata.Subpage) []metadata.Subpage {
	if sp == nil {
		return []metadata.Subpage{}
	}
	return sp
}
