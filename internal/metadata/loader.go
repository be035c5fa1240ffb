package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/expr-lang/expr"

	"strata-backend/internal/store"
)

// LoadTenant reads one tenant's catalog from the shared tables and returns a
// populated registry.
func LoadTenant(ctx context.Context, q store.Querier, tenant string) (*Registry, error) {
	entities, err := loadEntities(ctx, q, tenant)
	if err != nil {
		return nil, fmt.Errorf("load entities: %w", err)
	}

	groups, pages, err := loadNavigation(ctx, q, tenant)
	if err != nil {
		return nil, fmt.Errorf("load navigation: %w", err)
	}

	actions, err := loadActions(ctx, q, tenant)
	if err != nil {
		return nil, fmt.Errorf("load actions: %w", err)
	}

	trails, err := loadTrails(ctx, q, tenant)
	if err != nil {
		return nil, fmt.Errorf("load trails: %w", err)
	}

	subs, err := loadSubscriptions(ctx, q, tenant, entities)
	if err != nil {
		return nil, fmt.Errorf("load subscriptions: %w", err)
	}

	reg := NewRegistry(tenant)
	reg.Load(entities, groups, pages, actions, trails, subs)
	return reg, nil
}

func loadEntities(ctx context.Context, q store.Querier, tenant string) ([]*Entity, error) {
	rows, err := q.Query(ctx,
		`SELECT id, tenant, slug, display_name, icon, layout, storage, is_system, created_at, updated_at
		 FROM _entities WHERE tenant = $1 ORDER BY slug`, tenant)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entities []*Entity
	byID := make(map[string]*Entity)
	for rows.Next() {
		var e Entity
		var layoutJSON []byte
		if err := rows.Scan(&e.ID, &e.Tenant, &e.Slug, &e.DisplayName, &e.Icon,
			&layoutJSON, &e.Storage, &e.IsSystem, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan entity row: %w", err)
		}
		if len(layoutJSON) > 0 {
			if err := json.Unmarshal(layoutJSON, &e.Layout); err != nil {
				log.Printf("WARN: entity %s has invalid layout JSON: %v", e.Slug, err)
			}
		}
		entities = append(entities, &e)
		byID[e.ID] = &e
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	frows, err := q.Query(ctx,
		`SELECT f.id, f.entity_id, f.name, f.label, f.type, f.required, f.options, f.formula, f.is_virtual, f.position
		 FROM _fields f JOIN _entities e ON e.id = f.entity_id
		 WHERE e.tenant = $1 ORDER BY f.entity_id, f.position, f.created_at`, tenant)
	if err != nil {
		return nil, err
	}
	defer frows.Close()

	for frows.Next() {
		var f Field
		var optionsJSON []byte
		if err := frows.Scan(&f.ID, &f.EntityID, &f.Name, &f.Label, &f.Type,
			&f.Required, &optionsJSON, &f.Formula, &f.IsVirtual, &f.Position); err != nil {
			return nil, fmt.Errorf("scan field row: %w", err)
		}
		if len(optionsJSON) > 0 {
			if err := json.Unmarshal(optionsJSON, &f.Options); err != nil {
				log.Printf("WARN: field %s has invalid options JSON: %v", f.Name, err)
			}
		}
		if e, ok := byID[f.EntityID]; ok {
			e.Fields = append(e.Fields, f)
		}
	}
	return entities, frows.Err()
}

func loadNavigation(ctx context.Context, q store.Querier, tenant string) ([]*NavGroup, []*NavPage, error) {
	grows, err := q.Query(ctx,
		`SELECT id, tenant, name, icon, position FROM _nav_groups WHERE tenant = $1 ORDER BY position, name`, tenant)
	if err != nil {
		return nil, nil, err
	}
	defer grows.Close()

	var groups []*NavGroup
	for grows.Next() {
		var g NavGroup
		if err := grows.Scan(&g.ID, &g.Tenant, &g.Name, &g.Icon, &g.Position); err != nil {
			return nil, nil, fmt.Errorf("scan nav group row: %w", err)
		}
		groups = append(groups, &g)
	}
	if err := grows.Err(); err != nil {
		return nil, nil, err
	}

	prows, err := q.Query(ctx,
		`SELECT id, tenant, group_id, name, COALESCE(entity_id::text, ''), layout, subpages, default_detail, default_form, position
		 FROM _nav_pages WHERE tenant = $1 ORDER BY position, name`, tenant)
	if err != nil {
		return nil, nil, err
	}
	defer prows.Close()

	var pages []*NavPage
	for prows.Next() {
		var p NavPage
		var layoutJSON, subpagesJSON []byte
		if err := prows.Scan(&p.ID, &p.Tenant, &p.GroupID, &p.Name, &p.EntityID,
			&layoutJSON, &subpagesJSON, &p.DefaultDetail, &p.DefaultForm, &p.Position); err != nil {
			return nil, nil, fmt.Errorf("scan nav page row: %w", err)
		}
		if len(layoutJSON) > 0 {
			if err := json.Unmarshal(layoutJSON, &p.Layout); err != nil {
				log.Printf("WARN: page %s has invalid layout JSON: %v", p.Name, err)
			}
		}
		if len(subpagesJSON) > 0 {
			if err := json.Unmarshal(subpagesJSON, &p.Subpages); err != nil {
				log.Printf("WARN: page %s has invalid subpages JSON: %v", p.Name, err)
			}
		}
		pages = append(pages, &p)
	}
	return groups, pages, prows.Err()
}

func loadActions(ctx context.Context, q store.Querier, tenant string) ([]*Action, error) {
	rows, err := q.Query(ctx,
		`SELECT id, tenant, name, trigger_source, trigger_context, action_type, config
		 FROM _actions WHERE tenant = $1 ORDER BY name`, tenant)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var actions []*Action
	for rows.Next() {
		var a Action
		var configJSON []byte
		if err := rows.Scan(&a.ID, &a.Tenant, &a.Name, &a.TriggerSource,
			&a.TriggerContext, &a.ActionType, &configJSON); err != nil {
			return nil, fmt.Errorf("scan action row: %w", err)
		}
		if len(configJSON) > 0 {
			if err := json.Unmarshal(configJSON, &a.Config); err != nil {
				log.Printf("WARN: skipping action %s (invalid config JSON): %v", a.Name, err)
				continue
			}
		}
		actions = append(actions, &a)
	}
	return actions, rows.Err()
}

func loadTrails(ctx context.Context, q store.Querier, tenant string) ([]*Trail, error) {
	rows, err := q.Query(ctx,
		`SELECT id, tenant, name, active, trigger, nodes, variables
		 FROM _trails WHERE tenant = $1 ORDER BY name`, tenant)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trails []*Trail
	for rows.Next() {
		var t Trail
		var triggerJSON, nodesJSON, variablesJSON []byte
		if err := rows.Scan(&t.ID, &t.Tenant, &t.Name, &t.Active,
			&triggerJSON, &nodesJSON, &variablesJSON); err != nil {
			return nil, fmt.Errorf("scan trail row: %w", err)
		}
		if err := json.Unmarshal(triggerJSON, &t.Trigger); err != nil {
			log.Printf("WARN: skipping trail %s (invalid trigger JSON): %v", t.Name, err)
			continue
		}
		if err := json.Unmarshal(nodesJSON, &t.Nodes); err != nil {
			log.Printf("WARN: skipping trail %s (invalid nodes JSON): %v", t.Name, err)
			continue
		}
		if len(variablesJSON) > 0 {
			if err := json.Unmarshal(variablesJSON, &t.Variables); err != nil {
				log.Printf("WARN: trail %s has invalid variables JSON: %v", t.Name, err)
			}
		}
		trails = append(trails, &t)
	}
	return trails, rows.Err()
}

func loadSubscriptions(ctx context.Context, q store.Querier, tenant string, entities []*Entity) ([]*Subscription, error) {
	rows, err := q.Query(ctx,
		`SELECT id, tenant, entity_id, event_kind, target_url, COALESCE(trail_id::text, ''), condition, active
		 FROM _subscriptions WHERE tenant = $1`, tenant)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	slugByID := make(map[string]string, len(entities))
	for _, e := range entities {
		slugByID[e.ID] = e.Slug
	}

	var subs []*Subscription
	for rows.Next() {
		var s Subscription
		if err := rows.Scan(&s.ID, &s.Tenant, &s.EntityID, &s.EventKind,
			&s.TargetURL, &s.TrailID, &s.Condition, &s.Active); err != nil {
			return nil, fmt.Errorf("scan subscription row: %w", err)
		}
		s.EntitySlug = slugByID[s.EntityID]
		if s.EntitySlug == "" {
			log.Printf("WARN: skipping subscription %s (dangling entity reference)", s.ID)
			continue
		}
		// Conditions compile once here; subscriptions are shared across
		// request goroutines and must not be written to afterwards.
		if s.Condition != "" {
			prog, err := expr.Compile(s.Condition, expr.AsBool())
			if err != nil {
				log.Printf("WARN: subscription %s has an invalid condition: %v", s.ID, err)
			} else {
				s.Compiled = prog
			}
		}
		subs = append(subs, &s)
	}
	return subs, rows.Err()
}
