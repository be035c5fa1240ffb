package catalog

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/expr-lang/expr"

	"strata-backend/internal/apperr"
	"strata-backend/internal/metadata"
	"strata-backend/internal/store"
)

// CreateAction inserts a configured action.
func (s *Service) CreateAction(ctx context.Context, tenant string, a *metadata.Action) (*metadata.Action, error) {
	if a.ActionType == "" {
		return nil, apperr.New("VALIDATION_FAILED", 422, "action_type is required")
	}
	if a.TriggerSource == "" {
		a.TriggerSource = metadata.TriggerUI
	}

	configJSON, err := json.Marshal(orEmptyMap(a.Config))
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}

	err = s.db.Pool.QueryRow(ctx,
		`INSERT INTO _actions (tenant, name, trigger_source, trigger_context, action_type, config)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id::text`,
		tenant, a.Name, a.TriggerSource, a.TriggerContext, a.ActionType, configJSON).Scan(&a.ID)
	if err != nil {
		return nil, mapCatalogError(err)
	}
	a.Tenant = tenant
	s.catalog.Invalidate(tenant)
	return a, nil
}

// UpdateAction rewrites an action's attributes.
func (s *Service) UpdateAction(ctx context.Context, tenant string, a *metadata.Action) error {
	configJSON, err := json.Marshal(orEmptyMap(a.Config))
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	affected, err := store.Exec(ctx, s.db.Pool,
		`UPDATE _actions SET name = $1, trigger_source = $2, trigger_context = $3,
		        action_type = $4, config = $5, updated_at = NOW()
		 WHERE id = $6 AND tenant = $7`,
		a.Name, a.TriggerSource, a.TriggerContext, a.ActionType, configJSON, a.ID, tenant)
	if err != nil {
		return mapCatalogError(err)
	}
	if affected == 0 {
		return apperr.NotFound("action", a.ID)
	}
	s.catalog.Invalidate(tenant)
	return nil
}

// DeleteAction removes an action.
func (s *Service) DeleteAction(ctx context.Context, tenant, id string) error {
	affected, err := store.Exec(ctx, s.db.Pool,
		"DELETE FROM _actions WHERE id = $1 AND tenant = $2", id, tenant)
	if err != nil {
		return mapCatalogError(err)
	}
	if affected == 0 {
		return apperr.NotFound("action", id)
	}
	s.catalog.Invalidate(tenant)
	return nil
}

// CreateTrail inserts a trail definition.
func (s *Service) CreateTrail(ctx context.Context, tenant string, t *metadata.Trail) (*metadata.Trail, error) {
	if t.Nodes.Len() == 0 {
		return nil, apperr.New("VALIDATION_FAILED", 422, "trail needs at least one node")
	}

	triggerJSON, nodesJSON, variablesJSON, err := encodeTrail(t)
	if err != nil {
		return nil, err
	}

	err = s.db.Pool.QueryRow(ctx,
		`INSERT INTO _trails (tenant, name, active, trigger, nodes, variables)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id::text`,
		tenant, t.Name, t.Active, triggerJSON, nodesJSON, variablesJSON).Scan(&t.ID)
	if err != nil {
		return nil, mapCatalogError(err)
	}
	t.Tenant = tenant
	s.catalog.Invalidate(tenant)
	return t, nil
}

// UpdateTrail rewrites a trail definition.
func (s *Service) UpdateTrail(ctx context.Context, tenant string, t *metadata.Trail) error {
	triggerJSON, nodesJSON, variablesJSON, err := encodeTrail(t)
	if err != nil {
		return err
	}

	affected, err := store.Exec(ctx, s.db.Pool,
		`UPDATE _trails SET name = $1, active = $2, trigger = $3, nodes = $4,
		        variables = $5, updated_at = NOW()
		 WHERE id = $6 AND tenant = $7`,
		t.Name, t.Active, triggerJSON, nodesJSON, variablesJSON, t.ID, tenant)
	if err != nil {
		return mapCatalogError(err)
	}
	if affected == 0 {
		return apperr.NotFound("trail", t.ID)
	}
	s.catalog.Invalidate(tenant)
	return nil
}

// DeleteTrail removes a trail and clears subscriptions pointing at it.
func (s *Service) DeleteTrail(ctx context.Context, tenant, id string) error {
	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		"DELETE FROM _subscriptions WHERE trail_id = $1 AND tenant = $2", id, tenant); err != nil {
		return mapCatalogError(err)
	}

	tag, err := tx.Exec(ctx, "DELETE FROM _trails WHERE id = $1 AND tenant = $2", id, tenant)
	if err != nil {
		return mapCatalogError(err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("trail", id)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	s.catalog.Invalidate(tenant)
	return nil
}

// CreateSubscription binds (entity, event kind) to a webhook URL or a trail.
func (s *Service) CreateSubscription(ctx context.Context, tenant string, sub *metadata.Subscription) (*metadata.Subscription, error) {
	reg, err := s.catalog.Tenant(ctx, tenant)
	if err != nil {
		return nil, err
	}
	entity := reg.GetEntity(sub.EntitySlug)
	if entity == nil {
		return nil, apperr.UnknownEntity(sub.EntitySlug)
	}
	switch sub.EventKind {
	case metadata.EventOnCreate, metadata.EventOnUpdate, metadata.EventOnDelete:
	default:
		return nil, apperr.New("VALIDATION_FAILED", 422, "event_kind must be ON_CREATE, ON_UPDATE or ON_DELETE")
	}
	if sub.TargetURL == "" && sub.TrailID == "" {
		return nil, apperr.New("VALIDATION_FAILED", 422, "a target_url or trail_id is required")
	}
	if sub.TrailID != "" && reg.GetTrail(sub.TrailID) == nil {
		return nil, apperr.NotFound("trail", sub.TrailID)
	}
	if sub.Condition != "" {
		if _, err := expr.Compile(sub.Condition, expr.AsBool()); err != nil {
			return nil, apperr.New("VALIDATION_FAILED", 422, fmt.Sprintf("invalid condition: %v", err))
		}
	}

	err = s.db.Pool.QueryRow(ctx,
		`INSERT INTO _subscriptions (tenant, entity_id, event_kind, target_url, trail_id, condition, active)
		 VALUES ($1, $2, $3, $4, NULLIF($5, '')::uuid, $6, $7) RETURNING id::text`,
		tenant, entity.ID, sub.EventKind, sub.TargetURL, sub.TrailID, sub.Condition, sub.Active).Scan(&sub.ID)
	if err != nil {
		return nil, mapCatalogError(err)
	}
	sub.Tenant = tenant
	sub.EntityID = entity.ID
	s.catalog.Invalidate(tenant)
	return sub, nil
}

// UpdateSubscription rewrites a subscription.
func (s *Service) UpdateSubscription(ctx context.Context, tenant string, sub *metadata.Subscription) error {
	if sub.Condition != "" {
		if _, err := expr.Compile(sub.Condition, expr.AsBool()); err != nil {
			return apperr.New("VALIDATION_FAILED", 422, fmt.Sprintf("invalid condition: %v", err))
		}
	}

	affected, err := store.Exec(ctx, s.db.Pool,
		`UPDATE _subscriptions SET event_kind = $1, target_url = $2,
		        trail_id = NULLIF($3, '')::uuid, condition = $4, active = $5, updated_at = NOW()
		 WHERE id = $6 AND tenant = $7`,
		sub.EventKind, sub.TargetURL, sub.TrailID, sub.Condition, sub.Active, sub.ID, tenant)
	if err != nil {
		return mapCatalogError(err)
	}
	if affected == 0 {
		return apperr.NotFound("subscription", sub.ID)
	}
	s.catalog.Invalidate(tenant)
	return nil
}

// DeleteSubscription removes a subscription.
func (s *Service) DeleteSubscription(ctx context.Context, tenant, id string) error {
	affected, err := store.Exec(ctx, s.db.Pool,
		"DELETE FROM _subscriptions WHERE id = $1 AND tenant = $2", id, tenant)
	if err != nil {
		return mapCatalogError(err)
	}
	if affected == 0 {
		return apperr.NotFound("subscription", id)
	}
	s.catalog.Invalidate(tenant)
	return nil
}

// ListActions returns all actions for a tenant in name order.
func (s *Service) ListActions(ctx context.Context, tenant string) ([]map[string]any, error) {
	rows, err := store.QueryRows(ctx, s.db.Pool,
		`SELECT id::text AS id, tenant, name, trigger_source, trigger_context, action_type, config
		 FROM _actions WHERE tenant = $1 ORDER BY name`, tenant)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []map[string]any{}
	}
	return rows, nil
}

// ListSubscriptions returns all subscriptions for a tenant.
func (s *Service) ListSubscriptions(ctx context.Context, tenant string) ([]map[string]any, error) {
	rows, err := store.QueryRows(ctx, s.db.Pool,
		`SELECT id::text AS id, tenant, entity_id::text AS entity_id, event_kind,
		        target_url, COALESCE(trail_id::text, '') AS trail_id, condition, active
		 FROM _subscriptions WHERE tenant = $1 ORDER BY created_at`, tenant)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []map[string]any{}
	}
	return rows, nil
}

func encodeTrail(t *metadata.Trail) ([]byte, []byte, []byte, error) {
	triggerJSON, err := json.Marshal(t.Trigger)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("encode trigger: %w", err)
	}
	nodesJSON, err := json.Marshal(t.Nodes)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("encode nodes: %w", err)
	}
	variables := t.Variables
	if variables == nil {
		variables = []metadata.TrailVariable{}
	}
	variablesJSON, err := json.Marshal(variables)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("encode variables: %w", err)
	}
	return triggerJSON, nodesJSON, variablesJSON, nil
}
