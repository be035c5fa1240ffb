package template

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"strata-backend/internal/apperr"
	"strata-backend/internal/catalog"
	"strata-backend/internal/metadata"
	"strata-backend/internal/store"
)

// Service serializes tenant catalogs to portable documents and back. Apply
// goes through the catalog service, so every step carries its own DDL
// transaction; a failed step stops the apply and leaves earlier steps in
// place.
type Service struct {
	db      *store.Store
	catalog *metadata.Catalog
	ops     *catalog.Service
}

func NewService(db *store.Store, cat *metadata.Catalog, ops *catalog.Service) *Service {
	return &Service{db: db, catalog: cat, ops: ops}
}

// Snapshot serializes a tenant's catalog.
func (s *Service) Snapshot(ctx context.Context, tenant string) (*Doc, error) {
	reg, err := s.catalog.Tenant(ctx, tenant)
	if err != nil {
		return nil, err
	}
	return fromRegistry(reg), nil
}

// Save persists a template document under a name.
func (s *Service) Save(ctx context.Context, tenant, name string, doc *Doc) (string, error) {
	docJSON, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("encode template: %w", err)
	}

	var id string
	err = s.db.Pool.QueryRow(ctx,
		`INSERT INTO _templates (tenant, name, document) VALUES ($1, $2, $3) RETURNING id::text`,
		tenant, name, docJSON).Scan(&id)
	if err != nil {
		return "", store.MapError(err)
	}
	return id, nil
}

// Load reads a stored template by id.
func (s *Service) Load(ctx context.Context, id string) (*Doc, error) {
	var docJSON []byte
	err := s.db.Pool.QueryRow(ctx,
		"SELECT document FROM _templates WHERE id = $1", id).Scan(&docJSON)
	if err != nil {
		if errors.Is(store.MapError(err), store.ErrNotFound) {
			return nil, apperr.NotFound("template", id)
		}
		return nil, err
	}

	var doc Doc
	if err := json.Unmarshal(docJSON, &doc); err != nil {
		return nil, fmt.Errorf("decode template %s: %w", id, err)
	}
	return &doc, nil
}

// List returns stored template names and ids.
func (s *Service) List(ctx context.Context) ([]map[string]any, error) {
	rows, err := store.QueryRows(ctx, s.db.Pool,
		`SELECT id::text AS id, tenant, name, created_at FROM _templates ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []map[string]any{}
	}
	return rows, nil
}

// Apply materializes a template into a tenant: entities with their tables
// first, then navigation with slug references resolved against the fresh
// identifiers, then actions and trails verbatim. Not transactional across
// steps; progress is logged and a failure leaves everything already created.
func (s *Service) Apply(ctx context.Context, tenant string, doc *Doc) error {
	for _, def := range doc.Entities {
		entity := &metadata.Entity{
			Slug:        def.Slug,
			DisplayName: def.DisplayName,
			Icon:        def.Icon,
			Layout:      def.Layout,
			Storage:     def.Storage,
		}
		for _, f := range def.Fields {
			entity.Fields = append(entity.Fields, metadata.Field{
				Name:      f.Name,
				Label:     f.Label,
				Type:      f.Type,
				Required:  f.Required,
				Options:   f.Options,
				Formula:   f.Formula,
				IsVirtual: f.IsVirtual,
				Position:  f.Position,
			})
		}
		if _, err := s.ops.CreateEntity(ctx, tenant, entity); err != nil {
			return fmt.Errorf("apply entity %s: %w", def.Slug, err)
		}
		log.Printf("template apply %s: entity %s created", tenant, def.Slug)
	}

	for _, groupDef := range doc.Navigation.Groups {
		group := &metadata.NavGroup{
			Name:     groupDef.Name,
			Icon:     groupDef.Icon,
			Position: groupDef.Position,
		}
		created, err := s.ops.CreateNavGroup(ctx, tenant, group)
		if err != nil {
			return fmt.Errorf("apply nav group %s: %w", groupDef.Name, err)
		}
		for _, pageDef := range groupDef.Pages {
			page := &metadata.NavPage{
				GroupID:       created.ID,
				Name:          pageDef.Name,
				Layout:        pageDef.Layout,
				Subpages:      pageDef.Subpages,
				DefaultDetail: pageDef.DefaultDetail,
				DefaultForm:   pageDef.DefaultForm,
				Position:      pageDef.Position,
			}
			if _, err := s.ops.CreateNavPage(ctx, tenant, page, pageDef.EntitySlug); err != nil {
				return fmt.Errorf("apply nav page %s: %w", pageDef.Name, err)
			}
		}
		log.Printf("template apply %s: nav group %s created (%d pages)", tenant, groupDef.Name, len(groupDef.Pages))
	}

	for _, def := range doc.Actions {
		act := &metadata.Action{
			Name:           def.Name,
			TriggerSource:  def.TriggerSource,
			TriggerContext: def.TriggerContext,
			ActionType:     def.ActionType,
			Config:         def.Config,
		}
		if _, err := s.ops.CreateAction(ctx, tenant, act); err != nil {
			return fmt.Errorf("apply action %s: %w", def.Name, err)
		}
	}
	if len(doc.Actions) > 0 {
		log.Printf("template apply %s: %d actions created", tenant, len(doc.Actions))
	}

	for _, def := range doc.Trails {
		t := &metadata.Trail{
			Name:      def.Name,
			Active:    def.Active,
			Trigger:   def.Trigger,
			Nodes:     def.Nodes,
			Variables: def.Variables,
		}
		if _, err := s.ops.CreateTrail(ctx, tenant, t); err != nil {
			return fmt.Errorf("apply trail %s: %w", def.Name, err)
		}
	}
	if len(doc.Trails) > 0 {
		log.Printf("template apply %s: %d trails created", tenant, len(doc.Trails))
	}

	return nil
}
