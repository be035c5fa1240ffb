package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"strata-backend/internal/apperr"
	"strata-backend/internal/metadata"
	"strata-backend/internal/store"
)

// Service owns all catalog mutations. Structural changes (tables, columns)
// ride in the same transaction as their metadata rows, so a failed DDL
// statement rolls the metadata back and the slug/table invariant holds.
type Service struct {
	db      *store.Store
	catalog *metadata.Catalog
}

func NewService(db *store.Store, catalog *metadata.Catalog) *Service {
	return &Service{db: db, catalog: catalog}
}

// Registry exposes the cached tenant registry for read endpoints.
func (s *Service) Registry(ctx context.Context, tenant string) (*metadata.Registry, error) {
	return s.catalog.Tenant(ctx, tenant)
}

// CreateEntity inserts the entity with its fields and creates the physical
// storage in one transaction.
func (s *Service) CreateEntity(ctx context.Context, tenant string, e *metadata.Entity) (*metadata.Entity, error) {
	if err := metadata.ValidateSlug(e.Slug); err != nil {
		return nil, apperr.InvalidSlug(e.Slug)
	}
	for _, f := range e.Fields {
		if err := metadata.ValidateSlug(f.Name); err != nil {
			return nil, apperr.InvalidSlug(f.Name)
		}
	}
	if e.Storage == "" {
		e.Storage = metadata.StorageTable
	}

	reg, err := s.catalog.Tenant(ctx, tenant)
	if err != nil {
		return nil, err
	}
	if reg.GetEntity(e.Slug) != nil {
		return nil, apperr.Conflict("Entity already exists: " + e.Slug)
	}

	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	layoutJSON, err := json.Marshal(orEmptyMap(e.Layout))
	if err != nil {
		return nil, fmt.Errorf("encode layout: %w", err)
	}

	err = tx.QueryRow(ctx,
		`INSERT INTO _entities (tenant, slug, display_name, icon, layout, storage, is_system)
		 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id::text`,
		tenant, e.Slug, e.DisplayName, e.Icon, layoutJSON, e.Storage, e.IsSystem).Scan(&e.ID)
	if err != nil {
		return nil, mapCatalogError(err)
	}
	e.Tenant = tenant

	for i := range e.Fields {
		e.Fields[i].EntityID = e.ID
		if e.Fields[i].Position == 0 {
			e.Fields[i].Position = i
		}
		if err := insertField(ctx, tx, &e.Fields[i]); err != nil {
			return nil, err
		}
	}

	sm := store.NewSchemaManager(tx)
	schema := store.TenantSchema(tenant)
	if err := sm.CreateSchema(ctx, schema); err != nil {
		return nil, apperr.SchemaError(err.Error())
	}
	if e.Storage == metadata.StorageDocument {
		if err := sm.EnsureDocumentTable(ctx, schema); err != nil {
			return nil, apperr.SchemaError(err.Error())
		}
	} else {
		if err := sm.CreateTable(ctx, schema, e.Slug); err != nil {
			return nil, apperr.SchemaError(err.Error())
		}
		for _, f := range e.PhysicalFields() {
			if err := sm.AddColumn(ctx, schema, e.Slug, f.Name, f.Type, f.Required); err != nil {
				return nil, apperr.SchemaError(err.Error())
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	s.catalog.Invalidate(tenant)
	return e, nil
}

// EntityPatch carries the mutable entity attributes. NewSlug renames the
// entity and its table together.
type EntityPatch struct {
	NewSlug     string         `json:"slug,omitempty"`
	DisplayName *string        `json:"display_name,omitempty"`
	Icon        *string        `json:"icon,omitempty"`
	Layout      map[string]any `json:"layout,omitempty"`
}

// UpdateEntity applies a patch; renames are atomic with the table rename.
func (s *Service) UpdateEntity(ctx context.Context, tenant, slug string, patch *EntityPatch) (*metadata.Entity, error) {
	reg, err := s.catalog.Tenant(ctx, tenant)
	if err != nil {
		return nil, err
	}
	entity := reg.GetEntity(slug)
	if entity == nil {
		return nil, apperr.UnknownEntity(slug)
	}

	rename := patch.NewSlug != "" && patch.NewSlug != slug
	if rename {
		if err := metadata.ValidateSlug(patch.NewSlug); err != nil {
			return nil, apperr.InvalidSlug(patch.NewSlug)
		}
		if reg.GetEntity(patch.NewSlug) != nil {
			return nil, apperr.Conflict("Entity already exists: " + patch.NewSlug)
		}
	}

	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	newSlug := slug
	if rename {
		newSlug = patch.NewSlug
	}
	displayName := entity.DisplayName
	if patch.DisplayName != nil {
		displayName = *patch.DisplayName
	}
	icon := entity.Icon
	if patch.Icon != nil {
		icon = *patch.Icon
	}
	layout := entity.Layout
	if patch.Layout != nil {
		layout = patch.Layout
	}
	layoutJSON, err := json.Marshal(orEmptyMap(layout))
	if err != nil {
		return nil, fmt.Errorf("encode layout: %w", err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE _entities SET slug = $1, display_name = $2, icon = $3, layout = $4, updated_at = NOW()
		 WHERE id = $5`,
		newSlug, displayName, icon, layoutJSON, entity.ID)
	if err != nil {
		return nil, mapCatalogError(err)
	}

	if rename && entity.Storage == metadata.StorageTable {
		sm := store.NewSchemaManager(tx)
		if err := sm.RenameTable(ctx, store.TenantSchema(tenant), slug, newSlug); err != nil {
			return nil, apperr.SchemaError(err.Error())
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	s.catalog.Invalidate(tenant)

	reg, err = s.catalog.Tenant(ctx, tenant)
	if err != nil {
		return nil, err
	}
	return reg.GetEntity(newSlug), nil
}

// DeleteEntity drops the physical storage and the metadata row. Fields and
// subscriptions cascade; navigation pages keep running with a nulled entity
// reference.
func (s *Service) DeleteEntity(ctx context.Context, tenant, slug string) error {
	reg, err := s.catalog.Tenant(ctx, tenant)
	if err != nil {
		return err
	}
	entity := reg.GetEntity(slug)
	if entity == nil {
		return apperr.UnknownEntity(slug)
	}

	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	schema := store.TenantSchema(tenant)
	if entity.Storage == metadata.StorageDocument {
		_, err = tx.Exec(ctx,
			fmt.Sprintf("DELETE FROM %s._documents WHERE entity_id = $1", schema), entity.ID)
		if err != nil {
			return apperr.SchemaError(err.Error())
		}
	} else {
		sm := store.NewSchemaManager(tx)
		if err := sm.DropTable(ctx, schema, slug); err != nil {
			return apperr.SchemaError(err.Error())
		}
	}

	if _, err := tx.Exec(ctx, "DELETE FROM _entities WHERE id = $1", entity.ID); err != nil {
		return mapCatalogError(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	s.catalog.Invalidate(tenant)
	return nil
}

// AddField inserts a field and its column in one transaction.
func (s *Service) AddField(ctx context.Context, tenant, entitySlug string, f *metadata.Field) (*metadata.Field, error) {
	if err := metadata.ValidateSlug(f.Name); err != nil {
		return nil, apperr.InvalidSlug(f.Name)
	}

	reg, err := s.catalog.Tenant(ctx, tenant)
	if err != nil {
		return nil, err
	}
	entity := reg.GetEntity(entitySlug)
	if entity == nil {
		return nil, apperr.UnknownEntity(entitySlug)
	}
	if entity.HasField(f.Name) {
		return nil, apperr.Conflict("Field already exists: " + f.Name)
	}

	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	f.EntityID = entity.ID
	if f.Position == 0 {
		f.Position = len(entity.Fields)
	}
	if err := insertField(ctx, tx, f); err != nil {
		return nil, err
	}

	if !f.IsVirtual && entity.Storage == metadata.StorageTable {
		sm := store.NewSchemaManager(tx)
		if err := sm.AddColumn(ctx, store.TenantSchema(tenant), entitySlug, f.Name, f.Type, f.Required); err != nil {
			return nil, apperr.SchemaError(err.Error())
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	s.catalog.Invalidate(tenant)
	return f, nil
}

// FieldPatch carries the mutable field attributes. NewName renames the field
// and its column together. Type changes are not supported.
type FieldPatch struct {
	NewName  string                 `json:"name,omitempty"`
	Label    *string                `json:"label,omitempty"`
	Required *bool                  `json:"required,omitempty"`
	Options  *metadata.FieldOptions `json:"options,omitempty"`
	Formula  *string                `json:"formula,omitempty"`
	Position *int                   `json:"position,omitempty"`
}

// UpdateField applies a patch; renames are atomic with the column rename.
func (s *Service) UpdateField(ctx context.Context, tenant, entitySlug, name string, patch *FieldPatch) (*metadata.Field, error) {
	reg, err := s.catalog.Tenant(ctx, tenant)
	if err != nil {
		return nil, err
	}
	entity := reg.GetEntity(entitySlug)
	if entity == nil {
		return nil, apperr.UnknownEntity(entitySlug)
	}
	field := entity.GetField(name)
	if field == nil {
		return nil, apperr.NotFound("field", name)
	}

	rename := patch.NewName != "" && patch.NewName != name
	if rename {
		if err := metadata.ValidateSlug(patch.NewName); err != nil {
			return nil, apperr.InvalidSlug(patch.NewName)
		}
		if entity.HasField(patch.NewName) {
			return nil, apperr.Conflict("Field already exists: " + patch.NewName)
		}
	}

	updated := *field
	if rename {
		updated.Name = patch.NewName
	}
	if patch.Label != nil {
		updated.Label = *patch.Label
	}
	if patch.Required != nil {
		updated.Required = *patch.Required
	}
	if patch.Options != nil {
		updated.Options = *patch.Options
	}
	if patch.Formula != nil {
		updated.Formula = *patch.Formula
	}
	if patch.Position != nil {
		updated.Position = *patch.Position
	}

	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	optionsJSON, err := json.Marshal(updated.Options)
	if err != nil {
		return nil, fmt.Errorf("encode options: %w", err)
	}
	_, err = tx.Exec(ctx,
		`UPDATE _fields SET name = $1, label = $2, required = $3, options = $4,
		        formula = $5, position = $6, updated_at = NOW()
		 WHERE id = $7`,
		updated.Name, updated.Label, updated.Required, optionsJSON,
		updated.Formula, updated.Position, field.ID)
	if err != nil {
		return nil, mapCatalogError(err)
	}

	if rename && !field.IsVirtual && entity.Storage == metadata.StorageTable {
		sm := store.NewSchemaManager(tx)
		if err := sm.RenameColumn(ctx, store.TenantSchema(tenant), entitySlug, name, updated.Name); err != nil {
			return nil, apperr.SchemaError(err.Error())
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	s.catalog.Invalidate(tenant)
	return &updated, nil
}

// DeleteField removes the field row and its column in one transaction.
func (s *Service) DeleteField(ctx context.Context, tenant, entitySlug, name string) error {
	reg, err := s.catalog.Tenant(ctx, tenant)
	if err != nil {
		return err
	}
	entity := reg.GetEntity(entitySlug)
	if entity == nil {
		return apperr.UnknownEntity(entitySlug)
	}
	field := entity.GetField(name)
	if field == nil {
		return apperr.NotFound("field", name)
	}

	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "DELETE FROM _fields WHERE id = $1", field.ID); err != nil {
		return mapCatalogError(err)
	}

	if !field.IsVirtual && entity.Storage == metadata.StorageTable {
		sm := store.NewSchemaManager(tx)
		if err := sm.DropColumn(ctx, store.TenantSchema(tenant), entitySlug, name); err != nil {
			return apperr.SchemaError(err.Error())
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	s.catalog.Invalidate(tenant)
	return nil
}

func insertField(ctx context.Context, q store.Querier, f *metadata.Field) error {
	optionsJSON, err := json.Marshal(f.Options)
	if err != nil {
		return fmt.Errorf("encode field options: %w", err)
	}
	err = q.QueryRow(ctx,
		`INSERT INTO _fields (entity_id, name, label, type, required, options, formula, is_virtual, position)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id::text`,
		f.EntityID, f.Name, f.Label, f.Type, f.Required, optionsJSON,
		f.Formula, f.IsVirtual, f.Position).Scan(&f.ID)
	if err != nil {
		return mapCatalogError(err)
	}
	return nil
}

func orEmptyMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

func mapCatalogError(err error) error {
	mapped := store.MapError(err)
	if errors.Is(mapped, store.ErrUniqueViolation) {
		return apperr.Conflict(mapped.Error())
	}
	if errors.Is(mapped, store.ErrNotFound) {
		return apperr.New("NOT_FOUND", 404, "not found")
	}
	return err
}
