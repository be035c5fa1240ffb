package record

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"strata-backend/internal/apperr"
	"strata-backend/internal/formula"
	"strata-backend/internal/metadata"
	"strata-backend/internal/store"
)

// Emitter receives one event per successful record mutation. Implemented by
// the event dispatcher; wired after construction to keep the packages
// acyclic.
type Emitter interface {
	Emit(ctx context.Context, tenant string, entity *metadata.Entity, eventKind string,
		data map[string]any, changes map[string]any, actor *metadata.UserContext)
}

// Store reads and writes records for named entities. It owns the write
// pipeline: resolve entity, merge defaults, recompute snapshot formulas,
// persist, emit.
type Store struct {
	q       store.Querier
	catalog *metadata.Catalog
	emitter Emitter
	engine  *formula.Engine
}

func New(q store.Querier, catalog *metadata.Catalog, engineOpts ...formula.Option) *Store {
	s := &Store{q: q, catalog: catalog}
	s.engine = formula.New(s, engineOpts...)
	return s
}

// SetEmitter wires the event dispatcher. Must be called before serving.
func (s *Store) SetEmitter(e Emitter) { s.emitter = e }

// Engine exposes the formula engine bound to this store's record source.
func (s *Store) Engine() *formula.Engine { return s.engine }

func (s *Store) resolve(ctx context.Context, tenant, entitySlug string) (*metadata.Entity, error) {
	reg, err := s.catalog.Tenant(ctx, tenant)
	if err != nil {
		return nil, fmt.Errorf("load tenant catalog: %w", err)
	}
	entity := reg.GetEntity(entitySlug)
	if entity == nil {
		return nil, apperr.UnknownEntity(entitySlug)
	}
	return entity, nil
}

// Create persists a new record: defaults merged under the payload, snapshot
// fields recomputed in declaration order, ON_CREATE emitted after the write.
func (s *Store) Create(ctx context.Context, tenant, entitySlug string,
	payload map[string]any, user *metadata.UserContext) (map[string]any, error) {

	entity, err := s.resolve(ctx, tenant, entitySlug)
	if err != nil {
		return nil, err
	}

	merged := entity.Defaults()
	for k, v := range payload {
		if entity.HasField(k) {
			merged[k] = v
		}
	}

	var details []apperr.ErrorDetail
	for _, name := range entity.RequiredFields() {
		if isMissing(merged[name]) {
			details = append(details, apperr.ErrorDetail{
				Field: name, Rule: "required", Message: fmt.Sprintf("field %s is required", name),
			})
		}
	}
	if len(details) > 0 {
		return nil, apperr.Validation(details)
	}

	s.recomputeSnapshots(ctx, tenant, entity, merged, user)

	id := strings.ToLower(ulid.Make().String())
	now := time.Now().UTC()

	if err := s.insert(ctx, entity, id, merged, now); err != nil {
		return nil, mapWriteError(err)
	}

	record := s.materialize(ctx, tenant, entity, id, merged, now, now, user)
	if s.emitter != nil {
		s.emitter.Emit(ctx, tenant, entity, metadata.EventOnCreate, record, nil, user)
	}
	return record, nil
}

// Update merges a patch over the stored payload, recomputes snapshots and
// emits ON_UPDATE with the old/new delta.
func (s *Store) Update(ctx context.Context, tenant, entitySlug, id string,
	patch map[string]any, user *metadata.UserContext) (map[string]any, error) {

	entity, err := s.resolve(ctx, tenant, entitySlug)
	if err != nil {
		return nil, err
	}

	old, err := s.fetch(ctx, tenant, entity, id)
	if err != nil {
		return nil, err
	}

	merged := make(map[string]any, len(old))
	for _, f := range entity.Fields {
		if f.IsVirtual {
			continue
		}
		if v, ok := old[f.Name]; ok {
			merged[f.Name] = v
		}
	}
	for k, v := range patch {
		if entity.HasField(k) {
			merged[k] = v
		}
	}

	s.recomputeSnapshots(ctx, tenant, entity, merged, user)

	now := time.Now().UTC()
	if err := s.update(ctx, entity, id, merged, now); err != nil {
		return nil, mapWriteError(err)
	}

	createdAt, _ := old["created_at"].(time.Time)
	record := s.materialize(ctx, tenant, entity, id, merged, createdAt, now, user)
	if s.emitter != nil {
		changes := map[string]any{"old": old, "new": record}
		s.emitter.Emit(ctx, tenant, entity, metadata.EventOnUpdate, record, changes, user)
	}
	return record, nil
}

// Delete removes a record and emits ON_DELETE carrying the old payload.
func (s *Store) Delete(ctx context.Context, tenant, entitySlug, id string,
	user *metadata.UserContext) error {

	entity, err := s.resolve(ctx, tenant, entitySlug)
	if err != nil {
		return err
	}

	old, err := s.fetch(ctx, tenant, entity, id)
	if err != nil {
		return err
	}

	schema := store.TenantSchema(tenant)
	var sqlStr string
	var args []any
	if entity.Storage == metadata.StorageDocument {
		sqlStr = fmt.Sprintf("DELETE FROM %s._documents WHERE entity_id = $1 AND id = $2", schema)
		args = []any{entity.ID, id}
	} else {
		sqlStr = fmt.Sprintf("DELETE FROM %s.%s WHERE id = $1", schema, entity.Slug)
		args = []any{id}
	}

	affected, err := store.Exec(ctx, s.q, sqlStr, args...)
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", entitySlug, id, err)
	}
	if affected == 0 {
		return apperr.NotFound(entitySlug, id)
	}

	if s.emitter != nil {
		s.emitter.Emit(ctx, tenant, entity, metadata.EventOnDelete, old, nil, user)
	}
	return nil
}

// Get returns one record, or a not-found error.
func (s *Store) Get(ctx context.Context, tenant, entitySlug, id string) (map[string]any, error) {
	entity, err := s.resolve(ctx, tenant, entitySlug)
	if err != nil {
		return nil, err
	}
	record, err := s.fetch(ctx, tenant, entity, id)
	if err != nil {
		return nil, err
	}
	s.applyDerived(ctx, tenant, entity, record)
	return record, nil
}

// recomputeSnapshots evaluates snapshot formulas in declaration order.
// Each formula sees the accumulated payload including earlier recomputes in
// this pass; a failing formula leaves its field missing.
func (s *Store) recomputeSnapshots(ctx context.Context, tenant string,
	entity *metadata.Entity, payload map[string]any, user *metadata.UserContext) {

	for _, f := range entity.SnapshotFields() {
		fctx := &formula.Context{Tenant: tenant, Payload: payload, User: user, Entity: entity}
		payload[f.Name] = s.engine.EvaluateQuiet(ctx, f.Formula, fctx)
	}
}

// applyDerived computes virtual-formula fields on read. Values are never
// stored.
func (s *Store) applyDerived(ctx context.Context, tenant string,
	entity *metadata.Entity, record map[string]any) {

	for _, f := range entity.Fields {
		if !f.IsDerived() {
			continue
		}
		fctx := &formula.Context{Tenant: tenant, Payload: record, User: nil, Entity: entity}
		record[f.Name] = s.engine.EvaluateQuiet(ctx, f.Formula, fctx)
	}
}

func (s *Store) insert(ctx context.Context, entity *metadata.Entity, id string,
	payload map[string]any, now time.Time) error {

	schema := store.TenantSchema(entity.Tenant)

	if entity.Storage == metadata.StorageDocument {
		doc, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode payload: %w", err)
		}
		_, err = store.Exec(ctx, s.q,
			fmt.Sprintf(`INSERT INTO %s._documents (entity_id, id, payload, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $4)`, schema),
			entity.ID, id, doc, now)
		return err
	}

	cols := []string{"id", "created_at", "updated_at"}
	placeholders := []string{"$1", "$2", "$3"}
	args := []any{id, now, now}
	for _, f := range entity.PhysicalFields() {
		cols = append(cols, f.Name)
		placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)+1))
		args = append(args, payload[f.Name])
	}

	_, err := store.Exec(ctx, s.q,
		fmt.Sprintf("INSERT INTO %s.%s (%s) VALUES (%s)",
			schema, entity.Slug, strings.Join(cols, ", "), strings.Join(placeholders, ", ")),
		args...)
	return err
}

func (s *Store) update(ctx context.Context, entity *metadata.Entity, id string,
	payload map[string]any, now time.Time) error {

	schema := store.TenantSchema(entity.Tenant)

	if entity.Storage == metadata.StorageDocument {
		doc, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode payload: %w", err)
		}
		_, err = store.Exec(ctx, s.q,
			fmt.Sprintf(`UPDATE %s._documents SET payload = $1, updated_at = $2
			 WHERE entity_id = $3 AND id = $4`, schema),
			doc, now, entity.ID, id)
		return err
	}

	sets := []string{"updated_at = $1"}
	args := []any{now}
	for _, f := range entity.PhysicalFields() {
		args = append(args, payload[f.Name])
		sets = append(sets, fmt.Sprintf("%s = $%d", f.Name, len(args)))
	}
	args = append(args, id)

	_, err := store.Exec(ctx, s.q,
		fmt.Sprintf("UPDATE %s.%s SET %s WHERE id = $%d",
			schema, entity.Slug, strings.Join(sets, ", "), len(args)),
		args...)
	return err
}

func (s *Store) materialize(ctx context.Context, tenant string, entity *metadata.Entity,
	id string, payload map[string]any, createdAt, updatedAt time.Time,
	user *metadata.UserContext) map[string]any {

	record := make(map[string]any, len(payload)+3)
	for k, v := range payload {
		record[k] = v
	}
	record["id"] = id
	record["created_at"] = createdAt
	record["updated_at"] = updatedAt
	s.applyDerived(ctx, tenant, entity, record)
	return record
}

func isMissing(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return s == ""
	}
	return false
}

func mapWriteError(err error) error {
	mapped := store.MapError(err)
	if errors.Is(mapped, store.ErrUniqueViolation) {
		return apperr.Conflict(mapped.Error())
	}
	return mapped
}

// Entity resolves an entity definition from the tenant catalog.
func (s *Store) Entity(ctx context.Context, tenant, entitySlug string) (*metadata.Entity, error) {
	return s.resolve(ctx, tenant, entitySlug)
}

// GetRecord implements formula.RecordSource.
func (s *Store) GetRecord(ctx context.Context, tenant, entitySlug, id string) (map[string]any, error) {
	entity, err := s.resolve(ctx, tenant, entitySlug)
	if err != nil {
		return nil, err
	}
	return s.fetch(ctx, tenant, entity, id)
}

// ListRecords implements formula.RecordSource. Loads the full entity in
// insertion order; the formula SELECT/FILTER functions filter in memory.
func (s *Store) ListRecords(ctx context.Context, tenant, entitySlug string) ([]map[string]any, error) {
	entity, err := s.resolve(ctx, tenant, entitySlug)
	if err != nil {
		return nil, err
	}
	return s.listAll(ctx, tenant, entity)
}
