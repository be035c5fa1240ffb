package record

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"strata-backend/internal/apperr"
	"strata-backend/internal/metadata"
	"strata-backend/internal/store"
)

const defaultListLimit = 100

// fetch loads one record without derived fields.
func (s *Store) fetch(ctx context.Context, tenant string, entity *metadata.Entity, id string) (map[string]any, error) {
	schema := store.TenantSchema(tenant)

	if entity.Storage == metadata.StorageDocument {
		row, err := store.QueryRowMap(ctx, s.q,
			fmt.Sprintf(`SELECT id, payload, created_at, updated_at FROM %s._documents
			 WHERE entity_id = $1 AND id = $2`, schema),
			entity.ID, id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, apperr.NotFound(entity.Slug, id)
			}
			return nil, err
		}
		return documentRecord(row), nil
	}

	row, err := store.QueryRowMap(ctx, s.q,
		fmt.Sprintf("SELECT %s FROM %s.%s WHERE id = $1", selectList(entity), schema, entity.Slug),
		id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.NotFound(entity.Slug, id)
		}
		return nil, err
	}
	return row, nil
}

// List returns records matching optional field equality filters and a
// free-text query. Results carry derived fields.
func (s *Store) List(ctx context.Context, tenant, entitySlug string,
	filters map[string]string, textQuery string, limit, offset int) ([]map[string]any, error) {

	entity, err := s.resolve(ctx, tenant, entitySlug)
	if err != nil {
		return nil, err
	}
	rows, err := s.list(ctx, tenant, entity, filters, textQuery, limit, offset)
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		s.applyDerived(ctx, tenant, entity, row)
	}
	return rows, nil
}

func (s *Store) list(ctx context.Context, tenant string, entity *metadata.Entity,
	filters map[string]string, textQuery string, limit, offset int) ([]map[string]any, error) {

	if limit <= 0 {
		limit = defaultListLimit
	}
	schema := store.TenantSchema(tenant)

	if entity.Storage == metadata.StorageDocument {
		return s.listDocuments(ctx, schema, entity, filters, textQuery, limit, offset)
	}

	var where []string
	var args []any
	for name, value := range filters {
		if !entity.HasField(name) || entity.GetField(name).IsVirtual {
			continue
		}
		args = append(args, value)
		where = append(where, fmt.Sprintf("%s::text = $%d", name, len(args)))
	}
	if textQuery != "" {
		args = append(args, "%"+textQuery+"%")
		where = append(where, fmt.Sprintf("t::text ILIKE $%d", len(args)))
	}

	sqlStr := fmt.Sprintf("SELECT %s FROM %s.%s t", selectList(entity), schema, entity.Slug)
	if len(where) > 0 {
		sqlStr += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, limit, offset)
	sqlStr += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := store.QueryRows(ctx, s.q, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", entity.Slug, err)
	}
	if rows == nil {
		rows = []map[string]any{}
	}
	return rows, nil
}

// listAll loads every record of an entity in insertion order, with no limit.
// Serves the formula record source: SELECT/FILTER and the aggregates filter
// in memory and must see the whole entity, oldest first.
func (s *Store) listAll(ctx context.Context, tenant string, entity *metadata.Entity) ([]map[string]any, error) {
	schema := store.TenantSchema(tenant)

	if entity.Storage == metadata.StorageDocument {
		rows, err := store.QueryRows(ctx, s.q,
			fmt.Sprintf(`SELECT id, payload, created_at, updated_at FROM %s._documents
			 WHERE entity_id = $1 ORDER BY created_at ASC`, schema), entity.ID)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", entity.Slug, err)
		}
		out := make([]map[string]any, 0, len(rows))
		for _, row := range rows {
			out = append(out, documentRecord(row))
		}
		return out, nil
	}

	rows, err := store.QueryRows(ctx, s.q,
		fmt.Sprintf("SELECT %s FROM %s.%s ORDER BY created_at ASC", selectList(entity), schema, entity.Slug))
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", entity.Slug, err)
	}
	if rows == nil {
		rows = []map[string]any{}
	}
	return rows, nil
}

func (s *Store) listDocuments(ctx context.Context, schema string, entity *metadata.Entity,
	filters map[string]string, textQuery string, limit, offset int) ([]map[string]any, error) {

	where := []string{"entity_id = $1"}
	args := []any{entity.ID}
	for name, value := range filters {
		if !entity.HasField(name) || entity.GetField(name).IsVirtual {
			continue
		}
		args = append(args, name, value)
		where = append(where, fmt.Sprintf("payload->>$%d = $%d", len(args)-1, len(args)))
	}
	if textQuery != "" {
		args = append(args, "%"+textQuery+"%")
		where = append(where, fmt.Sprintf("payload::text ILIKE $%d", len(args)))
	}

	args = append(args, limit, offset)
	sqlStr := fmt.Sprintf(`SELECT id, payload, created_at, updated_at FROM %s._documents
	 WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		schema, strings.Join(where, " AND "), len(args)-1, len(args))

	rows, err := store.QueryRows(ctx, s.q, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", entity.Slug, err)
	}

	out := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		out = append(out, documentRecord(row))
	}
	return out, nil
}

// selectList builds the column list for a physical table. NUMERIC columns are
// cast to float8 so the driver yields plain numbers instead of pgtype values.
func selectList(entity *metadata.Entity) string {
	cols := []string{"id", "created_at", "updated_at"}
	for _, f := range entity.PhysicalFields() {
		sqlType := store.ColumnType(f.Type)
		if strings.HasPrefix(sqlType, "NUMERIC") {
			cols = append(cols, fmt.Sprintf("%s::float8 AS %s", f.Name, f.Name))
		} else {
			cols = append(cols, f.Name)
		}
	}
	return strings.Join(cols, ", ")
}

// documentRecord flattens a _documents row into a record map.
func documentRecord(row map[string]any) map[string]any {
	record := map[string]any{}
	switch payload := row["payload"].(type) {
	case map[string]any:
		for k, v := range payload {
			record[k] = v
		}
	case []byte:
		if err := json.Unmarshal(payload, &record); err != nil {
			record = map[string]any{}
		}
	}
	record["id"] = row["id"]
	if t, ok := row["created_at"].(time.Time); ok {
		record["created_at"] = t
	}
	if t, ok := row["updated_at"].(time.Time); ok {
		record["updated_at"] = t
	}
	return record
}
