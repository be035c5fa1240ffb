package store

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

var identifierRE = regexp.MustCompile(`^[a-z0-9_]+$`)

// ErrBadIdentifier is wrapped by every identifier validation failure.
var ErrBadIdentifier = fmt.Errorf("identifier must match ^[a-z0-9_]+$")

// SchemaManager is the sole custodian of DDL against tenant schemas.
// Callers are expected to validate names before reaching this layer; an
// invalid identifier here is a fatal input error, not a recoverable state.
type SchemaManager struct {
	q Querier
}

func NewSchemaManager(q Querier) *SchemaManager {
	return &SchemaManager{q: q}
}

// TenantSchema returns the physical schema name for a tenant identifier.
// Hyphens become underscores.
func TenantSchema(tenant string) string {
	return "tenant_" + strings.ReplaceAll(strings.ToLower(tenant), "-", "_")
}

// ColumnType maps a field type to its SQL type. Unknown types map to TEXT.
func ColumnType(fieldType string) string {
	switch fieldType {
	case "text", "long_text", "select", "email", "phone", "whatsapp":
		return "TEXT"
	case "number":
		return "NUMERIC"
	case "integer":
		return "INTEGER"
	case "boolean":
		return "BOOLEAN"
	case "date", "datetime":
		return "TIMESTAMPTZ"
	case "currency":
		return "NUMERIC(15,2)"
	default:
		return "TEXT"
	}
}

func validIdent(names ...string) error {
	for _, n := range names {
		if !identifierRE.MatchString(n) {
			return fmt.Errorf("%w: %q", ErrBadIdentifier, n)
		}
	}
	return nil
}

// CreateSchema creates the tenant schema if it does not exist.
func (m *SchemaManager) CreateSchema(ctx context.Context, schema string) error {
	if err := validIdent(schema); err != nil {
		return err
	}
	_, err := m.q.Exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", schema))
	if err != nil {
		return fmt.Errorf("create schema %s: %w", schema, err)
	}
	return nil
}

// DropSchema drops the tenant schema and everything in it.
func (m *SchemaManager) DropSchema(ctx context.Context, schema string) error {
	if err := validIdent(schema); err != nil {
		return err
	}
	_, err := m.q.Exec(ctx, fmt.Sprintf("DROP SCHEMA IF EXISTS %s CASCADE", schema))
	if err != nil {
		return fmt.Errorf("drop schema %s: %w", schema, err)
	}
	return nil
}

// CreateTable creates a record table with the conventional id/created_at/
// updated_at columns. User columns are appended with AddColumn.
func (m *SchemaManager) CreateTable(ctx context.Context, schema, slug string) error {
	if err := validIdent(schema, slug); err != nil {
		return err
	}
	sql := fmt.Sprintf(`CREATE TABLE %s.%s (
  id TEXT PRIMARY KEY,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`, schema, slug)
	if _, err := m.q.Exec(ctx, sql); err != nil {
		return fmt.Errorf("create table %s.%s: %w", schema, slug, err)
	}
	return nil
}

// RenameTable renames a record table.
func (m *SchemaManager) RenameTable(ctx context.Context, schema, oldSlug, newSlug string) error {
	if err := validIdent(schema, oldSlug, newSlug); err != nil {
		return err
	}
	sql := fmt.Sprintf("ALTER TABLE %s.%s RENAME TO %s", schema, oldSlug, newSlug)
	if _, err := m.q.Exec(ctx, sql); err != nil {
		return fmt.Errorf("rename table %s.%s to %s: %w", schema, oldSlug, newSlug, err)
	}
	return nil
}

// DropTable drops a record table.
func (m *SchemaManager) DropTable(ctx context.Context, schema, slug string) error {
	if err := validIdent(schema, slug); err != nil {
		return err
	}
	sql := fmt.Sprintf("DROP TABLE IF EXISTS %s.%s", schema, slug)
	if _, err := m.q.Exec(ctx, sql); err != nil {
		return fmt.Errorf("drop table %s.%s: %w", schema, slug, err)
	}
	return nil
}

// AddColumn appends a user column of the mapped SQL type.
func (m *SchemaManager) AddColumn(ctx context.Context, schema, slug, name, fieldType string, required bool) error {
	if err := validIdent(schema, slug, name); err != nil {
		return err
	}
	sql := fmt.Sprintf("ALTER TABLE %s.%s ADD COLUMN %s %s", schema, slug, name, ColumnType(fieldType))
	if required {
		// Existing rows need a value before NOT NULL can hold.
		sql += " NULL"
	}
	if _, err := m.q.Exec(ctx, sql); err != nil {
		return fmt.Errorf("add column %s.%s.%s: %w", schema, slug, name, err)
	}
	return nil
}

// RenameColumn renames a user column.
func (m *SchemaManager) RenameColumn(ctx context.Context, schema, slug, oldName, newName string) error {
	if err := validIdent(schema, slug, oldName, newName); err != nil {
		return err
	}
	sql := fmt.Sprintf("ALTER TABLE %s.%s RENAME COLUMN %s TO %s", schema, slug, oldName, newName)
	if _, err := m.q.Exec(ctx, sql); err != nil {
		return fmt.Errorf("rename column %s.%s.%s: %w", schema, slug, oldName, err)
	}
	return nil
}

// DropColumn drops a user column.
func (m *SchemaManager) DropColumn(ctx context.Context, schema, slug, name string) error {
	if err := validIdent(schema, slug, name); err != nil {
		return err
	}
	sql := fmt.Sprintf("ALTER TABLE %s.%s DROP COLUMN IF EXISTS %s", schema, slug, name)
	if _, err := m.q.Exec(ctx, sql); err != nil {
		return fmt.Errorf("drop column %s.%s.%s: %w", schema, slug, name, err)
	}
	return nil
}

// EnsureDocumentTable creates the shared flexible-document table that backs
// document-storage entities within a tenant schema.
func (m *SchemaManager) EnsureDocumentTable(ctx context.Context, schema string) error {
	if err := validIdent(schema); err != nil {
		return err
	}
	sql := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s._documents (
  entity_id TEXT NOT NULL,
  id TEXT NOT NULL,
  payload JSONB NOT NULL DEFAULT '{}',
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  PRIMARY KEY (entity_id, id)
)`, schema)
	if _, err := m.q.Exec(ctx, sql); err != nil {
		return fmt.Errorf("ensure document table in %s: %w", schema, err)
	}
	return nil
}
