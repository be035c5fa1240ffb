package metadata

import "time"

// Storage policies for an entity's records.
const (
	StorageTable    = "table"    // dedicated physical table named after the slug
	StorageDocument = "document" // row in the shared _documents table
)

type Entity struct {
	ID          string         `json:"id"`
	Tenant      string         `json:"tenant"`
	Slug        string         `json:"slug"`
	DisplayName string         `json:"display_name"`
	Icon        string         `json:"icon,omitempty"`
	Layout      map[string]any `json:"layout,omitempty"`
	Storage     string         `json:"storage"`
	IsSystem    bool           `json:"is_system,omitempty"`
	Fields      []Field        `json:"fields"`
	CreatedAt   time.Time      `json:"created_at,omitempty"`
	UpdatedAt   time.Time      `json:"updated_at,omitempty"`
}

type Field struct {
	ID        string       `json:"id"`
	EntityID  string       `json:"entity_id"`
	Name      string       `json:"name"`
	Label     string       `json:"label"`
	Type      string       `json:"type"`
	Required  bool         `json:"required,omitempty"`
	Options   FieldOptions `json:"options,omitempty"`
	Formula   string       `json:"formula,omitempty"`
	IsVirtual bool         `json:"is_virtual,omitempty"`
	Position  int          `json:"position"`
}

// FieldOptions carries the per-type options payload. For select fields,
// Values lists the choices; for lookup fields, Target names the entity slug
// the stored identifier points at.
type FieldOptions struct {
	Values  []string `json:"values,omitempty"`
	Target  string   `json:"target,omitempty"`
	Default any      `json:"default,omitempty"`
}

// IsSnapshot reports whether the field stores a formula result on write.
func (f Field) IsSnapshot() bool {
	return f.Formula != "" && !f.IsVirtual
}

// IsDerived reports whether the field computes its formula on read.
func (f Field) IsDerived() bool {
	return f.Formula != "" && f.IsVirtual
}

// GetField returns a pointer to the field with the given name, or nil.
func (e *Entity) GetField(name string) *Field {
	for i := range e.Fields {
		if e.Fields[i].Name == name {
			return &e.Fields[i]
		}
	}
	return nil
}

// HasField returns true if the entity has a field with the given name.
func (e *Entity) HasField(name string) bool {
	return e.GetField(name) != nil
}

// FieldNames returns all field names in position order.
func (e *Entity) FieldNames() []string {
	names := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		names[i] = f.Name
	}
	return names
}

// PhysicalFields returns the fields backed by a physical column.
func (e *Entity) PhysicalFields() []Field {
	var fields []Field
	for _, f := range e.Fields {
		if !f.IsVirtual {
			fields = append(fields, f)
		}
	}
	return fields
}

// SnapshotFields returns snapshot-formula fields in declaration order.
func (e *Entity) SnapshotFields() []Field {
	var fields []Field
	for _, f := range e.Fields {
		if f.IsSnapshot() {
			fields = append(fields, f)
		}
	}
	return fields
}

// Defaults returns the declared default values keyed by field name.
func (e *Entity) Defaults() map[string]any {
	defaults := make(map[string]any)
	for _, f := range e.Fields {
		if f.Options.Default != nil {
			defaults[f.Name] = f.Options.Default
		}
	}
	return defaults
}

// RequiredFields returns the names of required fields.
func (e *Entity) RequiredFields() []string {
	var names []string
	for _, f := range e.Fields {
		if f.Required {
			names = append(names, f.Name)
		}
	}
	return names
}
