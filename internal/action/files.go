package action

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"html/template"
	"strings"

	"github.com/oklog/ulid/v2"

	"strata-backend/internal/formula"
	"strata-backend/internal/metadata"
)

// generateCSV exports an entity's records to a CSV file and returns its URL.
// config: {entity, filter} where filter is an optional formula evaluated per
// row.
func (e *Executor) generateCSV(ctx context.Context, tenant string,
	config map[string]any, user *metadata.UserContext) (map[string]any, error) {

	if e.files == nil {
		return nil, fmt.Errorf("file storage not configured")
	}
	entitySlug := configString(config, "entity")
	filter := configString(config, "filter")

	rows, err := e.records.List(ctx, tenant, entitySlug, nil, "", 0, 0)
	if err != nil {
		return nil, err
	}

	if filter != "" {
		if _, err := formula.Parse(filter); err != nil {
			return nil, fmt.Errorf("csv filter: %w", err)
		}
	}

	columns := e.columnsFor(ctx, tenant, entitySlug)

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(columns); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	for _, row := range rows {
		if filter != "" {
			fctx := &formula.Context{Tenant: tenant, Payload: row, User: user}
			if !formula.Truthy(e.engine.EvaluateQuiet(ctx, filter, fctx)) {
				continue
			}
		}
		line := make([]string, len(columns))
		for i, col := range columns {
			line[i] = cellString(row[col])
		}
		if err := w.Write(line); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}

	filename := fmt.Sprintf("%s_%s.csv", entitySlug, strings.ToLower(ulid.Make().String()))
	if _, err := e.files.Save(ctx, tenant, filename, &buf); err != nil {
		return nil, err
	}
	return map[string]any{"url": e.files.URL(tenant, filename)}, nil
}

// generatePDF renders an HTML document from a template string and a context
// map. config: {template, context}.
func (e *Executor) generatePDF(ctx context.Context, tenant string, config map[string]any) (map[string]any, error) {
	if e.files == nil {
		return nil, fmt.Errorf("file storage not configured")
	}
	tmplSrc := configString(config, "template")
	if tmplSrc == "" {
		return nil, fmt.Errorf("pdf: missing template")
	}
	data := configMap(config, "context")

	tmpl, err := template.New("document").Parse(tmplSrc)
	if err != nil {
		return nil, fmt.Errorf("pdf template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("pdf render: %w", err)
	}

	filename := fmt.Sprintf("document_%s.html", strings.ToLower(ulid.Make().String()))
	if _, err := e.files.Save(ctx, tenant, filename, &buf); err != nil {
		return nil, err
	}
	return map[string]any{"url": e.files.URL(tenant, filename)}, nil
}

// columnsFor returns the export column order for an entity: the conventional
// columns followed by fields in position order.
func (e *Executor) columnsFor(ctx context.Context, tenant, entitySlug string) []string {
	columns := []string{"id", "created_at", "updated_at"}
	entity, err := e.records.Entity(ctx, tenant, entitySlug)
	if err != nil {
		return columns
	}
	return append(columns, entity.FieldNames()...)
}

func cellString(v any) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%v", v)
}
