package metadata

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
)

// expectTenantLoad queues the full set of catalog queries for tenant acme
// with the given result sets. Pass nil for an empty table.
func expectTenantLoad(mock pgxmock.PgxPoolIface, entities, fields, groups, pages, actions, trails, subs *pgxmock.Rows) {
	if entities == nil {
		entities = pgxmock.NewRows([]string{"id", "tenant", "slug", "display_name", "icon", "layout", "storage", "is_system", "created_at", "updated_at"})
	}
	if fields == nil {
		fields = pgxmock.NewRows([]string{"id", "entity_id", "name", "label", "type", "required", "options", "formula", "is_virtual", "position"})
	}
	if groups == nil {
		groups = pgxmock.NewRows([]string{"id", "tenant", "name", "icon", "position"})
	}
	if pages == nil {
		pages = pgxmock.NewRows([]string{"id", "tenant", "group_id", "name", "entity_id", "layout", "subpages", "default_detail", "default_form", "position"})
	}
	if actions == nil {
		actions = pgxmock.NewRows([]string{"id", "tenant", "name", "trigger_source", "trigger_context", "action_type", "config"})
	}
	if trails == nil {
		trails = pgxmock.NewRows([]string{"id", "tenant", "name", "active", "trigger", "nodes", "variables"})
	}
	if subs == nil {
		subs = pgxmock.NewRows([]string{"id", "tenant", "entity_id", "event_kind", "target_url", "trail_id", "condition", "active"})
	}

	mock.ExpectQuery(`FROM _entities`).WithArgs("acme").WillReturnRows(entities)
	mock.ExpectQuery(`FROM _fields`).WithArgs("acme").WillReturnRows(fields)
	mock.ExpectQuery(`FROM _nav_groups`).WithArgs("acme").WillReturnRows(groups)
	mock.ExpectQuery(`FROM _nav_pages`).WithArgs("acme").WillReturnRows(pages)
	mock.ExpectQuery(`FROM _actions`).WithArgs("acme").WillReturnRows(actions)
	mock.ExpectQuery(`FROM _trails`).WithArgs("acme").WillReturnRows(trails)
	mock.ExpectQuery(`FROM _subscriptions`).WithArgs("acme").WillReturnRows(subs)
}

func TestLoadTenantAssemblesRegistry(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	now := time.Now()
	entities := pgxmock.NewRows([]string{"id", "tenant", "slug", "display_name", "icon", "layout", "storage", "is_system", "created_at", "updated_at"}).
		AddRow("e1", "acme", "orders", "Orders", "cart", []byte(`{"columns":["title"]}`), StorageTable, false, now, now)
	fields := pgxmock.NewRows([]string{"id", "entity_id", "name", "label", "type", "required", "options", "formula", "is_virtual", "position"}).
		AddRow("f1", "e1", "title", "Title", "text", true, []byte(nil), "", false, 0).
		AddRow("f2", "e1", "status", "Status", "select", false, []byte(`{"values":["open","closed"],"default":"open"}`), "", false, 1)
	trails := pgxmock.NewRows([]string{"id", "tenant", "name", "active", "trigger", "nodes", "variables"}).
		AddRow("t1", "acme", "follow-up", true,
			[]byte(`{"type":"manual"}`),
			[]byte(`{"start":{"type":"TRIGGER"}}`),
			[]byte(nil))
	subs := pgxmock.NewRows([]string{"id", "tenant", "entity_id", "event_kind", "target_url", "trail_id", "condition", "active"}).
		AddRow("s1", "acme", "e1", EventOnCreate, "", "t1", "data.amount > 100", true).
		AddRow("s2", "acme", "e-gone", EventOnCreate, "https://example.com", "", "", true) // dangling, skipped

	expectTenantLoad(mock, entities, fields, nil, nil, nil, trails, subs)

	reg, err := LoadTenant(context.Background(), mock, "acme")
	if err != nil {
		t.Fatalf("LoadTenant: %v", err)
	}

	e := reg.GetEntity("orders")
	if e == nil {
		t.Fatal("expected orders entity")
	}
	if len(e.Fields) != 2 {
		t.Fatalf("expected 2 fields, got %d", len(e.Fields))
	}
	if e.Fields[1].Options.Default != "open" {
		t.Errorf("expected status default open, got %v", e.Fields[1].Options.Default)
	}
	if e.Layout["columns"] == nil {
		t.Errorf("expected layout decoded, got %v", e.Layout)
	}

	if tr := reg.GetTrail("t1"); tr == nil || tr.Nodes.Len() != 1 {
		t.Errorf("expected trail t1 with one node, got %+v", tr)
	}

	active := reg.GetSubscriptions("orders", EventOnCreate)
	if len(active) != 1 || active[0].ID != "s1" {
		t.Errorf("expected dangling subscription dropped, got %+v", active)
	}
	if active[0].EntitySlug != "orders" {
		t.Errorf("expected slug resolved from entity id, got %q", active[0].EntitySlug)
	}
	// Conditions compile at load; the shared subscription is read-only after.
	if active[0].Compiled == nil {
		t.Error("expected condition compiled at load")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestLoadTenantSkipsInvalidTrailJSON(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	trails := pgxmock.NewRows([]string{"id", "tenant", "name", "active", "trigger", "nodes", "variables"}).
		AddRow("t1", "acme", "broken", true, []byte(`{"type":"manual"}`), []byte(`not json`), []byte(nil)).
		AddRow("t2", "acme", "good", true, []byte(`{"type":"manual"}`), []byte(`{"start":{"type":"TRIGGER"}}`), []byte(nil))

	expectTenantLoad(mock, nil, nil, nil, nil, nil, trails, nil)

	reg, err := LoadTenant(context.Background(), mock, "acme")
	if err != nil {
		t.Fatalf("LoadTenant: %v", err)
	}
	if tr := reg.GetTrail("t1"); tr != nil {
		t.Errorf("expected broken trail skipped, got %+v", tr)
	}
	if tr := reg.GetTrail("t2"); tr == nil {
		t.Error("expected good trail loaded")
	}
}

func TestCatalogCachesAndInvalidates(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	expectTenantLoad(mock, nil, nil, nil, nil, nil, nil, nil)

	cat := NewCatalog(mock)
	ctx := context.Background()

	if _, err := cat.Tenant(ctx, "acme"); err != nil {
		t.Fatalf("first load: %v", err)
	}
	// Second access hits the cache; no further queries expected.
	if _, err := cat.Tenant(ctx, "acme"); err != nil {
		t.Fatalf("cached load: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}

	// After invalidation the next access reloads.
	expectTenantLoad(mock, nil, nil, nil, nil, nil, nil, nil)
	cat.Invalidate("acme")
	if _, err := cat.Tenant(ctx, "acme"); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}
