package trail

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/pashagolub/pgxmock/v4"

	"strata-backend/internal/formula"
	"strata-backend/internal/metadata"
)

// expectTrailCatalog queues the catalog queries for tenant acme with one
// manual trail carrying the given node graph.
func expectTrailCatalog(t *testing.T, mock pgxmock.PgxPoolIface, nodesJSON string) {
	t.Helper()
	mock.ExpectQuery(`FROM _entities`).WithArgs("acme").WillReturnRows(
		pgxmock.NewRows([]string{"id", "tenant", "slug", "display_name", "icon", "layout", "storage", "is_system", "created_at", "updated_at"}))
	mock.ExpectQuery(`FROM _fields`).WithArgs("acme").WillReturnRows(
		pgxmock.NewRows([]string{"id", "entity_id", "name", "label", "type", "required", "options", "formula", "is_virtual", "position"}))
	mock.ExpectQuery(`FROM _nav_groups`).WithArgs("acme").WillReturnRows(
		pgxmock.NewRows([]string{"id", "tenant", "name", "icon", "position"}))
	mock.ExpectQuery(`FROM _nav_pages`).WithArgs("acme").WillReturnRows(
		pgxmock.NewRows([]string{"id", "tenant", "group_id", "name", "entity_id", "layout", "subpages", "default_detail", "default_form", "position"}))
	mock.ExpectQuery(`FROM _actions`).WithArgs("acme").WillReturnRows(
		pgxmock.NewRows([]string{"id", "tenant", "name", "trigger_source", "trigger_context", "action_type", "config"}))
	mock.ExpectQuery(`FROM _trails`).WithArgs("acme").WillReturnRows(
		pgxmock.NewRows([]string{"id", "tenant", "name", "active", "trigger", "nodes", "variables"}).
			AddRow("t1", "acme", "approval", true, []byte(`{"type":"manual"}`), []byte(nodesJSON), []byte(nil)))
	mock.ExpectQuery(`FROM _subscriptions`).WithArgs("acme").WillReturnRows(
		pgxmock.NewRows([]string{"id", "tenant", "entity_id", "event_kind", "target_url", "trail_id", "condition", "active"}))
}

func TestRunHandlerAcceptsContextKey(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	nodesJSON := `{
		"start": {"type":"TRIGGER","next_node_id":"check"},
		"check": {"type":"DECISION","condition":"[amount] > 1000","next_true":"nav","next_false":"notify"},
		"nav": {"type":"ACTION","action_type":"NAVIGATE","config":{"page_id":"po"}},
		"notify": {"type":"ACTION","action_type":"SEND_NOTIFICATION","config":{"recipient":"manager","message":"small order"}}
	}`
	expectTrailCatalog(t, mock, nodesJSON)

	exec := &fakeExecutor{}
	svc := NewService(NewRuntime(exec, formula.New(nil)), metadata.NewCatalog(mock))

	app := fiber.New()
	authMW := func(c *fiber.Ctx) error {
		c.Locals("user", &metadata.UserContext{ID: "u1", Tenant: "acme"})
		return c.Next()
	}
	RegisterRoutes(app, NewHandler(svc), authMW)

	body, err := json.Marshal(map[string]any{
		"trail_id": "t1",
		"context":  map[string]any{"amount": float64(500)},
	})
	if err != nil {
		t.Fatalf("encode body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/trails/run", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	// The context map feeds the decision: 500 routes to the false branch.
	if len(exec.calls) != 1 || exec.calls[0].actionType != metadata.ActionSendNotification {
		t.Fatalf("expected SEND_NOTIFICATION from the context amount, got %+v", exec.calls)
	}

	var decoded struct {
		Data struct {
			Status  string                    `json:"status"`
			Results map[string]map[string]any `json:"results"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Data.Status != StatusCompleted {
		t.Errorf("expected completed run, got %s", decoded.Data.Status)
	}
	if _, ok := decoded.Data.Results["notify"]; !ok {
		t.Errorf("expected notify result recorded, got %+v", decoded.Data.Results)
	}
}
