package action

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"strata-backend/internal/record"
)

func testExecutor(t *testing.T) *Executor {
	t.Helper()
	return NewExecutor(record.New(nil, nil), nil, "")
}

func TestExecuteMathOp(t *testing.T) {
	e := testExecutor(t)
	ctx := context.Background()

	// Already-resolved expression passes through.
	out, err := e.Execute(ctx, "acme", "MATH_OP",
		map[string]any{"expression": float64(42)}, nil, nil)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if out["value"] != float64(42) {
		t.Errorf("expected 42, got %v", out["value"])
	}

	// A raw string expression evaluates against the payload.
	out, err = e.Execute(ctx, "acme", "MATH_OP",
		map[string]any{"expression": "[a] + [b]"},
		map[string]any{"a": float64(2), "b": float64(3)}, nil)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if out["value"] != float64(5) {
		t.Errorf("expected 5, got %v", out["value"])
	}
}

func TestExecuteNavigate(t *testing.T) {
	e := testExecutor(t)

	out, err := e.Execute(context.Background(), "acme", "NAVIGATE",
		map[string]any{"page_id": "orders", "record_id": "r1"}, nil, nil)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	nav, ok := out["navigate"].(map[string]any)
	if !ok {
		t.Fatalf("expected navigate map, got %+v", out)
	}
	if nav["page_id"] != "orders" || nav["record_id"] != "r1" {
		t.Errorf("unexpected navigate target: %+v", nav)
	}

	// Without a record the target carries only the page.
	out, err = e.Execute(context.Background(), "acme", "NAVIGATE",
		map[string]any{"page_id": "po"}, nil, nil)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	nav, _ = out["navigate"].(map[string]any)
	if len(nav) != 1 || nav["page_id"] != "po" {
		t.Errorf("expected page-only target, got %+v", nav)
	}
}

func TestExecuteSendNotification(t *testing.T) {
	e := testExecutor(t)

	out, err := e.Execute(context.Background(), "acme", "SEND_NOTIFICATION",
		map[string]any{"recipient": "ops", "message": "done"}, nil, nil)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if out["status"] != "success" || out["count"] != 1 {
		t.Errorf("unexpected output: %+v", out)
	}

	// A formula-produced recipient list counts every identifier.
	out, err = e.Execute(context.Background(), "acme", "SEND_NOTIFICATION",
		map[string]any{"recipient": []any{"u1", "u2", "u3"}, "message": "done"}, nil, nil)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if out["status"] != "success" || out["count"] != 3 {
		t.Errorf("unexpected output: %+v", out)
	}
}

func TestExecuteUnknownType(t *testing.T) {
	e := testExecutor(t)

	out, err := e.Execute(context.Background(), "acme", "NO_SUCH_ACTION", nil, nil, nil)
	if err == nil {
		t.Fatal("expected error for unknown action type")
	}
	// Failures surface in-band too.
	if out["error"] == nil {
		t.Errorf("expected error in output, got %+v", out)
	}
}

func TestExecuteWebhookOut(t *testing.T) {
	var gotMethod, gotHeader string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotHeader = r.Header.Get("X-Token")
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	e := testExecutor(t)
	out, err := e.Execute(context.Background(), "acme", "WEBHOOK_OUT", map[string]any{
		"url":     srv.URL,
		"headers": map[string]any{"X-Token": "secret"},
		"body":    map[string]any{"hello": "world"},
	}, nil, nil)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	if out["status"] != 202 {
		t.Errorf("expected status 202, got %v", out["status"])
	}
	if gotMethod != http.MethodPost {
		t.Errorf("expected POST default, got %s", gotMethod)
	}
	if gotHeader != "secret" {
		t.Errorf("expected header propagated, got %q", gotHeader)
	}
}

func TestExecuteWebhookOutMissingURL(t *testing.T) {
	e := testExecutor(t)

	_, err := e.Execute(context.Background(), "acme", "WEBHOOK_OUT", map[string]any{}, nil, nil)
	if err == nil {
		t.Fatal("expected error for missing url")
	}
}

func TestExecuteEmailFallsBackToLogCapability(t *testing.T) {
	e := testExecutor(t)

	out, err := e.Execute(context.Background(), "acme", "EMAIL",
		map[string]any{"to": "ada@example.com"}, nil, nil)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if out["status"] != "accepted" || out["capability"] != "EMAIL" {
		t.Errorf("unexpected output: %+v", out)
	}
}

func TestRegisterCapabilityOverrides(t *testing.T) {
	e := testExecutor(t)
	e.RegisterCapability("PYTHON_SCRIPT", capabilityFunc(func(ctx context.Context, tenant string,
		config, payload map[string]any) (map[string]any, error) {
		return map[string]any{"ran": config["script"]}, nil
	}))

	out, err := e.Execute(context.Background(), "acme", "PYTHON_SCRIPT",
		map[string]any{"script": "cleanup.py"}, nil, nil)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if out["ran"] != "cleanup.py" {
		t.Errorf("expected custom capability output, got %+v", out)
	}
}

// capabilityFunc adapts a function to the Capability interface for tests.
type capabilityFunc func(ctx context.Context, tenant string, config, payload map[string]any) (map[string]any, error)

func (f capabilityFunc) Invoke(ctx context.Context, tenant string, config, payload map[string]any) (map[string]any, error) {
	return f(ctx, tenant, config, payload)
}
