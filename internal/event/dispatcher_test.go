package event

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/expr-lang/expr"

	"strata-backend/internal/metadata"
)

func testEnvelope() *Envelope {
	return &Envelope{
		Event:      "entity.created",
		Entity:     "orders",
		EntityName: "Orders",
		Tenant:     "acme",
		Timestamp:  "2024-03-15T14:30:45Z",
		Data:       map[string]any{"id": "r1", "amount": float64(250)},
	}
}

func TestEventName(t *testing.T) {
	cases := []struct {
		kind string
		want string
	}{
		{metadata.EventOnCreate, "entity.created"},
		{metadata.EventOnUpdate, "entity.updated"},
		{metadata.EventOnDelete, "entity.deleted"},
		{"ON_ARCHIVE", "entity.on_archive"},
	}
	for _, c := range cases {
		if got := eventName(c.kind); got != c.want {
			t.Errorf("eventName(%s): expected %s, got %s", c.kind, c.want, got)
		}
	}
}

func TestEnvelopeAsMap(t *testing.T) {
	e := testEnvelope()
	m := e.AsMap()

	if m["event"] != "entity.created" || m["entity"] != "orders" || m["tenant"] != "acme" {
		t.Errorf("unexpected map: %+v", m)
	}
	if _, ok := m["actor"]; ok {
		t.Error("absent actor must not appear")
	}
	if _, ok := m["changes"]; ok {
		t.Error("absent changes must not appear")
	}

	e.Actor = map[string]any{"id": "u1", "email": "ada@example.com"}
	e.Changes = map[string]any{"old": map[string]any{}, "new": map[string]any{}}
	m = e.AsMap()
	if m["actor"] == nil || m["changes"] == nil {
		t.Errorf("expected actor and changes present, got %+v", m)
	}
}

func TestEvaluateConditionEmptyAlwaysFires(t *testing.T) {
	sub := &metadata.Subscription{}
	fire, err := evaluateCondition(sub, testEnvelope())
	if err != nil || !fire {
		t.Fatalf("expected fire, got %v, %v", fire, err)
	}
}

func TestEvaluateConditionFiltersOnData(t *testing.T) {
	sub := &metadata.Subscription{Condition: `data.amount > 100`}

	fire, err := evaluateCondition(sub, testEnvelope())
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !fire {
		t.Error("expected condition to fire for amount 250")
	}

	// Subscriptions are shared across request goroutines; evaluation must
	// never write back to them.
	if sub.Compiled != nil {
		t.Error("expected subscription left untouched")
	}

	low := testEnvelope()
	low.Data = map[string]any{"amount": float64(50)}
	fire, err = evaluateCondition(sub, low)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if fire {
		t.Error("expected condition to hold back for amount 50")
	}
}

func TestEvaluateConditionUsesPrecompiledProgram(t *testing.T) {
	prog, err := expr.Compile(`data.amount > 100`, expr.AsBool())
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	sub := &metadata.Subscription{Condition: `data.amount > 100`, Compiled: prog}

	fire, err := evaluateCondition(sub, testEnvelope())
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !fire {
		t.Error("expected condition to fire for amount 250")
	}
}

func TestEvaluateConditionCompileError(t *testing.T) {
	sub := &metadata.Subscription{Condition: `data.amount >`}
	if _, err := evaluateCondition(sub, testEnvelope()); err == nil {
		t.Error("expected compile error")
	}
}

func TestEvaluateConditionNonBool(t *testing.T) {
	// AsBool rejects non-boolean expressions at compile time.
	sub := &metadata.Subscription{Condition: `data.amount`}
	if _, err := evaluateCondition(sub, testEnvelope()); err == nil {
		t.Error("expected error for non-boolean condition")
	}
}

// fakeInvoker records trail invocations.
type fakeInvoker struct {
	tenant  string
	trailID string
	payload map[string]any
}

func (f *fakeInvoker) InvokeTrail(ctx context.Context, tenant, trailID string, envelope map[string]any) {
	f.tenant = tenant
	f.trailID = trailID
	f.payload = envelope
}

func TestDeliverToTrail(t *testing.T) {
	d := NewDispatcher(nil, 1, 1)
	defer d.Close()

	invoker := &fakeInvoker{}
	d.SetTrailInvoker(invoker)

	sub := &metadata.Subscription{ID: "s1", TrailID: "t1"}
	d.deliver(sub, testEnvelope())

	if invoker.trailID != "t1" || invoker.tenant != "acme" {
		t.Fatalf("expected trail t1 invoked for acme, got %s/%s", invoker.trailID, invoker.tenant)
	}
	if invoker.payload["event"] != "entity.created" {
		t.Errorf("expected envelope map, got %+v", invoker.payload)
	}
}

func TestDeliverToInternalHandler(t *testing.T) {
	d := NewDispatcher(nil, 1, 1)
	defer d.Close()

	var got *Envelope
	d.RegisterInternal("audit", func(ctx context.Context, envelope *Envelope) {
		got = envelope
	})

	sub := &metadata.Subscription{ID: "s2", TargetURL: "internal://audit"}
	d.deliver(sub, testEnvelope())

	if got == nil || got.Entity != "orders" {
		t.Fatalf("expected internal handler called with envelope, got %+v", got)
	}
}

func TestDeliverToWebhook(t *testing.T) {
	var received Envelope
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("expected JSON content type, got %s", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := NewDispatcher(nil, 1, 1)
	defer d.Close()

	sub := &metadata.Subscription{ID: "s3", TargetURL: srv.URL}
	d.deliver(sub, testEnvelope())

	if received.Event != "entity.created" || received.Tenant != "acme" {
		t.Errorf("unexpected webhook body: %+v", received)
	}
}
