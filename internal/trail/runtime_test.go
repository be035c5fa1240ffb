package trail

import (
	"context"
	"errors"
	"testing"

	"strata-backend/internal/formula"
	"strata-backend/internal/metadata"
)

// fakeExecutor records every dispatched action and serves canned outputs.
type fakeExecutor struct {
	calls   []fakeCall
	outputs map[string]map[string]any // by action type
	fail    map[string]error
}

type fakeCall struct {
	actionType string
	config     map[string]any
	payload    map[string]any
}

func (f *fakeExecutor) Execute(ctx context.Context, tenant, actionType string,
	config, payload map[string]any, user *metadata.UserContext) (map[string]any, error) {

	f.calls = append(f.calls, fakeCall{actionType: actionType, config: config, payload: payload})
	if err := f.fail[actionType]; err != nil {
		return map[string]any{"error": err.Error()}, err
	}
	if out, ok := f.outputs[actionType]; ok {
		return out, nil
	}
	return map[string]any{"status": "ok"}, nil
}

func nodes(order []string, m map[string]*metadata.TrailNode) metadata.NodeMap {
	return metadata.NodeMap{Nodes: m, Order: order}
}

func approvalTrail() *metadata.Trail {
	return &metadata.Trail{
		ID: "t1", Tenant: "acme", Name: "expense approval", Active: true,
		Trigger: metadata.TrailTrigger{Type: metadata.TriggerManual},
		Nodes: nodes([]string{"start", "check", "flag", "open_form"}, map[string]*metadata.TrailNode{
			"start": {Type: metadata.NodeTrigger, NextNodeID: "check"},
			"check": {Type: metadata.NodeDecision, Condition: "[amount] > 1000",
				NextTrue: "flag", NextFalse: "open_form"},
			"flag": {Type: metadata.NodeAction, ActionType: metadata.ActionSendNotification,
				Config: map[string]any{"recipient": "finance", "message": "Large expense: [amount]"}},
			"open_form": {Type: metadata.NodeAction, ActionType: metadata.ActionNavigate,
				Config: map[string]any{"page_id": "expenses"}},
		}),
	}
}

func TestRunDecisionRoutesTrue(t *testing.T) {
	exec := &fakeExecutor{}
	rt := NewRuntime(exec, formula.New(nil))

	result := rt.Run(context.Background(), "acme", approvalTrail(),
		map[string]any{"amount": float64(5000)}, nil)

	if result.Status != StatusCompleted || !result.Success {
		t.Fatalf("expected completed run, got %+v", result)
	}
	if len(exec.calls) != 1 || exec.calls[0].actionType != metadata.ActionSendNotification {
		t.Fatalf("expected one SEND_NOTIFICATION call, got %+v", exec.calls)
	}
	// Config strings with [field] references resolve before dispatch.
	if msg := exec.calls[0].config["message"]; msg != "Large expense: 5000" {
		t.Errorf("expected interpolated message, got %v", msg)
	}

	check, ok := result.Results["check"]
	if !ok || check["value"] != true {
		t.Errorf("expected decision verdict true, got %+v", check)
	}
	if _, ran := result.Results["open_form"]; ran {
		t.Error("false branch must not run")
	}
	if result.Instruction != nil {
		t.Errorf("notification branch yields no instruction, got %+v", result.Instruction)
	}
}

func TestRunDecisionRoutesFalse(t *testing.T) {
	exec := &fakeExecutor{outputs: map[string]map[string]any{
		metadata.ActionNavigate: {"navigate": map[string]any{"page_id": "expenses"}},
	}}
	rt := NewRuntime(exec, formula.New(nil))

	result := rt.Run(context.Background(), "acme", approvalTrail(),
		map[string]any{"amount": float64(50)}, nil)

	if result.Status != StatusCompleted || !result.Success {
		t.Fatalf("expected completed run, got %+v", result)
	}
	if len(exec.calls) != 1 || exec.calls[0].actionType != metadata.ActionNavigate {
		t.Fatalf("expected one NAVIGATE call, got %+v", exec.calls)
	}

	// The NAVIGATE output surfaces as a flat client instruction.
	instr := result.Instruction
	if instr == nil || instr["type"] != "NAVIGATE" || instr["page_id"] != "expenses" {
		t.Fatalf("expected NAVIGATE instruction for expenses, got %+v", instr)
	}
	if len(instr) != 2 {
		t.Errorf("expected exactly {type, page_id}, got %+v", instr)
	}
}

func TestRunInactiveTrailSkipped(t *testing.T) {
	trail := approvalTrail()
	trail.Active = false

	exec := &fakeExecutor{}
	rt := NewRuntime(exec, formula.New(nil))

	result := rt.Run(context.Background(), "acme", trail, map[string]any{}, nil)
	if result.Status != StatusSkipped || !result.Success {
		t.Fatalf("expected skipped, got %+v", result)
	}
	if len(exec.calls) != 0 {
		t.Errorf("inactive trail must not execute actions, got %+v", exec.calls)
	}
}

func TestRunNodeFailureStopsTrail(t *testing.T) {
	trail := &metadata.Trail{
		ID: "t2", Active: true,
		Nodes: nodes([]string{"start", "boom", "after"}, map[string]*metadata.TrailNode{
			"start": {Type: metadata.NodeTrigger, NextNodeID: "boom"},
			"boom": {Type: metadata.NodeAction, ActionType: metadata.ActionWebhookOut,
				NextNodeID: "after"},
			"after": {Type: metadata.NodeAction, ActionType: metadata.ActionSendNotification},
		}),
	}

	exec := &fakeExecutor{fail: map[string]error{
		metadata.ActionWebhookOut: errors.New("connection refused"),
	}}
	rt := NewRuntime(exec, formula.New(nil))

	result := rt.Run(context.Background(), "acme", trail, map[string]any{}, nil)
	if result.Status != StatusFailed || result.Success {
		t.Fatalf("expected failed run, got %+v", result)
	}
	if len(exec.calls) != 1 {
		t.Fatalf("expected execution to stop at the failing node, got %d calls", len(exec.calls))
	}
	// The failing node's output is still recorded.
	if out := result.Results["boom"]; out == nil || out["error"] != "connection refused" {
		t.Errorf("expected error output for boom, got %+v", out)
	}
	if _, ran := result.Results["after"]; ran {
		t.Error("nodes after a failure must not run")
	}
}

func TestRunCycleTerminates(t *testing.T) {
	trail := &metadata.Trail{
		ID: "t3", Active: true,
		Nodes: nodes([]string{"a", "b"}, map[string]*metadata.TrailNode{
			"a": {Type: metadata.NodeAction, ActionType: metadata.ActionSendNotification, NextNodeID: "b"},
			"b": {Type: metadata.NodeAction, ActionType: metadata.ActionSendNotification, NextNodeID: "a"},
		}),
	}

	exec := &fakeExecutor{}
	rt := NewRuntime(exec, formula.New(nil))

	result := rt.Run(context.Background(), "acme", trail, map[string]any{}, nil)
	if result.Status != StatusCompleted {
		t.Fatalf("expected completed after cycle guard, got %+v", result)
	}
	// Each node runs at most once.
	if len(exec.calls) != 2 {
		t.Errorf("expected 2 calls, got %d", len(exec.calls))
	}
}

func TestRunConfigFormulaResolvesAgainstTrigger(t *testing.T) {
	trail := &metadata.Trail{
		ID: "t4", Active: true,
		Nodes: nodes([]string{"start", "calc"}, map[string]*metadata.TrailNode{
			"start": {Type: metadata.NodeTrigger, NextNodeID: "calc"},
			"calc": {Type: metadata.NodeAction, ActionType: metadata.ActionMathOp,
				Config: map[string]any{"expression": "=[amount] * 2"}},
		}),
	}

	exec := &fakeExecutor{outputs: map[string]map[string]any{
		metadata.ActionMathOp: {"value": float64(120)},
	}}
	rt := NewRuntime(exec, formula.New(nil))

	result := rt.Run(context.Background(), "acme", trail,
		map[string]any{"amount": float64(60)}, nil)

	if result.Status != StatusCompleted {
		t.Fatalf("expected completed, got %+v", result)
	}
	// The "=" prefix marks a formula; it resolves before dispatch.
	if got := exec.calls[0].config["expression"]; got != float64(120) {
		t.Errorf("expected resolved expression 120, got %v", got)
	}
	if out := result.Results["calc"]; out == nil || out["value"] != float64(120) {
		t.Errorf("expected calc output recorded, got %+v", out)
	}
}

func TestRunVariablesSeedContext(t *testing.T) {
	trail := &metadata.Trail{
		ID: "t5", Active: true,
		Variables: []metadata.TrailVariable{{Name: "threshold", Default: float64(100)}},
		Nodes: nodes([]string{"start", "check", "notify"}, map[string]*metadata.TrailNode{
			"start": {Type: metadata.NodeTrigger, NextNodeID: "check"},
			"check": {Type: metadata.NodeDecision, Condition: "[amount] > [threshold]",
				NextTrue: "notify"},
			"notify": {Type: metadata.NodeAction, ActionType: metadata.ActionSendNotification},
		}),
	}

	exec := &fakeExecutor{}
	rt := NewRuntime(exec, formula.New(nil))

	result := rt.Run(context.Background(), "acme", trail,
		map[string]any{"amount": float64(150)}, nil)

	if len(exec.calls) != 1 {
		t.Fatalf("expected notify to run against the variable default, got %+v", result.Results)
	}

	// Defaults are also grouped under a locals map in the trail context.
	locals, ok := exec.calls[0].payload["locals"].(map[string]any)
	if !ok || locals["threshold"] != float64(100) {
		t.Errorf("expected locals map with threshold 100, got %+v", exec.calls[0].payload)
	}
}

func TestClientInstruction(t *testing.T) {
	if got := clientInstruction(nil); got != nil {
		t.Errorf("nil output: expected nil, got %v", got)
	}
	if got := clientInstruction(map[string]any{"status": "ok"}); got != nil {
		t.Errorf("plain output: expected nil, got %v", got)
	}

	got := clientInstruction(map[string]any{"url": "https://example.com/file.csv"})
	if got == nil || got["type"] != "OPEN_URL" {
		t.Errorf("expected OPEN_URL instruction, got %v", got)
	}

	got = clientInstruction(map[string]any{"navigate": map[string]any{"page_id": "p1"}})
	if got == nil || got["type"] != "NAVIGATE" || got["page_id"] != "p1" {
		t.Errorf("expected flat NAVIGATE instruction, got %v", got)
	}
}
