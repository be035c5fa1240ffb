package metadata

import (
	"encoding/json"
	"testing"
)

func TestNodeMapPreservesKeyOrder(t *testing.T) {
	raw := `{
		"start": {"type": "TRIGGER", "next_node_id": "check"},
		"check": {"type": "DECISION", "condition": "[total] > 100", "next_true": "notify", "next_false": "done"},
		"notify": {"type": "ACTION", "action_type": "SEND_NOTIFICATION"},
		"done": {"type": "ACTION", "action_type": "EDIT_ITEM"}
	}`

	var nm NodeMap
	if err := json.Unmarshal([]byte(raw), &nm); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if nm.Len() != 4 {
		t.Fatalf("expected 4 nodes, got %d", nm.Len())
	}

	want := []string{"start", "check", "notify", "done"}
	for i, id := range want {
		if nm.Order[i] != id {
			t.Errorf("order[%d]: expected %s, got %s", i, id, nm.Order[i])
		}
	}

	check := nm.Get("check")
	if check == nil || check.Type != NodeDecision {
		t.Fatalf("expected decision node check, got %+v", check)
	}
	if check.NextTrue != "notify" || check.NextFalse != "done" {
		t.Errorf("expected routing notify/done, got %s/%s", check.NextTrue, check.NextFalse)
	}
}

func TestNodeMapRoundTrip(t *testing.T) {
	raw := `{"b":{"type":"TRIGGER","next_node_id":"a"},"a":{"type":"ACTION","action_type":"WEBHOOK_OUT"}}`

	var nm NodeMap
	if err := json.Unmarshal([]byte(raw), &nm); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	out, err := json.Marshal(nm)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	// Key order survives the round trip even when it is not alphabetical.
	if string(out) != raw {
		t.Errorf("expected %s, got %s", raw, string(out))
	}
}

func TestNodeMapRejectsNonObject(t *testing.T) {
	var nm NodeMap
	if err := json.Unmarshal([]byte(`["not", "an", "object"]`), &nm); err == nil {
		t.Error("expected error for non-object nodes")
	}
}

func TestStartNodeRootWins(t *testing.T) {
	trail := &Trail{Nodes: NodeMap{
		Nodes: map[string]*TrailNode{
			"other": {Type: NodeTrigger, NextNodeID: "ROOT"},
			"ROOT":  {Type: NodeTrigger},
		},
		Order: []string{"other", "ROOT"},
	}}
	if got := trail.StartNode(); got != "ROOT" {
		t.Errorf("expected ROOT, got %s", got)
	}
}

func TestStartNodeUnreferencedWins(t *testing.T) {
	trail := &Trail{Nodes: NodeMap{
		Nodes: map[string]*TrailNode{
			"end":   {Type: NodeAction},
			"mid":   {Type: NodeDecision, NextTrue: "end", NextFalse: "end"},
			"entry": {Type: NodeTrigger, NextNodeID: "mid"},
		},
		Order: []string{"end", "mid", "entry"},
	}}
	// entry is the only node no other node points at.
	if got := trail.StartNode(); got != "entry" {
		t.Errorf("expected entry, got %s", got)
	}
}

func TestStartNodeFallsBackToFirstKey(t *testing.T) {
	// A two-node cycle: every node is referenced, so the first stored key wins.
	trail := &Trail{Nodes: NodeMap{
		Nodes: map[string]*TrailNode{
			"a": {Type: NodeAction, NextNodeID: "b"},
			"b": {Type: NodeAction, NextNodeID: "a"},
		},
		Order: []string{"a", "b"},
	}}
	if got := trail.StartNode(); got != "a" {
		t.Errorf("expected a, got %s", got)
	}
}

func TestStartNodeEmpty(t *testing.T) {
	trail := &Trail{}
	if got := trail.StartNode(); got != "" {
		t.Errorf("expected empty start for empty trail, got %s", got)
	}
}
