package metadata

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Trail node types.
const (
	NodeTrigger  = "TRIGGER"
	NodeDecision = "DECISION"
	NodeAction   = "ACTION"
)

// Trail trigger types.
const (
	TriggerManual      = "manual"
	TriggerEntityEvent = "entity_event"
)

type Trail struct {
	ID        string          `json:"id"`
	Tenant    string          `json:"tenant"`
	Name      string          `json:"name"`
	Active    bool            `json:"active"`
	Trigger   TrailTrigger    `json:"trigger"`
	Nodes     NodeMap         `json:"nodes"`
	Variables []TrailVariable `json:"variables,omitempty"`
}

type TrailTrigger struct {
	Type   string `json:"type"` // manual | entity_event
	Entity string `json:"entity,omitempty"`
	Event  string `json:"event,omitempty"`
}

// TrailNode is one vertex of the trail graph. Decision nodes route through
// NextTrue/NextFalse; every other node follows NextNodeID.
type TrailNode struct {
	Type       string         `json:"type"`
	Condition  string         `json:"condition,omitempty"`
	ActionType string         `json:"action_type,omitempty"`
	Config     map[string]any `json:"config,omitempty"`
	NextNodeID string         `json:"next_node_id,omitempty"`
	NextTrue   string         `json:"next_true,omitempty"`
	NextFalse  string         `json:"next_false,omitempty"`
}

// TrailVariable declares a trail-local variable with its default value.
type TrailVariable struct {
	Name    string `json:"name"`
	Default any    `json:"default,omitempty"`
}

// NodeMap is a node graph keyed by node id. JSON object key order is
// preserved on decode so the runtime's start-node fallback stays
// deterministic.
type NodeMap struct {
	Nodes map[string]*TrailNode
	Order []string
}

func (nm NodeMap) Get(id string) *TrailNode {
	return nm.Nodes[id]
}

func (nm NodeMap) Len() int {
	return len(nm.Nodes)
}

func (nm *NodeMap) UnmarshalJSON(data []byte) error {
	nm.Nodes = make(map[string]*TrailNode)
	nm.Order = nil

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("nodes: expected JSON object")
	}

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key := keyTok.(string)

		var node TrailNode
		if err := dec.Decode(&node); err != nil {
			return fmt.Errorf("node %s: %w", key, err)
		}
		nm.Nodes[key] = &node
		nm.Order = append(nm.Order, key)
	}

	_, err = dec.Token() // closing brace
	return err
}

func (nm NodeMap) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, id := range nm.Order {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyJSON, err := json.Marshal(id)
		if err != nil {
			return nil, err
		}
		nodeJSON, err := json.Marshal(nm.Nodes[id])
		if err != nil {
			return nil, err
		}
		buf.Write(keyJSON)
		buf.WriteByte(':')
		buf.Write(nodeJSON)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// StartNode picks the execution entry point: a node named ROOT wins, then the
// unique node no other node names as a successor, then the first stored key.
func (t *Trail) StartNode() string {
	if _, ok := t.Nodes.Nodes["ROOT"]; ok {
		return "ROOT"
	}

	referenced := make(map[string]bool)
	for _, n := range t.Nodes.Nodes {
		for _, succ := range []string{n.NextNodeID, n.NextTrue, n.NextFalse} {
			if succ != "" {
				referenced[succ] = true
			}
		}
	}
	for _, id := range t.Nodes.Order {
		if !referenced[id] {
			return id
		}
	}

	if len(t.Nodes.Order) > 0 {
		return t.Nodes.Order[0]
	}
	return ""
}
