package trail

import (
	"context"
	"log"

	"strata-backend/internal/action"
	"strata-backend/internal/formula"
	"strata-backend/internal/metadata"
)

// Trail run statuses.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusSkipped   = "skipped"
)

// Result is the terminal outcome of one trail run. Results holds each
// executed node's output keyed by node id; Instruction carries the last
// client instruction produced along the path.
type Result struct {
	Status      string                    `json:"status"`
	Success     bool                      `json:"success"`
	Results     map[string]map[string]any `json:"results"`
	Instruction map[string]any            `json:"instruction,omitempty"`
}

// Runtime interprets trail graphs. Node state is transient; nothing survives
// a run.
type Runtime struct {
	executor Executor
	engine   *formula.Engine
}

// Executor is the action backend. Satisfied by *action.Executor.
type Executor interface {
	Execute(ctx context.Context, tenant, actionType string, config, payload map[string]any,
		user *metadata.UserContext) (map[string]any, error)
}

func NewRuntime(executor Executor, engine *formula.Engine) *Runtime {
	return &Runtime{executor: executor, engine: engine}
}

// Run executes a trail against a trigger context. Inactive trails are
// skipped. Execution visits each node at most once; a revisit ends the run.
func (r *Runtime) Run(ctx context.Context, tenant string, t *metadata.Trail,
	trigger map[string]any, user *metadata.UserContext) *Result {

	if !t.Active {
		return &Result{Status: StatusSkipped, Success: true, Results: map[string]map[string]any{}}
	}

	trailCtx := map[string]any{"payload": trigger}
	for k, v := range trigger {
		trailCtx[k] = v
	}
	locals := make(map[string]any, len(t.Variables))
	for _, v := range t.Variables {
		locals[v.Name] = v.Default
		trailCtx[v.Name] = v.Default
	}
	trailCtx["locals"] = locals

	result := &Result{
		Status:  StatusCompleted,
		Success: true,
		Results: map[string]map[string]any{},
	}

	seen := make(map[string]bool, t.Nodes.Len())
	current := t.StartNode()

	for current != "" {
		if seen[current] {
			log.Printf("WARN: trail %s revisited node %s, stopping", t.ID, current)
			break
		}
		seen[current] = true

		node := t.Nodes.Get(current)
		if node == nil {
			log.Printf("WARN: trail %s references missing node %s", t.ID, current)
			break
		}

		fctx := &formula.Context{Tenant: tenant, Payload: trailCtx, User: user}

		switch node.Type {
		case metadata.NodeTrigger:
			result.Results[current] = map[string]any{"payload": trigger}
			current = node.NextNodeID

		case metadata.NodeDecision:
			verdict := formula.Truthy(r.engine.EvaluateQuiet(ctx, node.Condition, fctx))
			result.Results[current] = map[string]any{"value": verdict}
			if verdict {
				current = node.NextTrue
			} else {
				current = node.NextFalse
			}

		case metadata.NodeAction:
			config := action.ResolveConfig(ctx, r.engine, fctx, node.Config)
			out, err := r.executor.Execute(ctx, tenant, node.ActionType, config, trailCtx, user)
			result.Results[current] = out
			if err != nil {
				log.Printf("ERROR: trail %s node %s: %v", t.ID, current, err)
				result.Status = StatusFailed
				result.Success = false
				return result
			}
			if instr := clientInstruction(out); instr != nil {
				result.Instruction = instr
			}
			trailCtx[current] = out
			current = node.NextNodeID

		default:
			log.Printf("WARN: trail %s node %s has unknown type %q", t.ID, current, node.Type)
			current = node.NextNodeID
		}
	}

	return result
}

// clientInstruction picks out navigation/URL markers an action produced for
// the client. Navigation flattens into {type, page_id, record_id?}.
func clientInstruction(out map[string]any) map[string]any {
	if out == nil {
		return nil
	}
	if nav, ok := out["navigate"].(map[string]any); ok {
		instr := map[string]any{"type": "NAVIGATE"}
		for k, v := range nav {
			instr[k] = v
		}
		return instr
	}
	if url, ok := out["url"].(string); ok && url != "" {
		return map[string]any{"type": "OPEN_URL", "url": url}
	}
	return nil
}
