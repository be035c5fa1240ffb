package action

import (
	"context"
	"strings"

	"strata-backend/internal/formula"
)

// ResolveConfig walks a config tree and resolves string values against the
// current evaluation context. A string starting with "=" is a formula; a
// string containing a [field] reference is tried as a formula first and
// interpolated as free text if it does not parse. Everything else passes
// through unchanged.
func ResolveConfig(ctx context.Context, engine *formula.Engine, fctx *formula.Context, in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = resolveValue(ctx, engine, fctx, v)
	}
	return out
}

func resolveValue(ctx context.Context, engine *formula.Engine, fctx *formula.Context, v any) any {
	switch val := v.(type) {
	case string:
		return resolveString(ctx, engine, fctx, val)
	case map[string]any:
		return ResolveConfig(ctx, engine, fctx, val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = resolveValue(ctx, engine, fctx, item)
		}
		return out
	default:
		return v
	}
}

func resolveString(ctx context.Context, engine *formula.Engine, fctx *formula.Context, s string) any {
	if strings.HasPrefix(s, "=") {
		return engine.EvaluateQuiet(ctx, strings.TrimPrefix(s, "="), fctx)
	}
	if strings.Contains(s, "[") {
		if v, err := engine.Evaluate(ctx, s, fctx); err == nil {
			return v
		}
		return formula.Interpolate(s, fctx)
	}
	return s
}
