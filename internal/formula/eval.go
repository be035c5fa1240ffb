package formula

import (
	"context"
	"log"
)

// eval walks the AST. Missing references and failing operations yield nil.
func (e *Engine) eval(ctx context.Context, n node, fctx *Context) any {
	switch v := n.(type) {
	case numberLit:
		return v.value
	case stringLit:
		return v.value
	case boolLit:
		return v.value

	case colRef:
		if fctx.Payload == nil {
			return nil
		}
		return fctx.Payload[v.name]

	case deref:
		return e.evalDeref(ctx, v, fctx)

	case unaryNeg:
		operand, ok := toNumber(e.eval(ctx, v.operand, fctx))
		if !ok {
			return nil
		}
		return -operand

	case binary:
		return e.evalBinary(ctx, v, fctx)

	case call:
		return e.evalCall(ctx, v, fctx)
	}
	return nil
}

func (e *Engine) evalDeref(ctx context.Context, d deref, fctx *Context) any {
	id := toString(e.eval(ctx, d.ref, fctx))
	if id == "" || fctx.Entity == nil || e.source == nil {
		return nil
	}

	field := fctx.Entity.GetField(d.ref.name)
	if field == nil || field.Options.Target == "" {
		return nil
	}

	record, err := e.source.GetRecord(ctx, fctx.Tenant, field.Options.Target, id)
	if err != nil {
		log.Printf("WARN: deref [%s].[%s]: %v", d.ref.name, d.col, err)
		return nil
	}
	return record[d.col]
}

func (e *Engine) evalBinary(ctx context.Context, b binary, fctx *Context) any {
	left := e.eval(ctx, b.left, fctx)
	right := e.eval(ctx, b.right, fctx)

	switch b.op {
	case "=":
		return looseEqual(left, right)
	case "<>":
		return !looseEqual(left, right)
	case "<", "<=", ">", ">=":
		return compare(b.op, left, right)
	case "+":
		// Numeric addition when both sides are numbers; string concatenation
		// when either side is non-numeric text.
		ln, lok := toNumber(left)
		rn, rok := toNumber(right)
		if lok && rok {
			return ln + rn
		}
		if left == nil && right == nil {
			return nil
		}
		return toString(left) + toString(right)
	case "-":
		ln, lok := toNumber(left)
		rn, rok := toNumber(right)
		if !lok || !rok {
			return nil
		}
		return ln - rn
	case "*":
		ln, lok := toNumber(left)
		rn, rok := toNumber(right)
		if !lok || !rok {
			return nil
		}
		return ln * rn
	case "/":
		ln, lok := toNumber(left)
		rn, rok := toNumber(right)
		if !lok || !rok || rn == 0 {
			return nil
		}
		return ln / rn
	}
	return nil
}

func compare(op string, left, right any) any {
	if left == nil || right == nil {
		return false
	}

	var cmp int
	if ln, lok := toNumber(left); lok {
		if rn, rok := toNumber(right); rok {
			switch {
			case ln < rn:
				cmp = -1
			case ln > rn:
				cmp = 1
			}
			return applyCmp(op, cmp)
		}
	}

	ls, rs := toString(left), toString(right)
	switch {
	case ls < rs:
		cmp = -1
	case ls > rs:
		cmp = 1
	}
	return applyCmp(op, cmp)
}

func applyCmp(op string, cmp int) bool {
	switch op {
	case "<":
		return cmp < 0
	case "<=":
		return cmp <= 0
	case ">":
		return cmp > 0
	case ">=":
		return cmp >= 0
	}
	return false
}
