package formula

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// evalCall dispatches a function call. Unknown functions and wrong arities
// yield missing; the outer formula continues.
func (e *Engine) evalCall(ctx context.Context, c call, fctx *Context) (result any) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("WARN: formula function %s panicked: %v", c.name, r)
			result = nil
		}
	}()

	argv := make([]any, len(c.args))
	for i, arg := range c.args {
		argv[i] = e.eval(ctx, arg, fctx)
	}

	switch strings.ToUpper(c.name) {
	case "IF":
		if len(argv) != 3 {
			return nil
		}
		if truthy(argv[0]) {
			return argv[1]
		}
		return argv[2]

	case "IFS":
		if len(argv) == 0 || len(argv)%2 != 0 {
			return nil
		}
		for i := 0; i < len(argv); i += 2 {
			if truthy(argv[i]) {
				return argv[i+1]
			}
		}
		return nil

	case "AND":
		for _, v := range argv {
			if !truthy(v) {
				return false
			}
		}
		return true

	case "OR":
		for _, v := range argv {
			if truthy(v) {
				return true
			}
		}
		return false

	case "NOT":
		if len(argv) != 1 {
			return nil
		}
		return !truthy(argv[0])

	case "ISBLANK":
		if len(argv) != 1 {
			return nil
		}
		return isBlank(argv[0])

	case "ISNOTBLANK":
		if len(argv) != 1 {
			return nil
		}
		return !isBlank(argv[0])

	case "IN":
		if len(argv) != 2 {
			return nil
		}
		for _, item := range toSequence(argv[1]) {
			if looseEqual(argv[0], item) {
				return true
			}
		}
		return false

	case "ANY":
		if len(argv) != 1 {
			return nil
		}
		seq := toSequence(argv[0])
		if len(seq) == 0 {
			return nil
		}
		return seq[0]

	case "LOOKUP":
		if len(argv) != 4 {
			return nil
		}
		return e.fnLookup(ctx, fctx, argv[0], toString(argv[1]), toString(argv[2]), toString(argv[3]))

	case "SELECT":
		if len(argv) < 2 || len(argv) > 3 {
			return nil
		}
		filter := ""
		if len(argv) == 3 {
			filter = toString(argv[2])
		}
		return e.fnSelect(ctx, fctx, toString(argv[0]), toString(argv[1]), filter)

	case "FILTER":
		if len(argv) != 2 {
			return nil
		}
		return e.fnSelect(ctx, fctx, toString(argv[0]), "id", toString(argv[1]))

	case "COUNT":
		if len(argv) != 1 {
			return nil
		}
		count := 0
		for _, item := range toSequence(argv[0]) {
			if _, ok := toNumber(item); ok {
				count++
			}
		}
		return float64(count)

	case "SUM":
		if len(argv) != 1 {
			return nil
		}
		var sum float64
		for _, item := range toSequence(argv[0]) {
			if n, ok := toNumber(item); ok {
				sum += n
			}
		}
		return sum

	case "AVERAGE":
		if len(argv) != 1 {
			return nil
		}
		var sum float64
		count := 0
		for _, item := range toSequence(argv[0]) {
			if n, ok := toNumber(item); ok {
				sum += n
				count++
			}
		}
		if count == 0 {
			return nil
		}
		return sum / float64(count)

	case "UNIQUEID":
		return strings.ToLower(ulid.Make().String()[16:])

	case "TODAY":
		now := e.now().UTC()
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	case "NOW":
		return e.now().UTC()

	case "TIMENOW":
		return e.now().UTC().Format("15:04:05")

	case "WORKDAY":
		if len(argv) != 2 {
			return nil
		}
		start, ok := toTime(argv[0])
		if !ok {
			return nil
		}
		days, ok := toNumber(argv[1])
		if !ok {
			return nil
		}
		return workday(start, int(days))

	case "CONCATENATE":
		var sb strings.Builder
		for _, v := range argv {
			sb.WriteString(toString(v))
		}
		return sb.String()

	case "SPLIT":
		if len(argv) != 2 {
			return nil
		}
		parts := strings.Split(toString(argv[0]), toString(argv[1]))
		out := make([]any, len(parts))
		for i, p := range parts {
			out[i] = p
		}
		return out

	case "USER":
		if fctx.User == nil {
			return nil
		}
		return fctx.User.Name

	case "USERNAME":
		if fctx.User == nil {
			return nil
		}
		return fctx.User.Login

	case "USEREMAIL":
		if fctx.User == nil {
			return nil
		}
		return fctx.User.Email

	case "USERCARGO":
		if fctx.User == nil {
			return nil
		}
		return fctx.User.Cargo

	case "LATLONG":
		if len(argv) != 1 {
			return nil
		}
		return e.geocode(ctx, toString(argv[0]))
	}

	log.Printf("WARN: unknown formula function %s", c.name)
	return nil
}

func (e *Engine) fnLookup(ctx context.Context, fctx *Context, lookupVal any, tableSlug, matchCol, returnCol string) any {
	if e.source == nil {
		return nil
	}
	rows, err := e.source.ListRecords(ctx, fctx.Tenant, tableSlug)
	if err != nil {
		log.Printf("WARN: LOOKUP %s: %v", tableSlug, err)
		return nil
	}
	for _, row := range rows {
		if looseEqual(row[matchCol], lookupVal) {
			return row[returnCol]
		}
	}
	return nil
}

// fnSelect backs both SELECT and FILTER. The filter expression is parsed once
// and re-evaluated per row in the target entity's context.
func (e *Engine) fnSelect(ctx context.Context, fctx *Context, tableSlug, returnCol, filter string) any {
	if e.source == nil {
		return nil
	}
	rows, err := e.source.ListRecords(ctx, fctx.Tenant, tableSlug)
	if err != nil {
		log.Printf("WARN: SELECT %s: %v", tableSlug, err)
		return nil
	}

	var filterAST node
	if filter != "" {
		filterAST, err = Parse(filter)
		if err != nil {
			log.Printf("WARN: SELECT filter %q: %v", filter, err)
			return nil
		}
	}

	var out []any
	for _, row := range rows {
		if filterAST != nil {
			rowCtx := &Context{Tenant: fctx.Tenant, Payload: row, User: fctx.User}
			if !truthy(e.eval(ctx, filterAST, rowCtx)) {
				continue
			}
		}
		out = append(out, row[returnCol])
	}
	if out == nil {
		out = []any{}
	}
	return out
}

// workday advances a date by n business days, skipping weekends. Holidays
// are not considered.
func workday(start time.Time, days int) time.Time {
	step := 1
	if days < 0 {
		step = -1
		days = -days
	}
	current := start
	for days > 0 {
		current = current.AddDate(0, 0, step)
		if wd := current.Weekday(); wd != time.Saturday && wd != time.Sunday {
			days--
		}
	}
	return current
}
