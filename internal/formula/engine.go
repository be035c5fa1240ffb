package formula

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"strata-backend/internal/metadata"
)

// RecordSource gives the engine read access to stored records for LOOKUP,
// SELECT, FILTER and dereferences. Implemented by the record store.
type RecordSource interface {
	GetRecord(ctx context.Context, tenant, entitySlug, id string) (map[string]any, error)
	ListRecords(ctx context.Context, tenant, entitySlug string) ([]map[string]any, error)
}

// Context is the evaluation environment for one formula.
type Context struct {
	Tenant  string
	Payload map[string]any
	User    *metadata.UserContext

	// Entity provides field metadata for dereferences. Nil is fine: derefs
	// then resolve to missing.
	Entity *metadata.Entity
}

// Engine evaluates formulas. It is deterministic apart from the clock,
// UNIQUEID and record lookups. A malformed formula or a failing function
// yields a missing value, never an error that blocks the caller's write.
type Engine struct {
	source          RecordSource
	geocodeEndpoint string
	httpClient      *http.Client
	geocodeCache    map[string]string
	now             func() time.Time
}

type Option func(*Engine)

// WithGeocodeEndpoint points LATLONG at a geocoding service.
func WithGeocodeEndpoint(endpoint string) Option {
	return func(e *Engine) { e.geocodeEndpoint = endpoint }
}

// WithClock fixes the engine clock.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func New(source RecordSource, opts ...Option) *Engine {
	e := &Engine{
		source:       source,
		httpClient:   &http.Client{Timeout: 10 * time.Second},
		geocodeCache: make(map[string]string),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate parses and evaluates a formula. Parse failures are returned so the
// caller can log them; the value is then missing. Runtime failures inside the
// expression collapse to missing silently.
func (e *Engine) Evaluate(ctx context.Context, expression string, fctx *Context) (any, error) {
	ast, err := Parse(expression)
	if err != nil {
		return nil, fmt.Errorf("parse formula: %w", err)
	}
	return e.eval(ctx, ast, fctx), nil
}

// EvaluateQuiet evaluates a formula, logging failures instead of returning
// them. Used on the write path where a bad formula must not block persistence.
func (e *Engine) EvaluateQuiet(ctx context.Context, expression string, fctx *Context) any {
	v, err := e.Evaluate(ctx, expression, fctx)
	if err != nil {
		log.Printf("WARN: formula %q: %v", expression, err)
		return nil
	}
	return v
}

// Truthy exposes the engine's boolean coercion for decision nodes.
func Truthy(v any) bool { return truthy(v) }
