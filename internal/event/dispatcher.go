package event

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"strata-backend/internal/metadata"
)

const dispatchTimeout = 10 * time.Second

// Envelope is the canonical event document every subscriber receives.
type Envelope struct {
	Event      string         `json:"event"` // entity.created | entity.updated | entity.deleted
	Entity     string         `json:"entity"`
	EntityName string         `json:"entity_name"`
	Tenant     string         `json:"tenant"`
	Actor      map[string]any `json:"actor,omitempty"`
	Timestamp  string         `json:"timestamp"`
	Data       map[string]any `json:"data"`
	Changes    map[string]any `json:"changes,omitempty"`
}

// AsMap renders the envelope as a trail trigger context.
func (e *Envelope) AsMap() map[string]any {
	m := map[string]any{
		"event":       e.Event,
		"entity":      e.Entity,
		"entity_name": e.EntityName,
		"tenant":      e.Tenant,
		"timestamp":   e.Timestamp,
		"data":        e.Data,
	}
	if e.Actor != nil {
		m["actor"] = e.Actor
	}
	if e.Changes != nil {
		m["changes"] = e.Changes
	}
	return m
}

// TrailInvoker runs a trail for a dispatched event. Implemented by the trail
// service; injected to keep the packages acyclic.
type TrailInvoker interface {
	InvokeTrail(ctx context.Context, tenant, trailID string, envelope map[string]any)
}

// InternalHandler consumes events targeted at internal://<name>.
type InternalHandler func(ctx context.Context, envelope *Envelope)

type job struct {
	sub      *metadata.Subscription
	envelope *Envelope
}

// Dispatcher fans record mutations out to subscriptions through a bounded
// worker pool. Delivery is best-effort; failures log and never reach the
// originating mutation.
type Dispatcher struct {
	catalog  *metadata.Catalog
	trails   TrailInvoker
	internal map[string]InternalHandler
	client   *http.Client

	jobs chan job
	wg   sync.WaitGroup
}

func NewDispatcher(catalog *metadata.Catalog, workers, queueSize int) *Dispatcher {
	if workers <= 0 {
		workers = 4
	}
	if queueSize <= 0 {
		queueSize = 256
	}

	d := &Dispatcher{
		catalog:  catalog,
		internal: make(map[string]InternalHandler),
		client:   &http.Client{Timeout: dispatchTimeout},
		jobs:     make(chan job, queueSize),
	}

	d.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go d.worker()
	}
	return d
}

// SetTrailInvoker wires the trail runtime. Must be called before serving.
func (d *Dispatcher) SetTrailInvoker(t TrailInvoker) { d.trails = t }

// RegisterInternal binds a handler to internal://<name> targets.
func (d *Dispatcher) RegisterInternal(name string, h InternalHandler) {
	d.internal[name] = h
}

// Close drains the queue and stops the workers.
func (d *Dispatcher) Close() {
	close(d.jobs)
	d.wg.Wait()
}

// Emit implements the record store's Emitter. Matching subscriptions are
// enqueued; a full queue drops the delivery with a log line.
func (d *Dispatcher) Emit(ctx context.Context, tenant string, entity *metadata.Entity,
	eventKind string, data, changes map[string]any, actor *metadata.UserContext) {

	reg, err := d.catalog.Tenant(ctx, tenant)
	if err != nil {
		log.Printf("ERROR: event dispatch: load catalog for %s: %v", tenant, err)
		return
	}

	subs := reg.GetSubscriptions(entity.Slug, eventKind)
	if len(subs) == 0 {
		return
	}

	envelope := &Envelope{
		Event:      eventName(eventKind),
		Entity:     entity.Slug,
		EntityName: entity.DisplayName,
		Tenant:     tenant,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		Data:       data,
		Changes:    changes,
	}
	if actor != nil {
		envelope.Actor = map[string]any{"id": actor.ID, "email": actor.Email}
	}

	for _, sub := range subs {
		fire, err := evaluateCondition(sub, envelope)
		if err != nil {
			log.Printf("ERROR: subscription %s condition: %v", sub.ID, err)
			continue
		}
		if !fire {
			continue
		}

		select {
		case d.jobs <- job{sub: sub, envelope: envelope}:
		default:
			log.Printf("WARN: event queue full, dropping %s for subscription %s", envelope.Event, sub.ID)
		}
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for j := range d.jobs {
		d.deliver(j.sub, j.envelope)
	}
}

func (d *Dispatcher) deliver(sub *metadata.Subscription, envelope *Envelope) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	switch {
	case sub.TrailID != "":
		if d.trails == nil {
			log.Printf("ERROR: subscription %s targets a trail but no runtime is wired", sub.ID)
			return
		}
		d.trails.InvokeTrail(ctx, envelope.Tenant, sub.TrailID, envelope.AsMap())

	case strings.HasPrefix(sub.TargetURL, "internal://"):
		name := strings.TrimPrefix(sub.TargetURL, "internal://")
		handler, ok := d.internal[name]
		if !ok {
			log.Printf("ERROR: subscription %s targets unknown internal handler %q", sub.ID, name)
			return
		}
		handler(ctx, envelope)

	case sub.TargetURL != "":
		if err := d.post(ctx, sub.TargetURL, envelope); err != nil {
			log.Printf("ERROR: webhook %s: %v", sub.TargetURL, err)
		}

	default:
		log.Printf("WARN: subscription %s has no target", sub.ID)
	}
}

func (d *Dispatcher) post(ctx context.Context, url string, envelope *Envelope) error {
	body, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return nil
}

// evaluateCondition runs a subscription's condition expression against the
// envelope. Empty condition always fires. Programs compile at catalog load;
// one missing there compiles locally and is never written back, since the
// subscription is shared across request goroutines.
func evaluateCondition(sub *metadata.Subscription, envelope *Envelope) (bool, error) {
	if sub.Condition == "" {
		return true, nil
	}

	env := map[string]any{
		"event":   envelope.Event,
		"entity":  envelope.Entity,
		"tenant":  envelope.Tenant,
		"data":    envelope.Data,
		"changes": envelope.Changes,
		"actor":   envelope.Actor,
	}

	prog, ok := sub.Compiled.(*vm.Program)
	if !ok {
		compiled, err := expr.Compile(sub.Condition, expr.AsBool())
		if err != nil {
			return false, fmt.Errorf("compile: %w", err)
		}
		prog = compiled
	}

	result, err := expr.Run(prog, env)
	if err != nil {
		return false, fmt.Errorf("evaluate: %w", err)
	}
	b, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("condition did not return bool")
	}
	return b, nil
}

func eventName(kind string) string {
	switch kind {
	case metadata.EventOnCreate:
		return "entity.created"
	case metadata.EventOnUpdate:
		return "entity.updated"
	case metadata.EventOnDelete:
		return "entity.deleted"
	default:
		return "entity." + strings.ToLower(kind)
	}
}
