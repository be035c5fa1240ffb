package action

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"strata-backend/internal/formula"
	"strata-backend/internal/metadata"
	"strata-backend/internal/record"
	"strata-backend/internal/storage"
)

const (
	webhookTimeout    = 10 * time.Second
	capabilityTimeout = 60 * time.Second
)

// Executor performs one unit of work per call. Action failures come back as
// a structured {error} result plus a non-nil error so the trail runtime can
// decide whether to stop.
type Executor struct {
	records *record.Store
	engine  *formula.Engine
	files   *storage.LocalStorage
	caps    map[string]Capability
	client  *http.Client
}

func NewExecutor(records *record.Store, files *storage.LocalStorage, aiEndpoint string) *Executor {
	caps := map[string]Capability{
		metadata.ActionEmail:        &logCapability{name: metadata.ActionEmail},
		metadata.ActionPythonScript: &logCapability{name: metadata.ActionPythonScript},
	}
	if aiEndpoint != "" {
		caps[metadata.ActionAIClassify] = newHTTPCapability(metadata.ActionAIClassify, aiEndpoint, capabilityTimeout)
	} else {
		caps[metadata.ActionAIClassify] = &logCapability{name: metadata.ActionAIClassify}
	}

	return &Executor{
		records: records,
		engine:  records.Engine(),
		files:   files,
		caps:    caps,
		client:  &http.Client{Timeout: webhookTimeout},
	}
}

// RegisterCapability swaps in a backend for a pass-through action type.
func (e *Executor) RegisterCapability(name string, cap Capability) {
	e.caps[name] = cap
}

// Execute dispatches one action. config must already be resolved; payload is
// the surrounding evaluation context (trail context or request payload).
func (e *Executor) Execute(ctx context.Context, tenant, actionType string,
	config, payload map[string]any, user *metadata.UserContext) (map[string]any, error) {

	result, err := e.dispatch(ctx, tenant, actionType, config, payload, user)
	if err != nil {
		return map[string]any{"error": err.Error()}, err
	}
	if result == nil {
		result = map[string]any{}
	}
	return result, nil
}

func (e *Executor) dispatch(ctx context.Context, tenant, actionType string,
	config, payload map[string]any, user *metadata.UserContext) (map[string]any, error) {

	switch actionType {
	case metadata.ActionCreateItem:
		entity := configString(config, "entity")
		fields := configMap(config, "fields")
		row, err := e.records.Create(ctx, tenant, entity, fields, user)
		if err != nil {
			return nil, err
		}
		return row, nil

	case metadata.ActionEditItem:
		entity := configString(config, "entity")
		id := configString(config, "id")
		if id == "" {
			id = asIDString(payload["id"])
		}
		fields := configMap(config, "fields")
		row, err := e.records.Update(ctx, tenant, entity, id, fields, user)
		if err != nil {
			return nil, err
		}
		return row, nil

	case metadata.ActionDeleteItem:
		entity := configString(config, "entity")
		id := configString(config, "id")
		if id == "" {
			id = asIDString(payload["id"])
		}
		if err := e.records.Delete(ctx, tenant, entity, id, user); err != nil {
			return nil, err
		}
		return map[string]any{"deleted": id}, nil

	case metadata.ActionDBFetchField:
		entity := configString(config, "entity")
		id := configString(config, "id")
		field := configString(config, "field")
		row, err := e.records.Get(ctx, tenant, entity, id)
		if err != nil {
			return nil, err
		}
		return map[string]any{"value": row[field]}, nil

	case metadata.ActionMathOp:
		// The expression usually resolves during config resolution; a raw
		// string here is evaluated against the payload.
		v := config["expression"]
		if s, ok := v.(string); ok {
			fctx := &formula.Context{Tenant: tenant, Payload: payload, User: user}
			v = e.engine.EvaluateQuiet(ctx, s, fctx)
		}
		return map[string]any{"value": v}, nil

	case metadata.ActionSendNotification:
		recipients := recipientList(config["recipient"])
		log.Printf("notification for tenant %s to %v: %v", tenant, config["recipient"], config["message"])
		return map[string]any{"status": "success", "count": len(recipients)}, nil

	case metadata.ActionWebhookOut:
		return e.webhookOut(ctx, config)

	case metadata.ActionGenerateCSV:
		return e.generateCSV(ctx, tenant, config, user)

	case metadata.ActionGeneratePDF:
		return e.generatePDF(ctx, tenant, config)

	case metadata.ActionNavigate:
		nav := map[string]any{"page_id": configString(config, "page_id")}
		if rid := configString(config, "record_id"); rid != "" {
			nav["record_id"] = rid
		}
		return map[string]any{"navigate": nav}, nil

	case metadata.ActionEmail, metadata.ActionAIClassify, metadata.ActionPythonScript:
		cap, ok := e.caps[actionType]
		if !ok {
			return nil, fmt.Errorf("no capability registered for %s", actionType)
		}
		return cap.Invoke(ctx, tenant, config, payload)
	}

	return nil, fmt.Errorf("unknown action type %q", actionType)
}

func (e *Executor) webhookOut(ctx context.Context, config map[string]any) (map[string]any, error) {
	url := configString(config, "url")
	if url == "" {
		return nil, fmt.Errorf("webhook: missing url")
	}
	method := configString(config, "method")
	if method == "" {
		method = http.MethodPost
	}

	var bodyReader io.Reader
	if body, ok := config["body"]; ok && body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("webhook: encode body: %w", err)
		}
		bodyReader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("webhook: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range configMap(config, "headers") {
		if s, ok := v.(string); ok {
			req.Header.Set(k, s)
		}
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("webhook %s: %w", url, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))

	return map[string]any{"status": resp.StatusCode}, nil
}

func configString(config map[string]any, key string) string {
	return asIDString(config[key])
}

// recipientList normalizes the recipient config value: a single identifier
// or a formula-produced list.
func recipientList(v any) []string {
	switch val := v.(type) {
	case nil:
		return nil
	case []string:
		return val
	case []any:
		out := make([]string, 0, len(val))
		for _, r := range val {
			out = append(out, asIDString(r))
		}
		return out
	default:
		s := asIDString(val)
		if s == "" {
			return nil
		}
		return []string{s}
	}
}

func configMap(config map[string]any, key string) map[string]any {
	m, _ := config[key].(map[string]any)
	return m
}

// asIDString renders scalar config values as strings. Resolved formulas can
// legitimately produce numbers where ids are expected.
func asIDString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case nil:
		return ""
	case float64:
		return fmt.Sprintf("%v", val)
	default:
		return fmt.Sprintf("%v", val)
	}
}
