package action

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"
)

// Capability is a named external worker backing the pass-through action
// types. Results flow back to the caller untouched.
type Capability interface {
	Invoke(ctx context.Context, tenant string, config, payload map[string]any) (map[string]any, error)
}

// logCapability accepts every invocation and logs it. Stands in for
// capabilities that have no backend configured.
type logCapability struct {
	name string
}

func (c *logCapability) Invoke(_ context.Context, tenant string, config, _ map[string]any) (map[string]any, error) {
	log.Printf("capability %s invoked for tenant %s (no backend configured): %v", c.name, tenant, config)
	return map[string]any{"status": "accepted", "capability": c.name}, nil
}

// httpCapability forwards the invocation to an HTTP endpoint and passes the
// JSON response through.
type httpCapability struct {
	name     string
	endpoint string
	client   *http.Client
}

func newHTTPCapability(name, endpoint string, timeout time.Duration) *httpCapability {
	return &httpCapability{
		name:     name,
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

func (c *httpCapability) Invoke(ctx context.Context, tenant string, config, payload map[string]any) (map[string]any, error) {
	body, err := json.Marshal(map[string]any{
		"capability": c.name,
		"tenant":     tenant,
		"config":     config,
		"payload":    payload,
	})
	if err != nil {
		return nil, fmt.Errorf("encode capability request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build capability request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("capability %s: %w", c.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("capability %s: HTTP %d", c.name, resp.StatusCode)
	}

	var result map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode capability response: %w", err)
	}
	return result, nil
}
