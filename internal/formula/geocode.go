package formula

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
)

// geocode resolves an address to a "lat,long" string. Best-effort: any
// failure yields missing. Results are cached per engine instance.
func (e *Engine) geocode(ctx context.Context, address string) any {
	if address == "" || e.geocodeEndpoint == "" {
		return nil
	}
	if cached, ok := e.geocodeCache[address]; ok {
		return cached
	}

	reqURL := fmt.Sprintf("%s?format=json&limit=1&q=%s", e.geocodeEndpoint, url.QueryEscape(address))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil
	}
	req.Header.Set("User-Agent", "strata-backend")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		log.Printf("WARN: geocode %q: %v", address, err)
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Printf("WARN: geocode %q: HTTP %d", address, resp.StatusCode)
		return nil
	}

	var results []struct {
		Lat string `json:"lat"`
		Lon string `json:"lon"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil || len(results) == 0 {
		return nil
	}

	latlong := results[0].Lat + "," + results[0].Lon
	e.geocodeCache[address] = latlong
	return latlong
}
