package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// The node exposes a local REST control endpoint; info and shutdown go
// through it.

func controlURL(port int, path string) string {
	return fmt.Sprintf("http://127.0.0.1:%d/api/v0/%s", port, path)
}

func nodeStats(ctx context.Context, client *http.Client, port int) (map[string]interface{}, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, controlURL(port, "node/stats"), nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("query node stats: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("node stats failed: status=%d, body=%s", resp.StatusCode, string(body))
	}
	var stats map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return nil, fmt.Errorf("parse node stats: %w", err)
	}
	return stats, nil
}

func requestShutdown(ctx context.Context, client *http.Client, port int) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, controlURL(port, "shutdown"), nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request node shutdown: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("node shutdown call failed: status=%d", resp.StatusCode)
	}
	return nil
}
