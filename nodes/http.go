package nodes

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// runHTTP performs one HTTP request described by the node configuration:
// url (required), method (default GET), headers (string map), body (JSON
// encoded when present). The result carries the status code and the
// response body, parsed as JSON when the payload allows it.
func (b *builtins) runHTTP(ctx context.Context, config map[string]any, _ map[string]any) (any, error) {
	url, ok := config["url"].(string)
	if !ok || url == "" {
		return nil, fmt.Errorf("http node requires a url")
	}
	method := http.MethodGet
	if m, ok := config["method"].(string); ok && m != "" {
		method = strings.ToUpper(m)
	}

	var body io.Reader
	if raw, ok := config["body"]; ok && raw != nil {
		encoded, err := json.Marshal(raw)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if headers, ok := config["headers"].(map[string]any); ok {
		for k, v := range headers {
			if s, ok := v.(string); ok {
				req.Header.Set(k, s)
			}
		}
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, url, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response from %s: %w", url, err)
	}

	var parsed any
	if err := json.Unmarshal(payload, &parsed); err != nil {
		parsed = string(payload)
	}
	return map[string]any{
		"status_code": resp.StatusCode,
		"body":        parsed,
	}, nil
}

// maxResponseBytes caps how much of a response body a node will buffer.
const maxResponseBytes = 4 << 20
