// Package httprequest provides the http.request side-effecting capability.
package httprequest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/loomworks/loom/pkg/protocol"
)

// Node performs an HTTP request. Cancellation and the per-node timeout come
// through ctx; the node itself sets no deadline.
type Node struct {
	method  string
	url     string
	headers map[string]string
	body    string

	client *http.Client
}

// NewNode builds an http.request executor from resolved parameters.
func NewNode(config map[string]any) (*Node, error) {
	url, ok := config["url"].(string)
	if !ok || url == "" {
		return nil, errors.New("missing required parameter 'url'")
	}

	method, _ := config["method"].(string)
	if method == "" {
		method = http.MethodGet
	}

	headers := make(map[string]string)

	if raw, ok := config["headers"].(map[string]any); ok {
		for key, val := range raw {
			if str, ok := val.(string); ok {
				headers[key] = str
			}
		}
	}

	body, _ := config["body"].(string)

	return &Node{
		method:  strings.ToUpper(method),
		url:     url,
		headers: headers,
		body:    body,
		client:  &http.Client{},
	}, nil
}

func (n *Node) Execute(ctx context.Context, input protocol.ExecutionInput) (any, error) {
	var bodyReader io.Reader
	if n.body != "" {
		bodyReader = strings.NewReader(n.body)
	}

	req, err := http.NewRequestWithContext(ctx, n.method, n.url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	for key, value := range n.headers {
		req.Header.Set(key, value)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var body any
	if err := json.Unmarshal(raw, &body); err != nil {
		body = string(raw)
	}

	input.Logger.Debug("http request completed",
		"method", n.method, "url", n.url, "status", resp.StatusCode)

	return map[string]any{
		"status_code": resp.StatusCode,
		"body":        body,
	}, nil
}

// Factory creates http.request executors.
type Factory struct{}

// NewFactory creates the http.request factory.
func NewFactory() protocol.NodeFactory {
	return &Factory{}
}

func (f *Factory) Create(config map[string]any) (protocol.NodeExecutor, error) {
	return NewNode(config)
}

func (f *Factory) ID() string   { return "http.request" }
func (f *Factory) Name() string { return "HTTP Request" }

func (f *Factory) Description() string {
	return "Performs an HTTP request and outputs the response status and decoded body"
}

func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url":     map[string]any{"type": "string"},
			"method":  map[string]any{"type": "string"},
			"headers": map[string]any{"type": "object"},
			"body":    map[string]any{"type": "string"},
		},
		"required": []string{"url"},
	}
}
