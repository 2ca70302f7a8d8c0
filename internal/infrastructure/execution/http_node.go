package execution

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	domainexec "github.com/duragraph/duragraph/internal/domain/execution"
)

// HTTPRequestNode issues a single outbound HTTP call. Unlike every
// other node type, a request that fails to build, fails in transport,
// fails reading its body or gets a 4xx/5xx status reports
// RunStatusSucceeded on that same attempt, with an "error" output: the
// response is data for downstream nodes to branch on, not a node
// failure. Because such an attempt never reports failure, the node's
// retry policy is not applied to it; only a missing url fails the node.
// This coercion is specific to this node type and is not generalized
// to the rest of the registry.
type HTTPRequestNode struct {
	baseNode
	config       map[string]any
	runtimeState *domainexec.GraphRuntimeState
	httpClient   *http.Client
}

// NewHTTPRequestNodeConstructor builds a (http_request, "1") Constructor
// bound to a shared *http.Client.
func NewHTTPRequestNodeConstructor(client *http.Client) domainexec.Constructor {
	return func(params domainexec.ConstructorParams) (domainexec.Node, error) {
		return &HTTPRequestNode{
			baseNode:     newBaseNode(params, domainexec.NodeTypeHTTPRequest),
			config:       params.Config,
			runtimeState: params.RuntimeState,
			httpClient:   client,
		}, nil
	}
}

func (n *HTTPRequestNode) Run(ctx context.Context) <-chan domainexec.NodeEvent {
	method, _ := n.config["method"].(string)
	if method == "" {
		method = http.MethodGet
	}
	url, _ := n.config["url"].(string)
	if url == "" {
		return completed(domainexec.RunCompleted{Status: domainexec.RunStatusFailed, Error: "url is required for http_request node"})
	}
	url = renderTemplate(url, n.runtimeState.VariablePool)

	var body io.Reader
	if bodyStr, ok := n.config["body"].(string); ok && bodyStr != "" {
		body = strings.NewReader(renderTemplate(bodyStr, n.runtimeState.VariablePool))
	}

	timeout := 30 * time.Second
	if t, ok := n.config["timeout_seconds"].(float64); ok && t > 0 {
		timeout = time.Duration(t * float64(time.Second))
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, method, url, body)
	if err != nil {
		return completed(domainexec.RunCompleted{
			Status:  domainexec.RunStatusSucceeded,
			Outputs: map[string]any{"status_code": 0, "error": err.Error()},
		})
	}
	if headers, ok := n.config["headers"].(map[string]any); ok {
		for k, v := range headers {
			if s, ok := v.(string); ok {
				req.Header.Set(k, s)
			}
		}
	}

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return completed(domainexec.RunCompleted{
			Status:  domainexec.RunStatusSucceeded,
			Outputs: map[string]any{"status_code": 0, "error": err.Error()},
		})
	}
	defer resp.Body.Close()

	const maxBody = 10 << 20
	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return completed(domainexec.RunCompleted{
			Status:  domainexec.RunStatusSucceeded,
			Outputs: map[string]any{"status_code": resp.StatusCode, "error": err.Error()},
		})
	}

	outputs := map[string]any{
		"status_code": resp.StatusCode,
		"body":        string(respBody),
		"headers":     flattenHeaders(resp.Header),
	}
	if resp.StatusCode >= 400 {
		outputs["error"] = fmt.Sprintf("request failed with status %d", resp.StatusCode)
	}

	return completed(domainexec.RunCompleted{Status: domainexec.RunStatusSucceeded, Outputs: outputs})
}

func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k := range h {
		out[k] = h.Get(k)
	}
	return out
}
