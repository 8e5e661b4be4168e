// Package action provides the node that calls an external integration over HTTP.
package action

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/autoflow-io/autoflow/pkg/models"
	"github.com/autoflow-io/autoflow/pkg/nodes"
	"github.com/autoflow-io/autoflow/pkg/protocol"
	"github.com/autoflow-io/autoflow/pkg/template"
	"github.com/oliveagle/jsonpath"
)

var _ protocol.Handler = (*Handler)(nil)

// Handler performs one HTTP request per invocation. Retries are driven by the dispatcher.
type Handler struct {
	client *http.Client
}

// New returns an action handler. A nil client uses http.DefaultClient; the per-node timeout
// comes from the request context.
func New(client *http.Client) *Handler {
	if client == nil {
		client = http.DefaultClient
	}

	return &Handler{client: client}
}

func (h *Handler) Type() string {
	return models.NodeTypeAction
}

type config struct {
	URL        string
	Method     string
	Headers    map[string]string
	Body       any
	AuthToken  string
	ResultPath string
	DedupToken string
}

func parseConfig(raw map[string]any) (*config, error) {
	target, err := nodes.RequiredString(raw, "url")
	if err != nil {
		return nil, err
	}

	headers, err := nodes.StringMap(raw, "headers")
	if err != nil {
		return nil, err
	}

	cfg := &config{
		URL:     target,
		Method:  http.MethodGet,
		Headers: headers,
		Body:    raw["body"],
	}

	if method, ok := nodes.String(raw, "method"); ok && method != "" {
		cfg.Method = strings.ToUpper(method)
	}

	cfg.AuthToken, _ = nodes.String(raw, "auth_token")
	cfg.DedupToken, _ = nodes.String(raw, "dedup_token")

	if path, ok := nodes.String(raw, "result_path"); ok && path != "" {
		if _, err := jsonpath.Compile(path); err != nil {
			return nil, &nodes.ConfigError{Field: "result_path", Message: err.Error()}
		}

		cfg.ResultPath = path
	}

	return cfg, nil
}

func (h *Handler) Validate(raw map[string]any) error {
	cfg, err := parseConfig(raw)
	if err != nil {
		return err
	}

	if !template.NeedsTemplating(cfg.URL) {
		u, err := url.Parse(cfg.URL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return &nodes.ConfigError{Field: "url", Message: "must be an absolute URL"}
		}
	}

	// Non-idempotent calls repeated by the retry policy must carry a dedup token.
	if models.ParseNodePolicy(raw).OnError == models.OnErrorRetry &&
		!isIdempotent(cfg.Method) && cfg.DedupToken == "" {
		return &nodes.ConfigError{Field: "dedup_token", Message: "is required for " + cfg.Method + " with on_error=retry"}
	}

	return nil
}

func (h *Handler) Execute(ctx context.Context, req protocol.Request) (map[string]any, error) {
	cfg, err := parseConfig(req.Config)
	if err != nil {
		return nil, err
	}

	data := req.TemplateData()

	target, err := template.Render(cfg.URL, data)
	if err != nil {
		return nil, &nodes.ConfigError{Field: "url", Message: err.Error()}
	}

	headers, err := template.RenderStrings(cfg.Headers, data)
	if err != nil {
		return nil, &nodes.ConfigError{Field: "headers", Message: err.Error()}
	}

	body, contentType, err := renderBody(cfg.Body, data)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, cfg.Method, target, body)
	if err != nil {
		return nil, &nodes.ConfigError{Field: "url", Message: err.Error()}
	}

	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}

	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

	if cfg.AuthToken != "" {
		token, err := template.Render(cfg.AuthToken, data)
		if err != nil {
			return nil, &nodes.ConfigError{Field: "auth_token", Message: err.Error()}
		}

		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	if cfg.DedupToken != "" {
		token, err := template.Render(cfg.DedupToken, data)
		if err != nil {
			return nil, &nodes.ConfigError{Field: "dedup_token", Message: err.Error()}
		}

		httpReq.Header.Set("Idempotency-Key", token)
	}

	if req.Logger != nil {
		req.Logger.Debug("Calling integration", "method", cfg.Method, "url", httpReq.URL.Redacted(), "attempt", req.Attempt)
	}

	resp, err := nodes.Do(h.client, httpReq)
	if err != nil {
		return nil, err
	}

	output := map[string]any{
		"status_code": resp.Status,
		"headers":     flattenHeaders(resp.Header),
		"body":        decodeBody(resp.Body),
	}

	if cfg.ResultPath != "" {
		result, err := jsonpath.JsonPathLookup(output["body"], cfg.ResultPath)
		if err != nil {
			return nil, &nodes.RemoteError{Status: resp.Status, Body: string(resp.Body), Err: fmt.Errorf("result_path %s: %w", cfg.ResultPath, err)}
		}

		output["result"] = result
	}

	return output, nil
}

// renderBody renders string bodies as templates and encodes any other value as JSON.
func renderBody(body any, data map[string]any) (io.Reader, string, error) {
	switch b := body.(type) {
	case nil:
		return nil, "", nil
	case string:
		rendered, err := template.Render(b, data)
		if err != nil {
			return nil, "", &nodes.ConfigError{Field: "body", Message: err.Error()}
		}

		contentType := "text/plain"
		if json.Valid([]byte(rendered)) {
			contentType = "application/json"
		}

		return strings.NewReader(rendered), contentType, nil
	default:
		encoded, err := json.Marshal(b)
		if err != nil {
			return nil, "", &nodes.ConfigError{Field: "body", Message: err.Error()}
		}

		return bytes.NewReader(encoded), "application/json", nil
	}
}

func decodeBody(body []byte) any {
	if len(body) == 0 {
		return nil
	}

	var decoded any
	if err := json.Unmarshal(body, &decoded); err == nil {
		return decoded
	}

	return string(body)
}

func flattenHeaders(h http.Header) map[string]any {
	out := make(map[string]any, len(h))
	for k := range h {
		out[k] = h.Get(k)
	}

	return out
}

func isIdempotent(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodPut, http.MethodDelete:
		return true
	default:
		return false
	}
}
