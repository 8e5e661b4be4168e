// Package webhook provides the webhook_call node, which posts the node inputs to a URL.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/autoflow-io/autoflow/pkg/models"
	"github.com/autoflow-io/autoflow/pkg/nodes"
	"github.com/autoflow-io/autoflow/pkg/protocol"
	"github.com/autoflow-io/autoflow/pkg/template"
)

const (
	SignatureHeader = "X-Autoflow-Signature"
	TimestampHeader = "X-Autoflow-Timestamp"
	DeliveryHeader  = "X-Autoflow-Delivery"
)

var _ protocol.Handler = (*Handler)(nil)

// Envelope is the JSON document delivered to the receiver.
type Envelope struct {
	ExecutionID string                    `json:"execution_id"`
	WorkflowID  string                    `json:"workflow_id"`
	NodeID      string                    `json:"node_id"`
	Inputs      map[string]map[string]any `json:"inputs"`
	Payload     any                       `json:"payload,omitempty"`
}

type Handler struct {
	client *http.Client
	now    func() time.Time
}

func New(client *http.Client) *Handler {
	if client == nil {
		client = http.DefaultClient
	}

	return &Handler{client: client, now: time.Now}
}

func (h *Handler) Type() string {
	return models.NodeTypeWebhookCall
}

func (h *Handler) Validate(config map[string]any) error {
	target, err := nodes.RequiredString(config, "url")
	if err != nil {
		return err
	}

	if !template.NeedsTemplating(target) {
		u, err := url.Parse(target)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return &nodes.ConfigError{Field: "url", Message: "must be an absolute http(s) URL"}
		}
	}

	if _, err := nodes.StringMap(config, "headers"); err != nil {
		return err
	}

	return nil
}

func (h *Handler) Execute(ctx context.Context, req protocol.Request) (map[string]any, error) {
	if err := h.Validate(req.Config); err != nil {
		return nil, err
	}

	data := req.TemplateData()

	rawURL, _ := nodes.String(req.Config, "url")

	target, err := template.Render(rawURL, data)
	if err != nil {
		return nil, &nodes.ConfigError{Field: "url", Message: err.Error()}
	}

	envelope := Envelope{
		ExecutionID: req.ExecutionID,
		WorkflowID:  req.WorkflowID,
		NodeID:      req.NodeID,
		Inputs:      req.Inputs,
	}

	if payload, ok := req.Config["payload"]; ok {
		envelope.Payload, err = renderPayload(payload, data)
		if err != nil {
			return nil, err
		}
	}

	body, err := json.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("failed to encode webhook envelope: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return nil, &nodes.ConfigError{Field: "url", Message: err.Error()}
	}

	headers, _ := nodes.StringMap(req.Config, "headers")

	headers, err = template.RenderStrings(headers, data)
	if err != nil {
		return nil, &nodes.ConfigError{Field: "headers", Message: err.Error()}
	}

	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	// Same delivery id on every retry so receivers can deduplicate.
	httpReq.Header.Set(DeliveryHeader, req.ExecutionID+":"+req.NodeID)

	if secret, ok := nodes.String(req.Config, "secret"); ok && secret != "" {
		timestamp := strconv.FormatInt(h.now().Unix(), 10)
		httpReq.Header.Set(TimestampHeader, timestamp)
		httpReq.Header.Set(SignatureHeader, Sign(secret, timestamp, body))
	}

	resp, err := nodes.Do(h.client, httpReq)
	if err != nil {
		return nil, err
	}

	output := map[string]any{"status_code": resp.Status}

	var decoded any
	if err := json.Unmarshal(resp.Body, &decoded); err == nil {
		output["response"] = decoded
	} else if len(resp.Body) > 0 {
		output["response"] = string(resp.Body)
	}

	return output, nil
}

// Sign returns "sha256=<hex>" of HMAC-SHA256(secret, timestamp + "." + body).
func Sign(secret, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)

	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a signature produced by Sign.
func Verify(secret, timestamp string, body []byte, signature string) bool {
	return hmac.Equal([]byte(Sign(secret, timestamp, body)), []byte(signature))
}

func renderPayload(payload any, data map[string]any) (any, error) {
	s, ok := payload.(string)
	if !ok {
		return payload, nil
	}

	rendered, err := template.RenderValue(s, data)
	if err != nil {
		return nil, &nodes.ConfigError{Field: "payload", Message: err.Error()}
	}

	return rendered, nil
}
