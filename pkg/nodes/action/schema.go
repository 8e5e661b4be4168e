package action

func (h *Handler) Name() string {
	return "Action"
}

func (h *Handler) Description() string {
	return "Calls an external integration over HTTP and returns the decoded response."
}

func (h *Handler) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"description": "Target URL. Supports templates such as {{ .input_data.customer_id }}",
			},
			"method": map[string]any{
				"type":    "string",
				"enum":    []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "get", "post", "put", "patch", "delete", "head"},
				"default": "GET",
			},
			"headers": map[string]any{
				"type":                 "object",
				"additionalProperties": map[string]any{"type": []string{"string", "number", "boolean"}},
			},
			"body": map[string]any{
				"description": "String template or JSON value sent as the request body",
			},
			"auth_token": map[string]any{
				"type":        "string",
				"description": "Sent as a bearer token in the Authorization header",
			},
			"result_path": map[string]any{
				"type":        "string",
				"description": "JSONPath evaluated against the response body, stored as result",
				"examples":    []string{"$.data.id", "$.items[0].name"},
			},
			"dedup_token": map[string]any{
				"type":        "string",
				"description": "Sent as the Idempotency-Key header so retried calls are not applied twice",
			},
			"on_error":    map[string]any{"type": "string", "enum": []string{"stop", "continue", "retry"}},
			"retry_count": map[string]any{"type": "integer", "minimum": 0},
			"timeout":     map[string]any{"type": "number", "minimum": 0},
		},
		"required": []string{"url"},
	}
}
