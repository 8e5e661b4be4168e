package webhook

func (h *Handler) Name() string {
	return "Webhook Call"
}

func (h *Handler) Description() string {
	return "POSTs the node inputs as a signed JSON envelope to an external URL."
}

func (h *Handler) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"description": "Receiver URL",
			},
			"headers": map[string]any{
				"type": "object",
			},
			"payload": map[string]any{
				"description": "Extra payload; strings are rendered as templates",
			},
			"secret": map[string]any{
				"type":        "string",
				"description": "Shared secret used to sign the body with HMAC-SHA256 in " + SignatureHeader,
			},
		},
		"required": []string{"url"},
	}
}
