package delay

func (h *Handler) Name() string {
	return "Delay"
}

func (h *Handler) Description() string {
	return "Waits for a duration, then passes its inputs through."
}

func (h *Handler) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"duration": map[string]any{
				"type":        []string{"string", "number"},
				"description": "Go duration string or number of seconds",
				"examples":    []any{"30s", "1m30s", 5},
			},
		},
		"required": []string{"duration"},
	}
}
