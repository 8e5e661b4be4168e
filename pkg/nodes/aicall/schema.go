package aicall

func (h *Handler) Name() string {
	return "AI Call"
}

func (h *Handler) Description() string {
	return "Sends a prompt built from the node inputs to the AI provider and returns the completion."
}

func (h *Handler) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"prompt": map[string]any{
				"type":        "string",
				"description": "Prompt template",
				"examples":    []string{"Classify the sentiment of: {{ .input.body.text }}"},
			},
			"system": map[string]any{
				"type": "string",
			},
			"model": map[string]any{
				"type":        "string",
				"description": "Model hint passed to the provider",
			},
			"max_tokens": map[string]any{
				"type":    "integer",
				"minimum": 1,
			},
			"temperature": map[string]any{
				"type":    "number",
				"minimum": 0,
				"maximum": 2,
			},
			"output": map[string]any{
				"type":    "string",
				"enum":    []string{OutputText, OutputJSON},
				"default": OutputText,
			},
		},
		"required": []string{"prompt"},
	}
}
