package condition

func (h *Handler) Name() string {
	return "Condition"
}

func (h *Handler) Description() string {
	return "Evaluates a JavaScript boolean expression over the node inputs and outputs {matched}."
}

func (h *Handler) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"expression": map[string]any{
				"type":        "string",
				"description": "Expression with inputs, input, input_data, variables and execution in scope",
				"examples": []string{
					"input.status_code === 200",
					"input_data.amount > 100 && variables.mode !== 'test'",
					"inputs.fetch_user.body.role == 'admin'",
				},
			},
		},
		"required": []string{"expression"},
	}
}
