package trigger

func (h *Handler) Name() string {
	return "Trigger"
}

func (h *Handler) Description() string {
	return "Starts a workflow. Outputs the execution input data, optionally on a cron schedule."
}

func (h *Handler) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"schedule": map[string]any{
				"type":        "string",
				"description": "Cron expression; when set the scheduler submits an execution on every tick",
				"examples": []string{
					"0 9 * * MON-FRI",
					"*/15 * * * *",
				},
			},
			"timezone": map[string]any{
				"type":        "string",
				"description": "Timezone for the schedule",
				"default":     "UTC",
			},
		},
	}
}
