// Package trigger provides the node that starts a workflow and exposes the run input.
package trigger

import (
	"context"
	"maps"
	"time"

	"github.com/autoflow-io/autoflow/pkg/models"
	"github.com/autoflow-io/autoflow/pkg/nodes"
	"github.com/autoflow-io/autoflow/pkg/protocol"
	"github.com/robfig/cron/v3"
)

var _ protocol.Handler = (*Handler)(nil)

// Handler passes the run input data through as its output. It never fails.
type Handler struct{}

func New() *Handler {
	return &Handler{}
}

func (h *Handler) Type() string {
	return models.NodeTypeTrigger
}

// Validate checks the optional schedule and timezone used by the scheduler.
func (h *Handler) Validate(config map[string]any) error {
	if schedule, ok := nodes.String(config, "schedule"); ok && schedule != "" {
		if _, err := ParseSchedule(schedule, config); err != nil {
			return &nodes.ConfigError{Field: "schedule", Message: err.Error()}
		}
	}

	return nil
}

func (h *Handler) Execute(_ context.Context, req protocol.Request) (map[string]any, error) {
	output := make(map[string]any, len(req.InputData)+1)
	maps.Copy(output, req.InputData)

	data := make(map[string]any, len(req.InputData))
	maps.Copy(data, req.InputData)
	output["data"] = data

	return output, nil
}

// ParseSchedule parses a standard five-field cron spec in the timezone named by config["timezone"].
func ParseSchedule(spec string, config map[string]any) (cron.Schedule, error) {
	if tz, ok := nodes.String(config, "timezone"); ok && tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return nil, err
		}

		spec = "CRON_TZ=" + tz + " " + spec
	}

	return cron.ParseStandard(spec)
}
