package registry

import (
	"net/http"

	"github.com/autoflow-io/autoflow/pkg/nodes/action"
	"github.com/autoflow-io/autoflow/pkg/nodes/aicall"
	"github.com/autoflow-io/autoflow/pkg/nodes/condition"
	"github.com/autoflow-io/autoflow/pkg/nodes/delay"
	"github.com/autoflow-io/autoflow/pkg/nodes/trigger"
	"github.com/autoflow-io/autoflow/pkg/nodes/webhook"
	"github.com/autoflow-io/autoflow/pkg/protocol"
)

// Dependencies are the collaborators the built-in handlers need.
type Dependencies struct {
	HTTPClient *http.Client
	Completer  protocol.Completer
}

// RegisterDefaultNodes registers all built-in node handlers with the registry.
func (r *Registry) RegisterDefaultNodes(deps Dependencies) {
	r.Register(trigger.New())
	r.Register(action.New(deps.HTTPClient))
	r.Register(webhook.New(deps.HTTPClient))
	r.Register(condition.New())
	r.Register(delay.New())
	r.Register(aicall.New(deps.Completer))
}
