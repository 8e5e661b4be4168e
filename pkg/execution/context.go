package execution

import (
	"sync"

	"github.com/autoflow-io/autoflow/pkg/models"
)

// RunContext is the in-memory state of one run. It is owned by the dispatcher while the run
// is driven and dropped afterwards; node logs are its durable projection.
type RunContext struct {
	Run       *models.ExecutionRun
	Variables map[string]any

	mu       sync.RWMutex
	bindings map[string]map[string]any
}

func NewRunContext(run *models.ExecutionRun, variables map[string]any) *RunContext {
	if variables == nil {
		variables = map[string]any{}
	}

	return &RunContext{
		Run:       run.Clone(),
		Variables: variables,
		bindings:  make(map[string]map[string]any),
	}
}

// Bind records the output of a succeeded node.
func (c *RunContext) Bind(nodeID string, output map[string]any) {
	if output == nil {
		output = map[string]any{}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.bindings[nodeID] = output
}

// Binding returns the output of nodeID, if it succeeded.
func (c *RunContext) Binding(nodeID string) (map[string]any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	output, ok := c.bindings[nodeID]

	return output, ok
}

// InputData is the payload the run was submitted with.
func (c *RunContext) InputData() map[string]any {
	if c.Run.InputData == nil {
		return map[string]any{}
	}

	return c.Run.InputData
}
