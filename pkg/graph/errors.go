package graph

import (
	"errors"
	"fmt"
	"strings"

	"github.com/autoflow-io/autoflow/pkg/models"
)

// ErrInvalidGraph is matched by every validation error returned from Validate.
var ErrInvalidGraph = errors.New("invalid workflow graph")

// IsValidationError reports whether err was produced by graph validation.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidGraph)
}

// EmptyGraphError is returned when the workflow has no nodes.
type EmptyGraphError struct{}

func (e *EmptyGraphError) Error() string { return "workflow graph has no nodes" }

func (e *EmptyGraphError) Is(target error) bool { return target == ErrInvalidGraph }

// DuplicateNodeError is returned when two nodes share an id.
type DuplicateNodeError struct {
	NodeID string
}

func (e *DuplicateNodeError) Error() string {
	return fmt.Sprintf("duplicate node id %q", e.NodeID)
}

func (e *DuplicateNodeError) Is(target error) bool { return target == ErrInvalidGraph }

// DanglingEdgeError is returned when a connection references a node that does not exist.
type DanglingEdgeError struct {
	Edge          models.Connection
	MissingNodeID string
}

func (e *DanglingEdgeError) Error() string {
	return fmt.Sprintf("connection %s -> %s references unknown node %q", e.Edge.From, e.Edge.To, e.MissingNodeID)
}

func (e *DanglingEdgeError) Is(target error) bool { return target == ErrInvalidGraph }

// CycleDetectedError lists the nodes left over after topological sorting stalled.
type CycleDetectedError struct {
	RemainingNodeIDs []string
}

func (e *CycleDetectedError) Error() string {
	return "cycle detected between nodes: " + strings.Join(e.RemainingNodeIDs, ", ")
}

func (e *CycleDetectedError) Is(target error) bool { return target == ErrInvalidGraph }

// UnreachableNodesError lists nodes that no root can reach.
type UnreachableNodesError struct {
	NodeIDs []string
}

func (e *UnreachableNodesError) Error() string {
	return "nodes not reachable from any trigger: " + strings.Join(e.NodeIDs, ", ")
}

func (e *UnreachableNodesError) Is(target error) bool { return target == ErrInvalidGraph }

// TriggerInputError is returned when a non-trigger node feeds a trigger node.
type TriggerInputError struct {
	Edge models.Connection
}

func (e *TriggerInputError) Error() string {
	return fmt.Sprintf("trigger node %q cannot receive input from %q", e.Edge.To, e.Edge.From)
}

func (e *TriggerInputError) Is(target error) bool { return target == ErrInvalidGraph }
