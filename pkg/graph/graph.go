// Package graph validates workflow graphs and turns them into execution plans.
package graph

import (
	"container/heap"
	"slices"

	"github.com/autoflow-io/autoflow/pkg/models"
)

// Plan is a validated workflow in dispatch order.
type Plan struct {
	// Order is a topological order; ties are broken by node declaration order.
	Order []*models.WorkflowNode
	// Levels groups nodes whose dependencies are all in earlier levels.
	Levels [][]*models.WorkflowNode
	// Roots are the nodes execution starts from.
	Roots []string

	incoming map[string][]*models.Connection
	position map[string]int
	roots    map[string]bool
}

// Incoming returns the connections ending at nodeID, in declaration order.
func (p *Plan) Incoming(nodeID string) []*models.Connection {
	return p.incoming[nodeID]
}

// IsRoot reports whether nodeID is an entry point of the plan.
func (p *Plan) IsRoot(nodeID string) bool {
	return p.roots[nodeID]
}

// Position returns the index of nodeID in Order, or -1.
func (p *Plan) Position(nodeID string) int {
	if pos, ok := p.position[nodeID]; ok {
		return pos
	}

	return -1
}

// Validate checks that the workflow is a non-empty DAG whose nodes are all reachable from
// its roots and returns the execution plan.
//
// Roots are the trigger nodes when the workflow declares any, otherwise every node without
// incoming connections.
func Validate(workflow *models.Workflow) (*Plan, error) {
	if workflow == nil || len(workflow.Nodes) == 0 {
		return nil, &EmptyGraphError{}
	}

	nodes := workflow.Nodes
	declared := make(map[string]int, len(nodes))

	for i, node := range nodes {
		if node == nil {
			return nil, &EmptyGraphError{}
		}

		if _, exists := declared[node.ID]; exists {
			return nil, &DuplicateNodeError{NodeID: node.ID}
		}

		declared[node.ID] = i
	}

	incoming := make(map[string][]*models.Connection, len(nodes))
	outgoing := make(map[string][]*models.Connection, len(nodes))
	inDegree := make([]int, len(nodes))

	for _, conn := range workflow.Connections {
		if conn == nil {
			continue
		}

		if _, ok := declared[conn.From]; !ok {
			return nil, &DanglingEdgeError{Edge: *conn, MissingNodeID: conn.From}
		}

		toIdx, ok := declared[conn.To]
		if !ok {
			return nil, &DanglingEdgeError{Edge: *conn, MissingNodeID: conn.To}
		}

		incoming[conn.To] = append(incoming[conn.To], conn)
		outgoing[conn.From] = append(outgoing[conn.From], conn)
		inDegree[toIdx]++
	}

	order, remaining := kahn(nodes, declared, outgoing, inDegree)
	if len(remaining) > 0 {
		return nil, &CycleDetectedError{RemainingNodeIDs: remaining}
	}

	for _, conn := range workflow.Connections {
		if conn == nil {
			continue
		}

		from := nodes[declared[conn.From]]
		to := nodes[declared[conn.To]]

		if to.IsTriggerNode() && !from.IsTriggerNode() {
			return nil, &TriggerInputError{Edge: *conn}
		}
	}

	roots := findRoots(nodes, incoming)

	unreachable := findUnreachable(nodes, roots, outgoing)
	if len(unreachable) > 0 {
		return nil, &UnreachableNodesError{NodeIDs: unreachable}
	}

	plan := &Plan{
		Order:    order,
		incoming: incoming,
		position: make(map[string]int, len(order)),
		roots:    make(map[string]bool, len(roots)),
	}

	for i, node := range order {
		plan.position[node.ID] = i
	}

	for _, id := range roots {
		plan.Roots = append(plan.Roots, id)
		plan.roots[id] = true
	}

	plan.Levels = buildLevels(order, incoming, declared)

	return plan, nil
}

// kahn repeatedly removes nodes without unresolved incoming connections, always picking the
// earliest declared ready node. Nodes left over are part of, or downstream of, a cycle.
func kahn(
	nodes []*models.WorkflowNode,
	declared map[string]int,
	outgoing map[string][]*models.Connection,
	inDegree []int,
) ([]*models.WorkflowNode, []string) {
	degree := append([]int(nil), inDegree...)
	ready := &indexHeap{}

	for i := range nodes {
		if degree[i] == 0 {
			heap.Push(ready, i)
		}
	}

	order := make([]*models.WorkflowNode, 0, len(nodes))
	done := make([]bool, len(nodes))

	for ready.Len() > 0 {
		idx := heap.Pop(ready).(int)
		order = append(order, nodes[idx])
		done[idx] = true

		for _, conn := range outgoing[nodes[idx].ID] {
			next := declared[conn.To]

			degree[next]--
			if degree[next] == 0 {
				heap.Push(ready, next)
			}
		}
	}

	var remaining []string

	for i, node := range nodes {
		if !done[i] {
			remaining = append(remaining, node.ID)
		}
	}

	return order, remaining
}

func findRoots(nodes []*models.WorkflowNode, incoming map[string][]*models.Connection) []string {
	var triggers, sources []string

	for _, node := range nodes {
		if node.IsTriggerNode() {
			triggers = append(triggers, node.ID)
		}

		if len(incoming[node.ID]) == 0 {
			sources = append(sources, node.ID)
		}
	}

	if len(triggers) > 0 {
		return triggers
	}

	return sources
}

func findUnreachable(nodes []*models.WorkflowNode, roots []string, outgoing map[string][]*models.Connection) []string {
	visited := make(map[string]bool, len(nodes))
	stack := append([]string(nil), roots...)

	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if visited[id] {
			continue
		}

		visited[id] = true

		for _, conn := range outgoing[id] {
			if !visited[conn.To] {
				stack = append(stack, conn.To)
			}
		}
	}

	var unreachable []string

	for _, node := range nodes {
		if !visited[node.ID] {
			unreachable = append(unreachable, node.ID)
		}
	}

	return unreachable
}

func buildLevels(order []*models.WorkflowNode, incoming map[string][]*models.Connection, declared map[string]int) [][]*models.WorkflowNode {
	level := make(map[string]int, len(order))
	maxLevel := 0

	for _, node := range order {
		l := 0

		for _, conn := range incoming[node.ID] {
			if level[conn.From]+1 > l {
				l = level[conn.From] + 1
			}
		}

		level[node.ID] = l
		if l > maxLevel {
			maxLevel = l
		}
	}

	levels := make([][]*models.WorkflowNode, maxLevel+1)

	for _, node := range order {
		levels[level[node.ID]] = append(levels[level[node.ID]], node)
	}

	for _, nodesInLevel := range levels {
		sortByDeclaration(nodesInLevel, declared)
	}

	return levels
}

func sortByDeclaration(nodes []*models.WorkflowNode, declared map[string]int) {
	slices.SortFunc(nodes, func(a, b *models.WorkflowNode) int {
		return declared[a.ID] - declared[b.ID]
	})
}

type indexHeap []int

func (h indexHeap) Len() int           { return len(h) }
func (h indexHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h indexHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *indexHeap) Push(x any) { *h = append(*h, x.(int)) }

func (h *indexHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]

	return x
}
