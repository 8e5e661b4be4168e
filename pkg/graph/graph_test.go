package graph_test

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/autoflow-io/autoflow/pkg/graph"
	"github.com/autoflow-io/autoflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func node(id, nodeType string) *models.WorkflowNode {
	return &models.WorkflowNode{ID: id, Type: nodeType}
}

func edge(from, to string) *models.Connection {
	return &models.Connection{From: from, To: to}
}

func ids(nodes []*models.WorkflowNode) []string {
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n.ID)
	}

	return out
}

func TestValidate_LinearGraph(t *testing.T) {
	t.Parallel()

	workflow := &models.Workflow{
		Nodes:       []*models.WorkflowNode{node("A", "trigger"), node("B", "action"), node("C", "action")},
		Connections: []*models.Connection{edge("A", "B"), edge("B", "C")},
	}

	plan, err := graph.Validate(workflow)
	require.NoError(t, err)

	assert.Equal(t, []string{"A", "B", "C"}, ids(plan.Order))
	require.Len(t, plan.Levels, 3)
	assert.Equal(t, []string{"A"}, plan.Roots)
	assert.True(t, plan.IsRoot("A"))
	assert.False(t, plan.IsRoot("B"))
	assert.Equal(t, 2, plan.Position("C"))
	assert.Equal(t, -1, plan.Position("missing"))
	assert.Len(t, plan.Incoming("B"), 1)
}

func TestValidate_TieBreakByDeclarationOrder(t *testing.T) {
	t.Parallel()

	workflow := &models.Workflow{
		Nodes: []*models.WorkflowNode{
			node("start", "trigger"),
			node("z", "action"),
			node("a", "action"),
			node("m", "action"),
			node("join", "action"),
		},
		Connections: []*models.Connection{
			edge("start", "m"),
			edge("start", "a"),
			edge("start", "z"),
			edge("z", "join"),
			edge("a", "join"),
			edge("m", "join"),
		},
	}

	for range 10 {
		plan, err := graph.Validate(workflow)
		require.NoError(t, err)
		assert.Equal(t, []string{"start", "z", "a", "m", "join"}, ids(plan.Order))
		require.Len(t, plan.Levels, 3)
		assert.Equal(t, []string{"z", "a", "m"}, ids(plan.Levels[1]))
	}
}

func TestValidate_Levels(t *testing.T) {
	t.Parallel()

	// A -> B -> D, A -> C, C -> D: D waits for its deepest dependency.
	workflow := &models.Workflow{
		Nodes:       []*models.WorkflowNode{node("A", "trigger"), node("B", "action"), node("C", "action"), node("D", "action")},
		Connections: []*models.Connection{edge("A", "B"), edge("A", "C"), edge("B", "D"), edge("C", "D")},
	}

	plan, err := graph.Validate(workflow)
	require.NoError(t, err)
	require.Len(t, plan.Levels, 3)
	assert.Equal(t, []string{"A"}, ids(plan.Levels[0]))
	assert.Equal(t, []string{"B", "C"}, ids(plan.Levels[1]))
	assert.Equal(t, []string{"D"}, ids(plan.Levels[2]))
}

func TestValidate_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		workflow *models.Workflow
		check    func(t *testing.T, err error)
	}{
		{
			name:     "empty graph",
			workflow: &models.Workflow{},
			check: func(t *testing.T, err error) {
				t.Helper()
				var target *graph.EmptyGraphError
				assert.ErrorAs(t, err, &target)
			},
		},
		{
			name: "duplicate node",
			workflow: &models.Workflow{
				Nodes: []*models.WorkflowNode{node("A", "trigger"), node("A", "action")},
			},
			check: func(t *testing.T, err error) {
				t.Helper()
				var target *graph.DuplicateNodeError
				require.ErrorAs(t, err, &target)
				assert.Equal(t, "A", target.NodeID)
			},
		},
		{
			name: "dangling edge",
			workflow: &models.Workflow{
				Nodes:       []*models.WorkflowNode{node("A", "trigger")},
				Connections: []*models.Connection{edge("A", "ghost")},
			},
			check: func(t *testing.T, err error) {
				t.Helper()
				var target *graph.DanglingEdgeError
				require.ErrorAs(t, err, &target)
				assert.Equal(t, "ghost", target.MissingNodeID)
				assert.Equal(t, "A", target.Edge.From)
			},
		},
		{
			name: "two node cycle",
			workflow: &models.Workflow{
				Nodes:       []*models.WorkflowNode{node("X", "action"), node("Y", "action")},
				Connections: []*models.Connection{edge("X", "Y"), edge("Y", "X")},
			},
			check: func(t *testing.T, err error) {
				t.Helper()
				var target *graph.CycleDetectedError
				require.ErrorAs(t, err, &target)
				assert.ElementsMatch(t, []string{"X", "Y"}, target.RemainingNodeIDs)
			},
		},
		{
			name: "self loop",
			workflow: &models.Workflow{
				Nodes:       []*models.WorkflowNode{node("A", "trigger"), node("B", "action")},
				Connections: []*models.Connection{edge("A", "B"), edge("B", "B")},
			},
			check: func(t *testing.T, err error) {
				t.Helper()
				var target *graph.CycleDetectedError
				require.ErrorAs(t, err, &target)
				assert.Equal(t, []string{"B"}, target.RemainingNodeIDs)
			},
		},
		{
			name: "node unreachable from trigger",
			workflow: &models.Workflow{
				Nodes:       []*models.WorkflowNode{node("T", "trigger"), node("B", "action"), node("orphan", "action")},
				Connections: []*models.Connection{edge("T", "B")},
			},
			check: func(t *testing.T, err error) {
				t.Helper()
				var target *graph.UnreachableNodesError
				require.ErrorAs(t, err, &target)
				assert.Equal(t, []string{"orphan"}, target.NodeIDs)
			},
		},
		{
			name: "action feeding a trigger",
			workflow: &models.Workflow{
				Nodes:       []*models.WorkflowNode{node("T1", "trigger"), node("B", "action"), node("T2", "trigger")},
				Connections: []*models.Connection{edge("T1", "B"), edge("B", "T2")},
			},
			check: func(t *testing.T, err error) {
				t.Helper()
				var target *graph.TriggerInputError
				require.ErrorAs(t, err, &target)
				assert.Equal(t, "T2", target.Edge.To)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			plan, err := graph.Validate(tt.workflow)
			require.Error(t, err)
			assert.Nil(t, plan)
			assert.ErrorIs(t, err, graph.ErrInvalidGraph)
			assert.True(t, graph.IsValidationError(err))
			tt.check(t, err)
		})
	}
}

func TestValidate_RandomDAGsRespectEdgeOrder(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(42))

	for iteration := range 200 {
		size := 2 + rng.Intn(12)
		workflow := &models.Workflow{}

		for i := range size {
			workflow.Nodes = append(workflow.Nodes, node(fmt.Sprintf("n%d", i), "action"))
		}

		// Edges only go from lower to higher index in a hidden permutation, so the graph is acyclic.
		perm := rng.Perm(size)
		for i := 1; i < size; i++ {
			parent := rng.Intn(i)
			workflow.Connections = append(workflow.Connections, edge(fmt.Sprintf("n%d", perm[parent]), fmt.Sprintf("n%d", perm[i])))
		}

		for range rng.Intn(size) {
			a, b := rng.Intn(size), rng.Intn(size)
			if a == b {
				continue
			}

			if a > b {
				a, b = b, a
			}

			workflow.Connections = append(workflow.Connections, edge(fmt.Sprintf("n%d", perm[a]), fmt.Sprintf("n%d", perm[b])))
		}

		plan, err := graph.Validate(workflow)
		require.NoError(t, err, "iteration %d", iteration)
		require.Len(t, plan.Order, size)

		for _, conn := range workflow.Connections {
			assert.Less(t, plan.Position(conn.From), plan.Position(conn.To), "iteration %d edge %s->%s", iteration, conn.From, conn.To)
		}
	}
}

func TestValidate_RandomCyclesAlwaysRejected(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(7))

	for range 100 {
		size := 2 + rng.Intn(8)
		workflow := &models.Workflow{}

		for i := range size {
			workflow.Nodes = append(workflow.Nodes, node(fmt.Sprintf("n%d", i), "action"))
		}

		for i := range size {
			workflow.Connections = append(workflow.Connections, edge(fmt.Sprintf("n%d", i), fmt.Sprintf("n%d", (i+1)%size)))
		}

		plan, err := graph.Validate(workflow)
		assert.Nil(t, plan)

		var target *graph.CycleDetectedError
		require.ErrorAs(t, err, &target)
		assert.Len(t, target.RemainingNodeIDs, size)
	}
}
