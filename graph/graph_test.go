package graph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ishkhan42/ustore/engines/memkv"
	"github.com/ishkhan42/ustore/store"
)

func openGraph(t *testing.T, attrs Attrs) *Graph {
	t.Helper()
	e, err := memkv.Open(store.Config{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	g, err := Open(context.Background(), e, "social", attrs)
	require.NoError(t, err)
	return g
}

func TestAddEdgeIsSymmetric(t *testing.T) {
	g := openGraph(t, Attrs{Directed: true, MultiEdge: true, SelfLoops: false})
	ctx := context.Background()

	require.NoError(t, g.AddEdge(ctx, nil, 1, 2, 100))

	uNeighbors, err := g.Neighbors(ctx, nil, 1, store.RoleAny)
	require.NoError(t, err)
	require.Equal(t, []store.Key{2}, uNeighbors)

	vNeighbors, err := g.Neighbors(ctx, nil, 2, store.RoleAny)
	require.NoError(t, err)
	require.Equal(t, []store.Key{1}, vNeighbors)

	succ, err := g.Successors(ctx, nil, 1)
	require.NoError(t, err)
	require.Equal(t, []store.Key{2}, succ)

	pred, err := g.Predecessors(ctx, nil, 2)
	require.NoError(t, err)
	require.Equal(t, []store.Key{1}, pred)
}

func TestRemoveEdgeRestoresEmptyAdjacency(t *testing.T) {
	g := openGraph(t, Attrs{Directed: true, MultiEdge: true, SelfLoops: false})
	ctx := context.Background()

	require.NoError(t, g.AddEdge(ctx, nil, 1, 2, 100))
	require.NoError(t, g.RemoveEdge(ctx, nil, 1, 2, 100))

	uNeighbors, err := g.Neighbors(ctx, nil, 1, store.RoleAny)
	require.NoError(t, err)
	require.Empty(t, uNeighbors)

	vNeighbors, err := g.Neighbors(ctx, nil, 2, store.RoleAny)
	require.NoError(t, err)
	require.Empty(t, vNeighbors)
}

func TestRemoveAbsentEdgeIsNoopSuccess(t *testing.T) {
	g := openGraph(t, Attrs{Directed: true, MultiEdge: true, SelfLoops: false})
	ctx := context.Background()

	require.NoError(t, g.RemoveEdge(ctx, nil, 1, 2, 100))
	require.NoError(t, g.RemoveEdge(ctx, nil, 1, 2, 100))
}

func TestRemoveEdgeAnySentinelRemovesEveryParallelEdge(t *testing.T) {
	g := openGraph(t, Attrs{Directed: true, MultiEdge: true, SelfLoops: false})
	ctx := context.Background()

	require.NoError(t, g.AddEdge(ctx, nil, 1, 2, 10))
	require.NoError(t, g.AddEdge(ctx, nil, 1, 2, 20))

	deg, err := g.Degree(ctx, nil, 1, store.RoleSource)
	require.NoError(t, err)
	require.Equal(t, 2, deg)

	require.NoError(t, g.RemoveEdge(ctx, nil, 1, 2, store.DefaultEdgeID))

	deg, err = g.Degree(ctx, nil, 1, store.RoleSource)
	require.NoError(t, err)
	require.Equal(t, 0, deg)
}

func TestMultiEdgeRejectedWhenDisallowed(t *testing.T) {
	g := openGraph(t, Attrs{Directed: true, MultiEdge: false, SelfLoops: false})
	ctx := context.Background()

	require.NoError(t, g.AddEdge(ctx, nil, 1, 2, 10))
	err := g.AddEdge(ctx, nil, 1, 2, 20)
	require.Error(t, err)
	require.Equal(t, store.ErrorArgsWrong, store.KindOf(err))
}

func TestAddEdgeReupsertIsNoopWhenMultiEdgeDisallowed(t *testing.T) {
	g := openGraph(t, Attrs{Directed: true, MultiEdge: false, SelfLoops: false})
	ctx := context.Background()

	require.NoError(t, g.AddEdge(ctx, nil, 1, 2, 10))
	require.NoError(t, g.AddEdge(ctx, nil, 1, 2, 10))

	deg, err := g.Degree(ctx, nil, 1, store.RoleSource)
	require.NoError(t, err)
	require.Equal(t, 1, deg)
}

func TestSelfLoopRejectedWhenDisallowed(t *testing.T) {
	g := openGraph(t, Attrs{Directed: true, MultiEdge: true, SelfLoops: false})
	ctx := context.Background()

	err := g.AddEdge(ctx, nil, 1, 1, 10)
	require.Error(t, err)
	require.Equal(t, store.ErrorArgsWrong, store.KindOf(err))
}

func TestSelfLoopAllowedCollapsesToOneEntry(t *testing.T) {
	g := openGraph(t, Attrs{Directed: false, MultiEdge: true, SelfLoops: true})
	ctx := context.Background()

	require.NoError(t, g.AddEdge(ctx, nil, 1, 1, 10))

	neighbors, err := g.Neighbors(ctx, nil, 1, store.RoleAny)
	require.NoError(t, err)
	require.Equal(t, []store.Key{1}, neighbors)
}

func TestUndirectedEdgeIsMutualBothWays(t *testing.T) {
	g := openGraph(t, Attrs{Directed: false, MultiEdge: true, SelfLoops: false})
	ctx := context.Background()

	require.NoError(t, g.AddEdge(ctx, nil, 1, 2, 100))

	succ, err := g.Successors(ctx, nil, 1)
	require.NoError(t, err)
	require.Equal(t, []store.Key{2}, succ)

	pred, err := g.Predecessors(ctx, nil, 1)
	require.NoError(t, err)
	require.Equal(t, []store.Key{2}, pred)
}

func TestSubgraphBFSRespectsHopBudget(t *testing.T) {
	g := openGraph(t, Attrs{Directed: true, MultiEdge: true, SelfLoops: false})
	ctx := context.Background()

	// 1 -> 2 -> 3 -> 4
	require.NoError(t, g.AddEdge(ctx, nil, 1, 2, 1))
	require.NoError(t, g.AddEdge(ctx, nil, 2, 3, 2))
	require.NoError(t, g.AddEdge(ctx, nil, 3, 4, 3))

	vertices, _, err := g.Subgraph(ctx, nil, 1, 2)
	require.NoError(t, err)
	require.ElementsMatch(t, []store.Key{1, 2, 3}, vertices)
}

func TestAddEdgeInsideCallerTransactionIsAtomic(t *testing.T) {
	g := openGraph(t, Attrs{Directed: true, MultiEdge: true, SelfLoops: false})
	ctx := context.Background()

	txn, err := g.engine.TxnBegin(ctx, 0)
	require.NoError(t, err)

	require.NoError(t, g.AddEdge(ctx, txn, 1, 2, 10))
	require.NoError(t, g.AddEdge(ctx, txn, 2, 3, 20))

	neighbors, err := g.Neighbors(ctx, nil, 1, store.RoleAny)
	require.NoError(t, err)
	require.Empty(t, neighbors, "writes staged in txn must not be visible outside it")

	_, err = g.engine.TxnCommit(ctx, txn, 0)
	require.NoError(t, err)

	neighbors, err = g.Neighbors(ctx, nil, 1, store.RoleAny)
	require.NoError(t, err)
	require.Equal(t, []store.Key{2}, neighbors)
}
