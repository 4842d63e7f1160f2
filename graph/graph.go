package graph

import (
	"context"

	"github.com/ishkhan42/ustore/store"
)

// Attrs are a graph's directed/multi-edge/self-loop flags, fixed once at
// Open and held on the Graph handle for the lifetime of the process that
// opened it, rather than re-supplied on every call.
type Attrs struct {
	Directed  bool
	MultiEdge bool
	SelfLoops bool
}

// Graph is a handle over one index collection: each vertex's key holds its
// adjacency record.
type Graph struct {
	engine store.Engine
	index  store.CollectionName
	attrs  Attrs
}

// Open opens (creating if necessary) the index collection and returns a
// Graph handle carrying attrs. index == "" uses the engine's default
// collection.
func Open(ctx context.Context, engine store.Engine, index store.CollectionName, attrs Attrs) (*Graph, error) {
	if index == "" {
		index = store.DefaultCollection
	}
	if _, err := engine.CollectionOpen(ctx, index); err != nil {
		return nil, err
	}
	return &Graph{engine: engine, index: index, attrs: attrs}, nil
}

func (g *Graph) Attrs() Attrs { return g.attrs }

func (g *Graph) readEntries(ctx context.Context, txn *store.Txn, v store.Key, arena *store.Arena) ([]entry, error) {
	places := store.PlacesArg{
		Collections: store.SingleView(g.index, 1),
		Keys:        store.SingleView(v, 1),
		Count:       1,
	}
	res, err := g.engine.Read(ctx, txn, places, 0, arena)
	if err != nil {
		return nil, err
	}
	raw, present := res.Value(0)
	if !present {
		return nil, nil
	}
	return decodeAdjacency(raw)
}

func (g *Graph) writeEntries(ctx context.Context, txn *store.Txn, v store.Key, entries []entry) error {
	places := store.PlacesArg{
		Collections: store.SingleView(g.index, 1),
		Keys:        store.SingleView(v, 1),
		Count:       1,
	}
	if len(entries) == 0 {
		return g.engine.Write(ctx, txn, places, store.ContentsArg{Count: 1}, 0)
	}
	raw := encodeAdjacency(entries)
	contents := store.ContentsArg{
		Payloads: store.SingleView(raw, 1),
		Lengths:  store.SingleView(uint32(len(raw)), 1),
		Count:    1,
	}
	return g.engine.Write(ctx, txn, places, contents, 0)
}

// withTxn runs fn under txn if the caller supplied one, otherwise begins,
// commits (or frees on error), a transaction of its own. Writes that touch
// both endpoints of an edge must run inside a transaction to preserve the
// symmetry invariant under concurrent modification, whether or not the
// caller is already batching several edge operations together.
func (g *Graph) withTxn(ctx context.Context, txn *store.Txn, fn func(*store.Txn) error) error {
	if txn != nil {
		return fn(txn)
	}
	own, err := g.engine.TxnBegin(ctx, 0)
	if err != nil {
		return err
	}
	if err := fn(own); err != nil {
		_ = g.engine.TxnFree(ctx, own)
		return err
	}
	if _, err := g.engine.TxnCommit(ctx, own, 0); err != nil {
		return err
	}
	return g.engine.TxnFree(ctx, own)
}

// AddEdge upserts edge (u, v, e): rejecting multi-edges and
// self-loops the graph disallows, then inserting the source/target entries
// symmetrically on both endpoints (OR-ed into RoleSource|RoleTarget on both
// ends for an undirected graph).
func (g *Graph) AddEdge(ctx context.Context, txn *store.Txn, u, v, e store.Key) error {
	return g.withTxn(ctx, txn, func(t *store.Txn) error {
		if !g.attrs.SelfLoops && u == v {
			return store.NewError(store.ErrorArgsWrong, "self-loops are disallowed on this graph")
		}

		arena := store.NewArena(0)
		uEntries, err := g.readEntries(ctx, t, u, arena)
		if err != nil {
			return err
		}
		if !g.attrs.MultiEdge && find(uEntries, v, e) < 0 && findByNeighbor(uEntries, v) {
			return store.NewError(store.ErrorArgsWrong, "multi-edges are disallowed on this graph")
		}

		uRole, vRole := store.RoleSource, store.RoleTarget
		if !g.attrs.Directed {
			uRole, vRole = store.RoleAny, store.RoleAny
		}

		if u == v {
			entries := upsert(uEntries, v, e, uRole)
			entries = upsert(entries, u, e, vRole)
			return g.writeEntries(ctx, t, u, entries)
		}

		vEntries, err := g.readEntries(ctx, t, v, arena)
		if err != nil {
			return err
		}
		uEntries = upsert(uEntries, v, e, uRole)
		vEntries = upsert(vEntries, u, e, vRole)
		if err := g.writeEntries(ctx, t, u, uEntries); err != nil {
			return err
		}
		return g.writeEntries(ctx, t, v, vEntries)
	})
}

// RemoveEdge removes edge (u, v, e), or every (u, v) edge when e is
// store.DefaultEdgeID, the "any edge" sentinel. Removing an edge that
// doesn't exist is a no-op success, consistent with delete being
// idempotent at the underlying key-value layer.
func (g *Graph) RemoveEdge(ctx context.Context, txn *store.Txn, u, v, e store.Key) error {
	return g.withTxn(ctx, txn, func(t *store.Txn) error {
		arena := store.NewArena(0)
		uEntries, err := g.readEntries(ctx, t, u, arena)
		if err != nil {
			return err
		}
		strip := func(entries []entry, neighbor store.Key) []entry {
			if e == store.DefaultEdgeID {
				return removeAll(entries, neighbor)
			}
			return removeOne(entries, neighbor, e)
		}

		if u == v {
			entries := strip(uEntries, v)
			entries = strip(entries, u)
			return g.writeEntries(ctx, t, u, entries)
		}

		vEntries, err := g.readEntries(ctx, t, v, arena)
		if err != nil {
			return err
		}
		uEntries = strip(uEntries, v)
		vEntries = strip(vEntries, u)
		if err := g.writeEntries(ctx, t, u, uEntries); err != nil {
			return err
		}
		return g.writeEntries(ctx, t, v, vEntries)
	})
}

// filterNeighbors collects the neighbor ids of entries whose role matches
// want, duplicates included: the same vertex reached via multiple edges
// appears once per matching edge.
func filterNeighbors(entries []entry, want store.Role) []store.Key {
	var out []store.Key
	for _, e := range entries {
		if e.Role.Has(want) {
			out = append(out, e.Neighbor)
		}
	}
	return out
}

// Neighbors returns v's neighbors whose adjacency entry matches role
// (store.RoleAny for every neighbor regardless of direction).
func (g *Graph) Neighbors(ctx context.Context, txn *store.Txn, v store.Key, role store.Role) ([]store.Key, error) {
	entries, err := g.readEntries(ctx, txn, v, store.NewArena(0))
	if err != nil {
		return nil, err
	}
	return filterNeighbors(entries, role), nil
}

// Successors returns the vertices v has an outgoing edge to: entries where
// v played the source role.
func (g *Graph) Successors(ctx context.Context, txn *store.Txn, v store.Key) ([]store.Key, error) {
	return g.Neighbors(ctx, txn, v, store.RoleSource)
}

// Predecessors returns the vertices with an edge incoming to v: entries
// where v played the target role.
func (g *Graph) Predecessors(ctx context.Context, txn *store.Txn, v store.Key) ([]store.Key, error) {
	return g.Neighbors(ctx, txn, v, store.RoleTarget)
}

// Degree counts v's adjacency entries matching role.
func (g *Graph) Degree(ctx context.Context, txn *store.Txn, v store.Key, role store.Role) (int, error) {
	entries, err := g.readEntries(ctx, txn, v, store.NewArena(0))
	if err != nil {
		return 0, err
	}
	n := 0
	for _, e := range entries {
		if e.Role.Has(role) {
			n++
		}
	}
	return n, nil
}
