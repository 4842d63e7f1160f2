package graph

import (
	"context"

	"github.com/ishkhan42/ustore/store"
)

// Subgraph performs hop-bounded BFS: each frontier expansion
// resolves every vertex at that depth with a single batched Read instead of
// one read per vertex, and the search stops once hops expansions have run,
// including the whole final frontier ("ties at the frontier are included").
// It returns every vertex reached (start included) and every edge crossed
// to reach them; an edge already seen from the other endpoint may appear
// twice, same as Neighbors' documented duplicate-emission behavior.
func (g *Graph) Subgraph(ctx context.Context, txn *store.Txn, start store.Key, hops int) ([]store.Key, []store.Edge, error) {
	visited := map[store.Key]bool{start: true}
	order := []store.Key{start}
	var edges []store.Edge

	frontier := []store.Key{start}
	arena := store.NewArena(0)

	for h := 0; h < hops && len(frontier) > 0; h++ {
		places := store.PlacesArg{
			Collections: store.SingleView(g.index, len(frontier)),
			Keys:        store.SliceView(frontier),
			Count:       len(frontier),
		}
		res, err := g.engine.Read(ctx, txn, places, 0, arena)
		if err != nil {
			return nil, nil, err
		}

		var next []store.Key
		for i, v := range frontier {
			raw, present := res.Value(i)
			if !present {
				continue
			}
			entries, err := decodeAdjacency(raw)
			if err != nil {
				return nil, nil, err
			}
			for _, e := range entries {
				edge := store.Edge{ID: e.Edge}
				if e.Role.Has(store.RoleSource) {
					edge.Source, edge.Target = v, e.Neighbor
				} else {
					edge.Source, edge.Target = e.Neighbor, v
				}
				edges = append(edges, edge)

				if !visited[e.Neighbor] {
					visited[e.Neighbor] = true
					order = append(order, e.Neighbor)
					next = append(next, e.Neighbor)
				}
			}
		}
		frontier = next
	}

	return order, edges, nil
}
