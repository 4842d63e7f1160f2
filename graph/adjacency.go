// Package graph is the graph modality: edge-list semantics rebuilt on top
// of the plain key-value substrate. A graph is nothing more than a
// collection whose values are adjacency records; there is no separate
// on-disk representation, graphs live entirely inside one or more regular
// key-value collections.
package graph

import (
	"encoding/binary"
	"sort"

	"github.com/ishkhan42/ustore/store"
)

// entry is one (neighbor_id, edge_id, role) triple out of a vertex's
// adjacency record.
type entry struct {
	Neighbor store.Key
	Edge     store.Key
	Role     store.Role
}

func less(a, b entry) bool {
	if a.Neighbor != b.Neighbor {
		return a.Neighbor < b.Neighbor
	}
	return a.Edge < b.Edge
}

// entrySize is the encoded width of one entry: two 8-byte keys plus a
// 1-byte role bitfield.
const entrySize = 8 + 8 + 1

// encodeAdjacency packs entries, already sorted by (neighbor_id, edge_id),
// into a length-prefixed record.
func encodeAdjacency(entries []entry) []byte {
	buf := make([]byte, 4+len(entries)*entrySize)
	binary.BigEndian.PutUint32(buf[0:4], uint32(len(entries)))
	off := 4
	for _, e := range entries {
		binary.BigEndian.PutUint64(buf[off:off+8], uint64(e.Neighbor))
		binary.BigEndian.PutUint64(buf[off+8:off+16], uint64(e.Edge))
		buf[off+16] = byte(e.Role)
		off += entrySize
	}
	return buf
}

// decodeAdjacency is encodeAdjacency's inverse. A nil/empty raw decodes to
// an empty, already-sorted record — a vertex with no adjacency record yet
// behaves exactly like one with zero edges.
func decodeAdjacency(raw []byte) ([]entry, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	if len(raw) < 4 {
		return nil, store.NewError(store.ErrorCorruption, "adjacency record shorter than its count prefix")
	}
	count := binary.BigEndian.Uint32(raw[0:4])
	want := 4 + int(count)*entrySize
	if len(raw) != want {
		return nil, store.NewError(store.ErrorCorruption, "adjacency record length does not match its entry count")
	}
	entries := make([]entry, count)
	off := 4
	for i := range entries {
		entries[i] = entry{
			Neighbor: store.Key(binary.BigEndian.Uint64(raw[off : off+8])),
			Edge:     store.Key(binary.BigEndian.Uint64(raw[off+8 : off+16])),
			Role:     store.Role(raw[off+16]),
		}
		off += entrySize
	}
	return entries, nil
}

// find returns the index of the entry matching (neighbor, edge), or -1.
func find(entries []entry, neighbor, edge store.Key) int {
	for i, e := range entries {
		if e.Neighbor == neighbor && e.Edge == edge {
			return i
		}
	}
	return -1
}

// findByNeighbor reports whether any entry references neighbor, regardless
// of edge id — what the multi-edge rejection check needs.
func findByNeighbor(entries []entry, neighbor store.Key) bool {
	for _, e := range entries {
		if e.Neighbor == neighbor {
			return true
		}
	}
	return false
}

// upsert inserts (neighbor, edge, role) into entries, keeping the
// (neighbor_id, edge_id) sort order. An existing entry for the same
// (neighbor, edge) has its role bits OR-ed in rather than duplicated, which
// is what makes an undirected self-loop (u == v, role RoleAny inserted
// twice) collapse into one entry instead of two.
func upsert(entries []entry, neighbor, edge store.Key, role store.Role) []entry {
	if i := find(entries, neighbor, edge); i >= 0 {
		entries[i].Role |= role
		return entries
	}
	entries = append(entries, entry{Neighbor: neighbor, Edge: edge, Role: role})
	sort.Slice(entries, func(a, b int) bool { return less(entries[a], entries[b]) })
	return entries
}

// removeOne deletes the entry matching (neighbor, edge) exactly, if present.
func removeOne(entries []entry, neighbor, edge store.Key) []entry {
	i := find(entries, neighbor, edge)
	if i < 0 {
		return entries
	}
	return append(entries[:i], entries[i+1:]...)
}

// removeAll deletes every entry referencing neighbor, regardless of edge
// id — used when the caller passes the "any edge" sentinel to remove every
// parallel edge between a pair of vertices at once.
func removeAll(entries []entry, neighbor store.Key) []entry {
	out := entries[:0]
	for _, e := range entries {
		if e.Neighbor != neighbor {
			out = append(out, e)
		}
	}
	return out
}
