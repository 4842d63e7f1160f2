package store

import "unsafe"

// PlacesArg is the (collection, key, field) batch passed to Write and Read.
// It composes three Views lazily: indexing it never allocates.
type PlacesArg struct {
	Collections View[CollectionName]
	Keys        View[Key]
	Fields      View[string]
	Count       int
}

// At resolves place i, applying defaults: the default collection when
// Collections is null, and an empty field when Fields is null.
func (p PlacesArg) At(i int) Place {
	place := Place{Collection: DefaultCollection}
	if !p.Collections.IsNull() {
		place.Collection = p.Collections.At(i)
	}
	place.Key = p.Keys.At(i)
	if !p.Fields.IsNull() {
		place.Field = p.Fields.At(i)
	}
	return place
}

// SameCollection reports whether every place in the bundle targets the same
// collection, which lets an engine fast-path a single-collection batch.
func (p PlacesArg) SameCollection() bool {
	if p.Collections.IsNull() || p.Count <= 1 {
		return true
	}
	first := p.Collections.At(0)
	for i := 1; i < p.Count; i++ {
		if p.Collections.At(i) != first {
			return false
		}
	}
	return true
}

// Content is one resolved (presence, payload) pair out of a ContentsArg.
type Content struct {
	Present bool
	Bytes   []byte
}

// ContentsArg is the payload batch passed alongside PlacesArg on Write. It
// supports three payload-length encodings, probed in this order: explicit
// Lengths, an Arrow-style Offsets array of size count+1, or a Separator
// byte terminating each payload. A nil Payloads view (all Payloads entries
// absent) means "delete every place in the batch".
type ContentsArg struct {
	Presences View[bool]
	Offsets   View[uint32]
	Lengths   View[uint32]
	Payloads  View[[]byte] // each element is the full backing buffer for that row
	Count     int
	Separator byte
}

// IsDeleteAll reports whether this ContentsArg carries no payloads at all,
// i.e. the batch is a pure delete.
func (c ContentsArg) IsDeleteAll() bool { return c.Payloads.IsNull() }

// At resolves content i via the three-tier length resolution documented on
// ContentsArg.
func (c ContentsArg) At(i int) Content {
	if c.Payloads.IsNull() {
		return Content{}
	}
	buf := c.Payloads.At(i)
	if buf == nil || (!c.Presences.IsNull() && !c.Presences.At(i)) {
		return Content{}
	}

	var off uint32
	if !c.Offsets.IsNull() {
		off = c.Offsets.At(i)
	}

	var length uint32
	switch {
	case !c.Lengths.IsNull():
		length = c.Lengths.At(i)
	case !c.Offsets.IsNull():
		length = c.Offsets.At(i+1) - off
	default:
		sep := c.Separator
		for int(off)+int(length) < len(buf) && buf[off+length] != sep {
			length++
		}
	}

	return Content{Present: true, Bytes: buf[off : off+length]}
}

// IsContinuous reports whether consecutive rows occupy adjacent memory in
// their backing buffer, letting an engine fast-path the whole batch as one
// contiguous write instead of row by row.
func (c ContentsArg) IsContinuous() bool {
	if c.Count == 0 {
		return true
	}
	last := c.At(0)
	for i := 1; i < c.Count; i++ {
		cur := c.At(i)
		if len(last.Bytes) == 0 || len(cur.Bytes) == 0 || !adjacent(last.Bytes, cur.Bytes) {
			return false
		}
		last = cur
	}
	return true
}

// adjacent reports whether b starts exactly where a ends in memory.
func adjacent(a, b []byte) bool {
	return uintptr(unsafe.Pointer(&a[0]))+uintptr(len(a)) == uintptr(unsafe.Pointer(&b[0]))
}

// ScanRequest is one resolved (collection, min_key, limit) scan request.
type ScanRequest struct {
	Collection CollectionName
	MinKey     Key
	Limit      int
}

// ScansArg is the batch of scan requests passed to Scan.
type ScansArg struct {
	Collections View[CollectionName]
	MinKeys     View[Key]
	Limits      View[int]
	Count       int
}

func (s ScansArg) At(i int) ScanRequest {
	req := ScanRequest{Collection: DefaultCollection, MinKey: MissingKey}
	if !s.Collections.IsNull() {
		req.Collection = s.Collections.At(i)
	}
	if !s.MinKeys.IsNull() {
		req.MinKey = s.MinKeys.At(i)
	} else {
		req.MinKey = 0
	}
	req.Limit = s.Limits.At(i)
	return req
}

// SampleRequest is one resolved (collection, limit) sampling request.
type SampleRequest struct {
	Collection CollectionName
	Limit      int
}

// SampleArgs is the batch of sampling requests passed to Sample.
type SampleArgs struct {
	Collections View[CollectionName]
	Limits      View[int]
	Count       int
}

func (s SampleArgs) At(i int) SampleRequest {
	req := SampleRequest{Collection: DefaultCollection}
	if !s.Collections.IsNull() {
		req.Collection = s.Collections.At(i)
	}
	req.Limit = s.Limits.At(i)
	return req
}

// EdgesArg is the batch of (source, target, edge_id) triples passed to the
// graph modality's batched edge operations.
type EdgesArg struct {
	Sources View[Key]
	Targets View[Key]
	IDs     View[Key]
	Count   int
}

func (e EdgesArg) At(i int) Edge {
	edge := Edge{ID: DefaultEdgeID}
	edge.Source = e.Sources.At(i)
	edge.Target = e.Targets.At(i)
	if !e.IDs.IsNull() {
		edge.ID = e.IDs.At(i)
	}
	return edge
}

// FindEdgesRequest is one resolved (collection, vertex, role) lookup
// request used by neighbor/degree batched queries.
type FindEdgesRequest struct {
	Collection CollectionName
	Vertex     Key
	Role       Role
}

type FindEdgesArg struct {
	Collections View[CollectionName]
	Vertices    View[Key]
	Roles       View[Role]
	Count       int
}

func (f FindEdgesArg) At(i int) FindEdgesRequest {
	req := FindEdgesRequest{Collection: DefaultCollection, Role: RoleAny}
	if !f.Collections.IsNull() {
		req.Collection = f.Collections.At(i)
	}
	req.Vertex = f.Vertices.At(i)
	if !f.Roles.IsNull() {
		req.Role = f.Roles.At(i)
	}
	return req
}
