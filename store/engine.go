package store

import "context"

// Capability is a bitmask an engine returns from Capabilities, letting
// callers negotiate support for transactions and named collections instead
// of discovering the lack of one by calling it and parsing an error.
type Capability uint32

const (
	CapabilityTransactions Capability = 1 << iota
	CapabilityNamedCollections
	CapabilitySampling
)

// ReadResult is the output of a batched Read: lengths, one per requested
// place (MissingLength where absent), and the concatenated values, both
// living in the caller's Arena.
type ReadResult struct {
	Lengths []Length
	Tape    []byte
	// Offsets[i] is where row i's bytes begin in Tape; Offsets[i]+Lengths[i] is
	// where they end. Present keys with Lengths[i] == 0 still get a valid
	// (zero-length) slice, distinguishing "empty" from "missing".
	Offsets []uint32
}

// Value returns the i'th resolved value, or (nil, false) if it was missing.
func (r ReadResult) Value(i int) ([]byte, bool) {
	if r.Lengths[i] == MissingLength {
		return nil, false
	}
	off := r.Offsets[i]
	return r.Tape[off : off+r.Lengths[i]], true
}

// ScanResult is the output of one scan request: ascending keys, up to the
// request's limit, plus whether the collection had more keys beyond it.
type ScanResult struct {
	Keys []Key
	More bool
}

// MeasureResult is the output of one measure request: a key's value length
// (or MissingLength) and whether the key is present.
type MeasureResult struct {
	Length  Length
	Present bool
}

// Engine is the uniform contract every backend implements.
// All batched operations take a context for cancellation of the blocking
// I/O/lock/commit-serialization points, and an *Arena into which results
// are written, per the Store's memory model.
//
// An engine that lacks a capability must return an *Error with Kind
// ErrorUnimplemented from the corresponding method rather than degrade
// silently.
type Engine interface {
	// Capabilities reports which optional parts of this contract the
	// engine actually implements.
	Capabilities() Capability

	// Write applies places/contents atomically; if txn is non-nil, the
	// write is buffered into txn's write-set instead of applied directly.
	Write(ctx context.Context, txn *Txn, places PlacesArg, contents ContentsArg, opts Options) error

	// Read resolves places, writing lengths and concatenated values into
	// arena. If txn is non-nil, reads are served read-your-writes from
	// txn's write-set before falling back to txn's snapshot.
	Read(ctx context.Context, txn *Txn, places PlacesArg, opts Options, arena *Arena) (ReadResult, error)

	// Scan resolves each (collection, min_key, limit) request into an
	// ascending run of keys, ordered numerically.
	Scan(ctx context.Context, txn *Txn, scans ScansArg, opts Options, arena *Arena) ([]ScanResult, error)

	// Sample returns a non-degenerate, distribution-unspecified set of keys
	// without replacement from the named collection.
	Sample(ctx context.Context, collection CollectionName, limit int, arena *Arena) ([]Key, error)

	// Measure reports size/presence for a batch of keys, O(1) per key
	// where the engine permits.
	Measure(ctx context.Context, txn *Txn, places PlacesArg) ([]MeasureResult, error)

	CollectionOpen(ctx context.Context, name CollectionName) (*Collection, error)
	CollectionDrop(ctx context.Context, name CollectionName) error
	CollectionList(ctx context.Context) ([]CollectionName, error)

	TxnBegin(ctx context.Context, opts Options) (*Txn, error)
	TxnCommit(ctx context.Context, txn *Txn, opts Options) (Sequence, error)
	TxnFree(ctx context.Context, txn *Txn) error

	// Clear wipes one collection (name != "" or the default collection) or
	// every collection when all is true.
	Clear(ctx context.Context, name CollectionName, all bool) error

	Close() error
}
