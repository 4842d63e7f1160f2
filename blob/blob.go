// Package blob is the BLOB modality: transparent passthrough over a
// store.Engine, plus the one optional knob the core key-value layer itself
// doesn't offer — per-collection compression, transparent to callers on
// both write and read.
//
// The teacher's store/badger/badger.go bakes zstd/snappy compression into
// one specific engine's Put/Get; here compression is lifted out to this
// modality layer so it applies uniformly no matter which store.Engine is
// behind it (lsmkv already compresses internally via badger's own Snappy
// option, so a blob.Store wrapping lsmkv with NoOpCompressor avoids
// compressing twice).
package blob

import (
	"context"

	"github.com/ishkhan42/ustore/store"
)

// Store layers transparent byte-string storage over an Engine. Every value
// passed to Write and returned from Read is the caller's raw payload;
// Store never interprets it.
type Store struct {
	engine     store.Engine
	compressor store.Compressor
}

// NewStore wraps engine with compressor, which may be
// store.NewNoOpCompressor() to disable compression at this layer.
func NewStore(engine store.Engine, compressor store.Compressor) *Store {
	if compressor == nil {
		compressor = store.NewNoOpCompressor()
	}
	return &Store{engine: engine, compressor: compressor}
}

// Write stores value at (collection, key), replacing any length/offset
// encoding concerns — spec's note that the arena may "pack length
// immediately before value to eliminate offset arithmetic" is an engine
// output-layout detail already handled by Arena/ReadResult; this layer only
// adds compression in front of it.
func (s *Store) Write(ctx context.Context, txn *store.Txn, collection store.CollectionName, key store.Key, value []byte, opts store.Options) error {
	places := store.PlacesArg{
		Collections: store.SingleView(collection, 1),
		Keys:        store.SingleView(key, 1),
		Count:       1,
	}
	payload := s.compressor.Compress(value)
	contents := store.ContentsArg{
		Payloads: store.SingleView(payload, 1),
		Lengths:  store.SingleView(uint32(len(payload)), 1),
		Count:    1,
	}
	return s.engine.Write(ctx, txn, places, contents, opts)
}

// Delete removes (collection, key), equivalent to Write with an absent
// payload.
func (s *Store) Delete(ctx context.Context, txn *store.Txn, collection store.CollectionName, key store.Key, opts store.Options) error {
	places := store.PlacesArg{
		Collections: store.SingleView(collection, 1),
		Keys:        store.SingleView(key, 1),
		Count:       1,
	}
	return s.engine.Write(ctx, txn, places, store.ContentsArg{Count: 1}, opts)
}

// Read resolves one value, decompressing it if it was stored compressed.
// A missing key reports present == false with a nil value.
func (s *Store) Read(ctx context.Context, txn *store.Txn, collection store.CollectionName, key store.Key, opts store.Options) ([]byte, bool, error) {
	places := store.PlacesArg{
		Collections: store.SingleView(collection, 1),
		Keys:        store.SingleView(key, 1),
		Count:       1,
	}
	res, err := s.engine.Read(ctx, txn, places, opts, store.NewArena(0))
	if err != nil {
		return nil, false, err
	}
	raw, present := res.Value(0)
	if !present {
		return nil, false, nil
	}
	value, err := s.compressor.Decompress(raw)
	if err != nil {
		return nil, false, store.Wrap(store.ErrorCorruption, err, "decompressing blob value")
	}
	return value, true, nil
}

// WriteBatch is the batched form of Write: places and contents are resolved
// index-for-index, each payload compressed independently before being
// handed to the engine.
func (s *Store) WriteBatch(ctx context.Context, txn *store.Txn, places store.PlacesArg, contents store.ContentsArg, opts store.Options) error {
	if _, ok := s.compressor.(*store.NoOpCompressor); ok {
		return s.engine.Write(ctx, txn, places, contents, opts)
	}

	payloads := make([][]byte, places.Count)
	lengths := make([]uint32, places.Count)
	presences := make([]bool, places.Count)
	for i := 0; i < places.Count; i++ {
		c := contents.At(i)
		presences[i] = c.Present
		if c.Present {
			payloads[i] = s.compressor.Compress(c.Bytes)
			lengths[i] = uint32(len(payloads[i]))
		}
	}
	compressed := store.ContentsArg{
		Presences: store.SliceView(presences),
		Payloads:  store.SliceView(payloads),
		Lengths:   store.SliceView(lengths),
		Count:     places.Count,
	}
	return s.engine.Write(ctx, txn, places, compressed, opts)
}

// ReadBatch is the batched form of Read, decompressing every resolved
// value before returning.
func (s *Store) ReadBatch(ctx context.Context, txn *store.Txn, places store.PlacesArg, opts store.Options, arena *store.Arena) ([][]byte, []bool, error) {
	res, err := s.engine.Read(ctx, txn, places, opts, arena)
	if err != nil {
		return nil, nil, err
	}
	values := make([][]byte, places.Count)
	present := make([]bool, places.Count)
	for i := 0; i < places.Count; i++ {
		raw, ok := res.Value(i)
		if !ok {
			continue
		}
		value, err := s.compressor.Decompress(raw)
		if err != nil {
			return nil, nil, store.Wrap(store.ErrorCorruption, err, "decompressing blob value")
		}
		values[i] = value
		present[i] = true
	}
	return values, present, nil
}
