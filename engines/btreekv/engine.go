// Package btreekv is the embedded ordered engine: a github.com/tidwall/btree
// BTreeG per collection, keyed by numeric Key order. Unlike memkv's xsync
// map, a BTreeG keeps keys sorted, so Scan walks the tree directly instead
// of collecting-then-sorting — the approach sanonone-kektordb's numeric
// metadata index (internal/store/store.go's bTreeIndex, queried with
// Ascend/Descend range walks) uses for its own range queries.
//
// Like memkv, btreekv has no native transaction primitive, so it drives
// snapshot isolation with optimistic concurrency control off
// store.Txn/store.Sequencer.
package btreekv

import (
	"context"
	"fmt"
	"math/rand"
	"sync"

	"github.com/tidwall/btree"

	"github.com/ishkhan42/ustore/store"
)

func init() {
	store.Register(&store.Registration{
		Name:  "btreekv",
		Title: "embedded ordered store",
		Open:  Open,
	})
}

type kvItem struct {
	Key   store.Key
	Value []byte
}

func itemLess(a, b kvItem) bool { return a.Key < b.Key }

type collectionTree struct {
	mu   sync.RWMutex
	tree *btree.BTreeG[kvItem]
}

type engine struct {
	mu   sync.RWMutex
	cols map[store.CollectionName]*collectionTree
	mgr  *store.CollectionManager
	seq  *store.Sequencer
}

// Open constructs a fresh btreekv engine. Like memkv, cfg.Directory is
// unused: this engine keeps no on-disk state.
func Open(cfg store.Config) (store.Engine, error) {
	e := &engine{
		cols: make(map[store.CollectionName]*collectionTree),
		mgr:  store.NewCollectionManager(),
		seq:  store.NewSequencer(),
	}
	e.cols[store.DefaultCollection] = newCollectionTree()
	return e, nil
}

func newCollectionTree() *collectionTree {
	return &collectionTree{tree: btree.NewBTreeG(itemLess)}
}

func (e *engine) Capabilities() store.Capability {
	return store.CapabilityTransactions | store.CapabilityNamedCollections | store.CapabilitySampling
}

func (e *engine) collection(name store.CollectionName) (*collectionTree, error) {
	if err := e.mgr.Require(name); err != nil {
		return nil, err
	}
	e.mu.RLock()
	c, ok := e.cols[name]
	e.mu.RUnlock()
	if !ok {
		return nil, store.Wrap(store.ErrorMissingCollection, nil, fmt.Sprintf("collection %q does not exist", name))
	}
	return c, nil
}

func (e *engine) applyWrites(writes map[store.PlaceKey]store.WriteEntry) error {
	for pk, w := range writes {
		c, err := e.collection(pk.Collection)
		if err != nil {
			return err
		}
		c.mu.Lock()
		if w.Deleted {
			c.tree.Delete(kvItem{Key: pk.Key})
		} else {
			c.tree.Set(kvItem{Key: pk.Key, Value: w.Value})
		}
		c.mu.Unlock()
	}
	return nil
}

func (e *engine) Write(ctx context.Context, txn *store.Txn, places store.PlacesArg, contents store.ContentsArg, opts store.Options) error {
	if err := store.ValidateWrite(places, contents, opts); err != nil {
		return err
	}

	local := txn
	if local == nil {
		local = store.NewTxn(e.seq.ReadSequence(), opts)
	}

	for i := 0; i < places.Count; i++ {
		p := places.At(i)
		if _, err := e.collection(p.Collection); err != nil {
			return err
		}
		pk := store.PlaceKey{Collection: p.Collection, Key: p.Key}
		c := contents.At(i)
		if !c.Present {
			if err := local.BufferWrite(pk, nil, true); err != nil {
				return err
			}
			continue
		}
		value := append([]byte(nil), c.Bytes...)
		if err := local.BufferWrite(pk, value, false); err != nil {
			return err
		}
	}

	if txn != nil {
		return nil
	}

	_, err := e.seq.Commit(local, e.applyWrites)
	return err
}

func (e *engine) lookup(c *collectionTree, key store.Key) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	item, ok := c.tree.Get(kvItem{Key: key})
	if !ok {
		return nil, false
	}
	return item.Value, true
}

func (e *engine) Read(ctx context.Context, txn *store.Txn, places store.PlacesArg, opts store.Options, arena *store.Arena) (store.ReadResult, error) {
	if err := store.ValidateRead(places, opts); err != nil {
		return store.ReadResult{}, err
	}
	arena.Reset(!opts.Has(store.OptionDontDiscardMemory))

	lengths := arena.AllocLengths(places.Count)
	offsets := make([]uint32, places.Count)

	for i := 0; i < places.Count; i++ {
		p := places.At(i)
		pk := store.PlaceKey{Collection: p.Collection, Key: p.Key}

		var value []byte
		var present bool
		if txn != nil {
			if w, ok := txn.LookupWrite(pk); ok {
				if !w.Deleted {
					value, present = w.Value, true
				}
			} else {
				if err := txn.RecordRead(pk); err != nil {
					return store.ReadResult{}, err
				}
				c, err := e.collection(p.Collection)
				if err != nil {
					return store.ReadResult{}, err
				}
				value, present = e.lookup(c, p.Key)
			}
		} else {
			c, err := e.collection(p.Collection)
			if err != nil {
				return store.ReadResult{}, err
			}
			value, present = e.lookup(c, p.Key)
		}

		if !present {
			lengths[i] = store.MissingLength
			continue
		}
		off, err := arena.AppendValue(value)
		if err != nil {
			return store.ReadResult{}, err
		}
		offsets[i] = off
		lengths[i] = uint32(len(value))
	}

	return store.ReadResult{Lengths: lengths, Tape: arena.Tape(), Offsets: offsets}, nil
}

func (e *engine) Scan(ctx context.Context, txn *store.Txn, scans store.ScansArg, opts store.Options, arena *store.Arena) ([]store.ScanResult, error) {
	if err := store.ValidateScan(scans, opts); err != nil {
		return nil, err
	}
	arena.Reset(!opts.Has(store.OptionDontDiscardMemory))

	results := make([]store.ScanResult, scans.Count)
	for i := 0; i < scans.Count; i++ {
		req := scans.At(i)
		c, err := e.collection(req.Collection)
		if err != nil {
			return nil, err
		}

		var keys []store.Key
		c.mu.RLock()
		c.tree.Ascend(kvItem{Key: req.MinKey}, func(item kvItem) bool {
			keys = append(keys, item.Key)
			return true
		})
		c.mu.RUnlock()

		if txn != nil {
			keys = mergeWriteSet(keys, txn, req)
		}

		more := false
		if req.Limit > 0 && len(keys) > req.Limit {
			more = true
			keys = keys[:req.Limit]
		}
		out := arena.AllocKeys(len(keys))
		copy(out, keys)
		results[i] = store.ScanResult{Keys: out, More: more}
	}
	return results, nil
}

// mergeWriteSet folds a transaction's buffered writes into an ascending,
// already-sorted key run, rebuilding and re-sorting it only if a buffered
// write changes the key set (adds a key not in the run, or deletes one
// that is).
func mergeWriteSet(keys []store.Key, txn *store.Txn, req store.ScanRequest) []store.Key {
	seen := make(map[store.Key]bool, len(keys))
	for _, k := range keys {
		seen[k] = true
	}
	dirty := false
	for pk, w := range txn.WriteSet() {
		if pk.Collection != req.Collection || pk.Key < req.MinKey {
			continue
		}
		if w.Deleted {
			if seen[pk.Key] {
				dirty = true
			}
			seen[pk.Key] = false
			continue
		}
		if !seen[pk.Key] {
			dirty = true
		}
		seen[pk.Key] = true
	}
	if !dirty {
		return keys
	}
	out := make([]store.Key, 0, len(seen))
	for k, present := range seen {
		if present {
			out = append(out, k)
		}
	}
	sortKeys(out)
	return out
}

func sortKeys(keys []store.Key) {
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j-1] > keys[j]; j-- {
			keys[j-1], keys[j] = keys[j], keys[j-1]
		}
	}
}

func (e *engine) Sample(ctx context.Context, collection store.CollectionName, limit int, arena *store.Arena) ([]store.Key, error) {
	c, err := e.collection(collection)
	if err != nil {
		return nil, err
	}
	var all []store.Key
	c.mu.RLock()
	c.tree.Scan(func(item kvItem) bool {
		all = append(all, item.Key)
		return true
	})
	c.mu.RUnlock()

	rand.Shuffle(len(all), func(i, j int) { all[i], all[j] = all[j], all[i] })
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	out := arena.AllocKeys(len(all))
	copy(out, all)
	return out, nil
}

func (e *engine) Measure(ctx context.Context, txn *store.Txn, places store.PlacesArg) ([]store.MeasureResult, error) {
	out := make([]store.MeasureResult, places.Count)
	for i := 0; i < places.Count; i++ {
		p := places.At(i)
		c, err := e.collection(p.Collection)
		if err != nil {
			return nil, err
		}
		var value []byte
		var present bool
		if txn != nil {
			if w, ok := txn.LookupWrite(store.PlaceKey{Collection: p.Collection, Key: p.Key}); ok {
				value, present = w.Value, !w.Deleted
			} else {
				value, present = e.lookup(c, p.Key)
			}
		} else {
			value, present = e.lookup(c, p.Key)
		}
		if !present {
			out[i] = store.MeasureResult{Length: store.MissingLength}
			continue
		}
		out[i] = store.MeasureResult{Length: uint32(len(value)), Present: true}
	}
	return out, nil
}

func (e *engine) CollectionOpen(ctx context.Context, name store.CollectionName) (*store.Collection, error) {
	c, err := e.mgr.Open(name)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	if _, ok := e.cols[name]; !ok {
		e.cols[name] = newCollectionTree()
	}
	e.mu.Unlock()
	return c, nil
}

func (e *engine) CollectionDrop(ctx context.Context, name store.CollectionName) error {
	if err := e.mgr.Drop(name); err != nil {
		return err
	}
	e.mu.Lock()
	delete(e.cols, name)
	e.mu.Unlock()
	return nil
}

func (e *engine) CollectionList(ctx context.Context) ([]store.CollectionName, error) {
	return e.mgr.List(), nil
}

func (e *engine) TxnBegin(ctx context.Context, opts store.Options) (*store.Txn, error) {
	if err := store.ValidateTransactionBegin(opts); err != nil {
		return nil, err
	}
	return store.NewTxn(e.seq.ReadSequence(), opts), nil
}

func (e *engine) TxnCommit(ctx context.Context, txn *store.Txn, opts store.Options) (store.Sequence, error) {
	if err := store.ValidateTransactionCommit(txn, opts); err != nil {
		return 0, err
	}
	return e.seq.Commit(txn, e.applyWrites)
}

func (e *engine) TxnFree(ctx context.Context, txn *store.Txn) error { return nil }

func (e *engine) Clear(ctx context.Context, name store.CollectionName, all bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if all {
		for n := range e.cols {
			e.cols[n] = newCollectionTree()
		}
		return nil
	}
	if _, ok := e.cols[name]; !ok {
		return store.Wrap(store.ErrorMissingCollection, nil, fmt.Sprintf("collection %q does not exist", name))
	}
	e.cols[name] = newCollectionTree()
	return nil
}

func (e *engine) Close() error { return nil }
