// Package memkv is the baseline in-memory transactional engine. It has no
// on-disk footprint and no native transaction primitive, so it drives
// snapshot isolation with optimistic concurrency control entirely off
// store.Txn/store.Sequencer.
//
// Storage is a github.com/puzpuzpuz/xsync/v3 MapOf per collection, the same
// lock-free concurrent map mleku-realy uses for its relay connection table:
// the map itself takes no mutex for distinct keys, which matters here
// because Engine handles are shared across threads. Every Write and
// TxnCommit still passes through the Sequencer's single commit lock.
package memkv

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/ishkhan42/ustore/store"
)

func init() {
	store.Register(&store.Registration{
		Name:  "memkv",
		Title: "in-memory transactional store",
		Open:  Open,
	})
}

type engine struct {
	mu   sync.RWMutex
	cols map[store.CollectionName]*xsync.MapOf[store.Key, []byte]
	mgr  *store.CollectionManager
	seq  *store.Sequencer
}

// Open constructs a fresh memkv engine. cfg.Directory is accepted but
// unused: there is nothing to persist to, so this engine offers no
// durability guarantee at all.
func Open(cfg store.Config) (store.Engine, error) {
	e := &engine{
		cols: make(map[store.CollectionName]*xsync.MapOf[store.Key, []byte]),
		mgr:  store.NewCollectionManager(),
		seq:  store.NewSequencer(),
	}
	e.cols[store.DefaultCollection] = xsync.NewMapOf[store.Key, []byte]()
	return e, nil
}

func (e *engine) Capabilities() store.Capability {
	return store.CapabilityTransactions | store.CapabilityNamedCollections | store.CapabilitySampling
}

func (e *engine) collection(name store.CollectionName) (*xsync.MapOf[store.Key, []byte], error) {
	if err := e.mgr.Require(name); err != nil {
		return nil, err
	}
	e.mu.RLock()
	m, ok := e.cols[name]
	e.mu.RUnlock()
	if !ok {
		return nil, store.Wrap(store.ErrorMissingCollection, nil, fmt.Sprintf("collection %q does not exist", name))
	}
	return m, nil
}

func (e *engine) applyWrites(writes map[store.PlaceKey]store.WriteEntry) error {
	for pk, w := range writes {
		m, err := e.collection(pk.Collection)
		if err != nil {
			return err
		}
		if w.Deleted {
			m.Delete(pk.Key)
			continue
		}
		m.Store(pk.Key, w.Value)
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
		return nil // buffered only; applied at TxnCommit
	}

	_, err := e.seq.Commit(local, e.applyWrites)
	return err
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
				m, err := e.collection(p.Collection)
				if err != nil {
					return store.ReadResult{}, err
				}
				value, present = m.Load(p.Key)
			}
		} else {
			m, err := e.collection(p.Collection)
			if err != nil {
				return store.ReadResult{}, err
			}
			value, present = m.Load(p.Key)
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
		m, err := e.collection(req.Collection)
		if err != nil {
			return nil, err
		}

		var keys []store.Key
		m.Range(func(k store.Key, _ []byte) bool {
			if k >= req.MinKey {
				keys = append(keys, k)
			}
			return true
		})
		if txn != nil {
			keys = mergeWriteSet(keys, txn, req)
		}
		sort.Slice(keys, func(a, b int) bool { return keys[a] < keys[b] })

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

// mergeWriteSet folds a transaction's buffered writes for this collection
// into the snapshot's key list, so a scan inside a transaction sees its own
// prior writes (read-your-writes) without re-touching storage.
func mergeWriteSet(keys []store.Key, txn *store.Txn, req store.ScanRequest) []store.Key {
	seen := make(map[store.Key]bool, len(keys))
	for _, k := range keys {
		seen[k] = true
	}
	for pk, w := range txn.WriteSet() {
		if pk.Collection != req.Collection || pk.Key < req.MinKey {
			continue
		}
		if w.Deleted {
			seen[pk.Key] = false
			continue
		}
		seen[pk.Key] = true
	}
	out := keys[:0:0]
	for k, present := range seen {
		if present {
			out = append(out, k)
		}
	}
	return out
}

func (e *engine) Sample(ctx context.Context, collection store.CollectionName, limit int, arena *store.Arena) ([]store.Key, error) {
	m, err := e.collection(collection)
	if err != nil {
		return nil, err
	}
	var all []store.Key
	m.Range(func(k store.Key, _ []byte) bool {
		all = append(all, k)
		return true
	})
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
		m, err := e.collection(p.Collection)
		if err != nil {
			return nil, err
		}
		var value []byte
		var present bool
		if txn != nil {
			if w, ok := txn.LookupWrite(store.PlaceKey{Collection: p.Collection, Key: p.Key}); ok {
				value, present = w.Value, !w.Deleted
			} else {
				value, present = m.Load(p.Key)
			}
		} else {
			value, present = m.Load(p.Key)
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
		e.cols[name] = xsync.NewMapOf[store.Key, []byte]()
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

func (e *engine) TxnFree(ctx context.Context, txn *store.Txn) error {
	return nil // memkv holds no engine-side resources per transaction
}

func (e *engine) Clear(ctx context.Context, name store.CollectionName, all bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if all {
		for n := range e.cols {
			e.cols[n] = xsync.NewMapOf[store.Key, []byte]()
		}
		return nil
	}
	if _, ok := e.cols[name]; !ok {
		return store.Wrap(store.ErrorMissingCollection, nil, fmt.Sprintf("collection %q does not exist", name))
	}
	e.cols[name] = xsync.NewMapOf[store.Key, []byte]()
	return nil
}

func (e *engine) Close() error { return nil }
