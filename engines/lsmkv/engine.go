// Package lsmkv is the embedded LSM engine, backed by
// github.com/dgraph-io/badger/v2 with WithCompression(options.Snappy) set
// at the database level, plus its own store.Compressor pass (zstd unless
// cfg.Raw["compression"] selects "none") applied to every value this
// engine writes. lsmkv delegates snapshot isolation with optimistic
// concurrency control straight to badger's own *badger.Txn, stashed in
// store.Txn.Native, instead of driving it off store.Sequencer the way
// memkv and btreekv do.
//
// All collections live in one badger.DB, distinguished by a length-prefixed
// name embedded in every key, followed by the key encoded so that
// lexicographic byte order matches numeric int64 order (sign bit flipped,
// big-endian magnitude) — this is how Scan gets a numerically ordered walk
// without a custom badger comparator.
package lsmkv

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/dgraph-io/badger/v2"
	"github.com/dgraph-io/badger/v2/options"
	"github.com/streamingfast/logging"
	"go.uber.org/zap"

	"github.com/ishkhan42/ustore/store"
)

var zlog, _ = logging.PackageLogger("lsmkv", "github.com/ishkhan42/ustore/engines/lsmkv")

func init() {
	store.Register(&store.Registration{
		Name:  "lsmkv",
		Title: "embedded LSM store",
		Open:  Open,
	})
}

type engine struct {
	dir        string
	db         *badger.DB
	compressor store.Compressor
	mgr        *store.CollectionManager
	seq        uint64
}

// Open constructs an engine backed by a badger database rooted at
// cfg.Directory.
func Open(cfg store.Config) (store.Engine, error) {
	dir := cfg.Directory
	if dir == "" {
		return nil, store.NewError(store.ErrorArgsWrong, "lsmkv requires a non-empty directory")
	}
	if err := os.MkdirAll(filepath.Dir(dir), 0755); err != nil {
		return nil, store.Wrap(store.ErrorIO, err, fmt.Sprintf("creating path %q", dir))
	}

	db, err := badger.Open(badger.DefaultOptions(dir).WithLogger(nil).WithCompression(options.Snappy))
	if err != nil {
		return nil, store.Wrap(store.ErrorIO, err, "opening badger db")
	}

	mode := ""
	if cfg.Raw != nil {
		if v, ok := cfg.Raw["compression"].(string); ok {
			mode = v
		}
	}
	compressor, err := store.NewCompressor(mode)
	if err != nil {
		return nil, store.Wrap(store.ErrorArgsWrong, err, "parsing compression mode")
	}

	return &engine{dir: dir, db: db, compressor: compressor, mgr: store.NewCollectionManager()}, nil
}

func (e *engine) Capabilities() store.Capability {
	return store.CapabilityTransactions | store.CapabilityNamedCollections | store.CapabilitySampling
}

func wrapBadgerErr(err error) error {
	switch err {
	case nil:
		return nil
	case badger.ErrKeyNotFound:
		return nil // caller checks presence separately
	case badger.ErrConflict, badger.ErrTxnTooBig:
		return store.Wrap(store.ErrorConflict, err, "transaction conflict")
	default:
		return store.Wrap(store.ErrorIO, err, "badger operation failed")
	}
}

func (e *engine) nativeTxn(txn *store.Txn) *badger.Txn {
	if txn == nil {
		return nil
	}
	bt, _ := txn.Native.(*badger.Txn)
	return bt
}

func (e *engine) get(bt *badger.Txn, collection store.CollectionName, key store.Key) ([]byte, bool, error) {
	item, err := bt.Get(store.EncodeKey(collection, key))
	if err == badger.ErrKeyNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, wrapBadgerErr(err)
	}
	raw, err := item.ValueCopy(nil)
	if err != nil {
		return nil, false, wrapBadgerErr(err)
	}
	value, err := e.compressor.Decompress(raw)
	if err != nil {
		return nil, false, store.Wrap(store.ErrorCorruption, err, "decompressing value")
	}
	return value, true, nil
}

func (e *engine) Write(ctx context.Context, txn *store.Txn, places store.PlacesArg, contents store.ContentsArg, opts store.Options) error {
	if err := store.ValidateWrite(places, contents, opts); err != nil {
		return err
	}
	logging.Logger(ctx, zlog).Debug("writing", zap.Int("place_count", places.Count))

	apply := func(bt *badger.Txn) error {
		for i := 0; i < places.Count; i++ {
			p := places.At(i)
			if err := e.mgr.Require(p.Collection); err != nil {
				return err
			}
			k := store.EncodeKey(p.Collection, p.Key)
			c := contents.At(i)
			if !c.Present {
				if err := bt.Delete(k); err != nil {
					return wrapBadgerErr(err)
				}
				continue
			}
			value := e.compressor.Compress(c.Bytes)
			if err := bt.SetEntry(badger.NewEntry(k, value)); err != nil {
				return wrapBadgerErr(err)
			}
		}
		return nil
	}

	if bt := e.nativeTxn(txn); bt != nil {
		return apply(bt)
	}

	err := e.db.Update(apply)
	if err != nil {
		if se, ok := err.(*store.Error); ok {
			return se
		}
		return wrapBadgerErr(err)
	}
	return nil
}

func (e *engine) Read(ctx context.Context, txn *store.Txn, places store.PlacesArg, opts store.Options, arena *store.Arena) (store.ReadResult, error) {
	if err := store.ValidateRead(places, opts); err != nil {
		return store.ReadResult{}, err
	}
	logging.Logger(ctx, zlog).Debug("reading", zap.Int("place_count", places.Count))
	arena.Reset(!opts.Has(store.OptionDontDiscardMemory))

	lengths := arena.AllocLengths(places.Count)
	offsets := make([]uint32, places.Count)

	read := func(bt *badger.Txn) error {
		for i := 0; i < places.Count; i++ {
			p := places.At(i)
			if err := e.mgr.Require(p.Collection); err != nil {
				return err
			}
			value, present, err := e.get(bt, p.Collection, p.Key)
			if err != nil {
				return err
			}
			if !present {
				lengths[i] = store.MissingLength
				continue
			}
			off, err := arena.AppendValue(value)
			if err != nil {
				return err
			}
			offsets[i] = off
			lengths[i] = uint32(len(value))
		}
		return nil
	}

	var err error
	if bt := e.nativeTxn(txn); bt != nil {
		err = read(bt)
	} else {
		err = e.db.View(read)
	}
	if err != nil {
		if se, ok := err.(*store.Error); ok {
			return store.ReadResult{}, se
		}
		return store.ReadResult{}, wrapBadgerErr(err)
	}
	return store.ReadResult{Lengths: lengths, Tape: arena.Tape(), Offsets: offsets}, nil
}

func (e *engine) Scan(ctx context.Context, txn *store.Txn, scans store.ScansArg, opts store.Options, arena *store.Arena) ([]store.ScanResult, error) {
	if err := store.ValidateScan(scans, opts); err != nil {
		return nil, err
	}
	logging.Logger(ctx, zlog).Debug("scanning", zap.Int("scan_count", scans.Count))
	arena.Reset(!opts.Has(store.OptionDontDiscardMemory))

	results := make([]store.ScanResult, scans.Count)

	run := func(bt *badger.Txn) error {
		for i := 0; i < scans.Count; i++ {
			req := scans.At(i)
			if err := e.mgr.Require(req.Collection); err != nil {
				return err
			}
			prefix := store.CollectionPrefix(req.Collection)
			start := store.EncodeKey(req.Collection, req.MinKey)

			it := bt.NewIterator(badger.DefaultIteratorOptions)
			var keys []store.Key
			more := false
			count := 0
			for it.Seek(start); it.ValidForPrefix(prefix); it.Next() {
				if req.Limit > 0 && count >= req.Limit {
					more = true
					break
				}
				raw := it.Item().KeyCopy(nil)
				keys = append(keys, store.DecodeKey(raw))
				count++
			}
			it.Close()

			out := arena.AllocKeys(len(keys))
			copy(out, keys)
			results[i] = store.ScanResult{Keys: out, More: more}
		}
		return nil
	}

	var err error
	if bt := e.nativeTxn(txn); bt != nil {
		err = run(bt)
	} else {
		err = e.db.View(run)
	}
	if err != nil {
		if se, ok := err.(*store.Error); ok {
			return nil, se
		}
		return nil, wrapBadgerErr(err)
	}
	return results, nil
}

func (e *engine) Sample(ctx context.Context, collection store.CollectionName, limit int, arena *store.Arena) ([]store.Key, error) {
	if err := e.mgr.Require(collection); err != nil {
		return nil, err
	}
	var all []store.Key
	err := e.db.View(func(bt *badger.Txn) error {
		prefix := store.CollectionPrefix(collection)
		it := bt.NewIterator(badger.IteratorOptions{Prefix: prefix, PrefetchValues: false})
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			all = append(all, store.DecodeKey(it.Item().KeyCopy(nil)))
		}
		return nil
	})
	if err != nil {
		return nil, wrapBadgerErr(err)
	}

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

	measure := func(bt *badger.Txn) error {
		for i := 0; i < places.Count; i++ {
			p := places.At(i)
			if err := e.mgr.Require(p.Collection); err != nil {
				return err
			}
			value, present, err := e.get(bt, p.Collection, p.Key)
			if err != nil {
				return err
			}
			if !present {
				out[i] = store.MeasureResult{Length: store.MissingLength}
				continue
			}
			out[i] = store.MeasureResult{Length: uint32(len(value)), Present: true}
		}
		return nil
	}

	var err error
	if bt := e.nativeTxn(txn); bt != nil {
		err = measure(bt)
	} else {
		err = e.db.View(measure)
	}
	if err != nil {
		if se, ok := err.(*store.Error); ok {
			return nil, se
		}
		return nil, wrapBadgerErr(err)
	}
	return out, nil
}

func (e *engine) CollectionOpen(ctx context.Context, name store.CollectionName) (*store.Collection, error) {
	return e.mgr.Open(name)
}

func (e *engine) deleteByPrefix(name store.CollectionName) error {
	prefix := store.CollectionPrefix(name)
	return e.db.Update(func(bt *badger.Txn) error {
		it := bt.NewIterator(badger.IteratorOptions{Prefix: prefix, PrefetchValues: false})
		var keys [][]byte
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		it.Close()
		for _, k := range keys {
			if err := bt.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

// CollectionDrop deletes every key under name's prefix before invalidating
// the bookkeeping handle, since badger has no native namespace to drop.
func (e *engine) CollectionDrop(ctx context.Context, name store.CollectionName) error {
	if err := e.mgr.Drop(name); err != nil {
		return err
	}
	return e.deleteByPrefix(name)
}

func (e *engine) CollectionList(ctx context.Context) ([]store.CollectionName, error) {
	return e.mgr.List(), nil
}

func (e *engine) TxnBegin(ctx context.Context, opts store.Options) (*store.Txn, error) {
	if err := store.ValidateTransactionBegin(opts); err != nil {
		return nil, err
	}
	txn := store.NewTxn(0, opts)
	txn.Native = e.db.NewTransaction(true)
	return txn, nil
}

func (e *engine) TxnCommit(ctx context.Context, txn *store.Txn, opts store.Options) (store.Sequence, error) {
	if err := store.ValidateTransactionCommit(txn, opts); err != nil {
		return 0, err
	}
	bt := e.nativeTxn(txn)
	if bt == nil {
		return 0, store.NewError(store.ErrorArgsWrong, "transaction has no native badger handle")
	}
	if err := bt.Commit(); err != nil {
		return 0, wrapBadgerErr(err)
	}
	return store.Sequence(atomic.AddUint64(&e.seq, 1)), nil
}

func (e *engine) TxnFree(ctx context.Context, txn *store.Txn) error {
	if bt := e.nativeTxn(txn); bt != nil {
		bt.Discard()
	}
	return nil
}

func (e *engine) Clear(ctx context.Context, name store.CollectionName, all bool) error {
	if all {
		return e.db.DropAll()
	}
	if err := e.mgr.Require(name); err != nil {
		return err
	}
	return e.deleteByPrefix(name)
}

func (e *engine) Close() error {
	return e.db.Close()
}
