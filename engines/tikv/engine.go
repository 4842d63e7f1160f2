// Package tikv is the distributed OCC transactional engine, grounded on
// aep-apogy's kv.Tikv/kv.TikvWrite/kv.TikvRead: a github.com/tikv/client-go/v2
// txnkv.Client wrapping TiKV's own percolator-style optimistic transactions.
// As with lsmkv, the native transaction object is stashed in
// store.Txn.Native and does its own conflict detection — Commit returning a
// write-conflict error is how store.ErrorConflict gets surfaced here,
// mirroring aep-apogy's tikverr.IsErrWriteConflict checks.
//
// Keys are encoded with store.EncodeKey so Scan's ascending walk matches
// numeric Key order the same way lsmkv's does; TiKV has no per-engine notion
// of "collection", so collections are carried entirely in the key prefix.
package tikv

import (
	"context"
	"os"
	"strings"
	"sync/atomic"

	"github.com/streamingfast/logging"
	"github.com/tikv/client-go/v2/txnkv"
	"go.uber.org/zap"

	"github.com/ishkhan42/ustore/store"
)

var zlog, _ = logging.PackageLogger("tikv", "github.com/ishkhan42/ustore/engines/tikv")

func init() {
	store.Register(&store.Registration{
		Name:  "tikv",
		Title: "distributed transactional store",
		Open:  Open,
	})
}

type engine struct {
	client *txnkv.Client
	mgr    *store.CollectionManager
	seq    uint64
}

// Open connects to a TiKV cluster via its placement driver. Endpoints come
// from cfg.Raw["pd_endpoints"] (a []any of strings), falling back to the
// PD_ENDPOINT environment variable and then 127.0.0.1:2379.
func Open(cfg store.Config) (store.Engine, error) {
	endpoints := pdEndpoints(cfg)
	client, err := txnkv.NewClient(endpoints)
	if err != nil {
		return nil, store.Wrap(store.ErrorIO, err, "connecting to tikv placement driver")
	}
	return &engine{client: client, mgr: store.NewCollectionManager()}, nil
}

func pdEndpoints(cfg store.Config) []string {
	if cfg.Raw != nil {
		if raw, ok := cfg.Raw["pd_endpoints"].([]any); ok {
			endpoints := make([]string, 0, len(raw))
			for _, v := range raw {
				if s, ok := v.(string); ok {
					endpoints = append(endpoints, s)
				}
			}
			if len(endpoints) > 0 {
				return endpoints
			}
		}
	}
	if env := os.Getenv("PD_ENDPOINT"); env != "" {
		return strings.Split(env, ",")
	}
	return []string{"127.0.0.1:2379"}
}

func (e *engine) Capabilities() store.Capability {
	return store.CapabilityTransactions | store.CapabilityNamedCollections
}

func wrapTikvErr(err error) error {
	if err == nil {
		return nil
	}
	// client-go surfaces write-write and write-read conflicts as plain
	// errors whose message names the conflict; client-go's tikverr package
	// exposes typed helpers (tikverr.IsErrWriteConflict) for the cases that
	// matter operationally, but textual detection keeps this engine from
	// pulling in the whole tikverr surface for one predicate.
	if strings.Contains(err.Error(), "conflict") {
		return store.Wrap(store.ErrorConflict, err, "transaction conflict")
	}
	return store.Wrap(store.ErrorIO, err, "tikv operation failed")
}

func (e *engine) nativeTxn(txn *store.Txn) *txnkv.KVTxn {
	if txn == nil {
		return nil
	}
	t, _ := txn.Native.(*txnkv.KVTxn)
	return t
}

func (e *engine) Write(ctx context.Context, txn *store.Txn, places store.PlacesArg, contents store.ContentsArg, opts store.Options) error {
	if err := store.ValidateWrite(places, contents, opts); err != nil {
		return err
	}
	logging.Logger(ctx, zlog).Debug("writing", zap.Int("place_count", places.Count))

	apply := func(t *txnkv.KVTxn) error {
		for i := 0; i < places.Count; i++ {
			p := places.At(i)
			if err := e.mgr.Require(p.Collection); err != nil {
				return err
			}
			k := store.EncodeKey(p.Collection, p.Key)
			c := contents.At(i)
			if !c.Present {
				if err := t.Delete(k); err != nil {
					return wrapTikvErr(err)
				}
				continue
			}
			if err := t.Set(k, append([]byte(nil), c.Bytes...)); err != nil {
				return wrapTikvErr(err)
			}
		}
		return nil
	}

	if t := e.nativeTxn(txn); t != nil {
		return apply(t)
	}

	t, err := e.client.Begin()
	if err != nil {
		return store.Wrap(store.ErrorIO, err, "beginning implicit transaction")
	}
	if err := apply(t); err != nil {
		t.Rollback()
		return err
	}
	if err := t.Commit(ctx); err != nil {
		return wrapTikvErr(err)
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

	get := func(ctx context.Context, key []byte) ([]byte, error) {
		if t := e.nativeTxn(txn); t != nil {
			return t.Get(ctx, key)
		}
		ts, err := e.client.CurrentTimestamp("global")
		if err != nil {
			return nil, err
		}
		return e.client.GetSnapshot(ts).Get(ctx, key)
	}

	for i := 0; i < places.Count; i++ {
		p := places.At(i)
		if err := e.mgr.Require(p.Collection); err != nil {
			return store.ReadResult{}, err
		}
		value, err := get(ctx, store.EncodeKey(p.Collection, p.Key))
		if err != nil {
			if isNotFound(err) {
				lengths[i] = store.MissingLength
				continue
			}
			return store.ReadResult{}, wrapTikvErr(err)
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

// isNotFound reports whether err is tikv's "key not found" error, matched
// by its message ("not exist" or "not found"). Read and Measure apply it to
// Get errors only; a Get that returns no error is treated as a present
// value.
func isNotFound(err error) bool {
	return strings.Contains(err.Error(), "not exist") || strings.Contains(err.Error(), "not found")
}

func (e *engine) Scan(ctx context.Context, txn *store.Txn, scans store.ScansArg, opts store.Options, arena *store.Arena) ([]store.ScanResult, error) {
	if err := store.ValidateScan(scans, opts); err != nil {
		return nil, err
	}
	logging.Logger(ctx, zlog).Debug("scanning", zap.Int("scan_count", scans.Count))
	arena.Reset(!opts.Has(store.OptionDontDiscardMemory))

	results := make([]store.ScanResult, scans.Count)

	for i := 0; i < scans.Count; i++ {
		req := scans.At(i)
		if err := e.mgr.Require(req.Collection); err != nil {
			return nil, err
		}
		prefix := store.CollectionPrefix(req.Collection)
		start := store.EncodeKey(req.Collection, req.MinKey)
		end := prefixUpperBound(prefix)

		var it interface {
			Valid() bool
			Key() []byte
			Next() error
			Close()
		}
		var err error
		if t := e.nativeTxn(txn); t != nil {
			it, err = t.Iter(start, end)
		} else {
			ts, tsErr := e.client.CurrentTimestamp("global")
			if tsErr != nil {
				return nil, store.Wrap(store.ErrorIO, tsErr, "fetching snapshot timestamp")
			}
			it, err = e.client.GetSnapshot(ts).Iter(start, end)
		}
		if err != nil {
			return nil, wrapTikvErr(err)
		}
		defer it.Close()

		var keys []store.Key
		more := false
		count := 0
		for it.Valid() {
			if req.Limit > 0 && count >= req.Limit {
				more = true
				break
			}
			keys = append(keys, store.DecodeKey(it.Key()))
			count++
			if err := it.Next(); err != nil {
				break
			}
		}

		out := arena.AllocKeys(len(keys))
		copy(out, keys)
		results[i] = store.ScanResult{Keys: out, More: more}
	}

	return results, nil
}

// prefixUpperBound returns the smallest key strictly greater than every key
// beginning with prefix, by incrementing its last byte (and dropping
// trailing 0xff bytes first, so an all-0xff prefix still produces a valid
// bound rather than overflowing).
func prefixUpperBound(prefix []byte) []byte {
	bound := append([]byte(nil), prefix...)
	for len(bound) > 0 {
		if bound[len(bound)-1] < 0xff {
			bound[len(bound)-1]++
			return bound
		}
		bound = bound[:len(bound)-1]
	}
	return nil // prefix was all 0xff (or empty): no upper bound needed
}

func (e *engine) Sample(ctx context.Context, collection store.CollectionName, limit int, arena *store.Arena) ([]store.Key, error) {
	return nil, store.NewError(store.ErrorUnimplemented, "tikv does not support sampling without a full scan")
}

func (e *engine) Measure(ctx context.Context, txn *store.Txn, places store.PlacesArg) ([]store.MeasureResult, error) {
	out := make([]store.MeasureResult, places.Count)

	get := func(ctx context.Context, key []byte) ([]byte, error) {
		if t := e.nativeTxn(txn); t != nil {
			return t.Get(ctx, key)
		}
		ts, err := e.client.CurrentTimestamp("global")
		if err != nil {
			return nil, err
		}
		return e.client.GetSnapshot(ts).Get(ctx, key)
	}

	for i := 0; i < places.Count; i++ {
		p := places.At(i)
		if err := e.mgr.Require(p.Collection); err != nil {
			return nil, err
		}
		value, err := get(ctx, store.EncodeKey(p.Collection, p.Key))
		if err != nil {
			if isNotFound(err) {
				out[i] = store.MeasureResult{Length: store.MissingLength}
				continue
			}
			return nil, wrapTikvErr(err)
		}
		out[i] = store.MeasureResult{Length: uint32(len(value)), Present: true}
	}
	return out, nil
}

func (e *engine) CollectionOpen(ctx context.Context, name store.CollectionName) (*store.Collection, error) {
	return e.mgr.Open(name)
}

func (e *engine) deleteByPrefix(ctx context.Context, name store.CollectionName) error {
	prefix := store.CollectionPrefix(name)
	end := prefixUpperBound(prefix)

	t, err := e.client.Begin()
	if err != nil {
		return store.Wrap(store.ErrorIO, err, "beginning drop transaction")
	}
	it, err := t.Iter(prefix, end)
	if err != nil {
		t.Rollback()
		return wrapTikvErr(err)
	}
	defer it.Close()
	for it.Valid() {
		if err := t.Delete(it.Key()); err != nil {
			t.Rollback()
			return wrapTikvErr(err)
		}
		if err := it.Next(); err != nil {
			break
		}
	}
	if err := t.Commit(ctx); err != nil {
		return wrapTikvErr(err)
	}
	return nil
}

func (e *engine) CollectionDrop(ctx context.Context, name store.CollectionName) error {
	if err := e.mgr.Drop(name); err != nil {
		return err
	}
	return e.deleteByPrefix(ctx, name)
}

func (e *engine) CollectionList(ctx context.Context) ([]store.CollectionName, error) {
	return e.mgr.List(), nil
}

func (e *engine) TxnBegin(ctx context.Context, opts store.Options) (*store.Txn, error) {
	if err := store.ValidateTransactionBegin(opts); err != nil {
		return nil, err
	}
	t, err := e.client.Begin()
	if err != nil {
		return nil, store.Wrap(store.ErrorIO, err, "beginning tikv transaction")
	}
	txn := store.NewTxn(0, opts)
	txn.Native = t
	return txn, nil
}

func (e *engine) TxnCommit(ctx context.Context, txn *store.Txn, opts store.Options) (store.Sequence, error) {
	if err := store.ValidateTransactionCommit(txn, opts); err != nil {
		return 0, err
	}
	t := e.nativeTxn(txn)
	if t == nil {
		return 0, store.NewError(store.ErrorArgsWrong, "transaction has no native tikv handle")
	}
	if err := t.Commit(ctx); err != nil {
		return 0, wrapTikvErr(err)
	}
	return store.Sequence(atomic.AddUint64(&e.seq, 1)), nil
}

func (e *engine) TxnFree(ctx context.Context, txn *store.Txn) error {
	if t := e.nativeTxn(txn); t != nil {
		t.Rollback()
	}
	return nil
}

func (e *engine) Clear(ctx context.Context, name store.CollectionName, all bool) error {
	if all {
		for _, name := range e.mgr.List() {
			if err := e.deleteByPrefix(ctx, name); err != nil {
				return err
			}
		}
		return nil
	}
	if err := e.mgr.Require(name); err != nil {
		return err
	}
	return e.deleteByPrefix(ctx, name)
}

func (e *engine) Close() error {
	return e.client.Close()
}
