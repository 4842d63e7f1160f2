package lsmkv

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ishkhan42/ustore/enginetest"
	"github.com/ishkhan42/ustore/store"
)

func TestContractSuite(t *testing.T) {
	enginetest.Run(t, func(t *testing.T) store.Engine { return open(t) })
}

func open(t *testing.T) store.Engine {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "db")
	require.NoError(t, os.MkdirAll(dir, 0755))
	e, err := Open(store.Config{Directory: dir})
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func writeOne(t *testing.T, e store.Engine, txn *store.Txn, key store.Key, value []byte) {
	t.Helper()
	places := store.PlacesArg{Keys: store.SingleView(key, 1), Count: 1}
	contents := store.ContentsArg{
		Payloads: store.SingleView(value, 1),
		Lengths:  store.SingleView(uint32(len(value)), 1),
		Count:    1,
	}
	require.NoError(t, e.Write(context.Background(), txn, places, contents, 0))
}

func readOne(t *testing.T, e store.Engine, txn *store.Txn, key store.Key) ([]byte, bool) {
	t.Helper()
	places := store.PlacesArg{Keys: store.SingleView(key, 1), Count: 1}
	arena := store.NewArena(0)
	res, err := e.Read(context.Background(), txn, places, 0, arena)
	require.NoError(t, err)
	return res.Value(0)
}

func TestWriteThenRead(t *testing.T) {
	e := open(t)
	writeOne(t, e, nil, 10, []byte("hello world, this value is long enough to exercise zstd's compression threshold in the compressor wrapper"+strings.Repeat(" padding", 40)))

	value, present := readOne(t, e, nil, 10)
	require.True(t, present)
	require.Contains(t, string(value), "hello world")
}

func TestScanOrdersNegativeAndPositiveKeys(t *testing.T) {
	e := open(t)
	for _, k := range []store.Key{100, -5, 42, 7, 0} {
		writeOne(t, e, nil, k, []byte("v"))
	}
	scans := store.ScansArg{
		MinKeys: store.SingleView[store.Key](-100, 1),
		Limits:  store.SingleView(10, 1),
		Count:   1,
	}
	results, err := e.Scan(context.Background(), nil, scans, 0, store.NewArena(0))
	require.NoError(t, err)
	require.Equal(t, []store.Key{-5, 0, 7, 42, 100}, results[0].Keys)
}

func TestTransactionIsolationAndCommit(t *testing.T) {
	e := open(t)
	ctx := context.Background()

	txn, err := e.TxnBegin(ctx, 0)
	require.NoError(t, err)

	writeOne(t, e, txn, 1, []byte("staged"))
	value, present := readOne(t, e, txn, 1)
	require.True(t, present)
	require.Equal(t, []byte("staged"), value)

	_, present = readOne(t, e, nil, 1)
	require.False(t, present)

	_, err = e.TxnCommit(ctx, txn, 0)
	require.NoError(t, err)

	value, present = readOne(t, e, nil, 1)
	require.True(t, present)
	require.Equal(t, []byte("staged"), value)
}

func TestDeleteRemovesValue(t *testing.T) {
	e := open(t)
	writeOne(t, e, nil, 1, []byte("hello"))

	places := store.PlacesArg{Keys: store.SingleView[store.Key](1, 1), Count: 1}
	contents := store.ContentsArg{Count: 1}
	require.NoError(t, e.Write(context.Background(), nil, places, contents, 0))

	_, present := readOne(t, e, nil, 1)
	require.False(t, present)
}

func TestCollectionDropRemovesKeys(t *testing.T) {
	e := open(t)
	ctx := context.Background()

	_, err := e.CollectionOpen(ctx, "users")
	require.NoError(t, err)

	places := store.PlacesArg{
		Collections: store.SingleView[store.CollectionName]("users", 1),
		Keys:        store.SingleView[store.Key](1, 1),
		Count:       1,
	}
	contents := store.ContentsArg{
		Payloads: store.SingleView([]byte("v"), 1),
		Lengths:  store.SingleView(uint32(1), 1),
		Count:    1,
	}
	require.NoError(t, e.Write(ctx, nil, places, contents, 0))

	require.NoError(t, e.CollectionDrop(ctx, "users"))

	_, err = e.Read(ctx, nil, places, 0, store.NewArena(0))
	require.Error(t, err)
	require.Equal(t, store.ErrorMissingCollection, store.KindOf(err))
}
