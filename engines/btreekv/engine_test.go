package btreekv

import (
	"context"
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
	e, err := Open(store.Config{})
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
	writeOne(t, e, nil, 10, []byte("hello"))

	value, present := readOne(t, e, nil, 10)
	require.True(t, present)
	require.Equal(t, []byte("hello"), value)
}

func TestScanIsNumericallyOrdered(t *testing.T) {
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
	require.False(t, results[0].More)
}

func TestScanRespectsMinKey(t *testing.T) {
	e := open(t)
	for _, k := range []store.Key{1, 2, 3, 4, 5} {
		writeOne(t, e, nil, k, []byte("v"))
	}
	scans := store.ScansArg{
		MinKeys: store.SingleView[store.Key](3, 1),
		Limits:  store.SingleView(10, 1),
		Count:   1,
	}
	results, err := e.Scan(context.Background(), nil, scans, 0, store.NewArena(0))
	require.NoError(t, err)
	require.Equal(t, []store.Key{3, 4, 5}, results[0].Keys)
}

func TestTransactionConflictAborts(t *testing.T) {
	e := open(t)
	ctx := context.Background()

	writeOne(t, e, nil, 1, []byte("v0"))

	txnA, err := e.TxnBegin(ctx, 0)
	require.NoError(t, err)
	txnB, err := e.TxnBegin(ctx, 0)
	require.NoError(t, err)

	_, _ = readOne(t, e, txnA, 1)
	_, _ = readOne(t, e, txnB, 1)

	writeOne(t, e, txnA, 1, []byte("from-a"))
	_, err = e.TxnCommit(ctx, txnA, 0)
	require.NoError(t, err)

	writeOne(t, e, txnB, 1, []byte("from-b"))
	_, err = e.TxnCommit(ctx, txnB, 0)
	require.Error(t, err)
	require.Equal(t, store.ErrorConflict, store.KindOf(err))
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
